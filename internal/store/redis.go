// Package store provides storage backends for LeadPipe.
//
// This file implements a Redis-backed store: one JSON value per conversation
// under a common key prefix, lists for receipts and leads, and SETNX keys for
// inbound deduplication.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisKeyPrefix namespaces all keys written by the Redis store
	DefaultRedisKeyPrefix = "leadpipe"
	// DefaultDedupTTL bounds how long an inbound message ID is remembered
	DefaultDedupTTL = 24 * time.Hour
)

// RedisStore keeps state in Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreFromURL connects using a redis:// URL and verifies the connection.
func NewRedisStoreFromURL(opts ...Option) (*RedisStore, error) {
	cfg, err := requireDSN("RedisStore", opts)
	if err != nil {
		return nil, err
	}
	redisOpts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		slog.Error("Redis ping failed", "error", err)
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Debug("Redis connection established", "addr", redisOpts.Addr, "db", redisOpts.DB)
	return NewRedisStore(client, cfg.KeyPrefix), nil
}

func (s *RedisStore) conversationKey(userID string) string {
	return s.prefix + ":conv:" + userID
}

func (s *RedisStore) conversationsSetKey() string { return s.prefix + ":conversations" }
func (s *RedisStore) receiptsKey() string         { return s.prefix + ":receipts" }
func (s *RedisStore) leadsKey() string            { return s.prefix + ":leads" }
func (s *RedisStore) dedupKey(messageID string) string {
	return s.prefix + ":dedup:" + messageID
}

func (s *RedisStore) GetOrCreate(ctx context.Context, userID string) (models.ConversationState, error) {
	if userID == "" {
		return models.ConversationState{}, ErrEmptyUserID
	}
	key := s.conversationKey(userID)

	fresh := models.NewConversationState(userID)
	payload, err := json.Marshal(fresh)
	if err != nil {
		return models.ConversationState{}, fmt.Errorf("failed to encode conversation: %w", err)
	}
	created, err := s.client.SetNX(ctx, key, payload, 0).Result()
	if err != nil {
		slog.Error("RedisStore GetOrCreate setnx failed", "error", err, "user", userID)
		return models.ConversationState{}, fmt.Errorf("failed to create conversation for %s: %w", userID, err)
	}
	if created {
		if err := s.client.SAdd(ctx, s.conversationsSetKey(), userID).Err(); err != nil {
			slog.Warn("RedisStore GetOrCreate index update failed", "error", err, "user", userID)
		}
		slog.Debug("RedisStore GetOrCreate created conversation", "user", userID)
		return fresh, nil
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return models.ConversationState{}, fmt.Errorf("failed to load conversation for %s: %w", userID, err)
	}
	var state models.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return models.ConversationState{}, fmt.Errorf("failed to decode conversation for %s: %w", userID, err)
	}
	return state, nil
}

func (s *RedisStore) Save(ctx context.Context, state models.ConversationState) error {
	if state.UserID == "" {
		return ErrEmptyUserID
	}
	state.UpdatedAt = time.Now()
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.conversationKey(state.UserID), payload, 0)
	pipe.SAdd(ctx, s.conversationsSetKey(), state.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("RedisStore Save failed", "error", err, "user", state.UserID)
		return fmt.Errorf("failed to save conversation for %s: %w", state.UserID, err)
	}
	slog.Debug("RedisStore Save succeeded", "user", state.UserID, "step", state.Step)
	return nil
}

func (s *RedisStore) CountConversations(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.conversationsSetKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) AddReceipt(ctx context.Context, r models.Receipt) error {
	return s.push(ctx, s.receiptsKey(), r)
}

func (s *RedisStore) GetReceipts(ctx context.Context) ([]models.Receipt, error) {
	var receipts []models.Receipt
	err := s.readList(ctx, s.receiptsKey(), func(raw []byte) error {
		var r models.Receipt
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		receipts = append(receipts, r)
		return nil
	})
	return receipts, err
}

func (s *RedisStore) AddLead(ctx context.Context, lead models.Lead) error {
	return s.push(ctx, s.leadsKey(), lead)
}

func (s *RedisStore) GetLeads(ctx context.Context) ([]models.Lead, error) {
	var leads []models.Lead
	err := s.readList(ctx, s.leadsKey(), func(raw []byte) error {
		var l models.Lead
		if err := json.Unmarshal(raw, &l); err != nil {
			return err
		}
		leads = append(leads, l)
		return nil
	})
	return leads, err
}

func (s *RedisStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	ok, err := s.client.SetNX(ctx, s.dedupKey(messageID), userID, DefaultDedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	return ok, nil
}

// PruneInbound is a no-op: dedup keys expire after DefaultDedupTTL.
func (s *RedisStore) PruneInbound(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) push(ctx context.Context, key string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s entry: %w", key, err)
	}
	if err := s.client.RPush(ctx, key, payload).Err(); err != nil {
		slog.Error("RedisStore push failed", "error", err, "key", key)
		return fmt.Errorf("failed to append to %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) readList(ctx context.Context, key string, decode func([]byte) error) error {
	items, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	for _, item := range items {
		if err := decode([]byte(item)); err != nil {
			return fmt.Errorf("failed to decode %s entry: %w", key, err)
		}
	}
	return nil
}
