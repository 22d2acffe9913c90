// Package store provides storage backends for LeadPipe.
//
// It includes an in-memory store (the default, process-lifetime only) and
// substitutable SQLite, PostgreSQL and Redis backings for conversation state,
// send receipts, completed leads and inbound message deduplication.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// DSN types returned by DetectDSNType.
const (
	DSNTypeMemory   = "memory"
	DSNTypeSQLite   = "sqlite"
	DSNTypePostgres = "postgres"
	DSNTypeRedis    = "redis"
)

// ErrEmptyUserID is returned when a conversation is requested without a user identifier.
var ErrEmptyUserID = errors.New("user identifier cannot be empty")

// ConversationStore holds one ConversationState per user identifier.
type ConversationStore interface {
	// GetOrCreate returns the existing state for userID, or creates and stores
	// a new one with step START and no selections.
	GetOrCreate(ctx context.Context, userID string) (models.ConversationState, error)
	// Save writes back an updated state. Concurrent saves for the same user are last-write-wins.
	Save(ctx context.Context, state models.ConversationState) error
	// CountConversations returns the number of tracked users.
	CountConversations(ctx context.Context) (int, error)
}

// LeadRecorder stores leads produced by completed flows.
type LeadRecorder interface {
	AddLead(ctx context.Context, lead models.Lead) error
	GetLeads(ctx context.Context) ([]models.Lead, error)
}

// ReceiptRecorder stores the outcome of outbound sends.
type ReceiptRecorder interface {
	AddReceipt(ctx context.Context, r models.Receipt) error
	GetReceipts(ctx context.Context) ([]models.Receipt, error)
}

// DedupRepo records inbound platform message IDs so redelivered webhooks are
// not processed twice.
type DedupRepo interface {
	// RecordInbound returns false if messageID was already recorded.
	RecordInbound(ctx context.Context, messageID, userID string) (bool, error)
	// PruneInbound forgets message IDs recorded before cutoff and returns how many were removed.
	PruneInbound(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is the full storage surface used by the server.
type Store interface {
	ConversationStore
	LeadRecorder
	ReceiptRecorder
	DedupRepo
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN       string // connection string or file path
	KeyPrefix string // Redis key prefix
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithRedisURL sets the Redis connection URL (redis:// or rediss://).
func WithRedisURL(url string) Option {
	return func(o *Opts) { o.DSN = url }
}

// WithKeyPrefix sets the key prefix used by the Redis store.
func WithKeyPrefix(prefix string) Option {
	return func(o *Opts) { o.KeyPrefix = prefix }
}

// DetectDSNType classifies a connection string. An empty DSN selects the in-memory store.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	switch {
	case d == "":
		return DSNTypeMemory
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"), strings.Contains(d, "host="):
		return DSNTypePostgres
	case strings.HasPrefix(d, "redis://"), strings.HasPrefix(d, "rediss://"):
		return DSNTypeRedis
	default:
		return DSNTypeSQLite
	}
}

// Open creates the backend selected by dsn. Extra options (e.g. WithKeyPrefix)
// are passed to the selected backend.
func Open(dsn string, opts ...Option) (Store, error) {
	switch DetectDSNType(dsn) {
	case DSNTypeMemory:
		slog.Debug("Store.Open: using in-memory store")
		return NewInMemoryStore(), nil
	case DSNTypePostgres:
		slog.Debug("Store.Open: using PostgreSQL store", "dsn_set", true)
		return NewPostgresStore(append(opts, WithPostgresDSN(dsn))...)
	case DSNTypeRedis:
		slog.Debug("Store.Open: using Redis store")
		return NewRedisStoreFromURL(append(opts, WithRedisURL(dsn))...)
	default:
		slog.Debug("Store.Open: using SQLite store", "db_path", dsn)
		return NewSQLiteStore(append(opts, WithSQLiteDSN(dsn))...)
	}
}

// InMemoryStore keeps everything in process memory. State is lost on restart
// and the conversation map grows with the number of distinct users.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]models.ConversationState
	receipts      []models.Receipt
	leads         []models.Lead
	seen          map[string]time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]models.ConversationState),
		seen:          make(map[string]time.Time),
	}
}

func (s *InMemoryStore) GetOrCreate(ctx context.Context, userID string) (models.ConversationState, error) {
	if userID == "" {
		return models.ConversationState{}, ErrEmptyUserID
	}
	s.mu.RLock()
	state, ok := s.conversations[userID]
	s.mu.RUnlock()
	if ok {
		return state, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another delivery for the same user may have created it meanwhile.
	if state, ok := s.conversations[userID]; ok {
		return state, nil
	}
	state = models.NewConversationState(userID)
	s.conversations[userID] = state
	slog.Debug("InMemoryStore GetOrCreate created conversation", "user", userID)
	return state, nil
}

func (s *InMemoryStore) Save(ctx context.Context, state models.ConversationState) error {
	if state.UserID == "" {
		return ErrEmptyUserID
	}
	state.UpdatedAt = time.Now()
	s.mu.Lock()
	s.conversations[state.UserID] = state
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) CountConversations(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations), nil
}

func (s *InMemoryStore) AddReceipt(ctx context.Context, r models.Receipt) error {
	s.mu.Lock()
	s.receipts = append(s.receipts, r)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) GetReceipts(ctx context.Context) ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out, nil
}

func (s *InMemoryStore) AddLead(ctx context.Context, lead models.Lead) error {
	s.mu.Lock()
	s.leads = append(s.leads, lead)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) GetLeads(ctx context.Context) ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Lead, len(s.leads))
	copy(out, s.leads)
	return out, nil
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[messageID]; dup {
		return false, nil
	}
	s.seen[messageID] = time.Now()
	return true, nil
}

func (s *InMemoryStore) PruneInbound(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// requireDSN returns the DSN from opts or an error naming the backend.
func requireDSN(backend string, opts []Option) (Opts, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("Store DSN not set", "backend", backend)
		return cfg, fmt.Errorf("%s: database DSN not set", backend)
	}
	return cfg, nil
}

// Compile-time checks that every backing implements Store.
var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*RedisStore)(nil)
)
