// Package store provides the shared database/sql implementation behind the
// SQLite and PostgreSQL stores.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// sqlStore implements Store over database/sql. Queries are written with '?'
// placeholders and rewritten by bind for drivers that number them.
type sqlStore struct {
	db   *sql.DB
	name string
	bind func(query string) string
}

// bindQuestion leaves '?' placeholders as they are (SQLite).
func bindQuestion(query string) string { return query }

// bindDollar rewrites '?' placeholders to $1, $2, ... (PostgreSQL).
func bindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) GetOrCreate(ctx context.Context, userID string) (models.ConversationState, error) {
	if userID == "" {
		return models.ConversationState{}, ErrEmptyUserID
	}
	state, err := s.getConversation(ctx, userID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		slog.Error(s.name+" GetOrCreate lookup failed", "error", err, "user", userID)
		return models.ConversationState{}, fmt.Errorf("failed to load conversation for %s: %w", userID, err)
	}

	state = models.NewConversationState(userID)
	_, err = s.db.ExecContext(ctx, s.bind(`
		INSERT INTO conversations (user_id, step, config, budget, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`),
		state.UserID, string(state.Step), state.Config, state.Budget, state.Reason, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error(s.name+" GetOrCreate insert failed", "error", err, "user", userID)
		return models.ConversationState{}, fmt.Errorf("failed to create conversation for %s: %w", userID, err)
	}
	// Re-read so a concurrent creator's row wins consistently.
	state, err = s.getConversation(ctx, userID)
	if err != nil {
		return models.ConversationState{}, fmt.Errorf("failed to reload conversation for %s: %w", userID, err)
	}
	slog.Debug(s.name+" GetOrCreate created conversation", "user", userID)
	return state, nil
}

func (s *sqlStore) getConversation(ctx context.Context, userID string) (models.ConversationState, error) {
	var st models.ConversationState
	var step string
	err := s.db.QueryRowContext(ctx, s.bind(`
		SELECT user_id, step, config, budget, reason, created_at, updated_at
		FROM conversations WHERE user_id = ?`), userID).Scan(
		&st.UserID, &step, &st.Config, &st.Budget, &st.Reason, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return st, err
	}
	st.Step = models.Step(step)
	return st, nil
}

func (s *sqlStore) Save(ctx context.Context, state models.ConversationState) error {
	if state.UserID == "" {
		return ErrEmptyUserID
	}
	now := time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO conversations (user_id, step, config, budget, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			step = excluded.step,
			config = excluded.config,
			budget = excluded.budget,
			reason = excluded.reason,
			updated_at = excluded.updated_at`),
		state.UserID, string(state.Step), state.Config, state.Budget, state.Reason, state.CreatedAt, now)
	if err != nil {
		slog.Error(s.name+" Save failed", "error", err, "user", state.UserID)
		return fmt.Errorf("failed to save conversation for %s: %w", state.UserID, err)
	}
	slog.Debug(s.name+" Save succeeded", "user", state.UserID, "step", state.Step)
	return nil
}

func (s *sqlStore) CountConversations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return n, nil
}

func (s *sqlStore) AddReceipt(ctx context.Context, r models.Receipt) error {
	_, err := s.db.ExecContext(ctx, s.bind(`INSERT INTO receipts (id, recipient, kind, status, error, time) VALUES (?, ?, ?, ?, ?, ?)`),
		r.ID, r.To, string(r.Kind), string(r.Status), r.Error, r.Time)
	if err != nil {
		slog.Error(s.name+" AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	slog.Debug(s.name+" AddReceipt succeeded", "to", r.To, "status", r.Status)
	return nil
}

func (s *sqlStore) GetReceipts(ctx context.Context) ([]models.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, recipient, kind, status, error, time FROM receipts ORDER BY time, id`)
	if err != nil {
		slog.Error(s.name+" GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		var kind, status string
		if err := rows.Scan(&r.ID, &r.To, &kind, &status, &r.Error, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		r.Kind = models.MessageKind(kind)
		r.Status = models.MessageStatus(status)
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	slog.Debug(s.name+" GetReceipts succeeded", "count", len(receipts))
	return receipts, nil
}

func (s *sqlStore) AddLead(ctx context.Context, lead models.Lead) error {
	_, err := s.db.ExecContext(ctx, s.bind(`INSERT INTO leads (id, user_id, config, budget, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		lead.ID, lead.UserID, lead.Config, lead.Budget, lead.Reason, lead.CreatedAt)
	if err != nil {
		slog.Error(s.name+" AddLead failed", "error", err, "user", lead.UserID)
		return fmt.Errorf("failed to insert lead for %s: %w", lead.UserID, err)
	}
	slog.Debug(s.name+" AddLead succeeded", "user", lead.UserID, "id", lead.ID)
	return nil
}

func (s *sqlStore) GetLeads(ctx context.Context) ([]models.Lead, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, config, budget, reason, created_at FROM leads ORDER BY created_at, id`)
	if err != nil {
		slog.Error(s.name+" GetLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		var l models.Lead
		if err := rows.Scan(&l.ID, &l.UserID, &l.Config, &l.Budget, &l.Reason, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	return leads, nil
}

func (s *sqlStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	res, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO inbound_dedup (message_id, user_id, received_at) VALUES (?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING`), messageID, userID, time.Now())
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *sqlStore) PruneInbound(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM inbound_dedup WHERE received_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune inbound rows affected: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug("Closing database connection", "store", s.name)
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close database", "store", s.name, "error", err)
	}
	return err
}
