// Package postgres provides a PostgreSQL implementation of storage.Store.
// It uses pgx/v5 for connection pooling.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simstudio/copilot-gateway/pkg/storage"
)

// Config holds connection and behavior settings for the store.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxConns caps the pool size. Zero means 25.
	MaxConns int32

	// MigrateOnStart applies pending schema migrations during New.
	MigrateOnStart bool
}

// Store is a PostgreSQL-backed storage.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 25
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveMessage appends one message to a workflow's history.
func (s *Store) SaveMessage(ctx context.Context, msg *storage.ChatMessage) error {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, workflow_id, user_id, role, content)
		VALUES ($1, $2, $3, $4, $5)
	`, id, msg.WorkflowID, msg.UserID, msg.Role, msg.Content)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// History returns up to limit most recent messages for a workflow in
// chronological order.
func (s *Store) History(ctx context.Context, workflowID string, limit int) ([]storage.ChatMessage, error) {
	query := `
		SELECT id, workflow_id, user_id, role, content, created_at
		FROM chat_messages
		WHERE workflow_id = $1
		ORDER BY created_at DESC
	`
	args := []any{workflowID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var messages []storage.ChatMessage
	for rows.Next() {
		var m storage.ChatMessage
		if err := rows.Scan(&m.ID, &m.WorkflowID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}

	// Query returned newest-first; reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ClearHistory removes all messages for a workflow.
func (s *Store) ClearHistory(ctx context.Context, workflowID string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM chat_messages WHERE workflow_id = $1", workflowID)
	if err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// SaveKey stores or replaces the key for (userID, provider).
func (s *Store) SaveKey(ctx context.Context, key *storage.UserAPIKey) error {
	id := key.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_api_keys (id, user_id, provider, api_key_encrypted)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, provider)
		DO UPDATE SET api_key_encrypted = EXCLUDED.api_key_encrypted, updated_at = now()
	`, id, key.UserID, key.Provider, key.EncryptedKey)
	if err != nil {
		return fmt.Errorf("saving key: %w", err)
	}
	return nil
}

// GetKey returns the stored key for (userID, provider).
func (s *Store) GetKey(ctx context.Context, userID, provider string) (*storage.UserAPIKey, error) {
	var key storage.UserAPIKey
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, provider, api_key_encrypted, created_at, updated_at
		FROM user_api_keys
		WHERE user_id = $1 AND provider = $2
	`, userID, provider).Scan(
		&key.ID, &key.UserID, &key.Provider, &key.EncryptedKey, &key.CreatedAt, &key.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying key: %w", err)
	}
	return &key, nil
}

// ListKeys returns metadata for all of a user's keys.
func (s *Store) ListKeys(ctx context.Context, userID string) ([]storage.KeyMetadata, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, provider, created_at
		FROM user_api_keys
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer rows.Close()

	var metas []storage.KeyMetadata
	for rows.Next() {
		var m storage.KeyMetadata
		if err := rows.Scan(&m.ID, &m.Provider, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning key metadata: %w", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keys: %w", err)
	}
	return metas, nil
}

// DeleteKey removes the key for (userID, provider).
func (s *Store) DeleteKey(ctx context.Context, userID, provider string) error {
	result, err := s.pool.Exec(ctx,
		"DELETE FROM user_api_keys WHERE user_id = $1 AND provider = $2",
		userID, provider,
	)
	if err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordStat appends one usage stat.
func (s *Store) RecordStat(ctx context.Context, stat *storage.UsageStat) error {
	id := stat.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_stats (id, user_id, workflow_id, message_id, diff_created, diff_accepted)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, stat.UserID, stat.WorkflowID, nullString(stat.MessageID), stat.DiffCreated, stat.DiffAccepted)
	if err != nil {
		return fmt.Errorf("inserting stat: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
