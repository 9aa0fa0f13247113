// Package storage defines the persistence contracts for chat history,
// per-user provider API keys, and usage statistics. Adapters live in
// the memory and postgres subpackages.
package storage

import (
	"context"
	"time"
)

// ChatMessage is one stored conversation turn.
type ChatMessage struct {
	ID         string
	UserID     string
	WorkflowID string
	Role       string
	Content    string
	CreatedAt  time.Time
}

// UserAPIKey is a stored per-user provider credential. EncryptedKey
// holds the AES-256-GCM ciphertext in iv:authTag:salt:encrypted form;
// plaintext keys are never persisted.
type UserAPIKey struct {
	ID           string
	UserID       string
	Provider     string
	EncryptedKey string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// KeyMetadata describes a stored key without its secret material.
type KeyMetadata struct {
	ID        string
	Provider  string
	CreatedAt time.Time
}

// UsageStat records a diff-creation/acceptance analytics event.
type UsageStat struct {
	ID           string
	UserID       string
	WorkflowID   string
	MessageID    string
	DiffCreated  bool
	DiffAccepted bool
	CreatedAt    time.Time
}

// MessageStore persists and loads chat history.
type MessageStore interface {
	// SaveMessage appends one message to a workflow's history.
	SaveMessage(ctx context.Context, msg *ChatMessage) error

	// History returns up to limit most recent messages for a workflow
	// in chronological order.
	History(ctx context.Context, workflowID string, limit int) ([]ChatMessage, error)

	// ClearHistory removes all messages for a workflow.
	ClearHistory(ctx context.Context, workflowID string) error
}

// KeyStore persists per-user provider API keys.
type KeyStore interface {
	// SaveKey stores or replaces the key for (userID, provider).
	SaveKey(ctx context.Context, key *UserAPIKey) error

	// GetKey returns the stored key for (userID, provider), including
	// its ciphertext. Returns ErrNotFound when absent.
	GetKey(ctx context.Context, userID, provider string) (*UserAPIKey, error)

	// ListKeys returns metadata for all of a user's keys.
	ListKeys(ctx context.Context, userID string) ([]KeyMetadata, error)

	// DeleteKey removes the key for (userID, provider). Returns
	// ErrNotFound when absent.
	DeleteKey(ctx context.Context, userID, provider string) error
}

// StatsStore records usage statistics.
type StatsStore interface {
	RecordStat(ctx context.Context, stat *UsageStat) error
}

// Store combines all persistence concerns behind one handle.
type Store interface {
	MessageStore
	KeyStore
	StatsStore

	HealthCheck(ctx context.Context) error
	Close() error
}
