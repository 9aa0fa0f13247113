// Package memory provides an in-memory storage.Store for testing and
// lightweight deployments. All data is lost when the process restarts.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simstudio/copilot-gateway/pkg/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu       sync.RWMutex
	messages []storage.ChatMessage
	keys     map[string]storage.UserAPIKey // userID + "\x00" + provider
	stats    []storage.UsageStat
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		keys: make(map[string]storage.UserAPIKey),
	}
}

// SaveMessage appends one message to the history.
func (s *Store) SaveMessage(_ context.Context, msg *storage.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *msg
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.messages = append(s.messages, stored)
	return nil
}

// History returns up to limit most recent messages for a workflow in
// chronological order.
func (s *Store) History(_ context.Context, workflowID string, limit int) ([]storage.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []storage.ChatMessage
	for _, m := range s.messages {
		if m.WorkflowID == workflowID {
			matched = append(matched, m)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// ClearHistory removes all messages for a workflow.
func (s *Store) ClearHistory(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.WorkflowID != workflowID {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return nil
}

// SaveKey stores or replaces the key for (userID, provider).
func (s *Store) SaveKey(_ context.Context, key *storage.UserAPIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *key
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := time.Now()
	if existing, ok := s.keys[keyID(stored.UserID, stored.Provider)]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.keys[keyID(stored.UserID, stored.Provider)] = stored
	return nil
}

// GetKey returns the stored key for (userID, provider).
func (s *Store) GetKey(_ context.Context, userID, provider string) (*storage.UserAPIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[keyID(userID, provider)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &key, nil
}

// ListKeys returns metadata for all of a user's keys.
func (s *Store) ListKeys(_ context.Context, userID string) ([]storage.KeyMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var metas []storage.KeyMetadata
	for _, key := range s.keys {
		if key.UserID == userID {
			metas = append(metas, storage.KeyMetadata{
				ID:        key.ID,
				Provider:  key.Provider,
				CreatedAt: key.CreatedAt,
			})
		}
	}
	return metas, nil
}

// DeleteKey removes the key for (userID, provider).
func (s *Store) DeleteKey(_ context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := keyID(userID, provider)
	if _, ok := s.keys[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.keys, id)
	return nil
}

// RecordStat appends one usage stat.
func (s *Store) RecordStat(_ context.Context, stat *storage.UsageStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *stat
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.stats = append(s.stats, stored)
	return nil
}

// Stats returns a copy of all recorded stats. Test helper.
func (s *Store) Stats() []storage.UsageStat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.UsageStat, len(s.stats))
	copy(out, s.stats)
	return out
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func keyID(userID, provider string) string {
	return userID + "\x00" + provider
}
