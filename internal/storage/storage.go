// Package storage provides the durable key-value slots that back persisted
// application state. Every backend stores opaque bytes per key; encoding is
// the caller's concern.
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrUnknownBackend is returned for an unsupported driver name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Store is a named-slot key-value store shared by every tab that points at
// the same backend.
type Store interface {
	// Get returns the stored bytes and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// MemoryStore keeps slots in process memory. Tabs sharing one MemoryStore
// behave like tabs sharing one browser profile.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.slots[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
