package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

const defaultMemorySize = 1000

// MemoryStore keeps sessions in a bounded LRU with per-entry expiry.
type MemoryStore struct {
	cache *expirable.LRU[string, *types.Session]
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	size int
	ttl  time.Duration
}

// WithMemorySize caps the number of retained sessions.
func WithMemorySize(n int) MemoryOption {
	return func(c *memoryConfig) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithMemoryTTL sets how long an untouched session is kept. Zero disables
// expiry.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(c *memoryConfig) {
		c.ttl = ttl
	}
}

// NewMemoryStore creates an in-process session store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	cfg := memoryConfig{size: defaultMemorySize, ttl: defaultTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MemoryStore{cache: expirable.NewLRU[string, *types.Session](cfg.size, nil, cfg.ttl)}
}

// Get returns a copy of the session.
func (m *MemoryStore) Get(_ context.Context, id string) (*types.Session, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	s, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Put stores a copy of the session.
func (m *MemoryStore) Put(_ context.Context, s *types.Session) error {
	if err := validate(s); err != nil {
		return err
	}
	m.cache.Add(s.ID, s.Clone())
	return nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	m.cache.Remove(id)
	return nil
}

// Len returns the number of retained sessions.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// Close releases nothing.
func (m *MemoryStore) Close() error {
	return nil
}
