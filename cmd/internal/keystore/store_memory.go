package keystore

import (
	"context"
	"strings"
	"sync"
)

// InMemoryStore is the fallback when no database is configured. Entries live as long
// as the process.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]Entry)}
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Put(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := normalize(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[e.SessionID]; ok {
		e.CreatedAt = prev.CreatedAt
	}
	s.entries[e.SessionID] = e
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, sessionID string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[strings.TrimSpace(sessionID)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *InMemoryStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.Unlock()

	sortNewestFirst(out)
	return out, nil
}
