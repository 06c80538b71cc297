// Package keystore remembers facilitator keys so a facilitator can resume a session
// after the client restarts.
package keystore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Get for unknown session ids.
	ErrNotFound = errors.New("keystore: not found")
	// ErrInvalidInput reports an entry without a session id or key.
	ErrInvalidInput = errors.New("keystore: invalid input")
)

// Entry is one remembered facilitator key.
type Entry struct {
	SessionID      string
	FacilitatorKey string
	CreatedAt      time.Time
}

// Store persists entries keyed by session id. Put overwrites the key of an existing
// session and keeps its CreatedAt.
type Store interface {
	Put(ctx context.Context, e Entry) error
	Get(ctx context.Context, sessionID string) (Entry, error)
	// List returns entries newest first.
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

func normalize(e Entry) (Entry, error) {
	e.SessionID = strings.TrimSpace(e.SessionID)
	e.FacilitatorKey = strings.TrimSpace(e.FacilitatorKey)
	if e.SessionID == "" || e.FacilitatorKey == "" {
		return Entry{}, ErrInvalidInput
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return e, nil
}

// sortNewestFirst orders entries by CreatedAt descending, then session id.
func sortNewestFirst(out []Entry) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
}
