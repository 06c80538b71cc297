// Package ids issues request ids for the pointing API client.
package ids

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestIDs issues ULIDs that strictly increase within a process, including ids made
// in the same millisecond or after the wall clock steps back, so X-Request-Id order in
// logs matches send order.
type RequestIDs struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
	last    uint64
}

// NewRequestIDs uses the wall clock and crypto/rand.
func NewRequestIDs() *RequestIDs {
	return newRequestIDs(time.Now)
}

func newRequestIDs(now func() time.Time) *RequestIDs {
	return &RequestIDs{now: now, entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Next returns the next id.
func (g *RequestIDs) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(g.now().UTC())
	if ms < g.last {
		ms = g.last
	}
	id, err := ulid.New(ms, g.entropy)
	if errors.Is(err, ulid.ErrMonotonicOverflow) {
		ms++
		id, err = ulid.New(ms, g.entropy)
	}
	if err != nil {
		return "", err
	}
	g.last = ms
	return id.String(), nil
}
