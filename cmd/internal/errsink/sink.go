// Package errsink holds the single process-wide pending error shown to the user.
package errsink

import (
	"log/slog"
	"os"
	"sync"
)

// Sink is a one-slot error holder. The last Register wins; Ack clears it without history.
//
// A single presenter reads C to learn that the slot changed, then reads Pending.
type Sink struct {
	log *slog.Logger

	mu      sync.Mutex
	pending error

	notify chan struct{}
}

// New constructs an empty sink.
func New(log *slog.Logger) *Sink {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Sink{log: log, notify: make(chan struct{}, 1)}
}

// Register replaces the pending error. nil is ignored.
func (s *Sink) Register(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	replaced := s.pending != nil
	s.pending = err
	s.mu.Unlock()

	s.log.Warn("errsink.register", "err", err, "replaced", replaced)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Ack clears the pending error and returns it.
func (s *Sink) Ack() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.pending
	s.pending = nil
	return err
}

// Pending returns the pending error, or nil.
func (s *Sink) Pending() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// C signals that the slot was written. Signals coalesce.
func (s *Sink) C() <-chan struct{} {
	return s.notify
}
