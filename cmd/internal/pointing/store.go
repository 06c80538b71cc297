package pointing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"time"

	"pointy/cmd/internal/realtime"
	v1 "pointy/shared/contracts/pointing/v1"
)

// ErrorReporter receives failures the store cannot return to a caller.
type ErrorReporter interface {
	Register(err error)
}

// Option configures a Store.
type Option func(*Store)

// WithErrorReporter routes server-reported errors to r.
func WithErrorReporter(r ErrorReporter) Option {
	return func(s *Store) { s.errs = r }
}

// WithHeartbeatInterval overrides the ping period used by Run.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.heartbeatEvery = d
		}
	}
}

// Store is the session store: one State guarded by a mutex, fed by Handle (inbound
// events) and Execute (user commands).
//
// Concurrency guarantees:
//   - State transitions are serialized; Handle is expected to be called from a single
//     read goroutine so events apply in arrival order.
//   - Effects of concurrent Execute calls are sent in the order their commands applied.
//   - Handle never waits on the network.
type Store struct {
	log            *slog.Logger
	sender         realtime.Sender
	errs           ErrorReporter
	heartbeatEvery time.Duration

	mu    sync.Mutex
	state State

	// sendMu orders command application with effect emission.
	sendMu sync.Mutex

	subs *subHub

	// connReady is closed once the current connection id is known. Resync swaps in a
	// fresh channel. Guarded by mu.
	connReady chan struct{}
	connSet   bool
	opened    bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewStore constructs a store writing effects to sender.
func NewStore(log *slog.Logger, sender realtime.Sender, opts ...Option) *Store {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	s := &Store{
		log:            log,
		sender:         sender,
		heartbeatEvery: 30 * time.Second,
		subs:           newSubHub(),
		connReady:      make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run sends heartbeats for the lifetime of the store. It returns when ctx is cancelled
// or Close is called.
func (s *Store) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	realtime.Heartbeat{Sender: s.sender, Every: s.heartbeatEvery, Log: s.log}.Run(ctx)
}

// Close stops Run and closes every subscription (idempotent).
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.subs.close()
	})
}

// Handle applies one inbound event. Unknown or malformed events are logged and dropped.
func (s *Store) Handle(ev v1.Event) {
	if ev.Type == v1.TypeErrorEncountered {
		s.reportServerError(ev)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.state
	next, err := Reduce(before, ev)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			eventsHandled.WithLabelValues("unknown", "unknown").Inc()
			s.log.Info("pointing.event.unknown", "type", ev.Type)
			return
		}
		eventsHandled.WithLabelValues(ev.Type, "invalid").Inc()
		s.log.Warn("pointing.event.invalid", "type", ev.Type, "err", err)
		return
	}
	eventsHandled.WithLabelValues(ev.Type, "applied").Inc()

	s.commitLocked(before, next)

	if ev.Type == v1.TypePing && next.ConnectionID != "" {
		if before.ConnectionID != next.ConnectionID {
			s.log.Info("pointing.connection.id", "connection_id", next.ConnectionID)
		}
		if !s.connSet {
			close(s.connReady)
			s.connSet = true
		}
	}
}

// Execute applies cmd and sends its effects in order. The local transition is kept
// even when a send fails; the first send error is returned. Nothing is retried.
func (s *Store) Execute(ctx context.Context, cmd Command) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	before := s.state
	next, effects := Decide(before, cmd)
	s.commitLocked(before, next)
	s.mu.Unlock()

	for _, eff := range effects {
		if s.sender == nil {
			break
		}
		if err := s.sender.Send(ctx, eff); err != nil {
			commandsExecuted.WithLabelValues(cmd.Name(), "send_fail").Inc()
			s.log.Info("pointing.command.send.fail", "command", cmd.Name(), "err", err)
			return fmt.Errorf("pointing: %s: %w", cmd.Name(), err)
		}
	}

	result := "ok"
	if len(effects) == 0 {
		result = "local"
	}
	commandsExecuted.WithLabelValues(cmd.Name(), result).Inc()
	return nil
}

// ConnectionID returns the id learned from the last PING reply, or "".
func (s *Store) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ConnectionID
}

// WaitConnectionID blocks until a PING reply for the current channel has been applied.
func (s *Store) WaitConnectionID(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		ready := s.connReady
		s.mu.Unlock()

		select {
		case <-ready:
			if id := s.ConnectionID(); id != "" {
				return id, nil
			}
		case <-s.done:
			return "", ErrClosed
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Resync is called after every channel open. The first open is covered by Run's
// heartbeat. On a reopen the old connection id is forgotten, a ping asks for the new
// one and every known session is reloaded (the active one with markActive) so the
// server routes updates to the new connection. Reloads bypass the known-session
// short-circuit of LoadFacilitatorSession.
func (s *Store) Resync(ctx context.Context) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if !s.opened {
		s.opened = true
		s.mu.Unlock()
		return nil
	}
	before := s.state
	next := before.Clone()
	next.ConnectionID = ""
	if s.connSet {
		s.connReady = make(chan struct{})
		s.connSet = false
	}
	s.commitLocked(before, next)
	effects := resyncEffects(next)
	s.mu.Unlock()

	s.log.Info("pointing.resync", "sessions", len(next.Known))
	for _, eff := range effects {
		if s.sender == nil {
			break
		}
		if err := s.sender.Send(ctx, eff); err != nil {
			commandsExecuted.WithLabelValues("resync", "send_fail").Inc()
			s.log.Info("pointing.resync.send.fail", "err", err)
			return fmt.Errorf("pointing: resync: %w", err)
		}
	}
	commandsExecuted.WithLabelValues("resync", "ok").Inc()
	return nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Session returns the current value of a session, preferring the active copy.
func (s *Store) Session(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Lookup(id)
}

// Active returns the active session, if any.
func (s *Store) Active() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.SessionActive || s.state.Active == nil {
		return Session{}, false
	}
	return s.state.Active.clone(), true
}

// Subscribe follows one session by id, or every session when sessionID is "".
// The current value, when known, is delivered immediately.
func (s *Store) Subscribe(sessionID string) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.subs.subscribe(sessionID)
	if sessionID != "" {
		if sess, ok := s.state.Lookup(sessionID); ok {
			s.subs.publishTo(sub, sess)
		}
	}
	return sub
}

func (s *Store) commitLocked(before, next State) {
	s.state = next
	knownSessions.Set(float64(len(next.Known)))
	s.subs.publish(changedSessions(before, next))
}

func (s *Store) reportServerError(ev v1.Event) {
	var body v1.ErrorBody
	if err := ev.DecodeBody(&body); err != nil {
		eventsHandled.WithLabelValues(ev.Type, "invalid").Inc()
		s.log.Warn("pointing.event.invalid", "type", ev.Type, "err", err)
		return
	}
	eventsHandled.WithLabelValues(ev.Type, "error").Inc()
	err := &ServerError{Message: body.Message}
	s.log.Info("pointing.server.error", "err", err)
	if s.errs != nil {
		s.errs.Register(err)
	}
}

// changedSessions lists the session values that differ between two states, resolving
// each id the way Lookup does.
func changedSessions(before, after State) []Session {
	var out []Session
	seen := make(map[string]bool, len(after.Known)+1)

	check := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		now, ok := after.Lookup(id)
		if !ok {
			return
		}
		if prev, had := before.Lookup(id); had && reflect.DeepEqual(prev, now) {
			return
		}
		out = append(out, now)
	}

	if after.Active != nil {
		check(after.Active.SessionID)
	}
	for _, k := range after.Known {
		check(k.SessionID)
	}
	return out
}
