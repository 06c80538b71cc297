package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	v1 "pointy/shared/contracts/pointing/v1"

	"github.com/coder/websocket"
)

// Sender writes one outbound protocol message.
type Sender interface {
	Send(ctx context.Context, msg any) error
}

// Handlers receive transport callbacks. Any field may be nil.
//
// OnMessage is called from a single read goroutine, one event at a time, in arrival order.
type Handlers struct {
	OnMessage func(v1.Event)
	OnError   func(error)
	OnOpen    func()
}

// TransportConfig controls dialing, writes and reconnects.
type TransportConfig struct {
	URL          string
	Origin       string
	Subprotocols []string

	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64

	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

func (c TransportConfig) withDefaults() TransportConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = maxFrameBytes
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = defaultReconnectMin
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = defaultReconnectMax
		if c.ReconnectMax < c.ReconnectMin {
			c.ReconnectMax = c.ReconnectMin
		}
	}
	return c
}

// WSTransport is the client side of the pointing socket.
//
// Design notes:
//   - At most one channel is open at a time.
//   - Sends issued while no channel is open are queued and written exactly once,
//     in call order, when the next channel opens. Later opens never replay them.
//   - Writes happen under mu so a flush can never interleave with a direct send.
//   - Close is idempotent.
type WSTransport struct {
	log *slog.Logger
	cfg TransportConfig
	h   Handlers

	mu      sync.Mutex
	conn    *websocket.Conn
	dialing bool
	closed  bool
	pending [][]byte

	malformedLog *windowLimiter
	write        func(ctx context.Context, conn *websocket.Conn, b []byte) error

	done      chan struct{}
	closeOnce sync.Once
}

// NewWSTransport constructs a transport. Nothing is dialed until Connect or Run.
func NewWSTransport(log *slog.Logger, cfg TransportConfig, h Handlers) *WSTransport {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	t := &WSTransport{
		log:          log,
		cfg:          cfg.withDefaults(),
		h:            h,
		malformedLog: newWindowLimiter(malformedLogLimit, malformedLogWindow),
		done:         make(chan struct{}),
	}
	t.write = t.writeFrame
	return t
}

// IsOpen reports whether a channel is currently open.
func (t *WSTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Pending returns the number of writes waiting for the channel to open.
func (t *WSTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Done returns a channel that is closed once the transport is closed.
func (t *WSTransport) Done() <-chan struct{} {
	return t.done
}

// Send JSON-encodes msg and writes it, or defers it until the channel opens.
//
// A nil error for a deferred send means the message was queued, not delivered.
func (t *WSTransport) Send(ctx context.Context, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("realtime: encode: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.conn == nil {
		if len(t.pending) >= maxPendingSends {
			return ErrQueueFull
		}
		t.pending = append(t.pending, b)
		pendingSends.Set(float64(len(t.pending)))
		t.log.Debug("ws.send.deferred", "pending", len(t.pending))
		return nil
	}

	if err := t.write(ctx, t.conn, b); err != nil {
		framesSent.WithLabelValues("failed").Inc()
		t.log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
		return err
	}
	framesSent.WithLabelValues("direct").Inc()
	return nil
}

// Connect dials once and opens the channel, flushing any deferred sends.
// It does not read; Run drives the read loop.
func (t *WSTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return ErrClosed
	case t.conn != nil || t.dialing:
		t.mu.Unlock()
		return ErrAlreadyOpen
	}
	t.dialing = true
	t.mu.Unlock()

	conn, err := t.dial(ctx)

	t.mu.Lock()
	t.dialing = false
	if err != nil {
		t.mu.Unlock()
		connectAttempts.WithLabelValues("fail").Inc()
		return err
	}
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		return ErrClosed
	}
	if err := t.openLocked(ctx, conn); err != nil {
		t.mu.Unlock()
		connectAttempts.WithLabelValues("flush_fail").Inc()
		_ = conn.Close(websocket.StatusGoingAway, "flush failed")
		return err
	}
	connectAttempts.WithLabelValues("ok").Inc()
	t.mu.Unlock()

	t.log.Info("ws.open", "url", t.cfg.URL)
	if t.h.OnOpen != nil {
		t.h.OnOpen()
	}
	return nil
}

// Run connects (unless already connected), reads until the channel drops, and reconnects
// with exponential backoff until ctx is cancelled or Close is called.
func (t *WSTransport) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	bo := newBackoff(t.cfg.ReconnectMin, t.cfg.ReconnectMax)
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn := t.current()
		if conn == nil {
			err := t.Connect(ctx)
			switch {
			case err == nil:
				conn = t.current()
			case errors.Is(err, ErrClosed):
				return nil
			case errors.Is(err, ErrAlreadyOpen):
				conn = t.current()
			case errors.Is(err, ErrFlushFailed):
				// Already reported by the flush.
				if !sleepCtx(ctx, bo.next()) {
					return nil
				}
				continue
			default:
				if ctx.Err() != nil {
					return nil
				}
				t.log.Info("ws.dial.fail", "url", t.cfg.URL, "err", err)
				t.reportError(fmt.Errorf("realtime: dial: %w", err))
				if !sleepCtx(ctx, bo.next()) {
					return nil
				}
				continue
			}
			if conn == nil {
				continue
			}
		}

		bo.reset()
		err := t.readLoop(ctx, conn)
		t.detach(conn)

		if ctx.Err() != nil {
			return nil
		}
		switch classifyReadErr(err) {
		case readErrClose:
			t.log.Info("ws.closed.by.peer", "close_status", websocket.CloseStatus(err))
		case readErrCtxDone:
			return nil
		default:
			t.log.Info("ws.read.fail", "err", err)
			t.reportError(fmt.Errorf("realtime: read: %w", err))
		}

		if !sleepCtx(ctx, bo.next()) {
			return nil
		}
	}
}

// Close closes the open channel (if any) and stops Run. Queued sends are discarded.
func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		conn := t.conn
		t.conn = nil
		t.pending = nil
		pendingSends.Set(0)
		t.mu.Unlock()

		close(t.done)
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
		}
	})
	return nil
}

// ---- internals ----

func (t *WSTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()

	var hdr http.Header
	if o := strings.TrimSpace(t.cfg.Origin); o != "" {
		hdr = http.Header{}
		hdr.Set("Origin", o)
	}

	conn, _, err := websocket.Dial(dctx, t.cfg.URL, &websocket.DialOptions{
		Subprotocols: t.cfg.Subprotocols,
		HTTPHeader:   hdr,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(t.cfg.ReadLimit)
	return conn, nil
}

// openLocked flushes deferred writes in order, then publishes conn as the open channel.
// A write that fails is dropped and reported, the rest stay queued, and conn is not
// published so nothing can overtake them; the caller closes conn and redials.
func (t *WSTransport) openLocked(ctx context.Context, conn *websocket.Conn) error {
	flushed := 0
	var flushErr error
	for _, b := range t.pending {
		flushed++
		if err := t.write(ctx, conn, b); err != nil {
			framesSent.WithLabelValues("failed").Inc()
			t.log.Info("ws.flush.fail", "pending", len(t.pending)-flushed, "err", err)
			flushErr = err
			break
		}
		framesSent.WithLabelValues("deferred").Inc()
	}
	t.pending = append([][]byte(nil), t.pending[flushed:]...)
	if len(t.pending) == 0 {
		t.pending = nil
	}
	pendingSends.Set(float64(len(t.pending)))

	if flushErr != nil {
		t.reportError(fmt.Errorf("realtime: flush: %w", flushErr))
		return fmt.Errorf("%w: %w", ErrFlushFailed, flushErr)
	}
	t.conn = conn
	return nil
}

func (t *WSTransport) writeFrame(parent context.Context, conn *websocket.Conn, b []byte) error {
	ctx, cancel := context.WithTimeout(parent, t.cfg.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}

func (t *WSTransport) current() *websocket.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *WSTransport) detach(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func (t *WSTransport) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if mt != websocket.MessageText && mt != websocket.MessageBinary {
			continue
		}

		ev, err := decodeEvent(data)
		if err != nil {
			framesReceived.WithLabelValues("malformed").Inc()
			if t.malformedLog.Allow(time.Now()) {
				t.log.Warn("ws.read.malformed", "err", err, "bytes", len(data))
			}
			continue
		}

		framesReceived.WithLabelValues("delivered").Inc()
		if t.h.OnMessage != nil {
			t.h.OnMessage(ev)
		}
	}
}

func (t *WSTransport) reportError(err error) {
	if t.h.OnError != nil {
		t.h.OnError(err)
	}
}

func decodeEvent(data []byte) (v1.Event, error) {
	var ev v1.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return v1.Event{}, err
	}
	if err := ev.Validate(); err != nil {
		return v1.Event{}, err
	}
	return ev, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}
