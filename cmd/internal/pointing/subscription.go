package pointing

import (
	"sync"
)

const (
	sessionSubBuffer = 1
	allSubBuffer     = 32
)

// Subscription delivers Session values for one session id, or for every session when
// its key is "". Delivery never blocks the store: when the buffer is full the oldest
// pending value is replaced.
type Subscription struct {
	key string
	ch  chan Session

	hub       *subHub
	closeOnce sync.Once
}

// Key is the session id this subscription follows ("" for all sessions).
func (s *Subscription) Key() string { return s.key }

// C returns the delivery channel. It is closed by Close or when the store closes.
func (s *Subscription) C() <-chan Session { return s.ch }

// Close unsubscribes (idempotent).
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.remove(s)
}

// subHub is the keyed subscriber registry.
//
// Concurrency guarantees:
//   - subscribe/remove are safe under concurrent publish.
//   - publish never blocks.
//   - channels are only closed under mu, so publish never sends on a closed channel.
type subHub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

func newSubHub() *subHub {
	return &subHub{subs: make(map[string]map[*Subscription]struct{})}
}

func (h *subHub) subscribe(key string) *Subscription {
	size := sessionSubBuffer
	if key == "" {
		size = allSubBuffer
	}
	sub := &Subscription{key: key, ch: make(chan Session, size), hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		sub.closeOnce.Do(func() {})
		return sub
	}
	m := h.subs[key]
	if m == nil {
		m = make(map[*Subscription]struct{})
		h.subs[key] = m
	}
	m[sub] = struct{}{}
	return sub
}

func (h *subHub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub.closeOnce.Do(func() {
		if m := h.subs[sub.key]; m != nil {
			delete(m, sub)
			if len(m) == 0 {
				delete(h.subs, sub.key)
			}
		}
		close(sub.ch)
	})
}

func (h *subHub) publish(sessions []Session) {
	if len(sessions) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sess := range sessions {
		for sub := range h.subs[sess.SessionID] {
			offer(sub.ch, sess.clone())
		}
		for sub := range h.subs[""] {
			offer(sub.ch, sess.clone())
		}
	}
}

func (h *subHub) publishTo(sub *Subscription, sess Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.subs[sub.key]; m != nil {
		if _, ok := m[sub]; ok {
			offer(sub.ch, sess.clone())
		}
	}
}

func (h *subHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, m := range h.subs {
		for sub := range m {
			sub.closeOnce.Do(func() { close(sub.ch) })
		}
	}
	h.subs = make(map[string]map[*Subscription]struct{})
}

// offer delivers v, evicting the oldest buffered value if needed. Callers hold hub.mu,
// which makes them the only sender on ch.
func offer(ch chan Session, v Session) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
		droppedUpdates.Inc()
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
