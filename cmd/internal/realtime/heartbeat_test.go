package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg any) error {
	b, _ := json.Marshal(msg)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, string(b))
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestHeartbeat_PingsImmediatelyThenPeriodically(t *testing.T) {
	t.Parallel()

	s := &recordingSender{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		Heartbeat{Sender: s, Every: time.Hour, Log: testLogger()}.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := s.count(); got != 1 {
		t.Fatalf("pings=%d want=1 before first tick", got)
	}
	s.mu.Lock()
	first := s.msgs[0]
	s.mu.Unlock()
	if first != `{"action":"ping"}` {
		t.Fatalf("ping=%s want={\"action\":\"ping\"}", first)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("heartbeat did not stop on cancel")
	}
}

func TestHeartbeat_ContinuesAfterSendFailure(t *testing.T) {
	t.Parallel()

	s := &recordingSender{err: errors.New("down")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Heartbeat{Sender: s, Every: 5 * time.Millisecond, Log: testLogger()}.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for s.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := s.count(); got < 3 {
		t.Fatalf("pings=%d want>=3", got)
	}
}

func TestBackoff_DoublesCapsAndResets(t *testing.T) {
	t.Parallel()

	b := newBackoff(100*time.Millisecond, 400*time.Millisecond)
	b.jitter = func() float64 { return 0.5 } // no jitter

	want := []time.Duration{100, 200, 400, 400}
	for i, w := range want {
		if got := b.next(); got != w*time.Millisecond {
			t.Fatalf("step %d: delay=%v want=%v", i, got, w*time.Millisecond)
		}
	}
	b.reset()
	if got := b.next(); got != 100*time.Millisecond {
		t.Fatalf("after reset delay=%v want=100ms", got)
	}

	b.reset()
	b.jitter = func() float64 { return 0 }
	if got := b.next(); got != 80*time.Millisecond {
		t.Fatalf("low jitter delay=%v want=80ms", got)
	}
}
