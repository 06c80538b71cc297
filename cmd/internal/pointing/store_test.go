package pointing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	v1 "pointy/shared/contracts/pointing/v1"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg any) error {
	if f.err != nil {
		return f.err
	}
	b, _ := json.Marshal(msg)
	f.mu.Lock()
	f.sent = append(f.sent, string(b))
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *fakeReporter) Register(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func newTestStore(t *testing.T, sender *fakeSender, opts ...Option) *Store {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewStore(log, sender, opts...)
	t.Cleanup(s.Close)
	return s
}

func recv(t *testing.T, sub *Subscription) Session {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		if !ok {
			t.Fatalf("subscription closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for session value")
		return Session{}
	}
}

func TestStore_LoadFacilitatorSessionScenario(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	s := newTestStore(t, sender)
	ctx := context.Background()

	cmd := LoadFacilitatorSession{SessionID: "S1", FacilitatorSessionKey: "K1", MarkActive: true}
	if err := s.Execute(ctx, cmd); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := len(sender.frames()); got != 1 {
		t.Fatalf("frames=%d want=1", got)
	}

	s.Handle(event(t, v1.TypeFacilitatorSessionLoaded, v1.FacilitatorSessionLoadedBody{Session: sessionView("S1"), MarkActive: true}))

	if err := s.Execute(ctx, cmd); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := len(sender.frames()); got != 1 {
		t.Fatalf("frames after known=%d want=1", got)
	}
	if a, ok := s.Active(); !ok || a.SessionID != "S1" {
		t.Fatalf("active=%+v ok=%v", a, ok)
	}
}

func TestStore_PingSetsConnectionIDAndUnblocksWaiters(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &fakeSender{})

	got := make(chan string, 1)
	go func() {
		id, err := s.WaitConnectionID(context.Background())
		if err != nil {
			got <- "err:" + err.Error()
			return
		}
		got <- id
	}()

	if id := s.ConnectionID(); id != "" {
		t.Fatalf("ConnectionID before ping=%q", id)
	}
	s.Handle(v1.Event{Type: v1.TypePing, Body: json.RawMessage(`{"message":"pong","connectionId":"c-123"}`)})

	select {
	case id := <-got:
		if id != "c-123" {
			t.Fatalf("connection id=%q want=%q", id, "c-123")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("WaitConnectionID did not return")
	}
}

func TestStore_WaitConnectionIDHonoursContext(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &fakeSender{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.WaitConnectionID(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want=%v", err, context.DeadlineExceeded)
	}
}

func TestStore_SubscribeByKeyDeliversValues(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &fakeSender{})
	sub := s.Subscribe("S1")
	all := s.Subscribe("")
	other := s.Subscribe("S2")

	created := sessionView("S1")
	created.FacilitatorSessionKey = "K1"
	s.Handle(event(t, v1.TypeSessionCreated, created))

	v := recv(t, sub)
	if v.SessionID != "S1" || !v.IsFacilitator || v.FacilitatorSessionKey != "K1" {
		t.Fatalf("value=%+v", v)
	}
	if got := recv(t, all); got.SessionID != "S1" {
		t.Fatalf("all subscription got %q", got.SessionID)
	}

	s.Handle(event(t, v1.TypeSessionUpdated, v1.SessionView{
		SessionID:    "S1",
		VotesShown:   true,
		Participants: []v1.UserView{{UserID: "u1", CurrentVote: vote("8")}},
	}))
	v = recv(t, sub)
	if !v.VotesShown || v.FacilitatorSessionKey != "K1" || len(v.Participants) != 1 {
		t.Fatalf("update value=%+v", v)
	}

	// Values are copies: mutating one never leaks into the store.
	v.Participants[0].UserID = "mutated"
	if cur, _ := s.Session("S1"); cur.Participants[0].UserID != "u1" {
		t.Fatalf("store state shared with subscriber")
	}

	select {
	case got := <-other.C():
		t.Fatalf("S2 subscriber got %+v", got)
	default:
	}

	sub.Close()
	sub.Close()
	if _, ok := <-sub.C(); ok {
		t.Fatalf("expected closed channel after Close")
	}
}

func TestStore_SubscribeReplaysCurrentValueAndKeepsLatest(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &fakeSender{})
	s.Handle(event(t, v1.TypeSessionLoaded, sessionView("S1")))

	sub := s.Subscribe("S1")
	if got := recv(t, sub); got.SessionID != "S1" {
		t.Fatalf("replay=%+v", got)
	}

	// Two updates without reading: only the newest survives.
	s.Handle(event(t, v1.TypeSessionUpdated, sessionView("S1", v1.UserView{UserID: "a"})))
	s.Handle(event(t, v1.TypeSessionUpdated, sessionView("S1", v1.UserView{UserID: "b"})))
	got := recv(t, sub)
	if len(got.Participants) != 1 || got.Participants[0].UserID != "b" {
		t.Fatalf("latest=%+v", got)
	}
}

func TestStore_ServerErrorGoesToReporter(t *testing.T) {
	t.Parallel()

	rep := &fakeReporter{}
	s := newTestStore(t, &fakeSender{}, WithErrorReporter(rep))
	before := s.Snapshot()

	s.Handle(v1.Event{Type: v1.TypeErrorEncountered, Body: json.RawMessage(`{"message":"session not found"}`)})
	s.Handle(v1.Event{Type: "WHATEVER"})

	rep.mu.Lock()
	defer rep.mu.Unlock()
	if len(rep.errs) != 1 {
		t.Fatalf("reported=%d want=1", len(rep.errs))
	}
	var se *ServerError
	if !errors.As(rep.errs[0], &se) || se.Message != "session not found" {
		t.Fatalf("err=%v", rep.errs[0])
	}
	after := s.Snapshot()
	if after.ConnectionID != before.ConnectionID || len(after.Known) != len(before.Known) {
		t.Fatalf("state changed")
	}
}

func TestStore_ExecuteSurfacesSendErrorWithoutRetry(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	sender := &fakeSender{err: boom}
	s := newTestStore(t, sender)

	err := s.Execute(context.Background(), Vote{SessionID: "S1", Vote: "3"})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want=%v", err, boom)
	}
}

func TestStore_EndSessionEmitsNothing(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	s := newTestStore(t, sender)
	s.Handle(event(t, v1.TypeSessionCreated, sessionView("S1")))

	if err := s.Execute(context.Background(), EndSession{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(sender.frames()) != 0 {
		t.Fatalf("endSession sent %v", sender.frames())
	}
	if _, ok := s.Active(); ok {
		t.Fatalf("active session not cleared")
	}
}

func TestStore_RunPingsAndStopsOnClose(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	s := NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)), sender, WithHeartbeatInterval(time.Hour))

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(context.Background())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(sender.frames()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := sender.frames(); len(got) != 1 || got[0] != `{"action":"ping"}` {
		t.Fatalf("frames=%v", got)
	}

	s.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on Close")
	}
	if err := s.Execute(context.Background(), Vote{SessionID: "S1"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v want=%v", err, ErrClosed)
	}
}

func TestStore_ResyncReloadsKnownSessionsOnReopen(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	s := newTestStore(t, sender)
	ctx := context.Background()

	// First open: nothing to re-register.
	if err := s.Resync(ctx); err != nil {
		t.Fatalf("first resync: %v", err)
	}
	if got := len(sender.frames()); got != 0 {
		t.Fatalf("frames after first open=%d want=0", got)
	}

	s.Handle(v1.Event{Type: v1.TypePing, Body: json.RawMessage(`{"connectionId":"c-1"}`)})
	s.Handle(v1.Event{Type: v1.TypeSessionCreated, Body: json.RawMessage(`{"sessionId":"F1","facilitatorSessionKey":"K1"}`)})
	s.Handle(v1.Event{Type: v1.TypeSessionLoaded, Body: json.RawMessage(`{"sessionId":"P1"}`)})

	if err := s.Resync(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if id := s.ConnectionID(); id != "" {
		t.Fatalf("ConnectionID after reopen=%q want empty", id)
	}

	want := []string{
		`{"action":"ping"}`,
		`{"action":"loadFacilitatorSession","sessionId":"F1","facilitatorSessionKey":"K1","markActive":true}`,
		`{"action":"loadSession","sessionId":"P1","markActive":false}`,
	}
	got := sender.frames()
	if len(got) != len(want) {
		t.Fatalf("frames=%v want=%v", got, want)
	}
	for i := range want {
		if !sameJSON(t, got[i], want[i]) {
			t.Fatalf("frame %d=%s want=%s", i, got[i], want[i])
		}
	}

	// The stale id is never handed out; the next PING releases waiters.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := s.WaitConnectionID(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitConnectionID err=%v want=%v", err, context.DeadlineExceeded)
	}
	s.Handle(v1.Event{Type: v1.TypePing, Body: json.RawMessage(`{"connectionId":"c-2"}`)})
	if id, err := s.WaitConnectionID(ctx); err != nil || id != "c-2" {
		t.Fatalf("WaitConnectionID=%q err=%v want=c-2", id, err)
	}

	active, ok := s.Active()
	if !ok || active.SessionID != "F1" || active.FacilitatorSessionKey != "K1" {
		t.Fatalf("active=%+v ok=%v", active, ok)
	}
}

func sameJSON(t *testing.T, a, b string) bool {
	t.Helper()
	var x, y any
	if err := json.Unmarshal([]byte(a), &x); err != nil {
		t.Fatalf("bad json %q: %v", a, err)
	}
	if err := json.Unmarshal([]byte(b), &y); err != nil {
		t.Fatalf("bad json %q: %v", b, err)
	}
	return reflect.DeepEqual(x, y)
}
