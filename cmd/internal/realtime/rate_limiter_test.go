package realtime

import (
	"testing"
	"time"
)

func TestWindowLimiter(t *testing.T) {
	t.Parallel()

	l := newWindowLimiter(2, time.Second)
	t0 := time.Unix(1_700_000_000, 0)

	if !l.Allow(t0) || !l.Allow(t0.Add(100*time.Millisecond)) {
		t.Fatalf("first two events must pass")
	}
	if l.Allow(t0.Add(200 * time.Millisecond)) {
		t.Fatalf("third event inside the window must be limited")
	}
	if !l.Allow(t0.Add(1001 * time.Millisecond)) {
		t.Fatalf("event after the first expired must pass")
	}
}

func TestNewWindowLimiter_Defaults(t *testing.T) {
	t.Parallel()

	l := newWindowLimiter(0, 0)
	if l.limit != malformedLogLimit || l.window != malformedLogWindow {
		t.Fatalf("limit=%d window=%v", l.limit, l.window)
	}
}
