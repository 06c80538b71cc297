package realtime

import (
	"math/rand/v2"
	"time"
)

// backoff doubles from min to max with symmetric jitter. Not safe for concurrent use.
type backoff struct {
	min, max time.Duration
	cur      time.Duration
	jitter   func() float64
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{min: min, max: max, jitter: rand.Float64}
}

func (b *backoff) next() time.Duration {
	if b.cur <= 0 {
		b.cur = b.min
	} else {
		b.cur *= 2
		if b.cur > b.max {
			b.cur = b.max
		}
	}
	// [1-j, 1+j) around the current step.
	f := 1 + reconnectJitter*(2*b.jitter()-1)
	return time.Duration(float64(b.cur) * f)
}

func (b *backoff) reset() {
	b.cur = 0
}
