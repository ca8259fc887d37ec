package risk

import (
	"sync"
	"time"
)

// RateBudget is a fixed-window action budget against the exchange. Every
// attempt consumes budget whether or not the action is ultimately forwarded,
// so a storm of rejected retries cannot starve the next window.
type RateBudget struct {
	max    int
	window time.Duration
	clock  Clock

	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// NewRateBudget allows max attempts per window.
func NewRateBudget(max int, window time.Duration, clock Clock) *RateBudget {
	if max <= 0 {
		max = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	if clock == nil {
		clock = NowUTC
	}
	return &RateBudget{max: max, window: window, clock: clock}
}

// Attempt records one attempt and reports whether it fit in the budget.
// The counter advances on every call, including denied ones.
func (b *RateBudget) Attempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	allowed := b.count < b.max
	b.count++
	return allowed
}

// Remaining returns how many attempts the current window still accepts.
func (b *RateBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	r := b.max - b.count
	if r < 0 {
		return 0
	}
	return r
}

func (b *RateBudget) roll() {
	now := b.clock.Now()
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= b.window {
		b.windowStart = now
		b.count = 0
	}
}
