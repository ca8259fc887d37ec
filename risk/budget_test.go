package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestBudgetDeniesBeyondMax(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	b := NewRateBudget(3, time.Minute, clk)

	for i := 0; i < 3; i++ {
		assert.True(t, b.Attempt(), "attempt %d should fit", i)
	}
	assert.False(t, b.Attempt())
	assert.Equal(t, 0, b.Remaining())
}

func TestDeniedAttemptsStillConsume(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	b := NewRateBudget(2, time.Minute, clk)

	b.Attempt()
	b.Attempt()
	// A retry storm of denials must not be free.
	for i := 0; i < 10; i++ {
		assert.False(t, b.Attempt())
	}
	clk.advance(time.Minute)
	assert.True(t, b.Attempt(), "fresh window restores the budget")
}

func TestWindowRoll(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	b := NewRateBudget(1, time.Minute, clk)

	assert.True(t, b.Attempt())
	assert.False(t, b.Attempt())

	clk.advance(59 * time.Second)
	assert.False(t, b.Attempt(), "still inside the window")

	clk.advance(2 * time.Second)
	assert.True(t, b.Attempt())
}
