package marketdata

import (
	"sync"
	"time"
)

// Cache keeps a bounded rolling window of the most recent price samples for
// one instrument. It is the only holder of raw market history; everything
// downstream derives from its window.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	samples  []PriceSample
	last     time.Time
	dropped  int64
}

// NewCache creates a cache with the given window capacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 64
	}
	return &Cache{
		capacity: capacity,
		samples:  make([]PriceSample, 0, capacity),
	}
}

// Record appends a sample, evicting the oldest once the window is full.
// Samples older than the newest stored timestamp are dropped, not applied:
// late out-of-order data must not rewind derived volatility state.
func (c *Cache) Record(s PriceSample) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) > 0 && s.Ts.Before(c.last) {
		c.dropped++
		return false
	}
	c.samples = append(c.samples, s)
	if len(c.samples) > c.capacity {
		c.samples = c.samples[1:]
	}
	c.last = s.Ts
	return true
}

// Latest returns the newest sample; ok is false before the first tick.
func (c *Cache) Latest() (PriceSample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.samples) == 0 {
		return PriceSample{}, false
	}
	return c.samples[len(c.samples)-1], true
}

// Window returns an ordered copy of the current window.
func (c *Cache) Window() []PriceSample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PriceSample, len(c.samples))
	copy(out, c.samples)
	return out
}

// Len returns the number of stored samples.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.samples)
}

// Dropped returns how many out-of-order samples were discarded.
func (c *Cache) Dropped() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped
}

// Staleness returns the time since the last accepted sample; a very large
// value when no data has arrived yet.
func (c *Cache) Staleness(now time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last.IsZero() {
		return time.Hour * 24 * 365
	}
	return now.Sub(c.last)
}
