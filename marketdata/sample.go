package marketdata

import "time"

// PriceSample is one observed bar of high/low/close data. Immutable once
// recorded.
type PriceSample struct {
	Ts    time.Time
	High  float64
	Low   float64
	Close float64
}

// TrueRange computes the true range of s against the previous close.
// With no previous close (first sample) it degrades to high-low.
func TrueRange(s PriceSample, prevClose float64, hasPrev bool) float64 {
	hl := s.High - s.Low
	if !hasPrev {
		return hl
	}
	hc := abs(s.High - prevClose)
	lc := abs(s.Low - prevClose)
	return max3(hl, hc, lc)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
