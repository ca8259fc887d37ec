package marketdata

// Smoothing selects how true ranges are averaged into the ATR.
type Smoothing int

const (
	// SmoothSMA is an equally weighted average over the window.
	SmoothSMA Smoothing = iota
	// SmoothRMA is Wilder smoothing with alpha = 1/length.
	SmoothRMA
)

// ATR derives an average-true-range volatility measure from a window of
// price samples. Computation is deterministic given the window contents;
// there is no hidden state beyond what Compute rebuilds, so the estimator
// can be unit-tested without a live cache.
//
// Value reports ok=false until a full window of true ranges exists. A zero
// ATR is never fabricated: collapsing the spread on fake calm is worse than
// not quoting at all.
type ATR struct {
	length    int
	smoothing Smoothing

	trs       []float64
	rma       float64
	seen      int
	prevClose float64
	hasPrev   bool
}

// NewATR creates an estimator over length true ranges.
func NewATR(length int, smoothing Smoothing) *ATR {
	if length <= 0 {
		length = 14
	}
	return &ATR{
		length:    length,
		smoothing: smoothing,
		trs:       make([]float64, 0, length),
	}
}

// Update feeds one sample and returns the sample's true range.
func (a *ATR) Update(s PriceSample) float64 {
	tr := TrueRange(s, a.prevClose, a.hasPrev)
	a.prevClose = s.Close
	a.hasPrev = true
	a.seen++

	a.trs = append(a.trs, tr)
	if len(a.trs) > a.length {
		a.trs = a.trs[1:]
	}
	if a.seen == 1 {
		a.rma = tr
	} else {
		alpha := 1.0 / float64(a.length)
		a.rma = (1-alpha)*a.rma + alpha*tr
	}
	return tr
}

// Value returns the current ATR. ok is false while fewer than a full window
// of samples has been seen ("insufficient data" is a distinct state, not
// zero).
func (a *ATR) Value() (float64, bool) {
	if a.seen < a.length {
		return 0, false
	}
	if a.smoothing == SmoothRMA {
		return a.rma, true
	}
	sum := 0.0
	for _, tr := range a.trs {
		sum += tr
	}
	return sum / float64(len(a.trs)), true
}

// Ready reports whether a full window has been observed.
func (a *ATR) Ready() bool {
	return a.seen >= a.length
}

// Reset clears all accumulated state.
func (a *ATR) Reset() {
	a.trs = a.trs[:0]
	a.rma = 0
	a.seen = 0
	a.hasPrev = false
	a.prevClose = 0
}

// Compute rebuilds the SMA-smoothed ATR from an ordered window, independent
// of any estimator instance. Used by tests to verify the incremental path
// never diverges from the window.
func Compute(window []PriceSample, length int) (float64, bool) {
	if len(window) < length || length <= 0 {
		return 0, false
	}
	a := NewATR(length, SmoothSMA)
	for _, s := range window {
		a.Update(s)
	}
	return a.Value()
}
