package inventory

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// Fill sides as reported by the exchange.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

var ErrBadFill = errors.New("invalid fill")

// Position is a read-only snapshot of the tracker.
type Position struct {
	Instrument  string
	Qty         decimal.Decimal // signed: positive long, negative short
	AvgEntry    decimal.Decimal // zero when flat
	RealizedPnL decimal.Decimal
}

// Tracker maintains the net position for one instrument. Quantities and
// prices are decimal end to end: position accounting drift is a correctness
// bug, not a rounding nuisance.
//
// The tracker is mutated exactly once per confirmed fill; order placement
// never touches it.
type Tracker struct {
	mu         sync.RWMutex
	instrument string
	qty        decimal.Decimal
	avgEntry   decimal.Decimal
	realized   decimal.Decimal
}

// NewTracker creates an empty tracker for instrument.
func NewTracker(instrument string) *Tracker {
	return &Tracker{instrument: instrument}
}

// ApplyFill applies one confirmed fill. Increasing exposure in the current
// direction re-weights the average entry; reducing or flipping realizes PnL
// on the closed portion against the prior average entry, and any residual
// opposite-direction position opens at the fill price.
func (t *Tracker) ApplyFill(side string, price, size decimal.Decimal) error {
	if size.Sign() <= 0 || price.Sign() <= 0 {
		return ErrBadFill
	}
	var delta decimal.Decimal
	switch side {
	case SideBuy:
		delta = size
	case SideSell:
		delta = size.Neg()
	default:
		return ErrBadFill
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.qty.IsZero() || t.qty.Sign() == delta.Sign() {
		// Same direction: weighted-average entry.
		newQty := t.qty.Add(delta)
		notional := t.avgEntry.Mul(t.qty.Abs()).Add(price.Mul(delta.Abs()))
		t.avgEntry = notional.Div(newQty.Abs())
		t.qty = newQty
		return nil
	}

	closing := decimal.Min(delta.Abs(), t.qty.Abs())
	// Long closed by a sell gains (price - entry); short closed by a buy
	// gains (entry - price).
	if t.qty.Sign() > 0 {
		t.realized = t.realized.Add(price.Sub(t.avgEntry).Mul(closing))
	} else {
		t.realized = t.realized.Add(t.avgEntry.Sub(price).Mul(closing))
	}

	newQty := t.qty.Add(delta)
	switch {
	case newQty.IsZero():
		t.avgEntry = decimal.Zero
	case newQty.Sign() != t.qty.Sign():
		// Flipped: the residual opened at this fill's price.
		t.avgEntry = price
	}
	t.qty = newQty
	return nil
}

// SetPosition overwrites the tracked position from an authoritative account
// snapshot (startup or reconnect resync).
func (t *Tracker) SetPosition(qty, avgEntry decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.qty = qty
	if qty.IsZero() {
		t.avgEntry = decimal.Zero
	} else {
		t.avgEntry = avgEntry
	}
}

// Snapshot returns a copy of the current position.
func (t *Tracker) Snapshot() Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Position{
		Instrument:  t.instrument,
		Qty:         t.qty,
		AvgEntry:    t.avgEntry,
		RealizedPnL: t.realized,
	}
}

// Qty returns the signed net quantity.
func (t *Tracker) Qty() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.qty
}

// Valuation returns the unrealized PnL at mark. (mark-entry)*qty covers both
// directions since qty is signed.
func (t *Tracker) Valuation(mark decimal.Decimal) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.qty.IsZero() {
		return decimal.Zero
	}
	return mark.Sub(t.avgEntry).Mul(t.qty)
}

// Equity returns realized plus unrealized PnL at mark.
func (t *Tracker) Equity(mark decimal.Decimal) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	unrealized := decimal.Zero
	if !t.qty.IsZero() {
		unrealized = mark.Sub(t.avgEntry).Mul(t.qty)
	}
	return t.realized.Add(unrealized)
}
