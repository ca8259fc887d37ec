package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"quote-engine-go/quote"
	"quote-engine-go/risk"
)

// ReconcilerConfig tunes the diff between desired and resting quotes.
type ReconcilerConfig struct {
	Spec          quote.ContractSpec
	PriceTolTicks int64           // requote when price drifts beyond this many ticks
	SizeTol       decimal.Decimal // requote when remaining size drifts beyond this
	SupportsAmend bool            // amend in place instead of cancel-then-replace
}

// Proposal is one action the reconciler wants forwarded, tagged with the
// quote side it belongs to so the outcome can be routed back.
type Proposal struct {
	Side   Side
	Action risk.Action
}

// Reconciler converges the resting quotes toward the desired two-sided
// target. Each tick it diffs the target against the mirror and proposes the
// minimal set of actions; the caller pushes approved actions to the exchange
// and reports outcomes back. All methods must be called from one goroutine.
type Reconciler struct {
	cfg   ReconcilerConfig
	book  *Book
	sides map[Side]*sideState
}

// NewReconciler starts with an empty mirror and both sides absent.
func NewReconciler(cfg ReconcilerConfig, book *Book) *Reconciler {
	if cfg.PriceTolTicks <= 0 {
		cfg.PriceTolTicks = 1
	}
	if book == nil {
		book = NewBook()
	}
	return &Reconciler{
		cfg:  cfg,
		book: book,
		sides: map[Side]*sideState{
			Buy:  {state: StateAbsent},
			Sell: {state: StateAbsent},
		},
	}
}

// Book exposes the mirror for observers.
func (r *Reconciler) Book() *Book { return r.book }

// State returns the current slot state of one side.
func (r *Reconciler) State(side Side) QuoteState { return r.sides[side].state }

// Plan diffs the target against the mirror. A nil target means no quote:
// every resting order is cancelled and nothing is placed. Sides with an
// action already in flight are left alone until the outcome arrives.
func (r *Reconciler) Plan(tgt *quote.Target) []Proposal {
	var out []Proposal
	if tgt == nil {
		out = append(out, r.planSide(Buy, decimal.Zero, decimal.Zero, false)...)
		out = append(out, r.planSide(Sell, decimal.Zero, decimal.Zero, false)...)
	} else {
		out = append(out, r.planSide(Buy, tgt.Bid, tgt.BidSize, true)...)
		out = append(out, r.planSide(Sell, tgt.Ask, tgt.AskSize, true)...)
	}
	out = append(out, r.planStrays()...)
	return out
}

func (r *Reconciler) planSide(side Side, wantPx, wantSz decimal.Decimal, has bool) []Proposal {
	st := r.sides[side]
	want := has && wantSz.Sign() > 0

	switch st.state {
	case StatePlacing, StateAmending, StateCancelling:
		// In flight; reconverge next tick once the outcome is known.
		return nil

	case StateAbsent:
		if !want {
			return nil
		}
		return []Proposal{{Side: side, Action: risk.Action{
			Kind:    risk.ActionPlace,
			Side:    string(side),
			OrderID: uuid.NewString(), // client order id
			Price:   wantPx,
			Size:    wantSz,
		}}}

	case StateLive:
		o, ok := r.book.Get(st.clientID)
		if !ok || !o.Status.Active() {
			// Mirror lost the working order; free the slot.
			st.state = StateAbsent
			st.clientID = ""
			if want {
				return r.planSide(side, wantPx, wantSz, has)
			}
			return nil
		}
		if !want {
			return []Proposal{r.cancelProposal(o)}
		}
		if !r.needsRequote(o, wantPx, wantSz) {
			return nil
		}
		if r.cfg.SupportsAmend && o.ID != "" {
			return []Proposal{{Side: side, Action: risk.Action{
				Kind:    risk.ActionAmend,
				Side:    string(side),
				OrderID: o.ID,
				Price:   wantPx,
				Size:    wantSz,
			}}}
		}
		// Cancel now, replace on a later tick once the cancel confirms.
		return []Proposal{r.cancelProposal(o)}
	}
	return nil
}

// planStrays cancels active orders that back no quote slot, e.g. extras
// adopted during a resync.
func (r *Reconciler) planStrays() []Proposal {
	var out []Proposal
	for _, o := range r.book.Active() {
		if o.Status != StatusLive && o.Status != StatusPartial {
			continue
		}
		if o.ClientID == r.sides[Buy].clientID || o.ClientID == r.sides[Sell].clientID {
			continue
		}
		out = append(out, r.cancelProposal(o))
	}
	return out
}

func (r *Reconciler) cancelProposal(o LiveOrder) Proposal {
	return Proposal{Side: o.Side, Action: risk.Action{
		Kind:    risk.ActionCancel,
		Side:    string(o.Side),
		OrderID: o.ID,
	}}
}

// needsRequote checks drift against the tolerances. The remaining size is
// what matters for a partially filled order.
func (r *Reconciler) needsRequote(o LiveOrder, wantPx, wantSz decimal.Decimal) bool {
	tol := r.cfg.Spec.TickSize.Mul(decimal.NewFromInt(r.cfg.PriceTolTicks))
	if o.Price.Sub(wantPx).Abs().GreaterThan(tol) {
		return true
	}
	remaining := o.Size.Sub(o.Filled)
	return remaining.Sub(wantSz).Abs().GreaterThan(r.cfg.SizeTol)
}

// MarkSent records that an approved (possibly clamped) action went out. The
// mirror gains a Pending entry for placements before any network result can
// arrive, keeping it the superset of exchange-side state.
func (r *Reconciler) MarkSent(p Proposal, now time.Time) error {
	st := r.sides[p.Side]
	switch p.Action.Kind {
	case risk.ActionPlace:
		if err := st.transition(StatePlacing); err != nil {
			return err
		}
		st.clientID = p.Action.OrderID
		r.book.Set(LiveOrder{
			ClientID:  p.Action.OrderID,
			Side:      p.Side,
			Price:     p.Action.Price,
			Size:      p.Action.Size,
			Status:    StatusPending,
			UpdatedAt: now,
		})
	case risk.ActionCancel:
		o, ok := r.book.GetByExchangeID(p.Action.OrderID)
		if !ok {
			return ErrUnknownOrder
		}
		if o.ClientID == st.clientID {
			if err := st.transition(StateCancelling); err != nil {
				return err
			}
		}
		o.Status = StatusCancelling
		o.UpdatedAt = now
		r.book.Set(o)
	case risk.ActionAmend:
		if err := st.transition(StateAmending); err != nil {
			return err
		}
	}
	return nil
}

// OnPlaceResult applies the outcome of a placement call. A transport error
// frees the slot so the next tick retries.
func (r *Reconciler) OnPlaceResult(clientID, exchangeID string, err error, now time.Time) error {
	o, ok := r.book.Get(clientID)
	if !ok {
		return ErrUnknownOrder
	}
	st := r.sides[o.Side]
	if err != nil {
		r.book.Remove(clientID)
		if o.ClientID == st.clientID {
			return st.transition(StateAbsent)
		}
		return nil
	}
	o.ID = exchangeID
	o.Status = StatusLive
	o.UpdatedAt = now
	r.book.Set(o)
	if o.ClientID == st.clientID {
		return st.transition(StateLive)
	}
	return nil
}

// OnCancelResult applies the outcome of a cancel call. A failed cancel puts
// the order back to Live so the next tick retries.
func (r *Reconciler) OnCancelResult(exchangeID string, err error, now time.Time) error {
	o, ok := r.book.GetByExchangeID(exchangeID)
	if !ok {
		return ErrUnknownOrder
	}
	st := r.sides[o.Side]
	slot := o.ClientID == st.clientID
	if err != nil {
		o.Status = StatusLive
		o.UpdatedAt = now
		r.book.Set(o)
		if slot {
			return st.transition(StateLive)
		}
		return nil
	}
	r.book.Remove(o.ClientID)
	if slot {
		return st.transition(StateAbsent)
	}
	return nil
}

// OnAmendResult applies the outcome of an amend call. On success the resting
// terms change in place; on failure the old order still rests.
func (r *Reconciler) OnAmendResult(exchangeID string, price, size decimal.Decimal, err error, now time.Time) error {
	o, ok := r.book.GetByExchangeID(exchangeID)
	if !ok {
		return ErrUnknownOrder
	}
	st := r.sides[o.Side]
	if err == nil {
		o.Price = price
		o.Size = size
		o.UpdatedAt = now
		r.book.Set(o)
	}
	if o.ClientID == st.clientID {
		return st.transition(StateLive)
	}
	return nil
}

// OnUpdate applies an exchange stream update: fills, confirmed cancels and
// rejects. Unknown orders are reported so the engine can schedule a resync.
func (r *Reconciler) OnUpdate(u Update) error {
	o, ok := r.book.GetByExchangeID(u.OrderID)
	if !ok && u.ClientID != "" {
		o, ok = r.book.Get(u.ClientID)
	}
	if !ok {
		return ErrUnknownOrder
	}
	st := r.sides[o.Side]
	slot := o.ClientID == st.clientID

	switch u.Status {
	case StatusPartial:
		o.Filled = u.FilledQty
		o.Status = StatusPartial
		o.UpdatedAt = u.Ts
		r.book.Set(o)
	case StatusFilled:
		r.book.Remove(o.ClientID)
		if slot {
			return st.transition(StateAbsent)
		}
	case StatusCancelled, StatusRejected:
		r.book.Remove(o.ClientID)
		if slot {
			return st.transition(StateAbsent)
		}
	case StatusLive:
		if o.ID == "" && u.OrderID != "" {
			o.ID = u.OrderID
		}
		o.Status = StatusLive
		o.UpdatedAt = u.Ts
		r.book.Set(o)
		if slot && st.state == StatePlacing {
			return st.transition(StateLive)
		}
	}
	return nil
}

// Resync replaces the mirror with the exchange's authoritative open-order
// list. Remote-only orders are adopted, local-only entries purged, and the
// quote slots rebuilt. Call after every reconnect, before any new action.
func (r *Reconciler) Resync(remote []LiveOrder, now time.Time) {
	seen := make(map[string]bool, len(remote))

	for i, ro := range remote {
		if ro.ClientID == "" {
			// Orders placed before a restart may carry no client id.
			ro.ClientID = ro.ID
			remote[i] = ro
		}
		if local, ok := r.book.Get(ro.ClientID); ok {
			local.ID = ro.ID
			local.Price = ro.Price
			local.Size = ro.Size
			local.Filled = ro.Filled
			local.Status = StatusLive
			local.UpdatedAt = now
			r.book.Set(local)
		} else {
			ro.Status = StatusLive
			ro.UpdatedAt = now
			r.book.Set(ro)
		}
		seen[ro.ClientID] = true
	}

	for _, o := range r.book.Active() {
		if !seen[o.ClientID] {
			r.book.Remove(o.ClientID)
		}
	}

	// Rebuild the slots: first live remote order per side claims it.
	for _, side := range []Side{Buy, Sell} {
		r.sides[side].state = StateAbsent
		r.sides[side].clientID = ""
	}
	for _, ro := range remote {
		st := r.sides[ro.Side]
		if st.state == StateAbsent {
			st.state = StateLive
			st.clientID = ro.ClientID
		}
	}
}
