package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ActionKind enumerates outbound order actions.
type ActionKind int

const (
	ActionPlace ActionKind = iota
	ActionCancel
	ActionAmend
)

func (k ActionKind) String() string {
	switch k {
	case ActionPlace:
		return "PLACE"
	case ActionCancel:
		return "CANCEL"
	case ActionAmend:
		return "AMEND"
	default:
		return "UNKNOWN"
	}
}

// Action is one outbound order action awaiting authorization.
type Action struct {
	Kind    ActionKind
	Side    string // BUY or SELL
	OrderID string // set for Cancel/Amend
	Price   decimal.Decimal
	Size    decimal.Decimal
}

// Verdict is the gate's ruling on an action.
type Verdict int

const (
	Approved Verdict = iota
	Rejected
	Clamped
)

func (v Verdict) String() string {
	switch v {
	case Approved:
		return "APPROVED"
	case Rejected:
		return "REJECTED"
	case Clamped:
		return "CLAMPED"
	default:
		return "UNKNOWN"
	}
}

// Decision carries the verdict plus the (possibly clamped) action and the
// rejection reason.
type Decision struct {
	Verdict Verdict
	Action  Action
	Reason  error
}

// Limits is the immutable risk configuration for a run.
type Limits struct {
	MaxPosition         decimal.Decimal
	MaxOrderSize        decimal.Decimal
	MaxActionsPerWindow int
	Window              time.Duration
	KillSwitchDrawdown  decimal.Decimal // loss threshold, positive
}

// PositionSource exposes the signed net quantity.
type PositionSource interface {
	Qty() decimal.Decimal
}

// PnLSource exposes total (realized + unrealized) PnL. ok is false when no
// mark price is available yet; the kill switch cannot fire on unknown PnL.
type PnLSource interface {
	PnL() (pnl decimal.Decimal, ok bool)
}

// Gate validates every outbound action against position limits, the rate
// budget and the kill switch. It is pure policy: it never talks to the
// network and never mutates the position.
type Gate struct {
	limits Limits
	pos    PositionSource
	pnl    PnLSource
	budget *RateBudget

	mu     sync.RWMutex
	deRisk bool
}

// NewGate wires the gate to its sources. pnl may be nil (kill switch off).
func NewGate(limits Limits, pos PositionSource, pnl PnLSource, clock Clock) (*Gate, error) {
	if pos == nil {
		return nil, ErrLimitsRequired
	}
	return &Gate{
		limits: limits,
		pos:    pos,
		pnl:    pnl,
		budget: NewRateBudget(limits.MaxActionsPerWindow, limits.Window, clock),
	}, nil
}

// SetDeRiskOnly toggles the degraded mode used after repeated transport
// failures: exposure-increasing actions are suspended until cleared.
func (g *Gate) SetDeRiskOnly(on bool) {
	g.mu.Lock()
	g.deRisk = on
	g.mu.Unlock()
}

// DeRiskOnly reports whether the degraded mode is active.
func (g *Gate) DeRiskOnly() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.deRisk
}

// Authorize rules on one action. Checks run in order: kill switch, position
// limit, order size, rate budget. The budget counts this attempt no matter
// the outcome.
func (g *Gate) Authorize(a Action) Decision {
	withinBudget := g.budget.Attempt()

	switch a.Kind {
	case ActionCancel:
		// Cancels only reduce exchange-side exposure; they skip the
		// position checks but still consume rate budget.
	case ActionPlace, ActionAmend:
		if a.Size.Sign() <= 0 {
			return reject(a, ErrZeroSizedAction)
		}
		if d, stop := g.checkKillSwitch(a); stop {
			return d
		}
		var clamped bool
		var err error
		a, clamped, err = g.clampPosition(a)
		if err != nil {
			return reject(a, err)
		}
		if g.limits.MaxOrderSize.Sign() > 0 && a.Size.GreaterThan(g.limits.MaxOrderSize) {
			a.Size = g.limits.MaxOrderSize
			clamped = true
		}
		if !withinBudget {
			return reject(a, ErrRateLimited)
		}
		if clamped {
			return Decision{Verdict: Clamped, Action: a}
		}
		return Decision{Verdict: Approved, Action: a}
	default:
		return reject(a, ErrUnknownAction)
	}

	if !withinBudget {
		return reject(a, ErrRateLimited)
	}
	return Decision{Verdict: Approved, Action: a}
}

// checkKillSwitch stops placements once drawdown breaches the threshold
// (only cancels may pass then), and stops exposure-increasing placements
// while de-risk mode is on.
func (g *Gate) checkKillSwitch(a Action) (Decision, bool) {
	if g.pnl != nil && g.limits.KillSwitchDrawdown.Sign() > 0 {
		if pnl, ok := g.pnl.PnL(); ok && pnl.Neg().GreaterThanOrEqual(g.limits.KillSwitchDrawdown) {
			return reject(a, fmt.Errorf("%w: drawdown %s >= %s",
				ErrKillSwitch, pnl.Neg(), g.limits.KillSwitchDrawdown)), true
		}
	}
	if g.DeRiskOnly() && g.increasesExposure(a) {
		return reject(a, ErrDeRiskOnly), true
	}
	return Decision{}, false
}

// clampPosition cuts the size so the resulting position stays within
// MaxPosition; an action with no headroom at all is rejected.
func (g *Gate) clampPosition(a Action) (Action, bool, error) {
	if g.limits.MaxPosition.Sign() <= 0 || !g.increasesExposure(a) {
		return a, false, nil
	}
	qty := g.pos.Qty()
	var room decimal.Decimal
	if a.Side == "BUY" {
		room = g.limits.MaxPosition.Sub(qty)
	} else {
		room = g.limits.MaxPosition.Add(qty)
	}
	if room.Sign() <= 0 {
		return a, false, fmt.Errorf("%w: position %s at limit %s",
			ErrPositionExceed, qty, g.limits.MaxPosition)
	}
	if a.Size.GreaterThan(room) {
		a.Size = room
		return a, true, nil
	}
	return a, false, nil
}

// increasesExposure reports whether the action grows the absolute position.
func (g *Gate) increasesExposure(a Action) bool {
	if a.Kind == ActionCancel {
		return false
	}
	qty := g.pos.Qty()
	var delta decimal.Decimal
	if a.Side == "BUY" {
		delta = a.Size
	} else {
		delta = a.Size.Neg()
	}
	return qty.Add(delta).Abs().GreaterThan(qty.Abs())
}

func reject(a Action, reason error) Decision {
	return Decision{Verdict: Rejected, Action: a, Reason: reason}
}
