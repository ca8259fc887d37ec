package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of a quote or order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Status is the order lifecycle as mirrored locally.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusLive       Status = "LIVE"
	StatusPartial    Status = "PARTIALLY_FILLED"
	StatusCancelling Status = "CANCELLING"
	StatusCancelled  Status = "CANCELED"
	StatusFilled     Status = "FILLED"
	StatusRejected   Status = "REJECTED"
)

// Active reports whether the order may still rest on the exchange.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusLive, StatusPartial, StatusCancelling:
		return true
	default:
		return false
	}
}

// Final reports whether the order can no longer transition.
func (s Status) Final() bool {
	switch s {
	case StatusCancelled, StatusFilled, StatusRejected:
		return true
	default:
		return false
	}
}

// LiveOrder is one entry of the local order mirror. The reconciler is the
// single writer; every active entry must correspond to an exchange-side
// order (re-established by Resync after reconnect).
type LiveOrder struct {
	ID        string // exchange order id, empty until acked
	ClientID  string
	Side      Side
	Price     decimal.Decimal
	Size      decimal.Decimal
	Filled    decimal.Decimal
	Status    Status
	UpdatedAt time.Time
}

// Update is a status transition reported by the exchange stream.
type Update struct {
	OrderID   string
	ClientID  string
	Status    Status
	FilledQty decimal.Decimal
	FilledPx  decimal.Decimal
	Ts        time.Time
}
