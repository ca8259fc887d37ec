package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"quote-engine-go/marketdata"
	"quote-engine-go/order"
)

var (
	ErrOrderNotFound = errors.New("order not found on exchange")
	ErrDisconnected  = errors.New("exchange connection down")
)

// PlaceRequest is a limit order submission.
type PlaceRequest struct {
	Instrument string
	ClientID   string
	Side       order.Side
	Price      decimal.Decimal
	Size       decimal.Decimal
}

// Fill is one execution reported by the exchange.
type Fill struct {
	Instrument string
	OrderID    string
	ClientID   string
	Side       order.Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	Ts         time.Time
}

// Client is the outbound half of the exchange boundary. Implementations own
// transport details; callers own all trading decisions.
type Client interface {
	PlaceOrder(ctx context.Context, req PlaceRequest) (exchangeID string, err error)
	CancelOrder(ctx context.Context, instrument, exchangeID string) error
	AmendOrder(ctx context.Context, instrument, exchangeID string, price, size decimal.Decimal) error
	ListOpenOrders(ctx context.Context, instrument string) ([]order.LiveOrder, error)
}

// UserStream manages the private event stream subscription. Keys expire
// server-side; holders must keep them alive or re-acquire after expiry.
type UserStream interface {
	NewListenKey(ctx context.Context) (string, error)
	KeepAliveListenKey(ctx context.Context) error
}

// StreamHandler receives the inbound half: prices, order updates, fills and
// connectivity flaps. Implementations must not block; the engine hands these
// straight to its serialized queue.
type StreamHandler interface {
	OnSample(marketdata.PriceSample)
	OnMark(price decimal.Decimal, ts time.Time)
	OnOrderUpdate(order.Update)
	OnFill(Fill)
	OnConnectivity(up bool)
}
