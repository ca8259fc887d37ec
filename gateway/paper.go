package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"quote-engine-go/marketdata"
	"quote-engine-go/order"
)

// PaperExchange is an in-memory venue for simulation and tests. Resting
// orders fill at their limit price whenever the mark crosses them.
type PaperExchange struct {
	instrument string

	mu      sync.Mutex
	nextID  int
	orders  map[string]order.LiveOrder // by exchange id
	handler StreamHandler
	err     error // injected transport failure
}

func NewPaperExchange(instrument string) *PaperExchange {
	return &PaperExchange{
		instrument: instrument,
		orders:     make(map[string]order.LiveOrder),
	}
}

// SetHandler wires the event sink. Must be set before any price is pushed.
func (p *PaperExchange) SetHandler(h StreamHandler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// Fail makes every subsequent call return err; Fail(nil) heals the venue.
func (p *PaperExchange) Fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *PaperExchange) PlaceOrder(_ context.Context, req PlaceRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	if req.Size.Sign() <= 0 || req.Price.Sign() <= 0 {
		return "", fmt.Errorf("paper: bad order %s@%s", req.Size, req.Price)
	}
	p.nextID++
	id := fmt.Sprintf("paper-%d", p.nextID)
	p.orders[id] = order.LiveOrder{
		ID:       id,
		ClientID: req.ClientID,
		Side:     req.Side,
		Price:    req.Price,
		Size:     req.Size,
		Status:   order.StatusLive,
	}
	return id, nil
}

func (p *PaperExchange) CancelOrder(_ context.Context, _, exchangeID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if _, ok := p.orders[exchangeID]; !ok {
		return ErrOrderNotFound
	}
	delete(p.orders, exchangeID)
	return nil
}

func (p *PaperExchange) AmendOrder(_ context.Context, _, exchangeID string, price, size decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	o, ok := p.orders[exchangeID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Price = price
	o.Size = size
	p.orders[exchangeID] = o
	return nil
}

func (p *PaperExchange) ListOpenOrders(_ context.Context, _ string) ([]order.LiveOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := make([]order.LiveOrder, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, o)
	}
	return out, nil
}

// MarkPrice pushes a mark, filling every crossed order at its limit price.
func (p *PaperExchange) MarkPrice(px decimal.Decimal, ts time.Time) {
	p.mu.Lock()
	h := p.handler
	var fills []order.LiveOrder
	for id, o := range p.orders {
		crossed := (o.Side == order.Buy && px.LessThanOrEqual(o.Price)) ||
			(o.Side == order.Sell && px.GreaterThanOrEqual(o.Price))
		if crossed {
			fills = append(fills, o)
			delete(p.orders, id)
		}
	}
	p.mu.Unlock()

	if h == nil {
		return
	}
	h.OnMark(px, ts)
	for _, o := range fills {
		h.OnOrderUpdate(order.Update{
			OrderID:   o.ID,
			ClientID:  o.ClientID,
			Status:    order.StatusFilled,
			FilledQty: o.Size,
			FilledPx:  o.Price,
			Ts:        ts,
		})
		h.OnFill(Fill{
			Instrument: p.instrument,
			OrderID:    o.ID,
			ClientID:   o.ClientID,
			Side:       o.Side,
			Price:      o.Price,
			Size:       o.Size,
			Ts:         ts,
		})
	}
}

// Candle pushes one closed bar to the handler.
func (p *PaperExchange) Candle(s marketdata.PriceSample) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h.OnSample(s)
	}
}
