package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-engine-go/gateway"
	"quote-engine-go/inventory"
	"quote-engine-go/marketdata"
	"quote-engine-go/order"
	"quote-engine-go/quote"
	"quote-engine-go/risk"
)

func testContractSpec() quote.ContractSpec {
	return quote.ContractSpec{
		Instrument: "BTCUSDT",
		TickSize:   decimal.RequireFromString("0.1"),
		StepSize:   decimal.RequireFromString("0.001"),
		MinQty:     decimal.RequireFromString("0.001"),
	}
}

type rig struct {
	eng   *Engine
	paper *gateway.PaperExchange
	inv   *inventory.Tracker
	rec   *order.Reconciler
}

func newRig(t *testing.T, mut func(*Config)) *rig {
	t.Helper()
	spec := testContractSpec()
	paper := gateway.NewPaperExchange("BTCUSDT")
	inv := inventory.NewTracker("BTCUSDT")
	rec := order.NewReconciler(order.ReconcilerConfig{
		Spec:          spec,
		PriceTolTicks: 2,
		SizeTol:       decimal.RequireFromString("0.01"),
	}, order.NewBook())

	cfg := Config{
		Instrument:   "BTCUSDT",
		TickInterval: 10 * time.Millisecond,
		MaxStaleness: time.Hour,
		Limits: risk.Limits{
			MaxPosition:         decimal.RequireFromString("10"),
			MaxOrderSize:        decimal.RequireFromString("5"),
			MaxActionsPerWindow: 1000,
			Window:              time.Minute,
		},
	}
	if mut != nil {
		mut(&cfg)
	}

	eng, err := New(cfg, Components{
		Cache:      marketdata.NewCache(16),
		ATR:        marketdata.NewATR(3, marketdata.SmoothSMA),
		Inventory:  inv,
		Calculator: quote.NewCalculator(quote.Config{
			MinSpreadBps: 20,
			VolMult:      0.5,
			SkewDamp:     0.5,
			BaseSize:     1,
			MaxPosition:  10,
		}, spec),
		Reconciler: rec,
		Client:     paper,
	})
	require.NoError(t, err)
	paper.SetHandler(eng)
	return &rig{eng: eng, paper: paper, inv: inv, rec: rec}
}

// warmMarket feeds enough closed candles for the volatility window plus a mark.
func (r *rig) warmMarket() {
	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 4; i++ {
		r.eng.OnSample(marketdata.PriceSample{
			Ts:    base.Add(time.Duration(i) * time.Second),
			High:  101,
			Low:   99,
			Close: 100,
		})
	}
	r.eng.OnMark(decimal.RequireFromString("100"), time.Now().UTC())
}

func openOrders(t *testing.T, p *gateway.PaperExchange) []order.LiveOrder {
	t.Helper()
	oo, err := p.ListOpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	return oo
}

func TestEngineQuotesBothSides(t *testing.T) {
	r := newRig(t, nil)
	r.warmMarket()
	r.eng.Start(context.Background())
	defer r.eng.Stop()

	require.Eventually(t, func() bool {
		return len(openOrders(t, r.paper)) == 2
	}, 2*time.Second, 10*time.Millisecond, "two resting quotes expected")

	var bid, ask order.LiveOrder
	for _, o := range openOrders(t, r.paper) {
		if o.Side == order.Buy {
			bid = o
		} else {
			ask = o
		}
	}
	assert.True(t, bid.Price.LessThan(ask.Price), "bid %s must undercut ask %s", bid.Price, ask.Price)
}

func TestEngineDoesNotQuoteWithoutData(t *testing.T) {
	r := newRig(t, nil)
	// No samples, no mark.
	r.eng.Start(context.Background())
	defer r.eng.Stop()

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, openOrders(t, r.paper))
}

func TestEngineAppliesFillsToInventory(t *testing.T) {
	r := newRig(t, nil)
	r.warmMarket()
	r.eng.Start(context.Background())
	defer r.eng.Stop()

	require.Eventually(t, func() bool {
		return len(openOrders(t, r.paper)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Trade through the bid.
	r.paper.MarkPrice(decimal.RequireFromString("90"), time.Now().UTC())

	require.Eventually(t, func() bool {
		return r.inv.Qty().Sign() > 0
	}, 2*time.Second, 10*time.Millisecond, "fill should grow the position")
}

func TestEngineCancelsOnShutdown(t *testing.T) {
	r := newRig(t, nil)
	r.warmMarket()
	ctx, cancel := context.WithCancel(context.Background())
	r.eng.Start(ctx)

	require.Eventually(t, func() bool {
		return len(openOrders(t, r.paper)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	r.eng.Stop()
	assert.Empty(t, openOrders(t, r.paper), "shutdown sweeps resting quotes")
}

func TestEngineStopBeforeStartReturns(t *testing.T) {
	r := newRig(t, nil)
	done := make(chan struct{})
	go func() {
		r.eng.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop on a never-started engine must not block")
	}
}

func TestEngineAdoptsRemoteOrdersBeforeQuoting(t *testing.T) {
	r := newRig(t, nil)

	// An order from a previous run rests on the venue.
	_, err := r.paper.PlaceOrder(context.Background(), gateway.PlaceRequest{
		Instrument: "BTCUSDT", ClientID: "old-run", Side: order.Buy,
		Price: decimal.RequireFromString("95"), Size: decimal.RequireFromString("1"),
	})
	require.NoError(t, err)

	r.warmMarket()
	r.eng.Start(context.Background())
	defer r.eng.Stop()

	require.Eventually(t, func() bool {
		_, ok := r.rec.Book().Get("old-run")
		return ok || r.rec.Book().Len() > 0
	}, 2*time.Second, 10*time.Millisecond, "mirror adopts the survivor")

	// The stale survivor is far from the new quotes and gets replaced, never
	// doubled up: at most one bid rests at any time.
	require.Eventually(t, func() bool {
		bids := 0
		for _, o := range openOrders(t, r.paper) {
			if o.Side == order.Buy {
				bids++
			}
		}
		return bids == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngineEscalatesToDeRiskOnTransportFailure(t *testing.T) {
	r := newRig(t, func(c *Config) { c.MaxTransportFailures = 2 })
	r.warmMarket()
	r.paper.Fail(errors.New("venue down"))

	r.eng.Start(context.Background())
	defer r.eng.Stop()

	require.Eventually(t, func() bool {
		return r.eng.Gate().DeRiskOnly()
	}, 2*time.Second, 10*time.Millisecond, "repeated failures must degrade to de-risk only")

	// Venue heals; the resync probe clears the mode.
	r.paper.Fail(nil)
	require.Eventually(t, func() bool {
		return !r.eng.Gate().DeRiskOnly()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEnginePnLUnknownWithoutMark(t *testing.T) {
	r := newRig(t, nil)
	_, ok := r.eng.PnL()
	assert.False(t, ok)

	r.eng.OnMark(decimal.RequireFromString("100"), time.Now().UTC())
	r.eng.Start(context.Background())
	defer r.eng.Stop()

	require.Eventually(t, func() bool {
		_, ok := r.eng.PnL()
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}
