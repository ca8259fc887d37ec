package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quote-engine-go/engine"
	"quote-engine-go/gateway"
	"quote-engine-go/inventory"
	"quote-engine-go/marketdata"
	"quote-engine-go/order"
	"quote-engine-go/quote"
	"quote-engine-go/risk"
)

// A self-contained paper run: a random-walk price drives the quoting loop
// against the in-memory venue, printing one summary per tick.
func main() {
	duration := flag.Duration("duration", 30*time.Second, "how long to run")
	seed := flag.Int64("seed", 42, "price walk seed")
	start := flag.Float64("price", 100, "starting price")
	vol := flag.Float64("vol", 0.05, "per-step price noise")
	flag.Parse()

	if err := run(*duration, *seed, *start, *vol); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(duration time.Duration, seed int64, start, vol float64) error {
	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	spec := quote.ContractSpec{
		Instrument: "SIMUSDT",
		TickSize:   decimal.RequireFromString("0.01"),
		StepSize:   decimal.RequireFromString("0.001"),
		MinQty:     decimal.RequireFromString("0.001"),
	}
	venue := gateway.NewPaperExchange("SIMUSDT")
	inv := inventory.NewTracker("SIMUSDT")

	eng, err := engine.New(engine.Config{
		Instrument:   "SIMUSDT",
		TickInterval: 250 * time.Millisecond,
		MaxStaleness: time.Minute,
		Limits: risk.Limits{
			MaxPosition:         decimal.RequireFromString("10"),
			MaxOrderSize:        decimal.RequireFromString("2"),
			MaxActionsPerWindow: 120,
			Window:              time.Minute,
		},
		OnTick: func(s engine.TickSummary) {
			if !s.Quoting {
				return
			}
			log.Info("tick",
				zap.Uint64("n", s.Tick),
				zap.Float64("fair", s.Fair),
				zap.Float64("bid", s.Bid),
				zap.Float64("ask", s.Ask),
				zap.Float64("pos", s.Position),
				zap.Int("sent", s.Sent))
		},
	}, engine.Components{
		Cache:     marketdata.NewCache(0),
		ATR:       marketdata.NewATR(14, marketdata.SmoothSMA),
		Inventory: inv,
		Calculator: quote.NewCalculator(quote.Config{
			MinSpreadBps: 10,
			MaxSpreadBps: 100,
			VolMult:      1.0,
			SkewDamp:     0.5,
			BaseSize:     0.5,
			MaxPosition:  10,
			SizeAmp:      1.0,
			SlipGuardATR: 3.0,
		}, spec),
		Reconciler: order.NewReconciler(order.ReconcilerConfig{
			Spec:          spec,
			PriceTolTicks: 2,
			SizeTol:       decimal.RequireFromString("0.05"),
		}, order.NewBook()),
		Client: venue,
		Log:    log,
	})
	if err != nil {
		return err
	}
	venue.SetHandler(eng)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()
	eng.Start(ctx)

	rng := rand.New(rand.NewSource(seed))
	price := start
	high, low := price, price

	// Warm the volatility window before the loop starts quoting.
	now := time.Now().UTC()
	for i := 15; i > 0; i-- {
		eng.OnSample(marketdata.PriceSample{
			Ts:    now.Add(-time.Duration(i) * time.Second),
			High:  price * 1.001,
			Low:   price * 0.999,
			Close: price,
		})
	}

	step := time.NewTicker(100 * time.Millisecond)
	defer step.Stop()
	n := 0
	for {
		select {
		case <-ctx.Done():
			eng.Stop()
			snap := inv.Snapshot()
			final := decimal.NewFromFloat(price)
			log.Info("simulation done",
				zap.String("position", snap.Qty.String()),
				zap.String("realized", snap.RealizedPnL.String()),
				zap.String("equity", inv.Equity(final).String()))
			return nil
		case <-step.C:
			price += rng.NormFloat64() * vol
			price = math.Max(price, 1)
			high = math.Max(high, price)
			low = math.Min(low, price)
			venue.MarkPrice(decimal.NewFromFloat(price).Round(2), time.Now().UTC())
			n++
			if n%10 == 0 {
				venue.Candle(marketdata.PriceSample{
					Ts:    time.Now().UTC(),
					High:  high,
					Low:   low,
					Close: price,
				})
				high, low = price, price
			}
		}
	}
}
