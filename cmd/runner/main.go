package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quote-engine-go/config"
	"quote-engine-go/engine"
	"quote-engine-go/gateway"
	"quote-engine-go/inventory"
	"quote-engine-go/journal"
	"quote-engine-go/logger"
	"quote-engine-go/marketdata"
	"quote-engine-go/monitor"
	"quote-engine-go/order"
	"quote-engine-go/quote"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "config file path")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	spec, err := cfg.ContractSpec()
	if err != nil {
		return err
	}
	limits, err := cfg.RiskLimits()
	if err != nil {
		return err
	}

	mon := monitor.New(monitor.DefaultConfig())

	var fills engine.FillJournal
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()
		fills = j
	}

	client := gateway.NewRESTClient(cfg.Gateway.RESTURL, cfg.Gateway.APIKey, cfg.Gateway.APISecret)
	client.Limiter = gateway.NewTokenBucketLimiter(cfg.Gateway.RateLimit, cfg.Gateway.RateBurst)

	rec := order.NewReconciler(order.ReconcilerConfig{
		Spec:          spec,
		PriceTolTicks: cfg.Quote.PriceTolTicks,
		SizeTol:       sizeTol(cfg),
		SupportsAmend: cfg.Gateway.SupportsAmend,
	}, order.NewBook())

	eng, err := engine.New(engine.Config{
		Instrument:           cfg.Instrument,
		TickInterval:         cfg.TickInterval(),
		QueueSize:            cfg.Engine.QueueSize,
		MaxStaleness:         time.Duration(cfg.Engine.MaxStalenessSec) * time.Second,
		CancelConfirmWait:    time.Duration(cfg.Engine.CancelConfirmWaitSec) * time.Second,
		MaxTransportFailures: cfg.Engine.MaxTransportFailures,
		Limits:               limits,
	}, engine.Components{
		Cache:      marketdata.NewCache(0),
		ATR:        marketdata.NewATR(cfg.Quote.ATRLength, cfg.ATRSmoothing()),
		Inventory:  inventory.NewTracker(cfg.Instrument),
		Calculator: quote.NewCalculator(cfg.QuoteParams(), spec),
		Reconciler: rec,
		Client:     client,
		Journal:    fills,
		Monitor:    mon,
		Log:        log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	feedCfg := gateway.FeedConfig{
		Endpoint:      cfg.Gateway.Endpoint,
		Instrument:    cfg.Instrument,
		KlineInterval: cfg.Gateway.KlineInterval,
	}
	if cfg.Gateway.APIKey != "" {
		// User data stream: without it no order updates or fills arrive and
		// the book mirror would drift until the next resync.
		feedCfg.Keys = client
	} else {
		log.Warn("no api key: running on public streams only, fills will not be observed")
	}
	feed := gateway.NewFeed(feedCfg, log)
	group.Go(func() error {
		err := feed.Run(ctx, eng)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.Metrics.Listen != "" {
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metricsMux(mon)}
		group.Go(func() error {
			err := srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		group.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
		log.Info("metrics listening", zap.String("addr", cfg.Metrics.Listen))
	}

	watcher := config.NewWatcher(cfgPath, 5*time.Second, log, func(next *config.Config) {
		eng.UpdateQuoteParams(next.QuoteParams())
	})
	group.Go(func() error {
		err := watcher.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	eng.Start(ctx)
	log.Info("engine started", zap.String("instrument", cfg.Instrument))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	eng.Stop()
	if err := group.Wait(); err != nil {
		return err
	}
	log.Info("engine stopped")
	return nil
}

func metricsMux(mon *monitor.Monitor) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mon.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func sizeTol(cfg *config.Config) decimal.Decimal {
	d, err := decimal.NewFromString(cfg.Quote.SizeTol)
	if err != nil {
		return decimal.Zero
	}
	return d
}
