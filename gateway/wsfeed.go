package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"quote-engine-go/marketdata"
	"quote-engine-go/order"
)

// errListenKeyExpired forces a reconnect, which re-acquires the key.
var errListenKeyExpired = errors.New("listen key expired")

// FeedConfig describes one combined-stream subscription. Keys, when set,
// acquires a fresh user data key on every (re)connect and keeps it alive;
// ListenKey is a static fallback for tests. With neither, the feed carries
// public streams only and no fills arrive.
type FeedConfig struct {
	Endpoint      string // e.g. wss://fstream.binance.com
	Instrument    string
	KlineInterval string // default 1m
	Keys          UserStream
	ListenKey     string
	KeepAlive     time.Duration
	ReadTimeout   time.Duration
	ReconnectMin  time.Duration
	ReconnectMax  time.Duration
}

// Feed reads the exchange websocket and forwards parsed events to a
// StreamHandler. Every reconnect is a fresh subscription; the handler sees
// the flap through OnConnectivity and must trigger an order resync itself.
type Feed struct {
	cfg    FeedConfig
	dialer *websocket.Dialer
	log    *zap.Logger
}

func NewFeed(cfg FeedConfig, log *zap.Logger) *Feed {
	if cfg.KlineInterval == "" {
		cfg.KlineInterval = "1m"
	}
	if cfg.KeepAlive <= 0 {
		// Keys are valid for 60 minutes server-side.
		cfg.KeepAlive = 30 * time.Minute
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{cfg: cfg, dialer: websocket.DefaultDialer, log: log}
}

// Run blocks until ctx ends, reconnecting with capped exponential backoff.
func (f *Feed) Run(ctx context.Context, h StreamHandler) error {
	backoff := f.cfg.ReconnectMin
	for {
		start := time.Now()
		err := f.runOnce(ctx, h)
		h.OnConnectivity(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) > time.Minute {
			backoff = f.cfg.ReconnectMin
		}
		f.log.Warn("stream dropped",
			zap.Error(err),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.cfg.ReconnectMax {
			backoff = f.cfg.ReconnectMax
		}
	}
}

func (f *Feed) runOnce(ctx context.Context, h StreamHandler) error {
	key := f.cfg.ListenKey
	if f.cfg.Keys != nil {
		k, err := f.cfg.Keys.NewListenKey(ctx)
		if err != nil {
			return fmt.Errorf("listen key: %w", err)
		}
		key = k
	}

	conn, _, err := f.dialer.DialContext(ctx, f.streamURL(key), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	session, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		<-session.Done()
		conn.Close()
	}()
	if f.cfg.Keys != nil {
		go f.keepAlive(session)
	}

	f.log.Info("stream connected", zap.String("instrument", f.cfg.Instrument))
	h.OnConnectivity(true)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := f.dispatch(msg, h); err != nil {
			return err
		}
	}
}

// keepAlive refreshes the listen key for the life of one session. A refresh
// failure is not fatal here: if the key actually dies, the venue sends
// listenKeyExpired and the reconnect acquires a new one.
func (f *Feed) keepAlive(ctx context.Context) {
	t := time.NewTicker(f.cfg.KeepAlive)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := f.cfg.Keys.KeepAliveListenKey(ctx); err != nil {
				f.log.Warn("listen key keepalive failed", zap.Error(err))
			}
		}
	}
}

func (f *Feed) streamURL(listenKey string) string {
	sym := strings.ToLower(f.cfg.Instrument)
	streams := []string{
		sym + "@kline_" + f.cfg.KlineInterval,
		sym + "@markPrice@1s",
	}
	if listenKey != "" {
		streams = append(streams, listenKey)
	}
	u := url.URL{
		Scheme:   "wss",
		Host:     strings.TrimPrefix(f.cfg.Endpoint, "wss://"),
		Path:     "/stream",
		RawQuery: "streams=" + strings.Join(streams, "/"),
	}
	return u.String()
}

func (f *Feed) dispatch(msg []byte, h StreamHandler) error {
	data := gjson.GetBytes(msg, "data")
	if !data.Exists() {
		data = gjson.ParseBytes(msg)
	}
	switch data.Get("e").String() {
	case "kline":
		handleKline(data, h)
	case "markPriceUpdate":
		handleMark(data, h)
	case "ORDER_TRADE_UPDATE":
		handleOrderUpdate(data, h)
	case "listenKeyExpired":
		return errListenKeyExpired
	}
	return nil
}

// handleKline forwards closed candles only; the volatility window is built
// from completed bars.
func handleKline(data gjson.Result, h StreamHandler) {
	k := data.Get("k")
	if !k.Get("x").Bool() {
		return
	}
	h.OnSample(marketdata.PriceSample{
		Ts:    time.UnixMilli(k.Get("T").Int()).UTC(),
		High:  k.Get("h").Float(),
		Low:   k.Get("l").Float(),
		Close: k.Get("c").Float(),
	})
}

func handleMark(data gjson.Result, h StreamHandler) {
	px, err := decimal.NewFromString(data.Get("p").String())
	if err != nil || px.Sign() <= 0 {
		return
	}
	h.OnMark(px, time.UnixMilli(data.Get("E").Int()).UTC())
}

func handleOrderUpdate(data gjson.Result, h StreamHandler) {
	o := data.Get("o")
	ts := time.UnixMilli(data.Get("T").Int()).UTC()
	u := order.Update{
		OrderID:   o.Get("i").String(),
		ClientID:  o.Get("c").String(),
		Status:    mapOrderStatus(o.Get("X").String()),
		FilledQty: dec(o.Get("z").String()),
		FilledPx:  dec(o.Get("L").String()),
		Ts:        ts,
	}
	if u.Status == "" {
		return
	}
	h.OnOrderUpdate(u)

	if last := dec(o.Get("l").String()); last.Sign() > 0 {
		h.OnFill(Fill{
			Instrument: o.Get("s").String(),
			OrderID:    u.OrderID,
			ClientID:   u.ClientID,
			Side:       order.Side(o.Get("S").String()),
			Price:      dec(o.Get("L").String()),
			Size:       last,
			Ts:         ts,
		})
	}
}

func mapOrderStatus(s string) order.Status {
	switch s {
	case "NEW":
		return order.StatusLive
	case "PARTIALLY_FILLED":
		return order.StatusPartial
	case "FILLED":
		return order.StatusFilled
	case "CANCELED", "EXPIRED":
		return order.StatusCancelled
	case "REJECTED":
		return order.StatusRejected
	default:
		return ""
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
