package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quote-engine-go/gateway"
	"quote-engine-go/inventory"
	"quote-engine-go/marketdata"
	"quote-engine-go/monitor"
	"quote-engine-go/order"
	"quote-engine-go/quote"
	"quote-engine-go/risk"
)

// FillJournal persists executions. Implementations must tolerate being
// called from the engine goroutine; slow writers should buffer internally.
type FillJournal interface {
	RecordFill(f gateway.Fill, position, realized decimal.Decimal) error
}

// TickSummary is the per-tick observability snapshot handed to OnTick.
type TickSummary struct {
	Ts         time.Time
	Tick       uint64
	Quoting    bool
	Fair       float64
	ATR        float64
	Bid        float64
	Ask        float64
	Position   float64
	Proposed   int
	Sent       int
	Rejected   int
	LiveOrders int
}

// Config tunes the event loop.
type Config struct {
	Instrument           string
	TickInterval         time.Duration
	QueueSize            int
	MaxStaleness         time.Duration // no-quote once the newest bar is older
	CancelConfirmWait    time.Duration // shutdown budget for cancelling quotes
	MaxTransportFailures int           // consecutive failures before de-risk mode
	Limits               risk.Limits
	OnTick               func(TickSummary)
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 500 * time.Millisecond
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.MaxStaleness <= 0 {
		c.MaxStaleness = 90 * time.Second
	}
	if c.CancelConfirmWait <= 0 {
		c.CancelConfirmWait = 5 * time.Second
	}
	if c.MaxTransportFailures <= 0 {
		c.MaxTransportFailures = 3
	}
}

// Components are the collaborators the engine serializes access to. After
// Start, only the engine goroutine touches them.
type Components struct {
	Cache      *marketdata.Cache
	ATR        *marketdata.ATR
	Inventory  *inventory.Tracker
	Calculator *quote.Calculator
	Reconciler *order.Reconciler
	Client     gateway.Client
	Limiter    gateway.Limiter
	Journal    FillJournal
	Monitor    *monitor.Monitor
	Log        *zap.Logger
}

type eventKind int

const (
	evSample eventKind = iota
	evMark
	evFill
	evUpdate
	evConn
	evResult
	evResync
	evReconfig
)

type actionResult struct {
	prop       order.Proposal
	exchangeID string
	err        error
}

type event struct {
	kind   eventKind
	sample marketdata.PriceSample
	mark   decimal.Decimal
	fill   gateway.Fill
	update order.Update
	up     bool
	result actionResult
	remote []order.LiveOrder
	qcfg   quote.Config
	ts     time.Time
}

// Engine is the single-threaded core: every market sample, fill, order
// update, network result and timer tick funnels into one queue consumed by
// one goroutine, so no component needs internal locking for trading state.
type Engine struct {
	cfg  Config
	c    Components
	gate *risk.Gate
	log  *zap.Logger

	events   chan event // droppable inbound flow
	priority chan event // results, connectivity, resyncs; never dropped

	cancel context.CancelFunc
	done   chan struct{}

	markMu   sync.RWMutex
	lastMark decimal.Decimal
	hasMark  bool

	// loop-goroutine state, unsynchronized on purpose
	tickSeq        uint64
	lastTR         float64
	failures       int
	needResync     bool
	resyncInFlight bool
}

var ErrMissingComponent = errors.New("engine: missing component")

// New wires the engine and builds its risk gate on top of the inventory and
// the engine's own mark-to-market PnL.
func New(cfg Config, c Components) (*Engine, error) {
	cfg.applyDefaults()
	if c.Cache == nil || c.ATR == nil || c.Inventory == nil ||
		c.Calculator == nil || c.Reconciler == nil || c.Client == nil {
		return nil, ErrMissingComponent
	}
	if c.Log == nil {
		c.Log = zap.NewNop()
	}
	e := &Engine{
		cfg:      cfg,
		c:        c,
		log:      c.Log.Named("engine"),
		events:   make(chan event, cfg.QueueSize),
		priority: make(chan event, 256),
		done:     make(chan struct{}),
	}
	gate, err := risk.NewGate(cfg.Limits, c.Inventory, e, nil)
	if err != nil {
		return nil, err
	}
	e.gate = gate
	// First tick resyncs against the venue before anything goes out;
	// orders may have survived a previous run.
	e.needResync = true
	return e, nil
}

// Gate exposes the risk gate for observers and tests.
func (e *Engine) Gate() *risk.Gate { return e.gate }

// PnL implements risk.PnLSource: total equity at the last mark. ok is false
// until a mark arrives, so the kill switch cannot fire on a guess.
func (e *Engine) PnL() (decimal.Decimal, bool) {
	e.markMu.RLock()
	defer e.markMu.RUnlock()
	if !e.hasMark {
		return decimal.Zero, false
	}
	return e.c.Inventory.Equity(e.lastMark), true
}

// Start launches the loop. It returns immediately; Stop blocks until the
// shutdown cancel sweep finishes.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	go e.run(ctx)
}

// Stop ends the loop and waits for the shutdown sweep. Stopping an engine
// that was never started is a no-op.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case ev := <-e.priority:
			e.handle(ev)
		case ev := <-e.events:
			e.handle(ev)
		case now := <-ticker.C:
			e.handleTick(ctx, now.UTC())
		}
	}
}

func (e *Engine) handle(ev event) {
	switch ev.kind {
	case evSample:
		if e.c.Cache.Record(ev.sample) {
			e.lastTR = e.c.ATR.Update(ev.sample)
		}
	case evMark:
		e.markMu.Lock()
		e.lastMark = ev.mark
		e.hasMark = true
		e.markMu.Unlock()
	case evFill:
		e.handleFill(ev.fill)
	case evUpdate:
		e.handleUpdate(ev.update)
	case evConn:
		e.handleConnectivity(ev.up)
	case evResult:
		e.handleResult(ev.result, ev.ts)
	case evResync:
		e.handleResync(ev)
	case evReconfig:
		e.c.Calculator = e.c.Calculator.WithConfig(ev.qcfg)
		e.log.Info("quote parameters updated")
	}
}

// handleTick recomputes the target and reconciles. While a resync is owed
// nothing new goes out; the resting state is unknown.
func (e *Engine) handleTick(ctx context.Context, now time.Time) {
	if e.needResync {
		if !e.resyncInFlight {
			e.resyncInFlight = true
			go e.fetchOpenOrders(ctx)
		}
		return
	}

	e.tickSeq++
	sum := TickSummary{Ts: now, Tick: e.tickSeq}
	tp := e.computeTarget(now, &sum)

	props := e.c.Reconciler.Plan(tp)
	sum.Proposed = len(props)
	for _, p := range props {
		d := e.gate.Authorize(p.Action)
		if d.Verdict == risk.Rejected {
			sum.Rejected++
			if e.c.Monitor != nil {
				e.c.Monitor.ActionRejected(p.Action.Kind.String())
			}
			e.log.Warn("action rejected",
				zap.Stringer("kind", p.Action.Kind),
				zap.String("side", p.Action.Side),
				zap.Error(d.Reason))
			continue
		}
		ap := order.Proposal{Side: p.Side, Action: d.Action}
		if err := e.c.Reconciler.MarkSent(ap, now); err != nil {
			e.log.Error("mark sent", zap.Error(err))
			continue
		}
		sum.Sent++
		if e.c.Monitor != nil {
			e.c.Monitor.ActionSent(d.Action.Kind.String())
		}
		go e.send(ctx, ap)
	}

	sum.LiveOrders = len(e.c.Reconciler.Book().Active())
	if e.cfg.OnTick != nil {
		e.cfg.OnTick(sum)
	}
}

func (e *Engine) computeTarget(now time.Time, sum *TickSummary) *quote.Target {
	fair := 0.0
	e.markMu.RLock()
	if e.hasMark {
		fair = e.lastMark.InexactFloat64()
	}
	e.markMu.RUnlock()
	if fair <= 0 {
		if s, ok := e.c.Cache.Latest(); ok {
			fair = s.Close
		}
	}

	atr, ready := e.c.ATR.Value()
	if e.c.Cache.Staleness(now) > e.cfg.MaxStaleness {
		ready = false
	}

	pos := e.c.Inventory.Qty().InexactFloat64()
	sum.Fair, sum.ATR, sum.Position = fair, atr, pos

	tgt, ok := e.c.Calculator.Quote(quote.Inputs{
		Fair:          fair,
		ATR:           atr,
		ATRReady:      ready,
		LastTrueRange: e.lastTR,
		Position:      pos,
		Tick:          e.tickSeq,
	})
	if !ok {
		if e.c.Monitor != nil {
			e.c.Monitor.NoQuoteTick()
		}
		return nil
	}
	sum.Quoting = true
	sum.Bid = tgt.Bid.InexactFloat64()
	sum.Ask = tgt.Ask.InexactFloat64()
	if e.c.Monitor != nil {
		e.c.Monitor.QuoteComputed(sum.Bid, sum.Ask, atr)
	}
	return &tgt
}

// send performs one network call off the loop goroutine and posts the result
// back for serialized application.
func (e *Engine) send(ctx context.Context, p order.Proposal) {
	res := actionResult{prop: p}
	if e.c.Limiter != nil {
		if err := e.c.Limiter.Wait(ctx); err != nil {
			res.err = err
			e.post(event{kind: evResult, result: res, ts: time.Now().UTC()})
			return
		}
	}
	switch p.Action.Kind {
	case risk.ActionPlace:
		res.exchangeID, res.err = e.c.Client.PlaceOrder(ctx, gateway.PlaceRequest{
			Instrument: e.cfg.Instrument,
			ClientID:   p.Action.OrderID,
			Side:       order.Side(p.Action.Side),
			Price:      p.Action.Price,
			Size:       p.Action.Size,
		})
	case risk.ActionCancel:
		res.err = e.c.Client.CancelOrder(ctx, e.cfg.Instrument, p.Action.OrderID)
	case risk.ActionAmend:
		res.err = e.c.Client.AmendOrder(ctx, e.cfg.Instrument, p.Action.OrderID,
			p.Action.Price, p.Action.Size)
	}
	e.post(event{kind: evResult, result: res, ts: time.Now().UTC()})
}

func (e *Engine) handleResult(res actionResult, ts time.Time) {
	var err error
	switch res.prop.Action.Kind {
	case risk.ActionPlace:
		err = e.c.Reconciler.OnPlaceResult(res.prop.Action.OrderID, res.exchangeID, res.err, ts)
	case risk.ActionCancel:
		err = e.c.Reconciler.OnCancelResult(res.prop.Action.OrderID, res.err, ts)
	case risk.ActionAmend:
		err = e.c.Reconciler.OnAmendResult(res.prop.Action.OrderID,
			res.prop.Action.Price, res.prop.Action.Size, res.err, ts)
	}
	if err != nil {
		e.log.Warn("apply action result", zap.Error(err))
	}

	if res.err != nil {
		e.log.Warn("exchange call failed",
			zap.Stringer("kind", res.prop.Action.Kind),
			zap.Error(res.err))
		e.noteTransportFailure()
		return
	}

	e.noteTransportSuccess()
}

// noteTransportFailure escalates to de-risk mode after enough consecutive
// failures and keeps probing the venue through the resync path.
func (e *Engine) noteTransportFailure() {
	e.failures++
	if e.c.Monitor != nil {
		e.c.Monitor.TransportError()
	}
	if e.failures >= e.cfg.MaxTransportFailures && !e.gate.DeRiskOnly() {
		e.gate.SetDeRiskOnly(true)
		e.needResync = true
		if e.c.Monitor != nil {
			e.c.Monitor.DeRiskMode(true)
		}
		e.log.Error("transport degraded, de-risk only",
			zap.Int("failures", e.failures))
	}
}

func (e *Engine) noteTransportSuccess() {
	e.failures = 0
	if e.gate.DeRiskOnly() {
		e.gate.SetDeRiskOnly(false)
		if e.c.Monitor != nil {
			e.c.Monitor.DeRiskMode(false)
		}
		e.log.Info("transport recovered, full quoting restored")
	}
}

func (e *Engine) handleFill(f gateway.Fill) {
	if err := e.c.Inventory.ApplyFill(string(f.Side), f.Price, f.Size); err != nil {
		e.log.Error("apply fill", zap.Error(err), zap.String("order", f.OrderID))
		return
	}
	snap := e.c.Inventory.Snapshot()
	e.log.Info("fill",
		zap.String("side", string(f.Side)),
		zap.String("price", f.Price.String()),
		zap.String("size", f.Size.String()),
		zap.String("position", snap.Qty.String()))

	if e.c.Monitor != nil {
		e.c.Monitor.FillRecorded(f.Size.InexactFloat64())
		unrealized := 0.0
		e.markMu.RLock()
		if e.hasMark {
			unrealized = e.c.Inventory.Valuation(e.lastMark).InexactFloat64()
		}
		e.markMu.RUnlock()
		e.c.Monitor.PositionUpdated(snap.Qty.InexactFloat64(),
			snap.RealizedPnL.InexactFloat64(), unrealized)
	}
	if e.c.Journal != nil {
		if err := e.c.Journal.RecordFill(f, snap.Qty, snap.RealizedPnL); err != nil {
			e.log.Warn("journal fill", zap.Error(err))
		}
	}
}

func (e *Engine) handleUpdate(u order.Update) {
	if err := e.c.Reconciler.OnUpdate(u); err != nil {
		if errors.Is(err, order.ErrUnknownOrder) {
			e.log.Warn("update for unknown order, resync scheduled",
				zap.String("order", u.OrderID))
			e.needResync = true
			return
		}
		e.log.Warn("apply order update", zap.Error(err))
	}
}

func (e *Engine) handleConnectivity(up bool) {
	if !up {
		e.log.Warn("exchange stream down")
		e.needResync = true
		return
	}
	e.log.Info("exchange stream up, resyncing orders")
	e.needResync = true
}

func (e *Engine) fetchOpenOrders(ctx context.Context) {
	remote, err := e.c.Client.ListOpenOrders(ctx, e.cfg.Instrument)
	if err != nil {
		e.log.Warn("list open orders", zap.Error(err))
		e.post(event{kind: evResync, remote: nil, ts: time.Now().UTC(),
			result: actionResult{err: err}})
		return
	}
	e.post(event{kind: evResync, remote: remote, ts: time.Now().UTC()})
}

func (e *Engine) handleResync(ev event) {
	e.resyncInFlight = false
	// A failed listing leaves needResync set; the next tick retries.
	if ev.result.err != nil {
		e.noteTransportFailure()
		return
	}
	e.c.Reconciler.Resync(ev.remote, ev.ts)
	e.needResync = false
	// A successful listing proves the transport works again.
	e.noteTransportSuccess()
	if e.c.Monitor != nil {
		e.c.Monitor.Resynced()
	}
	e.log.Info("order mirror resynced", zap.Int("open", len(ev.remote)))
}

// shutdown cancels every resting order within the confirmation budget.
// Unconfirmed cancels are loud: the operator has to check the venue.
func (e *Engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CancelConfirmWait)
	defer cancel()

	for _, o := range e.c.Reconciler.Book().Active() {
		if o.ID == "" {
			e.log.Warn("shutdown: placement still unacked, cannot cancel",
				zap.String("client_id", o.ClientID))
			continue
		}
		if err := e.c.Client.CancelOrder(ctx, e.cfg.Instrument, o.ID); err != nil {
			e.log.Warn("shutdown: cancel unconfirmed, check the venue",
				zap.String("order", o.ID), zap.Error(err))
			continue
		}
		e.log.Info("shutdown: order cancelled", zap.String("order", o.ID))
	}
}

func (e *Engine) post(ev event) {
	e.priority <- ev
}

func (e *Engine) offer(ev event) {
	select {
	case e.events <- ev:
	default:
		if e.c.Monitor != nil {
			e.c.Monitor.EventDropped()
		}
	}
}

// StreamHandler implementation: ingestion never blocks the feed reader.

func (e *Engine) OnSample(s marketdata.PriceSample) {
	e.offer(event{kind: evSample, sample: s})
}

func (e *Engine) OnMark(p decimal.Decimal, ts time.Time) {
	e.offer(event{kind: evMark, mark: p, ts: ts})
}

func (e *Engine) OnOrderUpdate(u order.Update) {
	e.post(event{kind: evUpdate, update: u})
}

func (e *Engine) OnFill(f gateway.Fill) {
	e.post(event{kind: evFill, fill: f})
}

func (e *Engine) OnConnectivity(up bool) {
	e.post(event{kind: evConn, up: up})
}

// UpdateQuoteParams swaps the quoting tunables from the next tick on. Safe
// to call from any goroutine; the swap happens inside the loop.
func (e *Engine) UpdateQuoteParams(cfg quote.Config) {
	e.post(event{kind: evReconfig, qcfg: cfg})
}
