package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor owns a private registry so parallel engines (and tests) never
// collide on metric names.
type Monitor struct {
	registry *prometheus.Registry

	quotesComputed prometheus.Counter
	noQuoteTicks   prometheus.Counter
	eventsDropped  prometheus.Counter
	resyncs        prometheus.Counter

	actionsSent     *prometheus.CounterVec
	actionsRejected *prometheus.CounterVec
	transportErrors prometheus.Counter

	fillsTotal   prometheus.Counter
	filledVolume prometheus.Counter

	position      prometheus.Gauge
	realizedPnL   prometheus.Gauge
	unrealizedPnL prometheus.Gauge
	bidPrice      prometheus.Gauge
	askPrice      prometheus.Gauge
	spread        prometheus.Gauge
	atr           prometheus.Gauge
	deRiskMode    prometheus.Gauge
}

// Config scopes metric names.
type Config struct {
	Namespace string
	Subsystem string
}

func DefaultConfig() Config {
	return Config{Namespace: "qe", Subsystem: "engine"}
}

func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: name, Help: help,
		}
	}
	gopts := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: name, Help: help,
		}
	}

	return &Monitor{
		registry: reg,

		quotesComputed: factory.NewCounter(opts("quotes_computed_total", "Two-sided quote targets computed")),
		noQuoteTicks:   factory.NewCounter(opts("no_quote_ticks_total", "Ticks where quoting was suppressed")),
		eventsDropped:  factory.NewCounter(opts("events_dropped_total", "Inbound events dropped on a full queue")),
		resyncs:        factory.NewCounter(opts("order_resyncs_total", "Order mirror resyncs against the exchange")),

		actionsSent: factory.NewCounterVec(opts("actions_sent_total", "Order actions forwarded to the exchange"),
			[]string{"kind"}),
		actionsRejected: factory.NewCounterVec(opts("actions_rejected_total", "Order actions stopped by the risk gate"),
			[]string{"kind"}),
		transportErrors: factory.NewCounter(opts("transport_errors_total", "Failed exchange calls")),

		fillsTotal:   factory.NewCounter(opts("fills_total", "Executions received")),
		filledVolume: factory.NewCounter(opts("filled_volume_total", "Cumulative executed size")),

		position:      factory.NewGauge(gopts("position", "Signed net position")),
		realizedPnL:   factory.NewGauge(gopts("realized_pnl", "Realized PnL")),
		unrealizedPnL: factory.NewGauge(gopts("unrealized_pnl", "Unrealized PnL at the mark")),
		bidPrice:      factory.NewGauge(gopts("bid_price", "Current bid quote")),
		askPrice:      factory.NewGauge(gopts("ask_price", "Current ask quote")),
		spread:        factory.NewGauge(gopts("spread", "Current quoted spread")),
		atr:           factory.NewGauge(gopts("atr", "Current volatility estimate")),
		deRiskMode:    factory.NewGauge(gopts("de_risk_mode", "1 while only de-risking actions are allowed")),
	}
}

// Handler serves this monitor's registry.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

func (m *Monitor) QuoteComputed(bid, ask, atr float64) {
	m.quotesComputed.Inc()
	m.bidPrice.Set(bid)
	m.askPrice.Set(ask)
	m.spread.Set(ask - bid)
	m.atr.Set(atr)
}

func (m *Monitor) NoQuoteTick() {
	m.noQuoteTicks.Inc()
	m.bidPrice.Set(0)
	m.askPrice.Set(0)
	m.spread.Set(0)
}

func (m *Monitor) EventDropped() { m.eventsDropped.Inc() }
func (m *Monitor) Resynced()     { m.resyncs.Inc() }

func (m *Monitor) ActionSent(kind string)     { m.actionsSent.WithLabelValues(kind).Inc() }
func (m *Monitor) ActionRejected(kind string) { m.actionsRejected.WithLabelValues(kind).Inc() }
func (m *Monitor) TransportError()            { m.transportErrors.Inc() }

func (m *Monitor) FillRecorded(size float64) {
	m.fillsTotal.Inc()
	m.filledVolume.Add(size)
}

func (m *Monitor) PositionUpdated(qty, realized, unrealized float64) {
	m.position.Set(qty)
	m.realizedPnL.Set(realized)
	m.unrealizedPnL.Set(unrealized)
}

func (m *Monitor) DeRiskMode(on bool) {
	if on {
		m.deRiskMode.Set(1)
	} else {
		m.deRiskMode.Set(0)
	}
}
