package quote

import (
	"math"

	"github.com/shopspring/decimal"
)

// Config holds the quoting parameters. All of them are tunables, not law;
// they map one-to-one onto the runtime configuration.
type Config struct {
	MinSpreadBps float64 // half-spread floor, bps of fair value
	MaxSpreadBps float64 // half-spread ceiling, bps of fair value (0 = none)
	VolMult      float64 // k: half-spread per unit of ATR
	SkewDamp     float64 // inventory skew sensitivity in [0,1]
	BaseSize     float64 // contracts per side before clamps
	MaxPosition  float64 // hard absolute position limit, contracts
	SizeAmp      float64 // extra size on the de-risking side per unit of |ratio|
	SlipGuardATR float64 // suppress quoting when TR > SlipGuardATR*ATR (0 = off)
}

// Inputs are the per-tick observations the calculator combines.
type Inputs struct {
	Fair          float64 // fair value (mid/last), 0 = no market data
	ATR           float64
	ATRReady      bool
	LastTrueRange float64
	Position      float64 // signed net quantity
	Tick          uint64
}

// Target is one tick's desired two-sided quote. Ephemeral: recomputed every
// tick and never merged with its predecessor. A zero size means no resting
// order is wanted on that side.
type Target struct {
	Bid     decimal.Decimal
	BidSize decimal.Decimal
	Ask     decimal.Decimal
	AskSize decimal.Decimal
	Tick    uint64
}

// Calculator turns fair value, volatility and inventory into a quote target.
// It is pure: no I/O, no mutation of its inputs.
type Calculator struct {
	cfg  Config
	spec ContractSpec
}

func NewCalculator(cfg Config, spec ContractSpec) *Calculator {
	return &Calculator{cfg: cfg, spec: spec}
}

// WithConfig returns a calculator with new tunables on the same contract.
func (c *Calculator) WithConfig(cfg Config) *Calculator {
	return &Calculator{cfg: cfg, spec: c.spec}
}

// Skew returns the price shift applied to both quotes for a position ratio
// in [-1,1]. Positive inventory shifts quotes down (eager to sell). The
// magnitude saturates at SkewDamp*halfSpread instead of diverging.
func (c *Calculator) Skew(ratio, halfSpread float64) float64 {
	ratio = clamp(ratio, -1, 1)
	return c.cfg.SkewDamp * ratio * halfSpread
}

// Quote computes the target for one tick. ok is false — "no quote", not a
// degenerate zero-width quote — when market data is missing, the volatility
// window is insufficient, or the slip guard tripped on a violent move.
func (c *Calculator) Quote(in Inputs) (Target, bool) {
	if in.Fair <= 0 || !in.ATRReady || in.ATR <= 0 {
		return Target{}, false
	}
	// The widening loop below needs a positive tick to make progress.
	if c.spec.TickSize.Sign() <= 0 {
		return Target{}, false
	}
	if c.cfg.SlipGuardATR > 0 && in.LastTrueRange > c.cfg.SlipGuardATR*in.ATR {
		return Target{}, false
	}

	fair := in.Fair
	half := math.Max(c.cfg.MinSpreadBps/1e4*fair, c.cfg.VolMult*in.ATR)
	if c.cfg.MaxSpreadBps > 0 {
		ceil := c.cfg.MaxSpreadBps / 1e4 * fair
		if ceil > c.cfg.MinSpreadBps/1e4*fair && half > ceil {
			half = ceil
		}
	}

	ratio := 0.0
	if c.cfg.MaxPosition > 0 {
		ratio = clamp(in.Position/c.cfg.MaxPosition, -1, 1)
	}
	offset := c.Skew(ratio, half)

	bid := c.spec.PriceFloor(decimal.NewFromFloat(fair - half - offset))
	ask := c.spec.PriceCeil(decimal.NewFromFloat(fair + half - offset))
	// Quantization can only narrow by one tick per side; widen symmetrically
	// until strictly non-crossing.
	for !bid.LessThan(ask) {
		bid = bid.Sub(c.spec.TickSize)
		ask = ask.Add(c.spec.TickSize)
	}

	bidQty, askQty := c.sizes(ratio, in.Position)
	bidSize := c.spec.QtyFloor(decimal.NewFromFloat(bidQty))
	askSize := c.spec.QtyFloor(decimal.NewFromFloat(askQty))
	if !c.spec.Quotable(bid, bidSize) {
		bidSize = decimal.Zero
	}
	if !c.spec.Quotable(ask, askSize) {
		askSize = decimal.Zero
	}

	return Target{
		Bid:     bid,
		BidSize: bidSize,
		Ask:     ask,
		AskSize: askSize,
		Tick:    in.Tick,
	}, true
}

// sizes applies the de-risking amplifier and the hard capacity clamp: the
// side that would push the position past MaxPosition is cut to the remaining
// headroom, down to zero.
func (c *Calculator) sizes(ratio, pos float64) (bidQty, askQty float64) {
	bidQty = c.cfg.BaseSize * (1 + c.cfg.SizeAmp*math.Max(0, -ratio))
	askQty = c.cfg.BaseSize * (1 + c.cfg.SizeAmp*math.Max(0, ratio))

	if c.cfg.MaxPosition > 0 {
		buyRoom := math.Max(0, c.cfg.MaxPosition-pos)
		sellRoom := math.Max(0, c.cfg.MaxPosition+pos)
		bidQty = math.Min(bidQty, buyRoom)
		askQty = math.Min(askQty, sellRoom)
	}
	return bidQty, askQty
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
