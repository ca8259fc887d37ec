package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"quote-engine-go/marketdata"
	"quote-engine-go/quote"
	"quote-engine-go/risk"
)

// Config is the full runtime configuration.
type Config struct {
	Env        string         `yaml:"env"`
	Instrument string         `yaml:"instrument"`
	Gateway    GatewayConfig  `yaml:"gateway"`
	Contract   ContractConfig `yaml:"contract"`
	Quote      QuoteConfig    `yaml:"quote"`
	Risk       RiskConfig     `yaml:"risk"`
	Engine     EngineConfig   `yaml:"engine"`
	Log        LogConfig      `yaml:"log"`
	Metrics    MetricsConfig  `yaml:"metrics"`
	Journal    JournalConfig  `yaml:"journal"`
}

type GatewayConfig struct {
	Endpoint      string  `yaml:"endpoint"` // websocket stream endpoint
	RESTURL       string  `yaml:"restURL"`
	APIKey        string  `yaml:"apiKey"`
	APISecret     string  `yaml:"apiSecret"`
	KlineInterval string  `yaml:"klineInterval"`
	RateLimit     float64 `yaml:"rateLimit"` // calls per second
	RateBurst     int     `yaml:"rateBurst"`
	SupportsAmend bool    `yaml:"supportsAmend"`
}

// ContractConfig carries the venue's precision and notional rules. Decimal
// fields are strings so the YAML round-trips exactly.
type ContractConfig struct {
	TickSize    string `yaml:"tickSize"`
	StepSize    string `yaml:"stepSize"`
	MinQty      string `yaml:"minQty"`
	MinNotional string `yaml:"minNotional"`
}

type QuoteConfig struct {
	MinSpreadBps  float64 `yaml:"minSpreadBps"`
	MaxSpreadBps  float64 `yaml:"maxSpreadBps"`
	VolMult       float64 `yaml:"volMult"`
	SkewDamp      float64 `yaml:"skewDamp"`
	BaseSize      float64 `yaml:"baseSize"`
	MaxPosition   float64 `yaml:"maxPosition"`
	SizeAmp       float64 `yaml:"sizeAmp"`
	SlipGuardATR  float64 `yaml:"slipGuardATR"`
	ATRLength     int     `yaml:"atrLength"`
	ATRSmoothing  string  `yaml:"atrSmoothing"` // sma or rma
	PriceTolTicks int64   `yaml:"priceTolTicks"`
	SizeTol       string  `yaml:"sizeTol"`
}

type RiskConfig struct {
	MaxPosition         string `yaml:"maxPosition"`
	MaxOrderSize        string `yaml:"maxOrderSize"`
	MaxActionsPerMinute int    `yaml:"maxActionsPerMinute"`
	KillSwitchDrawdown  string `yaml:"killSwitchDrawdown"`
}

type EngineConfig struct {
	TickIntervalMs       int `yaml:"tickIntervalMs"`
	MaxStalenessSec      int `yaml:"maxStalenessSec"`
	CancelConfirmWaitSec int `yaml:"cancelConfirmWaitSec"`
	MaxTransportFailures int `yaml:"maxTransportFailures"`
	QueueSize            int `yaml:"queueSize"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty = stderr only
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty = metrics server off
}

type JournalConfig struct {
	Path string `yaml:"path"` // empty = journaling off
}

// Load reads, env-overrides and validates a config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets credentials come from the environment instead of the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("QE_API_KEY"); v != "" {
		c.Gateway.APIKey = v
	}
	if v := os.Getenv("QE_API_SECRET"); v != "" {
		c.Gateway.APISecret = v
	}
	if v := os.Getenv("QE_INSTRUMENT"); v != "" {
		c.Instrument = v
	}
}

// Validate rejects configurations that would quote garbage.
func (c *Config) Validate() error {
	if c.Instrument == "" {
		return errors.New("instrument is required")
	}
	if _, err := c.ContractSpec(); err != nil {
		return err
	}
	if c.Quote.MinSpreadBps <= 0 {
		return errors.New("quote.minSpreadBps must be positive")
	}
	if c.Quote.MaxSpreadBps > 0 && c.Quote.MaxSpreadBps < c.Quote.MinSpreadBps {
		return errors.New("quote.maxSpreadBps below quote.minSpreadBps")
	}
	if c.Quote.SkewDamp < 0 || c.Quote.SkewDamp > 1 {
		return errors.New("quote.skewDamp must be in [0,1]")
	}
	if c.Quote.BaseSize <= 0 {
		return errors.New("quote.baseSize must be positive")
	}
	if c.Quote.MaxPosition <= 0 {
		return errors.New("quote.maxPosition must be positive")
	}
	switch c.Quote.ATRSmoothing {
	case "", "sma", "rma":
	default:
		return fmt.Errorf("quote.atrSmoothing %q not recognized", c.Quote.ATRSmoothing)
	}
	if _, err := c.RiskLimits(); err != nil {
		return err
	}
	return nil
}

// ContractSpec converts the contract section.
func (c *Config) ContractSpec() (quote.ContractSpec, error) {
	tick, err := parsePositive("contract.tickSize", c.Contract.TickSize)
	if err != nil {
		return quote.ContractSpec{}, err
	}
	step, err := parsePositive("contract.stepSize", c.Contract.StepSize)
	if err != nil {
		return quote.ContractSpec{}, err
	}
	minQty, err := parseDec("contract.minQty", c.Contract.MinQty)
	if err != nil {
		return quote.ContractSpec{}, err
	}
	minNotional, err := parseDec("contract.minNotional", c.Contract.MinNotional)
	if err != nil {
		return quote.ContractSpec{}, err
	}
	return quote.ContractSpec{
		Instrument:  c.Instrument,
		TickSize:    tick,
		StepSize:    step,
		MinQty:      minQty,
		MinNotional: minNotional,
	}, nil
}

// RiskLimits converts the risk section.
func (c *Config) RiskLimits() (risk.Limits, error) {
	maxPos, err := parsePositive("risk.maxPosition", c.Risk.MaxPosition)
	if err != nil {
		return risk.Limits{}, err
	}
	maxSize, err := parseDec("risk.maxOrderSize", c.Risk.MaxOrderSize)
	if err != nil {
		return risk.Limits{}, err
	}
	kill, err := parseDec("risk.killSwitchDrawdown", c.Risk.KillSwitchDrawdown)
	if err != nil {
		return risk.Limits{}, err
	}
	return risk.Limits{
		MaxPosition:         maxPos,
		MaxOrderSize:        maxSize,
		MaxActionsPerWindow: c.Risk.MaxActionsPerMinute,
		Window:              time.Minute,
		KillSwitchDrawdown:  kill,
	}, nil
}

// QuoteParams converts the quote section.
func (c *Config) QuoteParams() quote.Config {
	return quote.Config{
		MinSpreadBps: c.Quote.MinSpreadBps,
		MaxSpreadBps: c.Quote.MaxSpreadBps,
		VolMult:      c.Quote.VolMult,
		SkewDamp:     c.Quote.SkewDamp,
		BaseSize:     c.Quote.BaseSize,
		MaxPosition:  c.Quote.MaxPosition,
		SizeAmp:      c.Quote.SizeAmp,
		SlipGuardATR: c.Quote.SlipGuardATR,
	}
}

// ATRSmoothing converts the configured smoothing mode.
func (c *Config) ATRSmoothing() marketdata.Smoothing {
	if c.Quote.ATRSmoothing == "rma" {
		return marketdata.SmoothRMA
	}
	return marketdata.SmoothSMA
}

// TickInterval with its default.
func (c *Config) TickInterval() time.Duration {
	if c.Engine.TickIntervalMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.Engine.TickIntervalMs) * time.Millisecond
}

func parseDec(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	if d.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("%s: must not be negative", field)
	}
	return d, nil
}

func parsePositive(field, s string) (decimal.Decimal, error) {
	d, err := parseDec(field, s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%s: must be positive", field)
	}
	return d, nil
}
