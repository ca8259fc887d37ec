package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-engine-go/marketdata"
)

const sampleYAML = `
env: test
instrument: BTCUSDT
gateway:
  endpoint: wss://fstream.binance.com
  klineInterval: 1m
  rateLimit: 5
  rateBurst: 10
contract:
  tickSize: "0.1"
  stepSize: "0.001"
  minQty: "0.001"
  minNotional: "5"
quote:
  minSpreadBps: 10
  maxSpreadBps: 80
  volMult: 0.5
  skewDamp: 0.5
  baseSize: 0.01
  maxPosition: 0.1
  atrLength: 14
  atrSmoothing: sma
risk:
  maxPosition: "0.1"
  maxOrderSize: "0.05"
  maxActionsPerMinute: 30
  killSwitchDrawdown: "500"
engine:
  tickIntervalMs: 500
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.Instrument)

	spec, err := cfg.ContractSpec()
	require.NoError(t, err)
	assert.Equal(t, "0.1", spec.TickSize.String())
	assert.Equal(t, "BTCUSDT", spec.Instrument)

	limits, err := cfg.RiskLimits()
	require.NoError(t, err)
	assert.Equal(t, 30, limits.MaxActionsPerWindow)
	assert.Equal(t, time.Minute, limits.Window)
	assert.Equal(t, "500", limits.KillSwitchDrawdown.String())

	assert.Equal(t, marketdata.SmoothSMA, cfg.ATRSmoothing())
	assert.Equal(t, 500*time.Millisecond, cfg.TickInterval())
}

func TestEnvOverridesCredentials(t *testing.T) {
	t.Setenv("QE_API_KEY", "k-from-env")
	t.Setenv("QE_API_SECRET", "s-from-env")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "k-from-env", cfg.Gateway.APIKey)
	assert.Equal(t, "s-from-env", cfg.Gateway.APISecret)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"missing instrument", func(c *Config) { c.Instrument = "" }},
		{"zero tick size", func(c *Config) { c.Contract.TickSize = "0" }},
		{"negative spread", func(c *Config) { c.Quote.MinSpreadBps = -1 }},
		{"ceiling below floor", func(c *Config) { c.Quote.MaxSpreadBps = 5 }},
		{"skew out of range", func(c *Config) { c.Quote.SkewDamp = 1.5 }},
		{"unknown smoothing", func(c *Config) { c.Quote.ATRSmoothing = "ema" }},
		{"bad decimal", func(c *Config) { c.Risk.MaxPosition = "abc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sampleYAML))
			require.NoError(t, err)
			tt.mut(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	reloaded := make(chan *Config, 1)
	w := NewWatcher(path, time.Millisecond, nil, func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	updated := []byte(sampleYAML + "\nmetrics:\n  listen: \":9100\"\n")
	require.NoError(t, os.WriteFile(path, updated, 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, ":9100", cfg.Metrics.Listen)
	case <-time.After(2 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatcherDropsInvalidReload(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	reloaded := make(chan *Config, 1)
	w := NewWatcher(path, time.Millisecond, nil, func(c *Config) { reloaded <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("instrument: \"\"\n"), 0o644))

	select {
	case <-reloaded:
		t.Fatal("invalid config must not be applied")
	case <-time.After(300 * time.Millisecond):
	}
}
