package monitor

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndGauges(t *testing.T) {
	m := New(DefaultConfig())

	m.QuoteComputed(99.9, 100.1, 0.3)
	m.QuoteComputed(99.8, 100.2, 0.35)
	m.ActionSent("PLACE")
	m.ActionRejected("PLACE")
	m.FillRecorded(0.5)
	m.PositionUpdated(2, 10, -3)
	m.DeRiskMode(true)

	got := testutil.CollectAndCount(m.Registry())
	assert.Greater(t, got, 0)

	expected := strings.NewReader(`
# HELP qe_engine_quotes_computed_total Two-sided quote targets computed
# TYPE qe_engine_quotes_computed_total counter
qe_engine_quotes_computed_total 2
`)
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), expected,
		"qe_engine_quotes_computed_total"))

	expected = strings.NewReader(`
# HELP qe_engine_de_risk_mode 1 while only de-risking actions are allowed
# TYPE qe_engine_de_risk_mode gauge
qe_engine_de_risk_mode 1
`)
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), expected,
		"qe_engine_de_risk_mode"))
}

func TestIsolatedRegistries(t *testing.T) {
	// Two monitors must not panic on duplicate registration.
	a := New(DefaultConfig())
	b := New(DefaultConfig())
	a.ActionSent("CANCEL")
	b.ActionSent("CANCEL")
}
