package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.QuoteMutation("create")
	m.QuoteMutation("create")
	m.SignatureResolved("signed", "self")
	m.SweepCompleted(10*time.Millisecond, 3, 1)
	m.CounterLookup(true)
	m.CounterLookup(false)
	m.Invalidated("pending_signatures")

	assert.Equal(t, 2.0, counterValue(t, reg, "quotevault_quote_mutations_total", map[string]string{"op": "create"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "quotevault_signatures_resolved_total", map[string]string{"state": "signed", "via": "self"}))
	assert.Equal(t, 3.0, counterValue(t, reg, "quotevault_signatures_expired_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "quotevault_expiration_sweep_failures_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "quotevault_counter_lookups_total", map[string]string{"result": "hit"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "quotevault_counter_invalidations_total", map[string]string{"category": "pending_signatures"}))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.QuoteMutation("delete")
		m.SignatureResolved("refused", "admin")
		m.SignatureCleared()
		m.SweepCompleted(time.Second, 0, 0)
		m.VoteCast()
		m.FlagAdded()
		m.CounterLookup(true)
		m.Invalidated("flagged_quotes")
	})
}
