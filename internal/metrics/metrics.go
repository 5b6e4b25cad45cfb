// Package metrics exposes Prometheus collectors for quote lifecycle activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	quoteMutations     *prometheus.CounterVec
	signaturesResolved *prometheus.CounterVec
	signaturesCleared  prometheus.Counter
	signaturesExpired  prometheus.Counter
	sweepDuration      prometheus.Histogram
	sweepFailures      prometheus.Counter
	votesCast          prometheus.Counter
	flagsAdded         prometheus.Counter
	counterLookups     *prometheus.CounterVec
	invalidations      *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		quoteMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quotevault_quote_mutations_total",
			Help: "quote create, update and delete operations",
		}, []string{"op"}),
		signaturesResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quotevault_signatures_resolved_total",
			Help: "signatures moved to a terminal state by a signer or admin",
		}, []string{"state", "via"}),
		signaturesCleared: factory.NewCounter(prometheus.CounterOpts{
			Name: "quotevault_signatures_cleared_total",
			Help: "terminal signatures reset to pending by an admin",
		}),
		signaturesExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "quotevault_signatures_expired_total",
			Help: "pending signatures auto-refused by the expiration sweep",
		}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quotevault_expiration_sweep_seconds",
			Help:    "duration of expiration sweeps",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		sweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "quotevault_expiration_sweep_failures_total",
			Help: "quotes the expiration sweep failed to resolve",
		}),
		votesCast: factory.NewCounter(prometheus.CounterOpts{
			Name: "quotevault_rarity_votes_total",
			Help: "rarity vote mutations",
		}),
		flagsAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "quotevault_flags_added_total",
			Help: "distinct flags recorded",
		}),
		counterLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quotevault_counter_lookups_total",
			Help: "counter reads by cache result",
		}, []string{"result"}),
		invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quotevault_counter_invalidations_total",
			Help: "counter invalidations by category",
		}, []string{"category"}),
	}
}

// QuoteMutation counts a create, update or delete.
func (m *Metrics) QuoteMutation(op string) {
	if m == nil {
		return
	}
	m.quoteMutations.WithLabelValues(op).Inc()
}

// SignatureResolved counts a terminal transition. via is self, admin or guest.
func (m *Metrics) SignatureResolved(state, via string) {
	if m == nil {
		return
	}
	m.signaturesResolved.WithLabelValues(state, via).Inc()
}

// SignatureCleared counts an admin clear.
func (m *Metrics) SignatureCleared() {
	if m == nil {
		return
	}
	m.signaturesCleared.Inc()
}

// SweepCompleted records one sweep run.
func (m *Metrics) SweepCompleted(took time.Duration, expired, failed int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(took.Seconds())
	m.signaturesExpired.Add(float64(expired))
	m.sweepFailures.Add(float64(failed))
}

// VoteCast counts a vote mutation.
func (m *Metrics) VoteCast() {
	if m == nil {
		return
	}
	m.votesCast.Inc()
}

// FlagAdded counts a new flag.
func (m *Metrics) FlagAdded() {
	if m == nil {
		return
	}
	m.flagsAdded.Inc()
}

// CounterLookup records a cache hit or miss.
func (m *Metrics) CounterLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.counterLookups.WithLabelValues(result).Inc()
}

// Invalidated counts an invalidation of category.
func (m *Metrics) Invalidated(category string) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(category).Inc()
}
