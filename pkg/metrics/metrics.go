// Package metrics exposes Prometheus collectors for the leaderboard pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "arcadeboard"

// Metrics groups the collectors used across packages.
type Metrics struct {
	fetchAttempts *prometheus.CounterVec
	fetchRetries  prometheus.Counter
	cacheLookups  *prometheus.CounterVec
	batchDuration prometheus.Histogram
	badges        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Profile page fetch attempts by outcome.",
		}, []string{"outcome"}),
		fetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Profile page fetch retries.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_cache_lookups_total",
			Help:      "Leaderboard cache lookups by status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time spent processing one roster batch.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		badges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badges_classified_total",
			Help:      "Badges classified by category.",
		}, []string{"category"}),
	}
	for _, c := range []prometheus.Collector{m.fetchAttempts, m.fetchRetries, m.cacheLookups, m.batchDuration, m.badges} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FetchAttempt records the outcome ("ok", "http_error", "network_error") of one attempt.
func (m *Metrics) FetchAttempt(outcome string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(outcome).Inc()
}

// FetchRetry records one retry.
func (m *Metrics) FetchRetry() {
	if m == nil {
		return
	}
	m.fetchRetries.Inc()
}

// CacheLookup records a leaderboard cache lookup ("HIT" or "MISS").
func (m *Metrics) CacheLookup(status string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(status).Inc()
}

// BatchDone records the duration of one batch.
func (m *Metrics) BatchDone(d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}

// BadgeClassified records one classified badge.
func (m *Metrics) BadgeClassified(category string) {
	if m == nil {
		return
	}
	m.badges.WithLabelValues(category).Inc()
}
