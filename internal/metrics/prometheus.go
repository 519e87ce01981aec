// Package metrics provides Prometheus metrics for licverify.
package metrics

import (
	"time"

	"github.com/MacJediWizard/licverify/internal/license"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "licverify"

// PrometheusMetrics holds the service's metric vectors.
type PrometheusMetrics struct {
	VerificationCounter  *prometheus.CounterVec
	VerificationDuration *prometheus.HistogramVec
	StoreGauge           *prometheus.GaugeVec
	StoreUp              prometheus.Gauge
}

// NewPrometheusMetrics creates the metric vectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		VerificationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Total number of license verifications by outcome",
		}, []string{"status"}),
		VerificationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verification_duration_seconds",
			Help:      "Duration of license verifications including the store lookup",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		StoreGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_info",
			Help:      "Configured license store (1 for the active kind)",
		}, []string{"kind"}),
		StoreUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_up",
			Help:      "License store reachability at last scrape (1 = reachable, 0 = unreachable)",
		}),
	}

	for _, c := range []prometheus.Collector{m.VerificationCounter, m.VerificationDuration, m.StoreGauge, m.StoreUp} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	// Pre-create every outcome series so dashboards see zeros.
	for _, s := range license.ValidOutcomeStatuses() {
		m.VerificationCounter.WithLabelValues(string(s))
	}

	return m, nil
}

// RecordVerification implements license.Recorder.
func (m *PrometheusMetrics) RecordVerification(status license.OutcomeStatus, duration time.Duration) {
	m.VerificationCounter.WithLabelValues(string(status)).Inc()
	m.VerificationDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// SetStoreKind marks kind as the active license store.
func (m *PrometheusMetrics) SetStoreKind(kind string) {
	m.StoreGauge.Reset()
	m.StoreGauge.WithLabelValues(kind).Set(1)
}

// SetStoreUp records the outcome of the latest store ping.
func (m *PrometheusMetrics) SetStoreUp(up bool) {
	if up {
		m.StoreUp.Set(1)
		return
	}
	m.StoreUp.Set(0)
}
