package crawl

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawl core. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Registry        *prometheus.Registry
	AttemptsTotal   *prometheus.CounterVec
	OperationsTotal *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RetriesTotal    *prometheus.CounterVec
	RateRejections  *prometheus.CounterVec
}

// NewMetrics constructs and registers all collectors on a dedicated
// registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_attempts_total",
			Help: "Crawl attempts by site and classification.",
		},
		[]string{"site", "outcome"},
	)
	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_operations_total",
			Help: "Completed crawl operations by site, kind, and result.",
		},
		[]string{"site", "kind", "result"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawl_request_duration_seconds",
			Help:    "Transport round-trip latency per site.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"site"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_retries_total",
			Help: "Retry attempts scheduled by site.",
		},
		[]string{"site"},
	)
	rateRejections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_rate_rejections_total",
			Help: "Operations rejected or delayed by the rate budget.",
		},
		[]string{"site"},
	)

	registry.MustRegister(attempts, operations, duration, retries, rateRejections)

	return &Metrics{
		Registry:        registry,
		AttemptsTotal:   attempts,
		OperationsTotal: operations,
		RequestDuration: duration,
		RetriesTotal:    retries,
		RateRejections:  rateRejections,
	}
}

func (m *Metrics) observeAttempt(site Site, outcome Classification, latency time.Duration) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(string(site), outcome.String()).Inc()
	m.RequestDuration.WithLabelValues(string(site)).Observe(latency.Seconds())
}

func (m *Metrics) observeOperation(site Site, kind OpKind, result string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(string(site), string(kind), result).Inc()
}

func (m *Metrics) incRetry(site Site) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(string(site)).Inc()
}

func (m *Metrics) incRateRejection(site Site) {
	if m == nil {
		return
	}
	m.RateRejections.WithLabelValues(string(site)).Inc()
}
