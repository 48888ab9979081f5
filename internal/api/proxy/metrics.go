package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"time"
)

const (
	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomeRejected = "rejected"
)

type metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	browsersInUse prometheus.Gauge
	rateLimited   prometheus.Counter
}

func newMetrics(registry prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grade_proxy_requests_total",
			Help: "Total number of proxy requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grade_proxy_request_duration_seconds",
			Help:    "Duration of proxy requests by endpoint",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"endpoint"}),
		browsersInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grade_proxy_browsers_in_use",
			Help: "Number of browser sessions currently acquiring a gid",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grade_proxy_rate_limited_total",
			Help: "Total number of gid requests rejected by the per-client rate limit",
		}),
	}

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(m.requests, m.duration, m.browsersInUse, m.rateLimited)
	return m
}

func (m *metrics) observe(endpoint, outcome string, started time.Time) {
	m.requests.WithLabelValues(endpoint, outcome).Inc()
	m.duration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
}
