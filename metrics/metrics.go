package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relay_node"

// Metrics holds the control-plane collectors.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PoolWaiting     prometheus.Gauge
	PoolRunning     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Control-plane requests by route and status code.",
		}, []string{"route", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Control-plane request latency by route.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"route"}),
		PoolWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_calls_waiting",
			Help:      "Engine calls waiting for a worker.",
		}),
		PoolRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_calls_running",
			Help:      "Engine calls currently executing.",
		}),
	}
	reg.MustRegister(m.Requests, m.RequestDuration, m.PoolWaiting, m.PoolRunning)
	return m
}

// Waiting implements workers.Observer.
func (m *Metrics) Waiting(delta int) {
	m.PoolWaiting.Add(float64(delta))
}

// Running implements workers.Observer.
func (m *Metrics) Running(delta int) {
	m.PoolRunning.Add(float64(delta))
}
