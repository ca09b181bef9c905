// Package metrics exposes the node's prometheus collectors. All methods are
// safe to call on a nil *Metrics so components can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the node collectors.
type Metrics struct {
	submissions     *prometheus.CounterVec
	oracleRequests  *prometheus.CounterVec
	oracleDuration  *prometheus.HistogramVec
	gossipMessages  *prometheus.CounterVec
	gossipQueue     prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	blockCacheLooks *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "did_submissions_total", Help: "Validated submissions by origin and outcome"},
			[]string{"origin", "result", "reason"},
		),
		oracleRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "did_oracle_requests_total", Help: "Outbound oracle requests"},
			[]string{"oracle", "status"},
		),
		oracleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "did_oracle_request_duration_seconds", Help: "Oracle latency", Buckets: prometheus.DefBuckets},
			[]string{"oracle"},
		),
		gossipMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "did_gossip_messages_total", Help: "Gossip messages by direction and status"},
			[]string{"direction", "status"},
		),
		gossipQueue: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "did_gossip_queue_length", Help: "Inbound gossip messages waiting for a worker"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP requests"},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "Request latency", Buckets: prometheus.DefBuckets},
			[]string{"method", "path"},
		),
		blockCacheLooks: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "did_block_cache_lookups_total", Help: "Block anchor lookups by the layer that answered"},
			[]string{"layer"},
		),
	}
	reg.MustRegister(m.submissions, m.oracleRequests, m.oracleDuration, m.gossipMessages,
		m.gossipQueue, m.httpRequests, m.httpDuration, m.blockCacheLooks)
	return m
}

func (m *Metrics) Submission(origin, result, reason string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(origin, result, reason).Inc()
}

func (m *Metrics) Oracle(oracle, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.oracleRequests.WithLabelValues(oracle, status).Inc()
	m.oracleDuration.WithLabelValues(oracle).Observe(d.Seconds())
}

func (m *Metrics) Gossip(direction, status string) {
	if m == nil {
		return
	}
	m.gossipMessages.WithLabelValues(direction, status).Inc()
}

func (m *Metrics) GossipQueue(n int) {
	if m == nil {
		return
	}
	m.gossipQueue.Set(float64(n))
}

func (m *Metrics) HTTP(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (m *Metrics) BlockLookup(layer string) {
	if m == nil {
		return
	}
	m.blockCacheLooks.WithLabelValues(layer).Inc()
}

// StatusLabel buckets an HTTP status code as 2xx/4xx/5xx.
func StatusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
