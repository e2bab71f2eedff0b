package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the live Prometheus mirror of the counter aggregator. The
// NDJSON sink in stats.go remains the system of record; this is the
// local/instant view.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
}

// NewMetrics builds and registers the evmrpc_* Prometheus instruments
// against reg. Pass prometheus.DefaultRegisterer to expose them on the
// process-wide /metrics endpoint.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evmrpc_requests_total",
			Help: "Total evmrpc proxy requests by chain, node, success and finality.",
		}, []string{"chain", "node", "success", "final"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evmrpc_upstream_call_duration_seconds",
			Help:    "Upstream JSON-RPC call latency by chain and node.",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain", "node"}),
	}
	reg.MustRegister(m.requestsTotal, m.upstreamLatency)
	return m
}

// Observe records one terminal-outcome row in the same shape Increment
// writes into the NDJSON aggregator, so the two views never diverge.
func (m *Metrics) Observe(key interface{ Labels() (chain, node string, success bool) }) {
	chain, node, success := key.Labels()
	m.requestsTotal.WithLabelValues(chain, node, strconv.FormatBool(success), "true").Inc()
}

// ObserveUpstreamLatency records one upstream call's wall-clock duration in
// seconds, called from the upstream caller around its POST.
func (m *Metrics) ObserveUpstreamLatency(chain, node string, seconds float64) {
	m.upstreamLatency.WithLabelValues(chain, node).Observe(seconds)
}
