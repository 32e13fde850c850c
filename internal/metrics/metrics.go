// Package metrics exposes the relayer's Prometheus collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crosslock"

// RelayerMetrics groups the collectors updated by the coordinator, the
// submission workers and the RPC server.
type RelayerMetrics struct {
	swapTransitions *prometheus.CounterVec
	bids            *prometheus.CounterVec
	soldPrice       prometheus.Histogram

	submissions       *prometheus.CounterVec
	submissionLatency *prometheus.HistogramVec
	pending           *prometheus.GaugeVec

	rpcRequests *prometheus.CounterVec
	rpcLatency  *prometheus.HistogramVec
	wsClients   prometheus.Gauge
}

var (
	relayerOnce     sync.Once
	relayerRegistry *RelayerMetrics
)

// Relayer returns the lazily-initialised relayer metrics, registered with the
// default Prometheus registry.
func Relayer() *RelayerMetrics {
	relayerOnce.Do(func() {
		relayerRegistry = newRelayerMetrics()
		prometheus.MustRegister(relayerRegistry.collectors()...)
	})
	return relayerRegistry
}

func newRelayerMetrics() *RelayerMetrics {
	return &RelayerMetrics{
		swapTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "transitions_total",
			Help:      "Swap state transitions segmented by the state entered.",
		}, []string{"state"}),
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "bids_total",
			Help:      "Auction bids segmented by outcome.",
		}, []string{"outcome"}),
		soldPrice: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "sold_price_ratio",
			Help:      "Sold price as a fraction of the start price.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "attempts_total",
			Help:      "Relayer submission attempts segmented by chain, action and outcome.",
		}, []string{"chain", "action", "outcome"}),
		submissionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "duration_seconds",
			Help:      "Latency of relayer submissions until inclusion.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"chain", "action"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "pending",
			Help:      "Submissions due on the last worker poll, per chain.",
		}, []string{"chain"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests segmented by method and outcome.",
		}, []string{"method", "outcome"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of JSON-RPC handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "websocket_clients",
			Help:      "Connected WebSocket event subscribers.",
		}),
	}
}

func (m *RelayerMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.swapTransitions,
		m.bids,
		m.soldPrice,
		m.submissions,
		m.submissionLatency,
		m.pending,
		m.rpcRequests,
		m.rpcLatency,
		m.wsClients,
	}
}

// SwapTransition counts a swap entering state.
func (m *RelayerMetrics) SwapTransition(state string) {
	if m == nil {
		return
	}
	m.swapTransitions.WithLabelValues(state).Inc()
}

// Bid records a bid outcome ("won", "sold", "rejected", ...). For a winning
// bid the sold price is observed relative to the start price.
func (m *RelayerMetrics) Bid(outcome string, soldPrice, startPrice uint64) {
	if m == nil {
		return
	}
	m.bids.WithLabelValues(outcome).Inc()
	if outcome == "won" && startPrice > 0 {
		m.soldPrice.Observe(float64(soldPrice) / float64(startPrice))
	}
}

// Submission records one submission attempt.
func (m *RelayerMetrics) Submission(chain, action, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(chain, action, outcome).Inc()
	m.submissionLatency.WithLabelValues(chain, action).Observe(took.Seconds())
}

// PendingSubmissions sets the pending gauge of chain.
func (m *RelayerMetrics) PendingSubmissions(chain string, n int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(chain).Set(float64(n))
}

// RPCRequest records one JSON-RPC call.
func (m *RelayerMetrics) RPCRequest(method string, failed bool, took time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if failed {
		outcome = "error"
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(took.Seconds())
}

// WSClients sets the connected WebSocket subscriber gauge.
func (m *RelayerMetrics) WSClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
