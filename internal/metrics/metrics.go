// Package metrics exposes the node's Prometheus gauges and counters:
// chain height, mempool size, peer count, and mining hashrate, served over
// the optional metrics.port HTTP endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the node publishes. A node builds exactly one
// of these at startup and shares it with the RPC server; the chain,
// mempool, miner, and p2p packages do not receive it.
type Registry struct {
	reg *prometheus.Registry

	ChainHeight      prometheus.Gauge
	ChainDifficulty  prometheus.Gauge
	MempoolSize      prometheus.Gauge
	PeerCount        prometheus.Gauge
	MiningHashrate   prometheus.Gauge
	BlocksMined      prometheus.Counter
	BlocksRejected   prometheus.Counter
	TxSubmitted      prometheus.Counter
	TxRejected       prometheus.Counter
	PeersBanned      prometheus.Counter
	ReorgCount       prometheus.Counter
	RPCRequestsTotal *prometheus.CounterVec
}

// NewRegistry builds a fresh, unregistered-with-default-registry metric
// set — a dedicated prometheus.Registry rather than the global default, so
// multiple test nodes in the same process never collide on metric names.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		ChainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qchain", Name: "chain_height", Help: "Current chain tip height.",
		}),
		ChainDifficulty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qchain", Name: "chain_difficulty", Help: "Current proof-of-work difficulty.",
		}),
		MempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qchain", Name: "mempool_size", Help: "Number of pending transactions.",
		}),
		PeerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qchain", Name: "peer_count", Help: "Number of connected peers.",
		}),
		MiningHashrate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qchain", Name: "mining_hashrate", Help: "Estimated local hash rate, in hashes/sec.",
		}),
		BlocksMined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qchain", Name: "blocks_mined_total", Help: "Blocks successfully mined by this node.",
		}),
		BlocksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qchain", Name: "blocks_rejected_total", Help: "Blocks rejected during validation.",
		}),
		TxSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qchain", Name: "transactions_submitted_total", Help: "Transactions accepted into the mempool.",
		}),
		TxRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qchain", Name: "transactions_rejected_total", Help: "Transactions rejected by the mempool.",
		}),
		PeersBanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qchain", Name: "peers_banned_total", Help: "Peers banned for protocol violations.",
		}),
		ReorgCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qchain", Name: "reorgs_total", Help: "Chain reorganizations applied.",
		}),
		RPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qchain", Name: "rpc_requests_total", Help: "RPC requests by method and outcome.",
		}, []string{"method", "outcome"}),
	}

	reg.MustRegister(
		m.ChainHeight, m.ChainDifficulty, m.MempoolSize, m.PeerCount, m.MiningHashrate,
		m.BlocksMined, m.BlocksRejected, m.TxSubmitted, m.TxRejected, m.PeersBanned,
		m.ReorgCount, m.RPCRequestsTotal,
	)
	return m
}

// Handler returns the HTTP handler to mount at the metrics endpoint.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
