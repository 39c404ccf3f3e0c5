// Package obs is the concrete metrics-emission adapter: the spec treats
// metrics as an external collaborator, but something has to implement it,
// so this package provides a thin Prometheus-backed one, registered with
// promauto exactly as the pack's own controller metrics are.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the full set of counters/gauges/histograms the relayer
// emits, constructed once at startup and threaded into the components
// that update them.
type Metrics struct {
	// Admission (C1).
	ConnectionsAccepted *prometheus.CounterVec // labels: pool(direct|forwards), class(staked|unstaked)
	ConnectionsRejected *prometheus.CounterVec // labels: pool, reason(rate_limited|too_many_connections|forwards_requires_staked|other)

	// Fan-out (C8), per-validator (supplemented from relayer.rs's RelayerMetrics).
	ValidatorForwarded *prometheus.CounterVec // labels: validator
	ValidatorDropped   *prometheus.CounterVec // labels: validator

	// Channel high-water marks (supplemented from relayer.rs). There is no
	// slot_receiver_max_len here: this design's highest-observed-slot is a
	// single-writer atomic (§5, §9), not a channel, so there is no queue
	// depth to sample for it.
	SubscriptionReceiverMaxLen prometheus.Gauge
	DelayPacketReceiverMaxLen  prometheus.Gauge

	// Heartbeat-tick latency (supplemented from relayer.rs).
	HeartbeatTickLatency prometheus.Histogram

	// Packet hand-off latency: verify -> fan-out (supplemented from relayer.rs).
	PacketLatency prometheus.Histogram

	// Registry/health.
	Subscribers  prometheus.Gauge
	HealthStatus prometheus.Gauge // 1 = healthy, 0 = unhealthy
}

// New registers and returns a Metrics set against reg, following the
// pack's promauto convention. Passing a fresh *prometheus.Registry (rather
// than prometheus.DefaultRegisterer) is recommended for anything other
// than the single process-wide instance, since Prometheus panics on
// duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ConnectionsAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_quic_connections_accepted_total",
			Help: "Total QUIC connections admitted, by pool and stake class.",
		}, []string{"pool", "class"}),

		ConnectionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_quic_connections_rejected_total",
			Help: "Total QUIC connections rejected, by pool and reason.",
		}, []string{"pool", "reason"}),

		ValidatorForwarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_packets_forwarded_total",
			Help: "Total packets forwarded, by destination validator identity.",
		}, []string{"validator"}),

		ValidatorDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_packets_dropped_total",
			Help: "Total packets dropped on a full subscriber sink, by validator identity.",
		}, []string{"validator"}),

		SubscriptionReceiverMaxLen: f.NewGauge(prometheus.GaugeOpts{
			Name: "relayer_subscription_receiver_max_len",
			Help: "High-water mark of the subscription-insert channel within the last metrics interval.",
		}),

		DelayPacketReceiverMaxLen: f.NewGauge(prometheus.GaugeOpts{
			Name: "relayer_delay_packet_receiver_max_len",
			Help: "High-water mark of the delay/handoff buffer within the last metrics interval.",
		}),

		HeartbeatTickLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name: "relayer_heartbeat_tick_latency_seconds",
			Help: "Scheduling jitter of the heartbeat tick itself.",
		}),

		PacketLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name: "relayer_packet_latency_seconds",
			Help: "Time between verify hand-off and fan-out for a batch.",
		}),

		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "relayer_subscribers",
			Help: "Current number of registered validator subscribers.",
		}),

		HealthStatus: f.NewGauge(prometheus.GaugeOpts{
			Name: "relayer_health_status",
			Help: "1 if the relayer is healthy, 0 otherwise.",
		}),
	}
}
