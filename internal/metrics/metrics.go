package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Settlements counts applied settlements by transaction kind and outcome.
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wallet",
		Name:      "settlements_total",
		Help:      "Applied ledger settlements by kind and outcome.",
	}, []string{"kind", "outcome"})

	// SettleConflicts counts version conflicts observed while settling.
	SettleConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wallet",
		Name:      "settle_conflicts_total",
		Help:      "Optimistic concurrency conflicts hit during settlement.",
	})

	// GatewayCalls counts processor calls by operation and result.
	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wallet",
		Name:      "gateway_calls_total",
		Help:      "Payment gateway calls by operation and result.",
	}, []string{"operation", "result"})

	// GatewayLatency observes processor call durations.
	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wallet",
		Name:      "gateway_call_duration_seconds",
		Help:      "Payment gateway call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// NotifyFailures counts balance events that could not be delivered.
	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wallet",
		Name:      "notify_failures_total",
		Help:      "Balance events that failed to reach at least one notifier.",
	})

	// RealtimeConnections tracks open websocket connections.
	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wallet",
		Name:      "realtime_connections",
		Help:      "Open websocket connections.",
	})
)
