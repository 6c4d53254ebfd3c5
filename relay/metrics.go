package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LagBlocks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "lag_blocks",
		Help:      "Difference between the source chain head and the last processed block.",
	}, []string{"relay_id"})
	FailedBridgeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "failed_bridge_total",
		Help:      "Number of failed destination chain submission attempts.",
	}, []string{"relay_id"})
	DeadLetterQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "dead_letter_queue",
		Help:      "Number of events waiting in the dead letter queue.",
	}, []string{"relay_id"})
	LatestHeadBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "head_block",
		Help:      "Shows the latest observed source chain head block.",
	}, []string{"relay_id"})
	LatestProcessedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "last_processed_block",
		Help:      "Shows the last source chain block whose events are all bridged or dead-lettered.",
	}, []string{"relay_id"})
	BridgedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "bridged_events_total",
		Help:      "Number of tally events successfully mirrored to the destination chain.",
	}, []string{"relay_id"})
	Faults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "faults_total",
		Help:      "Number of times the relay loop entered the FAULTED state.",
	}, []string{"relay_id"})
)
