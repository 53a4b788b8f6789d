package ingress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clerkqueue"

// Enqueue outcomes.
const (
	outcomeCreated   = "created"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
	outcomeInvalid   = "invalid"
)

var ingressItems = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingress",
		Name:      "items_total",
		Help:      "Source events handled by ingress adapters by outcome",
	},
	[]string{"source", "outcome"},
)

func recordEnqueue(source, outcome string) {
	ingressItems.WithLabelValues(source, outcome).Inc()
}

// RecordInvalid counts a source event dropped before reaching the queue.
func RecordInvalid(source string) {
	recordEnqueue(source, outcomeInvalid)
}
