package queue

import (
	"github.com/bissquit/clerk-queue/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clerkqueue"

var (
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items",
			Help:      "Number of queue items by status",
		},
		[]string{"status"},
	)

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "transitions_total",
			Help:      "Total stored queue item transitions",
		},
		[]string{"queue_type", "action"},
	)

	claimConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "claim_conflicts_total",
			Help:      "Claims that lost the race or targeted an unavailable item",
		},
	)
)

func recordTransition(queueType domain.QueueType, action domain.TransitionAction) {
	transitionsTotal.WithLabelValues(string(queueType), string(action)).Inc()
}

func recordClaimConflict() {
	claimConflicts.Inc()
}

// RecordQueueSize updates queue size metrics. Statuses absent from counts are reported as zero.
func RecordQueueSize(counts map[domain.QueueStatus]int64) {
	for _, status := range []domain.QueueStatus{
		domain.QueueStatusPending,
		domain.QueueStatusInReview,
		domain.QueueStatusProcessing,
		domain.QueueStatusCompleted,
		domain.QueueStatusRejected,
	} {
		queueSize.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
