package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksEnqueuedTotal counts accepted enqueue operations by task type
	TasksEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "queue",
		Name:      "tasks_enqueued_total",
		Help:      "Total tasks accepted into the queue",
	}, []string{"task_type"})

	// TasksDequeuedTotal counts successful claims by task type
	TasksDequeuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "queue",
		Name:      "tasks_dequeued_total",
		Help:      "Total tasks claimed by workers",
	}, []string{"task_type"})

	// TasksCompletedTotal counts completed tasks
	TasksCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "queue",
		Name:      "tasks_completed_total",
		Help:      "Total tasks completed successfully",
	})

	// TasksFailedTotal counts failed task attempts
	TasksFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "queue",
		Name:      "tasks_failed_total",
		Help:      "Total task attempts reported failed by workers",
	})

	// TasksRetriedTotal counts failed or dead-letter tasks returned to pending
	TasksRetriedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "queue",
		Name:      "tasks_retried_total",
		Help:      "Total tasks moved back to pending for another attempt",
	})

	// DequeueRejectedTotal counts dequeue calls refused by an open breaker
	DequeueRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "queue",
		Name:      "dequeue_rejected_total",
		Help:      "Dequeue requests refused because the worker's circuit breaker is open",
	}, []string{"worker_id"})

	// QueueDepth is the current number of pending tasks
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "atlas",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Number of pending tasks in the queue",
	})

	// BreakersOpen is the number of worker circuit breakers currently open
	BreakersOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "atlas",
		Subsystem: "queue",
		Name:      "breakers_open",
		Help:      "Number of worker circuit breakers currently open",
	})

	// StaleAssignmentsReclaimed counts assigned tasks requeued after lease expiry
	StaleAssignmentsReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "atlas",
		Subsystem: "queue",
		Name:      "stale_assignments_reclaimed_total",
		Help:      "Assigned tasks requeued because their worker lease expired",
	})
)
