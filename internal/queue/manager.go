// Package queue implements the Atlas task-queue reliability core: the
// single writer to the task store, circuit-breaker gating of worker
// dequeues, and the dead-letter retry policy.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/atlashq/atlas/internal/queue/breaker"
	"github.com/atlashq/atlas/internal/queue/metrics"
	"github.com/atlashq/atlas/internal/queue/repository"
	"github.com/atlashq/atlas/internal/queue/types"
	"github.com/atlashq/atlas/pkg/logging"
)

// Options tunes queue policy. Zero fields fall back to defaults.
type Options struct {
	MaxQueueDepth           int
	MaxFailedTasks          int
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxQueueDepth <= 0 {
		o.MaxQueueDepth = 1000
	}
	if o.MaxFailedTasks <= 0 {
		o.MaxFailedTasks = 50
	}
	if o.BreakerFailureThreshold <= 0 {
		o.BreakerFailureThreshold = 10
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Minute
	}
}

// Manager is the orchestration core for the task queue. It is the only
// writer to the task store; producers and workers hold a reference to one
// Manager instance constructed at process startup.
type Manager struct {
	repo     repository.TaskRepository
	breakers *breaker.Registry
	logger   logging.Logger
	opts     Options
}

func NewManager(repo repository.TaskRepository, logger logging.Logger, opts Options) *Manager {
	opts.applyDefaults()
	return &Manager{
		repo:     repo,
		breakers: breaker.NewRegistry(opts.BreakerFailureThreshold, opts.BreakerCooldown),
		logger:   logger,
		opts:     opts,
	}
}

// EnqueueTask inserts a pending task. An empty taskID gets a generated
// UUID. Returns the task ID, or repository.ErrDuplicateTask when the ID
// already exists (idempotent producers treat that as success).
func (m *Manager) EnqueueTask(taskID string, taskType string, taskData map[string]interface{}, priority int) (string, error) {
	if taskID == "" {
		taskID = uuid.NewString()
	}
	if taskData == nil {
		taskData = map[string]interface{}{}
	}

	task := &types.Task{
		TaskID:    taskID,
		TaskType:  taskType,
		TaskData:  taskData,
		Priority:  priority,
		Status:    types.TaskStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.repo.InsertTask(task); err != nil {
		return "", err
	}

	metrics.TasksEnqueuedTotal.WithLabelValues(taskType).Inc()
	m.logger.Debug("Task enqueued", "task_id", taskID, "task_type", taskType, "priority", priority)
	return taskID, nil
}

// DequeueTask claims the highest-priority oldest pending task whose type is
// in acceptedTypes and assigns it to workerID. Returns (nil, nil) when no
// eligible task exists or the worker's circuit breaker is open; both are
// normal steady states and callers poll with backoff externally.
func (m *Manager) DequeueTask(workerID string, acceptedTypes []string) (*types.Task, error) {
	if !m.breakers.Allow(workerID) {
		metrics.DequeueRejectedTotal.WithLabelValues(workerID).Inc()
		m.logger.Debug("Dequeue refused, circuit breaker open", "worker_id", workerID)
		return nil, nil
	}

	task, err := m.repo.ClaimNextTask(workerID, acceptedTypes)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}

	metrics.TasksDequeuedTotal.WithLabelValues(task.TaskType).Inc()
	m.logger.Debug("Task assigned", "task_id", task.TaskID, "worker_id", workerID)
	return task, nil
}

// CompleteTask transitions assigned -> completed after verifying workerID
// still holds the task, and records a success on the worker's breaker.
func (m *Manager) CompleteTask(taskID string, workerID string) error {
	if err := m.repo.CompleteTask(taskID, workerID); err != nil {
		return err
	}

	m.breakers.RecordSuccess(workerID)
	metrics.TasksCompletedTotal.Inc()
	metrics.BreakersOpen.Set(float64(m.breakers.OpenCount()))
	m.logger.Debug("Task completed", "task_id", taskID, "worker_id", workerID)
	return nil
}

// FailTask transitions assigned -> failed, records the error message,
// increments the retry count and registers one failure on the worker's
// breaker. The task stays failed until RetryFailedTask or
// EscalateToDeadLetter moves it on.
func (m *Manager) FailTask(taskID string, workerID string, errorMessage string) error {
	if err := m.repo.FailTask(taskID, workerID, errorMessage); err != nil {
		return err
	}

	m.breakers.RecordFailure(workerID)
	metrics.TasksFailedTotal.Inc()
	metrics.BreakersOpen.Set(float64(m.breakers.OpenCount()))
	m.logger.Warn("Task failed", "task_id", taskID, "worker_id", workerID, "error", errorMessage)
	return nil
}

// RetryFailedTask moves a failed task back to pending. The retry count is
// preserved, not reset.
func (m *Manager) RetryFailedTask(taskID string) error {
	if err := m.repo.RetryFailedTask(taskID); err != nil {
		return err
	}
	metrics.TasksRetriedTotal.Inc()
	m.logger.Info("Failed task requeued", "task_id", taskID)
	return nil
}

// EscalateToDeadLetter is the manual/operator transition failed -> dead_letter.
func (m *Manager) EscalateToDeadLetter(taskID string) error {
	if err := m.repo.EscalateToDeadLetter(taskID); err != nil {
		return err
	}
	m.logger.Warn("Task escalated to dead letter", "task_id", taskID)
	return nil
}

// RetryDeadLetterTask returns a dead-letter task to the pending queue.
func (m *Manager) RetryDeadLetterTask(taskID string) error {
	if err := m.repo.RetryDeadLetterTask(taskID); err != nil {
		return err
	}
	metrics.TasksRetriedTotal.Inc()
	m.logger.Info("Dead-letter task requeued", "task_id", taskID)
	return nil
}

// GetTask returns the current stored state of a task.
func (m *Manager) GetTask(taskID string) (*types.Task, error) {
	return m.repo.GetTaskByID(taskID)
}

// GetCircuitBreakerStatus returns the breaker view for one worker.
func (m *Manager) GetCircuitBreakerStatus(workerID string) types.CircuitBreakerStatus {
	return m.breakers.Status(workerID)
}

// ResetCircuitBreaker forces a worker's breaker closed with zero failures.
// Operator action for recovery after the underlying fault is fixed.
func (m *Manager) ResetCircuitBreaker(workerID string) {
	m.breakers.Reset(workerID)
	metrics.BreakersOpen.Set(float64(m.breakers.OpenCount()))
	m.logger.Info("Circuit breaker reset", "worker_id", workerID)
}

// GetQueueHealth reports per-status counts, the pending depth ratio and an
// overall healthy flag. Consumed by external monitoring, never by the
// queue itself.
func (m *Manager) GetQueueHealth() (*types.QueueHealth, error) {
	counts, err := m.repo.CountTasksByStatus()
	if err != nil {
		return nil, err
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	pending := counts[types.TaskStatusPending]
	failed := counts[types.TaskStatusFailed]
	depthRatio := float64(pending) / float64(m.opts.MaxQueueDepth)

	metrics.QueueDepth.Set(float64(pending))

	return &types.QueueHealth{
		StatusCounts: counts,
		TotalTasks:   total,
		DepthRatio:   depthRatio,
		Healthy:      depthRatio < 1.0 && failed < m.opts.MaxFailedTasks,
	}, nil
}

// GetQueueStats aggregates lifetime processing counters from the store.
func (m *Manager) GetQueueStats() (*types.QueueStats, error) {
	counts, err := m.repo.CountTasksByStatus()
	if err != nil {
		return nil, err
	}
	successful := counts[types.TaskStatusCompleted]
	failed := counts[types.TaskStatusFailed] + counts[types.TaskStatusDeadLetter]
	return &types.QueueStats{
		TotalProcessed:      successful + failed,
		SuccessfulProcessed: successful,
		FailedProcessed:     failed,
	}, nil
}

// CleanupOldTasks deletes completed and dead-letter tasks older than
// daysOld days. Pure maintenance; returns the number of rows removed.
func (m *Manager) CleanupOldTasks(daysOld int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld)
	removed, err := m.repo.CleanupOldTasks(cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		m.logger.Info("Old tasks cleaned up", "removed", removed, "days_old", daysOld)
	}
	return removed, nil
}

// ReclaimStaleAssignments requeues assigned tasks whose lease has expired
// (worker crashed without calling CompleteTask/FailTask). Each reclaimed
// task gets its retry count incremented.
func (m *Manager) ReclaimStaleAssignments(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	reclaimed, err := m.repo.ReclaimStaleAssignments(cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		metrics.StaleAssignmentsReclaimed.Add(float64(reclaimed))
		m.logger.Warn("Stale assignments reclaimed", "count", reclaimed, "older_than", olderThan)
	}
	return reclaimed, nil
}
