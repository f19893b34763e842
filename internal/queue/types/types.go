package types

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusDeadLetter TaskStatus = "dead_letter"
)

// IsTerminal reports whether the status admits no further automatic
// transitions. Dead-letter tasks can still be retried manually.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusDeadLetter
}

// Task is a unit of work in the queue. Exactly one worker holds a task at a
// time: AssignedWorker is set iff Status == assigned.
type Task struct {
	TaskID         string                 `json:"task_id"`
	TaskType       string                 `json:"task_type"`
	TaskData       map[string]interface{} `json:"task_data"`
	Priority       int                    `json:"priority"`
	Status         TaskStatus             `json:"status"`
	AssignedWorker string                 `json:"assigned_worker,omitempty"`
	RetryCount     int                    `json:"retry_count"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	AssignedAt     *time.Time             `json:"assigned_at,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}

// CircuitBreakerStatus is the inspection view of one worker's breaker.
type CircuitBreakerStatus struct {
	WorkerID     string     `json:"worker_id"`
	State        string     `json:"state"`
	FailureCount int        `json:"failure_count"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}

// QueueHealth is the report returned by GetQueueHealth, consumed by
// external monitoring.
type QueueHealth struct {
	StatusCounts map[TaskStatus]int `json:"status_counts"`
	TotalTasks   int                `json:"total_tasks"`
	DepthRatio   float64            `json:"depth_ratio"`
	Healthy      bool               `json:"healthy"`
}

// QueueStats aggregates lifetime processing counters.
type QueueStats struct {
	TotalProcessed      int `json:"total_processed"`
	SuccessfulProcessed int `json:"successful_processed"`
	FailedProcessed     int `json:"failed_processed"`
}
