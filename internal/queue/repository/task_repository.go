package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atlashq/atlas/internal/queue/repository/queries"
	"github.com/atlashq/atlas/internal/queue/types"
	"github.com/atlashq/atlas/pkg/database"
)

type TaskRepository interface {
	InsertTask(task *types.Task) error
	GetTaskByID(taskID string) (*types.Task, error)
	ClaimNextTask(workerID string, acceptedTypes []string) (*types.Task, error)
	CompleteTask(taskID string, workerID string) error
	FailTask(taskID string, workerID string, errorMessage string) error
	RetryFailedTask(taskID string) error
	EscalateToDeadLetter(taskID string) error
	RetryDeadLetterTask(taskID string) error
	CountTasksByStatus() (map[types.TaskStatus]int, error)
	CleanupOldTasks(cutoff time.Time) (int64, error)
	ReclaimStaleAssignments(cutoff time.Time) (int64, error)
}

type taskRepository struct {
	db *database.Connection
}

func NewTaskRepository(db *database.Connection) TaskRepository {
	return &taskRepository{
		db: db,
	}
}

func (r *taskRepository) InsertTask(task *types.Task) error {
	payload, err := json.Marshal(task.TaskData)
	if err != nil {
		return fmt.Errorf("failed to encode task data: %w", err)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err = r.db.DB().Exec(queries.InsertTaskQuery,
		task.TaskID, task.TaskType, string(payload), task.Priority, task.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateTask
		}
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (r *taskRepository) GetTaskByID(taskID string) (*types.Task, error) {
	row := r.db.DB().QueryRow(queries.SelectTaskByIDQuery, taskID)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task: %w", err)
	}
	return task, nil
}

// ClaimNextTask atomically selects the highest-priority oldest pending task
// matching acceptedTypes and marks it assigned to workerID. Returns
// (nil, nil) when no eligible task exists; that is a normal steady state,
// not an error.
func (r *taskRepository) ClaimNextTask(workerID string, acceptedTypes []string) (*types.Task, error) {
	if len(acceptedTypes) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(acceptedTypes)), ",")
	selectQuery := fmt.Sprintf(queries.SelectNextPendingTaskQuery, placeholders)

	args := make([]interface{}, len(acceptedTypes))
	for i, t := range acceptedTypes {
		args[i] = t
	}

	// The select and the conditional update run in one transaction; the
	// update is keyed on status = pending so a racing worker's claim
	// makes RowsAffected report zero and we try the next candidate.
	for attempt := 0; attempt < 3; attempt++ {
		tx, err := r.db.DB().Begin()
		if err != nil {
			return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
		}

		row := tx.QueryRow(selectQuery, args...)
		task, err := scanTask(row)
		if err == sql.ErrNoRows {
			_ = tx.Rollback()
			return nil, nil
		}
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to select pending task: %w", err)
		}

		now := time.Now().UTC()
		res, err := tx.Exec(queries.ClaimTaskQuery, workerID, now, task.TaskID)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to claim task %s: %w", task.TaskID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if affected == 0 {
			// Lost the race for this task
			_ = tx.Rollback()
			continue
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit claim: %w", err)
		}

		task.Status = types.TaskStatusAssigned
		task.AssignedWorker = workerID
		task.AssignedAt = &now
		return task, nil
	}

	return nil, nil
}

func (r *taskRepository) CompleteTask(taskID string, workerID string) error {
	now := time.Now().UTC()
	res, err := r.db.DB().Exec(queries.CompleteTaskQuery, now, taskID, workerID)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return r.checkMutation(res, taskID, workerID)
}

func (r *taskRepository) FailTask(taskID string, workerID string, errorMessage string) error {
	res, err := r.db.DB().Exec(queries.FailTaskQuery, errorMessage, taskID, workerID)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	return r.checkMutation(res, taskID, workerID)
}

// checkMutation classifies a zero-row conditional update into the error the
// caller must see: missing task, ownership violation, or bad status.
func (r *taskRepository) checkMutation(res sql.Result, taskID, workerID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var status, owner string
	err = r.db.DB().QueryRow(queries.SelectTaskOwnershipQuery, taskID).Scan(&status, &owner)
	if err == sql.ErrNoRows {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to inspect task %s: %w", taskID, err)
	}
	if types.TaskStatus(status) == types.TaskStatusAssigned && owner != workerID {
		return fmt.Errorf("%w: task %s held by %q", ErrNotTaskOwner, taskID, owner)
	}
	return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, taskID, status)
}

func (r *taskRepository) RetryFailedTask(taskID string) error {
	return r.transition(queries.RetryFailedTaskQuery, taskID)
}

func (r *taskRepository) EscalateToDeadLetter(taskID string) error {
	return r.transition(queries.EscalateTaskQuery, taskID)
}

func (r *taskRepository) RetryDeadLetterTask(taskID string) error {
	return r.transition(queries.RetryDeadLetterTaskQuery, taskID)
}

func (r *taskRepository) transition(query string, taskID string) error {
	res, err := r.db.DB().Exec(query, taskID)
	if err != nil {
		return fmt.Errorf("failed to transition task %s: %w", taskID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var status, owner string
	err = r.db.DB().QueryRow(queries.SelectTaskOwnershipQuery, taskID).Scan(&status, &owner)
	if err == sql.ErrNoRows {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to inspect task %s: %w", taskID, err)
	}
	return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, taskID, status)
}

func (r *taskRepository) CountTasksByStatus() (map[types.TaskStatus]int, error) {
	rows, err := r.db.DB().Query(queries.CountTasksByStatusQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.TaskStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[types.TaskStatus(status)] = count
	}
	return counts, rows.Err()
}

func (r *taskRepository) CleanupOldTasks(cutoff time.Time) (int64, error) {
	res, err := r.db.DB().Exec(queries.CleanupOldTasksQuery, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up completed tasks: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	// Dead-letter tasks never get completed_at; age them on created_at.
	res, err = r.db.DB().Exec(queries.CleanupOldDeadLetterQuery, cutoff)
	if err != nil {
		return removed, fmt.Errorf("failed to clean up dead-letter tasks: %w", err)
	}
	dlRemoved, err := res.RowsAffected()
	if err != nil {
		return removed, err
	}
	return removed + dlRemoved, nil
}

func (r *taskRepository) ReclaimStaleAssignments(cutoff time.Time) (int64, error) {
	res, err := r.db.DB().Exec(queries.ReclaimStaleAssignmentsQuery, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale assignments: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*types.Task, error) {
	var task types.Task
	var payload string
	var assignedWorker, errorMessage sql.NullString
	var assignedAt, completedAt sql.NullTime

	err := row.Scan(&task.TaskID, &task.TaskType, &payload, &task.Priority,
		&task.Status, &assignedWorker, &task.RetryCount, &errorMessage,
		&task.CreatedAt, &assignedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(payload), &task.TaskData); err != nil {
		return nil, fmt.Errorf("corrupt task data for %s: %w", task.TaskID, err)
	}
	if assignedWorker.Valid {
		task.AssignedWorker = assignedWorker.String
	}
	if errorMessage.Valid {
		task.ErrorMessage = errorMessage.String
	}
	if assignedAt.Valid {
		t := assignedAt.Time
		task.AssignedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	return &task, nil
}
