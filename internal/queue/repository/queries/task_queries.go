package queries

const (
	InsertTaskQuery = `
		INSERT INTO tasks (task_id, task_type, task_data, priority, status, retry_count, created_at)
		VALUES (?, ?, ?, ?, 'pending', 0, ?)`

	SelectTaskByIDQuery = `
		SELECT task_id, task_type, task_data, priority, status, assigned_worker,
		       retry_count, error_message, created_at, assigned_at, completed_at
		FROM tasks WHERE task_id = ?`

	SelectNextPendingTaskQuery = `
		SELECT task_id, task_type, task_data, priority, status, assigned_worker,
		       retry_count, error_message, created_at, assigned_at, completed_at
		FROM tasks
		WHERE status = 'pending' AND task_type IN (%s)
		ORDER BY priority DESC, created_at ASC
		LIMIT 1`

	ClaimTaskQuery = `
		UPDATE tasks
		SET status = 'assigned', assigned_worker = ?, assigned_at = ?
		WHERE task_id = ? AND status = 'pending'`

	SelectTaskOwnershipQuery = `
		SELECT status, COALESCE(assigned_worker, '') FROM tasks WHERE task_id = ?`

	CompleteTaskQuery = `
		UPDATE tasks
		SET status = 'completed', assigned_worker = NULL, completed_at = ?
		WHERE task_id = ? AND status = 'assigned' AND assigned_worker = ?`

	FailTaskQuery = `
		UPDATE tasks
		SET status = 'failed', assigned_worker = NULL, error_message = ?,
		    retry_count = retry_count + 1
		WHERE task_id = ? AND status = 'assigned' AND assigned_worker = ?`

	RetryFailedTaskQuery = `
		UPDATE tasks
		SET status = 'pending', assigned_worker = NULL, assigned_at = NULL
		WHERE task_id = ? AND status = 'failed'`

	EscalateTaskQuery = `
		UPDATE tasks
		SET status = 'dead_letter'
		WHERE task_id = ? AND status = 'failed'`

	RetryDeadLetterTaskQuery = `
		UPDATE tasks
		SET status = 'pending', assigned_worker = NULL, assigned_at = NULL
		WHERE task_id = ? AND status = 'dead_letter'`

	CountTasksByStatusQuery = `
		SELECT status, COUNT(*) FROM tasks GROUP BY status`

	CleanupOldTasksQuery = `
		DELETE FROM tasks
		WHERE status = 'completed' AND completed_at IS NOT NULL AND completed_at < ?`

	CleanupOldDeadLetterQuery = `
		DELETE FROM tasks
		WHERE status = 'dead_letter' AND created_at < ?`

	ReclaimStaleAssignmentsQuery = `
		UPDATE tasks
		SET status = 'pending', assigned_worker = NULL, assigned_at = NULL,
		    retry_count = retry_count + 1,
		    error_message = 'reclaimed: lease expired'
		WHERE status = 'assigned' AND assigned_at IS NOT NULL AND assigned_at < ?`
)
