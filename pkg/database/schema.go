package database

const tasksTableSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id         TEXT PRIMARY KEY,
	task_type       TEXT NOT NULL,
	task_data       TEXT NOT NULL DEFAULT '{}',
	priority        INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'pending',
	assigned_worker TEXT,
	retry_count     INTEGER NOT NULL DEFAULT 0,
	error_message   TEXT,
	created_at      TIMESTAMP NOT NULL,
	assigned_at     TIMESTAMP,
	completed_at    TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tasks_dequeue
	ON tasks (status, task_type, priority DESC, created_at ASC);

CREATE INDEX IF NOT EXISTS idx_tasks_status
	ON tasks (status);
`

// InitSchema creates the task table and its indexes if they do not exist.
func (c *Connection) InitSchema() error {
	_, err := c.db.Exec(tasksTableSchema)
	return err
}
