package repository

import "errors"

var (
	// ErrDuplicateTask is returned when enqueueing a task ID that already
	// exists. Idempotent producers may treat this as success.
	ErrDuplicateTask = errors.New("task with this ID already exists")

	// ErrTaskNotFound is returned when the referenced task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotTaskOwner is returned when a worker tries to complete or fail
	// a task held by a different worker. Callers must not retry blindly:
	// this signals a logic bug or a race with lease reclaim.
	ErrNotTaskOwner = errors.New("task is assigned to a different worker")

	// ErrInvalidTransition is returned when an operation does not apply to
	// the task's current status (e.g. retrying a completed task).
	ErrInvalidTransition = errors.New("task status does not permit this transition")
)
