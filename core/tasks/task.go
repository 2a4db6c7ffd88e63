package tasks

import (
	"context"
	"time"
)

// Status is the lifecycle state of a synchronization task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is one synchronization run. Fields are owned by the registry; readers
// get defensive snapshots.
type Task struct {
	ID          string    `json:"task_id"`
	Date        string    `json:"date"` // YYYY-MM-DD
	TypeID      int       `json:"appointment_type_id"`
	PatientCode string    `json:"patient_code,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	Result      any       `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`

	ctx    context.Context
	cancel context.CancelFunc
}

// Context is cancelled when the task is cancelled; runners must watch it.
func (t *Task) Context() context.Context {
	return t.ctx
}
