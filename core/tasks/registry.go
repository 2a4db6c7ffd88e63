package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned when a trigger collides with an in-flight
// run for the same date (or date/patient pair).
var ErrAlreadyRunning = errors.New("tasks: a run for this date is already in flight")

// ErrNotFound is returned for unknown or already swept task ids.
var ErrNotFound = errors.New("tasks: task not found")

// ErrFinished is returned when cancelling a task that already ended.
var ErrFinished = errors.New("tasks: task already finished")

// Recorder persists finished runs. Implementations must not block the
// registry for long; recording failures are the implementation's problem.
type Recorder interface {
	RecordFinished(t Task)
}

// Registry owns the task table.
type Registry struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	retention time.Duration
	recorder  Recorder
	log       *zap.Logger
	now       func() time.Time
}

// NewRegistry creates a registry. recorder may be nil when no run history
// database is configured.
func NewRegistry(retention time.Duration, recorder Recorder, log *zap.Logger) *Registry {
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	return &Registry{
		tasks:     make(map[string]*Task),
		retention: retention,
		recorder:  recorder,
		log:       log,
		now:       time.Now,
	}
}

// Begin registers a new pending task for the date. patientCode narrows the
// run to one patient; empty means the whole day. Returns ErrAlreadyRunning
// (wrapped, with the blocking task id) when the date is already in flight.
func (r *Registry) Begin(date time.Time, typeID int, patientCode string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	day := date.Format("2006-01-02")
	for _, t := range r.tasks {
		if t.Status.Finished() || t.Date != day {
			continue
		}
		// A whole-day run covers every patient of that day, so it conflicts
		// with any scope. Two patient runs only conflict on the same patient.
		if t.PatientCode == "" || patientCode == "" || t.PatientCode == patientCode {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, t.ID)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		ID:          newTaskID(day, typeID, patientCode, r.now()),
		Date:        day,
		TypeID:      typeID,
		PatientCode: patientCode,
		Status:      StatusPending,
		CreatedAt:   r.now(),
		ctx:         ctx,
		cancel:      cancel,
	}
	r.tasks[t.ID] = t
	r.log.Info("sync task registered",
		zap.String("task_id", t.ID),
		zap.String("date", day),
		zap.String("patient_code", patientCode))
	return t, nil
}

// Start marks the task running.
func (r *Registry) Start(id string) {
	r.transition(id, func(t *Task) {
		if t.Status != StatusPending {
			return
		}
		t.Status = StatusRunning
		t.StartedAt = r.now()
	})
}

// Complete marks the task finished with its result.
func (r *Registry) Complete(id string, result any) {
	r.finish(id, func(t *Task) {
		t.Status = StatusCompleted
		t.Result = result
	})
}

// Fail marks the task failed.
func (r *Registry) Fail(id string, err error) {
	r.finish(id, func(t *Task) {
		t.Status = StatusFailed
		t.Error = err.Error()
	})
}

// Cancel requests cancellation. Pending tasks end immediately; running tasks
// get their context cancelled and keep running until the runner notices, but
// report cancelled from now on.
func (r *Registry) Cancel(id string) error {
	var rec *Task
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if t.Status.Finished() {
		r.mu.Unlock()
		return ErrFinished
	}
	t.cancel()
	t.Status = StatusCancelled
	t.FinishedAt = r.now()
	snapshot := *t
	rec = &snapshot
	r.mu.Unlock()

	r.log.Info("sync task cancelled", zap.String("task_id", id))
	r.record(rec)
	return nil
}

// Get returns a snapshot of the task.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	t, ok := r.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return *t, nil
}

// Active returns snapshots of all unfinished tasks.
func (r *Registry) Active() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	var out []Task
	for _, t := range r.tasks {
		if !t.Status.Finished() {
			out = append(out, *t)
		}
	}
	return out
}

func (r *Registry) transition(id string, fn func(*Task)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		fn(t)
	}
}

func (r *Registry) finish(id string, fn func(*Task)) {
	var rec *Task
	r.mu.Lock()
	t, ok := r.tasks[id]
	if ok && !t.Status.Finished() {
		fn(t)
		t.FinishedAt = r.now()
		t.cancel()
		snapshot := *t
		rec = &snapshot
	}
	r.mu.Unlock()

	if rec != nil {
		r.record(rec)
	}
}

func (r *Registry) record(t *Task) {
	if r.recorder == nil || t == nil {
		return
	}
	r.recorder.RecordFinished(*t)
}

// sweepLocked drops finished tasks past their retention. Callers hold mu.
func (r *Registry) sweepLocked() {
	cutoff := r.now().Add(-r.retention)
	for id, t := range r.tasks {
		if t.Status.Finished() && t.FinishedAt.Before(cutoff) {
			delete(r.tasks, id)
		}
	}
}

func newTaskID(day string, typeID int, patientCode string, now time.Time) string {
	ts := now.Format("20060102150405")
	suffix := strings.Split(uuid.NewString(), "-")[0]
	if patientCode != "" {
		return fmt.Sprintf("sync_patient_%s_%s_%s_%s", patientCode, day, ts, suffix)
	}
	return fmt.Sprintf("sync_%s_%d_%s_%s", day, typeID, ts, suffix)
}
