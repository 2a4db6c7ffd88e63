package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"clinic-sync/core/source"
	"clinic-sync/core/tasks"
)

// Service owns the lifecycle of reconciliation runs: it books them into the
// task registry, executes them in the background and reports their outcome.
type Service struct {
	reconciler *Reconciler
	registry   *tasks.Registry
	source     source.Client
	logger     *zap.Logger

	defaultTypeID int
}

// NewService creates the run service.
func NewService(reconciler *Reconciler, registry *tasks.Registry, src source.Client, defaultTypeID int, logger *zap.Logger) *Service {
	return &Service{
		reconciler:    reconciler,
		registry:      registry,
		source:        src,
		logger:        logger,
		defaultTypeID: defaultTypeID,
	}
}

// DefaultTypeID is the appointment type used when a trigger does not name one.
func (s *Service) DefaultTypeID() int { return s.defaultTypeID }

// Trigger books a run for the date and executes it in the background.
// Returns tasks.ErrAlreadyRunning (wrapped) when the date is in flight.
func (s *Service) Trigger(date time.Time, typeID int, patientCode string) (tasks.Task, error) {
	if typeID == 0 {
		typeID = s.defaultTypeID
	}
	t, err := s.registry.Begin(date, typeID, patientCode)
	if err != nil {
		return tasks.Task{}, err
	}

	go s.execute(t, date, typeID, patientCode)
	return *t, nil
}

// VerifyPatient checks that the Source knows the patient code before a
// single-patient run is booked.
func (s *Service) VerifyPatient(ctx context.Context, code string) error {
	_, err := s.source.GetPatient(ctx, code)
	return err
}

// RunScheduled synchronizes one day on behalf of the scheduler. It runs
// synchronously so the scheduler can back off on failure. A date already in
// flight is not an error; the running task covers it.
func (s *Service) RunScheduled(ctx context.Context, day time.Time) error {
	t, err := s.registry.Begin(day, s.defaultTypeID, "")
	if errors.Is(err, tasks.ErrAlreadyRunning) {
		s.logger.Info("scheduled run skipped, date already in flight", zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	s.registry.Start(t.ID)
	result, err := s.reconciler.Run(t.Context(), day, s.defaultTypeID, Scope{})
	if err != nil {
		s.registry.Fail(t.ID, err)
		return fmt.Errorf("sync: scheduled run %s: %w", t.ID, err)
	}
	s.registry.Complete(t.ID, result)
	return nil
}

func (s *Service) execute(t *tasks.Task, date time.Time, typeID int, patientCode string) {
	s.registry.Start(t.ID)

	result, err := s.reconciler.Run(t.Context(), date, typeID, Scope{PatientCode: patientCode})
	if err != nil {
		s.logger.Error("reconciliation run failed",
			zap.String("task_id", t.ID),
			zap.Error(err))
		s.registry.Fail(t.ID, err)
		return
	}
	s.registry.Complete(t.ID, result)
}
