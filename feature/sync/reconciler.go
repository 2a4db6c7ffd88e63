package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"clinic-sync/core/source"
	"clinic-sync/core/store"
	"clinic-sync/feature/patients"
)

// Clock supplies the wall clock for the future-date checks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Reconciler drives one-way synchronization: Source appointments are the
// target state, Store examination rows are made to match. Patient rows are
// only ever created, examination rows are created, updated and (for future
// days) deleted.
type Reconciler struct {
	source  source.Client
	store   store.Client
	archive patients.Archive
	log     *zap.Logger
	clock   Clock
}

// NewReconciler wires the reconciliation engine.
func NewReconciler(src source.Client, st store.Client, archive patients.Archive, log *zap.Logger) *Reconciler {
	return &Reconciler{
		source:  src,
		store:   st,
		archive: archive,
		log:     log,
		clock:   systemClock{},
	}
}

// Run reconciles one day. typeID narrows the run to the examination type
// claiming that source code; zero covers every mapped type. A failure to
// fetch either side is fatal to the run; anything that goes wrong with a
// single appointment is counted and reported in the result instead.
func (r *Reconciler) Run(ctx context.Context, day time.Time, typeID int, scope Scope) (*RunResult, error) {
	day = dateOnly(day)
	now := r.clock.Now()
	futureDay := day.After(dateOnly(now))
	dayKey := store.FormatDate(day)

	result := &RunResult{Date: day.Format("2006-01-02"), TypeID: typeID}

	mapper := NewTypeMapper(r.store)
	if err := mapper.Load(ctx); err != nil {
		return nil, err
	}
	resolver := patients.NewResolver(r.store, r.archive, r.log)

	// Future days only ever hold plain bookings; past and current days carry
	// workflow statuses the filter must not hide.
	status := ""
	if futureDay {
		status = "created"
	}

	// The run covers whole examination types. Scoping by one source code
	// still pulls every sibling code its examination type claims, so the
	// deletion sweep below never judges a row whose appointments were not
	// fetched.
	codes, sweepTypes := runScope(mapper, typeID)

	var appointments []source.Appointment
	for _, code := range codes {
		batch, err := r.source.SearchAppointments(ctx, source.SearchQuery{
			Date:   day,
			TypeID: code,
			Status: status,
		})
		if err != nil {
			return nil, fmt.Errorf("sync: fetch appointments: %w", err)
		}
		for _, appt := range batch {
			// The Source search filters by type server-side, but stale
			// caches upstream have returned foreign types before.
			if appt.TypeID != code || !appt.Active() {
				continue
			}
			appointments = append(appointments, appt)
		}
	}

	existing, err := r.store.QueryExaminationsByDate(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("sync: fetch examinations: %w", err)
	}
	existingByFP := make(map[string]store.Examination, len(existing))
	for _, row := range existing {
		existingByFP[examinationFingerprint(row)] = row
	}

	seen := make(map[string]bool)
	for _, appt := range appointments {
		if !scope.WholeDay() && appt.PatientCode != "" && appt.PatientCode != scope.PatientCode {
			continue
		}
		result.Considered++

		item := r.reconcileAppointment(ctx, appt, dayKey, scope, mapper, resolver, existingByFP, seen)
		result.Items = append(result.Items, item)
		switch item.Action {
		case ActionInserted:
			result.Inserted++
		case ActionUpdated:
			result.Updated++
		case ActionExists:
			result.Existing++
		case ActionUnmapped:
			result.Unmapped++
		case ActionUnresolved:
			result.Unresolved++
		case ActionFailed:
			result.Failed++
		case ActionOutOfScope:
			result.Considered--
		}
	}

	// Rows nothing in the Source accounts for anymore. Deletion is allowed
	// only for whole-day runs on strictly future days; today's rows may
	// already carry documentation and are left alone.
	allowDelete := scope.WholeDay()
	for fp, row := range existingByFP {
		if seen[fp] {
			continue
		}
		// Rows of examination types outside the run may be backed by live
		// appointments this run never fetched. Leave them alone.
		if !sweepTypes[row.ExaminationTypeID] {
			continue
		}
		if !allowDelete {
			continue
		}
		if !futureDay {
			result.Items = append(result.Items, Item{
				ExaminationID: row.ExaminationID,
				Action:        ActionDeleteSkipped,
				Detail:        "target date is not in the future",
			})
			continue
		}
		if err := r.store.DeleteExamination(ctx, row.ExaminationID); err != nil {
			result.Failed++
			result.Items = append(result.Items, Item{
				ExaminationID: row.ExaminationID,
				Action:        ActionFailed,
				Detail:        err.Error(),
			})
			continue
		}
		result.Deleted++
		result.Items = append(result.Items, Item{
			ExaminationID: row.ExaminationID,
			Action:        ActionDeleted,
		})
	}

	r.log.Info("reconciliation finished",
		zap.String("date", result.Date),
		zap.Int("considered", result.Considered),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("deleted", result.Deleted),
		zap.Int("unmapped", result.Unmapped),
		zap.Int("unresolved", result.Unresolved),
		zap.Int("failed", result.Failed))
	return result, nil
}

// runScope resolves the requested source code into the codes to fetch and
// the examination types the deletion sweep may touch. An unmapped typeID
// fetches just that code, so its appointments still surface as unmapped
// items, and sweeps nothing.
func runScope(mapper *TypeMapper, typeID int) ([]int, map[int]bool) {
	if typeID == 0 {
		return mapper.AllCodes(), mapper.StoreTypeSet()
	}
	st, ok := mapper.StoreType(typeID)
	if !ok {
		return []int{typeID}, map[int]bool{}
	}
	return mapper.CodesFor(st), map[int]bool{st: true}
}

func (r *Reconciler) reconcileAppointment(
	ctx context.Context,
	appt source.Appointment,
	dayKey string,
	scope Scope,
	mapper *TypeMapper,
	resolver *patients.Resolver,
	existingByFP map[string]store.Examination,
	seen map[string]bool,
) Item {
	item := Item{AppointmentID: appt.ID, PatientCode: appt.PatientCode}

	storeType, ok := mapper.StoreType(appt.TypeID)
	if !ok {
		item.Action = ActionUnmapped
		item.Detail = fmt.Sprintf("no examination type claims source code %d", appt.TypeID)
		return item
	}

	startAt, err := appt.StartTime()
	if err != nil {
		item.Action = ActionFailed
		item.Detail = fmt.Sprintf("bad scheduled time: %v", err)
		return item
	}

	identity, method, err := resolver.Resolve(ctx, appt)
	if err != nil {
		if errors.Is(err, patients.ErrUnresolvable) {
			item.Action = ActionUnresolved
		} else {
			item.Action = ActionFailed
		}
		item.Detail = err.Error()
		return item
	}
	item.PatientCode = identity.Code
	item.Method = string(method)

	// The appointment filter above only catches appointments that carry
	// the code; this check is the actual safety boundary for scoped runs.
	if !scope.WholeDay() && identity.Code != scope.PatientCode {
		item.Action = ActionOutOfScope
		return item
	}

	fp := fingerprint(dayKey, identity.PatientID, appt.DoctorID, appt.RoomID, storeType)
	seen[fp] = true

	if row, ok := existingByFP[fp]; ok {
		timeOfDay := startAt.Format("15:04")
		if row.Time == timeOfDay && row.Notes == appt.Notes {
			item.Action = ActionExists
			return item
		}
		if err := r.store.UpdateExamination(ctx, row.ExaminationID, timeOfDay, appt.Notes); err != nil {
			item.Action = ActionFailed
			item.Detail = err.Error()
			return item
		}
		item.ExaminationID = row.ExaminationID
		item.Action = ActionUpdated
		return item
	}

	err = r.store.InsertExamination(ctx, store.Examination{
		Date:              dayKey,
		Time:              startAt.Format("15:04"),
		PatientID:         identity.PatientID,
		ExaminationTypeID: storeType,
		ExaminerBillingID: appt.DoctorID,
		RoomID:            appt.RoomID,
		Notes:             appt.Notes,
	})
	if err != nil {
		item.Action = ActionFailed
		item.Detail = err.Error()
		return item
	}
	item.Action = ActionInserted
	return item
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
