package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clinic-sync/core/source"
	sourcemocks "clinic-sync/core/source/mocks"
	"clinic-sync/core/store"
	storemocks "clinic-sync/core/store/mocks"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type noArchive struct{}

func (noArchive) CodeByInsuranceNumber(ctx context.Context, n string) (string, bool, error) {
	return "", false, nil
}

func (noArchive) CodeBySurnameAndBirthDate(ctx context.Context, s, b string) (string, bool, error) {
	return "", false, nil
}

var (
	targetDay = time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)
	// Monday before the target date; the target is strictly in the future.
	runClock = fixedClock{at: time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)}
)

func mappingTypes() []store.ExaminationType {
	return []store.ExaminationType{
		{ExaminationTypeID: 5, Name: "Echo", ExternalCodes: []int{24, 31}},
	}
}

func appointment(id int, code, startTime string) source.Appointment {
	return source.Appointment{
		ID:           id,
		TypeID:       24,
		ScheduledFor: "2025-08-20T" + startTime + ":00",
		DoctorID:     3,
		RoomID:       2,
		Status:       "created",
		PatientCode:  code,
	}
}

func knownPatient(st *storemocks.Client, code string, id int) {
	st.On("QueryPatientByCode", mock.Anything, code).
		Return(&store.Patient{PatientID: id, Code: code}, nil)
}

func newTestReconciler(src source.Client, st store.Client) *Reconciler {
	r := NewReconciler(src, st, noArchive{}, zap.NewNop())
	r.clock = runClock
	return r
}

func TestRunInsertsUpdatesAndDeletes(t *testing.T) {
	src := &sourcemocks.Client{}
	st := &storemocks.Client{}

	st.On("LoadExaminationTypes", mock.Anything).Return(mappingTypes(), nil)

	// Future date: only plain bookings are fetched.
	src.On("SearchAppointments", mock.Anything, source.SearchQuery{
		Date: targetDay, TypeID: 24, Status: "created",
	}).Return([]source.Appointment{
		appointment(1, "0001111", "09:00"),
		appointment(2, "0002222", "10:00"),
		appointment(3, "0003333", "11:00"),
		{ID: 4, TypeID: 24, ScheduledFor: "2025-08-20T12:00:00", Status: "canceled", PatientCode: "0004444"},
	}, nil)
	// Type 5 also claims code 31; the run fetches it before sweeping.
	src.On("SearchAppointments", mock.Anything, source.SearchQuery{
		Date: targetDay, TypeID: 31, Status: "created",
	}).Return([]source.Appointment{}, nil)

	st.On("QueryExaminationsByDate", mock.Anything, targetDay).Return([]store.Examination{
		// Matches appointment 1 exactly.
		{ExaminationID: 100, Date: "20.08.2025", Time: "09:00", PatientID: 11, ExaminationTypeID: 5, ExaminerBillingID: 3, RoomID: 2},
		// Orphan: its appointment disappeared upstream.
		{ExaminationID: 101, Date: "20.08.2025", Time: "14:00", PatientID: 99, ExaminationTypeID: 5, ExaminerBillingID: 3, RoomID: 2},
	}, nil)

	knownPatient(st, "0001111", 11)
	knownPatient(st, "0002222", 22)
	knownPatient(st, "0003333", 33)

	st.On("InsertExamination", mock.Anything, mock.MatchedBy(func(e store.Examination) bool {
		return e.PatientID == 22 && e.Time == "10:00" && e.Date == "20.08.2025"
	})).Return(nil).Once()
	st.On("InsertExamination", mock.Anything, mock.MatchedBy(func(e store.Examination) bool {
		return e.PatientID == 33 && e.Time == "11:00"
	})).Return(nil).Once()
	st.On("DeleteExamination", mock.Anything, 101).Return(nil).Once()

	result, err := newTestReconciler(src, st).Run(context.Background(), targetDay, 24, Scope{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Considered, "cancelled appointment does not count")
	assert.Equal(t, 1, result.Existing)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Deleted)
	assert.Zero(t, result.Updated)
	assert.Zero(t, result.Failed)
	st.AssertExpectations(t)
	src.AssertExpectations(t)
}

func TestRunIsIdempotent(t *testing.T) {
	src := &sourcemocks.Client{}
	st := &storemocks.Client{}

	st.On("LoadExaminationTypes", mock.Anything).Return(mappingTypes(), nil)
	src.On("SearchAppointments", mock.Anything, mock.Anything).
		Return([]source.Appointment{appointment(1, "0001111", "09:00")}, nil)
	st.On("QueryExaminationsByDate", mock.Anything, targetDay).Return([]store.Examination{
		{ExaminationID: 100, Date: "20.08.2025", Time: "09:00", PatientID: 11, ExaminationTypeID: 5, ExaminerBillingID: 3, RoomID: 2},
	}, nil)
	knownPatient(st, "0001111", 11)

	r := newTestReconciler(src, st)
	for i := 0; i < 2; i++ {
		result, err := r.Run(context.Background(), targetDay, 24, Scope{})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Existing)
		assert.Zero(t, result.Inserted+result.Updated+result.Deleted+result.Failed)
	}
	st.AssertNotCalled(t, "InsertExamination", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "DeleteExamination", mock.Anything, mock.Anything)
}

func TestRunUpdatesMutableFieldsInPlace(t *testing.T) {
	src := &sourcemocks.Client{}
	st := &storemocks.Client{}

	st.On("LoadExaminationTypes", mock.Anything).Return(mappingTypes(), nil)
	// Same clinical event, moved from 09:00 to 09:30.
	src.On("SearchAppointments", mock.Anything, mock.Anything).
		Return([]source.Appointment{appointment(1, "0001111", "09:30")}, nil)
	st.On("QueryExaminationsByDate", mock.Anything, targetDay).Return([]store.Examination{
		{ExaminationID: 100, Date: "20.08.2025", Time: "09:00", PatientID: 11, ExaminationTypeID: 5, ExaminerBillingID: 3, RoomID: 2},
	}, nil)
	knownPatient(st, "0001111", 11)
	st.On("UpdateExamination", mock.Anything, 100, "09:30", "").Return(nil).Once()

	result, err := newTestReconciler(src, st).Run(context.Background(), targetDay, 24, Scope{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated, "time change must update in place, not delete and reinsert")
	assert.Zero(t, result.Inserted)
	assert.Zero(t, result.Deleted)
	st.AssertExpectations(t)
	st.AssertNotCalled(t, "DeleteExamination", mock.Anything, mock.Anything)
}

func TestRunNeverDeletesOnPastOrCurrentDates(t *testing.T) {
	for name, day := range map[string]time.Time{
		"today":     runClock.at.Truncate(24 * time.Hour),
		"yesterday": targetDay.AddDate(0, 0, -3),
	} {
		t.Run(name, func(t *testing.T) {
			src := &sourcemocks.Client{}
			st := &storemocks.Client{}

			st.On("LoadExaminationTypes", mock.Anything).Return(mappingTypes(), nil)
			// Not a future date: all statuses are fetched.
			src.On("SearchAppointments", mock.Anything, mock.MatchedBy(func(q source.SearchQuery) bool {
				return q.Status == ""
			})).Return([]source.Appointment{}, nil)
			st.On("QueryExaminationsByDate", mock.Anything, mock.Anything).Return([]store.Examination{
				{ExaminationID: 100, Date: store.FormatDate(day), Time: "09:00", PatientID: 11, ExaminationTypeID: 5, ExaminerBillingID: 3, RoomID: 2},
			}, nil)

			result, err := newTestReconciler(src, st).Run(context.Background(), day, 24, Scope{})
			require.NoError(t, err)

			assert.Zero(t, result.Deleted)
			st.AssertNotCalled(t, "DeleteExamination", mock.Anything, mock.Anything)
			require.Len(t, result.Items, 1)
			assert.Equal(t, ActionDeleteSkipped, result.Items[0].Action)
		})
	}
}

func TestSinglePatientRunNeverDeletesOrTouchesOthers(t *testing.T) {
	src := &sourcemocks.Client{}
	st := &storemocks.Client{}

	st.On("LoadExaminationTypes", mock.Anything).Return(mappingTypes(), nil)
	src.On("SearchAppointments", mock.Anything, mock.Anything).Return([]source.Appointment{
		appointment(1, "0001111", "09:00"), // the scoped patient, new examination
		appointment(2, "0002222", "10:00"), // someone else entirely
	}, nil)
	st.On("QueryExaminationsByDate", mock.Anything, targetDay).Return([]store.Examination{
		// Another patient's orphan row; a whole-day run would delete it.
		{ExaminationID: 101, Date: "20.08.2025", Time: "14:00", PatientID: 99, ExaminationTypeID: 5, ExaminerBillingID: 3, RoomID: 2},
	}, nil)
	knownPatient(st, "0001111", 11)
	st.On("InsertExamination", mock.Anything, mock.MatchedBy(func(e store.Examination) bool {
		return e.PatientID == 11
	})).Return(nil).Once()

	result, err := newTestReconciler(src, st).Run(context.Background(), targetDay, 24, Scope{PatientCode: "0001111"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Considered)
	assert.Equal(t, 1, result.Inserted)
	assert.Zero(t, result.Deleted)
	st.AssertNotCalled(t, "DeleteExamination", mock.Anything, mock.Anything)
	// The other patient's identity was never even resolved.
	st.AssertNotCalled(t, "QueryPatientByCode", mock.Anything, "0002222")
	st.AssertExpectations(t)
}

func TestSinglePatientScopeChecksResolvedIdentity(t *testing.T) {
	src := &sourcemocks.Client{}
	st := &storemocks.Client{}

	st.On("LoadExaminationTypes", mock.Anything).Return(mappingTypes(), nil)
	// The appointment carries no code; resolution reveals a different patient.
	appt := appointment(1, "", "09:00")
	appt.InsuranceNumber = "Z761613259"
	src.On("SearchAppointments", mock.Anything, mock.Anything).
		Return([]source.Appointment{appt}, nil)
	st.On("QueryExaminationsByDate", mock.Anything, targetDay).Return([]store.Examination{}, nil)

	archive := archiveWith("Z761613259", "0009999")
	knownPatient(st, "0009999", 99)

	r := NewReconciler(src, st, archive, zap.NewNop())
	r.clock = runClock
	result, err := r.Run(context.Background(), targetDay, 24, Scope{PatientCode: "0001111"})
	require.NoError(t, err)

	assert.Zero(t, result.Inserted, "a row for another patient must never be written")
	st.AssertNotCalled(t, "InsertExamination", mock.Anything, mock.Anything)
	require.NotEmpty(t, result.Items)
	assert.Equal(t, ActionOutOfScope, result.Items[0].Action)
}

type mapArchive struct {
	byInsurance map[string]string
}

func archiveWith(insurance, code string) mapArchive {
	return mapArchive{byInsurance: map[string]string{insurance: code}}
}

func (a mapArchive) CodeByInsuranceNumber(ctx context.Context, n string) (string, bool, error) {
	code, ok := a.byInsurance[n]
	return code, ok, nil
}

func (a mapArchive) CodeBySurnameAndBirthDate(ctx context.Context, s, b string) (string, bool, error) {
	return "", false, nil
}

func TestRunReconcilesAllMappedTypes(t *testing.T) {
	src := &sourcemocks.Client{}
	st := &storemocks.Client{}

	st.On("LoadExaminationTypes", mock.Anything).Return([]store.ExaminationType{
		{ExaminationTypeID: 5, Name: "Echo", ExternalCodes: []int{24}},
		{ExaminationTypeID: 7, Name: "MRT", ExternalCodes: []int{13}},
	}, nil)
	src.On("SearchAppointments", mock.Anything, source.SearchQuery{
		Date: targetDay, TypeID: 24, Status: "created",
	}).Return([]source.Appointment{
		appointment(1, "0001111", "09:00"),
		appointment(2, "0002222", "10:00"),
	}, nil)
	mrt := appointment(3, "0003333", "11:00")
	mrt.TypeID = 13
	mrt.DoctorID = 4
	mrt.RoomID = 9
	src.On("SearchAppointments", mock.Anything, source.SearchQuery{
		Date: targetDay, TypeID: 13, Status: "created",
	}).Return([]source.Appointment{mrt}, nil)

	st.On("QueryExaminationsByDate", mock.Anything, targetDay).Return([]store.Examination{
		// Matches appointment 1 exactly.
		{ExaminationID: 100, Date: "20.08.2025", Time: "09:00", PatientID: 11, ExaminationTypeID: 5, ExaminerBillingID: 3, RoomID: 2},
		// Nothing upstream references this one anymore.
		{ExaminationID: 101, Date: "20.08.2025", Time: "14:00", PatientID: 99, ExaminationTypeID: 5, ExaminerBillingID: 3, RoomID: 2},
	}, nil)
	knownPatient(st, "0001111", 11)
	knownPatient(st, "0002222", 22)
	knownPatient(st, "0003333", 33)
	st.On("InsertExamination", mock.Anything, mock.MatchedBy(func(e store.Examination) bool {
		return e.PatientID == 22 && e.ExaminationTypeID == 5
	})).Return(nil).Once()
	st.On("InsertExamination", mock.Anything, mock.MatchedBy(func(e store.Examination) bool {
		return e.PatientID == 33 && e.ExaminationTypeID == 7
	})).Return(nil).Once()
	st.On("DeleteExamination", mock.Anything, 101).Return(nil).Once()

	result, err := newTestReconciler(src, st).Run(context.Background(), targetDay, 0, Scope{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Considered)
	assert.Equal(t, 1, result.Existing)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Deleted)
	st.AssertExpectations(t)
	src.AssertExpectations(t)
}

func TestRunLeavesOtherTypesRowsAlone(t *testing.T) {
	src := &sourcemocks.Client{}
	st := &storemocks.Client{}

	st.On("LoadExaminationTypes", mock.Anything).Return([]store.ExaminationType{
		{ExaminationTypeID: 5, ExternalCodes: []int{24}},
		{ExaminationTypeID: 7, ExternalCodes: []int{13}},
	}, nil)
	src.On("SearchAppointments", mock.Anything, source.SearchQuery{
		Date: targetDay, TypeID: 24, Status: "created",
	}).Return([]source.Appointment{}, nil)

	st.On("QueryExaminationsByDate", mock.Anything, targetDay).Return([]store.Examination{
		// Backed by a live type-13 appointment a type-24 run never fetches.
		{ExaminationID: 200, Date: "20.08.2025", Time: "09:00", PatientID: 33, ExaminationTypeID: 7, ExaminerBillingID: 4, RoomID: 9},
		// Genuinely orphaned row of the run's own type.
		{ExaminationID: 101, Date: "20.08.2025", Time: "14:00", PatientID: 99, ExaminationTypeID: 5, ExaminerBillingID: 3, RoomID: 2},
	}, nil)
	st.On("DeleteExamination", mock.Anything, 101).Return(nil).Once()

	result, err := newTestReconciler(src, st).Run(context.Background(), targetDay, 24, Scope{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	st.AssertNotCalled(t, "DeleteExamination", mock.Anything, 200)
	st.AssertExpectations(t)
}

func TestRunCoversSiblingCodesOfStoreType(t *testing.T) {
	src := &sourcemocks.Client{}
	st := &storemocks.Client{}

	// Type 5 claims codes 24 and 31. A run scoped to 24 has to account for
	// the code-31 appointments too, or the sweep would treat their rows as
	// orphans.
	st.On("LoadExaminationTypes", mock.Anything).Return(mappingTypes(), nil)
	src.On("SearchAppointments", mock.Anything, source.SearchQuery{
		Date: targetDay, TypeID: 24, Status: "created",
	}).Return([]source.Appointment{}, nil)
	sibling := appointment(1, "0001111", "09:00")
	sibling.TypeID = 31
	src.On("SearchAppointments", mock.Anything, source.SearchQuery{
		Date: targetDay, TypeID: 31, Status: "created",
	}).Return([]source.Appointment{sibling}, nil)
	st.On("QueryExaminationsByDate", mock.Anything, targetDay).Return([]store.Examination{
		{ExaminationID: 100, Date: "20.08.2025", Time: "09:00", PatientID: 11, ExaminationTypeID: 5, ExaminerBillingID: 3, RoomID: 2},
	}, nil)
	knownPatient(st, "0001111", 11)

	result, err := newTestReconciler(src, st).Run(context.Background(), targetDay, 24, Scope{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Existing)
	assert.Zero(t, result.Deleted)
	st.AssertNotCalled(t, "DeleteExamination", mock.Anything, mock.Anything)
	src.AssertExpectations(t)
}

func TestRunCountsUnmappedAppointments(t *testing.T) {
	src := &sourcemocks.Client{}
	st := &storemocks.Client{}

	// Nothing claims source code 24.
	st.On("LoadExaminationTypes", mock.Anything).Return([]store.ExaminationType{
		{ExaminationTypeID: 5, ExternalCodes: []int{31}},
	}, nil)
	src.On("SearchAppointments", mock.Anything, mock.Anything).
		Return([]source.Appointment{appointment(1, "0001111", "09:00")}, nil)
	st.On("QueryExaminationsByDate", mock.Anything, targetDay).Return([]store.Examination{}, nil)

	result, err := newTestReconciler(src, st).Run(context.Background(), targetDay, 24, Scope{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Considered)
	assert.Equal(t, 1, result.Unmapped)
	assert.Zero(t, result.Inserted)
	st.AssertNotCalled(t, "InsertExamination", mock.Anything, mock.Anything)
}

func TestRunCountsUnresolvedAppointments(t *testing.T) {
	src := &sourcemocks.Client{}
	st := &storemocks.Client{}

	st.On("LoadExaminationTypes", mock.Anything).Return(mappingTypes(), nil)
	src.On("SearchAppointments", mock.Anything, mock.Anything).
		Return([]source.Appointment{appointment(1, "", "10:00")}, nil) // no identity at all
	st.On("QueryExaminationsByDate", mock.Anything, targetDay).Return([]store.Examination{}, nil)

	result, err := newTestReconciler(src, st).Run(context.Background(), targetDay, 24, Scope{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Considered)
	assert.Equal(t, 1, result.Unresolved)
	st.AssertNotCalled(t, "InsertExamination", mock.Anything, mock.Anything)
}

func TestRunFatalWhenStoreFetchFails(t *testing.T) {
	src := &sourcemocks.Client{}
	st := &storemocks.Client{}

	st.On("LoadExaminationTypes", mock.Anything).Return(mappingTypes(), nil)
	src.On("SearchAppointments", mock.Anything, mock.Anything).
		Return([]source.Appointment{}, nil)
	st.On("QueryExaminationsByDate", mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	_, err := newTestReconciler(src, st).Run(context.Background(), targetDay, 24, Scope{})
	assert.Error(t, err)
}

func TestRunItemFailureDoesNotAbortBatch(t *testing.T) {
	src := &sourcemocks.Client{}
	st := &storemocks.Client{}

	st.On("LoadExaminationTypes", mock.Anything).Return(mappingTypes(), nil)
	src.On("SearchAppointments", mock.Anything, mock.Anything).Return([]source.Appointment{
		appointment(1, "0001111", "09:00"),
		appointment(2, "0002222", "10:00"),
	}, nil)
	st.On("QueryExaminationsByDate", mock.Anything, targetDay).Return([]store.Examination{}, nil)
	knownPatient(st, "0001111", 11)
	knownPatient(st, "0002222", 22)
	st.On("InsertExamination", mock.Anything, mock.MatchedBy(func(e store.Examination) bool {
		return e.PatientID == 11
	})).Return(assert.AnError).Once()
	st.On("InsertExamination", mock.Anything, mock.MatchedBy(func(e store.Examination) bool {
		return e.PatientID == 22
	})).Return(nil).Once()

	result, err := newTestReconciler(src, st).Run(context.Background(), targetDay, 24, Scope{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Inserted)
	st.AssertExpectations(t)
}

func TestMapperFirstClaimWins(t *testing.T) {
	st := &storemocks.Client{}
	st.On("LoadExaminationTypes", mock.Anything).Return([]store.ExaminationType{
		{ExaminationTypeID: 5, ExternalCodes: []int{24}},
		{ExaminationTypeID: 6, ExternalCodes: []int{24, 31}},
	}, nil)

	m := NewTypeMapper(st)
	require.NoError(t, m.Load(context.Background()))

	id, ok := m.StoreType(24)
	assert.True(t, ok)
	assert.Equal(t, 5, id)

	id, ok = m.StoreType(31)
	assert.True(t, ok)
	assert.Equal(t, 6, id)

	_, ok = m.StoreType(99)
	assert.False(t, ok)

	// The reverse view only holds the winning claims.
	assert.Equal(t, []int{24}, m.CodesFor(5))
	assert.Equal(t, []int{31}, m.CodesFor(6))
	assert.Equal(t, []int{24, 31}, m.AllCodes())
	assert.Equal(t, map[int]bool{5: true, 6: true}, m.StoreTypeSet())
}
