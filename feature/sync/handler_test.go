package sync_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"clinic-sync/core/scheduler"
	"clinic-sync/core/source"
	sourcemocks "clinic-sync/core/source/mocks"
	"clinic-sync/core/store"
	storemocks "clinic-sync/core/store/mocks"
	"clinic-sync/core/tasks"
	"clinic-sync/feature/sync"
)

type fixture struct {
	app      *fiber.App
	registry *tasks.Registry
	src      *sourcemocks.Client
	st       *storemocks.Client
	sched    *scheduler.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()

	src := new(sourcemocks.Client)
	st := new(storemocks.Client)
	registry := tasks.NewRegistry(time.Minute, nil, log)

	reconciler := sync.NewReconciler(src, st, nil, log)
	svc := sync.NewService(reconciler, registry, src, 5, log)

	sched := scheduler.New(scheduler.Config{
		Enabled:         false,
		IntervalMinutes: 60,
		Days:            "1,2,3,4,5",
		StartTime:       "08:00",
		EndTime:         "18:00",
	}, svc.RunScheduled, scheduler.SystemClock{}, log)
	sched.Start()
	t.Cleanup(sched.Stop)

	h := sync.NewHandler(svc, registry, sched, nil, log)
	app := fiber.New()
	h.RegisterRoutes(app)

	return &fixture{app: app, registry: registry, src: src, st: st, sched: sched}
}

// allowRun satisfies every call the background run makes so a triggered
// task can finish cleanly against empty remote data.
func (f *fixture) allowRun() {
	f.st.On("LoadExaminationTypes", mock.Anything).
		Return([]store.ExaminationType{{ExaminationTypeID: 5, ExternalCodes: []int{24}}}, nil)
	f.src.On("SearchAppointments", mock.Anything, mock.Anything).
		Return([]source.Appointment{}, nil)
	f.st.On("QueryExaminationsByDate", mock.Anything, mock.Anything).
		Return([]store.Examination{}, nil)
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		assert.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 2000)
	assert.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func TestHandleTriggerSync(t *testing.T) {
	f := newFixture(t)
	f.allowRun()

	status, body := doJSON(t, f.app, "POST", "/sync/", map[string]any{"date": "2030-05-10"})
	assert.Equal(t, fiber.StatusAccepted, status)
	taskID, _ := body["task_id"].(string)
	assert.NotEmpty(t, taskID)
	assert.Equal(t, "/api/sync/status/"+taskID, body["status_url"])

	assert.Eventually(t, func() bool {
		task, err := f.registry.Get(taskID)
		return err == nil && task.Status == tasks.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleTriggerSyncConflict(t *testing.T) {
	f := newFixture(t)

	// Hold the first run open so the second trigger is guaranteed to hit it.
	hold := make(chan struct{})
	f.st.On("LoadExaminationTypes", mock.Anything).
		Run(func(mock.Arguments) { <-hold }).
		Return([]store.ExaminationType{}, nil)
	f.src.On("SearchAppointments", mock.Anything, mock.Anything).
		Return([]source.Appointment{}, nil)
	f.st.On("QueryExaminationsByDate", mock.Anything, mock.Anything).
		Return([]store.Examination{}, nil)

	status, _ := doJSON(t, f.app, "POST", "/sync/", map[string]any{"date": "2030-05-11"})
	assert.Equal(t, fiber.StatusAccepted, status)

	status, body := doJSON(t, f.app, "POST", "/sync/", map[string]any{"date": "2030-05-11"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Contains(t, body["error"], "already")
	close(hold)
}

func TestHandleTriggerSyncBadDate(t *testing.T) {
	f := newFixture(t)

	status, body := doJSON(t, f.app, "POST", "/sync/", map[string]any{"date": "10.05.2030"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "date must be YYYY-MM-DD", body["error"])
}

func TestHandleTriggerPatientSyncUnknownPatient(t *testing.T) {
	f := newFixture(t)
	f.src.On("GetPatient", mock.Anything, "0009999").Return(nil, source.ErrNotFound)

	status, body := doJSON(t, f.app, "POST", "/sync/patient",
		map[string]any{"date": "2030-05-10", "patient_code": "0009999"})
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "unknown patient code", body["error"])
}

func TestHandleTriggerPatientSync(t *testing.T) {
	f := newFixture(t)
	f.allowRun()
	f.src.On("GetPatient", mock.Anything, "0001234").
		Return(&source.Patient{Code: "0001234", Surname: "Muster"}, nil)

	status, body := doJSON(t, f.app, "POST", "/sync/patient",
		map[string]any{"date": "2030-05-12", "patient_code": "0001234"})
	assert.Equal(t, fiber.StatusAccepted, status)
	assert.NotEmpty(t, body["task_id"])
}

func TestHandleSyncStatusUnknownTask(t *testing.T) {
	f := newFixture(t)

	status, body := doJSON(t, f.app, "GET", "/sync/status/nope", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "unknown task", body["error"])
}

func TestHandleActiveSyncsEmpty(t *testing.T) {
	f := newFixture(t)

	status, body := doJSON(t, f.app, "GET", "/sync/active", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])
}

func TestHandleCancelSyncUnknownTask(t *testing.T) {
	f := newFixture(t)

	status, body := doJSON(t, f.app, "POST", "/sync/cancel/nope", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "unknown task", body["error"])
}

func TestHandleSyncHistoryUnconfigured(t *testing.T) {
	f := newFixture(t)

	status, body := doJSON(t, f.app, "GET", "/sync/history", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "run history not configured", body["error"])
}

func TestHandleSchedulerStatus(t *testing.T) {
	f := newFixture(t)

	status, body := doJSON(t, f.app, "GET", "/scheduler/status", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["enabled"])
}

func TestHandleSchedulerConfig(t *testing.T) {
	f := newFixture(t)

	status, body := doJSON(t, f.app, "PUT", "/scheduler/config", map[string]any{
		"enabled":          true,
		"interval_minutes": 30,
		"days":             "1,3,5",
		"start_time":       "09:00",
		"end_time":         "17:00",
	})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["enabled"])

	status, body = doJSON(t, f.app, "PUT", "/scheduler/config", map[string]any{
		"enabled":          true,
		"interval_minutes": 30,
		"days":             "1,3,5",
		"start_time":       "25:00",
		"end_time":         "17:00",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])
}
