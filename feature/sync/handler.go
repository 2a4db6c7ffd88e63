package sync

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"clinic-sync/core/history"
	"clinic-sync/core/logger"
	"clinic-sync/core/scheduler"
	"clinic-sync/core/source"
	"clinic-sync/core/tasks"
)

// Handler handles HTTP requests for synchronization runs.
type Handler struct {
	service   *Service
	registry  *tasks.Registry
	scheduler *scheduler.Scheduler
	recorder  *history.Recorder // nil when no history database is configured
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, registry *tasks.Registry, sched *scheduler.Scheduler, recorder *history.Recorder, log *zap.Logger) *Handler {
	return &Handler{
		service:   service,
		registry:  registry,
		scheduler: sched,
		recorder:  recorder,
		logger:    log,
	}
}

// RegisterRoutes registers the synchronization routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/sync")
	group.Post("/", h.HandleTriggerSync)
	group.Post("/patient", h.HandleTriggerPatientSync)
	group.Get("/status/:id", h.HandleSyncStatus)
	group.Get("/active", h.HandleActiveSyncs)
	group.Post("/cancel/:id", h.HandleCancelSync)
	group.Get("/history", h.HandleSyncHistory)

	sched := app.Group("/scheduler")
	sched.Get("/status", h.HandleSchedulerStatus)
	sched.Put("/config", h.HandleSchedulerConfig)
}

type triggerRequest struct {
	Date   string `json:"date"`
	TypeID int    `json:"appointment_type_id"`
}

type patientTriggerRequest struct {
	Date        string `json:"date"`
	PatientCode string `json:"patient_code"`
}

// HandleTriggerSync starts a whole-day reconciliation run.
// @Summary Trigger Synchronization
// @Description Start a background reconciliation run for one day.
// @Tags sync
// @Accept json
// @Produce json
// @Param request body triggerRequest true "Target date (YYYY-MM-DD) and optional appointment type"
// @Success 202 {object} map[string]string "Task accepted"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 409 {object} map[string]string "Date already in flight"
// @Router /sync [post]
func (h *Handler) HandleTriggerSync(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var req triggerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	date, err := parseDay(req.Date)
	if err != nil {
		return badRequest(c, "date must be YYYY-MM-DD")
	}

	task, err := h.service.Trigger(date, req.TypeID, "")
	if errors.Is(err, tasks.ErrAlreadyRunning) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		l.Error("failed to trigger run", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	l.Info("run triggered", zap.String("task_id", task.ID), zap.String("date", task.Date))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"task_id":    task.ID,
		"status_url": "/api/sync/status/" + task.ID,
	})
}

// HandleTriggerPatientSync starts a single-patient run. The patient code is
// verified against the Source first; runs in this mode never delete rows.
// @Summary Trigger Single-Patient Synchronization
// @Description Start a background reconciliation run for one patient on one day.
// @Tags sync
// @Accept json
// @Produce json
// @Param request body patientTriggerRequest true "Patient code and target date (YYYY-MM-DD)"
// @Success 202 {object} map[string]string "Task accepted"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 404 {object} map[string]string "Unknown patient"
// @Failure 409 {object} map[string]string "Already in flight"
// @Router /sync/patient [post]
func (h *Handler) HandleTriggerPatientSync(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var req patientTriggerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.PatientCode == "" {
		return badRequest(c, "patient_code is required")
	}
	date, err := parseDay(req.Date)
	if err != nil {
		return badRequest(c, "date must be YYYY-MM-DD")
	}

	if err := h.service.VerifyPatient(c.Context(), req.PatientCode); err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown patient code"})
		}
		l.Error("patient verification failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	task, err := h.service.Trigger(date, 0, req.PatientCode)
	if errors.Is(err, tasks.ErrAlreadyRunning) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		l.Error("failed to trigger patient run", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	l.Info("patient run triggered",
		zap.String("task_id", task.ID),
		zap.String("patient_code", req.PatientCode))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"task_id":    task.ID,
		"status_url": "/api/sync/status/" + task.ID,
	})
}

// HandleSyncStatus returns one task.
// @Summary Get Run Status
// @Tags sync
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} tasks.Task "Task"
// @Failure 404 {object} map[string]string "Unknown or expired task"
// @Router /sync/status/{id} [get]
func (h *Handler) HandleSyncStatus(c *fiber.Ctx) error {
	task, err := h.registry.Get(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown task"})
	}
	return c.JSON(task)
}

// HandleActiveSyncs lists unfinished tasks.
// @Summary List Active Runs
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]any "Active tasks"
// @Router /sync/active [get]
func (h *Handler) HandleActiveSyncs(c *fiber.Ctx) error {
	active := h.registry.Active()
	return c.JSON(fiber.Map{
		"count": len(active),
		"tasks": active,
	})
}

// HandleCancelSync requests cancellation of a task.
// @Summary Cancel Run
// @Tags sync
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} map[string]string "Cancellation requested"
// @Failure 404 {object} map[string]string "Unknown task"
// @Failure 409 {object} map[string]string "Task already finished"
// @Router /sync/cancel/{id} [post]
func (h *Handler) HandleCancelSync(c *fiber.Ctx) error {
	id := c.Params("id")
	err := h.registry.Cancel(id)
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown task"})
	case errors.Is(err, tasks.ErrFinished):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "task already finished"})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"task_id": id, "status": string(tasks.StatusCancelled)})
}

// HandleSyncHistory lists recently finished runs from the ledger.
// @Summary List Run History
// @Tags sync
// @Produce json
// @Param limit query int false "Maximum rows (default 50)"
// @Success 200 {object} map[string]any "Finished runs"
// @Failure 503 {object} map[string]string "History database not configured"
// @Router /sync/history [get]
func (h *Handler) HandleSyncHistory(c *fiber.Ctx) error {
	if h.recorder == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "run history not configured"})
	}

	runs, err := h.recorder.Recent(c.QueryInt("limit", 50))
	if err != nil {
		logger.WithRayID(h.logger, c).Error("failed to read run history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"count": len(runs), "runs": runs})
}

// HandleSchedulerStatus reports the automatic synchronization schedule.
// @Summary Get Scheduler Status
// @Tags scheduler
// @Produce json
// @Success 200 {object} scheduler.Status "Schedule state"
// @Router /scheduler/status [get]
func (h *Handler) HandleSchedulerStatus(c *fiber.Ctx) error {
	return c.JSON(h.scheduler.Status())
}

// HandleSchedulerConfig replaces the automatic synchronization schedule.
// @Summary Update Scheduler Config
// @Tags scheduler
// @Accept json
// @Produce json
// @Param request body scheduler.Config true "New schedule"
// @Success 200 {object} scheduler.Status "Schedule state after the update"
// @Failure 400 {object} map[string]string "Invalid schedule"
// @Router /scheduler/config [put]
func (h *Handler) HandleSchedulerConfig(c *fiber.Ctx) error {
	var cfg scheduler.Config
	if err := c.BodyParser(&cfg); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.scheduler.UpdateConfig(cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	logger.WithRayID(h.logger, c).Info("schedule updated via API")
	return c.JSON(h.scheduler.Status())
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func parseDay(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
