package sync

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"clinic-sync/core/history"
	"clinic-sync/core/scheduler"
	"clinic-sync/core/tasks"
)

// Feature bundles the synchronization API for the feature loader.
type Feature struct {
	handler *Handler
}

// NewFeature creates the synchronization feature.
func NewFeature(service *Service, registry *tasks.Registry, sched *scheduler.Scheduler, recorder *history.Recorder, log *zap.Logger) *Feature {
	return &Feature{
		handler: NewHandler(service, registry, sched, recorder, log),
	}
}

// Name identifies the feature in logs.
func (f *Feature) Name() string { return "sync" }

// Register mounts the synchronization routes.
func (f *Feature) Register(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
