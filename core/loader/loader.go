package loader

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature is a self-contained application feature that mounts routes.
type Feature interface {
	// Name identifies the feature in logs.
	Name() string
	// Register mounts the feature's routes on the router.
	Register(app fiber.Router) error
}

// Manager collects features and loads them in registration order.
type Manager struct {
	features []Feature
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a feature.
func (m *Manager) Register(f Feature) {
	m.features = append(m.features, f)
}

// LoadAll mounts every registered feature; the first failure aborts.
func (m *Manager) LoadAll(app fiber.Router) error {
	for _, f := range m.features {
		if err := f.Register(app); err != nil {
			return fmt.Errorf("loader: feature %s: %w", f.Name(), err)
		}
		zap.L().Info("Feature loaded", zap.String("feature", f.Name()))
	}
	return nil
}
