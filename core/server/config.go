package server

import (
	"fmt"
	"time"
)

// Config holds configuration for the HTTP server.
type Config struct {
	// Host is the address the server binds to.
	Host string `mapstructure:"host" default:"127.0.0.1"`
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"5555"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
	// DefaultAppointmentType is the Source appointment-type code a sync run
	// targets when the caller does not specify one.
	DefaultAppointmentType int `mapstructure:"default_appointment_type" default:"24"`
	// TaskRetentionMinutes is how long finished sync tasks stay addressable
	// before they are garbage-collected from the registry.
	TaskRetentionMinutes int `mapstructure:"task_retention_minutes" default:"5"`
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// TaskRetention returns the task retention window as a duration.
func (c Config) TaskRetention() time.Duration {
	m := c.TaskRetentionMinutes
	if m <= 0 {
		m = 5
	}
	return time.Duration(m) * time.Minute
}
