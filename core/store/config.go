package store

// Config holds configuration for the clinical database HTTP SQL proxy.
type Config struct {
	// BaseURL is the root URL of the SQL proxy.
	BaseURL string `mapstructure:"base_url" default:"http://127.0.0.1:7007"`
	// Database is the database name sent with every statement.
	Database string `mapstructure:"database" default:"clinic"`
	// TimeoutSeconds bounds every single HTTP call to the proxy.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// Retries is the number of connection attempts per call before giving up.
	// Only transport-level failures are retried, never rejected statements.
	Retries int `mapstructure:"retries" default:"3"`
}
