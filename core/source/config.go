package source

// Config holds the Source API connection settings.
type Config struct {
	BaseURL        string `mapstructure:"base_url" default:"http://127.0.0.1:8000"`
	Token          string `mapstructure:"token" default:""`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" default:"30"`
	Retries        int    `mapstructure:"retries" default:"3"`
}
