package corpus

// Config selects and parameterizes the insurance-file backend.
type Config struct {
	// Backend is "dir" for a local directory tree or "bucket" for the
	// object-storage archive.
	Backend string `mapstructure:"backend" default:"dir"`
	// Dir is the root of the local archive when Backend is "dir".
	Dir string `mapstructure:"dir" default:""`
	// Suffix filters archive entries; only matching files are scanned.
	Suffix string `mapstructure:"suffix" default:".con"`
}
