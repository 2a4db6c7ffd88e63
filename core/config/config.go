package config

import (
	"reflect"
	"strings"

	"clinic-sync/core/corpus"
	"clinic-sync/core/history"
	"clinic-sync/core/logger"
	"clinic-sync/core/scheduler"
	"clinic-sync/core/server"
	"clinic-sync/core/source"
	"clinic-sync/core/storage"
	"clinic-sync/core/store"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Source holds configuration for the appointment system API.
	Source source.Config `mapstructure:"source"`
	// Store holds configuration for the examination database proxy.
	Store store.Config `mapstructure:"store"`
	// Corpus holds configuration for the insurance file archive.
	Corpus corpus.Config `mapstructure:"corpus"`
	// Storage holds configuration for the object storage backing the archive.
	Storage storage.Config `mapstructure:"storage"`
	// Scheduler holds the automatic synchronization schedule.
	Scheduler scheduler.Config `mapstructure:"scheduler"`
	// History holds configuration for the run history database.
	History history.Config `mapstructure:"history"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	// We construct the path to .env
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. SERVER_PORT -> server.port)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
