// Package server holds the HTTP server configuration.
//
// The actual Fiber application is assembled in cmd/start.go; this package only
// owns the settings (listen address, API key, sync defaults) so the config
// loader can bind them with defaults.
package server
