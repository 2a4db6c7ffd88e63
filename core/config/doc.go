// Package config provides configuration management for the synchronization
// service.
//
// It utilizes Viper for loading configuration from environment variables and
// an optional .env file.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings,
// divided into subsections:
//   - Server: HTTP server settings (port, API key, task retention)
//   - Source: appointment system API endpoint and token
//   - Store: examination database proxy endpoint
//   - Corpus: insurance file archive location (directory or bucket)
//   - Storage: S3/MinIO credentials for the bucket-backed archive
//   - Scheduler: automatic synchronization schedule
//   - History: MySQL connection for the run history ledger
//   - Log: logging level and format
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
