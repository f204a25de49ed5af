// Package config loads roomwatch's TOML configuration.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/roomwatch/config.toml
//  3. If the config file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing or empty, use defaults
//
// # Default Values
//
//   - API URL: http://localhost:8080
//   - Log directory: ~/.local/state/roomwatch
//   - Poll interval: 5 seconds
//   - Metrics: disabled
//   - Log level: info
//
// # TOML Format
//
//	api_url = "http://localhost:8080"
//	log_dir = "~/.local/state/roomwatch"
//	poll_seconds = 5
//	metrics_addr = "127.0.0.1:9464"
//	log_level = "debug"
//
// Command-line flags in cmd/roomwatch override poll_seconds and the file path.
package config
