package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config captures the settings roomwatch reads at startup.
type Config struct {
	APIURL       string
	LogDir       string
	PollInterval time.Duration
	MetricsAddr  string
	// LogLevel is a slog level name: debug, info, warn or error.
	LogLevel string
}

const (
	defaultConfigPath   = "~/.config/roomwatch/config.toml"
	defaultLogDir       = "~/.local/state/roomwatch"
	defaultAPIURL       = "http://localhost:8080"
	defaultPollInterval = 5 * time.Second
)

// DefaultPath returns the config file used when no path is given.
func DefaultPath() string {
	return defaultConfigPath
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		APIURL:       defaultAPIURL,
		LogDir:       mustExpand(defaultLogDir),
		PollInterval: defaultPollInterval,
		LogLevel:     "info",
	}
}

// Load locates and parses the config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	data, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, nil
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		APIURL      string `toml:"api_url"`
		LogDir      string `toml:"log_dir"`
		PollSeconds int    `toml:"poll_seconds"`
		MetricsAddr string `toml:"metrics_addr"`
		LogLevel    string `toml:"log_level"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIURL); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.LogDir = mustExpand(v)
	}
	switch {
	case raw.PollSeconds < 0:
		return Config{}, fmt.Errorf("parse config: poll_seconds must not be negative, got %d", raw.PollSeconds)
	case raw.PollSeconds > 0:
		cfg.PollInterval = time.Duration(raw.PollSeconds) * time.Second
	}
	cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// LogPath returns the path of the application log file.
func (c Config) LogPath() string {
	if strings.TrimSpace(c.LogDir) == "" {
		return mustExpand(defaultLogDir + "/roomwatch.log")
	}
	return filepath.Join(c.LogDir, "roomwatch.log")
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return ExpandPath(defaultConfigPath)
	}
	return ExpandPath(path)
}

func mustExpand(path string) string {
	expanded, err := ExpandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading ~ and makes path absolute.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
