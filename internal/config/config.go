// Package config provides configuration persistence for GrepWise: the
// server's listen addresses and storage paths, configured log sources, and
// the redactor's rule set. Configuration is control-plane state, loaded at
// startup; it is not on the ingest or query hot path.
package config

import (
	"context"
	"os"
	"path/filepath"
)

// EnvConfigDir overrides the default config directory when set, mirroring
// --config-dir.
const EnvConfigDir = "GW_CONFIG_DIR"

// DefaultDir returns ~/.GrepWise/config, or the directory named by
// GW_CONFIG_DIR / override when non-empty. override wins over the env var,
// matching CLI-flag-over-env-var layering.
func DefaultDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".GrepWise", "config"), nil
}

// ServerConfig holds the bind addresses GW_HOST / GW_HTTP_PORT /
// GW_SYSLOG_PORT select.
type ServerConfig struct {
	Host       string `json:"host"`
	HTTPPort   int    `json:"http_port"`
	SyslogPort int    `json:"syslog_port"`
}

// Config is the top-level, declarative system configuration persisted as
// config.json: what should exist, not how it was created.
type Config struct {
	Server     ServerConfig `json:"server"`
	IndexRoot  string       `json:"index_root"`
	ArchiveDir string       `json:"archive_dir"`
}

// DefaultConfig returns the bootstrap configuration for first run.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			HTTPPort:   8080,
			SyslogPort: 5140,
		},
		IndexRoot:  "data/index",
		ArchiveDir: "data/archive",
	}
}

// Store persists and loads the top-level Config.
type Store interface {
	Load(ctx context.Context) (Config, error)
	Save(ctx context.Context, cfg Config) error
}
