package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"grepwise/internal/errs"
)

const configVersion = 1

// configEnvelope is the versioned on-disk format for config.json.
// (redaction.json is stored as a bare grouped map, without an envelope.)
type configEnvelope struct {
	Version int    `json:"version"`
	Config  Config `json:"config"`
}

// FileStore persists Config as versioned JSON under dir/config.json. Writes
// are atomic via temp file + rename with round-trip validation.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore writing to dir/config.json.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, "config.json")}
}

// Load reads config.json, returning DefaultConfig if it does not exist yet.
func (s *FileStore) Load(ctx context.Context) (Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("read config file: %w", errs.ErrConfigIO)
	}

	var env configEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", errs.ErrConfigIO)
	}
	if env.Version > configVersion {
		return Config{}, fmt.Errorf("config file version %d is newer than supported version %d: %w", env.Version, configVersion, errs.ErrConfigIO)
	}
	return env.Config, nil
}

// Save atomically persists cfg to config.json.
func (s *FileStore) Save(ctx context.Context, cfg Config) error {
	return writeJSONAtomic(s.path, configEnvelope{Version: configVersion, Config: cfg})
}

// writeJSONAtomic marshals v and writes it to path via temp file + rename,
// re-reading the temp file to validate it round-trips before committing.
func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", errs.ErrConfigIO)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), errs.ErrConfigIO)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", errs.ErrConfigIO)
	}

	check, err := os.ReadFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("read-back temp file: %w", errs.ErrConfigIO)
	}
	var verify json.RawMessage
	if err := json.Unmarshal(check, &verify); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("round-trip validation failed: %w", errs.ErrConfigIO)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), errs.ErrConfigIO)
	}
	return nil
}
