package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"grepwise/internal/errs"
)

// SourceType identifies a configured log source's intake mechanism.
type SourceType string

const (
	SourceTypeSyslog SourceType = "SYSLOG"
	SourceTypeFile   SourceType = "FILE"
)

// LogSourceConfig describes one configured log source, persisted under
// log-sources.json. Syslog fields are populated for SourceTypeSyslog; file
// fields for SourceTypeFile (the file tailer's directory-scan + glob
// patterns); POST /sources currently only accepts SYSLOG.
type LogSourceConfig struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Enabled        bool       `json:"enabled"`
	SourceType     SourceType `json:"sourceType"`
	SyslogPort     int        `json:"syslogPort,omitempty"`
	SyslogProtocol string     `json:"syslogProtocol,omitempty"`
	SyslogFormat   string     `json:"syslogFormat,omitempty"`
	FilePatterns   []string   `json:"filePatterns,omitempty"`
}

// SourceStore persists the list of configured log sources as
// log-sources.json.
type SourceStore struct {
	path string
}

// NewSourceStore returns a SourceStore writing to dir/log-sources.json.
func NewSourceStore(dir string) *SourceStore {
	return &SourceStore{path: filepath.Join(dir, "log-sources.json")}
}

// List returns all configured sources, empty if the file does not exist.
func (s *SourceStore) List(ctx context.Context) ([]LogSourceConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log sources: %w", errs.ErrConfigIO)
	}
	var sources []LogSourceConfig
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("parse log sources: %w", errs.ErrConfigIO)
	}
	return sources, nil
}

// Put upserts src by ID and persists the full list.
func (s *SourceStore) Put(ctx context.Context, src LogSourceConfig) error {
	sources, err := s.List(ctx)
	if err != nil {
		return err
	}
	for i, existing := range sources {
		if existing.ID == src.ID {
			sources[i] = src
			return writeJSONAtomic(s.path, sources)
		}
	}
	sources = append(sources, src)
	return writeJSONAtomic(s.path, sources)
}

// Delete removes the source with the given ID, if present.
func (s *SourceStore) Delete(ctx context.Context, id string) error {
	sources, err := s.List(ctx)
	if err != nil {
		return err
	}
	for i, existing := range sources {
		if existing.ID == id {
			sources = append(sources[:i], sources[i+1:]...)
			return writeJSONAtomic(s.path, sources)
		}
	}
	return nil
}
