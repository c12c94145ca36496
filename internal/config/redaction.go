package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"grepwise/internal/errs"
	"grepwise/internal/redact"
)

// legacyFlatRedaction is the pre-v1 on-disk shape: one shared key list and
// one shared pattern list, with no grouping.
type legacyFlatRedaction struct {
	Keys     []string `json:"keys"`
	Patterns []string `json:"patterns"`
}

// RedactionStore persists the grouped redact.RedactionConfig as
// redaction.json. Load transparently migrates a legacy flat file to the
// grouped format and rewrites it, so every subsequent Load sees the
// migrated shape.
type RedactionStore struct {
	path string
}

// NewRedactionStore returns a RedactionStore writing to dir/redaction.json.
func NewRedactionStore(dir string) *RedactionStore {
	return &RedactionStore{path: filepath.Join(dir, "redaction.json")}
}

// Load reads redaction.json, migrating a legacy flat file to grouped format
// in place. Returns redact.DefaultConfig if the file does not exist yet.
func (s *RedactionStore) Load(ctx context.Context) (redact.RedactionConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return redact.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read redaction config: %w", errs.ErrConfigIO)
	}

	if isLegacyFlat(data) {
		var legacy legacyFlatRedaction
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("parse legacy redaction config: %w", errs.ErrConfigIO)
		}
		cfg := migrateLegacyFlat(legacy)
		if err := s.Save(ctx, cfg); err != nil {
			return nil, fmt.Errorf("rewrite migrated redaction config: %w", err)
		}
		return cfg, nil
	}

	var cfg redact.RedactionConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse redaction config: %w", errs.ErrConfigIO)
	}
	return cfg, nil
}

// Save atomically persists cfg in grouped format.
func (s *RedactionStore) Save(ctx context.Context, cfg redact.RedactionConfig) error {
	return writeJSONAtomic(s.path, cfg)
}

// isLegacyFlat reports whether data is the legacy {keys,patterns} shape
// rather than a grouped map: both top-level "keys" and "patterns" must be
// present. A grouped config with groups literally named both "keys" and
// "patterns" is therefore treated as legacy; one named "keys" alone is not.
func isLegacyFlat(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	_, hasKeys := probe["keys"]
	_, hasPatterns := probe["patterns"]
	return hasKeys && hasPatterns
}

// migrateLegacyFlat converts the flat shape into a single group whose
// property name is the JSON-encoded keyword array, sharing the flat
// pattern list, per the grouped format's "array-keyed group" convention.
func migrateLegacyFlat(legacy legacyFlatRedaction) redact.RedactionConfig {
	cfg := redact.RedactionConfig{}
	keyJSON, _ := json.Marshal(legacy.Keys)
	cfg[string(keyJSON)] = redact.GroupEntry{Patterns: legacy.Patterns}
	return cfg
}
