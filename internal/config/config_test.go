package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"grepwise/internal/redact"
)

func TestDefaultDirPrecedence(t *testing.T) {
	t.Setenv(EnvConfigDir, "")
	if dir, err := DefaultDir("/explicit/override"); err != nil || dir != "/explicit/override" {
		t.Fatalf("override should win, got %q, err %v", dir, err)
	}

	t.Setenv(EnvConfigDir, "/from/env")
	if dir, err := DefaultDir(""); err != nil || dir != "/from/env" {
		t.Fatalf("env var should be used when no override, got %q, err %v", dir, err)
	}
}

func TestFileStoreLoadMissingReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	cfg, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected default config, got %+v", cfg)
	}
}

func TestFileStoreSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	cfg := Config{
		Server:     ServerConfig{Host: "127.0.0.1", HTTPPort: 9090, SyslogPort: 5141},
		IndexRoot:  "/var/lib/grepwise/index",
		ArchiveDir: "/var/lib/grepwise/archive",
	}
	if err := store.Save(context.Background(), cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != cfg {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, cfg)
	}
}

func TestRedactionStoreMigratesLegacyFlatFormat(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"keys":["password","apikey"],"patterns":["\\d{16}"]}`
	if err := os.WriteFile(filepath.Join(dir, "redaction.json"), []byte(legacy), 0o644); err != nil {
		t.Fatalf("seed legacy file: %v", err)
	}

	store := NewRedactionStore(dir)
	cfg, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	flat, err := cfg.Flatten()
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	wantKeys := map[string]bool{"password": true, "apikey": true, "passwd": true}
	for _, k := range flat.Keys {
		delete(wantKeys, k)
	}
	if len(wantKeys) != 0 {
		t.Fatalf("missing expected keys: %v; got %v", wantKeys, flat.Keys)
	}
	if len(flat.PatternSrc) != 1 || flat.PatternSrc[0] != `\d{16}` {
		t.Fatalf("unexpected patterns: %v", flat.PatternSrc)
	}

	rewritten, err := os.ReadFile(filepath.Join(dir, "redaction.json"))
	if err != nil {
		t.Fatalf("read rewritten file: %v", err)
	}
	var grouped redact.RedactionConfig
	if err := json.Unmarshal(rewritten, &grouped); err != nil {
		t.Fatalf("rewritten file is not grouped JSON: %v", err)
	}
}

func TestRedactionStoreLoadMissingReturnsDefault(t *testing.T) {
	store := NewRedactionStore(t.TempDir())
	cfg, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg) != len(redact.DefaultConfig()) {
		t.Fatalf("expected default config, got %+v", cfg)
	}
}

func TestRedactionStoreRoundTripsGroupedFormat(t *testing.T) {
	dir := t.TempDir()
	store := NewRedactionStore(dir)
	cfg := redact.RedactionConfig{
		"ssn": redact.GroupEntry{Patterns: []string{`\d{3}-\d{2}-\d{4}`}},
	}
	if err := store.Save(context.Background(), cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got["ssn"].Patterns) != 1 {
		t.Fatalf("unexpected grouped config after round trip: %+v", got)
	}
}

func TestSourceStorePutListDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewSourceStore(dir)
	ctx := context.Background()

	src := LogSourceConfig{
		ID: "src-1", Name: "app-syslog", Enabled: true,
		SourceType: SourceTypeSyslog, SyslogPort: 5140,
		SyslogProtocol: "UDP", SyslogFormat: "RFC5424",
	}
	if err := store.Put(ctx, src); err != nil {
		t.Fatalf("put: %v", err)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "src-1" {
		t.Fatalf("unexpected list: %+v", list)
	}

	src.Enabled = false
	if err := store.Put(ctx, src); err != nil {
		t.Fatalf("update put: %v", err)
	}
	list, _ = store.List(ctx)
	if len(list) != 1 || list[0].Enabled {
		t.Fatalf("expected update in place, got %+v", list)
	}

	if err := store.Delete(ctx, "src-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ = store.List(ctx)
	if len(list) != 0 {
		t.Fatalf("expected empty list after delete, got %+v", list)
	}
}
