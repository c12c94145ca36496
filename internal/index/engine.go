package index

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"grepwise/internal/errs"
	"grepwise/internal/logentry"
	"grepwise/internal/logging"
)

// Engine owns every open Partition handle, keyed by partition key. It does
// not decide rotation, retention, or archival; the Partition Manager calls
// Open/Close as its state machine demands.
type Engine struct {
	root     string
	registry *logentry.Registry
	logger   *slog.Logger

	mu         sync.Mutex
	partitions map[string]*Partition
}

// NewEngine returns an Engine rooted at root (partitions live under
// root/partitions/<key>). A nil logger discards log output.
func NewEngine(root string, registry *logentry.Registry, logger *slog.Logger) *Engine {
	return &Engine{
		root:       root,
		registry:   registry,
		logger:     logging.Default(logger).With("component", "index"),
		partitions: make(map[string]*Partition),
	}
}

// Open returns the Partition for key, opening and replaying its WAL if this
// is the first request for key in this process. Replay failures that leave
// the partition quarantined are still returned (not nil), so the Partition
// Manager can record and surface the quarantine rather than losing the
// handle entirely.
func (e *Engine) Open(key string) (*Partition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.partitions[key]; ok {
		return p, nil
	}

	dir := filepath.Join(e.root, "partitions", key)
	p, err := Open(dir, key, e.registry)
	if p != nil {
		e.partitions[key] = p
	}
	if err != nil {
		e.logger.Warn("partition opened with replay error", "key", key, "error", err)
		return p, err
	}
	e.logger.Info("partition opened", "key", key, "entries", p.EntryCount())
	return p, nil
}

// Close releases the Partition for key, if open, and forgets it: a later
// Open for the same key re-reads the WAL from disk.
func (e *Engine) Close(key string) error {
	e.mu.Lock()
	p, ok := e.partitions[key]
	delete(e.partitions, key)
	e.mu.Unlock()

	if !ok {
		return nil
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("close partition %s: %w", key, errs.ErrIndexIO)
	}
	e.logger.Info("partition closed", "key", key)
	return nil
}

// Keys returns every partition key currently open in this process.
func (e *Engine) Keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]string, 0, len(e.partitions))
	for k := range e.partitions {
		keys = append(keys, k)
	}
	return keys
}
