package partition

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"grepwise/internal/errs"
	"grepwise/internal/index"
	"grepwise/internal/logentry"
	"grepwise/internal/logging"
)

// Archiver compresses a CLOSED partition into durable archive storage and
// restores one back to a working directory on demand. Defined here (the
// consumer) rather than in the archive package, so this package does not
// depend on which backend (local/S3/azblob/GCS) is configured.
type Archiver interface {
	Archive(ctx context.Context, key, partitionDir string) error
	Restore(ctx context.Context, key, destDir string) error
}

// Manager owns partition lifecycle: routing writes to the right bucket,
// capping the number of OPEN/ACTIVE partitions, and driving retention and
// archival on a periodic Tick. The Index Engine only knows how to open,
// write, search, and close a partition by key; it has no opinion about
// which keys should exist or when they should stop existing.
type Manager struct {
	engine      *index.Engine
	root        string
	granularity Granularity
	maxActive   int
	// reopenCurrentOnly limits automatic re-opening of a CLOSED/ARCHIVED
	// partition to the single most-recent key in the active window,
	// matching the default described for routing.
	reopenCurrentOnly bool

	retention RetentionPolicy
	archival  ArchivePolicy
	archiver  Archiver

	logger *slog.Logger

	mu      sync.Mutex
	metas   map[string]*Meta
	version atomic.Int64
}

// Config bundles Manager construction parameters.
type Config struct {
	Root              string
	Granularity       Granularity
	MaxActivePartitions int
	ReopenCurrentOnly bool
	Retention         RetentionPolicy
	Archival          ArchivePolicy
	Archiver          Archiver
}

// NewManager builds a Manager over engine. A nil logger discards output.
func NewManager(cfg Config, engine *index.Engine, logger *slog.Logger) *Manager {
	if cfg.MaxActivePartitions <= 0 {
		cfg.MaxActivePartitions = 3
	}
	return &Manager{
		engine:            engine,
		root:              cfg.Root,
		granularity:       cfg.Granularity,
		maxActive:         cfg.MaxActivePartitions,
		reopenCurrentOnly: true,
		retention:         cfg.Retention,
		archival:          cfg.Archival,
		archiver:          cfg.Archiver,
		logger:            logging.Default(logger).With("component", "partition"),
		metas:             make(map[string]*Meta),
	}
}

// RouteAndWrite groups entries by partition key and commits each group via
// the Index Engine. Entries whose key is currently CLOSED or ARCHIVED (and
// is not the active window's current key) are rejected individually; the
// rest of the batch still commits.
func (m *Manager) RouteAndWrite(ctx context.Context, entries []logentry.LogEntry) (committed []string, rejected map[string]error) {
	groups := make(map[string][]logentry.LogEntry)
	for _, e := range entries {
		key := KeyFor(e.Time(), m.granularity)
		groups[key] = append(groups[key], e)
	}

	rejected = make(map[string]error)
	for key, group := range groups {
		p, err := m.writerFor(key)
		if err != nil {
			for _, e := range group {
				rejected[e.ID] = err
			}
			continue
		}
		ids, err := p.AddBatch(ctx, group)
		if err != nil {
			for _, e := range group {
				rejected[e.ID] = err
			}
			continue
		}
		committed = append(committed, ids...)
		m.recordWrite(key, len(ids))
	}
	return committed, rejected
}

// writerFor resolves the writable Partition handle for key, enforcing the
// active-partition cap and the closed/archived re-open rule.
func (m *Manager) writerFor(key string) (*index.Partition, error) {
	m.mu.Lock()
	meta, known := m.metas[key]
	if !known {
		meta = &Meta{Key: key, State: StateOpen, CreatedAt: time.Now()}
		m.metas[key] = meta
	}

	if meta.State == StateClosed || meta.State == StateArchived {
		if !m.isCurrentWindowLocked(key) {
			m.mu.Unlock()
			return nil, fmt.Errorf("partition %s %s: %w", key, meta.State, errs.ErrPartitionUnavailable)
		}
		meta.State = StateOpen
	}
	if meta.State == StateDeleted {
		m.mu.Unlock()
		return nil, fmt.Errorf("partition %s deleted: %w", key, errs.ErrPartitionUnavailable)
	}

	m.enforceActiveCapLocked(key)
	if meta.State == StateOpen {
		meta.State = StateActive
	}
	m.mu.Unlock()

	return m.engine.Open(key)
}

// isCurrentWindowLocked reports whether key is the most-recent (lexically
// greatest) key this manager has seen, the one re-opening default allows.
// Callers must hold mu.
func (m *Manager) isCurrentWindowLocked(key string) bool {
	if !m.reopenCurrentOnly {
		return true
	}
	for k := range m.metas {
		if k > key {
			return false
		}
	}
	return true
}

// enforceActiveCapLocked closes the oldest OPEN/ACTIVE partition by
// LastWrittenAt when admitting key would exceed maxActive. Callers must
// hold mu.
func (m *Manager) enforceActiveCapLocked(key string) {
	var active []*Meta
	for k, meta := range m.metas {
		if k == key {
			continue
		}
		if meta.State == StateOpen || meta.State == StateActive {
			active = append(active, meta)
		}
	}
	if len(active) < m.maxActive {
		return
	}
	oldest := active[0]
	for _, meta := range active[1:] {
		if meta.LastWrittenAt.Before(oldest.LastWrittenAt) {
			oldest = meta
		}
	}
	oldest.State = StateClosed
	if err := m.engine.Close(oldest.Key); err != nil {
		m.logger.Warn("close rotated partition", "key", oldest.Key, "error", err)
	} else {
		m.logger.Info("partition rotated to closed", "key", oldest.Key)
	}
}

func (m *Manager) recordWrite(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metas[key]
	if !ok {
		return
	}
	meta.LastWrittenAt = time.Now()
	meta.EntryCount += int64(n)
	m.version.Add(1)
}

// Version returns a counter bumped on every committed write. The Search
// Cache uses it as a coarse invalidation signal: any write anywhere bumps
// it, so a cached fingerprint from before the bump is never served stale,
// at the cost of invalidating more broadly than a per-partition counter
// would.
func (m *Manager) Version() int64 {
	return m.version.Load()
}

// Snapshot returns the current Meta for every known partition.
func (m *Manager) Snapshot(now time.Time) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	partitions := make([]Meta, 0, len(m.metas))
	for _, meta := range m.metas {
		partitions = append(partitions, *meta)
	}
	return Snapshot{Partitions: partitions, Now: now, Granularity: m.granularity}
}

// Tick runs one retention/archival pass: partitions named by the retention
// policy are deleted (archiving first if they are not already ARCHIVED and
// an archiver is configured); partitions named by the archive policy are
// compressed into the archiver and dropped from hot storage.
func (m *Manager) Tick(ctx context.Context, now time.Time) error {
	snap := m.Snapshot(now)

	if m.archival != nil && m.archiver != nil {
		for _, key := range m.archival.Apply(snap) {
			if err := m.archiveOne(ctx, key); err != nil {
				m.logger.Warn("archive partition failed", "key", key, "error", err)
			}
		}
	}

	if m.retention != nil {
		for _, key := range m.retention.Apply(m.Snapshot(now)) {
			if err := m.deleteOne(ctx, key); err != nil {
				m.logger.Warn("delete partition failed", "key", key, "error", err)
			}
		}
	}
	return nil
}

func (m *Manager) archiveOne(ctx context.Context, key string) error {
	if err := m.engine.Close(key); err != nil {
		return err
	}
	dir := filepath.Join(m.root, "partitions", key)
	if err := m.archiver.Archive(ctx, key, dir); err != nil {
		return fmt.Errorf("archive partition %s: %w", key, errs.ErrArchiveUnavailable)
	}
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("remove archived partition dir", "key", key, "error", err)
	}
	m.mu.Lock()
	if meta, ok := m.metas[key]; ok {
		meta.State = StateArchived
	}
	m.mu.Unlock()
	m.logger.Info("partition archived", "key", key)
	return nil
}

func (m *Manager) deleteOne(ctx context.Context, key string) error {
	m.mu.Lock()
	meta, ok := m.metas[key]
	alreadyArchived := ok && meta.State == StateArchived
	m.mu.Unlock()

	if !alreadyArchived {
		if err := m.engine.Close(key); err != nil {
			return err
		}
		dir := filepath.Join(m.root, "partitions", key)
		if m.archiver != nil {
			if err := m.archiver.Archive(ctx, key, dir); err != nil {
				return fmt.Errorf("archive partition %s before delete: %w", key, errs.ErrArchiveUnavailable)
			}
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove partition dir %s: %w", key, errs.ErrIndexIO)
		}
	}

	m.mu.Lock()
	if meta, ok := m.metas[key]; ok {
		meta.State = StateDeleted
	}
	m.mu.Unlock()
	m.logger.Info("partition deleted", "key", key)
	return nil
}

// Restore brings an ARCHIVED partition back to CLOSED (readable) state for
// a query whose range intersects only archive storage.
func (m *Manager) Restore(ctx context.Context, key string) (*index.Partition, error) {
	m.mu.Lock()
	meta, ok := m.metas[key]
	m.mu.Unlock()
	if !ok || meta.State != StateArchived {
		return nil, fmt.Errorf("partition %s not archived: %w", key, errs.ErrPartitionUnavailable)
	}
	if m.archiver == nil {
		return nil, fmt.Errorf("no archiver configured: %w", errs.ErrArchiveUnavailable)
	}
	dir := filepath.Join(m.root, "partitions", key)
	if err := m.archiver.Restore(ctx, key, dir); err != nil {
		return nil, fmt.Errorf("restore partition %s: %w", key, errs.ErrArchiveUnavailable)
	}
	p, err := m.engine.Open(key)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	meta.State = StateClosed
	m.mu.Unlock()
	return p, nil
}

// ReaderFor returns a read-only Partition handle for key, restoring it from
// archive storage first if needed. It never opens a new, empty partition for
// a key this manager has not seen; the Query Executor only calls this for
// keys returned by KeysInRange.
func (m *Manager) ReaderFor(ctx context.Context, key string) (*index.Partition, error) {
	m.mu.Lock()
	meta, ok := m.metas[key]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("partition %s unknown: %w", key, errs.ErrPartitionUnavailable)
	}
	if meta.State == StateDeleted {
		return nil, fmt.Errorf("partition %s deleted: %w", key, errs.ErrPartitionUnavailable)
	}
	if meta.State == StateArchived {
		return m.Restore(ctx, key)
	}
	return m.engine.Open(key)
}

// KeysInRange returns every known partition key whose bucket overlaps
// [startMillis, endMillis), newest first (keys sort lexicographically in
// time order, per KeyFor), so callers merging per-partition results in key
// order produce the default timestamp-descending order without an extra
// global sort pass.
func (m *Manager) KeysInRange(startMillis, endMillis int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for key, meta := range m.metas {
		if meta.State == StateDeleted {
			continue
		}
		end := KeyEnd(key, m.granularity)
		if !end.IsZero() && startMillis != 0 && end.UnixMilli() <= startMillis {
			continue
		}
		if endMillis != 0 && bucketStartMillis(key, m.granularity) >= endMillis {
			continue
		}
		out = append(out, key)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

func bucketStartMillis(key string, g Granularity) int64 {
	end := KeyEnd(key, g)
	if end.IsZero() {
		return 0
	}
	switch g {
	case Weekly:
		return end.AddDate(0, 0, -7).UnixMilli()
	case Monthly:
		return end.AddDate(0, -1, 0).UnixMilli()
	default:
		return end.AddDate(0, 0, -1).UnixMilli()
	}
}

// State returns the current lifecycle state for key, or StateDeleted with
// false if key is unknown.
func (m *Manager) State(key string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metas[key]
	if !ok {
		return StateDeleted, false
	}
	return meta.State, true
}
