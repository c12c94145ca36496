package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"grepwise/internal/errs"
	"grepwise/internal/logentry"
)

// state tracks whether a Partition accepts writes, reads, or neither. The
// Partition Manager owns the OPEN/ACTIVE/CLOSED/ARCHIVED/DELETED lifecycle;
// a Partition handle here only needs to know whether it still accepts
// writes (writable) and whether it has been released (closed).
type state int

const (
	stateWritable state = iota
	stateReadOnly
	stateClosed
	stateQuarantined
)

// Partition is an exclusive write handle (shared-read) onto one partition's
// on-disk directory. Multiple concurrent Search calls are safe; AddBatch,
// DeleteByRange, and DeleteBySource are serialized against each other and
// against Search by mu.
type Partition struct {
	key string
	dir string

	mu    sync.RWMutex
	st    state
	walFh *os.File

	registry *logentry.Registry

	docs       map[string]logentry.LogEntry
	tokenIdx   map[string]map[string]struct{}            // token -> ids
	fieldIdx   map[string]map[string]map[string]struct{} // field -> value -> ids
	numericDV  map[string]map[string]float64             // field -> id -> numeric value
}

// Open opens (creating if necessary) the partition directory at dir and
// replays its write-ahead log to rebuild the in-memory index. registry
// supplies the Field Registry used to classify extracted-field doc values
// as string or numeric.
func Open(dir, key string, registry *logentry.Registry) (*Partition, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create partition dir: %w", errs.ErrIndexIO)
	}

	p := &Partition{
		key:       key,
		dir:       dir,
		registry:  registry,
		docs:      make(map[string]logentry.LogEntry),
		tokenIdx:  make(map[string]map[string]struct{}),
		fieldIdx:  make(map[string]map[string]map[string]struct{}),
		numericDV: make(map[string]map[string]float64),
	}

	walPath := filepath.Join(dir, "wal.mpk")
	entries, err := replayWAL(walPath)
	if err != nil {
		p.st = stateQuarantined
		return p, err
	}
	for _, e := range entries {
		p.index(e)
	}

	fh, err := os.OpenFile(walPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wal for append: %w", errs.ErrIndexIO)
	}
	p.walFh = fh
	return p, nil
}

// Key returns the partition's time-bucket key.
func (p *Partition) Key() string { return p.key }

// MarkReadOnly stops accepting writes (CLOSED transition) without releasing
// resources; Search remains available.
func (p *Partition) MarkReadOnly() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st == stateWritable {
		p.st = stateReadOnly
	}
}

// Quarantined reports whether replay found unrecoverable corruption.
func (p *Partition) Quarantined() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.st == stateQuarantined
}

// EntryCount returns the number of committed entries.
func (p *Partition) EntryCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.docs)
}

// AddBatch commits entries atomically: either all become visible to Search
// or none do. IDs that are already committed panic would be a bug; callers
// assign fresh IDs via logentry.New, so collisions are not expected within
// a partition's lifetime.
func (p *Partition) AddBatch(ctx context.Context, entries []logentry.LogEntry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.st {
	case stateClosed:
		return nil, fmt.Errorf("partition %s: %w", p.key, errs.ErrPartitionUnavailable)
	case stateReadOnly:
		return nil, fmt.Errorf("partition %s: %w", p.key, errs.ErrPartitionUnavailable)
	case stateQuarantined:
		return nil, fmt.Errorf("partition %s: %w", p.key, errs.ErrIndexCorrupt)
	}

	if err := appendRecord(p.walFh, entries); err != nil {
		// Nothing was indexed yet, so there is nothing to roll back: the
		// batch simply never became visible.
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		p.index(e)
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// index adds one already-durable entry to the in-memory structures. Callers
// must hold mu.
func (p *Partition) index(e logentry.LogEntry) {
	p.docs[e.ID] = e

	for _, tok := range Tokenize(e.Message) {
		set := p.tokenIdx[tok]
		if set == nil {
			set = make(map[string]struct{})
			p.tokenIdx[tok] = set
		}
		set[e.ID] = struct{}{}
	}

	p.addFieldValue("level", string(e.Level), e.ID)
	p.addFieldValue("source", e.Source, e.ID)

	if p.registry == nil {
		return
	}
	for _, def := range p.registry.Fields() {
		val, ok := e.Metadata[def.Name]
		if !ok {
			continue
		}
		switch def.Kind {
		case logentry.FieldLong, logentry.FieldDouble:
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				dv := p.numericDV[def.Name]
				if dv == nil {
					dv = make(map[string]float64)
					p.numericDV[def.Name] = dv
				}
				dv[e.ID] = f
			}
		default:
			p.addFieldValue(def.Name, val, e.ID)
		}
	}
}

func (p *Partition) addFieldValue(field, value, id string) {
	vals := p.fieldIdx[field]
	if vals == nil {
		vals = make(map[string]map[string]struct{})
		p.fieldIdx[field] = vals
	}
	set := vals[value]
	if set == nil {
		set = make(map[string]struct{})
		vals[value] = set
	}
	set[id] = struct{}{}
}

// DeleteByRange removes every entry whose Timestamp falls in [start, end).
func (p *Partition) DeleteByRange(startMillis, endMillis int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.docs {
		if e.Timestamp >= startMillis && (endMillis == 0 || e.Timestamp < endMillis) {
			p.removeLocked(id)
		}
	}
	return nil
}

// DeleteBySource removes every entry with the given Source.
func (p *Partition) DeleteBySource(source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.docs {
		if e.Source == source {
			p.removeLocked(id)
		}
	}
	return nil
}

func (p *Partition) removeLocked(id string) {
	e, ok := p.docs[id]
	if !ok {
		return
	}
	delete(p.docs, id)
	for _, tok := range Tokenize(e.Message) {
		if set := p.tokenIdx[tok]; set != nil {
			delete(set, id)
		}
	}
	for _, vals := range p.fieldIdx {
		for _, set := range vals {
			delete(set, id)
		}
	}
	for _, dv := range p.numericDV {
		delete(dv, id)
	}
}

// Close flushes and releases the partition's WAL handle. Subsequent
// AddBatch calls fail with ErrPartitionUnavailable; Search still works
// against the in-memory snapshot until the process exits.
func (p *Partition) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st = stateClosed
	if p.walFh != nil {
		return p.walFh.Close()
	}
	return nil
}

// Search evaluates plan against the committed entries and returns a result
// iterator plus a total-count estimate (exact, since matching is in-memory).
func (p *Partition) Search(ctx context.Context, plan Plan) (*ResultIterator, int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.st == stateQuarantined {
		return nil, 0, fmt.Errorf("partition %s: %w", p.key, errs.ErrIndexCorrupt)
	}

	matched := make([]logentry.LogEntry, 0, len(p.docs))
	for _, e := range p.docs {
		select {
		case <-ctx.Done():
			return nil, 0, fmt.Errorf("search partition %s: %w", p.key, errs.ErrQueryTimeout)
		default:
		}
		if plan.Range.StartMillis != 0 && e.Timestamp < plan.Range.StartMillis {
			continue
		}
		if plan.Range.EndMillis != 0 && e.Timestamp >= plan.Range.EndMillis {
			continue
		}
		if plan.Criteria != nil && !p.evalLocked(plan.Criteria, e) {
			continue
		}
		matched = append(matched, e)
	}

	sortEntries(matched, plan.Sort)
	return newResultIterator(matched), len(matched), nil
}

// StatsCount aggregates committed entries by field, honoring plan's filter
// and time range but ignoring its sort. Used by the Executor's
// `stats count by <field>` support; numeric doc-value columns are bucketed
// by their raw value, matching string-field stats semantics.
func (p *Partition) StatsCount(ctx context.Context, plan Plan, field string) (map[string]int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]int64)
	for id, e := range p.docs {
		if plan.Range.StartMillis != 0 && e.Timestamp < plan.Range.StartMillis {
			continue
		}
		if plan.Range.EndMillis != 0 && e.Timestamp >= plan.Range.EndMillis {
			continue
		}
		if plan.Criteria != nil && !p.evalLocked(plan.Criteria, e) {
			continue
		}
		key := p.groupKey(field, id, e)
		out[key]++
	}
	return out, nil
}

func (p *Partition) groupKey(field, id string, e logentry.LogEntry) string {
	switch field {
	case "level":
		return string(e.Level)
	case "source":
		return e.Source
	default:
		if dv, ok := p.numericDV[field]; ok {
			if v, ok := dv[id]; ok {
				return strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		return e.Metadata[field]
	}
}

func sortEntries(entries []logentry.LogEntry, spec SortSpec) {
	switch spec.Field {
	case "", "timestamp":
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Timestamp != entries[j].Timestamp {
				if spec.Desc || spec.Field == "" {
					return entries[i].Timestamp > entries[j].Timestamp
				}
				return entries[i].Timestamp < entries[j].Timestamp
			}
			return entries[i].ID < entries[j].ID
		})
	default:
		sort.Slice(entries, func(i, j int) bool {
			vi, vj := fieldString(entries[i], spec.Field), fieldString(entries[j], spec.Field)
			if vi != vj {
				if spec.Desc {
					return vi > vj
				}
				return vi < vj
			}
			return entries[i].ID < entries[j].ID
		})
	}
}

func fieldString(e logentry.LogEntry, field string) string {
	switch field {
	case "id":
		return e.ID
	case "level":
		return string(e.Level)
	case "source":
		return e.Source
	case "message":
		return e.Message
	default:
		return e.Metadata[field]
	}
}
