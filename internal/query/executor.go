// Package query compiles GrepWise's piped search-query language into an
// index.Plan, fans it out across the partitions a time range touches, and
// applies the in-memory pipe stages (where/stats/sort/head/tail/eval) that
// the Index Engine itself knows nothing about.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"grepwise/internal/errs"
	"grepwise/internal/index"
	"grepwise/internal/logentry"
	"grepwise/internal/logging"
	"grepwise/internal/partition"
	"grepwise/internal/querylang"
	"grepwise/internal/redact"
	"grepwise/internal/searchcache"
)

// PartitionReader is the subset of *partition.Manager the Executor needs,
// narrowed so tests can substitute an in-memory fake.
type PartitionReader interface {
	KeysInRange(startMillis, endMillis int64) []string
	ReaderFor(ctx context.Context, key string) (*index.Partition, error)
	Version() int64
}

// Executor runs parsed SPL pipelines against the index, merging results
// across partitions and evaluating where/stats/sort/head/tail/eval in
// memory on the merged stream.
type Executor struct {
	reader   PartitionReader
	cache    *searchcache.Cache
	redactor *redact.Redactor
	logger   *slog.Logger
}

// New returns an Executor. cache and redactor may be nil to disable caching
// and redaction respectively (the latter only appropriate for tests).
func New(reader PartitionReader, cache *searchcache.Cache, redactor *redact.Redactor, logger *slog.Logger) *Executor {
	return &Executor{
		reader:   reader,
		cache:    cache,
		redactor: redactor,
		logger:   logging.Default(logger).With("component", "query"),
	}
}

// Options bounds a single query's execution.
type Options struct {
	Range index.TimeRange
	Limit int // 0 means unbounded; head/tail stages still apply on top
}

// Result is what Execute returns: either a log-entry stream (Entries) or,
// for a pipeline ending in `stats`, a grouped count mapping (Stats).
type Result struct {
	Entries    []logentry.LogEntry
	Total      int
	Stats      map[string]int64
	StatsField string // "" for ungrouped `stats count`
	Warnings   []string
}

// Execute parses queryText, compiles its search-stage filter into an
// index.Plan, runs it across every partition Opts.Range touches, and
// applies the pipeline's remaining stages in memory.
func (ex *Executor) Execute(ctx context.Context, queryText string, opts Options) (Result, error) {
	pipe, err := querylang.ParsePipeline(queryText)
	if err != nil {
		return Result{}, fmt.Errorf("parse query: %w: %v", errs.ErrQuerySyntax, err)
	}

	criteria, err := compileFilter(pipe.Filter)
	if err != nil {
		return Result{}, err
	}
	plan := index.Plan{Criteria: criteria, Range: opts.Range}

	if ex.cache == nil {
		return ex.run(ctx, plan, pipe, opts)
	}

	stages := (&querylang.Pipeline{Pipes: pipe.Pipes}).String()
	fp := searchcache.Fingerprint(searchcache.NormalizeExpr(criteria)+" | "+stages, opts.Range, plan.Sort, opts.Limit, ex.reader.Version())
	runPipe := pipe
	if trailingStats(pipe) != nil {
		runPipe = &querylang.Pipeline{Filter: pipe.Filter, Pipes: pipe.Pipes[:len(pipe.Pipes)-1]}
	}
	entry, err := ex.cache.Get(ctx, fp, func(ctx context.Context) (searchcache.Entry, error) {
		res, err := ex.run(ctx, plan, runPipe, opts)
		if err != nil {
			return searchcache.Entry{}, err
		}
		return searchcache.Entry{Results: res.Entries, Total: res.Total, Warnings: res.Warnings}, nil
	})
	if err != nil {
		return Result{}, err
	}
	// Stats-ending pipelines are never cached as a flat entry list (the
	// aggregation itself is cheap to recompute and depends on group-by
	// shape); only the merged, where/eval-applied entry stream is cached.
	if statsOp := trailingStats(pipe); statsOp != nil {
		stats, field := aggregate(entry.Results, statsOp)
		return Result{Stats: stats, StatsField: field, Warnings: entry.Warnings}, nil
	}
	return Result{Entries: entry.Results, Total: entry.Total, Warnings: entry.Warnings}, nil
}

// run performs the actual partition fan-out plus in-memory stage evaluation,
// uncached.
func (ex *Executor) run(ctx context.Context, plan index.Plan, pipe *querylang.Pipeline, opts Options) (Result, error) {
	keys := ex.reader.KeysInRange(plan.Range.StartMillis, plan.Range.EndMillis)

	var merged []logentry.LogEntry
	for _, key := range keys {
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("search: %w", errs.ErrQueryTimeout)
		default:
		}
		p, err := ex.reader.ReaderFor(ctx, key)
		if err != nil {
			ex.logger.Warn("skipping unavailable partition", "key", key, "error", err)
			continue
		}
		it, _, err := p.Search(ctx, plan)
		if err != nil {
			if errs.Kind(err) == errs.ErrQueryTimeout {
				return Result{}, err
			}
			ex.logger.Warn("partition search failed", "key", key, "error", err)
			continue
		}
		for it.Next() {
			merged = append(merged, it.Entry())
		}
	}

	// Each partition block above is already ordered by plan.Sort (default
	// timestamp desc, id asc), and KeysInRange returns keys newest-first, so
	// concatenation is already globally ordered in the common case. Sort
	// defensively anyway: ReaderFor/Search failures can drop partitions out
	// of order, and nothing here guarantees every partition honored the same
	// Sort. Skipped when the pipeline has its own explicit sort stage, which
	// always runs later and would just redo this work.
	if !hasSortOp(pipe) {
		sortDefault(merged)
	}

	var warnings []string
	for _, op := range pipe.Pipes {
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("pipeline stage: %w", errs.ErrQueryTimeout)
		default:
		}
		switch o := op.(type) {
		case *querylang.WhereOp:
			merged = filterWhere(merged, o.Cond)
		case *querylang.SortOp:
			sortByFields(merged, o.Fields)
		case *querylang.HeadOp:
			if o.N < len(merged) {
				merged = merged[:o.N]
			}
		case *querylang.TailOp:
			if o.N < len(merged) {
				merged = merged[len(merged)-o.N:]
			}
		case *querylang.EvalOp:
			applyEval(merged, o.Assignments)
		case *querylang.StatsOp:
			// A trailing stats stage is applied after the loop via
			// trailingStats/aggregate; a stats stage that is not last
			// (e.g. "stats | sort") is ignored.
		case *querylang.UnknownOp:
			ex.logger.Warn("unknown pipe command, skipping", "command", o.Name, "raw", o.Raw)
			warnings = append(warnings, fmt.Sprintf("unknown command %q skipped", o.Name))
		}
	}

	if opts.Limit > 0 && opts.Limit < len(merged) {
		merged = merged[:opts.Limit]
	}

	total := len(merged)
	if ex.redactor != nil {
		for i := range merged {
			merged[i] = ex.redactor.Redact(merged[i], redact.MaskSearch)
		}
	}

	if statsOp := trailingStats(pipe); statsOp != nil {
		stats, field := aggregate(merged, statsOp)
		return Result{Stats: stats, StatsField: field, Warnings: warnings}, nil
	}
	return Result{Entries: merged, Total: total, Warnings: warnings}, nil
}

// trailingStats returns the pipeline's StatsOp if the last pipe stage is one,
// matching the spec's "grouped mapping for aggregating pipelines ending in
// stats" result shape.
func trailingStats(pipe *querylang.Pipeline) *querylang.StatsOp {
	if len(pipe.Pipes) == 0 {
		return nil
	}
	if s, ok := pipe.Pipes[len(pipe.Pipes)-1].(*querylang.StatsOp); ok {
		return s
	}
	return nil
}

func aggregate(entries []logentry.LogEntry, op *querylang.StatsOp) (map[string]int64, string) {
	out := make(map[string]int64)
	if len(op.Groups) == 0 {
		out["count"] = int64(len(entries))
		return out, ""
	}
	field := op.Groups[0]
	for _, e := range entries {
		key := fieldValue(e, field)
		out[key]++
	}
	return out, field
}

func fieldValue(e logentry.LogEntry, field string) string {
	switch strings.ToLower(field) {
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

// hasSortOp reports whether pipe carries an explicit sort stage, which takes
// over ordering entirely and makes the default merge sort redundant.
func hasSortOp(pipe *querylang.Pipeline) bool {
	for _, op := range pipe.Pipes {
		if _, ok := op.(*querylang.SortOp); ok {
			return true
		}
	}
	return false
}

// sortDefault applies the engine's default order (timestamp desc, id asc) to
// a merged cross-partition result set.
func sortDefault(entries []logentry.LogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp > entries[j].Timestamp
		}
		return entries[i].ID < entries[j].ID
	})
}

func sortByFields(entries []logentry.LogEntry, fields []querylang.SortField) {
	sort.SliceStable(entries, func(i, j int) bool {
		for _, f := range fields {
			vi, vj := fieldValue(entries[i], f.Name), fieldValue(entries[j], f.Name)
			if vi == vj {
				continue
			}
			// Missing values sort last regardless of direction.
			if vi == "" {
				return false
			}
			if vj == "" {
				return true
			}
			if ni, nj, ok := bothNumeric(vi, vj); ok {
				if f.Desc {
					return ni > nj
				}
				return ni < nj
			}
			if f.Desc {
				return vi > vj
			}
			return vi < vj
		}
		return entries[i].ID < entries[j].ID
	})
}

func bothNumeric(a, b string) (float64, float64, bool) {
	na, errA := strconv.ParseFloat(a, 64)
	nb, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return na, nb, true
}

func applyEval(entries []logentry.LogEntry, assignments []querylang.EvalAssignment) {
	for i := range entries {
		if entries[i].Metadata == nil {
			entries[i].Metadata = make(map[string]string, len(assignments))
		}
		for _, a := range assignments {
			switch v := a.Expr.(type) {
			case *querylang.NumberLit:
				entries[i].Metadata[a.Field] = v.Value
			case *querylang.FieldRef:
				entries[i].Metadata[a.Field] = fieldValue(entries[i], v.Name)
			}
		}
	}
}
