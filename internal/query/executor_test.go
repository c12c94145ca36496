package query

import (
	"context"
	"testing"
	"time"

	"grepwise/internal/index"
	"grepwise/internal/logentry"
)

// fakeReader adapts a single always-open *index.Partition to PartitionReader,
// so executor tests don't need the full Partition Manager lifecycle.
type fakeReader struct {
	key string
	p   *index.Partition
}

func (f *fakeReader) KeysInRange(startMillis, endMillis int64) []string {
	return []string{f.key}
}

func (f *fakeReader) ReaderFor(ctx context.Context, key string) (*index.Partition, error) {
	return f.p, nil
}

func (f *fakeReader) Version() int64 { return 0 }

// multiReader fans out across several independently-seeded partitions, for
// exercising cross-partition merge ordering.
type multiReader struct {
	keys  []string
	parts map[string]*index.Partition
}

func (m *multiReader) KeysInRange(startMillis, endMillis int64) []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *multiReader) ReaderFor(ctx context.Context, key string) (*index.Partition, error) {
	return m.parts[key], nil
}

func (m *multiReader) Version() int64 { return 0 }

func newTestPartition(t *testing.T) *index.Partition {
	t.Helper()
	p, err := index.Open(t.TempDir(), "2026-07-30", logentry.NewRegistry())
	if err != nil {
		t.Fatalf("open partition: %v", err)
	}
	return p
}

func seed(t *testing.T, p *index.Partition, entries ...logentry.LogEntry) {
	t.Helper()
	if _, err := p.AddBatch(context.Background(), entries); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func entryAt(level logentry.Level, message, source string, metadata map[string]string, ts time.Time) logentry.LogEntry {
	return logentry.New(ts, ts, string(level), message, source, message, metadata)
}

func TestExecuteFreeTextSearch(t *testing.T) {
	p := newTestPartition(t)
	now := time.Now().UTC()
	seed(t, p,
		entryAt(logentry.LevelError, "connection timeout to db-1", "app-1", nil, now),
		entryAt(logentry.LevelInfo, "request handled", "app-1", nil, now),
	)
	ex := New(&fakeReader{key: "k", p: p}, nil, nil, nil)

	res, err := ex.Execute(context.Background(), "timeout", Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Message != "connection timeout to db-1" {
		t.Fatalf("got %#v", res.Entries)
	}
}

func TestExecuteFieldEqualityAndLevel(t *testing.T) {
	p := newTestPartition(t)
	now := time.Now().UTC()
	seed(t, p,
		entryAt(logentry.LevelError, "db write failed", "app-1", nil, now),
		entryAt(logentry.LevelWarn, "slow query", "app-1", nil, now),
	)
	ex := New(&fakeReader{key: "k", p: p}, nil, nil, nil)

	res, err := ex.Execute(context.Background(), "level=error", Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Level != logentry.LevelError {
		t.Fatalf("got %#v", res.Entries)
	}
}

func TestExecuteWhereCompareAndStats(t *testing.T) {
	p := newTestPartition(t)
	now := time.Now().UTC()
	seed(t, p,
		entryAt(logentry.LevelInfo, "resp", "svc-a", map[string]string{"status": "200"}, now),
		entryAt(logentry.LevelInfo, "resp", "svc-a", map[string]string{"status": "500"}, now),
		entryAt(logentry.LevelInfo, "resp", "svc-b", map[string]string{"status": "503"}, now),
	)
	ex := New(&fakeReader{key: "k", p: p}, nil, nil, nil)

	res, err := ex.Execute(context.Background(), `level=info | where status >= 500 | stats count by source`, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Stats == nil {
		t.Fatalf("expected grouped stats result, got %#v", res)
	}
	if res.Stats["svc-a"] != 1 || res.Stats["svc-b"] != 1 {
		t.Fatalf("got stats %#v", res.Stats)
	}
}

func TestExecuteMergesPartitionsInDefaultOrder(t *testing.T) {
	base := time.Now().UTC()
	older := newTestPartition(t)
	seed(t, older, entryAt(logentry.LevelInfo, "old", "svc", nil, base.Add(-2*time.Hour)))
	newer := newTestPartition(t)
	seed(t, newer, entryAt(logentry.LevelInfo, "new", "svc", nil, base))

	// Keys deliberately returned oldest-first, as an out-of-order or
	// unavailable-partition reader might: the executor must still produce
	// timestamp-descending output.
	reader := &multiReader{
		keys: []string{"older", "newer"},
		parts: map[string]*index.Partition{
			"older": older,
			"newer": newer,
		},
	}
	ex := New(reader, nil, nil, nil)

	res, err := ex.Execute(context.Background(), "source=svc", Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.Entries) != 2 || res.Entries[0].Message != "new" || res.Entries[1].Message != "old" {
		t.Fatalf("got %#v", res.Entries)
	}
}

func TestExecuteSortThenHead(t *testing.T) {
	p := newTestPartition(t)
	base := time.Now().UTC()
	seed(t, p,
		entryAt(logentry.LevelInfo, "m", "c", map[string]string{"n": "3"}, base),
		entryAt(logentry.LevelInfo, "m", "a", map[string]string{"n": "1"}, base),
		entryAt(logentry.LevelInfo, "m", "b", map[string]string{"n": "2"}, base),
	)
	ex := New(&fakeReader{key: "k", p: p}, nil, nil, nil)

	res, err := ex.Execute(context.Background(), `| sort n | head 2`, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.Entries) != 2 || res.Entries[0].Source != "a" || res.Entries[1].Source != "b" {
		t.Fatalf("got %#v", res.Entries)
	}
}

func TestExecuteEvalFieldReference(t *testing.T) {
	p := newTestPartition(t)
	now := time.Now().UTC()
	seed(t, p, entryAt(logentry.LevelInfo, "m", "svc", map[string]string{"code": "200"}, now))
	ex := New(&fakeReader{key: "k", p: p}, nil, nil, nil)

	res, err := ex.Execute(context.Background(), `| eval status_code = code`, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Metadata["status_code"] != "200" {
		t.Fatalf("got %#v", res.Entries)
	}
}

func TestExecuteEvalArithmeticRejected(t *testing.T) {
	p := newTestPartition(t)
	ex := New(&fakeReader{key: "k", p: p}, nil, nil, nil)
	_, err := ex.Execute(context.Background(), `| eval total = a + b`, Options{})
	if err == nil {
		t.Fatal("expected error for unsupported eval expression")
	}
}

func TestExecuteUnknownCommandWarnsAndContinues(t *testing.T) {
	p := newTestPartition(t)
	now := time.Now().UTC()
	seed(t, p, entryAt(logentry.LevelInfo, "m", "svc", nil, now))
	ex := New(&fakeReader{key: "k", p: p}, nil, nil, nil)

	res, err := ex.Execute(context.Background(), `| rex field=m "pat" | head 1`, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %#v", res.Warnings)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("expected pipeline to continue past unknown command, got %#v", res.Entries)
	}
}
