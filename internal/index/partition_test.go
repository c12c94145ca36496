package index

import (
	"context"
	"testing"
	"time"

	"grepwise/internal/logentry"
)

func newTestPartition(t *testing.T) *Partition {
	t.Helper()
	p, err := Open(t.TempDir(), "2026-07-30", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return p
}

func TestIngestThenFind(t *testing.T) {
	p := newTestPartition(t)
	ctx := context.Background()

	e := logentry.New(time.Time{}, time.Now(), "INFO", "checkout failed for order 42", "svc-a", "", nil)
	ids, err := p.AddBatch(ctx, []logentry.LogEntry{e})
	if err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	if len(ids) != 1 || ids[0] != e.ID {
		t.Fatalf("expected committed id %q, got %v", e.ID, ids)
	}

	termPlan := Plan{Criteria: &PredicateExpr{Kind: PredTerm, Value: "checkout"}}
	it, total, err := p.Search(ctx, termPlan)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 result, got %d", total)
	}
	if !it.Next() {
		t.Fatal("expected one iterator result")
	}
	if it.Entry().ID != e.ID {
		t.Errorf("expected entry %q, got %q", e.ID, it.Entry().ID)
	}
}

func TestDefaultOrderingTimestampDescIDAsc(t *testing.T) {
	p := newTestPartition(t)
	ctx := context.Background()

	base := time.Now()
	e1 := logentry.New(base, base, "INFO", "first", "svc-a", "", nil)
	e2 := logentry.New(base, base, "INFO", "second", "svc-a", "", nil)
	if _, err := p.AddBatch(ctx, []logentry.LogEntry{e1, e2}); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	it, _, err := p.Search(ctx, Plan{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	results := it.Remaining()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// Same timestamp: tiebreak is id ascending.
	if results[0].ID > results[1].ID {
		t.Errorf("expected id-ascending tiebreak, got %q before %q", results[0].ID, results[1].ID)
	}
}

func TestDeleteBySourceRemovesOnlyMatchingEntries(t *testing.T) {
	p := newTestPartition(t)
	ctx := context.Background()

	e1 := logentry.New(time.Time{}, time.Now(), "INFO", "hello", "svc-a", "", nil)
	e2 := logentry.New(time.Time{}, time.Now(), "INFO", "hello", "svc-b", "", nil)
	if _, err := p.AddBatch(ctx, []logentry.LogEntry{e1, e2}); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	if err := p.DeleteBySource("svc-a"); err != nil {
		t.Fatalf("DeleteBySource: %v", err)
	}
	if p.EntryCount() != 1 {
		t.Fatalf("expected 1 entry remaining, got %d", p.EntryCount())
	}
}

func TestAddBatchRejectedAfterClose(t *testing.T) {
	p := newTestPartition(t)
	ctx := context.Background()
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	e := logentry.New(time.Time{}, time.Now(), "INFO", "too late", "svc-a", "", nil)
	if _, err := p.AddBatch(ctx, []logentry.LogEntry{e}); err == nil {
		t.Fatal("expected error adding to a closed partition")
	}
}

func TestWALReplayRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	p1, err := Open(dir, "2026-07-30", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	e := logentry.New(time.Time{}, time.Now(), "INFO", "durable entry", "svc-a", "", nil)
	if _, err := p1.AddBatch(ctx, []logentry.LogEntry{e}); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	if err := p1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p2, err := Open(dir, "2026-07-30", nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if p2.EntryCount() != 1 {
		t.Fatalf("expected replay to restore 1 entry, got %d", p2.EntryCount())
	}
}
