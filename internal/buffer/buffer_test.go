package buffer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"grepwise/internal/logentry"
)

type fakeSink struct {
	mu    sync.Mutex
	calls int32
	total int32
}

func (s *fakeSink) RouteAndWrite(ctx context.Context, entries []logentry.LogEntry) ([]string, map[string]error) {
	atomic.AddInt32(&s.calls, 1)
	atomic.AddInt32(&s.total, int32(len(entries)))
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids, nil
}

func TestFlushOnBatchSize(t *testing.T) {
	sink := &fakeSink{}
	b := New(100, 3, time.Hour, sink, nil)
	defer b.Close()

	for i := 0; i < 3; i++ {
		e := logentry.New(time.Time{}, time.Now(), "INFO", "msg", "svc", "", nil)
		if err := b.Enqueue(context.Background(), e, time.Second); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&sink.total) < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected flush by batch size, got total=%d", atomic.LoadInt32(&sink.total))
		case <-time.After(time.Millisecond):
		}
	}
}

func TestFlushOnExplicitRequest(t *testing.T) {
	sink := &fakeSink{}
	b := New(100, 100, time.Hour, sink, nil)
	defer b.Close()

	e := logentry.New(time.Time{}, time.Now(), "INFO", "msg", "svc", "", nil)
	if err := b.Enqueue(context.Background(), e, time.Second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	b.Flush()

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&sink.total) < 1 {
		select {
		case <-deadline:
			t.Fatal("expected explicit Flush to drain the buffer")
		case <-time.After(time.Millisecond):
		}
	}
}

// blockingSink hangs inside RouteAndWrite until block is closed, so the
// flusher goroutine stays out of its receive loop long enough to let the
// bounded channel fill up and Enqueue observe real backpressure.
type blockingSink struct{ block <-chan struct{} }

func (s *blockingSink) RouteAndWrite(ctx context.Context, entries []logentry.LogEntry) ([]string, map[string]error) {
	<-s.block
	return nil, nil
}

func TestEnqueueTimesOutWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{block: block}
	b := New(1, 1, time.Hour, sink, nil)
	defer func() {
		close(block)
		b.Close()
	}()

	e := logentry.New(time.Time{}, time.Now(), "INFO", "msg", "svc", "", nil)
	if err := b.Enqueue(context.Background(), e, time.Second); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	// batchSize=1 means the flusher picks up that entry and is now blocked
	// inside RouteAndWrite; give it time to leave its receive loop, then
	// fill the now-empty channel slot.
	time.Sleep(20 * time.Millisecond)
	if err := b.Enqueue(context.Background(), e, time.Second); err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	if err := b.Enqueue(context.Background(), e, 20*time.Millisecond); err == nil {
		t.Fatal("expected BUFFER_FULL on timeout")
	}
}

func TestCloseFlushesRemainder(t *testing.T) {
	sink := &fakeSink{}
	b := New(100, 100, time.Hour, sink, nil)
	e := logentry.New(time.Time{}, time.Now(), "INFO", "msg", "svc", "", nil)
	if err := b.Enqueue(context.Background(), e, time.Second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if atomic.LoadInt32(&sink.total) != 1 {
		t.Errorf("expected Close to flush the 1 buffered entry, got total=%d", sink.total)
	}
}
