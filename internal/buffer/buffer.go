// Package buffer provides the bounded ingestion queue all three intake
// paths (file tailer, syslog listener, HTTP intake) write to before the
// Partition Manager routes and commits entries to the Index Engine.
package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"grepwise/internal/errs"
	"grepwise/internal/logentry"
	"grepwise/internal/logging"
	"grepwise/internal/signal"
)

// Sink is the Partition Manager's write path, as the Buffer needs it.
type Sink interface {
	RouteAndWrite(ctx context.Context, entries []logentry.LogEntry) (committed []string, rejected map[string]error)
}

// Buffer is a bounded queue with batch-size and interval flush triggers.
// Per-source ordering is preserved because entries are only ever appended
// to, and drained from, a single channel in FIFO order; cross-source
// interleaving is unspecified.
type Buffer struct {
	ch            chan logentry.LogEntry
	batchSize     int
	flushInterval time.Duration
	sink          Sink
	logger        *slog.Logger

	flushNow *signal.Signal
	done     chan struct{}
	wg       sync.WaitGroup
}

// New starts the background flusher goroutine immediately; callers must
// call Close to stop it and flush anything still buffered.
func New(capacity, batchSize int, flushInterval time.Duration, sink Sink, logger *slog.Logger) *Buffer {
	if batchSize <= 0 {
		batchSize = 1
	}
	b := &Buffer{
		ch:            make(chan logentry.LogEntry, capacity),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		sink:          sink,
		logger:        logging.Default(logger).With("component", "buffer"),
		flushNow:      signal.New(),
		done:          make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// Enqueue attempts to add e, blocking up to timeout. Returns
// errs.ErrBufferFull on timeout; callers apply their own source-specific
// drop/retry/503 policy on that error.
func (b *Buffer) Enqueue(ctx context.Context, e logentry.LogEntry, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case b.ch <- e:
		return nil
	case <-timer.C:
		return fmt.Errorf("enqueue from %s: %w", e.Source, errs.ErrBufferFull)
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return fmt.Errorf("buffer closed: %w", errs.ErrBufferFull)
	}
}

// Flush requests an immediate flush of whatever is currently buffered,
// without waiting for batch-size or interval triggers.
func (b *Buffer) Flush() {
	b.flushNow.Notify()
}

// Close stops accepting new flush/interval ticks, flushes any remaining
// buffered entries, and returns once the background goroutine has exited.
func (b *Buffer) Close() error {
	close(b.done)
	b.wg.Wait()
	return nil
}

func (b *Buffer) run() {
	defer b.wg.Done()
	batch := make([]logentry.LogEntry, 0, b.batchSize)
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		toFlush := batch
		batch = make([]logentry.LogEntry, 0, b.batchSize)
		_, rejected := b.sink.RouteAndWrite(context.Background(), toFlush)
		if len(rejected) > 0 {
			b.logger.Warn("flush rejected entries", "count", len(rejected))
		}
	}

	flushNowCh := b.flushNow.C()
	for {
		select {
		case e := <-b.ch:
			batch = append(batch, e)
			if len(batch) >= b.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-flushNowCh:
			flush()
			flushNowCh = b.flushNow.C()
		case <-b.done:
			for {
				select {
				case e := <-b.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}
