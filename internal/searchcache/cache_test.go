package searchcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetCachesAfterFirstBuild(t *testing.T) {
	c, err := New(10, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var builds int32
	build := func(ctx context.Context) (Entry, error) {
		atomic.AddInt32(&builds, 1)
		return Entry{Total: 7}, nil
	}

	for i := 0; i < 3; i++ {
		entry, err := c.Get(context.Background(), "fp1", build)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if entry.Total != 7 {
			t.Errorf("expected Total 7, got %d", entry.Total)
		}
	}
	if builds != 1 {
		t.Errorf("expected exactly 1 build, got %d", builds)
	}
}

func TestConcurrentGetSharesOneBuild(t *testing.T) {
	c, err := New(10, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var builds int32
	start := make(chan struct{})
	build := func(ctx context.Context) (Entry, error) {
		atomic.AddInt32(&builds, 1)
		<-start
		return Entry{Total: 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background(), "shared", build); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(start)
	wg.Wait()

	if builds != 1 {
		t.Errorf("expected exactly 1 build across concurrent callers, got %d", builds)
	}
}

func TestBuildFailureIsNotCached(t *testing.T) {
	c, err := New(10, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wantErr := errors.New("boom")
	var builds int32
	build := func(ctx context.Context) (Entry, error) {
		atomic.AddInt32(&builds, 1)
		return Entry{}, wantErr
	}

	if _, err := c.Get(context.Background(), "fails", build); err != wantErr {
		t.Fatalf("expected build error, got %v", err)
	}
	if _, err := c.Get(context.Background(), "fails", build); err != wantErr {
		t.Fatalf("expected second build error, got %v", err)
	}
	if builds != 2 {
		t.Errorf("expected each failed Get to rebuild, got %d builds", builds)
	}
}

func TestExpiredEntryRebuilds(t *testing.T) {
	c, err := New(10, time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var builds int32
	build := func(ctx context.Context) (Entry, error) {
		atomic.AddInt32(&builds, 1)
		return Entry{}, nil
	}
	if _, err := c.Get(context.Background(), "ttl", build); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := c.Get(context.Background(), "ttl", build); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if builds != 2 {
		t.Errorf("expected expiry to force a rebuild, got %d builds", builds)
	}
}
