package alarm

import (
	"context"
	"sync"
	"testing"
	"time"

	"grepwise/internal/logentry"
)

type fakeExecutor struct {
	entryCount int
}

func (f *fakeExecutor) Execute(ctx context.Context, queryText string, opts ExecOptions) (ExecResult, error) {
	entries := make([]logentry.LogEntry, f.entryCount)
	for i := range entries {
		entries[i] = logentry.New(time.Now(), time.Now(), "ERROR", "boom", "svc", "boom", nil)
	}
	return ExecResult{Entries: entries}, nil
}

type recordingSink struct {
	mu  sync.Mutex
	got []Notification
}

func (r *recordingSink) Name() string { return "test" }

func (r *recordingSink) Send(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func newTestScheduler(t *testing.T, exec *fakeExecutor, sink *recordingSink) (*Scheduler, *Store) {
	t.Helper()
	store := NewStore()
	if err := store.Create(Alarm{
		ID: "a1", Name: "errors>10 in 5m", Query: "level=error",
		WindowMillis: 5 * 60 * 1000, ThresholdOp: OpGreaterThan, ThresholdValue: 10,
		IntervalMillis: 60_000, ThrottleMillis: 10 * 60 * 1000, Channels: []string{"test"},
		Enabled: true, LastState: StateOK,
	}); err != nil {
		t.Fatalf("create alarm: %v", err)
	}
	s, err := NewScheduler(store, exec, nil, map[string]Sink{"test": sink}, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, store
}

func TestAlarmFiresOnceThenThrottlesResend(t *testing.T) {
	exec := &fakeExecutor{entryCount: 11}
	sink := &recordingSink{}
	s, store := newTestScheduler(t, exec, sink)

	base := time.Unix(1700000000, 0).UTC()
	s.now = func() time.Time { return base }

	if err := s.EvaluateNow(context.Background(), "a1"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	a, _ := store.Get("a1")
	if a.LastState != StateFiring {
		t.Fatalf("expected FIRING after first breach, got %s", a.LastState)
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", sink.count())
	}

	// 6 minutes later, still above threshold: throttled, no resend.
	exec.entryCount = 12
	s.now = func() time.Time { return base.Add(6 * time.Minute) }
	if err := s.EvaluateNow(context.Background(), "a1"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected resend suppressed by throttle, got %d notifications", sink.count())
	}
	a, _ = store.Get("a1")
	if a.LastState != StateFiring {
		t.Fatalf("expected still FIRING, got %s", a.LastState)
	}

	// 11 minutes after the original fire: throttle window elapsed, resend allowed.
	s.now = func() time.Time { return base.Add(11 * time.Minute) }
	if err := s.EvaluateNow(context.Background(), "a1"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if sink.count() != 2 {
		t.Fatalf("expected resend allowed after throttle elapses, got %d notifications", sink.count())
	}
}

func TestAlarmResolvesToOKWhenPredicateFalse(t *testing.T) {
	exec := &fakeExecutor{entryCount: 11}
	sink := &recordingSink{}
	s, store := newTestScheduler(t, exec, sink)
	base := time.Unix(1700000000, 0).UTC()
	s.now = func() time.Time { return base }

	if err := s.EvaluateNow(context.Background(), "a1"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	exec.entryCount = 2
	s.now = func() time.Time { return base.Add(time.Minute) }
	if err := s.EvaluateNow(context.Background(), "a1"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	a, _ := store.Get("a1")
	if a.LastState != StateOK {
		t.Fatalf("expected OK once predicate is false, got %s", a.LastState)
	}
	if sink.count() != 1 {
		t.Fatalf("expected no additional notification on resolve, got %d", sink.count())
	}
}

func TestAlarmGroupByTracksIndependentSubStates(t *testing.T) {
	store := NewStore()
	if err := store.Create(Alarm{
		ID: "a2", Name: "errors by source", Query: "level=error",
		WindowMillis: 60_000, ThresholdOp: OpGreaterThan, ThresholdValue: 5,
		IntervalMillis: 60_000, ThrottleMillis: 60_000, GroupBy: []string{"source"},
		Channels: []string{"test"}, Enabled: true, LastState: StateOK,
	}); err != nil {
		t.Fatalf("create alarm: %v", err)
	}
	sink := &recordingSink{}
	groupExec := &groupedFakeExecutor{stats: map[string]int64{"svc-a": 6, "svc-b": 1}}
	s, err := NewScheduler(store, groupExec, nil, map[string]Sink{"test": sink}, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	base := time.Unix(1700000000, 0).UTC()
	s.now = func() time.Time { return base }

	if err := s.EvaluateNow(context.Background(), "a2"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	a, _ := store.Get("a2")
	if a.Groups["svc-a"].State != StateFiring {
		t.Fatalf("expected svc-a FIRING, got %s", a.Groups["svc-a"].State)
	}
	if a.Groups["svc-b"].State != StateOK {
		t.Fatalf("expected svc-b OK, got %s", a.Groups["svc-b"].State)
	}
	if sink.count() != 1 {
		t.Fatalf("expected exactly one group to notify, got %d", sink.count())
	}
}

type groupedFakeExecutor struct {
	stats map[string]int64
}

func (g *groupedFakeExecutor) Execute(ctx context.Context, queryText string, opts ExecOptions) (ExecResult, error) {
	return ExecResult{Stats: g.stats}, nil
}
