package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"grepwise/internal/alarm"
	"grepwise/internal/buffer"
	"grepwise/internal/index"
	"grepwise/internal/logentry"
	"grepwise/internal/query"
	"grepwise/internal/redact"
)

// fakeReader adapts a single always-open *index.Partition to
// query.PartitionReader, mirroring internal/query's own test fake.
type fakeReader struct {
	key string
	p   *index.Partition
}

func (f *fakeReader) KeysInRange(startMillis, endMillis int64) []string { return []string{f.key} }
func (f *fakeReader) ReaderFor(ctx context.Context, key string) (*index.Partition, error) {
	return f.p, nil
}
func (f *fakeReader) Version() int64 { return 0 }

// fakeSink records every batch buffer.Buffer routes to it, standing in for
// the partition Manager in ingest tests.
type fakeSink struct {
	committed []logentry.LogEntry
}

func (f *fakeSink) RouteAndWrite(ctx context.Context, entries []logentry.LogEntry) ([]string, map[string]error) {
	f.committed = append(f.committed, entries...)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids, nil
}

// fakeAlarmExecutor never matches anything; alarm-handler tests only
// exercise the CRUD surface, not live evaluation.
type fakeAlarmExecutor struct{}

func (fakeAlarmExecutor) Execute(ctx context.Context, queryText string, opts alarm.ExecOptions) (alarm.ExecResult, error) {
	return alarm.ExecResult{}, nil
}

func newTestPartition(t *testing.T) *index.Partition {
	t.Helper()
	p, err := index.Open(t.TempDir(), "2026-07-30", logentry.NewRegistry())
	if err != nil {
		t.Fatalf("open partition: %v", err)
	}
	return p
}

func newTestServer(t *testing.T, p *index.Partition) *Server {
	t.Helper()
	sink := &fakeSink{}
	buf := buffer.New(16, 4, 50*time.Millisecond, sink, nil)

	reader := &fakeReader{key: "k", p: p}
	redactor, err := redact.New(redact.DefaultConfig())
	if err != nil {
		t.Fatalf("new redactor: %v", err)
	}
	executor := query.New(reader, nil, redactor, nil)
	rawExecutor := query.New(reader, nil, nil, nil)

	alarmStore := alarm.NewStore()
	scheduler, err := alarm.NewScheduler(alarmStore, fakeAlarmExecutor{}, redactor, nil, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	t.Cleanup(func() { scheduler.Stop() })

	return New(buf, executor, rawExecutor, alarmStore, scheduler, redactor, nil, nil, Config{})
}

func TestHandleIngestAccepted(t *testing.T) {
	p := newTestPartition(t)
	srv := newTestServer(t, p)

	body := bytes.NewBufferString(`{"message":"hello world","source":"app-1","level":"info"}`)
	req := httptest.NewRequest("POST", "/logs", body)
	rr := httptest.NewRecorder()
	srv.buildMux().ServeHTTP(rr, req)

	if rr.Code != 202 {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleIngestRejectsEmptyMessage(t *testing.T) {
	p := newTestPartition(t)
	srv := newTestServer(t, p)

	body := bytes.NewBufferString(`{"source":"app-1"}`)
	req := httptest.NewRequest("POST", "/logs", body)
	rr := httptest.NewRecorder()
	srv.buildMux().ServeHTTP(rr, req)

	if rr.Code != 400 {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleSearchRedactsByDefault(t *testing.T) {
	p := newTestPartition(t)
	now := time.Now().UTC()
	if _, err := p.AddBatch(context.Background(), []logentry.LogEntry{
		logentry.New(now, now, "INFO", "login attempt password=hunter2", "app-1", "login attempt password=hunter2", nil),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	srv := newTestServer(t, p)

	req := httptest.NewRequest("GET", "/logs/search?q=password", nil)
	rr := httptest.NewRecorder()
	srv.buildMux().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp searchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].Message == "login attempt password=hunter2" {
		t.Fatal("expected message to be redacted by default")
	}
}

func TestHandleGetByIDRevealRequiresAuthorization(t *testing.T) {
	p := newTestPartition(t)
	now := time.Now().UTC()
	entries, err := p.AddBatch(context.Background(), []logentry.LogEntry{
		logentry.New(now, now, "INFO", "password=hunter2", "app-1", "password=hunter2", nil),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	srv := newTestServer(t, p)
	id := entries[0]

	req := httptest.NewRequest("GET", "/logs/"+id+"?reveal=true", nil)
	req.SetPathValue("id", id)
	rr := httptest.NewRecorder()
	srv.handleGetByID(rr, req)

	if rr.Code != 403 {
		t.Fatalf("expected 403 for unauthorized reveal, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleGetByIDWithoutReveal(t *testing.T) {
	p := newTestPartition(t)
	now := time.Now().UTC()
	entries, err := p.AddBatch(context.Background(), []logentry.LogEntry{
		logentry.New(now, now, "INFO", "password=hunter2", "app-1", "password=hunter2", nil),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	srv := newTestServer(t, p)
	id := entries[0]

	req := httptest.NewRequest("GET", "/logs/"+id, nil)
	req.SetPathValue("id", id)
	rr := httptest.NewRecorder()
	srv.handleGetByID(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got logentry.LogEntry
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Message == "password=hunter2" {
		t.Fatal("expected message to be redacted without reveal")
	}
}

func TestHandleAlarmCRUD(t *testing.T) {
	p := newTestPartition(t)
	srv := newTestServer(t, p)
	mux := srv.buildMux()

	create := bytes.NewBufferString(`{"id":"a1","name":"too many errors","query":"level=error","intervalMillis":60000,"windowMillis":60000,"thresholdOp":">","thresholdValue":5,"enabled":true}`)
	req := httptest.NewRequest("POST", "/alarms", create)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != 201 {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest("GET", "/alarms/a1", nil)
	req.SetPathValue("id", "a1")
	rr = httptest.NewRecorder()
	srv.handleGetAlarm(rr, req)
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	req = httptest.NewRequest("DELETE", "/alarms/a1", nil)
	req.SetPathValue("id", "a1")
	rr = httptest.NewRecorder()
	srv.handleDeleteAlarm(rr, req)
	if rr.Code != 204 {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestHandleRedactionReload(t *testing.T) {
	p := newTestPartition(t)
	srv := newTestServer(t, p)

	req := httptest.NewRequest("POST", "/redaction/reload", nil)
	rr := httptest.NewRecorder()
	srv.handleReloadRedaction(rr, req)

	// No redactStore configured in this test server: expect 400, not a panic.
	if rr.Code != 400 {
		t.Fatalf("expected 400 with no redactStore configured, got %d", rr.Code)
	}
}
