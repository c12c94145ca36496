package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"grepwise/internal/alarm"
)

func TestWebhookSinkPostsJSONPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink("slack", srv.URL)
	err := sink.Send(context.Background(), alarm.Notification{
		AlarmID: "a1", Name: "errors>10 in 5m", ObservedValue: 11, Threshold: 10,
		TimestampMS: 1700000000000, SampleLogs: []string{"boom"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.AlarmID != "a1" || got.ObservedValue != 11 || len(got.SampleLogs) != 1 {
		t.Fatalf("unexpected payload: %#v", got)
	}
}

func TestWebhookSinkErrorsOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink("slack", srv.URL)
	err := sink.Send(context.Background(), alarm.Notification{AlarmID: "a1"})
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
}
