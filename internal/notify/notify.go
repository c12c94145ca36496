// Package notify implements GrepWise's Notification Sinks (C11): concrete
// alarm.Sink implementations that deliver an alarm.Notification to an
// external channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"grepwise/internal/alarm"
)

// WebhookSink posts a JSON payload to an arbitrary HTTP endpoint. Slack
// incoming-webhooks and generic webhook receivers both fit this shape; the
// corpus carries no Slack SDK, so this is the one channel type built
// directly on net/http rather than a client library.
type WebhookSink struct {
	name   string
	url    string
	client *http.Client
}

// NewWebhookSink returns a WebhookSink posting to url under name.
func NewWebhookSink(name, url string) *WebhookSink {
	return &WebhookSink{name: name, url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *WebhookSink) Name() string { return w.name }

// webhookPayload is the JSON body posted on every delivery; field names
// match the payload shape named for notification channels.
type webhookPayload struct {
	AlarmID       string   `json:"alarm_id"`
	Name          string   `json:"name"`
	GroupKey      string   `json:"group_key,omitempty"`
	ObservedValue float64  `json:"observed_value"`
	Threshold     float64  `json:"threshold"`
	Timestamp     int64    `json:"timestamp"`
	SampleLogs    []string `json:"sample_logs,omitempty"`
}

func (w *WebhookSink) Send(ctx context.Context, n alarm.Notification) error {
	body, err := json.Marshal(webhookPayload{
		AlarmID: n.AlarmID, Name: n.Name, GroupKey: n.GroupKey,
		ObservedValue: n.ObservedValue, Threshold: n.Threshold,
		Timestamp: n.TimestampMS, SampleLogs: n.SampleLogs,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s responded %s", w.name, resp.Status)
	}
	return nil
}

// EmailSink delivers a notification over SMTP. No ecosystem mail client
// appears anywhere in the reference corpus, so this is built on net/smtp.
type EmailSink struct {
	name       string
	smtpAddr   string
	auth       smtp.Auth
	from       string
	recipients []string
}

// NewEmailSink returns an EmailSink sending through smtpAddr ("host:port"),
// optionally authenticated with auth (nil for an open relay).
func NewEmailSink(name, smtpAddr string, auth smtp.Auth, from string, recipients []string) *EmailSink {
	return &EmailSink{name: name, smtpAddr: smtpAddr, auth: auth, from: from, recipients: recipients}
}

func (e *EmailSink) Name() string { return e.name }

func (e *EmailSink) Send(ctx context.Context, n alarm.Notification) error {
	msg := buildEmailMessage(e.from, e.recipients, n)
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(e.smtpAddr, e.auth, e.from, e.recipients, msg)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email via %s: %w", e.smtpAddr, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildEmailMessage(from string, recipients []string, n alarm.Notification) []byte {
	subject := fmt.Sprintf("GrepWise alarm: %s", n.Name)
	if n.GroupKey != "" {
		subject = fmt.Sprintf("%s [%s]", subject, n.GroupKey)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "alarm_id: %s\n", n.AlarmID)
	fmt.Fprintf(&b, "observed_value: %g\n", n.ObservedValue)
	fmt.Fprintf(&b, "threshold: %g\n", n.Threshold)
	fmt.Fprintf(&b, "timestamp: %d\n", n.TimestampMS)
	if len(n.SampleLogs) > 0 {
		b.WriteString("sample_logs:\n")
		for _, s := range n.SampleLogs {
			fmt.Fprintf(&b, "  %s\n", s)
		}
	}
	return []byte(b.String())
}

var _ alarm.Sink = (*WebhookSink)(nil)
var _ alarm.Sink = (*EmailSink)(nil)
