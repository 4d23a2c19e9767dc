package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/slack-go/slack"
)

func sampleEvent() Event {
	return Event{
		Type:      EventRunCompleted,
		RunID:     "a1b2c3d4",
		Title:     "Pipeline run a1b2c3d4 finished",
		Message:   "3 of 4 tickets completed",
		Severity:  SeverityInfo,
		Timestamp: time.Now(),
		Fields: []Field{
			{Title: "Completed", Value: "3"},
			{Title: "Failed", Value: "1"},
		},
	}
}

// =============================================================================
// NopNotifier / LogNotifier Tests
// =============================================================================

func TestNopNotifier(t *testing.T) {
	if err := (NopNotifier{}).Notify(context.Background(), sampleEvent()); err != nil {
		t.Errorf("NopNotifier.Notify() error = %v, want nil", err)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	if err := n.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("LogNotifier.Notify() error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"3 of 4 tickets completed", "a1b2c3d4", "Completed=3"} {
		if !strings.Contains(output, want) {
			t.Errorf("log output missing %q: %s", want, output)
		}
	}
}

func TestLogNotifier_Severity(t *testing.T) {
	tests := []struct {
		severity string
		wantLog  string
	}{
		{SeverityInfo, "level=INFO"},
		{SeverityWarning, "level=WARN"},
		{SeverityError, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.severity, func(t *testing.T) {
			var buf bytes.Buffer
			n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

			if err := n.Notify(context.Background(), Event{Type: EventRunFailed, Message: "x", Severity: tt.severity}); err != nil {
				t.Fatalf("Notify() error = %v", err)
			}
			if !strings.Contains(buf.String(), tt.wantLog) {
				t.Errorf("log output = %q, want to contain %q", buf.String(), tt.wantLog)
			}
		})
	}
}

func TestLogNotifier_NilLogger(t *testing.T) {
	if NewLogNotifier(nil).Logger == nil {
		t.Error("NewLogNotifier should use default logger when nil")
	}
}

// =============================================================================
// WebhookNotifier Tests
// =============================================================================

func TestWebhookNotifier(t *testing.T) {
	var receivedBody []byte
	var receivedAuth, receivedKey, receivedEvent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", ct)
		}
		receivedAuth = r.Header.Get("Authorization")
		receivedKey = r.Header.Get(HeaderDeliveryKey)
		receivedEvent = r.Header.Get(HeaderEvent)
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, map[string]string{"Authorization": "Bearer test-token"})
	if err := n.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("WebhookNotifier.Notify() error = %v", err)
	}

	var parsed Event
	if err := json.Unmarshal(receivedBody, &parsed); err != nil {
		t.Fatalf("parse received body: %v", err)
	}
	if parsed.RunID != "a1b2c3d4" || len(parsed.Fields) != 2 {
		t.Errorf("received event = %+v", parsed)
	}
	if receivedAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", receivedAuth)
	}
	if receivedKey != "a1b2c3d4:run_completed" || receivedEvent != "run_completed" {
		t.Errorf("delivery headers = %q, %q", receivedKey, receivedEvent)
	}
}

func TestWebhookNotifier_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
			return
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, nil)
	if err := n.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestWebhookNotifier_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := NewWebhookNotifier(server.URL, nil).Notify(context.Background(), sampleEvent())
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %v, want 400 error", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

// =============================================================================
// Slack Tests
// =============================================================================

func TestSlackWebhookNotifier(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("parse slack payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackWebhookNotifier(server.URL, WithSlackChannel("#dev-pipeline"), WithSlackUsername("bot"))
	if err := n.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if payload["channel"] != "#dev-pipeline" || payload["username"] != "bot" {
		t.Errorf("payload = %v", payload)
	}
	if payload["text"] != "Pipeline run a1b2c3d4 finished" {
		t.Errorf("text = %v", payload["text"])
	}
	blocks, ok := payload["blocks"].([]any)
	if !ok || len(blocks) == 0 {
		t.Fatalf("blocks = %v", payload["blocks"])
	}
}

func TestSlackWebhookNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := NewSlackWebhookNotifier(server.URL).Notify(context.Background(), sampleEvent()); err == nil {
		t.Error("expected error for 500 response")
	}
}

type fakePoster struct {
	channel string
	options []slack.MsgOption
	err     error
}

func (f *fakePoster) PostMessageContext(_ context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.channel = channelID
	f.options = options
	return channelID, "1700000000.000100", f.err
}

func TestSlackNotifier(t *testing.T) {
	poster := &fakePoster{}
	n := &SlackNotifier{client: poster, channel: "C123"}

	if err := n.Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if poster.channel != "C123" {
		t.Errorf("channel = %q, want C123", poster.channel)
	}

	_, vals, err := slack.UnsafeApplyMsgOptions("", "C123", "", poster.options...)
	if err != nil {
		t.Fatalf("UnsafeApplyMsgOptions: %v", err)
	}
	if vals.Get("text") != "Pipeline run a1b2c3d4 finished" {
		t.Errorf("text = %q", vals.Get("text"))
	}
	if blocks := vals.Get("blocks"); !strings.Contains(blocks, "*Completed*") {
		t.Errorf("blocks missing fields: %s", blocks)
	}
}

func TestSlackNotifier_Error(t *testing.T) {
	n := &SlackNotifier{client: &fakePoster{err: errors.New("channel_not_found")}, channel: "C404"}
	if err := n.Notify(context.Background(), sampleEvent()); err == nil {
		t.Error("expected error")
	}
}

func TestNewSlackNotifier_Validation(t *testing.T) {
	if _, err := NewSlackNotifier("", "C1"); err == nil {
		t.Error("expected error for empty token")
	}
	if _, err := NewSlackNotifier("xoxb-1", ""); err == nil {
		t.Error("expected error for empty channel")
	}
}

func TestEventBlocks_SplitsFields(t *testing.T) {
	event := Event{Type: EventRunCompleted, RunID: "r"}
	for i := 0; i < 12; i++ {
		event.Fields = append(event.Fields, Field{Title: "k", Value: "v"})
	}

	// header, two field sections, divider, context
	if got := len(eventBlocks(event)); got != 5 {
		t.Errorf("len(blocks) = %d, want 5", got)
	}
}

func TestEmojiForEvent(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Event{Type: EventRunCompleted}, ":white_check_mark:"},
		{Event{Type: EventRunCompleted, Severity: SeverityWarning}, ":warning:"},
		{Event{Type: EventRunFailed}, ":x:"},
		{Event{Type: EventApprovalNeeded}, ":raised_hand:"},
		{Event{Type: "other"}, ":loudspeaker:"},
	}
	for _, tt := range tests {
		if got := emojiForEvent(tt.event); got != tt.want {
			t.Errorf("emojiForEvent(%+v) = %q, want %q", tt.event, got, tt.want)
		}
	}
}

func TestFallbackText(t *testing.T) {
	got := fallbackText(Event{Type: EventRunFailed, Message: "boom\ntrace"})
	if got != "run_failed: boom" {
		t.Errorf("fallbackText = %q", got)
	}
}

// =============================================================================
// MultiNotifier Tests
// =============================================================================

type recordingNotifier struct {
	count int
	err   error
}

func (r *recordingNotifier) Notify(context.Context, Event) error {
	r.count++
	return r.err
}

func TestMultiNotifier(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	if err := NewMultiNotifier(a, b).Notify(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if a.count != 1 || b.count != 1 {
		t.Errorf("counts = %d, %d, want 1, 1", a.count, b.count)
	}
}

func TestMultiNotifier_SkipsNop(t *testing.T) {
	channel := &recordingNotifier{}
	m := NewMultiNotifier(nil, NopNotifier{}, channel)
	if len(m.Notifiers) != 1 {
		t.Fatalf("len(Notifiers) = %d, want 1", len(m.Notifiers))
	}
	if err := m.Notify(context.Background(), sampleEvent()); err != nil || channel.count != 1 {
		t.Errorf("Notify() error = %v, count = %d", err, channel.count)
	}
}

func TestMultiNotifier_ContinuesOnError(t *testing.T) {
	boom := errors.New("boom")
	failing := &recordingNotifier{err: boom}
	ok := &recordingNotifier{}

	m := NewMultiNotifier(failing, ok)
	m.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	err := m.Notify(context.Background(), sampleEvent())
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "channel 0") {
		t.Errorf("error = %v, want boom tagged with channel 0", err)
	}
	if ok.count != 1 {
		t.Error("second notifier should still be called")
	}
}
