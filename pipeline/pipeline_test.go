package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/quailyquaily/vendorwatch/slack"
)

const testSecret = "test-signing-secret"

var testNow = time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T, cfg Config, resolver ChannelNameResolver, client *fakeLLM, poster *fakePoster) *Handler {
	t.Helper()
	logger := discardLogger()
	h, err := NewHandler(HandlerOptions{
		Config:     cfg,
		Resolver:   resolver,
		Classifier: NewClassifier(client, "gpt-4o-mini", logger),
		Alerts:     NewAlertPublisher(poster, logger),
		Logger:     logger,
		Now:        func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return h
}

func signedRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	ts := strconv.FormatInt(testNow.Unix(), 10)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, slack.ComputeSignature(testSecret, ts, []byte(body)))
	return req
}

func eventBody(t *testing.T, ev slack.MessageEvent) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"type": "event_notification", "event": ev})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return string(raw)
}

func TestHandshakeEchoesChallengeWithoutSignature(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, Config{SigningSecret: testSecret}, &fakeResolver{}, &fakeLLM{}, &fakePoster{})

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{"type":"handshake","challenge":"tok-42"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["challenge"] != "tok-42" {
		t.Fatalf("challenge = %q, want tok-42", out["challenge"])
	}
}

func TestRejectsNonPost(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, Config{}, &fakeResolver{}, &fakeLLM{}, &fakePoster{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestRejectsUnparsableBody(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, Config{}, &fakeResolver{}, &fakeLLM{}, &fakePoster{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader("{nope")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRejectsBadSignature(t *testing.T) {
	t.Parallel()

	poster := &fakePoster{}
	h := newTestHandler(t, Config{SigningSecret: testSecret}, &fakeResolver{}, &fakeLLM{}, poster)

	body := eventBody(t, slack.MessageEvent{Channel: "C1", TS: "1.2", User: "U1", Text: "hi"})

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	ts := strconv.FormatInt(testNow.Unix(), 10)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, "v0=0000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(poster.calls) != 0 {
		t.Fatalf("post calls = %d, want 0", len(poster.calls))
	}
}

func TestRejectsStaleTimestampEvenWithValidDigest(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, Config{SigningSecret: testSecret}, &fakeResolver{}, &fakeLLM{}, &fakePoster{})

	body := eventBody(t, slack.MessageEvent{Channel: "C1", TS: "1.2", User: "U1", Text: "hi"})
	stale := strconv.FormatInt(testNow.Add(-10*time.Minute).Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set(HeaderTimestamp, stale)
	req.Header.Set(HeaderSignature, slack.ComputeSignature(testSecret, stale, []byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMissingSecretSkipsVerification(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{names: map[string]string{"C1": "vendor-alerts"}}
	client := &fakeLLM{text: `{"is_vendor_announcement":false,"summary":""}`}
	h := newTestHandler(t, Config{MonitoredChannels: []string{"vendor-alerts"}}, resolver, client, &fakePoster{})

	body := eventBody(t, slack.MessageEvent{Channel: "C1", TS: "1.2", User: "U1", Text: "hi"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resolver.calls != 1 {
		t.Fatalf("resolver calls = %d, want 1 (event should reach the monitor)", resolver.calls)
	}
}

func TestEndToEndPositiveClassificationAlertsOnce(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{names: map[string]string{"C1": "vendor-alerts"}}
	client := &fakeLLM{text: `{"is_vendor_announcement":true,"summary":"AWS maintenance Saturday","vendor":"AWS","type":"maintenance","impact":"high"}`}
	poster := &fakePoster{}
	cfg := Config{
		SigningSecret:     testSecret,
		WorkspaceDomain:   "acme",
		MonitoredChannels: []string{"vendor-alerts"},
	}
	h := newTestHandler(t, cfg, resolver, client, poster)

	ev := slack.MessageEvent{
		Type:    "message",
		Channel: "C1",
		User:    "U1",
		Text:    "Heads up: AWS maintenance Saturday 02:00 UTC",
		TS:      "1699999999.000100",
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, eventBody(t, ev)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(poster.calls) != 1 {
		t.Fatalf("post calls = %d, want exactly 1", len(poster.calls))
	}
	call := poster.calls[0]
	if call.threadTS != "1699999999.000100" {
		t.Fatalf("thread anchor = %q, want original ts", call.threadTS)
	}
	if !strings.Contains(call.text, AlertSignature) {
		t.Fatalf("alert text missing signature:\n%s", call.text)
	}
	if !strings.Contains(call.text, "https://acme.slack.com/archives/C1/p1699999999000100") {
		t.Fatalf("alert text missing permalink:\n%s", call.text)
	}
}

func TestAlertLoopedBackIsSuppressed(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{names: map[string]string{"C1": "vendor-alerts"}}
	// The classifier would happily flag the alert text again; the loop
	// guard must stop it before classification.
	client := &fakeLLM{text: `{"is_vendor_announcement":true,"summary":"looped"}`}
	poster := &fakePoster{}
	cfg := Config{SigningSecret: testSecret, MonitoredChannels: []string{"vendor-alerts"}}
	h := newTestHandler(t, cfg, resolver, client, poster)

	alertText := FormatAlert(Classification{IsVendorAnnouncement: true, Summary: "AWS maintenance"}, "")
	ev := slack.MessageEvent{Channel: "C1", TS: "1700000000.000200", Text: alertText}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, eventBody(t, ev)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (suppression is a normal no-op)", rec.Code)
	}
	if len(poster.calls) != 0 {
		t.Fatalf("post calls = %d, want 0", len(poster.calls))
	}
	if resolver.calls != 0 {
		t.Fatalf("resolver calls = %d, want 0 (loop guard runs before the monitor)", resolver.calls)
	}
}

func TestGuardSuppressionsAcknowledgeSilently(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ev   slack.MessageEvent
	}{
		{name: "bot event", ev: slack.MessageEvent{Channel: "C1", TS: "1.2", BotID: "B1", Text: "hi"}},
		{name: "missing text", ev: slack.MessageEvent{Channel: "C1", TS: "1.2", User: "U1"}},
		{name: "missing channel", ev: slack.MessageEvent{TS: "1.2", User: "U1", Text: "hi"}},
		{name: "missing timestamp", ev: slack.MessageEvent{Channel: "C1", User: "U1", Text: "hi"}},
		{name: "unmonitored channel", ev: slack.MessageEvent{Channel: "C9", TS: "1.2", User: "U1", Text: "hi"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resolver := &fakeResolver{names: map[string]string{"C1": "other-channel"}}
			client := &fakeLLM{err: fmt.Errorf("classifier must not be reached")}
			poster := &fakePoster{}
			cfg := Config{SigningSecret: testSecret, MonitoredChannels: []string{"vendor-alerts"}}
			h := newTestHandler(t, cfg, resolver, client, poster)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, signedRequest(t, eventBody(t, tc.ev)))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if len(poster.calls) != 0 {
				t.Fatalf("post calls = %d, want 0", len(poster.calls))
			}
		})
	}
}

func TestClassifierFailureSuppressesAlert(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{names: map[string]string{"C1": "vendor-alerts"}}
	client := &fakeLLM{err: fmt.Errorf("model endpoint 503")}
	poster := &fakePoster{}
	cfg := Config{SigningSecret: testSecret, MonitoredChannels: []string{"vendor-alerts"}}
	h := newTestHandler(t, cfg, resolver, client, poster)

	ev := slack.MessageEvent{Channel: "C1", TS: "1.2", User: "U1", Text: "AWS outage?"}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, eventBody(t, ev)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (collaborator failure is absorbed)", rec.Code)
	}
	if len(poster.calls) != 0 {
		t.Fatalf("post calls = %d, want 0", len(poster.calls))
	}
}
