package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/quailyquaily/vendorwatch/slack"
)

type postCall struct {
	channelID string
	text      string
	threadTS  string
}

type fakePoster struct {
	calls []postCall
	err   error
}

func (f *fakePoster) PostMessage(ctx context.Context, channelID, text, threadTS string) error {
	f.calls = append(f.calls, postCall{channelID: channelID, text: text, threadTS: threadTS})
	return f.err
}

func TestFormatAlert(t *testing.T) {
	t.Parallel()

	c := Classification{
		IsVendorAnnouncement: true,
		Summary:              "AWS RDS maintenance Saturday",
		Vendor:               "AWS",
		Type:                 "maintenance",
		Impact:               "medium",
	}
	got := FormatAlert(c, "https://acme.slack.com/archives/C1/p1699999999000100")

	for _, want := range []string{
		"*Type:* maintenance | *Vendor:* AWS | *Impact:* medium",
		"AWS RDS maintenance Saturday",
		"https://acme.slack.com/archives/C1/p1699999999000100",
		AlertSignature,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("alert text missing %q:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, AlertSignature) {
		t.Fatalf("alert text does not end with signature:\n%s", got)
	}
}

func TestFormatAlertAbsentFields(t *testing.T) {
	t.Parallel()

	got := FormatAlert(Classification{IsVendorAnnouncement: true, Summary: "something changed"}, "")
	if !strings.Contains(got, "*Type:* unknown | *Vendor:* unknown | *Impact:* unknown") {
		t.Fatalf("absent fields not rendered as unknown:\n%s", got)
	}
	if !strings.Contains(got, permalinkFallback) {
		t.Fatalf("missing permalink fallback phrase:\n%s", got)
	}
}

func TestPublishThreadsUnderOriginalMessage(t *testing.T) {
	t.Parallel()

	poster := &fakePoster{}
	p := NewAlertPublisher(poster, discardLogger())
	ev := slack.MessageEvent{Channel: "C1", TS: "1699999999.000100"}

	p.Publish(context.Background(), Classification{IsVendorAnnouncement: true, Summary: "s"}, ev, "")
	if len(poster.calls) != 1 {
		t.Fatalf("post calls = %d, want 1", len(poster.calls))
	}
	if poster.calls[0].threadTS != "1699999999.000100" {
		t.Fatalf("thread_ts = %q, want original message ts", poster.calls[0].threadTS)
	}
	if poster.calls[0].channelID != "C1" {
		t.Fatalf("channel = %q, want C1", poster.calls[0].channelID)
	}
}

func TestPublishSwallowsPostFailure(t *testing.T) {
	t.Parallel()

	poster := &fakePoster{err: fmt.Errorf("slack is down")}
	p := NewAlertPublisher(poster, discardLogger())

	// Must not panic or propagate; the inbound request still succeeds.
	p.Publish(context.Background(), Classification{IsVendorAnnouncement: true}, slack.MessageEvent{Channel: "C1", TS: "1.2"}, "")
	if len(poster.calls) != 1 {
		t.Fatalf("post calls = %d, want 1", len(poster.calls))
	}
}
