package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quailyquaily/vendorwatch/slack"
)

// AlertSignature trails every alert the publisher posts. The loop guard
// matches this exact substring to recognize the pipeline's own output, so
// changing it invalidates loop suppression for alerts already in flight.
const AlertSignature = "_automated vendor alert | vendorwatch_"

const (
	alertBanner       = ":rotating_light: *Vendor announcement detected*"
	permalinkFallback = "(no permalink available)"
	fieldUnknown      = "unknown"
)

// MessagePoster is the outbound posting surface, satisfied by
// *slack.Client.
type MessagePoster interface {
	PostMessage(ctx context.Context, channelID, text, threadTS string) error
}

// AlertPublisher formats and posts the threaded alert. Delivery is best
// effort: a failed post is logged and swallowed because the webhook
// caller expects a prompt acknowledgement either way.
type AlertPublisher struct {
	poster MessagePoster
	logger *slog.Logger
}

func NewAlertPublisher(poster MessagePoster, logger *slog.Logger) *AlertPublisher {
	return &AlertPublisher{poster: poster, logger: logger}
}

func (p *AlertPublisher) Publish(ctx context.Context, c Classification, ev slack.MessageEvent, permalink string) {
	if p == nil || p.poster == nil {
		return
	}
	text := FormatAlert(c, permalink)
	if err := p.poster.PostMessage(ctx, ev.Channel, text, ev.TS); err != nil {
		p.logger.Warn("alert_publish_error",
			"channel_id", ev.Channel,
			"message_ts", ev.TS,
			"error", err.Error(),
		)
		return
	}
	p.logger.Info("alert_published",
		"channel_id", ev.Channel,
		"message_ts", ev.TS,
		"vendor", c.Vendor,
		"announcement_type", c.Type,
		"impact", c.Impact,
	)
}

// FormatAlert renders the alert body. Absent classification fields show
// as "unknown"; an absent permalink shows the fallback phrase. The
// trailing signature line is what the loop guard detects next turn.
func FormatAlert(c Classification, permalink string) string {
	link := strings.TrimSpace(permalink)
	if link == "" {
		link = permalinkFallback
	}
	lines := []string{
		alertBanner,
		"*Type:* " + orUnknown(c.Type) + " | *Vendor:* " + orUnknown(c.Vendor) + " | *Impact:* " + orUnknown(c.Impact),
	}
	if summary := strings.TrimSpace(c.Summary); summary != "" {
		lines = append(lines, summary)
	}
	lines = append(lines, link, AlertSignature)
	return strings.Join(lines, "\n")
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fieldUnknown
	}
	return v
}
