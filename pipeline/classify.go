package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/quailyquaily/vendorwatch/internal/jsonutil"
	"github.com/quailyquaily/vendorwatch/llm"
)

const (
	AnnouncementTypeMaintenance    = "maintenance"
	AnnouncementTypeBreakingChange = "breaking_change"
	AnnouncementTypeOutage         = "outage"

	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

// Classification is the validated verdict for one message. When
// IsVendorAnnouncement is false the remaining fields carry no meaning and
// the pipeline never reads them.
type Classification struct {
	IsVendorAnnouncement bool
	Summary              string
	Vendor               string
	Type                 string
	Impact               string
}

var classificationSystemPrompt = strings.TrimSpace(strings.Join([]string{
	"You classify chat messages posted in engineering channels.",
	"Decide whether the message is a vendor announcement about scheduled maintenance, a breaking change, or an outage.",
	"Return strict JSON with fields: is_vendor_announcement (bool), summary (string, one sentence), vendor (string), type (one of maintenance|breaking_change|outage), impact (one of high|medium|low).",
	"When is_vendor_announcement is false, leave the other fields empty.",
	"Routine conversation, questions, and internal status chatter are not vendor announcements.",
}, "\n"))

// Classifier asks the LLM endpoint for a structured verdict on a message.
type Classifier struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

func NewClassifier(client llm.Client, model string, logger *slog.Logger) *Classifier {
	return &Classifier{
		client: client,
		model:  strings.TrimSpace(model),
		logger: logger,
	}
}

// Classify returns the verdict for text. Every failure mode (transport
// error, unparsable answer, a payload whose is_vendor_announcement is
// not a JSON boolean) yields the safe default {false, ""}. Classification
// trouble must never block the pipeline or fabricate an alert.
func (c *Classifier) Classify(ctx context.Context, text string) Classification {
	none := Classification{IsVendorAnnouncement: false, Summary: ""}
	if c == nil || c.client == nil {
		return none
	}
	res, err := c.client.Chat(ctx, llm.Request{
		Model:       c.model,
		ForceJSON:   true,
		Temperature: llm.Float(0.1),
		MaxTokens:   300,
		Messages: []llm.Message{
			{Role: "system", Content: classificationSystemPrompt},
			{Role: "user", Content: "Classify this message:\n\n" + text},
		},
	})
	if err != nil {
		c.logger.Warn("classification_call_error", "error", err.Error())
		return none
	}

	var payload struct {
		IsVendorAnnouncement *bool  `json:"is_vendor_announcement"`
		Summary              string `json:"summary"`
		Vendor               string `json:"vendor"`
		Type                 string `json:"type"`
		Impact               string `json:"impact"`
	}
	if err := jsonutil.DecodeWithFallback(res.Text, &payload); err != nil {
		c.logger.Warn("classification_parse_error", "error", err.Error())
		return none
	}
	if payload.IsVendorAnnouncement == nil {
		c.logger.Warn("classification_shape_error", "reason", "is_vendor_announcement is not a boolean")
		return none
	}
	return Classification{
		IsVendorAnnouncement: *payload.IsVendorAnnouncement,
		Summary:              strings.TrimSpace(payload.Summary),
		Vendor:               strings.TrimSpace(payload.Vendor),
		Type:                 normalizeAnnouncementType(payload.Type),
		Impact:               normalizeImpact(payload.Impact),
	}
}

func normalizeAnnouncementType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case AnnouncementTypeMaintenance:
		return AnnouncementTypeMaintenance
	case AnnouncementTypeBreakingChange:
		return AnnouncementTypeBreakingChange
	case AnnouncementTypeOutage:
		return AnnouncementTypeOutage
	default:
		return ""
	}
}

func normalizeImpact(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ImpactHigh:
		return ImpactHigh
	case ImpactMedium:
		return ImpactMedium
	case ImpactLow:
		return ImpactLow
	default:
		return ""
	}
}
