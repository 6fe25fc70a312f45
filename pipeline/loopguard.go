package pipeline

import (
	"strings"

	"github.com/quailyquaily/vendorwatch/slack"
)

// IsSelfOriginated reports whether an event came from an automated
// integration rather than a human. Platforms mark bot traffic
// inconsistently across API versions, so all four markers are consulted:
// any single one is enough. The alert-signature text check is the
// fallback that recognizes this pipeline's own output when the
// structural markers are absent; missing it means the pipeline would
// classify its own alert and re-alert forever.
func IsSelfOriginated(ev slack.MessageEvent) bool {
	if strings.TrimSpace(ev.BotID) != "" {
		return true
	}
	if ev.BotProfile != nil {
		return true
	}
	if strings.Contains(ev.Text, AlertSignature) {
		return true
	}
	if strings.TrimSpace(ev.Subtype) == slack.SubtypeBotMessage {
		return true
	}
	return false
}
