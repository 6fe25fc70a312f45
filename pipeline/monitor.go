package pipeline

import (
	"context"
	"log/slog"
	"strings"
)

// ChannelNameResolver maps an opaque channel id to its display name.
// *slack.Client satisfies it via conversations.info.
type ChannelNameResolver interface {
	ChannelName(ctx context.Context, channelID string) (string, error)
}

// Monitor decides whether a channel is on the configured watch list.
// The list holds channel names, not ids, so every check resolves the id
// through the directory service. All ambiguity resolves to "not
// monitored": an empty list, a failed lookup, or a nameless channel never
// widens the monitored set.
type Monitor struct {
	resolver ChannelNameResolver
	allowed  map[string]bool
	logger   *slog.Logger
}

// NewMonitor builds the read-only allow-list once. Entries are trimmed
// and lowercased; blanks are dropped.
func NewMonitor(resolver ChannelNameResolver, channelNames []string, logger *slog.Logger) *Monitor {
	allowed := make(map[string]bool, len(channelNames))
	for _, raw := range channelNames {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		allowed[name] = true
	}
	return &Monitor{
		resolver: resolver,
		allowed:  allowed,
		logger:   logger,
	}
}

func (m *Monitor) IsMonitored(ctx context.Context, channelID string) bool {
	if m == nil || len(m.allowed) == 0 {
		return false
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return false
	}
	if m.resolver == nil {
		return false
	}
	name, err := m.resolver.ChannelName(ctx, channelID)
	if err != nil {
		m.logger.Warn("channel_lookup_error", "channel_id", channelID, "error", err.Error())
		return false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	return m.allowed[name]
}
