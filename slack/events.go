package slack

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EnvelopeTypeHandshake = "handshake"
	EnvelopeTypeEvent     = "event_notification"

	// SubtypeBotMessage is the legacy marker Slack attaches to messages
	// posted by integrations that predate bot profiles.
	SubtypeBotMessage = "bot_message"
)

// BotProfile is the structured origin descriptor attached to messages
// posted by an app. Its mere presence marks the message as bot-originated.
type BotProfile struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	AppID string `json:"app_id,omitempty"`
}

// MessageEvent is one message notification. ts is the platform timestamp
// in "<seconds>.<microseconds>" form and doubles as the thread anchor.
type MessageEvent struct {
	Type       string      `json:"type,omitempty"`
	Subtype    string      `json:"subtype,omitempty"`
	User       string      `json:"user,omitempty"`
	Text       string      `json:"text,omitempty"`
	Channel    string      `json:"channel,omitempty"`
	TS         string      `json:"ts,omitempty"`
	BotID      string      `json:"bot_id,omitempty"`
	BotProfile *BotProfile `json:"bot_profile,omitempty"`
}

// Envelope is the tagged inbound payload: a registration handshake or a
// single event notification, discriminated by Type.
type Envelope struct {
	Type      string        `json:"type,omitempty"`
	Challenge string        `json:"challenge,omitempty"`
	Event     *MessageEvent `json:"event,omitempty"`
}

// ParseEnvelope decodes the raw request body into an Envelope. The two
// known envelope types are decoded exhaustively; anything else is an error
// so the caller can reject the request instead of silently dropping it.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}
	switch strings.TrimSpace(env.Type) {
	case EnvelopeTypeHandshake:
		if strings.TrimSpace(env.Challenge) == "" {
			return Envelope{}, fmt.Errorf("handshake challenge is required")
		}
		return env, nil
	case EnvelopeTypeEvent:
		if env.Event == nil {
			return Envelope{}, fmt.Errorf("event payload is required")
		}
		return env, nil
	default:
		return Envelope{}, fmt.Errorf("unsupported envelope type: %q", env.Type)
	}
}
