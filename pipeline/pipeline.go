package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quailyquaily/vendorwatch/slack"
)

const (
	// HeaderTimestamp and HeaderSignature are the platform's request
	// signing headers.
	HeaderTimestamp = "X-Slack-Request-Timestamp"
	HeaderSignature = "X-Slack-Signature"

	// maxBodySize bounds the inbound payload. Message events are tiny;
	// 1 MB is generous headroom.
	maxBodySize = 1 << 20
)

// Config is the immutable per-process configuration the orchestrator
// needs. It is built once at startup and only read afterwards.
type Config struct {
	// SigningSecret authenticates inbound requests. Empty skips
	// verification entirely, with a warning on every event: a permissive
	// bring-up default, not a production posture.
	SigningSecret string

	// WorkspaceDomain builds message permalinks. Empty omits the link.
	WorkspaceDomain string

	// MonitoredChannels is the allow-list of channel display names.
	// Empty means nothing is monitored.
	MonitoredChannels []string
}

// Handler runs the event pipeline for one inbound webhook request:
// parse, handshake short-circuit, signature check, loop guard, channel
// allow-list, classification, and alert dispatch. It holds no mutable
// state, so one value serves concurrent requests.
type Handler struct {
	cfg        Config
	monitor    *Monitor
	classifier *Classifier
	alerts     *AlertPublisher
	logger     *slog.Logger
	now        func() time.Time
}

type HandlerOptions struct {
	Config     Config
	Resolver   ChannelNameResolver
	Classifier *Classifier
	Alerts     *AlertPublisher
	Logger     *slog.Logger
	Now        func() time.Time
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if opts.Alerts == nil {
		return nil, fmt.Errorf("alert publisher is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Handler{
		cfg:        opts.Config,
		monitor:    NewMonitor(opts.Resolver, opts.Config.MonitoredChannels, opts.Logger),
		classifier: opts.Classifier,
		alerts:     opts.Alerts,
		logger:     opts.Logger,
		now:        nowFn,
	}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Unexpected faults become a server-error acknowledgement instead of
	// taking down the host's worker.
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("pipeline_panic", "panic", fmt.Sprintf("%v", rec))
			http.Error(w, fmt.Sprintf("internal error: %v", rec), http.StatusInternalServerError)
		}
	}()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The signature covers the exact bytes on the wire, so the body must
	// be captured before any parsing.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.logger.Error("body_read_error", "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	env, err := slack.ParseEnvelope(body)
	if err != nil {
		h.logger.Debug("envelope_parse_error", "error", err.Error())
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// The registration handshake answers before authentication; the
	// platform's handshake protocol carries no signature.
	if env.Type == slack.EnvelopeTypeHandshake {
		writeJSON(w, http.StatusOK, map[string]string{"challenge": env.Challenge})
		return
	}

	requestID := uuid.NewString()

	if h.cfg.SigningSecret == "" {
		h.logger.Warn("signature_check_skipped", "request_id", requestID, "reason", "no signing secret configured")
	} else if !slack.VerifySignature(
		h.cfg.SigningSecret,
		body,
		r.Header.Get(HeaderTimestamp),
		r.Header.Get(HeaderSignature),
		h.now(),
	) {
		// The response never says which verification step failed.
		h.logger.Warn("signature_check_failed", "request_id", requestID, "remote_addr", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	h.ProcessEvent(r.Context(), *env.Event, requestID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ProcessEvent runs the post-authentication stages for one event. Guard
// failures resolve silently: from the platform's point of view they are
// expected no-ops, not faults. Socket Mode intake calls this directly
// since its transport is authenticated by the app token.
func (h *Handler) ProcessEvent(ctx context.Context, ev slack.MessageEvent, requestID string) {
	channelID := strings.TrimSpace(ev.Channel)
	messageTS := strings.TrimSpace(ev.TS)
	if channelID == "" || messageTS == "" {
		h.logger.Debug("event_skipped", "request_id", requestID, "reason", "missing channel or timestamp")
		return
	}
	if IsSelfOriginated(ev) {
		h.logger.Debug("event_skipped", "request_id", requestID, "channel_id", channelID, "reason", "self originated")
		return
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		h.logger.Debug("event_skipped", "request_id", requestID, "channel_id", channelID, "reason", "empty text")
		return
	}
	if !h.monitor.IsMonitored(ctx, channelID) {
		h.logger.Debug("event_skipped", "request_id", requestID, "channel_id", channelID, "reason", "channel not monitored")
		return
	}

	classification := h.classifier.Classify(ctx, text)
	if !classification.IsVendorAnnouncement {
		h.logger.Debug("event_classified_negative", "request_id", requestID, "channel_id", channelID)
		return
	}

	permalink := slack.Permalink(h.cfg.WorkspaceDomain, channelID, messageTS)
	h.alerts.Publish(ctx, classification, ev, permalink)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
