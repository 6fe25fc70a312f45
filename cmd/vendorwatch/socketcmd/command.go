// Package socketcmd runs the Socket Mode consumer: events arrive over an
// outbound websocket instead of an inbound webhook, so the process needs
// no public listener. The transport is authenticated by the app token, so
// events skip signature verification and go straight into the pipeline.
package socketcmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/quailyquaily/vendorwatch/internal/configutil"
	"github.com/quailyquaily/vendorwatch/internal/healthcheck"
	"github.com/quailyquaily/vendorwatch/internal/logutil"
	"github.com/quailyquaily/vendorwatch/pipeline"
	"github.com/quailyquaily/vendorwatch/providers/openai"
	"github.com/quailyquaily/vendorwatch/slack"
)

const reconnectDelay = 3 * time.Second

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "socket",
		Short: "Consume events over Socket Mode",
		RunE:  runSocket,
	}
	cmd.Flags().String("health-listen", "", "Optional listen address for the /health endpoint (e.g. :8081). Empty disables it.")
	cmd.Flags().String("slack-bot-token", "", "Slack bot token (VENDORWATCH_SLACK_BOT_TOKEN).")
	cmd.Flags().String("slack-app-token", "", "Slack app-level token with connections:write (VENDORWATCH_SLACK_APP_TOKEN).")
	cmd.Flags().String("slack-workspace-domain", "", "Workspace subdomain used to build permalinks (VENDORWATCH_SLACK_WORKSPACE_DOMAIN).")
	cmd.Flags().StringArray("monitored-channel", nil, "Channel name to monitor. Repeatable; entries may be comma-separated.")
	cmd.Flags().String("llm-api-key", "", "API key for the classification model (VENDORWATCH_LLM_API_KEY).")
	cmd.Flags().String("llm-base-url", "", "Optional OpenAI-compatible endpoint for the classification model.")
	cmd.Flags().String("llm-model", "gpt-4o-mini", "Model used to classify messages.")
	cmd.Flags().Duration("llm-timeout", 30*time.Second, "Per-request timeout for classification calls.")
	return cmd
}

func runSocket(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return err
	}

	botToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-token", "slack.bot_token"))
	if botToken == "" {
		return fmt.Errorf("slack bot token is required (set VENDORWATCH_SLACK_BOT_TOKEN)")
	}
	appToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-app-token", "slack.app_token"))
	if appToken == "" {
		return fmt.Errorf("slack app token is required (set VENDORWATCH_SLACK_APP_TOKEN)")
	}
	workspaceDomain := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-workspace-domain", "slack.workspace_domain"))
	channels := configutil.SplitList(configutil.FlagOrViperStringArray(cmd, "monitored-channel", "slack.monitored_channels"))
	if len(channels) == 0 {
		logger.Warn("no_monitored_channels", "effect", "every event will be skipped")
	}

	apiKey := strings.TrimSpace(configutil.FlagOrViperString(cmd, "llm-api-key", "llm.api_key"))
	if apiKey == "" {
		return fmt.Errorf("llm api key is required (set VENDORWATCH_LLM_API_KEY)")
	}
	model := strings.TrimSpace(configutil.FlagOrViperString(cmd, "llm-model", "llm.model"))
	if model == "" {
		model = "gpt-4o-mini"
	}
	llmClient, err := openai.NewClient(openai.Options{
		APIKey:  apiKey,
		BaseURL: configutil.FlagOrViperString(cmd, "llm-base-url", "llm.base_url"),
		Model:   model,
		Timeout: configutil.FlagOrViperDuration(cmd, "llm-timeout", "llm.timeout"),
	})
	if err != nil {
		return err
	}

	slackClient := slack.NewClient(nil, "", botToken, appToken)
	identity, err := slackClient.AuthTest(ctx)
	if err != nil {
		return fmt.Errorf("slack auth.test: %w", err)
	}
	logger.Info("slack_identity", "team", identity.Team, "user", identity.User, "bot_id", identity.BotID)

	handler, err := pipeline.NewHandler(pipeline.HandlerOptions{
		Config: pipeline.Config{
			WorkspaceDomain:   workspaceDomain,
			MonitoredChannels: channels,
		},
		Resolver:   slackClient,
		Classifier: pipeline.NewClassifier(llmClient, model, logger),
		Alerts:     pipeline.NewAlertPublisher(slackClient, logger),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	if healthListen := healthcheck.NormalizeListen(configutil.FlagOrViperString(cmd, "health-listen", "health.listen")); healthListen != "" {
		healthSrv, err := healthcheck.StartServer(ctx, logger, healthListen, "socket")
		if err != nil {
			return fmt.Errorf("start health server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = healthSrv.Shutdown(shutdownCtx)
		}()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := slackClient.ConnectSocket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("socket_connect_error", "error", err.Error())
			if sleepErr := slack.SleepWithContext(ctx, reconnectDelay); sleepErr != nil {
				return nil
			}
			continue
		}
		logger.Info("socket_connected")
		if err := consumeSocket(ctx, conn, handler, logger); err != nil && ctx.Err() == nil {
			logger.Warn("socket_read_error", "error", err.Error())
		}
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		if sleepErr := slack.SleepWithContext(ctx, reconnectDelay); sleepErr != nil {
			return nil
		}
	}
}

type socketEnvelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type socketEventPayload struct {
	Event *slack.MessageEvent `json:"event,omitempty"`
}

// consumeSocket reads envelopes until the connection breaks or the
// context ends. Every envelope with an id is acked immediately; the
// platform redelivers unacked events, which would duplicate alerts.
func consumeSocket(ctx context.Context, conn *websocket.Conn, handler *pipeline.Handler, logger *slog.Logger) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env socketEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Debug("socket_envelope_parse_error", "error", err.Error())
			continue
		}
		if env.EnvelopeID != "" {
			if err := conn.WriteJSON(map[string]string{"envelope_id": env.EnvelopeID}); err != nil {
				return err
			}
		}
		switch env.Type {
		case "hello":
			logger.Debug("socket_hello")
		case "disconnect":
			// The platform asks clients to reconnect before it retires
			// the current connection.
			logger.Info("socket_disconnect_requested")
			return nil
		case "events_api":
			var payload socketEventPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				logger.Debug("socket_payload_parse_error", "error", err.Error())
				continue
			}
			if payload.Event == nil || payload.Event.Type != "message" {
				continue
			}
			handler.ProcessEvent(ctx, *payload.Event, uuid.NewString())
		default:
			logger.Debug("socket_envelope_ignored", "type", env.Type)
		}
	}
}
