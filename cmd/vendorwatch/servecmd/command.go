// Package servecmd runs the HTTP webhook server: inbound event
// notifications arrive on the events path, pass through the pipeline,
// and vendor announcements come back out as threaded channel alerts.
package servecmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quailyquaily/vendorwatch/internal/configutil"
	"github.com/quailyquaily/vendorwatch/internal/healthcheck"
	"github.com/quailyquaily/vendorwatch/internal/logutil"
	"github.com/quailyquaily/vendorwatch/pipeline"
	"github.com/quailyquaily/vendorwatch/providers/openai"
	"github.com/quailyquaily/vendorwatch/slack"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP webhook server",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", ":8080", "Listen address for the webhook server.")
	cmd.Flags().String("events-path", "/slack/events", "URL path that receives event notifications.")
	cmd.Flags().String("health-listen", "", "Optional listen address for the /health endpoint (e.g. :8081). Empty disables it.")
	cmd.Flags().String("slack-bot-token", "", "Slack bot token (VENDORWATCH_SLACK_BOT_TOKEN).")
	cmd.Flags().String("slack-signing-secret", "", "Slack signing secret (VENDORWATCH_SLACK_SIGNING_SECRET). Empty disables request verification.")
	cmd.Flags().Bool("strict-signing", false, "Refuse to start when no signing secret is configured.")
	cmd.Flags().String("slack-workspace-domain", "", "Workspace subdomain used to build permalinks (VENDORWATCH_SLACK_WORKSPACE_DOMAIN).")
	cmd.Flags().StringArray("monitored-channel", nil, "Channel name to monitor. Repeatable; entries may be comma-separated.")
	cmd.Flags().String("llm-api-key", "", "API key for the classification model (VENDORWATCH_LLM_API_KEY).")
	cmd.Flags().String("llm-base-url", "", "Optional OpenAI-compatible endpoint for the classification model.")
	cmd.Flags().String("llm-model", "gpt-4o-mini", "Model used to classify messages.")
	cmd.Flags().Duration("llm-timeout", 30*time.Second, "Per-request timeout for classification calls.")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return err
	}

	handler, err := buildPipeline(ctx, cmd, logger)
	if err != nil {
		return err
	}

	listen := healthcheck.NormalizeListen(configutil.FlagOrViperString(cmd, "listen", "server.listen"))
	if listen == "" {
		listen = ":8080"
	}
	eventsPath := strings.TrimSpace(configutil.FlagOrViperString(cmd, "events-path", "server.events_path"))
	if eventsPath == "" {
		eventsPath = "/slack/events"
	}

	if healthListen := healthcheck.NormalizeListen(configutil.FlagOrViperString(cmd, "health-listen", "health.listen")); healthListen != "" {
		healthSrv, err := healthcheck.StartServer(ctx, logger, healthListen, "serve")
		if err != nil {
			return fmt.Errorf("start health server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = healthSrv.Shutdown(shutdownCtx)
		}()
	}

	mux := http.NewServeMux()
	mux.Handle(eventsPath, handler)

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("webhook_server_started", "addr", listen, "path", eventsPath)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		logger.Info("webhook_server_stopped")
		return nil
	}
}

// buildPipeline resolves configuration and assembles the event pipeline:
// Slack client, classifier, alert publisher, and the orchestrating handler.
func buildPipeline(ctx context.Context, cmd *cobra.Command, logger *slog.Logger) (*pipeline.Handler, error) {
	botToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-token", "slack.bot_token"))
	if botToken == "" {
		return nil, fmt.Errorf("slack bot token is required (set VENDORWATCH_SLACK_BOT_TOKEN)")
	}
	signingSecret := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-signing-secret", "slack.signing_secret"))
	if signingSecret == "" {
		if configutil.FlagOrViperBool(cmd, "strict-signing", "slack.strict_signing") {
			return nil, fmt.Errorf("strict signing is enabled but no signing secret is configured (set VENDORWATCH_SLACK_SIGNING_SECRET)")
		}
		logger.Warn("signature_verification_disabled", "reason", "no signing secret configured")
	}
	workspaceDomain := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-workspace-domain", "slack.workspace_domain"))
	if workspaceDomain == "" {
		logger.Warn("permalinks_disabled", "reason", "no workspace domain configured")
	}
	channels := configutil.SplitList(configutil.FlagOrViperStringArray(cmd, "monitored-channel", "slack.monitored_channels"))
	if len(channels) == 0 {
		logger.Warn("no_monitored_channels", "effect", "every event will be skipped")
	}

	apiKey := strings.TrimSpace(configutil.FlagOrViperString(cmd, "llm-api-key", "llm.api_key"))
	if apiKey == "" {
		return nil, fmt.Errorf("llm api key is required (set VENDORWATCH_LLM_API_KEY)")
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
		return nil, err
	}

	slackClient := slack.NewClient(nil, "", botToken, "")

	identity, err := slackClient.AuthTest(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack auth.test: %w", err)
	}
	logger.Info("slack_identity",
		"team", identity.Team,
		"user", identity.User,
		"bot_id", identity.BotID,
	)

	handler, err := pipeline.NewHandler(pipeline.HandlerOptions{
		Config: pipeline.Config{
			SigningSecret:     signingSecret,
			WorkspaceDomain:   workspaceDomain,
			MonitoredChannels: channels,
		},
		Resolver:   slackClient,
		Classifier: pipeline.NewClassifier(llmClient, model, logger),
		Alerts:     pipeline.NewAlertPublisher(slackClient, logger),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return handler, nil
}
