// Package main is the entry point for the Alert Worker Lambda function.
//
// The API enqueues operational alerts on an SQS queue (ALERT_QUEUE_URL) so
// that request latency does not depend on Slack. This worker consumes that
// queue and posts each alert to the configured Slack channel.
//
// Messages that cannot be decoded are logged and acknowledged. Slack failures
// are reported as partial batch failures so SQS redelivers only those
// messages.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/kelseyhightower/envconfig"

	"scormrelay/internal/alerts"
	"scormrelay/internal/config"
	"scormrelay/internal/external"
)

// workerConfig is the slice of configuration the worker needs.
type workerConfig struct {
	Slack    config.SlackConfig
	Outbound config.OutboundConfig
}

// Handler holds the dependencies of the worker.
type Handler struct {
	poster external.MessagePoster
	logger *slog.Logger
}

// Handle processes one SQS batch.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "failed to deliver alert",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg alerts.AlertMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		// Redelivery cannot fix a malformed body.
		h.logger.ErrorContext(ctx, "dropping malformed alert message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}
	if strings.TrimSpace(msg.Text) == "" {
		h.logger.WarnContext(ctx, "dropping empty alert", "alert_id", msg.ID)
		return nil
	}

	if err := h.poster.PostMessage(ctx, msg.Text); err != nil {
		return fmt.Errorf("post alert %s: %w", msg.ID, err)
	}

	h.logger.InfoContext(ctx, "alert delivered",
		"alert_id", msg.ID,
		"request_id", msg.RequestID,
		"queued_at", msg.CreatedAt,
	)
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("Alert Worker Lambda initializing (cold start)")

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	if err := config.ResolveSecrets(config.NewSSMProvider(region)); err != nil {
		logger.Error("Failed to resolve secrets", "error", err)
		os.Exit(1)
	}

	var cfg workerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}
	if !cfg.Slack.Token.IsSet() {
		logger.Error("SLACK_TOKEN is required")
		os.Exit(1)
	}

	slack := external.NewSlackClient(external.SlackConfig{
		Base: external.NewBaseClient(&http.Client{Timeout: cfg.Outbound.Timeout}, "slack",
			external.DefaultRetryPolicy(), cfg.Outbound.UserAgent),
		APIURL:   cfg.Slack.APIURL,
		Token:    cfg.Slack.Token,
		Channel:  cfg.Slack.Channel,
		Username: cfg.Slack.Username,
	})

	h := &Handler{poster: slack, logger: logger}
	lambda.Start(h.Handle)
}
