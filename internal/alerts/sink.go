// Package alerts sends operational messages to the team channel. Delivery is
// best-effort: a Sink never returns an error, and failures are logged.
package alerts

import (
	"context"
	"log/slog"

	"scormrelay/internal/external"
)

// Sink is a fire-and-forget alert channel.
type Sink interface {
	Send(ctx context.Context, text string)
}

// LogSink writes alerts to the log only. Used in local mode and when no
// Slack token is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, text string) {
	s.logger.InfoContext(ctx, "alert", "text", text)
}

// SlackSink posts alerts straight to Slack.
type SlackSink struct {
	poster external.MessagePoster
	logger *slog.Logger
}

func NewSlackSink(poster external.MessagePoster, logger *slog.Logger) *SlackSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackSink{poster: poster, logger: logger}
}

func (s *SlackSink) Send(ctx context.Context, text string) {
	if err := s.poster.PostMessage(ctx, text); err != nil {
		s.logger.ErrorContext(ctx, "slack alert failed", "error", err, "text", text)
		return
	}
	s.logger.InfoContext(ctx, "alert sent to slack", "length", len(text))
}

// Func adapts a function to Sink. Handy in tests.
type Func func(ctx context.Context, text string)

func (f Func) Send(ctx context.Context, text string) { f(ctx, text) }
