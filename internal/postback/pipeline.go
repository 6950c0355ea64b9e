// Package postback turns SCORM Cloud registration postbacks into Comunitive
// webhook notifications.
//
// Process never returns an error and never panics. Every failure is folded
// into an Outcome variant, and every evaluated event (anything but Skipped)
// produces exactly one alert.
package postback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"scormrelay/internal/alerts"
	"scormrelay/internal/external"
	"scormrelay/internal/mapping"
	"scormrelay/internal/types"
)

// NetworkErrorStatus is the synthetic status of a DeliveryRejected caused by
// a transport failure.
const NetworkErrorStatus = http.StatusBadGateway

// maxStackBytes caps the stack trace attached to failure alerts.
const maxStackBytes = 3000

// alertTimeout bounds an alert send. Alerts outlive the inbound request.
const alertTimeout = 10 * time.Second

// MappingSource resolves course ids to webhook URIs. mapping.Cache
// implements it.
type MappingSource interface {
	Load(ctx context.Context, force bool) (mapping.Mapping, error)
}

// OutcomeRecorder observes every processed event.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome string, duration time.Duration)
}

// Config wires a Pipeline. Recorder and Clock are optional.
type Config struct {
	Mappings MappingSource
	Notifier external.WebhookNotifier
	Alerts   alerts.Sink
	Recorder OutcomeRecorder
	Clock    types.Clock
	Logger   *slog.Logger
}

type Pipeline struct {
	mappings MappingSource
	notifier external.WebhookNotifier
	alerts   alerts.Sink
	recorder OutcomeRecorder
	clock    types.Clock
	logger   *slog.Logger
}

func NewPipeline(cfg Config) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		mappings: cfg.Mappings,
		notifier: cfg.Notifier,
		alerts:   cfg.Alerts,
		recorder: cfg.Recorder,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "postback_pipeline"),
	}
}

// Process classifies one completion event.
func (p *Pipeline) Process(ctx context.Context, event types.CompletionEvent) (out Outcome) {
	start := p.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			out = p.fail(ctx, event.Course.ID, "unexpected panic while processing postback",
				fmt.Errorf("panic: %v", r), debug.Stack())
		}
		p.logOutcome(ctx, out)
		if p.recorder != nil {
			p.recorder.RecordOutcome(ctx, string(out.Kind()), p.clock.Now().Sub(start))
		}
	}()

	if !event.IsCompleted() {
		return Skipped{Completion: event.ActivityDetails.ActivityCompletion}
	}

	courseID := event.Course.ID
	recipient := event.Learner.ID

	current, err := p.mappings.Load(ctx, false)
	if err != nil {
		return p.fail(ctx, courseID, "failed to load course mappings", err, debug.Stack())
	}
	uri, ok := current.Lookup(courseID)
	if !ok {
		p.alert(ctx, fmt.Sprintf(
			"WARNING: SCORM postback for course `%s` received, but no Comunitive URI is mapped. Nothing was sent to Comunitive.",
			courseID))
		return MappingMissing{CourseID: courseID}
	}

	ack, err := p.notifier.Notify(ctx, recipient, uri)
	if err != nil {
		return p.classifyDeliveryError(ctx, courseID, uri, err)
	}

	p.alert(ctx, fmt.Sprintf(
		"SUCCESS: SCORM postback for `%s` processed and sent to Comunitive: `%s`.",
		courseID, uri))
	return Delivered{CourseID: courseID, URI: uri, Ack: ack}
}

func (p *Pipeline) classifyDeliveryError(ctx context.Context, courseID, uri string, err error) Outcome {
	var rejection *external.RejectionError
	var network *external.NetworkError

	switch {
	case errors.As(err, &rejection):
		p.alert(ctx, fmt.Sprintf(
			"ERROR: Comunitive rejected the notification for course `%s`.\nURI: `%s`\nStatus: %d\nDetail: %s",
			courseID, uri, rejection.Status, rejection.Detail))
		return DeliveryRejected{
			CourseID: courseID,
			URI:      uri,
			Status:   rejection.Status,
			Detail:   rejection.Detail,
		}
	case errors.As(err, &network):
		detail := "network error: " + network.Err.Error()
		p.alert(ctx, fmt.Sprintf(
			"ERROR: could not reach Comunitive for course `%s`.\nURI: `%s`\nDetail: %s",
			courseID, uri, detail))
		return DeliveryRejected{
			CourseID: courseID,
			URI:      uri,
			Status:   NetworkErrorStatus,
			Detail:   detail,
			Network:  true,
		}
	default:
		return p.fail(ctx, courseID, "unexpected error calling the Comunitive notifier", err, debug.Stack())
	}
}

func (p *Pipeline) fail(ctx context.Context, courseID, message string, cause error, stack []byte) ProcessingFailed {
	if len(stack) > maxStackBytes {
		stack = stack[:maxStackBytes]
	}
	p.alert(ctx, fmt.Sprintf(
		"CRITICAL ERROR processing SCORM postback for course `%s`.\nMessage: %s\nCause: %v\nTraceback:\n```%s```",
		courseID, message, cause, stack))
	return ProcessingFailed{CourseID: courseID, Message: message, Cause: cause}
}

// alert sends text on a context detached from the caller's cancellation and
// swallows any panic from the sink.
func (p *Pipeline) alert(ctx context.Context, text string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "alert sink panicked", "panic", r)
		}
	}()
	p.alerts.Send(ctx, text)
}

func (p *Pipeline) logOutcome(ctx context.Context, out Outcome) {
	switch o := out.(type) {
	case Skipped:
		p.logger.InfoContext(ctx, "postback skipped", "completion", o.Completion)
	case Delivered:
		p.logger.InfoContext(ctx, "postback delivered", "course_id", o.CourseID, "uri", o.URI, "ack_id", o.Ack.ID)
	case MappingMissing:
		p.logger.WarnContext(ctx, "no mapping for course", "course_id", o.CourseID)
	case DeliveryRejected:
		p.logger.ErrorContext(ctx, "postback delivery rejected",
			"course_id", o.CourseID,
			"uri", o.URI,
			"status", o.Status,
			"detail", o.Detail,
			"network", o.Network,
		)
	case ProcessingFailed:
		p.logger.ErrorContext(ctx, "postback processing failed",
			"course_id", o.CourseID,
			"message", o.Message,
			"error", o.Cause,
		)
	}
}
