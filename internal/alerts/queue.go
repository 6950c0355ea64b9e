package alerts

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"scormrelay/internal/types"
)

// SQSSender is the SendMessage subset of the SQS client.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// AlertMessage is the queue payload consumed by the alert worker.
type AlertMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	RequestID string    `json:"request_id,omitempty"`
}

// QueueSink enqueues alerts for the alert worker so request latency does not
// depend on Slack. If the enqueue fails the alert goes to fallback instead.
type QueueSink struct {
	client   SQSSender
	queueURL string
	fallback Sink
	clock    types.Clock
	logger   *slog.Logger
}

func NewQueueSink(client SQSSender, queueURL string, fallback Sink, clock types.Clock, logger *slog.Logger) *QueueSink {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if fallback == nil {
		fallback = NewLogSink(logger)
	}
	return &QueueSink{
		client:   client,
		queueURL: queueURL,
		fallback: fallback,
		clock:    clock,
		logger:   logger,
	}
}

func (s *QueueSink) Send(ctx context.Context, text string) {
	msg := AlertMessage{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: s.clock.Now(),
		RequestID: types.GetRequestID(ctx),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		s.logger.ErrorContext(ctx, "alert encode failed, sending directly", "error", err)
		s.fallback.Send(ctx, text)
		return
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"AlertID": {DataType: aws.String("String"), StringValue: aws.String(msg.ID)},
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "alert enqueue failed, sending directly",
			"alert_id", msg.ID,
			"error", err,
		)
		s.fallback.Send(ctx, text)
		return
	}

	s.logger.InfoContext(ctx, "alert enqueued", "alert_id", msg.ID)
}
