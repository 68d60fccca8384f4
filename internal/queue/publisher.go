// Package queue carries inactivity warnings from the cleanup run to the
// email worker over SQS.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"eduplatform/internal/types"
)

// messageTypeAttr tags every message so the worker can reject foreign ones
// before decoding.
const (
	messageTypeAttr    = "message_type"
	messageTypeWarning = "inactivity_warning"
)

// SQSSender abstracts the SQS SendMessage operation.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// WarningPublisher implements lifecycle.Notifier by enqueueing the warning.
// A successful enqueue counts as sent: the engine records the warning and
// the email worker retries delivery from the queue.
type WarningPublisher struct {
	client   SQSSender
	queueURL string
	now      func() time.Time
	logger   *slog.Logger
}

// NewWarningPublisher creates a WarningPublisher for queueURL.
func NewWarningPublisher(client SQSSender, queueURL string, logger *slog.Logger) *WarningPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WarningPublisher{
		client:   client,
		queueURL: queueURL,
		now:      time.Now,
		logger:   logger,
	}
}

// SendInactivityWarning serializes w in an InactivityWarningMessage envelope
// and sends it to the notification queue.
func (p *WarningPublisher) SendInactivityWarning(ctx context.Context, w types.InactivityWarning) error {
	traceID := types.GetRequestID(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}

	body, err := json.Marshal(types.InactivityWarningMessage{
		Warning:    w,
		EnqueuedAt: p.now().UTC(),
		TraceID:    traceID,
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal inactivity warning", err)
	}

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			messageTypeAttr: {
				DataType:    aws.String("String"),
				StringValue: aws.String(messageTypeWarning),
			},
		},
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to enqueue inactivity warning for account %s", w.AccountID), err)
	}

	p.logger.InfoContext(ctx, "inactivity warning enqueued",
		"account_id", w.AccountID,
		"message_id", aws.ToString(out.MessageId),
		"trace_id", traceID,
	)
	return nil
}

// DecodeWarning parses a queue message body produced by WarningPublisher.
// Malformed bodies return a validation error: redelivering them cannot help.
func DecodeWarning(body string) (types.InactivityWarningMessage, error) {
	var msg types.InactivityWarningMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return msg, types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed inactivity warning message", err)
	}
	if msg.Warning.AccountID == "" || msg.Warning.To == "" {
		return msg, types.NewAppError(types.ErrCodeValidationMissingField, "inactivity warning message lacks account_id or to", nil)
	}
	return msg, nil
}

// IsWarningMessage reports whether the message attributes mark a warning.
// Messages without the attribute are accepted for hand-enqueued backfills.
func IsWarningMessage(attrs map[string]string) bool {
	v, ok := attrs[messageTypeAttr]
	return !ok || v == messageTypeWarning
}
