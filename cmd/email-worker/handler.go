package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/sync/errgroup"

	"eduplatform/internal/lifecycle"
	emailpkg "eduplatform/internal/notifications/email"
	"eduplatform/internal/queue"
	"eduplatform/internal/types"
)

// sendConcurrency caps in-flight provider calls per batch.
const sendConcurrency = 4

var workerActor = types.Actor{ID: "email-worker", Type: types.ActorTypeSystem, Source: "sqs"}

type Handler struct {
	notifier lifecycle.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(notifier lifecycle.Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{notifier: notifier, logger: logger, now: time.Now}
}

// Handle sends every record of the batch and reports the ones SQS should
// redeliver as partial batch failures. It never fails the whole batch.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	ctx = types.WithActor(ctx, workerActor)
	retry := make([]bool, len(sqsEvent.Records))

	var g errgroup.Group
	g.SetLimit(sendConcurrency)
	for i, record := range sqsEvent.Records {
		g.Go(func() error {
			if err := h.deliver(ctx, record); err != nil {
				h.logger.ErrorContext(ctx, "warning delivery failed, will retry",
					"message_id", record.MessageId,
					"error", err,
				)
				retry[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	var resp events.SQSEventResponse
	for i, record := range sqsEvent.Records {
		if retry[i] {
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return resp, nil
}

// deliver returns an error only when the message should come back.
// Foreign and malformed messages are acknowledged so they cannot poison
// the queue; the account was marked warned when the message was enqueued.
func (h *Handler) deliver(ctx context.Context, record events.SQSMessage) error {
	logger := h.logger.With("message_id", record.MessageId)

	if !queue.IsWarningMessage(stringAttributes(record.MessageAttributes)) {
		logger.WarnContext(ctx, "ignoring message of unexpected type")
		return nil
	}
	msg, err := queue.DecodeWarning(record.Body)
	if err != nil {
		logger.ErrorContext(ctx, "dropping malformed warning message", "error", err)
		return nil
	}

	if msg.TraceID != "" {
		ctx = types.WithRequestID(ctx, msg.TraceID)
	}
	logger = logger.With("account_id", msg.Warning.AccountID)
	if lag, ok := queueLag(record, h.now()); ok {
		logger = logger.With("queue_lag_ms", lag.Milliseconds())
	}

	err = h.notifier.SendInactivityWarning(ctx, msg.Warning)
	switch {
	case err == nil:
		logger.InfoContext(ctx, "inactivity warning delivered")
		return nil
	case emailpkg.IsRetryable(err):
		return err
	default:
		logger.WarnContext(ctx, "inactivity warning not deliverable, dropping",
			"to", types.EmailAddress(msg.Warning.To),
			"blocked", emailpkg.IsBlocklistError(err),
			"error", err,
		)
		return nil
	}
}

func stringAttributes(attrs map[string]events.SQSMessageAttribute) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if v.StringValue != nil {
			out[k] = *v.StringValue
		}
	}
	return out
}

// queueLag reads the SentTimestamp system attribute (epoch millis).
func queueLag(record events.SQSMessage, now time.Time) (time.Duration, bool) {
	raw, ok := record.Attributes["SentTimestamp"]
	if !ok {
		return 0, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return now.Sub(time.UnixMilli(ms)), true
}
