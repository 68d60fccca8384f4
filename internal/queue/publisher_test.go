package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduplatform/internal/types"
)

type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("sqs-1")}, nil
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/inactivity-warnings"

var enqueuedAt = time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)

func newTestPublisher(m *mockSQSSender) *WarningPublisher {
	p := NewWarningPublisher(m, testQueueURL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return enqueuedAt }
	return p
}

func testWarning() types.InactivityWarning {
	return types.InactivityWarning{
		AccountID:    "prof_7",
		To:           "grace@school.test",
		Name:         "Grace",
		DeletionDate: time.Date(2026, 3, 22, 3, 0, 0, 0, time.UTC),
		ResourceLink: "https://app.test.local/professor/rooms",
	}
}

func TestWarningPublisher_Enqueues(t *testing.T) {
	m := &mockSQSSender{}
	p := newTestPublisher(m)
	ctx := types.WithRequestID(context.Background(), "req-abc")

	require.NoError(t, p.SendInactivityWarning(ctx, testWarning()))
	require.Len(t, m.calls, 1)

	call := m.calls[0]
	assert.Equal(t, testQueueURL, aws.ToString(call.QueueUrl))
	assert.Equal(t, "inactivity_warning", aws.ToString(call.MessageAttributes["message_type"].StringValue))

	var msg types.InactivityWarningMessage
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(call.MessageBody)), &msg))
	assert.Equal(t, testWarning().AccountID, msg.Warning.AccountID)
	assert.True(t, msg.Warning.DeletionDate.Equal(testWarning().DeletionDate))
	assert.True(t, msg.EnqueuedAt.Equal(enqueuedAt))
	assert.Equal(t, "req-abc", msg.TraceID)
}

func TestWarningPublisher_GeneratesTraceID(t *testing.T) {
	m := &mockSQSSender{}
	require.NoError(t, newTestPublisher(m).SendInactivityWarning(context.Background(), testWarning()))

	var msg types.InactivityWarningMessage
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(m.calls[0].MessageBody)), &msg))
	assert.Len(t, msg.TraceID, 36)
}

func TestWarningPublisher_SendFailure(t *testing.T) {
	sqsErr := errors.New("AWS.SimpleQueueService.NonExistentQueue")
	m := &mockSQSSender{err: sqsErr}

	err := newTestPublisher(m).SendInactivityWarning(context.Background(), testWarning())

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamQueue, appErr.Code)
	assert.ErrorIs(t, err, sqsErr)
}

func TestDecodeWarning(t *testing.T) {
	m := &mockSQSSender{}
	require.NoError(t, newTestPublisher(m).SendInactivityWarning(context.Background(), testWarning()))

	msg, err := DecodeWarning(aws.ToString(m.calls[0].MessageBody))
	require.NoError(t, err)
	assert.Equal(t, "grace@school.test", msg.Warning.To)

	tests := []struct {
		name string
		body string
		code types.ErrorCode
	}{
		{"not json", "{", types.ErrCodeValidationInvalidJSON},
		{"missing recipient", `{"warning":{"account_id":"prof_7"}}`, types.ErrCodeValidationMissingField},
		{"empty object", `{}`, types.ErrCodeValidationMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeWarning(tt.body)
			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.code, appErr.Code)
		})
	}
}

func TestIsWarningMessage(t *testing.T) {
	assert.True(t, IsWarningMessage(map[string]string{"message_type": "inactivity_warning"}))
	assert.True(t, IsWarningMessage(nil))
	assert.False(t, IsWarningMessage(map[string]string{"message_type": "digest"}))
}
