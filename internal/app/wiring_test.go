package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eduplatform/internal/config"
	emailpkg "eduplatform/internal/notifications/email"
	"eduplatform/internal/queue"
	"eduplatform/internal/types"
)

func staticAWS(ctx context.Context) (aws.Config, error) {
	return aws.Config{Region: "us-east-1"}, nil
}

func TestDefaultRunParams(t *testing.T) {
	p := DefaultRunParams(config.LifecycleConfig{RetentionDays: 90, WarnLeadDays: 7, MaxWarningsPerRun: 200})
	assert.Equal(t, 90, p.RetentionDays)
	assert.Equal(t, 7, p.WarnLeadDays)
	assert.Equal(t, 200, p.MaxWarningsPerRun)
	assert.Empty(t, p.Trigger)
}

func TestBuildNotifier_QueueMode(t *testing.T) {
	cfg := &config.Config{
		Environment: "dev",
		Notifier:    config.NotifierConfig{Mode: config.NotifierQueue},
		AWS:         config.AWSConfig{NotificationQueue: "https://sqs.us-east-1.amazonaws.com/1/warnings"},
	}
	n, err := BuildNotifier(context.Background(), cfg, staticAWS, slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &queue.WarningPublisher{}, n)
}

func TestBuildNotifier_QueueModeAWSFailure(t *testing.T) {
	cfg := &config.Config{Notifier: config.NotifierConfig{Mode: config.NotifierQueue}}
	failing := func(context.Context) (aws.Config, error) { return aws.Config{}, errors.New("no credentials") }

	_, err := BuildNotifier(context.Background(), cfg, failing, nil)
	require.Error(t, err)
}

func TestBuildNotifier_DirectModeLocal(t *testing.T) {
	cfg := &config.Config{
		Environment: "local",
		Notifier:    config.NotifierConfig{Mode: config.NotifierDirect},
		Email:       config.EmailConfig{Provider: config.EmailProviderSendGrid, FromAddress: "no-reply@eduplatform.io"},
	}
	n, err := BuildNotifier(context.Background(), cfg, staticAWS, nil)
	require.NoError(t, err)
	assert.IsType(t, &emailpkg.WarningNotifier{}, n)
}

func TestBuildEmailNotifier_ProviderError(t *testing.T) {
	_, err := BuildEmailNotifier(context.Background(), "prod",
		config.EmailConfig{Provider: config.EmailProviderSendGrid}, config.AWSConfig{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "building email provider")
}

func TestLazyAWS_LoadsOnce(t *testing.T) {
	load := lazyAWS(config.AWSConfig{Region: "eu-west-1", EndpointURL: "http://localhost:4566"})

	first, err := load(context.Background())
	require.NoError(t, err)
	second, err := load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", first.Region)
	require.NotNil(t, second.BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *second.BaseEndpoint)
}

func TestNewLogger_Levels(t *testing.T) {
	ctx := context.Background()
	assert.True(t, NewLogger("debug").Enabled(ctx, slog.LevelDebug))
	assert.False(t, NewLogger("info").Enabled(ctx, slog.LevelDebug))
	assert.False(t, NewLogger("warn").Enabled(ctx, slog.LevelInfo))
	assert.True(t, NewLogger("error").Enabled(ctx, slog.LevelError))
	assert.True(t, NewLogger("bogus").Enabled(ctx, slog.LevelInfo))
}

func TestNewLoggerTo_AddsContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info")

	ctx := types.WithRequestID(context.Background(), "req_ctx")
	ctx = types.WithActor(ctx, types.Actor{Type: types.ActorTypeAdmin, Source: "admin_api"})
	logger.InfoContext(ctx, "inactivity run complete", "warned", 2)
	logger.InfoContext(ctx, "explicit", "request_id", "req_ctx")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"request_id":"req_ctx"`)
	assert.Contains(t, lines[0], `"actor":{"type":"admin","source":"admin_api"}`)
	assert.Equal(t, 1, strings.Count(lines[1], `"request_id"`))
}
