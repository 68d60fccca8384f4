// Package telemetry publishes lifecycle run metrics to CloudWatch.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"eduplatform/internal/lifecycle"
	"eduplatform/internal/types"
)

// Values of the Mode dimension.
const (
	ModeWarnOnly = "warn_only"
	ModeDelete   = "delete"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRunMetrics implements lifecycle.RunMetrics. Each run emits one
// PutMetricData call with dimensions {Trigger, Mode}:
//
//   - InactivityAccountsChecked / Warned / Deleted (Count)
//   - InactivityRunDuration (Milliseconds)
//   - InactivityRunFailed (Count, 0 or 1)
//
// Publishing failures are logged and never reach the run.
type CloudWatchRunMetrics struct {
	client    CloudWatchClient
	namespace string
	mode      string
	logger    *slog.Logger
}

// NewCloudWatchRunMetrics creates a CloudWatchRunMetrics. An empty namespace
// falls back to types.MetricNamespace.
func NewCloudWatchRunMetrics(client CloudWatchClient, namespace string, deletionEnabled bool, logger *slog.Logger) *CloudWatchRunMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	mode := ModeWarnOnly
	if deletionEnabled {
		mode = ModeDelete
	}
	return &CloudWatchRunMetrics{
		client:    client,
		namespace: namespace,
		mode:      mode,
		logger:    logger,
	}
}

// RecordRun implements lifecycle.RunMetrics.
func (m *CloudWatchRunMetrics) RecordRun(ctx context.Context, trigger string, summary lifecycle.RunSummary, duration time.Duration, runErr error) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimTrigger), Value: aws.String(trigger)},
		{Name: aws.String(types.DimMode), Value: aws.String(m.mode)},
	}
	failed := 0.0
	if runErr != nil {
		failed = 1
	}
	ts := time.Now().UTC()

	datum := func(name string, value float64, unit cwtypes.StandardUnit) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(value),
			Unit:       unit,
			Dimensions: dims,
			Timestamp:  aws.Time(ts),
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			datum(types.MetricAccountsChecked, float64(summary.Checked), cwtypes.StandardUnitCount),
			datum(types.MetricAccountsWarned, float64(summary.Warned), cwtypes.StandardUnitCount),
			datum(types.MetricAccountsDeleted, float64(summary.Deleted), cwtypes.StandardUnitCount),
			datum(types.MetricRunDuration, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds),
			datum(types.MetricRunFailed, failed, cwtypes.StandardUnitCount),
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record run metrics",
			"error", err,
			"trigger", trigger,
			"namespace", m.namespace,
		)
	}
}

var _ lifecycle.RunMetrics = (*CloudWatchRunMetrics)(nil)
