package observability

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	apperrors "catalog-loader/internal/errors"
	"catalog-loader/internal/ingest"
)

// CloudWatchAPI is the subset of the CloudWatch client the reporter uses.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// RunReporter pushes the totals of finished ingestion runs to CloudWatch.
// Prometheus covers live progress; CloudWatch keeps one datapoint per run.
type RunReporter struct {
	namespace string
	keyspace  string
	client    CloudWatchAPI
	logger    *zap.Logger
}

// NewRunReporter creates a reporter. A nil client makes PublishRun a no-op.
func NewRunReporter(client CloudWatchAPI, namespace, keyspace string, logger *zap.Logger) *RunReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunReporter{
		namespace: namespace,
		keyspace:  keyspace,
		client:    client,
		logger:    logger.Named("cloudwatch"),
	}
}

// PublishRun sends the counts of report as one PutMetricData call.
func (r *RunReporter) PublishRun(ctx context.Context, report *ingest.Report) error {
	if r == nil || r.client == nil {
		return nil
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: RunMetricData(r.keyspace, report),
	}
	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		return apperrors.External("METRICS_PUBLISH_FAILED", "failed to send run metrics to CloudWatch").
			WithOperation("PutMetricData").
			WithResource(r.namespace).
			WithCause(err).
			Build()
	}

	r.logger.Debug("run metrics sent",
		zap.String("run_id", report.RunID),
		zap.Int("datums", len(input.MetricData)))
	return nil
}

// RunMetricData converts report into CloudWatch datums dimensioned by
// keyspace and kind. Skipped lines get one datum per reason seen.
func RunMetricData(keyspace string, report *ingest.Report) []types.MetricDatum {
	ts := aws.Time(report.StartedAt.Add(report.Duration))
	dims := []types.Dimension{
		{Name: aws.String("Keyspace"), Value: aws.String(keyspace)},
		{Name: aws.String("Kind"), Value: aws.String(string(report.Kind))},
	}
	count := func(name string, v int64, extra ...types.Dimension) types.MetricDatum {
		return types.MetricDatum{
			MetricName: aws.String(name),
			Dimensions: append(append([]types.Dimension{}, dims...), extra...),
			Value:      aws.Float64(float64(v)),
			Unit:       types.StandardUnitCount,
			Timestamp:  ts,
		}
	}

	data := []types.MetricDatum{
		count("LinesRead", report.LinesRead),
		count("LinesSucceeded", report.Succeeded),
		count("RowsWritten", report.RowsWritten),
		{
			MetricName: aws.String("RunDuration"),
			Dimensions: dims,
			Value:      aws.Float64(float64(report.Duration.Milliseconds())),
			Unit:       types.StandardUnitMilliseconds,
			Timestamp:  ts,
		},
	}

	reasons := make([]string, 0, len(report.Skipped))
	for reason, n := range report.Skipped {
		if n > 0 {
			reasons = append(reasons, string(reason))
		}
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		data = append(data, count("LinesSkipped", report.Skipped[ingest.SkipReason(reason)],
			types.Dimension{Name: aws.String("Reason"), Value: aws.String(reason)}))
	}

	if report.DrainTimedOut {
		data = append(data, count("DrainTimeouts", 1))
	}
	return data
}
