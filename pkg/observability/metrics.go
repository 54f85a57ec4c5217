// Package observability emits operational metrics to CloudWatch.
package observability

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"meterhub-backend/application/ports"
)

const metricNamespace = "MeterHub/Ingestion"

// Client is the subset of the CloudWatch API the emitter uses.
type Client interface {
	PutMetricData(ctx context.Context, params *awscloudwatch.PutMetricDataInput, optFns ...func(*awscloudwatch.Options)) (*awscloudwatch.PutMetricDataOutput, error)
}

// CloudWatchEmitter records ingestion metrics. Emission failures are
// logged and swallowed; metrics never break the write path.
type CloudWatchEmitter struct {
	client Client
	logger *zap.Logger
}

// NewCloudWatchEmitter creates a metrics emitter.
func NewCloudWatchEmitter(client Client, logger *zap.Logger) ports.MetricsEmitter {
	return &CloudWatchEmitter{client: client, logger: logger}
}

// RecordIngestion records the accepted and dropped counts of one batch.
func (e *CloudWatchEmitter) RecordIngestion(ctx context.Context, trackerID string, accepted, dropped int) {
	dimensions := []types.Dimension{
		{Name: aws.String("TrackerId"), Value: aws.String(trackerID)},
	}

	_, err := e.client.PutMetricData(ctx, &awscloudwatch.PutMetricDataInput{
		Namespace: aws.String(metricNamespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String("ReadingsAccepted"),
				Dimensions: dimensions,
				Unit:       types.StandardUnitCount,
				Value:      aws.Float64(float64(accepted)),
			},
			{
				MetricName: aws.String("ReadingsDropped"),
				Dimensions: dimensions,
				Unit:       types.StandardUnitCount,
				Value:      aws.Float64(float64(dropped)),
			},
		},
	})
	if err != nil {
		e.logger.Warn("Failed to emit ingestion metrics", zap.Error(err))
	}
}

// NopEmitter discards all metrics; used when metrics are disabled.
type NopEmitter struct{}

func (NopEmitter) RecordIngestion(context.Context, string, int, int) {}
