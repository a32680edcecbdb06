package aws

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// Metrics publishes counters to CloudWatch. Publishing is best-effort: a
// failed PutMetricData is logged and dropped. A nil *Metrics is a no-op.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	logger    *zap.Logger
	nowFunc   func() time.Time
}

// NewMetrics returns a Metrics publisher, or nil when client is nil.
func NewMetrics(client CloudWatchAPI, namespace string, logger *zap.Logger) *Metrics {
	if client == nil {
		return nil
	}
	return &Metrics{
		client:    client,
		namespace: namespace,
		logger:    logger.With(zap.String("component", "metrics")),
		nowFunc:   time.Now,
	}
}

// Count records a single occurrence of name with the given dimensions.
func (m *Metrics) Count(ctx context.Context, name string, dims map[string]string) {
	if m == nil {
		return
	}

	dimensions := make([]cwtypes.Dimension, 0, len(dims))
	for k, v := range dims {
		dimensions = append(dimensions, cwtypes.Dimension{Name: sdkaws.String(k), Value: sdkaws.String(v)})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: sdkaws.String(name),
				Dimensions: dimensions,
				Timestamp:  sdkaws.Time(m.nowFunc()),
				Unit:       cwtypes.StandardUnitCount,
				Value:      sdkaws.Float64(1),
			},
		},
	})
	if err != nil {
		m.logger.Warn("put metric failed", zap.String("metric", name), zap.Error(err))
	}
}
