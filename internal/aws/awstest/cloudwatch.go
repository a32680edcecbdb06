package awstest

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
)

// CloudWatch counts PutMetricData calls per metric name.
type CloudWatch struct {
	mu     sync.Mutex
	counts map[string]int
	Err    error
}

func (c *CloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	for _, d := range params.MetricData {
		if d.MetricName != nil {
			c.counts[*d.MetricName]++
		}
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// Count returns how many data points were published for name.
func (c *CloudWatch) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}
