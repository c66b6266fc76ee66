package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsReporter pushes per-run counters to CloudWatch.
type MetricsReporter struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	nowFunc    func() time.Time
}

func NewMetricsReporter(cw CloudWatchAPI, namespace string) *MetricsReporter {
	return &MetricsReporter{
		CloudWatch: cw,
		Namespace:  namespace,
		nowFunc:    time.Now,
	}
}

// ReportRun publishes each counter as a Count datum. Metric names are sent in
// sorted order so repeated runs produce identical requests.
func (r *MetricsReporter) ReportRun(ctx context.Context, counters map[string]int, success bool) error {
	if len(counters) == 0 {
		return nil
	}

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	dims := []cwtypes.Dimension{{Name: awsString("Outcome"), Value: awsString(outcome)}}

	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	now := r.nowFunc()
	data := make([]cwtypes.MetricDatum, 0, len(names))
	for _, name := range names {
		v := float64(counters[name])
		data = append(data, cwtypes.MetricDatum{
			MetricName: awsString(name),
			Value:      &v,
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  &now,
			Dimensions: dims,
		})
	}

	_, err := r.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &r.Namespace,
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
