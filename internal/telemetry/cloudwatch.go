// Package telemetry publishes API and quota metrics to CloudWatch.
//
// Metrics are buffered in memory and sent in batches by Flush, either from
// Run on an interval or at the end of a Lambda invocation.
//
// Metrics emitted:
//   - APIRequestCount, APILatency: Dims {Endpoint, Method, Status}
//   - QuotaDecision: Dims {Plan, Result}
//   - QuotaStoreFailure: Dims {Result: <operation>}
//   - ExternalAPIFailure: Dims {Provider}
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"skycheck/internal/types"
	"skycheck/internal/usage"
	"skycheck/internal/weather"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MaxBatch is the number of datums sent per PutMetricData call.
const MaxBatch = 500

// maxBuffered caps the buffer; older datums are dropped beyond it.
const maxBuffered = 10 * MaxBatch

var (
	_ usage.Metrics   = (*CloudWatchMetrics)(nil)
	_ weather.Metrics = (*CloudWatchMetrics)(nil)
)

// CloudWatchMetrics records metrics for later publication.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	buf     []cwtypes.MetricDatum
	dropped int
}

// NewCloudWatchMetrics creates a recorder. An empty namespace selects
// types.MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger, now: time.Now}
}

// RecordRequest records one API request's count and latency.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		dim(types.DimEndpoint, endpoint),
		dim(types.DimMethod, method),
		dim(types.DimStatus, status),
	}
	m.add(
		m.datum(types.MetricAPIRequestCount, 1, cwtypes.StandardUnitCount, dims),
		m.datum(types.MetricAPILatency, float64(duration.Milliseconds()), cwtypes.StandardUnitMilliseconds, dims),
	)
}

// RecordQuotaDecision records an admit or deny for plan.
func (m *CloudWatchMetrics) RecordQuotaDecision(_ context.Context, plan string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.add(m.datum(types.MetricQuotaDecision, 1, cwtypes.StandardUnitCount, []cwtypes.Dimension{
		dim(types.DimPlan, plan),
		dim(types.DimResult, result),
	}))
}

// RecordStoreFailure records a counter store operation that failed open.
func (m *CloudWatchMetrics) RecordStoreFailure(_ context.Context, op string) {
	m.add(m.datum(types.MetricQuotaStoreFailure, 1, cwtypes.StandardUnitCount, []cwtypes.Dimension{
		dim(types.DimResult, op),
	}))
}

// RecordUpstreamFailure records a failed weather provider fetch.
func (m *CloudWatchMetrics) RecordUpstreamFailure(_ context.Context, provider string) {
	m.add(m.datum(types.MetricExternalAPIFailure, 1, cwtypes.StandardUnitCount, []cwtypes.Dimension{
		dim(types.DimProvider, provider),
	}))
}

// Pending returns the number of buffered datums.
func (m *CloudWatchMetrics) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buf)
}

// Flush sends everything buffered. A failed batch is logged and discarded.
func (m *CloudWatchMetrics) Flush(ctx context.Context) {
	m.mu.Lock()
	pending, dropped := m.buf, m.dropped
	m.buf, m.dropped = nil, 0
	m.mu.Unlock()

	if dropped > 0 {
		m.logger.Warn("metric buffer overflowed", "dropped", dropped)
	}
	for start := 0; start < len(pending); start += MaxBatch {
		end := min(start+MaxBatch, len(pending))
		input := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(m.namespace),
			MetricData: pending[start:end],
		}
		if _, err := m.client.PutMetricData(ctx, input); err != nil {
			m.logger.Error("failed to publish metrics",
				"error", err.Error(),
				"datums", end-start,
			)
		}
	}
}

// Run flushes every interval until ctx is done, then flushes once more.
func (m *CloudWatchMetrics) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			m.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			m.Flush(ctx)
		}
	}
}

func (m *CloudWatchMetrics) add(ds ...cwtypes.MetricDatum) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf = append(m.buf, ds...)
	if over := len(m.buf) - maxBuffered; over > 0 {
		m.buf = append(m.buf[:0], m.buf[over:]...)
		m.dropped += over
	}
}

func (m *CloudWatchMetrics) datum(name string, v float64, unit cwtypes.StandardUnit, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(v),
		Unit:       unit,
		Timestamp:  aws.Time(m.now().UTC()),
		Dimensions: dims,
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}
