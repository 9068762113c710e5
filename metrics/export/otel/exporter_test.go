package otel

import (
	"context"
	"sync"
	"testing"

	goGate "github.com/MrEthical07/goGate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goGate.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goGate.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goGate.MetricsSnapshot{
		Counters:      make(map[goGate.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms:    make(map[goGate.MetricID][]uint64, len(f.snapshot.Histograms)),
		HistogramSums: make(map[goGate.MetricID]float64, len(f.snapshot.HistogramSums)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	for k, v := range f.snapshot.HistogramSums {
		out.HistogramSums[k] = v
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gogate-test")

	src := &fakeSource{
		snapshot: goGate.MetricsSnapshot{
			Counters: map[goGate.MetricID]uint64{
				goGate.MetricSignInSuccess: 3,
			},
			Histograms: map[goGate.MetricID][]uint64{
				goGate.MetricIssueLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
			HistogramSums: map[goGate.MetricID]float64{
				goGate.MetricIssueLatency: 0.75,
			},
		},
		dropped: 1,
	}

	exp, err := NewExporter(meter, src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	data := collect(t, reader)

	signIn, ok := data["gogate_sign_in_success_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, signIn.DataPoints, 1)
	assert.Equal(t, int64(3), signIn.DataPoints[0].Value)

	inf, ok := data["gogate_token_issue_latency_seconds_bucket_le_inf"].(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Equal(t, int64(8), inf.DataPoints[0].Value)

	sum, ok := data["gogate_token_issue_latency_seconds_sum"].(metricdata.Gauge[float64])
	require.True(t, ok)
	assert.Equal(t, 0.75, sum.DataPoints[0].Value)

	dropped, ok := data["gogate_audit_dropped_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), dropped.DataPoints[0].Value)
}

func TestExporterRejectsNilArguments(t *testing.T) {
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))

	_, err := NewExporter(provider.Meter("gogate-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)
	_, err = NewExporter(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gogate-test")

	src := &fakeSource{
		snapshot: goGate.MetricsSnapshot{
			Counters: map[goGate.MetricID]uint64{
				goGate.MetricTokenValidated: 1,
			},
			Histograms: map[goGate.MetricID][]uint64{
				goGate.MetricAuthenticateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewExporter(meter, src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goGate.MetricTokenValidated] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
