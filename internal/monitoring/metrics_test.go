package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, key, value string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data)
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestMetrics_RecordRecalculation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRecalculation(ctx, OutcomeChanged, "FULL_RECALCULATION", 120*time.Millisecond)
	m.RecordRecalculation(ctx, OutcomeChanged, "FULL_RECALCULATION", 80*time.Millisecond)
	m.RecordRecalculation(ctx, OutcomeTransient, "DOMAIN_EVENT", time.Second)
	m.RecordNotifyFailure(ctx)

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, data["tier.recalculations"], "outcome", OutcomeChanged))
	assert.Equal(t, int64(1), sumFor(t, data["tier.recalculations"], "outcome", OutcomeTransient))

	hist, ok := data["tier.recalculation.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)

	notify, ok := data["tier.notify.failures"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, notify.DataPoints, 1)
	assert.Equal(t, int64(1), notify.DataPoints[0].Value)
}

func TestMetrics_RecordOverrides(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	m.RecordOverrides(context.Background(), 7, 2)

	data := collect(t, reader)
	assert.Equal(t, int64(7), sumFor(t, data["tier.overrides"], "result", "written"))
	assert.Equal(t, int64(2), sumFor(t, data["tier.overrides"], "result", "skipped"))
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	require.NotNil(t, m)
	m.RecordRecalculation(context.Background(), OutcomeUnchanged, "OTHER", time.Millisecond)
	m.RecordNotifyFailure(context.Background())
}

func TestLogExporter_Export(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)
	m.RecordRecalculation(context.Background(), OutcomeChanged, "OTHER", time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.NoError(t, logExporter{}.Export(context.Background(), &rm))
}

func TestNewMeterProvider(t *testing.T) {
	mp := NewMeterProvider(0)
	require.NotNil(t, mp)
	_, err := NewMetrics(mp)
	require.NoError(t, err)
	assert.NoError(t, mp.Shutdown(context.Background()))
}
