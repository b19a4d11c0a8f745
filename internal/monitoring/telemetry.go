package monitoring

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// NewMeterProvider returns an SDK provider that periodically writes
// cumulative metric values to the global zap logger.
func NewMeterProvider(interval time.Duration) *sdkmetric.MeterProvider {
	if interval <= 0 {
		interval = time.Minute
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(logExporter{},
			sdkmetric.WithInterval(interval),
		)),
	)
}

// logExporter is an sdkmetric.Exporter that logs each data point.
type logExporter struct{}

func (logExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (logExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (logExporter) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	log := zap.L().With(zap.String("component", "telemetry"))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					log.Info("metric", zap.String("name", m.Name), zap.Int64("value", dp.Value), attrFields(dp.Attributes))
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					log.Info("metric",
						zap.String("name", m.Name),
						zap.Uint64("count", dp.Count),
						zap.Float64("sum", dp.Sum),
						attrFields(dp.Attributes),
					)
				}
			}
		}
	}
	return nil
}

func (logExporter) ForceFlush(context.Context) error { return nil }
func (logExporter) Shutdown(context.Context) error   { return nil }

func attrFields(set attribute.Set) zap.Field {
	m := make(map[string]string, set.Len())
	for _, kv := range set.ToSlice() {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return zap.Any("attributes", m)
}
