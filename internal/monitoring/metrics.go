package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/sells-group/tier-cli"

// Recalculation outcomes recorded on the counter.
const (
	OutcomeChanged    = "changed"
	OutcomeUnchanged  = "unchanged"
	OutcomeDuplicate  = "duplicate"
	OutcomeNotFound   = "not_found"
	OutcomeTransient  = "transient"
	OutcomeUnexpected = "unexpected"
)

// Metrics holds the recalculation instruments.
type Metrics struct {
	recalculations metric.Int64Counter
	duration       metric.Float64Histogram
	notifyFailures metric.Int64Counter
	overrides      metric.Int64Counter
}

// NewMetrics registers instruments on mp. A nil mp uses a no-op provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(meterName)

	var (
		m   Metrics
		err error
	)
	m.recalculations, err = meter.Int64Counter("tier.recalculations",
		metric.WithDescription("Recalculation attempts by outcome and trigger"),
		metric.WithUnit("{recalculation}"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: recalculation counter")
	}
	m.duration, err = meter.Float64Histogram("tier.recalculation.duration",
		metric.WithDescription("Recalculation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: recalculation duration")
	}
	m.notifyFailures, err = meter.Int64Counter("tier.notify.failures",
		metric.WithDescription("Tier change notifications that could not be published"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: notify failure counter")
	}
	m.overrides, err = meter.Int64Counter("tier.overrides",
		metric.WithDescription("Override rows written"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: override counter")
	}
	return &m, nil
}

// NopMetrics returns instruments that record nothing.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

// RecordRecalculation counts one attempt and its duration.
func (m *Metrics) RecordRecalculation(ctx context.Context, outcome, trigger string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("trigger", trigger),
	)
	m.recalculations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

// RecordNotifyFailure counts a notification that was dropped.
func (m *Metrics) RecordNotifyFailure(ctx context.Context) {
	m.notifyFailures.Add(ctx, 1)
}

// RecordOverrides counts override rows written and skipped.
func (m *Metrics) RecordOverrides(ctx context.Context, written, skipped int64) {
	m.overrides.Add(ctx, written, metric.WithAttributes(attribute.String("result", "written")))
	m.overrides.Add(ctx, skipped, metric.WithAttributes(attribute.String("result", "skipped")))
}
