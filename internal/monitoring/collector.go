// Package monitoring collects health snapshots of the tier engine, records
// recalculation telemetry, and raises webhook alerts.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tier-cli/internal/resilience"
	"github.com/sells-group/tier-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Calculations written within the lookback window.
	Calculations int `json:"calculations"`

	// Latest tier per subject.
	TierDistribution []store.TierCount `json:"tier_distribution"`
	Subjects         int               `json:"subjects"`

	DLQDepth int64 `json:"dlq_depth"`

	Circuits     []resilience.ServiceState `json:"circuits,omitempty"`
	OpenCircuits int                       `json:"open_circuits"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// CalculationStats is the slice of the store the collector reads.
type CalculationStats interface {
	CountCalculationsSince(ctx context.Context, since time.Time) (int, error)
	TierDistribution(ctx context.Context) ([]store.TierCount, error)
}

// DLQCounter reports dead-letter depth.
type DLQCounter interface {
	Depth(ctx context.Context) (int64, error)
}

// BreakerSnapshotter reports circuit states.
type BreakerSnapshotter interface {
	Snapshot() []resilience.ServiceState
}

// Collector gathers metrics from the store, the dead-letter stream and the
// upstream breakers. dlq and breakers may be nil.
type Collector struct {
	store    CalculationStats
	dlq      DLQCounter
	breakers BreakerSnapshotter
	now      func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st CalculationStats, dlq DLQCounter, breakers BreakerSnapshotter) *Collector {
	return &Collector{store: st, dlq: dlq, breakers: breakers, now: time.Now}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	n, err := c.store.CountCalculationsSince(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count calculations")
	}
	snap.Calculations = n

	dist, err := c.store.TierDistribution(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: tier distribution")
	}
	snap.TierDistribution = dist
	for _, tc := range dist {
		snap.Subjects += tc.Count
	}

	if c.dlq != nil {
		depth, err := c.dlq.Depth(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: dlq depth")
		}
		snap.DLQDepth = depth
	}

	if c.breakers != nil {
		snap.Circuits = c.breakers.Snapshot()
		for _, s := range snap.Circuits {
			if s.State == resilience.Open.String() {
				snap.OpenCircuits++
			}
		}
	}

	return snap, nil
}
