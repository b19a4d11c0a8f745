package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tier-cli/internal/resilience"
	"github.com/sells-group/tier-cli/internal/store"
)

type mockStats struct {
	count    int
	dist     []store.TierCount
	since    time.Time
	countErr error
	distErr  error
}

func (m *mockStats) CountCalculationsSince(_ context.Context, since time.Time) (int, error) {
	m.since = since
	return m.count, m.countErr
}

func (m *mockStats) TierDistribution(context.Context) ([]store.TierCount, error) {
	return m.dist, m.distErr
}

type mockDLQ struct {
	depth int64
	err   error
}

func (m mockDLQ) Depth(context.Context) (int64, error) { return m.depth, m.err }

type mockBreakers []resilience.ServiceState

func (m mockBreakers) Snapshot() []resilience.ServiceState { return m }

func TestCollector_Collect(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	st := &mockStats{
		count: 42,
		dist: []store.TierCount{
			{Tier: "A1", Count: 3},
			{Tier: "B2", Count: 7},
		},
	}
	breakers := mockBreakers{
		{Service: "assessment", State: "closed"},
		{Service: "delius", State: "open"},
	}
	c := NewCollector(st, mockDLQ{depth: 4}, breakers)
	c.now = func() time.Time { return now }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, now.Add(-24*time.Hour), st.since)
	assert.Equal(t, 42, snap.Calculations)
	assert.Equal(t, 10, snap.Subjects)
	assert.Len(t, snap.TierDistribution, 2)
	assert.Equal(t, int64(4), snap.DLQDepth)
	assert.Equal(t, 1, snap.OpenCircuits)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, now, snap.CollectedAt)
}

func TestCollector_OptionalSources(t *testing.T) {
	c := NewCollector(&mockStats{}, nil, nil)

	snap, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, snap.DLQDepth)
	assert.Empty(t, snap.Circuits)
}

func TestCollector_Errors(t *testing.T) {
	_, err := NewCollector(&mockStats{countErr: errors.New("db down")}, nil, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: count calculations")

	_, err = NewCollector(&mockStats{distErr: errors.New("db down")}, nil, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: tier distribution")

	_, err = NewCollector(&mockStats{}, mockDLQ{err: errors.New("redis down")}, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: dlq depth")
}
