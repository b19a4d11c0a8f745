package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tier-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_AppendAndLatest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)

	first := sampleCalculation("X1", at)
	require.NoError(t, st.AppendCalculation(ctx, first))

	second := sampleCalculation("X1", at.Add(time.Hour))
	second.Protect.Level = model.ProtectA
	second.IdempotencyKey = model.IdempotencyKey("X1", first.ID.String(), second.Protect, second.Change)
	require.NoError(t, st.AppendCalculation(ctx, second))

	got, err := st.LatestCalculation(ctx, "X1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "A2", got.Tier().String())
	assert.True(t, got.CreatedAt.Equal(second.CreatedAt))
	assert.Equal(t, second.Protect.Breakdown, got.Protect.Breakdown)
	assert.Equal(t, second.Change.Breakdown, got.Change.Breakdown)
	assert.Equal(t, "Assessment completed", got.ChangeReason)
	assert.Equal(t, model.KindDomainEvent, got.Trigger)

	sum, err := st.GetSummary(ctx, "X1")
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, second.ID, sum.CalculationID)
	assert.Equal(t, "A2", sum.Tier().String())
}

func TestSQLite_LatestCalculation_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.LatestCalculation(context.Background(), "X404")
	require.NoError(t, err)
	assert.Nil(t, got)

	sum, err := st.GetSummary(context.Background(), "X404")
	require.NoError(t, err)
	assert.Nil(t, sum)
}

func TestSQLite_AppendCalculation_Duplicate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := sampleCalculation("X1", time.Now())
	require.NoError(t, st.AppendCalculation(ctx, first))

	replay := *first
	replay.ID = uuid.New()
	err := st.AppendCalculation(ctx, &replay)
	assert.ErrorIs(t, err, ErrDuplicateCalculation)

	list, err := st.ListCalculations(ctx, "X1", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLite_ConcurrentAppend_SingleWinner(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := sampleCalculation("X1", time.Now())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		dups int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := *base
			c.ID = uuid.New()
			err := st.AppendCalculation(ctx, &c)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, ErrDuplicateCalculation):
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 3, dups)
}

func TestSQLite_SummaryDoesNotMoveBackwards(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	newer := sampleCalculation("X1", at.Add(time.Hour))
	require.NoError(t, st.AppendCalculation(ctx, newer))

	older := sampleCalculation("X1", at)
	older.Change.Level = model.ChangeZero
	older.IdempotencyKey = "older"
	require.NoError(t, st.AppendCalculation(ctx, older))

	sum, err := st.GetSummary(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, sum.CalculationID)
}

func TestSQLite_ListAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		c := sampleCalculation("X1", at.Add(time.Duration(i)*time.Minute))
		c.IdempotencyKey = c.ID.String()
		require.NoError(t, st.AppendCalculation(ctx, c))
		ids = append(ids, c.ID)
	}

	list, err := st.ListCalculations(ctx, "X1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)

	got, err := st.GetCalculation(ctx, "X1", ids[0])
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ids[0], got.ID)

	other, err := st.GetCalculation(ctx, "X2", ids[0])
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSQLite_AppendCalculations_SkipsDuplicates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	a := sampleCalculation("X1", at)
	b := sampleCalculation("X2", at)
	b.IdempotencyKey = "b"
	dup := *a
	dup.ID = uuid.New()

	n, err := st.AppendCalculations(ctx, []model.TierCalculation{*a, *b, dup})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	dist, err := st.TierDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TierCount{{Tier: "B2", Count: 2}}, dist)
}

func TestSQLite_DeleteCalculations(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := sampleCalculation("X1", time.Now())
	require.NoError(t, st.AppendCalculation(ctx, c))
	keep := sampleCalculation("X2", time.Now())
	keep.IdempotencyKey = "keep"
	require.NoError(t, st.AppendCalculation(ctx, keep))

	n, err := st.DeleteCalculations(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.LatestCalculation(ctx, "X1")
	require.NoError(t, err)
	assert.Nil(t, got)
	sum, err := st.GetSummary(ctx, "X1")
	require.NoError(t, err)
	assert.Nil(t, sum)

	other, err := st.LatestCalculation(ctx, "X2")
	require.NoError(t, err)
	assert.NotNil(t, other)
}

func TestSQLite_CountCalculationsSince(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, crn := range []string{"X1", "X2", "X3"} {
		c := sampleCalculation(crn, at.Add(time.Duration(i)*time.Hour))
		require.NoError(t, st.AppendCalculation(ctx, c))
	}

	n, err := st.CountCalculationsSince(ctx, at.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
