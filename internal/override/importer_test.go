package override

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tier-cli/internal/model"
	"github.com/sells-group/tier-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "override.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func mustParse(t *testing.T, csv string) *Parsed {
	t.Helper()
	parsed, err := ParseCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return parsed
}

func TestImport_WritesCalculations(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	data := "crn,tier\nX1,A1\nX2,B3,24,22\n"

	res, err := NewImporter(st, nil).Import(ctx, mustParse(t, data), BatchID([]byte(data)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, int64(2), res.Written)
	assert.Zero(t, res.Skipped)

	latest, err := st.LatestCalculation(ctx, "X2")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "B3", latest.Tier().String())
	assert.Equal(t, 24, latest.Protect.Score)
	assert.Equal(t, 22, latest.Change.Score)
	assert.Equal(t, ReasonUpload, latest.ChangeReason)
	assert.Equal(t, model.KindOther, latest.Trigger)

	sum, err := st.GetSummary(ctx, "X1")
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, "A1", sum.Tier().String())
}

func TestImport_SameFileTwiceWritesOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	data := "X1,A1\nX2,B2\n"
	im := NewImporter(st, nil)

	_, err := im.Import(ctx, mustParse(t, data), BatchID([]byte(data)))
	require.NoError(t, err)

	res, err := im.Import(ctx, mustParse(t, data), BatchID([]byte(data)))
	require.NoError(t, err)
	assert.Zero(t, res.Written)
	assert.Equal(t, int64(2), res.Skipped)

	history, err := st.ListCalculations(ctx, "X1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestImport_LastRowWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	res, err := NewImporter(st, nil).Import(ctx, mustParse(t, "X1,A1\nX1,C2\n"), "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Superseded)
	assert.Equal(t, int64(1), res.Written)

	latest, err := st.LatestCalculation(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, "C2", latest.Tier().String())
}

func TestImport_CarriesRowErrors(t *testing.T) {
	res, err := NewImporter(newTestStore(t), nil).Import(context.Background(), mustParse(t, "X1,A1\nX2,Q1\n"), "batch-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Written)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Line)
}

func TestImport_RequiresBatchID(t *testing.T) {
	_, err := NewImporter(newTestStore(t), nil).Import(context.Background(), &Parsed{}, "")
	require.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) AppendCalculations(context.Context, []model.TierCalculation) (int64, error) {
	return 0, errors.New("disk full")
}

func TestImport_StoreError(t *testing.T) {
	_, err := NewImporter(failingWriter{}, nil).Import(context.Background(), mustParse(t, "X1,A1\n"), "batch-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "override: write rows 0-1")
}

func TestBatchID_Stable(t *testing.T) {
	assert.Equal(t, BatchID([]byte("X1,A1")), BatchID([]byte("X1,A1")))
	assert.NotEqual(t, BatchID([]byte("X1,A1")), BatchID([]byte("X1,A2")))
	assert.Len(t, BatchID(nil), 16)
}
