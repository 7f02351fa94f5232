package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/covmerge/internal/coverage"
)

func newTestStore(t *testing.T) (*Store, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	store, err := New(":memory:", clk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, clk
}

func sampleSummary(lines float64) coverage.Summary {
	s := coverage.EmptySummary()
	s.Lines.Pct = lines
	s.Statements.Pct = 66.66
	s.Branches.Pct = 75
	return s
}

func TestStore_RecordAndList(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	first, err := store.Record(ctx, NewRun([]string{"ssr", "web"}, 3, sampleSummary(60), false))
	require.NoError(t, err)
	assert.Len(t, first.ID, 26)
	assert.Equal(t, clk.Now().UTC(), first.CreatedAt)

	clk.Add(time.Hour)
	second, err := store.Record(ctx, NewRun([]string{"web"}, 3, sampleSummary(70.5), true))
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	runs, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0])
	assert.Equal(t, first, runs[1])
	assert.Equal(t, []string{"ssr", "web"}, runs[1].Environments)
	assert.Equal(t, 66.66, runs[1].Pct(coverage.CategoryStatements))
	assert.False(t, runs[1].Passed)

	limited, err := store.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 70.5, latest.Pct(coverage.CategoryLines))
}

func TestStore_LatestEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestStore_onDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	store, err := New(path, nil)
	require.NoError(t, err)
	_, err = store.Record(ctx, NewRun([]string{"web"}, 1, sampleSummary(50), true))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
