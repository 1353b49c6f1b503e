package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoswarm/internal/model"
)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	return store
}

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t)

	run := NewRunRecord("run-1", model.ModeLocal, time.Unix(100, 0))
	run.Generations = 12
	run.BestFitness = 0.75
	run.BestIndividual = []byte{1, 2, 3}
	require.NoError(t, store.SaveRun(ctx, run))
	run.BestIndividual[0] = 9

	output, ok, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12, output.Generations)
	assert.Equal(t, byte(1), output.BestIndividual[0], "stored record must not alias the caller's slice")

	_, ok, err = store.GetRun(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreListsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t)

	started := map[string]int64{"old": 10, "mid": 20, "new": 30}
	for i, id := range []string{"old", "new", "mid"} {
		run := NewRunRecord(id, model.ModeMaster, time.Unix(started[id], 0))
		run.Generations = i
		require.NoError(t, store.SaveRun(ctx, run), id)
	}

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
}

func TestMemoryStoreFitnessHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore(t)

	input := []float64{0.1, 0.2, 0.3}
	require.NoError(t, store.SaveFitnessHistory(ctx, "run-1", input))
	output, ok, err := store.GetFitnessHistory(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, input, output)

	require.NoError(t, store.DeleteRun(ctx, "run-1"))
	_, ok, err = store.GetFitnessHistory(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, ok, "history is deleted with its run")
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	err := store.SaveRun(context.Background(), NewRunRecord("r", model.ModeLocal, time.Now()))
	assert.Error(t, err)
}
