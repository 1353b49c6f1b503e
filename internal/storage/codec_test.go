package storage

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoswarm/internal/model"
)

func TestRunCodecRoundTrip(t *testing.T) {
	run := NewRunRecord("r1", model.ModeLocal, time.Unix(42, 0).UTC())
	run.BestFitness = 1.5
	run.BestIndividual = []byte{0, 1, 2}

	data, err := EncodeRun(run)
	require.NoError(t, err)
	decoded, err := DecodeRun(data)
	require.NoError(t, err)
	assert.Equal(t, run.ID, decoded.ID)
	assert.Equal(t, 1.5, decoded.BestFitness)
	assert.Equal(t, run.BestIndividual, decoded.BestIndividual)
}

func TestEncodeRunRejectsNonFiniteFitness(t *testing.T) {
	run := NewRunRecord("r1", model.ModeLocal, time.Unix(42, 0))
	run.BestFitness = math.Inf(-1)
	_, err := EncodeRun(run)
	assert.Error(t, err)
}

func TestDecodeRunChecksVersion(t *testing.T) {
	_, err := DecodeRun([]byte(`{"schema_version":1,"codec_version":2,"id":"x"}`))
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestFitnessHistoryCodecMapsNonFiniteToNull(t *testing.T) {
	data, err := EncodeFitnessHistory([]float64{math.Inf(-1), 2, math.NaN()})
	require.NoError(t, err)
	assert.Equal(t, "[null,2,null]", string(data))

	history, err := DecodeFitnessHistory(data)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, math.IsInf(history[0], -1))
	assert.Equal(t, 2.0, history[1])
	assert.True(t, math.IsInf(history[2], -1))
}

func TestNewStoreKinds(t *testing.T) {
	store, err := NewStore("", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	assert.NoError(t, CloseIfSupported(store))

	store, err = NewStore("sqlite", "unused.db")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)

	_, err = NewStore("postgres", "")
	assert.Error(t, err)
}
