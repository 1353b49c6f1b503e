package evo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tagged struct {
	tag float64
}

func (t *tagged) CrossOver(other *tagged) *tagged {
	return &tagged{tag: math.Max(t.tag, other.tag)}
}

func (t *tagged) Mutate() {
	t.tag++
}

func tagFitness(t *tagged) (float64, error) {
	return t.tag, nil
}

func sequenceFactory() Factory[*tagged] {
	var mu sync.Mutex
	next := 0.0
	return func() (*tagged, error) {
		mu.Lock()
		defer mu.Unlock()
		next++
		return &tagged{tag: next}, nil
	}
}

func quietOptions(threads int) Options[*tagged] {
	return Options[*tagged]{
		Threads: threads,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestEvolveGenerationReachedRunsExactGenerations(t *testing.T) {
	var factoryCalls, fitnessCalls atomic.Int32
	factory := sequenceFactory()

	result, err := Evolve(context.Background(), Config[*tagged]{
		PopulationSize: 4,
		Stop:           GenerationReached(3),
		Factory: func() (*tagged, error) {
			factoryCalls.Add(1)
			return factory()
		},
		Fitness: func(t *tagged) (float64, error) {
			fitnessCalls.Add(1)
			return t.tag, nil
		},
		Options: quietOptions(2),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Generations)
	assert.Equal(t, int32(4), factoryCalls.Load())
	// generations 0..3 are scored, replacement happens after 0, 1 and 2
	assert.Equal(t, int32(16), fitnessCalls.Load())
	assert.Equal(t, 7.0, result.Best.tag)
	assert.Equal(t, 7.0, result.Fitness)
	assert.Equal(t, []float64{4, 5, 6, 7}, result.BestByGeneration)
}

func TestEvolveGenerationReachedZeroStopsBeforeReplacement(t *testing.T) {
	result, err := Evolve(context.Background(), Config[*tagged]{
		PopulationSize: 3,
		Stop:           GenerationReached(0),
		Factory:        sequenceFactory(),
		Fitness:        tagFitness,
		Options:        quietOptions(1),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Generations)
	assert.Equal(t, 3.0, result.Best.tag)
}

func TestEvolvePopulationSizeStaysFixed(t *testing.T) {
	for _, size := range []int{2, 3, 5, 17} {
		var sizes []int
		var mu sync.Mutex
		population := 0

		_, err := Evolve(context.Background(), Config[*tagged]{
			PopulationSize: size,
			Stop:           GenerationReached(5),
			Factory:        sequenceFactory(),
			Fitness: func(t *tagged) (float64, error) {
				mu.Lock()
				population++
				mu.Unlock()
				return t.tag, nil
			},
			Options: Options[*tagged]{
				Threads: 3,
				Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
				OnGeneration: func(context.Context, Generation[*tagged]) error {
					mu.Lock()
					sizes = append(sizes, population)
					population = 0
					mu.Unlock()
					return nil
				},
			},
		})
		require.NoError(t, err)
		require.Len(t, sizes, 6)
		for gen, got := range sizes {
			assert.Equalf(t, size, got, "size=%d generation=%d", size, gen)
		}
	}
}

func TestEvolveRejectsSmallPopulation(t *testing.T) {
	_, err := Evolve(context.Background(), Config[*tagged]{
		PopulationSize: 1,
		Stop:           GenerationReached(1),
		Factory:        sequenceFactory(),
		Fitness:        tagFitness,
	})
	require.ErrorIs(t, err, ErrPopulationTooSmall)
}

func TestEvolveRejectsInvalidStopRule(t *testing.T) {
	_, err := Evolve(context.Background(), Config[*tagged]{
		PopulationSize: 2,
		Stop:           HasNotImprovedSince(0),
		Factory:        sequenceFactory(),
		Fitness:        tagFitness,
	})
	require.ErrorIs(t, err, ErrInvalidStopRule)
}

func TestEvolveFitnessReached(t *testing.T) {
	result, err := Evolve(context.Background(), Config[*tagged]{
		PopulationSize: 4,
		Stop:           FitnessReached(10),
		Factory:        sequenceFactory(),
		Fitness:        tagFitness,
		Options:        quietOptions(4),
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Fitness, 10.0)
	// best is 4 at generation 0 and grows by one per generation
	assert.Equal(t, 6, result.Generations)
}

func TestEvolveHasNotImprovedSinceStopsAtPlateau(t *testing.T) {
	const stale = 3
	// strictly increasing for stale-1 generations, then flat
	schedule := []float64{1, 2, 2, 2, 2, 2, 2, 2}
	var generation atomic.Int32

	result, err := Evolve(context.Background(), Config[*tagged]{
		PopulationSize: 2,
		Stop:           HasNotImprovedSince(stale),
		Factory:        sequenceFactory(),
		Fitness: func(*tagged) (float64, error) {
			return schedule[generation.Load()], nil
		},
		Options: Options[*tagged]{
			Threads: 1,
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
			OnGeneration: func(_ context.Context, gen Generation[*tagged]) error {
				generation.Store(int32(gen.Number + 1))
				return nil
			},
		},
	})
	require.NoError(t, err)
	// generations 0 and 1 improve, 2, 3 and 4 do not
	assert.Equal(t, 2*stale-2, result.Generations)
}

func TestEvolveElitesBeatEveryoneElse(t *testing.T) {
	scores := map[*tagged]float64{}
	var mu sync.Mutex
	next := 0

	_, err := Evolve(context.Background(), Config[*tagged]{
		PopulationSize: 9,
		Stop:           GenerationReached(4),
		Factory: func() (*tagged, error) {
			next++
			return &tagged{tag: float64((next * 7) % 9)}, nil
		},
		Fitness: func(t *tagged) (float64, error) {
			mu.Lock()
			scores[t] = t.tag
			mu.Unlock()
			return t.tag, nil
		},
		Options: Options[*tagged]{
			Threads: 4,
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
			OnGeneration: func(_ context.Context, gen Generation[*tagged]) error {
				mu.Lock()
				defer mu.Unlock()
				for individual, score := range scores {
					if individual == gen.Best || individual == gen.Second {
						continue
					}
					assert.LessOrEqual(t, score, gen.BestFitness)
					assert.LessOrEqual(t, score, gen.SecondFitness)
				}
				assert.GreaterOrEqual(t, gen.BestFitness, gen.SecondFitness)
				scores = map[*tagged]float64{}
				return nil
			},
		},
	})
	require.NoError(t, err)
}

func TestEvolveTieBreakPrefersFirstSeen(t *testing.T) {
	var created []*tagged
	var seen Generation[*tagged]
	_, err := Evolve(context.Background(), Config[*tagged]{
		PopulationSize: 6,
		Stop:           GenerationReached(0),
		Factory: func() (*tagged, error) {
			individual := &tagged{tag: 1}
			created = append(created, individual)
			return individual, nil
		},
		Fitness: tagFitness,
		Options: Options[*tagged]{
			Threads: 3,
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
			OnGeneration: func(_ context.Context, gen Generation[*tagged]) error {
				seen = gen
				return nil
			},
		},
	})
	require.NoError(t, err)
	assert.Same(t, created[0], seen.Best)
	assert.Same(t, created[1], seen.Second)
}

func TestEvolvePropagatesFitnessError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Evolve(context.Background(), Config[*tagged]{
		PopulationSize: 4,
		Stop:           Never(),
		Factory:        sequenceFactory(),
		Fitness: func(t *tagged) (float64, error) {
			if t.tag == 3 {
				return 0, boom
			}
			return t.tag, nil
		},
		Options: quietOptions(2),
	})
	require.ErrorIs(t, err, boom)
}

func TestEvolveRecoversPanickingClosures(t *testing.T) {
	_, err := Evolve(context.Background(), Config[*tagged]{
		PopulationSize: 4,
		Stop:           Never(),
		Factory:        sequenceFactory(),
		Fitness: func(*tagged) (float64, error) {
			panic("fitness exploded")
		},
		Options: quietOptions(2),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fitness exploded")

	_, err = Evolve(context.Background(), Config[*tagged]{
		PopulationSize: 2,
		Stop:           Never(),
		Factory: func() (*tagged, error) {
			panic("factory exploded")
		},
		Fitness: tagFitness,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factory exploded")
}

func TestEvolveNeverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := Evolve(ctx, Config[*tagged]{
		PopulationSize: 3,
		Stop:           Never(),
		Factory:        sequenceFactory(),
		Fitness:        tagFitness,
		Options: Options[*tagged]{
			Threads: 1,
			Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
			OnGeneration: func(_ context.Context, gen Generation[*tagged]) error {
				if gen.Number == 5 {
					cancel()
				}
				return nil
			},
		},
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestEvolveHookErrorAborts(t *testing.T) {
	stop := errors.New("hook says stop")
	_, err := Evolve(context.Background(), Config[*tagged]{
		PopulationSize: 2,
		Stop:           Never(),
		Factory:        sequenceFactory(),
		Fitness:        tagFitness,
		Options: Options[*tagged]{
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
			OnGeneration: func(context.Context, Generation[*tagged]) error {
				return stop
			},
		},
	})
	require.ErrorIs(t, err, stop)
}
