package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// EliteCount is the number of individuals carried unchanged into the next
// generation.
const EliteCount = 2

var ErrPopulationTooSmall = errors.New("population size must be >= 2")

type Factory[T any] func() (T, error)

type FitnessFunc[T any] func(T) (float64, error)

// Generation is handed to Options.OnGeneration once the elites of a
// generation are known.
type Generation[T any] struct {
	Number        int
	Best          T
	BestFitness   float64
	Second        T
	SecondFitness float64
}

type Options[T any] struct {
	// Threads bounds concurrent fitness evaluation and child mutation.
	// Zero or negative means runtime.NumCPU().
	Threads int
	Logger  *slog.Logger
	// OnGeneration runs after elite selection and before the stop rule is
	// checked. A returned error aborts the run.
	OnGeneration func(ctx context.Context, gen Generation[T]) error
}

type Config[T any] struct {
	PopulationSize int
	Stop           StopRule
	Factory        Factory[T]
	Fitness        FitnessFunc[T]
	Options        Options[T]
}

type Result[T any] struct {
	Best             T
	Fitness          float64
	Generations      int
	BestByGeneration []float64
}

// Evolve runs the elitist generational loop: score everyone, keep the best
// two, refill the population with mutated crossovers of those two.
func Evolve[T Evolvable[T]](ctx context.Context, cfg Config[T]) (Result[T], error) {
	if cfg.PopulationSize < EliteCount {
		return Result[T]{}, fmt.Errorf("%w: got %d", ErrPopulationTooSmall, cfg.PopulationSize)
	}
	if cfg.Factory == nil {
		return Result[T]{}, fmt.Errorf("factory is required")
	}
	if cfg.Fitness == nil {
		return Result[T]{}, fmt.Errorf("fitness function is required")
	}
	if err := cfg.Stop.Validate(); err != nil {
		return Result[T]{}, err
	}
	threads := cfg.Options.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	logger := cfg.Options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	population := make([]T, 0, cfg.PopulationSize)
	for i := 0; i < cfg.PopulationSize; i++ {
		individual, err := callFactory(cfg.Factory)
		if err != nil {
			return Result[T]{}, fmt.Errorf("create individual %d: %w", i, err)
		}
		population = append(population, individual)
	}

	stop := newStopState(cfg.Stop)
	history := make([]float64, 0, 16)
	prevBest := math.Inf(-1)

	for generation := 0; ; generation++ {
		if err := ctx.Err(); err != nil {
			return Result[T]{}, err
		}

		top, err := scorePopulation(ctx, population, cfg.Fitness, threads)
		if err != nil {
			return Result[T]{}, fmt.Errorf("generation %d: %w", generation, err)
		}
		best := population[top.first.index]
		second := population[top.second.index]
		history = append(history, top.first.fitness)

		logger.Info("generation scored",
			"generation", generation,
			"best_fitness", top.first.fitness,
			"improvement", improvement(top.first.fitness, prevBest),
		)
		prevBest = top.first.fitness

		if cfg.Options.OnGeneration != nil {
			err := cfg.Options.OnGeneration(ctx, Generation[T]{
				Number:        generation,
				Best:          best,
				BestFitness:   top.first.fitness,
				Second:        second,
				SecondFitness: top.second.fitness,
			})
			if err != nil {
				return Result[T]{}, fmt.Errorf("generation %d hook: %w", generation, err)
			}
		}

		if stop.done(generation, top.first.fitness) {
			return Result[T]{
				Best:             best,
				Fitness:          top.first.fitness,
				Generations:      generation,
				BestByGeneration: history,
			}, nil
		}

		population, err = nextGeneration(best, second, cfg.PopulationSize, threads)
		if err != nil {
			return Result[T]{}, fmt.Errorf("generation %d: %w", generation, err)
		}
	}
}

// scorePopulation evaluates disjoint slices concurrently. Each goroutine
// keeps its own top two; the pairs are merged once everyone is done.
func scorePopulation[T any](ctx context.Context, population []T, fitness FitnessFunc[T], threads int) (topTwo, error) {
	workers := threads
	if workers > len(population) {
		workers = len(population)
	}
	chunk := (len(population) + workers - 1) / workers
	locals := make([]topTwo, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, len(population))
		locals[w] = newTopTwo()
		if start >= end {
			continue
		}
		g.Go(func() error {
			local := newTopTwo()
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				score, err := callFitness(fitness, population[i])
				if err != nil {
					return fmt.Errorf("fitness of individual %d: %w", i, err)
				}
				local.offer(ranked{index: i, fitness: score})
			}
			locals[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return topTwo{}, err
	}

	top := newTopTwo()
	for _, local := range locals {
		top.merge(local)
	}
	if !top.complete() {
		return topTwo{}, fmt.Errorf("%w: scored %d individuals", ErrPopulationTooSmall, len(population))
	}
	return top, nil
}

// nextGeneration keeps the two elites in front and fills the rest with
// mutated children. Children are fresh values, so they are mutated in
// parallel.
func nextGeneration[T Evolvable[T]](best, second T, size, threads int) ([]T, error) {
	next := make([]T, size)
	next[0] = best
	next[1] = second

	var g errgroup.Group
	g.SetLimit(threads)
	for i := EliteCount; i < size; i++ {
		g.Go(func() (err error) {
			defer recoverInto(&err, "breed child")
			child := best.CrossOver(second)
			child.Mutate()
			next[i] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return next, nil
}

func callFactory[T any](factory Factory[T]) (individual T, err error) {
	defer recoverInto(&err, "factory")
	return factory()
}

func callFitness[T any](fitness FitnessFunc[T], individual T) (score float64, err error) {
	defer recoverInto(&err, "fitness")
	return fitness(individual)
}

func recoverInto(err *error, what string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s panicked: %v", what, r)
	}
}

func improvement(current, previous float64) float64 {
	if math.IsInf(previous, -1) {
		return 0
	}
	return current - previous
}
