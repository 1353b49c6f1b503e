package main

import (
	"context"
	"log/slog"
	randv2 "math/rand/v2"
	"slices"
	"sync/atomic"

	"evoswarm/internal/config"
	"evoswarm/internal/evo"
	"evoswarm/internal/nn"
	"evoswarm/internal/scape"
	"evoswarm/internal/worker"
)

// payload builds and scores the example networks for one task.
type payload struct {
	task   scape.Scape
	hidden []int
	seed   int64
	next   atomic.Int64
}

// newPayload uses seed as the base of a deterministic sequence; zero draws
// every network from a random seed.
func newPayload(cfg config.EvolutionConfig, seed int64) (*payload, error) {
	task, err := scape.Lookup(cfg.Task)
	if err != nil {
		return nil, err
	}
	return &payload{task: task, hidden: slices.Clone(cfg.Hidden), seed: seed}, nil
}

func (p *payload) layers() []int {
	return append(slices.Clone(p.hidden), p.task.Outputs())
}

func (p *payload) newNetwork() (*nn.Network, error) {
	seed := randv2.Int64()
	if p.seed != 0 {
		seed = p.seed + p.next.Add(1)
	}
	return nn.New(p.task.Inputs(), p.layers(), seed)
}

func (p *payload) evaluate(ctx context.Context, n *nn.Network) (float64, error) {
	fitness, _, err := p.task.Evaluate(ctx, scape.FromForwarder(n))
	return fitness, err
}

func (p *payload) fitness(ctx context.Context) evo.FitnessFunc[*nn.Network] {
	return func(n *nn.Network) (float64, error) {
		return p.evaluate(ctx, n)
	}
}

func (p *payload) workerInit(ctx context.Context) (*nn.Network, float64, error) {
	n, err := p.newNetwork()
	if err != nil {
		return nil, 0, err
	}
	fitness, err := p.evaluate(ctx, n)
	if err != nil {
		return nil, 0, err
	}
	return n, fitness, nil
}

// accept refuses networks whose shape does not fit the task.
func (p *payload) accept(n *nn.Network) error {
	return n.CheckShape(p.task.Inputs(), p.layers())
}

func (p *payload) workerAgent(cfg config.WorkerConfig, logger *slog.Logger) (*worker.Agent[*nn.Network], error) {
	return worker.NewAgent(worker.Config[*nn.Network]{
		Init:   p.workerInit,
		Train:  p.localTrain(cfg),
		Accept: p.accept,
		Logger: logger,
	})
}

// localTrain refines the held network with a short in-process run over
// perturbed clones and keeps the winner. The unperturbed clone takes part,
// so the result never scores below the network handed in.
func (p *payload) localTrain(cfg config.WorkerConfig) worker.TrainFunc[*nn.Network] {
	quiet := slog.New(slog.DiscardHandler)
	return func(ctx context.Context, held *nn.Network) (float64, error) {
		created := 0
		res, err := evo.Evolve(ctx, evo.Config[*nn.Network]{
			PopulationSize: cfg.LocalPopulation,
			Stop:           evo.GenerationReached(cfg.LocalGenerations),
			Factory: func() (*nn.Network, error) {
				clone := held.Clone()
				if created > 0 {
					clone.Perturb(cfg.Perturbation)
				}
				created++
				return clone, nil
			},
			Fitness: p.fitness(ctx),
			Options: evo.Options[*nn.Network]{Threads: 1, Logger: quiet},
		})
		if err != nil {
			return 0, err
		}
		held.Layers = res.Best.Layers
		return res.Fitness, nil
	}
}
