package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"evoswarm/internal/evo"
	"evoswarm/internal/model"
	"evoswarm/internal/nn"
	"evoswarm/internal/storage"
	"evoswarm/internal/wire"
)

func newLocalCmd(a *app) *cobra.Command {
	var (
		stop       string
		population int
		threads    int
		seed       int64
	)
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Evolve the example network in this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("stop") {
				a.cfg.Evolution.Stop = stop
			}
			if flags.Changed("population") {
				a.cfg.Evolution.PopulationSize = population
			}
			if flags.Changed("threads") {
				a.cfg.Evolution.Threads = threads
			}
			if flags.Changed("seed") {
				a.cfg.Evolution.Seed = seed
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runLocal(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&stop, "stop", "", "stop rule: fitness:<f>|generations:<n>|stale:<n>|never")
	flags.IntVar(&population, "population", 0, "population size")
	flags.IntVar(&threads, "threads", 0, "scoring threads, 0 for all cores")
	flags.Int64Var(&seed, "seed", 0, "base seed for the initial networks")
	return cmd
}

func (a *app) runLocal(ctx context.Context) error {
	stop, err := a.cfg.StopRule()
	if err != nil {
		return err
	}
	p, err := newPayload(a.cfg.Evolution, a.cfg.Evolution.Seed)
	if err != nil {
		return err
	}

	started := time.Now()
	res, err := evo.Evolve(ctx, evo.Config[*nn.Network]{
		PopulationSize: a.cfg.Evolution.PopulationSize,
		Stop:           stop,
		Factory:        p.newNetwork,
		Fitness:        p.fitness(ctx),
		Options: evo.Options[*nn.Network]{
			Threads: a.cfg.Evolution.Threads,
			Logger:  a.logger,
		},
	})
	if err != nil {
		return fmt.Errorf("local evolution: %w", err)
	}

	run := storage.NewRunRecord(uuid.NewString(), model.ModeLocal, started)
	run.Task = p.task.Name()
	run.StopRule = stop.String()
	run.PopulationSize = a.cfg.Evolution.PopulationSize
	run.FinishedAt = time.Now()
	run.Generations = res.Generations
	run.BestFitness = res.Fitness
	if run.BestIndividual, err = wire.EncodeIndividual(res.Best); err != nil {
		return err
	}
	a.saveRun(ctx, run, res.BestByGeneration)

	fmt.Fprintf(a.out, "run %s finished after %d generations with best fitness %.6f\n", run.ID, res.Generations, res.Fitness)
	return nil
}
