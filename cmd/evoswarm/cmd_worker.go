package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"evoswarm/internal/worker"
)

func newWorkerCmd(a *app) *cobra.Command {
	var (
		masterAddr   string
		generations  int
		population   int
		perturbation float64
		attempts     int
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Connect to a master and train the individual it assigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("master") {
				a.cfg.Worker.Master = masterAddr
			}
			if flags.Changed("local-generations") {
				a.cfg.Worker.LocalGenerations = generations
			}
			if flags.Changed("local-population") {
				a.cfg.Worker.LocalPopulation = population
			}
			if flags.Changed("perturbation") {
				a.cfg.Worker.Perturbation = perturbation
			}
			if flags.Changed("dial-attempts") {
				a.cfg.Worker.DialAttempts = attempts
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runWorker(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&masterAddr, "master", "", "master address host:port")
	flags.IntVar(&generations, "local-generations", 0, "local generations per train request")
	flags.IntVar(&population, "local-population", 0, "local population per train request")
	flags.Float64Var(&perturbation, "perturbation", 0, "stddev of the noise added to local clones")
	flags.IntVar(&attempts, "dial-attempts", 0, "connection attempts before giving up, 0 retries forever")
	return cmd
}

func (a *app) runWorker(ctx context.Context) error {
	// Every worker process draws its own networks.
	p, err := newPayload(a.cfg.Evolution, 0)
	if err != nil {
		return err
	}
	agent, err := p.workerAgent(a.cfg.Worker, a.logger)
	if err != nil {
		return err
	}
	return worker.DialWithRetry(ctx, a.cfg.Worker.Master, agent, worker.DialPolicy{
		MaxBackoff:  2 * time.Second,
		MaxAttempts: a.cfg.Worker.DialAttempts,
	})
}
