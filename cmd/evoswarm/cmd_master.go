package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"evoswarm/internal/master"
	"evoswarm/internal/model"
	"evoswarm/internal/nn"
	"evoswarm/internal/role"
	"evoswarm/internal/storage"
	"evoswarm/internal/wire"
)

const childGracePeriod = 5 * time.Second

func newMasterCmd(a *app) *cobra.Command {
	var (
		host           string
		port           int
		start          string
		sync           string
		stop           string
		spawn          int
		metricsAddr    string
		requestTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Accept workers and evolve their individuals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("host") {
				a.cfg.Master.Host = host
			}
			if flags.Changed("port") {
				a.cfg.Master.Port = port
			}
			if flags.Changed("start") {
				a.cfg.Master.Start = start
			}
			if flags.Changed("sync") {
				a.cfg.Master.Sync = sync
			}
			if flags.Changed("stop") {
				a.cfg.Evolution.Stop = stop
			}
			if flags.Changed("spawn") {
				a.cfg.Master.Spawn = spawn
			}
			if flags.Changed("metrics-addr") {
				a.cfg.Master.MetricsAddr = metricsAddr
			}
			if flags.Changed("request-timeout") {
				a.cfg.Master.RequestTimeout = requestTimeout
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runMaster(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&host, "host", "", "listen host")
	flags.IntVar(&port, "port", master.DefaultPort, "listen port")
	flags.StringVar(&start, "start", "", "start condition: clients:<n>|quiet:<duration>")
	flags.StringVar(&sync, "sync", "", "sync condition: generations:<n>|every:<duration>|off")
	flags.StringVar(&stop, "stop", "", "stop rule: fitness:<f>|generations:<n>|stale:<n>|never")
	flags.IntVar(&spawn, "spawn", 0, "worker child processes to launch")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.DurationVar(&requestTimeout, "request-timeout", 0, "deadline for each worker request")
	return cmd
}

func (a *app) runMaster(ctx context.Context) error {
	stop, err := a.cfg.StopRule()
	if err != nil {
		return err
	}
	start, err := a.cfg.StartCondition()
	if err != nil {
		return err
	}
	syncCond, err := a.cfg.SyncCondition()
	if err != nil {
		return err
	}

	c, err := master.NewCoordinator[*nn.Network](master.Config{
		Addr:           a.cfg.ListenAddr(),
		Start:          start,
		Sync:           syncCond,
		Stop:           stop,
		Threads:        a.cfg.Evolution.Threads,
		RequestTimeout: a.cfg.Master.RequestTimeout,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}
	if err := c.Listen(); err != nil {
		return err
	}
	defer c.Close()

	if a.cfg.Master.MetricsAddr != "" {
		shutdown := a.serveMetrics(a.cfg.Master.MetricsAddr)
		defer shutdown()
	}

	if a.cfg.Master.Spawn > 0 {
		childCtx, killChildren := context.WithCancel(ctx)
		defer killChildren()
		children, err := role.Spawn(childCtx, a.cfg.Master.Spawn, a.childArgs(c.Addr())...)
		if err != nil {
			return err
		}
		a.logger.Info("spawned workers", "count", len(children))
		defer a.waitChildren(children, killChildren)
	}

	started := time.Now()
	res, err := c.Serve(ctx)
	if err != nil {
		return fmt.Errorf("master: %w", err)
	}

	run := storage.NewRunRecord(uuid.NewString(), model.ModeMaster, started)
	run.Task = a.cfg.Evolution.Task
	run.StopRule = stop.String()
	run.StartCondition = start.String()
	run.SyncCondition = syncCond.String()
	run.PopulationSize = res.Workers
	run.Workers = res.Workers
	run.LiveWorkers = res.LiveWorkers
	run.FinishedAt = time.Now()
	run.Generations = res.Generations
	run.BestFitness = res.Fitness
	if res.Found {
		if run.BestIndividual, err = wire.EncodeIndividual(res.Best); err != nil {
			return err
		}
	} else {
		a.logger.Warn("winning individual could not be retrieved")
	}
	a.saveRun(ctx, run, res.BestByGeneration)

	fmt.Fprintf(a.out, "run %s finished after %d generations with best fitness %.6f (%d/%d workers live)\n",
		run.ID, res.Generations, res.Fitness, res.LiveWorkers, res.Workers)
	return nil
}

// childArgs points spawned workers at the bound listener and hands down
// the parent's configuration.
func (a *app) childArgs(addr net.Addr) []string {
	port := a.cfg.Master.Port
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = tcp.Port
	}
	args := []string{
		"--master", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		"--log-level", a.cfg.Log.Level,
		"--log-format", a.cfg.Log.Format,
	}
	if a.configPath != "" {
		args = append(args, "--config", a.configPath)
	}
	return args
}

// waitChildren gives workers time to notice the closed connection before
// killing them.
func (a *app) waitChildren(children []*exec.Cmd, kill context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		for _, child := range children {
			_ = child.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(childGracePeriod):
		a.logger.Warn("workers did not exit, killing them")
		kill()
		<-done
	}
}

func (a *app) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
