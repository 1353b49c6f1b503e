package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"evoswarm/internal/config"
	"evoswarm/internal/model"
	"evoswarm/internal/storage"
)

// app carries what every subcommand shares once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	storeKind  string
	dbPath     string

	cfg    config.Config
	logger *slog.Logger
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "evoswarm",
		Short:         "Elitist evolution spread over TCP workers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: auto|text|json")
	flags.StringVar(&a.storeKind, "store", "", "run history backend: memory|sqlite")
	flags.StringVar(&a.dbPath, "db-path", "", "sqlite database path")

	root.AddCommand(
		newLocalCmd(a),
		newMasterCmd(a),
		newWorkerCmd(a),
		newRunsCmd(a),
		newShowCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if flags.Changed("store") {
		cfg.Store.Kind = a.storeKind
	}
	if flags.Changed("db-path") {
		cfg.Store.Path = a.dbPath
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	a.out = cmd.OutOrStdout()
	return nil
}

func (a *app) openStore(ctx context.Context) (storage.Store, func(), error) {
	store, err := storage.NewStore(a.cfg.Store.Kind, a.cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = storage.CloseIfSupported(store)
		return nil, nil, fmt.Errorf("open %s store: %w", a.cfg.Store.Kind, err)
	}
	return store, func() { _ = storage.CloseIfSupported(store) }, nil
}

// saveRun persists a finished run. Failures are logged, not returned: the
// evolution result is already printed.
func (a *app) saveRun(ctx context.Context, run model.RunRecord, history []float64) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		a.logger.Warn("run not recorded", "run", run.ID, "error", err)
		return
	}
	defer closeStore()

	if err := store.SaveRun(ctx, run); err != nil {
		a.logger.Warn("run not recorded", "run", run.ID, "error", err)
		return
	}
	if err := store.SaveFitnessHistory(ctx, run.ID, history); err != nil {
		a.logger.Warn("fitness history not recorded", "run", run.ID, "error", err)
	}
	a.logger.Debug("run recorded", "run", run.ID, "store", a.cfg.Store.Kind)
}
