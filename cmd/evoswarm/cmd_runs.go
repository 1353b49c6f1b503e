package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"evoswarm/internal/model"
	"evoswarm/internal/nn"
	"evoswarm/internal/scape"
	"evoswarm/internal/wire"
)

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.listRuns(cmd.Context(), limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list, 0 for all")
	return cmd
}

func (a *app) listRuns(ctx context.Context, limit int) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.out, "no runs recorded")
		return nil
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODE\tSTARTED\tGENERATIONS\tBEST FITNESS")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.Mode, humanize.Time(run.StartedAt), humanize.Comma(int64(run.Generations)), formatFitness(run.BestFitness))
	}
	return tw.Flush()
}

func newShowCmd(a *app) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print one recorded run and evaluate its winner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showRun(cmd.Context(), args[0], mode)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "case set used to replay the winner (gt, validation, test)")
	return cmd
}

// modalScape is implemented by scapes with more than one case set.
type modalScape interface {
	EvaluateMode(ctx context.Context, agent scape.Agent, mode string) (float64, scape.Trace, error)
}

func (a *app) showRun(ctx context.Context, id, mode string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	run, ok, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	history, _, err := store.GetFitnessHistory(ctx, id)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", run.ID)
	fmt.Fprintf(tw, "mode\t%s\n", run.Mode)
	if run.Task != "" {
		fmt.Fprintf(tw, "task\t%s\n", run.Task)
	}
	fmt.Fprintf(tw, "started\t%s (%s)\n", run.StartedAt.Format(time.RFC3339), humanize.Time(run.StartedAt))
	fmt.Fprintf(tw, "duration\t%s\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintf(tw, "stop rule\t%s\n", run.StopRule)
	if run.Mode == model.ModeMaster {
		fmt.Fprintf(tw, "start condition\t%s\n", run.StartCondition)
		fmt.Fprintf(tw, "sync condition\t%s\n", run.SyncCondition)
		fmt.Fprintf(tw, "workers\t%d (%d live at the end)\n", run.Workers, run.LiveWorkers)
	} else {
		fmt.Fprintf(tw, "population\t%d\n", run.PopulationSize)
	}
	fmt.Fprintf(tw, "generations\t%s\n", humanize.Comma(int64(run.Generations)))
	fmt.Fprintf(tw, "best fitness\t%s\n", formatFitness(run.BestFitness))
	fmt.Fprintf(tw, "best individual\t%s\n", humanize.Bytes(uint64(len(run.BestIndividual))))
	if len(history) > 0 {
		fmt.Fprintf(tw, "fitness history\t%s\n", summarizeHistory(history, 8))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(run.BestIndividual) == 0 || run.Task == "" {
		return nil
	}
	return a.replayWinner(ctx, run, mode)
}

// replayWinner decodes the stored network and prints its answer to every
// case of the task.
func (a *app) replayWinner(ctx context.Context, run model.RunRecord, mode string) error {
	network, err := wire.DecodeIndividual[*nn.Network](run.BestIndividual)
	if err != nil {
		return fmt.Errorf("decode best individual: %w", err)
	}
	task, err := scape.Lookup(run.Task)
	if err != nil {
		return err
	}
	agent := scape.FromForwarder(network)
	var (
		fitness float64
		trace   scape.Trace
	)
	if modal, ok := task.(modalScape); ok && mode != "" {
		fitness, trace, err = modal.EvaluateMode(ctx, agent, mode)
	} else {
		fitness, trace, err = task.Evaluate(ctx, agent)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "replayed fitness %s", formatFitness(fitness))
	if sse, ok := trace["sse"].(float64); ok {
		fmt.Fprintf(a.out, " (sse %.6f)", sse)
	}
	fmt.Fprintln(a.out)
	return nil
}

func formatFitness(f float64) string {
	if math.IsInf(f, -1) {
		return "-inf"
	}
	return humanize.FormatFloat("#,###.######", f)
}

// summarizeHistory shows the first and last values when the history is
// longer than max.
func summarizeHistory(history []float64, max int) string {
	parts := make([]string, 0, max+1)
	if len(history) <= max {
		for _, f := range history {
			parts = append(parts, formatFitness(f))
		}
		return strings.Join(parts, " ")
	}
	head := max / 2
	for _, f := range history[:head] {
		parts = append(parts, formatFitness(f))
	}
	parts = append(parts, "...")
	for _, f := range history[len(history)-(max-head):] {
		parts = append(parts, formatFitness(f))
	}
	return strings.Join(parts, " ")
}
