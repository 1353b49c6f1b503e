package storage

import (
	"context"

	"evoswarm/internal/model"
)

// Store persists finished runs and their per-generation fitness history.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns summaries, most recent first.
	ListRuns(ctx context.Context) ([]model.RunSummary, error)
	DeleteRun(ctx context.Context, id string) error
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
}
