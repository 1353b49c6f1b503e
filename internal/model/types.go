package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

const (
	ModeLocal  = "local"
	ModeMaster = "master"
)

// RunRecord describes one finished evolution run. BestIndividual holds the
// wire encoding of the winner so it can be decoded or pushed to a worker
// later.
type RunRecord struct {
	VersionedRecord
	ID             string    `json:"id"`
	Mode           string    `json:"mode"`
	Task           string    `json:"task,omitempty"`
	StopRule       string    `json:"stop_rule"`
	StartCondition string    `json:"start_condition,omitempty"`
	SyncCondition  string    `json:"sync_condition,omitempty"`
	PopulationSize int       `json:"population_size"`
	Workers        int       `json:"workers,omitempty"`
	LiveWorkers    int       `json:"live_workers,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Generations    int       `json:"generations"`
	BestFitness    float64   `json:"best_fitness"`
	BestIndividual []byte    `json:"best_individual,omitempty"`
}

// RunSummary is the listing view of a RunRecord.
type RunSummary struct {
	ID          string    `json:"id"`
	Mode        string    `json:"mode"`
	StartedAt   time.Time `json:"started_at"`
	Generations int       `json:"generations"`
	BestFitness float64   `json:"best_fitness"`
}

func (r RunRecord) Summary() RunSummary {
	return RunSummary{
		ID:          r.ID,
		Mode:        r.Mode,
		StartedAt:   r.StartedAt,
		Generations: r.Generations,
		BestFitness: r.BestFitness,
	}
}

func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
