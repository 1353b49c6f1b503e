package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"evoswarm/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// NewRunRecord returns a record stamped with the current versions.
func NewRunRecord(id, mode string, startedAt time.Time) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              id,
		Mode:            mode,
		StartedAt:       startedAt,
	}
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	if math.IsNaN(run.BestFitness) || math.IsInf(run.BestFitness, 0) {
		return nil, fmt.Errorf("run %s: best fitness %v is not finite", run.ID, run.BestFitness)
	}
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

// EncodeFitnessHistory stores non-finite entries as null.
func EncodeFitnessHistory(history []float64) ([]byte, error) {
	values := make([]*float64, len(history))
	for i := range history {
		if math.IsNaN(history[i]) || math.IsInf(history[i], 0) {
			continue
		}
		values[i] = &history[i]
	}
	return json.Marshal(values)
}

func DecodeFitnessHistory(data []byte) ([]float64, error) {
	var values []*float64
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	history := make([]float64, len(values))
	for i, v := range values {
		if v == nil {
			history[i] = math.Inf(-1)
			continue
		}
		history[i] = *v
	}
	return history, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
