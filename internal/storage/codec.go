package storage

import (
	"encoding/json"
	"errors"

	"palaestra/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRun(r model.TrainingRun) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.TrainingRun, error) {
	var run model.TrainingRun
	if err := json.Unmarshal(data, &run); err != nil {
		return model.TrainingRun{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.TrainingRun{}, err
	}
	return run, nil
}

func EncodeGenerationStats(records []model.GenerationStats) ([]byte, error) {
	return json.Marshal(records)
}

func DecodeGenerationStats(data []byte) ([]model.GenerationStats, error) {
	var records []model.GenerationStats
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
