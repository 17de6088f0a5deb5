package storage

import (
	"context"
	"sort"

	"palaestra/internal/model"
)

// Store defines persistence operations for the training run archive.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.TrainingRun) error
	GetRun(ctx context.Context, id string) (model.TrainingRun, bool, error)
	ListRuns(ctx context.Context) ([]model.TrainingRun, error)
	SaveGenerationStats(ctx context.Context, runID string, records []model.GenerationStats) error
	GetGenerationStats(ctx context.Context, runID string) ([]model.GenerationStats, bool, error)
}

func sortRuns(runs []model.TrainingRun) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
}
