package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"palaestra/internal/evo"
	"palaestra/internal/model"
	"palaestra/internal/storage"
)

// MatchRunner plays one match for the sampled genome and scores it.
type MatchRunner interface {
	RunMatch(ctx context.Context, genome model.Genome) (evo.MatchResult, evo.EvaluationResult, error)
}

// Config carries the construction inputs of a Trainer.
type Config struct {
	Population *evo.Population
	Runner     MatchRunner
	// Store archives run metadata and per-generation stats. Optional.
	Store storage.Store
	// RunID defaults to a fresh UUID.
	RunID string
	// Matches bounds the number of matches played; zero means unbounded.
	Matches int
	// Generations bounds the number of generation boundaries crossed; zero
	// means unbounded. At least one bound is required.
	Generations int
	Logger      *slog.Logger
}

// Summary reports a finished run.
type Summary struct {
	RunID       string
	Matches     int
	Generations int
	BestFitness float64
}

// Trainer drives the sample-match-evolve loop against a population and
// archives the outcome.
type Trainer struct {
	pop         *evo.Population
	runner      MatchRunner
	store       storage.Store
	runID       string
	matches     int
	generations int
	logger      *slog.Logger
}

func New(cfg Config) (*Trainer, error) {
	if cfg.Population == nil {
		return nil, errors.New("population is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("match runner is required")
	}
	if cfg.Matches <= 0 && cfg.Generations <= 0 {
		return nil, errors.New("a match or generation bound is required")
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Trainer{
		pop:         cfg.Population,
		runner:      cfg.Runner,
		store:       cfg.Store,
		runID:       cfg.RunID,
		matches:     cfg.Matches,
		generations: cfg.Generations,
		logger:      cfg.Logger,
	}, nil
}

// Run plays matches until a bound is reached, then checkpoints the
// population and archives the run.
func (t *Trainer) Run(ctx context.Context) (Summary, error) {
	run := model.TrainingRun{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:            t.runID,
		CheckpointDir: t.pop.Dir(),
		StartedAt:     time.Now().UTC(),
	}
	if err := t.saveRun(ctx, run); err != nil {
		return Summary{}, err
	}
	t.logger.Info("training run started",
		"run_id", t.runID,
		"checkpoint_dir", run.CheckpointDir,
		"population", t.pop.Size(),
	)

	var (
		matches     int
		generations int
		series      []model.GenerationStats
	)
	for {
		if t.matches > 0 && matches >= t.matches {
			break
		}
		if t.generations > 0 && generations >= t.generations {
			break
		}
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}

		genome, err := t.pop.Sample()
		if err != nil {
			return Summary{}, err
		}
		result, eval, err := t.runner.RunMatch(ctx, genome)
		if err != nil {
			return Summary{}, fmt.Errorf("match %d: %w", matches, err)
		}

		before := t.pop.Generation()
		if _, err := t.pop.Evolve(result, eval); err != nil {
			return Summary{}, fmt.Errorf("evolve after match %d: %w", matches, err)
		}
		matches++
		if t.pop.Generation() != before {
			generations++
			if rec, ok := t.pop.LastGenerationStats(); ok {
				series = append(series, rec)
			}
			t.logger.Info("generation finished",
				"run_id", t.runID,
				"generation", t.pop.Generation(),
				"matches", matches,
			)
		}
	}

	if err := t.pop.Save(); err != nil {
		return Summary{}, fmt.Errorf("checkpoint population: %w", err)
	}

	run.CompletedAt = time.Now().UTC()
	run.Matches = matches
	run.Generations = generations
	best := model.UnevaluatedFitness
	for i := 0; i < t.pop.Size(); i++ {
		f, err := t.pop.FitnessAt(i)
		if err != nil {
			return Summary{}, err
		}
		if f > best {
			best = f
		}
	}
	if !math.IsInf(float64(best), 0) {
		run.BestFitness = float64(best)
	}

	if err := t.saveRun(ctx, run); err != nil {
		return Summary{}, err
	}
	if t.store != nil && len(series) > 0 {
		if err := t.store.SaveGenerationStats(ctx, t.runID, series); err != nil {
			return Summary{}, fmt.Errorf("archive generation stats: %w", err)
		}
	}

	t.logger.Info("training run complete",
		"run_id", t.runID,
		"matches", matches,
		"generations", generations,
		"best_fitness", run.BestFitness,
	)
	return Summary{
		RunID:       t.runID,
		Matches:     matches,
		Generations: generations,
		BestFitness: run.BestFitness,
	}, nil
}

func (t *Trainer) saveRun(ctx context.Context, run model.TrainingRun) error {
	if t.store == nil {
		return nil
	}
	if err := t.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("archive run %s: %w", run.ID, err)
	}
	return nil
}
