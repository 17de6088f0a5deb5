package model

import (
	"encoding/binary"
	"math"
	"time"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Genome is a fixed-length vector of evaluator weights. The length is set by
// the spawner at first creation and stays constant for a population's
// lifetime.
type Genome []float32

func (g Genome) Clone() Genome {
	if g == nil {
		return nil
	}
	out := make(Genome, len(g))
	copy(out, g)
	return out
}

// Key returns a content-derived identity usable as a hash key. Two genomes
// share a key exactly when they are bitwise equal gene for gene.
func (g Genome) Key() string {
	buf := make([]byte, 4*len(g))
	for i, gene := range g {
		binary.BigEndian.PutUint32(buf[4*i:], math.Float32bits(gene))
	}
	return string(buf)
}

// UnevaluatedFitness is the sentinel fitness of an individual that has not
// played a match since it was spawned or mutated.
var UnevaluatedFitness = float32(math.Inf(-1))

// Individual pairs a genome with its recorded fitness. Individuals carry no
// stable identity; they are addressed by their current rank.
type Individual struct {
	Genome  Genome
	Fitness float32
}

// CounterState mirrors the nine scalar fields of the counter file, in schema
// order.
type CounterState struct {
	Counter       int32 `json:"counter"`
	Streak        int32 `json:"streak"`
	Generation    int32 `json:"generation"`
	Wins          int32 `json:"wins"`
	GoalWins      int32 `json:"goal_wins"`
	Losses        int32 `json:"losses"`
	MinGoalMoves  int32 `json:"min_goal_moves"`
	MaxGoalMoves  int32 `json:"max_goal_moves"`
	LongestStreak int32 `json:"longest_streak"`
}

// GenerationStats is one record of the append-only stats log, in record
// order.
type GenerationStats struct {
	Wins          int32 `json:"wins"`
	GoalWins      int32 `json:"goal_wins"`
	MaxFitness    int32 `json:"max_fitness"`
	Losses        int32 `json:"losses"`
	MinGoalMoves  int32 `json:"min_goal_moves"`
	MaxGoalMoves  int32 `json:"max_goal_moves"`
	LongestStreak int32 `json:"longest_streak"`
}

// TrainingRun describes one archived training session.
type TrainingRun struct {
	VersionedRecord
	ID            string    `json:"id"`
	CheckpointDir string    `json:"checkpoint_dir"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	Matches       int       `json:"matches"`
	Generations   int       `json:"generations"`
	BestFitness   float64   `json:"best_fitness"`
}

// TruncateFitness converts a fitness to the 32-bit integer written into the
// stats log: fractional digits dropped, infinities saturated, NaN mapped to
// zero.
func TruncateFitness(f float32) int32 {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}
