package match

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"palaestra/internal/evo"
	"palaestra/internal/model"
)

// TargetRunner scores sampled genomes against a fixed target vector. Every
// gene comparison counts as one turn; a gene within Tolerance of its target
// is a hit. The match is won when the mean squared error stays under
// WinThreshold and won in goal when every gene hits. Turn reports the hit
// count.
type TargetRunner struct {
	Target model.Genome
	// Tolerance is the per-gene hit distance. Defaults to 0.5.
	Tolerance float32
	// WinThreshold bounds the mean squared error of a winning genome.
	// Defaults to 1.
	WinThreshold float64
}

// NewTargetRunner mints a Gaussian target vector of the given length from
// seed and returns a runner scoring genomes against it.
func NewTargetRunner(length int, seed int64) (*TargetRunner, error) {
	spawn, err := evo.GaussianSpawner(length, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}
	return &TargetRunner{Target: spawn()}, nil
}

func (r *TargetRunner) RunMatch(ctx context.Context, genome model.Genome) (evo.MatchResult, evo.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return evo.MatchResult{}, evo.EvaluationResult{}, err
	}
	if len(genome) != len(r.Target) {
		return evo.MatchResult{}, evo.EvaluationResult{}, fmt.Errorf("genome length %d does not match target length %d", len(genome), len(r.Target))
	}

	tolerance := float64(r.Tolerance)
	if tolerance <= 0 {
		tolerance = 0.5
	}
	winAt := r.WinThreshold
	if winAt <= 0 {
		winAt = 1
	}

	hits := 0
	sse := 0.0
	for i, gene := range genome {
		delta := float64(gene) - float64(r.Target[i])
		sse += delta * delta
		if math.Abs(delta) <= tolerance {
			hits++
		}
	}
	mse := sse / float64(len(genome))
	inGoal := hits == len(genome)
	won := inGoal || mse < winAt

	result := evo.MatchResult{Genome: genome, Won: won, InGoal: inGoal, Turn: hits}
	eval := evo.EvaluationResult{Fitness: reciprocalFitness(sse), CounterDelta: 1}
	return result, eval, nil
}
