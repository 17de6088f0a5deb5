package match

import (
	"context"
	"fmt"
	"math"

	"palaestra/internal/evo"
	"palaestra/internal/model"
)

var xorCases = []struct {
	in   []float64
	want float64
}{
	{in: []float64{0, 0}, want: 0},
	{in: []float64{0, 1}, want: 1},
	{in: []float64{1, 0}, want: 1},
	{in: []float64{1, 1}, want: 0},
}

// XORRunner evaluates sampled genomes as feed-forward networks on the XOR
// truth table. LayerSizes must start with 2 inputs and end with 1 output. A
// case is answered when the prediction lands on the expected side of 0.5;
// the match is won when every case is answered and won in goal when the
// summed squared error also stays under GoalSSE. Turn reports the answered
// case count.
type XORRunner struct {
	LayerSizes []int
	// GoalSSE bounds the summed squared error of a goal win. Defaults to
	// 0.04.
	GoalSSE float64
}

func (r *XORRunner) RunMatch(ctx context.Context, genome model.Genome) (evo.MatchResult, evo.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return evo.MatchResult{}, evo.EvaluationResult{}, err
	}
	if len(r.LayerSizes) < 2 || r.LayerSizes[0] != 2 || r.LayerSizes[len(r.LayerSizes)-1] != 1 {
		return evo.MatchResult{}, evo.EvaluationResult{}, fmt.Errorf("xor needs layer sizes 2,...,1, got %v", r.LayerSizes)
	}
	goal := r.GoalSSE
	if goal <= 0 {
		goal = 0.04
	}

	answered := 0
	sse := 0.0
	for _, c := range xorCases {
		out, err := Forward(r.LayerSizes, genome, c.in)
		if err != nil {
			return evo.MatchResult{}, evo.EvaluationResult{}, err
		}
		delta := out[0] - c.want
		sse += delta * delta
		if math.Abs(delta) < 0.5 {
			answered++
		}
	}
	won := answered == len(xorCases)
	inGoal := won && sse <= goal

	result := evo.MatchResult{Genome: genome, Won: won, InGoal: inGoal, Turn: answered}
	eval := evo.EvaluationResult{Fitness: reciprocalFitness(sse), CounterDelta: 1}
	return result, eval, nil
}
