// Package match provides built-in match engines for smoke training and
// benchmarking without an external game host. Each runner plays one match
// per sampled genome and scores it.
package match

import (
	"fmt"
	"math"

	"palaestra/internal/evo"
	"palaestra/internal/model"
)

// Forward evaluates genome as a fully connected feed-forward network over
// the given layer sizes. Genes are consumed in order, per output node: one
// weight per input followed by the node bias. Hidden nodes apply tanh,
// output nodes sigmoid.
func Forward(layerSizes []int, genome model.Genome, input []float64) ([]float64, error) {
	want, err := evo.WeightCount(layerSizes)
	if err != nil {
		return nil, err
	}
	if len(genome) != want {
		return nil, fmt.Errorf("genome carries %d genes, network needs %d", len(genome), want)
	}
	if len(input) != layerSizes[0] {
		return nil, fmt.Errorf("input width %d does not match first layer size %d", len(input), layerSizes[0])
	}

	values := input
	gene := 0
	for layer := 1; layer < len(layerSizes); layer++ {
		out := make([]float64, layerSizes[layer])
		for node := range out {
			total := 0.0
			for _, v := range values {
				total += v * float64(genome[gene])
				gene++
			}
			total += float64(genome[gene])
			gene++
			if layer == len(layerSizes)-1 {
				out[node] = sigmoid(total)
			} else {
				out[node] = math.Tanh(total)
			}
		}
		values = out
	}
	return values, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// reciprocalFitness maps a summed squared error to fitness. The epsilon
// keeps perfect scores finite.
func reciprocalFitness(sse float64) float32 {
	return float32(1.0 / (sse + 0.000001))
}
