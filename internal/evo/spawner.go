package evo

import (
	"fmt"
	"math/rand"
	"time"

	"palaestra/internal/model"
)

// Spawner produces fresh genomes. Every genome from one spawner must have
// the same length; a population fixes its genome length at first spawn.
type Spawner func() model.Genome

// GaussianSpawner returns a spawner producing genomes of the given length
// with unit Gaussian genes.
func GaussianSpawner(length int, rng *rand.Rand) (Spawner, error) {
	if length <= 0 {
		return nil, fmt.Errorf("genome length must be > 0, got %d", length)
	}
	rng = ensureRNG(rng)
	return func() model.Genome {
		g := make(model.Genome, length)
		for i := range g {
			g[i] = float32(rng.NormFloat64())
		}
		return g
	}, nil
}

// LayerSpawner sizes genomes for a fully connected evaluator network with
// one bias weight per node and fills them with unit Gaussian draws.
func LayerSpawner(layerSizes []int, rng *rand.Rand) (Spawner, error) {
	length, err := WeightCount(layerSizes)
	if err != nil {
		return nil, err
	}
	return GaussianSpawner(length, rng)
}

// WeightCount returns the number of weights a fully connected network with
// the given layer sizes carries: (in+1)*out per layer transition.
func WeightCount(layerSizes []int) (int, error) {
	if len(layerSizes) < 2 {
		return 0, fmt.Errorf("at least two layer sizes are required, got %d", len(layerSizes))
	}
	total := 0
	for i := 1; i < len(layerSizes); i++ {
		in, out := layerSizes[i-1], layerSizes[i]
		if in <= 0 || out <= 0 {
			return 0, fmt.Errorf("layer sizes must be > 0, got %d", min(in, out))
		}
		total += (in + 1) * out
	}
	return total, nil
}

func ensureRNG(rng *rand.Rand) *rand.Rand {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rng
}
