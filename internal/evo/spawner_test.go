package evo

import (
	"math/rand"
	"testing"
)

func TestGaussianSpawner(t *testing.T) {
	spawn, err := GaussianSpawner(5, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("gaussian spawner: %v", err)
	}
	a, b := spawn(), spawn()
	if len(a) != 5 || len(b) != 5 {
		t.Fatalf("genome lengths = %d/%d, want 5/5", len(a), len(b))
	}
	if equalGenomes(a, b) {
		t.Fatal("successive spawns are identical")
	}
}

func TestGaussianSpawnerRejectsLength(t *testing.T) {
	for _, length := range []int{0, -3} {
		if _, err := GaussianSpawner(length, nil); err == nil {
			t.Fatalf("accepted genome length %d", length)
		}
	}
}

func TestWeightCount(t *testing.T) {
	cases := []struct {
		layers []int
		want   int
	}{
		{[]int{2, 2}, 6},
		{[]int{3, 5, 2}, 32},
		{[]int{4, 2, 4, 1}, 27},
	}
	for _, tc := range cases {
		got, err := WeightCount(tc.layers)
		if err != nil {
			t.Fatalf("weight count %v: %v", tc.layers, err)
		}
		if got != tc.want {
			t.Fatalf("weight count %v = %d, want %d", tc.layers, got, tc.want)
		}
	}

	for _, layers := range [][]int{nil, {5}, {3, 0}, {3, -1}} {
		if _, err := WeightCount(layers); err == nil {
			t.Fatalf("accepted layer sizes %v", layers)
		}
	}
}

func TestLayerSpawner(t *testing.T) {
	spawn, err := LayerSpawner([]int{3, 5, 2}, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("layer spawner: %v", err)
	}
	if g := spawn(); len(g) != 32 {
		t.Fatalf("genome length = %d, want 32", len(g))
	}
}
