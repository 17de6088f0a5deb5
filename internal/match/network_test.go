package match

import (
	"math"
	"testing"

	"palaestra/internal/model"
)

func TestForwardSingleLayer(t *testing.T) {
	// One 2-to-1 transition: weights 1 and -1, bias 0.5.
	genome := model.Genome{1, -1, 0.5}
	out, err := Forward([]int{2, 1}, genome, []float64{2, 1})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("output width = %d, want 1", len(out))
	}
	want := 1.0 / (1.0 + math.Exp(-1.5))
	if math.Abs(out[0]-want) > 1e-9 {
		t.Fatalf("output = %v, want %v", out[0], want)
	}
}

func TestForwardHiddenLayerUsesTanh(t *testing.T) {
	// 1-2-1 network with zero hidden weights: hidden outputs are tanh of
	// their biases, the output node sums them through unit weights.
	genome := model.Genome{
		0, 1, // hidden node a: weight, bias
		0, -1, // hidden node b
		1, 1, 0, // output node: two weights, bias
	}
	out, err := Forward([]int{1, 2, 1}, genome, []float64{3})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	// tanh(1) + tanh(-1) cancels, so the output sees zero.
	if math.Abs(out[0]-0.5) > 1e-9 {
		t.Fatalf("output = %v, want 0.5", out[0])
	}
}

func TestForwardRejectsBadShapes(t *testing.T) {
	if _, err := Forward([]int{2, 1}, model.Genome{1, 2}, []float64{0, 0}); err == nil {
		t.Fatal("accepted genome shorter than the weight count")
	}
	if _, err := Forward([]int{2, 1}, model.Genome{1, 2, 3}, []float64{0}); err == nil {
		t.Fatal("accepted input narrower than the first layer")
	}
	if _, err := Forward([]int{2}, model.Genome{}, []float64{0, 0}); err == nil {
		t.Fatal("accepted a single layer size")
	}
}
