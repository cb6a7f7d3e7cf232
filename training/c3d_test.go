package training

import "testing"

func TestNewC3DValidation(t *testing.T) {
	if _, err := NewC3D(1); err == nil {
		t.Error("Expected error for single-class model, got nil")
	}
	if _, err := NewC3D(0); err == nil {
		t.Error("Expected error for zero classes, got nil")
	}
}

func TestC3DParameterAccounting(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping full C3D construction in short mode")
	}

	model, err := NewC3D(2)
	if err != nil {
		t.Fatalf("Failed to create C3D model: %v", err)
	}

	// Eight conv blocks plus three fully connected layers, each with a
	// weight and a bias
	wantNames := []string{
		"conv1.weight", "conv1.bias",
		"conv2.weight", "conv2.bias",
		"conv3a.weight", "conv3a.bias",
		"conv3b.weight", "conv3b.bias",
		"conv4a.weight", "conv4a.bias",
		"conv4b.weight", "conv4b.bias",
		"conv5a.weight", "conv5a.bias",
		"conv5b.weight", "conv5b.bias",
		"fc6.weight", "fc6.bias",
		"fc7.weight", "fc7.bias",
		"fc8.weight", "fc8.bias",
	}

	named := model.NamedParameters()
	if len(named) != len(wantNames) {
		t.Fatalf("Expected %d named parameters, got %d", len(wantNames), len(named))
	}
	for i, want := range wantNames {
		if named[i].Name != want {
			t.Errorf("NamedParameters[%d] = %q, expected %q", i, named[i].Name, want)
		}
		if named[i].Tensor == nil {
			t.Fatalf("NamedParameters[%d] has nil tensor", i)
		}
		if !named[i].Tensor.RequiresGrad() {
			t.Errorf("Parameter %q should require gradients", named[i].Name)
		}
	}

	if params := model.Parameters(); len(params) != len(wantNames) {
		t.Errorf("Expected %d parameters, got %d", len(wantNames), len(params))
	}

	// The two-class network weighs in at 78.00M parameters
	if total := CountParameters(model); total != 78003970 {
		t.Errorf("CountParameters = %d, expected 78003970", total)
	}

	fc8Weight := named[len(named)-2].Tensor
	if len(fc8Weight.Shape) != 2 || fc8Weight.Shape[0] != 4096 || fc8Weight.Shape[1] != 2 {
		t.Errorf("Expected fc8 weight shape [4096, 2], got %v", fc8Weight.Shape)
	}

	model.Eval()
	if model.IsTraining() {
		t.Error("Eval should clear training mode")
	}
	model.Train()
	if !model.IsTraining() {
		t.Error("Train should restore training mode")
	}
}

// TestC3DPoolingArithmetic walks the five pooling stages on paper and
// confirms a five-frame 112x112 clip flattens to the 8192 features fc6
// expects.
func TestC3DPoolingArithmetic(t *testing.T) {
	pools := []struct {
		kernel  [3]int
		stride  [3]int
		padding [3]int
	}{
		{[3]int{1, 2, 2}, [3]int{1, 2, 2}, [3]int{0, 0, 0}},
		{[3]int{2, 2, 2}, [3]int{2, 2, 2}, [3]int{0, 0, 0}},
		{[3]int{2, 2, 2}, [3]int{2, 2, 2}, [3]int{0, 0, 0}},
		{[3]int{2, 2, 2}, [3]int{2, 2, 2}, [3]int{0, 0, 0}},
		{[3]int{2, 2, 2}, [3]int{2, 2, 2}, [3]int{0, 1, 1}},
	}

	// Convolutions are all kernel 3, stride 1, padding 1, so they
	// preserve the volume; only the pools shrink it.
	dims := [3]int{5, 112, 112}
	for _, p := range pools {
		for i := 0; i < 3; i++ {
			dims[i] = pooledSize(dims[i], p.kernel[i], p.stride[i], p.padding[i])
		}
	}

	if dims != [3]int{1, 4, 4} {
		t.Fatalf("Pooled volume = %v, expected [1 4 4]", dims)
	}

	features := 512 * dims[0] * dims[1] * dims[2]
	if features != 8192 {
		t.Errorf("Flattened features = %d, expected 8192", features)
	}
}
