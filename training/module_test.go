package training

import (
	"math"
	"testing"

	"github.com/Ingram66/C2-NET/tensor"
)

func TestLinearModule(t *testing.T) {
	t.Run("Forward pass with known weights", func(t *testing.T) {
		linear, err := NewLinear(2, 2, true)
		if err != nil {
			t.Fatalf("Failed to create Linear layer: %v", err)
		}

		// Overwrite the random initialization with fixed values
		copy(linear.weight.Data.([]float32), []float32{1.0, 2.0, 3.0, 4.0})
		copy(linear.bias.Data.([]float32), []float32{0.5, -0.5})

		input, err := tensor.NewTensor([]int{2, 2}, tensor.Float32, tensor.CPU,
			[]float32{1.0, 2.0, 3.0, 4.0})
		if err != nil {
			t.Fatalf("Failed to create input tensor: %v", err)
		}

		output, err := linear.Forward(input)
		if err != nil {
			t.Fatalf("Linear forward pass failed: %v", err)
		}

		if len(output.Shape) != 2 || output.Shape[0] != 2 || output.Shape[1] != 2 {
			t.Fatalf("Expected output shape [2, 2], got %v", output.Shape)
		}

		expected := []float32{7.5, 9.5, 15.5, 21.5}
		outputData := output.Data.([]float32)
		for i, want := range expected {
			if math.Abs(float64(outputData[i]-want)) > 1e-5 {
				t.Errorf("Output[%d] = %v, expected %v", i, outputData[i], want)
			}
		}
	})

	t.Run("Linear layer without bias", func(t *testing.T) {
		linear, err := NewLinear(2, 1, false)
		if err != nil {
			t.Fatalf("Failed to create Linear layer without bias: %v", err)
		}

		if linear.bias != nil {
			t.Error("Linear layer without bias should have nil bias tensor")
		}

		input, _ := tensor.NewTensor([]int{1, 2}, tensor.Float32, tensor.CPU, []float32{1.0, 2.0})
		output, err := linear.Forward(input)
		if err != nil {
			t.Fatalf("Linear forward pass without bias failed: %v", err)
		}

		if len(output.Shape) != 2 || output.Shape[0] != 1 || output.Shape[1] != 1 {
			t.Errorf("Expected output shape [1, 1], got %v", output.Shape)
		}
	})

	t.Run("Linear layer parameters", func(t *testing.T) {
		linear, _ := NewLinear(3, 2, true)

		params := linear.Parameters()
		if len(params) != 2 {
			t.Fatalf("Expected 2 parameters (weight and bias), got %d", len(params))
		}

		weight := params[0]
		if len(weight.Shape) != 2 || weight.Shape[0] != 3 || weight.Shape[1] != 2 {
			t.Errorf("Expected weight shape [3, 2], got %v", weight.Shape)
		}

		bias := params[1]
		if len(bias.Shape) != 1 || bias.Shape[0] != 2 {
			t.Errorf("Expected bias shape [2], got %v", bias.Shape)
		}

		if !weight.RequiresGrad() {
			t.Error("Weight should require gradients")
		}
		if !bias.RequiresGrad() {
			t.Error("Bias should require gradients")
		}
	})

	t.Run("Input validation", func(t *testing.T) {
		linear, _ := NewLinear(3, 2, true)

		input1D, _ := tensor.NewTensor([]int{3}, tensor.Float32, tensor.CPU, []float32{1, 2, 3})
		if _, err := linear.Forward(input1D); err == nil {
			t.Error("Expected error for 1D input, got nil")
		}

		inputWrongSize, _ := tensor.NewTensor([]int{1, 4}, tensor.Float32, tensor.CPU, []float32{1, 2, 3, 4})
		if _, err := linear.Forward(inputWrongSize); err == nil {
			t.Error("Expected error for mismatched input size, got nil")
		}
	})
}

func TestLinearBackward(t *testing.T) {
	linear, err := NewLinear(2, 2, true)
	if err != nil {
		t.Fatalf("Failed to create Linear layer: %v", err)
	}
	copy(linear.weight.Data.([]float32), []float32{1.0, 2.0, 3.0, 4.0})
	copy(linear.bias.Data.([]float32), []float32{0.0, 0.0})

	input, _ := tensor.NewTensor([]int{1, 2}, tensor.Float32, tensor.CPU, []float32{1.0, 2.0})
	if _, err := linear.Forward(input); err != nil {
		t.Fatalf("Forward pass failed: %v", err)
	}

	gradOutput, _ := tensor.NewTensor([]int{1, 2}, tensor.Float32, tensor.CPU, []float32{1.0, 2.0})
	gradInput, err := linear.Backward(gradOutput)
	if err != nil {
		t.Fatalf("Backward pass failed: %v", err)
	}

	// dL/dW = input^T @ gradOutput
	wantGradWeight := []float32{1.0, 2.0, 2.0, 4.0}
	gradWeight := linear.weight.Grad()
	if gradWeight == nil {
		t.Fatal("Weight gradient was not accumulated")
	}
	for i, want := range wantGradWeight {
		got := gradWeight.Data.([]float32)[i]
		if math.Abs(float64(got-want)) > 1e-5 {
			t.Errorf("Weight grad[%d] = %v, expected %v", i, got, want)
		}
	}

	// dL/db = column sums of gradOutput
	wantGradBias := []float32{1.0, 2.0}
	gradBias := linear.bias.Grad()
	if gradBias == nil {
		t.Fatal("Bias gradient was not accumulated")
	}
	for i, want := range wantGradBias {
		got := gradBias.Data.([]float32)[i]
		if math.Abs(float64(got-want)) > 1e-5 {
			t.Errorf("Bias grad[%d] = %v, expected %v", i, got, want)
		}
	}

	// dL/dx = gradOutput @ W^T
	wantGradInput := []float32{5.0, 11.0}
	for i, want := range wantGradInput {
		got := gradInput.Data.([]float32)[i]
		if math.Abs(float64(got-want)) > 1e-5 {
			t.Errorf("Input grad[%d] = %v, expected %v", i, got, want)
		}
	}

	t.Run("Backward without forward fails", func(t *testing.T) {
		fresh, _ := NewLinear(2, 2, true)
		if _, err := fresh.Backward(gradOutput); err == nil {
			t.Error("Expected error for backward without cached input, got nil")
		}
	})

	t.Run("Eval clears cached input", func(t *testing.T) {
		linear.Eval()
		if _, err := linear.Backward(gradOutput); err == nil {
			t.Error("Expected error for backward after Eval, got nil")
		}
	})
}

func TestReLUModule(t *testing.T) {
	relu := NewReLU()

	input, err := tensor.NewTensor([]int{2, 3}, tensor.Float32, tensor.CPU,
		[]float32{-1.0, 0.0, 1.0, -2.0, 3.0, -0.5})
	if err != nil {
		t.Fatalf("Failed to create input tensor: %v", err)
	}

	output, err := relu.Forward(input)
	if err != nil {
		t.Fatalf("ReLU forward pass failed: %v", err)
	}

	expected := []float32{0.0, 0.0, 1.0, 0.0, 3.0, 0.0}
	outputData := output.Data.([]float32)
	for i, want := range expected {
		if outputData[i] != want {
			t.Errorf("Output[%d] = %v, expected %v", i, outputData[i], want)
		}
	}

	gradOutput, _ := tensor.NewTensor([]int{2, 3}, tensor.Float32, tensor.CPU,
		[]float32{1.0, 1.0, 1.0, 1.0, 1.0, 1.0})
	gradInput, err := relu.Backward(gradOutput)
	if err != nil {
		t.Fatalf("ReLU backward pass failed: %v", err)
	}

	// Gradient passes only where the forward input was positive
	wantGrad := []float32{0.0, 0.0, 1.0, 0.0, 1.0, 0.0}
	gradData := gradInput.Data.([]float32)
	for i, want := range wantGrad {
		if gradData[i] != want {
			t.Errorf("Grad[%d] = %v, expected %v", i, gradData[i], want)
		}
	}

	if len(relu.Parameters()) != 0 {
		t.Errorf("ReLU should have no parameters, got %d", len(relu.Parameters()))
	}
}

func TestDropoutModule(t *testing.T) {
	t.Run("Invalid probability", func(t *testing.T) {
		if _, err := NewDropout(-0.1); err == nil {
			t.Error("Expected error for negative probability, got nil")
		}
		if _, err := NewDropout(1.0); err == nil {
			t.Error("Expected error for probability 1.0, got nil")
		}
	})

	t.Run("Eval mode is identity", func(t *testing.T) {
		dropout, err := NewDropout(0.5)
		if err != nil {
			t.Fatalf("Failed to create Dropout layer: %v", err)
		}
		dropout.Eval()

		input, _ := tensor.NewTensor([]int{1, 4}, tensor.Float32, tensor.CPU,
			[]float32{1.0, 2.0, 3.0, 4.0})
		output, err := dropout.Forward(input)
		if err != nil {
			t.Fatalf("Dropout forward pass failed: %v", err)
		}
		if output != input {
			t.Error("Eval mode dropout should return the input unchanged")
		}
	})

	t.Run("Zero probability is identity", func(t *testing.T) {
		dropout, _ := NewDropout(0.0)
		input, _ := tensor.NewTensor([]int{1, 4}, tensor.Float32, tensor.CPU,
			[]float32{1.0, 2.0, 3.0, 4.0})
		output, err := dropout.Forward(input)
		if err != nil {
			t.Fatalf("Dropout forward pass failed: %v", err)
		}
		if output != input {
			t.Error("Zero probability dropout should return the input unchanged")
		}
	})

	t.Run("Training mode masks and rescales", func(t *testing.T) {
		SetRandomSeed(42)
		dropout, _ := NewDropout(0.5)

		const n = 1000
		ones := make([]float32, n)
		for i := range ones {
			ones[i] = 1.0
		}
		input, _ := tensor.NewTensor([]int{1, n}, tensor.Float32, tensor.CPU, ones)

		output, err := dropout.Forward(input)
		if err != nil {
			t.Fatalf("Dropout forward pass failed: %v", err)
		}

		outputData := output.Data.([]float32)
		zeros := 0
		for i, val := range outputData {
			switch val {
			case 0.0:
				zeros++
			case 2.0:
				// Survivor scaled by 1/(1-p)
			default:
				t.Fatalf("Output[%d] = %v, expected 0 or 2", i, val)
			}
		}
		if zeros < 350 || zeros > 650 {
			t.Errorf("Dropped %d of %d elements, expected roughly half", zeros, n)
		}

		// Backward applies the identical mask
		gradOutput, _ := tensor.NewTensor([]int{1, n}, tensor.Float32, tensor.CPU, ones)
		gradInput, err := dropout.Backward(gradOutput)
		if err != nil {
			t.Fatalf("Dropout backward pass failed: %v", err)
		}
		gradData := gradInput.Data.([]float32)
		for i := range gradData {
			if gradData[i] != outputData[i] {
				t.Fatalf("Grad[%d] = %v does not match forward mask %v", i, gradData[i], outputData[i])
			}
		}
	})
}

func TestFlattenModule(t *testing.T) {
	flatten := NewFlatten()

	data := make([]float32, 24)
	for i := range data {
		data[i] = float32(i)
	}
	input, err := tensor.NewTensor([]int{2, 3, 4}, tensor.Float32, tensor.CPU, data)
	if err != nil {
		t.Fatalf("Failed to create input tensor: %v", err)
	}

	output, err := flatten.Forward(input)
	if err != nil {
		t.Fatalf("Flatten forward pass failed: %v", err)
	}
	if len(output.Shape) != 2 || output.Shape[0] != 2 || output.Shape[1] != 12 {
		t.Fatalf("Expected output shape [2, 12], got %v", output.Shape)
	}

	outputData := output.Data.([]float32)
	for i := range data {
		if outputData[i] != data[i] {
			t.Errorf("Output[%d] = %v, expected %v", i, outputData[i], data[i])
		}
	}

	gradOutput, _ := tensor.NewTensor([]int{2, 12}, tensor.Float32, tensor.CPU, data)
	gradInput, err := flatten.Backward(gradOutput)
	if err != nil {
		t.Fatalf("Flatten backward pass failed: %v", err)
	}
	if len(gradInput.Shape) != 3 || gradInput.Shape[0] != 2 || gradInput.Shape[1] != 3 || gradInput.Shape[2] != 4 {
		t.Errorf("Expected gradient shape [2, 3, 4], got %v", gradInput.Shape)
	}

	t.Run("Rejects 1D input", func(t *testing.T) {
		input1D, _ := tensor.NewTensor([]int{4}, tensor.Float32, tensor.CPU, []float32{1, 2, 3, 4})
		if _, err := flatten.Forward(input1D); err == nil {
			t.Error("Expected error for 1D input, got nil")
		}
	})
}

func TestSequentialModule(t *testing.T) {
	linear, err := NewLinear(2, 2, false)
	if err != nil {
		t.Fatalf("Failed to create Linear layer: %v", err)
	}
	copy(linear.weight.Data.([]float32), []float32{1.0, -1.0, 1.0, 1.0})

	seq := NewSequential(linear, NewReLU())

	t.Run("Forward chains modules", func(t *testing.T) {
		input, _ := tensor.NewTensor([]int{1, 2}, tensor.Float32, tensor.CPU, []float32{2.0, 1.0})
		output, err := seq.Forward(input)
		if err != nil {
			t.Fatalf("Sequential forward pass failed: %v", err)
		}

		// Linear produces [3, -1]; ReLU clamps to [3, 0]
		expected := []float32{3.0, 0.0}
		outputData := output.Data.([]float32)
		for i, want := range expected {
			if math.Abs(float64(outputData[i]-want)) > 1e-5 {
				t.Errorf("Output[%d] = %v, expected %v", i, outputData[i], want)
			}
		}
	})

	t.Run("Backward runs in reverse order", func(t *testing.T) {
		gradOutput, _ := tensor.NewTensor([]int{1, 2}, tensor.Float32, tensor.CPU, []float32{1.0, 1.0})
		gradInput, err := seq.Backward(gradOutput)
		if err != nil {
			t.Fatalf("Sequential backward pass failed: %v", err)
		}

		// ReLU masks the second column, so only the first logit contributes
		wantGradInput := []float32{1.0, 1.0}
		gradData := gradInput.Data.([]float32)
		for i, want := range wantGradInput {
			if math.Abs(float64(gradData[i]-want)) > 1e-5 {
				t.Errorf("Input grad[%d] = %v, expected %v", i, gradData[i], want)
			}
		}

		wantGradWeight := []float32{2.0, 0.0, 1.0, 0.0}
		gradWeight := linear.weight.Grad()
		if gradWeight == nil {
			t.Fatal("Weight gradient was not accumulated")
		}
		for i, want := range wantGradWeight {
			got := gradWeight.Data.([]float32)[i]
			if math.Abs(float64(got-want)) > 1e-5 {
				t.Errorf("Weight grad[%d] = %v, expected %v", i, got, want)
			}
		}
	})

	t.Run("Parameters aggregates all modules", func(t *testing.T) {
		l1, _ := NewLinear(4, 3, true)
		l2, _ := NewLinear(3, 2, false)
		container := NewSequential(l1, NewReLU(), l2)

		params := container.Parameters()
		if len(params) != 3 {
			t.Errorf("Expected 3 parameters, got %d", len(params))
		}
	})

	t.Run("Train and Eval propagate", func(t *testing.T) {
		dropout, _ := NewDropout(0.5)
		container := NewSequential(NewReLU(), dropout)

		container.Eval()
		if container.IsTraining() || dropout.IsTraining() {
			t.Error("Eval should propagate to contained modules")
		}

		container.Train()
		if !container.IsTraining() || !dropout.IsTraining() {
			t.Error("Train should propagate to contained modules")
		}
	})

	t.Run("Add appends modules", func(t *testing.T) {
		container := NewSequential(NewReLU())
		container.Add(NewFlatten())
		if len(container.Modules()) != 2 {
			t.Errorf("Expected 2 modules after Add, got %d", len(container.Modules()))
		}
	})
}

func TestSetRandomSeed(t *testing.T) {
	SetRandomSeed(7)
	first, err := NewLinear(4, 4, false)
	if err != nil {
		t.Fatalf("Failed to create Linear layer: %v", err)
	}

	SetRandomSeed(7)
	second, err := NewLinear(4, 4, false)
	if err != nil {
		t.Fatalf("Failed to create Linear layer: %v", err)
	}

	firstData := first.weight.Data.([]float32)
	secondData := second.weight.Data.([]float32)
	for i := range firstData {
		if firstData[i] != secondData[i] {
			t.Fatalf("Weight[%d] differs across identical seeds: %v vs %v", i, firstData[i], secondData[i])
		}
	}

	SetRandomSeed(8)
	third, _ := NewLinear(4, 4, false)
	thirdData := third.weight.Data.([]float32)
	same := true
	for i := range firstData {
		if firstData[i] != thirdData[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("Different seeds produced identical weights")
	}
}
