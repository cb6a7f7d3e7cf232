package tensor

import (
	"fmt"
)

type DType int

const (
	Float32 DType = iota
	Int32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "Float32"
	case Int32:
		return "Int32"
	default:
		return "Unknown"
	}
}

type DeviceType int

const (
	CPU DeviceType = iota
	GPU
)

func (d DeviceType) String() string {
	switch d {
	case CPU:
		return "CPU"
	case GPU:
		return "GPU"
	default:
		return "Unknown"
	}
}

type Tensor struct {
	Shape        []int
	Strides      []int
	DType        DType
	Device       DeviceType
	Data         interface{}
	NumElems     int
	requiresGrad bool
	grad         *Tensor
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s, device=%s, elements=%d)",
		t.Shape, t.DType, t.Device, t.NumElems)
}

func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

// Grad returns the accumulated gradient, or nil if none has been accumulated.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// AccumulateGrad adds g into the tensor's gradient, allocating a zero
// gradient on first use. Shapes must match exactly.
func (t *Tensor) AccumulateGrad(g *Tensor) error {
	if g == nil {
		return fmt.Errorf("cannot accumulate nil gradient")
	}
	if t.DType != Float32 || g.DType != Float32 {
		return fmt.Errorf("gradients only supported for Float32 tensors")
	}
	if _, err := checkShapesCompatible(t.Shape, g.Shape); err != nil {
		return err
	}

	if t.grad == nil {
		zeros, err := Zeros(t.Shape, Float32, t.Device)
		if err != nil {
			return err
		}
		t.grad = zeros
	}

	gradData := t.grad.Data.([]float32)
	gData := g.Data.([]float32)
	for i := range gradData {
		gradData[i] += gData[i]
	}
	return nil
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}

	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}
