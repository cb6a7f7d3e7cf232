package training

import (
	"fmt"
	"math"

	"github.com/Ingram66/C2-NET/tensor"
)

// Conv3D implements a 3D convolution layer over [batch, channels, time,
// height, width] volumes.
type Conv3D struct {
	weight      *tensor.Tensor
	bias        *tensor.Tensor
	stride      int
	padding     int
	cachedInput *tensor.Tensor
	training    bool
}

// NewConv3D creates a new Conv3D layer with a cubic kernel
func NewConv3D(inputChannels, outputChannels, kernelSize, stride, padding int, bias bool) (*Conv3D, error) {
	if kernelSize <= 0 || stride <= 0 || padding < 0 {
		return nil, fmt.Errorf("invalid conv parameters: kernel=%d stride=%d padding=%d", kernelSize, stride, padding)
	}

	// Xavier/Glorot initialization with volumetric fan sizes
	fanIn := float64(inputChannels * kernelSize * kernelSize * kernelSize)
	fanOut := float64(outputChannels * kernelSize * kernelSize * kernelSize)
	bound := math.Sqrt(6.0 / (fanIn + fanOut))

	weightData := make([]float32, outputChannels*inputChannels*kernelSize*kernelSize*kernelSize)
	for i := range weightData {
		weightData[i] = float32((globalRng.Float64()*2.0 - 1.0) * bound)
	}

	// Weight shape: [output_channels, input_channels, kernel_t, kernel_h, kernel_w]
	weight, err := tensor.NewTensor([]int{outputChannels, inputChannels, kernelSize, kernelSize, kernelSize}, tensor.Float32, tensor.CPU, weightData)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %v", err)
	}
	weight.SetRequiresGrad(true)

	conv := &Conv3D{
		weight:   weight,
		stride:   stride,
		padding:  padding,
		training: true,
	}

	if bias {
		// Initialize bias to zeros
		biasData := make([]float32, outputChannels)
		biasT, err := tensor.NewTensor([]int{outputChannels}, tensor.Float32, tensor.CPU, biasData)
		if err != nil {
			return nil, fmt.Errorf("failed to create bias tensor: %v", err)
		}
		biasT.SetRequiresGrad(true)
		conv.bias = biasT
	}

	return conv, nil
}

// Forward performs 3D convolution
func (c *Conv3D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 5 {
		return nil, fmt.Errorf("Conv3D expects 5D input [batch, channels, time, height, width], got shape %v", input.Shape)
	}

	batch := input.Shape[0]
	inC := input.Shape[1]
	inT := input.Shape[2]
	inH := input.Shape[3]
	inW := input.Shape[4]

	outC := c.weight.Shape[0]
	k := c.weight.Shape[2]

	if inC != c.weight.Shape[1] {
		return nil, fmt.Errorf("input channels mismatch: expected %d, got %d", c.weight.Shape[1], inC)
	}

	outT := (inT+2*c.padding-k)/c.stride + 1
	outH := (inH+2*c.padding-k)/c.stride + 1
	outW := (inW+2*c.padding-k)/c.stride + 1
	if outT <= 0 || outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("input volume %v too small for kernel %d with stride %d padding %d", input.Shape[2:], k, c.stride, c.padding)
	}

	if c.training {
		c.cachedInput = input
	}

	inputData := input.Data.([]float32)
	weightData := c.weight.Data.([]float32)
	var biasData []float32
	if c.bias != nil {
		biasData = c.bias.Data.([]float32)
	}

	outputData := make([]float32, batch*outC*outT*outH*outW)

	for b := 0; b < batch; b++ {
		for oc := 0; oc < outC; oc++ {
			for ot := 0; ot < outT; ot++ {
				for oh := 0; oh < outH; oh++ {
					for ow := 0; ow < outW; ow++ {
						var sum float32
						if biasData != nil {
							sum = biasData[oc]
						}

						for ic := 0; ic < inC; ic++ {
							for kt := 0; kt < k; kt++ {
								it := ot*c.stride - c.padding + kt
								if it < 0 || it >= inT {
									continue
								}
								for kh := 0; kh < k; kh++ {
									ih := oh*c.stride - c.padding + kh
									if ih < 0 || ih >= inH {
										continue
									}
									for kw := 0; kw < k; kw++ {
										iw := ow*c.stride - c.padding + kw
										if iw < 0 || iw >= inW {
											continue
										}

										inIdx := ((b*inC+ic)*inT+it)*inH*inW + ih*inW + iw
										wIdx := (((oc*inC+ic)*k+kt)*k+kh)*k + kw
										sum += inputData[inIdx] * weightData[wIdx]
									}
								}
							}
						}

						outIdx := ((b*outC+oc)*outT+ot)*outH*outW + oh*outW + ow
						outputData[outIdx] = sum
					}
				}
			}
		}
	}

	return tensor.NewTensor([]int{batch, outC, outT, outH, outW}, tensor.Float32, tensor.CPU, outputData)
}

// Backward computes gradients for the weight, bias and input
func (c *Conv3D) Backward(gradOutput *tensor.Tensor) (*tensor.Tensor, error) {
	if c.cachedInput == nil {
		return nil, fmt.Errorf("Conv3D backward called without a cached forward input")
	}

	input := c.cachedInput
	batch := input.Shape[0]
	inC := input.Shape[1]
	inT := input.Shape[2]
	inH := input.Shape[3]
	inW := input.Shape[4]

	outC := gradOutput.Shape[1]
	outT := gradOutput.Shape[2]
	outH := gradOutput.Shape[3]
	outW := gradOutput.Shape[4]
	k := c.weight.Shape[2]

	inputData := input.Data.([]float32)
	weightData := c.weight.Data.([]float32)
	gradOutData := gradOutput.Data.([]float32)

	gradInputData := make([]float32, len(inputData))
	gradWeightData := make([]float32, len(weightData))
	var gradBiasData []float32
	if c.bias != nil {
		gradBiasData = make([]float32, outC)
	}

	for b := 0; b < batch; b++ {
		for oc := 0; oc < outC; oc++ {
			for ot := 0; ot < outT; ot++ {
				for oh := 0; oh < outH; oh++ {
					for ow := 0; ow < outW; ow++ {
						outIdx := ((b*outC+oc)*outT+ot)*outH*outW + oh*outW + ow
						g := gradOutData[outIdx]
						if gradBiasData != nil {
							gradBiasData[oc] += g
						}

						for ic := 0; ic < inC; ic++ {
							for kt := 0; kt < k; kt++ {
								it := ot*c.stride - c.padding + kt
								if it < 0 || it >= inT {
									continue
								}
								for kh := 0; kh < k; kh++ {
									ih := oh*c.stride - c.padding + kh
									if ih < 0 || ih >= inH {
										continue
									}
									for kw := 0; kw < k; kw++ {
										iw := ow*c.stride - c.padding + kw
										if iw < 0 || iw >= inW {
											continue
										}

										inIdx := ((b*inC+ic)*inT+it)*inH*inW + ih*inW + iw
										wIdx := (((oc*inC+ic)*k+kt)*k+kh)*k + kw
										gradWeightData[wIdx] += g * inputData[inIdx]
										gradInputData[inIdx] += g * weightData[wIdx]
									}
								}
							}
						}
					}
				}
			}
		}
	}

	gradWeight, err := tensor.NewTensor(c.weight.Size(), tensor.Float32, tensor.CPU, gradWeightData)
	if err != nil {
		return nil, err
	}
	if err := c.weight.AccumulateGrad(gradWeight); err != nil {
		return nil, fmt.Errorf("failed to accumulate weight gradient: %v", err)
	}

	if c.bias != nil {
		gradBias, err := tensor.NewTensor([]int{outC}, tensor.Float32, tensor.CPU, gradBiasData)
		if err != nil {
			return nil, err
		}
		if err := c.bias.AccumulateGrad(gradBias); err != nil {
			return nil, fmt.Errorf("failed to accumulate bias gradient: %v", err)
		}
	}

	return tensor.NewTensor(input.Size(), tensor.Float32, tensor.CPU, gradInputData)
}

// Parameters returns the trainable parameters
func (c *Conv3D) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{c.weight}
	if c.bias != nil {
		params = append(params, c.bias)
	}
	return params
}

// Train sets the module to training mode
func (c *Conv3D) Train() {
	c.training = true
}

// Eval sets the module to evaluation mode
func (c *Conv3D) Eval() {
	c.training = false
	c.cachedInput = nil
}

// IsTraining returns true if in training mode
func (c *Conv3D) IsTraining() bool {
	return c.training
}

// MaxPool3D implements 3D max pooling with per-dimension kernel, stride and
// padding. Output sizes are clamped to at least one element per dimension,
// with pooling windows clipped to the valid input region, so short temporal
// extents survive deep pooling stacks.
type MaxPool3D struct {
	kernel       [3]int
	stride       [3]int
	padding      [3]int
	cachedArgmax []int
	cachedShape  []int
	training     bool
}

// NewMaxPool3D creates a new MaxPool3D layer
func NewMaxPool3D(kernel, stride, padding [3]int) *MaxPool3D {
	return &MaxPool3D{
		kernel:   kernel,
		stride:   stride,
		padding:  padding,
		training: true,
	}
}

func pooledSize(in, kernel, stride, padding int) int {
	out := (in+2*padding-kernel)/stride + 1
	if out < 1 {
		out = 1
	}
	return out
}

// Forward performs 3D max pooling
func (m *MaxPool3D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 5 {
		return nil, fmt.Errorf("MaxPool3D expects 5D input [batch, channels, time, height, width], got shape %v", input.Shape)
	}

	batch := input.Shape[0]
	channels := input.Shape[1]
	inT := input.Shape[2]
	inH := input.Shape[3]
	inW := input.Shape[4]

	outT := pooledSize(inT, m.kernel[0], m.stride[0], m.padding[0])
	outH := pooledSize(inH, m.kernel[1], m.stride[1], m.padding[1])
	outW := pooledSize(inW, m.kernel[2], m.stride[2], m.padding[2])

	inputData := input.Data.([]float32)
	outputData := make([]float32, batch*channels*outT*outH*outW)
	argmax := make([]int, len(outputData))

	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			for ot := 0; ot < outT; ot++ {
				t0, t1 := poolWindow(ot, m.stride[0], m.padding[0], m.kernel[0], inT)
				for oh := 0; oh < outH; oh++ {
					h0, h1 := poolWindow(oh, m.stride[1], m.padding[1], m.kernel[1], inH)
					for ow := 0; ow < outW; ow++ {
						w0, w1 := poolWindow(ow, m.stride[2], m.padding[2], m.kernel[2], inW)

						best := float32(math.Inf(-1))
						bestIdx := -1
						for t := t0; t < t1; t++ {
							for h := h0; h < h1; h++ {
								for w := w0; w < w1; w++ {
									inIdx := ((b*channels+c)*inT+t)*inH*inW + h*inW + w
									if inputData[inIdx] > best {
										best = inputData[inIdx]
										bestIdx = inIdx
									}
								}
							}
						}
						if bestIdx < 0 {
							return nil, fmt.Errorf("empty pooling window at output (%d, %d, %d)", ot, oh, ow)
						}

						outIdx := ((b*channels+c)*outT+ot)*outH*outW + oh*outW + ow
						outputData[outIdx] = best
						argmax[outIdx] = bestIdx
					}
				}
			}
		}
	}

	if m.training {
		m.cachedArgmax = argmax
		m.cachedShape = input.Size()
	}

	return tensor.NewTensor([]int{batch, channels, outT, outH, outW}, tensor.Float32, tensor.CPU, outputData)
}

// poolWindow returns the [start, end) input range for one output position,
// clipped to the valid input extent.
func poolWindow(out, stride, padding, kernel, size int) (int, int) {
	start := out*stride - padding
	end := start + kernel
	if start < 0 {
		start = 0
	}
	if end > size {
		end = size
	}
	return start, end
}

// Backward routes each gradient element to the input position that won the
// forward max
func (m *MaxPool3D) Backward(gradOutput *tensor.Tensor) (*tensor.Tensor, error) {
	if m.cachedArgmax == nil {
		return nil, fmt.Errorf("MaxPool3D backward called without a cached forward pass")
	}

	gradOutData := gradOutput.Data.([]float32)
	if len(gradOutData) != len(m.cachedArgmax) {
		return nil, fmt.Errorf("gradient size %d does not match cached pooling output %d", len(gradOutData), len(m.cachedArgmax))
	}

	total := 1
	for _, dim := range m.cachedShape {
		total *= dim
	}

	gradInputData := make([]float32, total)
	for i, g := range gradOutData {
		gradInputData[m.cachedArgmax[i]] += g
	}

	return tensor.NewTensor(m.cachedShape, tensor.Float32, tensor.CPU, gradInputData)
}

// Parameters returns empty slice (MaxPool3D has no parameters)
func (m *MaxPool3D) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{}
}

// Train sets the module to training mode
func (m *MaxPool3D) Train() {
	m.training = true
}

// Eval sets the module to evaluation mode
func (m *MaxPool3D) Eval() {
	m.training = false
	m.cachedArgmax = nil
	m.cachedShape = nil
}

// IsTraining returns true if in training mode
func (m *MaxPool3D) IsTraining() bool {
	return m.training
}
