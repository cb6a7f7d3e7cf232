package training

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Ingram66/C2-NET/gpu"
	"github.com/Ingram66/C2-NET/tensor"
)

// Global random source for deterministic initialization
var globalRng *rand.Rand = rand.New(rand.NewSource(1))

// SetRandomSeed sets the global random seed for deterministic weight
// initialization and dropout masks
func SetRandomSeed(seed int64) {
	globalRng = rand.New(rand.NewSource(seed))
}

// Module interface defines methods that all neural network layers must implement
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Backward(gradOutput *tensor.Tensor) (*tensor.Tensor, error) // Propagates gradients, returns gradient w.r.t. input
	Parameters() []*tensor.Tensor                               // Returns trainable parameters (tensors with requiresGrad=true)
	Train()                                                     // Sets module to training mode
	Eval()                                                      // Sets module to evaluation mode
	IsTraining() bool                                           // Returns true if in training mode
}

// Linear implements a fully connected (dense) layer: y = xW + b
type Linear struct {
	weight      *tensor.Tensor
	bias        *tensor.Tensor
	cachedInput *tensor.Tensor
	training    bool
}

// NewLinear creates a new Linear layer
func NewLinear(inputSize, outputSize int, bias bool) (*Linear, error) {
	// Initialize weights using Xavier/Glorot uniform initialization
	// W ~ U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
	bound := math.Sqrt(6.0 / float64(inputSize+outputSize))

	weightData := make([]float32, inputSize*outputSize)
	for i := range weightData {
		weightData[i] = float32((globalRng.Float64()*2.0 - 1.0) * bound)
	}

	// Weight shape is [inputSize, outputSize] so forward is input @ weight
	weight, err := tensor.NewTensor([]int{inputSize, outputSize}, tensor.Float32, tensor.CPU, weightData)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %v", err)
	}
	weight.SetRequiresGrad(true)

	linear := &Linear{
		weight:   weight,
		training: true,
	}

	if bias {
		// Initialize bias to zeros
		biasData := make([]float32, outputSize)
		biasT, err := tensor.NewTensor([]int{outputSize}, tensor.Float32, tensor.CPU, biasData)
		if err != nil {
			return nil, fmt.Errorf("failed to create bias tensor: %v", err)
		}
		biasT.SetRequiresGrad(true)
		linear.bias = biasT
	}

	return linear, nil
}

// Forward performs the forward pass: y = xW + b
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 {
		return nil, fmt.Errorf("Linear layer expects 2D input [batch_size, input_size], got shape %v", input.Shape)
	}

	batchSize := input.Shape[0]
	inputSize := input.Shape[1]
	outputSize := l.weight.Shape[1]

	if inputSize != l.weight.Shape[0] {
		return nil, fmt.Errorf("input size mismatch: expected %d, got %d", l.weight.Shape[0], inputSize)
	}

	if l.training {
		l.cachedInput = input
	}

	output, err := l.matmul(input, batchSize, inputSize, outputSize)
	if err != nil {
		return nil, err
	}

	if l.bias != nil {
		outData := output.Data.([]float32)
		biasData := l.bias.Data.([]float32)
		for i := 0; i < batchSize; i++ {
			for j := 0; j < outputSize; j++ {
				outData[i*outputSize+j] += biasData[j]
			}
		}
	}

	return output, nil
}

// matmul computes input @ weight, using the GPU kernel when an adapter is
// present and falling back to the CPU implementation otherwise.
func (l *Linear) matmul(input *tensor.Tensor, batchSize, inputSize, outputSize int) (*tensor.Tensor, error) {
	if gpu.Available() {
		inputData, err := input.GetFloat32Data()
		if err != nil {
			return nil, err
		}
		weightData, err := l.weight.GetFloat32Data()
		if err != nil {
			return nil, err
		}

		outData, err := gpu.MatMul(inputData, weightData, batchSize, inputSize, outputSize)
		if err == nil {
			return tensor.NewTensor([]int{batchSize, outputSize}, tensor.Float32, tensor.CPU, outData)
		}
		// GPU failure falls through to the CPU path
	}

	return tensor.MatMul(input, l.weight)
}

// Backward computes gradients for the weight, bias and input
func (l *Linear) Backward(gradOutput *tensor.Tensor) (*tensor.Tensor, error) {
	if l.cachedInput == nil {
		return nil, fmt.Errorf("Linear backward called without a cached forward input")
	}

	batchSize := l.cachedInput.Shape[0]
	inputSize := l.weight.Shape[0]
	outputSize := l.weight.Shape[1]

	inputData := l.cachedInput.Data.([]float32)
	weightData := l.weight.Data.([]float32)
	gradOutData := gradOutput.Data.([]float32)

	// dL/dW = input^T @ gradOutput
	gradWeightData := make([]float32, inputSize*outputSize)
	for i := 0; i < inputSize; i++ {
		for j := 0; j < outputSize; j++ {
			var sum float32
			for b := 0; b < batchSize; b++ {
				sum += inputData[b*inputSize+i] * gradOutData[b*outputSize+j]
			}
			gradWeightData[i*outputSize+j] = sum
		}
	}
	gradWeight, err := tensor.NewTensor([]int{inputSize, outputSize}, tensor.Float32, tensor.CPU, gradWeightData)
	if err != nil {
		return nil, err
	}
	if err := l.weight.AccumulateGrad(gradWeight); err != nil {
		return nil, fmt.Errorf("failed to accumulate weight gradient: %v", err)
	}

	// dL/db = column sums of gradOutput
	if l.bias != nil {
		gradBiasData := make([]float32, outputSize)
		for b := 0; b < batchSize; b++ {
			for j := 0; j < outputSize; j++ {
				gradBiasData[j] += gradOutData[b*outputSize+j]
			}
		}
		gradBias, err := tensor.NewTensor([]int{outputSize}, tensor.Float32, tensor.CPU, gradBiasData)
		if err != nil {
			return nil, err
		}
		if err := l.bias.AccumulateGrad(gradBias); err != nil {
			return nil, fmt.Errorf("failed to accumulate bias gradient: %v", err)
		}
	}

	// dL/dx = gradOutput @ W^T
	gradInputData := make([]float32, batchSize*inputSize)
	for b := 0; b < batchSize; b++ {
		for i := 0; i < inputSize; i++ {
			var sum float32
			for j := 0; j < outputSize; j++ {
				sum += gradOutData[b*outputSize+j] * weightData[i*outputSize+j]
			}
			gradInputData[b*inputSize+i] = sum
		}
	}

	return tensor.NewTensor([]int{batchSize, inputSize}, tensor.Float32, tensor.CPU, gradInputData)
}

// Parameters returns the trainable parameters
func (l *Linear) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{l.weight}
	if l.bias != nil {
		params = append(params, l.bias)
	}
	return params
}

// Train sets the module to training mode
func (l *Linear) Train() {
	l.training = true
}

// Eval sets the module to evaluation mode
func (l *Linear) Eval() {
	l.training = false
	l.cachedInput = nil
}

// IsTraining returns true if in training mode
func (l *Linear) IsTraining() bool {
	return l.training
}

// ReLU implements ReLU activation function module
type ReLU struct {
	cachedInput *tensor.Tensor
	training    bool
}

// NewReLU creates a new ReLU activation module
func NewReLU() *ReLU {
	return &ReLU{training: true}
}

// Forward performs ReLU activation
func (r *ReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if r.training {
		r.cachedInput = input
	}
	return tensor.ReLU(input)
}

// Backward masks the incoming gradient where the forward input was non-positive
func (r *ReLU) Backward(gradOutput *tensor.Tensor) (*tensor.Tensor, error) {
	if r.cachedInput == nil {
		return nil, fmt.Errorf("ReLU backward called without a cached forward input")
	}

	inputData := r.cachedInput.Data.([]float32)
	gradOutData := gradOutput.Data.([]float32)

	gradInputData := make([]float32, len(gradOutData))
	for i := range gradOutData {
		if inputData[i] > 0 {
			gradInputData[i] = gradOutData[i]
		}
	}

	return tensor.NewTensor(gradOutput.Shape, tensor.Float32, tensor.CPU, gradInputData)
}

// Parameters returns empty slice (ReLU has no parameters)
func (r *ReLU) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{}
}

// Train sets the module to training mode
func (r *ReLU) Train() {
	r.training = true
}

// Eval sets the module to evaluation mode
func (r *ReLU) Eval() {
	r.training = false
	r.cachedInput = nil
}

// IsTraining returns true if in training mode
func (r *ReLU) IsTraining() bool {
	return r.training
}

// Dropout randomly zeroes elements during training with probability p and
// rescales the survivors by 1/(1-p). Evaluation mode is the identity.
type Dropout struct {
	p          float64
	cachedMask []float32
	training   bool
}

// NewDropout creates a new Dropout layer
func NewDropout(p float64) (*Dropout, error) {
	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("dropout probability must be in [0, 1), got %f", p)
	}
	return &Dropout{p: p, training: true}, nil
}

// Forward applies the dropout mask in training mode
func (d *Dropout) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if !d.training || d.p == 0 {
		return input, nil
	}

	inputData, err := input.GetFloat32Data()
	if err != nil {
		return nil, err
	}

	scale := float32(1.0 / (1.0 - d.p))
	mask := make([]float32, len(inputData))
	outputData := make([]float32, len(inputData))
	for i := range inputData {
		if globalRng.Float64() >= d.p {
			mask[i] = scale
			outputData[i] = inputData[i] * scale
		}
	}
	d.cachedMask = mask

	return tensor.NewTensor(input.Shape, tensor.Float32, tensor.CPU, outputData)
}

// Backward applies the same mask to the incoming gradient
func (d *Dropout) Backward(gradOutput *tensor.Tensor) (*tensor.Tensor, error) {
	if !d.training || d.p == 0 {
		return gradOutput, nil
	}
	if d.cachedMask == nil {
		return nil, fmt.Errorf("Dropout backward called without a cached forward mask")
	}

	gradOutData := gradOutput.Data.([]float32)
	gradInputData := make([]float32, len(gradOutData))
	for i := range gradOutData {
		gradInputData[i] = gradOutData[i] * d.cachedMask[i]
	}

	return tensor.NewTensor(gradOutput.Shape, tensor.Float32, tensor.CPU, gradInputData)
}

// Parameters returns empty slice (Dropout has no parameters)
func (d *Dropout) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{}
}

// Train sets the module to training mode
func (d *Dropout) Train() {
	d.training = true
}

// Eval sets the module to evaluation mode
func (d *Dropout) Eval() {
	d.training = false
	d.cachedMask = nil
}

// IsTraining returns true if in training mode
func (d *Dropout) IsTraining() bool {
	return d.training
}

// Flatten reshapes input tensor to [batch_size, -1]
type Flatten struct {
	cachedShape []int
	training    bool
}

// NewFlatten creates a new Flatten layer
func NewFlatten() *Flatten {
	return &Flatten{training: true}
}

// Forward flattens the input tensor to [batch_size, -1]
func (f *Flatten) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) < 2 {
		return nil, fmt.Errorf("Flatten expects input with at least 2 dimensions, got shape %v", input.Shape)
	}

	batchSize := input.Shape[0]
	totalElements := input.NumElems
	flattenedSize := totalElements / batchSize

	f.cachedShape = input.Size()

	return input.Reshape([]int{batchSize, flattenedSize})
}

// Backward restores the gradient to the pre-flatten shape
func (f *Flatten) Backward(gradOutput *tensor.Tensor) (*tensor.Tensor, error) {
	if f.cachedShape == nil {
		return nil, fmt.Errorf("Flatten backward called without a cached forward shape")
	}
	return gradOutput.Reshape(f.cachedShape)
}

// Parameters returns empty slice (Flatten has no parameters)
func (f *Flatten) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{}
}

// Train sets the module to training mode
func (f *Flatten) Train() {
	f.training = true
}

// Eval sets the module to evaluation mode
func (f *Flatten) Eval() {
	f.training = false
}

// IsTraining returns true if in training mode
func (f *Flatten) IsTraining() bool {
	return f.training
}

// Sequential allows chaining multiple modules together
type Sequential struct {
	modules  []Module
	training bool
}

// NewSequential creates a new Sequential container
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{
		modules:  modules,
		training: true,
	}
}

// Forward passes input through all modules in sequence
func (s *Sequential) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	output := input
	var err error

	for i, module := range s.modules {
		output, err = module.Forward(output)
		if err != nil {
			return nil, fmt.Errorf("module %d forward failed: %v", i, err)
		}
	}

	return output, nil
}

// Backward propagates the gradient through all modules in reverse order
func (s *Sequential) Backward(gradOutput *tensor.Tensor) (*tensor.Tensor, error) {
	grad := gradOutput
	var err error

	for i := len(s.modules) - 1; i >= 0; i-- {
		grad, err = s.modules[i].Backward(grad)
		if err != nil {
			return nil, fmt.Errorf("module %d backward failed: %v", i, err)
		}
	}

	return grad, nil
}

// Parameters returns all trainable parameters from all modules
func (s *Sequential) Parameters() []*tensor.Tensor {
	var allParams []*tensor.Tensor
	for _, module := range s.modules {
		allParams = append(allParams, module.Parameters()...)
	}
	return allParams
}

// Train sets all modules to training mode
func (s *Sequential) Train() {
	s.training = true
	for _, module := range s.modules {
		module.Train()
	}
}

// Eval sets all modules to evaluation mode
func (s *Sequential) Eval() {
	s.training = false
	for _, module := range s.modules {
		module.Eval()
	}
}

// IsTraining returns true if in training mode
func (s *Sequential) IsTraining() bool {
	return s.training
}

// Add appends a module to the sequential container
func (s *Sequential) Add(module Module) {
	s.modules = append(s.modules, module)
}

// Modules returns the contained modules in order
func (s *Sequential) Modules() []Module {
	return s.modules
}
