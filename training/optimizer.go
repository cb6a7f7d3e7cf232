package training

import (
	"fmt"
	"math"
	"sync"

	"github.com/Ingram66/C2-NET/tensor"
)

// Optimizer defines the interface for optimization algorithms
type Optimizer interface {
	// Step performs a single optimization step using accumulated gradients
	Step() error

	// ZeroGrad clears the gradients of all parameters
	ZeroGrad()

	// GetLR returns the current learning rate
	GetLR() float64

	// SetLR sets the learning rate
	SetLR(lr float64)
}

// SGD implements stochastic gradient descent with optional momentum
type SGD struct {
	parameters  []*tensor.Tensor
	lr          float64
	momentum    float64
	dampening   float64
	weightDecay float64
	nesterov    bool

	// momentum buffers keyed by parameter
	velocities map[*tensor.Tensor][]float32
	mutex      sync.RWMutex
}

// NewSGD creates a new SGD optimizer
func NewSGD(parameters []*tensor.Tensor, lr, momentum, weightDecay, dampening float64, nesterov bool) *SGD {
	return &SGD{
		parameters:  parameters,
		lr:          lr,
		momentum:    momentum,
		dampening:   dampening,
		weightDecay: weightDecay,
		nesterov:    nesterov,
		velocities:  make(map[*tensor.Tensor][]float32),
	}
}

// Step performs a single SGD optimization step
func (sgd *SGD) Step() error {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	for _, param := range sgd.parameters {
		grad := param.Grad()
		if grad == nil {
			continue
		}

		paramData, err := param.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("failed to get parameter data: %v", err)
		}
		gradData, err := grad.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("failed to get gradient data: %v", err)
		}
		if len(paramData) != len(gradData) {
			return fmt.Errorf("parameter and gradient size mismatch: %d vs %d", len(paramData), len(gradData))
		}

		for i := range paramData {
			g := float64(gradData[i])
			if sgd.weightDecay != 0 {
				g += sgd.weightDecay * float64(paramData[i])
			}

			if sgd.momentum != 0 {
				velocity, exists := sgd.velocities[param]
				if !exists {
					velocity = make([]float32, len(paramData))
					sgd.velocities[param] = velocity
				}

				v := sgd.momentum*float64(velocity[i]) + (1-sgd.dampening)*g
				velocity[i] = float32(v)

				if sgd.nesterov {
					g = g + sgd.momentum*v
				} else {
					g = v
				}
			}

			paramData[i] -= float32(sgd.lr * g)
		}
	}

	return nil
}

// ZeroGrad clears the gradients of all parameters
func (sgd *SGD) ZeroGrad() {
	tensor.ZeroGrad(sgd.parameters)
}

// GetLR returns the current learning rate
func (sgd *SGD) GetLR() float64 {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()
	return sgd.lr
}

// SetLR sets the learning rate
func (sgd *SGD) SetLR(lr float64) {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()
	sgd.lr = lr
}

// Adam implements the Adam optimization algorithm
type Adam struct {
	parameters  []*tensor.Tensor
	lr          float64
	beta1       float64
	beta2       float64
	epsilon     float64
	weightDecay float64

	// first and second moment estimates keyed by parameter
	firstMoments  map[*tensor.Tensor][]float32
	secondMoments map[*tensor.Tensor][]float32
	stepCount     int64
	mutex         sync.RWMutex
}

// NewAdam creates a new Adam optimizer
func NewAdam(parameters []*tensor.Tensor, lr, beta1, beta2, eps, weightDecay float64) *Adam {
	return &Adam{
		parameters:    parameters,
		lr:            lr,
		beta1:         beta1,
		beta2:         beta2,
		epsilon:       eps,
		weightDecay:   weightDecay,
		firstMoments:  make(map[*tensor.Tensor][]float32),
		secondMoments: make(map[*tensor.Tensor][]float32),
	}
}

// Step performs a single Adam optimization step
func (adam *Adam) Step() error {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	adam.stepCount++
	bias1 := 1 - math.Pow(adam.beta1, float64(adam.stepCount))
	bias2 := 1 - math.Pow(adam.beta2, float64(adam.stepCount))

	for _, param := range adam.parameters {
		grad := param.Grad()
		if grad == nil {
			continue
		}

		paramData, err := param.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("failed to get parameter data: %v", err)
		}
		gradData, err := grad.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("failed to get gradient data: %v", err)
		}
		if len(paramData) != len(gradData) {
			return fmt.Errorf("parameter and gradient size mismatch: %d vs %d", len(paramData), len(gradData))
		}

		m, exists := adam.firstMoments[param]
		if !exists {
			m = make([]float32, len(paramData))
			adam.firstMoments[param] = m
		}
		v, exists := adam.secondMoments[param]
		if !exists {
			v = make([]float32, len(paramData))
			adam.secondMoments[param] = v
		}

		for i := range paramData {
			g := float64(gradData[i])
			if adam.weightDecay != 0 {
				g += adam.weightDecay * float64(paramData[i])
			}

			mi := adam.beta1*float64(m[i]) + (1-adam.beta1)*g
			vi := adam.beta2*float64(v[i]) + (1-adam.beta2)*g*g
			m[i] = float32(mi)
			v[i] = float32(vi)

			update := adam.lr * (mi / bias1) / (math.Sqrt(vi/bias2) + adam.epsilon)
			paramData[i] -= float32(update)
		}
	}

	return nil
}

// ZeroGrad clears the gradients of all parameters
func (adam *Adam) ZeroGrad() {
	tensor.ZeroGrad(adam.parameters)
}

// GetLR returns the current learning rate
func (adam *Adam) GetLR() float64 {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()
	return adam.lr
}

// SetLR sets the learning rate
func (adam *Adam) SetLR(lr float64) {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()
	adam.lr = lr
}

// StepCount returns the number of optimization steps taken so far
func (adam *Adam) StepCount() int64 {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()
	return adam.stepCount
}

// SetStepCount restores the step counter, typically when resuming from a checkpoint
func (adam *Adam) SetStepCount(step int64) {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()
	adam.stepCount = step
}

// Beta1 returns the exponential decay rate for the first moment estimates
func (adam *Adam) Beta1() float64 { return adam.beta1 }

// Beta2 returns the exponential decay rate for the second moment estimates
func (adam *Adam) Beta2() float64 { return adam.beta2 }

// Epsilon returns the numerical stability constant
func (adam *Adam) Epsilon() float64 { return adam.epsilon }

// WeightDecay returns the L2 penalty coefficient
func (adam *Adam) WeightDecay() float64 { return adam.weightDecay }

// Moments returns copies of the first and second moment estimates for a
// parameter. Both are nil when the parameter has not been stepped yet.
func (adam *Adam) Moments(param *tensor.Tensor) ([]float32, []float32) {
	adam.mutex.RLock()
	defer adam.mutex.RUnlock()

	m, exists := adam.firstMoments[param]
	if !exists {
		return nil, nil
	}
	v := adam.secondMoments[param]

	mCopy := make([]float32, len(m))
	copy(mCopy, m)
	vCopy := make([]float32, len(v))
	copy(vCopy, v)
	return mCopy, vCopy
}

// RestoreMoments installs moment estimates for a parameter, typically when
// resuming from a checkpoint
func (adam *Adam) RestoreMoments(param *tensor.Tensor, m, v []float32) error {
	adam.mutex.Lock()
	defer adam.mutex.Unlock()

	if len(m) != param.NumElems || len(v) != param.NumElems {
		return fmt.Errorf("moment size mismatch: got %d/%d, parameter has %d elements", len(m), len(v), param.NumElems)
	}

	mCopy := make([]float32, len(m))
	copy(mCopy, m)
	vCopy := make([]float32, len(v))
	copy(vCopy, v)
	adam.firstMoments[param] = mCopy
	adam.secondMoments[param] = vCopy
	return nil
}
