package training

import (
	"fmt"

	"github.com/Ingram66/C2-NET/tensor"
)

// NamedParameter pairs a trainable tensor with its stable name for
// checkpoint serialization.
type NamedParameter struct {
	Name   string
	Tensor *tensor.Tensor
}

// C3D is the canonical 3D convolutional video classifier: five conv blocks
// with max pooling, then three fully connected layers. Input clips are
// [batch, 3, clipLen, 112, 112]; the fc6 input is 8192 features once the
// pooling stack has reduced the volume to [512, 1, 4, 4].
type C3D struct {
	conv1  *Conv3D
	conv2  *Conv3D
	conv3a *Conv3D
	conv3b *Conv3D
	conv4a *Conv3D
	conv4b *Conv3D
	conv5a *Conv3D
	conv5b *Conv3D
	fc6    *Linear
	fc7    *Linear
	fc8    *Linear
	seq    *Sequential
}

// NewC3D creates a C3D network with numClasses output units
func NewC3D(numClasses int) (*C3D, error) {
	if numClasses < 2 {
		return nil, fmt.Errorf("C3D requires at least 2 classes, got %d", numClasses)
	}

	model := &C3D{}

	var err error
	if model.conv1, err = NewConv3D(3, 64, 3, 1, 1, true); err != nil {
		return nil, fmt.Errorf("failed to create conv1: %v", err)
	}
	if model.conv2, err = NewConv3D(64, 128, 3, 1, 1, true); err != nil {
		return nil, fmt.Errorf("failed to create conv2: %v", err)
	}
	if model.conv3a, err = NewConv3D(128, 256, 3, 1, 1, true); err != nil {
		return nil, fmt.Errorf("failed to create conv3a: %v", err)
	}
	if model.conv3b, err = NewConv3D(256, 256, 3, 1, 1, true); err != nil {
		return nil, fmt.Errorf("failed to create conv3b: %v", err)
	}
	if model.conv4a, err = NewConv3D(256, 512, 3, 1, 1, true); err != nil {
		return nil, fmt.Errorf("failed to create conv4a: %v", err)
	}
	if model.conv4b, err = NewConv3D(512, 512, 3, 1, 1, true); err != nil {
		return nil, fmt.Errorf("failed to create conv4b: %v", err)
	}
	if model.conv5a, err = NewConv3D(512, 512, 3, 1, 1, true); err != nil {
		return nil, fmt.Errorf("failed to create conv5a: %v", err)
	}
	if model.conv5b, err = NewConv3D(512, 512, 3, 1, 1, true); err != nil {
		return nil, fmt.Errorf("failed to create conv5b: %v", err)
	}
	if model.fc6, err = NewLinear(8192, 4096, true); err != nil {
		return nil, fmt.Errorf("failed to create fc6: %v", err)
	}
	if model.fc7, err = NewLinear(4096, 4096, true); err != nil {
		return nil, fmt.Errorf("failed to create fc7: %v", err)
	}
	if model.fc8, err = NewLinear(4096, numClasses, true); err != nil {
		return nil, fmt.Errorf("failed to create fc8: %v", err)
	}

	drop6, err := NewDropout(0.5)
	if err != nil {
		return nil, err
	}
	drop7, err := NewDropout(0.5)
	if err != nil {
		return nil, err
	}

	model.seq = NewSequential(
		model.conv1, NewReLU(),
		NewMaxPool3D([3]int{1, 2, 2}, [3]int{1, 2, 2}, [3]int{0, 0, 0}),

		model.conv2, NewReLU(),
		NewMaxPool3D([3]int{2, 2, 2}, [3]int{2, 2, 2}, [3]int{0, 0, 0}),

		model.conv3a, NewReLU(),
		model.conv3b, NewReLU(),
		NewMaxPool3D([3]int{2, 2, 2}, [3]int{2, 2, 2}, [3]int{0, 0, 0}),

		model.conv4a, NewReLU(),
		model.conv4b, NewReLU(),
		NewMaxPool3D([3]int{2, 2, 2}, [3]int{2, 2, 2}, [3]int{0, 0, 0}),

		model.conv5a, NewReLU(),
		model.conv5b, NewReLU(),
		NewMaxPool3D([3]int{2, 2, 2}, [3]int{2, 2, 2}, [3]int{0, 1, 1}),

		NewFlatten(),
		model.fc6, NewReLU(), drop6,
		model.fc7, NewReLU(), drop7,
		model.fc8,
	)

	return model, nil
}

// Forward runs a clip batch through the network and returns class logits
func (m *C3D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return m.seq.Forward(input)
}

// Backward propagates the loss gradient through the network
func (m *C3D) Backward(gradOutput *tensor.Tensor) (*tensor.Tensor, error) {
	return m.seq.Backward(gradOutput)
}

// Parameters returns all trainable parameters
func (m *C3D) Parameters() []*tensor.Tensor {
	return m.seq.Parameters()
}

// Train sets the network to training mode
func (m *C3D) Train() {
	m.seq.Train()
}

// Eval sets the network to evaluation mode
func (m *C3D) Eval() {
	m.seq.Eval()
}

// IsTraining returns true if in training mode
func (m *C3D) IsTraining() bool {
	return m.seq.IsTraining()
}

// NamedParameters returns every trainable tensor with its layer-qualified
// name, in a stable order
func (m *C3D) NamedParameters() []NamedParameter {
	named := []NamedParameter{}

	addConv := func(name string, conv *Conv3D) {
		named = append(named, NamedParameter{Name: name + ".weight", Tensor: conv.weight})
		if conv.bias != nil {
			named = append(named, NamedParameter{Name: name + ".bias", Tensor: conv.bias})
		}
	}
	addLinear := func(name string, linear *Linear) {
		named = append(named, NamedParameter{Name: name + ".weight", Tensor: linear.weight})
		if linear.bias != nil {
			named = append(named, NamedParameter{Name: name + ".bias", Tensor: linear.bias})
		}
	}

	addConv("conv1", m.conv1)
	addConv("conv2", m.conv2)
	addConv("conv3a", m.conv3a)
	addConv("conv3b", m.conv3b)
	addConv("conv4a", m.conv4a)
	addConv("conv4b", m.conv4b)
	addConv("conv5a", m.conv5a)
	addConv("conv5b", m.conv5b)
	addLinear("fc6", m.fc6)
	addLinear("fc7", m.fc7)
	addLinear("fc8", m.fc8)

	return named
}
