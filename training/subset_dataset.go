package training

import (
	"fmt"

	"github.com/Ingram66/C2-NET/tensor"
)

// SubsetDataset exposes a contiguous window of an underlying dataset. It is
// useful for carving train/val/test splits out of a single in-memory dataset.
type SubsetDataset struct {
	originalDataset Dataset
	offset          int
	length          int
}

// NewSubsetDataset creates a new SubsetDataset over original[offset:offset+length).
func NewSubsetDataset(original Dataset, offset, length int) (*SubsetDataset, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset cannot be negative")
	}
	if length < 0 {
		return nil, fmt.Errorf("length cannot be negative")
	}
	if offset+length > original.Len() {
		return nil, fmt.Errorf("subset [%d, %d) exceeds dataset length %d", offset, offset+length, original.Len())
	}
	return &SubsetDataset{
		originalDataset: original,
		offset:          offset,
		length:          length,
	}, nil
}

// Len returns the number of samples in the subset
func (sd *SubsetDataset) Len() int {
	return sd.length
}

// Get returns a sample at the given index, translated into the window of the
// original dataset
func (sd *SubsetDataset) Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error) {
	if idx < 0 || idx >= sd.length {
		return nil, nil, fmt.Errorf("index out of bounds for subset: %d (length: %d)", idx, sd.length)
	}
	return sd.originalDataset.Get(sd.offset + idx)
}
