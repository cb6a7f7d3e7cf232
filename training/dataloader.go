package training

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/Ingram66/C2-NET/tensor"
)

// Dataset interface defines methods that all datasets must implement
type Dataset interface {
	Len() int                                                           // Total number of samples
	Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error) // Returns a single sample
}

// DataLoader provides batching, shuffling, and efficient data loading
type DataLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	indices   []int
	position  int
	mutex     sync.Mutex
}

// NewDataLoader creates a new DataLoader
func NewDataLoader(dataset Dataset, batchSize int, shuffle bool) *DataLoader {
	if batchSize <= 0 {
		batchSize = 1
	}

	datasetLen := dataset.Len()
	indices := make([]int, datasetLen)
	for i := range indices {
		indices[i] = i
	}

	return &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		indices:   indices,
		position:  0,
	}
}

// Batch represents a batch of data and labels
type Batch struct {
	Data   *tensor.Tensor
	Labels *tensor.Tensor
}

// Size returns the number of samples in the batch
func (b *Batch) Size() int {
	if b.Data == nil || len(b.Data.Shape) == 0 {
		return 0
	}
	return b.Data.Shape[0]
}

// Len returns the number of batches in an epoch
func (dl *DataLoader) Len() int {
	return (dl.dataset.Len() + dl.batchSize - 1) / dl.batchSize
}

// NumSamples returns the number of samples in the underlying dataset
func (dl *DataLoader) NumSamples() int {
	return dl.dataset.Len()
}

// Reset resets the data loader for a new epoch
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0

	if dl.shuffle {
		// Fisher-Yates shuffle with the package RNG so runs are reproducible
		// under SetRandomSeed
		for i := len(dl.indices) - 1; i > 0; i-- {
			j := globalRng.Intn(i + 1)
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		}
	}
}

// Next returns the next batch or nil if epoch is complete
func (dl *DataLoader) Next() (*Batch, error) {
	indices, ok := dl.NextIndices()
	if !ok {
		return nil, nil // End of epoch
	}

	batch, err := dl.loadBatch(indices, len(indices))
	if err != nil {
		return nil, fmt.Errorf("failed to load batch: %v", err)
	}

	return batch, nil
}

// NextIndices claims the next batch's sample indices, returning false when
// the epoch is exhausted. Safe for concurrent use, so several loaders can
// claim and assemble batches in parallel.
func (dl *DataLoader) NextIndices() ([]int, bool) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return nil, false
	}

	batchEnd := dl.position + dl.batchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}

	indices := make([]int, batchEnd-dl.position)
	copy(indices, dl.indices[dl.position:batchEnd])
	dl.position = batchEnd

	return indices, true
}

// LoadIndices assembles a batch from explicit sample indices. It performs no
// position bookkeeping, so callers holding indices from NextIndices can load
// concurrently.
func (dl *DataLoader) LoadIndices(indices []int) (data, labels *tensor.Tensor, err error) {
	batch, err := dl.loadBatch(indices, len(indices))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load batch: %v", err)
	}
	return batch.Data, batch.Labels, nil
}

// HasNext returns true if there are more batches in the current epoch
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.position < len(dl.indices)
}

// loadBatch loads a batch of samples and combines them into batched tensors
func (dl *DataLoader) loadBatch(indices []int, batchSize int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("empty batch indices")
	}

	// Load first sample to determine shapes and types
	firstData, firstLabel, err := dl.dataset.Get(indices[0])
	if err != nil {
		return nil, fmt.Errorf("failed to load sample %d: %v", indices[0], err)
	}

	dataShape := append([]int{batchSize}, firstData.Shape...)

	// Scalar labels collate to a vector so loss targets stay 1-D
	var labelShape []int
	if len(firstLabel.Shape) == 1 && firstLabel.Shape[0] == 1 {
		labelShape = []int{batchSize}
	} else {
		labelShape = append([]int{batchSize}, firstLabel.Shape...)
	}

	batchData, err := tensor.Zeros(dataShape, firstData.DType, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch data tensor: %v", err)
	}

	batchLabels, err := tensor.Zeros(labelShape, firstLabel.DType, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch labels tensor: %v", err)
	}

	for i, idx := range indices {
		data, label, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %v", idx, err)
		}

		err = dl.copyInto(batchData, data, i)
		if err != nil {
			return nil, fmt.Errorf("failed to copy data for sample %d: %v", i, err)
		}

		err = dl.copyInto(batchLabels, label, i)
		if err != nil {
			return nil, fmt.Errorf("failed to copy label for sample %d: %v", i, err)
		}
	}

	return &Batch{
		Data:   batchData,
		Labels: batchLabels,
	}, nil
}

// copyInto copies a sample tensor into a specific position in the batch tensor
func (dl *DataLoader) copyInto(batchTensor, sampleTensor *tensor.Tensor, batchIndex int) error {
	if batchTensor.DType != sampleTensor.DType {
		return fmt.Errorf("dtype mismatch: batch %s, sample %s", batchTensor.DType, sampleTensor.DType)
	}

	sampleSize := sampleTensor.NumElems
	offset := batchIndex * sampleSize

	switch batchTensor.DType {
	case tensor.Float32:
		batchData := batchTensor.Data.([]float32)
		sampleData := sampleTensor.Data.([]float32)

		if len(sampleData) != sampleSize {
			return fmt.Errorf("sample data size mismatch: expected %d, got %d", sampleSize, len(sampleData))
		}

		copy(batchData[offset:offset+sampleSize], sampleData)

	case tensor.Int32:
		batchData := batchTensor.Data.([]int32)
		sampleData := sampleTensor.Data.([]int32)

		if len(sampleData) != sampleSize {
			return fmt.Errorf("sample data size mismatch: expected %d, got %d", sampleSize, len(sampleData))
		}

		copy(batchData[offset:offset+sampleSize], sampleData)

	default:
		return fmt.Errorf("unsupported dtype for batch copying: %s", batchTensor.DType)
	}

	return nil
}

// SimpleDataset provides a basic implementation of Dataset for in-memory data
type SimpleDataset struct {
	data   []*tensor.Tensor
	labels []*tensor.Tensor
}

// NewSimpleDataset creates a new SimpleDataset
func NewSimpleDataset(data, labels []*tensor.Tensor) (*SimpleDataset, error) {
	if len(data) != len(labels) {
		return nil, fmt.Errorf("data and labels must have the same length: got %d and %d", len(data), len(labels))
	}

	return &SimpleDataset{
		data:   data,
		labels: labels,
	}, nil
}

// Len returns the number of samples in the dataset
func (ds *SimpleDataset) Len() int {
	return len(ds.data)
}

// Get returns a sample at the given index
func (ds *SimpleDataset) Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error) {
	if idx < 0 || idx >= len(ds.data) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(ds.data))
	}

	return ds.data[idx], ds.labels[idx], nil
}

// RandomDataset generates random data for testing purposes. Samples are
// generated from a private generator under a lock, so Get is safe to call
// from concurrent batch loaders.
type RandomDataset struct {
	size       int
	dataShape  []int
	numClasses int
	rng        *rand.Rand
	mu         sync.Mutex
}

// NewRandomDataset creates a new RandomDataset seeded from the package RNG
func NewRandomDataset(size int, dataShape []int, numClasses int) *RandomDataset {
	return &RandomDataset{
		size:       size,
		dataShape:  dataShape,
		numClasses: numClasses,
		rng:        rand.New(rand.NewSource(globalRng.Int63())),
	}
}

// Len returns the size of the dataset
func (rd *RandomDataset) Len() int {
	return rd.size
}

// Get generates a random sample
func (rd *RandomDataset) Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error) {
	if idx < 0 || idx >= rd.size {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, rd.size)
	}

	dataSize := 1
	for _, dim := range rd.dataShape {
		dataSize *= dim
	}

	rd.mu.Lock()
	randomData := make([]float32, dataSize)
	for i := range randomData {
		randomData[i] = rd.rng.Float32()*2.0 - 1.0 // Range [-1, 1]
	}
	randomLabel := []int32{int32(rd.rng.Intn(rd.numClasses))}
	rd.mu.Unlock()

	data, err = tensor.NewTensor(rd.dataShape, tensor.Float32, tensor.CPU, randomData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create data tensor: %v", err)
	}

	label, err = tensor.NewTensor([]int{1}, tensor.Int32, tensor.CPU, randomLabel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create label tensor: %v", err)
	}

	return data, label, nil
}
