package training

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// PredictionRecorder accumulates the true label and positive-class
// probability of every sample seen during one phase of an epoch. The
// recorded order is the encounter order, so a CSV dump lines up with the
// batches the phase consumed.
type PredictionRecorder struct {
	labels        []int32
	probabilities []float32
}

// NewPredictionRecorder creates an empty recorder.
func NewPredictionRecorder() *PredictionRecorder {
	return &PredictionRecorder{}
}

// Record appends a single sample.
func (r *PredictionRecorder) Record(label int32, probability float32) {
	r.labels = append(r.labels, label)
	r.probabilities = append(r.probabilities, probability)
}

// RecordBatch appends one batch worth of samples.
func (r *PredictionRecorder) RecordBatch(labels []int32, probabilities []float32) error {
	if len(labels) != len(probabilities) {
		return fmt.Errorf("failed to record batch: %d labels but %d probabilities", len(labels), len(probabilities))
	}
	r.labels = append(r.labels, labels...)
	r.probabilities = append(r.probabilities, probabilities...)
	return nil
}

// Len returns the number of recorded samples.
func (r *PredictionRecorder) Len() int {
	return len(r.labels)
}

// Labels returns the recorded labels in encounter order. The slice is
// shared with the recorder, callers must not modify it.
func (r *PredictionRecorder) Labels() []int32 {
	return r.labels
}

// Probabilities returns the recorded positive-class probabilities in
// encounter order. The slice is shared with the recorder.
func (r *PredictionRecorder) Probabilities() []float32 {
	return r.probabilities
}

// Reset clears the recorder for the next phase.
func (r *PredictionRecorder) Reset() {
	r.labels = r.labels[:0]
	r.probabilities = r.probabilities[:0]
}

// Save writes the recorded samples to <dir>/<phase>_epoch_<epoch>.csv with
// a TrueLabel,Probability header and returns the path written.
func (r *PredictionRecorder) Save(dir, phase string, epoch int) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s_epoch_%d.csv", phase, epoch))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create prediction file %s: %v", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"TrueLabel", "Probability"}); err != nil {
		return "", fmt.Errorf("failed to write prediction header: %v", err)
	}
	for i := range r.labels {
		row := []string{
			strconv.Itoa(int(r.labels[i])),
			strconv.FormatFloat(float64(r.probabilities[i]), 'g', -1, 32),
		}
		if err := writer.Write(row); err != nil {
			return "", fmt.Errorf("failed to write prediction row %d: %v", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush predictions to %s: %v", path, err)
	}

	return path, nil
}
