package training

import (
	"fmt"
	"sort"
)

// MetricType represents different evaluation metrics
type MetricType int

const (
	// Binary classification metrics
	Precision MetricType = iota
	Recall
	F1Score
	Specificity
)

func (mt MetricType) String() string {
	switch mt {
	case Precision:
		return "Precision"
	case Recall:
		return "Recall"
	case F1Score:
		return "F1Score"
	case Specificity:
		return "Specificity"
	default:
		return fmt.Sprintf("Unknown(%d)", int(mt))
	}
}

// ConfusionMatrix accumulates classification outcomes across batches
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int // [true_class][predicted_class]
	TotalSamples int

	// Cached metrics to avoid recomputation
	cachedMetrics map[MetricType]float64
	metricsValid  bool
}

// NewConfusionMatrix creates a new confusion matrix
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}

	return &ConfusionMatrix{
		NumClasses:    numClasses,
		Matrix:        matrix,
		cachedMetrics: make(map[MetricType]float64),
	}
}

// Reset clears the confusion matrix
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
	cm.TotalSamples = 0
	cm.metricsValid = false
	cm.cachedMetrics = make(map[MetricType]float64)
}

// UpdateFromLogits updates the confusion matrix from a batch of raw model
// outputs. The predicted class for each sample is the argmax over its logits.
func (cm *ConfusionMatrix) UpdateFromLogits(logits []float32, trueLabels []int32, batchSize, numClasses int) error {
	if len(logits) != batchSize*numClasses {
		return fmt.Errorf("logits length mismatch: expected %d, got %d", batchSize*numClasses, len(logits))
	}
	if len(trueLabels) != batchSize {
		return fmt.Errorf("labels length mismatch: expected %d, got %d", batchSize, len(trueLabels))
	}
	if numClasses != cm.NumClasses {
		return fmt.Errorf("class count mismatch: expected %d, got %d", cm.NumClasses, numClasses)
	}

	for i := 0; i < batchSize; i++ {
		maxIdx := 0
		maxVal := logits[i*numClasses]
		for j := 1; j < numClasses; j++ {
			if logits[i*numClasses+j] > maxVal {
				maxVal = logits[i*numClasses+j]
				maxIdx = j
			}
		}

		trueClass := int(trueLabels[i])
		if trueClass < 0 || trueClass >= cm.NumClasses {
			return fmt.Errorf("label out of range: got %d with %d classes", trueClass, cm.NumClasses)
		}

		cm.Matrix[trueClass][maxIdx]++
		cm.TotalSamples++
	}

	cm.metricsValid = false
	return nil
}

// GetMetric calculates and caches evaluation metrics
func (cm *ConfusionMatrix) GetMetric(metric MetricType) float64 {
	if cm.metricsValid {
		if value, exists := cm.cachedMetrics[metric]; exists {
			return value
		}
	}

	var result float64

	switch metric {
	case Precision:
		result = cm.calculateBinaryPrecision()
	case Recall:
		result = cm.calculateBinaryRecall()
	case F1Score:
		result = cm.calculateBinaryF1()
	case Specificity:
		result = cm.calculateSpecificity()
	default:
		return 0.0
	}

	cm.cachedMetrics[metric] = result
	return result
}

// Binary classification metrics (class 1 is positive)
func (cm *ConfusionMatrix) calculateBinaryPrecision() float64 {
	if cm.NumClasses != 2 {
		return 0.0
	}

	tp := float64(cm.Matrix[1][1])
	fp := float64(cm.Matrix[0][1])

	if tp+fp == 0 {
		return 0.0
	}

	return tp / (tp + fp)
}

func (cm *ConfusionMatrix) calculateBinaryRecall() float64 {
	if cm.NumClasses != 2 {
		return 0.0
	}

	tp := float64(cm.Matrix[1][1])
	fn := float64(cm.Matrix[1][0])

	if tp+fn == 0 {
		return 0.0
	}

	return tp / (tp + fn)
}

func (cm *ConfusionMatrix) calculateBinaryF1() float64 {
	precision := cm.calculateBinaryPrecision()
	recall := cm.calculateBinaryRecall()

	if precision+recall == 0 {
		return 0.0
	}

	return 2 * (precision * recall) / (precision + recall)
}

func (cm *ConfusionMatrix) calculateSpecificity() float64 {
	if cm.NumClasses != 2 {
		return 0.0
	}

	tn := float64(cm.Matrix[0][0])
	fp := float64(cm.Matrix[0][1])

	if tn+fp == 0 {
		return 0.0
	}

	return tn / (tn + fp)
}

// GetAccuracy returns overall classification accuracy
func (cm *ConfusionMatrix) GetAccuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0.0
	}

	correct := 0
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}

	return float64(correct) / float64(cm.TotalSamples)
}

// CalculateAUCROC calculates the area under the ROC curve from positive-class
// scores and binary labels. It returns an error when the labels contain only
// one class, since the curve is undefined in that case.
func CalculateAUCROC(scores []float32, trueLabels []int32) (float64, error) {
	if len(scores) != len(trueLabels) {
		return 0, fmt.Errorf("scores and labels length mismatch: %d vs %d", len(scores), len(trueLabels))
	}
	if len(scores) == 0 {
		return 0, fmt.Errorf("cannot calculate AUC from empty input")
	}

	type predLabel struct {
		score float32
		label int32
	}

	pairs := make([]predLabel, len(scores))
	for i := range scores {
		pairs[i] = predLabel{score: scores[i], label: trueLabels[i]}
	}

	// Sort by prediction score (descending)
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].score > pairs[j].score
	})

	totalPos := 0
	totalNeg := 0
	for _, pair := range pairs {
		if pair.label == 1 {
			totalPos++
		} else {
			totalNeg++
		}
	}

	if totalPos == 0 || totalNeg == 0 {
		return 0, fmt.Errorf("only one class present in labels, ROC AUC is undefined")
	}

	// Trapezoidal rule over the ROC curve
	auc := 0.0
	tp := 0
	fp := 0
	prevTPR := 0.0
	prevFPR := 0.0

	for _, pair := range pairs {
		if pair.label == 1 {
			tp++
		} else {
			fp++
		}

		tpr := float64(tp) / float64(totalPos)
		fpr := float64(fp) / float64(totalNeg)

		auc += (fpr - prevFPR) * (tpr + prevTPR) / 2.0

		prevTPR = tpr
		prevFPR = fpr
	}

	return auc, nil
}

// CalculateSensitivity returns the recall of class 1 after thresholding the
// positive-class scores at 0.5. Samples with other labels are ignored.
func CalculateSensitivity(scores []float32, trueLabels []int32) float64 {
	tp := 0
	fn := 0
	for i, label := range trueLabels {
		if label != 1 {
			continue
		}
		if scores[i] > 0.5 {
			tp++
		} else {
			fn++
		}
	}

	if tp+fn == 0 {
		return 0.0
	}
	return float64(tp) / float64(tp+fn)
}

// CalculateSpecificity returns the recall of class 0 after thresholding the
// positive-class scores at 0.5. Samples with other labels are ignored.
func CalculateSpecificity(scores []float32, trueLabels []int32) float64 {
	tn := 0
	fp := 0
	for i, label := range trueLabels {
		if label != 0 {
			continue
		}
		if scores[i] > 0.5 {
			fp++
		} else {
			tn++
		}
	}

	if tn+fp == 0 {
		return 0.0
	}
	return float64(tn) / float64(tn+fp)
}
