package training

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Ingram66/C2-NET/async"
	"github.com/Ingram66/C2-NET/summary"
	"github.com/Ingram66/C2-NET/tensor"
)

// RunConfig configures a full training run. Fields are read once when the
// run starts and never mutated afterwards.
type RunConfig struct {
	// DatasetName identifies the dataset in banners and has no effect on
	// the data itself.
	DatasetName string

	// ModelName is the architecture label printed in banners.
	ModelName string

	// SaveName is the checkpoint file prefix. Empty defaults to
	// "<ModelName>-<DatasetName>".
	SaveName string

	// NumClasses is the model's output width. Probabilities recorded for
	// AUC and CSV dumps are always taken from class 1.
	NumClasses int

	// Epochs is the total epoch count, including epochs completed before
	// a resume.
	Epochs int

	// ResumeEpoch selects the first epoch to run. Zero starts fresh, a
	// positive value restores the snapshot written after epoch
	// ResumeEpoch-1 and continues from there.
	ResumeEpoch int

	// SnapshotInterval saves a checkpoint every N epochs. Zero disables
	// checkpointing.
	SnapshotInterval int

	// UseTest enables the extra test pass every TestInterval epochs.
	UseTest      bool
	TestInterval int

	// PrefetchWorkers enables background batch loading when positive.
	// PrefetchDepth bounds the number of batches queued ahead.
	PrefetchWorkers int
	PrefetchDepth   int

	// Scheduler adjusts the learning rate at the start of every train
	// phase. Nil keeps the optimizer's rate fixed.
	Scheduler LRScheduler
}

// Loaders bundles the per-split data loaders of a run. Test may be nil
// when the test split is disabled.
type Loaders struct {
	Train *DataLoader
	Val   *DataLoader
	Test  *DataLoader
}

// EpochMetrics holds the aggregate metrics of one phase of one epoch.
type EpochMetrics struct {
	Loss        float64
	Accuracy    float64
	AUC         float64
	Sensitivity float64
	Specificity float64
}

// Orchestrator drives the epoch loop: train and val phases every epoch,
// periodic test phases and checkpoints, prediction dumps and scalar
// logging for each phase.
type Orchestrator struct {
	config    RunConfig
	model     Module
	optimizer Optimizer
	criterion *CrossEntropyLoss
	manager   *CheckpointManager
	out       io.Writer

	// baseLR is the optimizer's rate at construction time. The schedule
	// is always computed from this value, so a resumed run repeats the
	// same curve instead of decaying from the restored rate.
	baseLR        float64
	scheduleSteps int
}

// NewOrchestrator creates an orchestrator around an already constructed
// model, optimizer and criterion.
func NewOrchestrator(model Module, optimizer Optimizer, criterion *CrossEntropyLoss, config RunConfig) *Orchestrator {
	if config.SaveName == "" {
		config.SaveName = config.ModelName + "-" + config.DatasetName
	}

	return &Orchestrator{
		config:    config,
		model:     model,
		optimizer: optimizer,
		criterion: criterion,
		out:       os.Stdout,
		baseLR:    optimizer.GetLR(),
	}
}

// SetOutput redirects console output to a different writer.
func (o *Orchestrator) SetOutput(out io.Writer) {
	o.out = out
}

// Run executes epochs [ResumeEpoch, Epochs). Each epoch runs the train and
// val phases in order, saves a snapshot every SnapshotInterval epochs, and
// runs the test phase every TestInterval epochs when enabled. The event
// writer is closed on normal completion only, so a failed run leaves the
// partial event file as it was at the time of the error.
func (o *Orchestrator) Run(run *RunDirectory, writer *summary.Writer, loaders Loaders) error {
	if loaders.Train == nil || loaders.Val == nil {
		return fmt.Errorf("train and val loaders are required")
	}
	if o.config.UseTest && loaders.Test == nil {
		return fmt.Errorf("test split enabled but no test loader configured")
	}
	if o.config.NumClasses < 2 {
		return fmt.Errorf("need at least 2 classes, got %d", o.config.NumClasses)
	}

	o.manager = NewCheckpointManager(o.model, o.optimizer, run.ModelDir, o.config.SaveName)

	if o.config.ResumeEpoch == 0 {
		fmt.Fprintf(o.out, "Training %s from scratch...\n", o.config.ModelName)
	} else {
		path, err := o.manager.Restore(o.config.ResumeEpoch)
		if err != nil {
			return fmt.Errorf("failed to resume from epoch %d: %v", o.config.ResumeEpoch, err)
		}
		fmt.Fprintf(o.out, "Initializing weights from: %s...\n", path)
	}
	fmt.Fprintf(o.out, "Total params: %.2fM\n", float64(CountParameters(o.model))/1000000.0)
	fmt.Fprintf(o.out, "Training model on %s dataset...\n", o.config.DatasetName)

	var lastVal *EpochMetrics
	for epoch := o.config.ResumeEpoch; epoch < o.config.Epochs; epoch++ {
		for _, phase := range []string{"train", "val"} {
			loader := loaders.Train
			if phase == "val" {
				loader = loaders.Val
			}

			metrics, err := o.runPhase(phase, loader, epoch, run, writer)
			if err != nil {
				return err
			}
			if phase == "val" {
				lastVal = metrics
			}
		}

		if o.config.SnapshotInterval > 0 && (epoch+1)%o.config.SnapshotInterval == 0 {
			path, err := o.manager.Save(epoch, float32(lastVal.Loss), float32(lastVal.Accuracy))
			if err != nil {
				return fmt.Errorf("failed to save checkpoint for epoch %d: %v", epoch, err)
			}
			fmt.Fprintf(o.out, "Save model at %s\n\n", path)
		}

		if o.config.UseTest && o.config.TestInterval > 0 && (epoch+1)%o.config.TestInterval == 0 {
			if _, err := o.runPhase("test", loaders.Test, epoch, run, writer); err != nil {
				return err
			}
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close event writer: %v", err)
	}
	return nil
}

// runPhase consumes every batch of one split once, accumulating loss,
// predictions and the confusion matrix, then dumps predictions, logs the
// five epoch scalars and prints the summary lines.
func (o *Orchestrator) runPhase(phase string, loader *DataLoader, epoch int, run *RunDirectory, writer *summary.Writer) (*EpochMetrics, error) {
	start := time.Now()

	train := phase == "train"
	if train {
		o.advanceSchedule()
		o.model.Train()
	} else {
		o.model.Eval()
	}

	loader.Reset()
	next, stop, err := o.batchStream(loader)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s batch stream: %v", phase, err)
	}
	defer stop()

	recorder := NewPredictionRecorder()
	matrix := NewConfusionMatrix(o.config.NumClasses)
	progress := NewProgressBar(phase, loader.Len())
	progress.SetOutput(o.out)

	var runningLoss float64
	batches := 0
	for {
		data, labels, err := next()
		if err != nil {
			return nil, fmt.Errorf("failed to load %s batch: %v", phase, err)
		}
		if data == nil {
			break
		}
		batchSize := data.Shape[0]

		if train {
			o.optimizer.ZeroGrad()
		}

		output, err := o.model.Forward(data)
		if err != nil {
			return nil, fmt.Errorf("forward pass failed in %s phase: %v", phase, err)
		}

		probs, err := Softmax(output)
		if err != nil {
			return nil, fmt.Errorf("softmax failed in %s phase: %v", phase, err)
		}

		loss, err := o.criterion.Forward(output, labels)
		if err != nil {
			return nil, fmt.Errorf("loss computation failed in %s phase: %v", phase, err)
		}

		if train {
			grad, err := o.criterion.Backward(output, labels)
			if err != nil {
				return nil, fmt.Errorf("loss backward failed: %v", err)
			}
			if _, err := o.model.Backward(grad); err != nil {
				return nil, fmt.Errorf("model backward failed: %v", err)
			}
			if err := o.optimizer.Step(); err != nil {
				return nil, fmt.Errorf("optimizer step failed: %v", err)
			}
		}

		lossValue, err := loss.Item()
		if err != nil {
			return nil, fmt.Errorf("failed to read loss value: %v", err)
		}
		runningLoss += float64(lossValue.(float32)) * float64(batchSize)

		logits, err := output.GetFloat32Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read model output: %v", err)
		}
		labelData, err := labels.GetInt32Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read batch labels: %v", err)
		}
		if err := matrix.UpdateFromLogits(logits, labelData, batchSize, o.config.NumClasses); err != nil {
			return nil, fmt.Errorf("failed to update confusion matrix: %v", err)
		}

		probData, err := probs.GetFloat32Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read probabilities: %v", err)
		}
		for i := 0; i < batchSize; i++ {
			recorder.Record(labelData[i], probData[i*o.config.NumClasses+1])
		}

		batches++
		progress.Update(batches, nil)
	}
	progress.Finish()

	numSamples := loader.NumSamples()
	if numSamples == 0 {
		return nil, fmt.Errorf("%s split has no samples", phase)
	}

	metrics := &EpochMetrics{
		Loss:     runningLoss / float64(numSamples),
		Accuracy: matrix.GetAccuracy(),
	}
	metrics.AUC, err = CalculateAUCROC(recorder.Probabilities(), recorder.Labels())
	if err != nil {
		return nil, fmt.Errorf("failed to compute AUC for %s phase: %v", phase, err)
	}
	metrics.Sensitivity = CalculateSensitivity(recorder.Probabilities(), recorder.Labels())
	metrics.Specificity = CalculateSpecificity(recorder.Probabilities(), recorder.Labels())

	csvPath, err := recorder.Save(run.PredictionDir, phase, epoch)
	if err != nil {
		return nil, fmt.Errorf("failed to save %s predictions: %v", phase, err)
	}
	fmt.Fprintf(o.out, "Saved %s predictions to %s\n", phase, csvPath)

	scalars := []struct {
		name  string
		value float64
	}{
		{"loss", metrics.Loss},
		{"acc", metrics.Accuracy},
		{"auc", metrics.AUC},
		{"sensitivity", metrics.Sensitivity},
		{"specificity", metrics.Specificity},
	}
	for _, s := range scalars {
		tag := fmt.Sprintf("data/%s_%s_epoch", phase, s.name)
		if err := writer.AddScalar(tag, float32(s.value), epoch); err != nil {
			return nil, fmt.Errorf("failed to log %s: %v", tag, err)
		}
	}

	fmt.Fprintf(o.out, "[%s] Epoch: %d/%d Loss: %v Acc: %v AUC: %v Sensitivity: %v Specificity: %v\n",
		phase, epoch+1, o.config.Epochs, metrics.Loss, metrics.Accuracy, metrics.AUC,
		metrics.Sensitivity, metrics.Specificity)
	fmt.Fprintf(o.out, "Execution time: %v\n\n", time.Since(start).Seconds())

	return metrics, nil
}

// advanceSchedule moves the LR schedule forward one step and applies the
// new rate. The first train phase already runs at schedule position 1, and
// a resumed run restarts the schedule from the beginning.
func (o *Orchestrator) advanceSchedule() {
	if o.config.Scheduler == nil {
		return
	}
	o.scheduleSteps++
	o.optimizer.SetLR(o.config.Scheduler.GetLR(o.scheduleSteps, 0, o.baseLR))
}

// batchStream returns a draw function yielding batches until the epoch
// ends with (nil, nil, nil), plus a stop function releasing any background
// workers. With PrefetchWorkers set, batches are assembled ahead of the
// consumer by a prefetcher wrapped around the loader.
func (o *Orchestrator) batchStream(loader *DataLoader) (func() (data, labels *tensor.Tensor, err error), func(), error) {
	if o.config.PrefetchWorkers > 0 {
		prefetcher, err := async.NewPrefetcher(loader, async.PrefetcherConfig{
			Depth:   o.config.PrefetchDepth,
			Workers: o.config.PrefetchWorkers,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := prefetcher.Start(); err != nil {
			return nil, nil, err
		}
		next := func() (*tensor.Tensor, *tensor.Tensor, error) {
			batch, err := prefetcher.GetBatch()
			if err != nil {
				return nil, nil, err
			}
			if batch == nil {
				return nil, nil, nil
			}
			return batch.Data, batch.Labels, nil
		}
		return next, prefetcher.Stop, nil
	}

	next := func() (*tensor.Tensor, *tensor.Tensor, error) {
		batch, err := loader.Next()
		if err != nil {
			return nil, nil, err
		}
		if batch == nil {
			return nil, nil, nil
		}
		return batch.Data, batch.Labels, nil
	}
	return next, func() {}, nil
}
