// Command train runs the C3D video classification training loop over a
// directory of frame-extracted video clips.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/klauspost/cpuid/v2"

	"github.com/Ingram66/C2-NET/gpu"
	"github.com/Ingram66/C2-NET/summary"
	"github.com/Ingram66/C2-NET/training"
	"github.com/Ingram66/C2-NET/vision/dataset"
)

func main() {
	datasetName := flag.String("dataset", "hmdb51", "dataset to train on (hmdb51 or ucf101)")
	dataRoot := flag.String("dataRoot", "data", "directory holding the train/val/test frame folders")
	outputRoot := flag.String("outputRoot", ".", "directory receiving run_<N> outputs")
	epochs := flag.Int("epochs", 200, "number of training epochs")
	resumeEpoch := flag.Int("resume", 0, "epoch to resume from (0 trains from scratch)")
	useTest := flag.Bool("test", true, "evaluate on the test split during training")
	testInterval := flag.Int("testInterval", 1, "epochs between test evaluations")
	snapshot := flag.Int("snapshot", 10, "epochs between checkpoints")
	lr := flag.Float64("lr", 1e-4, "base learning rate")
	batchSize := flag.Int("batch", 4, "samples per batch")
	clipLen := flag.Int("clipLen", 5, "frames per clip")
	workers := flag.Int("workers", 1, "background batch loading workers (0 loads inline)")
	prefetch := flag.Int("prefetch", 3, "batches to assemble ahead of the consumer")
	cacheClips := flag.Int("cacheClips", 128, "decoded clips kept in the shared val/test cache (0 disables)")
	printModel := flag.Bool("printModel", false, "print the layer listing before training")
	seed := flag.Int64("seed", 1, "seed for weight initialization, shuffling and dropout")
	flag.Parse()

	var numClasses int
	switch *datasetName {
	case "hmdb51":
		numClasses = 2
	case "ucf101":
		numClasses = 101
	default:
		log.Fatalf("We only implemented hmdb and ucf datasets, got %q", *datasetName)
	}

	fmt.Printf("Device being used: %s\n", deviceDescription())

	training.SetRandomSeed(*seed)

	model, err := training.NewC3D(numClasses)
	if err != nil {
		log.Fatalf("Failed to build model: %v", err)
	}
	if *printModel {
		training.NewModelArchitecturePrinter("C3D").PrintArchitecture(model)
	}

	optimizer := training.NewAdam(model.Parameters(), *lr, 0.9, 0.999, 1e-8, 0.001)
	criterion := training.NewCrossEntropyLoss("mean")

	run, err := training.ResolveRunDirectory(*outputRoot, *resumeEpoch > 0)
	if err != nil {
		log.Fatalf("Failed to resolve run directory: %v", err)
	}

	writer, err := summary.NewWriter(run.LogDir)
	if err != nil {
		log.Fatalf("Failed to create event writer: %v", err)
	}

	loaders, err := buildLoaders(*dataRoot, *clipLen, *batchSize, *useTest, *cacheClips)
	if err != nil {
		log.Fatalf("Failed to load datasets: %v", err)
	}

	orchestrator := training.NewOrchestrator(model, optimizer, criterion, training.RunConfig{
		DatasetName:      *datasetName,
		ModelName:        "C3D",
		NumClasses:       numClasses,
		Epochs:           *epochs,
		ResumeEpoch:      *resumeEpoch,
		SnapshotInterval: *snapshot,
		UseTest:          *useTest,
		TestInterval:     *testInterval,
		PrefetchWorkers:  *workers,
		PrefetchDepth:    *prefetch,
		Scheduler:        training.NewCosineAnnealingLRScheduler(10, 0),
	})
	if err := orchestrator.Run(run, writer, loaders); err != nil {
		log.Fatalf("Training failed: %v", err)
	}
}

// buildLoaders opens the frame folders for each split. The val and test
// splits share one decoded-clip cache since both are replayed unchanged
// every epoch; the train split is shuffled and skips caching.
func buildLoaders(root string, clipLen, batchSize int, useTest bool, cacheClips int) (training.Loaders, error) {
	trainSet, err := dataset.NewVideoDataset(root, "train", clipLen)
	if err != nil {
		return training.Loaders{}, fmt.Errorf("failed to load train split: %v", err)
	}
	valSet, err := dataset.NewVideoDataset(root, "val", clipLen)
	if err != nil {
		return training.Loaders{}, fmt.Errorf("failed to load val split: %v", err)
	}

	var cache *dataset.ClipCache
	if cacheClips > 0 {
		cache = dataset.NewClipCache(cacheClips)
		valSet.SetCache(cache)
	}

	loaders := training.Loaders{
		Train: training.NewDataLoader(trainSet, batchSize, true),
		Val:   training.NewDataLoader(valSet, batchSize, false),
	}

	if useTest {
		testSet, err := dataset.NewVideoDataset(root, "test", clipLen)
		if err != nil {
			return training.Loaders{}, fmt.Errorf("failed to load test split: %v", err)
		}
		if cache != nil {
			testSet.SetCache(cache)
		}
		loaders.Test = training.NewDataLoader(testSet, batchSize, false)
	}

	return loaders, nil
}

// deviceDescription resolves the compute device once: the WebGPU adapter
// when one is usable, otherwise a CPU description.
func deviceDescription() string {
	if gpu.Available() {
		return gpu.DeviceName()
	}

	desc := cpuid.CPU.BrandName
	if desc == "" {
		desc = "cpu"
	}
	if cpuid.CPU.Supports(cpuid.AVX2) {
		desc += " with AVX2"
	}
	return fmt.Sprintf("%s (%d cores)", desc, cpuid.CPU.LogicalCores)
}
