package checkpoints

import (
	"os"
	"path/filepath"
	"testing"
)

func testCheckpoint() *Checkpoint {
	return &Checkpoint{
		Weights: []WeightTensor{
			{
				Name:  "fc1.weight",
				Shape: []int{2, 3},
				Data:  []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6},
				Layer: "fc1",
				Type:  "weight",
			},
			{
				Name:  "fc1.bias",
				Shape: []int{3},
				Data:  []float32{0.01, 0.02, 0.03},
				Layer: "fc1",
				Type:  "bias",
			},
		},
		TrainingState: TrainingState{
			Epoch:        5,
			Step:         1250,
			LearningRate: 0.0001,
			BestLoss:     0.42,
			BestAccuracy: 0.87,
			TotalSteps:   1250,
		},
		OptimizerState: &OptimizerState{
			Type: "Adam",
			Parameters: map[string]interface{}{
				"beta1": 0.9,
				"beta2": 0.999,
			},
			StateData: []OptimizerTensor{
				{
					Name:      "fc1.weight.m",
					Shape:     []int{2, 3},
					Data:      []float32{0, 0, 0, 0, 0, 0},
					StateType: "m",
				},
			},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_epoch-4.json")

	original := testCheckpoint()
	if err := Save(original, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded.Weights) != 2 {
		t.Fatalf("Expected 2 weights, got %d", len(loaded.Weights))
	}

	weight := loaded.Weights[0]
	if weight.Name != "fc1.weight" || weight.Layer != "fc1" || weight.Type != "weight" {
		t.Errorf("Weight identity mismatch: %+v", weight)
	}
	if len(weight.Shape) != 2 || weight.Shape[0] != 2 || weight.Shape[1] != 3 {
		t.Errorf("Weight shape mismatch: %v", weight.Shape)
	}
	for i, v := range []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6} {
		if weight.Data[i] != v {
			t.Errorf("Weight data[%d] = %v, expected %v", i, weight.Data[i], v)
		}
	}

	if loaded.TrainingState.Epoch != 5 {
		t.Errorf("Epoch = %d, expected 5", loaded.TrainingState.Epoch)
	}
	if loaded.TrainingState.LearningRate != 0.0001 {
		t.Errorf("LearningRate = %v, expected 0.0001", loaded.TrainingState.LearningRate)
	}

	if loaded.OptimizerState == nil {
		t.Fatal("Expected optimizer state to survive the round trip")
	}
	if loaded.OptimizerState.Type != "Adam" {
		t.Errorf("Optimizer type = %s, expected Adam", loaded.OptimizerState.Type)
	}
	if len(loaded.OptimizerState.StateData) != 1 {
		t.Errorf("Expected 1 optimizer tensor, got %d", len(loaded.OptimizerState.StateData))
	}
}

func TestSaveFillsMetadataDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	checkpoint := testCheckpoint()
	if err := Save(checkpoint, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if checkpoint.Metadata.Framework != "c2-net" {
		t.Errorf("Framework = %s, expected c2-net", checkpoint.Metadata.Framework)
	}
	if checkpoint.Metadata.Version != "1.0.0" {
		t.Errorf("Version = %s, expected 1.0.0", checkpoint.Metadata.Version)
	}
	if checkpoint.Metadata.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
	if checkpoint.Metadata.RunID == "" {
		t.Error("Expected RunID to be set")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Metadata.RunID != checkpoint.Metadata.RunID {
		t.Errorf("RunID changed across round trip: %s vs %s", loaded.Metadata.RunID, checkpoint.Metadata.RunID)
	}
}

func TestSavePreservesExplicitMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	checkpoint := testCheckpoint()
	checkpoint.Metadata.Framework = "custom"
	checkpoint.Metadata.Version = "9.9.9"
	checkpoint.Metadata.RunID = "run-42"

	if err := Save(checkpoint, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if checkpoint.Metadata.Framework != "custom" || checkpoint.Metadata.Version != "9.9.9" {
		t.Errorf("Explicit metadata was overwritten: %+v", checkpoint.Metadata)
	}
	if checkpoint.Metadata.RunID != "run-42" {
		t.Errorf("Explicit RunID was overwritten: %s", checkpoint.Metadata.RunID)
	}
}

func TestWeightLookup(t *testing.T) {
	checkpoint := testCheckpoint()

	weight, ok := checkpoint.Weight("fc1.bias")
	if !ok {
		t.Fatal("Expected to find fc1.bias")
	}
	if weight.Type != "bias" {
		t.Errorf("Type = %s, expected bias", weight.Type)
	}

	if _, ok := checkpoint.Weight("missing"); ok {
		t.Error("Expected lookup miss for unknown weight")
	}

	state, ok := checkpoint.OptimizerState.StateTensor("fc1.weight.m")
	if !ok {
		t.Fatal("Expected to find fc1.weight.m")
	}
	if state.StateType != "m" {
		t.Errorf("StateType = %s, expected m", state.StateType)
	}

	if _, ok := checkpoint.OptimizerState.StateTensor("missing"); ok {
		t.Error("Expected lookup miss for unknown state tensor")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for corrupt checkpoint")
	}
}
