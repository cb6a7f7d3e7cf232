package training

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ingram66/C2-NET/checkpoints"
)

// NamedParameterProvider is implemented by models that expose stable,
// layer-qualified names for their trainable tensors. Models without it
// are checkpointed with positional names.
type NamedParameterProvider interface {
	NamedParameters() []NamedParameter
}

// CheckpointManager bridges a model and its optimizer to the checkpoints
// package. It writes one snapshot per save epoch and restores weights and
// optimizer state when a run resumes.
type CheckpointManager struct {
	model        Module
	optimizer    Optimizer
	saveDir      string
	saveName     string
	bestLoss     float32
	bestAccuracy float32
}

// NewCheckpointManager creates a checkpoint manager that writes snapshots
// named "{saveName}_epoch-{N}.json" under saveDir.
func NewCheckpointManager(model Module, optimizer Optimizer, saveDir string, saveName string) *CheckpointManager {
	return &CheckpointManager{
		model:        model,
		optimizer:    optimizer,
		saveDir:      saveDir,
		saveName:     saveName,
		bestLoss:     float32(1e9),
		bestAccuracy: 0.0,
	}
}

// CheckpointPath returns the file a given epoch's snapshot is written to.
func (cm *CheckpointManager) CheckpointPath(epoch int) string {
	return filepath.Join(cm.saveDir, fmt.Sprintf("%s_epoch-%d.json", cm.saveName, epoch))
}

// Save writes a snapshot of the model weights and optimizer state at the
// end of the given zero-based epoch. The stored epoch counter is the next
// epoch to run, so a resumed run picks up exactly where this one stopped.
func (cm *CheckpointManager) Save(epoch int, loss float32, accuracy float32) (string, error) {
	if loss < cm.bestLoss {
		cm.bestLoss = loss
	}
	if accuracy > cm.bestAccuracy {
		cm.bestAccuracy = accuracy
	}

	checkpoint, err := cm.createCheckpoint(epoch, loss, accuracy)
	if err != nil {
		return "", fmt.Errorf("failed to create checkpoint: %v", err)
	}

	if err := os.MkdirAll(cm.saveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint directory: %v", err)
	}

	path := cm.CheckpointPath(epoch)
	if err := checkpoints.Save(checkpoint, path); err != nil {
		return "", fmt.Errorf("failed to save checkpoint: %v", err)
	}

	return path, nil
}

// Restore loads the snapshot written before the given epoch and copies its
// weights and optimizer state back into the model and optimizer. It returns
// the path the snapshot was read from.
func (cm *CheckpointManager) Restore(resumeEpoch int) (string, error) {
	path := cm.CheckpointPath(resumeEpoch - 1)

	checkpoint, err := checkpoints.Load(path)
	if err != nil {
		return "", fmt.Errorf("failed to load checkpoint: %v", err)
	}

	if checkpoint.TrainingState.Epoch != resumeEpoch {
		return "", fmt.Errorf("checkpoint %s resumes at epoch %d, expected %d",
			path, checkpoint.TrainingState.Epoch, resumeEpoch)
	}

	named := cm.namedParameters()
	if err := cm.restoreWeights(checkpoint, named); err != nil {
		return "", fmt.Errorf("failed to restore weights: %v", err)
	}

	if checkpoint.OptimizerState != nil {
		if adam, ok := cm.optimizer.(*Adam); ok {
			if err := restoreAdamState(adam, checkpoint.OptimizerState, named); err != nil {
				return "", fmt.Errorf("failed to restore optimizer state: %v", err)
			}
		}
	}

	cm.bestLoss = checkpoint.TrainingState.BestLoss
	cm.bestAccuracy = checkpoint.TrainingState.BestAccuracy

	return path, nil
}

func (cm *CheckpointManager) createCheckpoint(epoch int, loss float32, accuracy float32) (*checkpoints.Checkpoint, error) {
	named := cm.namedParameters()

	weights, err := extractWeights(named)
	if err != nil {
		return nil, err
	}

	var step int
	var optimizerState *checkpoints.OptimizerState
	if adam, ok := cm.optimizer.(*Adam); ok {
		step = int(adam.StepCount())
		optimizerState = captureAdamState(adam, named)
	}

	checkpoint := &checkpoints.Checkpoint{
		Weights: weights,
		TrainingState: checkpoints.TrainingState{
			Epoch:        epoch + 1,
			Step:         step,
			LearningRate: float32(cm.optimizer.GetLR()),
			BestLoss:     cm.bestLoss,
			BestAccuracy: cm.bestAccuracy,
			TotalSteps:   step,
		},
		OptimizerState: optimizerState,
		Metadata: checkpoints.CheckpointMetadata{
			Description: fmt.Sprintf("Snapshot after epoch %d - Loss: %.6f, Accuracy: %.2f%%", epoch+1, loss, accuracy*100),
			Tags:        []string{fmt.Sprintf("epoch_%d", epoch+1)},
		},
	}

	return checkpoint, nil
}

// namedParameters resolves stable parameter names for the managed model,
// falling back to positional names for models that do not provide them.
func (cm *CheckpointManager) namedParameters() []NamedParameter {
	if provider, ok := cm.model.(NamedParameterProvider); ok {
		return provider.NamedParameters()
	}

	parameters := cm.model.Parameters()
	named := make([]NamedParameter, len(parameters))
	for i, param := range parameters {
		named[i] = NamedParameter{Name: fmt.Sprintf("param_%d", i), Tensor: param}
	}
	return named
}

func extractWeights(named []NamedParameter) ([]checkpoints.WeightTensor, error) {
	weights := make([]checkpoints.WeightTensor, 0, len(named))

	for _, param := range named {
		data, err := param.Tensor.GetFloat32Data()
		if err != nil {
			return nil, fmt.Errorf("failed to extract %s: %v", param.Name, err)
		}

		stored := make([]float32, len(data))
		copy(stored, data)

		layer, kind := splitParameterName(param.Name)
		weights = append(weights, checkpoints.WeightTensor{
			Name:  param.Name,
			Shape: append([]int(nil), param.Tensor.Shape...),
			Data:  stored,
			Layer: layer,
			Type:  kind,
		})
	}

	return weights, nil
}

func (cm *CheckpointManager) restoreWeights(checkpoint *checkpoints.Checkpoint, named []NamedParameter) error {
	for _, param := range named {
		stored, ok := checkpoint.Weight(param.Name)
		if !ok {
			return fmt.Errorf("checkpoint has no weights for %s", param.Name)
		}

		if !shapesEqual(stored.Shape, param.Tensor.Shape) {
			return fmt.Errorf("shape mismatch for %s: checkpoint %v, model %v",
				param.Name, stored.Shape, param.Tensor.Shape)
		}
		if len(stored.Data) != param.Tensor.NumElems {
			return fmt.Errorf("data size mismatch for %s: checkpoint %d, model %d",
				param.Name, len(stored.Data), param.Tensor.NumElems)
		}

		data, err := param.Tensor.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("failed to access %s: %v", param.Name, err)
		}
		copy(data, stored.Data)
	}

	return nil
}

func captureAdamState(adam *Adam, named []NamedParameter) *checkpoints.OptimizerState {
	state := &checkpoints.OptimizerState{
		Type: "Adam",
		Parameters: map[string]interface{}{
			"lr":           adam.GetLR(),
			"beta1":        adam.Beta1(),
			"beta2":        adam.Beta2(),
			"epsilon":      adam.Epsilon(),
			"weight_decay": adam.WeightDecay(),
			"step_count":   adam.StepCount(),
		},
	}

	for _, param := range named {
		m, v := adam.Moments(param.Tensor)
		if m == nil {
			continue
		}

		shape := append([]int(nil), param.Tensor.Shape...)
		state.StateData = append(state.StateData,
			checkpoints.OptimizerTensor{Name: param.Name + ".m", Shape: shape, Data: m, StateType: "m"},
			checkpoints.OptimizerTensor{Name: param.Name + ".v", Shape: shape, Data: v, StateType: "v"},
		)
	}

	return state
}

func restoreAdamState(adam *Adam, state *checkpoints.OptimizerState, named []NamedParameter) error {
	if state.Type != "Adam" {
		return fmt.Errorf("checkpoint holds %s optimizer state, expected Adam", state.Type)
	}

	// JSON decodes every number in the parameter map as float64.
	if raw, ok := state.Parameters["step_count"].(float64); ok {
		adam.SetStepCount(int64(raw))
	}
	if raw, ok := state.Parameters["lr"].(float64); ok {
		adam.SetLR(raw)
	}

	for _, param := range named {
		m, okM := state.StateTensor(param.Name + ".m")
		v, okV := state.StateTensor(param.Name + ".v")
		if !okM || !okV {
			// Moments only exist for parameters the optimizer has stepped.
			continue
		}

		if err := adam.RestoreMoments(param.Tensor, m.Data, v.Data); err != nil {
			return fmt.Errorf("failed to restore moments for %s: %v", param.Name, err)
		}
	}

	return nil
}

// splitParameterName breaks "conv1.weight" into its layer and tensor kind.
// Names without a recognized suffix are treated as weights of a layer named
// after the full parameter.
func splitParameterName(name string) (layer string, kind string) {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		suffix := name[idx+1:]
		if suffix == "weight" || suffix == "bias" {
			return name[:idx], suffix
		}
	}
	return name, "weight"
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
