package training

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RunDirectory holds the output layout for a single experiment run.
// All paths are absolute once resolved.
type RunDirectory struct {
	// Root is the run_<N> directory holding everything this run produces.
	Root string

	// ID is the numeric suffix N of the run directory.
	ID int

	// ModelDir receives checkpoint files.
	ModelDir string

	// PredictionDir receives per-epoch prediction CSV files.
	PredictionDir string

	// LogDir is a timestamped subdirectory of ModelDir for event files.
	LogDir string
}

// ResolveRunDirectory allocates the output directories for a run under
// <outputRoot>/run/run_<N>. A fresh run takes N one past the highest
// existing run, a resumed run reuses the highest existing run. The log
// directory is always stamped with the current time, so a resumed run
// writes events to a new location.
func ResolveRunDirectory(outputRoot string, resume bool) (*RunDirectory, error) {
	runRoot := filepath.Join(outputRoot, "run")

	id, err := nextRunID(runRoot, resume)
	if err != nil {
		return nil, err
	}

	root := filepath.Join(runRoot, fmt.Sprintf("run_%d", id))
	rd := &RunDirectory{
		Root:          root,
		ID:            id,
		ModelDir:      filepath.Join(root, "models"),
		PredictionDir: filepath.Join(root, "predictions"),
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	stamp := time.Now().Format("Jan02_15-04-05")
	rd.LogDir = filepath.Join(rd.ModelDir, stamp+"_"+hostname)

	for _, dir := range []string{rd.ModelDir, rd.PredictionDir, rd.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create run directory %s: %v", dir, err)
		}
	}

	return rd, nil
}

// nextRunID scans runRoot for run_<N> entries and returns the ID the new
// run should use. With no prior runs both modes start at 0.
func nextRunID(runRoot string, resume bool) (int, error) {
	matches, err := filepath.Glob(filepath.Join(runRoot, "run_*"))
	if err != nil {
		return 0, fmt.Errorf("failed to scan run directory %s: %v", runRoot, err)
	}

	maxID := -1
	for _, match := range matches {
		suffix := strings.TrimPrefix(filepath.Base(match), "run_")
		id, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if id > maxID {
			maxID = id
		}
	}

	if maxID < 0 {
		return 0, nil
	}
	if resume {
		return maxID, nil
	}
	return maxID + 1, nil
}
