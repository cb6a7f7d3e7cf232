package training

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestResolveRunDirectoryFresh(t *testing.T) {
	root := t.TempDir()

	rd, err := ResolveRunDirectory(root, false)
	if err != nil {
		t.Fatalf("Failed to resolve run directory: %v", err)
	}

	if rd.ID != 0 {
		t.Errorf("ID = %d, expected 0", rd.ID)
	}
	if rd.Root != filepath.Join(root, "run", "run_0") {
		t.Errorf("Root = %s, expected %s", rd.Root, filepath.Join(root, "run", "run_0"))
	}

	for _, dir := range []string{rd.ModelDir, rd.PredictionDir, rd.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("Expected directory %s to exist: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("Expected %s to be a directory", dir)
		}
	}

	if filepath.Dir(rd.LogDir) != rd.ModelDir {
		t.Errorf("LogDir %s should be under ModelDir %s", rd.LogDir, rd.ModelDir)
	}

	// Log directory names start with a Jan02_15-04-05 timestamp.
	base := filepath.Base(rd.LogDir)
	if len(base) < 15 || base[14] != '_' {
		t.Fatalf("Unexpected log directory name %s", base)
	}
	if _, err := time.Parse("Jan02_15-04-05", base[:14]); err != nil {
		t.Errorf("Log directory name %s does not start with a timestamp: %v", base, err)
	}
}

func TestResolveRunDirectorySequence(t *testing.T) {
	root := t.TempDir()

	first, err := ResolveRunDirectory(root, false)
	if err != nil {
		t.Fatalf("Failed to resolve first run: %v", err)
	}
	if first.ID != 0 {
		t.Errorf("First run ID = %d, expected 0", first.ID)
	}

	second, err := ResolveRunDirectory(root, false)
	if err != nil {
		t.Fatalf("Failed to resolve second run: %v", err)
	}
	if second.ID != 1 {
		t.Errorf("Second run ID = %d, expected 1", second.ID)
	}

	resumed, err := ResolveRunDirectory(root, true)
	if err != nil {
		t.Fatalf("Failed to resolve resumed run: %v", err)
	}
	if resumed.ID != 1 {
		t.Errorf("Resumed run ID = %d, expected 1", resumed.ID)
	}
	if resumed.Root != second.Root {
		t.Errorf("Resumed root = %s, expected %s", resumed.Root, second.Root)
	}
}

func TestResolveRunDirectoryResumeWithoutRuns(t *testing.T) {
	rd, err := ResolveRunDirectory(t.TempDir(), true)
	if err != nil {
		t.Fatalf("Failed to resolve run directory: %v", err)
	}
	if rd.ID != 0 {
		t.Errorf("ID = %d, expected 0", rd.ID)
	}
}

func TestNextRunIDNumericOrder(t *testing.T) {
	root := t.TempDir()
	runRoot := filepath.Join(root, "run")
	for _, name := range []string{"run_2", "run_10", "run_junk", "notarun"} {
		if err := os.MkdirAll(filepath.Join(runRoot, name), 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", name, err)
		}
	}

	// run_10 outranks run_2 numerically even though it sorts lower
	// lexically, and non-numeric suffixes are skipped.
	fresh, err := nextRunID(runRoot, false)
	if err != nil {
		t.Fatalf("Failed to compute fresh run ID: %v", err)
	}
	if fresh != 11 {
		t.Errorf("Fresh run ID = %d, expected 11", fresh)
	}

	resumed, err := nextRunID(runRoot, true)
	if err != nil {
		t.Fatalf("Failed to compute resumed run ID: %v", err)
	}
	if resumed != 10 {
		t.Errorf("Resumed run ID = %d, expected 10", resumed)
	}
}

func TestResolveRunDirectoryTimestampNames(t *testing.T) {
	root := t.TempDir()

	first, err := ResolveRunDirectory(root, false)
	if err != nil {
		t.Fatalf("Failed to resolve first run: %v", err)
	}
	resumed, err := ResolveRunDirectory(root, true)
	if err != nil {
		t.Fatalf("Failed to resolve resumed run: %v", err)
	}

	// A resumed run shares the run root but logs into its own directory
	// unless both resolutions land within the same second.
	if !strings.HasPrefix(resumed.LogDir, resumed.ModelDir) {
		t.Errorf("LogDir %s should live under ModelDir %s", resumed.LogDir, resumed.ModelDir)
	}
	if resumed.ModelDir != first.ModelDir {
		t.Errorf("Resumed ModelDir = %s, expected %s", resumed.ModelDir, first.ModelDir)
	}
}
