package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/taskweave/go-tasking/core"
)

// TestLoad_EmptyPathUsesDefaults verifies default fallback
// Given: No config file path
// When: Load is called
// Then: The returned config matches the scheduler defaults
func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	// Act
	cfg := Load("")

	// Assert
	want := core.DefaultTaskSchedulerConfig()
	if cfg.Workers != want.Workers {
		t.Errorf("Workers = %d, want %d", cfg.Workers, want.Workers)
	}
	if cfg.DequeCapacity != want.DequeCapacity {
		t.Errorf("DequeCapacity = %d, want %d", cfg.DequeCapacity, want.DequeCapacity)
	}
}

// TestLoad_MissingFileUsesDefaults verifies graceful degradation
// Given: A path to a file that does not exist
// When: Load is called
// Then: The defaults come back instead of an error
func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if cfg.Workers != core.DefaultTaskSchedulerConfig().Workers {
		t.Error("missing file should fall back to defaults")
	}
}

// TestLoad_OverridesFromYAML verifies file values win over defaults
// Given: A YAML file setting workers and deque capacity
// When: Load is called
// Then: Those fields are overridden and the rest keep defaults
func TestLoad_OverridesFromYAML(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "tasking.yml")
	data := []byte("workers: 6\ndeque_capacity: 1024\nsteal_attempts: 3\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	// Act
	cfg := Load(path)

	// Assert
	if cfg.Workers != 6 {
		t.Errorf("Workers = %d, want 6", cfg.Workers)
	}
	if cfg.DequeCapacity != 1024 {
		t.Errorf("DequeCapacity = %d, want 1024", cfg.DequeCapacity)
	}
	if cfg.StealAttempts != 3 {
		t.Errorf("StealAttempts = %d, want 3", cfg.StealAttempts)
	}
	if cfg.AllocatorChunkTasks != core.DefaultTaskSchedulerConfig().AllocatorChunkTasks {
		t.Error("unset fields should keep defaults")
	}
}

// TestLoad_IgnoresNonPositiveValues verifies the sanity clamps
// Given: A YAML file with zero and negative values
// When: Load is called
// Then: The defaults survive
func TestLoad_IgnoresNonPositiveValues(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "tasking.yml")
	data := []byte("workers: 0\ndeque_capacity: -5\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	// Act
	cfg := Load(path)

	// Assert
	want := core.DefaultTaskSchedulerConfig()
	if cfg.Workers != want.Workers {
		t.Errorf("Workers = %d, want default %d", cfg.Workers, want.Workers)
	}
	if cfg.DequeCapacity != want.DequeCapacity {
		t.Errorf("DequeCapacity = %d, want default %d", cfg.DequeCapacity, want.DequeCapacity)
	}
}
