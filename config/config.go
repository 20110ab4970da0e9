package config

import (
	"os"

	yaml "github.com/goccy/go-yaml"

	"github.com/taskweave/go-tasking/core"
)

// File mirrors the scheduler section of a tasking config file.
type File struct {
	Workers            int `yaml:"workers"`              // runtime.NumCPU() (by default)
	DequeCapacity      int `yaml:"deque_capacity"`       // 8192 (by default)
	ChunkTasks         int `yaml:"chunk_tasks"`          // 64 (by default)
	CacheHighWatermark int `yaml:"cache_high_watermark"` // 128 (by default)
	StealAttempts      int `yaml:"steal_attempts"`       // 2*workers (by default)
	SpinBeforePark     int `yaml:"spin_before_park"`     // 64 (by default)
}

// Load reads YAML and overrides defaults; empty path = defaults only.
// If the config file is not found, the defaults are used.
func Load(path string) *core.TaskSchedulerConfig {
	cfg := core.DefaultTaskSchedulerConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	var f File
	_ = yaml.Unmarshal(data, &f)

	// sanity clamps
	if f.Workers > 0 {
		cfg.Workers = f.Workers
	}
	if f.DequeCapacity > 0 {
		cfg.DequeCapacity = f.DequeCapacity
	}
	if f.ChunkTasks > 0 {
		cfg.AllocatorChunkTasks = f.ChunkTasks
	}
	if f.CacheHighWatermark > 0 {
		cfg.CacheHighWatermark = f.CacheHighWatermark
	}
	if f.StealAttempts > 0 {
		cfg.StealAttempts = f.StealAttempts
	}
	if f.SpinBeforePark > 0 {
		cfg.SpinBeforePark = f.SpinBeforePark
	}

	return cfg
}
