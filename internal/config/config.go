// Package config handles YAML config file loading for the worker
// binary. All values are optional and act as defaults; CLI flags
// always override config values.
package config

import (
	"fmt"

	"github.com/born-ml/vision/internal/engine"
)

// Config represents a vision.yaml configuration file.
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Session SessionConfig `yaml:"session"`
	Worker  WorkerConfig  `yaml:"worker"`
	Log     LogConfig     `yaml:"log"`
}

// ModelConfig names the model to load at startup.
type ModelConfig struct {
	// Path is the ONNX model file. Empty means the worker starts
	// uninitialized and waits for an INIT message.
	Path string `yaml:"path"`
}

// SessionConfig holds session creation defaults.
type SessionConfig struct {
	// Providers is the ordered execution-provider preference list.
	Providers []string `yaml:"providers"`
	// Optimization is "disable", "basic", or "all".
	Optimization string `yaml:"optimization"`
	// SequentialExecution disables multi-goroutine operator kernels.
	SequentialExecution bool `yaml:"sequential_execution"`
	// DisableMemoryArena turns off per-run tensor storage pre-sizing.
	DisableMemoryArena bool `yaml:"disable_memory_arena"`
	// DisableMemoryPattern turns off execution-order caching.
	DisableMemoryPattern bool `yaml:"disable_memory_pattern"`
}

// WorkerConfig holds message-loop settings.
type WorkerConfig struct {
	// QueueDepth is the inbound and outbound channel capacity.
	QueueDepth int `yaml:"queue_depth"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			Providers:    []string{"webgpu", "cpu"},
			Optimization: "basic",
		},
		Worker: WorkerConfig{QueueDepth: 64},
		Log:    LogConfig{Level: "info"},
	}
}

// Validate checks field values that have a closed vocabulary.
func (c *Config) Validate() error {
	switch c.Session.Optimization {
	case "", "disable", "basic", "all":
	default:
		return fmt.Errorf("unknown optimization level %q", c.Session.Optimization)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Worker.QueueDepth < 0 {
		return fmt.Errorf("queue_depth must not be negative, got %d", c.Worker.QueueDepth)
	}
	return nil
}

// Options converts the session section into engine options, defaulting
// the fields the file leaves empty.
func (c *Config) Options() engine.Options {
	opts := engine.DefaultOptions()
	if len(c.Session.Providers) > 0 {
		opts.Providers = c.Session.Providers
	}
	switch c.Session.Optimization {
	case "disable":
		opts.Optimization = engine.OptDisable
	case "all":
		opts.Optimization = engine.OptAll
	}
	opts.ParallelExecution = !c.Session.SequentialExecution
	opts.MemoryArena = !c.Session.DisableMemoryArena
	opts.MemoryPatternReuse = !c.Session.DisableMemoryPattern
	return opts
}
