// Package engine defines the inference capability the worker builds on:
// loading model bytes into an executable session and running tensors
// through it. Implementations live in subpackages; the worker treats the
// engine as opaque.
package engine

import (
	"fmt"

	"github.com/born-ml/vision/internal/tensor"
)

// OptimizationLevel controls graph optimization aggressiveness at load time.
type OptimizationLevel int

// Optimization levels, least to most aggressive.
const (
	OptDisable OptimizationLevel = iota
	OptBasic
	OptAll
)

// Options configures session creation.
type Options struct {
	// Providers is the ordered execution-provider preference list.
	// The first provider that initializes is used.
	Providers []string

	// Optimization selects graph optimization aggressiveness.
	Optimization OptimizationLevel

	// ParallelExecution enables multi-goroutine operator kernels.
	ParallelExecution bool

	// MemoryArena pre-sizes per-run tensor storage from the graph size.
	MemoryArena bool

	// MemoryPatternReuse keeps the compiled execution order cached across
	// runs instead of recomputing it.
	MemoryPatternReuse bool
}

// DefaultOptions prefers the GPU with CPU fallback and basic optimization.
func DefaultOptions() Options {
	return Options{
		Providers:          []string{"webgpu", "cpu"},
		Optimization:       OptBasic,
		ParallelExecution:  true,
		MemoryArena:        true,
		MemoryPatternReuse: true,
	}
}

// Session is a loaded model ready for inference. Sessions are immutable
// after creation; concurrent Run calls against one session are safe.
type Session interface {
	// InputNames returns the model's declared input tensor names.
	InputNames() []string

	// OutputNames returns the model's declared output tensor names.
	OutputNames() []string

	// InputDims returns the declared dims of the first input.
	// Dynamic dimensions are reported as -1.
	InputDims() []int64

	// Run executes the model. All declared inputs must be provided.
	Run(inputs map[string]*tensor.Raw) (map[string]*tensor.Raw, error)

	// Close releases provider resources held by the session.
	Close()
}

// Engine loads model bytes into sessions.
type Engine interface {
	Load(modelBytes []byte, opts Options) (Session, error)
}

// LoadError reports a failed model load: malformed bytes, unsupported
// operators or dtypes, or no usable execution provider.
type LoadError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model load failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("model load failed: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// InferenceError reports a failed inference run: no session loaded,
// input shape mismatch, or a provider runtime fault.
type InferenceError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("inference failed: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *InferenceError) Unwrap() error {
	return e.Err
}
