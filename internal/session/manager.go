// Package session owns the lifecycle of the loaded inference session.
//
// A Manager holds at most one live session. Loading a new model replaces
// the old one atomically; concurrent inference is permitted against one
// session (the handle is read-only during Run), while a load waits for
// outstanding inferences under the write lock. Every successful load
// bumps a generation counter so results produced by an inference that
// raced a reload can be detected and discarded instead of being mixed
// with the new model's outputs.
package session

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/born-ml/vision/internal/engine"
	"github.com/born-ml/vision/internal/tensor"
)

// Info describes a loaded session.
type Info struct {
	InputNames  []string
	OutputNames []string
}

// Manager guards the single live engine session.
type Manager struct {
	engine engine.Engine
	logger *zap.Logger

	mu         sync.RWMutex
	current    engine.Session
	generation uint64
}

// New creates a manager around an engine. The logger may be nil.
func New(e engine.Engine, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{engine: e, logger: logger}
}

// Load replaces the current session with one built from modelBytes.
// It waits for all in-flight inferences before swapping, releases the
// replaced session, and bumps the generation counter. On failure the
// previous session (if any) is left untouched.
func (m *Manager) Load(modelBytes []byte, opts engine.Options) (Info, error) {
	if len(modelBytes) == 0 {
		return Info{}, &engine.LoadError{Reason: "empty model bytes"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.engine.Load(modelBytes, opts)
	if err != nil {
		var loadErr *engine.LoadError
		if !errors.As(err, &loadErr) {
			err = &engine.LoadError{Reason: "engine load", Err: err}
		}
		return Info{}, err
	}

	if m.current != nil {
		m.current.Close()
	}
	m.current = next
	m.generation++

	m.logger.Info("session loaded",
		zap.Uint64("generation", m.generation),
		zap.Strings("input_names", next.InputNames()),
		zap.Strings("output_names", next.OutputNames()),
	)

	return Info{
		InputNames:  append([]string(nil), next.InputNames()...),
		OutputNames: append([]string(nil), next.OutputNames()...),
	}, nil
}

// IsReady reports whether a session is currently loaded.
func (m *Manager) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// Generation returns the current session generation. Zero means no
// session has ever been loaded.
func (m *Manager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// InputDims returns the declared dims of the session's first input,
// or nil if no session is loaded.
func (m *Manager) InputDims() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	return m.current.InputDims()
}

// Infer binds the input tensor to the session's first declared input,
// runs the model, and returns the tensor bound to the first declared
// output along with the generation it ran under.
func (m *Manager) Infer(input *tensor.Raw) (*tensor.Raw, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil, 0, &engine.InferenceError{Reason: "no session loaded"}
	}
	gen := m.generation

	inputName := m.current.InputNames()[0]
	outputs, err := m.current.Run(map[string]*tensor.Raw{inputName: input})
	if err != nil {
		var infErr *engine.InferenceError
		if !errors.As(err, &infErr) {
			err = &engine.InferenceError{Reason: "engine run", Err: err}
		}
		return nil, gen, err
	}

	outputName := m.current.OutputNames()[0]
	out, ok := outputs[outputName]
	if !ok || out == nil {
		return nil, gen, &engine.InferenceError{
			Reason: fmt.Sprintf("engine produced no tensor for output %q", outputName),
		}
	}
	return out, gen, nil
}

// Close releases the current session, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}
