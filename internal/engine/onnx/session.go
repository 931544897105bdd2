package onnx

import (
	"fmt"
	"sync"

	"github.com/born-ml/vision/internal/engine"
	"github.com/born-ml/vision/internal/provider"
	"github.com/born-ml/vision/internal/tensor"
)

// session is a compiled model bound to an execution provider.
// Immutable after Load; concurrent Run calls are safe because all
// per-run state lives in the local tensors map.
type session struct {
	weights     map[string]*tensor.Raw
	nodes       []nodeProto
	order       []nodeProto // cached topological order, nil when reuseOrder is off
	aliases     map[string]string
	inputNames  []string
	outputNames []string
	inputDims   []int64
	compute     provider.Compute
	arena       bool
	reuseOrder  bool
	closeOnce   sync.Once
}

// InputNames returns the model's declared input tensor names.
func (s *session) InputNames() []string {
	return s.inputNames
}

// OutputNames returns the model's declared output tensor names.
func (s *session) OutputNames() []string {
	return s.outputNames
}

// InputDims returns the declared dims of the first input, -1 for dynamic.
func (s *session) InputDims() []int64 {
	return s.inputDims
}

// Close releases the execution provider.
func (s *session) Close() {
	s.closeOnce.Do(s.compute.Release)
}

// Run executes the graph with the given named inputs.
func (s *session) Run(inputs map[string]*tensor.Raw) (map[string]*tensor.Raw, error) {
	for _, name := range s.inputNames {
		in, ok := inputs[name]
		if !ok {
			return nil, &engine.InferenceError{Reason: fmt.Sprintf("missing input %q", name)}
		}
		if in == nil || in.Detached() {
			return nil, &engine.InferenceError{Reason: fmt.Sprintf("input %q has no buffer", name)}
		}
	}
	if err := s.checkInputShape(inputs[s.inputNames[0]]); err != nil {
		return nil, err
	}

	order := s.order
	if order == nil {
		order = topologicalSort(s.nodes)
	}

	capacity := len(inputs)
	if s.arena {
		capacity = len(s.weights) + len(order) + len(inputs)
	}
	tensors := make(map[string]*tensor.Raw, capacity)
	for name, t := range s.weights {
		tensors[name] = t
	}
	for name, t := range inputs {
		tensors[name] = t
	}

	for i := range order {
		node := &order[i]
		nodeInputs := make([]*tensor.Raw, len(node.Inputs))
		for j, name := range node.Inputs {
			t, ok := tensors[s.resolve(name)]
			if !ok {
				return nil, &engine.InferenceError{
					Reason: fmt.Sprintf("node %s: missing input %q", node.Name, name),
				}
			}
			nodeInputs[j] = t
		}

		out, err := opRegistry[node.OpType](s, node, nodeInputs)
		if err != nil {
			return nil, &engine.InferenceError{
				Reason: fmt.Sprintf("node %s (%s)", node.Name, node.OpType),
				Err:    err,
			}
		}
		if len(node.Outputs) > 0 {
			tensors[node.Outputs[0]] = out
		}
	}

	results := make(map[string]*tensor.Raw, len(s.outputNames))
	for _, name := range s.outputNames {
		t, ok := tensors[s.resolve(name)]
		if !ok {
			return nil, &engine.InferenceError{Reason: fmt.Sprintf("missing output %q", name)}
		}
		// Outputs must not share storage with a weight or a caller
		// input: the caller owns the result and may detach it. Shape
		// ops return Reshape views, so the check is on the backing
		// buffer, not the tensor pointer.
		if s.aliasesOwnedBuffer(t, inputs) {
			clone, err := t.Clone()
			if err != nil {
				return nil, &engine.InferenceError{Reason: fmt.Sprintf("output %q", name), Err: err}
			}
			t = clone
		}
		results[name] = t
	}
	return results, nil
}

// aliasesOwnedBuffer reports whether t is backed by storage the session
// or the caller still holds: any model weight or any provided input.
func (s *session) aliasesOwnedBuffer(t *tensor.Raw, inputs map[string]*tensor.Raw) bool {
	for _, w := range s.weights {
		if t.SharesBuffer(w) {
			return true
		}
	}
	for _, in := range inputs {
		if t.SharesBuffer(in) {
			return true
		}
	}
	return false
}

// resolve follows Identity alias chains introduced by graph optimization.
func (s *session) resolve(name string) string {
	for {
		next, ok := s.aliases[name]
		if !ok {
			return name
		}
		name = next
	}
}

// checkInputShape validates the first input against the model's declared
// dims, ignoring dynamic (-1) dimensions.
func (s *session) checkInputShape(in *tensor.Raw) error {
	if len(s.inputDims) == 0 {
		return nil
	}
	shape := in.Shape()
	if len(shape) != len(s.inputDims) {
		return &engine.InferenceError{
			Reason: fmt.Sprintf("input rank %d does not match declared rank %d", len(shape), len(s.inputDims)),
		}
	}
	for i, dim := range s.inputDims {
		// Non-positive declared dims are dynamic.
		if dim > 0 && int64(shape[i]) != dim {
			return &engine.InferenceError{
				Reason: fmt.Sprintf("input shape %v does not match declared dims %v", shape, s.inputDims),
			}
		}
	}
	return nil
}
