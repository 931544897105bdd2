// Package onnx implements the inference engine over ONNX model bytes:
// a hand-written protobuf parser, graph compilation, and node execution
// on a resolved execution provider.
//
// The operator set covers the element-wise and dense operations a
// detection head needs; loading a model with anything else fails with a
// typed load error rather than producing wrong results at run time.
package onnx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/born-ml/vision/internal/engine"
	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/provider"
	"github.com/born-ml/vision/internal/provider/cpu"
	"github.com/born-ml/vision/internal/provider/webgpu"
	"github.com/born-ml/vision/internal/tensor"
)

// Engine loads ONNX model bytes into executable sessions.
type Engine struct {
	factories map[string]provider.Factory
}

// New creates an engine with an explicit provider factory set.
func New(factories map[string]provider.Factory) *Engine {
	return &Engine{factories: factories}
}

// Default creates an engine with the built-in providers.
func Default() *Engine {
	return New(map[string]provider.Factory{
		"cpu":    cpu.New,
		"webgpu": webgpu.New,
	})
}

// Load parses and compiles model bytes into a session.
func (e *Engine) Load(modelBytes []byte, opts engine.Options) (engine.Session, error) {
	proto, err := parseModel(modelBytes)
	if err != nil {
		return nil, &engine.LoadError{Reason: "malformed model bytes", Err: err}
	}

	graph := proto.Graph
	for i := range graph.Nodes {
		if _, ok := opRegistry[graph.Nodes[i].OpType]; !ok {
			return nil, &engine.LoadError{
				Reason: fmt.Sprintf("unsupported operator %q", graph.Nodes[i].OpType),
			}
		}
	}

	weights, err := loadInitializers(graph)
	if err != nil {
		return nil, &engine.LoadError{Reason: "bad initializer", Err: err}
	}

	s := &session{
		weights:    weights,
		aliases:    make(map[string]string),
		arena:      opts.MemoryArena,
		reuseOrder: opts.MemoryPatternReuse,
	}

	// Graph inputs minus initializers are the caller-provided inputs.
	for i := range graph.Inputs {
		in := &graph.Inputs[i]
		if _, isWeight := weights[in.Name]; isWeight {
			continue
		}
		s.inputNames = append(s.inputNames, in.Name)
		if len(s.inputNames) == 1 {
			s.inputDims = append([]int64(nil), in.Dims...)
		}
	}
	for i := range graph.Outputs {
		s.outputNames = append(s.outputNames, graph.Outputs[i].Name)
	}
	if len(s.inputNames) == 0 {
		return nil, &engine.LoadError{Reason: "model declares no inputs"}
	}
	if len(s.outputNames) == 0 {
		return nil, &engine.LoadError{Reason: "model declares no outputs"}
	}

	s.nodes = graph.Nodes
	if opts.Optimization >= engine.OptBasic {
		s.nodes = pruneIdentity(s.nodes, s.aliases)
	}
	if s.reuseOrder {
		s.order = topologicalSort(s.nodes)
	}

	compute, err := provider.Resolve(opts.Providers, e.factories)
	if err != nil {
		return nil, &engine.LoadError{Reason: "no execution provider available", Err: err}
	}
	if compute.Name() == "cpu" && !opts.ParallelExecution {
		compute.Release()
		compute = cpu.NewWithConfig(parallel.Sequential())
	}
	s.compute = compute

	return s, nil
}

// loadInitializers converts weight tensors. Only float32 weights are
// supported; anything else is a load failure.
func loadInitializers(graph *graphProto) (map[string]*tensor.Raw, error) {
	weights := make(map[string]*tensor.Raw, len(graph.Initializers))
	for i := range graph.Initializers {
		init := &graph.Initializers[i]
		if init.DataType != dtypeFloat32 {
			return nil, fmt.Errorf("initializer %q has unsupported dtype %d (only float32)", init.Name, init.DataType)
		}

		shape := make(tensor.Shape, len(init.Dims))
		for j, dim := range init.Dims {
			shape[j] = int(dim)
		}

		var data []float32
		switch {
		case len(init.RawData) > 0:
			if len(init.RawData)%4 != 0 {
				return nil, fmt.Errorf("initializer %q raw data length %d not a multiple of 4", init.Name, len(init.RawData))
			}
			data = make([]float32, len(init.RawData)/4)
			for j := range data {
				data[j] = math.Float32frombits(binary.LittleEndian.Uint32(init.RawData[j*4:]))
			}
		default:
			data = append([]float32(nil), init.FloatData...)
		}

		t, err := tensor.FromSlice(data, shape)
		if err != nil {
			return nil, fmt.Errorf("initializer %q: %w", init.Name, err)
		}
		weights[init.Name] = t
	}
	return weights, nil
}

// pruneIdentity removes Identity nodes, recording output -> input aliases
// resolved at execution time.
func pruneIdentity(nodes []nodeProto, aliases map[string]string) []nodeProto {
	kept := make([]nodeProto, 0, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if n.OpType == "Identity" && len(n.Inputs) == 1 && len(n.Outputs) == 1 {
			aliases[n.Outputs[0]] = n.Inputs[0]
			continue
		}
		kept = append(kept, *n)
	}
	return kept
}

// topologicalSort orders nodes so dependencies execute before dependents.
func topologicalSort(nodes []nodeProto) []nodeProto {
	outputToNode := make(map[string]int)
	for i := range nodes {
		for _, output := range nodes[i].Outputs {
			outputToNode[output] = i
		}
	}

	visited := make([]bool, len(nodes))
	result := make([]nodeProto, 0, len(nodes))

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		for _, input := range nodes[i].Inputs {
			if depIdx, ok := outputToNode[input]; ok {
				visit(depIdx)
			}
		}
		result = append(result, nodes[i])
	}

	for i := range nodes {
		visit(i)
	}
	return result
}
