package onnx

import (
	"fmt"

	"github.com/born-ml/vision/internal/provider"
	"github.com/born-ml/vision/internal/tensor"
)

// opFunc executes one graph node. All supported ops are single-output.
type opFunc func(s *session, node *nodeProto, inputs []*tensor.Raw) (*tensor.Raw, error)

var opRegistry = map[string]opFunc{
	"Identity":  opIdentity,
	"Add":       binaryOp(provider.Add),
	"Sub":       binaryOp(provider.Sub),
	"Mul":       binaryOp(provider.Mul),
	"Div":       binaryOp(provider.Div),
	"Relu":      unaryOp(provider.Relu),
	"Sigmoid":   unaryOp(provider.Sigmoid),
	"MatMul":    opMatMul,
	"Flatten":   opFlatten,
	"Transpose": opTranspose,
}

// SupportedOps returns the operator types the engine can execute.
func SupportedOps() []string {
	ops := make([]string, 0, len(opRegistry))
	for op := range opRegistry {
		ops = append(ops, op)
	}
	return ops
}

func binaryOp(op provider.BinaryOp) opFunc {
	return func(s *session, node *nodeProto, inputs []*tensor.Raw) (*tensor.Raw, error) {
		if len(inputs) != 2 {
			return nil, fmt.Errorf("%s expects 2 inputs, got %d", node.OpType, len(inputs))
		}
		return s.compute.Binary(op, inputs[0], inputs[1])
	}
}

func unaryOp(op provider.UnaryOp) opFunc {
	return func(s *session, node *nodeProto, inputs []*tensor.Raw) (*tensor.Raw, error) {
		if len(inputs) != 1 {
			return nil, fmt.Errorf("%s expects 1 input, got %d", node.OpType, len(inputs))
		}
		return s.compute.Unary(op, inputs[0])
	}
}

// opIdentity copies its input. The copy matters: graph outputs are owned
// by the caller, which may not share a buffer with weights or inputs.
func opIdentity(_ *session, _ *nodeProto, inputs []*tensor.Raw) (*tensor.Raw, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("Identity expects 1 input, got %d", len(inputs))
	}
	return inputs[0].Clone()
}

func opMatMul(s *session, _ *nodeProto, inputs []*tensor.Raw) (*tensor.Raw, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("MatMul expects 2 inputs, got %d", len(inputs))
	}
	return s.compute.MatMul(inputs[0], inputs[1])
}

// opFlatten reshapes to 2D around the axis attribute (default 1):
// dims before the axis collapse into rows, the rest into columns.
func opFlatten(_ *session, node *nodeProto, inputs []*tensor.Raw) (*tensor.Raw, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("Flatten expects 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	shape := in.Shape()

	axis := int64(1)
	for i := range node.Attributes {
		if node.Attributes[i].Name == "axis" {
			axis = node.Attributes[i].I
		}
	}
	if axis < 0 {
		axis += int64(len(shape))
	}
	if axis < 0 || axis > int64(len(shape)) {
		return nil, fmt.Errorf("Flatten axis %d out of range for shape %v", axis, shape)
	}

	rows, cols := 1, 1
	for i, dim := range shape {
		if int64(i) < axis {
			rows *= dim
		} else {
			cols *= dim
		}
	}
	return in.Reshape(tensor.Shape{rows, cols})
}

// opTranspose permutes dimensions per the perm attribute; with no perm
// the dimensions are reversed, per the ONNX default.
func opTranspose(_ *session, node *nodeProto, inputs []*tensor.Raw) (*tensor.Raw, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("Transpose expects 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	shape := in.Shape()
	rank := len(shape)

	perm := make([]int, rank)
	for i := range perm {
		perm[i] = rank - 1 - i
	}
	for i := range node.Attributes {
		if node.Attributes[i].Name != "perm" {
			continue
		}
		ints := node.Attributes[i].Ints
		if len(ints) != rank {
			return nil, fmt.Errorf("Transpose perm length %d does not match rank %d", len(ints), rank)
		}
		seen := make([]bool, rank)
		for j, v := range ints {
			if v < 0 || v >= int64(rank) || seen[v] {
				return nil, fmt.Errorf("Transpose perm %v is not a permutation of rank %d", ints, rank)
			}
			seen[v] = true
			perm[j] = int(v)
		}
	}

	outShape := make(tensor.Shape, rank)
	for i, p := range perm {
		outShape[i] = shape[p]
	}
	out, err := tensor.New(outShape)
	if err != nil {
		return nil, err
	}

	inStrides := rowMajorStrides(shape)
	outStrides := rowMajorStrides(outShape)

	src, dst := in.Data(), out.Data()
	idx := make([]int, rank)
	for i := range src {
		// Decompose the flat source index into coordinates, then map
		// through the permutation.
		rem := i
		for d := range rank {
			idx[d] = rem / inStrides[d]
			rem %= inStrides[d]
		}
		j := 0
		for d, p := range perm {
			j += idx[p] * outStrides[d]
		}
		dst[j] = src[i]
	}
	return out, nil
}

func rowMajorStrides(shape tensor.Shape) []int {
	strides := make([]int, len(shape))
	if len(shape) == 0 {
		return strides
	}
	strides[len(shape)-1] = 1
	for i := len(shape) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * shape[i+1]
	}
	return strides
}
