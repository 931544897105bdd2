// Package provider defines the execution-provider abstraction: a backend
// capable of running the tensor operations an inference graph needs.
//
// Providers are resolved from an ordered preference list; the first one
// that initializes wins. A provider that is compiled in but unavailable at
// runtime (no GPU, missing native library) fails initialization and the
// next preference is tried.
package provider

import (
	"fmt"
	"strings"

	"github.com/born-ml/vision/internal/tensor"
)

// BinaryOp identifies an element-wise binary operation.
type BinaryOp int

// Supported binary operations.
const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
)

// String returns the operation name.
func (op BinaryOp) String() string {
	switch op {
	case Add:
		return "add"
	case Sub:
		return "sub"
	case Mul:
		return "mul"
	case Div:
		return "div"
	default:
		return "unknown"
	}
}

// UnaryOp identifies an element-wise unary operation.
type UnaryOp int

// Supported unary operations.
const (
	Relu UnaryOp = iota
	Sigmoid
)

// String returns the operation name.
func (op UnaryOp) String() string {
	switch op {
	case Relu:
		return "relu"
	case Sigmoid:
		return "sigmoid"
	default:
		return "unknown"
	}
}

// Compute executes tensor operations on a particular backend.
//
// Binary requires equal shapes, or a scalar (single-element) right operand
// which is broadcast. MatMul operates on rank-2 tensors.
type Compute interface {
	Name() string
	Binary(op BinaryOp, a, b *tensor.Raw) (*tensor.Raw, error)
	Unary(op UnaryOp, x *tensor.Raw) (*tensor.Raw, error)
	MatMul(a, b *tensor.Raw) (*tensor.Raw, error)
	Release()
}

// Factory creates a Compute, failing if the backend is unavailable.
type Factory func() (Compute, error)

// Resolve walks preferences in order and returns the first provider that
// initializes, along with its name. Unknown names are skipped silently so
// hosts can list providers this build does not include.
func Resolve(preferences []string, factories map[string]Factory) (Compute, error) {
	var attempts []string
	for _, name := range preferences {
		factory, ok := factories[name]
		if !ok {
			continue
		}
		c, err := factory()
		if err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		return c, nil
	}
	if len(attempts) == 0 {
		return nil, fmt.Errorf("no usable execution provider in preferences %v", preferences)
	}
	return nil, fmt.Errorf("all execution providers failed: %s", strings.Join(attempts, "; "))
}
