// Package cpu implements the pure-Go execution provider.
// Element-wise operations are chunked across goroutines for large tensors.
package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/provider"
	"github.com/born-ml/vision/internal/tensor"
)

// Provider executes tensor operations on the CPU.
type Provider struct {
	cfg parallel.Config
}

// New creates a CPU provider with default parallelism.
// The CPU provider is always available.
func New() (provider.Compute, error) {
	return &Provider{cfg: parallel.DefaultConfig()}, nil
}

// NewWithConfig creates a CPU provider with an explicit parallelism config.
func NewWithConfig(cfg parallel.Config) *Provider {
	return &Provider{cfg: cfg}
}

// Name returns "cpu".
func (p *Provider) Name() string {
	return "cpu"
}

// Release is a no-op; the CPU provider holds no external resources.
func (p *Provider) Release() {}

// Binary executes an element-wise binary operation.
// A single-element right operand is broadcast across the left operand.
func (p *Provider) Binary(op provider.BinaryOp, a, b *tensor.Raw) (*tensor.Raw, error) {
	if a.Detached() || b.Detached() {
		return nil, tensor.ErrDetached
	}

	scalar := b.NumElements() == 1
	if !scalar && !a.Shape().Equal(b.Shape()) {
		return nil, fmt.Errorf("cpu: %s shape mismatch: %v vs %v", op, a.Shape(), b.Shape())
	}

	out, err := tensor.New(a.Shape())
	if err != nil {
		return nil, err
	}

	av, bv, ov := a.Data(), b.Data(), out.Data()
	var f func(x, y float32) float32
	switch op {
	case provider.Add:
		f = func(x, y float32) float32 { return x + y }
	case provider.Sub:
		f = func(x, y float32) float32 { return x - y }
	case provider.Mul:
		f = func(x, y float32) float32 { return x * y }
	case provider.Div:
		f = func(x, y float32) float32 { return x / y }
	default:
		return nil, fmt.Errorf("cpu: unsupported binary op %d", op)
	}

	parallel.Range(len(av), func(start, end int) {
		if scalar {
			y := bv[0]
			for i := start; i < end; i++ {
				ov[i] = f(av[i], y)
			}
			return
		}
		for i := start; i < end; i++ {
			ov[i] = f(av[i], bv[i])
		}
	}, p.cfg)

	return out, nil
}

// Unary executes an element-wise unary operation.
func (p *Provider) Unary(op provider.UnaryOp, x *tensor.Raw) (*tensor.Raw, error) {
	if x.Detached() {
		return nil, tensor.ErrDetached
	}

	out, err := tensor.New(x.Shape())
	if err != nil {
		return nil, err
	}

	xv, ov := x.Data(), out.Data()
	var f func(v float32) float32
	switch op {
	case provider.Relu:
		f = func(v float32) float32 {
			if v > 0 {
				return v
			}
			return 0
		}
	case provider.Sigmoid:
		f = func(v float32) float32 {
			return float32(1.0 / (1.0 + math.Exp(-float64(v))))
		}
	default:
		return nil, fmt.Errorf("cpu: unsupported unary op %d", op)
	}

	parallel.Range(len(xv), func(start, end int) {
		for i := start; i < end; i++ {
			ov[i] = f(xv[i])
		}
	}, p.cfg)

	return out, nil
}

// MatMul multiplies two rank-2 tensors: (m,k) x (k,n) -> (m,n).
func (p *Provider) MatMul(a, b *tensor.Raw) (*tensor.Raw, error) {
	if a.Detached() || b.Detached() {
		return nil, tensor.ErrDetached
	}

	as, bs := a.Shape(), b.Shape()
	if len(as) != 2 || len(bs) != 2 {
		return nil, fmt.Errorf("cpu: matmul requires rank-2 tensors, got %v x %v", as, bs)
	}
	if as[1] != bs[0] {
		return nil, fmt.Errorf("cpu: matmul inner dimension mismatch: %v x %v", as, bs)
	}

	m, k, n := as[0], as[1], bs[1]
	out, err := tensor.New(tensor.Shape{m, n})
	if err != nil {
		return nil, err
	}

	av, bv, ov := a.Data(), b.Data(), out.Data()
	parallel.Range(m, func(start, end int) {
		for i := start; i < end; i++ {
			for l := 0; l < k; l++ {
				x := av[i*k+l]
				if x == 0 {
					continue
				}
				row := bv[l*n:]
				outRow := ov[i*n:]
				for j := 0; j < n; j++ {
					outRow[j] += x * row[j]
				}
			}
		}
	}, p.cfg)

	return out, nil
}
