// Package tensor provides the float32 tensor type used throughout the
// vision inference worker.
//
// Unlike general ML frameworks, the worker only ever moves float32 data:
// image planes in, detection tensors out. The type is deliberately small,
// a backing slice plus a shape, with an explicit ownership hand-off
// (Detach) for the zero-copy result delivery contract.
package tensor

import (
	"errors"
	"fmt"
)

// ErrDetached is returned when a tensor's buffer has been handed off.
var ErrDetached = errors.New("tensor buffer has been detached")

// Raw is a dense float32 tensor in row-major layout.
type Raw struct {
	data  []float32
	shape Shape
}

// New creates a zero-filled tensor with the given shape.
func New(shape Shape) (*Raw, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Raw{
		data:  make([]float32, shape.NumElements()),
		shape: shape.Clone(),
	}, nil
}

// FromSlice wraps an existing float32 slice without copying.
// The tensor takes ownership of the slice.
func FromSlice(data []float32, shape Shape) (*Raw, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	return &Raw{data: data, shape: shape.Clone()}, nil
}

// Shape returns the tensor's shape.
func (r *Raw) Shape() Shape {
	return r.shape
}

// NumElements returns the total number of elements.
func (r *Raw) NumElements() int {
	return r.shape.NumElements()
}

// Data returns the backing slice. Returns nil after Detach.
func (r *Raw) Data() []float32 {
	return r.data
}

// Detach transfers ownership of the backing slice to the caller.
// The tensor must not be used afterward; any subsequent Data call
// returns nil and operations on it fail with ErrDetached.
func (r *Raw) Detach() []float32 {
	data := r.data
	r.data = nil
	return data
}

// Detached reports whether the buffer has been handed off.
func (r *Raw) Detached() bool {
	return r.data == nil
}

// SharesBuffer reports whether two tensors are backed by the same
// storage. Views created by Reshape always cover the whole buffer, so
// comparing the first element's address suffices.
func (r *Raw) SharesBuffer(other *Raw) bool {
	if r == nil || other == nil || len(r.data) == 0 || len(other.data) == 0 {
		return false
	}
	return &r.data[0] == &other.data[0]
}

// Clone returns a deep copy of the tensor.
func (r *Raw) Clone() (*Raw, error) {
	if r.data == nil {
		return nil, ErrDetached
	}
	data := make([]float32, len(r.data))
	copy(data, r.data)
	return &Raw{data: data, shape: r.shape.Clone()}, nil
}

// Reshape returns a view with a new shape over the same buffer.
// The element count must match.
func (r *Raw) Reshape(shape Shape) (*Raw, error) {
	if r.data == nil {
		return nil, ErrDetached
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v to %v: element count mismatch", r.shape, shape)
	}
	return &Raw{data: r.data, shape: shape.Clone()}, nil
}
