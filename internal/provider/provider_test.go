package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/tensor"
)

type stubCompute struct {
	name string
}

func (s *stubCompute) Name() string { return s.name }
func (s *stubCompute) Binary(op BinaryOp, a, b *tensor.Raw) (*tensor.Raw, error) {
	return nil, errors.New("not implemented")
}
func (s *stubCompute) Unary(op UnaryOp, x *tensor.Raw) (*tensor.Raw, error) {
	return nil, errors.New("not implemented")
}
func (s *stubCompute) MatMul(a, b *tensor.Raw) (*tensor.Raw, error) {
	return nil, errors.New("not implemented")
}
func (s *stubCompute) Release() {}

func available(name string) Factory {
	return func() (Compute, error) { return &stubCompute{name: name}, nil }
}

func unavailable(reason string) Factory {
	return func() (Compute, error) { return nil, errors.New(reason) }
}

func TestResolveFirstAvailableWins(t *testing.T) {
	factories := map[string]Factory{
		"gpu": available("gpu"),
		"cpu": available("cpu"),
	}
	c, err := Resolve([]string{"gpu", "cpu"}, factories)
	require.NoError(t, err)
	assert.Equal(t, "gpu", c.Name())
}

func TestResolveFallsBackPastFailure(t *testing.T) {
	factories := map[string]Factory{
		"gpu": unavailable("no adapter"),
		"cpu": available("cpu"),
	}
	c, err := Resolve([]string{"gpu", "cpu"}, factories)
	require.NoError(t, err)
	assert.Equal(t, "cpu", c.Name())
}

func TestResolveSkipsUnknownNames(t *testing.T) {
	factories := map[string]Factory{"cpu": available("cpu")}
	c, err := Resolve([]string{"cuda", "cpu"}, factories)
	require.NoError(t, err)
	assert.Equal(t, "cpu", c.Name())
}

func TestResolveAllFailed(t *testing.T) {
	factories := map[string]Factory{
		"gpu": unavailable("no adapter"),
	}
	_, err := Resolve([]string{"gpu"}, factories)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no adapter")
}

func TestResolveNothingUsable(t *testing.T) {
	_, err := Resolve([]string{"cuda"}, map[string]Factory{"cpu": available("cpu")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable execution provider")
}

func TestOpNames(t *testing.T) {
	assert.Equal(t, "add", Add.String())
	assert.Equal(t, "div", Div.String())
	assert.Equal(t, "sigmoid", Sigmoid.String())
	assert.Equal(t, "unknown", BinaryOp(99).String())
}
