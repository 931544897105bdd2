package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/engine"
	"github.com/born-ml/vision/internal/session"
	"github.com/born-ml/vision/internal/tensor"
)

// echoSession returns its input tensor as the output.
type echoSession struct {
	dims    []int64
	runFunc func(map[string]*tensor.Raw) (map[string]*tensor.Raw, error)
}

func (s *echoSession) InputNames() []string  { return []string{"images"} }
func (s *echoSession) OutputNames() []string { return []string{"output0"} }
func (s *echoSession) InputDims() []int64    { return s.dims }
func (s *echoSession) Close()                {}

func (s *echoSession) Run(inputs map[string]*tensor.Raw) (map[string]*tensor.Raw, error) {
	if s.runFunc != nil {
		return s.runFunc(inputs)
	}
	out, err := inputs["images"].Clone()
	if err != nil {
		return nil, err
	}
	return map[string]*tensor.Raw{"output0": out}, nil
}

type echoEngine struct {
	session *echoSession
}

func (e *echoEngine) Load([]byte, engine.Options) (engine.Session, error) {
	return e.session, nil
}

func readyPipeline(t *testing.T, s *echoSession) *Pipeline {
	t.Helper()
	m := session.New(&echoEngine{session: s}, nil)
	_, err := m.Load([]byte("model"), engine.DefaultOptions())
	require.NoError(t, err)
	return New(m)
}

func rgbaFrame(id uint64, w, h uint32) Frame {
	return Frame{
		Data:      make([]byte, int(w)*int(h)*4),
		Width:     w,
		Height:    h,
		ID:        id,
		Timestamp: 123.5,
	}
}

func TestProcessNotInitialized(t *testing.T) {
	p := New(session.New(&echoEngine{session: &echoSession{}}, nil))

	res, perr := p.Process(rgbaFrame(7, 2, 2))
	require.Nil(t, res)
	require.NotNil(t, perr)
	assert.Equal(t, StageGuard, perr.Stage)
	assert.Equal(t, uint64(7), perr.FrameID)
	assert.Contains(t, perr.Error(), "not initialized")
}

func TestProcessHappyPath(t *testing.T) {
	p := readyPipeline(t, &echoSession{dims: []int64{1, 3, 2, 2}})

	res, perr := p.Process(rgbaFrame(42, 2, 2))
	require.Nil(t, perr)
	require.NotNil(t, res)

	assert.Equal(t, uint64(42), res.FrameID)
	assert.Equal(t, 123.5, res.Timestamp)
	assert.Equal(t, uint64(1), res.Generation)
	require.NotNil(t, res.Output)
	assert.Equal(t, 3*2*2, res.Output.NumElements())

	// All-zero frame yields an all-zero tensor through the echo model.
	for i, v := range res.Output.Data() {
		if v != 0 {
			t.Fatalf("Output[%d] = %f, want 0", i, v)
		}
	}

	assert.GreaterOrEqual(t, res.Timings.Total, res.Timings.Preprocess)
	assert.GreaterOrEqual(t, res.Timings.Total, res.Timings.Inference)
}

func TestProcessDimensionMismatch(t *testing.T) {
	p := readyPipeline(t, &echoSession{dims: []int64{1, 3, 640, 640}})

	res, perr := p.Process(rgbaFrame(3, 320, 320))
	require.Nil(t, res)
	require.NotNil(t, perr)
	assert.Equal(t, StageGuard, perr.Stage)
	assert.Contains(t, perr.Error(), "does not match model input")
}

func TestProcessDynamicDimsPass(t *testing.T) {
	p := readyPipeline(t, &echoSession{dims: []int64{1, 3, -1, -1}})

	res, perr := p.Process(rgbaFrame(1, 8, 6))
	require.Nil(t, perr)
	assert.Equal(t, 3*8*6, res.Output.NumElements())
}

func TestProcessEncodeFailure(t *testing.T) {
	p := readyPipeline(t, &echoSession{})

	frame := rgbaFrame(9, 4, 4)
	frame.Data = frame.Data[:7] // corrupt length

	res, perr := p.Process(frame)
	require.Nil(t, res)
	require.NotNil(t, perr)
	assert.Equal(t, StageEncode, perr.Stage)
	assert.Equal(t, uint64(9), perr.FrameID)
}

func TestProcessInferFailure(t *testing.T) {
	fault := &engine.InferenceError{Reason: "provider fault"}
	s := &echoSession{
		runFunc: func(map[string]*tensor.Raw) (map[string]*tensor.Raw, error) {
			return nil, fault
		},
	}
	p := readyPipeline(t, s)

	res, perr := p.Process(rgbaFrame(11, 2, 2))
	require.Nil(t, res)
	require.NotNil(t, perr)
	assert.Equal(t, StageInfer, perr.Stage)
	assert.Equal(t, uint64(11), perr.FrameID)

	var infErr *engine.InferenceError
	assert.True(t, errors.As(perr, &infErr))
}
