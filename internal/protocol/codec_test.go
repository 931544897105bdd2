package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/born-ml/vision/internal/engine"
	"github.com/born-ml/vision/internal/pipeline"
	"github.com/born-ml/vision/internal/worker"
)

func TestInitRoundTrip(t *testing.T) {
	opts := engine.DefaultOptions()
	opts.Providers = []string{"cpu"}
	opts.Optimization = engine.OptAll
	opts.ParallelExecution = false

	raw, err := EncodeInbound(worker.Init{
		ModelPath: "models/detector.onnx",
		Options:   opts,
	})
	require.NoError(t, err)

	msg, err := DecodeInbound(raw)
	require.NoError(t, err)
	init, ok := msg.(worker.Init)
	require.True(t, ok, "expected Init, got %T", msg)
	assert.Equal(t, "models/detector.onnx", init.ModelPath)
	assert.Empty(t, init.ModelBytes)
	assert.Equal(t, []string{"cpu"}, init.Options.Providers)
	assert.Equal(t, engine.OptAll, init.Options.Optimization)
	assert.False(t, init.Options.ParallelExecution)
	assert.True(t, init.Options.MemoryArena)
}

func TestInitDefaultsWhenOptionsOmitted(t *testing.T) {
	data, err := msgpack.Marshal(InitPayload{ModelBytes: []byte{0x08}})
	require.NoError(t, err)
	raw, err := msgpack.Marshal(Envelope{Type: TypeInit, Data: data})
	require.NoError(t, err)

	msg, err := DecodeInbound(raw)
	require.NoError(t, err)
	init := msg.(worker.Init)
	assert.Equal(t, engine.DefaultOptions(), init.Options)
}

func TestInitRejectsUnknownOptimization(t *testing.T) {
	data, err := msgpack.Marshal(InitPayload{Options: SessionOptions{Optimization: "extreme"}})
	require.NoError(t, err)
	raw, err := msgpack.Marshal(Envelope{Type: TypeInit, Data: data})
	require.NoError(t, err)

	_, err = DecodeInbound(raw)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "extreme")
}

func TestProcessFrameRoundTrip(t *testing.T) {
	pixels := make([]byte, 2*2*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	raw, err := EncodeInbound(worker.ProcessFrame{Frame: pipeline.Frame{
		Data:      pixels,
		Width:     2,
		Height:    2,
		ID:        42,
		Timestamp: 1234.5,
	}})
	require.NoError(t, err)

	msg, err := DecodeInbound(raw)
	require.NoError(t, err)
	pf, ok := msg.(worker.ProcessFrame)
	require.True(t, ok, "expected ProcessFrame, got %T", msg)
	assert.Equal(t, uint64(42), pf.Frame.ID)
	assert.Equal(t, 1234.5, pf.Frame.Timestamp)
	assert.Equal(t, uint32(2), pf.Frame.Width)
	assert.Equal(t, uint32(2), pf.Frame.Height)
	assert.Equal(t, pixels, pf.Frame.Data)
}

func TestFrameProcessedRoundTrip(t *testing.T) {
	raw, err := EncodeOutbound(worker.FrameProcessed{
		FrameID:   7,
		Timestamp: 0.25,
		Output:    worker.Output{Data: []float32{0.1, 0.9}, Dims: []int{1, 2}},
		Timings: pipeline.Timings{
			Preprocess: 2 * time.Millisecond,
			Inference:  15 * time.Millisecond,
			Total:      18 * time.Millisecond,
		},
	})
	require.NoError(t, err)

	ev, err := DecodeOutbound(raw)
	require.NoError(t, err)
	res, ok := ev.(worker.FrameProcessed)
	require.True(t, ok, "expected FrameProcessed, got %T", ev)
	assert.Equal(t, uint64(7), res.FrameID)
	assert.Equal(t, 0.25, res.Timestamp)
	assert.Equal(t, []float32{0.1, 0.9}, res.Output.Data)
	assert.Equal(t, []int{1, 2}, res.Output.Dims)
	assert.Equal(t, 15*time.Millisecond, res.Timings.Inference)
}

func TestErrorRoundTrip(t *testing.T) {
	id := uint64(3)
	raw, err := EncodeOutbound(worker.Error{Cause: "frame 3 failed at encode stage", FrameID: &id})
	require.NoError(t, err)

	ev, err := DecodeOutbound(raw)
	require.NoError(t, err)
	errEv, ok := ev.(worker.Error)
	require.True(t, ok, "expected Error, got %T", ev)
	assert.Equal(t, "frame 3 failed at encode stage", errEv.Cause)
	require.NotNil(t, errEv.FrameID)
	assert.Equal(t, uint64(3), *errEv.FrameID)

	raw, err = EncodeOutbound(worker.Error{Cause: "load failed"})
	require.NoError(t, err)
	ev, err = DecodeOutbound(raw)
	require.NoError(t, err)
	assert.Nil(t, ev.(worker.Error).FrameID)
}

func TestModelLoadedRoundTrip(t *testing.T) {
	raw, err := EncodeOutbound(worker.ModelLoaded{
		InputNames:  []string{"images"},
		OutputNames: []string{"output0"},
	})
	require.NoError(t, err)

	ev, err := DecodeOutbound(raw)
	require.NoError(t, err)
	loaded, ok := ev.(worker.ModelLoaded)
	require.True(t, ok, "expected ModelLoaded, got %T", ev)
	assert.Equal(t, []string{"images"}, loaded.InputNames)
	assert.Equal(t, []string{"output0"}, loaded.OutputNames)
}

func TestUnknownInboundTypeRejected(t *testing.T) {
	raw, err := msgpack.Marshal(Envelope{Type: "SHUTDOWN", Data: []byte{0xc0}})
	require.NoError(t, err)

	_, err = DecodeInbound(raw)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "SHUTDOWN")
}

func TestMalformedEnvelopeRejected(t *testing.T) {
	_, err := DecodeInbound([]byte{0xd9, 0xff})
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "malformed envelope", perr.Reason)
}
