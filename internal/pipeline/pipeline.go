// Package pipeline orchestrates one frame's journey: readiness guard,
// pixel-to-tensor encoding, inference, and result packaging with
// per-stage timing from the monotonic clock.
package pipeline

import (
	"fmt"
	"time"

	"github.com/born-ml/vision/internal/codec"
	"github.com/born-ml/vision/internal/session"
	"github.com/born-ml/vision/internal/tensor"
)

// Frame is a raw camera frame handed to the worker.
// Ownership of Data transfers to the pipeline for the duration of
// processing; the buffer is not retained after the result is delivered.
type Frame struct {
	Data      []byte  // interleaved RGBA8, len == Width*Height*4
	Width     uint32  // pixels
	Height    uint32  // pixels
	ID        uint64  // caller-assigned correlation token
	Timestamp float64 // capture time, host clock, passed through untouched
}

// Timings records per-stage durations for one frame.
type Timings struct {
	Preprocess time.Duration
	Inference  time.Duration
	Total      time.Duration
}

// Result is the outcome of one processed frame. Output ownership
// transfers to the receiver; the pipeline keeps no reference.
type Result struct {
	FrameID    uint64
	Timestamp  float64
	Output     *tensor.Raw
	Timings    Timings
	Generation uint64 // session generation the inference ran under
}

// Stage identifies where in the pipeline a frame failed.
type Stage string

// Pipeline stages, in execution order.
const (
	StageGuard  Stage = "guard"
	StageEncode Stage = "encode"
	StageInfer  Stage = "infer"
)

// Error is a frame-processing failure tagged with the originating stage
// and frame id, so the caller can correlate failures with specific
// frames without blocking others.
type Error struct {
	Stage   Stage
	FrameID uint64
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("frame %d failed at %s stage: %v", e.FrameID, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Pipeline processes frames against a session manager.
type Pipeline struct {
	sessions *session.Manager
}

// New creates a pipeline over the given session manager.
func New(sessions *session.Manager) *Pipeline {
	return &Pipeline{sessions: sessions}
}

// Process runs one frame through guard, encode, and infer, and packages
// the result. Every failure path returns a typed *Error; nothing panics
// across this boundary.
func (p *Pipeline) Process(frame Frame) (*Result, *Error) {
	start := time.Now()

	if !p.sessions.IsReady() {
		return nil, &Error{Stage: StageGuard, FrameID: frame.ID, Err: fmt.Errorf("not initialized")}
	}
	if err := p.checkDims(frame); err != nil {
		return nil, &Error{Stage: StageGuard, FrameID: frame.ID, Err: err}
	}

	preStart := time.Now()
	input, err := codec.Encode(frame.Data, frame.Width, frame.Height)
	if err != nil {
		return nil, &Error{Stage: StageEncode, FrameID: frame.ID, Err: err}
	}
	preElapsed := time.Since(preStart)

	inferStart := time.Now()
	output, generation, err := p.sessions.Infer(input)
	if err != nil {
		return nil, &Error{Stage: StageInfer, FrameID: frame.ID, Err: err}
	}
	inferElapsed := time.Since(inferStart)

	return &Result{
		FrameID:   frame.ID,
		Timestamp: frame.Timestamp,
		Output:    output,
		Timings: Timings{
			Preprocess: preElapsed,
			Inference:  inferElapsed,
			Total:      time.Since(start),
		},
		Generation: generation,
	}, nil
}

// checkDims validates the frame's pixel dimensions against the model's
// declared spatial size. The declared layout is NCHW; dynamic dims pass.
func (p *Pipeline) checkDims(frame Frame) error {
	dims := p.sessions.InputDims()
	if len(dims) != 4 {
		return nil // model does not declare a static NCHW input
	}
	h, w := dims[2], dims[3]
	if h > 0 && int64(frame.Height) != h {
		return fmt.Errorf("frame height %d does not match model input height %d", frame.Height, h)
	}
	if w > 0 && int64(frame.Width) != w {
		return fmt.Errorf("frame width %d does not match model input width %d", frame.Width, w)
	}
	return nil
}
