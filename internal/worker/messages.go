package worker

import (
	"github.com/born-ml/vision/internal/engine"
	"github.com/born-ml/vision/internal/pipeline"
)

// Inbound is the sealed set of commands a host may send to the worker.
type Inbound interface {
	inbound()
}

// Init loads a model. Exactly one of ModelPath or ModelBytes is used;
// bytes win when both are set. Path retrieval goes through the worker's
// fetcher collaborator; the worker itself only consumes bytes.
type Init struct {
	ModelPath  string
	ModelBytes []byte
	Options    engine.Options
}

func (Init) inbound() {}

// ProcessFrame submits one frame for inference. Ownership of the
// frame's pixel buffer transfers to the worker until its response
// (FrameProcessed or Error) is emitted.
type ProcessFrame struct {
	Frame pipeline.Frame
}

func (ProcessFrame) inbound() {}

// Outbound is the sealed set of events the worker emits.
type Outbound interface {
	outbound()
}

// ModelLoaded reports a successful Init with the session's declared
// tensor names.
type ModelLoaded struct {
	InputNames  []string
	OutputNames []string
}

func (ModelLoaded) outbound() {}

// Output is a detection tensor whose storage is owned by the recipient.
// The worker holds no reference to Data after the event is emitted.
type Output struct {
	Data []float32
	Dims []int
}

// FrameProcessed is the successful response for one frame.
type FrameProcessed struct {
	FrameID   uint64
	Timestamp float64
	Output    Output
	Timings   pipeline.Timings
}

func (FrameProcessed) outbound() {}

// Error reports a failed Init (FrameID nil) or a failed frame.
type Error struct {
	Cause   string
	FrameID *uint64
}

func (Error) outbound() {}
