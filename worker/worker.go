// Package worker provides the background vision inference worker.
//
// A Worker accepts raw RGBA frames, converts them to normalized CHW
// float32 tensors, runs them through an ONNX inference session, and
// delivers results asynchronously. Each submitted frame carries a
// caller-assigned FrameID and is answered by exactly one event, so
// responses can be correlated even when inferences finish out of
// submission order.
//
// # Example Usage
//
//	import (
//	    "context"
//
//	    "github.com/born-ml/vision/worker"
//	)
//
//	w := worker.New()
//	go w.Run(context.Background())
//
//	w.Submit(worker.Init{ModelPath: "detector.onnx", Options: worker.DefaultOptions()})
//	w.Submit(worker.ProcessFrame{Frame: worker.Frame{
//	    Data:  pixels, // RGBA8, len == width*height*4
//	    Width: 640, Height: 640, ID: 1,
//	}})
//
//	for ev := range w.Events() {
//	    switch e := ev.(type) {
//	    case worker.ModelLoaded:
//	        // session ready; e.InputNames / e.OutputNames
//	    case worker.FrameProcessed:
//	        // e.FrameID correlates, e.Output.Data is owned by you
//	    case worker.Error:
//	        // e.FrameID nil means a failed load
//	    }
//	}
//
// # Execution Providers
//
// Sessions prefer the GPU (WebGPU) and fall back to the CPU provider;
// set Options.Providers to pin one. The CPU provider parallelizes
// elementwise kernels across goroutines unless ParallelExecution is
// disabled.
package worker

import (
	"github.com/born-ml/vision/internal/engine"
	"github.com/born-ml/vision/internal/engine/onnx"
	"github.com/born-ml/vision/internal/pipeline"
	internalworker "github.com/born-ml/vision/internal/worker"
)

// Worker is the message-driven inference loop. Create one with [New],
// start it with Run, and talk to it through Submit and Events.
type Worker = internalworker.Worker

// State is the worker lifecycle phase observable by the host.
type State = internalworker.State

// Worker lifecycle phases.
const (
	StateUninitialized = internalworker.StateUninitialized
	StateLoading       = internalworker.StateLoading
	StateReady         = internalworker.StateReady
	StateProcessing    = internalworker.StateProcessing
	StateFailed        = internalworker.StateFailed
)

// Frame is a raw RGBA camera frame.
type Frame = pipeline.Frame

// Timings records per-stage durations for one frame.
type Timings = pipeline.Timings

// Inbound is the sealed set of worker commands.
type Inbound = internalworker.Inbound

// Init loads a model from a path or inline bytes.
type Init = internalworker.Init

// ProcessFrame submits one frame for inference.
type ProcessFrame = internalworker.ProcessFrame

// Outbound is the sealed set of worker events.
type Outbound = internalworker.Outbound

// ModelLoaded reports a successful Init.
type ModelLoaded = internalworker.ModelLoaded

// FrameProcessed is the successful response for one frame.
type FrameProcessed = internalworker.FrameProcessed

// Output is a result tensor whose storage is owned by the recipient.
type Output = internalworker.Output

// Error reports a failed load (FrameID nil) or a failed frame.
type Error = internalworker.Error

// Options configures session creation.
type Options = engine.Options

// Optimization levels for Options.Optimization.
const (
	OptDisable = engine.OptDisable
	OptBasic   = engine.OptBasic
	OptAll     = engine.OptAll
)

// DefaultOptions prefers the GPU with CPU fallback and basic
// optimization.
func DefaultOptions() Options {
	return engine.DefaultOptions()
}

// Option configures a Worker at creation time.
type Option = internalworker.Option

// WithLogger sets the worker's logger.
var WithLogger = internalworker.WithLogger

// WithQueueDepth sets the command and event channel capacity.
var WithQueueDepth = internalworker.WithQueueDepth

// New creates a worker backed by the built-in ONNX engine with the
// standard provider set. Call Run to start consuming commands.
func New(opts ...Option) *Worker {
	return internalworker.New(onnx.Default(), opts...)
}
