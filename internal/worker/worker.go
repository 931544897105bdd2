// Package worker runs the frame-inference message loop.
//
// A Worker owns one session manager and speaks a small message protocol
// with its host: Init loads a model, ProcessFrame runs one frame, and
// every command is answered by exactly one event (ModelLoaded,
// FrameProcessed, or Error). Commands are consumed in submission order
// by a single dispatcher goroutine; each frame is then processed on its
// own goroutine, so a slow inference never blocks the inbound loop and
// completions may arrive out of order. FrameID is the correlation token.
package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/born-ml/vision/internal/engine"
	"github.com/born-ml/vision/internal/pipeline"
	"github.com/born-ml/vision/internal/session"
)

// Fetcher retrieves model bytes for an Init that names a path. The
// default fetcher reads the local filesystem.
type Fetcher func(path string) ([]byte, error)

// Worker is the message-driven inference loop.
type Worker struct {
	id       string
	sessions *session.Manager
	pipe     *pipeline.Pipeline
	logger   *zap.Logger
	fetch    Fetcher

	in  chan Inbound
	out chan Outbound

	state    atomic.Int32
	inflight atomic.Int64
	wg       sync.WaitGroup
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker's logger. A worker id field is attached.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithFetcher overrides how Init.ModelPath is resolved to bytes.
func WithFetcher(f Fetcher) Option {
	return func(w *Worker) { w.fetch = f }
}

// WithQueueDepth sets the inbound and outbound channel capacity.
func WithQueueDepth(n int) Option {
	return func(w *Worker) {
		w.in = make(chan Inbound, n)
		w.out = make(chan Outbound, n)
	}
}

// New creates a worker over the given engine. Run must be called before
// submitted commands are consumed.
func New(e engine.Engine, opts ...Option) *Worker {
	w := &Worker{
		id:    uuid.NewString(),
		fetch: os.ReadFile,
		in:    make(chan Inbound, 64),
		out:   make(chan Outbound, 64),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	w.logger = w.logger.With(zap.String("worker_id", w.id))
	w.sessions = session.New(e, w.logger)
	w.pipe = pipeline.New(w.sessions)
	w.state.Store(int32(StateUninitialized))
	return w
}

// ID returns the worker's unique id.
func (w *Worker) ID() string { return w.id }

// State returns the current lifecycle phase.
func (w *Worker) State() State { return State(w.state.Load()) }

// Submit queues one command. It blocks when the inbound queue is full.
func (w *Worker) Submit(msg Inbound) {
	w.in <- msg
}

// SubmitContext queues one command unless ctx is cancelled first.
// Hosts feeding the worker from an external stream should use this so
// a stopped worker cannot strand them on a full queue.
func (w *Worker) SubmitContext(ctx context.Context, msg Inbound) error {
	select {
	case w.in <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the channel the worker emits responses on. It is
// closed after Run returns and all in-flight frames have finished.
func (w *Worker) Events() <-chan Outbound {
	return w.out
}

// Run consumes commands until ctx is cancelled, then waits for
// in-flight frames, closes the event channel, and releases the session.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			w.sessions.Close()
			close(w.out)
			w.logger.Info("worker stopped")
			return
		case msg := <-w.in:
			w.dispatch(msg)
		}
	}
}

func (w *Worker) dispatch(msg Inbound) {
	switch m := msg.(type) {
	case Init:
		w.handleInit(m)
	case ProcessFrame:
		w.wg.Add(1)
		go w.handleFrame(m.Frame)
	default:
		// Unknown commands are logged and dropped; the loop stays alive.
		w.logger.Warn("unknown command", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// handleInit runs on the dispatcher goroutine: a load is ordered with
// respect to the frames submitted before and after it.
func (w *Worker) handleInit(m Init) {
	if w.State() == StateUninitialized || w.State() == StateFailed {
		w.state.Store(int32(StateLoading))
	}

	modelBytes := m.ModelBytes
	if len(modelBytes) == 0 && m.ModelPath != "" {
		var err error
		modelBytes, err = w.fetch(m.ModelPath)
		if err != nil {
			w.failInit(fmt.Errorf("fetch model %q: %w", m.ModelPath, err))
			return
		}
	}

	info, err := w.sessions.Load(modelBytes, m.Options)
	if err != nil {
		w.failInit(err)
		return
	}

	if w.inflight.Load() > 0 {
		w.state.Store(int32(StateProcessing))
	} else {
		w.state.Store(int32(StateReady))
	}
	w.emitAsync(ModelLoaded{InputNames: info.InputNames, OutputNames: info.OutputNames})
}

// failInit reports a load failure. The worker only degrades to Failed
// when no earlier session survived the attempt; a failed reload leaves
// the previous session serving.
func (w *Worker) failInit(err error) {
	if !w.sessions.IsReady() {
		w.state.Store(int32(StateFailed))
	}
	w.logger.Error("model load failed", zap.Error(err))
	w.emitAsync(Error{Cause: err.Error()})
}

func (w *Worker) handleFrame(frame pipeline.Frame) {
	defer w.wg.Done()

	if w.inflight.Add(1) == 1 && w.State() == StateReady {
		w.state.Store(int32(StateProcessing))
	}
	defer func() {
		if w.inflight.Add(-1) == 0 && w.State() == StateProcessing {
			w.state.Store(int32(StateReady))
		}
	}()

	res, perr := w.pipe.Process(frame)
	if perr != nil {
		id := frame.ID
		w.logger.Warn("frame failed",
			zap.Uint64("frame_id", id),
			zap.String("stage", string(perr.Stage)),
			zap.Error(perr.Err),
		)
		w.emit(Error{Cause: perr.Error(), FrameID: &id})
		return
	}

	// A reload that finished while this frame was inferring produced a
	// result from the old model. It must not be mixed with the new
	// model's outputs, so the tensor is dropped and the frame answered
	// with an error to keep the one-response-per-frame contract.
	if res.Generation != w.sessions.Generation() {
		id := frame.ID
		w.logger.Warn("stale result discarded",
			zap.Uint64("frame_id", id),
			zap.Uint64("generation", res.Generation),
		)
		w.emit(Error{Cause: "result discarded: model reloaded during inference", FrameID: &id})
		return
	}

	dims := make([]int, len(res.Output.Shape()))
	copy(dims, res.Output.Shape())
	w.emit(FrameProcessed{
		FrameID:   res.FrameID,
		Timestamp: res.Timestamp,
		Output:    Output{Data: res.Output.Detach(), Dims: dims},
		Timings:   res.Timings,
	})
}

func (w *Worker) emit(ev Outbound) {
	w.out <- ev
}

// emitAsync delivers an event without tying up the dispatcher
// goroutine: a full outbound queue must never stall the inbound loop.
func (w *Worker) emitAsync(ev Outbound) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.emit(ev)
	}()
}
