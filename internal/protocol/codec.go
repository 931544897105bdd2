package protocol

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/born-ml/vision/internal/engine"
	"github.com/born-ml/vision/internal/pipeline"
	"github.com/born-ml/vision/internal/worker"
)

// DecodeInbound parses one host-to-worker envelope into a worker
// command. Unknown or malformed envelopes yield a *Error.
func DecodeInbound(raw []byte) (worker.Inbound, error) {
	var env Envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, &Error{Reason: "malformed envelope", Err: err}
	}

	switch env.Type {
	case TypeInit:
		var p InitPayload
		if err := msgpack.Unmarshal(env.Data, &p); err != nil {
			return nil, &Error{Reason: "malformed INIT payload", Err: err}
		}
		opts, err := sessionOptions(p.Options)
		if err != nil {
			return nil, err
		}
		return worker.Init{
			ModelPath:  p.ModelPath,
			ModelBytes: p.ModelBytes,
			Options:    opts,
		}, nil

	case TypeProcessFrame:
		var p ProcessFramePayload
		if err := msgpack.Unmarshal(env.Data, &p); err != nil {
			return nil, &Error{Reason: "malformed PROCESS_FRAME payload", Err: err}
		}
		return worker.ProcessFrame{Frame: pipeline.Frame{
			Data:      p.Data,
			Width:     p.Width,
			Height:    p.Height,
			ID:        p.FrameID,
			Timestamp: p.Timestamp,
		}}, nil

	default:
		return nil, &Error{Reason: fmt.Sprintf("unknown message type %q", env.Type)}
	}
}

// EncodeOutbound wraps one worker event into a wire envelope.
func EncodeOutbound(ev worker.Outbound) ([]byte, error) {
	var (
		typ     MessageType
		payload any
	)
	switch e := ev.(type) {
	case worker.ModelLoaded:
		typ = TypeModelLoaded
		payload = ModelLoadedPayload{InputNames: e.InputNames, OutputNames: e.OutputNames}
	case worker.FrameProcessed:
		typ = TypeFrameProcessed
		payload = FrameProcessedPayload{
			FrameID:   e.FrameID,
			Timestamp: e.Timestamp,
			Output:    e.Output.Data,
			Dims:      e.Output.Dims,
			Timings: TimingsPayload{
				PreprocessMs: float64(e.Timings.Preprocess.Microseconds()) / 1e3,
				InferenceMs:  float64(e.Timings.Inference.Microseconds()) / 1e3,
				TotalMs:      float64(e.Timings.Total.Microseconds()) / 1e3,
			},
		}
	case worker.Error:
		typ = TypeError
		payload = ErrorPayload{Cause: e.Cause, FrameID: e.FrameID}
	default:
		return nil, &Error{Reason: fmt.Sprintf("unknown event type %T", ev)}
	}

	data, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, &Error{Reason: "marshal payload", Err: err}
	}
	return msgpack.Marshal(Envelope{Type: typ, Data: data})
}

// DecodeOutbound parses one worker-to-host envelope. Hosts embedding
// the worker in-process don't need this; it exists for wire peers and
// round-trip tests.
func DecodeOutbound(raw []byte) (worker.Outbound, error) {
	var env Envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, &Error{Reason: "malformed envelope", Err: err}
	}

	switch env.Type {
	case TypeModelLoaded:
		var p ModelLoadedPayload
		if err := msgpack.Unmarshal(env.Data, &p); err != nil {
			return nil, &Error{Reason: "malformed MODEL_LOADED payload", Err: err}
		}
		return worker.ModelLoaded{InputNames: p.InputNames, OutputNames: p.OutputNames}, nil

	case TypeFrameProcessed:
		var p FrameProcessedPayload
		if err := msgpack.Unmarshal(env.Data, &p); err != nil {
			return nil, &Error{Reason: "malformed FRAME_PROCESSED payload", Err: err}
		}
		return worker.FrameProcessed{
			FrameID:   p.FrameID,
			Timestamp: p.Timestamp,
			Output:    worker.Output{Data: p.Output, Dims: p.Dims},
			Timings:   timingsFromWire(p.Timings),
		}, nil

	case TypeError:
		var p ErrorPayload
		if err := msgpack.Unmarshal(env.Data, &p); err != nil {
			return nil, &Error{Reason: "malformed ERROR payload", Err: err}
		}
		return worker.Error{Cause: p.Cause, FrameID: p.FrameID}, nil

	default:
		return nil, &Error{Reason: fmt.Sprintf("unknown message type %q", env.Type)}
	}
}

// EncodeInbound wraps one worker command into a wire envelope. It is
// the host-side counterpart of DecodeInbound.
func EncodeInbound(msg worker.Inbound) ([]byte, error) {
	var (
		typ     MessageType
		payload any
	)
	switch m := msg.(type) {
	case worker.Init:
		typ = TypeInit
		payload = InitPayload{
			ModelPath:  m.ModelPath,
			ModelBytes: m.ModelBytes,
			Options:    wireOptions(m.Options),
		}
	case worker.ProcessFrame:
		typ = TypeProcessFrame
		payload = ProcessFramePayload{
			FrameID:   m.Frame.ID,
			Timestamp: m.Frame.Timestamp,
			Width:     m.Frame.Width,
			Height:    m.Frame.Height,
			Data:      m.Frame.Data,
		}
	default:
		return nil, &Error{Reason: fmt.Sprintf("unknown command type %T", msg)}
	}

	data, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, &Error{Reason: "marshal payload", Err: err}
	}
	return msgpack.Marshal(Envelope{Type: typ, Data: data})
}

func timingsFromWire(t TimingsPayload) pipeline.Timings {
	return pipeline.Timings{
		Preprocess: time.Duration(t.PreprocessMs * float64(time.Millisecond)),
		Inference:  time.Duration(t.InferenceMs * float64(time.Millisecond)),
		Total:      time.Duration(t.TotalMs * float64(time.Millisecond)),
	}
}

// sessionOptions maps wire options onto engine options, defaulting the
// fields the wire form leaves at zero.
func sessionOptions(w SessionOptions) (engine.Options, error) {
	opts := engine.DefaultOptions()
	if len(w.Providers) > 0 {
		opts.Providers = w.Providers
	}
	switch w.Optimization {
	case "", "basic":
		opts.Optimization = engine.OptBasic
	case "disable":
		opts.Optimization = engine.OptDisable
	case "all":
		opts.Optimization = engine.OptAll
	default:
		return engine.Options{}, &Error{Reason: fmt.Sprintf("unknown optimization level %q", w.Optimization)}
	}
	opts.ParallelExecution = !w.SequentialExecution
	opts.MemoryArena = !w.DisableMemoryArena
	opts.MemoryPatternReuse = !w.DisableMemoryPattern
	return opts, nil
}

func wireOptions(o engine.Options) SessionOptions {
	w := SessionOptions{
		Providers:            o.Providers,
		SequentialExecution:  !o.ParallelExecution,
		DisableMemoryArena:   !o.MemoryArena,
		DisableMemoryPattern: !o.MemoryPatternReuse,
	}
	switch o.Optimization {
	case engine.OptDisable:
		w.Optimization = "disable"
	case engine.OptAll:
		w.Optimization = "all"
	default:
		w.Optimization = "basic"
	}
	return w
}
