// Package protocol is the msgpack wire form of the worker message
// contract. Each message travels as an envelope whose type tag selects
// the payload shape; pixel and tensor buffers ride as binary fields so
// frames cross the boundary without re-encoding.
package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MessageType discriminates envelope payloads.
type MessageType string

// Wire message types. INIT and PROCESS_FRAME flow host-to-worker; the
// rest flow worker-to-host.
const (
	TypeInit           MessageType = "INIT"
	TypeProcessFrame   MessageType = "PROCESS_FRAME"
	TypeModelLoaded    MessageType = "MODEL_LOADED"
	TypeFrameProcessed MessageType = "FRAME_PROCESSED"
	TypeError          MessageType = "ERROR"
)

// Envelope wraps every wire message.
type Envelope struct {
	Type MessageType        `msgpack:"type" json:"type"`
	Data msgpack.RawMessage `msgpack:"data" json:"data"`
}

// Error reports a malformed or unrecognized wire message.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// SessionOptions is the wire form of session creation options.
type SessionOptions struct {
	// Providers is the ordered execution-provider preference list.
	Providers []string `msgpack:"providers,omitempty" json:"providers,omitempty"`
	// Optimization is "disable", "basic", or "all". Empty means basic.
	Optimization string `msgpack:"optimization,omitempty" json:"optimization,omitempty"`
	// SequentialExecution disables multi-goroutine operator kernels.
	SequentialExecution bool `msgpack:"sequential_execution,omitempty" json:"sequential_execution,omitempty"`
	// DisableMemoryArena turns off per-run tensor storage pre-sizing.
	DisableMemoryArena bool `msgpack:"disable_memory_arena,omitempty" json:"disable_memory_arena,omitempty"`
	// DisableMemoryPattern turns off execution-order caching.
	DisableMemoryPattern bool `msgpack:"disable_memory_pattern,omitempty" json:"disable_memory_pattern,omitempty"`
}

// InitPayload asks the worker to load a model.
type InitPayload struct {
	// ModelPath names the model for the worker's fetcher.
	ModelPath string `msgpack:"model_path,omitempty" json:"model_path,omitempty"`
	// ModelBytes carries the model inline; wins over ModelPath when set.
	ModelBytes []byte `msgpack:"model_bytes,omitempty" json:"model_bytes,omitempty"`
	// Options tunes session creation. Zero value means defaults.
	Options SessionOptions `msgpack:"options,omitempty" json:"options,omitempty"`
}

// ProcessFramePayload carries one raw frame.
type ProcessFramePayload struct {
	// FrameID is the host's correlation token, echoed in the response.
	FrameID uint64 `msgpack:"frame_id" json:"frame_id"`
	// Timestamp is the capture time on the host clock, passed through.
	Timestamp float64 `msgpack:"timestamp" json:"timestamp"`
	// Width and Height are in pixels.
	Width  uint32 `msgpack:"width" json:"width"`
	Height uint32 `msgpack:"height" json:"height"`
	// Data is interleaved RGBA8, len == Width*Height*4.
	Data []byte `msgpack:"data" json:"data"`
}

// ModelLoadedPayload confirms a successful load.
type ModelLoadedPayload struct {
	InputNames  []string `msgpack:"input_names" json:"input_names"`
	OutputNames []string `msgpack:"output_names" json:"output_names"`
}

// TimingsPayload is per-stage latency in milliseconds.
type TimingsPayload struct {
	PreprocessMs float64 `msgpack:"preprocess_ms" json:"preprocess_ms"`
	InferenceMs  float64 `msgpack:"inference_ms" json:"inference_ms"`
	TotalMs      float64 `msgpack:"total_ms" json:"total_ms"`
}

// FrameProcessedPayload is the successful response for one frame.
type FrameProcessedPayload struct {
	FrameID   uint64         `msgpack:"frame_id" json:"frame_id"`
	Timestamp float64        `msgpack:"timestamp" json:"timestamp"`
	Output    []float32      `msgpack:"output" json:"output"`
	Dims      []int          `msgpack:"dims" json:"dims"`
	Timings   TimingsPayload `msgpack:"timings" json:"timings"`
}

// ErrorPayload reports a failed load (FrameID absent) or frame.
type ErrorPayload struct {
	Cause   string  `msgpack:"cause" json:"cause"`
	FrameID *uint64 `msgpack:"frame_id,omitempty" json:"frame_id,omitempty"`
}
