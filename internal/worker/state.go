package worker

// State is the worker lifecycle phase observable by the host.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateProcessing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateProcessing:
		return "processing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
