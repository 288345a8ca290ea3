package model

// SessionState is the lifecycle of a single relay session.
type SessionState int32

const (
	StateStarting SessionState = iota
	StateStreaming
	StateRecovering
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateStreaming:
		return "STREAMING"
	case StateRecovering:
		return "RECOVERING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// CloseReason records why a session reached CLOSED.
type CloseReason string

const (
	CloseCancelled CloseReason = "cancelled"
	CloseFatal     CloseReason = "fatal"
	CloseExhausted CloseReason = "retry_exhausted"
	CloseSinkDead  CloseReason = "sink_dead"
)
