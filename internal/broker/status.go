package broker

import "time"

// State is the connection lifecycle state of a Manager.
type State int

// Connection lifecycle states. Failed is terminal for a connect sequence;
// a fresh Connect call starts a new sequence from Idle.
const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateRetrying
	StateDisconnecting
	StateFailed
)

// String returns the lowercase state name for logging and status payloads.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRetrying:
		return "retrying"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of a Manager's connection state.
//
// Observers and GetStatus always receive a copy; only the Manager mutates
// the underlying record.
type Status struct {
	State           State     `json:"state"`
	Connected       bool      `json:"connected"`
	Endpoint        string    `json:"endpoint"`
	Channel         string    `json:"channel"`
	Error           string    `json:"error,omitempty"`
	Attempt         int       `json:"attempt,omitempty"`
	LastConnectedAt time.Time `json:"last_connected_at,omitzero"`
}
