package client

// ConnectionState is the engine's connection lifecycle state. It is
// owned exclusively by the engine; collaborators observe it through the
// state callback.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateRegistering
	StateRegistered
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
