package transport

import "errors"

// ConnectionState is the client-side connection state.
type ConnectionState int32

const (
	// StateDisconnected indicates no connection.
	StateDisconnected ConnectionState = iota

	// StateConnecting indicates connection in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// ServerState is the server-side listening state.
type ServerState int32

const (
	// StateStopped indicates the server is not listening.
	StateStopped ServerState = iota

	// StateStarting indicates the server is binding its channels.
	StateStarting

	// StateListening indicates the server is accepting traffic.
	StateListening
)

// String returns the server state name.
func (s ServerState) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateListening:
		return "LISTENING"
	default:
		return "UNKNOWN"
	}
}

// Transport errors.
var (
	// ErrNotConnected indicates a send was attempted while disconnected.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected indicates Connect was called on a live connection.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrConnectTimeout indicates the peer did not accept the stream
	// channel within the connect timeout.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrHandshakeFailed indicates no handshake reply arrived within
	// the handshake timeout.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrAckTimeout indicates a reliable send exhausted its retry budget.
	ErrAckTimeout = errors.New("acknowledgment timeout")

	// ErrInvalidPort indicates a port outside the valid 16-bit range.
	ErrInvalidPort = errors.New("invalid port")

	// ErrAlreadyListening indicates Start was called on a running server.
	ErrAlreadyListening = errors.New("already listening")

	// ErrNotListening indicates a send was attempted on a stopped server.
	ErrNotListening = errors.New("not listening")

	// ErrUnknownParticipant indicates a unicast to an endpoint that is
	// not in the participant set.
	ErrUnknownParticipant = errors.New("unknown participant")
)
