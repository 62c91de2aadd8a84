package transport

import (
	"context"

	"github.com/duet-protocol/duet-go/pkg/endpoint"
)

// ClientTransport is the initiating side of a connection.
type ClientTransport interface {
	// Connect establishes both channels and performs the handshake.
	Connect(ctx context.Context, address string) error

	// SendBytes transmits one payload without delivery guarantees.
	SendBytes(data []byte) error

	// SendBytesReliable transmits one payload with at-least-once
	// delivery, blocking until acknowledged.
	SendBytesReliable(ctx context.Context, data []byte) error

	// ForceStop tears the connection down unconditionally.
	ForceStop() error

	// State returns the current connection state.
	State() ConnectionState

	// IsConnected reports whether the connection is established.
	IsConnected() bool

	// LatestMessage returns the most recently received payload.
	LatestMessage() (Message, bool)

	// Messages returns all received payloads in arrival order.
	Messages() []Message
}

// ServerTransport is the accepting side of a connection.
type ServerTransport interface {
	// Start binds both channels to the given port and begins serving.
	Start(port int) error

	// SendBytes transmits one payload to every participant.
	SendBytes(data []byte) error

	// SendBytesTo transmits one payload to a single participant.
	SendBytesTo(data []byte, to endpoint.Endpoint) error

	// ForceStop halts the server unconditionally.
	ForceStop() error

	// State returns the current server state.
	State() ServerState

	// IsListening reports whether the server is accepting traffic.
	IsListening() bool

	// Participants returns the connected participants' endpoints.
	Participants() []endpoint.Endpoint

	// LatestMessage returns the most recently received payload.
	LatestMessage() (Message, bool)

	// Messages returns all received payloads in arrival order.
	Messages() []Message
}

// Compile-time interface satisfaction checks.
var (
	_ ClientTransport = (*Client)(nil)
	_ ServerTransport = (*Server)(nil)
)
