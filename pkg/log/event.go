package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection or participant (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates whether the local side is client or server.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer endpoint (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Datagram    *DatagramEvent    `cbor:"8,keyasint,omitempty"`  // Payload traffic
	Control     *ControlEvent     `cbor:"9,keyasint,omitempty"`  // Probe/ack traffic
	StateChange *StateChangeEvent `cbor:"10,keyasint,omitempty"` // Lifecycle transitions
	Error       *ErrorEventData   `cbor:"11,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the raw datagram/stream layer.
	LayerTransport Layer = 0
	// LayerReliability is the ack-wait-and-retransmit layer.
	LayerReliability Layer = 1
	// LayerLifecycle is the connection/participant lifecycle layer.
	LayerLifecycle Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerReliability:
		return "RELIABILITY"
	case LayerLifecycle:
		return "LIFECYCLE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a payload datagram.
	CategoryMessage Category = 0
	// CategoryControl indicates a probe or acknowledgment.
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates whether the local endpoint is the client or the server.
type Role uint8

const (
	// RoleClient indicates the connection initiator.
	RoleClient Role = 0
	// RoleServer indicates the connection acceptor.
	RoleServer Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// MaxLogDatagramSize is the maximum datagram payload to include in log
// events. Larger payloads are truncated to keep log files bounded.
const MaxLogDatagramSize = 4096

// DatagramEvent captures a payload datagram at the transport layer.
type DatagramEvent struct {
	// Size is the full datagram size in bytes (including any marker).
	Size int `cbor:"1,keyasint"`

	// Data is the payload bytes (may be truncated for large datagrams).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`

	// Reliable indicates the datagram carried the reliable marker.
	Reliable bool `cbor:"4,keyasint,omitempty"`
}

// NewDatagramEvent builds a DatagramEvent for a payload, truncating the
// recorded bytes to MaxLogDatagramSize.
func NewDatagramEvent(payload []byte, wireSize int, reliable bool) *DatagramEvent {
	data := payload
	truncated := false
	if len(data) > MaxLogDatagramSize {
		data = data[:MaxLogDatagramSize]
		truncated = true
	}
	recorded := make([]byte, len(data))
	copy(recorded, data)
	return &DatagramEvent{
		Size:      wireSize,
		Data:      recorded,
		Truncated: truncated,
		Reliable:  reliable,
	}
}

// ControlEvent captures probe and acknowledgment traffic.
type ControlEvent struct {
	// Type of control signal.
	Type ControlType `cbor:"1,keyasint"`
}

// ControlType indicates the type of control signal.
type ControlType uint8

const (
	// ControlProbe indicates a keepalive probe.
	ControlProbe ControlType = 0
	// ControlHandshake indicates the handshake probe or its reply.
	ControlHandshake ControlType = 1
	// ControlAck indicates a reliable-delivery acknowledgment.
	ControlAck ControlType = 2
)

// String returns the control type name.
func (c ControlType) String() string {
	switch c {
	case ControlProbe:
		return "PROBE"
	case ControlHandshake:
		return "HANDSHAKE"
	case ControlAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures lifecycle transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a client connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityParticipant indicates a server-side participant change.
	StateEntityParticipant StateEntity = 1
	// StateEntityServer indicates a server listening state change.
	StateEntityServer StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityParticipant:
		return "PARTICIPANT"
	case StateEntityServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error text.
	Message string `cbor:"2,keyasint"`

	// Context describes the operation that failed.
	Context string `cbor:"3,keyasint,omitempty"`
}
