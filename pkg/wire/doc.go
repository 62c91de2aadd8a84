// Package wire defines the duet datagram wire format.
//
// The format has exactly two constructs:
//
//   - The reliable envelope: a fixed 64-byte marker followed by the
//     payload. A datagram carrying this prefix requires an
//     acknowledgment from the receiver.
//
//	┌──────────────────────┬──────────────────┐
//	│  marker (64 bytes)   │  payload bytes   │
//	└──────────────────────┴──────────────────┘
//
//   - The probe: a single reserved byte (value 1) used both as the
//     connection handshake and as the keepalive liveness signal. It is
//     never wrapped in the reliable envelope.
//
// The marker sequence is part of the protocol contract and must not
// change between versions.
package wire
