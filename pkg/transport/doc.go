// Package transport implements the duet hybrid transport layer.
//
// Duet pairs two channels between each client and server:
//
//   - A UDP datagram channel carrying all payload traffic, with an
//     optional at-least-once delivery guarantee for datagrams wrapped
//     in the reliable marker (see pkg/wire).
//   - A TCP stream used purely as a liveness probe. No payload ever
//     travels on the stream; the server writes a probe byte to every
//     participant's stream at a fixed interval, and a failed write
//     means the peer is dead.
//
// # Protocol Stack
//
//	┌────────────────────────────────────┐
//	│        Opaque payload bytes        │
//	├────────────────────────────────────┤
//	│ Reliable marker (64 B, optional)   │
//	├──────────────────┬─────────────────┤
//	│       UDP        │   TCP (probe)   │
//	├──────────────────┴─────────────────┤
//	│             IPv4 only              │
//	└────────────────────────────────────┘
//
// # Handshake
//
// The client dials the server's TCP port, then sends the one-byte probe
// over UDP and waits for any datagram in reply. The reply teaches the
// client the server's datagram endpoint and completes the handshake; on
// the server side the first datagram from an unknown endpoint registers
// a participant.
//
// # Reliability
//
// A reliable send wraps the payload in the marker and blocks until the
// receiver echoes the marked datagram back. The echo is a pure
// acknowledgment signal; at most one reliable send is outstanding per
// connection, and the sender retransmits the identical datagram each
// time the ack timeout expires.
//
// Delivery order is not preserved and duplicate delivery of reliable
// payloads is possible; payloads must be self-contained.
package transport
