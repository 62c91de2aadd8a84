package wire

import (
	"bytes"
	"strings"
)

// Wire format constants.
const (
	// MarkerLength is the length of the reliable marker prefix in bytes.
	MarkerLength = 64

	// ProbeByte is the reserved handshake/keepalive byte value.
	ProbeByte byte = 1

	// ProbeLength is the length of a probe datagram.
	ProbeLength = 1
)

// marker is the fixed reliable marker sequence. Sixteen bytes repeated
// four times; the receiver compares the full 64 bytes, never a partial
// match.
var marker = []byte(strings.Repeat("@@DUET:RELIABLE:", MarkerLength/16))

// Marker returns a copy of the reliable marker sequence.
func Marker() []byte {
	m := make([]byte, MarkerLength)
	copy(m, marker)
	return m
}

// Probe returns the one-byte handshake/keepalive datagram.
func Probe() []byte {
	return []byte{ProbeByte}
}

// IsProbe reports whether data is exactly the probe datagram.
func IsProbe(data []byte) bool {
	return len(data) == ProbeLength && data[0] == ProbeByte
}

// Wrap prepends the reliable marker to payload, producing a reliable
// envelope. The payload is copied; the input slice is not retained.
func Wrap(payload []byte) []byte {
	buf := make([]byte, 0, MarkerLength+len(payload))
	buf = append(buf, marker...)
	return append(buf, payload...)
}

// IsMarked reports whether data begins with the full reliable marker.
// Data shorter than the marker is never marked.
func IsMarked(data []byte) bool {
	return len(data) >= MarkerLength && bytes.Equal(data[:MarkerLength], marker)
}

// Strip removes the reliable marker and returns a copy of the payload.
// Callers must check IsMarked first; Strip panics on shorter input.
func Strip(data []byte) []byte {
	payload := make([]byte, len(data)-MarkerLength)
	copy(payload, data[MarkerLength:])
	return payload
}
