package transport

import (
	"sync"
	"time"

	"github.com/duet-protocol/duet-go/pkg/endpoint"
)

// Message is one received payload tagged with its sender.
type Message struct {
	// Payload is the opaque payload bytes (reliable marker stripped).
	Payload []byte

	// From is the sender's endpoint.
	From endpoint.Endpoint

	// Received is when the listener task appended the message.
	Received time.Time
}

// MessageLog is an append-only, synchronized record of received
// payloads. The "latest" message is always a read of the last appended
// entry, never separately tracked state.
type MessageLog struct {
	mu      sync.RWMutex
	entries []Message
}

// NewMessageLog creates an empty message log.
func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

// Append records a message. The payload bytes are copied so the caller
// may reuse its buffer.
func (l *MessageLog) Append(payload []byte, from endpoint.Endpoint) Message {
	p := make([]byte, len(payload))
	copy(p, payload)

	msg := Message{Payload: p, From: from, Received: time.Now()}

	l.mu.Lock()
	l.entries = append(l.entries, msg)
	l.mu.Unlock()

	return msg
}

// Latest returns the most recently appended message.
// The second return value is false when the log is empty.
func (l *MessageLog) Latest() (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return Message{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// All returns a snapshot of the full log in append order.
func (l *MessageLog) All() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// Payloads returns a snapshot of just the payload bytes in append order.
func (l *MessageLog) Payloads() [][]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([][]byte, len(l.entries))
	for i, m := range l.entries {
		out[i] = m.Payload
	}
	return out
}

// Len returns the number of logged messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear discards all entries.
func (l *MessageLog) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}
