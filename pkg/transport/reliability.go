package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/duet-protocol/duet-go/pkg/wire"
)

// Reliability constants.
const (
	// DefaultAckTimeout is the default wait before a reliable send is
	// retransmitted.
	DefaultAckTimeout = 200 * time.Millisecond
)

// reliability implements the ack-wait-and-retransmit engine for marked
// datagrams. The ack carries no message identity, so only one reliable
// send may be outstanding at a time; sendMu serializes callers and an
// ack for the previous send can never leak into the next one because
// the signal channel is drained before each send.
type reliability struct {
	sendMu sync.Mutex
	ackCh  chan struct{}
}

func newReliability() *reliability {
	return &reliability{ackCh: make(chan struct{}, 1)}
}

// ackReceived signals the pending reliable send, if any. Safe to call
// from the listener task at any time; spurious acks are absorbed by the
// buffered channel and drained before the next send.
func (r *reliability) ackReceived() {
	select {
	case r.ackCh <- struct{}{}:
	default:
	}
}

// arm clears any stale ack signal so the next wait observes only acks
// that arrive after its own transmission.
func (r *reliability) arm() {
	select {
	case <-r.ackCh:
	default:
	}
}

// reset discards pending ack state. Called on teardown.
func (r *reliability) reset() {
	r.arm()
}

// sendReliable wraps payload in the reliable marker, transmits it via
// send, and blocks until an acknowledgment arrives. Each time ackTimeout
// expires the identical datagram is retransmitted. With maxRetries == 0
// this repeats until the context is cancelled (connection teardown);
// otherwise the send fails with ErrAckTimeout after maxRetries
// retransmissions.
func (r *reliability) sendReliable(ctx context.Context, send func([]byte) error, payload []byte, ackTimeout time.Duration, maxRetries int) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.arm()

	framed := wire.Wrap(payload)
	if err := send(framed); err != nil {
		return err
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()

	retries := 0
	for {
		select {
		case <-r.ackCh:
			return nil

		case <-ctx.Done():
			return fmt.Errorf("reliable send aborted: %w", ctx.Err())

		case <-timer.C:
			if maxRetries > 0 {
				retries++
				if retries > maxRetries {
					return fmt.Errorf("%w after %d retransmissions", ErrAckTimeout, maxRetries)
				}
			}
			if err := send(framed); err != nil {
				return err
			}
			timer.Reset(ackTimeout)
		}
	}
}
