package transport

import (
	"context"
	"sync"
	"time"
)

// Keepalive constants.
const (
	// DefaultKeepAliveInterval is the default interval between probes.
	DefaultKeepAliveInterval = 100 * time.Millisecond
)

// KeepAlive periodically emits a liveness probe. The client runs one to
// signal liveness to the server over the datagram channel; the server's
// per-participant stream probing reuses the same interval but iterates
// the participant set instead (see Server).
//
// A probe send failure is a peer-death signal, not a retryable error:
// onFailure fires once and the loop stops.
type KeepAlive struct {
	interval  time.Duration
	sendProbe func() error
	onFailure func(error)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewKeepAlive creates a keepalive emitter. A zero interval selects
// DefaultKeepAliveInterval.
func NewKeepAlive(interval time.Duration, sendProbe func() error, onFailure func(error)) *KeepAlive {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	return &KeepAlive{
		interval:  interval,
		sendProbe: sendProbe,
		onFailure: onFailure,
		stopCh:    make(chan struct{}),
	}
}

// Start begins emitting probes. Calling Start on a running emitter is a
// no-op.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	stopCh := ka.stopCh
	ka.mu.Unlock()

	go ka.loop(ctx, stopCh)
}

// Stop halts probe emission. Safe to call multiple times.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// IsRunning reports whether the emitter loop is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

func (ka *KeepAlive) loop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(ka.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if err := ka.sendProbe(); err != nil {
				ka.markStopped()
				if ka.onFailure != nil {
					ka.onFailure(err)
				}
				return
			}
		}
	}
}

func (ka *KeepAlive) markStopped() {
	ka.mu.Lock()
	ka.running = false
	ka.mu.Unlock()
}
