package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeepAliveEmitsProbes(t *testing.T) {
	probes := make(chan struct{}, 16)

	ka := NewKeepAlive(10*time.Millisecond,
		func() error {
			select {
			case probes <- struct{}{}:
			default:
			}
			return nil
		},
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)
	defer ka.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-probes:
		case <-time.After(time.Second):
			t.Fatalf("probe %d not emitted", i)
		}
	}

	if !ka.IsRunning() {
		t.Error("keepalive should still be running")
	}
}

func TestKeepAliveStop(t *testing.T) {
	ka := NewKeepAlive(5*time.Millisecond, func() error { return nil }, nil)

	ka.Start(context.Background())
	ka.Stop()
	ka.Stop() // idempotent

	if ka.IsRunning() {
		t.Error("keepalive should be stopped")
	}
}

func TestKeepAliveFailureStopsLoop(t *testing.T) {
	failed := make(chan error, 1)
	sendErr := errors.New("peer gone")

	ka := NewKeepAlive(5*time.Millisecond,
		func() error { return sendErr },
		func(err error) { failed <- err },
	)

	ka.Start(context.Background())

	select {
	case err := <-failed:
		if !errors.Is(err, sendErr) {
			t.Errorf("onFailure error = %v, want %v", err, sendErr)
		}
	case <-time.After(time.Second):
		t.Fatal("onFailure not invoked")
	}

	// The loop stops itself after a failure.
	time.Sleep(20 * time.Millisecond)
	if ka.IsRunning() {
		t.Error("keepalive should stop after a probe failure")
	}
}

func TestKeepAliveContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ka := NewKeepAlive(5*time.Millisecond, func() error { return nil }, nil)
	ka.Start(ctx)
	cancel()

	// IsRunning still reports true until Stop; the loop itself has
	// exited with the context. Stop resets the flag.
	ka.Stop()
	if ka.IsRunning() {
		t.Error("keepalive should be stopped")
	}
}
