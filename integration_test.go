// Integration tests exercising the full stack: transport client and
// server over loopback, protocol event logging to CBOR files, and the
// reconnect supervisor.
package duet_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/duet-protocol/duet-go/pkg/connection"
	"github.com/duet-protocol/duet-go/pkg/log"
	"github.com/duet-protocol/duet-go/pkg/transport"
)

func fastConfig() transport.Config {
	return transport.Config{
		ConnectTimeout:    time.Second,
		HandshakeTimeout:  time.Second,
		AckTimeout:        50 * time.Millisecond,
		KeepAliveInterval: 20 * time.Millisecond,
		TeardownGrace:     200 * time.Millisecond,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, desc string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

// TestFullSession drives a complete session and then verifies the
// client's CBOR event log tells the same story.
func TestFullSession(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "client.cbor")
	fileLogger, err := log.NewFileLogger(logPath)
	if err != nil {
		t.Fatalf("failed to create file logger: %v", err)
	}

	server := transport.NewServer(transport.ServerConfig{
		KeepAliveInterval: 20 * time.Millisecond,
		TeardownGrace:     200 * time.Millisecond,
	})
	if err := server.Start(0); err != nil {
		t.Fatalf("server start failed: %v", err)
	}
	defer server.ForceStop()

	config := fastConfig()
	config.Logger = fileLogger
	client := transport.NewClient(config)

	addr := fmt.Sprintf("127.0.0.1:%d", server.Port())
	if err := client.Connect(context.Background(), addr); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer client.ForceStop()

	// Unreliable then reliable payloads.
	if err := client.SendBytes([]byte("casual")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.SendBytesReliable(ctx, []byte("important")); err != nil {
		t.Fatalf("reliable send failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return len(server.Messages()) == 2
	}, "server to receive both payloads")

	// Server replies to the client.
	if err := server.SendBytes([]byte("noted")); err != nil {
		t.Fatalf("server send failed: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		msg, ok := client.LatestMessage()
		return ok && string(msg.Payload) == "noted"
	}, "client to receive the reply")

	_ = client.ForceStop()
	if err := fileLogger.Close(); err != nil {
		t.Fatalf("failed to close file logger: %v", err)
	}

	// The log must contain the handshake, both outgoing payloads, the
	// incoming ack, and lifecycle state changes.
	events := readEvents(t, logPath)
	if len(events) == 0 {
		t.Fatal("event log is empty")
	}

	var handshakes, outMessages, acks, stateChanges int
	for _, e := range events {
		switch {
		case e.Control != nil && e.Control.Type == log.ControlHandshake:
			handshakes++
		case e.Datagram != nil && e.Direction == log.DirectionOut:
			outMessages++
		case e.Control != nil && e.Control.Type == log.ControlAck:
			acks++
		case e.StateChange != nil:
			stateChanges++
		}
	}
	if handshakes < 2 {
		t.Errorf("handshake events = %d, want at least 2 (probe out and reply in)", handshakes)
	}
	if outMessages < 2 {
		t.Errorf("outgoing message events = %d, want at least 2", outMessages)
	}
	if acks < 1 {
		t.Errorf("ack events = %d, want at least 1", acks)
	}
	if stateChanges < 2 {
		t.Errorf("state change events = %d, want at least 2 (connect and stop)", stateChanges)
	}
}

// TestSupervisedReconnect wires the transport client to the reconnect
// supervisor: when the server goes away and comes back on the same
// port, the supervisor re-establishes the connection.
func TestSupervisedReconnect(t *testing.T) {
	serverConfig := transport.ServerConfig{
		KeepAliveInterval: 20 * time.Millisecond,
		TeardownGrace:     200 * time.Millisecond,
	}
	server := transport.NewServer(serverConfig)
	if err := server.Start(0); err != nil {
		t.Fatalf("server start failed: %v", err)
	}
	port := server.Port()
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	client := transport.NewClient(fastConfig())
	defer client.ForceStop()

	mgr := connection.NewManager(func(ctx context.Context) error {
		return client.Connect(ctx, addr)
	})
	mgr.SetBackoff(connection.NewBackoffWithConfig(connection.BackoffConfig{
		Initial: 20 * time.Millisecond,
		Max:     100 * time.Millisecond,
	}))
	mgr.StartSupervisor()
	defer mgr.Close()

	if err := mgr.Connect(context.Background()); err != nil {
		t.Fatalf("initial connect failed: %v", err)
	}

	// Kill the server; the client notices via the dead stream channel.
	_ = server.ForceStop()
	waitFor(t, 2*time.Second, func() bool {
		return !client.IsConnected()
	}, "client to observe the dead connection")
	mgr.ConnectionLost()

	// Bring the server back on the same port.
	server2 := transport.NewServer(serverConfig)
	if err := server2.Start(port); err != nil {
		t.Fatalf("server restart failed: %v", err)
	}
	defer server2.ForceStop()

	waitFor(t, 5*time.Second, func() bool {
		return mgr.IsConnected() && client.IsConnected()
	}, "supervisor to reconnect the client")

	// The reconnected session works end to end.
	if err := client.SendBytes([]byte("back again")); err != nil {
		t.Fatalf("send after reconnect failed: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		msg, ok := server2.LatestMessage()
		return ok && string(msg.Payload) == "back again"
	}, "restarted server to receive the payload")
}

func readEvents(t *testing.T, path string) []log.Event {
	t.Helper()
	r, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open event log: %v", err)
	}
	defer r.Close()

	events, err := r.ReadAll()
	if err != nil {
		t.Fatalf("failed to read event log: %v", err)
	}
	return events
}
