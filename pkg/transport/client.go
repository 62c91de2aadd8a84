package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/duet-protocol/duet-go/pkg/endpoint"
	"github.com/duet-protocol/duet-go/pkg/log"
	"github.com/duet-protocol/duet-go/pkg/wire"
)

// Client defaults.
const (
	// DefaultConnectTimeout bounds the stream channel dial.
	DefaultConnectTimeout = 1 * time.Second

	// DefaultHandshakeTimeout bounds the wait for the handshake reply.
	DefaultHandshakeTimeout = 1 * time.Second

	// DefaultTeardownGrace bounds the wait for background tasks to
	// drain during ForceStop.
	DefaultTeardownGrace = 100 * time.Millisecond

	// DefaultPort is the port used when an address omits one.
	DefaultPort = 12345
)

// Config holds client tuning knobs. The zero value selects the
// defaults; use it directly unless a test needs faster timings.
type Config struct {
	// ConnectTimeout bounds the stream channel dial.
	ConnectTimeout time.Duration

	// HandshakeTimeout bounds the wait for the handshake reply after
	// the initial probe is sent.
	HandshakeTimeout time.Duration

	// AckTimeout is the wait before a reliable send is retransmitted.
	AckTimeout time.Duration

	// AckMaxRetries caps retransmissions of a reliable send. Zero means
	// unbounded: retransmit until the connection dies.
	AckMaxRetries int

	// KeepAliveInterval is the delay between liveness probes.
	KeepAliveInterval time.Duration

	// TeardownGrace bounds the wait for background tasks during
	// ForceStop.
	TeardownGrace time.Duration

	// DefaultPort is used when the connect address omits a port.
	DefaultPort int

	// Logger receives protocol events. Nil disables logging.
	Logger log.Logger
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.TeardownGrace <= 0 {
		c.TeardownGrace = DefaultTeardownGrace
	}
	if c.DefaultPort <= 0 {
		c.DefaultPort = DefaultPort
	}
	if c.Logger == nil {
		c.Logger = log.NoopLogger{}
	}
	return c
}

// Client is the initiating side of a connection. It holds a stream
// channel to the server for liveness supervision and a datagram channel
// for payload exchange. All methods are safe for concurrent use, and a
// stopped client can connect again.
type Client struct {
	config Config
	logger log.Logger

	state atomic.Int32

	mu       sync.RWMutex
	stream   net.Conn
	datagram *udpChannel
	server   endpoint.Endpoint
	connID   string

	rel     *reliability
	logbook *MessageLog

	// deadCh is closed by whichever background task first observes the
	// connection dying; the monitor task turns that into a full stop.
	deadCh   chan struct{}
	deadOnce *sync.Once

	keepalive *KeepAlive

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopMu sync.Mutex
}

// NewClient creates a disconnected client.
func NewClient(config Config) *Client {
	config = config.withDefaults()
	return &Client{
		config:  config,
		logger:  config.Logger,
		rel:     newReliability(),
		logbook: NewMessageLog(),
	}
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsConnected reports whether the connection is fully established.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// ServerEndpoint returns the server's datagram endpoint as learned
// during the handshake. Zero value when disconnected.
func (c *Client) ServerEndpoint() endpoint.Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// ConnectionID returns the UUID assigned to the current connection, or
// the empty string when disconnected.
func (c *Client) ConnectionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connID
}

// LatestMessage returns the most recently received payload.
func (c *Client) LatestMessage() (Message, bool) {
	return c.logbook.Latest()
}

// Messages returns a snapshot of all received payloads in arrival order.
func (c *Client) Messages() []Message {
	return c.logbook.All()
}

// Connect establishes the connection to the given address. The address
// may be a hostname or IP, with an optional ":port" suffix; a missing
// port selects the configured default. Connect dials the stream
// channel, opens the datagram channel, and performs the probe handshake
// to learn the server's datagram endpoint. On any failure both channels
// are torn down and the client returns to the disconnected state.
func (c *Client) Connect(ctx context.Context, address string) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	if err := c.establish(ctx, address); err != nil {
		c.state.Store(int32(StateDisconnected))
		c.logError(log.LayerLifecycle, err, "connect")
		return err
	}

	c.state.Store(int32(StateConnected))
	c.logStateChange(log.StateEntityConnection, StateConnecting.String(), StateConnected.String(), "handshake complete")
	return nil
}

func (c *Client) establish(ctx context.Context, address string) error {
	target, err := endpoint.Resolve(address, c.config.DefaultPort)
	if err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	stream, err := dialer.DialContext(ctx, "tcp4", target.String())
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s", ErrConnectTimeout, target)
		}
		return fmt.Errorf("stream channel dial failed: %w", err)
	}

	datagram, err := openDatagramChannel()
	if err != nil {
		_ = stream.Close()
		return err
	}

	server, err := c.handshake(datagram, target)
	if err != nil {
		_ = stream.Close()
		_ = datagram.Close()
		return err
	}

	connID := uuid.New().String()
	clientCtx, cancel := context.WithCancel(context.Background())

	keepalive := NewKeepAlive(c.config.KeepAliveInterval,
		func() error { return datagram.Send(wire.Probe(), server) },
		func(err error) {
			c.logError(log.LayerTransport, err, "keepalive probe")
			c.markDead()
		})

	c.mu.Lock()
	c.stream = stream
	c.datagram = datagram
	c.server = server
	c.connID = connID
	c.deadCh = make(chan struct{})
	c.deadOnce = &sync.Once{}
	c.keepalive = keepalive
	c.ctx = clientCtx
	c.cancel = cancel
	c.mu.Unlock()

	keepalive.Start(clientCtx)

	c.wg.Add(3)
	go c.readLoop(datagram)
	go c.streamLoop(stream)
	go c.monitorLoop(clientCtx)

	return nil
}

// handshake sends the initial probe and waits for the server's reply,
// which reveals the server's actual datagram endpoint (it may differ
// from the stream endpoint when the server binds the channels to
// different ports).
func (c *Client) handshake(datagram *udpChannel, target endpoint.Endpoint) (endpoint.Endpoint, error) {
	if err := datagram.Send(wire.Probe(), target); err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	c.logControl(log.DirectionOut, target, log.ControlHandshake)

	if err := datagram.SetReadDeadline(time.Now().Add(c.config.HandshakeTimeout)); err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	buf := make([]byte, wire.ProbeLength)
	_, from, err := datagram.Receive(buf)
	if err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("%w: no reply within %s", ErrHandshakeFailed, c.config.HandshakeTimeout)
	}
	_ = datagram.SetReadDeadline(time.Time{})

	c.logControl(log.DirectionIn, from, log.ControlHandshake)
	return from, nil
}

// readLoop drains the datagram channel: probes are dropped, marked
// datagrams are treated as acknowledgments for the pending reliable
// send, and everything else is appended to the message log.
func (c *Client) readLoop(datagram *udpChannel) {
	defer c.wg.Done()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := datagram.Receive(buf)
		if err != nil {
			c.markDead()
			return
		}
		data := buf[:n]

		switch {
		case wire.IsProbe(data):
			// Server-side probes arrive over the stream, not here;
			// a stray probe is ignored.

		case wire.IsMarked(data):
			c.rel.ackReceived()
			c.logControl(log.DirectionIn, from, log.ControlAck)

		default:
			c.logbook.Append(data, from)
			c.logger.Log(log.Event{
				Timestamp:    time.Now(),
				ConnectionID: c.ConnectionID(),
				Direction:    log.DirectionIn,
				Layer:        log.LayerTransport,
				Category:     log.CategoryMessage,
				LocalRole:    log.RoleClient,
				RemoteAddr:   from.String(),
				Datagram:     log.NewDatagramEvent(data, n, false),
			})
		}
	}
}

// streamLoop drains the stream channel, which carries only the
// server's liveness probes. A read error or EOF means the server is
// gone.
func (c *Client) streamLoop(stream net.Conn) {
	defer c.wg.Done()

	buf := make([]byte, 256)
	for {
		if _, err := stream.Read(buf); err != nil {
			c.markDead()
			return
		}
	}
}

// monitorLoop waits for a death signal and tears the connection down.
// The stop runs on its own goroutine so ForceStop's wg.Wait does not
// wait on the monitor itself.
func (c *Client) monitorLoop(ctx context.Context) {
	defer c.wg.Done()

	c.mu.RLock()
	deadCh := c.deadCh
	c.mu.RUnlock()

	select {
	case <-ctx.Done():
	case <-deadCh:
		c.logStateChange(log.StateEntityConnection, StateConnected.String(), StateDisconnected.String(), "connection lost")
		go func() { _ = c.ForceStop() }()
	}
}

func (c *Client) markDead() {
	c.mu.RLock()
	once := c.deadOnce
	deadCh := c.deadCh
	c.mu.RUnlock()
	if once == nil {
		return
	}
	once.Do(func() { close(deadCh) })
}

// SendBytes transmits one payload datagram without delivery guarantees.
func (c *Client) SendBytes(data []byte) error {
	datagram, server, err := c.channel()
	if err != nil {
		return err
	}
	if err := datagram.Send(data, server); err != nil {
		return err
	}
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.ConnectionID(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleClient,
		RemoteAddr:   server.String(),
		Datagram:     log.NewDatagramEvent(data, len(data), false),
	})
	return nil
}

// SendBytesReliable transmits one payload with at-least-once delivery:
// the payload is prefixed with the reliable marker and retransmitted
// until the server echoes it back. Blocks until acknowledged, the
// context is cancelled, the retry budget (if any) is exhausted, or the
// connection dies.
func (c *Client) SendBytesReliable(ctx context.Context, data []byte) error {
	datagram, server, err := c.channel()
	if err != nil {
		return err
	}

	c.mu.RLock()
	clientCtx := c.ctx
	c.mu.RUnlock()
	if clientCtx == nil {
		return ErrNotConnected
	}

	// Either the caller's context or connection teardown aborts the wait.
	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-clientCtx.Done():
			cancel()
		case <-sendCtx.Done():
		}
	}()

	send := func(framed []byte) error {
		if err := datagram.Send(framed, server); err != nil {
			return err
		}
		c.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.ConnectionID(),
			Direction:    log.DirectionOut,
			Layer:        log.LayerReliability,
			Category:     log.CategoryMessage,
			LocalRole:    log.RoleClient,
			RemoteAddr:   server.String(),
			Datagram:     log.NewDatagramEvent(data, len(framed), true),
		})
		return nil
	}

	return c.rel.sendReliable(sendCtx, send, data, c.config.AckTimeout, c.config.AckMaxRetries)
}

func (c *Client) channel() (*udpChannel, endpoint.Endpoint, error) {
	if !c.IsConnected() {
		return nil, endpoint.Endpoint{}, ErrNotConnected
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.datagram == nil {
		return nil, endpoint.Endpoint{}, ErrNotConnected
	}
	return c.datagram, c.server, nil
}

// ForceStop tears the connection down unconditionally: both channels
// are closed, background tasks are drained (bounded by the teardown
// grace period), and the message log is cleared. Safe to call in any
// state and idempotent; always returns nil so teardown paths can chain
// it without error handling.
func (c *Client) ForceStop() error {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()

	prev := ConnectionState(c.state.Swap(int32(StateDisconnected)))
	if prev == StateDisconnected {
		return nil
	}

	c.mu.RLock()
	keepalive := c.keepalive
	c.mu.RUnlock()
	if keepalive != nil {
		keepalive.Stop()
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	// Closing the sockets unblocks the read loop.
	if c.stream != nil {
		_ = c.stream.Close()
	}
	if c.datagram != nil {
		_ = c.datagram.Close()
	}
	c.stream = nil
	c.datagram = nil
	c.server = endpoint.Endpoint{}
	connID := c.connID
	c.connID = ""
	c.ctx = nil
	c.cancel = nil
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.config.TeardownGrace):
		fmt.Fprintf(os.Stderr, "duet: client teardown exceeded grace period\n")
	}

	c.rel.reset()
	c.logbook.Clear()

	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerLifecycle,
		Category:     log.CategoryState,
		LocalRole:    log.RoleClient,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: prev.String(),
			NewState: StateDisconnected.String(),
			Reason:   "force stop",
		},
	})
	return nil
}

func (c *Client) logControl(dir log.Direction, remote endpoint.Endpoint, typ log.ControlType) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.ConnectionID(),
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		LocalRole:    log.RoleClient,
		RemoteAddr:   remote.String(),
		Control:      &log.ControlEvent{Type: typ},
	})
}

func (c *Client) logStateChange(entity log.StateEntity, oldState, newState, reason string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.ConnectionID(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerLifecycle,
		Category:     log.CategoryState,
		LocalRole:    log.RoleClient,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *Client) logError(layer log.Layer, err error, context string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.ConnectionID(),
		Direction:    log.DirectionOut,
		Layer:        layer,
		Category:     log.CategoryError,
		LocalRole:    log.RoleClient,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	})
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
