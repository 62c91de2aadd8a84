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

// ServerConfig holds server tuning knobs and callbacks. The zero value
// selects the defaults.
type ServerConfig struct {
	// KeepAliveInterval is the delay between liveness probes written to
	// each participant's stream channel.
	KeepAliveInterval time.Duration

	// TeardownGrace bounds the wait for background tasks during
	// ForceStop.
	TeardownGrace time.Duration

	// Logger receives protocol events. Nil disables logging.
	Logger log.Logger

	// OnMessage is invoked for every received payload (after the
	// reliable marker, if any, has been stripped). Optional.
	OnMessage func(msg Message)

	// OnConnect is invoked when a new participant completes the
	// handshake. Optional.
	OnConnect func(participant endpoint.Endpoint)

	// OnDisconnect is invoked when a participant is removed after a
	// failed liveness probe. Optional.
	OnDisconnect func(participant endpoint.Endpoint)
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.TeardownGrace <= 0 {
		c.TeardownGrace = DefaultTeardownGrace
	}
	if c.Logger == nil {
		c.Logger = log.NoopLogger{}
	}
	return c
}

// participant is one connected client: its datagram endpoint plus the
// accepted stream channel used for liveness probing.
type participant struct {
	ep     endpoint.Endpoint
	id     string
	stream net.Conn
}

// Server is the accepting side. It serves all participants from a
// single datagram socket bound to a fixed port, with a stream listener
// on the same port for liveness supervision. All methods are safe for
// concurrent use, and a stopped server can start again.
type Server struct {
	config ServerConfig
	logger log.Logger

	state atomic.Int32

	mu           sync.RWMutex
	datagram     *udpChannel
	listener     net.Listener
	port         int
	participants map[string]*participant

	// pending holds accepted stream channels not yet claimed by a
	// datagram, keyed by the remote IP. The stream and datagram sockets
	// of one client share an IP but not a port, so IP is the only join
	// key available before the first datagram arrives.
	pending map[string]net.Conn

	logbook *MessageLog

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopMu sync.Mutex
}

// NewServer creates a stopped server.
func NewServer(config ServerConfig) *Server {
	config = config.withDefaults()
	return &Server{
		config:       config,
		logger:       config.Logger,
		participants: make(map[string]*participant),
		pending:      make(map[string]net.Conn),
		logbook:      NewMessageLog(),
	}
}

// State returns the current server state.
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

// IsListening reports whether the server is accepting traffic.
func (s *Server) IsListening() bool {
	return s.State() == StateListening
}

// Port returns the port the server is bound to, or zero when stopped.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// Participants returns a snapshot of the connected participants'
// datagram endpoints.
func (s *Server) Participants() []endpoint.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]endpoint.Endpoint, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p.ep)
	}
	return out
}

// LatestMessage returns the most recently received payload.
func (s *Server) LatestMessage() (Message, bool) {
	return s.logbook.Latest()
}

// Messages returns a snapshot of all received payloads in arrival order.
func (s *Server) Messages() []Message {
	return s.logbook.All()
}

// Start binds the datagram channel and the stream listener to the given
// port and begins serving. Port zero selects an ephemeral port (useful
// in tests; the chosen port is available via Port).
func (s *Server) Start(port int) error {
	if port != 0 && !endpoint.ValidPort(port) {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrAlreadyListening
	}

	datagram, err := bindDatagramChannel(port)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return err
	}
	boundPort := datagram.LocalPort()

	listener, err := net.Listen("tcp4", fmt.Sprintf(":%d", boundPort))
	if err != nil {
		_ = datagram.Close()
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("stream listener bind on port %d failed: %w", boundPort, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.datagram = datagram
	s.listener = listener
	s.port = boundPort
	s.ctx = ctx
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(3)
	go s.datagramLoop(datagram)
	go s.acceptLoop(listener)
	go s.probeLoop(ctx)

	s.state.Store(int32(StateListening))
	s.logServerState(StateStarting.String(), StateListening.String(), fmt.Sprintf("listening on port %d", boundPort))
	return nil
}

// datagramLoop drains the datagram channel. The first datagram from an
// unknown endpoint registers it as a participant and triggers the
// handshake reply; marked datagrams are echoed back as acknowledgment
// before their payload is recorded.
func (s *Server) datagramLoop(datagram *udpChannel) {
	defer s.wg.Done()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := datagram.Receive(buf)
		if err != nil {
			return
		}
		data := buf[:n]

		if s.registerIfNew(datagram, from) && wire.IsProbe(data) {
			continue
		}

		switch {
		case wire.IsProbe(data):
			// Keepalive from a known participant.

		case wire.IsMarked(data):
			// Echo the full marked datagram back before recording: the
			// echo is the acknowledgment the sender is waiting on.
			if err := datagram.Send(data, from); err != nil {
				s.logError(log.LayerReliability, err, "ack echo")
				continue
			}
			s.logControl(log.DirectionOut, from, log.ControlAck)
			s.record(wire.Strip(data), from, n, true)

		default:
			s.record(data, from, n, false)
		}
	}
}

// registerIfNew adds the endpoint to the participant set if unseen,
// claiming any parked stream channel from the same IP and sending the
// handshake reply. Reports whether the endpoint was new.
func (s *Server) registerIfNew(datagram *udpChannel, from endpoint.Endpoint) bool {
	key := from.Key()

	s.mu.Lock()
	if _, known := s.participants[key]; known {
		s.mu.Unlock()
		return false
	}
	p := &participant{ep: from, id: uuid.New().String()}
	ipKey := from.IP.String()
	if stream, ok := s.pending[ipKey]; ok {
		p.stream = stream
		delete(s.pending, ipKey)
	}
	s.participants[key] = p
	s.mu.Unlock()

	if err := datagram.Send(wire.Probe(), from); err != nil {
		s.logError(log.LayerTransport, err, "handshake reply")
	} else {
		s.logControl(log.DirectionOut, from, log.ControlHandshake)
	}

	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: p.id,
		Direction:    log.DirectionIn,
		Layer:        log.LayerLifecycle,
		Category:     log.CategoryState,
		LocalRole:    log.RoleServer,
		RemoteAddr:   from.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityParticipant,
			NewState: "JOINED",
		},
	})

	if s.config.OnConnect != nil {
		s.config.OnConnect(from)
	}
	return true
}

func (s *Server) record(payload []byte, from endpoint.Endpoint, wireSize int, reliable bool) {
	msg := s.logbook.Append(payload, from)

	s.logger.Log(log.Event{
		Timestamp:  time.Now(),
		Direction:  log.DirectionIn,
		Layer:      log.LayerTransport,
		Category:   log.CategoryMessage,
		LocalRole:  log.RoleServer,
		RemoteAddr: from.String(),
		Datagram:   log.NewDatagramEvent(payload, wireSize, reliable),
	})

	if s.config.OnMessage != nil {
		s.config.OnMessage(msg)
	}
}

// acceptLoop parks accepted stream channels until a datagram claims
// them. A second stream from the same IP replaces the parked one.
func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Transient accept errors are logged and retried.
			s.logError(log.LayerTransport, err, "stream accept")
			continue
		}

		ip := remoteIP(conn)

		s.mu.Lock()
		// If the datagram arrived first, attach the stream to the
		// existing participant from this IP instead of parking it.
		var claimed bool
		for _, p := range s.participants {
			if p.stream == nil && p.ep.IP.String() == ip {
				p.stream = conn
				claimed = true
				break
			}
		}
		if !claimed {
			if old, ok := s.pending[ip]; ok {
				_ = old.Close()
			}
			s.pending[ip] = conn
		}
		s.mu.Unlock()
	}
}

// probeLoop writes a liveness probe to every participant's stream
// channel on each tick. A write failure means the participant is gone:
// it is removed immediately.
func (s *Server) probeLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probeParticipants()
		}
	}
}

func (s *Server) probeParticipants() {
	type probeTarget struct {
		p      *participant
		stream net.Conn
	}

	s.mu.RLock()
	snapshot := make([]probeTarget, 0, len(s.participants))
	for _, p := range s.participants {
		if p.stream != nil {
			snapshot = append(snapshot, probeTarget{p: p, stream: p.stream})
		}
	}
	s.mu.RUnlock()

	for _, t := range snapshot {
		_ = t.stream.SetWriteDeadline(time.Now().Add(s.config.KeepAliveInterval))
		if _, err := t.stream.Write(wire.Probe()); err != nil {
			s.removeParticipant(t.p, t.stream, err)
		}
	}
}

func (s *Server) removeParticipant(p *participant, stream net.Conn, cause error) {
	s.mu.Lock()
	delete(s.participants, p.ep.Key())
	s.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
	}

	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: p.id,
		Direction:    log.DirectionOut,
		Layer:        log.LayerLifecycle,
		Category:     log.CategoryState,
		LocalRole:    log.RoleServer,
		RemoteAddr:   p.ep.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityParticipant,
			OldState: "JOINED",
			NewState: "LEFT",
			Reason:   cause.Error(),
		},
	})

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(p.ep)
	}
}

// SendBytes transmits one payload datagram to every participant.
// Individual send failures are logged; the first one is returned after
// the broadcast completes.
func (s *Server) SendBytes(data []byte) error {
	if !s.IsListening() {
		return ErrNotListening
	}

	s.mu.RLock()
	datagram := s.datagram
	targets := make([]endpoint.Endpoint, 0, len(s.participants))
	for _, p := range s.participants {
		targets = append(targets, p.ep)
	}
	s.mu.RUnlock()

	if datagram == nil {
		return ErrNotListening
	}

	var firstErr error
	for _, ep := range targets {
		if err := datagram.Send(data, ep); err != nil {
			s.logError(log.LayerTransport, err, "broadcast send")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.logOutbound(data, ep)
	}
	return firstErr
}

// SendBytesTo transmits one payload datagram to a single participant.
func (s *Server) SendBytesTo(data []byte, to endpoint.Endpoint) error {
	if !s.IsListening() {
		return ErrNotListening
	}

	s.mu.RLock()
	datagram := s.datagram
	_, known := s.participants[to.Key()]
	s.mu.RUnlock()

	if datagram == nil {
		return ErrNotListening
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, to)
	}

	if err := datagram.Send(data, to); err != nil {
		return err
	}
	s.logOutbound(data, to)
	return nil
}

// ForceStop halts the server unconditionally: both channels and every
// participant stream are closed, background tasks are drained (bounded
// by the teardown grace period), and the message log is cleared. Safe
// to call in any state and idempotent; always returns nil.
func (s *Server) ForceStop() error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	prev := ServerState(s.state.Swap(int32(StateStopped)))
	if prev == StateStopped {
		return nil
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.datagram != nil {
		_ = s.datagram.Close()
	}
	for _, p := range s.participants {
		if p.stream != nil {
			_ = p.stream.Close()
		}
	}
	for _, conn := range s.pending {
		_ = conn.Close()
	}
	s.datagram = nil
	s.listener = nil
	s.port = 0
	s.participants = make(map[string]*participant)
	s.pending = make(map[string]net.Conn)
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.config.TeardownGrace):
		fmt.Fprintf(os.Stderr, "duet: server teardown exceeded grace period\n")
	}

	s.logbook.Clear()
	s.logServerState(prev.String(), StateStopped.String(), "force stop")
	return nil
}

func (s *Server) logOutbound(data []byte, to endpoint.Endpoint) {
	s.logger.Log(log.Event{
		Timestamp:  time.Now(),
		Direction:  log.DirectionOut,
		Layer:      log.LayerTransport,
		Category:   log.CategoryMessage,
		LocalRole:  log.RoleServer,
		RemoteAddr: to.String(),
		Datagram:   log.NewDatagramEvent(data, len(data), false),
	})
}

func (s *Server) logControl(dir log.Direction, remote endpoint.Endpoint, typ log.ControlType) {
	s.logger.Log(log.Event{
		Timestamp:  time.Now(),
		Direction:  dir,
		Layer:      log.LayerTransport,
		Category:   log.CategoryControl,
		LocalRole:  log.RoleServer,
		RemoteAddr: remote.String(),
		Control:    &log.ControlEvent{Type: typ},
	})
}

func (s *Server) logServerState(oldState, newState, reason string) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerLifecycle,
		Category:  log.CategoryState,
		LocalRole: log.RoleServer,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityServer,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (s *Server) logError(layer log.Layer, err error, context string) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     layer,
		Category:  log.CategoryError,
		LocalRole: log.RoleServer,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	})
}

func remoteIP(conn net.Conn) string {
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
