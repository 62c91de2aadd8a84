package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Manager errors.
var (
	ErrClosed           = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// DefaultAttemptTimeout bounds a single reconnect attempt.
const DefaultAttemptTimeout = 5 * time.Second

// State is the supervised connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection and no pending
	// reconnect.
	StateDisconnected State = iota

	// StateConnecting indicates a caller-initiated connect in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates the supervisor is retrying.
	StateReconnecting

	// StateClosed indicates the manager has shut down.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes the underlying connection. It is invoked for
// the initial connect and for every reconnect attempt.
type ConnectFunc func(ctx context.Context) error

// Manager supervises a connection and reconnects it with backoff after
// a reported loss. All methods are safe for concurrent use.
type Manager struct {
	mu sync.RWMutex

	state         State
	backoff       *Backoff
	connectFn     ConnectFunc
	autoReconnect bool

	attemptTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	retryCh chan struct{}

	onStateChange  func(oldState, newState State)
	onConnected    func()
	onDisconnected func()
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a manager around the given connect function.
// Automatic reconnection is enabled by default.
func NewManager(connectFn ConnectFunc) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:          StateDisconnected,
		backoff:        NewBackoff(),
		connectFn:      connectFn,
		autoReconnect:  true,
		attemptTimeout: DefaultAttemptTimeout,
		ctx:            ctx,
		cancel:         cancel,
		retryCh:        make(chan struct{}, 1),
	}
}

// State returns the current supervised state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the connection is currently up.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// SetAutoReconnect enables or disables automatic reconnection.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// SetBackoff replaces the backoff schedule. Call before Connect.
func (m *Manager) SetBackoff(b *Backoff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backoff = b
}

// Connect performs the initial connection attempt.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	}
	oldState := m.state
	m.state = StateConnecting
	m.mu.Unlock()
	m.notifyStateChange(oldState, StateConnecting)

	if err := m.connectFn(ctx); err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		m.notifyStateChange(StateConnecting, StateDisconnected)
		return err
	}

	m.markConnected(StateConnecting)
	return nil
}

// ConnectionLost reports that the connection died. With automatic
// reconnection enabled the supervisor starts retrying; otherwise the
// manager just goes disconnected.
func (m *Manager) ConnectionLost() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	autoReconnect := m.autoReconnect
	newState := StateDisconnected
	if autoReconnect {
		newState = StateReconnecting
	}
	m.state = newState
	m.mu.Unlock()

	m.notifyStateChange(StateConnected, newState)
	if m.onDisconnected != nil {
		m.onDisconnected()
	}

	if autoReconnect {
		select {
		case m.retryCh <- struct{}{}:
		default:
		}
	}
}

// StartSupervisor launches the background retry loop. Must be called
// once before reconnection can happen.
func (m *Manager) StartSupervisor() {
	m.wg.Add(1)
	go m.supervise()
}

// Close shuts the manager down and stops any pending reconnection.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	oldState := m.state
	m.state = StateClosed
	m.mu.Unlock()
	m.notifyStateChange(oldState, StateClosed)

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) supervise() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.retryCh:
			m.retryUntilConnected()
		}
	}
}

func (m *Manager) retryUntilConnected() {
	for {
		m.mu.RLock()
		state := m.state
		m.mu.RUnlock()
		if state != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		if m.onReconnecting != nil {
			m.onReconnecting(m.backoff.Attempts(), delay)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.attemptTimeout)
		err := m.connectFn(ctx)
		cancel()
		if err == nil {
			m.markConnected(StateReconnecting)
			return
		}
	}
}

func (m *Manager) markConnected(oldState State) {
	m.mu.Lock()
	m.state = StateConnected
	m.backoff.Reset()
	m.mu.Unlock()

	m.notifyStateChange(oldState, StateConnected)
	if m.onConnected != nil {
		m.onConnected()
	}
}

func (m *Manager) notifyStateChange(oldState, newState State) {
	if m.onStateChange != nil {
		m.onStateChange(oldState, newState)
	}
}

// OnStateChange sets a callback for state transitions. Call before
// Connect; callbacks are not synchronized with state reads.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.onStateChange = fn
}

// OnConnected sets a callback invoked after every successful connect.
func (m *Manager) OnConnected(fn func()) {
	m.onConnected = fn
}

// OnDisconnected sets a callback invoked on connection loss.
func (m *Manager) OnDisconnected(fn func()) {
	m.onDisconnected = fn
}

// OnReconnecting sets a callback invoked before each retry delay.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.onReconnecting = fn
}
