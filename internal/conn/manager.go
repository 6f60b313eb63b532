// Package conn owns the single persistent connection to a workspace session:
// handshake, heartbeat, exponential-backoff reconnection, and the send
// primitive everything outbound flows through.
package conn

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/teamspace-collab/sync-client/internal/model"
	"github.com/teamspace-collab/sync-client/internal/protocol"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosing      State = "closing"
	StateReconnecting State = "reconnecting"
	StateFaulted      State = "faulted"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 65536

	// Outbound queue depth per connection.
	sendQueueSize = 256

	defaultPongWait       = 60 * time.Second
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultMaxAttempts    = 5
)

// Config holds tuning for a Manager. Zero values get defaults.
type Config struct {
	// BaseURL is the websocket endpoint, e.g. "ws://localhost:8080". The
	// workspace id is appended as /ws/<id> on connect.
	BaseURL string

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxAttempts is the number of reconnection attempts after an unclean
	// close before the connection is declared lost.
	MaxAttempts int

	// PongWait is how long a read may go without traffic before the transport
	// is considered dead. Pings are sent at 9/10 of this interval.
	PongWait time.Duration

	// Dialer overrides the websocket dialer; nil uses gorilla/websocket.
	Dialer Dialer
}

func (c *Config) applyDefaults() {
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.PongWait == 0 {
		c.PongWait = defaultPongWait
	}
	if c.Dialer == nil {
		c.Dialer = websocketDialer{}
	}
}

// connection is one live transport plus its outbound queue. A fresh one is
// created per successful open so stale pump goroutines can never touch the
// current session. The send channel is never closed; done is the shutdown
// signal, observed by both the write pump and Send.
type connection struct {
	transport Transport
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Manager maintains at most one live connection bound to a workspace session.
type Manager struct {
	cfg Config

	mu          sync.Mutex
	state       State
	workspaceID string
	token       string
	cur         *connection
	gen         uint64
	attempts    int
	backoff     *backoff.ExponentialBackOff
	retryTimer  *time.Timer

	onFrame       func(frame []byte)
	onStateChange func(state State)
	onFatal       func(err error)
}

// NewManager creates a Manager in the Disconnected state.
func NewManager(cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:   cfg,
		state: StateDisconnected,
	}
}

// SetOnFrame sets the callback invoked with each inbound frame, in arrival
// order. Frames are delivered sequentially from a single goroutine.
func (m *Manager) SetOnFrame(fn func(frame []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFrame = fn
}

// SetOnStateChange sets the callback invoked on every state transition.
func (m *Manager) SetOnStateChange(fn func(state State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// SetOnFatal sets the callback invoked when reconnection attempts are
// exhausted and the connection is declared lost.
func (m *Manager) SetOnFatal(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFatal = fn
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// WorkspaceID returns the workspace the manager is bound to, if any.
func (m *Manager) WorkspaceID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workspaceID
}

// Connect establishes the connection for a workspace session. An empty token
// is a precondition failure and performs no network attempt. Connecting to the
// session already open is a no-op; connecting to a different session first
// performs a full disconnect of the old one.
func (m *Manager) Connect(ctx context.Context, workspaceID, token string) error {
	if token == "" {
		return model.ErrTokenRequired
	}

	m.mu.Lock()
	if m.state == StateOpen && m.workspaceID == workspaceID {
		m.mu.Unlock()
		return nil
	}
	// Different session, or a half-open one: tear down before binding anew.
	m.disconnectLocked()

	m.workspaceID = workspaceID
	m.token = token
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	transport, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		// Only fault the handshake we started; a concurrent Connect or
		// Disconnect may have moved the state machine on.
		if m.state == StateConnecting && m.workspaceID == workspaceID {
			m.workspaceID = ""
			m.token = ""
			m.setStateLocked(StateDisconnected)
		}
		m.mu.Unlock()
		return fmt.Errorf("failed to connect to workspace %s: %w", workspaceID, err)
	}

	m.mu.Lock()
	if m.workspaceID != workspaceID || m.state != StateConnecting {
		// Superseded while dialing; discard this transport.
		m.mu.Unlock()
		transport.Close()
		return model.ErrNotConnected
	}
	m.openLocked(transport)
	m.mu.Unlock()
	return nil
}

// Disconnect performs a clean close: closes the transport, cancels any pending
// reconnection, and clears the session identity. Idempotent; a clean close
// never triggers reconnection.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
}

// Send serializes and transmits an envelope if the connection is open.
// Otherwise the envelope is dropped and model.ErrNotConnected returned; live
// events are fire-and-forget and never queued across connection gaps.
func (m *Manager) Send(env *protocol.Envelope) error {
	frame, err := env.Encode()
	if err != nil {
		return err
	}

	m.mu.Lock()
	cur := m.cur
	state := m.state
	m.mu.Unlock()

	if state != StateOpen || cur == nil {
		log.Printf("Dropping %s envelope: connection is %s", env.Type, state)
		return model.ErrNotConnected
	}

	select {
	case <-cur.done:
		log.Printf("Dropping %s envelope: connection closed", env.Type)
		return model.ErrNotConnected
	case cur.send <- frame:
		return nil
	default:
		log.Printf("Dropping %s envelope: send queue full", env.Type)
		return model.ErrNotConnected
	}
}

func (m *Manager) dial(ctx context.Context) (Transport, error) {
	m.mu.Lock()
	url := fmt.Sprintf("%s/ws/%s", m.cfg.BaseURL, m.workspaceID)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+m.token)
	m.mu.Unlock()

	return m.cfg.Dialer.Dial(ctx, url, header)
}

// openLocked installs a freshly dialed transport and starts its pumps.
func (m *Manager) openLocked(transport Transport) {
	m.gen++
	m.attempts = 0
	m.backoff = nil
	m.cur = &connection{
		transport: transport,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
	}
	m.setStateLocked(StateOpen)

	go m.readPump(m.cur, m.gen)
	go m.writePump(m.cur)
}

func (m *Manager) disconnectLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.cur != nil {
		m.setStateLocked(StateClosing)
		m.cur.shutdown()
		m.cur.transport.Close()
		m.cur = nil
	}
	m.gen++
	m.workspaceID = ""
	m.token = ""
	m.attempts = 0
	m.backoff = nil
	if m.state != StateDisconnected {
		m.setStateLocked(StateDisconnected)
	}
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	if m.onStateChange != nil {
		// Invoked under the lock so observers see transitions in order.
		m.onStateChange(s)
	}
}

// readPump delivers inbound frames sequentially until the transport fails. An
// exit that was not caused by Disconnect drives the reconnection path.
func (m *Manager) readPump(c *connection, gen uint64) {
	c.transport.SetReadLimit(maxMessageSize)
	c.transport.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	c.transport.SetPongHandler(func(string) error {
		c.transport.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
		return nil
	})

	for {
		_, frame, err := c.transport.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Connection read error: %v", err)
			}
			break
		}

		m.mu.Lock()
		onFrame := m.onFrame
		stale := m.gen != gen
		m.mu.Unlock()
		if stale {
			return
		}
		if onFrame != nil {
			onFrame(frame)
		}
	}

	m.handleUncleanClose(c, gen)
}

// writePump drains the outbound queue and keeps the heartbeat going.
func (m *Manager) writePump(c *connection) {
	pingPeriod := m.cfg.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.transport.Close()
	}()

	for {
		select {
		case <-c.done:
			c.transport.SetWriteDeadline(time.Now().Add(writeWait))
			c.transport.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			c.transport.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.transport.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.transport.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.transport.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleUncleanClose runs when a read pump exits for any reason other than an
// explicit Disconnect, and schedules a reconnection attempt with backoff.
func (m *Manager) handleUncleanClose(c *connection, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		// Superseded by Disconnect or a newer connection; nothing to do.
		return
	}

	c.shutdown()
	c.transport.Close()
	m.cur = nil
	m.scheduleReconnectLocked()
}

func (m *Manager) scheduleReconnectLocked() {
	if m.attempts >= m.cfg.MaxAttempts {
		m.setStateLocked(StateFaulted)
		if m.onFatal != nil {
			m.onFatal(model.ErrConnectionLost)
		}
		return
	}

	if m.backoff == nil {
		m.backoff = newBackoff(m.cfg)
	}
	m.attempts++
	delay := m.backoff.NextBackOff()
	m.setStateLocked(StateReconnecting)
	log.Printf("Connection to workspace %s lost, reconnect attempt %d/%d in %s",
		m.workspaceID, m.attempts, m.cfg.MaxAttempts, delay)

	m.retryTimer = time.AfterFunc(delay, m.retryConnect)
}

// retryConnect redials with the stored credential and workspace identity.
func (m *Manager) retryConnect() {
	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	gen := m.gen
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	transport, err := m.dial(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.state != StateConnecting {
		if err == nil {
			transport.Close()
		}
		return
	}
	if err != nil {
		m.scheduleReconnectLocked()
		return
	}
	m.openLocked(transport)
}

// newBackoff builds the reconnection delay sequence: starts at the configured
// initial interval, doubles per attempt, capped at the max interval. No jitter
// so the sequence is monotonic.
func newBackoff(cfg Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.Multiplier = 2
	b.MaxInterval = cfg.MaxBackoff
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
