// Package realtime keeps a websocket open to the notification server exactly
// while a user is signed in, and publishes inbound pushes on a notify.Bus.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/clique/tui/internal/notify"
	"github.com/clique/tui/internal/session"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultReconnectBase = 1 * time.Second
	defaultReconnectMax  = 30 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	defaultPongTimeout   = 60 * time.Second
	defaultPingInterval  = 30 * time.Second
)

// ErrNotConnected is returned by Send when no connection is live.
var ErrNotConnected = errors.New("realtime: not connected")

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config configures a Manager. Zero durations take defaults.
type Config struct {
	URL    string
	Dialer Dialer
	Bus    *notify.Bus
	Log    logrus.FieldLogger

	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	PingInterval  time.Duration
	PongTimeout   time.Duration
	WriteTimeout  time.Duration

	// OnState is called after every state change, from whichever goroutine
	// caused it.
	OnState func(State)
}

// Manager owns at most one connection, bound to one user id.
type Manager struct {
	cfg Config
	log logrus.FieldLogger

	// opMu serialises SetUser and Close so a user change fully tears down
	// the old connection before the new one is dialed.
	opMu sync.Mutex

	mu     sync.Mutex
	state  State
	userID string
	conn   Conn
	cancel context.CancelFunc
	done   chan struct{}
	detach func()
	closed bool

	writeMu sync.Mutex
}

// NewManager creates a disconnected manager. Zero durations get defaults and
// a nil Dialer uses gorilla/websocket.
func NewManager(cfg Config) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = defaultReconnectBase
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = defaultReconnectMax
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{cfg: cfg, log: log.WithField("component", "realtime")}
}

// Attach follows the store: every change of user id is applied with SetUser.
// The current user is applied immediately.
func (m *Manager) Attach(store *session.Store) {
	unsubscribe := store.Subscribe(func(s session.Session) {
		m.SetUser(s.UserID)
	})
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		unsubscribe()
		return
	}
	m.detach = unsubscribe
	m.mu.Unlock()

	m.SetUser(store.UserID())
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// UserID returns the user the manager is bound to.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// SetUser binds the manager to id. An empty id disconnects. A different id
// closes the current connection, waits for it to wind down, and only then
// starts connecting for the new id. Setting the current id is a no-op.
func (m *Manager) SetUser(id string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed || id == m.userID {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.stop()

	if id == "" {
		m.mu.Lock()
		m.userID = ""
		m.mu.Unlock()
		m.setState(Disconnected)
		m.log.Info("realtime disconnected")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.mu.Lock()
	m.userID = id
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	m.setState(Connecting)
	go m.run(ctx, id, done)
}

// Close detaches from the store and tears the connection down. The manager
// cannot be reused.
func (m *Manager) Close() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	detach := m.detach
	m.detach = nil
	m.mu.Unlock()

	if detach != nil {
		detach()
	}
	m.stop()

	m.mu.Lock()
	m.userID = ""
	m.mu.Unlock()
	m.setState(Disconnected)
}

// Send writes one frame on the live connection.
func (m *Manager) Send(event string, data interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	f, err := NewFrame(event, data)
	if err != nil {
		return err
	}
	return m.writeFrame(conn, f)
}

// stop cancels the connection goroutine, closes its socket, and waits for
// it to exit.
func (m *Manager) stop() {
	m.mu.Lock()
	cancel, done, conn := m.cancel, m.done, m.conn
	if cancel != nil {
		cancel()
	}
	m.cancel, m.done, m.conn = nil, nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	if conn != nil {
		conn.Close()
	}
	<-done
}

func (m *Manager) run(ctx context.Context, userID string, done chan struct{}) {
	defer close(done)
	log := m.log.WithField("user_id", userID)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.ReconnectBase
	b.MaxInterval = m.cfg.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		conn, err := m.cfg.Dialer.Dial(ctx, m.cfg.URL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := b.NextBackOff()
			log.WithError(err).WithField("retry_in", delay).Warn("realtime dial failed")
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		if !m.adopt(ctx, conn) {
			conn.Close()
			return
		}

		err = m.register(conn, userID)
		if err == nil {
			m.setState(Connected)
			log.Info("realtime connected")
			b.Reset()
			err = m.serve(ctx, conn)
		}

		m.release(conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}

		m.setState(Connecting)
		delay := b.NextBackOff()
		log.WithError(err).WithField("retry_in", delay).Warn("realtime connection lost")
		if !sleep(ctx, delay) {
			return
		}
	}
}

// adopt publishes conn as the live connection unless the run was cancelled
// in the meantime.
func (m *Manager) adopt(ctx context.Context, conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	m.conn = conn
	return true
}

func (m *Manager) release(conn Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
}

func (m *Manager) register(conn Conn, userID string) error {
	f, err := NewFrame(EventRegisterUser, userID)
	if err != nil {
		return err
	}
	if err := m.writeFrame(conn, f); err != nil {
		return fmt.Errorf("registering user: %w", err)
	}
	return nil
}

// serve reads until the connection fails, keeping it alive with pings.
func (m *Manager) serve(ctx context.Context, conn Conn) error {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))

	pingCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.pingLoop(pingCtx, conn)
	}()
	defer wg.Wait()
	defer cancel()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.dispatch(data)
	}
}

func (m *Manager) pingLoop(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			m.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (m *Manager) writeFrame(conn Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (m *Manager) dispatch(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		m.log.WithError(err).Debug("ignoring malformed frame")
		return
	}
	switch f.Event {
	case EventReceiveNotification, eventNotification:
		var ev notify.Event
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			m.log.WithError(err).Debug("ignoring malformed notification")
			return
		}
		n := notify.FromEvent(ev)
		m.log.WithFields(logrus.Fields{"kind": n.Kind, "sender": n.SenderName}).Debug("notification received")
		if m.cfg.Bus != nil {
			m.cfg.Bus.Publish(n)
		}
	default:
		m.log.WithField("event", f.Event).Debug("ignoring unknown event")
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	hook := m.cfg.OnState
	m.mu.Unlock()
	if hook != nil {
		hook(s)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
