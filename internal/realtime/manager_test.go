package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clique/tui/internal/notify"
	"github.com/clique/tui/internal/session"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventLog records connection events in order across all fake connections.
type eventLog struct {
	mu      sync.Mutex
	events  []string
	open    int
	maxOpen int
}

func (l *eventLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeConn struct {
	id      int
	log     *eventLog
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	if mt == websocket.TextMessage {
		var f Frame
		if err := json.Unmarshal(data, &f); err == nil {
			var payload string
			json.Unmarshal(f.Data, &payload)
			c.log.add("write#%d %s %s", c.id, f.Event, payload)
		}
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		c.log.mu.Lock()
		c.log.open--
		c.log.events = append(c.log.events, fmt.Sprintf("close#%d", c.id))
		c.log.mu.Unlock()
		close(c.closed)
	})
	return nil
}

// fakeDialer hands out fakeConns, or fails while failures > 0.
type fakeDialer struct {
	log *eventLog

	mu       sync.Mutex
	next     int
	conns    []*fakeConn
	failures int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		d.log.add("dial-failed")
		return nil, errors.New("connection refused")
	}
	d.next++
	c := &fakeConn{id: d.next, log: d.log, inbound: make(chan []byte, 8), closed: make(chan struct{})}
	d.conns = append(d.conns, c)

	d.log.mu.Lock()
	d.log.open++
	if d.log.open > d.log.maxOpen {
		d.log.maxOpen = d.log.open
	}
	d.log.events = append(d.log.events, fmt.Sprintf("open#%d", c.id))
	d.log.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newFakeManager(t *testing.T) (*Manager, *fakeDialer, *eventLog, *notify.Bus) {
	t.Helper()
	events := &eventLog{}
	dialer := &fakeDialer{log: events}
	bus := notify.NewBus(quietLog())
	m := NewManager(Config{
		URL:           "ws://fake",
		Dialer:        dialer,
		Bus:           bus,
		Log:           quietLog(),
		ReconnectBase: 5 * time.Millisecond,
		ReconnectMax:  20 * time.Millisecond,
		PingInterval:  time.Hour,
	})
	t.Cleanup(m.Close)
	return m, dialer, events, bus
}

func waitConnected(t *testing.T, m *Manager) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == Connected }, 5*time.Second, 2*time.Millisecond)
}

func TestSetUserOpensOneConnectionAndRegisters(t *testing.T) {
	m, _, events, _ := newFakeManager(t)
	assert.Equal(t, Disconnected, m.State())

	m.SetUser("u1")
	waitConnected(t, m)

	assert.Equal(t, []string{"open#1", "write#1 register_user u1"}, events.snapshot())

	// Setting the same user again does nothing.
	m.SetUser("u1")
	assert.Equal(t, []string{"open#1", "write#1 register_user u1"}, events.snapshot())
}

func TestUserChangeClosesBeforeOpening(t *testing.T) {
	m, _, events, _ := newFakeManager(t)

	m.SetUser("u1")
	waitConnected(t, m)
	m.SetUser("u2")
	waitConnected(t, m)

	assert.Equal(t, []string{
		"open#1",
		"write#1 register_user u1",
		"close#1",
		"open#2",
		"write#2 register_user u2",
	}, events.snapshot())
	assert.Equal(t, 1, events.maxOpen, "never two connections at once")
	assert.Equal(t, "u2", m.UserID())
}

func TestLogoutClosesAndStopsRegistering(t *testing.T) {
	m, _, events, _ := newFakeManager(t)

	m.SetUser("u1")
	waitConnected(t, m)
	m.SetUser("")

	assert.Equal(t, Disconnected, m.State())
	before := events.snapshot()
	assert.Equal(t, "close#1", before[len(before)-1])

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, events.snapshot(), "nothing happens after logout")
	assert.ErrorIs(t, m.Send("ping", nil), ErrNotConnected)
}

func TestDropReconnectsStayingConnecting(t *testing.T) {
	var mu sync.Mutex
	var states []State
	events := &eventLog{}
	dialer := &fakeDialer{log: events}
	m := NewManager(Config{
		URL:           "ws://fake",
		Dialer:        dialer,
		Log:           quietLog(),
		ReconnectBase: 5 * time.Millisecond,
		ReconnectMax:  20 * time.Millisecond,
		PingInterval:  time.Hour,
		OnState: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	defer m.Close()

	m.SetUser("u1")
	waitConnected(t, m)

	dialer.mu.Lock()
	dialer.failures = 2
	dialer.mu.Unlock()
	dialer.conn(0).Close()

	require.Eventually(t, func() bool { return dialer.conn(1) != nil }, 5*time.Second, 2*time.Millisecond)
	waitConnected(t, m)

	mu.Lock()
	got := append([]State(nil), states...)
	mu.Unlock()
	assert.Equal(t, []State{Connecting, Connected, Connecting, Connected}, got)
	assert.Contains(t, events.snapshot(), "write#2 register_user u1", "registration is repeated on every connection")
}

func TestNotificationsReachTheBus(t *testing.T) {
	m, dialer, _, bus := newFakeManager(t)
	ch, cancel := bus.Subscribe(4)
	defer cancel()

	m.SetUser("u1")
	waitConnected(t, m)

	conn := dialer.conn(0)
	conn.inbound <- []byte(`{"event":"receive_notification","data":{"type":"match","sender":{"name":"Lan"}}}`)
	conn.inbound <- []byte(`not json`)
	conn.inbound <- []byte(`{"event":"typing","data":{}}`)
	conn.inbound <- []byte(`{"event":"receive_notification","data":{"type":"like","sender":{"name":"An"}}}`)
	conn.inbound <- []byte(`{"event":"receive_notification","data":{"type":"poke"}}`)

	want := []struct {
		kind notify.Kind
		body string
	}{
		{notify.KindMatch, "You have a new match with Lan."},
		{notify.KindLike, "An liked you!"},
		{notify.KindGeneric, "You have a new notification."},
	}
	for _, w := range want {
		select {
		case n := <-ch:
			assert.Equal(t, w.kind, n.Kind)
			assert.Equal(t, w.body, n.Body)
		case <-time.After(5 * time.Second):
			t.Fatal("notification not delivered")
		}
	}
}

func TestAttachFollowsStore(t *testing.T) {
	m, _, events, _ := newFakeManager(t)
	store := session.NewStore(nil)
	m.Attach(store)
	assert.Equal(t, Disconnected, m.State())

	require.NoError(t, store.Login("u1", "t1", nil))
	waitConnected(t, m)

	// A token refresh keeps the same user and the same connection.
	require.NoError(t, store.SetAccessToken("t2"))
	require.NoError(t, store.Clear())
	assert.Equal(t, Disconnected, m.State())

	m.Close()
	require.NoError(t, store.Login("u2", "t3", nil))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"open#1", "write#1 register_user u1", "close#1"}, events.snapshot())
}

func TestCloseDuringDialRetry(t *testing.T) {
	m, dialer, _, _ := newFakeManager(t)
	dialer.mu.Lock()
	dialer.failures = 1000
	dialer.mu.Unlock()

	m.SetUser("u1")
	require.Eventually(t, func() bool {
		dialer.mu.Lock()
		defer dialer.mu.Unlock()
		return dialer.failures < 998
	}, 5*time.Second, 2*time.Millisecond)
	assert.Equal(t, Connecting, m.State())

	m.Close()
	assert.Equal(t, Disconnected, m.State())
	m.SetUser("u2")
	assert.Equal(t, "", m.UserID(), "closed managers ignore new users")
}

func TestWebsocketEndToEnd(t *testing.T) {
	upgrader := websocket.Upgrader{}
	registered := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		var id string
		json.Unmarshal(f.Data, &id)
		registered <- f.Event + " " + id

		conn.WriteJSON(map[string]interface{}{
			"event": "receive_notification",
			"data":  map[string]interface{}{"type": "like", "sender": map[string]string{"name": "An"}},
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	bus := notify.NewBus(quietLog())
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	m := NewManager(Config{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Dialer: WebsocketDialer{HandshakeTimeout: 5 * time.Second},
		Bus:    bus,
		Log:    quietLog(),
	})
	defer m.Close()

	m.SetUser("u1")
	select {
	case got := <-registered:
		assert.Equal(t, "register_user u1", got)
	case <-time.After(5 * time.Second):
		t.Fatal("no registration received")
	}

	select {
	case n := <-ch:
		assert.Equal(t, notify.KindLike, n.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
	}
	waitConnected(t, m)

	m.SetUser("")
	assert.Equal(t, Disconnected, m.State())
}
