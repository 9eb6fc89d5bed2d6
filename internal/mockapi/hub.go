package mockapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/clique/tui/internal/realtime"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const closeGrace = time.Second

type hubClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	userID string
}

func newHubClient(conn *websocket.Conn) *hubClient {
	c := &hubClient{conn: conn, send: make(chan []byte, 64)}
	go c.writePump()
	return c
}

func (c *hubClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub routes pushes to websocket clients by the user id they registered.
type Hub struct {
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*hubClient]bool
	byUser  map[string]map[*hubClient]bool
}

func NewHub(log logrus.FieldLogger) *Hub {
	h := &Hub{
		log:     log,
		clients: make(map[*hubClient]bool),
		byUser:  make(map[string]map[*hubClient]bool),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}
	return h
}

// ServeHTTP upgrades the request and reads frames until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}

	c := newHubClient(conn)
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.log.WithField("remote", r.RemoteAddr).Debug("ws client connected")

	go func() {
		defer func() {
			h.remove(c)
			h.log.WithField("remote", r.RemoteAddr).Debug("ws client disconnected")
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f realtime.Frame
			if err := json.Unmarshal(data, &f); err != nil {
				continue
			}
			if f.Event != realtime.EventRegisterUser {
				continue
			}
			var userID string
			if err := json.Unmarshal(f.Data, &userID); err != nil || userID == "" {
				continue
			}
			h.register(c, userID)
		}
	}()
}

func (h *Hub) register(c *hubClient, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	c.mu.Lock()
	prev := c.userID
	c.userID = userID
	c.mu.Unlock()
	if prev != "" {
		delete(h.byUser[prev], c)
	}
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[*hubClient]bool)
	}
	h.byUser[userID][c] = true
	h.log.WithField("user_id", userID).Debug("ws client registered")
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	if set := h.byUser[userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, userID)
		}
	}
	close(c.send)
}

// Push sends an event to every connection registered as userID and returns
// how many received it. Slow clients are disconnected.
func (h *Hub) Push(userID, event string, payload interface{}) int {
	f, err := realtime.NewFrame(event, payload)
	if err != nil {
		h.log.WithError(err).Warn("encoding push")
		return 0
	}
	data, err := json.Marshal(f)
	if err != nil {
		return 0
	}

	sent := 0
	var slow []*hubClient
	h.mu.RLock()
	for c := range h.byUser[userID] {
		select {
		case c.send <- data:
			sent++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.WithField("user_id", userID).Warn("ws client too slow, disconnecting")
		h.remove(c)
	}
	return sent
}

// RegisteredUsers lists the user ids with at least one live connection.
func (h *Hub) RegisteredUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byUser))
	for id := range h.byUser {
		out = append(out, id)
	}
	return out
}

// ClientCount returns the number of open connections, registered or not.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close sends a close frame to every client in parallel and drops them.
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	var g errgroup.Group
	for _, c := range clients {
		c := c
		g.Go(func() error {
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
			h.remove(c)
			return err
		})
	}
	return g.Wait()
}

// checkOrigin allows non-browser clients and loopback origins.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	if parsed.Host == r.Host {
		return true
	}
	return host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasSuffix(host, ".localhost")
}
