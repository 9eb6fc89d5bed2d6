package mockapi

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clique/tui/internal/client"
	"github.com/clique/tui/internal/realtime"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func dialAs(t *testing.T, ts *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	if userID != "" {
		require.NoError(t, conn.WriteJSON(map[string]string{"event": realtime.EventRegisterUser, "data": userID}))
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) realtime.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f realtime.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func waitRegistered(t *testing.T, h *Hub, userID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, id := range h.RegisteredUsers() {
			if id == userID {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
}

func TestHubRoutesByRegisteredUser(t *testing.T) {
	srv := NewServer(Options{Log: quietLog()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	alice := dialAs(t, ts, "alice")
	dialAs(t, ts, "")
	waitRegistered(t, srv.Hub(), "alice")
	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 2 }, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, srv.Hub().Push("nobody", realtime.EventReceiveNotification, map[string]string{"type": "like"}))
	assert.Equal(t, 1, srv.Hub().Push("alice", realtime.EventReceiveNotification, map[string]string{"type": "like"}))

	f := readFrame(t, alice)
	assert.Equal(t, realtime.EventReceiveNotification, f.Event)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "like", payload["type"])
}

func TestHubDropsClosedClients(t *testing.T) {
	srv := NewServer(Options{Log: quietLog()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialAs(t, ts, "bob")
	waitRegistered(t, srv.Hub(), "bob")
	conn.Close()

	require.Eventually(t, func() bool { return len(srv.Hub().RegisteredUsers()) == 0 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, srv.Hub().ClientCount())
}

func TestHubCloseSendsGoingAway(t *testing.T) {
	srv := NewServer(Options{Log: quietLog()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialAs(t, ts, "carol")
	waitRegistered(t, srv.Hub(), "carol")

	require.NoError(t, srv.Close())
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, srv.Hub().ClientCount())
}

func TestGeneratorPushesToRegisteredUsers(t *testing.T) {
	srv := NewServer(Options{Log: quietLog()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ana, ok := srv.Account("ana@clique.test")
	require.True(t, ok)
	conn := dialAs(t, ts, ana.ID)
	waitRegistered(t, srv.Hub(), ana.ID)

	g := NewGenerator(srv, time.Hour, 100)
	assert.Equal(t, 1, g.tick())

	f := readFrame(t, conn)
	assert.Equal(t, realtime.EventReceiveNotification, f.Event)
	var ev struct {
		Type   string `json:"type"`
		Sender struct {
			ID   string `json:"_id"`
			Name string `json:"name"`
		} `json:"sender"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &ev))
	assert.Equal(t, "match", ev.Type)
	assert.NotEqual(t, ana.ID, ev.Sender.ID)
	assert.NotEmpty(t, ev.Sender.Name)
}

func TestCommonSlot(t *testing.T) {
	slot := func(date, start, end string) client.Slot {
		return client.Slot{Date: date, StartTime: start, EndTime: end}
	}
	tests := []struct {
		name         string
		mine, theirs []client.Slot
		want         client.Slot
		wantFound    bool
	}{
		{
			name:      "overlap",
			mine:      []client.Slot{slot("2026-10-20", "18:00", "20:00")},
			theirs:    []client.Slot{slot("2026-10-20", "19:00", "21:00")},
			want:      slot("2026-10-20", "19:00", "20:00"),
			wantFound: true,
		},
		{
			name:   "touching",
			mine:   []client.Slot{slot("2026-10-20", "18:00", "19:00")},
			theirs: []client.Slot{slot("2026-10-20", "19:00", "20:00")},
		},
		{
			name:   "other day",
			mine:   []client.Slot{slot("2026-10-20", "18:00", "20:00")},
			theirs: []client.Slot{slot("2026-10-21", "18:00", "20:00")},
		},
		{
			name:      "second pair",
			mine:      []client.Slot{slot("2026-10-20", "08:00", "09:00"), slot("2026-10-22", "10:00", "12:00")},
			theirs:    []client.Slot{slot("2026-10-22", "11:30", "13:00")},
			want:      slot("2026-10-22", "11:30", "12:00"),
			wantFound: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := commonSlot(tt.mine, tt.theirs)
			assert.Equal(t, tt.wantFound, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
