// Package mockapi is an in-process stand-in for the Clique backend. It
// implements the REST routes and the notification websocket closely enough
// to drive the client end to end in tests and local development.
package mockapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clique/tui/internal/client"
	"github.com/clique/tui/internal/notify"
	"github.com/clique/tui/internal/realtime"
	"github.com/clique/tui/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Options configures a Server. Zero values take defaults.
type Options struct {
	// TokenTTL is the lifetime of access tokens.
	TokenTTL time.Duration
	// Secret signs access tokens.
	Secret []byte
	// OTP is the code every registration must echo back.
	OTP string
	Log logrus.FieldLogger
}

// Server is the mock backend.
type Server struct {
	data   *data
	tokens *issuer
	hub    *Hub
	otp    string
	log    logrus.FieldLogger
	router *mux.Router

	mu            sync.Mutex
	refreshStatus int

	refreshCalls atomic.Int64
	seenReports  atomic.Int64
}

func NewServer(opts Options) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Minute
	}
	if len(opts.Secret) == 0 {
		opts.Secret = []byte(uuid.NewString())
	}
	if opts.OTP == "" {
		opts.OTP = "123456"
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	s := &Server{
		data:   newData(),
		tokens: newIssuer(opts.Secret, opts.TokenTTL),
		hub:    NewHub(opts.Log),
		otp:    opts.OTP,
		log:    opts.Log,
	}
	s.data.seed(time.Now())
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.Handle("/ws", s.hub)

	users := r.PathPrefix("/users").Subrouter()
	users.HandleFunc("/send-otp-register", s.handleSendOTP).Methods(http.MethodPost)
	users.HandleFunc("/verify-otp-register", s.handleVerifyOTP).Methods(http.MethodPost)
	users.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	users.HandleFunc("/refresh-token", s.handleRefresh).Methods(http.MethodPost)
	users.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	me := r.PathPrefix("/users").Subrouter()
	me.Use(s.authenticate)
	me.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	me.HandleFunc("/update-profile", s.handleUpdateProfile).Methods(http.MethodPut)
	me.HandleFunc("/upload-signature", s.handleUploadSignature).Methods(http.MethodGet)

	dating := r.PathPrefix("/dating").Subrouter()
	dating.Use(s.authenticate)
	dating.HandleFunc("/users", s.handleProfiles).Methods(http.MethodGet)
	dating.HandleFunc("/users/matches", s.handleMatches).Methods(http.MethodGet)
	dating.HandleFunc("/users/liked-me", s.handleLikedMe).Methods(http.MethodGet)
	dating.HandleFunc("/users/{id}", s.handleProfile).Methods(http.MethodGet)
	dating.HandleFunc("/users/{id}/like", s.handleLike).Methods(http.MethodPost)
	dating.HandleFunc("/users/{id}/like", s.handleUnlike).Methods(http.MethodDelete)
	dating.HandleFunc("/posts", s.handleCreatePost).Methods(http.MethodPost)
	dating.HandleFunc("/posts", s.handlePosts).Methods(http.MethodGet)
	dating.HandleFunc("/posts/feed", s.handleFeed).Methods(http.MethodGet)
	dating.HandleFunc("/posts/{id}/seen", s.handleSeen).Methods(http.MethodPost)
	dating.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet)
	dating.HandleFunc("/schedule/availability", s.handleAvailability).Methods(http.MethodPost)
	dating.HandleFunc("/schedule/confirm", s.handleConfirm).Methods(http.MethodPost)
	dating.HandleFunc("/schedule/appointments", s.handleAppointments).Methods(http.MethodGet)
	dating.HandleFunc("/schedule/status/{id}", s.handleScheduleStatus).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": r.Header.Get("X-Request-ID"),
		}).Debug("request")
		next.ServeHTTP(w, r)
	})
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Close disconnects every websocket client.
func (s *Server) Close() error { return s.hub.Close() }

// RefreshCalls counts refresh requests received.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// SeenReports counts seen reports received.
func (s *Server) SeenReports() int64 { return s.seenReports.Load() }

// ExpireAccessTokens invalidates every access token issued so far, as if
// they had all timed out.
func (s *Server) ExpireAccessTokens() { s.tokens.revokeAccess() }

// RevokeRefreshTokens invalidates every refresh cookie.
func (s *Server) RevokeRefreshTokens() { s.tokens.revokeRefresh() }

// FailRefresh makes the refresh endpoint answer with status. Zero restores
// normal behaviour.
func (s *Server) FailRefresh(status int) {
	s.mu.Lock()
	s.refreshStatus = status
	s.mu.Unlock()
}

// Account looks up a seeded or registered user by email.
func (s *Server) Account(email string) (session.UserInfo, bool) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	a := s.data.accountByEmail(email)
	if a == nil {
		return session.UserInfo{}, false
	}
	return a.info, true
}

// PostIDs lists every post id, newest first.
func (s *Server) PostIDs() []string {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	var ids []string
	for _, p := range s.data.postsWhere(func(client.Post) bool { return true }) {
		ids = append(ids, p.ID)
	}
	return ids
}

// notify records a notification for to and pushes it over the websocket.
func (s *Server) notify(to, typ string, from *notify.Sender) {
	rec := notificationRecord(typ, from)
	s.data.mu.Lock()
	s.data.notifications[to] = append(s.data.notifications[to], rec)
	s.data.mu.Unlock()

	n := s.hub.Push(to, realtime.EventReceiveNotification, notify.Event{Type: typ, Sender: from})
	s.log.WithFields(logrus.Fields{"user_id": to, "type": typ, "delivered": n}).Debug("notification pushed")
}

// --- response helpers ---

type envelope struct {
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, status int, message string, result interface{}) {
	writeJSON(w, status, envelope{Message: message, Result: result})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Message: message})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
