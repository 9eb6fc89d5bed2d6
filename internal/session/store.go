// Package session holds the signed-in identity and access token, persists it
// across restarts, and notifies listeners when it changes.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserInfo is the profile of the signed-in user.
type UserInfo struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
	Bio    string `json:"bio,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Email  string `json:"email"`
}

// Session is a point-in-time copy of the credential state. AccessToken is
// non-empty exactly when UserID is.
type Session struct {
	UserID      string
	AccessToken string
	Profile     *UserInfo
}

// Authenticated reports whether the session carries an identity.
func (s Session) Authenticated() bool {
	return s.UserID != "" && s.AccessToken != ""
}

// Persister stores the session durably.
type Persister interface {
	LoadSession() (Session, error)
	SaveSession(Session) error
	ClearSession() error
}

// Listener is called after every mutation with the new state. Listeners run
// in mutation order and must not call back into the Store's mutators.
type Listener func(Session)

// Store is the single owner of the session. All mutations go through Login,
// SetAccessToken, UpdateProfile and Clear.
type Store struct {
	persist Persister

	// emitMu serialises mutate-then-notify so listeners observe changes in
	// the order they were made.
	emitMu sync.Mutex

	mu        sync.RWMutex
	cur       Session
	listeners map[int]Listener
	nextID    int
}

// NewStore creates an empty store. A nil persister keeps state in memory only.
func NewStore(p Persister) *Store {
	return &Store{
		persist:   p,
		listeners: make(map[int]Listener),
	}
}

// Restore loads the persisted session. A half-written session is discarded.
func (s *Store) Restore() error {
	if s.persist == nil {
		return nil
	}
	loaded, err := s.persist.LoadSession()
	if err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}

	if (loaded.UserID == "") != (loaded.AccessToken == "") {
		loaded = Session{}
		if err := s.persist.ClearSession(); err != nil {
			return fmt.Errorf("clearing partial session: %w", err)
		}
	}

	s.mutate(func(cur *Session) bool {
		*cur = loaded
		return true
	})
	return nil
}

// Login installs a fresh identity.
func (s *Store) Login(userID, token string, profile *UserInfo) error {
	if userID == "" || token == "" {
		return fmt.Errorf("login requires user id and token")
	}
	next := Session{UserID: userID, AccessToken: token, Profile: cloneUser(profile)}
	var saveErr error
	s.mutate(func(cur *Session) bool {
		if saveErr = s.save(next); saveErr != nil {
			return false
		}
		*cur = next
		return true
	})
	return saveErr
}

// SetAccessToken replaces the token of the current identity. It is a no-op
// when nobody is signed in.
func (s *Store) SetAccessToken(token string) error {
	if token == "" {
		return fmt.Errorf("empty access token")
	}
	var saveErr error
	s.mutate(func(cur *Session) bool {
		if cur.UserID == "" {
			return false
		}
		next := *cur
		next.AccessToken = token
		if saveErr = s.save(next); saveErr != nil {
			return false
		}
		*cur = next
		return true
	})
	return saveErr
}

// UpdateProfile replaces the stored profile of the current identity.
func (s *Store) UpdateProfile(profile *UserInfo) error {
	var saveErr error
	s.mutate(func(cur *Session) bool {
		if cur.UserID == "" {
			return false
		}
		next := *cur
		next.Profile = cloneUser(profile)
		if saveErr = s.save(next); saveErr != nil {
			return false
		}
		*cur = next
		return true
	})
	return saveErr
}

// Clear drops every session field, in memory and on disk.
func (s *Store) Clear() error {
	var err error
	s.mutate(func(cur *Session) bool {
		if s.persist != nil {
			err = s.persist.ClearSession()
		}
		if *cur == (Session{}) {
			return false
		}
		*cur = Session{}
		return true
	})
	if err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.cur
	out.Profile = cloneUser(s.cur.Profile)
	return out
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.AccessToken
}

func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.UserID
}

func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Authenticated()
}

// TokenExpiry reads the exp claim of the access token. The signature is not
// checked; the client never holds the signing key.
func (s *Store) TokenExpiry() (time.Time, bool) {
	tok := s.AccessToken()
	if tok == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// mutate applies fn under the state lock and, if fn reports a change,
// notifies listeners with the new state outside that lock.
func (s *Store) mutate(fn func(*Session) bool) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	changed := fn(&s.cur)
	snap := s.cur
	snap.Profile = cloneUser(s.cur.Profile)
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range listeners {
		l(snap)
	}
}

func (s *Store) save(next Session) error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist.SaveSession(next); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}

func cloneUser(u *UserInfo) *UserInfo {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
