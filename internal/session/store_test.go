package session

import (
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *BuntPersister {
	t.Helper()
	p, err := OpenBunt(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestStoreLoginAndClear(t *testing.T) {
	s := NewStore(openMem(t))

	require.NoError(t, s.Login("u1", "tok-1", &UserInfo{ID: "u1", Name: "Lan"}))
	snap := s.Snapshot()
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, "tok-1", snap.AccessToken)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "Lan", snap.Profile.Name)
	assert.True(t, s.Authenticated())

	require.NoError(t, s.Clear())
	assert.Equal(t, Session{}, s.Snapshot())
	assert.False(t, s.Authenticated())
}

func TestStoreLoginRejectsPartial(t *testing.T) {
	s := NewStore(nil)
	assert.Error(t, s.Login("u1", "", nil))
	assert.Error(t, s.Login("", "tok", nil))
	assert.False(t, s.Authenticated())
}

func TestStoreSetAccessTokenNeedsIdentity(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.SetAccessToken("orphan"))
	assert.Equal(t, "", s.AccessToken(), "token without user must not be stored")

	require.NoError(t, s.Login("u1", "tok-1", nil))
	require.NoError(t, s.SetAccessToken("tok-2"))
	assert.Equal(t, "tok-2", s.AccessToken())
	assert.Equal(t, "u1", s.UserID())
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.Login("u1", "tok", &UserInfo{Name: "Lan"}))

	snap := s.Snapshot()
	snap.Profile.Name = "changed"
	assert.Equal(t, "Lan", s.Snapshot().Profile.Name)
}

func TestStorePersistsAcrossRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clique.db")

	p1, err := OpenBunt(path)
	require.NoError(t, err)
	s1 := NewStore(p1)
	require.NoError(t, s1.Login("u1", "tok-1", &UserInfo{ID: "u1", Name: "An", Age: 24}))
	require.NoError(t, s1.UpdateProfile(&UserInfo{ID: "u1", Name: "An", Age: 25}))
	require.NoError(t, p1.Close())

	p2, err := OpenBunt(path)
	require.NoError(t, err)
	defer p2.Close()
	s2 := NewStore(p2)
	require.NoError(t, s2.Restore())

	snap := s2.Snapshot()
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, "tok-1", snap.AccessToken)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, 25, snap.Profile.Age)
}

type halfPersister struct {
	cleared bool
}

func (h *halfPersister) LoadSession() (Session, error) {
	return Session{AccessToken: "dangling"}, nil
}
func (h *halfPersister) SaveSession(Session) error { return nil }
func (h *halfPersister) ClearSession() error {
	h.cleared = true
	return nil
}

func TestStoreRestoreDiscardsPartialSession(t *testing.T) {
	p := &halfPersister{}
	s := NewStore(p)
	require.NoError(t, s.Restore())
	assert.False(t, s.Authenticated())
	assert.Equal(t, "", s.AccessToken())
	assert.True(t, p.cleared)
}

type failingPersister struct{}

func (failingPersister) LoadSession() (Session, error) { return Session{}, nil }
func (failingPersister) SaveSession(Session) error     { return errors.New("disk full") }
func (failingPersister) ClearSession() error           { return nil }

func TestStoreLoginSaveFailureLeavesStateUntouched(t *testing.T) {
	s := NewStore(failingPersister{})
	err := s.Login("u1", "tok", nil)
	assert.Error(t, err)
	assert.False(t, s.Authenticated())
}

func TestStoreListenersSeeOrderedChanges(t *testing.T) {
	s := NewStore(nil)

	var mu sync.Mutex
	var seen []string
	unsub := s.Subscribe(func(snap Session) {
		mu.Lock()
		seen = append(seen, snap.UserID)
		mu.Unlock()
	})

	require.NoError(t, s.Login("u1", "t1", nil))
	require.NoError(t, s.SetAccessToken("t2"))
	require.NoError(t, s.Login("u2", "t3", nil))
	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear()) // no change, no event

	unsub()
	require.NoError(t, s.Login("u3", "t4", nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"u1", "u1", "u2", ""}, seen)
}

func TestStoreTokenExpiry(t *testing.T) {
	s := NewStore(nil)
	_, ok := s.TokenExpiry()
	assert.False(t, ok)

	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)

	require.NoError(t, s.Login("u1", tok, nil))
	got, ok := s.TokenExpiry()
	require.True(t, ok)
	assert.True(t, got.Equal(exp), "got %v want %v", got, exp)

	require.NoError(t, s.SetAccessToken("not-a-jwt"))
	_, ok = s.TokenExpiry()
	assert.False(t, ok)
}

func TestCookieJarPersistsAcrossInstances(t *testing.T) {
	p := openMem(t)
	base := "http://api.test:4000"
	u, _ := url.Parse(base + "/users/login")

	j1, err := NewCookieJar(p, base)
	require.NoError(t, err)
	j1.SetCookies(u, []*http.Cookie{{Name: "refresh_token", Value: "r1", Path: "/", HttpOnly: true}})

	j2, err := NewCookieJar(p, base)
	require.NoError(t, err)
	refreshURL, _ := url.Parse(base + "/users/refresh-token")
	cookies := j2.Cookies(refreshURL)
	require.Len(t, cookies, 1)
	assert.Equal(t, "r1", cookies[0].Value)
}

func TestCookieJarForgetAndClear(t *testing.T) {
	p := openMem(t)
	base := "http://api.test:4000"
	u, _ := url.Parse(base + "/")

	j, err := NewCookieJar(p, base)
	require.NoError(t, err)
	j.SetCookies(u, []*http.Cookie{{Name: "refresh_token", Value: "r1", Path: "/"}})
	require.NoError(t, j.Forget())
	assert.Empty(t, j.Cookies(u))

	j.SetCookies(u, []*http.Cookie{{Name: "refresh_token", Value: "r2", Path: "/"}})
	require.NoError(t, p.ClearSession())
	fresh, err := NewCookieJar(p, base)
	require.NoError(t, err)
	assert.Empty(t, fresh.Cookies(u))
}

func TestCookieJarDropsExpiredCookie(t *testing.T) {
	p := openMem(t)
	base := "http://api.test"
	u, _ := url.Parse(base + "/")

	j, err := NewCookieJar(p, base)
	require.NoError(t, err)
	j.SetCookies(u, []*http.Cookie{{Name: "refresh_token", Value: "r1", Path: "/"}})
	j.SetCookies(u, []*http.Cookie{{Name: "refresh_token", Value: "", Path: "/", MaxAge: -1}})

	fresh, err := NewCookieJar(p, base)
	require.NoError(t, err)
	assert.Empty(t, fresh.Cookies(u))
}
