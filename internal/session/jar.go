package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"
)

type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

// CookieJar is an http.CookieJar that also keeps the API host's cookies in
// buntdb, so the refresh cookie survives restarts.
type CookieJar struct {
	inner *cookiejar.Jar
	store *BuntPersister
	base  *url.URL

	mu    sync.Mutex
	saved map[string]storedCookie
}

// NewCookieJar builds a jar for the API at baseURL and reloads cookies that
// were saved for its host.
func NewCookieJar(store *BuntPersister, baseURL string) (*CookieJar, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing api url: %w", err)
	}
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	j := &CookieJar{inner: inner, store: store, base: base, saved: make(map[string]storedCookie)}

	raw, err := store.loadCookies(base.Host)
	if err != nil {
		return nil, fmt.Errorf("loading cookies: %w", err)
	}
	if raw == "" {
		return j, nil
	}
	var list []storedCookie
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("parsing stored cookies: %w", err)
	}
	now := time.Now()
	var restored []*http.Cookie
	for _, c := range list {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		j.saved[c.Name] = c
		restored = append(restored, &http.Cookie{
			Name: c.Name, Value: c.Value, Path: c.Path, Domain: c.Domain,
			Expires: c.Expires, Secure: c.Secure, HttpOnly: c.HttpOnly,
		})
	}
	inner.SetCookies(base, restored)
	return j, nil
}

func (j *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.inner.SetCookies(u, cookies)
	if u.Host != j.base.Host {
		return
	}
	for _, c := range cookies {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			delete(j.saved, c.Name)
			continue
		}
		exp := c.Expires
		if c.MaxAge > 0 {
			exp = time.Now().Add(time.Duration(c.MaxAge) * time.Second)
		}
		j.saved[c.Name] = storedCookie{
			Name: c.Name, Value: c.Value, Path: c.Path, Domain: c.Domain,
			Expires: exp, Secure: c.Secure, HttpOnly: c.HttpOnly,
		}
	}
	list := make([]storedCookie, 0, len(j.saved))
	for _, c := range j.saved {
		list = append(list, c)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return
	}
	// Best effort: an unsaved cookie only costs a login after restart.
	_ = j.store.saveCookies(j.base.Host, string(data))
}

func (j *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

// Forget drops every cookie, in memory and on disk. Called on logout.
func (j *CookieJar) Forget() error {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.inner = inner
	j.saved = make(map[string]storedCookie)
	j.mu.Unlock()
	return j.store.saveCookies(j.base.Host, "[]")
}
