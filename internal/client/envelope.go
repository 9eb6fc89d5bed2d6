package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Envelope is one logical request travelling through the Pipeline. It owns a
// replayable body so the request can be rebuilt after a token refresh.
type Envelope struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte

	// Retried is set once the request has been replayed after a refresh.
	Retried bool
	// SkipRefresh sends the request without refresh-on-401 handling. Used by
	// the credential endpoints, where 401 means bad input.
	SkipRefresh bool
	// RequestID is sent as X-Request-ID on every attempt.
	RequestID string
}

// NewEnvelope builds an envelope with a JSON body. A nil body sends none.
func NewEnvelope(method, path string, body interface{}) (*Envelope, error) {
	env := &Envelope{Method: method, Path: path}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		env.Body = data
	}
	return env, nil
}

// URL joins the envelope path and query onto base.
func (e *Envelope) URL(base string) string {
	u := base + e.Path
	if len(e.Query) > 0 {
		u += "?" + e.Query.Encode()
	}
	return u
}

var (
	// ErrSessionExpired means the refresh endpoint rejected the renewal
	// credential; the session has been cleared.
	ErrSessionExpired = errors.New("session expired")
	// ErrRefreshUnavailable means the refresh call failed for network or
	// server reasons.
	ErrRefreshUnavailable = errors.New("token refresh unavailable")
)

// APIError is a non-2xx response passed through to the caller.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Body)
}

// IsUnauthorized reports whether err is a 401 that survived the refresh
// pipeline.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
