package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clique/tui/internal/session"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultRefreshPath    = "/users/refresh-token"
	defaultRefreshTimeout = 15 * time.Second
	maxErrorBody          = 4 << 10
)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	BaseURL        string
	HTTPClient     *http.Client
	Store          *session.Store
	Log            logrus.FieldLogger
	RefreshPath    string
	RefreshTimeout time.Duration

	// StrictLogout ends the session on any refresh failure, including
	// network and 5xx errors.
	StrictLogout bool

	// OnSessionEnded is called after a refresh failure cleared the session.
	OnSessionEnded func(error)
	// Forget drops the renewal credential (the cookie jar) when the session
	// ends.
	Forget func() error
}

type refreshResult struct {
	token string
	err   error
}

// Pipeline sends requests with the current bearer token and recovers from
// 401 responses with a single shared refresh.
type Pipeline struct {
	baseURL        string
	http           *http.Client
	store          *session.Store
	log            logrus.FieldLogger
	refreshPath    string
	refreshTimeout time.Duration
	strictLogout   bool
	onSessionEnded func(error)
	forget         func() error

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult

	refreshCalls atomic.Int64
}

// NewPipeline creates a pipeline. Zero config fields get defaults.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		baseURL:        cfg.BaseURL,
		http:           cfg.HTTPClient,
		store:          cfg.Store,
		log:            cfg.Log,
		refreshPath:    cfg.RefreshPath,
		refreshTimeout: cfg.RefreshTimeout,
		strictLogout:   cfg.StrictLogout,
		onSessionEnded: cfg.OnSessionEnded,
		forget:         cfg.Forget,
	}
	if p.http == nil {
		p.http = &http.Client{Timeout: 10 * time.Second}
	}
	if p.refreshPath == "" {
		p.refreshPath = defaultRefreshPath
	}
	if p.refreshTimeout <= 0 {
		p.refreshTimeout = defaultRefreshTimeout
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	p.log = p.log.WithField("component", "auth")
	return p
}

// SetOnSessionEnded replaces the session-ended hook. Call before sending.
func (p *Pipeline) SetOnSessionEnded(fn func(error)) {
	p.onSessionEnded = fn
}

// RefreshCalls returns how many refresh requests have been sent.
func (p *Pipeline) RefreshCalls() int64 {
	return p.refreshCalls.Load()
}

// Do sends env. A 401 on a request that has not been retried is recovered by
// refreshing the token (or waiting for the refresh already in flight) and
// replaying the request once. Any other response is returned as is.
func (p *Pipeline) Do(ctx context.Context, env *Envelope) (*http.Response, error) {
	if env.RequestID == "" {
		env.RequestID = uuid.NewString()
	}

	token := p.store.AccessToken()
	resp, err := p.send(ctx, env, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || env.Retried || env.SkipRefresh {
		return resp, nil
	}
	discard(resp)

	log := p.log.WithFields(logrus.Fields{
		"request_id": env.RequestID,
		"method":     env.Method,
		"path":       env.Path,
	})
	log.Debug("request unauthorized, renewing token")

	fresh, err := p.renew(ctx, token)
	if err != nil {
		return nil, err
	}

	env.Retried = true
	log.Debug("replaying request with renewed token")
	return p.send(ctx, env, fresh)
}

// renew returns a token to replay with. It either reuses a token that
// changed since the request was sent, joins the refresh in flight, or
// starts one. A request sent with a token for a session that has since
// ended is not refreshed again.
func (p *Pipeline) renew(ctx context.Context, sentWith string) (string, error) {
	p.mu.Lock()
	if p.refreshing {
		ch := make(chan refreshResult, 1)
		p.waiters = append(p.waiters, ch)
		p.mu.Unlock()

		select {
		case r := <-ch:
			return r.token, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	cur := p.store.AccessToken()
	if sentWith != "" && cur == "" {
		p.mu.Unlock()
		return "", ErrSessionExpired
	}
	if cur != "" && cur != sentWith {
		p.mu.Unlock()
		return cur, nil
	}
	p.refreshing = true
	p.mu.Unlock()

	return p.refresh(ctx)
}

// refresh performs the single in-flight refresh and settles every waiter
// that queued behind it.
func (p *Pipeline) refresh(ctx context.Context) (token string, err error) {
	defer func() {
		p.mu.Lock()
		p.refreshing = false
		waiters := p.waiters
		p.waiters = nil
		p.mu.Unlock()

		for _, w := range waiters {
			w <- refreshResult{token: token, err: err}
		}
	}()

	// Every waiter depends on this call, so the initiator's cancellation
	// must not abort it.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.refreshTimeout)
	defer cancel()

	token, err = p.callRefresh(rctx)
	if err != nil {
		p.log.WithError(err).Warn("token refresh failed")
		if p.strictLogout || isTerminal(err) {
			p.endSession(err)
		}
		return "", err
	}

	if serr := p.store.SetAccessToken(token); serr != nil {
		p.log.WithError(serr).Warn("storing refreshed token")
	}
	p.log.Info("access token refreshed")
	return token, nil
}

func (p *Pipeline) callRefresh(ctx context.Context) (string, error) {
	p.refreshCalls.Add(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.refreshPath, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: refresh returned %d", ErrRefreshUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: refresh rejected with %d", ErrSessionExpired, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		Result      *struct {
			AccessToken string `json:"access_token"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding refresh response: %v", ErrSessionExpired, err)
	}
	token := body.AccessToken
	if token == "" && body.Result != nil {
		token = body.Result.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("%w: refresh response carried no token", ErrSessionExpired)
	}
	return token, nil
}

func (p *Pipeline) endSession(reason error) {
	if err := p.store.Clear(); err != nil {
		p.log.WithError(err).Warn("clearing session")
	}
	if p.forget != nil {
		if err := p.forget(); err != nil {
			p.log.WithError(err).Warn("dropping renewal credential")
		}
	}
	p.log.WithError(reason).Info("session ended")
	if p.onSessionEnded != nil {
		p.onSessionEnded(reason)
	}
}

func (p *Pipeline) send(ctx context.Context, env *Envelope, token string) (*http.Response, error) {
	var body io.Reader
	if env.Body != nil {
		body = bytes.NewReader(env.Body)
	}
	req, err := http.NewRequestWithContext(ctx, env.Method, env.URL(p.baseURL), body)
	if err != nil {
		return nil, err
	}
	if env.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", env.RequestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return p.http.Do(req)
}

// isTerminal reports whether a refresh error means the renewal credential
// itself was rejected.
func isTerminal(err error) bool {
	return err != nil && !errors.Is(err, ErrRefreshUnavailable)
}

func discard(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
