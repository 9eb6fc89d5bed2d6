package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/clique/tui/internal/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Client is the typed Clique API. Construct it with New.
type Client struct {
	pipe   *Pipeline
	store  *session.Store
	forget func() error
	log    logrus.FieldLogger
}

// New wraps a pipeline. forget drops the renewal credential on logout and
// may be nil.
func New(pipe *Pipeline, store *session.Store, forget func() error, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{pipe: pipe, store: store, forget: forget, log: log.WithField("component", "api")}
}

// Pipeline returns the request pipeline the client sends through.
func (c *Client) Pipeline() *Pipeline {
	return c.pipe
}

// --- auth ---

// SendRegisterOTP starts registration by emailing a one-time code.
func (c *Client) SendRegisterOTP(ctx context.Context, r Registration) error {
	r.OTP = ""
	return c.credentialCall(ctx, "/users/send-otp-register", r, nil)
}

// VerifyRegisterOTP completes registration with the emailed code.
func (c *Client) VerifyRegisterOTP(ctx context.Context, r Registration) error {
	return c.credentialCall(ctx, "/users/verify-otp-register", r, nil)
}

// Login signs in and installs the session. The refresh cookie from the
// response lands in the HTTP client's jar.
func (c *Client) Login(ctx context.Context, email, password string) (*session.UserInfo, error) {
	var out loginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.credentialCall(ctx, "/users/login", body, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" || out.User.ID == "" {
		return nil, fmt.Errorf("login response missing user or token")
	}
	if err := c.store.Login(out.User.ID, out.AccessToken, &out.User); err != nil {
		return nil, err
	}
	c.log.WithField("user_id", out.User.ID).Info("signed in")
	return &out.User, nil
}

// Logout tells the server (best effort) and clears the local session.
func (c *Client) Logout(ctx context.Context) error {
	env, _ := NewEnvelope(http.MethodPost, "/users/logout", nil)
	env.SkipRefresh = true
	if err := c.do(ctx, env, nil); err != nil {
		c.log.WithError(err).Warn("server logout failed, clearing locally")
	}
	if c.forget != nil {
		if err := c.forget(); err != nil {
			c.log.WithError(err).Warn("dropping renewal credential")
		}
	}
	return c.store.Clear()
}

// Me fetches the signed-in profile and refreshes the stored copy.
func (c *Client) Me(ctx context.Context) (*session.UserInfo, error) {
	var u session.UserInfo
	if err := c.get(ctx, "/users/me", nil, &u); err != nil {
		return nil, err
	}
	if err := c.store.UpdateProfile(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile edits the signed-in profile and refreshes the stored copy.
func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*session.UserInfo, error) {
	var u session.UserInfo
	if err := c.send(ctx, http.MethodPut, "/users/update-profile", upd, &u); err != nil {
		return nil, err
	}
	if err := c.store.UpdateProfile(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UploadSignature fetches a signature for a direct asset upload.
func (c *Client) UploadSignature(ctx context.Context) (*UploadSignature, error) {
	var s UploadSignature
	if err := c.get(ctx, "/users/upload-signature", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// --- profiles, likes, matches ---

func (c *Client) Profiles(ctx context.Context) ([]Profile, error) {
	var out []Profile
	err := c.get(ctx, "/dating/users", nil, &out)
	return out, err
}

func (c *Client) Profile(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	if err := c.get(ctx, "/dating/users/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Like sends a like. The result says whether it completed a match.
func (c *Client) Like(ctx context.Context, id string) (*LikeResult, error) {
	var r LikeResult
	if err := c.send(ctx, http.MethodPost, "/dating/users/"+url.PathEscape(id)+"/like", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) Unlike(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/dating/users/"+url.PathEscape(id)+"/like", nil, nil)
}

func (c *Client) Matches(ctx context.Context) ([]Profile, error) {
	var out []Profile
	err := c.get(ctx, "/dating/users/matches", nil, &out)
	return out, err
}

func (c *Client) LikedMe(ctx context.Context) ([]Profile, error) {
	var out []Profile
	err := c.get(ctx, "/dating/users/liked-me", nil, &out)
	return out, err
}

// MatchesPage is the data behind the matches screen.
type MatchesPage struct {
	Matches      []Profile
	Appointments []Appointment
}

// AppointmentWith returns the appointment involving userID, if any.
func (p MatchesPage) AppointmentWith(userID string) (Appointment, bool) {
	for _, a := range p.Appointments {
		if a.Involves(userID) {
			return a, true
		}
	}
	return Appointment{}, false
}

// LoadMatchesPage fetches matches and appointments concurrently.
func (c *Client) LoadMatchesPage(ctx context.Context) (*MatchesPage, error) {
	var page MatchesPage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		page.Matches, err = c.Matches(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		page.Appointments, err = c.Appointments(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &page, nil
}

// --- posts ---

func (c *Client) CreatePost(ctx context.Context, p NewPost) (*Post, error) {
	var out Post
	if err := c.send(ctx, http.MethodPost, "/dating/posts", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Posts lists posts by userID, or the caller's own posts when userID is "".
func (c *Client) Posts(ctx context.Context, userID string) ([]Post, error) {
	var q url.Values
	if userID != "" {
		q = url.Values{"userId": {userID}}
	}
	var out []Post
	err := c.get(ctx, "/dating/posts", q, &out)
	return out, err
}

// Feed returns posts the user has not seen yet.
func (c *Client) Feed(ctx context.Context) ([]Post, error) {
	var out []Post
	err := c.get(ctx, "/dating/posts/feed", nil, &out)
	return out, err
}

// MarkPostSeen reports a post as seen.
func (c *Client) MarkPostSeen(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodPost, "/dating/posts/"+url.PathEscape(id)+"/seen", nil, nil)
}

// Notifications returns the stored notification history.
func (c *Client) Notifications(ctx context.Context) ([]NotificationRecord, error) {
	var out []NotificationRecord
	err := c.get(ctx, "/dating/notifications", nil, &out)
	return out, err
}

// --- scheduling ---

func (c *Client) SubmitAvailability(ctx context.Context, targetUserID string, slots []Slot) (*AvailabilityResult, error) {
	body := struct {
		TargetUserID string `json:"targetUserId"`
		Slots        []Slot `json:"slots"`
	}{targetUserID, slots}
	var out AvailabilityResult
	if err := c.send(ctx, http.MethodPost, "/dating/schedule/availability", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConfirmAppointment(ctx context.Context, targetUserID string, slot Slot) (*Appointment, error) {
	body := struct {
		TargetUserID string `json:"targetUserId"`
		Slot
	}{targetUserID, slot}
	var out Appointment
	if err := c.send(ctx, http.MethodPost, "/dating/schedule/confirm", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Appointments(ctx context.Context) ([]Appointment, error) {
	var out []Appointment
	err := c.get(ctx, "/dating/schedule/appointments", nil, &out)
	return out, err
}

func (c *Client) ScheduleStatus(ctx context.Context, targetUserID string) (*ScheduleStatus, error) {
	var out ScheduleStatus
	if err := c.get(ctx, "/dating/schedule/status/"+url.PathEscape(targetUserID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- plumbing ---

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	env := &Envelope{Method: http.MethodGet, Path: path, Query: q}
	return c.do(ctx, env, out)
}

func (c *Client) send(ctx context.Context, method, path string, body, out interface{}) error {
	env, err := NewEnvelope(method, path, body)
	if err != nil {
		return err
	}
	return c.do(ctx, env, out)
}

// credentialCall posts to an endpoint where 401 means bad credentials, so
// no refresh is attempted. The body is decoded unwrapped.
func (c *Client) credentialCall(ctx context.Context, path string, body, out interface{}) error {
	env, err := NewEnvelope(http.MethodPost, path, body)
	if err != nil {
		return err
	}
	env.SkipRefresh = true
	resp, err := c.pipe.Do(ctx, env)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readAPIError(env, resp)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return decodeFlexible(data, out)
}

func (c *Client) do(ctx context.Context, env *Envelope, out interface{}) error {
	resp, err := c.pipe.Do(ctx, env)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return readAPIError(env, resp)
	}
	if out == nil {
		return nil
	}

	var wrapped struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", env.Method, env.Path, err)
	}
	if len(wrapped.Result) == 0 || string(wrapped.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(wrapped.Result, out); err != nil {
		return fmt.Errorf("%s %s: decoding result: %w", env.Method, env.Path, err)
	}
	return nil
}

// decodeFlexible accepts a payload either at the top level or inside a
// "result" wrapper.
func decodeFlexible(data []byte, out interface{}) error {
	var wrapped struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Result) > 0 && string(wrapped.Result) != "null" {
		return json.Unmarshal(wrapped.Result, out)
	}
	return json.Unmarshal(data, out)
}

func readAPIError(env *Envelope, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{
		Method: env.Method,
		Path:   env.Path,
		Status: resp.StatusCode,
		Body:   string(data),
	}
	var msg struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &msg) == nil {
		apiErr.Message = msg.Message
	}
	return apiErr
}
