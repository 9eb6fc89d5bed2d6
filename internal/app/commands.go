package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/clique/tui/internal/client"
	"github.com/clique/tui/internal/notify"
	"github.com/clique/tui/internal/session"
	"github.com/clique/tui/internal/views/debug"
)

const (
	requestTimeout = 20 * time.Second
	tickInterval   = time.Second
)

type tickMsg time.Time

type notificationMsg struct{ N notify.Notification }

type logEntryMsg struct{ E debug.Entry }

type loginResultMsg struct {
	User *session.UserInfo
	Err  error
}

type logoutDoneMsg struct{ Err error }

// ownedBy tags a response with the user it was requested for. Responses for
// anyone but the signed-in user are dropped.
type ownedBy struct{ User string }

func (o ownedBy) owner() string { return o.User }

type ownedMsg interface{ owner() string }

type feedLoadedMsg struct {
	ownedBy
	Posts []client.Post
	Err   error
}

type profilesLoadedMsg struct {
	ownedBy
	Profiles []client.Profile
	Err      error
}

type matchesLoadedMsg struct {
	ownedBy
	Page    *client.MatchesPage
	LikedMe []client.Profile
	Err     error
}

type notificationsLoadedMsg struct {
	ownedBy
	Records []client.NotificationRecord
	Err     error
}

type likeResultMsg struct {
	ownedBy
	ID     string
	Result *client.LikeResult
	Err    error
}

type unlikeResultMsg struct {
	ownedBy
	ID  string
	Err error
}

type scheduleStatusMsg struct {
	ownedBy
	ID     string
	Status *client.ScheduleStatus
	Err    error
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitNotification(ch <-chan notify.Notification) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return notificationMsg{N: n}
	}
}

func waitLogEntry(ch <-chan debug.Entry) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg { return logEntryMsg{E: <-ch} }
}

// call runs fn with a request timeout on a background goroutine.
func call(fn func(ctx context.Context) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return fn(ctx)
	}
}

func loginCmd(api *client.Client, email, password string) tea.Cmd {
	return call(func(ctx context.Context) tea.Msg {
		u, err := api.Login(ctx, email, password)
		return loginResultMsg{User: u, Err: err}
	})
}

func logoutCmd(api *client.Client) tea.Cmd {
	return call(func(ctx context.Context) tea.Msg {
		return logoutDoneMsg{Err: api.Logout(ctx)}
	})
}

func loadFeed(api *client.Client, user string) tea.Cmd {
	return call(func(ctx context.Context) tea.Msg {
		posts, err := api.Feed(ctx)
		return feedLoadedMsg{ownedBy: ownedBy{user}, Posts: posts, Err: err}
	})
}

func loadProfiles(api *client.Client, user string) tea.Cmd {
	return call(func(ctx context.Context) tea.Msg {
		ps, err := api.Profiles(ctx)
		return profilesLoadedMsg{ownedBy: ownedBy{user}, Profiles: ps, Err: err}
	})
}

func loadMatches(api *client.Client, user string) tea.Cmd {
	return call(func(ctx context.Context) tea.Msg {
		page, err := api.LoadMatchesPage(ctx)
		if err != nil {
			return matchesLoadedMsg{ownedBy: ownedBy{user}, Err: err}
		}
		liked, err := api.LikedMe(ctx)
		return matchesLoadedMsg{ownedBy: ownedBy{user}, Page: page, LikedMe: liked, Err: err}
	})
}

func loadNotifications(api *client.Client, user string) tea.Cmd {
	return call(func(ctx context.Context) tea.Msg {
		rs, err := api.Notifications(ctx)
		return notificationsLoadedMsg{ownedBy: ownedBy{user}, Records: rs, Err: err}
	})
}

func likeCmd(api *client.Client, user, id string) tea.Cmd {
	return call(func(ctx context.Context) tea.Msg {
		res, err := api.Like(ctx, id)
		return likeResultMsg{ownedBy: ownedBy{user}, ID: id, Result: res, Err: err}
	})
}

func unlikeCmd(api *client.Client, user, id string) tea.Cmd {
	return call(func(ctx context.Context) tea.Msg {
		return unlikeResultMsg{ownedBy: ownedBy{user}, ID: id, Err: api.Unlike(ctx, id)}
	})
}

func scheduleStatusCmd(api *client.Client, user, id string) tea.Cmd {
	return call(func(ctx context.Context) tea.Msg {
		st, err := api.ScheduleStatus(ctx, id)
		return scheduleStatusMsg{ownedBy: ownedBy{user}, ID: id, Status: st, Err: err}
	})
}

const expiredNotice = "Your session has expired. Please sign in again."

// describeError turns a call failure into a line for the user.
func describeError(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, client.ErrSessionExpired):
		return expiredNotice
	case errors.Is(err, client.ErrRefreshUnavailable):
		return "Can't reach Clique right now. Try again in a moment."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out."
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.As(err, &apiErr):
		return fmt.Sprintf("Request failed (%d).", apiErr.Status)
	default:
		return "Network error: " + err.Error()
	}
}
