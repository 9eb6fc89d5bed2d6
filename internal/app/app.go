// Package app is the root Bubble Tea model. It routes between screens,
// keeps every screen except login behind the session, and turns background
// events into UI updates.
package app

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/clique/tui/internal/client"
	"github.com/clique/tui/internal/notify"
	"github.com/clique/tui/internal/realtime"
	"github.com/clique/tui/internal/session"
	"github.com/clique/tui/internal/theme"
	"github.com/clique/tui/internal/views/debug"
	"github.com/clique/tui/internal/views/discover"
	"github.com/clique/tui/internal/views/feed"
	"github.com/clique/tui/internal/views/login"
	"github.com/clique/tui/internal/views/matches"
	"github.com/clique/tui/internal/views/notifications"
	"github.com/clique/tui/internal/views/status"
	"github.com/clique/tui/internal/views/toast"
	"github.com/sirupsen/logrus"
)

// Screen identifies the active page.
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenFeed
	ScreenDiscover
	ScreenMatches
	ScreenNotifications
)

func (s Screen) String() string {
	switch s {
	case ScreenLogin:
		return "Sign in"
	case ScreenFeed:
		return "Feed"
	case ScreenDiscover:
		return "Discover"
	case ScreenMatches:
		return "Matches"
	case ScreenNotifications:
		return "Notifications"
	}
	return "?"
}

// chrome is the number of rows taken by the status bar and help line.
const chrome = 5

// Deps are the collaborators the TUI drives. Realtime, Bus and LogHook may
// be nil.
type Deps struct {
	API      *client.Client
	Store    *session.Store
	Realtime *realtime.Manager
	Bus      *notify.Bus
	Tracker  feed.Tracker
	Bridge   *Bridge
	LogHook  *debug.Hook
	Log      logrus.FieldLogger
}

type noopTracker struct{}

func (noopTracker) Observe(string)         {}
func (noopTracker) Unobserve(string)       {}
func (noopTracker) Update(string, float64) {}
func (noopTracker) Reset()                 {}

// Model is the root Bubble Tea model.
type Model struct {
	deps Deps
	keys KeyMap

	width  int
	height int

	screen    Screen
	showDebug bool
	userID    string

	notifyCh    <-chan notify.Notification
	unsubscribe func()

	login         login.Model
	feed          feed.Model
	discover      discover.Model
	matches       matches.Model
	notifications notifications.Model
	toast         toast.Model
	statusBar     status.Model
	debug         debug.Model
}

// New creates the root model. The initial screen follows the restored
// session.
func New(deps Deps) Model {
	if deps.Bridge == nil {
		deps.Bridge = NewBridge(64)
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Tracker == nil {
		deps.Tracker = noopTracker{}
	}

	m := Model{
		deps:          deps,
		keys:          DefaultKeyMap(),
		login:         login.New(),
		feed:          feed.New(deps.Tracker),
		discover:      discover.New(),
		matches:       matches.New(),
		notifications: notifications.New(),
		toast:         toast.New(),
		statusBar:     status.New(),
		debug:         debug.New(),
	}
	if deps.Bus != nil {
		m.notifyCh, m.unsubscribe = deps.Bus.Subscribe(16)
	}

	m.applySession(deps.Store.Snapshot())
	m.refreshStatus(time.Now())
	return m
}

// Init starts the background listeners and, with a restored session, the
// first page loads.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.deps.Bridge.listen(),
		tick(),
		waitNotification(m.notifyCh),
	}
	if m.deps.LogHook != nil {
		cmds = append(cmds, waitLogEntry(m.deps.LogHook.Entries()))
	}
	if m.userID != "" {
		cmds = append(cmds, m.loadAll())
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if om, ok := msg.(ownedMsg); ok && (m.userID == "" || om.owner() != m.userID) {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		body := msg.Height - chrome
		if body < 3 {
			body = 3
		}
		m.feed.SetSize(msg.Width, body)
		m.discover.SetSize(msg.Width, body)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.refreshStatus(time.Time(msg))
		cmd := m.applySession(m.deps.Store.Snapshot())
		return m, tea.Batch(cmd, tick())

	case SessionChangedMsg:
		cmd := m.applySession(msg.Session)
		return m, tea.Batch(cmd, m.deps.Bridge.listen())

	case SessionEndedMsg:
		m.login.SetNotice(expiredNotice)
		cmd := m.applySession(m.deps.Store.Snapshot())
		return m, tea.Batch(cmd, m.deps.Bridge.listen())

	case RealtimeStateMsg:
		m.statusBar.Realtime = msg.State
		return m, m.deps.Bridge.listen()

	case notificationMsg:
		return m.handleNotification(msg.N)

	case logEntryMsg:
		m.debug.Add(msg.E)
		return m, waitLogEntry(m.deps.LogHook.Entries())

	case toast.FrameMsg:
		var cmd tea.Cmd
		m.toast, cmd = m.toast.Update(msg)
		return m, cmd

	case login.SubmitMsg:
		return m, loginCmd(m.deps.API, msg.Email, msg.Password)

	case loginResultMsg:
		if msg.Err != nil {
			m.login.SetError(describeError(msg.Err))
			return m, nil
		}
		return m, m.applySession(m.deps.Store.Snapshot())

	case logoutDoneMsg:
		if msg.Err != nil {
			m.deps.Log.WithError(msg.Err).Warn("sign out")
		}
		return m, m.applySession(m.deps.Store.Snapshot())

	case feedLoadedMsg:
		if msg.Err != nil {
			return m.failed(msg.Err)
		}
		m.statusBar.Notice = ""
		m.feed.SetPosts(msg.Posts)
		return m, nil

	case profilesLoadedMsg:
		if msg.Err != nil {
			return m.failed(msg.Err)
		}
		m.statusBar.Notice = ""
		m.discover.SetProfiles(msg.Profiles)
		return m, nil

	case matchesLoadedMsg:
		if msg.Err != nil {
			m.matches.SetError(describeError(msg.Err))
			return m.failed(msg.Err)
		}
		m.statusBar.Notice = ""
		m.matches.SetPage(msg.Page)
		m.matches.SetLikedMe(msg.LikedMe)
		return m, nil

	case notificationsLoadedMsg:
		if msg.Err != nil {
			m.notifications.SetError(describeError(msg.Err))
			return m.failed(msg.Err)
		}
		m.statusBar.Notice = ""
		m.notifications.SetRecords(msg.Records)
		return m, nil

	case discover.LikeMsg:
		return m, likeCmd(m.deps.API, m.userID, msg.ID)

	case discover.UnlikeMsg:
		return m, unlikeCmd(m.deps.API, m.userID, msg.ID)

	case likeResultMsg:
		if msg.Err != nil {
			m.discover.Failed(msg.ID, describeError(msg.Err))
			return m, nil
		}
		m.discover.SetLiked(msg.ID, true)
		if msg.Result != nil && msg.Result.IsMatch {
			name := ""
			if p, ok := m.discover.Selected(); ok && p.ID == msg.ID {
				name = p.Name
			}
			var cmd tea.Cmd
			m.toast, cmd = m.toast.Show(notify.FromEvent(notify.Event{Type: "match", Sender: &notify.Sender{ID: msg.ID, Name: name}}))
			return m, tea.Batch(cmd, loadMatches(m.deps.API, m.userID))
		}
		return m, nil

	case unlikeResultMsg:
		if msg.Err != nil {
			m.discover.Failed(msg.ID, describeError(msg.Err))
			return m, nil
		}
		m.discover.SetLiked(msg.ID, false)
		return m, nil

	case matches.StatusRequestMsg:
		return m, scheduleStatusCmd(m.deps.API, m.userID, msg.ID)

	case scheduleStatusMsg:
		if msg.Err != nil {
			return m.failed(msg.Err)
		}
		m.matches.SetStatus(msg.ID, msg.Status)
		return m, nil
	}

	if m.screen == ScreenLogin {
		var cmd tea.Cmd
		m.login, cmd = m.login.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m.quit()
	}

	if m.showDebug {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.showDebug = false
		case key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		case key.Matches(msg, m.keys.ErrorsOnly):
			m.debug.ToggleErrors()
		}
		return m, nil
	}

	if m.screen == ScreenLogin {
		var cmd tea.Cmd
		m.login, cmd = m.login.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Escape):
		m.toast = m.toast.Dismiss()
		return m, nil
	case key.Matches(msg, m.keys.Debug):
		m.showDebug = true
		return m, nil
	case key.Matches(msg, m.keys.Feed):
		return m.goTo(ScreenFeed)
	case key.Matches(msg, m.keys.Discover):
		return m.goTo(ScreenDiscover)
	case key.Matches(msg, m.keys.Matches):
		return m.goTo(ScreenMatches)
	case key.Matches(msg, m.keys.Notifications):
		return m.goTo(ScreenNotifications)
	case key.Matches(msg, m.keys.Tab):
		next := m.screen + 1
		if next > ScreenNotifications {
			next = ScreenFeed
		}
		return m.goTo(next)
	case key.Matches(msg, m.keys.Reload):
		return m, m.loadScreen(m.screen)
	case key.Matches(msg, m.keys.Logout):
		return m, logoutCmd(m.deps.API)
	}

	var cmd tea.Cmd
	switch m.screen {
	case ScreenFeed:
		m.feed, cmd = m.feed.Update(msg)
	case ScreenDiscover:
		m.discover, cmd = m.discover.Update(msg)
	case ScreenMatches:
		m.matches, cmd = m.matches.Update(msg)
	}
	return m, cmd
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m, tea.Quit
}

// guard maps a requested screen to the one allowed for the current session.
func (m Model) guard(s Screen) Screen {
	if !m.deps.Store.Authenticated() {
		return ScreenLogin
	}
	if s == ScreenLogin {
		return ScreenFeed
	}
	return s
}

func (m Model) goTo(s Screen) (tea.Model, tea.Cmd) {
	s = m.guard(s)
	if s == m.screen {
		return m, nil
	}
	m.setScreen(s)
	if s == ScreenFeed {
		return m, nil
	}
	return m, m.loadScreen(s)
}

func (m *Model) setScreen(s Screen) {
	m.screen = s
	m.statusBar.Screen = s.String()
	m.feed.SetActive(s == ScreenFeed)
}

func (m Model) loadScreen(s Screen) tea.Cmd {
	switch s {
	case ScreenFeed:
		return loadFeed(m.deps.API, m.userID)
	case ScreenDiscover:
		return loadProfiles(m.deps.API, m.userID)
	case ScreenMatches:
		return loadMatches(m.deps.API, m.userID)
	case ScreenNotifications:
		return loadNotifications(m.deps.API, m.userID)
	}
	return nil
}

func (m Model) loadAll() tea.Cmd {
	return tea.Batch(
		loadFeed(m.deps.API, m.userID),
		loadProfiles(m.deps.API, m.userID),
		loadMatches(m.deps.API, m.userID),
		loadNotifications(m.deps.API, m.userID),
	)
}

// applySession reconciles the UI with the store. A new identity resets every
// screen and starts loading; losing the session returns to the login form.
func (m *Model) applySession(s session.Session) tea.Cmd {
	m.statusBar.User = ""
	if s.Profile != nil {
		m.statusBar.User = s.Profile.Name
	}
	if s.Authenticated() && m.statusBar.User == "" {
		m.statusBar.User = s.UserID
	}

	switch {
	case s.Authenticated() && s.UserID != m.userID:
		m.userID = s.UserID
		m.resetData()
		m.login.Reset()
		m.setScreen(ScreenFeed)
		return m.loadAll()

	case !s.Authenticated() && m.userID != "":
		m.userID = ""
		m.resetData()
		m.login.Reset()
		m.setScreen(ScreenLogin)
	}
	return nil
}

// resetData drops everything loaded for the previous user, including the
// seen set.
func (m *Model) resetData() {
	m.feed.Clear()
	m.deps.Tracker.Reset()
	m.discover = discover.New()
	m.discover.SetSize(m.width, m.height-chrome)
	m.matches.Reset()
	m.notifications.Reset()
}

func (m *Model) refreshStatus(now time.Time) {
	m.statusBar.Now = now
	m.statusBar.Screen = m.screen.String()
	if exp, ok := m.deps.Store.TokenExpiry(); ok {
		m.statusBar.Expiry = exp
	} else {
		m.statusBar.Expiry = time.Time{}
	}
	if m.deps.Realtime != nil {
		m.statusBar.Realtime = m.deps.Realtime.State()
	}
}

func (m Model) handleNotification(n notify.Notification) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{waitNotification(m.notifyCh)}
	if m.userID == "" {
		return m, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	m.toast, cmd = m.toast.Show(n)
	cmds = append(cmds, cmd)

	m.notifications.Prepend(client.NotificationRecord{
		Type:      string(n.Kind),
		Sender:    &notify.Sender{Name: n.SenderName},
		CreatedAt: n.ReceivedAt,
	})
	if n.Kind == notify.KindMatch {
		cmds = append(cmds, loadMatches(m.deps.API, m.userID))
	}
	return m, tea.Batch(cmds...)
}

// failed reports a load error. An ended session is handled by the session
// messages, so it is not repeated here.
func (m Model) failed(err error) (tea.Model, tea.Cmd) {
	m.deps.Log.WithError(err).Warn("request failed")
	if m.userID == "" {
		return m, nil
	}
	m.statusBar.Notice = describeError(err)
	return m, nil
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showDebug {
		return m.debug.View(m.width, m.height)
	}

	var body string
	switch m.screen {
	case ScreenLogin:
		body = lipgloss.Place(m.width, m.height-chrome, lipgloss.Center, lipgloss.Center, m.login.View())
	case ScreenFeed:
		body = m.feed.View()
	case ScreenDiscover:
		body = m.discover.View()
	case ScreenMatches:
		body = m.matches.View()
	case ScreenNotifications:
		body = m.notifications.View()
	}

	if m.toast.Visible() && m.width > 60 {
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(m.width-42).Render(body),
			"  ", m.toast.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.statusBar.View(), body, m.help())
}

func (m Model) help() string {
	if m.screen == ScreenLogin {
		return ""
	}
	hints := "  1:feed  2:discover  3:matches  4:notifications  r:reload  o:sign out  d:debug  q:quit"
	switch m.screen {
	case ScreenDiscover:
		hints += "  l:like  u:unlike"
	case ScreenMatches:
		hints += "  enter:schedule status"
	}
	return theme.StyleDimmed.Render(hints)
}
