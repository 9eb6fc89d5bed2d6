package app

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/clique/tui/internal/realtime"
	"github.com/clique/tui/internal/session"
)

// SessionChangedMsg is sent after every credential store mutation.
type SessionChangedMsg struct{ Session session.Session }

// SessionEndedMsg is sent when a failed refresh ended the session.
type SessionEndedMsg struct{ Err error }

// RealtimeStateMsg carries a realtime connection state change.
type RealtimeStateMsg struct{ State realtime.State }

// Bridge carries events from background goroutines (store listeners, the
// refresh pipeline, the realtime manager) into the Bubble Tea loop. Sends
// never block; the periodic status tick re-reads the same state, so a
// dropped event is only late, not lost.
type Bridge struct {
	ch chan tea.Msg
}

func NewBridge(buffer int) *Bridge {
	return &Bridge{ch: make(chan tea.Msg, buffer)}
}

// Send queues msg and reports whether it fit.
func (b *Bridge) Send(msg tea.Msg) bool {
	select {
	case b.ch <- msg:
		return true
	default:
		return false
	}
}

// SessionChanged is a session.Listener.
func (b *Bridge) SessionChanged(s session.Session) { b.Send(SessionChangedMsg{Session: s}) }

// SessionEnded is the pipeline's session-ended hook.
func (b *Bridge) SessionEnded(err error) { b.Send(SessionEndedMsg{Err: err}) }

// RealtimeState is the realtime manager's state hook.
func (b *Bridge) RealtimeState(s realtime.State) { b.Send(RealtimeStateMsg{State: s}) }

func (b *Bridge) listen() tea.Cmd {
	return func() tea.Msg { return <-b.ch }
}
