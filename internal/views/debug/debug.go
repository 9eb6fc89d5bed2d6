// Package debug provides a scrollable log overlay fed by a logrus hook.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/clique/tui/internal/theme"
	"github.com/sirupsen/logrus"
)

const maxEntries = 200

// Entry is one condensed log line. Kind is the logging component, or "err"
// for error-level entries.
type Entry struct {
	Time      time.Time
	Kind      string
	Message   string
	RequestID string
}

// Hook copies log entries into a channel the TUI drains. Entries are dropped
// when the channel is full.
type Hook struct {
	ch chan Entry
}

func NewHook(buffer int) *Hook {
	return &Hook{ch: make(chan Entry, buffer)}
}

// Entries is the receive side of the hook.
func (h *Hook) Entries() <-chan Entry { return h.ch }

func (h *Hook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel,
		logrus.WarnLevel, logrus.InfoLevel,
	}
}

func (h *Hook) Fire(e *logrus.Entry) error {
	select {
	case h.ch <- FromLogrus(e):
	default:
	}
	return nil
}

// FromLogrus condenses a log entry into a single line.
func FromLogrus(e *logrus.Entry) Entry {
	kind := "log"
	if c, ok := e.Data["component"].(string); ok && c != "" {
		kind = c
	}
	if e.Level <= logrus.ErrorLevel {
		kind = "err"
	}

	out := Entry{Time: e.Time, Kind: kind, Message: e.Message}
	if err, ok := e.Data[logrus.ErrorKey].(error); ok {
		out.Message += ": " + err.Error()
	}
	if id, ok := e.Data["request_id"].(string); ok {
		out.RequestID = id
	}
	return out
}

// Model is the overlay state: a bounded history and a scroll position
// counted in lines back from the newest entry.
type Model struct {
	entries    []Entry
	back       int
	errorsOnly bool
}

func New() Model { return Model{} }

// Add records e, dropping the oldest entry past the cap, and jumps back to
// the newest line.
func (m *Model) Add(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if len(m.entries) == maxEntries {
		copy(m.entries, m.entries[1:])
		m.entries = m.entries[:maxEntries-1]
	}
	m.entries = append(m.entries, e)
	m.back = 0
}

// Len is the number of entries kept.
func (m Model) Len() int { return len(m.entries) }

// Back is how many lines the view is scrolled away from the newest entry.
func (m Model) Back() int { return m.back }

// ToggleErrors switches between all entries and error entries only.
func (m *Model) ToggleErrors() {
	m.errorsOnly = !m.errorsOnly
	m.back = 0
}

func (m *Model) ScrollUp(n int) {
	m.back = min(m.back+n, max(len(m.shown())-1, 0))
}

func (m *Model) ScrollDown(n int) {
	m.back = max(m.back-n, 0)
}

func (m Model) shown() []Entry {
	if !m.errorsOnly {
		return m.entries
	}
	var out []Entry
	for _, e := range m.entries {
		if e.Kind == "err" {
			out = append(out, e)
		}
	}
	return out
}

// View renders the overlay in a width x height box.
func (m Model) View(width, height int) string {
	inner := max(width-4, 20)
	rows := max(height-6, 3)

	filter := "all"
	if m.errorsOnly {
		filter = "errors"
	}
	header := theme.StyleHeader.Render(" DEBUG LOG ")
	footer := theme.StyleDimmed.Render(fmt.Sprintf("j/k scroll · e %s · esc close · %d kept", filter, len(m.entries)))

	shown := m.shown()
	var body []string
	if len(shown) == 0 {
		body = append(body, "", theme.StyleDimmed.Render("  Nothing logged yet."), "")
	} else {
		last := len(shown) - m.back
		for _, e := range shown[max(last-rows, 0):last] {
			body = append(body, renderEntry(e, inner))
		}
		if m.back > 0 {
			body = append(body, theme.StyleDimmed.Render(fmt.Sprintf(" %d newer below", m.back)))
		}
	}

	parts := append([]string{header}, body...)
	parts = append(parts, footer)
	return lipgloss.NewStyle().
		Width(inner).
		Padding(1, 2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func renderEntry(e Entry, width int) string {
	stamp := theme.StyleDimmed.Render(e.Time.Format("15:04:05"))
	kind := lipgloss.NewStyle().
		Foreground(kindToColor(e.Kind)).
		Width(9).
		Render(theme.Truncate(e.Kind, 8))
	msg := e.Message
	if len(e.RequestID) >= 8 {
		msg += " [" + e.RequestID[:8] + "]"
	}
	return strings.Join([]string{stamp, kind, theme.Truncate(msg, width-20)}, " ")
}

func kindToColor(kind string) lipgloss.Color {
	switch kind {
	case "realtime":
		return theme.ColorInfo
	case "err":
		return theme.ColorDanger
	case "auth", "api":
		return theme.ColorAccent
	case "seen":
		return theme.ColorHealthy
	default:
		return theme.ColorDimmed
	}
}
