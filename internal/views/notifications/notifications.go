// Package notifications shows the stored notification history.
package notifications

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/clique/tui/internal/client"
	"github.com/clique/tui/internal/notify"
	"github.com/clique/tui/internal/theme"
)

const maxShown = 50

// Model is the notifications screen.
type Model struct {
	records []client.NotificationRecord
	loaded  bool
	err     string
	now     func() time.Time
}

func New() Model {
	return Model{now: time.Now}
}

// SetRecords installs the history, newest first.
func (m *Model) SetRecords(rs []client.NotificationRecord) {
	m.records = rs
	m.loaded = true
	m.err = ""
}

// Prepend adds a live notification on top of the loaded history.
func (m *Model) Prepend(r client.NotificationRecord) {
	m.records = append([]client.NotificationRecord{r}, m.records...)
}

func (m *Model) SetError(msg string) { m.err = msg }

func (m *Model) Reset() {
	m.records = nil
	m.loaded = false
	m.err = ""
}

func (m Model) View() string {
	switch {
	case m.err != "":
		return theme.StyleError.Render("  " + m.err)
	case !m.loaded:
		return theme.StyleDimmed.Render("  Loading notifications...")
	case len(m.records) == 0:
		return theme.StyleDimmed.Render("  No notifications yet.")
	}

	lines := []string{theme.StyleHeader.Render("Notifications")}
	for i, r := range m.records {
		if i == maxShown {
			lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("  ...and %d older", len(m.records)-maxShown)))
			break
		}
		n := notify.FromEvent(r.Event())
		color := theme.KindColor(string(n.Kind))
		glyph := lipgloss.NewStyle().Foreground(color).Render(theme.KindGlyph(string(n.Kind)))
		title := lipgloss.NewStyle().Bold(!r.IsRead).Render(n.Body)
		when := ""
		if !r.CreatedAt.IsZero() {
			when = theme.StyleDimmed.Render("  " + since(m.now().Sub(r.CreatedAt)))
		}
		lines = append(lines, "  "+glyph+" "+title+when)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func since(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
