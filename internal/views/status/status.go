package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/clique/tui/internal/realtime"
	"github.com/clique/tui/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	User     string
	Expiry   time.Time
	Realtime realtime.State
	Screen   string
	Notice   string
	Now      time.Time
	Width    int
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")

	content := lipgloss.NewStyle().Foreground(theme.ColorAccent).Bold(true).Render("clique")
	if m.Screen != "" {
		content += sep + theme.StyleHeader.Render(m.Screen)
	}
	if m.User == "" {
		content += sep + theme.StyleDimmed.Render("signed out")
	} else {
		content += sep + m.User
		if exp := m.expiryString(); exp != "" {
			content += sep + exp
		}
	}
	content += sep + realtimeString(m.Realtime)
	if m.Notice != "" {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(m.Notice)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) expiryString() string {
	if m.Expiry.IsZero() {
		return ""
	}
	now := m.Now
	if now.IsZero() {
		now = time.Now()
	}
	left := m.Expiry.Sub(now)
	if left <= 0 {
		return lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("token expired")
	}
	return theme.StyleDimmed.Render("token " + formatRemaining(left))
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

func realtimeString(s realtime.State) string {
	switch s {
	case realtime.Connected:
		return lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● live")
	case realtime.Connecting:
		return lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("◌ connecting...")
	default:
		return theme.StyleDimmed.Render("○ offline")
	}
}
