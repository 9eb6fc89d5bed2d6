// Package toast shows notifications as a card that springs in from the right
// edge, holds for a few seconds, then slides away.
package toast

import (
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/clique/tui/internal/notify"
	"github.com/clique/tui/internal/theme"
)

const (
	fps        = 30
	cardWidth  = 40
	holdFrames = 4 * fps
	maxQueued  = 5
)

type phase int

const (
	idle phase = iota
	entering
	holding
	leaving
)

// FrameMsg advances the animation. Frames from a superseded animation are
// ignored.
type FrameMsg struct{ id int }

// Model is the toast stack: one visible card plus a short queue.
type Model struct {
	spring  harmonica.Spring
	current *notify.Notification
	queue   []notify.Notification

	phase  phase
	offset float64 // columns the card is pushed right
	vel    float64
	hold   int
	id     int
}

func New() Model {
	return Model{spring: harmonica.NewSpring(harmonica.FPS(fps), 8.0, 0.8)}
}

// Visible reports whether a card is on screen.
func (m Model) Visible() bool { return m.current != nil }

// Current returns the notification on screen, if any.
func (m Model) Current() (notify.Notification, bool) {
	if m.current == nil {
		return notify.Notification{}, false
	}
	return *m.current, true
}

// Show queues n. If nothing is on screen it starts animating at once.
func (m Model) Show(n notify.Notification) (Model, tea.Cmd) {
	if m.current != nil {
		if len(m.queue) >= maxQueued {
			m.queue = m.queue[1:]
		}
		m.queue = append(m.queue, n)
		return m, nil
	}
	return m.start(n)
}

func (m Model) start(n notify.Notification) (Model, tea.Cmd) {
	m.current = &n
	m.phase = entering
	m.offset = cardWidth
	m.vel = 0
	m.id++
	return m, m.frame()
}

func (m Model) frame() tea.Cmd {
	id := m.id
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return FrameMsg{id: id} })
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	f, ok := msg.(FrameMsg)
	if !ok || f.id != m.id || m.current == nil {
		return m, nil
	}

	switch m.phase {
	case entering:
		m.offset, m.vel = m.spring.Update(m.offset, m.vel, 0)
		if math.Abs(m.offset) < 0.5 && math.Abs(m.vel) < 0.5 {
			m.offset, m.vel = 0, 0
			m.phase = holding
			m.hold = holdFrames
		}
	case holding:
		m.hold--
		if m.hold <= 0 {
			m.phase = leaving
		}
	case leaving:
		m.offset, m.vel = m.spring.Update(m.offset, m.vel, cardWidth+1)
		if m.offset >= cardWidth-0.5 {
			m.current = nil
			m.phase = idle
			if len(m.queue) > 0 {
				next := m.queue[0]
				m.queue = m.queue[1:]
				return m.start(next)
			}
			return m, nil
		}
	}
	return m, m.frame()
}

// Dismiss starts sliding the current card away.
func (m Model) Dismiss() Model {
	if m.current != nil && m.phase != leaving {
		m.phase = leaving
	}
	return m
}

// View renders the card, or an empty string when idle.
func (m Model) View() string {
	if m.current == nil {
		return ""
	}
	n := m.current
	color := theme.KindColor(string(n.Kind))

	title := lipgloss.NewStyle().Bold(true).Foreground(color).
		Render(theme.KindGlyph(string(n.Kind)) + " " + n.Title)
	body := lipgloss.NewStyle().Foreground(theme.ColorBright).Render(n.Body)

	card := lipgloss.NewStyle().
		Width(cardWidth-4).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, body))

	shift := int(math.Round(m.offset))
	if shift < 0 {
		shift = 0
	}
	return lipgloss.NewStyle().PaddingLeft(shift).MaxWidth(cardWidth).Render(card)
}
