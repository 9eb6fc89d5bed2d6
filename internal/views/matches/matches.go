// Package matches shows mutual matches with their scheduled dates, and the
// people who liked the user.
package matches

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/clique/tui/internal/client"
	"github.com/clique/tui/internal/theme"
)

// StatusRequestMsg asks the app to load the scheduling status with a match.
type StatusRequestMsg struct{ ID string }

type KeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Status key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev match"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next match"),
		),
		Status: key.NewBinding(
			key.WithKeys("enter", "s"),
			key.WithHelp("enter", "schedule status"),
		),
	}
}

// Model is the matches screen.
type Model struct {
	keys     KeyMap
	page     *client.MatchesPage
	likedMe  []client.Profile
	statuses map[string]*client.ScheduleStatus
	idx      int
	err      string
}

func New() Model {
	return Model{keys: DefaultKeyMap(), statuses: make(map[string]*client.ScheduleStatus)}
}

// SetPage installs freshly loaded matches and appointments.
func (m *Model) SetPage(p *client.MatchesPage) {
	m.page = p
	m.err = ""
	if m.idx >= len(p.Matches) {
		m.idx = 0
	}
}

// SetLikedMe installs the list of users who liked the current user.
func (m *Model) SetLikedMe(ps []client.Profile) { m.likedMe = ps }

// SetStatus records the scheduling status with a match.
func (m *Model) SetStatus(id string, st *client.ScheduleStatus) { m.statuses[id] = st }

// SetError shows a load failure.
func (m *Model) SetError(msg string) { m.err = msg }

// Reset forgets everything, for example on sign-out.
func (m *Model) Reset() {
	m.page = nil
	m.likedMe = nil
	m.statuses = make(map[string]*client.ScheduleStatus)
	m.idx = 0
	m.err = ""
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok || m.page == nil || len(m.page.Matches) == 0 {
		return m, nil
	}
	n := len(m.page.Matches)
	switch {
	case key.Matches(k, m.keys.Down):
		m.idx = (m.idx + 1) % n
	case key.Matches(k, m.keys.Up):
		m.idx = (m.idx - 1 + n) % n
	case key.Matches(k, m.keys.Status):
		id := m.page.Matches[m.idx].ID
		return m, func() tea.Msg { return StatusRequestMsg{ID: id} }
	}
	return m, nil
}

func (m Model) View() string {
	if m.err != "" {
		return theme.StyleError.Render("  " + m.err)
	}
	if m.page == nil {
		return theme.StyleDimmed.Render("  Loading matches...")
	}

	sections := []string{theme.StyleHeader.Render(fmt.Sprintf("Matches (%d)", len(m.page.Matches)))}
	if len(m.page.Matches) == 0 {
		sections = append(sections, theme.StyleDimmed.Render("  No matches yet. Keep liking!"))
	}
	for i, p := range m.page.Matches {
		sections = append(sections, m.renderMatch(i, p))
	}

	if len(m.likedMe) > 0 {
		names := make([]string, len(m.likedMe))
		for i, p := range m.likedMe {
			names[i] = p.Name
		}
		sections = append(sections, "",
			theme.StyleHeader.Render(fmt.Sprintf("Liked you (%d)", len(m.likedMe))),
			"  "+lipgloss.NewStyle().Foreground(theme.ColorLike).Render(strings.Join(names, ", ")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderMatch(i int, p client.Profile) string {
	prefix := "  "
	name := fmt.Sprintf("%s, %d", p.Name, p.Age)
	if i == m.idx {
		prefix = theme.StyleSelected.Render("> ")
		name = theme.StyleSelected.Render(name)
	}

	line := prefix + lipgloss.NewStyle().Foreground(theme.ColorMatch).Render("♥ ") + name
	if a, ok := m.page.AppointmentWith(p.ID); ok {
		line += "  " + lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render(slotString(a.Date, a.StartTime, a.EndTime))
	} else {
		line += "  " + theme.StyleDimmed.Render("no date yet")
	}

	if st := m.statuses[p.ID]; st != nil {
		line += "\n      " + statusString(st)
	}
	return line
}

func statusString(st *client.ScheduleStatus) string {
	switch st.Type {
	case client.ScheduleAppointment:
		if st.Data != nil {
			return theme.StyleDimmed.Render("Confirmed for " + slotString(st.Data.Date, st.Data.StartTime, st.Data.EndTime))
		}
		return theme.StyleDimmed.Render("Date confirmed")
	case client.SchedulePendingAvailability:
		mine := "you have not shared availability"
		if len(st.MyAvailability) > 0 {
			mine = fmt.Sprintf("you shared %d slot(s)", len(st.MyAvailability))
		}
		partner := "waiting for them"
		if st.PartnerHasSubmitted {
			partner = "they have shared theirs"
		}
		return theme.StyleDimmed.Render(mine + ", " + partner)
	default:
		return theme.StyleDimmed.Render(st.Type)
	}
}

func slotString(date, start, end string) string {
	return fmt.Sprintf("📅 %s %s-%s", date, start, end)
}
