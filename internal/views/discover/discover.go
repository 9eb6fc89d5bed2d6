// Package discover lists other users and shows the selected profile, with
// like and unlike actions.
package discover

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/clique/tui/internal/client"
	"github.com/clique/tui/internal/theme"
)

const listWidth = 28

// LikeMsg asks the app to like a profile.
type LikeMsg struct{ ID string }

// UnlikeMsg asks the app to withdraw a like.
type UnlikeMsg struct{ ID string }

type KeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Like   key.Binding
	Unlike key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev profile"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next profile"),
		),
		Like: key.NewBinding(
			key.WithKeys("l", "enter"),
			key.WithHelp("l", "like"),
		),
		Unlike: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "unlike"),
		),
	}
}

// Model is the discover screen.
type Model struct {
	keys     KeyMap
	profiles []client.Profile
	idx      int
	pending  map[string]bool
	loading  bool
	status   string

	width, height int
	bio           *glamour.TermRenderer
}

func New() Model {
	return Model{keys: DefaultKeyMap(), loading: true, pending: make(map[string]bool)}
}

// SetSize resizes the screen and rebuilds the bio renderer for the new
// wrap width.
func (m *Model) SetSize(width, height int) {
	m.width, m.height = width, height
	wrap := width - listWidth - 6
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err == nil {
		m.bio = r
	}
}

// SetProfiles replaces the list, keeping the selection on the same user when
// it is still present.
func (m *Model) SetProfiles(profiles []client.Profile) {
	prev, hadPrev := m.Selected()
	m.profiles = profiles
	m.loading = false
	m.idx = 0
	if hadPrev {
		for i, p := range profiles {
			if p.ID == prev.ID {
				m.idx = i
			}
		}
	}
}

// Selected returns the highlighted profile.
func (m Model) Selected() (client.Profile, bool) {
	if m.idx < 0 || m.idx >= len(m.profiles) {
		return client.Profile{}, false
	}
	return m.profiles[m.idx], true
}

// SetLiked records the outcome of a like or unlike.
func (m *Model) SetLiked(id string, liked bool) {
	delete(m.pending, id)
	for i := range m.profiles {
		if m.profiles[i].ID == id {
			m.profiles[i].IsLikedByMe = liked
		}
	}
}

// Failed clears the pending flag for id and shows msg.
func (m *Model) Failed(id, msg string) {
	delete(m.pending, id)
	m.status = msg
}

// SetStatus shows a one-line message under the profile.
func (m *Model) SetStatus(msg string) { m.status = msg }

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(k, m.keys.Down):
		if len(m.profiles) > 0 {
			m.idx = (m.idx + 1) % len(m.profiles)
			m.status = ""
		}
	case key.Matches(k, m.keys.Up):
		if len(m.profiles) > 0 {
			m.idx = (m.idx - 1 + len(m.profiles)) % len(m.profiles)
			m.status = ""
		}
	case key.Matches(k, m.keys.Like):
		p, ok := m.Selected()
		if !ok || m.pending[p.ID] {
			break
		}
		if p.IsLikedByMe {
			m.status = "You already liked " + p.Name + "."
			break
		}
		m.pending[p.ID] = true
		return m, func() tea.Msg { return LikeMsg{ID: p.ID} }
	case key.Matches(k, m.keys.Unlike):
		p, ok := m.Selected()
		if !ok || m.pending[p.ID] || !p.IsLikedByMe {
			break
		}
		m.pending[p.ID] = true
		return m, func() tea.Msg { return UnlikeMsg{ID: p.ID} }
	}
	return m, nil
}

func (m Model) View() string {
	if m.loading {
		return theme.StyleDimmed.Render("  Loading profiles...")
	}
	if len(m.profiles) == 0 {
		return theme.StyleDimmed.Render("  Nobody new around right now.")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderList(), "  ", m.renderDetail())
}

func (m Model) renderList() string {
	var rows []string
	for i, p := range m.profiles {
		heart := "  "
		if p.IsLikedByMe {
			heart = lipgloss.NewStyle().Foreground(theme.ColorLike).Render("♡ ")
		}
		name := theme.Truncate(fmt.Sprintf("%s, %d", p.Name, p.Age), listWidth-6)
		if i == m.idx {
			rows = append(rows, theme.StyleSelected.Render("> ")+heart+theme.StyleSelected.Render(name))
		} else {
			rows = append(rows, "  "+heart+name)
		}
	}
	return theme.StyleBorder.Width(listWidth).Render(strings.Join(rows, "\n"))
}

func (m Model) renderDetail() string {
	p, _ := m.Selected()

	header := theme.StyleHeader.Render(fmt.Sprintf("%s, %d", p.Name, p.Age))
	if p.Gender != "" {
		header += theme.StyleDimmed.Render("  " + p.Gender)
	}
	lines := []string{header, ""}

	if p.Bio != "" {
		lines = append(lines, m.renderBio(p.Bio))
	} else {
		lines = append(lines, theme.StyleDimmed.Render("No bio yet."))
	}

	switch {
	case m.pending[p.ID]:
		lines = append(lines, theme.StyleDimmed.Render("..."))
	case p.IsLikedByMe:
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorLike).Render("♡ You like "+p.Name+"  (u: unlike)"))
	default:
		lines = append(lines, theme.StyleDimmed.Render("l: like"))
	}
	if m.status != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(m.status))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderBio(bio string) string {
	if m.bio == nil {
		return bio
	}
	out, err := m.bio.Render(bio)
	if err != nil {
		return bio
	}
	return strings.Trim(out, "\n")
}
