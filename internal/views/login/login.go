// Package login is the sign-in form shown whenever there is no session.
package login

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/clique/tui/internal/theme"
)

// SubmitMsg asks the app to sign in with the entered credentials.
type SubmitMsg struct {
	Email    string
	Password string
}

// KeyMap holds the form bindings.
type KeyMap struct {
	Next   key.Binding
	Prev   key.Binding
	Submit key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Next: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "next field"),
		),
		Prev: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "prev field"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "sign in"),
		),
	}
}

// Model is the sign-in form.
type Model struct {
	keys   KeyMap
	inputs []textinput.Model
	focus  int
	busy   bool
	err    string
	notice string
}

func New() Model {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = "Email     "
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password  "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.CharLimit = 128

	return Model{keys: DefaultKeyMap(), inputs: []textinput.Model{email, password}}
}

// SetBusy locks the form while a sign-in is in flight.
func (m *Model) SetBusy(busy bool) { m.busy = busy }

// SetError shows a failure under the form and clears the password.
func (m *Model) SetError(msg string) {
	m.busy = false
	m.err = msg
	m.inputs[1].SetValue("")
}

// SetNotice shows an informational line, for example after a session ended.
func (m *Model) SetNotice(msg string) { m.notice = msg }

// Reset empties the form for the next sign-in.
func (m *Model) Reset() {
	m.busy = false
	m.err = ""
	for i := range m.inputs {
		m.inputs[i].SetValue("")
	}
	m.setFocus(0)
}

func (m *Model) setFocus(i int) {
	m.focus = i
	for j := range m.inputs {
		if j == i {
			m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		if m.busy {
			return m, nil
		}
		switch {
		case key.Matches(k, m.keys.Next):
			m.setFocus((m.focus + 1) % len(m.inputs))
			return m, nil
		case key.Matches(k, m.keys.Prev):
			m.setFocus((m.focus - 1 + len(m.inputs)) % len(m.inputs))
			return m, nil
		case key.Matches(k, m.keys.Submit):
			if m.focus == 0 {
				m.setFocus(1)
				return m, nil
			}
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) submit() (Model, tea.Cmd) {
	email := strings.TrimSpace(m.inputs[0].Value())
	password := m.inputs[1].Value()
	if email == "" || password == "" {
		m.err = "Email and password are required."
		return m, nil
	}
	m.err = ""
	m.notice = ""
	m.busy = true
	return m, func() tea.Msg { return SubmitMsg{Email: email, Password: password} }
}

func (m Model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorAccent).Render("♥ Sign in to Clique")

	lines := []string{title, ""}
	for _, in := range m.inputs {
		lines = append(lines, in.View())
	}
	lines = append(lines, "")

	switch {
	case m.busy:
		lines = append(lines, theme.StyleDimmed.Render("Signing in..."))
	case m.err != "":
		lines = append(lines, theme.StyleError.Render(m.err))
	case m.notice != "":
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(m.notice))
	}
	lines = append(lines, theme.StyleDimmed.Render("tab: next field  enter: sign in  ctrl+c: quit"))

	return theme.StyleBorder.Padding(1, 3).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
