package login

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typeText(m Model, s string) Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	return m.Update(tea.KeyMsg{Type: k})
}

func TestSubmitEmitsCredentials(t *testing.T) {
	m := typeText(New(), "ana@clique.test")
	m, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.Equal(t, 1, m.focus)

	m = typeText(m, "password")
	m, cmd = press(m, tea.KeyEnter)
	require.NotNil(t, cmd)
	assert.Equal(t, SubmitMsg{Email: "ana@clique.test", Password: "password"}, cmd())
	assert.True(t, m.busy)
	assert.Contains(t, m.View(), "Signing in")
}

func TestEmptyFieldsRejected(t *testing.T) {
	m, _ := press(New(), tea.KeyTab)
	m, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "required")
}

func TestBusyIgnoresKeys(t *testing.T) {
	m := New()
	m.SetBusy(true)
	m = typeText(m, "x")
	assert.Empty(t, m.inputs[0].Value())
}

func TestSetErrorClearsPassword(t *testing.T) {
	m := typeText(New(), "ana@clique.test")
	m, _ = press(m, tea.KeyTab)
	m = typeText(m, "wrong")
	m.SetBusy(true)
	m.SetError("Invalid email or password")

	assert.False(t, m.busy)
	assert.Empty(t, m.inputs[1].Value())
	assert.Equal(t, "ana@clique.test", m.inputs[0].Value())
	assert.Contains(t, m.View(), "Invalid email or password")
}

func TestPasswordIsMasked(t *testing.T) {
	m, _ := press(New(), tea.KeyTab)
	m = typeText(m, "hunter2")
	assert.NotContains(t, m.View(), "hunter2")
}
