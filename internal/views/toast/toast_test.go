package toast

import (
	"testing"

	"github.com/clique/tui/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func match(name string) notify.Notification {
	return notify.FromEvent(notify.Event{Type: "match", Sender: &notify.Sender{Name: name}})
}

// pump feeds frames until the phase changes or the card goes away.
func pump(t *testing.T, m Model, until phase) Model {
	t.Helper()
	for i := 0; i < 2000; i++ {
		if m.phase == until {
			return m
		}
		m, _ = m.Update(FrameMsg{id: m.id})
	}
	t.Fatalf("never reached phase %d", until)
	return m
}

func TestShowSpringsIn(t *testing.T) {
	m, cmd := New().Show(match("Bo"))
	require.NotNil(t, cmd)
	assert.True(t, m.Visible())
	assert.Equal(t, float64(cardWidth), m.offset)

	m = pump(t, m, holding)
	assert.Zero(t, m.offset)
	assert.Contains(t, m.View(), "It's a Match!")
	assert.Contains(t, m.View(), "Bo")
}

func TestCardLeavesAfterHold(t *testing.T) {
	m, _ := New().Show(match("Bo"))
	m = pump(t, m, holding)
	m = pump(t, m, leaving)
	m = pump(t, m, idle)
	assert.False(t, m.Visible())
	assert.Empty(t, m.View())
}

func TestQueuedCardFollows(t *testing.T) {
	m, _ := New().Show(match("Bo"))
	m, cmd := m.Show(match("Cy"))
	assert.Nil(t, cmd)

	m = pump(t, m, holding)
	m = m.Dismiss()
	for i := 0; i < 2000 && m.current != nil && m.current.SenderName == "Bo"; i++ {
		m, _ = m.Update(FrameMsg{id: m.id})
	}

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "Cy", cur.SenderName)
	assert.Equal(t, entering, m.phase)
}

func TestStaleFramesIgnored(t *testing.T) {
	m, _ := New().Show(match("Bo"))
	before := m.offset
	m, cmd := m.Update(FrameMsg{id: m.id - 1})
	assert.Nil(t, cmd)
	assert.Equal(t, before, m.offset)
}

func TestQueueIsBounded(t *testing.T) {
	m, _ := New().Show(match("first"))
	for i := 0; i < maxQueued+3; i++ {
		m, _ = m.Show(match("later"))
	}
	assert.Len(t, m.queue, maxQueued)
}
