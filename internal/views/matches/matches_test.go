package matches

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/clique/tui/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func page() *client.MatchesPage {
	return &client.MatchesPage{
		Matches: []client.Profile{
			{ID: "bo", Name: "Bo", Age: 29},
			{ID: "cy", Name: "Cy", Age: 31},
		},
		Appointments: []client.Appointment{{
			User1: client.PostUser{ID: "me"},
			User2: client.PostUser{ID: "bo"},
			Date:  "2026-10-20", StartTime: "19:00", EndTime: "20:00",
		}},
	}
}

func TestViewShowsAppointments(t *testing.T) {
	m := New()
	assert.Contains(t, m.View(), "Loading")

	m.SetPage(page())
	m.SetLikedMe([]client.Profile{{ID: "dee", Name: "Dee"}})
	v := m.View()
	assert.Contains(t, v, "Matches (2)")
	assert.Contains(t, v, "2026-10-20 19:00-20:00")
	assert.Contains(t, v, "no date yet")
	assert.Contains(t, v, "Liked you (1)")
	assert.Contains(t, v, "Dee")
}

func TestStatusRequestForSelected(t *testing.T) {
	m := New()
	m.SetPage(page())
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, StatusRequestMsg{ID: "cy"}, cmd())
}

func TestScheduleStatusLines(t *testing.T) {
	m := New()
	m.SetPage(page())
	m.SetStatus("cy", &client.ScheduleStatus{
		Type:                client.SchedulePendingAvailability,
		MyAvailability:      []client.Slot{{Date: "2026-10-21", StartTime: "18:00", EndTime: "19:00"}},
		PartnerHasSubmitted: false,
	})
	assert.Contains(t, m.View(), "you shared 1 slot(s), waiting for them")

	m.Reset()
	assert.Contains(t, m.View(), "Loading")
}

func TestEmptyMatches(t *testing.T) {
	m := New()
	m.SetPage(&client.MatchesPage{})
	assert.Contains(t, m.View(), "No matches yet")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}
