package notifications

import (
	"testing"
	"time"

	"github.com/clique/tui/internal/client"
	"github.com/clique/tui/internal/notify"
	"github.com/stretchr/testify/assert"
)

func TestHistoryRendersEveryKind(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	m := New()
	m.now = func() time.Time { return now }
	assert.Contains(t, m.View(), "Loading")

	m.SetRecords([]client.NotificationRecord{
		{Type: "match", Sender: &notify.Sender{Name: "Bo"}, CreatedAt: now.Add(-5 * time.Minute)},
		{Type: "like", Sender: &notify.Sender{Name: "Cy"}, CreatedAt: now.Add(-2 * time.Hour), IsRead: true},
		{Type: "system"},
	})

	v := m.View()
	assert.Contains(t, v, "You have a new match with Bo.")
	assert.Contains(t, v, "5m")
	assert.Contains(t, v, "Cy liked you!")
	assert.Contains(t, v, "2h")
	assert.Contains(t, v, "You have a new notification.")
}

func TestPrependPutsLiveOnTop(t *testing.T) {
	m := New()
	m.SetRecords([]client.NotificationRecord{{Type: "like", Sender: &notify.Sender{Name: "Cy"}}})
	m.Prepend(client.NotificationRecord{Type: "match", Sender: &notify.Sender{Name: "Bo"}})
	assert.Equal(t, "match", m.records[0].Type)
	assert.Len(t, m.records, 2)
}

func TestEmptyAndReset(t *testing.T) {
	m := New()
	m.SetRecords(nil)
	assert.Contains(t, m.View(), "No notifications")
	m.Reset()
	assert.Contains(t, m.View(), "Loading")
}
