package debug

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEntry(t *testing.T) {
	m := New()
	m.Add(Entry{Kind: "realtime", Message: "connected"})
	require.Equal(t, 1, m.Len())
	assert.False(t, m.entries[0].Time.IsZero())
}

func TestMaxEntries(t *testing.T) {
	m := New()
	for i := 0; i < maxEntries+50; i++ {
		m.Add(Entry{Kind: "log", Message: "msg"})
	}
	m.Add(Entry{Kind: "log", Message: "newest"})
	assert.Equal(t, maxEntries, m.Len())
	assert.Equal(t, "newest", m.entries[maxEntries-1].Message)
}

func TestScrollUpDown(t *testing.T) {
	m := New()
	for i := 0; i < 20; i++ {
		m.Add(Entry{Kind: "log", Message: "msg"})
	}
	require.Equal(t, 0, m.Back())

	m.ScrollUp(5)
	assert.Equal(t, 5, m.Back())

	m.ScrollDown(3)
	assert.Equal(t, 2, m.Back())

	m.ScrollDown(10)
	assert.Equal(t, 0, m.Back())
}

func TestScrollUpCapped(t *testing.T) {
	m := New()
	for i := 0; i < 5; i++ {
		m.Add(Entry{Kind: "log", Message: "msg"})
	}
	m.ScrollUp(100)
	assert.Equal(t, 4, m.Back())
}

func TestAddResetsScroll(t *testing.T) {
	m := New()
	for i := 0; i < 10; i++ {
		m.Add(Entry{Kind: "log", Message: "msg"})
	}
	m.ScrollUp(5)
	m.Add(Entry{Kind: "log", Message: "new"})
	assert.Equal(t, 0, m.Back())
}

func TestViewEmpty(t *testing.T) {
	assert.Contains(t, New().View(80, 20), "Nothing logged yet")
}

func TestViewWithEntries(t *testing.T) {
	m := New()
	m.Add(Entry{Kind: "realtime", Message: "connected"})
	m.Add(Entry{Kind: "err", Message: "timeout"})
	v := m.View(80, 20)
	assert.Contains(t, v, "connected")
	assert.Contains(t, v, "timeout")
}

func TestErrorsOnlyFilter(t *testing.T) {
	m := New()
	m.Add(Entry{Kind: "realtime", Message: "connected"})
	m.Add(Entry{Kind: "err", Message: "refresh failed"})
	m.ToggleErrors()

	v := m.View(100, 20)
	assert.Contains(t, v, "refresh failed")
	assert.NotContains(t, v, "connected")

	m.ScrollUp(10)
	assert.Equal(t, 0, m.Back(), "one visible entry leaves nothing to scroll")
}

func TestHookForwardsEntries(t *testing.T) {
	hook := NewHook(4)
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.AddHook(hook)

	log.WithFields(logrus.Fields{"component": "seen", "request_id": "0123456789ab"}).Info("post reported as seen")
	log.WithField("component", "auth").WithError(errors.New("boom")).Error("refresh failed")
	log.Debug("below hook levels")

	first := <-hook.Entries()
	assert.Equal(t, "seen", first.Kind)
	assert.Equal(t, "post reported as seen", first.Message)
	assert.Equal(t, "0123456789ab", first.RequestID)

	second := <-hook.Entries()
	assert.Equal(t, "err", second.Kind)
	assert.Equal(t, "refresh failed: boom", second.Message)

	select {
	case e := <-hook.Entries():
		t.Fatalf("unexpected entry %+v", e)
	default:
	}
}

func TestHookDropsWhenFull(t *testing.T) {
	hook := NewHook(1)
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.AddHook(hook)

	log.Info("one")
	log.Info("two")

	assert.Equal(t, "one", (<-hook.Entries()).Message)
	assert.Len(t, hook.Entries(), 0)
}
