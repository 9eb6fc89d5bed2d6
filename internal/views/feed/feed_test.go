package feed

import (
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/clique/tui/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	observed map[string]bool
	ratios   map[string]float64
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{observed: map[string]bool{}, ratios: map[string]float64{}}
}

func (f *fakeTracker) Observe(id string)               { f.observed[id] = true }
func (f *fakeTracker) Unobserve(id string)             { delete(f.observed, id) }
func (f *fakeTracker) Update(id string, ratio float64) { f.ratios[id] = ratio }
func (f *fakeTracker) Reset()                          {}

func posts(n int) []client.Post {
	out := make([]client.Post, n)
	for i := range out {
		out[i] = client.Post{
			ID:        fmt.Sprintf("p%d", i),
			User:      client.PostUser{ID: "u", Name: "Bo"},
			Content:   fmt.Sprintf("post number %d", i),
			CreatedAt: time.Now().Add(-time.Hour),
		}
	}
	return out
}

func TestVisibleRatio(t *testing.T) {
	tests := []struct {
		name                    string
		start, end, top, bottom int
		want                    float64
	}{
		{"fully inside", 2, 4, 0, 10, 1},
		{"above", 0, 2, 5, 10, 0},
		{"below", 12, 14, 0, 10, 0},
		{"half clipped at bottom", 8, 12, 0, 10, 0.5},
		{"clipped at top", 0, 4, 3, 10, 0.25},
		{"empty span", 3, 3, 0, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, visibleRatio(tt.start, tt.end, tt.top, tt.bottom), 1e-9)
		})
	}
}

func TestActiveFeedReportsVisiblePosts(t *testing.T) {
	tr := newFakeTracker()
	m := New(tr)
	m.SetSize(60, 4)
	m.SetActive(true)
	m.SetPosts(posts(5))

	require.Len(t, tr.observed, 5)
	// Each post is two lines plus a blank separator, so only p0 and p1 fit.
	assert.Equal(t, 1.0, tr.ratios["p0"])
	assert.Equal(t, 0.5, tr.ratios["p1"])
	assert.Equal(t, 0.0, tr.ratios["p4"])
}

func TestScrollingUpdatesRatios(t *testing.T) {
	tr := newFakeTracker()
	m := New(tr)
	m.SetSize(60, 4)
	m.SetActive(true)
	m.SetPosts(posts(5))

	for i := 0; i < 20; i++ {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	}
	assert.Equal(t, 0.0, tr.ratios["p0"])
	assert.Equal(t, 1.0, tr.ratios["p4"])
}

func TestInactiveFeedHidesEverything(t *testing.T) {
	tr := newFakeTracker()
	m := New(tr)
	m.SetSize(60, 20)
	m.SetActive(true)
	m.SetPosts(posts(2))
	require.Equal(t, 1.0, tr.ratios["p0"])

	m.SetActive(false)
	assert.Equal(t, 0.0, tr.ratios["p0"])
	assert.Equal(t, 0.0, tr.ratios["p1"])
}

func TestReplacingPostsUnobservesDropped(t *testing.T) {
	tr := newFakeTracker()
	m := New(tr)
	m.SetSize(60, 20)
	m.SetPosts(posts(3))
	m.SetPosts(posts(3)[1:])

	assert.False(t, tr.observed["p0"])
	assert.True(t, tr.observed["p1"])

	m.Clear()
	assert.Empty(t, tr.observed)
	assert.Contains(t, m.View(), "Loading")
}

func TestEmptyFeed(t *testing.T) {
	m := New(newFakeTracker())
	m.SetSize(60, 10)
	m.SetPosts(nil)
	assert.Contains(t, m.View(), "caught up")
}
