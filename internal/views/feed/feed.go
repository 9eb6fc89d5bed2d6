// Package feed renders the post feed in a scrolling viewport and reports how
// much of each post is on screen, so posts can be marked as seen.
package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/clique/tui/internal/client"
	"github.com/clique/tui/internal/theme"
)

// Tracker receives visibility updates. *seen.Reporter implements it.
type Tracker interface {
	Observe(id string)
	Unobserve(id string)
	Update(id string, ratio float64)
	Reset()
}

// span is the line range a post occupies in the viewport content.
type span struct {
	id         string
	start, end int
}

// Model is the feed screen.
type Model struct {
	tracker Tracker
	vp      viewport.Model
	posts   []client.Post
	spans   []span
	active  bool
	loading bool
	now     func() time.Time
}

func New(tracker Tracker) Model {
	return Model{
		tracker: tracker,
		vp:      viewport.New(0, 0),
		loading: true,
		now:     time.Now,
	}
}

// SetSize resizes the viewport and re-lays out the posts.
func (m *Model) SetSize(width, height int) {
	m.vp.Width = width
	m.vp.Height = height
	m.layout()
	m.report()
}

// SetLoading shows the loading line until posts arrive.
func (m *Model) SetLoading() { m.loading = true }

// SetPosts replaces the feed. Posts that left the feed stop being tracked.
func (m *Model) SetPosts(posts []client.Post) {
	keep := make(map[string]bool, len(posts))
	for _, p := range posts {
		keep[p.ID] = true
	}
	for _, p := range m.posts {
		if !keep[p.ID] {
			m.tracker.Unobserve(p.ID)
		}
	}
	for _, p := range posts {
		m.tracker.Observe(p.ID)
	}

	m.posts = posts
	m.loading = false
	m.layout()
	m.vp.GotoTop()
	m.report()
}

// Clear drops every post, for example on sign-out.
func (m *Model) Clear() {
	for _, p := range m.posts {
		m.tracker.Unobserve(p.ID)
	}
	m.posts = nil
	m.spans = nil
	m.loading = true
	m.vp.SetContent("")
}

// SetActive tells the feed whether it is the visible screen. An inactive
// feed reports every post as hidden.
func (m *Model) SetActive(active bool) {
	m.active = active
	m.report()
}

// Len returns the number of posts.
func (m Model) Len() int { return len(m.posts) }

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	before := m.vp.YOffset
	m.vp, cmd = m.vp.Update(msg)
	if m.vp.YOffset != before {
		m.report()
	}
	return m, cmd
}

// report pushes the current visibility ratio of every post to the tracker.
func (m Model) report() {
	top, bottom := m.vp.YOffset, m.vp.YOffset+m.vp.Height
	for _, s := range m.spans {
		ratio := 0.0
		if m.active {
			ratio = visibleRatio(s.start, s.end, top, bottom)
		}
		m.tracker.Update(s.id, ratio)
	}
}

// visibleRatio is the fraction of [start, end) inside [top, bottom).
func visibleRatio(start, end, top, bottom int) float64 {
	if end <= start {
		return 0
	}
	lo, hi := start, end
	if top > lo {
		lo = top
	}
	if bottom < hi {
		hi = bottom
	}
	if hi <= lo {
		return 0
	}
	return float64(hi-lo) / float64(end-start)
}

func (m *Model) layout() {
	width := m.vp.Width
	if width < 20 {
		width = 20
	}
	m.spans = nil

	var b strings.Builder
	line := 0
	for i, p := range m.posts {
		block := m.renderPost(p, width)
		h := lipgloss.Height(block)
		m.spans = append(m.spans, span{id: p.ID, start: line, end: line + h})
		b.WriteString(block)
		line += h
		if i < len(m.posts)-1 {
			b.WriteString("\n\n")
			line++
		}
	}
	m.vp.SetContent(b.String())
}

func (m Model) renderPost(p client.Post, width int) string {
	author := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorAccent).Render(p.User.Name)
	when := theme.StyleDimmed.Render(" · " + ago(m.now().Sub(p.CreatedAt)))

	lines := []string{author + when}
	if p.Content != "" {
		lines = append(lines, lipgloss.NewStyle().Width(width-2).Render(p.Content))
	}
	if p.Image != "" {
		lines = append(lines, theme.StyleDimmed.Render("[image] "+theme.Truncate(p.Image, width-10)))
	}
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(theme.ColorBorder).
		PaddingLeft(1).
		Render(strings.Join(lines, "\n"))
}

func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func (m Model) View() string {
	if m.loading {
		return theme.StyleDimmed.Render("  Loading feed...")
	}
	if len(m.posts) == 0 {
		return theme.StyleDimmed.Render("  You're all caught up. New posts will appear here.")
	}
	return m.vp.View()
}
