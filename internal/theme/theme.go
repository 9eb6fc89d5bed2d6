// Package theme provides the Lip Gloss color palette and reusable styles
// for the Clique TUI. It is a leaf package with no internal imports to avoid
// import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Brand colors.
var (
	ColorAccent  = lipgloss.Color("#ec4899")
	ColorMatch   = lipgloss.Color("#f43f5e")
	ColorLike    = lipgloss.Color("#a855f7")
	ColorInfo    = lipgloss.Color("#3b82f6")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// KindColor returns the color for a notification kind.
func KindColor(kind string) lipgloss.Color {
	switch kind {
	case "match":
		return ColorMatch
	case "like":
		return ColorLike
	default:
		return ColorInfo
	}
}

// KindGlyph returns a glyph for a notification kind.
func KindGlyph(kind string) string {
	switch kind {
	case "match":
		return "♥"
	case "like":
		return "♡"
	default:
		return "•"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)
)

// Truncate shortens s to max runes, ending with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max < 1 || len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
