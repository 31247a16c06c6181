package ui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/table"
	"charm.land/lipgloss/v2"

	"github.com/olivoil/projectboard/internal/status"
)

var (
	ColorGreen  = lipgloss.Color(T.Green)
	ColorRed    = lipgloss.Color(T.Red)
	ColorYellow = lipgloss.Color(T.Yellow)
	ColorBlue   = lipgloss.Color(T.Blue)
	ColorDim    = lipgloss.Color(T.Dim)
	ColorWhite  = lipgloss.Color(T.Foreground)
	ColorBorder = lipgloss.Color(T.Border)
	ColorAccent = lipgloss.Color(T.Accent)
	ColorHeader = lipgloss.Color(T.BrightWhite)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeader)

	StyleActive = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorGreen)

	StyleInactive = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorRed)

	StyleDim = lipgloss.NewStyle().
			Foreground(ColorDim)

	StyleAccent = lipgloss.NewStyle().
			Foreground(ColorAccent)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorRed)

	StyleTabActive = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(T.Background)).
			Background(ColorAccent).
			Padding(0, 1)

	StyleTab = lipgloss.NewStyle().
			Foreground(ColorDim).
			Padding(0, 1)

	StylePreviewBorder = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(ColorBorder).
				PaddingLeft(1)

	StyleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)
)

// TableStyles returns the list table styles in the active theme.
func TableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		Bold(true).
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorBorder)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(T.Accent)).
		Bold(true)
	return s
}

// StatusIcon returns a coloured glyph for a project or module status.
func StatusIcon(value string, kind status.Kind) string {
	cfg := status.Lookup(status.Normalize(value, kind), kind)
	var glyph string
	switch status.Ordinal(cfg.Value, kind) {
	case 0:
		glyph = "○"
	case 1:
		glyph = "◐"
	case 2:
		glyph = "✖"
	default:
		glyph = "●"
	}
	return lipgloss.NewStyle().Foreground(TokenColor(cfg.Color)).Render(glyph)
}

// StatusBadge renders the icon and label of a status.
func StatusBadge(value string, kind status.Kind) string {
	cfg := status.Lookup(status.Normalize(value, kind), kind)
	label := lipgloss.NewStyle().Foreground(TokenColor(cfg.Color)).Render(cfg.Label)
	return StatusIcon(value, kind) + " " + label
}

// StatusLabel returns the plain label for tables, which style cells
// themselves.
func StatusLabel(value string, kind status.Kind) string {
	return status.Lookup(status.Normalize(value, kind), kind).Label
}

// ProgressBar renders done/total as a bar of width cells followed by the
// percentage.
func ProgressBar(done, total, width int) string {
	if width < 1 {
		width = 1
	}
	pct := 0
	filled := 0
	if total > 0 {
		pct = done * 100 / total
		filled = done * width / total
	}
	bar := lipgloss.NewStyle().Foreground(ColorGreen).Render(strings.Repeat("█", filled)) +
		StyleDim.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3d%%", bar, pct)
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

// FormatTime formats an ISO 8601 timestamp into a short time string.
func FormatTime(iso string) string {
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return iso
	}
	now := time.Now()
	t = t.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if now.Sub(t) < 7*24*time.Hour {
		return t.Format("Mon 15:04")
	}
	return t.Format("Jan 02")
}

// ShortID returns the first 8 characters of an id.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
