package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// BgStyle renders text segments on one background color. Each styled
// segment ends with a reset, so gaps between segments must be painted too or
// panes and bars show holes.
type BgStyle struct {
	fill lipgloss.Style
}

// NewBgStyle creates a painter for bgColor.
func NewBgStyle(bgColor string) BgStyle {
	return BgStyle{fill: lipgloss.NewStyle().Background(lipgloss.Color(bgColor))}
}

// Render paints text with style. Inner spaces are painted separately since
// lipgloss may collapse their background when it wraps words.
func (b BgStyle) Render(text string, style lipgloss.Style) string {
	if text == "" {
		return ""
	}
	styled := style.Inherit(b.fill)
	parts := strings.Split(text, " ")
	for i, p := range parts {
		if p != "" {
			parts[i] = styled.Render(p)
		}
	}
	return strings.Join(parts, b.Space())
}

// Pair renders "label value" with separate styles, e.g. "Queue: 3".
func (b BgStyle) Pair(label, value string, labelStyle, valueStyle lipgloss.Style) string {
	return b.Render(label, labelStyle) + b.Space() + b.Render(value, valueStyle)
}

// Space returns one painted space.
func (b BgStyle) Space() string {
	return b.fill.Render(" ")
}

// Spaces returns n painted spaces.
func (b BgStyle) Spaces(n int) string {
	if n <= 0 {
		return ""
	}
	return b.fill.Render(strings.Repeat(" ", n))
}

// Sep paints a separator string.
func (b BgStyle) Sep(sep string) string {
	return b.fill.Render(sep)
}

// Join joins parts with a painted separator.
func (b BgStyle) Join(parts []string, sep string) string {
	return strings.Join(parts, b.Sep(sep))
}

// FillLine pads content to exactly width cells, cutting anything longer.
func (b BgStyle) FillLine(content string, width int) string {
	return b.fill.Width(width).MaxWidth(width).Render(content)
}
