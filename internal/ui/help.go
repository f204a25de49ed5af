package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

// helpTitles names the groups returned by keyMap.FullHelp, in order.
var helpTitles = []string{"Views", "Navigation", "Day", "Rooms", "Rules & logs", "General"}

// renderHelp shows every binding in a centered two-column modal.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Warning)).Width(10)

	section := func(title string, bindings []key.Binding) string {
		lines := []string{styles.AccentText.Bold(true).Render(title)}
		for _, b := range bindings {
			h := b.Help()
			lines = append(lines, keyStyle.Render(h.Key)+styles.Text.Render(h.Desc))
		}
		return strings.Join(lines, "\n")
	}

	var left, right []string
	for i, group := range m.keys.FullHelp() {
		title := ""
		if i < len(helpTitles) {
			title = helpTitles[i]
		}
		if i%2 == 0 {
			left = append(left, section(title, group))
		} else {
			right = append(right, section(title, group))
		}
	}
	column := lipgloss.NewStyle().Width(30)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		column.Render(strings.Join(left, "\n\n")),
		column.Render(strings.Join(right, "\n\n")))

	title := styles.Text.Bold(true).Render("Keyboard shortcuts") + "\n" +
		styles.FaintText.Render(strings.Repeat("─", 58))

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Accent)).
		Padding(1, 2).
		Render(title + "\n\n" + body)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(m.theme.Background)))
}
