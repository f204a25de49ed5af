package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/roomwatch/internal/backend"
	"github.com/five82/roomwatch/internal/rules"
)

// ruleState is the custom alert list shown in the rules view.
type ruleState struct {
	items []backend.CustomAlert
	row   int
	// filter is an index into the room list; -1 shows every room.
	filter        int
	confirmDelete bool
	loading       bool
	err           error
}

type rulesMsg struct {
	rules []backend.CustomAlert
	err   error
}

func (m *Model) loadRules() tea.Cmd {
	api := m.api
	if api == nil {
		return nil
	}
	m.rules.loading = true
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, authTimeout)
		defer cancel()
		items, err := api.CustomAlerts(ctx)
		if backend.IsNotFound(err) {
			return rulesMsg{}
		}
		return rulesMsg{rules: items, err: err}
	}
}

func (m Model) filterRoom() (backend.Room, bool) {
	if m.rules.filter < 0 || m.rules.filter >= len(m.snapshot.Rooms) {
		return backend.Room{}, false
	}
	return m.snapshot.Rooms[m.rules.filter], true
}

func (m Model) visibleRules() []backend.CustomAlert {
	room, ok := m.filterRoom()
	if !ok {
		return rules.FilterByRoom(m.rules.items, "")
	}
	return rules.FilterByRoom(m.rules.items, room.ID)
}

func (m *Model) clampRules() {
	if m.rules.filter >= len(m.snapshot.Rooms) {
		m.rules.filter = -1
	}
	n := len(m.visibleRules())
	if m.rules.row >= n {
		m.rules.row = n - 1
	}
	if m.rules.row < 0 {
		m.rules.row = 0
	}
}

func (m Model) selectedRule() (backend.CustomAlert, bool) {
	visible := m.visibleRules()
	if m.rules.row < 0 || m.rules.row >= len(visible) {
		return backend.CustomAlert{}, false
	}
	return visible[m.rules.row], true
}

func (m Model) handleRulesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	visible := m.visibleRules()
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.rules.row > 0 {
			m.rules.row--
		}
	case key.Matches(msg, m.keys.Down):
		if m.rules.row < len(visible)-1 {
			m.rules.row++
		}
	case key.Matches(msg, m.keys.Top):
		m.rules.row = 0
	case key.Matches(msg, m.keys.Bottom):
		m.rules.row = max(len(visible)-1, 0)
	case key.Matches(msg, m.keys.CycleFilter):
		m.rules.filter++
		if m.rules.filter >= len(m.snapshot.Rooms) {
			m.rules.filter = -1
		}
		m.rules.row = 0
	case key.Matches(msg, m.keys.EditRule):
		rule, ok := m.selectedRule()
		if !ok {
			return m, nil
		}
		f, ok := editRuleForm(m.snapshot.Rooms, rule)
		if !ok {
			m.setNotice("That rule's room is no longer yours", true)
			return m, nil
		}
		m.form = &f
		return m, f.focusCmd()
	case key.Matches(msg, m.keys.DeleteRule):
		if _, ok := m.selectedRule(); ok {
			m.rules.confirmDelete = true
		}
	case key.Matches(msg, m.keys.NewRule):
		if len(m.snapshot.Rooms) == 0 {
			m.setNotice("Claim a room before adding rules", true)
			return m, nil
		}
		roomIdx := m.roomRow
		if m.rules.filter >= 0 {
			roomIdx = m.rules.filter
		}
		f := newRuleForm(m.snapshot.Rooms, roomIdx)
		m.form = &f
		return m, f.focusCmd()
	}
	return m, nil
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.rules.confirmDelete = false
	if !key.Matches(msg, m.keys.Yes) {
		return m, nil
	}
	rule, ok := m.selectedRule()
	if !ok {
		return m, nil
	}
	return m, m.deleteRuleCmd(rule)
}

func (m Model) deleteRuleCmd(rule backend.CustomAlert) tea.Cmd {
	api := m.api
	parent := m.ctx
	return func() tea.Msg {
		const what = "Delete rule"
		if api == nil || rule.ID == "" {
			return actionMsg{text: what, err: errors.New("rule has no id")}
		}
		ctx, cancel := context.WithTimeout(parent, authTimeout)
		defer cancel()
		if _, err := api.DeleteCustomAlert(ctx, rule.ID); err != nil {
			return actionMsg{text: what, err: err}
		}
		return actionMsg{text: "Rule deleted: " + rule.Label(), rules: true}
	}
}

func (m Model) renderRules() string {
	styles := m.theme.Styles()
	filter := "all rooms"
	if room, ok := m.filterRoom(); ok {
		filter = room.Name
	}

	visible := m.visibleRules()
	title := fmt.Sprintf("Rules (%d) · %s", len(visible), filter)

	var body string
	switch {
	case m.rules.err != nil && len(m.rules.items) == 0:
		body = NewBgStyle(m.theme.FocusBg).Render("Cannot load rules: "+m.rules.err.Error(), styles.DangerText)
	case m.rules.loading && len(m.rules.items) == 0:
		body = NewBgStyle(m.theme.FocusBg).Render("Loading rules...", styles.MutedText)
	case len(visible) == 0:
		body = NewBgStyle(m.theme.FocusBg).Render("No rules. Press n to add one.", styles.MutedText)
	default:
		width := m.width - 2
		lines := make([]string, 0, len(visible)+2)
		for i, rule := range visible {
			lines = append(lines, m.formatRuleRow(rule, width, i == m.rules.row))
		}
		if m.rules.confirmDelete {
			if rule, ok := m.selectedRule(); ok {
				bg := NewBgStyle(m.theme.FocusBg)
				lines = append(lines, "", bg.Render("Delete "+rule.Label()+"? (y/n)", styles.WarningText.Bold(true)))
			}
		}
		body = strings.Join(lines, "\n")
	}
	return m.renderTitledBox(title, body, m.width, m.contentHeight(), true)
}

// formatRuleRow renders "Kitchen  MQ5  gas > 450  Open a window".
func (m Model) formatRuleRow(rule backend.CustomAlert, width int, selected bool) string {
	bgColor := m.theme.FocusBg
	if selected {
		bgColor = m.theme.SelectionBg
	}
	bg := NewBgStyle(bgColor)
	styles := m.theme.Styles()

	roomName := rule.RoomID
	if room, ok := m.snapshot.Room(rule.RoomID); ok {
		roomName = room.Name
	}
	labelStyle := styles.Text.Bold(true)
	if selected {
		labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.SelectionText)).Bold(true)
	}
	typeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor(rule.SensorType)))

	label := truncate(rule.Label(), 24)
	used := 1 + 16 + 2 + 6 + 2 + 24 + 2
	content := bg.Space() +
		bg.Render(padRight(truncate(roomName, 16), 16), styles.MutedText) + bg.Spaces(2) +
		bg.Render(padRight(rule.SensorType, 6), typeStyle) + bg.Spaces(2) +
		bg.Render(padRight(label, 24), labelStyle) + bg.Spaces(2) +
		bg.Render(truncate(rule.Message, max(width-used, 8)), styles.Text)
	return bg.FillLine(content, width)
}
