package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/roomwatch/internal/backend"
	"github.com/five82/roomwatch/internal/refresh"
)

// alertRow is one room with at least one alert on the selected day.
type alertRow struct {
	room   backend.Room
	entity refresh.Entity[backend.Alert]
}

func (m Model) alertRows() []alertRow {
	var rows []alertRow
	for _, room := range m.snapshot.Rooms {
		e, ok := findEntity(m.alertsSnap, room.ID)
		if !ok || len(e.Items) == 0 {
			continue
		}
		rows = append(rows, alertRow{room: room, entity: e})
	}
	return rows
}

// liveCount counts rooms whose alerts grew since they were last opened.
func (m Model) liveCount() int {
	n := 0
	for _, e := range m.alertsSnap {
		if e.Live {
			n++
		}
	}
	return n
}

func (m *Model) clampAlerts() {
	rows := len(m.alertRows())
	if m.alertRow >= rows {
		m.alertRow = rows - 1
	}
	if m.alertRow < 0 {
		m.alertRow = 0
	}
}

func (m Model) handleAlertsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.alertDetail != "" {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.alertDetail = ""
			return m, nil
		case key.Matches(msg, m.keys.Top):
			m.detailViewport.GotoTop()
			return m, nil
		case key.Matches(msg, m.keys.Bottom):
			m.detailViewport.GotoBottom()
			return m, nil
		}
		var cmd tea.Cmd
		m.detailViewport, cmd = m.detailViewport.Update(msg)
		return m, cmd
	}

	rows := m.alertRows()
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.alertRow > 0 {
			m.alertRow--
		}
	case key.Matches(msg, m.keys.Down):
		if m.alertRow < len(rows)-1 {
			m.alertRow++
		}
	case key.Matches(msg, m.keys.Top):
		m.alertRow = 0
	case key.Matches(msg, m.keys.Bottom):
		m.alertRow = max(len(rows)-1, 0)
	case key.Matches(msg, m.keys.Confirm):
		if m.alertRow < len(rows) {
			m.openAlertDetail(rows[m.alertRow].room.ID)
		}
	}
	return m, nil
}

// openAlertDetail shows every alert of a room and clears its live marker.
func (m *Model) openAlertDetail(roomID string) {
	m.alertDetail = roomID
	m.alerts.Acknowledge(roomID)
	m.updateDetailViewport()
	m.detailViewport.GotoTop()
}

func (m *Model) resizeViewports() {
	height := max(m.contentHeight()-2, 1)
	width := max(m.width-4, 10)
	if m.detailViewport.Width == 0 {
		m.detailViewport = viewport.New(width, height)
	}
	m.detailViewport.Width = width
	m.detailViewport.Height = height
	if m.logs.viewport.Width == 0 {
		m.logs.viewport = viewport.New(width, height)
	}
	m.logs.viewport.Width = width
	m.logs.viewport.Height = height
	m.updateDetailViewport()
	m.updateLogViewport()
}

// updateDetailViewport redraws the open room. Alerts that arrive while it is
// open are already seen, so its live marker is cleared right away.
func (m *Model) updateDetailViewport() {
	if m.alertDetail == "" {
		return
	}
	e, _ := findEntity(m.alertsSnap, m.alertDetail)
	if e.Live {
		m.alerts.Acknowledge(m.alertDetail)
		m.alertsSnap = m.alerts.Snapshot()
	}
	if m.detailViewport.Width == 0 {
		return
	}
	m.detailViewport.Style = lipgloss.NewStyle().Background(lipgloss.Color(m.theme.FocusBg))
	m.detailViewport.SetContent(m.renderAlertDetail(e.Items, m.detailViewport.Width))
}

func (m Model) renderAlertDetail(items []backend.Alert, width int) string {
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := NewBgStyle(m.theme.FocusBg)
	if len(items) == 0 {
		return bg.Render("No alerts for this day", styles.MutedText)
	}

	sorted := append([]backend.Alert(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time().After(sorted[j].Time()) })

	var b strings.Builder
	for _, a := range sorted {
		typeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor(a.SensorType)))
		line := bg.Render(a.Time().Format("15:04:05"), styles.MutedText) + bg.Spaces(2) +
			bg.Render(padRight(a.SensorType, 6), typeStyle) + bg.Space() +
			bg.Render(truncate(a.Message, max(width-18, 10)), styles.Text)
		b.WriteString(line)
		b.WriteString("\n")
		if len(a.Data) > 0 {
			d := backend.Details{Data: a.Data}
			values := make([]string, 0, len(a.Data))
			for _, name := range d.Keys() {
				values = append(values, formatMeasurement(name, a.Data[name]))
			}
			b.WriteString(bg.Spaces(10) + bg.Render(strings.Join(values, "  "), styles.FaintText))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderAlerts() string {
	styles := m.theme.Styles()
	day := formatDay(m.query.Day(m.now()), m.now())

	if m.alertDetail != "" {
		name := m.alertDetail
		if room, ok := m.snapshot.Room(m.alertDetail); ok {
			name = room.Name
		}
		return m.renderTitledBox("Alerts · "+name+" · "+day, m.detailViewport.View(), m.width, m.contentHeight(), true)
	}

	rows := m.alertRows()
	if len(rows) == 0 {
		msg := "No alerts for " + strings.ToLower(day)
		if !m.snapshot.HasRooms {
			msg = "Loading rooms..."
		}
		return m.placeCentered(styles.MutedText.Render(msg))
	}

	width := m.width - 2
	lines := make([]string, 0, len(rows))
	for i, row := range rows {
		bgColor := m.theme.FocusBg
		if i == m.alertRow {
			bgColor = m.theme.SelectionBg
		}
		lines = append(lines, m.formatAlertRow(row, width, bgColor, i == m.alertRow))
	}
	title := fmt.Sprintf("Alerts (%d) · %s", len(rows), day)
	return m.renderTitledBox(title, strings.Join(lines, "\n"), m.width, m.contentHeight(), true)
}

// formatAlertRow renders "● Kitchen  3 alerts  14:05  Gas level in room...".
func (m Model) formatAlertRow(row alertRow, width int, bgColor string, selected bool) string {
	bg := NewBgStyle(bgColor)
	styles := m.theme.Styles()

	marker := bg.Spaces(2)
	if row.entity.Live {
		liveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor("live"))).Bold(true)
		marker = bg.Render("●", liveStyle) + bg.Space()
	}

	nameStyle := styles.Text.Bold(true)
	if selected {
		nameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.SelectionText)).Bold(true)
	}

	latest := row.entity.Items[0]
	for _, a := range row.entity.Items[1:] {
		if a.Time().After(latest.Time()) {
			latest = a
		}
	}

	count := plural(len(row.entity.Items), "alert")
	used := 2 + 20 + 2 + len(count) + 2 + 5 + 2
	content := marker +
		bg.Render(padRight(truncate(row.room.Name, 20), 20), nameStyle) + bg.Spaces(2) +
		bg.Render(count, styles.WarningText) + bg.Spaces(2) +
		bg.Render(latest.Time().Format("15:04"), styles.MutedText) + bg.Spaces(2) +
		bg.Render(truncate(latest.Message, max(width-used, 8)), styles.Text)
	return bg.FillLine(content, width)
}
