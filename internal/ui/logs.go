package ui

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/roomwatch/internal/logtail"
)

var logLevels = []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

// logState is the tail of the application log shown in the logs view.
type logState struct {
	lines    []string
	entries  []logtail.Entry
	minLevel slog.Level
	follow   bool
	err      error
	viewport viewport.Model
}

func newLogState() logState {
	return logState{minLevel: slog.LevelInfo, follow: true}
}

type logLinesMsg struct {
	lines []string
	err   error
}

func (m Model) loadLogs() tea.Cmd {
	path := m.logPath
	return func() tea.Msg {
		if path == "" {
			return logLinesMsg{err: errors.New("logging to a file is disabled")}
		}
		lines, err := logtail.Read(path, LogLineLimit)
		return logLinesMsg{lines: lines, err: err}
	}
}

func (m *Model) handleLogLines(msg logLinesMsg) {
	m.logs.err = msg.err
	if msg.err != nil {
		return
	}
	m.logs.lines = msg.lines
	m.updateLogViewport()
}

func (m *Model) updateLogViewport() {
	m.logs.entries = logtail.Filter(m.logs.lines, m.logs.minLevel)
	if m.logs.viewport.Width == 0 {
		return
	}
	m.logs.viewport.Style = lipgloss.NewStyle().Background(lipgloss.Color(m.theme.FocusBg))
	m.logs.viewport.SetContent(m.renderLogEntries(m.logs.viewport.Width))
	if m.logs.follow {
		m.logs.viewport.GotoBottom()
	}
}

func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.CycleFilter):
		m.logs.minLevel = nextLevel(m.logs.minLevel)
		m.updateLogViewport()
		return m, nil
	case key.Matches(msg, m.keys.ToggleFollow):
		m.logs.follow = !m.logs.follow
		if m.logs.follow {
			m.logs.viewport.GotoBottom()
		}
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.logs.follow = false
		m.logs.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.logs.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.logs.viewport, cmd = m.logs.viewport.Update(msg)
	if !m.logs.viewport.AtBottom() {
		m.logs.follow = false
	}
	return m, cmd
}

func nextLevel(current slog.Level) slog.Level {
	for i, lvl := range logLevels {
		if lvl == current {
			return logLevels[(i+1)%len(logLevels)]
		}
	}
	return slog.LevelInfo
}

func (m Model) levelStyle(lvl slog.Level) lipgloss.Style {
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	switch {
	case lvl >= slog.LevelError:
		return styles.DangerText
	case lvl >= slog.LevelWarn:
		return styles.WarningText
	case lvl >= slog.LevelInfo:
		return styles.InfoText
	default:
		return styles.FaintText
	}
}

// renderLogEntries renders "15:04:05 WARN  room poll failed err=...".
func (m Model) renderLogEntries(width int) string {
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := NewBgStyle(m.theme.FocusBg)
	if len(m.logs.entries) == 0 {
		return bg.Render("No log entries at this level", styles.MutedText)
	}

	lines := make([]string, 0, len(m.logs.entries))
	for _, e := range m.logs.entries {
		if !e.Parsed() {
			lines = append(lines, bg.Render(truncate(e.Raw, width), styles.MutedText))
			continue
		}
		var attrs []string
		for _, a := range e.Attrs {
			attrs = append(attrs, a.Key+"="+a.Value)
		}
		prefix := bg.Render(e.Time.Local().Format("15:04:05"), styles.FaintText) + bg.Space() +
			bg.Render(padRight(e.Level.String(), 5), m.levelStyle(e.Level)) + bg.Space()
		rest := e.Message
		if len(attrs) > 0 {
			rest += "  " + strings.Join(attrs, " ")
		}
		lines = append(lines, prefix+bg.Render(truncate(rest, max(width-15, 10)), styles.Text))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderLogs() string {
	styles := m.theme.Styles()
	if m.logs.err != nil && len(m.logs.lines) == 0 {
		return m.placeCentered(styles.MutedText.Render(m.logs.err.Error()))
	}
	title := "Logs · " + m.logs.minLevel.String() + "+"
	if m.logs.follow {
		title += " · following"
	}
	if m.logPath != "" && m.width >= LayoutCompactWidth {
		title += " · " + truncateMiddle(m.logPath, 40)
	}
	return m.renderTitledBox(title, m.logs.viewport.View(), m.width, m.contentHeight(), true)
}
