package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/roomwatch/internal/backend"
)

// renderHeader renders the status bar: logo, connection, user, day, live
// alerts, last poll and the current notice.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < LayoutCompactWidth
	now := m.now()

	parts := []string{bg.Render("roomwatch", styles.Logo)}

	switch {
	case m.view == ViewLogin:
		parts = append(parts, bg.Render("Signed out", styles.MutedText))
	case m.snapshot.IsOffline():
		parts = append(parts,
			bg.Render("● "+classifyConnectionError(m.snapshot.LastError), styles.DangerText.Bold(true)),
			bg.Render("Retrying...", styles.WarningText))
	case m.snapshot.LastError != nil:
		parts = append(parts, bg.Render("● "+classifyConnectionError(m.snapshot.LastError), styles.WarningText.Bold(true)))
	case m.snapshot.HasRooms:
		parts = append(parts, bg.Render("● ONLINE", styles.SuccessText))
	default:
		parts = append(parts, bg.Render("Connecting...", styles.WarningText.Bold(true)))
	}

	if m.view != ViewLogin {
		user := m.session.UserName
		if user == "" {
			user = m.session.UserEmail
		}
		if user != "" && !compact {
			parts = append(parts, bg.Render(truncate(user, 24), styles.Text))
		}

		day := formatDay(m.query.Day(now), now)
		dayStyle := styles.InfoText
		if !m.query.IsToday(now) {
			dayStyle = styles.WarningText.Bold(true)
		}
		parts = append(parts, bg.Render(day, dayStyle))

		if live := m.liveCount(); live > 0 {
			liveStyle := lipgloss.NewStyle().
				Foreground(lipgloss.Color(m.theme.StatusColor("live"))).
				Background(lipgloss.Color(m.theme.Surface)).
				Bold(true)
			parts = append(parts, bg.Render(fmt.Sprintf("● %s", plural(live, "new alert")), liveStyle))
		}

		if !m.snapshot.LastUpdated.IsZero() {
			parts = append(parts, bg.Pair("Updated", formatSince(m.snapshot.LastUpdated, now), styles.MutedText, styles.Text))
		}
	}

	if m.notice.text != "" {
		noticeStyle := styles.AccentText
		if m.notice.err {
			noticeStyle = styles.DangerText
		}
		limit := 60
		if compact {
			limit = 30
		}
		parts = append(parts, bg.Render(truncate(m.notice.text, limit), noticeStyle))
	} else if m.snapshot.LastError != nil && !compact && m.view != ViewLogin {
		parts = append(parts, bg.Render(truncate(m.snapshot.LastError.Error(), 60), styles.DangerText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

// classifyConnectionError returns a short description of the connection error.
func classifyConnectionError(err error) string {
	if err == nil {
		return ""
	}
	if backend.IsUnauthorized(err) {
		return "SESSION EXPIRED"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "OFFLINE"
	case strings.Contains(msg, "no such host"):
		return "HOST NOT FOUND"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "TIMEOUT"
	default:
		return "ERROR"
	}
}

// renderCommandBar renders the key hints for the current view.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd

	switch {
	case m.view == ViewLogin:
		mode := "Register"
		if m.login.register {
			mode = "Sign in"
		}
		commands = []cmd{{"enter", "Submit"}, {"tab", "Next"}, {"ctrl+r", mode}, {"esc", "Quit"}}
	case m.phone != nil && m.view != ViewLogin:
		commands = []cmd{{"enter", "Save"}, {"esc", "Cancel"}}
	case m.view == ViewRooms && m.confirmLeave:
		commands = []cmd{{"y", "Leave room"}, {"any", "Cancel"}}
	case m.view == ViewRules && m.form != nil:
		commands = []cmd{{"enter", "Save"}, {"tab", "Next"}, {"←/→", "Change"}, {"esc", "Cancel"}}
	case m.view == ViewRooms:
		commands = []cmd{{"j/k", "Room"}, {"s/S", "Sensor/On-off"}, {"[/]", "Day"}, {"A", "Claim"}, {"D", "Leave"}, {"a", "Alerts"}, {"?", "More"}}
	case m.view == ViewAlerts && m.alertDetail != "":
		commands = []cmd{{"j/k", "Scroll"}, {"esc", "Back"}, {"[/]", "Day"}, {"?", "More"}}
	case m.view == ViewAlerts:
		commands = []cmd{{"j/k", "Room"}, {"enter", "Open"}, {"[/]", "Day"}, {"t", "Today"}, {"r", "Rooms"}, {"?", "More"}}
	case m.view == ViewRules:
		filter := "All rooms"
		if room, ok := m.filterRoom(); ok {
			filter = room.Name
		}
		commands = []cmd{{"n", "New"}, {"e", "Edit"}, {"x", "Delete"}, {"f", filter}, {"r", "Rooms"}, {"?", "More"}}
	case m.view == ViewLogs:
		follow := "Pause"
		if !m.logs.follow {
			follow = "Follow"
		}
		commands = []cmd{{"space", follow}, {"f", m.logs.minLevel.String() + "+"}, {"g/G", "Top/Bottom"}, {"r", "Rooms"}, {"?", "More"}}
	}

	colon := bg.Sep(":")
	segments := make([]string, 0, len(commands)+1)
	for _, c := range commands {
		segments = append(segments,
			bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}
	segments = append(segments,
		bg.Render("T", styles.AccentText)+colon+bg.Render(m.theme.Name, styles.FaintText))

	return styles.Header.Width(m.width).Render(strings.Join(segments, bg.Spaces(2)))
}
