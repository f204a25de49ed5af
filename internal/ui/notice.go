package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// notice is a transient message shown in the header after a user action.
// Background failures never produce one; they surface in the header status.
type notice struct {
	text  string
	err   bool
	until time.Time
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = notice{text: text, err: isErr, until: m.now().Add(NoticeDuration)}
}

// actionMsg reports the result of a user-initiated backend call.
type actionMsg struct {
	text string
	err  error
	// rooms asks for an immediate room poll after success.
	rooms bool
	// rules reloads the custom alert list after success.
	rules bool
}

func (m Model) handleAction(msg actionMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.setNotice(msg.text+": "+msg.err.Error(), true)
		return m, nil
	}
	m.setNotice(msg.text, false)
	if msg.rooms {
		m.refreshRooms()
	}
	if msg.rules {
		return m, m.loadRules()
	}
	return m, nil
}
