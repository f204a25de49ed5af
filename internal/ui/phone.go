package ui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/roomwatch/internal/backend"
)

// phoneForm edits the number the backend texts when an alert fires.
type phoneForm struct {
	input   textinput.Model
	loading bool
	busy    bool
	err     error
}

type phoneMsg struct {
	phone string
	err   error
}

type phoneSavedMsg struct {
	phone string
	err   error
}

func newPhoneForm() phoneForm {
	input := textinput.New()
	input.Placeholder = "+39 333 123 4567"
	input.CharLimit = 20
	input.Focus()
	return phoneForm{input: input, loading: true}
}

func (m Model) openPhoneForm() (tea.Model, tea.Cmd) {
	if m.api == nil || m.session.UserID == "" {
		m.setNotice("Sign in to set a phone number", true)
		return m, nil
	}
	f := newPhoneForm()
	m.phone = &f
	return m, tea.Batch(textinput.Blink, m.loadPhoneCmd())
}

func (m Model) loadPhoneCmd() tea.Cmd {
	api := m.api
	parent := m.ctx
	userID := m.session.UserID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, authTimeout)
		defer cancel()
		phone, err := api.UserPhone(ctx, userID)
		return phoneMsg{phone: phone, err: err}
	}
}

func (m *Model) handlePhoneLoaded(msg phoneMsg) {
	if m.phone == nil {
		return
	}
	f := *m.phone
	f.loading = false
	switch {
	case backend.IsNotFound(msg.err):
	case msg.err != nil:
		f.err = msg.err
	case f.input.Value() == "":
		f.input.SetValue(msg.phone)
		f.input.CursorEnd()
	}
	m.phone = &f
}

func (m Model) handlePhoneKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := *m.phone
	if f.busy {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.phone = nil
		return m, nil
	case key.Matches(msg, m.keys.Confirm):
		phone, err := normalizePhone(f.input.Value())
		if err != nil {
			f.err = err
			m.phone = &f
			return m, nil
		}
		f.err = nil
		f.busy = true
		m.phone = &f
		return m, m.savePhoneCmd(phone)
	}
	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	m.phone = &f
	return m, cmd
}

func (m Model) savePhoneCmd(phone string) tea.Cmd {
	api := m.api
	parent := m.ctx
	userID := m.session.UserID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, authTimeout)
		defer cancel()
		err := api.UpdateUserPhone(ctx, userID, phone)
		return phoneSavedMsg{phone: phone, err: err}
	}
}

func (m Model) handlePhoneSaved(msg phoneSavedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		if m.phone == nil {
			m.setNotice("Save phone: "+msg.err.Error(), true)
			return m, nil
		}
		f := *m.phone
		f.busy = false
		f.err = msg.err
		m.phone = &f
		return m, nil
	}
	m.phone = nil
	m.setNotice("Phone number saved: "+msg.phone, false)
	return m, nil
}

// normalizePhone drops spaces and dashes and checks for 7 to 15 digits with
// an optional leading +.
func normalizePhone(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r == ' ' || r == '-':
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			return "", errors.New("phone may only contain digits, spaces, dashes and a leading +")
		}
	}
	phone := b.String()
	digits := len(strings.TrimPrefix(phone, "+"))
	if digits < 7 || digits > 15 {
		return "", errors.New("phone must have 7 to 15 digits")
	}
	return phone, nil
}

func (m Model) renderPhoneForm() string {
	f := *m.phone
	styles := m.theme.Styles()

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Alert phone number"))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(m.session.UserEmail))
	b.WriteString("\n\n")
	b.WriteString(styles.AccentText.Width(8).Render("Phone"))
	b.WriteString(f.input.View())
	b.WriteString("\n\n")

	switch {
	case f.loading:
		b.WriteString(styles.MutedText.Render("Loading current number..."))
	case f.busy:
		b.WriteString(styles.WarningText.Render("Saving..."))
	case f.err != nil:
		b.WriteString(styles.DangerText.Render(f.err.Error()))
	default:
		b.WriteString(styles.FaintText.Render("enter to save · esc to cancel"))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.BorderFocus)).
		Padding(1, 3).
		Width(min(56, max(m.width-4, 20))).
		Render(b.String())
	return m.placeCentered(box)
}
