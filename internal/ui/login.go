package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/roomwatch/internal/backend"
	"github.com/five82/roomwatch/internal/session"
)

const authTimeout = 15 * time.Second

const (
	fieldName = iota
	fieldEmail
	fieldPassword
)

// loginForm holds the sign-in and registration inputs.
type loginForm struct {
	inputs   [3]textinput.Model
	focus    int
	register bool
	busy     bool
	err      error
}

func newLoginForm(email string) loginForm {
	var f loginForm

	name := textinput.New()
	name.Placeholder = "Your name"
	name.CharLimit = 64

	mail := textinput.New()
	mail.Placeholder = "you@example.com"
	mail.CharLimit = 128
	mail.SetValue(email)

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.CharLimit = 128
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'

	f.inputs = [3]textinput.Model{name, mail, pass}
	f.focus = fieldEmail
	if email != "" {
		f.focus = fieldPassword
	}
	f.focusCmd()
	return f
}

func (f loginForm) email() string {
	return strings.TrimSpace(f.inputs[fieldEmail].Value())
}

// fields lists the inputs shown in the current mode.
func (f loginForm) fields() []int {
	if f.register {
		return []int{fieldName, fieldEmail, fieldPassword}
	}
	return []int{fieldEmail, fieldPassword}
}

func (f *loginForm) move(delta int) {
	fields := f.fields()
	idx := 0
	for i, field := range fields {
		if field == f.focus {
			idx = i
		}
	}
	idx = (idx + delta + len(fields)) % len(fields)
	f.focus = fields[idx]
}

// focusCmd focuses the active input and blurs the others.
func (f *loginForm) focusCmd() tea.Cmd {
	var cmd tea.Cmd
	for i := range f.inputs {
		if i == f.focus {
			cmd = f.inputs[i].Focus()
		} else {
			f.inputs[i].Blur()
		}
	}
	return cmd
}

func (f loginForm) validate() error {
	var errs []error
	if f.register && strings.TrimSpace(f.inputs[fieldName].Value()) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if f.email() == "" {
		errs = append(errs, errors.New("email is required"))
	}
	if f.inputs[fieldPassword].Value() == "" {
		errs = append(errs, errors.New("password is required"))
	}
	return errors.Join(errs...)
}

// authMsg carries the result of a sign-in or registration.
type authMsg struct {
	sess session.Session
	err  error
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.login.busy {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Escape):
		return m, tea.Quit
	case key.Matches(msg, m.keys.ToggleSignup):
		m.login.register = !m.login.register
		m.login.err = nil
		if m.login.register {
			m.login.focus = fieldName
		} else if m.login.focus == fieldName {
			m.login.focus = fieldEmail
		}
		return m, m.login.focusCmd()
	case key.Matches(msg, m.keys.NextField):
		m.login.move(1)
		return m, m.login.focusCmd()
	case key.Matches(msg, m.keys.PrevField):
		m.login.move(-1)
		return m, m.login.focusCmd()
	case key.Matches(msg, m.keys.Confirm):
		if err := m.login.validate(); err != nil {
			m.login.err = err
			return m, nil
		}
		m.login.err = nil
		m.login.busy = true
		return m, m.authCmd()
	}

	var cmd tea.Cmd
	m.login.inputs[m.login.focus], cmd = m.login.inputs[m.login.focus].Update(msg)
	return m, cmd
}

// authCmd signs in or registers, resolves the user id and persists the session.
func (m Model) authCmd() tea.Cmd {
	api := m.api
	parent := m.ctx
	path := m.sessionPath
	logger := m.log
	register := m.login.register
	name := strings.TrimSpace(m.login.inputs[fieldName].Value())
	email := m.login.email()
	password := m.login.inputs[fieldPassword].Value()

	return func() tea.Msg {
		if api == nil {
			return authMsg{err: errors.New("no backend configured")}
		}
		ctx, cancel := context.WithTimeout(parent, authTimeout)
		defer cancel()

		var (
			resp backend.AuthResponse
			err  error
		)
		if register {
			resp, err = api.Register(ctx, name, email, password)
		} else {
			resp, err = api.Login(ctx, email, password)
		}
		if err != nil {
			return authMsg{err: describeAuthError(err)}
		}
		api.SetToken(resp.Token)

		userID := resp.User.ID
		if userID == "" {
			if userID, err = api.UserIDByEmail(ctx, email); err != nil {
				api.SetToken("")
				return authMsg{err: err}
			}
		}
		sess := session.Session{
			Token:     resp.Token,
			UserID:    userID,
			UserName:  resp.User.Name,
			UserEmail: email,
		}
		if err := session.Save(path, sess); err != nil {
			// Still signed in for this run.
			logger.Warn("save session", "err", err)
		}
		return authMsg{sess: sess}
	}
}

func describeAuthError(err error) error {
	if backend.IsUnauthorized(err) {
		return errors.New("wrong email or password")
	}
	return err
}

func (m Model) handleAuth(msg authMsg) (tea.Model, tea.Cmd) {
	m.login.busy = false
	if msg.err != nil {
		m.login.err = msg.err
		return m, nil
	}
	m.session = msg.sess
	m.login = newLoginForm(msg.sess.UserEmail)
	m.view = ViewRooms
	m.roomRow = 0
	who := msg.sess.UserName
	if who == "" {
		who = msg.sess.UserEmail
	}
	m.setNotice("Signed in as "+who, false)
	m.refreshRooms()
	return m, m.startLoops()
}

func (m Model) renderLogin() string {
	styles := m.theme.Styles()
	f := m.login

	title := "Sign in"
	if f.register {
		title = "Create account"
	}

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render(title))
	b.WriteString("\n\n")

	labels := map[int]string{fieldName: "Name", fieldEmail: "Email", fieldPassword: "Password"}
	labelStyle := styles.MutedText.Width(10)
	for _, field := range f.fields() {
		label := labelStyle.Render(labels[field])
		if field == f.focus {
			label = styles.AccentText.Width(10).Render(labels[field])
		}
		b.WriteString(label)
		b.WriteString(f.inputs[field].View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case f.busy:
		b.WriteString(styles.WarningText.Render("Contacting backend..."))
	case f.err != nil:
		for _, line := range strings.Split(f.err.Error(), "\n") {
			b.WriteString(styles.DangerText.Render(line))
			b.WriteString("\n")
		}
	default:
		other := "ctrl+r to register"
		if f.register {
			other = "ctrl+r to sign in"
		}
		b.WriteString(styles.FaintText.Render("enter to submit · tab to move · " + other))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.BorderFocus)).
		Padding(1, 3).
		Width(min(64, max(m.width-4, 20))).
		Render(b.String())
	return m.placeCentered(box)
}
