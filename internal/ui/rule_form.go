package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/roomwatch/internal/backend"
	"github.com/five82/roomwatch/internal/rules"
)

const (
	formRoom = iota
	formSensor
	formParameter
	formCondition
	formThreshold
	formMessage
	formFieldCount
)

var formLabels = [formFieldCount]string{"Room", "Sensor", "Parameter", "Condition", "Threshold", "Message"}

// fallbackParameters covers sensors that have not reported a reading yet.
var fallbackParameters = map[string][]string{
	backend.SensorDHT22: {"humidity", "temperature"},
	backend.SensorMQ5:   {"gas"},
	backend.SensorMQ2:   {"mq2Value"},
}

// ruleForm edits a custom alert. Room, sensor, parameter and condition are
// picked with left/right; threshold and message are typed. editID is set
// when an existing rule is being changed.
type ruleForm struct {
	editID    string
	rooms     []backend.Room
	room      int
	sensor    int
	parameter int
	condition int
	threshold textinput.Model
	message   textinput.Model
	focus     int
	busy      bool
	err       error
}

func newRuleForm(rooms []backend.Room, room int) ruleForm {
	threshold := textinput.New()
	threshold.Placeholder = "e.g. 30"
	threshold.CharLimit = 12

	message := textinput.New()
	message.Placeholder = "What should the alert say?"
	message.CharLimit = 120

	if room < 0 || room >= len(rooms) {
		room = 0
	}
	return ruleForm{
		rooms:     rooms,
		room:      room,
		threshold: threshold,
		message:   message,
		focus:     formSensor,
	}
}

// editRuleForm prefills the form from rule. It fails when the rule's room is
// no longer assigned to the user.
func editRuleForm(rooms []backend.Room, rule backend.CustomAlert) (ruleForm, bool) {
	roomIdx := -1
	for i, r := range rooms {
		if r.ID == rule.RoomID {
			roomIdx = i
		}
	}
	if roomIdx < 0 {
		return ruleForm{}, false
	}
	f := newRuleForm(rooms, roomIdx)
	f.editID = rule.ID
	for i, s := range rooms[roomIdx].Sensors {
		if s.ID == rule.SensorID {
			f.sensor = i
		}
	}
	for i, p := range f.parameters() {
		if p == rule.Parameter {
			f.parameter = i
		}
	}
	for i, c := range rules.Conditions {
		if c == rule.Condition {
			f.condition = i
		}
	}
	f.threshold.SetValue(strconv.FormatFloat(rule.Threshold, 'f', -1, 64))
	f.threshold.CursorEnd()
	f.message.SetValue(rule.Message)
	f.message.CursorEnd()
	f.focus = formThreshold
	return f, true
}

func (f ruleForm) selectedRoom() backend.Room {
	if f.room < 0 || f.room >= len(f.rooms) {
		return backend.Room{}
	}
	return f.rooms[f.room]
}

func (f ruleForm) selectedSensor() (backend.Sensor, bool) {
	room := f.selectedRoom()
	if f.sensor < 0 || f.sensor >= len(room.Sensors) {
		return backend.Sensor{}, false
	}
	return room.Sensors[f.sensor], true
}

func (f ruleForm) parameters() []string {
	sensor, ok := f.selectedSensor()
	if !ok {
		return nil
	}
	if params := rules.AvailableParameters(sensor); len(params) > 0 {
		return params
	}
	return fallbackParameters[sensor.SensorType]
}

func (f ruleForm) draft(userID string) rules.Draft {
	d := rules.Draft{
		UserID:    userID,
		Room:      f.selectedRoom(),
		Threshold: f.threshold.Value(),
		Message:   f.message.Value(),
	}
	if sensor, ok := f.selectedSensor(); ok {
		d.Sensor = sensor
	}
	if params := f.parameters(); f.parameter < len(params) {
		d.Parameter = params[f.parameter]
	}
	if f.condition < len(rules.Conditions) {
		d.Condition = rules.Conditions[f.condition]
	}
	return d
}

// cycle moves the option under focus by delta, wrapping around.
func (f *ruleForm) cycle(delta int) {
	wrap := func(v, n int) int {
		if n == 0 {
			return 0
		}
		return (v + delta + n) % n
	}
	switch f.focus {
	case formRoom:
		f.room = wrap(f.room, len(f.rooms))
		f.sensor, f.parameter = 0, 0
	case formSensor:
		f.sensor = wrap(f.sensor, len(f.selectedRoom().Sensors))
		f.parameter = 0
	case formParameter:
		f.parameter = wrap(f.parameter, len(f.parameters()))
	case formCondition:
		f.condition = wrap(f.condition, len(rules.Conditions))
	}
}

func (f *ruleForm) move(delta int) {
	f.focus = (f.focus + delta + formFieldCount) % formFieldCount
}

func (f *ruleForm) focusCmd() tea.Cmd {
	f.threshold.Blur()
	f.message.Blur()
	switch f.focus {
	case formThreshold:
		return f.threshold.Focus()
	case formMessage:
		return f.message.Focus()
	}
	return nil
}

func (f ruleForm) isText() bool {
	return f.focus == formThreshold || f.focus == formMessage
}

// ruleSavedMsg reports the result of creating or updating a rule.
type ruleSavedMsg struct {
	rule    backend.CustomAlert
	updated bool
	err     error
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := *m.form
	if f.busy {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.form = nil
		return m, nil
	case key.Matches(msg, m.keys.NextField):
		f.move(1)
		cmd := f.focusCmd()
		m.form = &f
		return m, cmd
	case key.Matches(msg, m.keys.PrevField):
		f.move(-1)
		cmd := f.focusCmd()
		m.form = &f
		return m, cmd
	case key.Matches(msg, m.keys.Confirm):
		rule, err := f.draft(m.session.UserID).Rule()
		if err != nil {
			f.err = err
			m.form = &f
			return m, nil
		}
		f.err = nil
		f.busy = true
		m.form = &f
		if f.editID != "" {
			return m, m.updateRuleCmd(f.editID, rule)
		}
		return m, m.createRuleCmd(rule)
	case !f.isText() && key.Matches(msg, m.keys.OptionLeft):
		f.cycle(-1)
		m.form = &f
		return m, nil
	case !f.isText() && key.Matches(msg, m.keys.OptionRight):
		f.cycle(1)
		m.form = &f
		return m, nil
	}

	var cmd tea.Cmd
	switch f.focus {
	case formThreshold:
		f.threshold, cmd = f.threshold.Update(msg)
	case formMessage:
		f.message, cmd = f.message.Update(msg)
	}
	m.form = &f
	return m, cmd
}

func (m Model) createRuleCmd(rule backend.CustomAlert) tea.Cmd {
	api := m.api
	parent := m.ctx
	return func() tea.Msg {
		if api == nil {
			return ruleSavedMsg{err: errors.New("no backend configured")}
		}
		ctx, cancel := context.WithTimeout(parent, authTimeout)
		defer cancel()
		saved, err := api.CreateCustomAlert(ctx, rule)
		return ruleSavedMsg{rule: saved, err: err}
	}
}

func (m Model) updateRuleCmd(id string, rule backend.CustomAlert) tea.Cmd {
	api := m.api
	parent := m.ctx
	rule.ID = id
	return func() tea.Msg {
		if api == nil {
			return ruleSavedMsg{updated: true, err: errors.New("no backend configured")}
		}
		ctx, cancel := context.WithTimeout(parent, authTimeout)
		defer cancel()
		saved, err := api.UpdateCustomAlert(ctx, id, rule)
		return ruleSavedMsg{rule: saved, updated: true, err: err}
	}
}

func (m Model) handleRuleSaved(msg ruleSavedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		if m.form != nil {
			f := *m.form
			f.busy = false
			f.err = msg.err
			m.form = &f
		} else {
			m.setNotice("Save rule: "+msg.err.Error(), true)
		}
		return m, nil
	}
	m.form = nil
	verb := "saved"
	if msg.updated {
		verb = "updated"
	}
	m.setNotice("Rule "+verb+": "+msg.rule.Label(), false)
	return m, m.loadRules()
}

func (m Model) renderRuleForm() string {
	f := *m.form
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := NewBgStyle(m.theme.FocusBg)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Muted)).Background(lipgloss.Color(m.theme.FocusBg)).Width(12)
	activeLabel := labelStyle.Foreground(lipgloss.Color(m.theme.Accent)).Bold(true)

	option := func(value string, focused bool) string {
		if value == "" {
			value = "none"
		}
		if focused {
			return bg.Render("‹ "+value+" ›", styles.AccentText.Bold(true))
		}
		return bg.Render("  "+value, styles.Text)
	}

	d := f.draft(m.session.UserID)
	sensorLabel := ""
	if sensor, ok := f.selectedSensor(); ok {
		sensorLabel = sensor.SensorType
		if sensor.Port > 0 {
			sensorLabel += fmt.Sprintf(" (port %d)", sensor.Port)
		}
	}
	values := [formFieldCount]string{
		option(d.Room.Name, f.focus == formRoom),
		option(sensorLabel, f.focus == formSensor),
		option(d.Parameter, f.focus == formParameter),
		option(d.Condition, f.focus == formCondition),
		bg.Spaces(2) + f.threshold.View(),
		bg.Spaces(2) + f.message.View(),
	}

	var b strings.Builder
	for i := range formFieldCount {
		label := labelStyle
		if i == f.focus {
			label = activeLabel
		}
		b.WriteString(bg.Space() + label.Render(formLabels[i]) + values[i])
		b.WriteString("\n")
		if i == formThreshold {
			if limit, ok := rules.LimitFor(d.Parameter); ok {
				b.WriteString(bg.Spaces(15) + bg.Render("allowed "+limit.String(), styles.FaintText))
				b.WriteString("\n")
			}
		}
	}
	b.WriteString("\n")

	switch {
	case f.busy:
		b.WriteString(bg.Space() + bg.Render("Saving…", styles.MutedText))
	case f.err != nil:
		for _, line := range strings.Split(f.err.Error(), "\n") {
			b.WriteString(bg.Space() + bg.Render(line, styles.DangerText))
			b.WriteString("\n")
		}
	default:
		b.WriteString(bg.Space() + bg.Render("enter save · tab next field · ←/→ change · esc cancel", styles.FaintText))
	}
	title := "New rule"
	if f.editID != "" {
		title = "Edit rule"
	}
	return m.renderTitledBox(title, b.String(), m.width, m.contentHeight(), true)
}
