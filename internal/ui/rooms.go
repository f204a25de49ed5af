package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/roomwatch/internal/backend"
	"github.com/five82/roomwatch/internal/refresh"
	"github.com/five82/roomwatch/internal/rules"
)

func (m Model) selectedRoom() (backend.Room, bool) {
	if m.roomRow < 0 || m.roomRow >= len(m.snapshot.Rooms) {
		return backend.Room{}, false
	}
	return m.snapshot.Rooms[m.roomRow], true
}

func (m Model) selectedSensorIDs() []string {
	room, ok := m.selectedRoom()
	if !ok {
		return nil
	}
	return room.SensorIDs()
}

func (m Model) selectedSensor() (backend.Sensor, bool) {
	room, ok := m.selectedRoom()
	if !ok || m.sensorRow < 0 || m.sensorRow >= len(room.Sensors) {
		return backend.Sensor{}, false
	}
	return room.Sensors[m.sensorRow], true
}

// clampRooms keeps the selection on the same room id when the list changes.
func (m *Model) clampRooms() {
	m.clampRoomRow()
	if room, ok := m.selectedRoom(); !ok || m.sensorRow >= len(room.Sensors) {
		m.sensorRow = 0
	}
}

func (m *Model) clampRoomRow() {
	if id := m.prefs.LastRoom; id != "" {
		for i, r := range m.snapshot.Rooms {
			if r.ID == id {
				m.roomRow = i
				return
			}
		}
	}
	if m.roomRow >= len(m.snapshot.Rooms) {
		m.roomRow = len(m.snapshot.Rooms) - 1
	}
	if m.roomRow < 0 {
		m.roomRow = 0
	}
}

func (m *Model) selectRoom(row int) {
	if row < 0 || row >= len(m.snapshot.Rooms) || row == m.roomRow {
		return
	}
	m.roomRow = row
	m.sensorRow = 0
	m.prefs.LastRoom = m.snapshot.Rooms[row].ID
	m.readings.SetIDs(m.selectedSensorIDs())
	m.readings.Refresh()
}

func (m Model) handleRoomsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.selectRoom(m.roomRow - 1)
	case key.Matches(msg, m.keys.Down):
		m.selectRoom(m.roomRow + 1)
	case key.Matches(msg, m.keys.Top):
		m.selectRoom(0)
	case key.Matches(msg, m.keys.Bottom):
		m.selectRoom(len(m.snapshot.Rooms) - 1)
	case key.Matches(msg, m.keys.ClaimRoom):
		m.setNotice("Looking for a free room…", false)
		return m, m.claimRoomCmd()
	case key.Matches(msg, m.keys.LeaveRoom):
		if _, ok := m.selectedRoom(); ok {
			m.confirmLeave = true
		}
	case key.Matches(msg, m.keys.NextSensor):
		if room, ok := m.selectedRoom(); ok && len(room.Sensors) > 0 {
			m.sensorRow = (m.sensorRow + 1) % len(room.Sensors)
		}
	case key.Matches(msg, m.keys.ToggleSensor):
		if sensor, ok := m.selectedSensor(); ok {
			return m, m.sensorStatusCmd(sensor)
		}
	}
	return m, nil
}

func (m Model) handleLeaveKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.confirmLeave = false
	if !key.Matches(msg, m.keys.Yes) {
		return m, nil
	}
	room, ok := m.selectedRoom()
	if !ok {
		return m, nil
	}
	return m, m.leaveRoomCmd(room)
}

// leaveRoomCmd releases the room from the signed-in user.
func (m Model) leaveRoomCmd(room backend.Room) tea.Cmd {
	api := m.api
	parent := m.ctx
	userID := m.session.UserID
	return func() tea.Msg {
		const what = "Leave room"
		if api == nil || userID == "" {
			return actionMsg{text: what, err: errors.New("not signed in")}
		}
		ctx, cancel := context.WithTimeout(parent, authTimeout)
		defer cancel()
		if err := api.RemoveUserFromRoom(ctx, room.ID, userID); err != nil {
			return actionMsg{text: what, err: err}
		}
		return actionMsg{text: "Left " + room.Name, rooms: true}
	}
}

func (m Model) sensorStatusCmd(sensor backend.Sensor) tea.Cmd {
	api := m.api
	parent := m.ctx
	return func() tea.Msg {
		const what = "Switch sensor"
		if api == nil {
			return actionMsg{text: what, err: errors.New("not signed in")}
		}
		ctx, cancel := context.WithTimeout(parent, authTimeout)
		defer cancel()
		if err := api.SetSensorStatus(ctx, sensor.ID, !sensor.Active); err != nil {
			return actionMsg{text: what, err: err}
		}
		state := "on"
		if sensor.Active {
			state = "off"
		}
		return actionMsg{text: fmt.Sprintf("%s sensor switched %s", sensor.SensorType, state), rooms: true}
	}
}

// lastReadingMsg carries the newest reading of a sensor with nothing today.
type lastReadingMsg struct {
	sensorID string
	details  backend.Details
	err      error
}

// fetchLastReadings looks up the newest reading, once, for every sensor the
// readings loop found empty today.
func (m *Model) fetchLastReadings() tea.Cmd {
	if m.api == nil || m.view != ViewRooms || !m.query.IsToday(m.now()) {
		return nil
	}
	var cmds []tea.Cmd
	for _, e := range m.readingsSnap {
		if e.Revision == 0 || len(e.Items) > 0 || m.lastAsked[e.ID] {
			continue
		}
		m.lastAsked[e.ID] = true
		cmds = append(cmds, m.lastReadingCmd(e.ID))
	}
	return tea.Batch(cmds...)
}

func (m Model) lastReadingCmd(sensorID string) tea.Cmd {
	api := m.api
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, authTimeout)
		defer cancel()
		d, err := api.LastSensorDetails(ctx, sensorID)
		return lastReadingMsg{sensorID: sensorID, details: d, err: err}
	}
}

func (m *Model) handleLastReading(msg lastReadingMsg) {
	switch {
	case backend.IsNotFound(msg.err):
	case msg.err != nil:
		// Ask again on the next readings change.
		delete(m.lastAsked, msg.sensorID)
		m.log.Debug("last reading", "sensor", msg.sensorID, "err", msg.err)
	case len(msg.details.Data) > 0:
		m.lastReadings[msg.sensorID] = msg.details
	}
}

// claimRoomCmd assigns the first unassigned room to the signed-in user.
func (m Model) claimRoomCmd() tea.Cmd {
	api := m.api
	parent := m.ctx
	userID := m.session.UserID
	return func() tea.Msg {
		const what = "Claim room"
		if api == nil || userID == "" {
			return actionMsg{text: what, err: errors.New("not signed in")}
		}
		ctx, cancel := context.WithTimeout(parent, authTimeout)
		defer cancel()

		free, err := api.AvailableRooms(ctx)
		if err != nil {
			return actionMsg{text: what, err: err}
		}
		if len(free) == 0 {
			return actionMsg{text: what, err: errors.New("no free rooms")}
		}
		room := free[0]
		assigned, err := api.AssignRoom(ctx, backend.AssignRoomRequest{
			RoomID:    room.ID,
			UserID:    userID,
			RoomName:  room.Name,
			SensorIDs: room.SensorIDs(),
		})
		if err != nil {
			return actionMsg{text: what, err: err}
		}
		return actionMsg{text: fmt.Sprintf("Room %s added", assigned.Name), rooms: true}
	}
}

// sensorReadings returns the readings to show for a sensor on the selected
// day and whether they came from the readings loop.
func (m Model) sensorReadings(sensor backend.Sensor) ([]backend.Details, bool) {
	if e, ok := findEntity(m.readingsSnap, sensor.ID); ok {
		return e.Items, true
	}
	if m.query.IsToday(m.now()) {
		return sensor.Details, false
	}
	return nil, false
}

func (m Model) renderRooms() string {
	styles := m.theme.Styles()
	height := m.contentHeight()

	if !m.snapshot.HasRooms {
		msg := "Loading rooms..."
		if m.snapshot.LastError != nil {
			msg = "Cannot load rooms: " + m.snapshot.LastError.Error()
		}
		return m.placeCentered(styles.MutedText.Render(msg))
	}
	if len(m.snapshot.Rooms) == 0 {
		return m.placeCentered(styles.MutedText.Render("No rooms yet. Press A to claim a free room."))
	}

	listWidth, detailWidth := splitWidths(m.width)
	list := m.renderTitledBox(fmt.Sprintf("Rooms (%d)", len(m.snapshot.Rooms)),
		m.renderRoomList(listWidth-2), listWidth, height, false)

	title := "Sensors"
	var body string
	if room, ok := m.selectedRoom(); ok {
		title = room.Name + " · " + formatDay(m.query.Day(m.now()), m.now())
		body = m.renderSensors(room, detailWidth-4)
		if m.confirmLeave {
			bg := NewBgStyle(m.theme.FocusBg)
			body += "\n" + bg.Render("Leave "+room.Name+"? (y/n)", styles.WarningText.Bold(true))
		}
	}
	detail := m.renderTitledBox(title, body, detailWidth, height, true)
	return lipgloss.JoinHorizontal(lipgloss.Top, list, detail)
}

func (m Model) renderRoomList(width int) string {
	lines := make([]string, 0, len(m.snapshot.Rooms))
	for i, room := range m.snapshot.Rooms {
		bgColor := m.theme.SurfaceAlt
		if i == m.roomRow {
			bgColor = m.theme.SelectionBg
		}
		bg := NewBgStyle(bgColor)
		styles := m.theme.Styles()
		nameStyle := styles.Text
		if i == m.roomRow {
			nameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.SelectionText)).Bold(true)
		}
		count := plural(len(room.Sensors), "sensor")
		name := truncate(room.Name, max(width-len(count)-3, 4))
		content := bg.Render(" "+name, nameStyle) + bg.Spaces(2) + bg.Render(count, styles.MutedText)
		lines = append(lines, bg.FillLine(content, width))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderSensors(room backend.Room, width int) string {
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := NewBgStyle(m.theme.FocusBg)
	if len(room.Sensors) == 0 {
		return bg.Render("No sensors installed", styles.MutedText)
	}

	var b strings.Builder
	for i, sensor := range room.Sensors {
		if i > 0 {
			b.WriteString("\n")
		}
		typeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor(sensor.SensorType))).Bold(true)
		state := "active"
		if !sensor.Active {
			state = "inactive"
		}
		stateStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor(state)))
		cursor := bg.Spaces(2)
		if i == m.sensorRow {
			cursor = bg.Render("› ", styles.AccentText)
		}
		header := cursor + bg.Render(padRight(sensor.SensorType, 6), typeStyle) + bg.Space() +
			bg.Render("● "+state, stateStyle)
		if sensor.Port > 0 {
			header += bg.Spaces(2) + bg.Pair("port", strconv.Itoa(sensor.Port), styles.FaintText, styles.MutedText)
		}
		b.WriteString(header)
		b.WriteString("\n")

		details, fromLoop := m.sensorReadings(sensor)
		latest, ok := backend.LatestDetails(details)
		if !ok {
			msg := "No readings for this day"
			if !fromLoop && m.query.IsToday(m.now()) {
				msg = "Waiting for readings..."
			}
			b.WriteString(bg.Spaces(2) + bg.Render(msg, styles.MutedText))
			b.WriteString("\n")
			if last, ok := m.lastReadings[sensor.ID]; ok && fromLoop && m.query.IsToday(m.now()) {
				values := make([]string, 0, len(last.Data))
				for _, name := range last.Keys() {
					values = append(values, formatMeasurement(name, last.Data[name]))
				}
				line := "last seen " + last.Time().Format("02 Jan 15:04") + " · " + strings.Join(values, "  ")
				b.WriteString(bg.Spaces(2) + bg.Render(truncate(line, width-2), styles.FaintText))
				b.WriteString("\n")
			}
			continue
		}

		values := make([]string, 0, len(latest.Data))
		for _, name := range latest.Keys() {
			values = append(values, bg.Render(formatMeasurement(name, latest.Data[name]), styles.Text))
		}
		b.WriteString(bg.Spaces(2) + strings.Join(values, bg.Spaces(3)))
		b.WriteString("\n")

		if gas, ok := gasValue(latest); ok {
			level := rules.GasLevel(gas)
			levelStyle := styles.SuccessText
			switch {
			case gas >= 700:
				levelStyle = styles.DangerText
			case gas >= 400:
				levelStyle = styles.WarningText
			}
			b.WriteString(bg.Spaces(2) + bg.Render(level, levelStyle))
			b.WriteString("\n")
		}

		meta := "last " + latest.Time().Format("15:04:05")
		if fromLoop {
			meta = plural(len(details), "reading") + " · " + meta
		}
		b.WriteString(bg.Spaces(2) + bg.Render(truncate(meta, width-2), styles.FaintText))
		b.WriteString("\n")
	}
	return b.String()
}

func gasValue(d backend.Details) (float64, bool) {
	if v, ok := d.Data["gas"]; ok {
		return v, true
	}
	v, ok := d.Data["mq2Value"]
	return v, ok
}

// findEntity returns the entity with id.
func findEntity[T any](entities []refresh.Entity[T], id string) (refresh.Entity[T], bool) {
	for _, e := range entities {
		if e.ID == id {
			return e, true
		}
	}
	return refresh.Entity[T]{}, false
}
