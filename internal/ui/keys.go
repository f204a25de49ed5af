package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Escape     key.Binding
	Logout     key.Binding
	EditPhone  key.Binding

	// View switching
	ViewRooms  key.Binding
	ViewAlerts key.Binding
	ViewRules  key.Binding
	ViewLogs   key.Binding

	// Date and refresh
	PrevDay key.Binding
	NextDay key.Binding
	Today   key.Binding
	Refresh key.Binding

	// Navigation
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Confirm  key.Binding

	// Rooms
	ClaimRoom    key.Binding
	LeaveRoom    key.Binding
	NextSensor   key.Binding
	ToggleSensor key.Binding

	// Rules
	NewRule      key.Binding
	EditRule     key.Binding
	DeleteRule   key.Binding
	CycleFilter  key.Binding
	Yes          key.Binding
	NextField    key.Binding
	PrevField    key.Binding
	OptionLeft   key.Binding
	OptionRight  key.Binding
	ToggleSignup key.Binding

	// Logs
	ToggleFollow key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Close / back"),
		),
		Logout: key.NewBinding(
			key.WithKeys("O"),
			key.WithHelp("O", "Sign out"),
		),
		EditPhone: key.NewBinding(
			key.WithKeys("P"),
			key.WithHelp("P", "Alert phone number"),
		),

		ViewRooms: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Rooms"),
		),
		ViewAlerts: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "Alerts"),
		),
		ViewRules: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Custom alert rules"),
		),
		ViewLogs: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Logs"),
		),

		PrevDay: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "Previous day"),
		),
		NextDay: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "Next day"),
		),
		Today: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "Today"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "Refresh now"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("pgup", "Page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("pgdown", "Page down"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Open / submit"),
		),

		ClaimRoom: key.NewBinding(
			key.WithKeys("A"),
			key.WithHelp("A", "Claim a free room"),
		),
		LeaveRoom: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "Leave room"),
		),
		NextSensor: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Next sensor"),
		),
		ToggleSensor: key.NewBinding(
			key.WithKeys("S"),
			key.WithHelp("S", "Switch sensor on/off"),
		),

		NewRule: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "New rule"),
		),
		EditRule: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "Edit rule"),
		),
		DeleteRule: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Delete rule"),
		),
		CycleFilter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "Cycle filter"),
		),
		Yes: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "Confirm"),
		),
		NextField: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "Next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "Previous field"),
		),
		OptionLeft: key.NewBinding(
			key.WithKeys("left"),
			key.WithHelp("←", "Previous option"),
		),
		OptionRight: key.NewBinding(
			key.WithKeys("right"),
			key.WithHelp("→", "Next option"),
		),
		ToggleSignup: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "Sign in / register"),
		),
		ToggleFollow: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "Follow log"),
		),
	}
}

// FullHelp groups every binding for the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.ViewRooms, k.ViewAlerts, k.ViewRules, k.ViewLogs, k.Escape},
		{k.Up, k.Down, k.Top, k.Bottom, k.PageUp, k.PageDown, k.Confirm},
		{k.PrevDay, k.NextDay, k.Today, k.Refresh},
		{k.ClaimRoom, k.LeaveRoom, k.NextSensor, k.ToggleSensor},
		{k.NewRule, k.EditRule, k.DeleteRule, k.CycleFilter, k.ToggleFollow},
		{k.EditPhone, k.CycleTheme, k.Logout, k.Help, k.Quit},
	}
}
