// Package ui is the roomwatch terminal dashboard, built on Bubble Tea.
//
// # Views
//
//   - Sign in: email and password, or registration with ctrl+r
//   - Rooms: the user's rooms with per-sensor readings for the selected day
//   - Alerts: rooms with threshold violations; a ● marks alerts that arrived
//     since the room was last opened
//   - Rules: custom alert thresholds, with a form for new rules
//   - Logs: the tail of roomwatch's own log file
//
// # Data flow
//
// The model never fetches rooms or readings itself. A room poller writes the
// shared state.RoomStore and two refresh.Coordinator loops keep readings and
// alerts current for the selected day. Each container exposes a change
// channel; the model turns every signal into a changeMsg and re-reads a
// snapshot, so Update stays the only place state is mutated.
//
// Only the active view's loop runs. Switching views stops both coordinators
// and starts the one the new view needs; moving between days calls SetQuery,
// which rebases the loop without restarting it.
//
// # Usage
//
//	err := ui.Run(ui.Options{
//		Context:  ctx,
//		API:      client,
//		Store:    store,
//		Readings: readings,
//		Alerts:   alerts,
//		Session:  sess,
//	})
package ui
