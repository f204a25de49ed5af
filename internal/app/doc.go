// Package app is the composition root of roomwatch.
//
// Run wires configuration, the backend client, the shared room store, the
// two refresh coordinators and the UI, then blocks until the user quits or
// the context is cancelled.
//
//	Run()
//	  ├─> config.Load()          ~/.config/roomwatch/config.toml
//	  ├─> logging.Open()         file-backed slog logger
//	  ├─> session.Load()         token from the last sign-in
//	  ├─> backend.NewClient()
//	  ├─> metrics.Serve()        only when metrics_addr is set
//	  ├─> RoomPoller.Run()       keeps state.RoomStore current
//	  ├─> syncReadings()         copies fetched readings into the store
//	  └─> ui.Run()               blocks
//
// # Room polling
//
// RoomPoller lists the user's rooms every poll interval while a token is set.
// Failures are recorded on the store and back off exponentially up to 30s so
// the header can report the backend as offline. Trigger forces an immediate
// poll, e.g. after the user claims a room.
//
// # Readings and alerts
//
// newCoordinators builds a refresh.Coordinator for sensor readings (keyed by
// sensor id, replaced on every fetch) and one for alerts (keyed by room id,
// flagged live when the count grows). The UI decides which of them runs.
//
// # Errors
//
// Only configuration, date parsing and client construction are fatal. A
// missing log directory disables logging, and every network failure is
// logged and retried.
package app
