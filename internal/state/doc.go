// Package state holds the room data shared between the background poller and
// the UI.
//
// # Overview
//
// RoomStore is an explicit container passed by reference. The room poller
// writes the latest room listing into it, the readings loop writes fetched
// sensor details back into it, and the UI renders from snapshots:
//
//	RoomPoller ──Update()──────────────┐
//	                                   ▼
//	readings loop ──UpdateSensorDetails()──> RoomStore ──Snapshot()──> UI
//	                                   │
//	                                   └──Notify()──> subscribers
//
// # Snapshots
//
// Snapshot returns a deep copy, so callers may keep or mutate it freely.
// A failed poll keeps the previous rooms and only records LastError and
// ConsecutiveFailures; IsOffline reports two or more failures in a row.
//
// # Notifier
//
// Notifier is the observer list behind RoomStore and the refresh
// coordinators. Each subscriber gets a channel with a buffer of one, so a
// burst of changes collapses into a single wake-up and Notify never blocks.
package state
