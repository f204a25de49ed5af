// Package refresh keeps a collection of monitored entities in step with a
// remote source.
//
// # Overview
//
// A Coordinator owns one reconciled collection. Each entity is identified by
// a string id and holds the items most recently fetched for it: the readings
// of a sensor, or the alerts of a room for one day. Views read copies of the
// collection and subscribe to change signals; only the coordinator writes it.
//
// # Lifecycle
//
//	c := refresh.New(refresh.Options[backend.Alert]{
//		Name:     "alerts",
//		Fetch:    fetchAlerts,
//		Policy:   refresh.MergeAppendCount,
//		NotFound: backend.IsNotFound,
//	})
//	c.Start(roomIDs, refresh.Today())
//	defer c.Stop()
//
// Start cancels any previous run and fetches every id at once, so a view never
// opens on an empty list. It then polls the current id set every Interval
// (5s by default) for as long as the query targets today. Past days are
// fetched once and never polled.
//
// SetIDs swaps the monitored set; the next tick uses it. SetQuery changes the
// day and fetches immediately. Refresh forces a round now.
//
// # Reconciliation
//
// Positions are reserved the first time an id is monitored and never change,
// so lists do not reorder while they refresh. An entity appears in snapshots
// after its first successful fetch. A failed fetch is logged and leaves the
// entity as it was; errors matched by Options.NotFound count as an empty
// result.
//
// Two merge policies exist:
//
//   - MergeReplace: the snapshot replaces the items. Used for readings.
//   - MergeAppendCount: as above, and Live is set when the snapshot holds more
//     items than the previous one. Used for alerts. Acknowledge clears it.
//
// Merging identical data is a no-op: Revision, UpdatedAt and Live stay put and
// no change signal is sent. A merge that follows a change of day never raises
// Live, since counts from different days are not comparable.
//
// # Concurrency
//
// Every id has at most one fetch in flight. A scheduled tick skips an id whose
// previous fetch has not returned; Refresh and SetQuery cancel it and issue a
// new one. Results are applied under the coordinator lock only when they
// belong to the current run and the current handle for the id, which is what
// lets Stop guarantee that nothing changes after it returns even when a
// Fetcher ignores cancellation.
package refresh
