package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/roomwatch/internal/backend"
)

// Snapshot is the room data currently visible to every view.
type Snapshot struct {
	Rooms               []backend.Room
	HasRooms            bool
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int
}

// IsOffline returns true when the backend has been unreachable for multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Room looks up a room by id.
func (s Snapshot) Room(id string) (backend.Room, bool) {
	for _, r := range s.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return backend.Room{}, false
}

// RoomIDs lists room ids in backend order.
func (s Snapshot) RoomIDs() []string {
	ids := make([]string, 0, len(s.Rooms))
	for _, r := range s.Rooms {
		ids = append(ids, r.ID)
	}
	return ids
}

// RoomStore is the shared room cache. The room poller writes it and views
// read snapshots; every change is broadcast through the embedded Notifier.
type RoomStore struct {
	Notifier

	mu       sync.RWMutex
	snapshot Snapshot
	now      func() time.Time
}

// NewRoomStore returns an empty store.
func NewRoomStore() *RoomStore {
	return &RoomStore{now: time.Now}
}

// Update replaces the stored rooms. When err is non-nil the previous rooms are
// kept but the error is recorded for visibility.
func (s *RoomStore) Update(rooms []backend.Room, err error) {
	s.mu.Lock()
	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.LastUpdated = s.clock()
		s.snapshot.ConsecutiveFailures++
		s.mu.Unlock()
		s.Notify()
		return
	}

	s.snapshot.Rooms = cloneRooms(mergeDetails(s.snapshot.Rooms, rooms))
	s.snapshot.HasRooms = true
	s.snapshot.LastError = nil
	s.snapshot.LastUpdated = s.clock()
	s.snapshot.ConsecutiveFailures = 0
	s.mu.Unlock()
	s.Notify()
}

// UpdateSensorDetails stores fetched readings on the sensor with the given id.
// It reports whether a sensor was found.
func (s *RoomStore) UpdateSensorDetails(sensorID string, details []backend.Details) bool {
	s.mu.Lock()
	found := false
	for i := range s.snapshot.Rooms {
		for j := range s.snapshot.Rooms[i].Sensors {
			if s.snapshot.Rooms[i].Sensors[j].ID != sensorID {
				continue
			}
			s.snapshot.Rooms[i].Sensors[j].Details = append([]backend.Details(nil), details...)
			found = true
		}
	}
	s.mu.Unlock()
	if found {
		s.Notify()
	}
	return found
}

// Clear drops all rooms, e.g. after logout.
func (s *RoomStore) Clear() {
	s.mu.Lock()
	s.snapshot = Snapshot{}
	s.mu.Unlock()
	s.Notify()
}

// Snapshot returns a copy of the current snapshot.
func (s *RoomStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Rooms = cloneRooms(s.snapshot.Rooms)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func (s *RoomStore) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// mergeDetails carries readings already fetched for a sensor over to a fresh
// room listing that came back without them.
func mergeDetails(prev, next []backend.Room) []backend.Room {
	known := make(map[string][]backend.Details)
	for _, r := range prev {
		for _, sensor := range r.Sensors {
			if len(sensor.Details) > 0 {
				known[sensor.ID] = sensor.Details
			}
		}
	}
	if len(known) == 0 {
		return next
	}
	out := make([]backend.Room, len(next))
	for i, r := range next {
		r = r.Clone()
		for j, sensor := range r.Sensors {
			if len(sensor.Details) == 0 {
				r.Sensors[j].Details = known[sensor.ID]
			}
		}
		out[i] = r
	}
	return out
}

func cloneRooms(rooms []backend.Room) []backend.Room {
	if len(rooms) == 0 {
		return nil
	}
	dup := make([]backend.Room, len(rooms))
	for i, r := range rooms {
		dup[i] = r.Clone()
	}
	return dup
}
