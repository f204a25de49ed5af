package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/five82/roomwatch/internal/backend"
	"github.com/five82/roomwatch/internal/mockapi"
	"github.com/five82/roomwatch/internal/refresh"
	"github.com/five82/roomwatch/internal/state"
)

func TestCalculateBackoff(t *testing.T) {
	baseInterval := 2 * time.Second

	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"zero failures", 0, 2 * time.Second},
		{"negative failures", -1, 2 * time.Second},
		{"one failure", 1, 4 * time.Second},
		{"two failures", 2, 8 * time.Second},
		{"three failures", 3, 16 * time.Second},
		{"four failures capped", 4, 30 * time.Second}, // Would be 32s, capped to 30s
		{"many failures capped", 10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.failures, baseInterval)
			if got != tt.want {
				t.Errorf("calculateBackoff(%d, %v) = %v, want %v", tt.failures, baseInterval, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_MaxCap(t *testing.T) {
	baseInterval := 5 * time.Second
	for failures := 0; failures <= 64; failures++ {
		got := calculateBackoff(failures, baseInterval)
		if got > maxBackoff {
			t.Errorf("calculateBackoff(%d, %v) = %v, exceeds maxBackoff %v", failures, baseInterval, got, maxBackoff)
		}
	}
}

type fakeRooms struct {
	mu    sync.Mutex
	token string
	rooms []backend.Room
	err   error
	calls int
}

func (f *fakeRooms) Rooms(context.Context) ([]backend.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.rooms, f.err
}

func (f *fakeRooms) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func TestRoomPoller_IdleWithoutToken(t *testing.T) {
	store := state.NewRoomStore()
	src := &fakeRooms{rooms: []backend.Room{{ID: "r1"}}}
	p := NewRoomPoller(store, src, time.Second, nil)

	if p.poll(context.Background()) {
		t.Fatalf("poll without token should be skipped")
	}
	if src.calls != 0 || store.Snapshot().HasRooms {
		t.Fatalf("poll without token touched the backend or store")
	}
}

func TestRoomPoller_UpdatesStoreAndCountsFailures(t *testing.T) {
	store := state.NewRoomStore()
	src := &fakeRooms{token: "t", rooms: []backend.Room{{ID: "r1", Name: "Lab"}}}
	p := NewRoomPoller(store, src, time.Second, nil)

	p.poll(context.Background())
	snap := store.Snapshot()
	if !snap.HasRooms || len(snap.Rooms) != 1 || snap.Rooms[0].Name != "Lab" {
		t.Fatalf("snapshot after poll = %#v", snap)
	}

	src.err = errors.New("connection refused")
	p.poll(context.Background())
	p.poll(context.Background())
	snap = store.Snapshot()
	if snap.ConsecutiveFailures != 2 || !snap.IsOffline() {
		t.Fatalf("failures = %d offline = %v, want 2 true", snap.ConsecutiveFailures, snap.IsOffline())
	}
	if len(snap.Rooms) != 1 {
		t.Fatalf("failed poll dropped the previous rooms")
	}
}

func TestRoomPoller_TriggerPollsImmediately(t *testing.T) {
	store := state.NewRoomStore()
	src := &fakeRooms{token: "t"}
	p := NewRoomPoller(store, src, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, unsubscribe := store.Subscribe()
	defer unsubscribe()
	go p.Run(ctx)

	waitSignal(t, changes) // initial poll
	p.Trigger()
	waitSignal(t, changes)

	src.mu.Lock()
	calls := src.calls
	src.mu.Unlock()
	if calls < 2 {
		t.Fatalf("calls = %d, want at least 2", calls)
	}
}

func TestSyncReadings_WritesDetailsIntoStore(t *testing.T) {
	store := state.NewRoomStore()
	store.Update([]backend.Room{{ID: "r1", Sensors: []backend.Sensor{{ID: "s1"}, {ID: "s2"}}}}, nil)

	at := time.Now()
	readings := refresh.New(refresh.Options[backend.Details]{
		Name:     "readings",
		Interval: time.Hour,
		Fetch: func(_ context.Context, id string, _ refresh.Query) ([]backend.Details, error) {
			if id == "s2" {
				return nil, nil
			}
			return []backend.Details{
				{Timestamp: backend.NewTimestamp(at), Data: map[string]float64{"temperature": 21}},
				{Timestamp: backend.NewTimestamp(at.Add(time.Second)), Data: map[string]float64{"temperature": 22}},
			}, nil
		},
	})

	readings.Start([]string{"s1", "s2"}, refresh.Today())
	defer func() {
		readings.Stop()
		readings.Wait()
	}()
	waitForEntities(t, readings, 2)

	// The merges above happened before syncReadings subscribed.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, unsubscribe := store.Subscribe()
	defer unsubscribe()
	go syncReadings(ctx, readings, store)

	waitSignal(t, changes)
	room, _ := store.Snapshot().Room("r1")
	if len(room.Sensors[0].Details) != 2 {
		t.Fatalf("s1 details = %d, want 2", len(room.Sensors[0].Details))
	}
	if room.Sensors[1].Details != nil {
		t.Fatalf("empty result overwrote sensor s2: %#v", room.Sensors[1].Details)
	}
}

// waitForEntities blocks until the coordinator has merged n entities.
func waitForEntities[T any](t *testing.T, c *refresh.Coordinator[T], n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		merged := 0
		for _, e := range c.Snapshot() {
			if e.Revision > 0 {
				merged++
			}
		}
		if merged >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("merged %d entities, want %d", merged, n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewCoordinators_AgainstMockBackend(t *testing.T) {
	now := time.Now()
	mock := mockapi.NewStore(mockapi.Options{Seed: 1, History: 1})
	srv := httptest.NewServer(mockapi.NewServer(mock, time.Local).Handler(nil))
	defer srv.Close()

	client, err := backend.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	auth, err := client.Login(context.Background(), mockapi.DemoEmail, mockapi.DemoPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	client.SetToken(auth.Token)
	rooms, err := client.Rooms(context.Background())
	if err != nil {
		t.Fatalf("Rooms: %v", err)
	}

	readings, alerts := newCoordinators(client, time.Hour, nil, nil)
	changes, unsubscribe := readings.Subscribe()
	defer unsubscribe()

	sensorIDs := rooms[0].SensorIDs()
	readings.Start(sensorIDs, refresh.On(now.AddDate(0, 0, -1)))
	defer func() {
		readings.Stop()
		readings.Wait()
	}()

	deadline := time.After(5 * time.Second)
	for len(readings.Snapshot()) < len(sensorIDs) {
		select {
		case <-changes:
		case <-deadline:
			t.Fatalf("readings for yesterday never arrived: %d", len(readings.Snapshot()))
		}
	}
	for _, e := range readings.Snapshot() {
		if len(e.Items) < 23 {
			t.Errorf("sensor %s has %d readings for yesterday, want a full day", e.ID, len(e.Items))
		}
		if e.Live {
			t.Errorf("readings entity %s should never be live", e.ID)
		}
	}

	// A week ago has no alerts; the 404 becomes an empty entity, not an error.
	alertChanges, unsubAlerts := alerts.Subscribe()
	defer unsubAlerts()
	alerts.Start([]string{rooms[0].ID}, refresh.On(now.AddDate(0, 0, -7)))
	defer func() {
		alerts.Stop()
		alerts.Wait()
	}()
	select {
	case <-alertChanges:
	case <-time.After(5 * time.Second):
		t.Fatalf("alerts never reported")
	}
	e, ok := alerts.Entity(rooms[0].ID)
	if !ok || len(e.Items) != 0 {
		t.Fatalf("alerts entity = %#v, %v", e, ok)
	}
}

func TestParseDate(t *testing.T) {
	day, err := parseDate("2025-03-09", time.UTC)
	if err != nil || !day.Equal(time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("parseDate = %v, %v", day, err)
	}
	if day, err := parseDate("  ", time.UTC); err != nil || !day.IsZero() {
		t.Fatalf("empty date = %v, %v", day, err)
	}
	if _, err := parseDate("09/03/2025", time.UTC); err == nil {
		t.Fatalf("expected error for bad layout")
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for store change")
	}
}
