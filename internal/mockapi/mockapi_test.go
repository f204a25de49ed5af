package mockapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/five82/roomwatch/internal/backend"
)

func testNow() time.Time {
	y, m, d := time.Now().Date()
	return time.Date(y, m, d, 12, 0, 0, 0, time.Local)
}

func newTestServer(t *testing.T) (*Store, *backend.Client) {
	t.Helper()
	now := testNow()
	store := NewStore(Options{Seed: 1, Now: func() time.Time { return now }, History: 1})
	srv := httptest.NewServer(NewServer(store, time.Local).Handler(nil))
	t.Cleanup(srv.Close)

	client, err := backend.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return store, client
}

func login(t *testing.T, client *backend.Client) string {
	t.Helper()
	auth, err := client.Login(context.Background(), DemoEmail, DemoPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	client.SetToken(auth.Token)
	id, err := client.UserIDByEmail(context.Background(), DemoEmail)
	if err != nil {
		t.Fatalf("UserIDByEmail: %v", err)
	}
	return id
}

func TestServer_RequiresToken(t *testing.T) {
	_, client := newTestServer(t)
	_, err := client.Rooms(context.Background())
	if !backend.IsUnauthorized(err) {
		t.Fatalf("Rooms without token = %v, want 401", err)
	}

	if _, err := client.Login(context.Background(), DemoEmail, "wrong"); !backend.IsUnauthorized(err) {
		t.Fatalf("bad password = %v, want 401", err)
	}
}

func TestServer_RoomsAndReadings(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()
	login(t, client)

	rooms, err := client.Rooms(ctx)
	if err != nil {
		t.Fatalf("Rooms: %v", err)
	}
	if len(rooms) != 2 || rooms[0].Name != "Living Room" {
		t.Fatalf("rooms = %#v", rooms)
	}
	sensor := rooms[0].Sensors[0]
	if len(sensor.Details) != 1 {
		t.Fatalf("room listing should carry the latest reading, got %d", len(sensor.Details))
	}

	today, err := client.SensorDataByDate(ctx, sensor.ID, testNow())
	if err != nil {
		t.Fatalf("SensorDataByDate today: %v", err)
	}
	if len(today) != 12 {
		t.Fatalf("today has %d hourly readings, want 12", len(today))
	}
	if _, ok := today[0].Data["temperature"]; !ok {
		t.Fatalf("DHT22 reading without temperature: %#v", today[0])
	}

	_, err = client.SensorDataByDate(ctx, sensor.ID, testNow().AddDate(0, 0, -5))
	if !backend.IsNotFound(err) {
		t.Fatalf("empty day = %v, want 404", err)
	}

	last, err := client.LastSensorDetails(ctx, sensor.ID)
	if err != nil || last.Time().Hour() != 11 {
		t.Fatalf("LastSensorDetails = %#v, %v", last, err)
	}
}

func TestServer_AssignAndRemoveRoom(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()
	userID := login(t, client)

	free, err := client.AvailableRooms(ctx)
	if err != nil || len(free) != 2 {
		t.Fatalf("AvailableRooms = %#v, %v", free, err)
	}

	assigned, err := client.AssignRoom(ctx, backend.AssignRoomRequest{RoomID: free[0].ID, UserID: userID, RoomName: "Workshop"})
	if err != nil {
		t.Fatalf("AssignRoom: %v", err)
	}
	if assigned.Name != "Workshop" || assigned.UserID != userID {
		t.Fatalf("assigned = %#v", assigned)
	}
	if rooms, _ := client.Rooms(ctx); len(rooms) != 3 {
		t.Fatalf("rooms after assign = %d, want 3", len(rooms))
	}

	if err := client.RemoveUserFromRoom(ctx, assigned.ID, userID); err != nil {
		t.Fatalf("RemoveUserFromRoom: %v", err)
	}
	if err := client.RemoveUserFromRoom(ctx, assigned.ID, userID); !backend.IsNotFound(err) {
		t.Fatalf("second remove = %v, want 404", err)
	}
}

func TestServer_CustomAlertsRaiseAlerts(t *testing.T) {
	store, client := newTestServer(t)
	ctx := context.Background()
	userID := login(t, client)

	rooms, _ := client.Rooms(ctx)
	room := rooms[0]
	sensor := room.Sensors[0]

	rule, err := client.CreateCustomAlert(ctx, backend.CustomAlert{
		RoomID: room.ID, SensorID: sensor.ID, SensorType: sensor.SensorType,
		Parameter: "temperature", Condition: ">", Threshold: 30, Message: "too warm",
	})
	if err != nil {
		t.Fatalf("CreateCustomAlert: %v", err)
	}
	if rule.ID == "" || rule.UserID != userID {
		t.Fatalf("rule = %#v", rule)
	}

	at := testNow().Add(30 * time.Minute)
	if err := store.Ingest(sensor.ID, backend.Details{
		Timestamp: backend.NewTimestamp(at),
		Data:      map[string]float64{"temperature": 31, "humidity": 50},
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	alerts, err := client.AlertsByDate(ctx, room.ID, testNow())
	if err != nil {
		t.Fatalf("AlertsByDate: %v", err)
	}
	found := false
	for _, a := range alerts {
		if a.Message == "too warm" && a.SensorID == sensor.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("custom rule did not raise an alert: %#v", alerts)
	}

	if _, err := client.AlertsByDate(ctx, room.ID, testNow().AddDate(0, 0, -30)); !backend.IsNotFound(err) {
		t.Fatalf("alerts on empty day = %v, want 404", err)
	}

	edit := rule
	edit.UserID = ""
	edit.Threshold = 35
	updated, err := client.UpdateCustomAlert(ctx, rule.ID, edit)
	if err != nil || updated.ID != rule.ID || updated.Threshold != 35 || updated.UserID != userID {
		t.Fatalf("UpdateCustomAlert = %#v, %v", updated, err)
	}

	list, err := client.CustomAlerts(ctx)
	if err != nil || len(list) != 1 || list[0].Threshold != 35 {
		t.Fatalf("CustomAlerts = %#v, %v", list, err)
	}
	deleted, err := client.DeleteCustomAlert(ctx, rule.ID)
	if err != nil || deleted.ID != rule.ID {
		t.Fatalf("DeleteCustomAlert = %#v, %v", deleted, err)
	}
	if _, err := client.UpdateCustomAlert(ctx, rule.ID, edit); !backend.IsNotFound(err) {
		t.Fatalf("update of deleted rule = %v, want 404", err)
	}
}

func TestServer_SensorStatusAndPhone(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()
	userID := login(t, client)

	rooms, _ := client.Rooms(ctx)
	sensor := rooms[0].Sensors[0]
	if err := client.SetSensorStatus(ctx, sensor.ID, !sensor.Active); err != nil {
		t.Fatalf("SetSensorStatus: %v", err)
	}
	rooms, _ = client.Rooms(ctx)
	if rooms[0].Sensors[0].Active == sensor.Active {
		t.Fatalf("sensor %s still active=%v", sensor.ID, sensor.Active)
	}
	if err := client.SetSensorStatus(ctx, "missing", true); !backend.IsNotFound(err) {
		t.Fatalf("unknown sensor = %v, want 404", err)
	}

	if err := client.UpdateUserPhone(ctx, userID, "+39 555 0100"); err != nil {
		t.Fatalf("UpdateUserPhone: %v", err)
	}
	phone, err := client.UserPhone(ctx, userID)
	if err != nil || phone != "+39 555 0100" {
		t.Fatalf("UserPhone = %q, %v", phone, err)
	}
}

func TestServer_RejectsInvalidRule(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()
	login(t, client)

	_, err := client.CreateCustomAlert(ctx, backend.CustomAlert{SensorID: "x", Parameter: "gas", Condition: "~"})
	var apiErr *backend.APIError
	if err == nil {
		t.Fatalf("expected error")
	}
	if ok := asAPIError(err, &apiErr); !ok || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestServer_RegisterConflict(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	if _, err := client.Register(ctx, "New", "new@example.com", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := client.Register(ctx, "Again", "new@example.com", "pw")
	var apiErr *backend.APIError
	if !asAPIError(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register = %v, want 409", err)
	}
}

func TestStore_SyntheticReadingsAdvanceWithClock(t *testing.T) {
	now := testNow()
	store := NewStore(Options{Seed: 7, Now: func() time.Time { return now }, Step: 5 * time.Second})
	rooms := store.Rooms(firstUserID(store))
	sensorID := rooms[0].Sensors[0].ID

	before, _ := store.SensorData(sensorID, now)
	now = now.Add(20 * time.Second)
	after, _ := store.SensorData(sensorID, now)
	if len(after)-len(before) != 4 {
		t.Fatalf("20s at 5s steps added %d readings, want 4", len(after)-len(before))
	}
}

func TestStore_SystemLimits(t *testing.T) {
	store := NewStore(Options{Seed: 1})
	r := &room{name: "Lab"}
	msgs := store.violations(r, &sensor{id: "s"}, backend.Details{Data: map[string]float64{"gas": 750, "temperature": 20}})
	if len(msgs) != 1 || msgs[0] != "Gas level in room: Lab is too high: 750" {
		t.Fatalf("violations = %v", msgs)
	}
}

func firstUserID(s *Store) string {
	id, _ := s.UserIDByEmail(DemoEmail)
	return id
}
