package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/roomwatch/internal/backend"
	"github.com/five82/roomwatch/internal/refresh"
	"github.com/five82/roomwatch/internal/session"
	"github.com/five82/roomwatch/internal/state"
)

// fakeAPI is an in-memory backend.API.
type fakeAPI struct {
	mu       sync.Mutex
	token    string
	login    backend.AuthResponse
	loginErr error
	free     []backend.Room
	assigned []backend.AssignRoomRequest
	rules    []backend.CustomAlert
	created  []backend.CustomAlert
	updated  []backend.CustomAlert
	deleted  []string
	removed  []string
	statuses []string
	phone    string
	phones   []string
	last     map[string]backend.Details
}

func (f *fakeAPI) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *fakeAPI) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeAPI) Login(context.Context, string, string) (backend.AuthResponse, error) {
	return f.login, f.loginErr
}

func (f *fakeAPI) Register(context.Context, string, string, string) (backend.AuthResponse, error) {
	return f.login, f.loginErr
}

func (f *fakeAPI) UserIDByEmail(context.Context, string) (string, error) {
	return "u-lookup", nil
}

func (f *fakeAPI) Rooms(context.Context) ([]backend.Room, error) { return nil, nil }

func (f *fakeAPI) AvailableRooms(context.Context) ([]backend.Room, error) {
	return f.free, nil
}

func (f *fakeAPI) AssignRoom(_ context.Context, req backend.AssignRoomRequest) (backend.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned = append(f.assigned, req)
	return backend.Room{ID: req.RoomID, Name: req.RoomName, UserID: req.UserID}, nil
}

func (f *fakeAPI) UserPhone(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phone, nil
}

func (f *fakeAPI) UpdateUserPhone(_ context.Context, _ string, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phone = phone
	f.phones = append(f.phones, phone)
	return nil
}

func (f *fakeAPI) RemoveUserFromRoom(_ context.Context, roomID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, roomID+"/"+userID)
	return nil
}

func (f *fakeAPI) SensorDataByDate(context.Context, string, time.Time) ([]backend.Details, error) {
	return nil, nil
}

func (f *fakeAPI) LastSensorDetails(_ context.Context, sensorID string) (backend.Details, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.last[sensorID]
	if !ok {
		return backend.Details{}, &backend.APIError{Method: "GET", Path: "/sensor/last/details/" + sensorID, StatusCode: 404}
	}
	return d, nil
}

func (f *fakeAPI) SetSensorStatus(_ context.Context, sensorID string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, fmt.Sprintf("%s=%t", sensorID, active))
	return nil
}

func (f *fakeAPI) AlertsByDate(context.Context, string, time.Time) ([]backend.Alert, error) {
	return nil, nil
}

func (f *fakeAPI) CustomAlerts(context.Context) ([]backend.CustomAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.CustomAlert(nil), f.rules...), nil
}

func (f *fakeAPI) CreateCustomAlert(_ context.Context, rule backend.CustomAlert) (backend.CustomAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule.ID = "c" + string(rune('0'+len(f.created)+1))
	f.created = append(f.created, rule)
	return rule, nil
}

func (f *fakeAPI) UpdateCustomAlert(_ context.Context, id string, rule backend.CustomAlert) (backend.CustomAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule.ID = id
	f.updated = append(f.updated, rule)
	return rule, nil
}

func (f *fakeAPI) DeleteCustomAlert(_ context.Context, id string) (backend.CustomAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return backend.CustomAlert{ID: id}, nil
}

// alertSource serves a mutable alert list per room.
type alertSource struct {
	mu     sync.Mutex
	byRoom map[string][]backend.Alert
}

func (s *alertSource) set(roomID string, alerts ...backend.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRoom[roomID] = alerts
}

func (s *alertSource) fetch(_ context.Context, id string, _ refresh.Query) ([]backend.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.Alert(nil), s.byRoom[id]...), nil
}

type harness struct {
	api       *fakeAPI
	store     *state.RoomStore
	readings  *refresh.Coordinator[backend.Details]
	alerts    *refresh.Coordinator[backend.Alert]
	source    *alertSource
	refreshes int
	dir       string
	now       time.Time
}

func testRooms() []backend.Room {
	at := backend.NewTimestamp(time.Now().Add(-time.Minute))
	return []backend.Room{
		{ID: "r1", Name: "Kitchen", Sensors: []backend.Sensor{
			{ID: "s1", SensorType: backend.SensorDHT22, Active: true, Port: 4,
				Details: []backend.Details{{Timestamp: at, Data: map[string]float64{"temperature": 21.5, "humidity": 40}}}},
			{ID: "s2", SensorType: backend.SensorMQ5, Active: true},
		}},
		{ID: "r2", Name: "Office", Sensors: []backend.Sensor{
			{ID: "s3", SensorType: backend.SensorMQ2, Active: false},
		}},
	}
}

func newHarness(t *testing.T, sess session.Session) (*harness, Model) {
	t.Helper()
	h := &harness{
		api:    &fakeAPI{},
		store:  state.NewRoomStore(),
		source: &alertSource{byRoom: map[string][]backend.Alert{}},
		dir:    t.TempDir(),
		now:    time.Now(),
	}
	clock := func() time.Time { return h.now }
	h.readings = refresh.New(refresh.Options[backend.Details]{
		Name: "readings",
		Fetch: func(context.Context, string, refresh.Query) ([]backend.Details, error) {
			return nil, nil
		},
		Interval: time.Hour,
		Now:      clock,
	})
	h.alerts = refresh.New(refresh.Options[backend.Alert]{
		Name:     "alerts",
		Fetch:    h.source.fetch,
		Policy:   refresh.MergeAppendCount,
		Interval: time.Hour,
		Now:      clock,
	})
	if sess.Valid() {
		h.store.Update(testRooms(), nil)
	}

	m := New(Options{
		API:          h.api,
		Store:        h.store,
		Readings:     h.readings,
		Alerts:       h.alerts,
		Session:      sess,
		SessionPath:  filepath.Join(h.dir, "session.toml"),
		PrefsPath:    filepath.Join(h.dir, "prefs.toml"),
		RefreshRooms: func() { h.refreshes++ },
		Now:          clock,
	})
	t.Cleanup(func() {
		h.readings.Stop()
		h.alerts.Stop()
		h.readings.Wait()
		h.alerts.Wait()
	})
	return h, m
}

func signedIn() session.Session {
	return session.Session{Token: "tok", UserID: "u1", UserName: "Ada", UserEmail: "ada@example.com"}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return nm, cmd
}

func press(t *testing.T, m Model, keys string) (Model, tea.Cmd) {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
}

func pressType(t *testing.T, m Model, kt tea.KeyType) (Model, tea.Cmd) {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: kt})
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m, _ = press(t, m, string(r))
	}
	return m
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) (Model, tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	return update(t, m, cmd())
}

// runBatch executes cmd, unpacking batches, and feeds every message back
// into the model.
func runBatch(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			m = runBatch(t, m, c)
		}
		return m
	}
	m, _ = update(t, m, msg)
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew_StartsOnLoginWithoutSession(t *testing.T) {
	_, m := newHarness(t, session.Session{})
	if m.view != ViewLogin {
		t.Fatalf("view = %v, want %v", m.view, ViewLogin)
	}
	if !m.login.inputs[fieldEmail].Focused() {
		t.Fatal("email input should have focus")
	}
}

func TestSwitchView_RunsOnlyTheActiveLoop(t *testing.T) {
	h, m := newHarness(t, signedIn())

	m, _ = update(t, m, startViewMsg(ViewRooms))
	if !h.readings.Running() || h.alerts.Running() {
		t.Fatalf("rooms view: readings=%v alerts=%v", h.readings.Running(), h.alerts.Running())
	}
	if got := h.readings.IDs(); !equalIDs(got, []string{"s1", "s2"}) {
		t.Fatalf("readings ids = %v", got)
	}

	m, _ = press(t, m, "a")
	if m.view != ViewAlerts {
		t.Fatalf("view = %v, want alerts", m.view)
	}
	if h.readings.Running() || !h.alerts.Running() {
		t.Fatalf("alerts view: readings=%v alerts=%v", h.readings.Running(), h.alerts.Running())
	}
	if got := h.alerts.IDs(); !equalIDs(got, []string{"r1", "r2"}) {
		t.Fatalf("alerts ids = %v", got)
	}

	m, cmd := press(t, m, "c")
	if h.readings.Running() || h.alerts.Running() {
		t.Fatal("rules view should not run a refresh loop")
	}
	if cmd == nil {
		t.Fatal("rules view should load rules")
	}
	_ = m
}

func TestRoomSelection_MovesReadingsLoop(t *testing.T) {
	h, m := newHarness(t, signedIn())
	m, _ = update(t, m, startViewMsg(ViewRooms))

	m, _ = press(t, m, "j")
	if m.roomRow != 1 {
		t.Fatalf("roomRow = %d, want 1", m.roomRow)
	}
	if got := h.readings.IDs(); !equalIDs(got, []string{"s3"}) {
		t.Fatalf("readings ids = %v, want [s3]", got)
	}
	if m.prefs.LastRoom != "r2" {
		t.Fatalf("LastRoom = %q, want r2", m.prefs.LastRoom)
	}
}

func TestDayNavigation_NeverPassesToday(t *testing.T) {
	h, m := newHarness(t, signedIn())
	m, _ = update(t, m, startViewMsg(ViewRooms))

	m, _ = press(t, m, "[")
	yesterday := refresh.On(h.now.AddDate(0, 0, -1))
	if !m.query.Date.Equal(yesterday.Date) {
		t.Fatalf("query = %v, want %v", m.query.Date, yesterday.Date)
	}
	if got := h.readings.Query(); !got.Date.Equal(yesterday.Date) {
		t.Fatalf("readings query = %v, want %v", got.Date, yesterday.Date)
	}
	if !h.readings.Running() {
		t.Fatal("changing day must not stop the loop")
	}

	m, _ = press(t, m, "]")
	if !m.query.Follows() {
		t.Fatalf("query = %+v, want today", m.query)
	}
	m, _ = press(t, m, "]")
	if !m.query.Follows() {
		t.Fatalf("moved past today: %+v", m.query)
	}

	m, _ = press(t, m, "[")
	m, _ = press(t, m, "[")
	m, _ = press(t, m, "t")
	if !m.query.Follows() || !h.alerts.Query().Follows() {
		t.Fatal("t should return both loops to today")
	}
}

func TestAlerts_OpenAcknowledgesLiveRoom(t *testing.T) {
	h, m := newHarness(t, signedIn())
	at := backend.NewTimestamp(h.now)
	first := backend.Alert{AlertID: "a1", RoomID: "r1", SensorType: backend.SensorMQ5, Timestamp: at, Message: "gas high"}
	h.source.set("r1", first)

	m, _ = update(t, m, startViewMsg(ViewRooms))
	m, _ = press(t, m, "a")
	waitFor(t, "first alert", func() bool {
		e, ok := h.alerts.Entity("r1")
		return ok && len(e.Items) == 1
	})

	second := first
	second.AlertID = "a2"
	h.source.set("r1", first, second)
	h.alerts.Refresh()
	waitFor(t, "live flag", func() bool {
		e, _ := h.alerts.Entity("r1")
		return e.Live
	})

	m.applyChange(sourceAlerts)
	if got := m.liveCount(); got != 1 {
		t.Fatalf("liveCount = %d, want 1", got)
	}
	rows := m.alertRows()
	if len(rows) != 1 || rows[0].room.ID != "r1" {
		t.Fatalf("alert rows = %+v", rows)
	}

	m, _ = pressType(t, m, tea.KeyEnter)
	if m.alertDetail != "r1" {
		t.Fatalf("alertDetail = %q, want r1", m.alertDetail)
	}
	if e, _ := h.alerts.Entity("r1"); e.Live {
		t.Fatal("opening the room should acknowledge its alerts")
	}

	third := first
	third.AlertID = "a3"
	h.source.set("r1", first, second, third)
	h.alerts.Refresh()
	waitFor(t, "third alert", func() bool {
		e, _ := h.alerts.Entity("r1")
		return len(e.Items) == 3
	})
	m.applyChange(sourceAlerts)
	if e, _ := h.alerts.Entity("r1"); e.Live {
		t.Fatal("alerts arriving in the open room should be acknowledged")
	}
	if got := m.liveCount(); got != 0 {
		t.Fatalf("liveCount = %d, want 0", got)
	}

	m, _ = pressType(t, m, tea.KeyEsc)
	if m.alertDetail != "" {
		t.Fatal("esc should close the detail")
	}
}

func TestRules_CreateValidatesBeforeSaving(t *testing.T) {
	h, m := newHarness(t, signedIn())
	m, _ = update(t, m, startViewMsg(ViewRooms))
	m, cmd := press(t, m, "c")
	m, _ = run(t, m, cmd)

	m, _ = press(t, m, "n")
	if m.form == nil {
		t.Fatal("n should open the rule form")
	}
	m, cmd = pressType(t, m, tea.KeyEnter)
	if cmd != nil || m.form.err == nil {
		t.Fatalf("empty form should fail validation, err=%v", m.form.err)
	}

	// sensor -> parameter -> condition -> threshold
	for range 3 {
		m, _ = pressType(t, m, tea.KeyTab)
	}
	m = typeText(t, m, "45")
	m, _ = pressType(t, m, tea.KeyTab)
	m = typeText(t, m, "Too humid")

	m, cmd = pressType(t, m, tea.KeyEnter)
	if m.form.err != nil {
		t.Fatalf("unexpected validation error: %v", m.form.err)
	}
	m, cmd = run(t, m, cmd)
	if m.form != nil {
		t.Fatal("form should close after saving")
	}
	if cmd == nil {
		t.Fatal("saving should reload rules")
	}

	if len(h.api.created) != 1 {
		t.Fatalf("created %d rules, want 1", len(h.api.created))
	}
	got := h.api.created[0]
	if got.RoomID != "r1" || got.SensorID != "s1" || got.Parameter != "humidity" ||
		got.Condition != ">" || got.Threshold != 45 || got.UserID != "u1" || got.Message != "Too humid" {
		t.Fatalf("created rule = %+v", got)
	}
}

func TestRules_FilterAndDelete(t *testing.T) {
	h, m := newHarness(t, signedIn())
	h.api.rules = []backend.CustomAlert{
		{ID: "c1", RoomID: "r1", SensorType: "DHT22", Parameter: "temperature", Condition: ">", Threshold: 30, Message: "hot"},
		{ID: "c2", RoomID: "r2", SensorType: "MQ2", Parameter: "mq2Value", Condition: ">", Threshold: 500, Message: "smoke"},
	}
	m, cmd := press(t, m, "c")
	m, _ = run(t, m, cmd)
	if got := len(m.visibleRules()); got != 2 {
		t.Fatalf("visible = %d, want 2", got)
	}

	m, _ = press(t, m, "f")
	m, _ = press(t, m, "f")
	visible := m.visibleRules()
	if len(visible) != 1 || visible[0].ID != "c2" {
		t.Fatalf("filtered = %+v, want only c2", visible)
	}

	m, _ = press(t, m, "x")
	if !m.rules.confirmDelete {
		t.Fatal("x should ask for confirmation")
	}
	m, cmd = press(t, m, "y")
	m, cmd = run(t, m, cmd)
	if len(h.api.deleted) != 1 || h.api.deleted[0] != "c2" {
		t.Fatalf("deleted = %v, want [c2]", h.api.deleted)
	}
	if !strings.Contains(m.notice.text, "Rule deleted") {
		t.Fatalf("notice = %q", m.notice.text)
	}
	if cmd == nil {
		t.Fatal("delete should reload rules")
	}

	// Anything but y cancels.
	m, _ = press(t, m, "x")
	m, cmd = press(t, m, "n")
	if cmd != nil || m.rules.confirmDelete {
		t.Fatal("n should cancel the delete")
	}
}

func TestLogin_SignsInAndPersistsSession(t *testing.T) {
	h, m := newHarness(t, session.Session{})
	h.api.login = backend.AuthResponse{Token: "tok-1", User: backend.User{ID: "u9", Name: "Ada"}}

	m = typeText(t, m, "ada@example.com")
	m, _ = pressType(t, m, tea.KeyTab)
	m = typeText(t, m, "secret")
	m, cmd := pressType(t, m, tea.KeyEnter)
	if !m.login.busy {
		t.Fatal("form should be busy while signing in")
	}
	m, _ = run(t, m, cmd)

	if m.view != ViewRooms {
		t.Fatalf("view = %v, want rooms", m.view)
	}
	if h.api.Token() != "tok-1" {
		t.Fatalf("token = %q", h.api.Token())
	}
	if h.refreshes == 0 {
		t.Fatal("signing in should trigger a room poll")
	}
	saved, err := session.Load(m.sessionPath)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if saved.Token != "tok-1" || saved.UserID != "u9" || saved.UserEmail != "ada@example.com" {
		t.Fatalf("saved session = %+v", saved)
	}
}

func TestLogin_ShowsFriendlyError(t *testing.T) {
	h, m := newHarness(t, session.Session{})
	h.api.loginErr = &backend.APIError{Method: "POST", Path: "/auth/login", StatusCode: 401}

	m = typeText(t, m, "ada@example.com")
	m, _ = pressType(t, m, tea.KeyTab)
	m = typeText(t, m, "wrong")
	m, cmd := pressType(t, m, tea.KeyEnter)
	m, _ = run(t, m, cmd)

	if m.view != ViewLogin {
		t.Fatalf("view = %v, want login", m.view)
	}
	if m.login.err == nil || m.login.err.Error() != "wrong email or password" {
		t.Fatalf("err = %v", m.login.err)
	}
}

func TestLogout_ClearsEverything(t *testing.T) {
	h, m := newHarness(t, signedIn())
	if err := session.Save(m.sessionPath, signedIn()); err != nil {
		t.Fatal(err)
	}
	h.api.SetToken("tok")
	m, _ = update(t, m, startViewMsg(ViewRooms))

	m, _ = press(t, m, "O")
	if m.view != ViewLogin {
		t.Fatalf("view = %v, want login", m.view)
	}
	if h.readings.Running() || h.alerts.Running() {
		t.Fatal("logout must stop every loop")
	}
	if h.api.Token() != "" {
		t.Fatal("token should be cleared")
	}
	if h.store.Snapshot().HasRooms {
		t.Fatal("room store should be cleared")
	}
	saved, _ := session.Load(m.sessionPath)
	if saved.Valid() {
		t.Fatal("session file should be removed")
	}
}

func TestClaimRoom_RequestsImmediatePoll(t *testing.T) {
	h, m := newHarness(t, signedIn())
	h.api.free = []backend.Room{{ID: "r7", Name: "Lab", Sensors: []backend.Sensor{{ID: "s9"}}}}

	m, cmd := press(t, m, "A")
	before := h.refreshes
	m, _ = run(t, m, cmd)

	if len(h.api.assigned) != 1 || h.api.assigned[0].UserID != "u1" || h.api.assigned[0].SensorIDs[0] != "s9" {
		t.Fatalf("assigned = %+v", h.api.assigned)
	}
	if h.refreshes != before+1 {
		t.Fatalf("refreshes = %d, want %d", h.refreshes, before+1)
	}
	if m.notice.text != "Room Lab added" || m.notice.err {
		t.Fatalf("notice = %+v", m.notice)
	}
}

func TestRooms_LeaveRoomAsksFirst(t *testing.T) {
	h, m := newHarness(t, signedIn())
	m, _ = update(t, m, startViewMsg(ViewRooms))

	m, _ = press(t, m, "D")
	if !m.confirmLeave {
		t.Fatal("D should ask for confirmation")
	}
	m, cmd := press(t, m, "n")
	if cmd != nil || m.confirmLeave {
		t.Fatal("n should cancel leaving")
	}

	m, _ = press(t, m, "D")
	m, cmd = press(t, m, "y")
	before := h.refreshes
	m, _ = run(t, m, cmd)
	if len(h.api.removed) != 1 || h.api.removed[0] != "r1/u1" {
		t.Fatalf("removed = %v, want [r1/u1]", h.api.removed)
	}
	if m.notice.text != "Left Kitchen" || m.notice.err {
		t.Fatalf("notice = %+v", m.notice)
	}
	if h.refreshes != before+1 {
		t.Fatalf("refreshes = %d, want %d", h.refreshes, before+1)
	}
}

func TestRooms_ToggleSensor(t *testing.T) {
	h, m := newHarness(t, signedIn())
	m, _ = update(t, m, startViewMsg(ViewRooms))

	m, _ = press(t, m, "s")
	if m.sensorRow != 1 {
		t.Fatalf("sensorRow = %d, want 1", m.sensorRow)
	}
	m, cmd := press(t, m, "S")
	m, _ = run(t, m, cmd)
	if len(h.api.statuses) != 1 || h.api.statuses[0] != "s2=false" {
		t.Fatalf("statuses = %v, want [s2=false]", h.api.statuses)
	}
	if m.notice.text != "MQ5 sensor switched off" {
		t.Fatalf("notice = %q", m.notice.text)
	}

	// The cursor wraps and resets on a new room.
	m, _ = press(t, m, "s")
	if m.sensorRow != 0 {
		t.Fatalf("sensorRow = %d, want 0 after wrapping", m.sensorRow)
	}
	m, _ = press(t, m, "s")
	m, _ = press(t, m, "j")
	if m.sensorRow != 0 {
		t.Fatalf("sensorRow = %d, want 0 in a new room", m.sensorRow)
	}
}

func TestRooms_LastReadingFallback(t *testing.T) {
	h, m := newHarness(t, signedIn())
	h.api.last = map[string]backend.Details{
		"s2": {Timestamp: backend.NewTimestamp(h.now.Add(-26 * time.Hour)), Data: map[string]float64{"gas": 180}},
	}
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})
	m, _ = update(t, m, startViewMsg(ViewRooms))
	waitFor(t, "empty readings", func() bool {
		merged := 0
		for _, e := range h.readings.Snapshot() {
			if e.Revision > 0 {
				merged++
			}
		}
		return merged == 2
	})
	m.applyChange(sourceReadings)

	m = runBatch(t, m, m.fetchLastReadings())
	if _, ok := m.lastReadings["s2"]; !ok {
		t.Fatal("s2 should have a last reading")
	}
	if _, ok := m.lastReadings["s1"]; ok {
		t.Fatal("s1 has no last reading")
	}
	if cmd := m.fetchLastReadings(); cmd != nil {
		t.Fatal("each sensor is asked once")
	}
	if out := m.View(); !strings.Contains(out, "last seen") {
		t.Fatal("view should show the last reading")
	}

	// Past days never fall back.
	m, _ = press(t, m, "[")
	m.lastAsked = map[string]bool{}
	if cmd := m.fetchLastReadings(); cmd != nil {
		t.Fatal("fallback is for today only")
	}
}

func TestRules_EditUpdatesInPlace(t *testing.T) {
	h, m := newHarness(t, signedIn())
	h.api.rules = []backend.CustomAlert{
		{ID: "c1", RoomID: "r1", SensorID: "s1", SensorType: "DHT22", Parameter: "temperature", Condition: ">", Threshold: 30, Message: "hot", UserID: "u1"},
	}
	m, cmd := press(t, m, "c")
	m, _ = run(t, m, cmd)

	m, _ = press(t, m, "e")
	if m.form == nil || m.form.editID != "c1" {
		t.Fatal("e should open the form on the selected rule")
	}
	if got := m.form.threshold.Value(); got != "30" {
		t.Fatalf("threshold = %q, want 30", got)
	}
	m, _ = pressType(t, m, tea.KeyBackspace)
	m, _ = pressType(t, m, tea.KeyBackspace)
	m = typeText(t, m, "32")

	m, cmd = pressType(t, m, tea.KeyEnter)
	if m.form.err != nil {
		t.Fatalf("unexpected validation error: %v", m.form.err)
	}
	m, _ = run(t, m, cmd)

	if len(h.api.created) != 0 {
		t.Fatalf("editing created %d rules", len(h.api.created))
	}
	if len(h.api.updated) != 1 {
		t.Fatalf("updated %d rules, want 1", len(h.api.updated))
	}
	got := h.api.updated[0]
	if got.ID != "c1" || got.SensorID != "s1" || got.Parameter != "temperature" ||
		got.Condition != ">" || got.Threshold != 32 || got.Message != "hot" {
		t.Fatalf("updated rule = %+v", got)
	}
	if m.notice.text != "Rule updated: temperature > 32" {
		t.Fatalf("notice = %q", m.notice.text)
	}
}

func TestRules_EditRejectsForeignRoom(t *testing.T) {
	h, m := newHarness(t, signedIn())
	h.api.rules = []backend.CustomAlert{
		{ID: "c9", RoomID: "r9", SensorType: "MQ2", Parameter: "mq2Value", Condition: ">", Threshold: 500},
	}
	m, cmd := press(t, m, "c")
	m, _ = run(t, m, cmd)

	m, _ = press(t, m, "e")
	if m.form != nil || !m.notice.err {
		t.Fatalf("form = %v, notice = %+v", m.form, m.notice)
	}
}

func TestPhone_LoadsAndSaves(t *testing.T) {
	h, m := newHarness(t, signedIn())
	h.api.phone = "+39 555 0100"

	m, cmd := press(t, m, "P")
	if m.phone == nil || cmd == nil {
		t.Fatal("P should open the phone form and load the number")
	}
	m, _ = update(t, m, m.loadPhoneCmd()())
	if got := m.phone.input.Value(); got != "+39 555 0100" {
		t.Fatalf("phone = %q", got)
	}

	// Keys go to the input, not to view switching.
	m = typeText(t, m, "ac")
	if m.view != ViewRooms {
		t.Fatalf("view = %v, want rooms", m.view)
	}
	m, cmd = pressType(t, m, tea.KeyEnter)
	if cmd != nil || m.phone.err == nil {
		t.Fatal("letters should fail validation")
	}

	m, _ = pressType(t, m, tea.KeyBackspace)
	m, _ = pressType(t, m, tea.KeyBackspace)
	m = typeText(t, m, "1")
	m, cmd = pressType(t, m, tea.KeyEnter)
	if !m.phone.busy {
		t.Fatal("form should be busy while saving")
	}
	m, _ = run(t, m, cmd)

	if m.phone != nil {
		t.Fatal("form should close after saving")
	}
	if len(h.api.phones) != 1 || h.api.phones[0] != "+3955501001" {
		t.Fatalf("phones = %v", h.api.phones)
	}
	if m.notice.text != "Phone number saved: +3955501001" {
		t.Fatalf("notice = %q", m.notice.text)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+39 333-123 4567", "+393331234567", true},
		{"0612345", "0612345", true},
		{"12345", "", false},
		{"1234567890123456", "", false},
		{"39+333123", "", false},
		{"call me", "", false},
	}
	for _, tt := range tests {
		got, err := normalizePhone(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("normalizePhone(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestHandleAction_ShowsErrors(t *testing.T) {
	_, m := newHarness(t, signedIn())
	m, _ = update(t, m, actionMsg{text: "Claim room", err: errors.New("no free rooms")})
	if !m.notice.err || m.notice.text != "Claim room: no free rooms" {
		t.Fatalf("notice = %+v", m.notice)
	}
}

func TestView_RendersRoomsAndHeader(t *testing.T) {
	_, m := newHarness(t, signedIn())
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})

	out := m.View()
	for _, want := range []string{"roomwatch", "Kitchen", "Office", "Today", "temperature 21.5 °C"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestQuit(t *testing.T) {
	_, m := newHarness(t, signedIn())
	_, cmd := press(t, m, "q")
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q should return tea.Quit")
	}
}
