package mockapi

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/roomwatch/internal/backend"
	"github.com/five82/roomwatch/internal/rules"
)

// Demo credentials seeded into every store.
const (
	DemoEmail    = "demo@roomwatch.local"
	DemoPassword = "demo"
)

var (
	errNotFound     = errors.New("not found")
	errConflict     = errors.New("already exists")
	errUnauthorized = errors.New("unauthorized")
	errInvalid      = errors.New("invalid request")
)

type account struct {
	backend.User
	password string
}

type room struct {
	id      string
	name    string
	userID  string
	sensors []string
}

type sensor struct {
	id         string
	sensorType string
	port       int
	active     bool
	// level is the random-walk state driving synthetic readings.
	level float64
}

// Store is the in-memory backend state.
type Store struct {
	mu       sync.Mutex
	rng      *rand.Rand
	now      func() time.Time
	step     time.Duration
	lastTick time.Time

	users    map[string]*account
	tokens   map[string]string
	rooms    []*room
	sensors  map[string]*sensor
	readings map[string][]backend.Details
	alerts   map[string][]backend.Alert
	rules    []backend.CustomAlert
}

// Options tunes a Store.
type Options struct {
	Seed uint64
	Now  func() time.Time
	// Step is the spacing of synthetic readings. Zero disables them.
	Step time.Duration
	// History is how many past days get hourly readings at startup.
	History int
}

// NewStore seeds a demo user, four rooms and a little history.
func NewStore(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		rng:      rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		now:      opts.Now,
		step:     opts.Step,
		users:    make(map[string]*account),
		tokens:   make(map[string]string),
		sensors:  make(map[string]*sensor),
		readings: make(map[string][]backend.Details),
		alerts:   make(map[string][]backend.Alert),
	}

	demo := s.addUser("Demo User", DemoEmail, DemoPassword)
	demo.Phone = "+40700000000"

	s.addRoom("Living Room", demo.ID, backend.SensorDHT22, backend.SensorMQ5)
	s.addRoom("Kitchen", demo.ID, backend.SensorMQ2, backend.SensorMQ5)
	s.addRoom("Garage", "", backend.SensorDHT22)
	s.addRoom("Server Room", "", backend.SensorDHT22, backend.SensorMQ2)

	now := s.now()
	start := civil(now).AddDate(0, 0, -opts.History)
	for t := start; t.Before(now); t = t.Add(time.Hour) {
		s.generateLocked(t)
	}
	s.lastTick = now
	return s
}

func (s *Store) addUser(name, email, password string) *account {
	a := &account{
		User:     backend.User{ID: uuid.NewString(), Name: name, Email: email},
		password: password,
	}
	s.users[a.ID] = a
	return a
}

func (s *Store) addRoom(name, userID string, types ...string) *room {
	r := &room{id: uuid.NewString(), name: name, userID: userID}
	for i, typ := range types {
		sn := &sensor{id: uuid.NewString(), sensorType: typ, port: 20 + i, active: true}
		sn.level = baseline(typ)
		s.sensors[sn.id] = sn
		r.sensors = append(r.sensors, sn.id)
	}
	s.rooms = append(s.rooms, r)
	return r
}

func baseline(sensorType string) float64 {
	switch sensorType {
	case backend.SensorMQ5:
		return 250
	case backend.SensorMQ2:
		return 300
	default:
		return 22
	}
}

// advance appends synthetic readings for every step elapsed since the last
// call, up to one hour of catch-up.
func (s *Store) advance() {
	if s.step <= 0 {
		return
	}
	now := s.now()
	if now.Sub(s.lastTick) > time.Hour {
		s.lastTick = now.Add(-time.Hour)
	}
	for t := s.lastTick.Add(s.step); !t.After(now); t = t.Add(s.step) {
		s.generateLocked(t)
		s.lastTick = t
	}
}

func (s *Store) generateLocked(at time.Time) {
	for _, r := range s.rooms {
		for _, id := range r.sensors {
			sn := s.sensors[id]
			if !sn.active {
				continue
			}
			s.ingestLocked(r, sn, backend.Details{
				Timestamp: backend.NewTimestamp(at),
				Data:      s.sample(sn),
			})
		}
	}
}

func (s *Store) sample(sn *sensor) map[string]float64 {
	switch sn.sensorType {
	case backend.SensorMQ5:
		sn.level = walk(sn.level+s.rng.NormFloat64()*60, 120, 900, 250, 0.05)
		return map[string]float64{"gas": math.Round(sn.level)}
	case backend.SensorMQ2:
		sn.level = walk(sn.level+s.rng.NormFloat64()*50, 50, 1000, 300, 0.05)
		return map[string]float64{"mq2Value": math.Round(sn.level)}
	default:
		sn.level = walk(sn.level+s.rng.NormFloat64()*0.4, 10, 45, 22, 0.02)
		return map[string]float64{
			"temperature": math.Round(sn.level*10) / 10,
			"humidity":    math.Round(40 + s.rng.Float64()*25),
		}
	}
}

// walk clamps v and pulls it back toward center.
func walk(v, lo, hi, center, pull float64) float64 {
	v += (center - v) * pull
	return math.Max(lo, math.Min(hi, v))
}

// Ingest stores an externally produced reading, e.g. from MQTT.
func (s *Store) Ingest(sensorID string, d backend.Details) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sn, ok := s.sensors[sensorID]
	if !ok {
		return fmt.Errorf("sensor %s: %w", sensorID, errNotFound)
	}
	r := s.roomOfLocked(sensorID)
	if r == nil {
		return fmt.Errorf("sensor %s has no room: %w", sensorID, errNotFound)
	}
	if d.Timestamp == nil {
		d.Timestamp = backend.NewTimestamp(s.now())
	}
	s.ingestLocked(r, sn, d)
	return nil
}

func (s *Store) ingestLocked(r *room, sn *sensor, d backend.Details) {
	s.readings[sn.id] = append(s.readings[sn.id], d)
	for _, msg := range s.violations(r, sn, d) {
		s.alerts[r.id] = append(s.alerts[r.id], backend.Alert{
			AlertID:    uuid.NewString(),
			RoomID:     r.id,
			SensorID:   sn.id,
			Timestamp:  d.Timestamp,
			SensorType: sn.sensorType,
			Data:       d.Data,
			Message:    msg,
		})
	}
}

// violations applies the fixed system limits and any custom rules on the
// sensor. It is a toy evaluator for local demos.
func (s *Store) violations(r *room, sn *sensor, d backend.Details) []string {
	var out []string
	if v, ok := d.Data["temperature"]; ok && (v > 35 || v < -15) {
		out = append(out, fmt.Sprintf("Temperature in room: %s is out of range: %.1f °C", r.name, v))
	}
	if v, ok := d.Data["humidity"]; ok && (v > 95 || v < 10) {
		out = append(out, fmt.Sprintf("Humidity in room: %s is out of range: %.0f %%", r.name, v))
	}
	if v, ok := d.Data["gas"]; ok && v > 700 {
		out = append(out, fmt.Sprintf("Gas level in room: %s is too high: %.0f", r.name, v))
	}
	if v, ok := d.Data["mq2Value"]; ok && v > 800 {
		out = append(out, fmt.Sprintf("Smoke or gas level in room: %s is too high: %.0f", r.name, v))
	}
	for _, rule := range s.rules {
		if rule.SensorID == sn.id && rules.Matches(rule, d) {
			out = append(out, rule.Message)
		}
	}
	return out
}

func (s *Store) roomOfLocked(sensorID string) *room {
	for _, r := range s.rooms {
		for _, id := range r.sensors {
			if id == sensorID {
				return r
			}
		}
	}
	return nil
}

func (s *Store) roomLocked(id string) *room {
	for _, r := range s.rooms {
		if r.id == id {
			return r
		}
	}
	return nil
}

// --- auth ---

// Login checks credentials and issues a token.
func (s *Store) Login(email, password string) (backend.AuthResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.users {
		if strings.EqualFold(a.Email, email) && a.password == password {
			return s.issueLocked(a), nil
		}
	}
	return backend.AuthResponse{}, errUnauthorized
}

// Register creates an account and issues a token.
func (s *Store) Register(name, email, password string) (backend.AuthResponse, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return backend.AuthResponse{}, fmt.Errorf("email and password are required: %w", errInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.users {
		if strings.EqualFold(a.Email, email) {
			return backend.AuthResponse{}, fmt.Errorf("email %s: %w", email, errConflict)
		}
	}
	return s.issueLocked(s.addUser(name, email, password)), nil
}

func (s *Store) issueLocked(a *account) backend.AuthResponse {
	token := uuid.NewString()
	s.tokens[token] = a.ID
	return backend.AuthResponse{Token: token, User: a.User}
}

// Authenticate resolves a bearer token to a user id.
func (s *Store) Authenticate(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	return id, ok
}

// --- users ---

func (s *Store) User(id string) (backend.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.users[id]
	if !ok {
		return backend.User{}, errNotFound
	}
	return a.User, nil
}

func (s *Store) UserIDByEmail(email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.users {
		if strings.EqualFold(a.Email, email) {
			return a.ID, nil
		}
	}
	return "", errNotFound
}

func (s *Store) SetPhone(userID, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.users[userID]
	if !ok {
		return errNotFound
	}
	a.Phone = phone
	return nil
}

// --- rooms ---

func (s *Store) roomViewLocked(r *room) backend.Room {
	out := backend.Room{ID: r.id, Name: r.name, UserID: r.userID, Sensors: []backend.Sensor{}}
	for _, id := range r.sensors {
		out.Sensors = append(out.Sensors, s.sensorViewLocked(s.sensors[id]))
	}
	return out
}

// sensorViewLocked includes only the latest reading, as the backend does.
func (s *Store) sensorViewLocked(sn *sensor) backend.Sensor {
	out := backend.Sensor{ID: sn.id, SensorType: sn.sensorType, Port: sn.port, Active: sn.active}
	if latest, ok := backend.LatestDetails(s.readings[sn.id]); ok {
		out.Details = []backend.Details{latest}
	}
	return out
}

// Rooms lists the rooms assigned to userID.
func (s *Store) Rooms(userID string) []backend.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	out := []backend.Room{}
	for _, r := range s.rooms {
		if r.userID == userID {
			out = append(out, s.roomViewLocked(r))
		}
	}
	return out
}

// AvailableRooms lists unassigned rooms.
func (s *Store) AvailableRooms() []backend.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []backend.Room{}
	for _, r := range s.rooms {
		if r.userID == "" {
			out = append(out, s.roomViewLocked(r))
		}
	}
	return out
}

// AssignRoom gives a free room to a user, optionally renaming it.
func (s *Store) AssignRoom(req backend.AssignRoomRequest) (backend.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.roomLocked(req.RoomID)
	if r == nil {
		return backend.Room{}, errNotFound
	}
	if _, ok := s.users[req.UserID]; !ok {
		return backend.Room{}, fmt.Errorf("user %s: %w", req.UserID, errNotFound)
	}
	if r.userID != "" && r.userID != req.UserID {
		return backend.Room{}, fmt.Errorf("room %s: %w", r.name, errConflict)
	}
	r.userID = req.UserID
	if name := strings.TrimSpace(req.RoomName); name != "" {
		r.name = name
	}
	return s.roomViewLocked(r), nil
}

// RemoveUser releases a room from userID.
func (s *Store) RemoveUser(roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.roomLocked(roomID)
	if r == nil || r.userID != userID {
		return errNotFound
	}
	r.userID = ""
	return nil
}

// RoomSensors lists the sensors of a room.
func (s *Store) RoomSensors(roomID string) ([]backend.Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.roomLocked(roomID)
	if r == nil {
		return nil, errNotFound
	}
	return s.roomViewLocked(r).Sensors, nil
}

// --- sensors ---

func (s *Store) Sensors() []backend.Sensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.Sensor, 0, len(s.sensors))
	for _, r := range s.rooms {
		for _, id := range r.sensors {
			out = append(out, s.sensorViewLocked(s.sensors[id]))
		}
	}
	return out
}

func (s *Store) Sensor(id string) (backend.Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.sensors[id]
	if !ok {
		return backend.Sensor{}, errNotFound
	}
	return s.sensorViewLocked(sn), nil
}

// AddSensor installs a new sensor in a room.
func (s *Store) AddSensor(roomID string, in backend.Sensor) (backend.Sensor, error) {
	if strings.TrimSpace(in.SensorType) == "" {
		return backend.Sensor{}, fmt.Errorf("sensorType is required: %w", errInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.roomLocked(roomID)
	if r == nil {
		return backend.Sensor{}, errNotFound
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := s.sensors[id]; exists {
		return backend.Sensor{}, fmt.Errorf("sensor %s: %w", id, errConflict)
	}
	sn := &sensor{id: id, sensorType: in.SensorType, port: in.Port, active: true, level: baseline(in.SensorType)}
	s.sensors[id] = sn
	r.sensors = append(r.sensors, id)
	return s.sensorViewLocked(sn), nil
}

// SetSensorActive toggles synthetic readings for a sensor.
func (s *Store) SetSensorActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.sensors[id]
	if !ok {
		return errNotFound
	}
	sn.active = active
	return nil
}

// SensorData returns the readings of a sensor on day. No readings is
// reported as not found.
func (s *Store) SensorData(id string, day time.Time) ([]backend.Details, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sensors[id]; !ok {
		return nil, errNotFound
	}
	s.advance()
	var out []backend.Details
	for _, d := range s.readings[id] {
		if sameDay(d.Time(), day) {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, errNotFound
	}
	return out, nil
}

// LastDetails returns the newest reading of a sensor.
func (s *Store) LastDetails(id string) (backend.Details, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	latest, ok := backend.LatestDetails(s.readings[id])
	if !ok {
		return backend.Details{}, errNotFound
	}
	return latest, nil
}

// --- alerts ---

// Alerts returns a room's alerts, optionally limited to one day (zero means
// all days). A day without alerts is reported as not found.
func (s *Store) Alerts(roomID string, day time.Time) ([]backend.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomLocked(roomID) == nil {
		return nil, errNotFound
	}
	s.advance()
	var out []backend.Alert
	for _, a := range s.alerts[roomID] {
		if day.IsZero() || sameDay(a.Time(), day) {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil, errNotFound
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time().Before(out[j].Time()) })
	return out, nil
}

// --- custom alerts ---

// CustomAlerts lists the rules owned by userID.
func (s *Store) CustomAlerts(userID string) []backend.CustomAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []backend.CustomAlert{}
	for _, r := range s.rules {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) CustomAlert(id string) (backend.CustomAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return backend.CustomAlert{}, errNotFound
}

// SaveCustomAlert creates a rule or, when id is set, replaces it.
func (s *Store) SaveCustomAlert(id string, rule backend.CustomAlert) (backend.CustomAlert, error) {
	if !rules.ValidCondition(rule.Condition) || strings.TrimSpace(rule.Parameter) == "" {
		return backend.CustomAlert{}, fmt.Errorf("parameter and condition are required: %w", errInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sensors[rule.SensorID]; !ok {
		return backend.CustomAlert{}, fmt.Errorf("sensor %s: %w", rule.SensorID, errNotFound)
	}
	if id == "" {
		rule.ID = uuid.NewString()
		s.rules = append(s.rules, rule)
		return rule, nil
	}
	for i, existing := range s.rules {
		if existing.ID == id {
			rule.ID = id
			if rule.UserID == "" {
				rule.UserID = existing.UserID
			}
			s.rules[i] = rule
			return rule, nil
		}
	}
	return backend.CustomAlert{}, errNotFound
}

// DeleteCustomAlert removes a rule and returns it.
func (s *Store) DeleteCustomAlert(id string) (backend.CustomAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return r, nil
		}
	}
	return backend.CustomAlert{}, errNotFound
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
