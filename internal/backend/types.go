package backend

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the path format used by the date-scoped endpoints.
const DateLayout = "2006-01-02"

// Sensor models reported by the backend. DHT22 measures temperature and
// humidity, MQ5 measures gas and MQ2 measures smoke (mq2Value).
const (
	SensorDHT22 = "DHT22"
	SensorMQ5   = "MQ5"
	SensorMQ2   = "MQ2"
)

// FormatDate renders t in the yyyy-mm-dd form the backend expects, using t's
// own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Timestamp mirrors the seconds/nanos object the backend serializes.
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos,omitempty"`
}

// NewTimestamp converts t into the wire representation.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time converts the timestamp to a time.Time. A nil receiver yields the zero time.
func (ts *Timestamp) Time() time.Time {
	if ts == nil {
		return time.Time{}
	}
	return time.Unix(ts.Seconds, int64(ts.Nanos))
}

// User describes an account.
type User struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// AuthResponse is returned by /auth/login and /auth/register.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Room groups the sensors installed in one physical room.
type Room struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	UserID  string   `json:"userId,omitempty"`
	Sensors []Sensor `json:"sensors"`
}

// SensorIDs lists the ids of the room's sensors in their listed order.
func (r Room) SensorIDs() []string {
	ids := make([]string, 0, len(r.Sensors))
	for _, s := range r.Sensors {
		if s.ID != "" {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// Clone returns a copy that shares no slices with r.
func (r Room) Clone() Room {
	dup := r
	if r.Sensors != nil {
		dup.Sensors = make([]Sensor, len(r.Sensors))
		for i, s := range r.Sensors {
			dup.Sensors[i] = s.Clone()
		}
	}
	return dup
}

// Sensor is a single device attached to a room.
type Sensor struct {
	ID         string    `json:"id"`
	SensorType string    `json:"sensorType"`
	Port       int       `json:"port,omitempty"`
	Details    []Details `json:"details,omitempty"`
	Active     bool      `json:"active"`
}

// Clone returns a copy that shares no slices with s.
func (s Sensor) Clone() Sensor {
	dup := s
	if s.Details != nil {
		dup.Details = append([]Details(nil), s.Details...)
	}
	return dup
}

// Details is one reading: a timestamp plus named measurements.
type Details struct {
	Timestamp *Timestamp         `json:"timestamp,omitempty"`
	Data      map[string]float64 `json:"data,omitempty"`
}

// Time returns the reading time, or the zero time when unset.
func (d Details) Time() time.Time {
	return d.Timestamp.Time()
}

// Keys returns the measurement names in sorted order.
func (d Details) Keys() []string {
	keys := make([]string, 0, len(d.Data))
	for k := range d.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LatestDetails returns the most recent reading that carries data.
func LatestDetails(details []Details) (Details, bool) {
	var (
		latest Details
		found  bool
	)
	for _, d := range details {
		if d.Timestamp == nil || len(d.Data) == 0 {
			continue
		}
		if !found || d.Time().After(latest.Time()) {
			latest = d
			found = true
		}
	}
	return latest, found
}

// Alert is a threshold violation recorded by the backend.
type Alert struct {
	AlertID    string             `json:"alertId"`
	RoomID     string             `json:"roomId"`
	SensorID   string             `json:"sensorId"`
	Timestamp  *Timestamp         `json:"timestamp,omitempty"`
	SensorType string             `json:"sensorType"`
	Data       map[string]float64 `json:"data,omitempty"`
	Message    string             `json:"message"`
}

// Time returns the alert time, or the zero time when unset.
func (a Alert) Time() time.Time {
	return a.Timestamp.Time()
}

// CustomAlert is a user-defined threshold rule.
type CustomAlert struct {
	ID         string  `json:"id,omitempty"`
	UserID     string  `json:"userId,omitempty"`
	RoomID     string  `json:"roomId"`
	SensorID   string  `json:"sensorId"`
	SensorType string  `json:"sensorType"`
	Parameter  string  `json:"parameter"`
	Condition  string  `json:"condition"`
	Threshold  float64 `json:"threshold"`
	Message    string  `json:"message"`
}

// AssignRoomRequest is the body of POST /room/assign.
type AssignRoomRequest struct {
	RoomID    string   `json:"roomId"`
	UserID    string   `json:"userId"`
	RoomName  string   `json:"roomName"`
	SensorIDs []string `json:"sensorIds"`
}

// Label returns a short human description of the rule, e.g. "temperature > 30".
func (c CustomAlert) Label() string {
	return strings.TrimSpace(c.Parameter) + " " + strings.TrimSpace(c.Condition) + " " +
		strconv.FormatFloat(c.Threshold, 'f', -1, 64)
}
