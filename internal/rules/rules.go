// Package rules drafts and checks user-defined alert thresholds before they
// are sent to the backend.
package rules

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/five82/roomwatch/internal/backend"
)

// Limit bounds the threshold accepted for one measurement.
type Limit struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within the limit, inclusive.
func (l Limit) Contains(v float64) bool {
	return v >= l.Min && v <= l.Max
}

func (l Limit) String() string {
	return formatNumber(l.Min) + "–" + formatNumber(l.Max)
}

// limits lists the thresholds each known measurement accepts.
var limits = map[string]Limit{
	"temperature": {Min: 0, Max: 39.9},
	"humidity":    {Min: 0, Max: 90},
	"gas":         {Min: 100, Max: 699},
	"mq2Value":    {Min: 0, Max: 1000},
}

// LimitFor returns the limit for parameter. Unknown parameters only require a
// non-negative threshold.
func LimitFor(parameter string) (Limit, bool) {
	l, ok := limits[parameter]
	if !ok {
		return Limit{Min: 0, Max: math.MaxFloat64}, false
	}
	return l, true
}

// Conditions lists the comparison operators the backend evaluates.
var Conditions = []string{">", "<", ">=", "<=", "="}

// ValidCondition reports whether c is a supported operator.
func ValidCondition(c string) bool {
	for _, known := range Conditions {
		if c == known {
			return true
		}
	}
	return false
}

// Evaluate applies condition to value and threshold. Unknown conditions never
// match.
func Evaluate(value float64, condition string, threshold float64) bool {
	switch condition {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	case "=", "==":
		return value == threshold
	default:
		return false
	}
}

// Draft is a rule being edited. Threshold stays a string until validated so
// a form can hold partial input.
type Draft struct {
	UserID    string
	Room      backend.Room
	Sensor    backend.Sensor
	Parameter string
	Condition string
	Threshold string
	Message   string
}

// NewDraft prepares a draft for sensor, preselecting its first parameter and
// the ">" condition.
func NewDraft(userID string, room backend.Room, sensor backend.Sensor) Draft {
	d := Draft{UserID: userID, Room: room, Sensor: sensor, Condition: ">"}
	if params := AvailableParameters(sensor); len(params) > 0 {
		d.Parameter = params[0]
	}
	return d
}

// Validate reports every problem with the draft at once.
func (d Draft) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Parameter) == "" {
		errs = append(errs, errors.New("parameter is required"))
	}
	if !ValidCondition(d.Condition) {
		errs = append(errs, fmt.Errorf("condition %q is not one of %s", d.Condition, strings.Join(Conditions, " ")))
	}
	if strings.TrimSpace(d.Message) == "" {
		errs = append(errs, errors.New("message is required"))
	}
	if _, err := d.threshold(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Rule converts a valid draft into the backend representation.
func (d Draft) Rule() (backend.CustomAlert, error) {
	if err := d.Validate(); err != nil {
		return backend.CustomAlert{}, err
	}
	threshold, _ := d.threshold()
	return backend.CustomAlert{
		UserID:     d.UserID,
		RoomID:     d.Room.ID,
		SensorID:   d.Sensor.ID,
		SensorType: d.Sensor.SensorType,
		Parameter:  d.Parameter,
		Condition:  d.Condition,
		Threshold:  threshold,
		Message:    strings.TrimSpace(d.Message),
	}, nil
}

func (d Draft) threshold() (float64, error) {
	raw := strings.TrimSpace(d.Threshold)
	if raw == "" {
		return 0, errors.New("threshold is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("threshold %q is not a number", raw)
	}
	limit, known := LimitFor(d.Parameter)
	if !limit.Contains(v) {
		if known {
			return 0, fmt.Errorf("threshold for %s must be within %s", d.Parameter, limit)
		}
		return 0, errors.New("threshold must not be negative")
	}
	return v, nil
}

// AvailableParameters lists the measurements of the sensor's first reading.
func AvailableParameters(sensor backend.Sensor) []string {
	if len(sensor.Details) == 0 {
		return nil
	}
	params := make([]string, 0, len(sensor.Details[0].Data))
	for k := range sensor.Details[0].Data {
		params = append(params, k)
	}
	sort.Strings(params)
	return params
}

// FilterByRoom keeps the rules that belong to roomID. An empty roomID keeps all.
func FilterByRoom(rules []backend.CustomAlert, roomID string) []backend.CustomAlert {
	if roomID == "" {
		return append([]backend.CustomAlert(nil), rules...)
	}
	var out []backend.CustomAlert
	for _, r := range rules {
		if r.RoomID == roomID {
			out = append(out, r)
		}
	}
	return out
}

// Matches reports whether a reading triggers rule.
func Matches(rule backend.CustomAlert, reading backend.Details) bool {
	v, ok := reading.Data[rule.Parameter]
	if !ok {
		return false
	}
	return Evaluate(v, rule.Condition, rule.Threshold)
}

// GasLevel describes a gas reading in words.
func GasLevel(value float64) string {
	switch {
	case value < 200:
		return "Air quality: Excellent"
	case value < 400:
		return "Low gas presence"
	case value < 700:
		return "Moderate gas level"
	default:
		return "Dangerous gas level!"
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
