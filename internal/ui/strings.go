package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// truncate shortens a string to the given limit, adding an ellipsis if needed.
func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

// truncateMiddle keeps both ends of value, which suits file paths.
func truncateMiddle(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 5 {
		return string(runes[:limit])
	}
	endLen := (limit - 3) * 2 / 3
	startLen := limit - 3 - endLen
	return string(runes[:startLen]) + "..." + string(runes[len(runes)-endLen:])
}

// padRight pads a string with spaces to the given width.
func padRight(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(r))
}

// units per measurement name.
var units = map[string]string{
	"temperature": "°C",
	"humidity":    "%",
}

// formatMeasurement renders "temperature 22.4 °C".
func formatMeasurement(name string, value float64) string {
	out := name + " " + strconv.FormatFloat(value, 'f', -1, 64)
	if unit := units[name]; unit != "" {
		out += " " + unit
	}
	return out
}

// formatDay labels the selected day relative to now.
func formatDay(day, now time.Time) string {
	switch {
	case sameDate(day, now):
		return "Today"
	case sameDate(day, now.AddDate(0, 0, -1)):
		return "Yesterday · " + day.Format("Mon 2006-01-02")
	default:
		return day.Format("Mon 2006-01-02")
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

// formatSince renders a clock time with a coarse relative suffix.
func formatSince(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	s := t.Format("15:04:05")
	switch since := now.Sub(t); {
	case since < time.Minute:
		return s + " (now)"
	case since < time.Hour:
		return s + fmt.Sprintf(" (%dm ago)", int(since.Minutes()))
	case since < 24*time.Hour:
		return s + fmt.Sprintf(" (%dh ago)", int(since.Hours()))
	default:
		return s
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}
