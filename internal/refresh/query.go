package refresh

import "time"

// Query carries the parameters passed to every fetch. A zero Date means
// "follow today": each fetch resolves it against the current clock.
type Query struct {
	Date time.Time
}

// Today returns a query that follows the current day.
func Today() Query {
	return Query{}
}

// On returns a query pinned to the civil day containing t.
func On(t time.Time) Query {
	return Query{Date: civil(t)}
}

// Day resolves the query to a civil date relative to now.
func (q Query) Day(now time.Time) time.Time {
	if q.Date.IsZero() {
		return civil(now)
	}
	return civil(q.Date.In(now.Location()))
}

// IsToday reports whether the query targets the day containing now. Only
// such queries poll on a cadence; past days never change.
func (q Query) IsToday(now time.Time) bool {
	return q.Day(now).Equal(civil(now))
}

// Follows reports whether the query tracks the current day.
func (q Query) Follows() bool {
	return q.Date.IsZero()
}

func (q Query) sameDay(other Query, now time.Time) bool {
	return q.Day(now).Equal(other.Day(now))
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
