package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Window is a validated date range together with the UTC instants bounding it.
type Window struct {
	StartDate string
	EndDate   string
	From      time.Time
	To        time.Time
	Location  *time.Location
}

// LocalDate returns the calendar date of ts in the window's location.
func (w Window) LocalDate(ts time.Time) string {
	return Normalizer{Location: w.Location}.UTCToLocalDate(ts)
}

// Contains reports whether ts falls inside [From, To].
func (w Window) Contains(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return !ts.Before(w.From) && !ts.After(w.To)
}

// Normalizer converts between calendar dates in Location and UTC instants.
type Normalizer struct {
	Location *time.Location
}

// NewNormalizer returns a Normalizer for loc, defaulting to the process local zone.
func NewNormalizer(loc *time.Location) Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return Normalizer{Location: loc}
}

func (n Normalizer) location() *time.Location {
	if n.Location == nil {
		return time.Local
	}
	return n.Location
}

// LocalDateToUTC returns the UTC instant of local midnight on date, or of 23:59:59.999 when endOfDay is set.
func (n Normalizer) LocalDateToUTC(date string, endOfDay bool) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}

	year, month, day := parsed.Date()
	var local time.Time
	if endOfDay {
		local = time.Date(year, month, day, 23, 59, 59, int(999*time.Millisecond), n.location())
	} else {
		local = time.Date(year, month, day, 0, 0, 0, 0, n.location())
	}
	return local.UTC(), nil
}

// UTCToLocalDate returns the calendar date of instant as seen in Location.
func (n Normalizer) UTCToLocalDate(instant time.Time) string {
	return instant.In(n.location()).Format(DateLayout)
}

// Window converts an inclusive date range into its bounding UTC instants.
func (n Normalizer) Window(start, end string) (Window, error) {
	from, err := n.LocalDateToUTC(start, false)
	if err != nil {
		return Window{}, err
	}
	to, err := n.LocalDateToUTC(end, true)
	if err != nil {
		return Window{}, err
	}
	return Window{
		StartDate: strings.TrimSpace(start),
		EndDate:   strings.TrimSpace(end),
		From:      from,
		To:        to,
		Location:  n.location(),
	}, nil
}

// ResolveLocation maps "" and "Local" to the process zone and anything else through the IANA database.
func ResolveLocation(name string) (*time.Location, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(trimmed)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", trimmed, err)
	}
	return loc, nil
}
