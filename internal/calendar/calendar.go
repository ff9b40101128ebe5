// Package calendar validates report date ranges and converts between local calendar days and UTC instants.
package calendar

import (
	"math"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for report ranges.
const DateLayout = "2006-01-02"

// MaxRangeDays is the widest accepted report range.
const MaxRangeDays = 90

const (
	errMissingDates = "Both start and end dates are required"
	errInvalidDate  = "Invalid date format"
	errEndBefore    = "End date cannot be before start date"
	errRangeTooWide = "Date range cannot exceed 90 days"
)

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validation is the outcome of ValidateRange.
type Validation struct {
	Valid bool
	Error string
}

// ValidationError carries a user-facing range validation message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Err returns nil for a valid range and a *ValidationError otherwise.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Message: v.Error}
}

// ValidateRange checks presence, format, ordering and span of a date range, in that order.
func ValidateRange(start, end string) Validation {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)
	if start == "" || end == "" {
		return Validation{Error: errMissingDates}
	}

	startDate, startErr := time.Parse(DateLayout, start)
	endDate, endErr := time.Parse(DateLayout, end)
	if startErr != nil || endErr != nil {
		return Validation{Error: errInvalidDate}
	}

	if endDate.Before(startDate) {
		return Validation{Error: errEndBefore}
	}

	days := math.Ceil(endDate.Sub(startDate).Hours() / 24)
	if days > MaxRangeDays {
		return Validation{Error: errRangeTooWide}
	}

	return Validation{Valid: true}
}

// DefaultRange returns the range from seven days before now up to today, as seen in loc.
func DefaultRange(now time.Time, loc *time.Location) DateRange {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	return DateRange{
		Start: local.AddDate(0, 0, -7).Format(DateLayout),
		End:   local.Format(DateLayout),
	}
}

// FormatDate renders a calendar date for display, like "Mon, Mar 2, 2026".
// Unparseable input is returned unchanged.
func FormatDate(date string) string {
	parsed, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return parsed.Format("Mon, Jan 2, 2006")
}
