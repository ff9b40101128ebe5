package report

import (
	"slices"
	"time"
)

// TimeEntry is one tracked time comment inside a report window.
type TimeEntry struct {
	Date       string    `json:"date"`
	Hours      float64   `json:"hours"`
	RawComment string    `json:"rawComment"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AggregatedReport is one user's entries grouped by local date.
type AggregatedReport struct {
	Username  string                 `json:"username"`
	AvatarURL string                 `json:"avatarUrl,omitempty"`
	ByDate    map[string][]TimeEntry `json:"byDate"`
	Total     float64                `json:"total"`
	Truncated bool                   `json:"truncated,omitempty"`
}

// UserReport is a per-user slot of a multi-user report. Exactly one of Report and Error is set.
type UserReport struct {
	Username  string            `json:"username"`
	AvatarURL string            `json:"avatarUrl,omitempty"`
	Report    *AggregatedReport `json:"report,omitempty"`
	Comments  []TimeEntry       `json:"comments"`
	Error     string            `json:"error,omitempty"`
}

// MultiUserReport combines user reports. GrandTotal only counts users without errors.
type MultiUserReport struct {
	Users      []UserReport `json:"users"`
	GrandTotal float64      `json:"grandTotal"`
}

// Result holds a single-user report when exactly one user was requested, and a multi-user report otherwise.
type Result struct {
	Single *AggregatedReport `json:"single,omitempty"`
	Multi  *MultiUserReport  `json:"multi,omitempty"`
}

// GroupByDate buckets entries by Date, keeping input order within each bucket.
func GroupByDate(entries []TimeEntry) map[string][]TimeEntry {
	grouped := make(map[string][]TimeEntry)
	for _, entry := range entries {
		grouped[entry.Date] = append(grouped[entry.Date], entry)
	}
	return grouped
}

// Total sums hours across all buckets in date order, so repeated calls give identical floats.
func Total(grouped map[string][]TimeEntry) float64 {
	total := 0.0
	for _, date := range SortedDates(grouped) {
		for _, entry := range grouped[date] {
			total += entry.Hours
		}
	}
	return total
}

// NewAggregatedReport groups and totals one user's entries.
func NewAggregatedReport(username, avatarURL string, entries []TimeEntry) *AggregatedReport {
	grouped := GroupByDate(entries)
	return &AggregatedReport{
		Username:  username,
		AvatarURL: avatarURL,
		ByDate:    grouped,
		Total:     Total(grouped),
	}
}

// Dates returns the report's dates in ascending order.
func (r *AggregatedReport) Dates() []string {
	if r == nil {
		return nil
	}
	return SortedDates(r.ByDate)
}

// DayTotal sums the hours logged on date.
func (r *AggregatedReport) DayTotal(date string) float64 {
	if r == nil {
		return 0
	}
	total := 0.0
	for _, entry := range r.ByDate[date] {
		total += entry.Hours
	}
	return total
}

// Entries returns every entry ordered by date, then by bucket order.
func (r *AggregatedReport) Entries() []TimeEntry {
	if r == nil {
		return nil
	}
	var entries []TimeEntry
	for _, date := range r.Dates() {
		entries = append(entries, r.ByDate[date]...)
	}
	return entries
}

// Dates returns every date any successful user logged time on, ascending.
func (m *MultiUserReport) Dates() []string {
	if m == nil {
		return nil
	}
	seen := make(map[string][]TimeEntry)
	for _, user := range m.Users {
		if user.Report == nil {
			continue
		}
		for date := range user.Report.ByDate {
			seen[date] = nil
		}
	}
	return SortedDates(seen)
}

// NewMultiUserReport totals the successful users.
func NewMultiUserReport(users []UserReport) *MultiUserReport {
	report := &MultiUserReport{Users: users}
	for _, user := range users {
		if user.Error == "" && user.Report != nil {
			report.GrandTotal += user.Report.Total
		}
	}
	return report
}

// SortedDates returns the keys of grouped in ascending order. YYYY-MM-DD keys sort chronologically.
func SortedDates(grouped map[string][]TimeEntry) []string {
	dates := make([]string, 0, len(grouped))
	for date := range grouped {
		dates = append(dates, date)
	}
	slices.Sort(dates)
	return dates
}
