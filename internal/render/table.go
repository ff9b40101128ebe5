package render

import (
	"strconv"

	"github.com/cam3ron2/timetrack/internal/calendar"
	"github.com/cam3ron2/timetrack/internal/report"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	accent = lipgloss.Color("63")
	subtle = lipgloss.Color("240")
	danger = lipgloss.Color("196")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	totalStyle  = cellStyle.Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(danger)
	mutedStyle  = lipgloss.NewStyle().Foreground(subtle)
)

// Table renders a report as a bordered terminal table.
func Table(result report.Result) string {
	switch {
	case result.Single != nil:
		return singleTable(result.Single)
	case result.Multi != nil:
		return multiTable(result.Multi)
	default:
		return mutedStyle.Render("No report data")
	}
}

func singleTable(r *report.AggregatedReport) string {
	dates := r.Dates()
	rows := make([][]string, 0, len(dates)+1)
	for _, date := range dates {
		rows = append(rows, []string{
			displayDate(date),
			formatHours(r.DayTotal(date)),
			strconv.Itoa(len(r.ByDate[date])),
		})
	}
	rows = append(rows, []string{"Total", formatHours(r.Total), ""})

	sections := []string{
		titleStyle.Render("Time tracked by " + r.Username),
		newTable(len(rows)-1, []string{"Date", "Hours", "Entries"}, rows),
	}
	if r.Truncated {
		sections = append(sections, mutedStyle.Render("Search results were truncated; totals may be incomplete."))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func multiTable(m *report.MultiUserReport) string {
	reports := make([]*report.AggregatedReport, 0, len(m.Users))
	var failures []string
	for _, user := range m.Users {
		if user.Error != "" || user.Report == nil {
			failures = append(failures, errorStyle.Render(user.Username+": "+user.Error))
			continue
		}
		reports = append(reports, user.Report)
	}

	headers := []string{"Date"}
	for _, r := range reports {
		headers = append(headers, r.Username)
	}
	headers = append(headers, "Total")

	dates := m.Dates()
	rows := make([][]string, 0, len(dates)+1)
	for _, date := range dates {
		row := []string{displayDate(date)}
		dayTotal := 0.0
		for _, r := range reports {
			hours := r.DayTotal(date)
			dayTotal += hours
			row = append(row, formatHours(hours))
		}
		rows = append(rows, append(row, formatHours(dayTotal)))
	}
	totalRow := []string{"Total"}
	for _, r := range reports {
		totalRow = append(totalRow, formatHours(r.Total))
	}
	rows = append(rows, append(totalRow, formatHours(m.GrandTotal)))

	sections := []string{
		titleStyle.Render("Time tracked by " + strconv.Itoa(len(m.Users)) + " users"),
		newTable(len(rows)-1, headers, rows),
	}
	sections = append(sections, failures...)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func newTable(totalRow int, headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(subtle)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == totalRow:
				return totalStyle
			default:
				return cellStyle
			}
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

func displayDate(date string) string {
	return calendar.FormatDate(date) + " (" + date + ")"
}
