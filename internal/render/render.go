// Package render turns reports into terminal, JSON, CSV and spreadsheet output.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cam3ron2/timetrack/internal/report"
)

// Format selects an output encoding.
type Format string

// Supported output formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
)

// ParseFormat normalizes a user-supplied format name. Empty means table.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want table, json, csv or xlsx)", raw)
	}
}

// Write encodes result to w in the requested format.
func Write(w io.Writer, format Format, result report.Result) error {
	switch format {
	case FormatTable, "":
		_, err := io.WriteString(w, Table(result)+"\n")
		return err
	case FormatJSON:
		return WriteJSON(w, result)
	case FormatCSV:
		return WriteCSV(w, result)
	case FormatXLSX:
		return WriteXLSX(w, result)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, result report.Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	return nil
}

type entryRow struct {
	username string
	entry    report.TimeEntry
}

// entryRows flattens a result in user order, then date order.
func entryRows(result report.Result) []entryRow {
	var rows []entryRow
	appendReport := func(r *report.AggregatedReport) {
		for _, entry := range r.Entries() {
			rows = append(rows, entryRow{username: r.Username, entry: entry})
		}
	}

	if result.Single != nil {
		appendReport(result.Single)
	}
	if result.Multi != nil {
		for _, user := range result.Multi.Users {
			if user.Report != nil {
				appendReport(user.Report)
			}
		}
	}
	return rows
}

func formatHours(hours float64) string {
	return strconv.FormatFloat(hours, 'f', 2, 64)
}
