package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/cam3ron2/timetrack/internal/report"
)

var entryHeaders = []string{"User", "Date", "Hours", "URL", "CreatedAt"}

// WriteCSV writes one row per time entry.
func WriteCSV(w io.Writer, result report.Result) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(entryHeaders); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range entryRows(result) {
		record := []string{
			row.username,
			row.entry.Date,
			formatHours(row.entry.Hours),
			row.entry.URL,
			row.entry.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv output: %w", err)
	}
	return nil
}
