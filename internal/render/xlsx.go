package render

import (
	"fmt"
	"io"
	"time"

	"github.com/cam3ron2/timetrack/internal/report"
	"github.com/xuri/excelize/v2"
)

const (
	entriesSheet = "Entries"
	summarySheet = "Summary"
)

// WriteXLSX writes a workbook with an Entries sheet and a per-user daily Summary sheet.
func WriteXLSX(w io.Writer, result report.Result) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName(file.GetSheetName(0), entriesSheet); err != nil {
		return fmt.Errorf("rename excel sheet: %w", err)
	}
	if err := writeEntriesSheet(file, result); err != nil {
		return err
	}
	if _, err := file.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create excel sheet %s: %w", summarySheet, err)
	}
	if err := writeSummarySheet(file, result); err != nil {
		return err
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write excel output: %w", err)
	}
	return nil
}

func writeEntriesSheet(file *excelize.File, result report.Result) error {
	if err := setRow(file, entriesSheet, 1, stringsToCells(entryHeaders)); err != nil {
		return err
	}
	for i, row := range entryRows(result) {
		values := []any{
			row.username,
			row.entry.Date,
			row.entry.Hours,
			row.entry.URL,
			row.entry.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := setRow(file, entriesSheet, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

func writeSummarySheet(file *excelize.File, result report.Result) error {
	if err := setRow(file, summarySheet, 1, []any{"User", "Date", "Hours"}); err != nil {
		return err
	}

	row := 2
	for _, r := range reportsOf(result) {
		for _, date := range r.Dates() {
			if err := setRow(file, summarySheet, row, []any{r.Username, date, r.DayTotal(date)}); err != nil {
				return err
			}
			row++
		}
	}
	return setRow(file, summarySheet, row, []any{"Total", "", grandTotal(result)})
}

func setRow(file *excelize.File, sheet string, row int, values []any) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("resolve excel cell: %w", err)
		}
		if err := file.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("set excel value %s: %w", cell, err)
		}
	}
	return nil
}

func stringsToCells(values []string) []any {
	cells := make([]any, 0, len(values))
	for _, value := range values {
		cells = append(cells, value)
	}
	return cells
}

// reportsOf lists the successful per-user reports in order.
func reportsOf(result report.Result) []*report.AggregatedReport {
	if result.Single != nil {
		return []*report.AggregatedReport{result.Single}
	}
	if result.Multi == nil {
		return nil
	}
	reports := make([]*report.AggregatedReport, 0, len(result.Multi.Users))
	for _, user := range result.Multi.Users {
		if user.Report != nil {
			reports = append(reports, user.Report)
		}
	}
	return reports
}

func grandTotal(result report.Result) float64 {
	if result.Single != nil {
		return result.Single.Total
	}
	if result.Multi != nil {
		return result.Multi.GrandTotal
	}
	return 0
}
