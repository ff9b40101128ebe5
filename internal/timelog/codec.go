// Package timelog reads and writes the "Time Tracked" issue comment format.
package timelog

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Footer closes every comment written by this tool.
const Footer = "<sub>**Logged with timetrack**</sub>"

// MaxHours is the most time one comment may record.
const MaxHours = 24

// Hours validation failures. The messages are shown to users as-is.
var (
	ErrHoursOutOfRange = errors.New("Hours must be between 0.25 and 24")
	ErrHoursStep       = errors.New("Hours must be a multiple of 0.25")
)

var trackedPattern = regexp.MustCompile(`(?i)⏱️\s*\*\*Time Tracked:\*\*\s*([\d.]+)\s*Hours?`)

// DecodeHours extracts the hours recorded in a comment body. Bodies without a marker yield 0.
func DecodeHours(body string) float64 {
	if body == "" {
		return 0
	}
	match := trackedPattern.FindStringSubmatch(body)
	if len(match) < 2 {
		return 0
	}
	return leadingDecimal(match[1])
}

// leadingDecimal parses the longest numeric prefix of raw, so "1.5.2" reads as 1.5.
func leadingDecimal(raw string) float64 {
	end := len(raw)
	if first := strings.IndexByte(raw, '.'); first >= 0 {
		if second := strings.IndexByte(raw[first+1:], '.'); second >= 0 {
			end = first + 1 + second
		}
	}
	value, err := strconv.ParseFloat(strings.TrimSuffix(raw[:end], "."), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}

// ValidateHours accepts quarter-hour amounts above zero and up to MaxHours.
func ValidateHours(hours float64) error {
	if math.IsNaN(hours) || hours <= 0 || hours > MaxHours {
		return ErrHoursOutOfRange
	}
	if quarters := hours * 4; quarters != math.Trunc(quarters) {
		return ErrHoursStep
	}
	return nil
}

// FormatComment renders the comment body recorded for a time entry.
func FormatComment(hours float64, description string) string {
	unit := "Hours"
	if hours == 1 {
		unit = "Hour"
	}

	builder := strings.Builder{}
	builder.WriteString("⏱️ **Time Tracked:** ")
	builder.WriteString(strconv.FormatFloat(hours, 'f', -1, 64))
	builder.WriteString(" ")
	builder.WriteString(unit)
	if trimmed := strings.TrimSpace(description); trimmed != "" {
		builder.WriteString("\n\n")
		builder.WriteString(trimmed)
	}
	builder.WriteString("\n\n---\n")
	builder.WriteString(Footer)
	return builder.String()
}
