package render

import (
	"github.com/cam3ron2/timetrack/internal/report"
	"github.com/guptarohit/asciigraph"
)

// ChartOptions sizes the daily hours chart.
type ChartOptions struct {
	Width  int
	Height int
}

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.Blue,
	asciigraph.Red,
	asciigraph.Green,
	asciigraph.Yellow,
	asciigraph.Magenta,
	asciigraph.Cyan,
}

// Chart plots hours per day, one series per successful user. Dates with no entries plot as zero.
func Chart(result report.Result, opts ChartOptions) string {
	reports := reportsOf(result)
	dates := chartDates(result)
	if len(reports) == 0 || len(dates) == 0 {
		return mutedStyle.Render("No data available")
	}

	width := opts.Width
	if width < 20 {
		width = 20
	}
	height := opts.Height
	if height < 3 {
		height = 3
	}

	series := make([][]float64, 0, len(reports))
	legends := make([]string, 0, len(reports))
	for _, r := range reports {
		points := make([]float64, 0, len(dates))
		for _, date := range dates {
			points = append(points, r.DayTotal(date))
		}
		// Width interpolation expects at least two points.
		if len(points) == 1 {
			points = append(points, points[0])
		}
		series = append(series, points)
		legends = append(legends, r.Username)
	}

	colors := make([]asciigraph.AnsiColor, 0, len(series))
	for i := range series {
		colors = append(colors, seriesColors[i%len(seriesColors)])
	}

	return asciigraph.PlotMany(series,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.LowerBound(0),
		asciigraph.Caption("Hours per day "+dates[0]+" to "+dates[len(dates)-1]),
		asciigraph.SeriesColors(colors...),
		asciigraph.SeriesLegends(legends...),
	)
}

func chartDates(result report.Result) []string {
	if result.Single != nil {
		return result.Single.Dates()
	}
	return result.Multi.Dates()
}
