package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cam3ron2/timetrack/internal/calendar"
	"github.com/cam3ron2/timetrack/internal/render"
	"github.com/cam3ron2/timetrack/internal/report"
	"github.com/spf13/cobra"
)

type reportFlags struct {
	org         string
	repo        string
	users       []string
	start       string
	end         string
	timezone    string
	format      string
	output      string
	chart       bool
	chartWidth  int
	chartHeight int
}

func newReportCommand(flags *rootFlags, opts Options) *cobra.Command {
	rf := &reportFlags{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate tracked time per day",
		Long: `Aggregate "Time Tracked" comments by local calendar day.

Without --user every organization member is reported. Without --start and --end the
last seven days are used. Ranges may span at most 90 days.`,
		Example: `
  timetrack report --org acme --user alice --start 2026-03-01 --end 2026-03-07
  timetrack report --org acme --repo api --user alice,bob --chart
  timetrack report --org acme --format csv --output week.csv
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := resolveFormat(rf.format, rf.output, cmd.Flags().Changed("format"))
			if err != nil {
				return err
			}
			if format == render.FormatXLSX && strings.TrimSpace(rf.output) == "" {
				return fmt.Errorf("xlsx output requires --output")
			}

			s, err := openSession(flags, opts, true)
			if err != nil {
				return err
			}
			defer s.close()

			services := s.runtime.Services()
			loc := services.Location
			if strings.TrimSpace(rf.timezone) != "" {
				loc, err = calendar.ResolveLocation(rf.timezone)
				if err != nil {
					return err
				}
			}
			start, end := rf.start, rf.end
			if strings.TrimSpace(start) == "" && strings.TrimSpace(end) == "" {
				defaults := calendar.DefaultRange(opts.Now(), loc)
				start, end = defaults.Start, defaults.End
			}

			result, err := services.Reports.Generate(cmd.Context(), report.Request{
				Users:    rf.users,
				Org:      rf.org,
				Repo:     rf.repo,
				Start:    start,
				End:      end,
				Token:    s.token,
				Location: loc,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if strings.TrimSpace(rf.output) != "" {
				if err := writeReportFile(rf.output, format, result); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "Report written to %s\n", rf.output)
			} else if err := render.Write(out, format, result); err != nil {
				return err
			}

			if rf.chart {
				_, err := io.WriteString(out, render.Chart(result, render.ChartOptions{
					Width:  rf.chartWidth,
					Height: rf.chartHeight,
				})+"\n")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rf.org, "org", "", "GitHub organization (required)")
	cmd.Flags().StringVar(&rf.repo, "repo", "", "limit the report to one repository")
	cmd.Flags().StringSliceVar(&rf.users, "user", nil, "GitHub login to report on (repeatable or comma-separated)")
	cmd.Flags().StringVar(&rf.start, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&rf.end, "end", "", "last day, YYYY-MM-DD")
	cmd.Flags().StringVar(&rf.timezone, "tz", "", "IANA timezone for calendar days (defaults to reports.timezone)")
	cmd.Flags().StringVar(&rf.format, "format", "table", "output format: table, json, csv or xlsx")
	cmd.Flags().StringVarP(&rf.output, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&rf.chart, "chart", false, "plot hours per day below the report")
	cmd.Flags().IntVar(&rf.chartWidth, "chart-width", 60, "chart width in columns")
	cmd.Flags().IntVar(&rf.chartHeight, "chart-height", 10, "chart height in rows")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

// resolveFormat infers the format from the output extension unless --format was given.
func resolveFormat(raw, output string, explicit bool) (render.Format, error) {
	if !explicit && strings.TrimSpace(output) != "" {
		switch strings.ToLower(filepath.Ext(output)) {
		case ".xlsx":
			return render.FormatXLSX, nil
		case ".csv":
			return render.FormatCSV, nil
		case ".json":
			return render.FormatJSON, nil
		}
	}
	return render.ParseFormat(raw)
}

func writeReportFile(path string, format render.Format, result report.Result) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	return render.Write(file, format, result)
}
