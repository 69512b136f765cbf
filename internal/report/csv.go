// Package report renders daily and weekly reports into CSV and PDF
// documents for export and email attachment.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/dannoetc/raterhub-tracker/internal/service"
)

// Compile-time interface assertion.
var _ service.ReportRenderer = (*Renderer)(nil)

// Renderer implements service.ReportRenderer.
type Renderer struct{}

// NewRenderer creates the document renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

var csvHeaders = []string{
	"date",
	"session_count",
	"total_active_seconds",
	"total_raw_seconds",
	"daily_pace_label",
	"daily_pace_emoji",
}

func dailyRow(daily service.DailyReport) []string {
	return []string{
		daily.Day.Date.Format("2006-01-02"),
		strconv.Itoa(daily.Day.TotalSessions),
		formatSeconds(daily.Day.TotalActiveSeconds),
		formatSeconds(daily.Day.TotalRawSeconds),
		daily.Day.DailyPaceLabel,
		daily.Day.DailyPaceEmoji,
	}
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

func rowsToCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeaders); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// DailyCSV renders a single-day report as CSV.
func (r *Renderer) DailyCSV(report service.DailyReport) ([]byte, error) {
	return rowsToCSV([][]string{dailyRow(report)})
}

// WeeklyCSV renders a weekly report as CSV with a trailing TOTAL row. The
// totals row sums the numeric columns and leaves the pace columns blank.
func (r *Renderer) WeeklyCSV(report service.WeeklyReport) ([]byte, error) {
	rows := make([][]string, 0, len(report.Days)+1)
	var totalRaw float64
	for _, daily := range report.Days {
		rows = append(rows, dailyRow(daily))
		totalRaw += daily.Day.TotalRawSeconds
	}
	rows = append(rows, []string{
		"TOTAL",
		strconv.Itoa(report.TotalSessions),
		formatSeconds(report.TotalActiveSeconds),
		formatSeconds(totalRaw),
		"",
		"",
	})
	return rowsToCSV(rows)
}
