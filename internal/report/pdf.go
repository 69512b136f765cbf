package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/dannoetc/raterhub-tracker/internal/service"
)

// DailyPDF renders a daily report as a printable PDF. The core PDF fonts
// cannot encode the emoji pace markers, so only the labels are rendered.
func (r *Renderer) DailyPDF(report service.DailyReport, userName, userTimezone string) ([]byte, error) {
	if userTimezone == "" {
		userTimezone = "UTC"
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Daily Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, fmt.Sprintf("Daily Report - %s", report.Day.Date.Format("2006-01-02")))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("User: %s", userName))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Timezone: %s", userTimezone))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format("2006-01-02 15:04 MST")))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Sessions: %d    Questions: %d    Active time: %s    Pace: %s",
		report.Day.TotalSessions,
		report.Day.TotalQuestions,
		service.FormatMMSS(report.Day.TotalActiveSeconds),
		report.Day.DailyPaceLabel,
	))
	pdf.Ln(10)

	if len(report.SessionSummaries) > 0 {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, "Sessions")
		pdf.Ln(9)

		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(30, 6, "Started", "1", 0, "", false, 0, "")
		pdf.CellFormat(25, 6, "Questions", "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, "Avg active", "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, "Pace", "1", 0, "", false, 0, "")
		pdf.CellFormat(20, 6, "Score", "1", 1, "R", false, 0, "")

		pdf.SetFont("Helvetica", "", 9)
		for _, s := range report.SessionSummaries {
			pdf.CellFormat(30, 6, s.StartedAt.Format("15:04"), "1", 0, "", false, 0, "")
			pdf.CellFormat(25, 6, fmt.Sprintf("%d", s.TotalQuestions), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, s.AvgActiveMMSS, "1", 0, "R", false, 0, "")
			pdf.CellFormat(35, 6, s.PaceLabel, "1", 0, "", false, 0, "")
			pdf.CellFormat(20, 6, fmt.Sprintf("%d", s.Score), "1", 1, "R", false, 0, "")
		}
		pdf.Ln(4)
	}

	var hasHourly bool
	for _, bucket := range report.Day.HourlyActivity {
		if bucket.TotalQuestions > 0 {
			hasHourly = true
			break
		}
	}
	if hasHourly {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, "Hourly activity")
		pdf.Ln(9)

		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(20, 6, "Hour", "1", 0, "", false, 0, "")
		pdf.CellFormat(25, 6, "Questions", "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, "Active", "1", 1, "R", false, 0, "")

		pdf.SetFont("Helvetica", "", 9)
		for _, bucket := range report.Day.HourlyActivity {
			if bucket.TotalQuestions == 0 {
				continue
			}
			pdf.CellFormat(20, 6, fmt.Sprintf("%02d:00", bucket.Hour), "1", 0, "", false, 0, "")
			pdf.CellFormat(25, 6, fmt.Sprintf("%d", bucket.TotalQuestions), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, service.FormatMMSS(bucket.ActiveSeconds), "1", 1, "R", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
