package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dannoetc/raterhub-tracker/internal/domain"
	"github.com/dannoetc/raterhub-tracker/internal/repository"
)

// Attachment is one report file for an outgoing email.
type Attachment struct {
	Filename string
	Content  []byte
	MIMEType string
}

// Mailer delivers a single message. The SMTP implementation lives in
// internal/mail; tests substitute a fake.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string, attachments []Attachment) error
}

// ReportRenderer turns reports into exportable documents.
type ReportRenderer interface {
	DailyCSV(report DailyReport) ([]byte, error)
	WeeklyCSV(report WeeklyReport) ([]byte, error)
	DailyPDF(report DailyReport, userName, userTimezone string) ([]byte, error)
}

// deliveryWindow is how long after local midnight a daily report may still
// be sent. The job can run hourly; outside the window it does nothing.
const deliveryWindow = time.Hour

// ReportService sends daily report emails and records every attempt in the
// report audit log, which doubles as the idempotency guard.
type ReportService struct {
	store        repository.Store
	summaries    *SummaryService
	renderer     ReportRenderer
	mailer       Mailer
	emailEnabled bool
	logger       *zap.Logger
}

// NewReportService creates the delivery service.
func NewReportService(store repository.Store, summaries *SummaryService, renderer ReportRenderer, mailer Mailer, emailEnabled bool, logger *zap.Logger) *ReportService {
	return &ReportService{
		store:        store,
		summaries:    summaries,
		renderer:     renderer,
		mailer:       mailer,
		emailEnabled: emailEnabled,
		logger:       logger,
	}
}

func withinDeliveryWindow(nowLocal time.Time) bool {
	midnight := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, nowLocal.Location())
	since := nowLocal.Sub(midnight)
	return since >= 0 && since < deliveryWindow
}

// auditDate normalizes a local calendar date to UTC midnight for the
// report_audits date column.
func auditDate(localDay time.Time) time.Time {
	return time.Date(localDay.Year(), localDay.Month(), localDay.Day(), 0, 0, 0, 0, time.UTC)
}

// DeliverDailyReports sends the previous local day's report to every active,
// opted-in user whose local time is within the first hour after midnight.
// Returns the addresses that were successfully delivered. A failure for one
// user is audited and logged but never aborts the rest of the run.
func (s *ReportService) DeliverDailyReports(ctx context.Context, nowUTC time.Time) ([]string, error) {
	if !s.emailEnabled {
		s.logger.Info("email sending disabled; skipping scheduled reports")
		return nil, nil
	}

	users, err := s.store.Users().ListReportRecipients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list report recipients: %w", err)
	}

	var delivered []string
	for _, user := range users {
		nowLocal := nowUTC.In(user.Location())
		if !withinDeliveryWindow(nowLocal) {
			continue
		}
		reportDay := nowLocal.AddDate(0, 0, -1)

		sent, err := s.deliverOne(ctx, user, reportDay)
		if err != nil {
			s.logger.Error("daily report delivery failed",
				zap.Int64("user_id", user.ID),
				zap.String("email", user.Email),
				zap.Error(err),
			)
			continue
		}
		if sent {
			delivered = append(delivered, user.Email)
		}
	}
	return delivered, nil
}

func (s *ReportService) deliverOne(ctx context.Context, user domain.User, reportDay time.Time) (bool, error) {
	date := auditDate(reportDay)

	exists, err := s.store.ReportAudits().Exists(ctx, user.ID, domain.ReportScopeDaily, domain.ReportFormatEmail, date)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	report, err := s.summaries.DailyReport(ctx, user, reportDay)
	if err != nil {
		return false, err
	}

	csvContent, err := s.renderer.DailyCSV(report)
	if err != nil {
		return false, err
	}
	pdfContent, err := s.renderer.DailyPDF(report, user.DisplayName(), user.Timezone)
	if err != nil {
		return false, err
	}

	dateLabel := date.Format("2006-01-02")
	subject := fmt.Sprintf("Your daily report for %s", dateLabel)
	body := "Attached is your daily RaterHub report."
	attachments := []Attachment{
		{Filename: fmt.Sprintf("daily_report_%s.csv", dateLabel), Content: csvContent, MIMEType: "text/csv"},
		{Filename: fmt.Sprintf("daily_report_%s.pdf", dateLabel), Content: pdfContent, MIMEType: "application/pdf"},
	}

	sendErr := s.mailer.Send(ctx, user.Email, subject, body, attachments)

	details := "sent"
	if sendErr != nil {
		details = fmt.Sprintf("failed: %v", sendErr)
	}
	audit := domain.ReportAudit{
		UserID:       user.ID,
		ReportScope:  domain.ReportScopeDaily,
		ReportFormat: domain.ReportFormatEmail,
		ReportDate:   date,
		TriggeredBy:  "scheduler",
		Details:      details,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.ReportAudits().Create(ctx, &audit); err != nil {
		return false, fmt.Errorf("write report audit: %w", err)
	}
	if sendErr != nil {
		return false, fmt.Errorf("send report email: %w", sendErr)
	}
	return true, nil
}
