package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dannoetc/raterhub-tracker/internal/domain"
	"github.com/dannoetc/raterhub-tracker/internal/repository"
)

// QuestionSummary is one non-ghost question in a session summary. Index is
// the display index, renumbered 1..N independent of stored indices.
type QuestionSummary struct {
	Index                  int       `json:"index"`
	StartedAt              time.Time `json:"started_at"`
	EndedAt                time.Time `json:"ended_at"`
	RawSeconds             float64   `json:"raw_seconds"`
	ActiveSeconds          float64   `json:"active_seconds"`
	ActiveMMSS             string    `json:"active_mmss"`
	OverUnderTargetSeconds float64   `json:"over_under_target_seconds"`
	OverUnderTargetMMSS    string    `json:"over_under_target_mmss"`
}

// SessionSummary aggregates one session, ghosts excluded.
type SessionSummary struct {
	SessionID                string            `json:"session_id"`
	StartedAt                time.Time         `json:"started_at"`
	EndedAt                  *time.Time        `json:"ended_at"`
	IsActive                 bool              `json:"is_active"`
	TargetMinutesPerQuestion float64           `json:"target_minutes_per_question"`
	TotalQuestions           int               `json:"total_questions"`
	TotalRawSeconds          float64           `json:"total_raw_seconds"`
	TotalActiveSeconds       float64           `json:"total_active_seconds"`
	AvgActiveSeconds         float64           `json:"avg_active_seconds"`
	AvgActiveMMSS            string            `json:"avg_active_mmss"`
	PaceLabel                string            `json:"pace_label"`
	PaceEmoji                string            `json:"pace_emoji"`
	Score                    int               `json:"score"`
	Questions                []QuestionSummary `json:"questions"`
}

// SessionItem is the compact per-session entry inside a day summary.
type SessionItem struct {
	SessionID          string     `json:"session_id"`
	StartedAt          time.Time  `json:"started_at"`
	EndedAt            *time.Time `json:"ended_at"`
	IsActive           bool       `json:"is_active"`
	TotalQuestions     int        `json:"total_questions"`
	TotalActiveSeconds float64    `json:"total_active_seconds"`
	AvgActiveSeconds   float64    `json:"avg_active_seconds"`
	AvgActiveMMSS      string     `json:"avg_active_mmss"`
	PaceLabel          string     `json:"pace_label"`
	PaceEmoji          string     `json:"pace_emoji"`
	Score              int        `json:"score"`
}

// HourlyBucket is activity bucketed by local hour of day.
type HourlyBucket struct {
	Hour           int     `json:"hour"`
	TotalQuestions int     `json:"total_questions"`
	ActiveSeconds  float64 `json:"active_seconds"`
}

// DaySummary aggregates one local calendar day. Date is local midnight.
type DaySummary struct {
	Date               time.Time      `json:"date"`
	UserEmail          string         `json:"user_email"`
	TotalSessions      int            `json:"total_sessions"`
	TotalQuestions     int            `json:"total_questions"`
	TotalActiveSeconds float64        `json:"total_active_seconds"`
	TotalRawSeconds    float64        `json:"total_raw_seconds"`
	TotalActiveMMSS    string         `json:"total_active_mmss"`
	DailyPaceLabel     string         `json:"daily_pace_label"`
	DailyPaceEmoji     string         `json:"daily_pace_emoji"`
	DailyScore         int            `json:"daily_score"`
	Sessions           []SessionItem  `json:"sessions"`
	HourlyActivity     []HourlyBucket `json:"hourly_activity"`
}

// WeekSummary is seven consecutive local days plus totals.
type WeekSummary struct {
	WeekStart          time.Time    `json:"week_start"`
	WeekEnd            time.Time    `json:"week_end"`
	Days               []DaySummary `json:"days"`
	TotalSessions      int          `json:"total_sessions"`
	TotalQuestions     int          `json:"total_questions"`
	TotalActiveSeconds float64      `json:"total_active_seconds"`
}

// DailyReport pairs a day summary with full session summaries, for exports.
type DailyReport struct {
	Date             time.Time
	Day              DaySummary
	SessionSummaries []SessionSummary
}

// WeeklyReport is seven daily reports plus totals, for exports.
type WeeklyReport struct {
	WeekStart          time.Time
	WeekEnd            time.Time
	Days               []DailyReport
	TotalSessions      int
	TotalQuestions     int
	TotalActiveSeconds float64
}

// SummaryService builds read-only aggregates from persisted sessions and
// questions. It never re-derives state from the event log.
type SummaryService struct {
	store  repository.Store
	logger *zap.Logger
}

// NewSummaryService creates the aggregation service.
func NewSummaryService(store repository.Store, logger *zap.Logger) *SummaryService {
	return &SummaryService{store: store, logger: logger}
}

func sessionTarget(s domain.Session) float64 {
	if s.TargetMinutesPerQuestion <= 0 {
		return DefaultTargetMinutes
	}
	return s.TargetMinutesPerQuestion
}

func dropGhosts(questions []domain.Question) []domain.Question {
	kept := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if !q.IsGhost() {
			kept = append(kept, q)
		}
	}
	return kept
}

func formatSignedMMSS(seconds float64) string {
	if seconds < 0 {
		return "-" + FormatMMSS(-seconds)
	}
	return "+" + FormatMMSS(seconds)
}

// SessionSummary builds the full summary for one of the user's sessions.
func (s *SummaryService) SessionSummary(ctx context.Context, user domain.User, publicID string) (SessionSummary, error) {
	session, err := s.store.Sessions().GetByPublicID(ctx, user.ID, publicID)
	if err != nil {
		return SessionSummary{}, err
	}
	return s.summarizeSession(ctx, session)
}

func (s *SummaryService) summarizeSession(ctx context.Context, session domain.Session) (SessionSummary, error) {
	all, err := s.store.Questions().ListBySession(ctx, session.ID)
	if err != nil {
		return SessionSummary{}, err
	}
	questions := dropGhosts(all)
	target := sessionTarget(session)

	summary := SessionSummary{
		SessionID:                session.PublicID,
		StartedAt:                session.StartedAt,
		EndedAt:                  session.EndedAt,
		IsActive:                 session.IsActive,
		TargetMinutesPerQuestion: target,
		Questions:                make([]QuestionSummary, 0, len(questions)),
	}

	targetSeconds := target * 60
	for i, q := range questions {
		delta := q.ActiveSeconds - targetSeconds
		summary.Questions = append(summary.Questions, QuestionSummary{
			Index:                  i + 1,
			StartedAt:              q.StartedAt,
			EndedAt:                q.EndedAt,
			RawSeconds:             q.RawSeconds,
			ActiveSeconds:          q.ActiveSeconds,
			ActiveMMSS:             FormatMMSS(q.ActiveSeconds),
			OverUnderTargetSeconds: delta,
			OverUnderTargetMMSS:    formatSignedMMSS(delta),
		})
		summary.TotalRawSeconds += q.RawSeconds
		summary.TotalActiveSeconds += q.ActiveSeconds
	}

	summary.TotalQuestions = len(questions)
	if summary.TotalQuestions > 0 {
		summary.AvgActiveSeconds = summary.TotalActiveSeconds / float64(summary.TotalQuestions)
	}
	summary.AvgActiveMMSS = FormatMMSS(summary.AvgActiveSeconds)

	pace := ComputePace(summary.AvgActiveSeconds, target)
	summary.PaceLabel = pace.Label
	summary.PaceEmoji = pace.Emoji
	summary.Score = pace.Score
	return summary, nil
}

// DaySummary aggregates every session that started on the given local
// calendar day (year/month/day interpreted in the user's timezone).
func (s *SummaryService) DaySummary(ctx context.Context, user domain.User, localDate time.Time) (DaySummary, error) {
	loc := user.Location()
	dayStart := time.Date(localDate.Year(), localDate.Month(), localDate.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	sessions, err := s.store.Sessions().ListByUserBetween(ctx, user.ID, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return DaySummary{}, err
	}

	summary := DaySummary{
		Date:           dayStart,
		UserEmail:      user.Email,
		Sessions:       make([]SessionItem, 0, len(sessions)),
		HourlyActivity: make([]HourlyBucket, 24),
	}
	for h := range summary.HourlyActivity {
		summary.HourlyActivity[h].Hour = h
	}

	var weightedTargetSum float64
	for _, session := range sessions {
		all, err := s.store.Questions().ListBySession(ctx, session.ID)
		if err != nil {
			return DaySummary{}, err
		}
		questions := dropGhosts(all)
		summary.TotalSessions++

		item := SessionItem{
			SessionID: session.PublicID,
			StartedAt: session.StartedAt,
			EndedAt:   session.EndedAt,
			IsActive:  session.IsActive,
		}

		if len(questions) == 0 {
			item.AvgActiveMMSS = FormatMMSS(0)
			item.PaceLabel = "No questions"
			item.PaceEmoji = "😴"
			summary.Sessions = append(summary.Sessions, item)
			continue
		}

		var totalActive float64
		for _, q := range questions {
			totalActive += q.ActiveSeconds
			summary.TotalRawSeconds += q.RawSeconds

			hour := q.StartedAt.UTC().In(loc).Hour()
			summary.HourlyActivity[hour].TotalQuestions++
			summary.HourlyActivity[hour].ActiveSeconds += q.ActiveSeconds
		}

		count := len(questions)
		target := sessionTarget(session)
		avgActive := totalActive / float64(count)
		pace := ComputePace(avgActive, target)

		item.TotalQuestions = count
		item.TotalActiveSeconds = totalActive
		item.AvgActiveSeconds = avgActive
		item.AvgActiveMMSS = FormatMMSS(avgActive)
		item.PaceLabel = pace.Label
		item.PaceEmoji = pace.Emoji
		item.Score = pace.Score
		summary.Sessions = append(summary.Sessions, item)

		summary.TotalQuestions += count
		summary.TotalActiveSeconds += totalActive
		weightedTargetSum += target * float64(count)
	}

	summary.TotalActiveMMSS = FormatMMSS(summary.TotalActiveSeconds)

	// Daily pace weights the target by question count across sessions.
	var dailyAvg, dailyTarget float64
	if summary.TotalQuestions > 0 {
		dailyAvg = summary.TotalActiveSeconds / float64(summary.TotalQuestions)
		dailyTarget = weightedTargetSum / float64(summary.TotalQuestions)
	}
	pace := ComputePace(dailyAvg, dailyTarget)
	summary.DailyPaceLabel = pace.Label
	summary.DailyPaceEmoji = pace.Emoji
	summary.DailyScore = pace.Score
	return summary, nil
}

// WeekSummary builds seven consecutive local-day summaries starting at the
// given local date.
func (s *SummaryService) WeekSummary(ctx context.Context, user domain.User, weekStart time.Time) (WeekSummary, error) {
	loc := user.Location()
	start := time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, loc)

	summary := WeekSummary{
		WeekStart: start,
		WeekEnd:   start.AddDate(0, 0, 7),
		Days:      make([]DaySummary, 0, 7),
	}
	for offset := 0; offset < 7; offset++ {
		day, err := s.DaySummary(ctx, user, start.AddDate(0, 0, offset))
		if err != nil {
			return WeekSummary{}, err
		}
		summary.Days = append(summary.Days, day)
		summary.TotalSessions += day.TotalSessions
		summary.TotalQuestions += day.TotalQuestions
		summary.TotalActiveSeconds += day.TotalActiveSeconds
	}
	return summary, nil
}

// DailyReport builds the day summary plus full session summaries for export.
func (s *SummaryService) DailyReport(ctx context.Context, user domain.User, localDate time.Time) (DailyReport, error) {
	day, err := s.DaySummary(ctx, user, localDate)
	if err != nil {
		return DailyReport{}, err
	}

	report := DailyReport{
		Date:             day.Date,
		Day:              day,
		SessionSummaries: make([]SessionSummary, 0, len(day.Sessions)),
	}
	for _, item := range day.Sessions {
		sessionSummary, err := s.SessionSummary(ctx, user, item.SessionID)
		if err != nil {
			return DailyReport{}, fmt.Errorf("summarize session %s: %w", item.SessionID, err)
		}
		report.SessionSummaries = append(report.SessionSummaries, sessionSummary)
	}
	return report, nil
}

// WeeklyReport builds seven daily reports starting at the given local date.
func (s *SummaryService) WeeklyReport(ctx context.Context, user domain.User, weekStart time.Time) (WeeklyReport, error) {
	loc := user.Location()
	start := time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, loc)

	report := WeeklyReport{
		WeekStart: start,
		WeekEnd:   start.AddDate(0, 0, 7),
		Days:      make([]DailyReport, 0, 7),
	}
	for offset := 0; offset < 7; offset++ {
		daily, err := s.DailyReport(ctx, user, start.AddDate(0, 0, offset))
		if err != nil {
			return WeeklyReport{}, err
		}
		report.Days = append(report.Days, daily)
		report.TotalSessions += daily.Day.TotalSessions
		report.TotalQuestions += daily.Day.TotalQuestions
		report.TotalActiveSeconds += daily.Day.TotalActiveSeconds
	}
	return report, nil
}
