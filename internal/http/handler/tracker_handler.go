package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dannoetc/raterhub-tracker/internal/domain"
	"github.com/dannoetc/raterhub-tracker/internal/http/middleware"
	"github.com/dannoetc/raterhub-tracker/internal/service"
)

// TrackerHandler serves event submission, summaries, and exports.
type TrackerHandler struct {
	Tracker   *service.TrackerService
	Summaries *service.SummaryService
	Reports   *service.ReportService
	Renderer  service.ReportRenderer
}

// NewTrackerHandler creates the tracker handler set.
func NewTrackerHandler(tracker *service.TrackerService, summaries *service.SummaryService, reports *service.ReportService, renderer service.ReportRenderer) *TrackerHandler {
	return &TrackerHandler{Tracker: tracker, Summaries: summaries, Reports: reports, Renderer: renderer}
}

// parseEventTimestamp accepts RFC 3339 timestamps with an offset, or naive
// ISO-8601 which is taken to already be UTC.
func parseEventTimestamp(value string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), true
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// PostEvent processes one tracking event for the authenticated user.
func (h *TrackerHandler) PostEvent(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Not authenticated."})
		return
	}

	var req struct {
		Type      string `json:"type" binding:"required"`
		Timestamp string `json:"timestamp"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Event type is required."})
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != "" {
		parsed, ok := parseEventTimestamp(req.Timestamp)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Malformed timestamp."})
			return
		}
		ts = parsed
	}

	result, err := h.Tracker.ProcessEvent(c.Request.Context(), user.ID, domain.EventType(req.Type), ts)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SessionSummary returns the full summary of one session.
func (h *TrackerHandler) SessionSummary(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Not authenticated."})
		return
	}

	summary, err := h.Summaries.SessionSummary(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// localQueryDate resolves an optional YYYY-MM-DD query parameter to a date in
// the user's timezone, defaulting to today.
func localQueryDate(c *gin.Context, user domain.User, param string) (time.Time, bool) {
	loc := user.Location()
	raw := c.Query(param)
	if raw == "" {
		return time.Now().In(loc), true
	}
	parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Date must be YYYY-MM-DD."})
		return time.Time{}, false
	}
	return parsed, true
}

// TodaySummary returns the day summary for an optional date (default today).
func (h *TrackerHandler) TodaySummary(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Not authenticated."})
		return
	}
	date, ok := localQueryDate(c, user, "date")
	if !ok {
		return
	}

	summary, err := h.Summaries.DaySummary(c.Request.Context(), user, date)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// WeekSummary returns seven local days starting at an optional start date.
func (h *TrackerHandler) WeekSummary(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Not authenticated."})
		return
	}
	start, ok := localQueryDate(c, user, "start")
	if !ok {
		return
	}

	summary, err := h.Summaries.WeekSummary(c.Request.Context(), user, start)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// DailyCSV streams the daily report as a CSV download.
func (h *TrackerHandler) DailyCSV(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Not authenticated."})
		return
	}
	date, ok := localQueryDate(c, user, "date")
	if !ok {
		return
	}

	report, err := h.Summaries.DailyReport(c.Request.Context(), user, date)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	content, err := h.Renderer.DailyCSV(report)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	filename := "daily_report_" + report.Date.Format("2006-01-02") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv", content)
}

// WeeklyCSV streams the weekly report as a CSV download.
func (h *TrackerHandler) WeeklyCSV(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Not authenticated."})
		return
	}
	start, ok := localQueryDate(c, user, "start")
	if !ok {
		return
	}

	report, err := h.Summaries.WeeklyReport(c.Request.Context(), user, start)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	content, err := h.Renderer.WeeklyCSV(report)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	filename := "weekly_report_" + report.WeekStart.Format("2006-01-02") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv", content)
}

// DeleteQuestion removes one question and renumbers its session.
func (h *TrackerHandler) DeleteQuestion(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Not authenticated."})
		return
	}

	questionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || questionID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Question id must be a positive integer."})
		return
	}

	if err := h.Tracker.DeleteQuestion(c.Request.Context(), user.ID, questionID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// DeliverReports triggers a scheduler pass. Admin only.
func (h *TrackerHandler) DeliverReports(c *gin.Context) {
	delivered, err := h.Reports.DeliverDailyReports(c.Request.Context(), time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if delivered == nil {
		delivered = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}
