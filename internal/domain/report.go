package domain

import "time"

// Report audit scopes and formats.
const (
	ReportScopeDaily  = "daily"
	ReportFormatEmail = "email"
)

// ReportAudit records one report delivery attempt. It doubles as the
// idempotency guard for the scheduler: an existing (user, scope, format,
// date) row means the report was already handled for that local day.
type ReportAudit struct {
	ID           int64
	UserID       int64
	ReportScope  string
	ReportFormat string
	ReportDate   time.Time
	TriggeredBy  string
	Details      string
	CreatedAt    time.Time
}

// LoginAttempt key types.
const (
	LoginKeyAccount = "account"
	LoginKeyIP      = "ip"
)

// LoginAttempt tracks login failures per account or source IP for the
// auth throttle. Unique on (KeyType, KeyValue).
type LoginAttempt struct {
	ID            int64
	KeyType       string
	KeyValue      string
	FailureCount  int
	LastFailureAt *time.Time
	LockedUntil   *time.Time
}
