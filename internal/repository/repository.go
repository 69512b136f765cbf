package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dannoetc/raterhub-tracker/internal/domain"
)

// DB is the subset of pgx used by the repositories. Both *pgxpool.Pool and
// pgx.Tx satisfy it, so the same repository code runs inside and outside a
// transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository provides account persistence.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	Update(ctx context.Context, user domain.User) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	ListReportRecipients(ctx context.Context) ([]domain.User, error)
}

// SessionRepository provides session persistence.
type SessionRepository interface {
	GetByID(ctx context.Context, id int64) (domain.Session, error)
	GetActiveByUser(ctx context.Context, userID int64) (domain.Session, error)
	GetByPublicID(ctx context.Context, userID int64, publicID string) (domain.Session, error)
	Create(ctx context.Context, session *domain.Session) error
	Update(ctx context.Context, session domain.Session) error
	ListByUserBetween(ctx context.Context, userID int64, from, to time.Time) ([]domain.Session, error)
}

// QuestionRepository provides question persistence.
type QuestionRepository interface {
	GetByID(ctx context.Context, id int64) (domain.Question, error)
	Create(ctx context.Context, question *domain.Question) error
	ListBySession(ctx context.Context, sessionID int64) ([]domain.Question, error)
	LastBySession(ctx context.Context, sessionID int64) (domain.Question, error)
	CountBySession(ctx context.Context, sessionID int64) (int, error)
	UpdateIndex(ctx context.Context, id int64, index int) error
	Delete(ctx context.Context, id int64) error
}

// EventRepository appends to the immutable event log.
type EventRepository interface {
	Append(ctx context.Context, event *domain.Event) error
}

// ReportAuditRepository records report delivery attempts.
type ReportAuditRepository interface {
	Exists(ctx context.Context, userID int64, scope, format string, reportDate time.Time) (bool, error)
	Create(ctx context.Context, audit *domain.ReportAudit) error
}

// LoginAttemptRepository tracks login failures for the auth throttle.
type LoginAttemptRepository interface {
	Get(ctx context.Context, keyType, keyValue string) (domain.LoginAttempt, error)
	Upsert(ctx context.Context, attempt *domain.LoginAttempt) error
	Clear(ctx context.Context, keyType, keyValue string) error
}

// Store bundles the repositories behind a single unit of work. InTx runs fn
// against a transaction-scoped Store, committing on success and rolling back
// on error; repositories obtained outside InTx operate on the pool directly.
type Store interface {
	Users() UserRepository
	Sessions() SessionRepository
	Questions() QuestionRepository
	Events() EventRepository
	ReportAudits() ReportAuditRepository
	LoginAttempts() LoginAttemptRepository
	InTx(ctx context.Context, fn func(Store) error) error
}
