package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dannoetc/raterhub-tracker/internal/domain"
)

// Compile-time interface assertions.
var (
	_ Store                  = (*PostgresStore)(nil)
	_ UserRepository         = (*PostgresUserRepo)(nil)
	_ SessionRepository      = (*PostgresSessionRepo)(nil)
	_ QuestionRepository     = (*PostgresQuestionRepo)(nil)
	_ EventRepository        = (*PostgresEventRepo)(nil)
	_ ReportAuditRepository  = (*PostgresReportAuditRepo)(nil)
	_ LoginAttemptRepository = (*PostgresLoginAttemptRepo)(nil)
)

// txDB is satisfied by both *pgxpool.Pool and pgx.Tx.
type txDB interface {
	DB
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store over a pgx pool or transaction.
type PostgresStore struct {
	db txDB
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

func (s *PostgresStore) Users() UserRepository                 { return &PostgresUserRepo{db: s.db} }
func (s *PostgresStore) Sessions() SessionRepository           { return &PostgresSessionRepo{db: s.db} }
func (s *PostgresStore) Questions() QuestionRepository         { return &PostgresQuestionRepo{db: s.db} }
func (s *PostgresStore) Events() EventRepository               { return &PostgresEventRepo{db: s.db} }
func (s *PostgresStore) ReportAudits() ReportAuditRepository   { return &PostgresReportAuditRepo{db: s.db} }
func (s *PostgresStore) LoginAttempts() LoginAttemptRepository { return &PostgresLoginAttemptRepo{db: s.db} }

// InTx runs fn against a transaction-scoped store. It commits on success and
// rolls back on error or panic; panics are rethrown.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	err = fn(&PostgresStore{db: tx})
	return err
}

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db DB
}

const userColumns = `id, email, password_hash, first_name, last_name, timezone,
is_active, wants_report_emails, role, created_at, last_login_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Timezone,
		&u.IsActive,
		&u.WantsReportEmails,
		&u.Role,
		&u.CreatedAt,
		&u.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id int64) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, timezone,
			is_active, wants_report_emails, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+userColumns,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Timezone,
		user.IsActive,
		user.WantsReportEmails,
		user.Role,
		user.CreatedAt,
	)
	created, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (r *PostgresUserRepo) Update(ctx context.Context, user domain.User) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users
		SET first_name = $2, last_name = $3, timezone = $4,
			wants_report_emails = $5, is_active = $6, role = $7
		WHERE id = $1`,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Timezone,
		user.WantsReportEmails,
		user.IsActive,
		user.Role,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) ListReportRecipients(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE is_active AND wants_report_emails
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list report recipients: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// PostgresSessionRepo implements SessionRepository.
type PostgresSessionRepo struct {
	db DB
}

const sessionColumns = `id, public_id, user_id, started_at, ended_at, is_active,
target_minutes_per_question, current_question_index, current_question_started_at,
pause_accumulated_seconds, is_paused, pause_started_at`

func scanSession(row pgx.Row) (domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID,
		&s.PublicID,
		&s.UserID,
		&s.StartedAt,
		&s.EndedAt,
		&s.IsActive,
		&s.TargetMinutesPerQuestion,
		&s.CurrentQuestionIndex,
		&s.CurrentQuestionStartedAt,
		&s.PauseAccumulatedSeconds,
		&s.IsPaused,
		&s.PauseStartedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	return s, nil
}

func (r *PostgresSessionRepo) GetByID(ctx context.Context, id int64) (domain.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// GetActiveByUser locks the row FOR UPDATE inside a transaction so two
// concurrent events for the same user cannot both act on it.
func (r *PostgresSessionRepo) GetActiveByUser(ctx context.Context, userID int64) (domain.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND is_active
		FOR UPDATE`, userID)
	return scanSession(row)
}

func (r *PostgresSessionRepo) GetByPublicID(ctx context.Context, userID int64, publicID string) (domain.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND public_id = $2`, userID, publicID)
	return scanSession(row)
}

func (r *PostgresSessionRepo) Create(ctx context.Context, session *domain.Session) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO sessions (public_id, user_id, started_at, ended_at, is_active,
			target_minutes_per_question, current_question_index,
			current_question_started_at, pause_accumulated_seconds, is_paused, pause_started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		session.PublicID,
		session.UserID,
		session.StartedAt,
		session.EndedAt,
		session.IsActive,
		session.TargetMinutesPerQuestion,
		session.CurrentQuestionIndex,
		session.CurrentQuestionStartedAt,
		session.PauseAccumulatedSeconds,
		session.IsPaused,
		session.PauseStartedAt,
	).Scan(&session.ID)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) Update(ctx context.Context, session domain.Session) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET ended_at = $2, is_active = $3, target_minutes_per_question = $4,
			current_question_index = $5, current_question_started_at = $6,
			pause_accumulated_seconds = $7, is_paused = $8, pause_started_at = $9
		WHERE id = $1`,
		session.ID,
		session.EndedAt,
		session.IsActive,
		session.TargetMinutesPerQuestion,
		session.CurrentQuestionIndex,
		session.CurrentQuestionStartedAt,
		session.PauseAccumulatedSeconds,
		session.IsPaused,
		session.PauseStartedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) ListByUserBetween(ctx context.Context, userID int64, from, to time.Time) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND started_at >= $2 AND started_at < $3
		ORDER BY started_at ASC`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// PostgresQuestionRepo implements QuestionRepository.
type PostgresQuestionRepo struct {
	db DB
}

const questionColumns = `id, session_id, index, started_at, ended_at, raw_seconds, active_seconds`

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	err := row.Scan(
		&q.ID,
		&q.SessionID,
		&q.Index,
		&q.StartedAt,
		&q.EndedAt,
		&q.RawSeconds,
		&q.ActiveSeconds,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Question{}, domain.ErrNotFound
		}
		return domain.Question{}, fmt.Errorf("scan question: %w", err)
	}
	return q, nil
}

func (r *PostgresQuestionRepo) GetByID(ctx context.Context, id int64) (domain.Question, error) {
	row := r.db.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	return scanQuestion(row)
}

func (r *PostgresQuestionRepo) Create(ctx context.Context, question *domain.Question) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO questions (session_id, index, started_at, ended_at, raw_seconds, active_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		question.SessionID,
		question.Index,
		question.StartedAt,
		question.EndedAt,
		question.RawSeconds,
		question.ActiveSeconds,
	).Scan(&question.ID)
	if err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

func (r *PostgresQuestionRepo) ListBySession(ctx context.Context, sessionID int64) ([]domain.Question, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+questionColumns+` FROM questions
		WHERE session_id = $1
		ORDER BY index ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (r *PostgresQuestionRepo) LastBySession(ctx context.Context, sessionID int64) (domain.Question, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+questionColumns+` FROM questions
		WHERE session_id = $1
		ORDER BY index DESC
		LIMIT 1`, sessionID)
	return scanQuestion(row)
}

func (r *PostgresQuestionRepo) CountBySession(ctx context.Context, sessionID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM questions WHERE session_id = $1`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return count, nil
}

func (r *PostgresQuestionRepo) UpdateIndex(ctx context.Context, id int64, index int) error {
	if _, err := r.db.Exec(ctx, `UPDATE questions SET index = $2 WHERE id = $1`, id, index); err != nil {
		return fmt.Errorf("update question index: %w", err)
	}
	return nil
}

func (r *PostgresQuestionRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

// PostgresEventRepo implements EventRepository.
type PostgresEventRepo struct {
	db DB
}

func (r *PostgresEventRepo) Append(ctx context.Context, event *domain.Event) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO events (session_id, type, timestamp)
		VALUES ($1, $2, $3)
		RETURNING id`,
		event.SessionID,
		string(event.Type),
		event.Timestamp,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// PostgresReportAuditRepo implements ReportAuditRepository.
type PostgresReportAuditRepo struct {
	db DB
}

func (r *PostgresReportAuditRepo) Exists(ctx context.Context, userID int64, scope, format string, reportDate time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM report_audits
			WHERE user_id = $1 AND report_scope = $2 AND report_format = $3 AND report_date = $4
		)`, userID, scope, format, reportDate).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check report audit: %w", err)
	}
	return exists, nil
}

func (r *PostgresReportAuditRepo) Create(ctx context.Context, audit *domain.ReportAudit) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO report_audits (user_id, report_scope, report_format, report_date, triggered_by, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		audit.UserID,
		audit.ReportScope,
		audit.ReportFormat,
		audit.ReportDate,
		audit.TriggeredBy,
		audit.Details,
		audit.CreatedAt,
	).Scan(&audit.ID)
	if err != nil {
		return fmt.Errorf("create report audit: %w", err)
	}
	return nil
}

// PostgresLoginAttemptRepo implements LoginAttemptRepository.
type PostgresLoginAttemptRepo struct {
	db DB
}

func (r *PostgresLoginAttemptRepo) Get(ctx context.Context, keyType, keyValue string) (domain.LoginAttempt, error) {
	var a domain.LoginAttempt
	err := r.db.QueryRow(ctx, `
		SELECT id, key_type, key_value, failure_count, last_failure_at, locked_until
		FROM login_attempts
		WHERE key_type = $1 AND key_value = $2`, keyType, keyValue).Scan(
		&a.ID,
		&a.KeyType,
		&a.KeyValue,
		&a.FailureCount,
		&a.LastFailureAt,
		&a.LockedUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LoginAttempt{}, domain.ErrNotFound
		}
		return domain.LoginAttempt{}, fmt.Errorf("get login attempt: %w", err)
	}
	return a, nil
}

func (r *PostgresLoginAttemptRepo) Upsert(ctx context.Context, attempt *domain.LoginAttempt) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO login_attempts (key_type, key_value, failure_count, last_failure_at, locked_until)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key_type, key_value)
		DO UPDATE SET failure_count = EXCLUDED.failure_count,
			last_failure_at = EXCLUDED.last_failure_at,
			locked_until = EXCLUDED.locked_until
		RETURNING id`,
		attempt.KeyType,
		attempt.KeyValue,
		attempt.FailureCount,
		attempt.LastFailureAt,
		attempt.LockedUntil,
	).Scan(&attempt.ID)
	if err != nil {
		return fmt.Errorf("upsert login attempt: %w", err)
	}
	return nil
}

func (r *PostgresLoginAttemptRepo) Clear(ctx context.Context, keyType, keyValue string) error {
	if _, err := r.db.Exec(ctx, `
		DELETE FROM login_attempts WHERE key_type = $1 AND key_value = $2`, keyType, keyValue); err != nil {
		return fmt.Errorf("clear login attempt: %w", err)
	}
	return nil
}
