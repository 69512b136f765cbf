package service_test

import (
	"context"
	"sort"
	"time"

	"github.com/dannoetc/raterhub-tracker/internal/domain"
	"github.com/dannoetc/raterhub-tracker/internal/repository"
)

// memStore is an in-memory repository.Store for service tests. InTx runs the
// callback directly; transactional rollback is exercised against a real
// database, not here.
type memStore struct {
	users    []domain.User
	sessions []domain.Session
	question []domain.Question
	events   []domain.Event
	audits   []domain.ReportAudit
	attempts map[string]domain.LoginAttempt

	nextUserID     int64
	nextSessionID  int64
	nextQuestionID int64
	nextEventID    int64
	nextAuditID    int64
}

func newMemStore() *memStore {
	return &memStore{attempts: make(map[string]domain.LoginAttempt)}
}

func (m *memStore) Users() repository.UserRepository                 { return (*memUserRepo)(m) }
func (m *memStore) Sessions() repository.SessionRepository           { return (*memSessionRepo)(m) }
func (m *memStore) Questions() repository.QuestionRepository         { return (*memQuestionRepo)(m) }
func (m *memStore) Events() repository.EventRepository               { return (*memEventRepo)(m) }
func (m *memStore) ReportAudits() repository.ReportAuditRepository   { return (*memAuditRepo)(m) }
func (m *memStore) LoginAttempts() repository.LoginAttemptRepository { return (*memAttemptRepo)(m) }

func (m *memStore) InTx(ctx context.Context, fn func(repository.Store) error) error {
	return fn(m)
}

type memUserRepo memStore

func (r *memUserRepo) GetByID(_ context.Context, id int64) (domain.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *memUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.nextUserID++
	user.ID = r.nextUserID
	r.users = append(r.users, user)
	return user, nil
}

func (r *memUserRepo) Update(_ context.Context, user domain.User) error {
	for i, u := range r.users {
		if u.ID == user.ID {
			r.users[i] = user
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memUserRepo) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	for i, u := range r.users {
		if u.ID == id {
			r.users[i].LastLoginAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memUserRepo) ListReportRecipients(_ context.Context) ([]domain.User, error) {
	var out []domain.User
	for _, u := range r.users {
		if u.IsActive && u.WantsReportEmails {
			out = append(out, u)
		}
	}
	return out, nil
}

type memSessionRepo memStore

func (r *memSessionRepo) GetByID(_ context.Context, id int64) (domain.Session, error) {
	for _, s := range r.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Session{}, domain.ErrNotFound
}

func (r *memSessionRepo) GetActiveByUser(_ context.Context, userID int64) (domain.Session, error) {
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			return s, nil
		}
	}
	return domain.Session{}, domain.ErrNotFound
}

func (r *memSessionRepo) GetByPublicID(_ context.Context, userID int64, publicID string) (domain.Session, error) {
	for _, s := range r.sessions {
		if s.UserID == userID && s.PublicID == publicID {
			return s, nil
		}
	}
	return domain.Session{}, domain.ErrNotFound
}

func (r *memSessionRepo) Create(_ context.Context, session *domain.Session) error {
	r.nextSessionID++
	session.ID = r.nextSessionID
	r.sessions = append(r.sessions, *session)
	return nil
}

func (r *memSessionRepo) Update(_ context.Context, session domain.Session) error {
	for i, s := range r.sessions {
		if s.ID == session.ID {
			r.sessions[i] = session
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memSessionRepo) ListByUserBetween(_ context.Context, userID int64, from, to time.Time) ([]domain.Session, error) {
	var out []domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && !s.StartedAt.Before(from) && s.StartedAt.Before(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

type memQuestionRepo memStore

func (r *memQuestionRepo) GetByID(_ context.Context, id int64) (domain.Question, error) {
	for _, q := range r.question {
		if q.ID == id {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrNotFound
}

func (r *memQuestionRepo) Create(_ context.Context, question *domain.Question) error {
	r.nextQuestionID++
	question.ID = r.nextQuestionID
	r.question = append(r.question, *question)
	return nil
}

func (r *memQuestionRepo) ListBySession(_ context.Context, sessionID int64) ([]domain.Question, error) {
	var out []domain.Question
	for _, q := range r.question {
		if q.SessionID == sessionID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (r *memQuestionRepo) LastBySession(ctx context.Context, sessionID int64) (domain.Question, error) {
	all, _ := r.ListBySession(ctx, sessionID)
	if len(all) == 0 {
		return domain.Question{}, domain.ErrNotFound
	}
	return all[len(all)-1], nil
}

func (r *memQuestionRepo) CountBySession(ctx context.Context, sessionID int64) (int, error) {
	all, _ := r.ListBySession(ctx, sessionID)
	return len(all), nil
}

func (r *memQuestionRepo) UpdateIndex(_ context.Context, id int64, index int) error {
	for i, q := range r.question {
		if q.ID == id {
			r.question[i].Index = index
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memQuestionRepo) Delete(_ context.Context, id int64) error {
	for i, q := range r.question {
		if q.ID == id {
			r.question = append(r.question[:i], r.question[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type memEventRepo memStore

func (r *memEventRepo) Append(_ context.Context, event *domain.Event) error {
	r.nextEventID++
	event.ID = r.nextEventID
	r.events = append(r.events, *event)
	return nil
}

type memAuditRepo memStore

func (r *memAuditRepo) Exists(_ context.Context, userID int64, scope, format string, reportDate time.Time) (bool, error) {
	for _, a := range r.audits {
		if a.UserID == userID && a.ReportScope == scope && a.ReportFormat == format && a.ReportDate.Equal(reportDate) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memAuditRepo) Create(_ context.Context, audit *domain.ReportAudit) error {
	r.nextAuditID++
	audit.ID = r.nextAuditID
	r.audits = append(r.audits, *audit)
	return nil
}

type memAttemptRepo memStore

func attemptKey(keyType, keyValue string) string { return keyType + "|" + keyValue }

func (r *memAttemptRepo) Get(_ context.Context, keyType, keyValue string) (domain.LoginAttempt, error) {
	attempt, ok := r.attempts[attemptKey(keyType, keyValue)]
	if !ok {
		return domain.LoginAttempt{}, domain.ErrNotFound
	}
	return attempt, nil
}

func (r *memAttemptRepo) Upsert(_ context.Context, attempt *domain.LoginAttempt) error {
	r.attempts[attemptKey(attempt.KeyType, attempt.KeyValue)] = *attempt
	return nil
}

func (r *memAttemptRepo) Clear(_ context.Context, keyType, keyValue string) error {
	delete(r.attempts, attemptKey(keyType, keyValue))
	return nil
}
