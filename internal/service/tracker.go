package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dannoetc/raterhub-tracker/internal/domain"
	"github.com/dannoetc/raterhub-tracker/internal/repository"
)

// EventResult confirms a processed event back to the client.
type EventResult struct {
	Status            string           `json:"status"`
	Message           string           `json:"message"`
	ServerTimestamp   time.Time        `json:"server_timestamp"`
	SessionID         string           `json:"session_id"`
	TotalQuestions    int              `json:"total_questions"`
	LastEventType     domain.EventType `json:"last_event_type"`
	LastQuestionIndex int              `json:"last_question_index"`

	// Set when NEXT/EXIT closes a question.
	LastQuestionActiveSeconds *float64 `json:"last_question_active_seconds,omitempty"`
	LastQuestionRawSeconds    *float64 `json:"last_question_raw_seconds,omitempty"`
	LastQuestionActiveMMSS    *string  `json:"last_question_active_mmss,omitempty"`
}

// TrackerService is the session/question state machine. All mutations for a
// user are serialized through a per-user mutex and run inside a single
// transaction; the row lock taken by GetActiveByUser backs this up at the
// database level.
type TrackerService struct {
	store         repository.Store
	defaultTarget float64
	logger        *zap.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewTrackerService creates the state machine service.
func NewTrackerService(store repository.Store, defaultTargetMinutes float64, logger *zap.Logger) *TrackerService {
	if defaultTargetMinutes <= 0 {
		defaultTargetMinutes = DefaultTargetMinutes
	}
	return &TrackerService{
		store:         store,
		defaultTarget: defaultTargetMinutes,
		logger:        logger,
		locks:         make(map[int64]*sync.Mutex),
	}
}

func (s *TrackerService) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// ProcessEvent applies one client event to the user's session state. The
// timestamp must already be normalized to UTC.
func (s *TrackerService) ProcessEvent(ctx context.Context, userID int64, eventType domain.EventType, ts time.Time) (EventResult, error) {
	if !eventType.Valid() {
		return EventResult{}, fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, eventType)
	}
	ts = ts.UTC()

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var result EventResult
	err := s.store.InTx(ctx, func(st repository.Store) error {
		session, err := st.Sessions().GetActiveByUser(ctx, userID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if eventType != domain.EventNext {
				return fmt.Errorf("%w: no active session for %s", domain.ErrInvalidState, eventType)
			}
			return s.startSession(ctx, st, userID, ts, &result)
		}

		switch eventType {
		case domain.EventPause:
			err = s.togglePause(ctx, st, &session, ts, &result)
		case domain.EventNext:
			err = s.closeQuestion(ctx, st, &session, ts, false, &result)
		case domain.EventExit:
			err = s.closeQuestion(ctx, st, &session, ts, true, &result)
		case domain.EventUndo:
			err = s.undo(ctx, st, &session, ts, &result)
		}
		if err != nil {
			return err
		}

		total, err := st.Questions().CountBySession(ctx, session.ID)
		if err != nil {
			return err
		}
		result.TotalQuestions = total
		result.SessionID = session.PublicID
		return nil
	})
	if err != nil {
		return EventResult{}, err
	}

	result.Status = "ok"
	result.ServerTimestamp = time.Now().UTC()
	result.LastEventType = eventType
	return result, nil
}

func (s *TrackerService) startSession(ctx context.Context, st repository.Store, userID int64, ts time.Time, result *EventResult) error {
	started := ts
	session := domain.Session{
		PublicID:                 uuid.NewString(),
		UserID:                   userID,
		StartedAt:                started,
		IsActive:                 true,
		TargetMinutesPerQuestion: s.defaultTarget,
		CurrentQuestionIndex:     1,
		CurrentQuestionStartedAt: &started,
	}
	if err := st.Sessions().Create(ctx, &session); err != nil {
		return err
	}
	if err := st.Events().Append(ctx, &domain.Event{SessionID: session.ID, Type: domain.EventNext, Timestamp: ts}); err != nil {
		return err
	}

	s.logger.Info("session started", zap.Int64("user_id", userID), zap.String("session_id", session.PublicID))
	result.Message = "Session started."
	result.SessionID = session.PublicID
	result.LastQuestionIndex = 1
	return nil
}

// closePauseInterval folds an open pause into the accumulated counter.
// Negative elapsed time from client clock skew is discarded.
func closePauseInterval(session *domain.Session, ts time.Time) {
	if !session.IsPaused || session.PauseStartedAt == nil {
		return
	}
	elapsed := ts.Sub(*session.PauseStartedAt).Seconds()
	if elapsed > 0 {
		session.PauseAccumulatedSeconds += elapsed
	}
	session.IsPaused = false
	session.PauseStartedAt = nil
}

func (s *TrackerService) togglePause(ctx context.Context, st repository.Store, session *domain.Session, ts time.Time, result *EventResult) error {
	if session.IsPaused {
		closePauseInterval(session, ts)
		result.Message = "Resumed."
	} else {
		paused := ts
		session.IsPaused = true
		session.PauseStartedAt = &paused
		result.Message = "Paused."
	}

	if err := st.Sessions().Update(ctx, *session); err != nil {
		return err
	}
	if err := st.Events().Append(ctx, &domain.Event{SessionID: session.ID, Type: domain.EventPause, Timestamp: ts}); err != nil {
		return err
	}

	result.LastQuestionIndex = session.CurrentQuestionIndex
	return nil
}

func (s *TrackerService) closeQuestion(ctx context.Context, st repository.Store, session *domain.Session, ts time.Time, exit bool, result *EventResult) error {
	closePauseInterval(session, ts)

	var started time.Time
	if session.CurrentQuestionStartedAt != nil {
		started = *session.CurrentQuestionStartedAt
	} else {
		started = ts
	}

	raw := ts.Sub(started).Seconds()
	if raw < 0 {
		raw = 0
	}
	active := raw - session.PauseAccumulatedSeconds
	if active < 0 {
		active = 0
	}

	question := domain.Question{
		SessionID:     session.ID,
		Index:         session.CurrentQuestionIndex,
		StartedAt:     started,
		EndedAt:       ts,
		RawSeconds:    raw,
		ActiveSeconds: active,
	}
	if err := st.Questions().Create(ctx, &question); err != nil {
		return err
	}

	eventType := domain.EventNext
	if exit {
		eventType = domain.EventExit
		ended := ts
		session.IsActive = false
		session.EndedAt = &ended
		session.CurrentQuestionStartedAt = nil
		session.PauseAccumulatedSeconds = 0
		session.IsPaused = false
		session.PauseStartedAt = nil
		result.Message = "Session ended."
	} else {
		next := ts
		session.CurrentQuestionIndex++
		session.CurrentQuestionStartedAt = &next
		session.PauseAccumulatedSeconds = 0
		session.IsPaused = false
		session.PauseStartedAt = nil
		result.Message = fmt.Sprintf("Question %d recorded.", question.Index)
	}

	if err := st.Sessions().Update(ctx, *session); err != nil {
		return err
	}
	if err := st.Events().Append(ctx, &domain.Event{SessionID: session.ID, Type: eventType, Timestamp: ts}); err != nil {
		return err
	}

	mmss := FormatMMSS(active)
	result.LastQuestionIndex = question.Index
	result.LastQuestionActiveSeconds = &active
	result.LastQuestionRawSeconds = &raw
	result.LastQuestionActiveMMSS = &mmss
	return nil
}

// undo rolls the session back to the state it had while the most recent
// question was still open. The pause time in effect back then is recovered
// as raw minus active; that conflates multiple pause intervals into one,
// which matches what the rest of the accounting expects.
func (s *TrackerService) undo(ctx context.Context, st repository.Store, session *domain.Session, ts time.Time, result *EventResult) error {
	if err := st.Events().Append(ctx, &domain.Event{SessionID: session.ID, Type: domain.EventUndo, Timestamp: ts}); err != nil {
		return err
	}

	last, err := st.Questions().LastBySession(ctx, session.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			result.Message = "Nothing to undo."
			result.LastQuestionIndex = session.CurrentQuestionIndex
			return nil
		}
		return err
	}

	oldPause := last.RawSeconds - last.ActiveSeconds
	if oldPause < 0 {
		oldPause = 0
	}

	started := last.StartedAt
	session.CurrentQuestionIndex = last.Index
	session.CurrentQuestionStartedAt = &started
	session.PauseAccumulatedSeconds = oldPause
	session.IsPaused = false
	session.PauseStartedAt = nil

	if err := st.Questions().Delete(ctx, last.ID); err != nil {
		return err
	}
	if err := st.Sessions().Update(ctx, *session); err != nil {
		return err
	}

	result.Message = fmt.Sprintf("Question %d undone.", last.Index)
	result.LastQuestionIndex = last.Index
	return nil
}

// DeleteQuestion removes one question owned by the caller and renumbers the
// survivors of its session 1..N by start time.
func (s *TrackerService) DeleteQuestion(ctx context.Context, userID, questionID int64) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	return s.store.InTx(ctx, func(st repository.Store) error {
		question, err := st.Questions().GetByID(ctx, questionID)
		if err != nil {
			return err
		}
		session, err := st.Sessions().GetByID(ctx, question.SessionID)
		if err != nil {
			return err
		}
		if session.UserID != userID {
			return domain.ErrNotFound
		}

		if err := st.Questions().Delete(ctx, question.ID); err != nil {
			return err
		}

		remaining, err := st.Questions().ListBySession(ctx, session.ID)
		if err != nil {
			return err
		}
		sort.Slice(remaining, func(i, j int) bool {
			return remaining[i].StartedAt.Before(remaining[j].StartedAt)
		})
		for i, q := range remaining {
			if q.Index != i+1 {
				if err := st.Questions().UpdateIndex(ctx, q.ID, i+1); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
