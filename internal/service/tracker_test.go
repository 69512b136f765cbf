package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dannoetc/raterhub-tracker/internal/domain"
	"github.com/dannoetc/raterhub-tracker/internal/service"
)

var trackerT0 = time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)

func newTrackerEnv(t *testing.T) (*memStore, *service.TrackerService) {
	t.Helper()
	store := newMemStore()
	return store, service.NewTrackerService(store, 5.5, zap.NewNop())
}

func TestProcessEventStartsSession(t *testing.T) {
	store, tracker := newTrackerEnv(t)

	result, err := tracker.ProcessEvent(context.Background(), 1, domain.EventNext, trackerT0)
	require.NoError(t, err)
	require.Equal(t, "ok", result.Status)
	require.Equal(t, "Session started.", result.Message)
	require.Equal(t, 1, result.LastQuestionIndex)
	require.Zero(t, result.TotalQuestions)
	require.NotEmpty(t, result.SessionID)

	session, err := store.Sessions().GetActiveByUser(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, session.IsActive)
	require.Equal(t, 1, session.CurrentQuestionIndex)
	require.Equal(t, trackerT0, session.StartedAt)
	require.NotNil(t, session.CurrentQuestionStartedAt)
	require.Equal(t, trackerT0, *session.CurrentQuestionStartedAt)
}

func TestPauseAccountingAcrossQuestion(t *testing.T) {
	store, tracker := newTrackerEnv(t)
	ctx := context.Background()

	_, err := tracker.ProcessEvent(ctx, 1, domain.EventNext, trackerT0)
	require.NoError(t, err)

	paused, err := tracker.ProcessEvent(ctx, 1, domain.EventPause, trackerT0.Add(60*time.Second))
	require.NoError(t, err)
	require.Equal(t, "Paused.", paused.Message)

	resumed, err := tracker.ProcessEvent(ctx, 1, domain.EventPause, trackerT0.Add(120*time.Second))
	require.NoError(t, err)
	require.Equal(t, "Resumed.", resumed.Message)

	closed, err := tracker.ProcessEvent(ctx, 1, domain.EventNext, trackerT0.Add(180*time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, closed.TotalQuestions)
	require.NotNil(t, closed.LastQuestionRawSeconds)
	require.InDelta(t, 180, *closed.LastQuestionRawSeconds, 1e-9)
	require.InDelta(t, 120, *closed.LastQuestionActiveSeconds, 1e-9)
	require.Equal(t, "02:00", *closed.LastQuestionActiveMMSS)

	session, err := store.Sessions().GetActiveByUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, session.CurrentQuestionIndex)
	require.Zero(t, session.PauseAccumulatedSeconds)
	require.False(t, session.IsPaused)
}

func TestExitClosesQuestionAndSession(t *testing.T) {
	store, tracker := newTrackerEnv(t)
	ctx := context.Background()

	started, err := tracker.ProcessEvent(ctx, 1, domain.EventNext, trackerT0)
	require.NoError(t, err)

	result, err := tracker.ProcessEvent(ctx, 1, domain.EventExit, trackerT0.Add(90*time.Second))
	require.NoError(t, err)
	require.Equal(t, "Session ended.", result.Message)
	require.Equal(t, 1, result.TotalQuestions)
	require.InDelta(t, 90, *result.LastQuestionRawSeconds, 1e-9)
	require.InDelta(t, 90, *result.LastQuestionActiveSeconds, 1e-9)

	_, err = store.Sessions().GetActiveByUser(ctx, 1)
	require.ErrorIs(t, err, domain.ErrNotFound)

	session, err := store.Sessions().GetByPublicID(ctx, 1, started.SessionID)
	require.NoError(t, err)
	require.False(t, session.IsActive)
	require.NotNil(t, session.EndedAt)
	require.Equal(t, trackerT0.Add(90*time.Second), *session.EndedAt)
}

func TestEventsWithoutSessionRejected(t *testing.T) {
	_, tracker := newTrackerEnv(t)
	for _, eventType := range []domain.EventType{domain.EventPause, domain.EventExit, domain.EventUndo} {
		_, err := tracker.ProcessEvent(context.Background(), 1, eventType, trackerT0)
		require.ErrorIs(t, err, domain.ErrInvalidState, "event %s", eventType)
	}
}

func TestUnknownEventTypeRejected(t *testing.T) {
	_, tracker := newTrackerEnv(t)
	_, err := tracker.ProcessEvent(context.Background(), 1, domain.EventType("BOGUS"), trackerT0)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestUndoRestoresQuestionState(t *testing.T) {
	store, tracker := newTrackerEnv(t)
	ctx := context.Background()

	_, err := tracker.ProcessEvent(ctx, 1, domain.EventNext, trackerT0)
	require.NoError(t, err)
	_, err = tracker.ProcessEvent(ctx, 1, domain.EventPause, trackerT0.Add(30*time.Second))
	require.NoError(t, err)
	_, err = tracker.ProcessEvent(ctx, 1, domain.EventPause, trackerT0.Add(50*time.Second))
	require.NoError(t, err)

	closed, err := tracker.ProcessEvent(ctx, 1, domain.EventNext, trackerT0.Add(100*time.Second))
	require.NoError(t, err)
	require.InDelta(t, 100, *closed.LastQuestionRawSeconds, 1e-9)
	require.InDelta(t, 80, *closed.LastQuestionActiveSeconds, 1e-9)

	undone, err := tracker.ProcessEvent(ctx, 1, domain.EventUndo, trackerT0.Add(110*time.Second))
	require.NoError(t, err)
	require.Equal(t, "Question 1 undone.", undone.Message)
	require.Zero(t, undone.TotalQuestions)

	session, err := store.Sessions().GetActiveByUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, session.CurrentQuestionIndex)
	require.NotNil(t, session.CurrentQuestionStartedAt)
	require.Equal(t, trackerT0, *session.CurrentQuestionStartedAt)
	require.InDelta(t, 20, session.PauseAccumulatedSeconds, 1e-9)
	require.False(t, session.IsPaused)
}

func TestUndoWithoutQuestionsIsNoop(t *testing.T) {
	store, tracker := newTrackerEnv(t)
	ctx := context.Background()

	_, err := tracker.ProcessEvent(ctx, 1, domain.EventNext, trackerT0)
	require.NoError(t, err)

	before, err := store.Sessions().GetActiveByUser(ctx, 1)
	require.NoError(t, err)

	result, err := tracker.ProcessEvent(ctx, 1, domain.EventUndo, trackerT0.Add(10*time.Second))
	require.NoError(t, err)
	require.Equal(t, "Nothing to undo.", result.Message)
	require.Zero(t, result.TotalQuestions)

	after, err := store.Sessions().GetActiveByUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, before.CurrentQuestionIndex, after.CurrentQuestionIndex)
	require.Equal(t, before.PauseAccumulatedSeconds, after.PauseAccumulatedSeconds)
}

func TestClockSkewClampsToZero(t *testing.T) {
	_, tracker := newTrackerEnv(t)
	ctx := context.Background()

	_, err := tracker.ProcessEvent(ctx, 1, domain.EventNext, trackerT0)
	require.NoError(t, err)

	// Client clock moved backwards between NEXT events.
	result, err := tracker.ProcessEvent(ctx, 1, domain.EventNext, trackerT0.Add(-10*time.Second))
	require.NoError(t, err)
	require.Zero(t, *result.LastQuestionRawSeconds)
	require.Zero(t, *result.LastQuestionActiveSeconds)
}

func TestActiveNeverExceedsRaw(t *testing.T) {
	store, tracker := newTrackerEnv(t)
	ctx := context.Background()

	ts := trackerT0
	_, err := tracker.ProcessEvent(ctx, 1, domain.EventNext, ts)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		ts = ts.Add(45 * time.Second)
		_, err = tracker.ProcessEvent(ctx, 1, domain.EventPause, ts)
		require.NoError(t, err)
		ts = ts.Add(15 * time.Second)
		_, err = tracker.ProcessEvent(ctx, 1, domain.EventPause, ts)
		require.NoError(t, err)
		ts = ts.Add(30 * time.Second)
		_, err = tracker.ProcessEvent(ctx, 1, domain.EventNext, ts)
		require.NoError(t, err)
	}

	session, err := store.Sessions().GetActiveByUser(ctx, 1)
	require.NoError(t, err)
	questions, err := store.Questions().ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, questions, 5)

	var raw, active float64
	for _, q := range questions {
		require.LessOrEqual(t, q.ActiveSeconds, q.RawSeconds)
		raw += q.RawSeconds
		active += q.ActiveSeconds
	}
	require.LessOrEqual(t, active, raw)
}

func TestDeleteQuestionRenumbers(t *testing.T) {
	store, tracker := newTrackerEnv(t)
	ctx := context.Background()

	_, err := tracker.ProcessEvent(ctx, 1, domain.EventNext, trackerT0)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err = tracker.ProcessEvent(ctx, 1, domain.EventNext, trackerT0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	session, err := store.Sessions().GetActiveByUser(ctx, 1)
	require.NoError(t, err)
	questions, err := store.Questions().ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, questions, 3)

	require.NoError(t, tracker.DeleteQuestion(ctx, 1, questions[1].ID))

	remaining, err := store.Questions().ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	require.Equal(t, 1, remaining[0].Index)
	require.Equal(t, 2, remaining[1].Index)
	require.True(t, remaining[0].StartedAt.Before(remaining[1].StartedAt))
}

func TestDeleteQuestionOwnershipEnforced(t *testing.T) {
	store, tracker := newTrackerEnv(t)
	ctx := context.Background()

	_, err := tracker.ProcessEvent(ctx, 1, domain.EventNext, trackerT0)
	require.NoError(t, err)
	_, err = tracker.ProcessEvent(ctx, 1, domain.EventNext, trackerT0.Add(time.Minute))
	require.NoError(t, err)

	session, err := store.Sessions().GetActiveByUser(ctx, 1)
	require.NoError(t, err)
	questions, err := store.Questions().ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, questions, 1)

	err = tracker.DeleteQuestion(ctx, 2, questions[0].ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
