package domain

import "time"

// EventType is a client-submitted tracking event.
type EventType string

const (
	EventNext  EventType = "NEXT"
	EventPause EventType = "PAUSE"
	EventExit  EventType = "EXIT"
	EventUndo  EventType = "UNDO"
)

// Valid reports whether t is one of the four known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventNext, EventPause, EventExit, EventUndo:
		return true
	}
	return false
}

// Session is one tracking session. At most one session per user may be
// active; the schema enforces this with a unique partial index and the
// service serializes mutations per user.
type Session struct {
	ID                       int64
	PublicID                 string
	UserID                   int64
	StartedAt                time.Time
	EndedAt                  *time.Time
	IsActive                 bool
	TargetMinutesPerQuestion float64
	CurrentQuestionIndex     int
	CurrentQuestionStartedAt *time.Time
	PauseAccumulatedSeconds  float64
	IsPaused                 bool
	PauseStartedAt           *time.Time
}

// Question is one closed question within a session. Index is 1-based and not
// guaranteed dense after deletions until renumbered.
type Question struct {
	ID            int64
	SessionID     int64
	Index         int
	StartedAt     time.Time
	EndedAt       time.Time
	RawSeconds    float64
	ActiveSeconds float64
}

// IsGhost reports whether q is a spurious zero-duration first question.
// Ghosts are a client-side artifact and are excluded from every aggregate.
func (q Question) IsGhost() bool {
	return q.Index == 1 &&
		q.RawSeconds == 0 &&
		q.ActiveSeconds == 0 &&
		q.StartedAt.Equal(q.EndedAt)
}

// Event is one append-only audit log entry. Events are never replayed to
// reconstruct session state.
type Event struct {
	ID        int64
	SessionID int64
	Type      EventType
	Timestamp time.Time
}
