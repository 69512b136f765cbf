package domain

import "errors"

var (
	// ErrInvalidState rejects an event that is incompatible with the current
	// session state, e.g. PAUSE with no active session.
	ErrInvalidState = errors.New("invalid session state for event")

	// ErrNotFound signals a missing or foreign session/question/user.
	ErrNotFound = errors.New("not found")

	// ErrValidation signals malformed client input (date, timezone, body).
	ErrValidation = errors.New("validation failed")

	// ErrLockedOut signals a throttled login attempt.
	ErrLockedOut = errors.New("too many login attempts")

	// ErrInvalidCredentials signals a failed email/password check.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
