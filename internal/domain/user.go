package domain

import (
	"strings"
	"time"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account that owns tracking sessions.
type User struct {
	ID                int64
	Email             string
	PasswordHash      string
	FirstName         string
	LastName          string
	Timezone          string
	IsActive          bool
	WantsReportEmails bool
	Role              string
	CreatedAt         time.Time
	LastLoginAt       *time.Time
}

// DisplayName returns the user's full name, falling back to the email address.
func (u User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Email
	}
	return name
}

// Location resolves the user's IANA timezone. Unknown or empty zones fall
// back to UTC so reads never fail on a bad profile value.
func (u User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ValidateTimezone reports whether name is a loadable IANA timezone. Used at
// the profile-update boundary; reads rely on the UTC fallback instead.
func ValidateTimezone(name string) bool {
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}
