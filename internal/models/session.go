package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/shelves/internal/shared"
)

// SessionTTL is how long a browser or CLI session stays valid.
const SessionTTL = 30 * 24 * time.Hour

// Session binds a cookie id to a signed-in user. Identity is a snapshot taken at login and is used
// when the user row cannot be read.
type Session struct {
	ID        string
	UserID    string
	SpotifyID string
	Identity  Identity
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewSession creates a session for user that expires after [SessionTTL].
func NewSession(id string, user *User, now time.Time) Session {
	return Session{
		ID:        id,
		UserID:    user.ID(),
		SpotifyID: user.SpotifyID(),
		Identity:  user.Identity(),
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: session id is required", shared.ErrInvalidInput)
	}
	if s.SpotifyID == "" {
		return fmt.Errorf("%w: session has no spotify id", shared.ErrInvalidInput)
	}
	if s.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: session has no expiry", shared.ErrInvalidInput)
	}
	return nil
}
