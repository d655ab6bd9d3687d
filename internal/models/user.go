package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/desertthunder/shelves/internal/shared"
)

// Preferences are the user-adjustable display settings.
type Preferences struct {
	Theme       string `json:"theme"`
	DefaultView string `json:"defaultView"`
	AutoPlay    bool   `json:"autoPlay"`
}

var (
	themes = []string{"dark", "light", "auto"}
	views  = []string{"grid", "list"}
)

// DefaultPreferences returns auto theme, grid view and no autoplay.
func DefaultPreferences() Preferences {
	return Preferences{Theme: "auto", DefaultView: "grid", AutoPlay: false}
}

// Validate rejects unknown enum values.
func (p Preferences) Validate() error {
	if !slices.Contains(themes, p.Theme) {
		return fmt.Errorf("%w: theme must be one of %v", shared.ErrInvalidPayload, themes)
	}
	if !slices.Contains(views, p.DefaultView) {
		return fmt.Errorf("%w: defaultView must be one of %v", shared.ErrInvalidPayload, views)
	}
	return nil
}

// Identity is the public view of a signed-in user.
type Identity struct {
	ID          string      `json:"id"`
	ExternalID  string      `json:"spotifyId"`
	Email       string      `json:"email"`
	DisplayName string      `json:"displayName"`
	ImageURL    string      `json:"imageUrl"`
	Preferences Preferences `json:"preferences"`
}

// User is a Spotify account known to the server.
type User struct {
	id             string
	sequence       int
	spotifyID      string
	email          string
	displayName    string
	imageURL       string
	accessToken    string
	refreshToken   string
	tokenExpiresAt time.Time
	preferences    Preferences
	createdAt      time.Time
	updatedAt      time.Time
	deletedAt      *time.Time
}

// NewUser creates a user for spotifyID with default preferences.
func NewUser(sequence int, spotifyID, email, displayName string) *User {
	now := time.Now()
	return &User{
		sequence:    sequence,
		spotifyID:   spotifyID,
		email:       email,
		displayName: displayName,
		preferences: DefaultPreferences(),
		createdAt:   now,
		updatedAt:   now,
	}
}

func (u *User) ID() string                { return u.id }
func (u *User) Sequence() int             { return u.sequence }
func (u *User) SpotifyID() string         { return u.spotifyID }
func (u *User) Email() string             { return u.email }
func (u *User) DisplayName() string       { return u.displayName }
func (u *User) ImageURL() string          { return u.imageURL }
func (u *User) AccessToken() string       { return u.accessToken }
func (u *User) RefreshToken() string      { return u.refreshToken }
func (u *User) TokenExpiresAt() time.Time { return u.tokenExpiresAt }
func (u *User) Preferences() Preferences  { return u.preferences }
func (u *User) CreatedAt() time.Time      { return u.createdAt }
func (u *User) UpdatedAt() time.Time      { return u.updatedAt }
func (u *User) DeletedAt() *time.Time     { return u.deletedAt }

func (u *User) SetID(id string)               { u.id = id }
func (u *User) SetSequence(seq int)           { u.sequence = seq }
func (u *User) SetEmail(email string)         { u.email = email }
func (u *User) SetDisplayName(name string)    { u.displayName = name }
func (u *User) SetImageURL(url string)        { u.imageURL = url }
func (u *User) SetPreferences(p Preferences)  { u.preferences = p }
func (u *User) SetCreatedAt(t time.Time)      { u.createdAt = t }
func (u *User) SetUpdatedAt(t time.Time)      { u.updatedAt = t }
func (u *User) SetDeletedAt(t *time.Time)     { u.deletedAt = t }
func (u *User) SetTokenExpiresAt(t time.Time) { u.tokenExpiresAt = t }
func (u *User) SetAccessToken(token string)   { u.accessToken = token }
func (u *User) SetRefreshToken(token string)  { u.refreshToken = token }

// SetTokens stores a token pair. An empty refresh token keeps the current one since Spotify
// omits it on most refresh responses.
func (u *User) SetTokens(access, refresh string, expiresAt time.Time) {
	u.accessToken = access
	if refresh != "" {
		u.refreshToken = refresh
	}
	u.tokenExpiresAt = expiresAt
}

// TokenExpiresWithin reports whether the access token is missing or expires inside d.
func (u *User) TokenExpiresWithin(d time.Duration, now time.Time) bool {
	if u.accessToken == "" || u.tokenExpiresAt.IsZero() {
		return true
	}
	return u.tokenExpiresAt.Before(now.Add(d))
}

// Identity returns the public view of u.
func (u *User) Identity() Identity {
	return Identity{
		ID:          u.id,
		ExternalID:  u.spotifyID,
		Email:       u.email,
		DisplayName: u.displayName,
		ImageURL:    u.imageURL,
		Preferences: u.preferences,
	}
}

// Validate checks required fields.
func (u *User) Validate() error {
	if u.id == "" {
		return fmt.Errorf("%w: user id is required", shared.ErrInvalidInput)
	}
	if u.spotifyID == "" {
		return fmt.Errorf("%w: spotify id is required", shared.ErrInvalidInput)
	}
	return u.preferences.Validate()
}
