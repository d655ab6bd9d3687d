package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Playback errors
	ErrDeviceNotReady   = fmt.Errorf("playback device not ready")
	ErrActivationFailed = fmt.Errorf("device activation failed")
	ErrPlayerBusy       = fmt.Errorf("player busy")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrStoreUnavailable   = fmt.Errorf("store unavailable")
	ErrAlbumNotFound      = fmt.Errorf("album not found")
	ErrShelfNotFound      = fmt.Errorf("shelf not found")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrSessionNotFound    = fmt.Errorf("session not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrInvalidAlbumURL = fmt.Errorf("invalid Spotify album URL")
	ErrInvalidPayload  = fmt.Errorf("invalid payload")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
