package playback

import (
	"context"

	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/services"
)

// PlayerAPI is the subset of the Connect player endpoints the playback core drives.
//
// Every call returns the HTTP status so callers can branch on 204, 403 and 404.
// [services.PlayerClient] implements it.
type PlayerAPI interface {
	State(ctx context.Context) (*services.SpotifyPlayerState, int, error)
	Devices(ctx context.Context) ([]services.SpotifyDevice, error)
	Transfer(ctx context.Context, deviceID string, play bool) (int, error)
	Play(ctx context.Context, deviceID string, req services.PlayRequest) (int, error)
	Resume(ctx context.Context, deviceID string) (int, error)
	Pause(ctx context.Context, deviceID string) (int, error)
	Seek(ctx context.Context, deviceID string, positionMS int) (int, error)
}

// EventKind enumerates session events.
type EventKind int

const (
	EventReady EventKind = iota
	EventNotReady
	EventAuthError
	EventAccountError
	EventPlaybackError
	EventStateChanged
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventNotReady:
		return "not_ready"
	case EventAuthError:
		return "authentication_error"
	case EventAccountError:
		return "account_error"
	case EventPlaybackError:
		return "playback_error"
	case EventStateChanged:
		return "state_changed"
	default:
		return ""
	}
}

// PlayerState is the translated vendor playback state carried by state_changed events.
type PlayerState struct {
	DeviceID     string
	IsPlaying    bool
	CurrentTrack *models.CurrentTrack
	PositionMS   int
	DurationMS   int
	ContextURI   string
}

// Event is emitted by [Session]. State is only set for state_changed and may be nil, which
// consumers treat as "no change".
type Event struct {
	Kind     EventKind
	DeviceID string
	State    *PlayerState
	Err      error
}

// Status is the controller's lifecycle state.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Ready
	Playing
	Paused
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return ""
	}
}

// Translate maps the vendor player state into a [PlayerState]. A nil input yields nil.
func Translate(raw *services.SpotifyPlayerState) *PlayerState {
	if raw == nil {
		return nil
	}

	state := &PlayerState{
		DeviceID:   raw.Device.ID,
		IsPlaying:  raw.IsPlaying,
		PositionMS: raw.ProgressMS,
	}
	if raw.Context != nil {
		state.ContextURI = raw.Context.URI
	}

	if item := raw.Item; item != nil {
		track := &models.CurrentTrack{
			ID:      item.ID,
			Name:    item.Name,
			Artists: services.JoinArtists(item.Artists),
		}
		if item.Album != nil {
			track.AlbumName = item.Album.Name
			if len(item.Album.Images) > 0 {
				track.ImageURL = item.Album.Images[0].URL
			}
		}
		state.CurrentTrack = track
		state.DurationMS = item.DurationMS
	}
	return state
}
