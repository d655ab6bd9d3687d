package playback

import (
	"context"

	"github.com/desertthunder/shelves/internal/models"
)

// Fallback is what to open instead when the full player can't play an album.
type Fallback struct {
	PreviewURL  string
	ExternalURL string
	URI         string
}

// Target returns the best link to open: the preview, then the web page, then the URI.
func (f Fallback) Target() string {
	switch {
	case f.PreviewURL != "":
		return f.PreviewURL
	case f.ExternalURL != "":
		return f.ExternalURL
	default:
		return f.URI
	}
}

// FallbackFor builds the links to open when album can't play on the device.
func FallbackFor(album models.Album) *Fallback {
	fb := &Fallback{ExternalURL: album.ExternalURL, URI: album.URI}
	for _, t := range album.Tracks {
		if p := t.Preview(); p != "" {
			fb.PreviewURL = p
			break
		}
	}
	if fb.ExternalURL == "" && len(album.Tracks) > 0 {
		fb.ExternalURL = album.Tracks[0].ExternalURL
	}
	return fb
}

// PlayAlbumFromShelf is the shelf's play button.
//
// The current album toggles between pause and resume. Any other album plays from the start,
// falling back to its first track on the already activated device. A nil result means the player
// handled it.
func (c *Controller) PlayAlbumFromShelf(ctx context.Context, album models.Album) *Fallback {
	st := c.State()
	if !st.IsReady {
		return FallbackFor(album)
	}

	if IsAlbumPlaying(st.CurrentTrack, album) {
		if c.TogglePlayPause(ctx) {
			return nil
		}
		return FallbackFor(album)
	}

	if len(album.Tracks) == 0 {
		return FallbackFor(album)
	}
	if c.PlayAlbum(ctx, album.TrackIDs(), album.Tracks) {
		return nil
	}
	c.logger.Warn("album playback failed, trying first track", "album_id", album.ID)
	if c.playTrackActivated(ctx, album.Tracks[0].ID, album.Tracks) {
		return nil
	}
	return FallbackFor(album)
}
