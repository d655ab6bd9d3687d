package playback

import (
	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/shared"
)

// Match locates the playing track inside a shelf.
type Match struct {
	AlbumID string
	TrackID string
}

// NowPlaying returns the first album on shelf that contains current, or nil.
func NowPlaying(current *models.CurrentTrack, shelf models.Shelf) *Match {
	if current == nil || current.ID == "" {
		return nil
	}
	for _, album := range shelf.Albums {
		for _, track := range album.Tracks {
			if shared.SameID(track.ID, current.ID) {
				return &Match{AlbumID: album.ID, TrackID: track.ID}
			}
		}
	}
	return nil
}

// IsAlbumPlaying reports whether the playing track belongs to album.
func IsAlbumPlaying(current *models.CurrentTrack, album models.Album) bool {
	return NowPlaying(current, models.Shelf{Albums: []models.Album{album}}) != nil
}
