package models

import "slices"

// CurrentTrack is the minimal description of what the device is playing.
type CurrentTrack struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Artists   string `json:"artists"`
	AlbumName string `json:"albumName"`
	ImageURL  string `json:"imageUrl"`
}

// PlaybackState is owned by the playback controller and handed out as value snapshots.
//
// ContextTracks drives next/prev and persists until a later play call replaces it.
type PlaybackState struct {
	IsReady       bool          `json:"isReady"`
	DeviceID      string        `json:"deviceId"`
	IsPlaying     bool          `json:"isPlaying"`
	CurrentTrack  *CurrentTrack `json:"currentTrack"`
	PositionMS    int           `json:"positionMs"`
	DurationMS    int           `json:"durationMs"`
	ContextTracks []Track       `json:"contextTracks"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (p PlaybackState) Clone() PlaybackState {
	if p.CurrentTrack != nil {
		ct := *p.CurrentTrack
		p.CurrentTrack = &ct
	}
	p.ContextTracks = slices.Clone(p.ContextTracks)
	return p
}
