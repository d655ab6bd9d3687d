package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/shelves/internal/shared"
)

// Image is album artwork at one resolution.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Track is immutable once fetched.
type Track struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	DurationMS  int     `json:"durationMs"`
	TrackNumber int     `json:"trackNumber"`
	Artists     string  `json:"artists"`
	PreviewURL  *string `json:"previewUrl"`
	ExternalURL string  `json:"externalUrl"`
}

// URI returns the spotify:track: form of the track id.
func (t Track) URI() string {
	return shared.TrackURI(t.ID)
}

// Preview returns the preview URL or "".
func (t Track) Preview() string {
	if t.PreviewURL == nil {
		return ""
	}
	return *t.PreviewURL
}

// Album is replaced as a whole record, never edited in place.
type Album struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Artists     string    `json:"artists"`
	Images      []Image   `json:"images"`
	ExternalURL string    `json:"externalUrl"`
	URI         string    `json:"uri,omitempty"`
	ReleaseDate string    `json:"releaseDate"`
	TotalTracks int       `json:"totalTracks"`
	Genres      []string  `json:"genres"`
	Label       string    `json:"label"`
	Popularity  int       `json:"popularity"`
	Tracks      []Track   `json:"tracks"`
	AddedAt     time.Time `json:"addedAt,omitzero"`
}

// Validate rejects records the rest of the system can't safely index.
func (a Album) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: album id is required", shared.ErrInvalidPayload)
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: album %s has no name", shared.ErrInvalidPayload, a.ID)
	}
	if a.Popularity < 0 || a.Popularity > 100 {
		return fmt.Errorf("%w: album %s popularity %d out of range", shared.ErrInvalidPayload, a.ID, a.Popularity)
	}
	for i, t := range a.Tracks {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("%w: album %s track %d has no id", shared.ErrInvalidPayload, a.ID, i)
		}
	}
	return nil
}

// TrackIDs returns the album's track ids in order.
func (a Album) TrackIDs() []string {
	ids := make([]string, len(a.Tracks))
	for i, t := range a.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// TrackIndex returns the index of the track with a matching normalized id, or -1.
func (a Album) TrackIndex(trackID string) int {
	for i, t := range a.Tracks {
		if shared.SameID(t.ID, trackID) {
			return i
		}
	}
	return -1
}

// Cover returns the largest image URL, or "" when the album has no artwork.
func (a Album) Cover() string {
	best := -1
	for i, img := range a.Images {
		if best < 0 || img.Width*img.Height > a.Images[best].Width*a.Images[best].Height {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return a.Images[best].URL
}

// Year returns the first four characters of the release date.
func (a Album) Year() string {
	if len(a.ReleaseDate) >= 4 {
		return a.ReleaseDate[:4]
	}
	return a.ReleaseDate
}
