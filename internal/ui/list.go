package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/shelves/internal/formatter"
	"github.com/desertthunder/shelves/internal/models"
)

var (
	_ list.Item = shelfItem{}
	_ list.Item = albumItem{}
	_ list.Item = trackItem{}
)

const playingMark = "▶ "

// shelfItem wraps [models.Shelf] to implement [list.Item].
type shelfItem struct {
	shelf   models.Shelf
	playing bool
}

func (i shelfItem) FilterValue() string { return i.shelf.Name }
func (i shelfItem) Title() string {
	if i.playing {
		return styles.playing.Render(playingMark + i.shelf.Name)
	}
	return i.shelf.Name
}
func (i shelfItem) Description() string {
	if len(i.shelf.Albums) == 1 {
		return "1 album"
	}
	return fmt.Sprintf("%d albums", len(i.shelf.Albums))
}

// albumItem wraps [models.Album] to implement [list.Item].
type albumItem struct {
	album   models.Album
	playing bool
}

func (i albumItem) FilterValue() string { return i.album.Name + " " + i.album.Artists }
func (i albumItem) Title() string {
	if i.playing {
		return styles.playing.Render(playingMark + i.album.Name)
	}
	return i.album.Name
}
func (i albumItem) Description() string {
	desc := i.album.Artists
	if year := i.album.Year(); year != "" {
		desc = fmt.Sprintf("%s • %s", desc, year)
	}
	return desc
}

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track   models.Track
	playing bool
}

func (i trackItem) FilterValue() string { return i.track.Name }
func (i trackItem) Title() string {
	title := fmt.Sprintf("%d. %s", i.track.TrackNumber, i.track.Name)
	if i.playing {
		return styles.playing.Render(playingMark + title)
	}
	return title
}
func (i trackItem) Description() string {
	return fmt.Sprintf("%s • %s", i.track.Artists, formatter.FormatDuration(i.track.DurationMS))
}
