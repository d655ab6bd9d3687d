package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/shelves/internal/formatter"
	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/shared"
	"github.com/urfave/cli/v3"
)

// AlbumFetch resolves a Spotify album link through the server.
func (r *Runner) AlbumFetch(ctx context.Context, cmd *cli.Command) error {
	link := cmd.StringArg("url")
	if link == "" {
		return fmt.Errorf("%w: album URL", shared.ErrMissingArgument)
	}

	client, err := r.client()
	if err != nil {
		return err
	}

	r.logger.Debug("fetching album", "url", link)
	album, err := client.FetchAlbum(ctx, link)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(album, cmd.Bool("pretty"))
	}
	r.writeAlbum(*album)
	return nil
}

func (r *Runner) writeAlbum(album models.Album) {
	r.writePlainHeader(fmt.Sprintf("%s - %s", album.Artists, album.Name))
	if year := album.Year(); year != "" {
		r.writePlain("Released: %s\n", year)
	}
	if album.Label != "" {
		r.writePlain("Label: %s\n", album.Label)
	}
	if len(album.Genres) > 0 {
		r.writePlain("Genres: %s\n", strings.Join(album.Genres, ", "))
	}
	r.writePlain("ID: %s\n", album.ID)
	if album.ExternalURL != "" {
		r.writePlain("Listen: %s\n", album.ExternalURL)
	}
	r.writePlain("\n")
	for i, t := range album.Tracks {
		num := t.TrackNumber
		if num == 0 {
			num = i + 1
		}
		r.writePlain("%3d. %s [%s]\n", num, t.Name, formatter.FormatDuration(t.DurationMS))
	}
}
