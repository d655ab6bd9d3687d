package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/desertthunder/shelves/internal/collection"
	"github.com/desertthunder/shelves/internal/formatter"
	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/playback"
	"github.com/desertthunder/shelves/internal/shared"
	"github.com/urfave/cli/v3"
)

// player loads the shelves and a connected controller. Callers must defer stop.
func (r *Runner) player(ctx context.Context) (*collection.Manager, *playback.Controller, func(), error) {
	m, client, err := r.manager(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	c, stop, err := r.controller(ctx, client)
	if err != nil {
		return nil, nil, nil, err
	}
	return m, c, stop, nil
}

// findAlbum returns the first album across all shelves with id.
func findAlbum(shelves []models.Shelf, id string) (models.Album, bool) {
	for _, s := range shelves {
		if i := s.IndexOf(id); i >= 0 {
			return s.Albums[i], true
		}
	}
	return models.Album{}, false
}

// findTrack returns the first album on any shelf that holds the track.
func findTrack(shelves []models.Shelf, trackID string) (models.Album, int, bool) {
	for _, s := range shelves {
		for _, a := range s.Albums {
			if i := a.TrackIndex(trackID); i >= 0 {
				return a, i, true
			}
		}
	}
	return models.Album{}, -1, false
}

func (r *Runner) openFallback(fb *playback.Fallback) error {
	target := fb.Target()
	if target == "" {
		return fmt.Errorf("%w: nothing to open", shared.ErrDeviceNotReady)
	}
	r.writePlain("Opening %s\n", target)
	return r.open(target)
}

// PlayAlbum plays an album from the shelves, or toggles it when it is already playing.
//
// When no device can play it, the album's preview or web page is opened instead.
func (r *Runner) PlayAlbum(ctx context.Context, cmd *cli.Command) error {
	id, err := albumRef(cmd.StringArg("album"))
	if err != nil {
		return err
	}

	m, c, stop, err := r.player(ctx)
	if err != nil {
		return err
	}
	defer stop()

	album, ok := findAlbum(m.Shelves(), id)
	if !ok {
		return fmt.Errorf("%w: %s is not on any shelf", shared.ErrAlbumNotFound, id)
	}

	if _, err := r.awaitReady(ctx, c); err != nil {
		r.logger.Warn("player not ready", "error", err)
	}
	if fb := c.PlayAlbumFromShelf(ctx, album); fb != nil {
		return r.openFallback(fb)
	}
	return r.writePlain("▶ %s - %s\n", album.Artists, album.Name)
}

// PlayTrack plays one track with its album as the queue.
func (r *Runner) PlayTrack(ctx context.Context, cmd *cli.Command) error {
	id := shared.NormalizeID(cmd.StringArg("track"))
	if id == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	m, c, stop, err := r.player(ctx)
	if err != nil {
		return err
	}
	defer stop()

	album, i, ok := findTrack(m.Shelves(), id)
	if !ok {
		return fmt.Errorf("%w: track %s is not on any shelf", shared.ErrAlbumNotFound, id)
	}
	track := album.Tracks[i]

	if _, err := r.awaitReady(ctx, c); err == nil && c.PlayTrack(ctx, track.ID, album.Tracks) {
		return r.writePlain("▶ %s - %s\n", track.Artists, track.Name)
	}

	fb := &playback.Fallback{PreviewURL: track.Preview(), ExternalURL: track.ExternalURL, URI: track.URI()}
	return r.openFallback(fb)
}

// PlayToggle pauses or resumes the device.
func (r *Runner) PlayToggle(ctx context.Context, cmd *cli.Command) error {
	_, c, stop, err := r.player(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if _, err := r.awaitReady(ctx, c); err != nil {
		return err
	}
	r.awaitTrack(ctx, c)
	if !c.TogglePlayPause(ctx) {
		return fmt.Errorf("%w: toggle failed", shared.ErrAPIRequest)
	}
	if c.State().IsPlaying {
		return r.writePlain("▶ Playing\n")
	}
	return r.writePlain("⏸ Paused\n")
}

// PlayNext skips forward within the current album.
func (r *Runner) PlayNext(ctx context.Context, cmd *cli.Command) error {
	return r.step(ctx, 1)
}

// PlayPrev goes back within the current album.
func (r *Runner) PlayPrev(ctx context.Context, cmd *cli.Command) error {
	return r.step(ctx, -1)
}

// step moves delta tracks through the album holding the current track.
//
// A fresh controller has no queue, so the album is looked up on the shelves.
func (r *Runner) step(ctx context.Context, delta int) error {
	m, c, stop, err := r.player(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if _, err := r.awaitReady(ctx, c); err != nil {
		return err
	}
	st := r.awaitTrack(ctx, c)
	if st.CurrentTrack == nil {
		return fmt.Errorf("%w: nothing is playing", shared.ErrInvalidArgument)
	}

	album, i, ok := findTrack(m.Shelves(), st.CurrentTrack.ID)
	if !ok {
		return fmt.Errorf("%w: %s is not from an album on your shelves", shared.ErrInvalidArgument, st.CurrentTrack.Name)
	}
	j := i + delta
	if j < 0 || j >= len(album.Tracks) {
		return r.writePlain("No more tracks on %s\n", album.Name)
	}

	next := album.Tracks[j]
	if !c.PlayTrack(ctx, next.ID, album.Tracks) {
		return fmt.Errorf("%w: could not play %s", shared.ErrAPIRequest, next.Name)
	}
	return r.writePlain("▶ %s\n", next.Name)
}

// PlaySeek moves the playhead to a position in milliseconds.
func (r *Runner) PlaySeek(ctx context.Context, cmd *cli.Command) error {
	raw := cmd.StringArg("ms")
	if raw == "" {
		return fmt.Errorf("%w: position in milliseconds", shared.ErrMissingArgument)
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms < 0 {
		return fmt.Errorf("%w: position must be a non-negative integer, got %q", shared.ErrInvalidArgument, raw)
	}

	_, c, stop, err := r.player(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if _, err := r.awaitReady(ctx, c); err != nil {
		return err
	}
	if !c.Seek(ctx, ms) {
		return fmt.Errorf("%w: seek failed", shared.ErrAPIRequest)
	}
	return r.writePlain("⏩ %s\n", formatter.FormatDuration(ms))
}

// PlayStatus shows the device state and the current track.
func (r *Runner) PlayStatus(ctx context.Context, cmd *cli.Command) error {
	m, c, stop, err := r.player(ctx)
	if err != nil {
		return err
	}
	defer stop()

	st, err := r.awaitReady(ctx, c)
	if err == nil {
		st = r.awaitTrack(ctx, c)
	}

	if cmd.Bool("json") {
		return r.writeJSON(st, cmd.Bool("pretty"))
	}
	if !st.IsReady {
		return r.writePlain("No Spotify device available\n")
	}
	r.writePlain("Device: %s (%s)\n", st.DeviceID, c.Status())
	if st.CurrentTrack == nil {
		return r.writePlain("Nothing playing\n")
	}

	t := st.CurrentTrack
	r.writePlain("Track: %s - %s\n", t.Artists, t.Name)
	if t.AlbumName != "" {
		r.writePlain("Album: %s\n", t.AlbumName)
	}
	r.writePlain("Position: %s / %s\n", formatter.FormatDuration(st.PositionMS), formatter.FormatDuration(st.DurationMS))
	if album, _, ok := findTrack(m.Shelves(), t.ID); ok {
		r.writePlain("From your shelves: %s\n", album.Name)
	}
	return nil
}

// awaitTrack gives the first state poll a chance to report the current track.
func (r *Runner) awaitTrack(ctx context.Context, c *playback.Controller) models.PlaybackState {
	wait := 2 * r.config.Player.PollInterval()
	st, _, err := r.awaitState(ctx, c, wait, func(st models.PlaybackState) bool { return st.CurrentTrack != nil })
	if err != nil {
		r.logger.Debug("no track reported", "error", err)
	}
	return st
}
