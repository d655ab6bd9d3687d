package playback

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/desertthunder/shelves/internal/models"
)

func TestNowPlaying(t *testing.T) {
	shelf := models.Shelf{Albums: []models.Album{
		{ID: "A", Tracks: []models.Track{{ID: "a1"}, {ID: "a2"}}},
		{ID: "B", Tracks: []models.Track{{ID: "b1"}, {ID: "shared"}}},
		{ID: "C", Tracks: []models.Track{{ID: "shared"}}},
	}}

	tests := []struct {
		name    string
		current *models.CurrentTrack
		want    *Match
	}{
		{"nothing playing", nil, nil},
		{"empty id", &models.CurrentTrack{}, nil},
		{"plain id", &models.CurrentTrack{ID: "a2"}, &Match{AlbumID: "A", TrackID: "a2"}},
		{"uri form", &models.CurrentTrack{ID: "spotify:track:b1"}, &Match{AlbumID: "B", TrackID: "b1"}},
		{"first album wins", &models.CurrentTrack{ID: "shared"}, &Match{AlbumID: "B", TrackID: "shared"}},
		{"not on shelf", &models.CurrentTrack{ID: "zzz"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NowPlaying(tt.current, shelf)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("expected no match, got %+v", got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("NowPlaying() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPlayAlbumFromShelf(t *testing.T) {
	ctx := context.Background()
	preview := "https://p.scdn.co/mp3-preview/t2"
	album := models.Album{
		ID: "A", Name: "Alpha", ExternalURL: "https://open.spotify.com/album/A", URI: "spotify:album:A",
		Tracks: []models.Track{{ID: "t1"}, {ID: "t2", PreviewURL: &preview}, {ID: "t3"}},
	}

	t.Run("Not ready falls back to a preview", func(t *testing.T) {
		c := NewController(newTestSession(newFakePlayer("dev-1"), ""), ControllerOpts{})

		fb := c.PlayAlbumFromShelf(ctx, album)
		if fb == nil || fb.Target() != preview {
			t.Errorf("expected preview fallback, got %+v", fb)
		}
	})

	t.Run("Plays a different album from the start", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		c, _ := newReadyController(t, api)

		if fb := c.PlayAlbumFromShelf(ctx, album); fb != nil {
			t.Fatalf("expected the player to handle it, got %+v", fb)
		}
		if st := c.State(); st.CurrentTrack.ID != "t1" || len(api.Plays()[0].URIs) != 3 {
			t.Errorf("expected album playback from t1, got %+v", st)
		}
	})

	t.Run("Current album toggles", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		c, _ := newReadyController(t, api)
		c.PlayTrack(ctx, "t2", album.Tracks)

		c.PlayAlbumFromShelf(ctx, album)
		if c.State().IsPlaying {
			t.Error("expected playing album to pause")
		}
		c.PlayAlbumFromShelf(ctx, album)
		if !c.State().IsPlaying {
			t.Error("expected paused album to resume")
		}
		if n := len(api.Plays()); n != 1 {
			t.Errorf("expected no new play requests, got %d", n)
		}
	})

	t.Run("Falls back to the first track", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		api.playStatuses = []int{http.StatusInternalServerError}
		c, _ := newReadyController(t, api)

		if fb := c.PlayAlbumFromShelf(ctx, album); fb != nil {
			t.Fatalf("expected first-track playback, got %+v", fb)
		}
		plays := api.Plays()
		if len(plays) != 2 || len(plays[1].URIs) != 1 || plays[1].URIs[0] != "spotify:track:t1" {
			t.Errorf("unexpected play requests %+v", plays)
		}
	})

	t.Run("First track fallback skips a second activation", func(t *testing.T) {
		api := newFakePlayer("phone")
		api.transferActivate = false
		c, _ := newReadyController(t, api)
		c.activator.Sleep = func(context.Context, time.Duration) error { return nil }
		api.playStatuses = []int{http.StatusInternalServerError}
		before := api.count("transfer")

		if fb := c.PlayAlbumFromShelf(ctx, album); fb != nil {
			t.Fatalf("expected first-track playback, got %+v", fb)
		}
		if n := api.count("transfer") - before; n != 1 {
			t.Errorf("expected a single activation transfer, got %d", n)
		}
		if n := len(api.Plays()); n != 2 {
			t.Errorf("expected album then track play, got %d", n)
		}
	})

	t.Run("Both fail", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		api.playStatuses = []int{500, 500}
		c, _ := newReadyController(t, api)

		noPreview := album
		noPreview.Tracks = []models.Track{{ID: "t1"}}
		fb := c.PlayAlbumFromShelf(ctx, noPreview)
		if fb == nil || fb.Target() != album.ExternalURL {
			t.Errorf("expected external link fallback, got %+v", fb)
		}
	})
}
