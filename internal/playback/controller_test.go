package playback

import (
	"context"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/desertthunder/shelves/internal/models"
	tu "github.com/desertthunder/shelves/internal/testing"
	"golang.org/x/oauth2"
)

var testTracks = []models.Track{
	{ID: "t1", Name: "First"},
	{ID: "t2", Name: "Second"},
	{ID: "t3", Name: "Third"},
}

// newReadyController returns a controller whose session is live on dev-1 and already active.
func newReadyController(t *testing.T, api *fakePlayer) (*Controller, *tu.RecordingSleeper) {
	t.Helper()
	s := newTestSession(api, "")
	sleeper := &tu.RecordingSleeper{}
	c := NewController(s, ControllerOpts{Sleep: sleeper.Sleep})

	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"})
	if err := c.Connect(context.Background(), tokens); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	c.handle(Event{Kind: EventReady, DeviceID: s.DeviceID()})
	t.Cleanup(c.Disconnect)
	return c, sleeper
}

func TestControllerPlayTrack(t *testing.T) {
	ctx := context.Background()

	t.Run("Plays the track URI on the device", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		c, _ := newReadyController(t, api)

		if !c.PlayTrack(ctx, "t2", testTracks) {
			t.Fatal("expected PlayTrack to succeed")
		}

		plays := api.Plays()
		if len(plays) != 1 || !slices.Equal(plays[0].URIs, []string{"spotify:track:t2"}) {
			t.Errorf("unexpected play requests %+v", plays)
		}
		st := c.State()
		if !st.IsPlaying || st.CurrentTrack == nil || st.CurrentTrack.ID != "t2" || st.CurrentTrack.Name != "Second" {
			t.Errorf("unexpected state %+v", st)
		}
		if len(st.ContextTracks) != 3 || c.Status() != Playing {
			t.Errorf("expected three context tracks while playing, got %d / %v", len(st.ContextTracks), c.Status())
		}
	})

	t.Run("Not ready", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		c := NewController(newTestSession(api, ""), ControllerOpts{})

		if c.PlayTrack(ctx, "t1", testTracks) {
			t.Error("expected false when not ready")
		}
		if len(api.Plays()) != 0 {
			t.Error("expected no play request")
		}
	})

	t.Run("Non-2xx response fails", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		api.playStatuses = []int{http.StatusForbidden}
		c, _ := newReadyController(t, api)

		if c.PlayTrack(ctx, "t1", nil) {
			t.Error("expected false on 403")
		}
		if c.State().IsPlaying {
			t.Error("state should not flip to playing")
		}
	})
}

func TestControllerPlayAlbum(t *testing.T) {
	ctx := context.Background()
	ids := []string{"t1", "t2", "t3"}

	t.Run("Restarts from the first track", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		c, sleeper := newReadyController(t, api)

		// Playback was in the middle of the album.
		c.PlayTrack(ctx, "t3", testTracks)
		c.Seek(ctx, 90000)

		if !c.PlayAlbum(ctx, ids, testTracks) {
			t.Fatal("expected PlayAlbum to succeed")
		}

		plays := api.Plays()
		req := plays[len(plays)-1]
		if !slices.Equal(req.URIs, []string{"spotify:track:t1", "spotify:track:t2", "spotify:track:t3"}) {
			t.Errorf("unexpected uris %v", req.URIs)
		}
		if req.Offset == nil || req.Offset.Position == nil || *req.Offset.Position != 0 {
			t.Errorf("expected offset position 0, got %+v", req.Offset)
		}
		if req.PositionMS == nil || *req.PositionMS != 0 {
			t.Errorf("expected position_ms 0, got %v", req.PositionMS)
		}

		st := c.State()
		if st.CurrentTrack.ID != "t1" || st.PositionMS != 0 {
			t.Errorf("expected t1 at 0ms, got %+v", st)
		}
		if len(sleeper.Recorded()) != 0 {
			t.Errorf("expected no retry waits, got %v", sleeper.Recorded())
		}
	})

	t.Run("Retries 403 and 404 with a growing delay", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		api.playStatuses = []int{http.StatusForbidden, http.StatusNotFound}
		c, sleeper := newReadyController(t, api)

		if !c.PlayAlbum(ctx, ids, testTracks) {
			t.Fatal("expected PlayAlbum to succeed on the third try")
		}
		if n := len(api.Plays()); n != 3 {
			t.Errorf("expected 3 play requests, got %d", n)
		}
		want := []time.Duration{500 * time.Millisecond, 800 * time.Millisecond}
		if got := sleeper.Recorded(); !slices.Equal(got, want) {
			t.Errorf("delays = %v, want %v", got, want)
		}
	})

	t.Run("Gives up after three retries", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		api.playStatuses = []int{403, 403, 403, 403, 403}
		c, sleeper := newReadyController(t, api)

		if c.PlayAlbum(ctx, ids, testTracks) {
			t.Fatal("expected PlayAlbum to fail")
		}
		if n := len(api.Plays()); n != 4 {
			t.Errorf("expected 4 play requests, got %d", n)
		}
		want := []time.Duration{500 * time.Millisecond, 800 * time.Millisecond, 1100 * time.Millisecond}
		if got := sleeper.Recorded(); !slices.Equal(got, want) {
			t.Errorf("delays = %v, want %v", got, want)
		}
	})

	t.Run("Other failures are not retried", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		api.playStatuses = []int{http.StatusInternalServerError}
		c, _ := newReadyController(t, api)

		if c.PlayAlbum(ctx, ids, testTracks) {
			t.Fatal("expected PlayAlbum to fail")
		}
		if n := len(api.Plays()); n != 1 {
			t.Errorf("expected 1 play request, got %d", n)
		}
	})

	t.Run("Empty album", func(t *testing.T) {
		c, _ := newReadyController(t, newFakePlayer("dev-1"))
		if c.PlayAlbum(ctx, nil, nil) {
			t.Error("expected false for no tracks")
		}
	})
}

func TestControllerNavigation(t *testing.T) {
	ctx := context.Background()

	t.Run("Next from t2 plays t3", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		c, _ := newReadyController(t, api)
		c.PlayTrack(ctx, "t2", testTracks)

		if !c.CanGoNext() || !c.CanGoPrev() {
			t.Fatal("expected both directions available from t2")
		}
		if !c.NextTrack(ctx) {
			t.Fatal("expected NextTrack to succeed")
		}

		plays := api.Plays()
		if got := plays[len(plays)-1].URIs; !slices.Equal(got, []string{"spotify:track:t3"}) {
			t.Errorf("expected t3, got %v", got)
		}
		if st := c.State(); st.CurrentTrack.ID != "t3" || len(st.ContextTracks) != 3 {
			t.Errorf("expected t3 with context kept, got %+v", st)
		}
	})

	t.Run("Boundaries", func(t *testing.T) {
		tests := []struct {
			name     string
			current  string
			wantPrev bool
			wantNext bool
		}{
			{"first track", "t1", false, true},
			{"middle track", "t2", true, true},
			{"last track", "t3", true, false},
			{"track outside the context", "t9", false, false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				api := newFakePlayer("dev-1")
				c, _ := newReadyController(t, api)
				c.PlayTrack(ctx, tt.current, testTracks)
				before := len(api.Plays())

				if c.CanGoPrev() != tt.wantPrev || c.CanGoNext() != tt.wantNext {
					t.Errorf("CanGoPrev/Next = %v/%v, want %v/%v", c.CanGoPrev(), c.CanGoNext(), tt.wantPrev, tt.wantNext)
				}
				if got := c.PrevTrack(ctx); got != tt.wantPrev {
					t.Errorf("PrevTrack() = %v, want %v", got, tt.wantPrev)
				}

				c.PlayTrack(ctx, tt.current, nil)
				if got := c.NextTrack(ctx); got != tt.wantNext {
					t.Errorf("NextTrack() = %v, want %v", got, tt.wantNext)
				}

				extra := 1
				if tt.wantPrev {
					extra++
				}
				if tt.wantNext {
					extra++
				}
				if n := len(api.Plays()) - before; n != extra {
					t.Errorf("expected %d play requests, got %d", extra, n)
				}
			})
		}
	})

	t.Run("Ids are normalized", func(t *testing.T) {
		c, _ := newReadyController(t, newFakePlayer("dev-1"))
		c.PlayTrack(ctx, "spotify:track:t1", testTracks)

		if !c.CanGoNext() {
			t.Error("expected a URI-form current id to match the context")
		}
	})

	t.Run("Nothing playing", func(t *testing.T) {
		c, _ := newReadyController(t, newFakePlayer("dev-1"))
		if c.CanGoNext() || c.CanGoPrev() || c.NextTrack(ctx) || c.PrevTrack(ctx) {
			t.Error("expected navigation to be unavailable")
		}
	})
}

func TestControllerToggleAndSeek(t *testing.T) {
	ctx := context.Background()
	api := newFakePlayer("dev-1")
	c, _ := newReadyController(t, api)
	c.PlayTrack(ctx, "t1", testTracks)

	if !c.TogglePlayPause(ctx) || c.State().IsPlaying || c.Status() != Paused {
		t.Fatal("expected toggle to pause")
	}
	if !c.TogglePlayPause(ctx) || !c.State().IsPlaying {
		t.Fatal("expected toggle to resume")
	}
	if api.count("pause dev-1") != 1 || api.count("resume dev-1") != 1 {
		t.Errorf("unexpected calls %v", api.Calls())
	}

	if !c.Seek(ctx, 4500) || c.State().PositionMS != 4500 {
		t.Error("expected seek to update position")
	}
	if c.Seek(ctx, -5) {
		t.Error("expected negative seek to fail")
	}

	c.Disconnect()
	if c.TogglePlayPause(ctx) {
		t.Error("expected toggle to fail once disconnected")
	}
}

func TestControllerConcurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("Busy flag drops overlapping requests", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		c, _ := newReadyController(t, api)
		api.playGate = make(chan struct{})
		api.playEntered = make(chan struct{}, 1)

		done := make(chan bool)
		go func() { done <- c.PlayTrack(ctx, "t1", testTracks) }()
		<-api.playEntered

		if c.PlayAlbum(ctx, []string{"t1", "t2"}, testTracks) {
			t.Error("expected the overlapping request to be dropped")
		}
		if c.NextTrack(ctx) {
			t.Error("expected navigation to be dropped while busy")
		}

		close(api.playGate)
		if !<-done {
			t.Error("expected the first request to succeed")
		}
		if n := len(api.Plays()); n != 1 {
			t.Errorf("expected 1 play request, got %d", n)
		}
	})

	t.Run("Stale response does not overwrite state", func(t *testing.T) {
		api := newFakePlayer("dev-1")
		c, _ := newReadyController(t, api)
		api.playGate = make(chan struct{})
		api.playEntered = make(chan struct{}, 1)

		done := make(chan bool)
		go func() { done <- c.PlayTrack(ctx, "t1", testTracks) }()
		<-api.playEntered

		c.Disconnect()
		close(api.playGate)
		<-done

		st := c.State()
		if st.IsPlaying || st.CurrentTrack != nil {
			t.Errorf("expected the reset state to survive, got %+v", st)
		}
		if c.Status() != Disconnected {
			t.Errorf("expected disconnected, got %v", c.Status())
		}
	})
}

func TestControllerEvents(t *testing.T) {
	c := NewController(newTestSession(newFakePlayer("dev-1"), ""), ControllerOpts{})

	c.handle(Event{Kind: EventReady, DeviceID: "dev-1"})
	if st := c.State(); !st.IsReady || st.DeviceID != "dev-1" || c.Status() != Ready {
		t.Fatalf("expected ready on dev-1, got %+v / %v", st, c.Status())
	}

	c.handle(Event{Kind: EventStateChanged})
	if c.Status() != Ready {
		t.Error("nil state_changed should be ignored")
	}

	c.handle(Event{Kind: EventStateChanged, State: &PlayerState{
		IsPlaying: true, PositionMS: 42, DurationMS: 1000,
		CurrentTrack: &models.CurrentTrack{ID: "t2"},
	}})
	if st := c.State(); !st.IsPlaying || st.PositionMS != 42 || c.Status() != Playing {
		t.Errorf("expected playing at 42ms, got %+v", st)
	}

	c.handle(Event{Kind: EventPlaybackError})
	if !c.State().IsReady {
		t.Error("playback_error should not change readiness")
	}

	for _, kind := range []EventKind{EventAuthError, EventAccountError} {
		c.handle(Event{Kind: EventReady, DeviceID: "dev-1"})
		c.handle(Event{Kind: kind})
		if c.State().IsReady {
			t.Errorf("%v should clear readiness", kind)
		}
	}
}

func TestControllerRun(t *testing.T) {
	c := NewController(newTestSession(newFakePlayer("dev-1"), ""), ControllerOpts{})
	updates := c.Subscribe()
	defer c.Unsubscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"})
	if err := c.Connect(ctx, tokens); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()
	go c.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-updates:
			if st.IsReady && st.DeviceID == "dev-1" {
				return
			}
		case <-deadline:
			t.Fatal("controller never became ready")
		}
	}
}

func TestControllerSubscribe(t *testing.T) {
	c := NewController(newTestSession(newFakePlayer("dev-1"), ""), ControllerOpts{})
	ch := c.Subscribe()

	c.handle(Event{Kind: EventReady, DeviceID: "a"})
	c.handle(Event{Kind: EventReady, DeviceID: "b"})

	if st := <-ch; st.DeviceID != "b" {
		t.Errorf("expected the latest snapshot, got %q", st.DeviceID)
	}

	c.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed")
	}
	c.Unsubscribe(ch)
}
