package playback

import (
	"context"
	"net/http"
	"slices"
	"testing"
	"time"

	tu "github.com/desertthunder/shelves/internal/testing"
)

func newTestActivator() (*Activator, *tu.RecordingSleeper) {
	sleeper := &tu.RecordingSleeper{}
	a := NewActivator(nil)
	a.Sleep = sleeper.Sleep
	return a, sleeper
}

func TestActivator(t *testing.T) {
	ctx := context.Background()

	t.Run("Already active device skips the protocol", func(t *testing.T) {
		a, sleeper := newTestActivator()
		api := newFakePlayer("dev-1")

		if !a.Activate(ctx, api, "dev-1") {
			t.Fatal("expected activation to succeed")
		}
		if got := api.Calls(); !slices.Equal(got, []string{"state"}) {
			t.Errorf("expected a single state query, got %v", got)
		}
		if len(sleeper.Recorded()) != 0 {
			t.Errorf("expected no waits, got %v", sleeper.Recorded())
		}
	})

	t.Run("Pauses, transfers without playing and verifies", func(t *testing.T) {
		a, sleeper := newTestActivator()
		api := newFakePlayer("phone")
		api.transferStatus = http.StatusAccepted

		if !a.Activate(ctx, api, "dev-1") {
			t.Fatal("expected activation to succeed")
		}

		want := []string{"state", "pause ", "transfer dev-1 play=false", "state"}
		if got := api.Calls(); !slices.Equal(got, want) {
			t.Errorf("calls = %v, want %v", got, want)
		}
		wantDelays := []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}
		if got := sleeper.Recorded(); !slices.Equal(got, wantDelays) {
			t.Errorf("delays = %v, want %v", got, wantDelays)
		}
	})

	t.Run("Transfer 204 counts as success without verification", func(t *testing.T) {
		a, _ := newTestActivator()
		api := newFakePlayer("phone")
		api.transferActivate = false

		if !a.Once(ctx, api, "dev-1", 0) {
			t.Error("expected a 204 transfer to succeed")
		}
	})

	t.Run("Gives up after two attempts with a growing wait", func(t *testing.T) {
		a, sleeper := newTestActivator()
		api := newFakePlayer("phone")
		api.transferActivate = false
		api.transferStatus = http.StatusAccepted

		if a.Activate(ctx, api, "dev-1") {
			t.Fatal("expected activation to fail")
		}
		if n := api.count("transfer"); n != 2 {
			t.Errorf("expected 2 transfers, got %d", n)
		}
		want := []time.Duration{300 * time.Millisecond, 600 * time.Millisecond, 300 * time.Millisecond, 800 * time.Millisecond}
		if got := sleeper.Recorded(); !slices.Equal(got, want) {
			t.Errorf("delays = %v, want %v", got, want)
		}
	})

	t.Run("Cancelled context stops early", func(t *testing.T) {
		a, _ := newTestActivator()
		api := newFakePlayer("phone")
		api.transferActivate = false
		api.transferStatus = http.StatusAccepted

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if a.Activate(cctx, api, "dev-1") {
			t.Error("expected cancelled activation to fail")
		}
		if n := api.count("transfer"); n != 0 {
			t.Errorf("expected no transfer after cancellation, got %d", n)
		}
	})

	t.Run("Empty device id", func(t *testing.T) {
		a, _ := newTestActivator()
		if a.Once(ctx, newFakePlayer(""), "", 0) {
			t.Error("expected false for an empty device id")
		}
	})
}
