package playback

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/desertthunder/shelves/internal/services"
)

// fakePlayer is an in-memory Connect account with one or more devices.
type fakePlayer struct {
	mu sync.Mutex

	devices    []services.SpotifyDevice
	devicesErr error
	active     string
	playing    *services.SpotifyPlayerState

	transferStatus   int
	transferActivate bool
	playStatuses     []int // consumed in order, then 204
	playGate         chan struct{}
	playEntered      chan struct{}

	calls []string
	plays []services.PlayRequest
}

func newFakePlayer(active string) *fakePlayer {
	return &fakePlayer{
		devices:          []services.SpotifyDevice{{ID: "dev-1", Name: "Shelves Player"}, {ID: "phone", Name: "Phone"}},
		active:           active,
		transferStatus:   http.StatusNoContent,
		transferActivate: true,
	}
}

func (f *fakePlayer) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakePlayer) State(context.Context) (*services.SpotifyPlayerState, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("state")
	if f.playing != nil {
		st := *f.playing
		return &st, http.StatusOK, nil
	}
	if f.active == "" {
		return nil, http.StatusNoContent, nil
	}
	return &services.SpotifyPlayerState{Device: services.SpotifyDevice{ID: f.active}}, http.StatusOK, nil
}

func (f *fakePlayer) Devices(context.Context) ([]services.SpotifyDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("devices")
	if f.devicesErr != nil {
		return nil, f.devicesErr
	}
	out := make([]services.SpotifyDevice, len(f.devices))
	for i, d := range f.devices {
		d.IsActive = d.ID == f.active
		out[i] = d
	}
	return out, nil
}

func (f *fakePlayer) Transfer(_ context.Context, deviceID string, play bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("transfer %s play=%v", deviceID, play))
	if f.transferActivate {
		f.active = deviceID
	}
	return f.transferStatus, nil
}

func (f *fakePlayer) Play(_ context.Context, deviceID string, req services.PlayRequest) (int, error) {
	f.mu.Lock()
	f.record("play " + deviceID)
	f.plays = append(f.plays, req)
	gate, entered := f.playGate, f.playEntered
	status := http.StatusNoContent
	if len(f.playStatuses) > 0 {
		status = f.playStatuses[0]
		f.playStatuses = f.playStatuses[1:]
	}
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if status >= 300 {
		return status, &services.APIError{StatusCode: status, Message: http.StatusText(status)}
	}
	return status, nil
}

func (f *fakePlayer) Resume(_ context.Context, deviceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("resume " + deviceID)
	return http.StatusNoContent, nil
}

func (f *fakePlayer) Pause(_ context.Context, deviceID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pause " + deviceID)
	return http.StatusNoContent, nil
}

func (f *fakePlayer) Seek(_ context.Context, deviceID string, positionMS int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("seek %s %d", deviceID, positionMS))
	return http.StatusNoContent, nil
}

func (f *fakePlayer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePlayer) Plays() []services.PlayRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]services.PlayRequest(nil), f.plays...)
}

func (f *fakePlayer) count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
