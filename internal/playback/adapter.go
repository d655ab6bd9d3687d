package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelves/internal/services"
	"github.com/desertthunder/shelves/internal/shared"
	"golang.org/x/oauth2"
)

// APIFactory builds a player client bound to one set of credentials.
type APIFactory func(tokens oauth2.TokenSource) PlayerAPI

// SessionOpts configures a [Session].
type SessionOpts struct {
	// DeviceName selects the Connect device to drive. Empty means the currently active device.
	DeviceName   string
	PollInterval time.Duration
	Logger       *log.Logger
}

// Session adapts a Spotify Connect device into a stream of player events.
//
// One session lives per credential lifetime: Connect on a live session is a no-op and
// Disconnect is idempotent.
type Session struct {
	newAPI       APIFactory
	deviceName   string
	pollInterval time.Duration
	logger       *log.Logger

	mu        sync.Mutex
	api       PlayerAPI
	deviceID  string
	connected bool
	events    chan Event
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSession creates a disconnected session that will build its player client with newAPI.
func NewSession(newAPI APIFactory, opts SessionOpts) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &Session{
		newAPI:       newAPI,
		deviceName:   opts.DeviceName,
		pollInterval: opts.PollInterval,
		logger:       opts.Logger,
		events:       make(chan Event, 32),
	}
}

// Events returns the channel events are delivered on. It is closed by [Session.Disconnect]
// and replaced by the next [Session.Connect].
func (s *Session) Events() <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// API returns the live player client, or nil when disconnected.
func (s *Session) API() PlayerAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.api
}

// DeviceID returns the driven device id, or "" when disconnected.
func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// Connected reports whether the session is live.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// emit delivers ev without blocking. Events are dropped when the consumer falls behind.
func (s *Session) emit(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		s.logger.Debug("dropped session event", "kind", ev.Kind)
	}
}

// classify maps a failed vendor call to the session event it should raise.
func classify(err error) EventKind {
	switch status := services.StatusOf(err); {
	case status == http.StatusUnauthorized, errors.Is(err, shared.ErrNotAuthenticated):
		return EventAuthError
	case status == http.StatusForbidden:
		return EventAccountError
	default:
		return EventPlaybackError
	}
}

func (s *Session) pickDevice(devices []services.SpotifyDevice) (string, bool) {
	for _, d := range devices {
		if s.deviceName == "" && d.IsActive {
			return d.ID, true
		}
		if s.deviceName != "" && strings.EqualFold(d.Name, s.deviceName) {
			return d.ID, !d.IsRestricted
		}
	}
	return "", false
}

// Connect resolves the configured device and starts polling its state until ctx is done or
// [Session.Disconnect] is called. It emits ready on success and not_ready when no device matches.
func (s *Session) Connect(ctx context.Context, tokens oauth2.TokenSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	api := s.newAPI(tokens)
	devices, err := api.Devices(ctx)
	if err != nil {
		kind := classify(err)
		s.emit(s.events, Event{Kind: kind, Err: err})
		return fmt.Errorf("failed to list devices: %w", err)
	}

	deviceID, ok := s.pickDevice(devices)
	if !ok {
		s.emit(s.events, Event{Kind: EventNotReady})
		if s.deviceName != "" {
			return fmt.Errorf("%w: no usable device named %q", shared.ErrDeviceNotReady, s.deviceName)
		}
		return fmt.Errorf("%w: no active device", shared.ErrDeviceNotReady)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	s.api = api
	s.deviceID = deviceID
	s.connected = true
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("player session ready", "device_id", deviceID)
	s.emit(s.events, Event{Kind: EventReady, DeviceID: deviceID})

	go s.poll(pollCtx, api, deviceID, s.events, s.done)
	return nil
}

func (s *Session) poll(ctx context.Context, api PlayerAPI, deviceID string, events chan Event, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		s.pollOnce(ctx, api, deviceID, events)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) pollOnce(ctx context.Context, api PlayerAPI, deviceID string, events chan Event) {
	raw, status, err := api.State(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.emit(events, Event{Kind: classify(err), DeviceID: deviceID, Err: err})
		return
	}

	// Playback on another device looks like "nothing playing" from this device's point of view.
	if status == http.StatusNoContent || raw == nil || raw.Device.ID != deviceID {
		s.emit(events, Event{Kind: EventStateChanged, DeviceID: deviceID})
		return
	}
	s.emit(events, Event{Kind: EventStateChanged, DeviceID: deviceID, State: Translate(raw)})
}

// Disconnect stops polling, closes the event channel and clears the device.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return
	}
	s.cancel()
	<-s.done
	close(s.events)

	s.events = make(chan Event, 32)
	s.api = nil
	s.deviceID = ""
	s.connected = false
	s.logger.Info("player session disconnected")
}

func (s *Session) live() (PlayerAPI, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, "", shared.ErrDeviceNotReady
	}
	return s.api, s.deviceID, nil
}

// Pause pauses the session's device.
func (s *Session) Pause(ctx context.Context) error {
	api, id, err := s.live()
	if err != nil {
		return err
	}
	_, err = api.Pause(ctx, id)
	return err
}

// Resume continues playback on the session's device.
func (s *Session) Resume(ctx context.Context) error {
	api, id, err := s.live()
	if err != nil {
		return err
	}
	_, err = api.Resume(ctx, id)
	return err
}

// Seek moves the playhead on the session's device.
func (s *Session) Seek(ctx context.Context, positionMS int) error {
	if positionMS < 0 {
		return fmt.Errorf("%w: position %d", shared.ErrInvalidArgument, positionMS)
	}
	api, id, err := s.live()
	if err != nil {
		return err
	}
	_, err = api.Seek(ctx, id, positionMS)
	return err
}
