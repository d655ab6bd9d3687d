package playback

import (
	"context"
	"io"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/services"
	"github.com/desertthunder/shelves/internal/shared"
	"golang.org/x/oauth2"
)

// ControllerOpts configures a [Controller].
type ControllerOpts struct {
	Activator *Activator
	Logger    *log.Logger
	Sleep     shared.Sleeper

	PlayRetries   int           // extra play attempts after a 403/404, default 3
	PlayRetryBase time.Duration // default 500ms
	PlayRetryStep time.Duration // added per retry, default 300ms
}

// Controller is the single writer of [models.PlaybackState].
//
// Play requests are serialised with a busy flag: a request arriving while another is in flight is
// dropped and returns false. Every accepted request bumps a generation counter and optimistic
// state writes from superseded requests are discarded. No method returns an error; failures are
// logged and reported as false.
type Controller struct {
	session   *Session
	activator *Activator
	logger    *log.Logger
	sleep     shared.Sleeper

	playRetries   int
	playRetryBase time.Duration
	playRetryStep time.Duration

	busy atomic.Bool
	gen  atomic.Uint64

	mu     sync.RWMutex
	state  models.PlaybackState
	status Status

	subsMu sync.Mutex
	subs   map[<-chan models.PlaybackState]chan models.PlaybackState
}

// NewController creates a controller driving session.
func NewController(session *Session, opts ControllerOpts) *Controller {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Activator == nil {
		opts.Activator = NewActivator(opts.Logger)
	}
	if opts.Sleep == nil {
		opts.Sleep = shared.Sleep
	}
	if opts.PlayRetries <= 0 {
		opts.PlayRetries = 3
	}
	if opts.PlayRetryBase <= 0 {
		opts.PlayRetryBase = 500 * time.Millisecond
	}
	if opts.PlayRetryStep <= 0 {
		opts.PlayRetryStep = 300 * time.Millisecond
	}

	return &Controller{
		session:       session,
		activator:     opts.Activator,
		logger:        opts.Logger,
		sleep:         opts.Sleep,
		playRetries:   opts.PlayRetries,
		playRetryBase: opts.PlayRetryBase,
		playRetryStep: opts.PlayRetryStep,
		subs:          make(map[<-chan models.PlaybackState]chan models.PlaybackState),
	}
}

// State returns a snapshot of the current playback state.
func (c *Controller) State() models.PlaybackState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// Status returns the lifecycle state.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Connect starts the session. The ready event is applied by [Controller.Run].
func (c *Controller) Connect(ctx context.Context, tokens oauth2.TokenSource) error {
	c.update(func(s *models.PlaybackState) { c.status = Connecting })
	if err := c.session.Connect(ctx, tokens); err != nil {
		c.update(func(s *models.PlaybackState) { c.status = Disconnected })
		return err
	}
	return nil
}

// Disconnect ends the session and resets the state. A play request still in flight will not
// write its result.
func (c *Controller) Disconnect() {
	c.gen.Add(1)
	c.session.Disconnect()
	c.update(func(s *models.PlaybackState) {
		*s = models.PlaybackState{}
		c.status = Disconnected
	})
}

// Run applies session events to the state until ctx is done or the session disconnects.
func (c *Controller) Run(ctx context.Context) {
	events := c.session.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev Event) {
	switch ev.Kind {
	case EventReady:
		c.update(func(s *models.PlaybackState) {
			s.IsReady = true
			s.DeviceID = ev.DeviceID
			c.status = Ready
		})
	case EventNotReady:
		c.logger.Warn("player device went offline", "device_id", ev.DeviceID)
		c.update(func(s *models.PlaybackState) {
			s.IsReady = false
			c.status = Connecting
		})
	case EventAuthError, EventAccountError:
		c.logger.Error("player session rejected", "kind", ev.Kind, "error", ev.Err)
		c.update(func(s *models.PlaybackState) {
			s.IsReady = false
			c.status = Disconnected
		})
	case EventPlaybackError:
		c.logger.Warn("playback error", "error", ev.Err)
	case EventStateChanged:
		if ev.State == nil {
			return
		}
		st := ev.State
		c.update(func(s *models.PlaybackState) {
			s.IsPlaying = st.IsPlaying
			s.CurrentTrack = st.CurrentTrack
			s.PositionMS = st.PositionMS
			s.DurationMS = st.DurationMS
			if st.IsPlaying {
				c.status = Playing
			} else {
				c.status = Paused
			}
		})
	}
}

// update applies fn under the lock and publishes the result.
func (c *Controller) update(fn func(s *models.PlaybackState)) {
	c.mu.Lock()
	fn(&c.state)
	snap := c.state.Clone()
	c.mu.Unlock()
	c.publish(snap)
}

// updateIfCurrent applies fn only while gen is still the latest accepted play request.
func (c *Controller) updateIfCurrent(gen uint64, fn func(s *models.PlaybackState)) bool {
	c.mu.Lock()
	if c.gen.Load() != gen {
		c.mu.Unlock()
		c.logger.Debug("discarding stale playback response", "generation", gen)
		return false
	}
	fn(&c.state)
	snap := c.state.Clone()
	c.mu.Unlock()
	c.publish(snap)
	return true
}

// Subscribe returns a channel receiving a snapshot after every state change.
// Slow subscribers only see the latest snapshot.
func (c *Controller) Subscribe() <-chan models.PlaybackState {
	ch := make(chan models.PlaybackState, 1)
	c.subsMu.Lock()
	c.subs[ch] = ch
	c.subsMu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (c *Controller) Unsubscribe(ch <-chan models.PlaybackState) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if send, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(send)
	}
}

func (c *Controller) publish(snap models.PlaybackState) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- snap.Clone():
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap.Clone():
		default:
		}
	}
}

// begin claims the busy flag for a play request and returns its generation.
func (c *Controller) begin() (uint64, bool) {
	if !c.busy.CompareAndSwap(false, true) {
		c.logger.Debug("play request dropped, another is in flight")
		return 0, false
	}
	return c.gen.Add(1), true
}

func (c *Controller) end() {
	c.busy.Store(false)
}

// target returns the player client and device for a play request, or false when not ready.
func (c *Controller) target() (PlayerAPI, string, bool) {
	st := c.State()
	if !st.IsReady || st.DeviceID == "" {
		c.logger.Warn("player not ready")
		return nil, "", false
	}
	api := c.session.API()
	if api == nil {
		c.logger.Warn("player session not connected")
		return nil, "", false
	}
	return api, st.DeviceID, true
}

func currentFrom(tracks []models.Track, id string) *models.CurrentTrack {
	for _, t := range tracks {
		if shared.SameID(t.ID, id) {
			return &models.CurrentTrack{ID: t.ID, Name: t.Name, Artists: t.Artists}
		}
	}
	return &models.CurrentTrack{ID: shared.NormalizeID(id)}
}

func ok2xx(status int) bool {
	return status >= 200 && status < 300
}

// PlayTrack plays one track. A non-nil tracks replaces the navigation context.
func (c *Controller) PlayTrack(ctx context.Context, trackID string, tracks []models.Track) bool {
	gen, ok := c.begin()
	if !ok {
		return false
	}
	defer c.end()
	return c.playTrack(ctx, gen, trackID, tracks, true)
}

// playTrackActivated plays one track without another activation round. PlayAlbum already ran its
// own activation attempts against the same device.
func (c *Controller) playTrackActivated(ctx context.Context, trackID string, tracks []models.Track) bool {
	gen, ok := c.begin()
	if !ok {
		return false
	}
	defer c.end()
	return c.playTrack(ctx, gen, trackID, tracks, false)
}

func (c *Controller) playTrack(ctx context.Context, gen uint64, trackID string, tracks []models.Track, activate bool) bool {
	api, deviceID, ok := c.target()
	if !ok || trackID == "" {
		return false
	}

	if tracks != nil {
		c.updateIfCurrent(gen, func(s *models.PlaybackState) { s.ContextTracks = slices.Clone(tracks) })
	}

	if activate && !c.activator.Activate(ctx, api, deviceID) {
		c.logger.Warn("continuing without confirmed activation", "device_id", deviceID)
	}

	status, err := api.Play(ctx, deviceID, services.PlayRequest{URIs: []string{shared.TrackURI(trackID)}})
	if err != nil || !ok2xx(status) {
		c.logger.Error("play track failed", "track_id", trackID, "status", status, "error", err)
		return false
	}

	c.updateIfCurrent(gen, func(s *models.PlaybackState) {
		s.IsPlaying = true
		s.PositionMS = 0
		s.CurrentTrack = currentFrom(s.ContextTracks, trackID)
		c.status = Playing
	})
	return true
}

// PlayAlbum plays trackIDs from the first track at position zero. tracks becomes the navigation context.
//
// A 403 or 404 usually means the device is not active yet, so activation and play are retried up
// to PlayRetries times with a growing delay. Activation inside the loop is a single attempt.
func (c *Controller) PlayAlbum(ctx context.Context, trackIDs []string, tracks []models.Track) bool {
	gen, ok := c.begin()
	if !ok {
		return false
	}
	defer c.end()

	api, deviceID, ok := c.target()
	if !ok || len(trackIDs) == 0 {
		return false
	}

	if tracks != nil {
		c.updateIfCurrent(gen, func(s *models.PlaybackState) { s.ContextTracks = slices.Clone(tracks) })
	}

	uris := make([]string, len(trackIDs))
	for i, id := range trackIDs {
		uris[i] = shared.TrackURI(id)
	}
	zero := 0
	req := services.PlayRequest{URIs: uris, Offset: &services.PlayOffset{Position: &zero}, PositionMS: &zero}

	for attempt := 0; ; attempt++ {
		c.activator.Once(ctx, api, deviceID, attempt)

		status, err := api.Play(ctx, deviceID, req)
		if err == nil && ok2xx(status) {
			c.updateIfCurrent(gen, func(s *models.PlaybackState) {
				s.IsPlaying = true
				s.PositionMS = 0
				s.CurrentTrack = currentFrom(s.ContextTracks, trackIDs[0])
				c.status = Playing
			})
			return true
		}

		retryable := status == http.StatusForbidden || status == http.StatusNotFound
		if !retryable || attempt >= c.playRetries {
			c.logger.Error("play album failed", "status", status, "attempts", attempt+1, "error", err)
			return false
		}

		delay := c.playRetryBase + time.Duration(attempt)*c.playRetryStep
		c.logger.Debug("play album rejected, retrying", "status", status, "attempt", attempt+1, "delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return false
		}
	}
}

// TogglePlayPause pauses when playing and resumes otherwise.
func (c *Controller) TogglePlayPause(ctx context.Context) bool {
	if !c.session.Connected() || !c.State().IsReady {
		return false
	}

	playing := c.State().IsPlaying
	var err error
	if playing {
		err = c.session.Pause(ctx)
	} else {
		err = c.session.Resume(ctx)
	}
	if err != nil {
		c.logger.Error("toggle playback failed", "pause", playing, "error", err)
		return false
	}

	c.update(func(s *models.PlaybackState) {
		s.IsPlaying = !playing
		if s.IsPlaying {
			c.status = Playing
		} else {
			c.status = Paused
		}
	})
	return true
}

// Seek moves the playhead to positionMS.
func (c *Controller) Seek(ctx context.Context, positionMS int) bool {
	if err := c.session.Seek(ctx, positionMS); err != nil {
		c.logger.Error("seek failed", "position_ms", positionMS, "error", err)
		return false
	}
	c.update(func(s *models.PlaybackState) { s.PositionMS = positionMS })
	return true
}

// navIndex returns the position of the current track in the context, or -1.
func navIndex(st models.PlaybackState) int {
	if st.CurrentTrack == nil {
		return -1
	}
	return slices.IndexFunc(st.ContextTracks, func(t models.Track) bool {
		return shared.SameID(t.ID, st.CurrentTrack.ID)
	})
}

// CanGoPrev reports whether [Controller.PrevTrack] has a track to move to.
func (c *Controller) CanGoPrev() bool {
	return navIndex(c.State()) > 0
}

// CanGoNext reports whether [Controller.NextTrack] has a track to move to.
func (c *Controller) CanGoNext() bool {
	st := c.State()
	i := navIndex(st)
	return i >= 0 && i < len(st.ContextTracks)-1
}

func (c *Controller) step(ctx context.Context, delta int) bool {
	st := c.State()
	i := navIndex(st)
	if i < 0 {
		return false
	}
	j := i + delta
	if j < 0 || j >= len(st.ContextTracks) {
		return false
	}
	return c.PlayTrack(ctx, st.ContextTracks[j].ID, nil)
}

// NextTrack plays the track after the current one in the context.
func (c *Controller) NextTrack(ctx context.Context) bool {
	return c.step(ctx, 1)
}

// PrevTrack plays the track before the current one in the context.
func (c *Controller) PrevTrack(ctx context.Context) bool {
	return c.step(ctx, -1)
}
