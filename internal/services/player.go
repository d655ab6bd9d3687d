package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/shelves/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// SpotifyDevice is a Connect device on the user's account.
type SpotifyDevice struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	IsActive      bool   `json:"is_active"`
	IsRestricted  bool   `json:"is_restricted"`
	VolumePercent *int   `json:"volume_percent"`
}

// SpotifyPlayerState is the body of GET /me/player.
type SpotifyPlayerState struct {
	Device     SpotifyDevice `json:"device"`
	IsPlaying  bool          `json:"is_playing"`
	ProgressMS int           `json:"progress_ms"`
	Item       *SpotifyTrack `json:"item"`
	Context    *struct {
		URI string `json:"uri"`
	} `json:"context"`
}

// PlayOffset selects the starting track of a play request.
type PlayOffset struct {
	Position *int   `json:"position,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// PlayRequest is the body of PUT /me/player/play.
type PlayRequest struct {
	URIs       []string    `json:"uris,omitempty"`
	ContextURI string      `json:"context_uri,omitempty"`
	Offset     *PlayOffset `json:"offset,omitempty"`
	PositionMS *int        `json:"position_ms,omitempty"`
}

type transferRequest struct {
	DeviceIDs []string `json:"device_ids"`
	Play      bool     `json:"play"`
}

type devicesResponse struct {
	Devices []SpotifyDevice `json:"devices"`
}

// PlayerOpts configures a [PlayerClient].
type PlayerOpts struct {
	BaseURL    string
	HTTPClient *http.Client
	RateLimit  float64
}

// PlayerClient drives the Spotify Connect player endpoints with a user token.
//
// Every method returns the HTTP status so callers can branch on codes like 204 or 403.
type PlayerClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	limiter    *rate.Limiter
}

// NewPlayerClient creates a client that pulls bearer tokens from tokens on every call.
func NewPlayerClient(tokens oauth2.TokenSource, opts PlayerOpts) *PlayerClient {
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &PlayerClient{
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
		tokens:     tokens,
		limiter:    newLimiter(opts.RateLimit),
	}
}

func (c *PlayerClient) do(ctx context.Context, method, path string, query url.Values, body, result any) (int, error) {
	if c.tokens == nil {
		return 0, shared.ErrNotAuthenticated
	}
	token, err := c.tokens.Token()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	return doJSON(ctx, c.httpClient, c.limiter, request{
		method: method,
		url:    u,
		body:   body,
		result: result,
		bearer: token.AccessToken,
	})
}

func deviceQuery(deviceID string) url.Values {
	q := url.Values{}
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	return q
}

// State returns the current playback state, or nil with status 204 when nothing is active.
func (c *PlayerClient) State(ctx context.Context) (*SpotifyPlayerState, int, error) {
	var state SpotifyPlayerState
	status, err := c.do(ctx, http.MethodGet, "/me/player", nil, nil, &state)
	if err != nil {
		return nil, status, err
	}
	if status == http.StatusNoContent {
		return nil, status, nil
	}
	return &state, status, nil
}

// ActiveDeviceID returns the id of the account's active device, or "".
func (c *PlayerClient) ActiveDeviceID(ctx context.Context) (string, error) {
	state, _, err := c.State(ctx)
	if err != nil {
		return "", err
	}
	if state == nil {
		return "", nil
	}
	return state.Device.ID, nil
}

// Devices lists the account's available Connect devices.
func (c *PlayerClient) Devices(ctx context.Context) ([]SpotifyDevice, error) {
	var resp devicesResponse
	if _, err := c.do(ctx, http.MethodGet, "/me/player/devices", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// Transfer makes deviceID the active device without starting playback unless play is set.
func (c *PlayerClient) Transfer(ctx context.Context, deviceID string, play bool) (int, error) {
	return c.do(ctx, http.MethodPut, "/me/player", nil, transferRequest{DeviceIDs: []string{deviceID}, Play: play}, nil)
}

// Play starts playback of req on deviceID.
func (c *PlayerClient) Play(ctx context.Context, deviceID string, req PlayRequest) (int, error) {
	return c.do(ctx, http.MethodPut, "/me/player/play", deviceQuery(deviceID), req, nil)
}

// Resume continues the current context on deviceID.
func (c *PlayerClient) Resume(ctx context.Context, deviceID string) (int, error) {
	return c.do(ctx, http.MethodPut, "/me/player/play", deviceQuery(deviceID), nil, nil)
}

// Pause pauses deviceID, or whichever device is active when deviceID is empty.
func (c *PlayerClient) Pause(ctx context.Context, deviceID string) (int, error) {
	return c.do(ctx, http.MethodPut, "/me/player/pause", deviceQuery(deviceID), nil, nil)
}

// Seek moves the playhead on deviceID to positionMS.
func (c *PlayerClient) Seek(ctx context.Context, deviceID string, positionMS int) (int, error) {
	q := deviceQuery(deviceID)
	q.Set("position_ms", strconv.Itoa(positionMS))
	return c.do(ctx, http.MethodPut, "/me/player/seek", q, nil, nil)
}
