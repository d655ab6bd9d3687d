// Spotify Web API types and the server-side OAuth service
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
// Only the fields the application consumes are modeled.
package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/shelves/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// Scopes requested at login. streaming and the playback scopes are needed for Connect control.
var Scopes = []string{
	"streaming",
	"user-read-email",
	"user-read-private",
	"user-read-playback-state",
	"user-modify-playback-state",
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Images      []SpotifyImage `json:"images"`
}

// ImageURL returns the first profile image, or "".
func (u SpotifyUser) ImageURL() string {
	if len(u.Images) == 0 {
		return ""
	}
	return u.Images[0].URL
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyArtist represents a simplified artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyTrack represents a track. Album is only populated on full track objects (e.g. the player item).
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	Album        *SpotifyAlbum   `json:"album,omitempty"`
	DurationMS   int             `json:"duration_ms"`
	TrackNumber  int             `json:"track_number"`
	PreviewURL   *string         `json:"preview_url"`
	ExternalURLs externalURLs    `json:"external_urls"`
	URI          string          `json:"uri"`
}

type albumTracks struct {
	Items []SpotifyTrack `json:"items"`
	Total int            `json:"total"`
}

// SpotifyAlbum represents an album. Genres, Label, Popularity and Tracks are only present on full album objects.
type SpotifyAlbum struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	ReleaseDate  string          `json:"release_date"`
	TotalTracks  int             `json:"total_tracks"`
	Images       []SpotifyImage  `json:"images"`
	Genres       []string        `json:"genres"`
	Label        string          `json:"label"`
	Popularity   int             `json:"popularity"`
	ExternalURLs externalURLs    `json:"external_urls"`
	Tracks       albumTracks     `json:"tracks"`
	URI          string          `json:"uri"`
}

// SpotifyOpts overrides endpoints and transport, used by tests and proxies.
type SpotifyOpts struct {
	APIBase    string
	AuthURL    string
	TokenURL   string
	HTTPClient *http.Client
	RateLimit  float64
}

func (o SpotifyOpts) withDefaults() SpotifyOpts {
	if o.APIBase == "" {
		o.APIBase = spotifyBaseURL
	}
	if o.AuthURL == "" {
		o.AuthURL = spotifyAuthURL
	}
	if o.TokenURL == "" {
		o.TokenURL = spotifyTokenURL
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	return o
}

// SpotifyService handles the authorization-code flow and user profile lookups for the server.
//
// It holds no tokens itself; callers pass the user's access token per call.
type SpotifyService struct {
	config     *oauth2.Config
	httpClient *http.Client
	apiBase    string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(creds shared.SpotifyConfig, opts SpotifyOpts) (*SpotifyService, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := creds.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/api/spotify/callback"
	}

	opts = opts.withDefaults()
	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   opts.AuthURL,
			TokenURL:  opts.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	return &SpotifyService{config: config, httpClient: opts.HTTPClient, apiBase: opts.APIBase}, nil
}

// OAuthConfig exposes the underlying [oauth2.Config].
func (s *SpotifyService) OAuthConfig() *oauth2.Config {
	return s.config
}

// SetRedirectURL replaces the callback URL, e.g. once a public tunnel URL is known.
func (s *SpotifyService) SetRedirectURL(u string) {
	s.config.RedirectURL = u
}

// AuthURL returns the authorization URL. show_dialog forces the account picker so users can switch accounts.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
}

func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Exchange trades an authorization code for a token.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange failed: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Refresh obtains a new access token from refreshToken.
func (s *SpotifyService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	stale := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Now().Add(-time.Minute)}
	token, err := s.config.TokenSource(s.oauthContext(ctx), stale).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	return token, nil
}

// Me retrieves the profile of the user owning accessToken.
func (s *SpotifyService) Me(ctx context.Context, accessToken string) (*SpotifyUser, error) {
	var user SpotifyUser
	_, err := doJSON(ctx, s.httpClient, nil, request{
		method: http.MethodGet,
		url:    s.apiBase + "/me",
		bearer: accessToken,
		result: &user,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: profile without id", shared.ErrInvalidPayload)
	}
	return &user, nil
}
