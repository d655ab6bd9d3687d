// Client for the shelves HTTP server: session, bearer token, metadata and shelf persistence
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/shared"
	"golang.org/x/oauth2"
)

// SessionInfo is the body of GET /api/auth/me.
type SessionInfo struct {
	Authenticated bool             `json:"authenticated"`
	User          *models.Identity `json:"user,omitempty"`
}

// TokenResponse is the body of GET /api/auth/token.
type TokenResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	NeedsReauth bool      `json:"needsReauth,omitempty"`
}

// AuthURLResponse is the body of GET /api/spotify/auth.
type AuthURLResponse struct {
	AuthURL string `json:"authUrl"`
}

// ClaimRequest is the body of POST /api/auth/claim.
type ClaimRequest struct {
	Nonce string `json:"nonce"`
}

// Validate rejects a missing or short nonce.
func (r ClaimRequest) Validate() error {
	if len(strings.TrimSpace(r.Nonce)) < 16 {
		return fmt.Errorf("%w: nonce must be at least 16 characters", shared.ErrInvalidPayload)
	}
	return nil
}

// ClaimResponse returns the session bound to a login nonce.
type ClaimResponse struct {
	SessionID string `json:"sessionId"`
}

// FetchAlbumRequest is the body of POST /api/spotify/album.
type FetchAlbumRequest struct {
	URL string `json:"url"`
}

// Validate rejects an empty url.
func (r FetchAlbumRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("%w: url is required", shared.ErrInvalidPayload)
	}
	return nil
}

// ShelvesPayload is the body of GET/PUT /api/user/shelves.
type ShelvesPayload struct {
	SpotifyID string         `json:"spotifyId,omitempty"`
	Shelves   []models.Shelf `json:"shelves"`
}

// Validate checks every shelf and that shelf ids are unique.
func (p ShelvesPayload) Validate() error {
	if p.Shelves == nil {
		return fmt.Errorf("%w: shelves is required", shared.ErrInvalidPayload)
	}
	seen := make(map[string]struct{}, len(p.Shelves))
	for _, s := range p.Shelves {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate shelf id %s", shared.ErrInvalidPayload, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// UserPatch is the body of PATCH /api/user. Nil fields are left unchanged.
type UserPatch struct {
	DisplayName *string             `json:"displayName,omitempty"`
	Preferences *models.Preferences `json:"preferences,omitempty"`
}

// Validate checks the preferences enums and that the display name is not blank.
func (p UserPatch) Validate() error {
	if p.DisplayName != nil && strings.TrimSpace(*p.DisplayName) == "" {
		return fmt.Errorf("%w: displayName cannot be empty", shared.ErrInvalidPayload)
	}
	if p.Preferences != nil {
		return p.Preferences.Validate()
	}
	return nil
}

// ShelvesClient talks to the shelves server on behalf of one CLI/TUI session.
//
// Create one per session with [NewShelvesClient]; it carries the session cookie explicitly.
type ShelvesClient struct {
	baseURL    string
	httpClient *http.Client
	session    string
}

// NewShelvesClient creates a client for baseURL. session may be empty before login.
func NewShelvesClient(baseURL string, httpClient *http.Client, session string) *ShelvesClient {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:3000"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ShelvesClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		session:    session,
	}
}

// WithSession returns a copy of c bound to session.
func (c *ShelvesClient) WithSession(session string) *ShelvesClient {
	cp := *c
	cp.session = session
	return &cp
}

// HasSession reports whether a session id is set.
func (c *ShelvesClient) HasSession() bool {
	return c.session != ""
}

func (c *ShelvesClient) do(ctx context.Context, method, path string, body, result any) (int, error) {
	req := request{method: method, url: c.baseURL + path, body: body, result: result}
	if c.session != "" {
		req.cookies = []*http.Cookie{{Name: shared.SessionCookieName, Value: c.session}}
	}
	return doJSON(ctx, c.httpClient, nil, req)
}

// Session returns the current session state.
func (c *ShelvesClient) Session(ctx context.Context) (*SessionInfo, error) {
	var info SessionInfo
	if _, err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// AuthURL asks the server for a Spotify authorize URL bound to the login nonce claim.
func (c *ShelvesClient) AuthURL(ctx context.Context, claim string) (string, error) {
	path := "/api/spotify/auth"
	if claim != "" {
		path += "?claim=" + url.QueryEscape(claim)
	}

	var resp AuthURLResponse
	if _, err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	if resp.AuthURL == "" {
		return "", fmt.Errorf("%w: empty authUrl", shared.ErrInvalidPayload)
	}
	return resp.AuthURL, nil
}

// Claim exchanges a completed login nonce for its session id.
//
// Returns [shared.ErrSessionNotFound] while the browser flow has not finished yet.
func (c *ShelvesClient) Claim(ctx context.Context, nonce string) (string, error) {
	var resp ClaimResponse
	status, err := c.do(ctx, http.MethodPost, "/api/auth/claim", ClaimRequest{Nonce: nonce}, &resp)
	if status == http.StatusNotFound {
		return "", shared.ErrSessionNotFound
	}
	if err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("%w: empty sessionId", shared.ErrInvalidPayload)
	}
	return resp.SessionID, nil
}

// Logout ends the session on the server.
func (c *ShelvesClient) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	return err
}

// AccessToken fetches a bearer token, refreshed server-side when close to expiry.
func (c *ShelvesClient) AccessToken(ctx context.Context) (*TokenResponse, error) {
	var resp TokenResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/auth/token", nil, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", shared.ErrNotAuthenticated)
	}
	return &resp, nil
}

type serverTokenSource struct {
	ctx    context.Context
	client *ShelvesClient
}

func (s serverTokenSource) Token() (*oauth2.Token, error) {
	resp, err := s.client.AccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: resp.AccessToken, TokenType: "Bearer", Expiry: resp.ExpiresAt}, nil
}

// TokenSource returns a caching [oauth2.TokenSource] that only calls the server again once the token is near expiry.
func (c *ShelvesClient) TokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, serverTokenSource{ctx: ctx, client: c})
}

// FetchAlbum asks the server to resolve a Spotify album link.
func (c *ShelvesClient) FetchAlbum(ctx context.Context, albumURL string) (*models.Album, error) {
	var album models.Album
	status, err := c.do(ctx, http.MethodPost, "/api/spotify/album", FetchAlbumRequest{URL: albumURL}, &album)
	switch {
	case status == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidAlbumURL, err)
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %v", shared.ErrAlbumNotFound, err)
	case err != nil:
		return nil, err
	}
	if err := album.Validate(); err != nil {
		return nil, err
	}
	return &album, nil
}

// GetShelves loads the shelves stored for externalID. A missing record yields an empty list.
func (c *ShelvesClient) GetShelves(ctx context.Context, externalID string) ([]models.Shelf, error) {
	var resp ShelvesPayload
	path := "/api/user/shelves?spotifyId=" + url.QueryEscape(externalID)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if errors.Is(err, shared.ErrServiceUnavailable) {
			return nil, fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
		}
		return nil, err
	}
	if resp.Shelves == nil {
		return []models.Shelf{}, nil
	}
	return resp.Shelves, nil
}

// PutShelves replaces the stored shelves for externalID.
func (c *ShelvesClient) PutShelves(ctx context.Context, externalID string, shelves []models.Shelf) error {
	payload := ShelvesPayload{SpotifyID: externalID, Shelves: shelves}
	if _, err := c.do(ctx, http.MethodPut, "/api/user/shelves", payload, nil); err != nil {
		if errors.Is(err, shared.ErrServiceUnavailable) {
			return fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
		}
		return err
	}
	return nil
}

// PublicShelves reads another user's shelves for sharing.
func (c *ShelvesClient) PublicShelves(ctx context.Context, spotifyID string) ([]models.Shelf, error) {
	var resp ShelvesPayload
	if _, err := c.do(ctx, http.MethodGet, "/api/user/"+url.PathEscape(spotifyID)+"/shelves", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Shelves, nil
}

// UpdateUser applies patch to the signed-in user's profile.
func (c *ShelvesClient) UpdateUser(ctx context.Context, patch UserPatch) (*models.Identity, error) {
	var resp struct {
		User models.Identity `json:"user"`
	}
	if _, err := c.do(ctx, http.MethodPatch, "/api/user", patch, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}
