package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/services"
	"github.com/desertthunder/shelves/internal/shared"
)

// tokenRefreshWindow is how close to expiry a stored access token gets refreshed.
const tokenRefreshWindow = 5 * time.Minute

type apiHandler struct {
	deps Deps
}

type successResponse struct {
	Success bool `json:"success"`
}

type userResponse struct {
	User models.Identity `json:"user"`
}

type publicUser struct {
	ID          string `json:"id"`
	SpotifyID   string `json:"spotifyId"`
	DisplayName string `json:"displayName"`
	ImageURL    string `json:"imageUrl"`
}

type publicShelvesResponse struct {
	User      publicUser     `json:"user"`
	SpotifyID string         `json:"spotifyId"`
	Shelves   []models.Shelf `json:"shelves"`
}

// session returns the live session named by the request cookie.
func (a *apiHandler) session(r *http.Request) (models.Session, bool) {
	c, err := r.Cookie(shared.SessionCookieName)
	if err != nil || c.Value == "" {
		return models.Session{}, false
	}
	session, err := a.deps.Sessions.Get(c.Value)
	if err != nil {
		if !errors.Is(err, shared.ErrSessionNotFound) {
			a.deps.Logger.Error("failed to load session", "error", err)
		}
		return models.Session{}, false
	}
	return session, true
}

func (a *apiHandler) requireSession(w http.ResponseWriter, r *http.Request) (models.Session, bool) {
	session, ok := a.session(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Not authenticated"})
	}
	return session, ok
}

func (a *apiHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// me reports the signed-in identity, falling back to the session snapshot when the user row is gone.
func (a *apiHandler) me(w http.ResponseWriter, r *http.Request) {
	session, ok := a.session(r)
	if !ok {
		writeJSON(w, http.StatusOK, services.SessionInfo{Authenticated: false})
		return
	}

	identity := session.Identity
	user, err := a.deps.Users.Get(session.UserID)
	switch {
	case err == nil:
		identity = user.Identity()
	case errors.Is(err, shared.ErrUserNotFound):
		a.deps.Logger.Warn("user not found, using session identity", "user_id", session.UserID)
	default:
		a.deps.Logger.Error("failed to load user", "error", err)
	}
	writeJSON(w, http.StatusOK, services.SessionInfo{Authenticated: true, User: &identity})
}

func (a *apiHandler) logout(w http.ResponseWriter, r *http.Request) {
	if session, ok := a.session(r); ok {
		if err := a.deps.Sessions.Delete(session.ID); err != nil {
			a.writeError(w, r, err)
			return
		}
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// token returns the user's access token, refreshing it first when it is about to expire.
func (a *apiHandler) token(w http.ResponseWriter, r *http.Request) {
	session, ok := a.requireSession(w, r)
	if !ok {
		return
	}

	user, err := a.deps.Users.Get(session.UserID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if user.TokenExpiresWithin(tokenRefreshWindow, a.deps.Now()) {
		if a.deps.Auth == nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Spotify API credentials not configured"})
			return
		}

		token, err := a.deps.Auth.Refresh(r.Context(), user.RefreshToken())
		if err != nil {
			a.deps.Logger.Warn("failed to refresh token", "user_id", user.ID(), "error", err)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Failed to refresh token", NeedsReauth: true})
			return
		}
		if err := a.deps.Users.UpdateTokens(user.ID(), token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
			a.writeError(w, r, err)
			return
		}
		user.SetTokens(token.AccessToken, token.RefreshToken, token.Expiry)
		a.deps.Logger.Debug("token refreshed", "user_id", user.ID())
	}

	writeJSON(w, http.StatusOK, services.TokenResponse{AccessToken: user.AccessToken(), ExpiresAt: user.TokenExpiresAt()})
}

// claim hands a CLI the session its browser login produced. Pending claims are 404.
func (a *apiHandler) claim(w http.ResponseWriter, r *http.Request) {
	var req services.ClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	sessionID, err := a.deps.Sessions.Claim(req.Nonce)
	if errors.Is(err, shared.ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Login not completed"})
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services.ClaimResponse{SessionID: sessionID})
}

func (a *apiHandler) album(w http.ResponseWriter, r *http.Request) {
	var req services.FetchAlbumRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if a.deps.Albums == nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Spotify API credentials not configured"})
		return
	}

	album, err := a.deps.Albums.FetchAlbum(r.Context(), req.URL)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, album)
}

func (a *apiHandler) getUser(w http.ResponseWriter, r *http.Request) {
	session, ok := a.requireSession(w, r)
	if !ok {
		return
	}
	user, err := a.deps.Users.Get(session.UserID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user.Identity()})
}

func (a *apiHandler) patchUser(w http.ResponseWriter, r *http.Request) {
	session, ok := a.requireSession(w, r)
	if !ok {
		return
	}

	var patch services.UserPatch
	if err := decodeJSON(r, &patch); err != nil {
		a.writeError(w, r, err)
		return
	}

	user, err := a.deps.Users.Get(session.UserID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if patch.DisplayName != nil {
		user.SetDisplayName(*patch.DisplayName)
	}
	if patch.Preferences != nil {
		user.SetPreferences(*patch.Preferences)
	}
	if err := a.deps.Users.Update(user); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.deps.Sessions.UpdateIdentity(user.SpotifyID(), user.Identity()); err != nil {
		a.deps.Logger.Warn("failed to refresh session identity", "error", err)
	}

	writeJSON(w, http.StatusOK, userResponse{User: user.Identity()})
}

// ownsShelves rejects a request naming another account's shelves.
func ownsShelves(w http.ResponseWriter, session models.Session, spotifyID string) bool {
	if spotifyID != "" && spotifyID != session.SpotifyID {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "Cannot access another user's shelves"})
		return false
	}
	return true
}

func (a *apiHandler) getShelves(w http.ResponseWriter, r *http.Request) {
	session, ok := a.requireSession(w, r)
	if !ok || !ownsShelves(w, session, r.URL.Query().Get("spotifyId")) {
		return
	}

	shelves, err := a.deps.Shelves.GetShelves(r.Context(), session.SpotifyID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services.ShelvesPayload{SpotifyID: session.SpotifyID, Shelves: shelves})
}

func (a *apiHandler) putShelves(w http.ResponseWriter, r *http.Request) {
	session, ok := a.requireSession(w, r)
	if !ok {
		return
	}

	var payload services.ShelvesPayload
	if err := decodeJSON(r, &payload); err != nil {
		a.writeError(w, r, err)
		return
	}
	if !ownsShelves(w, session, payload.SpotifyID) {
		return
	}

	if err := a.deps.Shelves.PutShelves(r.Context(), session.SpotifyID, payload.Shelves); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.deps.Logger.Debug("shelves saved", "spotify_id", session.SpotifyID, "count", len(payload.Shelves))
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// publicShelves is the read-only share view of another user's shelves.
func (a *apiHandler) publicShelves(w http.ResponseWriter, r *http.Request) {
	spotifyID := r.PathValue("spotifyId")
	if spotifyID == "" {
		a.writeError(w, r, fmt.Errorf("%w: spotify id is required", shared.ErrInvalidInput))
		return
	}

	user, err := a.deps.Users.GetBySpotifyID(spotifyID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	shelves, err := a.deps.Shelves.GetShelves(r.Context(), spotifyID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, publicShelvesResponse{
		User: publicUser{
			ID:          user.ID(),
			SpotifyID:   user.SpotifyID(),
			DisplayName: user.DisplayName(),
			ImageURL:    user.ImageURL(),
		},
		SpotifyID: spotifyID,
		Shelves:   shelves,
	})
}
