package server

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/services"
	"github.com/desertthunder/shelves/internal/shared"
)

const stateCookieName = "spotify_auth_state"

// OAuthHandler runs the browser side of the Spotify login.
//
// GET /api/spotify/auth hands out the authorize URL. Browser logins are bound by a state cookie;
// CLI logins pass ?claim=<nonce>, which becomes the state and is stored as a pending claim.
// The callback exchanges the code, finds or creates the user, opens a session and binds it to the
// claim when there is one.
type OAuthHandler struct {
	deps Deps
}

// NewOAuthHandler creates the login handler.
func NewOAuthHandler(deps Deps) *OAuthHandler {
	return &OAuthHandler{deps: deps.withDefaults()}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"GET /api/spotify/auth", "GET /api/spotify/callback", "GET /{$}"}
}

// ServeHTTP dispatches to the authorize, callback or landing page handler.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/spotify/auth":
		h.authorize(w, r)
	case "/api/spotify/callback":
		h.callback(w, r)
	default:
		h.landing(w, r)
	}
}

func (h *OAuthHandler) authorize(w http.ResponseWriter, r *http.Request) {
	if h.deps.Auth == nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Spotify API credentials not configured"})
		return
	}

	state := r.URL.Query().Get("claim")
	if state != "" {
		if err := (services.ClaimRequest{Nonce: state}).Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if err := h.deps.Sessions.CreateClaim(state); err != nil {
			h.deps.Logger.Error("failed to register login claim", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
			return
		}
	} else {
		state = shared.GenerateState()
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookieName,
			Value:    state,
			Path:     "/",
			MaxAge:   int((10 * time.Minute).Seconds()),
			HttpOnly: true,
			Secure:   h.deps.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	writeJSON(w, http.StatusOK, services.AuthURLResponse{AuthURL: h.deps.Auth.AuthURL(state)})
}

func redirectError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, "/?error="+url.QueryEscape(reason), http.StatusFound)
}

// validState reports whether state came from this server, and whether it is a CLI claim.
func (h *OAuthHandler) validState(r *http.Request, state string) (ok, claim bool) {
	if state == "" {
		return false, false
	}
	if c, err := r.Cookie(stateCookieName); err == nil && c.Value == state {
		return true, false
	}
	pending, err := h.deps.Sessions.PendingClaim(state)
	if err != nil {
		h.deps.Logger.Error("failed to check login claim", "error", err)
		return false, false
	}
	return pending, pending
}

func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.deps.Logger.Warn("authorization denied", "error", e, "description", q.Get("error_description"))
		redirectError(w, r, e)
		return
	}

	code := q.Get("code")
	if code == "" {
		redirectError(w, r, "no_code")
		return
	}

	state := q.Get("state")
	ok, isClaim := h.validState(r, state)
	if !ok {
		h.deps.Logger.Warn("invalid state parameter")
		redirectError(w, r, "invalid_state")
		return
	}
	if h.deps.Auth == nil {
		redirectError(w, r, "config_error")
		return
	}

	ctx := r.Context()
	token, err := h.deps.Auth.Exchange(ctx, code)
	if err != nil {
		h.deps.Logger.Error("token exchange failed", "error", err)
		redirectError(w, r, "auth_failed")
		return
	}

	profile, err := h.deps.Auth.Me(ctx, token.AccessToken)
	if err != nil {
		h.deps.Logger.Error("failed to fetch profile", "error", err)
		redirectError(w, r, "auth_failed")
		return
	}

	user, isNew, err := h.upsertUser(profile, token.AccessToken, token.RefreshToken, token.Expiry)
	if err != nil {
		h.deps.Logger.Error("failed to store user", "spotify_id", profile.ID, "error", err)
		redirectError(w, r, "auth_failed")
		return
	}

	session, err := h.openSession(user)
	if err != nil {
		h.deps.Logger.Error("failed to create session", "error", err)
		redirectError(w, r, "auth_failed")
		return
	}

	if isClaim {
		if err := h.deps.Sessions.BindClaim(state, session.ID); err != nil {
			h.deps.Logger.Warn("failed to bind login claim", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})
	setSessionCookie(w, session, h.deps.CookieSecure)

	h.deps.Logger.Info("user signed in", "spotify_id", user.SpotifyID(), "new", isNew, "cli", isClaim)

	target := "/?auth=success"
	if isNew {
		target = "/?welcome=true&auth=success"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// upsertUser finds the user for profile or creates one, then stores the token pair.
func (h *OAuthHandler) upsertUser(profile *services.SpotifyUser, access, refresh string, expiry time.Time) (*models.User, bool, error) {
	displayName := profile.DisplayName
	if displayName == "" {
		displayName = profile.ID
	}

	user, err := h.deps.Users.GetBySpotifyID(profile.ID)
	switch {
	case errors.Is(err, shared.ErrUserNotFound):
		user = models.NewUser(0, profile.ID, profile.Email, displayName)
		user.SetImageURL(profile.ImageURL())
		user.SetTokens(access, refresh, expiry)
		if err := h.deps.Users.Create(user); err != nil {
			return nil, false, err
		}
		return user, true, nil
	case err != nil:
		return nil, false, err
	}

	if err := h.deps.Users.UpdateTokens(user.ID(), access, refresh, expiry); err != nil {
		return nil, false, err
	}
	user.SetTokens(access, refresh, expiry)
	return user, false, nil
}

func (h *OAuthHandler) openSession(user *models.User) (models.Session, error) {
	id, err := shared.GenerateSessionID()
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to generate session id: %w", err)
	}
	session := models.NewSession(id, user, h.deps.Now())
	if err := h.deps.Sessions.Create(session); err != nil {
		return models.Session{}, err
	}
	return session, nil
}

func setSessionCookie(w http.ResponseWriter, session models.Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     shared.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		MaxAge:   int(models.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: shared.SessionCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
}

func (h *OAuthHandler) landing(w http.ResponseWriter, r *http.Request) {
	title, body := "Shelves", "Run shelves auth login from your terminal to sign in."
	switch {
	case r.URL.Query().Get("error") != "":
		title, body = "Authorization Failed", "Spotify sign-in failed ("+html.EscapeString(r.URL.Query().Get("error"))+"). Please try again."
	case r.URL.Query().Get("auth") == "success":
		title, body = "Authorization Successful", "You can close this window and return to the terminal."
		if r.URL.Query().Get("welcome") == "true" {
			title = "Welcome to Shelves"
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, landingPage, title, title, body)
}

const landingPage = `<!DOCTYPE html>
<html>
<head>
    <title>%s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #121212; }
        .container { text-align: center; background: #181818; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.4); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #b3b3b3; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>
`
