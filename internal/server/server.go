// package server contains middleware & handlers for the shelves web service
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/repositories"
	"github.com/desertthunder/shelves/internal/services"
	"golang.org/x/oauth2"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows the route patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the "METHOD /path" patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Authenticator runs the Spotify authorization-code flow. [services.SpotifyService] implements it.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	Me(ctx context.Context, accessToken string) (*services.SpotifyUser, error)
}

// AlbumSource resolves album links. [services.AlbumFetcher] implements it.
type AlbumSource interface {
	FetchAlbum(ctx context.Context, rawURL string) (*models.Album, error)
}

// Deps are the collaborators shared by every handler. Build them once at startup.
type Deps struct {
	Auth     Authenticator
	Albums   AlbumSource
	Users    *repositories.UserRepository
	Sessions *repositories.SessionRepository
	Shelves  repositories.ShelfStore
	Logger   *log.Logger

	// CookieSecure marks the session cookie Secure, required once served over https.
	CookieSecure bool
	Now          func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = log.New(io.Discard)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// New builds the routed handler for the whole API.
func New(deps Deps) http.Handler {
	deps = deps.withDefaults()

	router := NewBasicRouter()
	router.Use(Recoverer(deps.Logger), RequestLogger(deps.Logger))

	router.Handler(NewOAuthHandler(deps))

	api := &apiHandler{deps: deps}
	router.Handle(http.MethodGet, "/api/auth/me", http.HandlerFunc(api.me))
	router.Handle(http.MethodPost, "/api/auth/logout", http.HandlerFunc(api.logout))
	router.Handle(http.MethodGet, "/api/auth/token", http.HandlerFunc(api.token))
	router.Handle(http.MethodPost, "/api/auth/claim", http.HandlerFunc(api.claim))
	router.Handle(http.MethodPost, "/api/spotify/album", http.HandlerFunc(api.album))
	router.Handle(http.MethodGet, "/api/user", http.HandlerFunc(api.getUser))
	router.Handle(http.MethodPatch, "/api/user", http.HandlerFunc(api.patchUser))
	router.Handle(http.MethodGet, "/api/user/shelves", http.HandlerFunc(api.getShelves))
	router.Handle(http.MethodPut, "/api/user/shelves", http.HandlerFunc(api.putShelves))
	router.Handle(http.MethodGet, "/api/user/{spotifyId}/shelves", http.HandlerFunc(api.publicShelves))
	router.Handle(http.MethodGet, "/health", http.HandlerFunc(api.health))

	return router
}

// Serve runs handler on listener until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, listener net.Listener, handler http.Handler, logger *log.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", listener.Addr().String())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error shutting down server", "error", err)
	}
	return nil
}
