package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelves/internal/collection"
	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/playback"
	"github.com/desertthunder/shelves/internal/services"
	"github.com/desertthunder/shelves/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// sessionStore is the local key/value cache the CLI keeps its session id and shelves in.
type sessionStore interface {
	collection.LocalStore
	Delete(key string) error
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	store      sessionStore
	open       func(target string) error
	backoff    shared.Backoff
	readyWait  time.Duration
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader

	// Store overrides the file cache at config.Client.CachePath.
	Store sessionStore
	// Open launches the browser. Defaults to [shared.OpenBrowser].
	Open    func(target string) error
	Backoff *shared.Backoff
	// ReadyWait bounds how long play commands wait for the device. Defaults to 10s.
	ReadyWait time.Duration
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = "config.toml"
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Config.Client.Timeout()}
	}
	if opts.Open == nil {
		opts.Open = shared.OpenBrowser
	}
	backoff := shared.DefaultBackoff()
	if opts.Backoff != nil {
		backoff = *opts.Backoff
	}
	if opts.ReadyWait <= 0 {
		opts.ReadyWait = 10 * time.Second
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		store:      opts.Store,
		open:       opts.Open,
		backoff:    backoff,
		readyWait:  opts.ReadyWait,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, authCommand, albumCommand, shelfCommand, playCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) localStore() (sessionStore, error) {
	if r.store != nil {
		return r.store, nil
	}
	store, err := collection.NewFileStore(r.config.Client.CachePath)
	if err != nil {
		return nil, err
	}
	r.store = store
	return store, nil
}

// sessionID returns the stored server session id, or "" when signed out.
func (r *Runner) sessionID() (string, error) {
	store, err := r.localStore()
	if err != nil {
		return "", err
	}
	var id string
	if _, err := store.Load(shared.SessionCookieName, &id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Runner) client() (*services.ShelvesClient, error) {
	id, err := r.sessionID()
	if err != nil {
		return nil, err
	}
	return services.NewShelvesClient(r.config.Client.ServerURL, r.httpClient, id), nil
}

// identity resolves the signed in user. It returns nil without an error when signed out.
func (r *Runner) identity(ctx context.Context, client *services.ShelvesClient) (*models.Identity, error) {
	if !client.HasSession() {
		return nil, nil
	}
	info, err := client.Session(ctx)
	if err != nil {
		return nil, err
	}
	if !info.Authenticated || info.User == nil {
		return nil, nil
	}
	return info.User, nil
}

// manager loads the shelf collection, syncing with the server when signed in.
func (r *Runner) manager(ctx context.Context) (*collection.Manager, *services.ShelvesClient, error) {
	store, err := r.localStore()
	if err != nil {
		return nil, nil, err
	}
	client, err := r.client()
	if err != nil {
		return nil, nil, err
	}

	opts := collection.ManagerOpts{Local: store, Logger: r.logger}
	user, err := r.identity(ctx, client)
	if err != nil {
		r.logger.Warn("session lookup failed, using local shelves", "error", err)
	}
	if user != nil {
		opts.Remote = client
	}

	m := collection.NewManager(opts)
	if user != nil {
		m.SetIdentity(user.ExternalID)
	}
	if err := m.Load(ctx); err != nil {
		return nil, nil, err
	}
	return m, client, nil
}

// controller connects a playback controller with the server-issued token.
//
// The returned stop function disconnects the device session.
func (r *Runner) controller(ctx context.Context, client *services.ShelvesClient) (*playback.Controller, func(), error) {
	if !client.HasSession() {
		return nil, nil, fmt.Errorf("%w: run 'shelves auth login' first", shared.ErrNotAuthenticated)
	}

	player := r.config.Player
	session := playback.NewSession(func(ts oauth2.TokenSource) playback.PlayerAPI {
		return services.NewPlayerClient(ts, services.PlayerOpts{HTTPClient: r.httpClient, RateLimit: player.RateLimit})
	}, playback.SessionOpts{
		DeviceName:   player.DeviceName,
		PollInterval: player.PollInterval(),
		Logger:       shared.WithLogger(r.logger, "component", "session"),
	})
	c := playback.NewController(session, playback.ControllerOpts{Logger: shared.WithLogger(r.logger, "component", "player")})

	runCtx, cancel := context.WithCancel(ctx)
	go c.Run(runCtx)
	stop := func() {
		c.Disconnect()
		cancel()
	}

	if err := c.Connect(ctx, client.TokenSource(runCtx)); err != nil {
		stop()
		return nil, nil, err
	}
	return c, stop, nil
}

// awaitReady blocks until the controller reports a device or the wait elapses.
func (r *Runner) awaitReady(ctx context.Context, c *playback.Controller) (models.PlaybackState, error) {
	st, ok, err := r.awaitState(ctx, c, r.readyWait, func(st models.PlaybackState) bool { return st.IsReady })
	if err != nil {
		return st, err
	}
	if !ok {
		return st, fmt.Errorf("%w: no Spotify device became ready", shared.ErrDeviceNotReady)
	}
	return st, nil
}

// awaitState waits up to wait for a state matching done. ok is false when the wait elapsed.
func (r *Runner) awaitState(
	ctx context.Context,
	c *playback.Controller,
	wait time.Duration,
	done func(models.PlaybackState) bool,
) (st models.PlaybackState, ok bool, err error) {
	ch := c.Subscribe()
	defer c.Unsubscribe(ch)
	if st = c.State(); done(st) {
		return st, true, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case next, open := <-ch:
			if !open {
				return st, false, fmt.Errorf("%w: player closed", shared.ErrDeviceNotReady)
			}
			if st = next; done(st) {
				return st, true, nil
			}
		case <-timer.C:
			return c.State(), false, nil
		case <-ctx.Done():
			return st, false, ctx.Err()
		}
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
