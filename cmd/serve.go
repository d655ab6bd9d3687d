package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/shelves/internal/repositories"
	"github.com/desertthunder/shelves/internal/server"
	"github.com/desertthunder/shelves/internal/services"
	"github.com/desertthunder/shelves/internal/shared"
	"github.com/desertthunder/shelves/internal/tunnel"
	"github.com/urfave/cli/v3"
)

const sessionPurgeInterval = time.Hour

// Serve runs the API server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config
	if !cfg.Credentials.Spotify.Configured() {
		return fmt.Errorf("%w: set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET", shared.ErrMissingCredentials)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := shared.OpenDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := services.SpotifyOpts{HTTPClient: r.httpClient, RateLimit: cfg.Player.RateLimit}
	spotify, err := services.NewSpotifyService(cfg.Credentials.Spotify, opts)
	if err != nil {
		return err
	}
	albums, err := services.NewAlbumFetcher(cfg.Credentials.Spotify, opts)
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = cfg.Server.Addr()
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	tunnelCfg := cfg.Tunnel
	if cmd.Bool("tunnel") {
		tunnelCfg.Enabled = true
	}
	tun, err := tunnel.NewService(tunnelCfg, shared.WithLogger(r.logger, "component", "tunnel"))
	if err != nil {
		listener.Close()
		return err
	}
	if tun != nil {
		upstream := fmt.Sprintf("localhost:%d", listener.Addr().(*net.TCPAddr).Port)
		publicURL, err := tun.Start(ctx, upstream)
		if err != nil {
			listener.Close()
			return err
		}
		defer tun.Stop()

		spotify.SetRedirectURL(tun.CallbackURL())
		r.writePlain("Public URL: %s\n", publicURL)
		r.writePlain("Add %s as a redirect URI in the Spotify dashboard\n", tun.CallbackURL())

		go func() {
			select {
			case <-tun.Done():
				r.logger.Error("tunnel closed, shutting down")
				stop()
			case <-ctx.Done():
			}
		}()
	}

	sessions := repositories.NewSessionRepository(db)
	go r.purgeSessions(ctx, sessions)

	logger := shared.WithLogger(r.logger, "component", "server")
	handler := server.New(server.Deps{
		Auth:     spotify,
		Albums:   albums,
		Users:    repositories.NewUserRepository(db),
		Sessions: sessions,
		Shelves: repositories.NewTieredShelfStore(
			repositories.NewShelfRepository(db),
			repositories.NewMemoryShelfStore(),
			logger,
		),
		Logger:       logger,
		CookieSecure: cfg.Server.CookieSecure || tun != nil,
	})

	return server.Serve(ctx, listener, handler, logger)
}

// purgeSessions removes expired sessions and stale login claims until ctx ends.
func (r *Runner) purgeSessions(ctx context.Context, sessions *repositories.SessionRepository) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		if n, err := sessions.PurgeExpired(); err != nil {
			r.logger.Warn("session purge failed", "error", err)
		} else if n > 0 {
			r.logger.Info("purged expired sessions", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
