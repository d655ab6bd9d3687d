package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/shelves/internal/services"
	"github.com/desertthunder/shelves/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin signs the CLI in through the server's Spotify flow.
//
// The authorize URL carries a one-time claim nonce. Once the browser round trip is done the session
// id bound to that nonce is claimed with bounded exponential backoff and cached locally.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	store, err := r.localStore()
	if err != nil {
		return err
	}

	nonce, err := shared.GenerateSessionID()
	if err != nil {
		return err
	}

	client := services.NewShelvesClient(r.config.Client.ServerURL, r.httpClient, "")
	authURL, err := client.AuthURL(ctx, nonce)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	r.writePlain("Opening Spotify login in your browser:\n%s\n", authURL)
	if err := r.open(authURL); err != nil {
		r.logger.Warn("could not open browser, open the link above manually", "error", err)
	}

	r.writePlain("Press Enter once you have approved access...")
	if _, err := bufio.NewReader(r.input).ReadString('\n'); err != nil {
		r.logger.Debug("no confirmation read from input", "error", err)
	}
	r.writePlain("\n")

	var sessionID string
	err = r.backoff.Retry(ctx, func(ctx context.Context, attempt int) error {
		id, err := client.Claim(ctx, nonce)
		if errors.Is(err, shared.ErrSessionNotFound) {
			r.logger.Debug("login not confirmed yet", "attempt", attempt+1)
			return err
		}
		if err != nil {
			return shared.Permanent(err)
		}
		sessionID = id
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: could not confirm login: %v", shared.ErrAuthFailed, err)
	}

	if err := store.Save(shared.SessionCookieName, sessionID); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	user, err := r.identity(ctx, client.WithSession(sessionID))
	if err != nil || user == nil {
		r.logger.Warn("signed in, but the session lookup failed", "error", err)
		return r.writePlain("✓ Signed in\n")
	}
	r.logger.Info("signed in", "user", user.ExternalID)
	return r.writePlain("✓ Signed in as %s\n", displayName(user.DisplayName, user.ExternalID))
}

// AuthLogout ends the server session and forgets it locally.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	client, err := r.client()
	if err != nil {
		return err
	}
	if !client.HasSession() {
		return r.writePlain("Not signed in\n")
	}

	if err := client.Logout(ctx); err != nil {
		r.logger.Warn("server logout failed, clearing local session anyway", "error", err)
	}
	if err := r.store.Delete(shared.SessionCookieName); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return r.writePlain("✓ Signed out\n")
}

// AuthStatus shows the signed in user.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	client, err := r.client()
	if err != nil {
		return err
	}

	info := &services.SessionInfo{}
	if client.HasSession() {
		if info, err = client.Session(ctx); err != nil {
			return err
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(info, cmd.Bool("pretty"))
	}
	if !info.Authenticated || info.User == nil {
		return r.writePlain("Not signed in. Run 'shelves auth login'.\n")
	}

	u := info.User
	r.writePlain("✓ Signed in as %s\n", displayName(u.DisplayName, u.ExternalID))
	r.writePlain("Spotify ID: %s\n", u.ExternalID)
	if u.Email != "" {
		r.writePlain("Email: %s\n", u.Email)
	}
	return nil
}

// AuthToken prints a player access token issued by the server.
func (r *Runner) AuthToken(ctx context.Context, cmd *cli.Command) error {
	client, err := r.client()
	if err != nil {
		return err
	}
	if !client.HasSession() {
		return fmt.Errorf("%w: run 'shelves auth login' first", shared.ErrNotAuthenticated)
	}

	token, err := client.AccessToken(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(token, cmd.Bool("pretty"))
	}
	return r.writePlain("%s\n", token.AccessToken)
}

func displayName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
