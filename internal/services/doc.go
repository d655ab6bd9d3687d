// Package services implements the HTTP clients the rest of the application talks through.
//
// # Spotify
//
// [SpotifyService] runs the authorization-code flow for the server: it builds the authorize URL,
// exchanges codes, refreshes tokens and reads the user profile. It holds no tokens itself.
//
// [AlbumFetcher] resolves album links with an app-only client credentials token
// ([clientcredentials.Config]) and maps the vendor album into [models.Album], rejecting records that
// fail validation instead of coercing them.
//
// [PlayerClient] drives the Connect player endpoints (state, devices, transfer, play, pause, seek)
// with a user token taken from an [oauth2.TokenSource]. Every method returns the HTTP status so the
// playback core can act on 204/403/404.
//
// # Shelves server
//
// [ShelvesClient] is the CLI/TUI side of the server API: session, login claim, bearer token,
// album metadata, shelf persistence and profile updates. It is created per session with
// [NewShelvesClient]; there is no package-level client.
//
// # Error Handling
//
// Non-2xx responses become [*APIError], which unwraps to sentinel errors from the shared package:
//   - [shared.ErrNotAuthenticated] : 401
//   - [shared.ErrServiceUnavailable] : 502/503 and transport failures
//   - [shared.ErrAPIRequest] : everything else
//
// Vendor calls are rate limited with [rate.Limiter] when a limit is configured.
package services
