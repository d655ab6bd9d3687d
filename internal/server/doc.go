// Package server is the HTTP side of shelves: routing, middleware, the Spotify login flow and the
// JSON API the CLI and TUI talk to.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] registers
// "METHOD /path" patterns on an [http.ServeMux], so path wildcards and 405 responses come from the
// standard mux. [Middleware] wraps handlers in reverse order (last added executes first).
//
// # Login
//
// [OAuthHandler] implements the authorization-code flow. A browser login is bound by a short-lived
// state cookie. A CLI login registers a claim nonce as the state; once the callback completes the
// CLI trades the nonce for its session id with POST /api/auth/claim. Sessions are carried in the
// HttpOnly spotify_session cookie for 30 days.
//
// # API
//
//	GET   /api/auth/me                  session identity
//	POST  /api/auth/logout              end the session
//	GET   /api/auth/token               access token, refreshed within 5 minutes of expiry
//	POST  /api/auth/claim               exchange a CLI login nonce for a session id
//	POST  /api/spotify/album            resolve an album link into an album record
//	GET   /api/user, PATCH /api/user    profile and preferences
//	GET   /api/user/shelves             the caller's shelves
//	PUT   /api/user/shelves             replace the caller's shelves
//	GET   /api/user/{spotifyId}/shelves read-only shelves of any user
//
// Request bodies are typed, reject unknown fields and are validated before use. Errors map from the
// shared sentinels onto status codes in one place.
package server
