package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/shared"
)

// ClaimTTL bounds how long a CLI login nonce waits for the browser round trip.
const ClaimTTL = 10 * time.Minute

// SessionRepository persists cookie sessions and pending CLI login claims.
type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores session.
func (r *SessionRepository) Create(session models.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	identity, err := json.Marshal(session.Identity)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}

	query := `
		INSERT INTO sessions (id, user_id, spotify_id, identity, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, session.ID, session.UserID, session.SpotifyID, string(identity), session.CreatedAt.UTC(), session.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Get returns the live session with id. Expired sessions are deleted and reported as not found.
func (r *SessionRepository) Get(id string) (models.Session, error) {
	query := `SELECT id, user_id, spotify_id, identity, created_at, expires_at FROM sessions WHERE id = ?`

	var (
		session  models.Session
		identity string
	)
	err := r.db.QueryRow(query, id).Scan(&session.ID, &session.UserID, &session.SpotifyID, &identity, &session.CreatedAt, &session.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, shared.ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to query session: %w", err)
	}

	if session.Expired(r.now()) {
		_ = r.Delete(id)
		return models.Session{}, shared.ErrSessionNotFound
	}

	if err := json.Unmarshal([]byte(identity), &session.Identity); err != nil {
		return models.Session{}, fmt.Errorf("%w: session identity: %v", shared.ErrInvalidPayload, err)
	}
	return session, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *SessionRepository) Delete(id string) error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// UpdateIdentity refreshes the identity snapshot on every session of spotifyID.
func (r *SessionRepository) UpdateIdentity(spotifyID string, identity models.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}
	if _, err := r.db.Exec(`UPDATE sessions SET identity = ? WHERE spotify_id = ?`, string(data), spotifyID); err != nil {
		return fmt.Errorf("failed to update sessions: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired sessions and claims, returning the number of sessions removed.
func (r *SessionRepository) PurgeExpired() (int64, error) {
	now := r.now()
	result, err := r.db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	if _, err := r.db.Exec(`DELETE FROM login_claims WHERE expires_at <= ?`, now); err != nil {
		return 0, fmt.Errorf("failed to purge claims: %w", err)
	}
	return result.RowsAffected()
}

// CreateClaim registers a pending CLI login for nonce.
func (r *SessionRepository) CreateClaim(nonce string) error {
	if nonce == "" {
		return fmt.Errorf("%w: claim nonce is required", shared.ErrInvalidInput)
	}
	now := r.now()
	query := `INSERT OR REPLACE INTO login_claims (nonce, session_id, created_at, expires_at) VALUES (?, NULL, ?, ?)`
	if _, err := r.db.Exec(query, nonce, now, now.Add(ClaimTTL)); err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// BindClaim attaches sessionID to a pending claim once the OAuth callback has completed.
func (r *SessionRepository) BindClaim(nonce, sessionID string) error {
	query := `UPDATE login_claims SET session_id = ? WHERE nonce = ? AND expires_at > ?`
	result, err := r.db.Exec(query, sessionID, nonce, r.now())
	if err != nil {
		return fmt.Errorf("failed to bind claim: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: claim %s", shared.ErrSessionNotFound, nonce)
	}
	return nil
}

// Claim returns the session bound to nonce and consumes the claim.
//
// Returns [shared.ErrSessionNotFound] while the claim is pending, expired or unknown.
func (r *SessionRepository) Claim(nonce string) (string, error) {
	var sessionID sql.NullString
	query := `SELECT session_id FROM login_claims WHERE nonce = ? AND expires_at > ?`
	err := r.db.QueryRow(query, nonce, r.now()).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !sessionID.Valid) {
		return "", shared.ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query claim: %w", err)
	}

	if _, err := r.db.Exec(`DELETE FROM login_claims WHERE nonce = ?`, nonce); err != nil {
		return "", fmt.Errorf("failed to consume claim: %w", err)
	}
	return sessionID.String, nil
}

// PendingClaim reports whether nonce is a live claim still waiting for its callback.
func (r *SessionRepository) PendingClaim(nonce string) (bool, error) {
	if nonce == "" {
		return false, nil
	}
	var n int
	query := `SELECT COUNT(*) FROM login_claims WHERE nonce = ? AND session_id IS NULL AND expires_at > ?`
	if err := r.db.QueryRow(query, nonce, r.now()).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query claim: %w", err)
	}
	return n > 0, nil
}
