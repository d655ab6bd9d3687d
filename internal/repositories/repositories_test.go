package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestUserRepository(t *testing.T) {
	t.Run("Generic repository", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		var repo models.Repository[*models.User] = NewUserRepository(db)
		user := models.NewUser(0, "spotify-1", "test@example.com", "Test User")
		if err := repo.Create(user); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		got, err := repo.Get(user.ID())
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if err := got.Validate(); err != nil {
			t.Errorf("stored user should validate, got %v", err)
		}

		users, err := repo.List(map[string]any{"spotify_id": "spotify-1"})
		if err != nil || len(users) != 1 {
			t.Fatalf("expected one user, got %d (%v)", len(users), err)
		}

		if err := repo.Delete(user.ID()); err != nil {
			t.Fatalf("failed to delete user: %v", err)
		}
		if _, err := repo.Get(user.ID()); !errors.Is(err, shared.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound after delete, got %v", err)
		}
	})

	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := models.NewUser(0, "spotify-1", "test@example.com", "Test User")

		err := repo.Create(user)
		if err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		if user.ID() == "" {
			t.Error("user ID should be set after creation")
		}
		if user.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", user.Sequence())
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := models.NewUser(0, "spotify-1", "test@example.com", "Test User")
		user.SetImageURL("https://i.scdn.co/image/1")
		user.SetTokens("access", "refresh", time.Now().Add(time.Hour))

		if err := repo.Create(user); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		retrieved, err := repo.Get(user.ID())
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}

		if retrieved.ID() != user.ID() {
			t.Errorf("expected ID %s, got %s", user.ID(), retrieved.ID())
		}
		if retrieved.Email() != user.Email() {
			t.Errorf("expected email %s, got %s", user.Email(), retrieved.Email())
		}
		if retrieved.RefreshToken() != "refresh" || retrieved.ImageURL() != user.ImageURL() {
			t.Errorf("unexpected user fields: %+v", retrieved.Identity())
		}
		if retrieved.Preferences() != models.DefaultPreferences() {
			t.Errorf("expected default preferences, got %+v", retrieved.Preferences())
		}
		if retrieved.TokenExpiresWithin(5*time.Minute, time.Now()) {
			t.Error("token should not be near expiry")
		}
	})

	t.Run("GetBySpotifyID", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := models.NewUser(0, "spotify-1", "test@example.com", "Test User")
		if err := repo.Create(user); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		retrieved, err := repo.GetBySpotifyID("spotify-1")
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if retrieved.ID() != user.ID() {
			t.Errorf("expected ID %s, got %s", user.ID(), retrieved.ID())
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := models.NewUser(0, "spotify-1", "test@example.com", "Test User")

		if err := repo.Create(user); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		retrieved, err := repo.Get(user.ID())
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}

		retrieved.SetDisplayName("Renamed")
		retrieved.SetPreferences(models.Preferences{Theme: "dark", DefaultView: "list", AutoPlay: true})
		if err := repo.Update(retrieved); err != nil {
			t.Fatalf("failed to update user: %v", err)
		}

		updated, err := repo.Get(user.ID())
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if updated.DisplayName() != "Renamed" || updated.Preferences().Theme != "dark" || !updated.Preferences().AutoPlay {
			t.Errorf("update not persisted: %+v", updated.Identity())
		}
	})

	t.Run("UpdateTokens keeps refresh token", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := models.NewUser(0, "spotify-1", "test@example.com", "Test User")
		user.SetTokens("access-1", "refresh-1", time.Now())
		if err := repo.Create(user); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		expiry := time.Now().Add(time.Hour)
		if err := repo.UpdateTokens(user.ID(), "access-2", "", expiry); err != nil {
			t.Fatalf("failed to update tokens: %v", err)
		}

		retrieved, err := repo.Get(user.ID())
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if retrieved.AccessToken() != "access-2" || retrieved.RefreshToken() != "refresh-1" {
			t.Errorf("unexpected tokens: %s / %s", retrieved.AccessToken(), retrieved.RefreshToken())
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := models.NewUser(0, "spotify-1", "test@example.com", "Test User")

		if err := repo.Create(user); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		if err := repo.Delete(user.ID()); err != nil {
			t.Fatalf("failed to delete user: %v", err)
		}

		_, err := repo.Get(user.ID())
		if !errors.Is(err, shared.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound for deleted user, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)

		users := []*models.User{
			models.NewUser(0, "spotify-1", "user1@example.com", "User One"),
			models.NewUser(0, "spotify-2", "user2@example.com", "User Two"),
			models.NewUser(0, "spotify-3", "user3@example.com", "User Three"),
		}

		for _, user := range users {
			if err := repo.Create(user); err != nil {
				t.Fatalf("failed to create user: %v", err)
			}
		}

		retrieved, err := repo.List(map[string]any{})
		if err != nil {
			t.Fatalf("failed to list users: %v", err)
		}

		if len(retrieved) != 3 {
			t.Errorf("expected 3 users, got %d", len(retrieved))
		}

		filtered, err := repo.List(map[string]any{"email": "user2@example.com"})
		if err != nil {
			t.Fatalf("failed to list filtered users: %v", err)
		}

		if len(filtered) != 1 {
			t.Errorf("expected 1 user, got %d", len(filtered))
		}

		if len(filtered) > 0 && filtered[0].SpotifyID() != "spotify-2" {
			t.Errorf("expected spotify-2, got %s", filtered[0].SpotifyID())
		}
	})
}

func TestShelfRepository(t *testing.T) {
	ctx := context.Background()
	created := time.UnixMilli(1700000000000).UTC()

	t.Run("Missing record is empty", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		shelves, err := NewShelfRepository(db).GetShelves(ctx, "nobody")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if shelves == nil || len(shelves) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", shelves)
		}
	})

	t.Run("Put then Get preserves order", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewShelfRepository(db)
		first := models.Shelf{ID: "s1", Name: "My Albums", CreatedAt: created, Albums: []models.Album{
			{ID: "A", Name: "Alpha"}, {ID: "B", Name: "Beta"}, {ID: "C", Name: "Gamma"},
		}}
		second := models.Shelf{ID: "s2", Name: "Jazz", CreatedAt: created, Albums: []models.Album{}}

		if err := repo.PutShelves(ctx, "listener", []models.Shelf{first, second}); err != nil {
			t.Fatalf("PutShelves() error = %v", err)
		}

		got, err := repo.GetShelves(ctx, "listener")
		if err != nil {
			t.Fatalf("GetShelves() error = %v", err)
		}
		if len(got) != 2 || got[0].ID != "s1" || got[1].ID != "s2" {
			t.Fatalf("unexpected shelves: %+v", got)
		}
		for i, want := range []string{"A", "B", "C"} {
			if got[0].Albums[i].ID != want {
				t.Errorf("album %d = %s, want %s", i, got[0].Albums[i].ID, want)
			}
		}
		if !got[0].CreatedAt.Equal(created) {
			t.Errorf("created at = %v, want %v", got[0].CreatedAt, created)
		}
	})

	t.Run("Put overwrites", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewShelfRepository(db)
		repo.PutShelves(ctx, "listener", []models.Shelf{{ID: "s1", Name: "Old", Albums: []models.Album{}}})
		repo.PutShelves(ctx, "listener", []models.Shelf{})

		got, err := repo.GetShelves(ctx, "listener")
		if err != nil {
			t.Fatalf("GetShelves() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected overwrite with empty list, got %+v", got)
		}
	})

	t.Run("Requires external id", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if err := NewShelfRepository(db).PutShelves(ctx, "", nil); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Closed database", func(t *testing.T) {
		db := setupTestDB(t)
		db.Close()

		if _, err := NewShelfRepository(db).GetShelves(ctx, "listener"); !errors.Is(err, shared.ErrStoreUnavailable) {
			t.Errorf("expected ErrStoreUnavailable, got %v", err)
		}
	})
}

func TestSessionRepository(t *testing.T) {
	newUser := func() *models.User {
		u := models.NewUser(1, "spotify-1", "test@example.com", "Test User")
		u.SetID("user-1")
		return u
	}

	t.Run("Create and Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSessionRepository(db)
		session := models.NewSession("sess-1", newUser(), time.Now())
		if err := repo.Create(session); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.Get("sess-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.SpotifyID != "spotify-1" || got.Identity.DisplayName != "Test User" {
			t.Errorf("unexpected session: %+v", got)
		}
	})

	t.Run("Expired session is not found", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSessionRepository(db)
		session := models.NewSession("sess-1", newUser(), time.Now().Add(-models.SessionTTL-time.Minute))
		if err := repo.Create(session); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		if _, err := repo.Get("sess-1"); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSessionRepository(db)
		repo.Create(models.NewSession("sess-1", newUser(), time.Now()))
		if err := repo.Delete("sess-1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := repo.Get("sess-1"); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
		if err := repo.Delete("sess-1"); err != nil {
			t.Errorf("second delete should succeed, got %v", err)
		}
	})

	t.Run("UpdateIdentity", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSessionRepository(db)
		user := newUser()
		repo.Create(models.NewSession("sess-1", user, time.Now()))

		user.SetDisplayName("Renamed")
		if err := repo.UpdateIdentity(user.SpotifyID(), user.Identity()); err != nil {
			t.Fatalf("UpdateIdentity() error = %v", err)
		}
		got, _ := repo.Get("sess-1")
		if got.Identity.DisplayName != "Renamed" {
			t.Errorf("identity not refreshed: %+v", got.Identity)
		}
	})

	t.Run("Claim lifecycle", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSessionRepository(db)
		if err := repo.CreateClaim("nonce-1"); err != nil {
			t.Fatalf("CreateClaim() error = %v", err)
		}

		if _, err := repo.Claim("nonce-1"); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("pending claim should be not found, got %v", err)
		}
		if ok, err := repo.PendingClaim("nonce-1"); !ok || err != nil {
			t.Errorf("PendingClaim() = %v, %v, want true", ok, err)
		}

		if err := repo.BindClaim("nonce-1", "sess-1"); err != nil {
			t.Fatalf("BindClaim() error = %v", err)
		}
		if ok, _ := repo.PendingClaim("nonce-1"); ok {
			t.Error("bound claim should no longer be pending")
		}
		if ok, _ := repo.PendingClaim("unknown"); ok {
			t.Error("unknown nonce should not be pending")
		}

		id, err := repo.Claim("nonce-1")
		if err != nil {
			t.Fatalf("Claim() error = %v", err)
		}
		if id != "sess-1" {
			t.Errorf("expected sess-1, got %s", id)
		}

		if _, err := repo.Claim("nonce-1"); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("claim should be consumed, got %v", err)
		}
	})

	t.Run("Bind unknown claim", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if err := NewSessionRepository(db).BindClaim("missing", "sess-1"); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("PurgeExpired", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSessionRepository(db)
		repo.Create(models.NewSession("old", newUser(), time.Now().Add(-models.SessionTTL-time.Hour)))
		repo.Create(models.NewSession("new", newUser(), time.Now()))

		n, err := repo.PurgeExpired()
		if err != nil {
			t.Fatalf("PurgeExpired() error = %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 purged session, got %d", n)
		}
		if _, err := repo.Get("new"); err != nil {
			t.Errorf("live session should remain, got %v", err)
		}
	})
}
