package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/services"
	"github.com/desertthunder/shelves/internal/shared"
	tu "github.com/desertthunder/shelves/internal/testing"
	"github.com/urfave/cli/v3"
)

const (
	albumA = "4aawyAB9vmqN3uQ7FjRGTy"
	albumB = "1ATL5GLyefJaxhQzSPVrLX"
)

// fakeAPI serves the endpoints the CLI talks to.
type fakeAPI struct {
	mu          sync.Mutex
	pendingFor  int // claim attempts answered with 404 before the session is bound
	claims      int
	claimedWith string
	loggedOut   bool
	albums      map[string]models.Album
	shelves     []models.Shelf
	puts        int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		albums: map[string]models.Album{
			albumA: {
				ID: albumA, Name: "Global Communication", Artists: "Pentatonik", ReleaseDate: "1994-03-01",
				ExternalURL: "https://open.spotify.com/album/" + albumA,
				Tracks: []models.Track{
					{ID: "t1", Name: "14:31", DurationMS: 871000, TrackNumber: 1},
					{ID: "t2", Name: "9:39", DurationMS: 579000, TrackNumber: 2},
				},
			},
			albumB: {
				ID: albumB, Name: "Selected Ambient Works", Artists: "Aphex Twin", ReleaseDate: "1992-02-12",
				Tracks: []models.Track{{ID: "t3", Name: "Xtal", DurationMS: 291000, TrackNumber: 1}},
			},
		},
	}
}

func (f *fakeAPI) signedIn(r *http.Request) bool {
	c, err := r.Cookie(shared.SessionCookieName)
	return err == nil && c.Value == "sess-1"
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /api/spotify/auth", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, services.AuthURLResponse{
			AuthURL: "https://accounts.spotify.com/authorize?state=" + r.URL.Query().Get("claim"),
		})
	})
	mux.HandleFunc("POST /api/auth/claim", func(w http.ResponseWriter, r *http.Request) {
		var req services.ClaimRequest
		json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		defer f.mu.Unlock()
		f.claims++
		f.claimedWith = req.Nonce
		if f.pendingFor < 0 || f.claims <= f.pendingFor {
			write(w, http.StatusNotFound, map[string]string{"error": "claim not found"})
			return
		}
		write(w, http.StatusOK, services.ClaimResponse{SessionID: "sess-1"})
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if !f.signedIn(r) {
			write(w, http.StatusOK, services.SessionInfo{})
			return
		}
		write(w, http.StatusOK, services.SessionInfo{
			Authenticated: true,
			User:          &models.Identity{ID: "1", ExternalID: "ada", DisplayName: "Ada", Email: "ada@example.com"},
		})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.loggedOut = true
		f.mu.Unlock()
		write(w, http.StatusOK, map[string]bool{"success": true})
	})
	mux.HandleFunc("GET /api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		if !f.signedIn(r) {
			write(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return
		}
		write(w, http.StatusOK, services.TokenResponse{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)})
	})
	mux.HandleFunc("POST /api/spotify/album", func(w http.ResponseWriter, r *http.Request) {
		var req services.FetchAlbumRequest
		json.NewDecoder(r.Body).Decode(&req)
		id, err := services.ExtractAlbumID(req.URL)
		if err != nil {
			write(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		album, ok := f.albums[id]
		if !ok {
			write(w, http.StatusNotFound, map[string]string{"error": "album not found"})
			return
		}
		write(w, http.StatusOK, album)
	})
	mux.HandleFunc("GET /api/user/shelves", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		write(w, http.StatusOK, services.ShelvesPayload{Shelves: f.shelves})
	})
	mux.HandleFunc("PUT /api/user/shelves", func(w http.ResponseWriter, r *http.Request) {
		var payload services.ShelvesPayload
		json.NewDecoder(r.Body).Decode(&payload)
		f.mu.Lock()
		f.shelves = payload.Shelves
		f.puts++
		f.mu.Unlock()
		write(w, http.StatusOK, map[string]bool{"success": true})
	})
	return mux
}

type harness struct {
	api     *fakeAPI
	store   *tu.MemoryStore
	output  *bytes.Buffer
	opened  []string
	sleeper *tu.RecordingSleeper
	runner  *Runner
}

func newHarness(t *testing.T, input string) *harness {
	t.Helper()
	h := &harness{
		api:     newFakeAPI(),
		store:   tu.NewMemoryStore(),
		output:  &bytes.Buffer{},
		sleeper: &tu.RecordingSleeper{},
	}
	srv := httptest.NewServer(h.api.handler())
	t.Cleanup(srv.Close)

	config := shared.DefaultConfig()
	config.Client.ServerURL = srv.URL
	backoff := shared.Backoff{Attempts: 5, Base: 10 * time.Millisecond, Factor: 2, Max: 50 * time.Millisecond, Sleep: h.sleeper.Sleep}

	h.runner = NewRunner(RunnerOpts{
		Config:     config,
		HTTPClient: srv.Client(),
		Logger:     shared.NewLogger(&bytes.Buffer{}),
		Output:     h.output,
		Input:      strings.NewReader(input),
		Store:      h.store,
		Backoff:    &backoff,
		Open: func(target string) error {
			h.opened = append(h.opened, target)
			return nil
		},
	})
	return h
}

func (h *harness) run(args ...string) error {
	app := &cli.Command{Name: "shelves", Commands: h.runner.register()}
	return app.Run(context.Background(), append([]string{"shelves"}, args...))
}

func (h *harness) signIn() {
	h.store.Save(shared.SessionCookieName, "sess-1")
}

func (h *harness) localShelves(t *testing.T) []models.Shelf {
	t.Helper()
	var shelves []models.Shelf
	if _, err := h.store.Load(shared.ShelvesStorageKey, &shelves); err != nil {
		t.Fatalf("failed to read local shelves: %v", err)
	}
	return shelves
}

func TestAuthCommands(t *testing.T) {
	t.Run("login claims the session after retries", func(t *testing.T) {
		h := newHarness(t, "\n")
		h.api.pendingFor = 2

		if err := h.run("auth", "login"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var id string
		if ok, _ := h.store.Load(shared.SessionCookieName, &id); !ok || id != "sess-1" {
			t.Errorf("expected session sess-1 to be stored, got %q", id)
		}
		if len(h.opened) != 1 || !strings.Contains(h.opened[0], "state="+h.api.claimedWith) {
			t.Errorf("expected authorize URL with the claim nonce, got %v", h.opened)
		}
		if len(h.api.claimedWith) < 16 {
			t.Errorf("expected a long claim nonce, got %q", h.api.claimedWith)
		}

		delays := h.sleeper.Recorded()
		want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
		if len(delays) != len(want) || delays[0] != want[0] || delays[1] != want[1] {
			t.Errorf("expected delays %v, got %v", want, delays)
		}
		if !strings.Contains(h.output.String(), "Signed in as Ada") {
			t.Errorf("expected greeting, got %q", h.output.String())
		}
	})

	t.Run("login gives up after the backoff", func(t *testing.T) {
		h := newHarness(t, "")
		h.api.pendingFor = -1

		err := h.run("auth", "login")
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		if h.api.claims != 5 {
			t.Errorf("expected 5 claim attempts, got %d", h.api.claims)
		}
		var id string
		if ok, _ := h.store.Load(shared.SessionCookieName, &id); ok {
			t.Errorf("expected no stored session, got %q", id)
		}
	})

	t.Run("status when signed out", func(t *testing.T) {
		h := newHarness(t, "")

		if err := h.run("auth", "status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(h.output.String(), "Not signed in") {
			t.Errorf("expected signed out message, got %q", h.output.String())
		}
	})

	t.Run("status as JSON", func(t *testing.T) {
		h := newHarness(t, "")
		h.signIn()

		if err := h.run("auth", "status", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var info services.SessionInfo
		if err := json.Unmarshal(h.output.Bytes(), &info); err != nil {
			t.Fatalf("expected JSON output, got %q: %v", h.output.String(), err)
		}
		if !info.Authenticated || info.User == nil || info.User.ExternalID != "ada" {
			t.Errorf("unexpected session info %+v", info)
		}
	})

	t.Run("token", func(t *testing.T) {
		h := newHarness(t, "")
		h.signIn()

		if err := h.run("auth", "token"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if strings.TrimSpace(h.output.String()) != "tok" {
			t.Errorf("expected token output, got %q", h.output.String())
		}
	})

	t.Run("token requires login", func(t *testing.T) {
		h := newHarness(t, "")

		if err := h.run("auth", "token"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("logout clears the session", func(t *testing.T) {
		h := newHarness(t, "")
		h.signIn()

		if err := h.run("auth", "logout"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !h.api.loggedOut {
			t.Error("expected server logout")
		}
		var id string
		if ok, _ := h.store.Load(shared.SessionCookieName, &id); ok {
			t.Errorf("expected session to be removed, got %q", id)
		}
	})
}

func TestAlbumCommands(t *testing.T) {
	t.Run("fetch prints the tracklist", func(t *testing.T) {
		h := newHarness(t, "")

		if err := h.run("album", "fetch", "https://open.spotify.com/album/"+albumA); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := h.output.String()
		for _, want := range []string{"Pentatonik - Global Communication", "Released: 1994", "1. 14:31 [14:31]"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("fetch unknown album", func(t *testing.T) {
		h := newHarness(t, "")

		err := h.run("album", "fetch", "spotify:album:0000000000000000000000")
		if !errors.Is(err, shared.ErrAlbumNotFound) {
			t.Errorf("expected ErrAlbumNotFound, got %v", err)
		}
	})

	t.Run("fetch requires a link", func(t *testing.T) {
		h := newHarness(t, "")

		if err := h.run("album", "fetch"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestShelfCommands(t *testing.T) {
	linkA := "https://open.spotify.com/album/" + albumA
	linkB := "https://open.spotify.com/album/" + albumB

	t.Run("create, add and list", func(t *testing.T) {
		h := newHarness(t, "")

		if err := h.run("shelf", "create", "Ambient"); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := h.run("shelf", "add", "Ambient", linkA); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := h.run("shelf", "add", "Ambient", linkB); err != nil {
			t.Fatalf("add: %v", err)
		}

		shelves := h.localShelves(t)
		if len(shelves) != 1 || len(shelves[0].Albums) != 2 {
			t.Fatalf("expected one shelf with two albums, got %+v", shelves)
		}
		if shelves[0].Albums[0].ID != albumA || shelves[0].Albums[1].ID != albumB {
			t.Errorf("expected albums in insertion order, got %s, %s", shelves[0].Albums[0].ID, shelves[0].Albums[1].ID)
		}

		h.output.Reset()
		if err := h.run("shelf", "list", "--shelf", "Ambient"); err != nil {
			t.Fatalf("list: %v", err)
		}
		if !strings.Contains(h.output.String(), "Aphex Twin - Selected Ambient Works (1992)") {
			t.Errorf("unexpected listing:\n%s", h.output.String())
		}
	})

	t.Run("adding a duplicate is a no-op", func(t *testing.T) {
		h := newHarness(t, "")
		h.run("shelf", "create", "Ambient")
		h.run("shelf", "add", "Ambient", linkA)
		h.output.Reset()

		if err := h.run("shelf", "add", "Ambient", linkA); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(h.output.String(), "already on Ambient") {
			t.Errorf("expected duplicate notice, got %q", h.output.String())
		}
		if n := len(h.localShelves(t)[0].Albums); n != 1 {
			t.Errorf("expected 1 album, got %d", n)
		}
	})

	t.Run("move and remove", func(t *testing.T) {
		h := newHarness(t, "")
		h.run("shelf", "create", "Ambient")
		h.run("shelf", "add", "Ambient", linkA)
		h.run("shelf", "add", "Ambient", linkB)

		if err := h.run("shelf", "move", "Ambient", albumB, albumA); err != nil {
			t.Fatalf("move: %v", err)
		}
		if got := h.localShelves(t)[0].Albums[0].ID; got != albumB {
			t.Errorf("expected %s first after move, got %s", albumB, got)
		}

		if err := h.run("shelf", "remove", "Ambient", linkB); err != nil {
			t.Fatalf("remove: %v", err)
		}
		albums := h.localShelves(t)[0].Albums
		if len(albums) != 1 || albums[0].ID != albumA {
			t.Errorf("expected only %s left, got %+v", albumA, albums)
		}

		if err := h.run("shelf", "remove", "Ambient", albumB); !errors.Is(err, shared.ErrAlbumNotFound) {
			t.Errorf("expected ErrAlbumNotFound, got %v", err)
		}
	})

	t.Run("rename and delete", func(t *testing.T) {
		h := newHarness(t, "")
		h.run("shelf", "create", "Ambient")

		if err := h.run("shelf", "rename", "Ambient", "  Drone  "); err != nil {
			t.Fatalf("rename: %v", err)
		}
		if name := h.localShelves(t)[0].Name; name != "Drone" {
			t.Errorf("expected trimmed name Drone, got %q", name)
		}
		if err := h.run("shelf", "delete", "Drone"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if n := len(h.localShelves(t)); n != 0 {
			t.Errorf("expected no shelves, got %d", n)
		}
	})

	t.Run("delete and rename of a missing shelf change nothing", func(t *testing.T) {
		h := newHarness(t, "")
		h.run("shelf", "create", "Ambient")
		saves := h.store.Saves()

		if err := h.run("shelf", "delete", "Drone"); err != nil {
			t.Errorf("delete of a missing shelf should not fail, got %v", err)
		}
		if err := h.run("shelf", "rename", "Drone", "Noise"); err != nil {
			t.Errorf("rename of a missing shelf should not fail, got %v", err)
		}
		if !strings.Contains(h.output.String(), "No shelf matches Drone") {
			t.Errorf("expected a notice, got %q", h.output.String())
		}
		if got := h.localShelves(t); len(got) != 1 || got[0].Name != "Ambient" {
			t.Errorf("expected shelves unchanged, got %+v", got)
		}
		if h.store.Saves() != saves {
			t.Errorf("expected no writes, got %d more", h.store.Saves()-saves)
		}
	})

	t.Run("signed in mutations reach the server", func(t *testing.T) {
		h := newHarness(t, "")
		h.signIn()

		if err := h.run("shelf", "create", "Ambient"); err != nil {
			t.Fatalf("create: %v", err)
		}

		h.api.mu.Lock()
		defer h.api.mu.Unlock()
		if h.api.puts == 0 {
			t.Fatal("expected the shelves to be pushed")
		}
		if len(h.api.shelves) != 1 || h.api.shelves[0].Name != "Ambient" {
			t.Errorf("unexpected remote shelves %+v", h.api.shelves)
		}
	})

	t.Run("export to stdout and file", func(t *testing.T) {
		h := newHarness(t, "")
		h.run("shelf", "create", "Ambient")
		h.run("shelf", "add", "Ambient", linkA)
		h.output.Reset()

		if err := h.run("shelf", "export", "--format", "markdown", "Ambient"); err != nil {
			t.Fatalf("export: %v", err)
		}
		if !strings.HasPrefix(h.output.String(), "# Ambient") {
			t.Errorf("expected markdown heading, got %q", h.output.String())
		}

		dir := t.TempDir()
		if err := h.run("shelf", "export", "--format", "csv", "--output", dir, "Ambient"); err != nil {
			t.Fatalf("export: %v", err)
		}
		data := tu.MustReadFile(t, filepath.Join(dir, "ambient.csv"))
		if !strings.Contains(data, albumA) {
			t.Errorf("expected album id in CSV, got %q", data)
		}

		if err := h.run("shelf", "export", "--format", "pdf", "Ambient"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("import adds links to the unified shelf", func(t *testing.T) {
		h := newHarness(t, "")
		path := filepath.Join(t.TempDir(), "albums.txt")
		content := strings.Join([]string{
			"# weekend",
			linkA,
			"",
			linkB,
			"spotify:album:" + albumA,
			"not a link",
		}, "\n")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		err := h.run("shelf", "import", "--workers", "2", path)
		if err != nil {
			t.Fatalf("import: %v", err)
		}

		shelves := h.localShelves(t)
		if len(shelves) != 1 || shelves[0].Name != shared.UnifiedShelfName {
			t.Fatalf("expected the unified shelf, got %+v", shelves)
		}
		if n := len(shelves[0].Albums); n != 2 {
			t.Errorf("expected 2 albums, got %d", n)
		}
		if !strings.Contains(h.output.String(), "2 added, 0 duplicates, 1 failed") {
			t.Errorf("unexpected summary:\n%s", h.output.String())
		}
	})

	t.Run("unknown shelf", func(t *testing.T) {
		h := newHarness(t, "")

		if err := h.run("shelf", "add", "Nope", linkA); !errors.Is(err, shared.ErrShelfNotFound) {
			t.Errorf("expected ErrShelfNotFound, got %v", err)
		}
	})
}

func TestPlayCommands(t *testing.T) {
	t.Run("requires login", func(t *testing.T) {
		h := newHarness(t, "")

		for _, args := range [][]string{{"play", "toggle"}, {"play", "status"}, {"play", "album", albumA}} {
			if err := h.run(args...); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("%v: expected ErrNotAuthenticated, got %v", args, err)
			}
		}
	})

	t.Run("seek validates the position", func(t *testing.T) {
		h := newHarness(t, "")

		if err := h.run("play", "seek", "soon"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if err := h.run("play", "seek"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("lookups", func(t *testing.T) {
		api := newFakeAPI()
		shelves := []models.Shelf{
			{ID: "s1", Name: "One", Albums: []models.Album{api.albums[albumB]}},
			{ID: "s2", Name: "Two", Albums: []models.Album{api.albums[albumA]}},
		}

		if a, ok := findAlbum(shelves, albumA); !ok || a.Name != "Global Communication" {
			t.Errorf("expected to find %s, got %+v", albumA, a)
		}
		if _, ok := findAlbum(shelves, "missing"); ok {
			t.Error("expected missing album not to be found")
		}

		a, i, ok := findTrack(shelves, "t2")
		if !ok || a.ID != albumA || i != 1 {
			t.Errorf("expected t2 at index 1 of %s, got %s/%d", albumA, a.ID, i)
		}
		if _, _, ok := findTrack(shelves, "t9"); ok {
			t.Error("expected unknown track not to be found")
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config is written once", func(t *testing.T) {
		h := newHarness(t, "")
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := h.run("setup", "config", "--config", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)
		if err := h.run("setup", "config", "--config", path); err == nil {
			t.Error("expected an error for an existing config")
		}
	})

	t.Run("database runs migrations", func(t *testing.T) {
		h := newHarness(t, "")
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		dbPath := filepath.Join(dir, "shelves.db")
		config := shared.DefaultConfig()
		config.Database.Path = dbPath
		if err := shared.SaveConfig(path, config); err != nil {
			t.Fatal(err)
		}

		if err := h.run("setup", "database", "--config", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, dbPath)
	})
}
