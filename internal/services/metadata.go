package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

var albumPatterns = []*regexp.Regexp{
	regexp.MustCompile(`album/([a-zA-Z0-9]+)`),
	regexp.MustCompile(`spotify:album:([a-zA-Z0-9]+)`),
}

// ExtractAlbumID pulls the album id out of an open.spotify.com link or a spotify:album: URI.
func ExtractAlbumID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	for _, re := range albumPatterns {
		if m := re.FindStringSubmatch(raw); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: %q", shared.ErrInvalidAlbumURL, raw)
}

// AlbumFetcher looks up catalog albums with an app-only client credentials token.
type AlbumFetcher struct {
	tokens     oauth2.TokenSource
	httpClient *http.Client
	apiBase    string
	limiter    *rate.Limiter
}

// NewAlbumFetcher creates a fetcher using the app's client id and secret.
func NewAlbumFetcher(creds shared.SpotifyConfig, opts SpotifyOpts) (*AlbumFetcher, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client credentials required for album lookups", shared.ErrMissingCredentials)
	}

	opts = opts.withDefaults()
	cc := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     opts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, opts.HTTPClient)

	return &AlbumFetcher{
		tokens:     cc.TokenSource(ctx),
		httpClient: opts.HTTPClient,
		apiBase:    opts.APIBase,
		limiter:    newLimiter(opts.RateLimit),
	}, nil
}

// FetchAlbum resolves rawURL to an album id and fetches it.
func (f *AlbumFetcher) FetchAlbum(ctx context.Context, rawURL string) (*models.Album, error) {
	id, err := ExtractAlbumID(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Album(ctx, id)
}

// Album fetches the album with id and maps it to [models.Album].
func (f *AlbumFetcher) Album(ctx context.Context, id string) (*models.Album, error) {
	token, err := f.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: client credentials: %v", shared.ErrAuthFailed, err)
	}

	var raw SpotifyAlbum
	_, err = doJSON(ctx, f.httpClient, f.limiter, request{
		method: http.MethodGet,
		url:    f.apiBase + "/albums/" + url.PathEscape(id),
		bearer: token.AccessToken,
		result: &raw,
	})
	switch {
	case StatusOf(err) == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, id)
	case errors.Is(err, shared.ErrNotAuthenticated):
		return nil, fmt.Errorf("%w: Spotify rejected the app token", shared.ErrAuthFailed)
	case err != nil:
		return nil, err
	}

	album := MapAlbum(raw)
	if err := album.Validate(); err != nil {
		return nil, err
	}
	return &album, nil
}

// JoinArtists joins artist names with ", ", defaulting to "Unknown Artist".
func JoinArtists(artists []SpotifyArtist) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	if len(names) == 0 {
		return "Unknown Artist"
	}
	return strings.Join(names, ", ")
}

// MapAlbum converts the vendor album into the application's record.
func MapAlbum(raw SpotifyAlbum) models.Album {
	images := make([]models.Image, len(raw.Images))
	for i, img := range raw.Images {
		images[i] = models.Image{URL: img.URL, Height: img.Height, Width: img.Width}
	}

	tracks := make([]models.Track, len(raw.Tracks.Items))
	for i, t := range raw.Tracks.Items {
		tracks[i] = MapTrack(t)
	}

	genres := raw.Genres
	if genres == nil {
		genres = []string{}
	}

	uri := raw.URI
	if uri == "" && raw.ID != "" {
		uri = shared.AlbumURI(raw.ID)
	}

	return models.Album{
		ID:          raw.ID,
		Name:        raw.Name,
		Artists:     JoinArtists(raw.Artists),
		Images:      images,
		ExternalURL: raw.ExternalURLs.Spotify,
		URI:         uri,
		ReleaseDate: raw.ReleaseDate,
		TotalTracks: raw.TotalTracks,
		Genres:      genres,
		Label:       raw.Label,
		Popularity:  raw.Popularity,
		Tracks:      tracks,
	}
}

// MapTrack converts a vendor track.
func MapTrack(t SpotifyTrack) models.Track {
	return models.Track{
		ID:          t.ID,
		Name:        t.Name,
		DurationMS:  t.DurationMS,
		TrackNumber: t.TrackNumber,
		Artists:     JoinArtists(t.Artists),
		PreviewURL:  t.PreviewURL,
		ExternalURL: t.ExternalURLs.Spotify,
	}
}
