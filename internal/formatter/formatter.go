// package formatter renders shelves as CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/shared"
)

// Format names accepted by [Export] and [WriteExport].
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
	FormatJSON     = "json"
)

// Formats lists every supported output format.
var Formats = []string{FormatText, FormatMarkdown, FormatCSV, FormatJSON}

// FormatDuration renders milliseconds as m:ss.
func FormatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// ShelfToCSV writes one row per album: ID, Name, Artists, Year, Tracks, Label, URL, AddedAt.
func ShelfToCSV(shelf models.Shelf) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Name", "Artists", "Year", "Tracks", "Label", "URL", "AddedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, album := range shelf.Albums {
		added := ""
		if !album.AddedAt.IsZero() {
			added = album.AddedAt.UTC().Format("2006-01-02")
		}
		record := []string{
			album.ID,
			album.Name,
			album.Artists,
			album.Year(),
			strconv.Itoa(trackCount(album)),
			album.Label,
			album.ExternalURL,
			added,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ShelfToMarkdown renders the shelf as a heading plus one section per album with its track list.
func ShelfToMarkdown(shelf models.Shelf) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", shelf.Name)
	fmt.Fprintf(&buf, "**Albums**: %d\n\n", len(shelf.Albums))

	for i, album := range shelf.Albums {
		fmt.Fprintf(&buf, "## %d. %s\n\n", i+1, album.Name)
		if cover := album.Cover(); cover != "" {
			fmt.Fprintf(&buf, "![%s](%s)\n\n", album.Name, cover)
		}
		fmt.Fprintf(&buf, "**Artists**: %s\n", album.Artists)
		if year := album.Year(); year != "" {
			fmt.Fprintf(&buf, "**Released**: %s\n", year)
		}
		if album.Label != "" {
			fmt.Fprintf(&buf, "**Label**: %s\n", album.Label)
		}
		if len(album.Genres) > 0 {
			fmt.Fprintf(&buf, "**Genres**: %s\n", strings.Join(album.Genres, ", "))
		}
		if album.ExternalURL != "" {
			fmt.Fprintf(&buf, "**Listen**: <%s>\n", album.ExternalURL)
		}
		buf.WriteString("\n")

		for _, track := range album.Tracks {
			fmt.Fprintf(&buf, "%d. %s [%s]\n", track.TrackNumber, track.Name, FormatDuration(track.DurationMS))
		}
		if len(album.Tracks) > 0 {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

// ShelfToText renders the shelf as a numbered list of "Artists - Name (Year)".
func ShelfToText(shelf models.Shelf) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Shelf: %s\n", shelf.Name)
	fmt.Fprintf(&buf, "Albums: %d\n\n", len(shelf.Albums))

	for i, album := range shelf.Albums {
		line := fmt.Sprintf("%d. %s - %s", i+1, album.Artists, album.Name)
		if year := album.Year(); year != "" {
			line += fmt.Sprintf(" (%s)", year)
		}
		buf.WriteString(line + "\n")
	}
	return buf.Bytes(), nil
}

// Export renders shelf in format. An empty format means text.
func Export(shelf models.Shelf, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatText, "txt":
		return ShelfToText(shelf)
	case FormatMarkdown, "md":
		return ShelfToMarkdown(shelf)
	case FormatCSV:
		return ShelfToCSV(shelf)
	case FormatJSON:
		return shared.MarshalJSON(shelf, true)
	default:
		return nil, fmt.Errorf("%w: unknown format %q (want one of %s)",
			shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
	}
}

// Extension returns the file extension used for format.
func Extension(format string) string {
	switch strings.ToLower(format) {
	case FormatMarkdown, "md":
		return ".md"
	case FormatCSV:
		return ".csv"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// WriteExport renders shelf and writes it to path.
//
// When path is empty the file is named after the shelf in the working directory.
// When path is an existing directory the same name is used inside it.
func WriteExport(shelf models.Shelf, format, path string) (string, error) {
	data, err := Export(shelf, format)
	if err != nil {
		return "", err
	}

	name := Slug(shelf.Name) + Extension(format)
	switch {
	case path == "":
		path = name
	default:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, name)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

// Slug lowercases name and collapses everything but letters and digits into single dashes.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "shelf"
	}
	return out
}

func trackCount(a models.Album) int {
	if a.TotalTracks > 0 {
		return a.TotalTracks
	}
	return len(a.Tracks)
}
