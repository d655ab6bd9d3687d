// package shared defines shared helpers
package shared

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const (
	// UnifiedShelfName is the reserved name of the default collection.
	UnifiedShelfName = "My Albums"
	// ShelvesStorageKey is the local cache key holding the serialized shelf list.
	ShelvesStorageKey = "spotify_shelves"
	// SessionCookieName carries the server session id.
	SessionCookieName = "spotify_session"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// NewFileLogger creates a [log.Logger] that appends to the file at path, creating parent directories as needed.
//
// Used by the TUI so log output doesn't interfere with rendering.
func NewFileLogger(path string) (*log.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return NewLogger(f), nil
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// GenerateState returns an opaque OAuth state value.
func GenerateState() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// GenerateSessionID returns 32 random bytes, hex encoded.
func GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewShelfID returns an id of the form shelf_<unix millis>_<9 base36 chars>.
func NewShelfID(now time.Time) string {
	var sb strings.Builder
	max := big.NewInt(int64(len(base36)))
	for range 9 {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			sb.WriteByte('0')
			continue
		}
		sb.WriteByte(base36[n.Int64()])
	}
	return fmt.Sprintf("shelf_%d_%s", now.UnixMilli(), sb.String())
}

// NormalizeID strips any scheme:type: prefix so that "spotify:track:X" and "X" compare equal.
//
// Normalizing an already bare id returns it unchanged.
func NormalizeID(id string) string {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// SameID reports whether two ids refer to the same entity after normalization.
func SameID(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return NormalizeID(a) == NormalizeID(b)
}

// TrackURI builds a spotify:track: URI from a bare or prefixed id.
func TrackURI(id string) string {
	return "spotify:track:" + NormalizeID(id)
}

// AlbumURI builds a spotify:album: URI from a bare or prefixed id.
func AlbumURI(id string) string {
	return "spotify:album:" + NormalizeID(id)
}

// MarshalJSON encodes v, indenting when pretty is set.
func MarshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}
