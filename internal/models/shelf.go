package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/shelves/internal/shared"
)

// Shelf is a named, ordered collection of albums, unique by album id.
type Shelf struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Albums    []Album   `json:"albums"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewShelf allocates an empty shelf with a fresh id.
func NewShelf(name string, now time.Time) Shelf {
	return Shelf{
		ID:        shared.NewShelfID(now),
		Name:      name,
		Albums:    []Album{},
		CreatedAt: now,
	}
}

// Validate checks the shelf id and name and that no album id repeats.
func (s Shelf) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: shelf id is required", shared.ErrInvalidPayload)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: shelf %s has no name", shared.ErrInvalidPayload, s.ID)
	}

	seen := make(map[string]struct{}, len(s.Albums))
	for _, a := range s.Albums {
		if err := a.Validate(); err != nil {
			return err
		}
		key := shared.NormalizeID(a.ID)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: shelf %s contains album %s twice", shared.ErrInvalidPayload, s.ID, a.ID)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// IsUnified reports whether this is the reserved default shelf.
func (s Shelf) IsUnified() bool {
	return s.Name == shared.UnifiedShelfName
}

// IndexOf returns the position of albumID, or -1.
func (s Shelf) IndexOf(albumID string) int {
	return slices.IndexFunc(s.Albums, func(a Album) bool { return shared.SameID(a.ID, albumID) })
}

// Contains reports whether albumID is on the shelf.
func (s Shelf) Contains(albumID string) bool {
	return s.IndexOf(albumID) >= 0
}

// Clone returns a copy whose album slice can be mutated independently.
func (s Shelf) Clone() Shelf {
	s.Albums = slices.Clone(s.Albums)
	if s.Albums == nil {
		s.Albums = []Album{}
	}
	return s
}

// Add appends album unless its id is already present. Reports whether the shelf changed.
func (s *Shelf) Add(album Album) bool {
	if s.Contains(album.ID) {
		return false
	}
	s.Albums = append(s.Albums, album)
	return true
}

// Remove drops the album with albumID. Reports whether the shelf changed.
func (s *Shelf) Remove(albumID string) bool {
	i := s.IndexOf(albumID)
	if i < 0 {
		return false
	}
	s.Albums = slices.Delete(s.Albums, i, i+1)
	return true
}

// Reorder moves movedID to the index targetID currently occupies, shifting the albums in between.
//
// No-op when either id is missing or both resolve to the same index.
func (s *Shelf) Reorder(movedID, targetID string) bool {
	from, to := s.IndexOf(movedID), s.IndexOf(targetID)
	if from < 0 || to < 0 || from == to {
		return false
	}

	moved := s.Albums[from]
	s.Albums = slices.Delete(s.Albums, from, from+1)
	s.Albums = slices.Insert(s.Albums, to, moved)
	return true
}

// FindShelf returns the index of the shelf with id in shelves, or -1.
func FindShelf(shelves []Shelf, id string) int {
	return slices.IndexFunc(shelves, func(s Shelf) bool { return s.ID == id })
}

// CloneShelves deep-copies shelves so the result can be mutated without affecting the input.
func CloneShelves(shelves []Shelf) []Shelf {
	out := make([]Shelf, len(shelves))
	for i, s := range shelves {
		out[i] = s.Clone()
	}
	return out
}
