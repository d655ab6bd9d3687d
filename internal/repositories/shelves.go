package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/shared"
)

// ShelfStore persists a user's whole shelf list, keyed by external (Spotify) id.
//
// A missing record is not an error: GetShelves returns an empty, non-nil slice.
type ShelfStore interface {
	GetShelves(ctx context.Context, externalID string) ([]models.Shelf, error)
	PutShelves(ctx context.Context, externalID string, shelves []models.Shelf) error
}

// ShelfRepository stores shelf lists as one JSON document per external id.
type ShelfRepository struct {
	db *sql.DB
}

// NewShelfRepository creates a new [ShelfRepository] with the given database connection
func NewShelfRepository(db *sql.DB) *ShelfRepository {
	return &ShelfRepository{db: db}
}

// GetShelves loads the shelves stored for externalID.
func (r *ShelfRepository) GetShelves(ctx context.Context, externalID string) ([]models.Shelf, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: external id is required", shared.ErrInvalidInput)
	}

	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM shelf_collections WHERE external_id = ?`, externalID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.Shelf{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query shelves: %v", shared.ErrStoreUnavailable, err)
	}

	shelves := []models.Shelf{}
	if err := json.Unmarshal([]byte(data), &shelves); err != nil {
		return nil, fmt.Errorf("%w: stored shelves for %s: %v", shared.ErrInvalidPayload, externalID, err)
	}
	if shelves == nil {
		shelves = []models.Shelf{}
	}
	return shelves, nil
}

// PutShelves replaces the stored shelves for externalID.
func (r *ShelfRepository) PutShelves(ctx context.Context, externalID string, shelves []models.Shelf) error {
	if externalID == "" {
		return fmt.Errorf("%w: external id is required", shared.ErrInvalidInput)
	}
	if shelves == nil {
		shelves = []models.Shelf{}
	}

	data, err := json.Marshal(shelves)
	if err != nil {
		return fmt.Errorf("failed to encode shelves: %w", err)
	}

	query := `
		INSERT INTO shelf_collections (external_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, externalID, string(data), time.Now()); err != nil {
		return fmt.Errorf("%w: failed to save shelves: %v", shared.ErrStoreUnavailable, err)
	}
	return nil
}
