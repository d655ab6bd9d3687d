package repositories

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelves/internal/models"
)

// MemoryShelfStore keeps shelf lists in process memory. Contents are lost on restart.
type MemoryShelfStore struct {
	mu   sync.RWMutex
	data map[string][]models.Shelf
}

func NewMemoryShelfStore() *MemoryShelfStore {
	return &MemoryShelfStore{data: make(map[string][]models.Shelf)}
}

func (m *MemoryShelfStore) GetShelves(_ context.Context, externalID string) ([]models.Shelf, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.CloneShelves(m.data[externalID]), nil
}

func (m *MemoryShelfStore) PutShelves(_ context.Context, externalID string, shelves []models.Shelf) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[externalID] = models.CloneShelves(shelves)
	return nil
}

// Has reports whether a record exists for externalID.
func (m *MemoryShelfStore) Has(externalID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[externalID]
	return ok
}

// TieredShelfStore serves shelves from a primary store with a memory tier underneath.
//
// Reads go to the primary and refresh the memory tier; when the primary fails, the memory copy is
// served instead. Writes land in memory first, then in the primary. A failed primary write is
// logged and the memory tier keeps the data for the life of the process.
type TieredShelfStore struct {
	primary ShelfStore
	memory  *MemoryShelfStore
	logger  *log.Logger
}

// NewTieredShelfStore layers memory beneath primary. A nil memory store gets a fresh one.
func NewTieredShelfStore(primary ShelfStore, memory *MemoryShelfStore, logger *log.Logger) *TieredShelfStore {
	if memory == nil {
		memory = NewMemoryShelfStore()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &TieredShelfStore{primary: primary, memory: memory, logger: logger}
}

func (t *TieredShelfStore) GetShelves(ctx context.Context, externalID string) ([]models.Shelf, error) {
	shelves, err := t.primary.GetShelves(ctx, externalID)
	if err != nil {
		if t.memory.Has(externalID) {
			t.logger.Warn("primary shelf store failed, serving memory tier", "external_id", externalID, "error", err)
			return t.memory.GetShelves(ctx, externalID)
		}
		return nil, err
	}

	_ = t.memory.PutShelves(ctx, externalID, shelves)
	return shelves, nil
}

func (t *TieredShelfStore) PutShelves(ctx context.Context, externalID string, shelves []models.Shelf) error {
	_ = t.memory.PutShelves(ctx, externalID, shelves)

	if err := t.primary.PutShelves(ctx, externalID, shelves); err != nil {
		t.logger.Warn("primary shelf store write failed, kept in memory", "external_id", externalID, "error", err)
	}
	return nil
}
