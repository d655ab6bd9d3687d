package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/shared"
)

// RemoteStore is the per-user shelf persistence behind the server API.
type RemoteStore interface {
	GetShelves(ctx context.Context, externalID string) ([]models.Shelf, error)
	PutShelves(ctx context.Context, externalID string, shelves []models.Shelf) error
}

// watchable is implemented by local stores that can report writes from other processes.
type watchable interface {
	Watch(ctx context.Context, onChange func()) error
}

// ManagerOpts configures a [Manager].
type ManagerOpts struct {
	Local  LocalStore
	Remote RemoteStore // optional
	Logger *log.Logger
	Now    func() time.Time

	// RemoteTimeout bounds each asynchronous remote write. Defaults to 10s.
	RemoteTimeout time.Duration
}

// Manager owns the in-memory shelf list and writes every mutation through to the local cache
// and, once an identity is set, asynchronously to the remote store.
//
// It is safe for concurrent use. There is no locking across processes: the last write wins.
type Manager struct {
	mu         sync.Mutex
	shelves    []models.Shelf
	externalID string

	local         LocalStore
	remote        RemoteStore
	logger        *log.Logger
	now           func() time.Time
	remoteTimeout time.Duration

	// Remote writes go through one worker that always sends the newest queued snapshot.
	pushMu  sync.Mutex
	queued  *remoteWrite
	pushing bool
	idle    chan struct{}

	subsMu sync.Mutex
	subs   map[chan []models.Shelf]struct{}
}

// NewManager creates a manager with an empty shelf list. Call [Manager.Load] to populate it.
func NewManager(opts ManagerOpts) *Manager {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 10 * time.Second
	}
	return &Manager{
		shelves:       []models.Shelf{},
		local:         opts.Local,
		remote:        opts.Remote,
		logger:        opts.Logger,
		now:           opts.Now,
		remoteTimeout: opts.RemoteTimeout,
		subs:          make(map[chan []models.Shelf]struct{}),
	}
}

// SetIdentity binds the manager to a signed-in user. An empty id disables remote writes.
func (m *Manager) SetIdentity(externalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.externalID = externalID
}

// Identity returns the bound external id, or "".
func (m *Manager) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.externalID
}

// Shelves returns a snapshot of all shelves.
func (m *Manager) Shelves() []models.Shelf {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.CloneShelves(m.shelves)
}

// Shelf returns a snapshot of the shelf with id.
func (m *Manager) Shelf(id string) (models.Shelf, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := models.FindShelf(m.shelves, id)
	if i < 0 {
		return models.Shelf{}, fmt.Errorf("%w: %s", shared.ErrShelfNotFound, id)
	}
	return m.shelves[i].Clone(), nil
}

// FindByName returns the first shelf named name (case-insensitive).
func (m *Manager) FindByName(name string) (models.Shelf, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.shelves {
		if strings.EqualFold(s.Name, name) {
			return s.Clone(), true
		}
	}
	return models.Shelf{}, false
}

func (m *Manager) loadLocal() ([]models.Shelf, error) {
	if m.local == nil {
		return []models.Shelf{}, nil
	}
	var shelves []models.Shelf
	ok, err := m.local.Load(shared.ShelvesStorageKey, &shelves)
	if err != nil {
		return nil, err
	}
	if !ok || shelves == nil {
		return []models.Shelf{}, nil
	}
	return shelves, nil
}

// Load populates the manager.
//
// With an identity the remote store is read first and a non-empty result overwrites the local
// cache. When the remote has no record but the local cache does, the local shelves are pushed up.
// A remote failure falls back to the local cache.
func (m *Manager) Load(ctx context.Context) error {
	externalID := m.Identity()

	if externalID != "" && m.remote != nil {
		remote, err := m.remote.GetShelves(ctx, externalID)
		if err == nil && len(remote) > 0 {
			m.replace(remote)
			if err := m.saveLocal(remote); err != nil {
				m.logger.Warn("failed to refresh local cache", "error", err)
			}
			m.logger.Debug("loaded shelves from remote", "count", len(remote))
			return nil
		}
		if err != nil {
			m.logger.Warn("remote shelf load failed, using local cache", "error", err)
		}

		local, lerr := m.loadLocal()
		if lerr != nil {
			return lerr
		}
		m.replace(local)
		if err == nil && len(local) > 0 {
			m.logger.Info("remote has no shelves, pushing local cache", "count", len(local))
			if err := m.remote.PutShelves(ctx, externalID, local); err != nil {
				m.logger.Warn("failed to push local shelves", "error", err)
			}
		}
		return nil
	}

	local, err := m.loadLocal()
	if err != nil {
		return err
	}
	m.replace(local)
	return nil
}

func (m *Manager) replace(shelves []models.Shelf) {
	m.mu.Lock()
	m.shelves = models.CloneShelves(shelves)
	snap := models.CloneShelves(m.shelves)
	m.mu.Unlock()
	m.publish(snap)
}

func (m *Manager) saveLocal(shelves []models.Shelf) error {
	if m.local == nil {
		return nil
	}
	return m.local.Save(shared.ShelvesStorageKey, shelves)
}

// mutate applies fn to the shelf list under the lock and persists the result when fn reports a change.
func (m *Manager) mutate(fn func(shelves []models.Shelf) ([]models.Shelf, bool, error)) ([]models.Shelf, error) {
	m.mu.Lock()
	next, changed, err := fn(models.CloneShelves(m.shelves))
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if !changed {
		snap := models.CloneShelves(m.shelves)
		m.mu.Unlock()
		return snap, nil
	}

	m.shelves = next
	snap := models.CloneShelves(next)
	localErr := m.saveLocal(snap)
	if m.externalID != "" && m.remote != nil {
		m.pushRemote(m.externalID, snap)
	}
	m.mu.Unlock()

	if localErr != nil {
		m.logger.Error("failed to write local cache", "error", localErr)
	}
	m.publish(snap)

	if localErr != nil {
		return snap, fmt.Errorf("failed to save shelves: %w", localErr)
	}
	return snap, nil
}

type remoteWrite struct {
	externalID string
	shelves    []models.Shelf
}

// pushRemote queues shelves for the remote store. Callers hold m.mu so snapshots queue in
// mutation order. A snapshot still waiting when a newer one arrives is dropped.
func (m *Manager) pushRemote(externalID string, shelves []models.Shelf) {
	m.pushMu.Lock()
	defer m.pushMu.Unlock()
	m.queued = &remoteWrite{externalID: externalID, shelves: shelves}
	if m.pushing {
		return
	}
	m.pushing = true
	m.idle = make(chan struct{})
	go m.drainRemote(m.idle)
}

// drainRemote writes queued snapshots one at a time until the queue is empty.
func (m *Manager) drainRemote(idle chan struct{}) {
	defer close(idle)
	for {
		m.pushMu.Lock()
		w := m.queued
		m.queued = nil
		if w == nil {
			m.pushing = false
			m.pushMu.Unlock()
			return
		}
		m.pushMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.remoteTimeout)
		if err := m.remote.PutShelves(ctx, w.externalID, w.shelves); err != nil {
			m.logger.Warn("remote shelf write failed", "external_id", w.externalID, "error", err)
		}
		cancel()
	}
}

// Flush waits until every queued remote write has been sent.
func (m *Manager) Flush() {
	for {
		m.pushMu.Lock()
		if !m.pushing {
			m.pushMu.Unlock()
			return
		}
		idle := m.idle
		m.pushMu.Unlock()
		<-idle
	}
}

func findOrErr(shelves []models.Shelf, id string) (int, error) {
	i := models.FindShelf(shelves, id)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s", shared.ErrShelfNotFound, id)
	}
	return i, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: shelf name is required", shared.ErrInvalidInput)
	}
	return name, nil
}

// CreateShelf appends an empty shelf named name and returns its id.
func (m *Manager) CreateShelf(name string) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}

	shelf := models.NewShelf(name, m.now())
	_, err = m.mutate(func(shelves []models.Shelf) ([]models.Shelf, bool, error) {
		return append(shelves, shelf), true, nil
	})
	if err != nil {
		return shelf.ID, err
	}
	return shelf.ID, nil
}

// DeleteShelf removes the shelf with id.
func (m *Manager) DeleteShelf(id string) ([]models.Shelf, error) {
	return m.mutate(func(shelves []models.Shelf) ([]models.Shelf, bool, error) {
		i, err := findOrErr(shelves, id)
		if err != nil {
			return nil, false, err
		}
		return slices.Delete(shelves, i, i+1), true, nil
	})
}

// RenameShelf sets the name of the shelf with id.
func (m *Manager) RenameShelf(id, name string) ([]models.Shelf, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	return m.mutate(func(shelves []models.Shelf) ([]models.Shelf, bool, error) {
		i, err := findOrErr(shelves, id)
		if err != nil {
			return nil, false, err
		}
		if shelves[i].Name == name {
			return shelves, false, nil
		}
		shelves[i].Name = name
		return shelves, true, nil
	})
}

// AddAlbum appends album to the shelf. Adding an album id already on the shelf is a no-op.
func (m *Manager) AddAlbum(shelfID string, album models.Album) ([]models.Shelf, error) {
	if err := album.Validate(); err != nil {
		return nil, err
	}
	if album.AddedAt.IsZero() {
		album.AddedAt = m.now()
	}
	return m.mutate(func(shelves []models.Shelf) ([]models.Shelf, bool, error) {
		i, err := findOrErr(shelves, shelfID)
		if err != nil {
			return nil, false, err
		}
		return shelves, shelves[i].Add(album), nil
	})
}

// RemoveAlbum drops albumID from the shelf. Removing an absent album is a no-op.
func (m *Manager) RemoveAlbum(shelfID, albumID string) ([]models.Shelf, error) {
	return m.mutate(func(shelves []models.Shelf) ([]models.Shelf, bool, error) {
		i, err := findOrErr(shelves, shelfID)
		if err != nil {
			return nil, false, err
		}
		return shelves, shelves[i].Remove(albumID), nil
	})
}

// Reorder moves movedID to the position targetID occupies on the shelf.
func (m *Manager) Reorder(shelfID, movedID, targetID string) ([]models.Shelf, error) {
	return m.mutate(func(shelves []models.Shelf) ([]models.Shelf, bool, error) {
		i, err := findOrErr(shelves, shelfID)
		if err != nil {
			return nil, false, err
		}
		return shelves, shelves[i].Reorder(movedID, targetID), nil
	})
}

// GetOrCreateUnifiedShelf returns the reserved default shelf, creating it if missing.
func (m *Manager) GetOrCreateUnifiedShelf() (models.Shelf, error) {
	var unified models.Shelf
	_, err := m.mutate(func(shelves []models.Shelf) ([]models.Shelf, bool, error) {
		for _, s := range shelves {
			if s.IsUnified() {
				unified = s.Clone()
				return shelves, false, nil
			}
		}
		unified = models.NewShelf(shared.UnifiedShelfName, m.now())
		return append(shelves, unified), true, nil
	})
	return unified, err
}

// Subscribe returns a channel receiving a snapshot after every change, and a function that
// unsubscribes and closes it. Slow subscribers only ever see the latest snapshot.
func (m *Manager) Subscribe() (<-chan []models.Shelf, func()) {
	ch := make(chan []models.Shelf, 1)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, ch)
			m.subsMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) publish(snap []models.Shelf) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- models.CloneShelves(snap):
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- models.CloneShelves(snap):
			default:
			}
		}
	}
}

// Reload re-reads the local cache and publishes it if it differs from the current list.
func (m *Manager) Reload() error {
	local, err := m.loadLocal()
	if err != nil {
		return err
	}

	m.mu.Lock()
	same := equalShelves(m.shelves, local)
	m.mu.Unlock()
	if same {
		return nil
	}

	m.logger.Debug("local cache changed on disk, reloading", "count", len(local))
	m.replace(local)
	return nil
}

func equalShelves(a, b []models.Shelf) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

// Watch reloads the manager whenever another process writes the local cache, until ctx is done.
//
// Returns [shared.ErrNotImplemented] if the local store cannot be watched.
func (m *Manager) Watch(ctx context.Context) error {
	w, ok := m.local.(watchable)
	if !ok {
		return shared.ErrNotImplemented
	}
	return w.Watch(ctx, func() {
		if err := m.Reload(); err != nil {
			m.logger.Warn("failed to reload shelves", "error", err)
		}
	})
}
