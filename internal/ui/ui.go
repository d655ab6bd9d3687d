package ui

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/playback"
	"github.com/desertthunder/shelves/internal/shared"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ShelfListView ViewState = iota
	AlbumListView
	TrackListView
)

// ShelfStore is the part of the collection manager the TUI reads and edits.
type ShelfStore interface {
	Shelves() []models.Shelf
	Subscribe() (<-chan []models.Shelf, func())
	RemoveAlbum(shelfID, albumID string) ([]models.Shelf, error)
	Reorder(shelfID, movedID, targetID string) ([]models.Shelf, error)
}

// Player is the playback controller surface the TUI drives.
type Player interface {
	State() models.PlaybackState
	Subscribe() <-chan models.PlaybackState
	Unsubscribe(ch <-chan models.PlaybackState)
	PlayAlbumFromShelf(ctx context.Context, album models.Album) *playback.Fallback
	PlayTrack(ctx context.Context, trackID string, tracks []models.Track) bool
	TogglePlayPause(ctx context.Context) bool
	NextTrack(ctx context.Context) bool
	PrevTrack(ctx context.Context) bool
}

// Opener opens a Spotify URI or web link outside the terminal.
type Opener func(uri, webURL string) error

// Options holds the TUI dependencies. Player may be nil when nobody is signed in;
// play requests then open the album's fallback link.
type Options struct {
	Shelves ShelfStore
	Player  Player
	Open    Opener
	Logger  *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	view   ViewState
	store  ShelfStore
	player Player
	open   Opener
	logger *log.Logger

	width  int
	height int

	shelfList list.Model
	albumList list.Model
	trackList list.Model

	shelves []models.Shelf
	shelfID string
	albumID string
	state   models.PlaybackState

	shelfSub    <-chan []models.Shelf
	stopShelves func()
	playerSub   <-chan models.PlaybackState

	status string
	err    error
	help   help.Model
	keys   keyMap
}

func newList(title string) list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()
	return l
}

// NewModel creates a new TUI model and subscribes to shelf and playback changes.
// Call [Model.Close] once the program exits.
func NewModel(ctx context.Context, opts Options) *Model {
	if opts.Open == nil {
		opts.Open = shared.OpenExternal
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	m := &Model{
		ctx:       ctx,
		view:      ShelfListView,
		store:     opts.Shelves,
		player:    opts.Player,
		open:      opts.Open,
		logger:    opts.Logger,
		shelfList: newList("Shelves"),
		albumList: newList("Albums"),
		trackList: newList("Tracks"),
		help:      help.New(),
		keys:      newKeyMap(),
	}

	m.shelves = opts.Shelves.Shelves()
	m.shelfSub, m.stopShelves = opts.Shelves.Subscribe()
	if m.player != nil {
		m.state = m.player.State()
		m.playerSub = m.player.Subscribe()
	}
	m.refresh()
	return m
}

// Close releases the shelf and playback subscriptions.
func (m *Model) Close() {
	if m.stopShelves != nil {
		m.stopShelves()
		m.stopShelves = nil
		m.shelfSub = nil
	}
	if m.player != nil && m.playerSub != nil {
		m.player.Unsubscribe(m.playerSub)
		m.playerSub = nil
	}
}

// Init starts listening for shelf and playback changes.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitShelves(), m.waitPlayback())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		for _, l := range []*list.Model{&m.shelfList, &m.albumList, &m.trackList} {
			l.SetSize(msg.Width-4, msg.Height-6)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		switch msg.kind {
		case MsgShelvesChanged:
			m.shelves = msg.data.([]models.Shelf)
			return m, tea.Batch(m.refresh(), m.waitShelves())
		case MsgPlaybackChanged:
			m.state = msg.data.(models.PlaybackState)
			return m, tea.Batch(m.refresh(), m.waitPlayback())
		case MsgActionDone:
			m.finishAction(msg.data.(actionResult))
			return m, nil
		case MsgSubscriptionClosed:
			return m, nil
		}
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case AlbumListView:
		body = m.albumList.View()
	case TrackListView:
		body = m.trackList.View()
	default:
		body = m.shelfList.View()
	}
	return fmt.Sprintf("%s\n%s\n%s", body, m.renderStatus(), m.renderHelp())
}

func (m *Model) activeList() *list.Model {
	switch m.view {
	case AlbumListView:
		return &m.albumList
	case TrackListView:
		return &m.trackList
	default:
		return &m.shelfList
	}
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	active := m.activeList()
	if active.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggle):
		return m, m.playerAction("toggle", func(ctx context.Context, p Player) bool { return p.TogglePlayPause(ctx) })
	case key.Matches(msg, m.keys.next):
		return m, m.playerAction("next track", func(ctx context.Context, p Player) bool { return p.NextTrack(ctx) })
	case key.Matches(msg, m.keys.prev):
		return m, m.playerAction("previous track", func(ctx context.Context, p Player) bool { return p.PrevTrack(ctx) })
	case key.Matches(msg, m.keys.back) && active.FilterState() == list.FilterApplied && msg.String() == "esc":
		return m.updateLists(msg)
	}

	switch m.view {
	case ShelfListView:
		return m.handleShelfKeys(msg)
	case AlbumListView:
		return m.handleAlbumKeys(msg)
	case TrackListView:
		return m.handleTrackKeys(msg)
	}
	return m.updateLists(msg)
}

func (m *Model) handleShelfKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.shelfList.SelectedItem().(shelfItem); ok {
			m.shelfID = item.shelf.ID
			m.view = AlbumListView
			m.albumList.ResetFilter()
			m.albumList.Select(0)
			return m, m.refresh()
		}
		return m, nil
	}
	return m.updateLists(msg)
}

func (m *Model) handleAlbumKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	item, selected := m.albumList.SelectedItem().(albumItem)

	switch {
	case key.Matches(msg, m.keys.back):
		m.view = ShelfListView
		m.shelfID = ""
		return m, m.refresh()
	case !selected:
		return m.updateLists(msg)
	case key.Matches(msg, m.keys.enter):
		return m, m.playAlbum(item.album)
	case key.Matches(msg, m.keys.tracks):
		m.albumID = item.album.ID
		m.view = TrackListView
		m.trackList.ResetFilter()
		m.trackList.Select(0)
		return m, m.refresh()
	case key.Matches(msg, m.keys.moveUp):
		return m, m.move(item.album.ID, -1)
	case key.Matches(msg, m.keys.moveDn):
		return m, m.move(item.album.ID, 1)
	case key.Matches(msg, m.keys.remove):
		return m, m.remove(item.album)
	case key.Matches(msg, m.keys.open):
		return m, m.openLink(item.album.URI, item.album.ExternalURL)
	}
	return m.updateLists(msg)
}

func (m *Model) handleTrackKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back):
		m.view = AlbumListView
		m.albumID = ""
		return m, m.refresh()
	}

	item, ok := m.trackList.SelectedItem().(trackItem)
	if !ok {
		return m.updateLists(msg)
	}
	switch {
	case key.Matches(msg, m.keys.enter):
		album, _ := m.currentAlbum()
		return m, m.playTrack(album, item.track)
	case key.Matches(msg, m.keys.open):
		return m, m.openLink(item.track.URI(), item.track.ExternalURL)
	}
	return m.updateLists(msg)
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	active := m.activeList()
	*active, cmd = active.Update(msg)
	return m, cmd
}

func (m *Model) currentShelf() (models.Shelf, bool) {
	i := models.FindShelf(m.shelves, m.shelfID)
	if i < 0 {
		return models.Shelf{}, false
	}
	return m.shelves[i], true
}

func (m *Model) currentAlbum() (models.Album, bool) {
	shelf, ok := m.currentShelf()
	if !ok {
		return models.Album{}, false
	}
	i := shelf.IndexOf(m.albumID)
	if i < 0 {
		return models.Album{}, false
	}
	return shelf.Albums[i], true
}

// refresh rebuilds every list from the shelf and playback snapshots, keeping the cursor.
// A shelf or album that disappeared sends the view back up a level.
func (m *Model) refresh() tea.Cmd {
	var cmds []tea.Cmd

	shelfItems := make([]list.Item, len(m.shelves))
	for i, s := range m.shelves {
		shelfItems[i] = shelfItem{shelf: s, playing: playback.NowPlaying(m.state.CurrentTrack, s) != nil}
	}
	cmds = append(cmds, setItems(&m.shelfList, shelfItems))

	shelf, ok := m.currentShelf()
	if !ok && m.view != ShelfListView {
		m.view = ShelfListView
		m.shelfID = ""
		m.albumID = ""
	}
	if ok {
		m.albumList.Title = shelf.Name
		albumItems := make([]list.Item, len(shelf.Albums))
		for i, a := range shelf.Albums {
			albumItems[i] = albumItem{album: a, playing: playback.IsAlbumPlaying(m.state.CurrentTrack, a)}
		}
		cmds = append(cmds, setItems(&m.albumList, albumItems))
	}

	album, ok := m.currentAlbum()
	if !ok && m.view == TrackListView {
		m.view = AlbumListView
		m.albumID = ""
	}
	if ok {
		m.trackList.Title = fmt.Sprintf("%s • %s", album.Name, album.Artists)
		current := m.state.CurrentTrack
		trackItems := make([]list.Item, len(album.Tracks))
		for i, t := range album.Tracks {
			trackItems[i] = trackItem{track: t, playing: current != nil && shared.SameID(current.ID, t.ID)}
		}
		cmds = append(cmds, setItems(&m.trackList, trackItems))
	}
	return tea.Batch(cmds...)
}

func setItems(l *list.Model, items []list.Item) tea.Cmd {
	idx := l.Index()
	cmd := l.SetItems(items)
	if idx >= len(items) {
		idx = len(items) - 1
	}
	if idx >= 0 {
		l.Select(idx)
	}
	return cmd
}

func (m *Model) waitShelves() tea.Cmd {
	ch := m.shelfSub
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		shelves, ok := <-ch
		if !ok {
			return subscriptionClosedMsg()
		}
		return shelvesChangedMsg(shelves)
	}
}

func (m *Model) waitPlayback() tea.Cmd {
	ch := m.playerSub
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		state, ok := <-ch
		if !ok {
			return subscriptionClosedMsg()
		}
		return playbackChangedMsg(state)
	}
}

// runAction executes fn off the update loop and reports back with [MsgActionDone].
// A fallback returned by fn is opened before reporting.
func (m *Model) runAction(label string, fn func(ctx context.Context) actionResult) tea.Cmd {
	m.status = label + "..."
	m.err = nil
	ctx, open, logger := m.ctx, m.open, m.logger
	return func() tea.Msg {
		res := fn(ctx)
		res.label = label
		if res.fallback != nil && res.err == nil {
			if target := res.fallback.Target(); target != "" {
				res.err = open("", target)
			} else {
				res.err = fmt.Errorf("%w: nothing to open", shared.ErrDeviceNotReady)
			}
		}
		if res.err != nil {
			logger.Warn("action failed", "action", label, "error", res.err)
		}
		return actionDoneMsg(res)
	}
}

func (m *Model) playerAction(label string, fn func(ctx context.Context, p Player) bool) tea.Cmd {
	if m.player == nil {
		m.err = shared.ErrNotAuthenticated
		m.status = ""
		return nil
	}
	p := m.player
	return m.runAction(label, func(ctx context.Context) actionResult {
		return actionResult{ok: fn(ctx, p)}
	})
}

func (m *Model) playAlbum(album models.Album) tea.Cmd {
	p := m.player
	return m.runAction("play "+album.Name, func(ctx context.Context) actionResult {
		if p == nil {
			return actionResult{fallback: playback.FallbackFor(album)}
		}
		fb := p.PlayAlbumFromShelf(ctx, album)
		return actionResult{ok: fb == nil, fallback: fb}
	})
}

func (m *Model) playTrack(album models.Album, track models.Track) tea.Cmd {
	p := m.player
	return m.runAction("play "+track.Name, func(ctx context.Context) actionResult {
		if p == nil || !p.State().IsReady {
			fb := &playback.Fallback{PreviewURL: track.Preview(), ExternalURL: track.ExternalURL, URI: track.URI()}
			return actionResult{fallback: fb}
		}
		return actionResult{ok: p.PlayTrack(ctx, track.ID, album.Tracks)}
	})
}

func (m *Model) openLink(uri, webURL string) tea.Cmd {
	open := m.open
	return m.runAction("open", func(context.Context) actionResult {
		if err := open(uri, webURL); err != nil {
			return actionResult{err: err}
		}
		return actionResult{ok: true}
	})
}

func (m *Model) move(albumID string, delta int) tea.Cmd {
	shelf, ok := m.currentShelf()
	if !ok {
		return nil
	}
	i := shelf.IndexOf(albumID)
	j := i + delta
	if i < 0 || j < 0 || j >= len(shelf.Albums) {
		return nil
	}
	shelves, err := m.store.Reorder(shelf.ID, albumID, shelf.Albums[j].ID)
	if err != nil {
		m.err = err
		return nil
	}
	m.shelves = shelves
	cmd := m.refresh()
	m.albumList.Select(j)
	return cmd
}

func (m *Model) remove(album models.Album) tea.Cmd {
	shelves, err := m.store.RemoveAlbum(m.shelfID, album.ID)
	if err != nil {
		m.err = err
		return nil
	}
	m.shelves = shelves
	m.status = fmt.Sprintf("Removed %s", album.Name)
	m.err = nil
	return m.refresh()
}

func (m *Model) finishAction(res actionResult) {
	switch {
	case res.err != nil:
		m.err = res.err
		m.status = ""
	case res.fallback != nil:
		m.err = nil
		m.status = fmt.Sprintf("Player unavailable, opened %s", res.fallback.Target())
	case res.ok:
		m.err = nil
		m.status = ""
	default:
		m.err = fmt.Errorf("%s did not complete", res.label)
		m.status = ""
	}
}

func (m *Model) renderStatus() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	}
	if m.status != "" {
		return styles.warn.Render(m.status)
	}

	if m.player == nil {
		return styles.status.Render("Not signed in • play opens links in the browser")
	}
	ct := m.state.CurrentTrack
	switch {
	case !m.state.IsReady:
		return styles.status.Render("Player connecting...")
	case ct == nil:
		return styles.status.Render("Nothing playing")
	}
	icon := "⏸"
	if m.state.IsPlaying {
		icon = "▶"
	}
	return styles.ok.Render(fmt.Sprintf("%s %s • %s", icon, ct.Name, ct.Artists))
}

func (m *Model) renderHelp() string {
	var keys []key.Binding
	switch m.view {
	case ShelfListView:
		openShelf := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open"))
		keys = []key.Binding{openShelf, m.keys.toggle, m.keys.quit}
	case AlbumListView:
		keys = []key.Binding{m.keys.enter, m.keys.tracks, m.keys.toggle, m.keys.next, m.keys.prev,
			m.keys.moveUp, m.keys.moveDn, m.keys.remove, m.keys.open, m.keys.back, m.keys.quit}
	case TrackListView:
		keys = []key.Binding{m.keys.enter, m.keys.toggle, m.keys.next, m.keys.prev, m.keys.open, m.keys.back, m.keys.quit}
	}
	return m.help.ShortHelpView(keys)
}
