// Package ui implements the interactive shelf browser using bubbletea's Elm architecture.
//
// The TUI has three views, entered in order:
//  1. [ShelfListView] : every shelf, marked when it holds the playing album
//  2. [AlbumListView] : the albums on one shelf, in shelf order
//  3. [TrackListView] : the tracks of one album
//
// The (view) [Model] implements the standard Init/Update/View pattern, receiving messages via the [Msg] union type.
// Shelf and playback snapshots arrive through subscriptions on the collection manager and the playback controller,
// so edits made elsewhere (another process, the sync watcher) show up without a reload.
//
// Playback calls block for device activation and retries, so they run as commands off the update loop.
// When the player can't serve a request the album's fallback link is opened instead.
//
// Keys: enter plays, space toggles, n/p skip, [ and ] reorder, x removes, o opens the link, esc goes back.
package ui
