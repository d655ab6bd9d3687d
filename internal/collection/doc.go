// Package collection owns the user's shelves on the client side.
//
// [Manager] holds the ordered shelf list in memory and applies every mutation (create, delete,
// rename, add, remove, reorder) under a mutex. Each change is written to a [LocalStore] under the
// "spotify_shelves" key and, once [Manager.SetIdentity] is called, pushed asynchronously to a
// [RemoteStore] keyed by the user's external id. [Manager.Flush] waits for those writes.
//
// [FileStore] is the on-disk [LocalStore]: one JSON object per user config directory, replaced
// atomically and watched with fsnotify so a second CLI or TUI process sees changes.
package collection
