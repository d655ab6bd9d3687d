// Package repositories implements SQLite persistence for the shelves server.
//
// Key Implementations:
//   - [UserRepository] : Spotify accounts, tokens and preferences, looked up by id or Spotify id
//   - [ShelfRepository] : One JSON shelf list per external id, upserted whole on every write
//   - [SessionRepository] : Cookie sessions and pending CLI login claims
//   - [TieredShelfStore] : [ShelfStore] layering a [MemoryShelfStore] beneath the sqlite store
//
// Users support soft deletes via deleted_at and are excluded from queries once deleted.
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
