// Package models defines domain entities and persistence interfaces for the shelves service.
//
// The package contains two categories of types:
//
// 1. Catalog and collection values, passed by value and replaced wholesale
//   - [Album] : Album metadata with its ordered [Track] list
//   - [Shelf] : Ordered, deduplicated album collection owned by one user
//   - [PlaybackState] : Snapshot of the Connect device session
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [User] : Spotify account with tokens and [Preferences]
//
// Persistent entities implement the [Model] interface providing ID generation, timestamps, validation, and soft delete support.
// The Repository[T] interface defines standard CRUD operations for database access.
//
// Ids are compared through [shared.NormalizeID] everywhere, since the vendor mixes bare ids and spotify:type:id URIs.
package models
