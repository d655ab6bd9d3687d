// Package tasks runs long album operations with real-time progress reporting.
//
// # Bulk Import
//
// [ImportEngine.Import] takes a list of album links (see [ReadAlbumURLs]) and
// appends the albums to one shelf:
//
//  1. Links are fetched on a worker pool throttled by a token bucket
//     (golang.org/x/time/rate), so the metadata endpoint sees a steady rate.
//  2. Once the pool drains, albums are added through the collection manager
//     in input order. Albums already on the shelf are reported as duplicates.
//  3. Per-link failures are collected in [ImportResult] and never abort the batch.
//
// # Progress Reporting
//
// Every phase sends [ProgressUpdate] values on an optional channel. Sends use
// select with default so a slow or absent reader never stalls the import.
package tasks
