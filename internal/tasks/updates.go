package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ReadInput Phase = iota
	FetchAlbums
	AddAlbums
	Done
)

func (p Phase) String() string {
	switch p {
	case ReadInput:
		return "read_input"
	case FetchAlbums:
		return "fetch_albums"
	case AddAlbums:
		return "add_albums"
	case Done:
		return "done"
	default:
		return ""
	}
}

func readInputUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ReadInput,
		Step:    total,
		Total:   total,
		Message: fmt.Sprintf("Read %d album links", total),
	}
}

func fetchedAlbumUpdate(step, total int, res AlbumImportResult) ProgressUpdate {
	msg := fmt.Sprintf("Fetched %s", res.Name)
	if res.Err != nil {
		msg = fmt.Sprintf("Failed to fetch %s: %v", res.URL, res.Err)
	}
	return ProgressUpdate{
		Phase:   FetchAlbums,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    res,
	}
}

func addedAlbumUpdate(step, total int, res AlbumImportResult) ProgressUpdate {
	var msg string
	switch res.Status {
	case StatusAdded:
		msg = fmt.Sprintf("Added %s", res.Name)
	case StatusDuplicate:
		msg = fmt.Sprintf("Skipped %s (already on shelf)", res.Name)
	default:
		msg = fmt.Sprintf("Could not add %s: %v", res.URL, res.Err)
	}
	return ProgressUpdate{
		Phase:   AddAlbums,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    res,
	}
}

func doneUpdate(result *ImportResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    result.Total,
		Total:   result.Total,
		Message: fmt.Sprintf("Imported %d albums (%d duplicates, %d failed)", result.Added, result.Duplicates, result.Failed),
		Data:    result,
	}
}
