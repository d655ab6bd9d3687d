package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/shelves/internal/collection"
	"github.com/desertthunder/shelves/internal/formatter"
	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/services"
	"github.com/desertthunder/shelves/internal/shared"
	"github.com/desertthunder/shelves/internal/tasks"
	"github.com/urfave/cli/v3"
)

// resolveShelf finds a shelf by id, then by name.
func resolveShelf(m *collection.Manager, ref string) (models.Shelf, error) {
	if ref == "" {
		return models.Shelf{}, fmt.Errorf("%w: shelf id or name", shared.ErrMissingArgument)
	}
	if shelf, err := m.Shelf(ref); err == nil {
		return shelf, nil
	}
	if shelf, ok := m.FindByName(ref); ok {
		return shelf, nil
	}
	return models.Shelf{}, fmt.Errorf("%w: %s", shared.ErrShelfNotFound, ref)
}

// shelfMissing reports a delete or rename of an absent shelf. Nothing changed, so it is not an error.
func (r *Runner) shelfMissing(ref string) error {
	r.logger.Warn("shelf not found, nothing changed", "shelf", ref)
	return r.writePlain("! No shelf matches %s, nothing changed\n", ref)
}

// albumRef accepts an album id, URI or link.
func albumRef(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: album id", shared.ErrMissingArgument)
	}
	if id, err := services.ExtractAlbumID(ref); err == nil {
		return id, nil
	}
	return ref, nil
}

// ShelfList prints every shelf, or the albums on the shelf named by --shelf.
func (r *Runner) ShelfList(ctx context.Context, cmd *cli.Command) error {
	m, _, err := r.manager(ctx)
	if err != nil {
		return err
	}

	if ref := cmd.String("shelf"); ref != "" {
		shelf, err := resolveShelf(m, ref)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(shelf, cmd.Bool("pretty"))
		}
		r.writePlainHeader(shelf.Name)
		for i, a := range shelf.Albums {
			r.writePlain("%3d. %s - %s (%s)  [%s]\n", i+1, a.Artists, a.Name, a.Year(), a.ID)
		}
		if len(shelf.Albums) == 0 {
			r.writePlain("No albums yet. Add one with 'shelves shelf add'.\n")
		}
		return nil
	}

	shelves := m.Shelves()
	if cmd.Bool("json") {
		return r.writeJSON(shelves, cmd.Bool("pretty"))
	}
	if len(shelves) == 0 {
		return r.writePlain("No shelves yet. Create one with 'shelves shelf create <name>'.\n")
	}
	r.writePlainHeader(fmt.Sprintf("Shelves (%d)", len(shelves)))
	for _, s := range shelves {
		r.writePlain("%-36s  %-24s  %d albums\n", s.ID, s.Name, len(s.Albums))
	}
	return nil
}

// ShelfCreate adds an empty shelf.
func (r *Runner) ShelfCreate(ctx context.Context, cmd *cli.Command) error {
	m, _, err := r.manager(ctx)
	if err != nil {
		return err
	}
	defer m.Flush()

	id, err := m.CreateShelf(cmd.StringArg("name"))
	if err != nil {
		return err
	}
	return r.writePlain("✓ Created shelf %s\n", id)
}

// ShelfDelete removes a shelf and its albums.
func (r *Runner) ShelfDelete(ctx context.Context, cmd *cli.Command) error {
	m, _, err := r.manager(ctx)
	if err != nil {
		return err
	}
	defer m.Flush()

	ref := cmd.StringArg("shelf")
	shelf, err := resolveShelf(m, ref)
	if errors.Is(err, shared.ErrShelfNotFound) {
		return r.shelfMissing(ref)
	} else if err != nil {
		return err
	}
	if _, err := m.DeleteShelf(shelf.ID); errors.Is(err, shared.ErrShelfNotFound) {
		return r.shelfMissing(ref)
	} else if err != nil {
		return err
	}
	return r.writePlain("✓ Deleted %s\n", shelf.Name)
}

// ShelfRename renames a shelf.
func (r *Runner) ShelfRename(ctx context.Context, cmd *cli.Command) error {
	m, _, err := r.manager(ctx)
	if err != nil {
		return err
	}
	defer m.Flush()

	ref := cmd.StringArg("shelf")
	shelf, err := resolveShelf(m, ref)
	if errors.Is(err, shared.ErrShelfNotFound) {
		return r.shelfMissing(ref)
	} else if err != nil {
		return err
	}
	name := cmd.StringArg("name")
	if _, err := m.RenameShelf(shelf.ID, name); errors.Is(err, shared.ErrShelfNotFound) {
		return r.shelfMissing(ref)
	} else if err != nil {
		return err
	}
	return r.writePlain("✓ Renamed %s to %s\n", shelf.Name, strings.TrimSpace(name))
}

// ShelfAdd fetches an album by link and appends it to a shelf.
func (r *Runner) ShelfAdd(ctx context.Context, cmd *cli.Command) error {
	link := cmd.StringArg("url")
	if link == "" {
		return fmt.Errorf("%w: album URL", shared.ErrMissingArgument)
	}

	m, client, err := r.manager(ctx)
	if err != nil {
		return err
	}
	defer m.Flush()

	shelf, err := resolveShelf(m, cmd.StringArg("shelf"))
	if err != nil {
		return err
	}

	album, err := client.FetchAlbum(ctx, link)
	if err != nil {
		return err
	}
	if shelf.Contains(album.ID) {
		return r.writePlain("%s is already on %s\n", album.Name, shelf.Name)
	}
	if _, err := m.AddAlbum(shelf.ID, *album); err != nil {
		return err
	}
	return r.writePlain("✓ Added %s - %s to %s\n", album.Artists, album.Name, shelf.Name)
}

// ShelfRemove takes an album off a shelf.
func (r *Runner) ShelfRemove(ctx context.Context, cmd *cli.Command) error {
	m, _, err := r.manager(ctx)
	if err != nil {
		return err
	}
	defer m.Flush()

	shelf, err := resolveShelf(m, cmd.StringArg("shelf"))
	if err != nil {
		return err
	}
	id, err := albumRef(cmd.StringArg("album"))
	if err != nil {
		return err
	}
	if !shelf.Contains(id) {
		return fmt.Errorf("%w: %s is not on %s", shared.ErrAlbumNotFound, id, shelf.Name)
	}
	if _, err := m.RemoveAlbum(shelf.ID, id); err != nil {
		return err
	}
	return r.writePlain("✓ Removed %s from %s\n", id, shelf.Name)
}

// ShelfMove moves an album to the position held by target.
func (r *Runner) ShelfMove(ctx context.Context, cmd *cli.Command) error {
	m, _, err := r.manager(ctx)
	if err != nil {
		return err
	}
	defer m.Flush()

	shelf, err := resolveShelf(m, cmd.StringArg("shelf"))
	if err != nil {
		return err
	}
	moved, err := albumRef(cmd.StringArg("album"))
	if err != nil {
		return err
	}
	target, err := albumRef(cmd.StringArg("target"))
	if err != nil {
		return err
	}
	for _, id := range []string{moved, target} {
		if !shelf.Contains(id) {
			return fmt.Errorf("%w: %s is not on %s", shared.ErrAlbumNotFound, id, shelf.Name)
		}
	}

	shelves, err := m.Reorder(shelf.ID, moved, target)
	if err != nil {
		return err
	}
	if i := models.FindShelf(shelves, shelf.ID); i >= 0 {
		return r.writePlain("✓ %s is now at position %d\n", moved, shelves[i].IndexOf(moved)+1)
	}
	return nil
}

// ShelfExport writes a shelf as text, markdown, CSV or JSON.
func (r *Runner) ShelfExport(ctx context.Context, cmd *cli.Command) error {
	m, _, err := r.manager(ctx)
	if err != nil {
		return err
	}

	shelf, err := resolveShelf(m, cmd.StringArg("shelf"))
	if err != nil {
		return err
	}

	format := cmd.String("format")
	if cmd.IsSet("output") {
		path, err := formatter.WriteExport(shelf, format, cmd.String("output"))
		if err != nil {
			return err
		}
		r.logger.Info("exported shelf", "shelf", shelf.ID, "format", format, "path", path)
		return r.writePlain("✓ Exported %s to %s\n", shelf.Name, path)
	}

	data, err := formatter.Export(shelf, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// ShelfImport adds every album link in a file to a shelf.
func (r *Runner) ShelfImport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: file with album links", shared.ErrMissingArgument)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	urls, err := tasks.ReadAlbumURLs(f)
	if err != nil {
		return err
	}

	m, client, err := r.manager(ctx)
	if err != nil {
		return err
	}
	defer m.Flush()

	var shelf models.Shelf
	if ref := cmd.String("shelf"); ref != "" {
		shelf, err = resolveShelf(m, ref)
	} else {
		shelf, err = m.GetOrCreateUnifiedShelf()
	}
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range progress {
			switch u.Phase {
			case tasks.FetchAlbums, tasks.AddAlbums:
				r.logger.Debug(u.Message, "phase", u.Phase, "step", u.Step, "total", u.Total)
			default:
				r.logger.Info(u.Message, "phase", u.Phase)
			}
		}
	}()

	engine := tasks.NewImportEngine(client, m, r.logger)
	result, err := engine.Import(ctx, progress, shelf.ID, urls, tasks.ImportOpts{
		NumWorkers: cmd.Int("workers"),
		RateLimit:  r.config.Player.RateLimit,
	})
	close(progress)
	<-done
	if result == nil {
		return err
	}

	r.writePlainHeader(fmt.Sprintf("Import into %s", shelf.Name))
	for _, res := range result.Results {
		switch res.Status {
		case tasks.StatusAdded:
			r.writePlain("✓ %s\n", res.Name)
		case tasks.StatusDuplicate:
			r.writePlain("= %s (already on shelf)\n", res.Name)
		default:
			r.writePlain("✗ %s: %v\n", res.URL, res.Err)
		}
	}
	r.writePlainln("%d added, %d duplicates, %d failed", result.Added, result.Duplicates, result.Failed)
	return err
}
