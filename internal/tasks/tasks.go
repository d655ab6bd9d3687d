package tasks

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/services"
	"github.com/desertthunder/shelves/internal/shared"
	"golang.org/x/time/rate"
)

// ImportStatus is the outcome for one album link.
type ImportStatus string

const (
	StatusAdded     ImportStatus = "added"
	StatusDuplicate ImportStatus = "duplicate"
	StatusFailed    ImportStatus = "failed"
)

// AlbumImportResult is the outcome for one input line.
type AlbumImportResult struct {
	URL     string
	AlbumID string
	Name    string
	Status  ImportStatus
	Err     error
	album   *models.Album
}

// ImportResult summarizes a bulk import. Results keep input order.
type ImportResult struct {
	ShelfID    string
	Total      int
	Added      int
	Duplicates int
	Failed     int
	Results    []AlbumImportResult
}

// ImportOpts configures the fetch worker pool.
type ImportOpts struct {
	NumWorkers int     // Concurrent fetches (default: 4, max: 10)
	RateLimit  float64 // Metadata requests per second (default: 5)
}

// AlbumSource resolves an album link to its metadata.
//
// Implemented by [services.ShelvesClient] and [services.AlbumFetcher].
type AlbumSource interface {
	FetchAlbum(ctx context.Context, albumURL string) (*models.Album, error)
}

// ShelfWriter is the part of the collection manager the importer needs.
type ShelfWriter interface {
	Shelf(id string) (models.Shelf, error)
	AddAlbum(shelfID string, album models.Album) ([]models.Shelf, error)
}

// ImportEngine fetches album links concurrently and appends the results to a shelf.
type ImportEngine struct {
	albums  AlbumSource
	shelves ShelfWriter
	logger  *log.Logger
}

func NewImportEngine(albums AlbumSource, shelves ShelfWriter, logger *log.Logger) *ImportEngine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &ImportEngine{albums: albums, shelves: shelves, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *ImportEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// ReadAlbumURLs reads one album link per line.
//
// Blank lines and lines starting with # are skipped. Links that resolve to
// an album id already seen are dropped so the first occurrence wins.
// Lines that are not album links are kept; the import reports them as failed.
func ReadAlbumURLs(r io.Reader) ([]string, error) {
	var urls []string
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key := line
		if id, err := services.ExtractAlbumID(line); err == nil {
			key = shared.NormalizeID(id)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read album list: %w", err)
	}
	return urls, nil
}

type fetchJob struct {
	index int
	url   string
}

type fetchOutcome struct {
	index int
	res   AlbumImportResult
}

// Import fetches every link in urls and adds the albums to shelfID.
//
// Fetches run on a rate-limited worker pool. Albums are added in input order
// once the pool drains, so the shelf order matches the file. A failure for one
// link never aborts the rest. On cancellation the links not yet fetched are
// reported as failed, whatever was fetched is still added, and the context
// error is returned with the partial result.
func (e *ImportEngine) Import(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	shelfID string,
	urls []string,
	opts ImportOpts,
) (*ImportResult, error) {
	if e.albums == nil || e.shelves == nil {
		return nil, fmt.Errorf("%w: import engine not initialized", shared.ErrServiceUnavailable)
	}
	if _, err := e.shelves.Shelf(shelfID); err != nil {
		return nil, err
	}

	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	total := len(urls)
	result := &ImportResult{
		ShelfID: shelfID,
		Total:   total,
		Results: make([]AlbumImportResult, total),
	}
	e.sendProgress(prog, readInputUpdate(total))

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan fetchJob)
	outcomes := make(chan fetchOutcome, total)

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.fetchWorker(ctx, &wg, limiter, jobs, outcomes)
	}

	go func() {
		defer close(jobs)
		for i, u := range urls {
			select {
			case jobs <- fetchJob{index: i, url: u}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	fetched := make([]bool, total)
	completed := 0
	for out := range outcomes {
		result.Results[out.index] = out.res
		fetched[out.index] = true
		completed++
		e.sendProgress(prog, fetchedAlbumUpdate(completed, total, out.res))
	}

	ctxErr := ctx.Err()
	for i := range result.Results {
		res := &result.Results[i]
		switch {
		case !fetched[i]:
			*res = AlbumImportResult{URL: urls[i], Status: StatusFailed, Err: ctxErr}
		case res.Err == nil:
			e.add(shelfID, res)
		}
		e.tally(result, *res)
		e.sendProgress(prog, addedAlbumUpdate(i+1, total, *res))
	}

	e.logger.Info("import finished", "shelf", shelfID, "added", result.Added,
		"duplicates", result.Duplicates, "failed", result.Failed)
	e.sendProgress(prog, doneUpdate(result))
	return result, ctxErr
}

// fetchWorker resolves links from jobs until the channel closes or ctx ends.
func (e *ImportEngine) fetchWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	limiter *rate.Limiter,
	jobs <-chan fetchJob,
	outcomes chan<- fetchOutcome,
) {
	defer wg.Done()

	for job := range jobs {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		res := AlbumImportResult{URL: job.url}
		album, err := e.albums.FetchAlbum(ctx, job.url)
		switch {
		case err != nil:
			res.Status = StatusFailed
			res.Err = err
			e.logger.Warn("album fetch failed", "url", job.url, "error", err)
		case album == nil:
			res.Status = StatusFailed
			res.Err = fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, job.url)
		default:
			res.AlbumID = album.ID
			res.Name = album.Name
			res.album = album
		}
		outcomes <- fetchOutcome{index: job.index, res: res}
	}
}

// add appends the fetched album, marking it a duplicate when the shelf already holds it.
func (e *ImportEngine) add(shelfID string, res *AlbumImportResult) {
	shelf, err := e.shelves.Shelf(shelfID)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return
	}
	if shelf.Contains(res.album.ID) {
		res.Status = StatusDuplicate
		return
	}
	if _, err := e.shelves.AddAlbum(shelfID, *res.album); err != nil {
		res.Status = StatusFailed
		res.Err = err
		return
	}
	res.Status = StatusAdded
}

func (e *ImportEngine) tally(result *ImportResult, res AlbumImportResult) {
	switch res.Status {
	case StatusAdded:
		result.Added++
	case StatusDuplicate:
		result.Duplicates++
	default:
		result.Failed++
	}
}
