package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"timeshare-deals/metrics"
	"timeshare-deals/models"
	"timeshare-deals/scraper"
	"timeshare-deals/storage"
	"timeshare-deals/utils"
)

// ErrRunInProgress is returned when a source is already being scraped.
var ErrRunInProgress = errors.New("a run for this source is already in progress")

const maxErrorMessage = 500

// FetcherFactory builds the fetch session for one run. namespace is unique
// per run and isolates its page cache entries. A fetcher that implements
// io.Closer is closed when the run ends.
type FetcherFactory func(source models.Source, namespace string) scraper.PageFetcher

// RunResult reports what one scrape run did.
type RunResult struct {
	Run         *models.ScrapeRun
	Deactivated int
}

// Runner drives one extractor end-to-end: scrape, normalize, upsert,
// soft-delete and run-log bookkeeping.
type Runner struct {
	store        storage.Store
	registry     *scraper.Registry
	normalizer   *Normalizer
	newFetcher   FetcherFactory
	keywords     []string
	fetchDetails bool
	logger       *utils.Logger

	mu      sync.Mutex
	running map[models.Source]bool
	// exec serializes runs so only one source is scraped at a time
	exec sync.Mutex
}

// RunnerConfig holds the per-process knobs of the runner.
type RunnerConfig struct {
	Keywords     []string
	FetchDetails bool
}

func NewRunner(store storage.Store, registry *scraper.Registry, normalizer *Normalizer,
	newFetcher FetcherFactory, cfg RunnerConfig, logger *utils.Logger) *Runner {
	return &Runner{
		store:        store,
		registry:     registry,
		normalizer:   normalizer,
		newFetcher:   newFetcher,
		keywords:     cfg.Keywords,
		fetchDetails: cfg.FetchDetails,
		logger:       logger,
		running:      make(map[models.Source]bool),
	}
}

// Run scrapes one source. Listings collected before a failure are still
// stored; the run log entry is always finalized, even if ctx is cancelled.
// Soft deletion only happens after a fully successful scrape.
func (r *Runner) Run(ctx context.Context, source models.Source, filters scraper.Filters) (*RunResult, error) {
	if !r.acquire(source) {
		return nil, fmt.Errorf("%s: %w", source, ErrRunInProgress)
	}
	defer r.release(source)
	return r.run(ctx, source, filters)
}

// Start launches Run in the background and returns once the source is
// known and not already running. done, if set, receives the outcome.
func (r *Runner) Start(ctx context.Context, source models.Source, filters scraper.Filters,
	done func(*RunResult, error)) error {
	if !r.registry.Has(source) {
		return fmt.Errorf("%w: %s", scraper.ErrUnknownSource, source)
	}
	if !r.acquire(source) {
		return fmt.Errorf("%s: %w", source, ErrRunInProgress)
	}
	go func() {
		defer r.release(source)
		res, err := r.run(ctx, source, filters)
		if done != nil {
			done(res, err)
		}
	}()
	return nil
}

func (r *Runner) run(ctx context.Context, source models.Source, filters scraper.Filters) (*RunResult, error) {
	r.exec.Lock()
	defer r.exec.Unlock()

	persistCtx := context.WithoutCancel(ctx)

	run, err := r.store.CreateRun(ctx, string(source))
	if err != nil {
		return nil, fmt.Errorf("runner: create run: %w", err)
	}
	result := &RunResult{Run: run}

	r.logger.Info("[runner] Run #%d started for %s", run.ID, source)

	runErr := r.execute(ctx, persistCtx, source, filters, result)

	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = shortError(runErr)
		r.logger.Error("[runner] Run #%d for %s failed: %v", run.ID, source, runErr)
	} else {
		run.Status = models.RunStatusCompleted
		r.logger.Info("[runner] Run #%d for %s completed: found %d, new %d, updated %d, deactivated %d",
			run.ID, source, run.Found, run.New, run.Updated, result.Deactivated)
	}

	if err := r.store.FinishRun(persistCtx, run); err != nil {
		r.logger.Error("[runner] Could not finalize run #%d: %v", run.ID, err)
		if runErr == nil {
			runErr = fmt.Errorf("runner: finish run: %w", err)
		}
	}
	metrics.RecordRun(string(source), string(run.Status))
	metrics.RecordListings(string(source), run.New, run.Updated)

	return result, runErr
}

func (r *Runner) execute(ctx, persistCtx context.Context, source models.Source, filters scraper.Filters, result *RunResult) error {
	run := result.Run
	namespace := uuid.NewString()

	fetcher := r.newFetcher(source, namespace)
	if c, ok := fetcher.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				r.logger.Warn("[runner] Closing fetch session of run #%d: %v", run.ID, err)
			}
		}()
	}

	extractor, err := r.registry.Build(source, scraper.Deps{
		Fetcher:      fetcher,
		Logger:       r.logger,
		Keywords:     r.keywords,
		FetchDetails: r.fetchDetails,
	})
	if err != nil {
		return err
	}

	raw, scrapeErr := r.scrape(ctx, extractor, filters)
	listings := r.normalizer.NormalizeAll(raw)
	run.Found = len(listings)

	seen := make([]string, 0, len(listings))
	var storeErr error
	for _, l := range listings {
		created, err := r.store.UpsertListing(persistCtx, l)
		if err != nil {
			storeErr = err
			break
		}
		seen = append(seen, l.SourceID)
		if created {
			run.New++
		} else {
			run.Updated++
		}
	}

	switch {
	case scrapeErr != nil:
		return scrapeErr
	case storeErr != nil:
		return fmt.Errorf("runner: store listing: %w", storeErr)
	case len(listings) == 0:
		r.logger.Warn("[runner] %s returned no listings, keeping existing ones active", source)
		return nil
	}

	n, err := r.store.DeactivateMissing(persistCtx, source, seen)
	if err != nil {
		return fmt.Errorf("runner: deactivate missing: %w", err)
	}
	result.Deactivated = n
	return nil
}

// scrape isolates the extractor so a panic becomes a failed run.
func (r *Runner) scrape(ctx context.Context, ex scraper.Extractor, filters scraper.Filters) (raw []*models.RawListing, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("extractor %s panicked: %v", ex.Source(), p)
		}
	}()
	return ex.ScrapeListings(ctx, filters)
}

// RunAll scrapes every registered source one after the other. A failing
// source does not stop the others; the joined error is returned.
func (r *Runner) RunAll(ctx context.Context, filters scraper.Filters) ([]*RunResult, error) {
	var (
		results []*RunResult
		errs    []error
	)
	for _, src := range r.registry.Sources() {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := r.Run(ctx, src, filters)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src, err))
		}
	}
	return results, errors.Join(errs...)
}

func (r *Runner) acquire(src models.Source) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[src] {
		return false
	}
	r.running[src] = true
	return true
}

func (r *Runner) release(src models.Source) {
	r.mu.Lock()
	delete(r.running, src)
	r.mu.Unlock()
}

func shortError(err error) string {
	msg := []rune(err.Error())
	if len(msg) > maxErrorMessage {
		return string(msg[:maxErrorMessage-3]) + "..."
	}
	return string(msg)
}
