package providers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Adda-Baaj/isd-harvester/internal/domain"
	"github.com/Adda-Baaj/isd-harvester/internal/logger"
)

const defaultFeedWorkers = 4

var (
	// ErrNoSources is returned when Collect is called without sources.
	ErrNoSources = errors.New("no feed sources configured")
	// ErrAllSourcesFailed is returned when every source failed to fetch.
	ErrAllSourcesFailed = errors.New("all feed sources failed")
)

// CollectorOptions tunes a Collector.
type CollectorOptions struct {
	Workers int
	// Window drops entries with a parsed timestamp older than now-Window.
	Window time.Duration
	Now    func() time.Time
}

// Collector fetches all sources and merges their entries.
type Collector struct {
	registry FetcherRegistry
	log      logger.Logger
	workers  int
	window   time.Duration
	now      func() time.Time
}

// NewCollector builds a Collector over the given registry.
func NewCollector(registry FetcherRegistry, log logger.Logger, opts CollectorOptions) *Collector {
	if opts.Workers <= 0 {
		opts.Workers = defaultFeedWorkers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Collector{
		registry: registry,
		log:      logger.Ensure(log),
		workers:  opts.Workers,
		window:   opts.Window,
		now:      opts.Now,
	}
}

type sourceResult struct {
	entries []domain.RawEntry
	err     error
}

// Collect fetches every source on a bounded worker pool and returns the union
// of their entries, newest first. Failed sources are logged and skipped.
func (c *Collector) Collect(ctx context.Context, sources []domain.FeedSource) ([]domain.RawEntry, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	results := make([]sourceResult, len(sources))
	jobCh := make(chan int)
	var wg sync.WaitGroup

	for workerID := range min(len(sources), c.workers) {
		wg.Add(1)
		go c.sourceWorker(ctx, sources, jobCh, results, &wg, workerID)
	}

	for idx := range sources {
		if ctx.Err() != nil {
			results[idx].err = ctx.Err()
			continue
		}
		jobCh <- idx
	}
	close(jobCh)
	wg.Wait()

	cutoff := time.Time{}
	if c.window > 0 {
		cutoff = c.now().Add(-c.window)
	}

	var (
		all    []domain.RawEntry
		errs   []error
		failed int
		stale  int
	)
	for i, res := range results {
		if res.err != nil {
			failed++
			errs = append(errs, fmt.Errorf("%s: %w", sources[i].ID, res.err))
			continue
		}
		for _, e := range res.entries {
			if !cutoff.IsZero() && !e.PublishedEstimated && e.PublishedAt.Before(cutoff) {
				stale++
				continue
			}
			all = append(all, e)
		}
	}

	if failed == len(sources) {
		return nil, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
	}

	slices.SortStableFunc(all, func(a, b domain.RawEntry) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})

	c.log.InfoObj("feed collection complete", "feed_collect_done", map[string]any{
		"sources": len(sources),
		"failed":  failed,
		"entries": len(all),
		"stale":   stale,
	})
	return all, nil
}

func (c *Collector) sourceWorker(
	ctx context.Context,
	sources []domain.FeedSource,
	jobCh <-chan int,
	results []sourceResult,
	wg *sync.WaitGroup,
	workerID int,
) {
	defer wg.Done()

	for idx := range jobCh {
		src := sources[idx]
		if ctx.Err() != nil {
			results[idx].err = ctx.Err()
			continue
		}

		entries, err := c.fetchSource(ctx, src)
		if err != nil {
			c.log.WarnObj("feed fetch failed", "feed_fetch_error", map[string]any{
				"worker_id": workerID,
				"source_id": src.ID,
				"kind":      src.Kind,
				"url":       src.URL,
				"error":     err.Error(),
			})
			results[idx].err = err
			continue
		}

		c.log.DebugObj("feed fetched", "feed_fetch_done", map[string]any{
			"worker_id": workerID,
			"source_id": src.ID,
			"entries":   len(entries),
		})
		results[idx].entries = entries
	}
}

func (c *Collector) fetchSource(ctx context.Context, src domain.FeedSource) (entries []domain.RawEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetcher panic: %v", r)
		}
	}()

	f, err := c.registry.FetcherFor(src)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, src)
}
