package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/isd-harvester/internal/domain"
	"github.com/Adda-Baaj/isd-harvester/internal/logger"
	"github.com/Adda-Baaj/isd-harvester/internal/textclean"
	"github.com/Adda-Baaj/isd-harvester/pkg/httpclient"
)

const (
	maxHTMLBodyBytes  = 2 << 20 // 2 MiB
	maxArticleWorkers = 8
	defaultMinChars   = 200
)

// Options tunes an Extractor.
type Options struct {
	// MinChars stops the strategy chain at the first attempt this long.
	MinChars          int
	MaxBodyBytes      int
	Workers           int
	ParagraphMinChars int
	StructuralCap     int
	// RequestDelay spaces page fetches across workers.
	RequestDelay time.Duration
	Cleaner      *textclean.Cleaner
}

// Extractor fetches publisher pages and runs the extraction strategies over them.
type Extractor struct {
	client     httpclient.Client
	log        logger.Logger
	opts       Options
	strategies []strategy
}

// NewExtractor creates an Extractor with the given HTTP client and logger.
func NewExtractor(client httpclient.Client, log logger.Logger, opts Options) *Extractor {
	if client == nil {
		client = httpclient.New(httpclient.Options{MaxBodyBytes: maxHTMLBodyBytes})
	}
	if opts.MinChars <= 0 {
		opts.MinChars = defaultMinChars
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = maxHTMLBodyBytes
	}
	if opts.Workers <= 0 {
		opts.Workers = maxArticleWorkers
	}
	if opts.ParagraphMinChars <= 0 {
		opts.ParagraphMinChars = defaultParagraphMin
	}
	if opts.StructuralCap <= 0 {
		opts.StructuralCap = defaultStructuralCap
	}
	if opts.Cleaner == nil {
		opts.Cleaner = textclean.NewCleaner()
	}

	return &Extractor{
		client: client,
		log:    logger.Ensure(log),
		opts:   opts,
		strategies: []strategy{
			readabilityStrategy{},
			structuralStrategy{
				paragraphMin: opts.ParagraphMinChars,
				capChars:     opts.StructuralCap,
				skipPrefixes: opts.Cleaner.InlinePhrases,
				minChars:     opts.MinChars,
			},
			socialStrategy{},
		},
	}
}

// ExtractAll extracts every URL on a bounded worker pool. Duplicate URLs are
// fetched once.
func (e *Extractor) ExtractAll(ctx context.Context, urls []string) map[string]domain.Extraction {
	unique := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok || u == "" {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}

	out := make([]domain.Extraction, len(unique))
	if len(unique) > 0 {
		var limiter <-chan time.Time
		if e.opts.RequestDelay > 0 {
			ticker := time.NewTicker(e.opts.RequestDelay)
			limiter = ticker.C
			defer ticker.Stop()
		}

		jobCh := make(chan int)
		var wg sync.WaitGroup

		for workerID := range min(len(unique), e.opts.Workers) {
			wg.Add(1)
			go e.pageWorker(ctx, unique, limiter, jobCh, out, &wg, workerID)
		}

		for idx := range unique {
			if ctx.Err() != nil {
				break
			}
			jobCh <- idx
		}
		close(jobCh)

		wg.Wait()
	}

	results := make(map[string]domain.Extraction, len(unique))
	for i, u := range unique {
		x := out[i]
		x.URL = u
		results[u] = x
	}
	return results
}

// pageWorker processes pages from the job channel, respecting the rate limiter.
func (e *Extractor) pageWorker(
	ctx context.Context,
	urls []string,
	limiter <-chan time.Time,
	jobCh <-chan int,
	out []domain.Extraction,
	wg *sync.WaitGroup,
	workerID int,
) {
	defer wg.Done()

	for idx := range jobCh {
		if ctx.Err() != nil {
			return
		}

		if limiter != nil {
			select {
			case <-ctx.Done():
				return
			case <-limiter:
			}
		}

		out[idx] = e.extract(ctx, urls[idx], workerID)
	}
}

// Extract fetches one page and returns the attempts of every strategy run,
// stopping at the first one that clears MinChars. Fetch failures yield an
// empty Extraction.
func (e *Extractor) Extract(ctx context.Context, pageURL string) domain.Extraction {
	return e.extract(ctx, pageURL, 0)
}

func (e *Extractor) extract(ctx context.Context, pageURL string, workerID int) domain.Extraction {
	x := domain.Extraction{URL: pageURL}

	body, err := e.fetch(ctx, pageURL, workerID)
	if err != nil {
		e.log.WarnObj("article fetch failed", "extract_fetch_error", map[string]any{
			"worker_id": workerID,
			"url":       pageURL,
			"error":     err.Error(),
		})
		return x
	}

	base, _ := url.Parse(pageURL)
	p := newPage(base, body)

	for _, s := range e.strategies {
		text := e.runStrategy(s, p, pageURL)
		if text == "" {
			continue
		}
		x.Attempts = append(x.Attempts, domain.Attempt{Method: s.method(), Text: text})
		if textclean.Len(text) >= e.opts.MinChars {
			break
		}
	}

	best := x.Best(e.opts.MinChars)
	e.log.DebugObj("article extracted", "extract_done", map[string]any{
		"worker_id": workerID,
		"url":       pageURL,
		"method":    best.Method,
		"chars":     textclean.Len(best.Text),
		"attempts":  len(x.Attempts),
	})
	return x
}

// runStrategy converts strategy panics and errors into empty results.
func (e *Extractor) runStrategy(s strategy, p *page, pageURL string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WarnObj("extraction strategy panicked", "extract_strategy_panic", map[string]any{
				"url":    pageURL,
				"method": s.method(),
				"panic":  fmt.Sprint(r),
			})
			text = ""
		}
	}()

	raw, err := s.extract(p)
	if err != nil {
		e.log.DebugObj("extraction strategy failed", "extract_strategy_error", map[string]any{
			"url":    pageURL,
			"method": s.method(),
			"error":  err.Error(),
		})
		return ""
	}
	return e.opts.Cleaner.Clean(raw)
}

// fetch downloads the page HTML. Pages over MaxBodyBytes are skipped.
func (e *Extractor) fetch(ctx context.Context, pageURL string, workerID int) ([]byte, error) {
	resp, err := e.client.Get(ctx, pageURL, map[string]string{
		"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	})
	if err == nil && len(resp.Body()) > e.opts.MaxBodyBytes {
		err = httpclient.ErrBodyTooLarge
	}
	if errors.Is(err, httpclient.ErrBodyTooLarge) {
		e.log.InfoObj("html body over limit, page skipped", "body_too_large", map[string]any{
			"worker_id": workerID,
			"url":       pageURL,
			"limit":     e.opts.MaxBodyBytes,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("http fetch: %w", err)
	}

	if !resp.IsSuccess() {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return nil, fmt.Errorf("status %d body: %s", resp.StatusCode(), snippet)
	}
	return resp.Body(), nil
}
