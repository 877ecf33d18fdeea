// Package pipeline runs one gather pass: collect feeds, select and enrich
// articles, write the handoff file, remember emitted links and publish events.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adda-Baaj/isd-harvester/internal/config"
	"github.com/Adda-Baaj/isd-harvester/internal/crawler"
	"github.com/Adda-Baaj/isd-harvester/internal/domain"
	"github.com/Adda-Baaj/isd-harvester/internal/logger"
	"github.com/Adda-Baaj/isd-harvester/internal/seen"
	"github.com/Adda-Baaj/isd-harvester/internal/selector"
	"github.com/Adda-Baaj/isd-harvester/internal/textclean"
	"github.com/Adda-Baaj/isd-harvester/internal/urlnorm"
	"github.com/Adda-Baaj/isd-harvester/pkg/httpclient"
	"github.com/Adda-Baaj/isd-harvester/pkg/providers"
	"github.com/Adda-Baaj/isd-harvester/pkg/publishers"
)

// StdoutPath selects stdout as the handoff destination.
const StdoutPath = "-"

// ErrConfig marks Run errors caused by the configuration or the publishers
// file rather than by the network or the local store.
var ErrConfig = errors.New("configuration error")

func configError(err error) error {
	return fmt.Errorf("%w: %w", ErrConfig, err)
}

// Report summarizes one run.
type Report struct {
	RunID         string
	Sources       int
	Entries       int
	Articles      []domain.ResolvedArticle
	Published     int
	PublishFailed int
	Pruned        int
}

// Runner owns the collaborators of a run. Build one per process.
type Runner struct {
	cfg        *config.Config
	log        logger.Logger
	client     httpclient.Client
	publishers publishers.Registry
	stdout     io.Writer
	now        func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

func WithStdout(w io.Writer) Option {
	return func(r *Runner) { r.stdout = w }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New builds a Runner for cfg.
func New(cfg *config.Config, log logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:        cfg,
		log:        logger.Ensure(log),
		publishers: publishers.DefaultRegistry(),
		stdout:     os.Stdout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if cfg != nil {
		r.client = httpclient.New(httpclient.Options{
			Timeout:      cfg.HTTP.Timeout,
			UserAgent:    cfg.HTTP.UserAgent,
			MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
			MaxRedirects: cfg.HTTP.MaxRedirects,
		})
	}
	return r
}

// Run executes one gather pass. Configuration errors wrap ErrConfig. Other
// errors come from total source failure or the local store and output; an
// empty article list is a valid outcome.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	if r.cfg == nil {
		return report, configError(errors.New("pipeline config is nil"))
	}
	cfg := r.cfg
	if err := cfg.Validate(); err != nil {
		return report, configError(err)
	}

	var pubCfgs []publishers.PublisherConfig
	if path := strings.TrimSpace(cfg.PublishersFile); path != "" {
		reg, err := publishers.LoadRegistry(path)
		if err != nil {
			return report, configError(fmt.Errorf("load publishers: %w", err))
		}
		pubCfgs = reg.Enabled()
	}

	cleaner := r.cleaner()
	norm := urlnorm.New(cfg.URL, r.client, r.log)
	selOpts := selector.Options{
		MaxArticles:      cfg.Selection.MaxArticles,
		WhitelistDomains: cfg.Selection.WhitelistDomains,
		MaxChars:         cfg.Selection.MaxChars,
		MustMatchTerms:   cfg.Selection.MustMatchTerms,
		MinChars:         cfg.Selection.MinChars,
		RelaxedMinChars:  cfg.Selection.RelaxedMinChars,
	}
	if err := selOpts.Validate(); err != nil {
		return report, configError(err)
	}

	var store *seen.Store
	if cfg.Seen.Enabled {
		s, err := seen.Open(cfg.Seen.Path, cfg.Seen.TTL)
		if err != nil {
			return report, fmt.Errorf("open seen store: %w", err)
		}
		defer s.Close()
		s.SetClock(r.now)
		store = s
		selOpts.Seen = store
	}

	sources := providers.BuildSources(cfg.Search, cfg.Feeds, cfg.Sitemaps)
	report.Sources = len(sources)

	collector := providers.NewCollector(
		providers.DefaultFetcherRegistry(r.client, norm),
		r.log,
		providers.CollectorOptions{Workers: cfg.Workers.Feeds, Window: cfg.Search.Window, Now: r.now},
	)
	entries, err := collector.Collect(ctx, sources)
	if err != nil {
		return report, fmt.Errorf("collect feeds: %w", err)
	}
	report.Entries = len(entries)

	extractor := crawler.NewExtractor(r.client, r.log, crawler.Options{
		MinChars:          cfg.Selection.MinChars,
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
		Workers:           cfg.Workers.Pages,
		ParagraphMinChars: cfg.Extraction.ParagraphMinChars,
		StructuralCap:     cfg.Extraction.StructuralCap,
		RequestDelay:      cfg.Workers.RequestDelay,
		Cleaner:           cleaner,
	})

	articles, err := selector.New(norm, extractor, cleaner, r.log).Select(ctx, entries, selOpts)
	if err != nil {
		return report, fmt.Errorf("select articles: %w", err)
	}
	report.Articles = articles

	if err := r.writeOutput(cfg.Output.Path, articles); err != nil {
		return report, err
	}

	if len(articles) == 0 {
		r.log.WarnObj("no articles survived selection", "gather_starved", map[string]any{
			"run_id":  report.RunID,
			"sources": report.Sources,
			"entries": report.Entries,
		})
	}

	if store != nil {
		report.Pruned = r.remember(store, articles)
	}

	if len(articles) > 0 && len(pubCfgs) > 0 {
		report.Published, report.PublishFailed = r.publish(ctx, report.RunID, pubCfgs, articles)
	}

	r.log.InfoObj("gather run finished", "pipeline_done", map[string]any{
		"run_id":         report.RunID,
		"sources":        report.Sources,
		"entries":        report.Entries,
		"articles":       len(report.Articles),
		"published":      report.Published,
		"publish_failed": report.PublishFailed,
		"pruned":         report.Pruned,
	})
	return report, nil
}

func (r *Runner) cleaner() *textclean.Cleaner {
	c := textclean.NewCleaner()
	if r.cfg.Extraction.TrailingMarkers != nil {
		c.TrailingMarkers = r.cfg.Extraction.TrailingMarkers
	}
	if r.cfg.Extraction.InlinePhrases != nil {
		c.InlinePhrases = r.cfg.Extraction.InlinePhrases
	}
	return c
}

// writeOutput writes the ordered article list as JSON. Files are replaced
// atomically.
func (r *Runner) writeOutput(path string, articles []domain.ResolvedArticle) error {
	if articles == nil {
		articles = []domain.ResolvedArticle{}
	}
	payload, err := json.MarshalIndent(articles, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal articles: %w", err)
	}
	payload = append(payload, '\n')

	if strings.TrimSpace(path) == StdoutPath {
		if _, err := r.stdout.Write(payload); err != nil {
			return fmt.Errorf("write articles to stdout: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write articles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace output %s: %w", path, err)
	}
	r.log.DebugObj("wrote article handoff", "output_written", map[string]any{
		"path":     path,
		"articles": len(articles),
	})
	return nil
}

// remember marks emitted links and prunes expired ones. Store failures only
// affect later runs, so they are logged.
func (r *Runner) remember(store *seen.Store, articles []domain.ResolvedArticle) int {
	now := r.now()
	links := make([]string, 0, len(articles))
	for _, a := range articles {
		links = append(links, a.ResolvedLink)
	}
	if err := store.MarkAll(links, now); err != nil {
		r.log.WarnObj("mark seen links failed", "seen_mark_error", map[string]any{"error": err.Error()})
	}
	pruned, err := store.Prune(now)
	if err != nil {
		r.log.WarnObj("prune seen links failed", "seen_prune_error", map[string]any{"error": err.Error()})
	}
	return pruned
}

func (r *Runner) publish(ctx context.Context, runID string, cfgs []publishers.PublisherConfig, articles []domain.ResolvedArticle) (int, int) {
	pubs := publishers.BuildAll(ctx, r.publishers, cfgs, r.log)
	if len(pubs) == 0 {
		return 0, 0
	}
	defer func() {
		if err := publishers.CloseAll(pubs); err != nil {
			r.log.WarnObj("close publishers failed", "publisher_close_error", map[string]any{"error": err.Error()})
		}
	}()

	events := make([]publishers.Event, 0, len(articles))
	for _, a := range articles {
		events = append(events, publishers.EventFromArticle(runID, a))
	}
	return publishers.PublishAll(ctx, pubs, events, r.log)
}
