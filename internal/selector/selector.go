// Package selector filters, enriches and caps candidate entries into the
// final article list.
package selector

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Adda-Baaj/isd-harvester/internal/domain"
	"github.com/Adda-Baaj/isd-harvester/internal/logger"
	"github.com/Adda-Baaj/isd-harvester/internal/textclean"
	"github.com/Adda-Baaj/isd-harvester/internal/urlnorm"
)

const (
	DefaultMinChars        = 200
	DefaultRelaxedMinChars = 120
	defaultResolveWorkers  = 8
)

var (
	ErrInvalidMaxArticles = errors.New("max articles must be positive")
	ErrInvalidMaxChars    = errors.New("max chars must be positive")
	ErrInvalidThresholds  = errors.New("relaxed min chars must not exceed min chars")
)

// Resolver maps a candidate link to its publisher URL.
type Resolver interface {
	Normalize(ctx context.Context, rawURL, hint string) urlnorm.Result
}

// BodyExtractor fetches and extracts publisher pages.
type BodyExtractor interface {
	ExtractAll(ctx context.Context, urls []string) map[string]domain.Extraction
}

// SeenChecker reports links emitted by earlier runs.
type SeenChecker interface {
	Seen(link string) bool
}

// Options configures one Select call.
type Options struct {
	MaxArticles      int
	WhitelistDomains []string
	MaxChars         int
	MustMatchTerms   []string
	MinChars         int
	RelaxedMinChars  int
	Seen             SeenChecker
	TruncationMarker string
}

// Validate applies defaults and rejects unusable settings.
func (o *Options) Validate() error {
	if o.MinChars == 0 {
		o.MinChars = DefaultMinChars
	}
	if o.RelaxedMinChars == 0 {
		o.RelaxedMinChars = DefaultRelaxedMinChars
	}
	if o.TruncationMarker == "" {
		o.TruncationMarker = textclean.DefaultTruncationMarker
	}
	switch {
	case o.MaxArticles <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidMaxArticles, o.MaxArticles)
	case o.MaxChars <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidMaxChars, o.MaxChars)
	case o.MinChars < 0 || o.RelaxedMinChars < 0 || o.RelaxedMinChars > o.MinChars:
		return fmt.Errorf("%w: relaxed=%d min=%d", ErrInvalidThresholds, o.RelaxedMinChars, o.MinChars)
	}
	return nil
}

// Selector runs the filter, extract and fallback chain over candidates.
type Selector struct {
	resolver  Resolver
	extractor BodyExtractor
	cleaner   *textclean.Cleaner
	log       logger.Logger
	workers   int
}

// New builds a Selector. A nil cleaner uses the default phrase lists.
func New(resolver Resolver, extractor BodyExtractor, cleaner *textclean.Cleaner, log logger.Logger) *Selector {
	if cleaner == nil {
		cleaner = textclean.NewCleaner()
	}
	return &Selector{
		resolver:  resolver,
		extractor: extractor,
		cleaner:   cleaner,
		log:       logger.Ensure(log),
		workers:   defaultResolveWorkers,
	}
}

// candidate is an entry that passed every filter.
type candidate struct {
	entry    domain.RawEntry
	resolved urlnorm.Result
	summary  string
}

// Select returns at most MaxArticles articles, newest first. When the normal
// pass emits nothing, a backstop pass retries the filtered candidates at
// RelaxedMinChars and accepts any non-empty feed summary.
func (s *Selector) Select(ctx context.Context, entries []domain.RawEntry, opts Options) ([]domain.ResolvedArticle, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ordered := slices.Clone(entries)
	slices.SortStableFunc(ordered, func(a, b domain.RawEntry) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})

	st := &pass{
		opts:        opts,
		dedup:       make(map[string]struct{}),
		extractions: make(map[string]domain.Extraction),
		terms:       lowerAll(opts.MustMatchTerms),
	}

	window := 2 * opts.MaxArticles
	for start := 0; start < len(ordered) && len(st.out) < opts.MaxArticles; start += window {
		if ctx.Err() != nil {
			break
		}
		end := min(start+window, len(ordered))
		s.processWindow(ctx, st, ordered[start:end])
	}

	if len(st.out) == 0 && len(st.survivors) > 0 {
		s.backstop(st)
	}

	s.log.InfoObj("selection complete", "select_done", map[string]any{
		"candidates": len(entries),
		"survivors":  len(st.survivors),
		"emitted":    len(st.out),
		"backstop":   st.backstopUsed,
		"rejected":   st.rejected,
	})
	return st.out, nil
}

// pass carries state across windows of one Select call.
type pass struct {
	opts         Options
	terms        []string
	dedup        map[string]struct{}
	survivors    []candidate
	extractions  map[string]domain.Extraction
	out          []domain.ResolvedArticle
	backstopUsed bool
	rejected     map[string]int
}

func (p *pass) reject(reason string) {
	if p.rejected == nil {
		p.rejected = make(map[string]int)
	}
	p.rejected[reason]++
}

func (s *Selector) processWindow(ctx context.Context, st *pass, window []domain.RawEntry) {
	resolved := s.resolveAll(ctx, window)

	var fresh []candidate
	for i, e := range window {
		c, reason := s.filter(st, e, resolved[i])
		if reason != "" {
			st.reject(reason)
			s.log.DebugObj("candidate rejected", "select_reject", map[string]any{
				"title":  e.Title,
				"link":   e.CandidateLink(),
				"reason": reason,
			})
			continue
		}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return
	}

	urls := make([]string, 0, len(fresh))
	for _, c := range fresh {
		urls = append(urls, c.resolved.URL)
	}
	if s.extractor != nil {
		for u, x := range s.extractor.ExtractAll(ctx, urls) {
			st.extractions[u] = x
		}
	}

	for _, c := range fresh {
		st.survivors = append(st.survivors, c)
		if len(st.out) >= st.opts.MaxArticles {
			continue
		}
		method, text, ok := s.chooseText(st.extractions[c.resolved.URL], c.summary, st.opts.MinChars, st.opts.MinChars)
		if !ok {
			st.reject("insufficient_content")
			continue
		}
		st.out = append(st.out, s.build(st.opts, c, method, text, false))
	}
}

// filter applies the resolution, whitelist, duplicate, seen and term checks
// in that order.
func (s *Selector) filter(st *pass, e domain.RawEntry, res urlnorm.Result) (candidate, string) {
	if res.Blocked || !res.Usable() {
		return candidate{}, "unresolved"
	}
	if len(st.opts.WhitelistDomains) > 0 && !urlnorm.MatchesDomain(res.Domain, st.opts.WhitelistDomains) {
		return candidate{}, "whitelist"
	}

	key := strings.ToLower(strings.TrimSpace(e.Title)) + "\x00" + res.URL
	if _, dup := st.dedup[key]; dup {
		return candidate{}, "duplicate"
	}
	st.dedup[key] = struct{}{}

	if st.opts.Seen != nil && st.opts.Seen.Seen(res.URL) {
		return candidate{}, "seen"
	}

	summary := textclean.StripHTML(e.SummaryHTML)
	if len(st.terms) > 0 && !matchesAny(st.terms, e.Title, summary) {
		return candidate{}, "terms"
	}
	return candidate{entry: e, resolved: res, summary: summary}, ""
}

// chooseText walks the extraction attempts, then the feed summary, and
// returns the first cleaned text that reaches its floor: minChars for
// attempts, summaryMinChars for the summary.
func (s *Selector) chooseText(x domain.Extraction, summary string, minChars, summaryMinChars int) (domain.ExtractionMethod, string, bool) {
	for _, a := range x.Attempts {
		if text := s.cleaner.Clean(a.Text); text != "" && textclean.Len(text) >= minChars {
			return a.Method, text, true
		}
	}
	if text := s.cleaner.Clean(summary); text != "" && textclean.Len(text) >= summaryMinChars {
		return domain.MethodFeedSummary, text, true
	}
	return domain.MethodNone, "", false
}

// backstop rescans the filtered candidates, reusing their extractions.
// Extracted text must reach the relaxed floor; any non-empty feed summary is
// accepted.
func (s *Selector) backstop(st *pass) {
	st.backstopUsed = true
	for _, c := range st.survivors {
		if len(st.out) >= st.opts.MaxArticles {
			break
		}
		method, text, ok := s.chooseText(st.extractions[c.resolved.URL], c.summary, st.opts.RelaxedMinChars, 1)
		if !ok {
			continue
		}
		st.out = append(st.out, s.build(st.opts, c, method, text, true))
	}
	s.log.WarnObj("primary selection empty, backstop pass used", "select_backstop", map[string]any{
		"survivors": len(st.survivors),
		"emitted":   len(st.out),
	})
}

func (s *Selector) build(opts Options, c candidate, method domain.ExtractionMethod, text string, backstop bool) domain.ResolvedArticle {
	body, _ := textclean.Truncate(text, opts.MaxChars, opts.TruncationMarker)
	return domain.ResolvedArticle{
		Title:            c.entry.Title,
		RawLink:          c.entry.RawLink,
		ResolvedLink:     c.resolved.URL,
		Domain:           c.resolved.Domain,
		SourceID:         c.entry.SourceID,
		PublishedAt:      c.entry.PublishedAt,
		Summary:          c.summary,
		Body:             body,
		ExtractionMethod: method,
		Backstop:         backstop,
	}
}

// resolveAll normalizes the window's links on a bounded pool; results keep
// the window's order.
func (s *Selector) resolveAll(ctx context.Context, window []domain.RawEntry) []urlnorm.Result {
	out := make([]urlnorm.Result, len(window))
	jobCh := make(chan int)
	var wg sync.WaitGroup

	for range min(len(window), s.workers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				e := window[idx]
				out[idx] = s.resolver.Normalize(ctx, e.CandidateLink(), e.OriginalLink)
			}
		}()
	}

	for idx := range window {
		jobCh <- idx
	}
	close(jobCh)
	wg.Wait()
	return out
}

func lowerAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func matchesAny(terms []string, fields ...string) bool {
	for _, f := range fields {
		f = strings.ToLower(f)
		for _, t := range terms {
			if strings.Contains(f, t) {
				return true
			}
		}
	}
	return false
}
