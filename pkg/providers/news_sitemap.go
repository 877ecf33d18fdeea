package providers

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/isd-harvester/internal/domain"
)

const maxSitemapDepth = 3

// sitemapDocument decodes either a <urlset> with news extensions or a
// <sitemapindex>; only the matching slice is populated.
type sitemapDocument struct {
	XMLName  xml.Name
	URLs     []sitemapURL `xml:"url"`
	Children []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
	News    struct {
		Title           string `xml:"title"`
		PublicationDate string `xml:"publication_date"`
		Keywords        string `xml:"keywords"`
	} `xml:"news"`
}

// sitemapFetcher reads Google News sitemaps published by local outlets.
type sitemapFetcher struct {
	client HTTPClient
	canon  Canonicalizer
	now    func() time.Time
}

// NewSitemapFetcher builds a Fetcher for news_sitemap sources.
func NewSitemapFetcher(client HTTPClient, canon Canonicalizer) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &sitemapFetcher{client: client, canon: canon, now: time.Now}
}

func (f *sitemapFetcher) ID() string { return string(domain.SourceKindSitemap) }

// Fetch reads the sitemap at src.URL, descending into sitemap indexes up to
// maxSitemapDepth levels. A failing child sitemap is skipped as long as
// another part of the tree could be read.
func (f *sitemapFetcher) Fetch(ctx context.Context, src domain.FeedSource) ([]domain.RawEntry, error) {
	if src.Kind != domain.SourceKindSitemap {
		return nil, fmt.Errorf("sitemap fetcher received incompatible source kind %q", src.Kind)
	}
	if strings.TrimSpace(src.URL) == "" {
		return nil, fmt.Errorf("source %q url is empty", src.ID)
	}

	w := &sitemapWalk{fetcher: f, src: src, visited: make(map[string]struct{})}
	if err := w.visit(ctx, src.URL, 0); err != nil {
		return nil, err
	}
	if len(w.urls) == 0 && len(w.errs) > 0 {
		return nil, fmt.Errorf("read sitemap tree %s: %w", src.ID, errors.Join(w.errs...))
	}

	now := f.now()
	entries := make([]domain.RawEntry, 0, len(w.urls))
	for _, u := range w.urls {
		if entry, ok := f.entry(src, u, now); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

type sitemapWalk struct {
	fetcher *sitemapFetcher
	src     domain.FeedSource
	visited map[string]struct{}
	urls    []sitemapURL
	errs    []error
}

// visit returns an error only for the root document; failures below it are
// collected in errs.
func (w *sitemapWalk) visit(ctx context.Context, target string, depth int) error {
	target = strings.TrimSpace(target)
	if _, seen := w.visited[target]; seen || target == "" || depth > maxSitemapDepth {
		return nil
	}
	w.visited[target] = struct{}{}

	doc, err := w.fetch(ctx, target)
	if err != nil {
		if depth == 0 {
			return err
		}
		w.errs = append(w.errs, err)
		return nil
	}

	w.urls = append(w.urls, doc.URLs...)
	for _, child := range doc.Children {
		if ctx.Err() != nil {
			break
		}
		_ = w.visit(ctx, child.Loc, depth+1)
	}
	return nil
}

func (w *sitemapWalk) fetch(ctx context.Context, target string) (sitemapDocument, error) {
	raw, err := fetchBody(ctx, w.fetcher.client, w.src, target)
	if err != nil {
		return sitemapDocument{}, err
	}
	var doc sitemapDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return sitemapDocument{}, fmt.Errorf("decode sitemap %s: %w", target, err)
	}
	return doc, nil
}

// entry converts one sitemap record. Sitemaps carry no summary, so the news
// keywords stand in for it and give the term filter something to match.
func (f *sitemapFetcher) entry(src domain.FeedSource, u sitemapURL, now time.Time) (domain.RawEntry, bool) {
	loc := strings.TrimSpace(u.Loc)
	if loc == "" {
		return domain.RawEntry{}, false
	}
	published := parsePublicationDate(u.News.PublicationDate)
	if published.IsZero() {
		published = parsePublicationDate(u.LastMod)
	}
	return newEntry(f.canon, src, u.News.Title, loc, "", keywordSummary(u.News.Keywords), published, now), true
}

// keywordSummary normalizes a comma-separated keyword list.
func keywordSummary(raw string) string {
	var kept []string
	for _, kw := range strings.Split(raw, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			kept = append(kept, kw)
		}
	}
	return strings.Join(kept, ", ")
}
