package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/isd-harvester/internal/domain"
	"github.com/Adda-Baaj/isd-harvester/internal/urlnorm"
	"github.com/Adda-Baaj/isd-harvester/pkg/httpclient"
)

// HTTPClient is the transport used by every fetcher.
type HTTPClient = httpclient.Client

// Canonicalizer performs offline URL canonicalization of feed links.
type Canonicalizer interface {
	Canonicalize(rawURL, hint string) urlnorm.Result
}

// Fetcher turns one feed source into raw entries.
type Fetcher interface {
	ID() string
	Fetch(ctx context.Context, src domain.FeedSource) ([]domain.RawEntry, error)
}

// FetcherRegistry picks the fetcher for a source.
type FetcherRegistry interface {
	FetcherFor(src domain.FeedSource) (Fetcher, error)
}

type fetcherRegistry struct {
	fetchers map[string]Fetcher
	mu       sync.RWMutex
}

// NewFetcherRegistry builds a registry for the provided fetcher implementations.
func NewFetcherRegistry(fetchers ...Fetcher) FetcherRegistry {
	reg := &fetcherRegistry{
		fetchers: make(map[string]Fetcher, len(fetchers)),
	}

	for _, f := range fetchers {
		if f == nil {
			continue
		}
		reg.fetchers[strings.ToLower(strings.TrimSpace(f.ID()))] = f
	}

	return reg
}

// FetcherFor selects the fetcher for the given source based on its kind.
func (r *fetcherRegistry) FetcherFor(src domain.FeedSource) (Fetcher, error) {
	if src.Kind == "" {
		return nil, fmt.Errorf("source %q kind is empty", src.ID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(string(src.Kind))
	if f, ok := r.fetchers[key]; ok {
		return f, nil
	}

	return nil, fmt.Errorf("no fetcher registered for source kind %q", src.Kind)
}

// DefaultHTTPClient returns the resty client used for feed requests.
func DefaultHTTPClient() HTTPClient { return httpclient.NewRestyClient(12 * time.Second) }

// DefaultFetcherRegistry wires up the known source kinds.
func DefaultFetcherRegistry(client HTTPClient, canon Canonicalizer) FetcherRegistry {
	if client == nil {
		client = DefaultHTTPClient()
	}

	return NewFetcherRegistry(
		NewFeedFetcher(domain.SourceKindSearch, client, canon),
		NewFeedFetcher(domain.SourceKindFeed, client, canon),
		NewSitemapFetcher(client, canon),
	)
}

// Headers returns request headers suited to the source kind.
func Headers(src domain.FeedSource) map[string]string {
	switch src.Kind {
	case domain.SourceKindSitemap:
		return map[string]string{"Accept": "application/xml,text/xml;q=0.9,*/*;q=0.8"}
	default:
		return map[string]string{"Accept": "application/rss+xml,application/atom+xml,application/xml;q=0.9,*/*;q=0.8"}
	}
}
