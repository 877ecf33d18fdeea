package providers

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/Adda-Baaj/isd-harvester/internal/domain"
)

// feedFetcher reads RSS/Atom documents, both aggregator searches and
// explicit feeds.
type feedFetcher struct {
	kind   domain.SourceKind
	client HTTPClient
	canon  Canonicalizer
	now    func() time.Time
}

// NewFeedFetcher builds a gofeed-backed Fetcher registered under kind.
func NewFeedFetcher(kind domain.SourceKind, client HTTPClient, canon Canonicalizer) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &feedFetcher{kind: kind, client: client, canon: canon, now: time.Now}
}

func (f *feedFetcher) ID() string { return string(f.kind) }

func (f *feedFetcher) Fetch(ctx context.Context, src domain.FeedSource) ([]domain.RawEntry, error) {
	if src.Kind != f.kind {
		return nil, fmt.Errorf("%s fetcher received incompatible source kind %q", f.kind, src.Kind)
	}
	if strings.TrimSpace(src.URL) == "" {
		return nil, fmt.Errorf("source %q url is empty", src.ID)
	}

	raw, err := fetchBody(ctx, f.client, src, src.URL)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.ID, err)
	}

	now := f.now()
	entries := make([]domain.RawEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		link := strings.TrimSpace(item.Link)
		if link == "" && len(item.Links) > 0 {
			link = strings.TrimSpace(item.Links[0])
		}
		if link == "" {
			continue
		}
		summary := item.Description
		if strings.TrimSpace(summary) == "" {
			summary = item.Content
		}
		entries = append(entries, newEntry(f.canon, src, item.Title, link, originalLink(item, link), summary, itemTime(item), now))
	}
	return entries, nil
}

// originalLink returns the publisher link a feed exposes next to its
// (possibly wrapped) item link.
func originalLink(item *gofeed.Item, link string) string {
	if fb, ok := item.Extensions["feedburner"]; ok {
		for _, e := range fb["origLink"] {
			if v := strings.TrimSpace(e.Value); v != "" {
				return v
			}
		}
	}
	for _, l := range item.Links {
		if l = strings.TrimSpace(l); l != "" && l != link {
			return l
		}
	}
	return ""
}

func itemTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}
