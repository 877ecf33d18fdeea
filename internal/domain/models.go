package domain

import (
	"time"
	"unicode/utf8"
)

// Domain contains core models shared by the gather pipeline.

// SourceKind identifies how a FeedSource is fetched and decoded.
type SourceKind string

const (
	SourceKindSearch  SourceKind = "search"
	SourceKindFeed    SourceKind = "feed"
	SourceKindSitemap SourceKind = "news_sitemap"
)

// FeedSource is a configured input: a templated aggregator search, an explicit
// RSS/Atom feed or a publisher news sitemap.
type FeedSource struct {
	ID   string
	Kind SourceKind
	URL  string
}

// RawEntry is one item read from a feed.
type RawEntry struct {
	SourceID     string
	Title        string
	RawLink      string
	OriginalLink string // feed-supplied link to the publisher, if any
	Link         string // best candidate after offline canonicalization
	SourceDomain string
	PublishedAt  time.Time
	// PublishedEstimated is set when the feed carried no usable timestamp
	// and PublishedAt is the fetch time.
	PublishedEstimated bool
	SummaryHTML        string
}

// CandidateLink returns the link the selector should resolve.
func (e RawEntry) CandidateLink() string {
	if e.Link != "" {
		return e.Link
	}
	return e.RawLink
}

// ExtractionMethod tags which text source produced an article body.
type ExtractionMethod string

const (
	MethodPrimary     ExtractionMethod = "primary-extractor"
	MethodStructural  ExtractionMethod = "structural-fallback"
	MethodSocial      ExtractionMethod = "social-metadata"
	MethodFeedSummary ExtractionMethod = "feed-summary"
	MethodNone        ExtractionMethod = "none"
)

// ResolvedArticle is an enriched, emitted article.
type ResolvedArticle struct {
	Title            string           `json:"title"`
	RawLink          string           `json:"raw_link"`
	ResolvedLink     string           `json:"link"`
	Domain           string           `json:"source_domain"`
	SourceID         string           `json:"source_id,omitempty"`
	PublishedAt      time.Time        `json:"published_at"`
	Summary          string           `json:"summary,omitempty"`
	Body             string           `json:"body"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	Backstop         bool             `json:"backstop,omitempty"`
}

// Attempt is the output of a single extraction strategy.
type Attempt struct {
	Method ExtractionMethod
	Text   string
}

// Extraction holds the attempts made for one page, in strategy order.
type Extraction struct {
	URL      string
	Attempts []Attempt
}

// First returns the first attempt whose text is at least minChars runes long.
func (x Extraction) First(minChars int) (Attempt, bool) {
	for _, a := range x.Attempts {
		if a.Text != "" && utf8.RuneCountInString(a.Text) >= minChars {
			return a, true
		}
	}
	return Attempt{Method: MethodNone}, false
}

// Best returns the first attempt clearing minChars, or the longest attempt.
func (x Extraction) Best(minChars int) Attempt {
	if a, ok := x.First(minChars); ok {
		return a
	}
	best := Attempt{Method: MethodNone}
	bestLen := 0
	for _, a := range x.Attempts {
		if n := utf8.RuneCountInString(a.Text); n > bestLen {
			best, bestLen = a, n
		}
	}
	return best
}
