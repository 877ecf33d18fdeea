package providers

import (
	"context"
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/isd-harvester/internal/domain"
	"github.com/Adda-Baaj/isd-harvester/internal/urlnorm"
)

// HashURL generates a SHA-1 hash of the given URL string.
func HashURL(u string) string {
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:])
}

// responseSnippet returns a truncated snippet of the response body for logging.
func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// fetchBody retrieves a feed or sitemap document, failing on non-2xx statuses.
func fetchBody(ctx context.Context, client HTTPClient, src domain.FeedSource, target string) ([]byte, error) {
	resp, err := client.Get(ctx, target, Headers(src))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.ID, err)
	}

	body := resp.Body()
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%s returned status %d body: %s", src.ID, resp.StatusCode(), responseSnippet(body))
	}

	return body, nil
}

var publicationLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02",
}

// parsePublicationDate attempts to parse the publication date from a string.
func parsePublicationDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	for _, layout := range publicationLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}

	return time.Time{}
}

// newEntry builds a RawEntry with offline canonicalization applied. A zero
// published time falls back to now. SourceDomain is the publisher's domain
// when the link resolves offline, else the feed's.
func newEntry(canon Canonicalizer, src domain.FeedSource, title, link, origLink, summary string, published, now time.Time) domain.RawEntry {
	entry := domain.RawEntry{
		SourceID:     src.ID,
		Title:        strings.TrimSpace(title),
		RawLink:      strings.TrimSpace(link),
		OriginalLink: strings.TrimSpace(origLink),
		SourceDomain: urlnorm.Domain(src.URL),
		PublishedAt:  published,
		SummaryHTML:  summary,
	}
	if entry.PublishedAt.IsZero() {
		entry.PublishedAt = now
		entry.PublishedEstimated = true
	}
	if canon != nil {
		if res := canon.Canonicalize(entry.RawLink, entry.OriginalLink); res.Usable() {
			entry.Link = res.URL
			if !res.Blocked && res.Domain != "" {
				entry.SourceDomain = res.Domain
			}
		}
	}
	return entry
}
