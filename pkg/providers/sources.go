package providers

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Adda-Baaj/isd-harvester/internal/domain"
	"github.com/Adda-Baaj/isd-harvester/internal/urlnorm"
)

// DefaultSearchTemplate is the Google News RSS search endpoint.
const DefaultSearchTemplate = "https://news.google.com/rss/search?q={query}&hl=en-US&gl=US&ceid=US:en"

// SearchConfig describes the aggregator searches to run.
type SearchConfig struct {
	Templates []string      `mapstructure:"templates"`
	Terms     []string      `mapstructure:"terms"`
	Window    time.Duration `mapstructure:"window"`
}

// BuildQuery joins terms with OR, quoting multi-word terms, and appends the
// recency operator.
func BuildQuery(terms []string, window time.Duration) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.ContainsAny(t, " \t") {
			t = `"` + strings.Trim(t, `"`) + `"`
		}
		parts = append(parts, t)
	}
	q := strings.Join(parts, " OR ")
	if w := windowOperator(window); w != "" && q != "" {
		q += " when:" + w
	}
	return q
}

func windowOperator(window time.Duration) string {
	if window <= 0 {
		return ""
	}
	if window%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", int(window/(24*time.Hour)))
	}
	hours := int(window / time.Hour)
	if window%time.Hour != 0 {
		hours++
	}
	return fmt.Sprintf("%dh", hours)
}

// SearchURL fills a template's {query} placeholder with the escaped query.
func SearchURL(template, query string) string {
	return strings.ReplaceAll(template, "{query}", url.QueryEscape(query))
}

// BuildSources returns one search source per template (when terms are set),
// followed by the explicit feeds and news sitemaps.
func BuildSources(search SearchConfig, feeds, sitemaps []string) []domain.FeedSource {
	var out []domain.FeedSource

	if q := BuildQuery(search.Terms, search.Window); q != "" {
		templates := search.Templates
		if len(templates) == 0 {
			templates = []string{DefaultSearchTemplate}
		}
		for i, tpl := range templates {
			if tpl = strings.TrimSpace(tpl); tpl == "" {
				continue
			}
			out = append(out, domain.FeedSource{
				ID:   fmt.Sprintf("search-%d-%s", i+1, urlnorm.Domain(tpl)),
				Kind: domain.SourceKindSearch,
				URL:  SearchURL(tpl, q),
			})
		}
	}

	out = appendSources(out, domain.SourceKindFeed, feeds)
	out = appendSources(out, domain.SourceKindSitemap, sitemaps)
	return out
}

func appendSources(out []domain.FeedSource, kind domain.SourceKind, urls []string) []domain.FeedSource {
	for i, u := range urls {
		if u = strings.TrimSpace(u); u == "" {
			continue
		}
		out = append(out, domain.FeedSource{
			ID:   fmt.Sprintf("%s-%d-%s", kind, i+1, urlnorm.Domain(u)),
			Kind: kind,
			URL:  u,
		})
	}
	return out
}
