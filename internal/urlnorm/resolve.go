package urlnorm

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var jsonLDURLRE = regexp.MustCompile(`https?://[^\s"'<>\\]+`)

// continueSegments are path segments that mark an aggregator page as a hop
// toward the publisher rather than a sign-in or help page.
var continueSegments = map[string]struct{}{
	"continue": {},
	"redirect": {},
	"articles": {},
	"read":     {},
	"rd":       {},
	"url":      {},
}

// resolveRemote fetches an aggregator page once and looks for the publisher
// URL in the redirect chain and in the page itself.
func (n *Normalizer) resolveRemote(ctx context.Context, aggURL string) (*url.URL, string) {
	doc, base, ok := n.fetchPage(ctx, aggURL)
	if base != nil {
		if u, ok := n.acceptable(base.String()); ok {
			return u, "redirect"
		}
	}
	if !ok {
		return nil, ""
	}

	if u, via := n.documentHints(doc, base); u != nil {
		return u, via
	}

	hopped := false
	var found *url.URL
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		abs := absolute(base, href)
		if abs == nil || strings.EqualFold(abs.Host, base.Host) {
			return true
		}
		if u, ok := n.acceptable(abs.String()); ok {
			found = u
			return false
		}
		if u, ok := n.clean(abs.String()); ok {
			if target, ok := n.fromRedirectParam(u); ok {
				found = target
				return false
			}
		}
		if hopped || !hostIn(abs, n.cfg.AggregatorHosts) || !n.isContinuePage(abs) {
			return true
		}
		hopped = true
		found = n.followHop(ctx, abs.String())
		return found == nil
	})
	if found != nil {
		return found, "anchor"
	}

	if u := n.jsonLDHint(doc); u != nil {
		return u, "json-ld"
	}
	return nil, ""
}

// isContinuePage reports whether an aggregator URL looks like a continue or
// redirect page: a known path segment or a redirect query parameter.
func (n *Normalizer) isContinuePage(u *url.URL) bool {
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		if _, ok := continueSegments[seg]; ok {
			return true
		}
	}
	q := u.Query()
	for _, name := range n.cfg.RedirectParams {
		if q.Has(name) {
			return true
		}
	}
	return false
}

// followHop fetches an aggregator continue page and accepts its final URL or
// a meta refresh / canonical hint.
func (n *Normalizer) followHop(ctx context.Context, target string) *url.URL {
	doc, base, ok := n.fetchPage(ctx, target)
	if base != nil {
		if u, ok := n.acceptable(base.String()); ok {
			return u
		}
	}
	if !ok {
		return nil
	}
	u, _ := n.documentHints(doc, base)
	return u
}

func (n *Normalizer) fetchPage(ctx context.Context, target string) (*goquery.Document, *url.URL, bool) {
	resp, err := n.client.Get(ctx, target, map[string]string{"Accept": "text/html,application/xhtml+xml"})
	if err != nil {
		n.log.DebugObj("aggregator fetch failed", "url_resolve_error", map[string]any{
			"url":   target,
			"error": err.Error(),
		})
		return nil, nil, false
	}
	base, err := url.Parse(resp.FinalURL())
	if err != nil {
		base = nil
	}
	if !resp.IsSuccess() || base == nil {
		return nil, base, false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, base, false
	}
	return doc, base, true
}

// documentHints checks meta refresh, then the canonical link and og:url.
func (n *Normalizer) documentHints(doc *goquery.Document, base *url.URL) (*url.URL, string) {
	var refresh string
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if equiv, _ := s.Attr("http-equiv"); strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			content, _ := s.Attr("content")
			refresh = refreshTarget(content)
			return refresh == ""
		}
		return true
	})
	if abs := absolute(base, refresh); abs != nil {
		if u, ok := n.acceptable(abs.String()); ok {
			return u, "meta-refresh"
		}
	}

	canonical, _ := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if abs := absolute(base, canonical); abs != nil {
		if u, ok := n.acceptable(abs.String()); ok {
			return u, "canonical"
		}
	}
	ogURL, _ := doc.Find(`meta[property="og:url"]`).First().Attr("content")
	if abs := absolute(base, ogURL); abs != nil {
		if u, ok := n.acceptable(abs.String()); ok {
			return u, "canonical"
		}
	}
	return nil, ""
}

func (n *Normalizer) jsonLDHint(doc *goquery.Document) *url.URL {
	var found *url.URL
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.ReplaceAll(s.Text(), `\/`, "/")
		for _, m := range jsonLDURLRE.FindAllString(raw, -1) {
			if u, ok := n.acceptable(m); ok {
				found = u
				return false
			}
		}
		return true
	})
	return found
}

// refreshTarget extracts the URL from a meta refresh content value such as
// `0; url='https://example.org/a'`.
func refreshTarget(content string) string {
	lower := strings.ToLower(content)
	idx := strings.Index(lower, "url=")
	if idx < 0 {
		return ""
	}
	target := strings.TrimSpace(content[idx+len("url="):])
	return strings.Trim(target, `"' `)
}

func absolute(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return nil
	}
	return ref
}
