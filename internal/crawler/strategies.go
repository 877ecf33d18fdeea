package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/Adda-Baaj/isd-harvester/internal/domain"
	"github.com/Adda-Baaj/isd-harvester/internal/textclean"
)

const (
	defaultParagraphMin  = 40
	defaultStructuralCap = 6000
)

var containerSelectors = []string{
	"article",
	"[itemprop=articleBody]",
	".article-body",
	".entry-content",
	".story-body",
	"main",
}

// Paragraphs starting with these are page furniture.
var boilerplatePrefixes = []string{
	"advertisement",
	"subscribe",
	"sign up",
	"copyright",
	"©",
	"all rights reserved",
	"read more",
	"click here",
	"share this",
	"follow us",
	"related:",
}

// page is a fetched document shared by the strategies of one extraction.
type page struct {
	url  *url.URL
	html []byte

	once   sync.Once
	doc    *goquery.Document
	docErr error
}

func newPage(u *url.URL, html []byte) *page {
	return &page{url: u, html: html}
}

// document returns the parsed page. Callers must not mutate it.
func (p *page) document() (*goquery.Document, error) {
	p.once.Do(func() {
		p.doc, p.docErr = p.freshDocument()
	})
	return p.doc, p.docErr
}

func (p *page) freshDocument() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

type strategy interface {
	method() domain.ExtractionMethod
	extract(p *page) (string, error)
}

// readabilityStrategy runs the Readability port over the raw HTML.
type readabilityStrategy struct{}

func (readabilityStrategy) method() domain.ExtractionMethod { return domain.MethodPrimary }

func (readabilityStrategy) extract(p *page) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(p.html), p.url)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	return article.TextContent, nil
}

// structuralStrategy looks for a known article container, then falls back to
// gluing together paragraph-sized text blocks.
type structuralStrategy struct {
	paragraphMin int
	capChars     int
	minChars     int
	skipPrefixes []string
}

func (structuralStrategy) method() domain.ExtractionMethod { return domain.MethodStructural }

func (s structuralStrategy) extract(p *page) (string, error) {
	doc, err := p.freshDocument()
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, nav, footer, header, aside, form, iframe, figure").Remove()

	for _, sel := range containerSelectors {
		best := ""
		doc.Find(sel).Each(func(_ int, n *goquery.Selection) {
			if t := textclean.Compact(textclean.SelectionText(n)); textclean.Len(t) > textclean.Len(best) {
				best = t
			}
		})
		if textclean.Len(best) >= s.minChars {
			return s.capped(best), nil
		}
	}

	var (
		parts []string
		total int
	)
	doc.Find("p, li").EachWithBreak(func(_ int, n *goquery.Selection) bool {
		t := textclean.Compact(n.Text())
		if textclean.Len(t) < s.paragraphMin || s.boilerplate(t) {
			return true
		}
		parts = append(parts, t)
		total += textclean.Len(t) + 1
		return total < s.capChars
	})
	return s.capped(strings.Join(parts, " ")), nil
}

func (s structuralStrategy) capped(text string) string {
	out, _ := textclean.Truncate(text, s.capChars, "")
	return out
}

func (s structuralStrategy) boilerplate(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range boilerplatePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, p := range s.skipPrefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" && strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// socialStrategy reads the description meta tags publishers set for link previews.
type socialStrategy struct{}

func (socialStrategy) method() domain.ExtractionMethod { return domain.MethodSocial }

func (socialStrategy) extract(p *page) (string, error) {
	doc, err := p.document()
	if err != nil {
		return "", err
	}
	return textclean.StripHTML(parseMeta(doc).Description), nil
}

// parseMeta extracts page metadata from the parsed document.
func parseMeta(doc *goquery.Document) pageMeta {
	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	return pageMeta{
		Description: firstNonEmpty(
			extract(`meta[property="og:description"]`),
			extract(`meta[name="twitter:description"]`),
			extract(`meta[property="twitter:description"]`),
			extract(`meta[name="description"]`),
		),
	}
}

// pageMeta holds metadata extracted from an HTML page.
type pageMeta struct {
	Description string
}

// firstNonEmpty returns the first non-empty string from the given values.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
