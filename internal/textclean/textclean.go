// Package textclean normalizes extracted article text: HTML stripping,
// whitespace collapsing, boilerplate removal and length capping.
package textclean

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTruncationMarker is appended when text is cut.
const DefaultTruncationMarker = "…"

var whitespaceRE = regexp.MustCompile(`\s+`)

// DefaultTrailingMarkers are phrases that usually start page furniture after an article.
var DefaultTrailingMarkers = []string{
	"all rights reserved",
	"copyright ©",
	"© copyright",
	"this material may not be published",
	"sign up for our newsletter",
	"subscribe to our newsletter",
	"subscribe now",
	"support local journalism",
	"related stories",
}

// DefaultInlinePhrases are dropped wherever they occur.
var DefaultInlinePhrases = []string{
	"Skip to content",
	"Skip to main content",
	"Advertisement",
	"ADVERTISEMENT",
	"Click here to subscribe",
}

// Cleaner strips boilerplate using configurable phrase lists. Fields must not
// change after the first Clean call; the marker pattern is compiled once.
type Cleaner struct {
	TrailingMarkers []string
	InlinePhrases   []string
	// A trailing marker only cuts the text when it starts at or after
	// max(MinCutOffset, MinCutRatio*len(text)) runes.
	MinCutOffset int
	MinCutRatio  float64

	trailingOnce sync.Once
	trailing     *regexp.Regexp
}

// NewCleaner returns a Cleaner with the default phrase lists.
func NewCleaner() *Cleaner {
	return &Cleaner{
		TrailingMarkers: DefaultTrailingMarkers,
		InlinePhrases:   DefaultInlinePhrases,
		MinCutOffset:    200,
		MinCutRatio:     0.4,
	}
}

// Clean removes inline boilerplate, cuts trailing boilerplate and normalizes whitespace.
func (c *Cleaner) Clean(text string) string {
	text = Compact(text)
	if text == "" || c == nil {
		return text
	}
	for _, p := range c.InlinePhrases {
		if p = strings.TrimSpace(p); p != "" {
			text = strings.ReplaceAll(text, p, " ")
		}
	}
	text = Compact(text)
	return Compact(c.cutTrailing(text))
}

func (c *Cleaner) cutTrailing(text string) string {
	re := c.trailingRE()
	if re == nil {
		return text
	}
	total := utf8.RuneCountInString(text)
	threshold := max(c.MinCutOffset, int(c.MinCutRatio*float64(total)))

	for _, loc := range re.FindAllStringIndex(text, -1) {
		if utf8.RuneCountInString(text[:loc[0]]) >= threshold {
			return text[:loc[0]]
		}
	}
	return text
}

func (c *Cleaner) trailingRE() *regexp.Regexp {
	c.trailingOnce.Do(func() {
		c.trailing = compileMarkers(c.TrailingMarkers)
	})
	return c.trailing
}

func compileMarkers(markers []string) *regexp.Regexp {
	parts := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			parts = append(parts, regexp.QuoteMeta(m))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(parts, "|") + `)`)
}

// Compact collapses all whitespace runs into single spaces.
func Compact(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// StripHTML returns the visible text of an HTML fragment.
func StripHTML(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	if !strings.ContainsAny(fragment, "<&") {
		return Compact(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return Compact(fragment)
	}
	doc.Find("script, style, noscript").Remove()
	return Compact(SelectionText(doc.Selection))
}

// SelectionText joins text nodes with spaces so adjacent blocks do not fuse.
func SelectionText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			b.WriteString(s.Text())
			b.WriteByte(' ')
			return
		}
		b.WriteString(SelectionText(s))
		b.WriteByte(' ')
	})
	return b.String()
}

// Len counts runes.
func Len(s string) int { return utf8.RuneCountInString(s) }

// Truncate caps s at maxChars runes, preferring a word boundary in the last
// fifth of the window, and appends marker when it cuts.
func Truncate(s string, maxChars int, marker string) (string, bool) {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s, false
	}
	runes := []rune(s)
	cut := string(runes[:maxChars])
	if idx := strings.LastIndex(cut, " "); idx > 0 && utf8.RuneCountInString(cut[:idx]) >= maxChars*4/5 {
		cut = cut[:idx]
	}
	cut = strings.TrimRight(cut, " ,;:-")
	return cut + marker, true
}
