package urlnorm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adda-Baaj/isd-harvester/internal/logger"
	"github.com/Adda-Baaj/isd-harvester/pkg/httpclient"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	n := New(DefaultConfig(), nil, logger.NopLogger{})

	tests := []struct {
		name        string
		raw         string
		hint        string
		wantURL     string
		wantDomain  string
		wantBlocked bool
	}{
		{
			name:       "strips tracking fragment and default port",
			raw:        "HTTPS://Example.ORG:443/news/a?id=7&utm_source=x&fbclid=y#top",
			wantURL:    "https://example.org/news/a?id=7",
			wantDomain: "example.org",
		},
		{
			name:       "keeps query order",
			raw:        "https://www.khou.com/article?b=2&utm_medium=rss&a=1",
			wantURL:    "https://www.khou.com/article?b=2&a=1",
			wantDomain: "khou.com",
		},
		{
			name:       "unwraps redirect parameter",
			raw:        "https://www.google.com/url?q=https://www.houstonchronicle.com/news/story.php%3Futm_medium%3Demail&sa=D",
			wantURL:    "https://www.houstonchronicle.com/news/story.php",
			wantDomain: "houstonchronicle.com",
		},
		{
			name:       "feed hint wins over aggregator link",
			raw:        "https://news.google.com/rss/articles/CBMiX2h0dHBz?oc=5",
			hint:       "https://abc13.com/katy-isd/123/?utm_campaign=rss",
			wantURL:    "https://abc13.com/katy-isd/123/",
			wantDomain: "abc13.com",
		},
		{
			name:        "aggregator hint is ignored",
			raw:         "https://news.google.com/rss/articles/CBMiX2h0dHBz?oc=5",
			hint:        "https://news.google.com/articles/other",
			wantURL:     "https://news.google.com/rss/articles/CBMiX2h0dHBz?oc=5",
			wantDomain:  "news.google.com",
			wantBlocked: true,
		},
		{
			name:        "static asset host",
			raw:         "https://www.gstatic.com/images/logo.png",
			wantURL:     "https://www.gstatic.com/images/logo.png",
			wantDomain:  "gstatic.com",
			wantBlocked: true,
		},
		{
			name:        "asset suffix",
			raw:         "https://example.org/static/app.JS",
			wantURL:     "https://example.org/static/app.JS",
			wantDomain:  "example.org",
			wantBlocked: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := n.Canonicalize(tc.raw, tc.hint)
			if got.URL != tc.wantURL || got.Domain != tc.wantDomain || got.Blocked != tc.wantBlocked {
				t.Fatalf("got %+v, want url=%s domain=%s blocked=%v", got, tc.wantURL, tc.wantDomain, tc.wantBlocked)
			}
		})
	}
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	n := New(DefaultConfig(), nil, nil)
	inputs := []string{
		"https://www.example.org/a/b?x=1&utm_term=y#frag",
		"http://example.org:80/path%20with%20space?q=%E2%9C%93",
		"https://www.google.com/url?url=https%3A%2F%2Fcommunityimpact.com%2Fhouston%2Fcy-fair%2Feducation%2F",
		"https://news.google.com/rss/articles/abc",
		"//cdn.example.org/story",
	}
	for _, in := range inputs {
		first := n.Canonicalize(in, "")
		second := n.Canonicalize(first.URL, "")
		if first != second {
			t.Fatalf("not idempotent for %s: %+v then %+v", in, first, second)
		}
	}
}

func TestCanonicalizeUnusableInput(t *testing.T) {
	t.Parallel()

	n := New(DefaultConfig(), nil, nil)
	for _, in := range []string{"", "not a url", "mailto:news@example.org", "/relative/path"} {
		if got := n.Canonicalize(in, ""); got.Usable() {
			t.Fatalf("expected %q to be unusable, got %+v", in, got)
		}
	}
}

func aggregatorConfig(hosts ...string) Config {
	cfg := DefaultConfig()
	cfg.AggregatorHosts = append(cfg.AggregatorHosts, hosts...)
	return cfg
}

func hostOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u.Host
}

func newTestNormalizer(t *testing.T, aggregators ...string) *Normalizer {
	t.Helper()
	hosts := make([]string, 0, len(aggregators))
	for _, a := range aggregators {
		hosts = append(hosts, hostOf(t, a))
	}
	return New(aggregatorConfig(hosts...), httpclient.New(httpclient.Options{Timeout: 2 * time.Second}), logger.NopLogger{})
}

func TestNormalizeFollowsHTTPRedirect(t *testing.T) {
	t.Parallel()

	publisher := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>story</body></html>"))
	}))
	defer publisher.Close()

	agg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, publisher.URL+"/story?utm_source=aggregator", http.StatusFound)
	}))
	defer agg.Close()

	n := newTestNormalizer(t, agg.URL)
	got := n.Normalize(context.Background(), agg.URL+"/rss/articles/abc", "")
	if got.Blocked || got.URL != publisher.URL+"/story" {
		t.Fatalf("unexpected result %+v", got)
	}
	if got.Domain != "127.0.0.1" {
		t.Fatalf("unexpected domain %s", got.Domain)
	}
}

func TestNormalizePageHints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page string
		want string
	}{
		{
			name: "meta refresh",
			page: `<html><head><meta http-equiv="Refresh" content="0; url='https://publisher.example/refresh?utm_source=gn'"></head></html>`,
			want: "https://publisher.example/refresh",
		},
		{
			name: "canonical link",
			page: `<html><head><link rel="canonical" href="https://publisher.example/canonical"></head></html>`,
			want: "https://publisher.example/canonical",
		},
		{
			name: "json-ld",
			page: `<html><head><script type="application/ld+json">{"@type":"NewsArticle","url":"https:\/\/publisher.example\/ld-story"}</script></head></html>`,
			want: "https://publisher.example/ld-story",
		},
		{
			name: "first outbound anchor",
			page: `<html><body><a href="/about">About</a><a href="https://www.gstatic.com/logo.png">logo</a><a href="https://publisher.example/anchor">Read</a></body></html>`,
			want: "https://publisher.example/anchor",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			agg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte(tc.page))
			}))
			defer agg.Close()

			n := newTestNormalizer(t, agg.URL)
			got := n.Normalize(context.Background(), agg.URL+"/articles/x", "")
			if got.Blocked || got.URL != tc.want {
				t.Fatalf("got %+v, want %s", got, tc.want)
			}
		})
	}
}

func TestNormalizeFollowsOneContinueHop(t *testing.T) {
	t.Parallel()

	cont := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<meta http-equiv="refresh" content="0;URL=https://publisher.example/after-hop">`))
	}))
	defer cont.Close()

	agg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><a href="` + cont.URL + `/continue">Continue</a></body></html>`))
	}))
	defer agg.Close()

	n := newTestNormalizer(t, agg.URL, cont.URL)
	got := n.Normalize(context.Background(), agg.URL+"/articles/y", "")
	if got.URL != "https://publisher.example/after-hop" || got.Blocked {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestNormalizeSkipsNonContinueAggregatorAnchors(t *testing.T) {
	t.Parallel()

	var signinHits atomic.Int32
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/signin":
			signinHits.Add(1)
			_, _ = w.Write([]byte(`<html><body>Sign in</body></html>`))
		case "/continue/abc":
			_, _ = w.Write([]byte(`<meta http-equiv="refresh" content="0;URL=https://publisher.example/story">`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer other.Close()

	agg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><a href="` + other.URL + `/signin">Sign in</a><a href="` + other.URL + `/continue/abc">Continue</a></body></html>`))
	}))
	defer agg.Close()

	n := newTestNormalizer(t, agg.URL, other.URL)
	got := n.Normalize(context.Background(), agg.URL+"/articles/z", "")
	if got.Blocked || got.URL != "https://publisher.example/story" {
		t.Fatalf("unexpected result %+v", got)
	}
	if signinHits.Load() != 0 {
		t.Fatalf("sign-in page should not be followed, got %d hits", signinHits.Load())
	}
}

func TestNormalizeUnresolvedIsBlockedAndMemoized(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	agg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer agg.Close()

	n := newTestNormalizer(t, agg.URL)
	raw := agg.URL + "/articles/gone"
	first := n.Normalize(context.Background(), raw, "")
	second := n.Normalize(context.Background(), raw, "")

	if !first.Blocked || first.URL != raw {
		t.Fatalf("expected blocked aggregator url, got %+v", first)
	}
	if first != second {
		t.Fatalf("memoized result differs: %+v vs %+v", first, second)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single fetch, got %d", hits.Load())
	}
}

func TestNormalizeWithoutClientStaysOffline(t *testing.T) {
	t.Parallel()

	n := New(DefaultConfig(), nil, nil)
	got := n.Normalize(context.Background(), "https://news.google.com/rss/articles/abc", "")
	if !got.Blocked {
		t.Fatalf("expected blocked result, got %+v", got)
	}
}

func TestMatchesDomain(t *testing.T) {
	t.Parallel()

	whitelist := []string{"houstonchronicle.com", "www.khou.com"}
	tests := []struct {
		domain string
		want   bool
	}{
		{"houstonchronicle.com", true},
		{"www.houstonchronicle.com", true},
		{"eu.houstonchronicle.com", true},
		{"khou.com", true},
		{"nothoustonchronicle.com", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := MatchesDomain(tc.domain, whitelist); got != tc.want {
			t.Fatalf("MatchesDomain(%q) = %v, want %v", tc.domain, got, tc.want)
		}
	}
	if MatchesDomain("khou.com", nil) {
		t.Fatal("empty whitelist should match nothing")
	}
}

func TestDomain(t *testing.T) {
	t.Parallel()

	if got := Domain("https://WWW.Example.org:8443/a"); got != "example.org" {
		t.Fatalf("unexpected domain %s", got)
	}
}
