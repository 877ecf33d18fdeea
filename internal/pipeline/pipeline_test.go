package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adda-Baaj/isd-harvester/internal/config"
	"github.com/Adda-Baaj/isd-harvester/internal/domain"
	"github.com/Adda-Baaj/isd-harvester/internal/logger"
	"github.com/Adda-Baaj/isd-harvester/internal/urlnorm"
	"github.com/Adda-Baaj/isd-harvester/pkg/providers"
)

var fixedNow = time.Date(2025, 10, 14, 12, 0, 0, 0, time.UTC)

const articleText = "The Spring ISD board of trustees voted on Monday to adopt a revised academic calendar for the coming school year. " +
	"District officials said the change adds two instructional days in the fall and moves the spring break week to align with neighboring districts. " +
	"Parents can review the full calendar on the district website."

type newsroom struct {
	srv *httptest.Server

	mu     sync.Mutex
	hooked []map[string]any
}

func newNewsroom(t *testing.T) *newsroom {
	t.Helper()
	n := &newsroom{}
	mux := http.NewServeMux()
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Local</title>
<item><title>Spring ISD adopts calendar</title><link>%[1]s/news/calendar?utm_source=rss</link>
<pubDate>Tue, 14 Oct 2025 09:00:00 +0000</pubDate><description>Board vote</description></item>
<item><title>Spring ISD names principal</title><link>%[1]s/news/principal</link>
<pubDate>Mon, 13 Oct 2025 09:00:00 +0000</pubDate><description>New principal</description></item>
</channel></rss>`, n.srv.URL)
	})
	mux.HandleFunc("/news/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>%s</title></head><body><nav>Home</nav>
<article><h1>Story</h1><p>%s</p><p>%s</p></article><footer>footer</footer></body></html>`,
			r.URL.Path, articleText, articleText)
	})
	mux.HandleFunc("/hook", func(w http.ResponseWriter, r *http.Request) {
		var evt map[string]any
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		n.mu.Lock()
		n.hooked = append(n.hooked, evt)
		n.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	n.srv = httptest.NewServer(mux)
	t.Cleanup(n.srv.Close)
	return n
}

func (n *newsroom) hookCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.hooked)
}

func baseConfig(dir string, feeds ...string) *config.Config {
	return &config.Config{
		Log:    config.LogConfig{Level: "info", Format: "json"},
		Search: providers.SearchConfig{Templates: []string{providers.DefaultSearchTemplate}},
		Feeds:  feeds,
		URL:    urlnorm.DefaultConfig(),
		Selection: config.SelectionConfig{
			MaxArticles:     5,
			MaxChars:        2500,
			MinChars:        200,
			RelaxedMinChars: 120,
			MustMatchTerms:  []string{"spring isd"},
		},
		HTTP:       config.HTTPConfig{Timeout: 5 * time.Second},
		Workers:    config.WorkersConfig{Feeds: 2, Pages: 2},
		Extraction: config.ExtractionConfig{ParagraphMinChars: 40, StructuralCap: 6000},
		Seen:       config.SeenConfig{Enabled: true, Path: filepath.Join(dir, "seen.db"), TTL: 24 * time.Hour},
		Output:     config.OutputConfig{Path: filepath.Join(dir, "out", "articles.json")},
	}
}

func readArticles(t *testing.T, path string) []domain.ResolvedArticle {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var out []domain.ResolvedArticle
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return out
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	n := newNewsroom(t)
	dir := t.TempDir()
	cfg := baseConfig(dir, n.srv.URL+"/rss")

	pubFile := filepath.Join(dir, "publishers.yaml")
	pubYAML := fmt.Sprintf("publishers:\n  - id: hook\n    type: http\n    http:\n      url: %s/hook\n", n.srv.URL)
	if err := os.WriteFile(pubFile, []byte(pubYAML), 0o600); err != nil {
		t.Fatalf("write publishers: %v", err)
	}
	cfg.PublishersFile = pubFile

	runner := New(cfg, logger.NopLogger{}, WithClock(func() time.Time { return fixedNow }))

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Sources != 1 || report.Entries != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(report.Articles))
	}

	first := report.Articles[0]
	if first.Title != "Spring ISD adopts calendar" {
		t.Fatalf("expected newest article first, got %q", first.Title)
	}
	if strings.Contains(first.ResolvedLink, "utm_source") {
		t.Fatalf("tracking params not stripped: %s", first.ResolvedLink)
	}
	if first.ExtractionMethod == domain.MethodNone || len([]rune(first.Body)) < 200 {
		t.Fatalf("unexpected body %q via %s", first.Body, first.ExtractionMethod)
	}

	written := readArticles(t, cfg.Output.Path)
	if len(written) != 2 || written[0].ResolvedLink != first.ResolvedLink {
		t.Fatalf("handoff file does not match report: %+v", written)
	}

	if report.Published != 2 || report.PublishFailed != 0 || n.hookCount() != 2 {
		t.Fatalf("published=%d failed=%d hooked=%d", report.Published, report.PublishFailed, n.hookCount())
	}

	again, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(again.Articles) != 0 {
		t.Fatalf("expected seen links to be skipped, got %d articles", len(again.Articles))
	}
	if again.RunID == report.RunID {
		t.Fatal("expected a fresh run id")
	}
	if got := readArticles(t, cfg.Output.Path); len(got) != 0 {
		t.Fatalf("expected empty handoff, got %d", len(got))
	}
	if n.hookCount() != 2 {
		t.Fatalf("empty run must not publish, hooked=%d", n.hookCount())
	}
}

func TestRunWritesStdout(t *testing.T) {
	t.Parallel()

	n := newNewsroom(t)
	cfg := baseConfig(t.TempDir(), n.srv.URL+"/rss")
	cfg.Seen = config.SeenConfig{}
	cfg.Output.Path = StdoutPath
	cfg.Selection.MaxArticles = 1

	var buf bytes.Buffer
	report, err := New(cfg, logger.NopLogger{}, WithStdout(&buf), WithClock(func() time.Time { return fixedNow })).
		Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var out []domain.ResolvedArticle
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode stdout: %v", err)
	}
	if len(out) != 1 || len(report.Articles) != 1 || out[0].Title != report.Articles[0].Title {
		t.Fatalf("unexpected stdout articles %+v", out)
	}
}

func TestRunFailsWhenAllSourcesFail(t *testing.T) {
	t.Parallel()

	n := newNewsroom(t)
	cfg := baseConfig(t.TempDir(), n.srv.URL+"/broken")

	_, err := New(cfg, logger.NopLogger{}).Run(context.Background())
	if !errors.Is(err, providers.ErrAllSourcesFailed) || errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrAllSourcesFailed, got %v", err)
	}
	if _, statErr := os.Stat(cfg.Output.Path); !os.IsNotExist(statErr) {
		t.Fatalf("no handoff should be written on failure, stat err=%v", statErr)
	}
}

func TestRunPartialSourceFailureStillEmits(t *testing.T) {
	t.Parallel()

	n := newNewsroom(t)
	cfg := baseConfig(t.TempDir(), n.srv.URL+"/broken", n.srv.URL+"/rss")

	report, err := New(cfg, logger.NopLogger{}, WithClock(func() time.Time { return fixedNow })).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(report.Articles))
	}
}

func TestRunRejectsBadConfiguration(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name    string
		mutate  func(*config.Config) *config.Config
		message string
	}{
		{
			name:   "nil config",
			mutate: func(*config.Config) *config.Config { return nil },
		},
		{
			name: "invalid selection",
			mutate: func(c *config.Config) *config.Config {
				c.Selection.MaxArticles = 0
				return c
			},
		},
		{
			name: "relaxed floor above strict floor",
			mutate: func(c *config.Config) *config.Config {
				c.Selection.RelaxedMinChars = c.Selection.MinChars + 1
				return c
			},
		},
		{
			name: "missing publishers file",
			mutate: func(c *config.Config) *config.Config {
				c.PublishersFile = filepath.Join(dir, "missing.yaml")
				return c
			},
			message: "load publishers",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := tc.mutate(baseConfig(dir, "https://example.org/rss"))
			_, err := New(cfg, logger.NopLogger{}).Run(context.Background())
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
			if tc.message != "" && !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("expected %q in %v", tc.message, err)
			}
		})
	}
}
