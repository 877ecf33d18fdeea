package urlnorm

import (
	"context"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/Adda-Baaj/isd-harvester/internal/logger"
	"github.com/Adda-Baaj/isd-harvester/pkg/httpclient"
)

// Config holds the host and parameter lists the Normalizer works from.
type Config struct {
	AggregatorHosts []string `mapstructure:"aggregator_hosts"`
	BlockedHosts    []string `mapstructure:"blocked_hosts"`
	BlockedSuffixes []string `mapstructure:"blocked_suffixes"`
	// TrackingParams are dropped from every URL. A trailing "*" makes the
	// entry a prefix match ("utm_*").
	TrackingParams []string `mapstructure:"tracking_params"`
	// RedirectParams name aggregator query parameters carrying the original URL.
	RedirectParams []string `mapstructure:"redirect_params"`
}

// DefaultConfig returns the built-in lists.
func DefaultConfig() Config {
	return Config{
		AggregatorHosts: []string{
			"news.google.com",
			"google.com",
			"bing.com",
			"feeds.feedburner.com",
			"feedproxy.google.com",
		},
		BlockedHosts: []string{
			"gstatic.com",
			"googleusercontent.com",
			"ggpht.com",
			"googleapis.com",
			"googletagmanager.com",
			"googlesyndication.com",
			"doubleclick.net",
		},
		BlockedSuffixes: []string{
			".js", ".css", ".map", ".json",
			".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
			".woff", ".woff2", ".ttf", ".eot",
			".mp3", ".mp4",
		},
		TrackingParams: []string{
			"utm_*", "fbclid", "gclid", "dclid", "msclkid", "mc_cid", "mc_eid",
			"igshid", "ocid", "cmpid", "ref_src", "_ga", "yclid",
		},
		RedirectParams: []string{"url", "u", "q", "dest", "destination"},
	}
}

// Result is the outcome of normalizing one URL.
type Result struct {
	URL     string
	Domain  string
	Blocked bool
}

// Usable reports whether the URL is an absolute http(s) URL with a host.
func (r Result) Usable() bool {
	u, err := url.Parse(r.URL)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Normalizer canonicalizes URLs and unwraps aggregator redirects. Results of
// Normalize are memoized for the lifetime of the Normalizer, which is one run.
type Normalizer struct {
	cfg    Config
	client httpclient.Client
	log    logger.Logger

	mu    sync.Mutex
	cache map[string]Result
}

// New builds a Normalizer. A nil client disables network resolution.
func New(cfg Config, client httpclient.Client, log logger.Logger) *Normalizer {
	return &Normalizer{
		cfg:    cfg,
		client: client,
		log:    logger.Ensure(log),
		cache:  make(map[string]Result),
	}
}

// Canonicalize applies the offline steps: tracking-parameter removal, the
// feed-supplied hint and the redirect query parameter.
func (n *Normalizer) Canonicalize(rawURL, hint string) Result {
	u, ok := n.clean(rawURL)
	if !ok {
		return Result{URL: strings.TrimSpace(rawURL)}
	}
	if !hostIn(u, n.cfg.AggregatorHosts) {
		return n.result(u)
	}

	if h, ok := n.clean(hint); ok && !n.blocked(h) {
		return n.result(h)
	}
	if target, ok := n.fromRedirectParam(u); ok {
		return n.result(target)
	}
	return n.result(u)
}

// Normalize returns the canonical publisher URL for rawURL. When offline
// steps leave the URL on an aggregator host, it falls back to one bounded
// fetch of the aggregator page. Unresolvable aggregator links come back
// unchanged and Blocked.
func (n *Normalizer) Normalize(ctx context.Context, rawURL, hint string) Result {
	key := rawURL + "\x00" + hint
	n.mu.Lock()
	if res, ok := n.cache[key]; ok {
		n.mu.Unlock()
		return res
	}
	n.mu.Unlock()

	res := n.Canonicalize(rawURL, hint)
	if res.Blocked && n.client != nil && n.IsAggregator(res.URL) {
		if target, via := n.resolveRemote(ctx, res.URL); target != nil {
			n.log.DebugObj("aggregator link unwrapped", "url_unwrapped", map[string]any{
				"from": res.URL,
				"to":   target.String(),
				"via":  via,
			})
			res = n.result(target)
		} else {
			n.log.DebugObj("aggregator link left unresolved", "url_unresolved", map[string]any{
				"url": res.URL,
			})
		}
	}

	n.mu.Lock()
	n.cache[key] = res
	n.mu.Unlock()
	return res
}

// IsAggregator reports whether rawURL is on an aggregator host.
func (n *Normalizer) IsAggregator(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return hostIn(u, n.cfg.AggregatorHosts)
}

// IsBlocked reports whether rawURL is on the denylist.
func (n *Normalizer) IsBlocked(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return n.blocked(u)
}

func (n *Normalizer) blocked(u *url.URL) bool {
	if hostIn(u, n.cfg.AggregatorHosts) || hostIn(u, n.cfg.BlockedHosts) {
		return true
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return false
	}
	for _, s := range n.cfg.BlockedSuffixes {
		if strings.EqualFold(strings.TrimSpace(s), ext) {
			return true
		}
	}
	return false
}

func (n *Normalizer) result(u *url.URL) Result {
	return Result{
		URL:     u.String(),
		Domain:  HostDomain(u.Hostname()),
		Blocked: n.blocked(u),
	}
}

// acceptable parses and cleans candidate, returning it only when it is a
// usable, non-blocked publisher URL.
func (n *Normalizer) acceptable(candidate string) (*url.URL, bool) {
	u, ok := n.clean(candidate)
	if !ok || n.blocked(u) {
		return nil, false
	}
	return u, true
}

func (n *Normalizer) fromRedirectParam(u *url.URL) (*url.URL, bool) {
	q := u.Query()
	for _, name := range n.cfg.RedirectParams {
		v := strings.TrimSpace(q.Get(name))
		if v == "" {
			continue
		}
		if target, ok := n.acceptable(v); ok {
			return target, true
		}
	}
	return nil, false
}

// clean parses rawURL and strips tracking parameters, fragments and default ports.
func (n *Normalizer) clean(rawURL string) (*url.URL, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, false
	}
	if strings.HasPrefix(rawURL, "//") {
		rawURL = "https:" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, false
	}

	host := strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(host, ":80")) || (u.Scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = n.stripTracking(u.RawQuery)
	u.ForceQuery = false
	return u, true
}

// stripTracking filters raw query pairs, keeping the original order and encoding.
func (n *Normalizer) stripTracking(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	pairs := strings.Split(rawQuery, "&")
	kept := pairs[:0]
	for _, p := range pairs {
		if p == "" {
			continue
		}
		key := p
		if i := strings.IndexByte(p, '='); i >= 0 {
			key = p[:i]
		}
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if n.isTracking(key) {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "&")
}

func (n *Normalizer) isTracking(key string) bool {
	key = strings.ToLower(key)
	for _, t := range n.cfg.TrackingParams {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if prefix, ok := strings.CutSuffix(t, "*"); ok {
			if strings.HasPrefix(key, prefix) {
				return true
			}
			continue
		}
		if key == t {
			return true
		}
	}
	return false
}
