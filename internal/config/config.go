// Package config loads harvester settings from a YAML file, .env and
// HARVESTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Adda-Baaj/isd-harvester/internal/textclean"
	"github.com/Adda-Baaj/isd-harvester/internal/urlnorm"
	"github.com/Adda-Baaj/isd-harvester/pkg/providers"
)

const envPrefix = "HARVESTER"

// Config is the full runtime configuration.
type Config struct {
	Log            LogConfig              `mapstructure:"log"`
	Search         providers.SearchConfig `mapstructure:"search"`
	Feeds          []string               `mapstructure:"feeds"`
	Sitemaps       []string               `mapstructure:"sitemaps"`
	Selection      SelectionConfig        `mapstructure:"selection"`
	HTTP           HTTPConfig             `mapstructure:"http"`
	Workers        WorkersConfig          `mapstructure:"workers"`
	Extraction     ExtractionConfig       `mapstructure:"extraction"`
	URL            urlnorm.Config         `mapstructure:"url"`
	Seen           SeenConfig             `mapstructure:"seen"`
	Output         OutputConfig           `mapstructure:"output"`
	PublishersFile string                 `mapstructure:"publishers_file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SelectionConfig holds the article selection limits and filters.
type SelectionConfig struct {
	MaxArticles      int      `mapstructure:"max_articles"`
	MaxChars         int      `mapstructure:"max_chars"`
	MinChars         int      `mapstructure:"min_chars"`
	RelaxedMinChars  int      `mapstructure:"relaxed_min_chars"`
	WhitelistDomains []string `mapstructure:"whitelist_domains"`
	MustMatchTerms   []string `mapstructure:"must_match_terms"`
}

type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
	MaxRedirects int           `mapstructure:"max_redirects"`
}

type WorkersConfig struct {
	Feeds        int           `mapstructure:"feeds"`
	Pages        int           `mapstructure:"pages"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
}

// ExtractionConfig tunes the structural fallback and boilerplate cleanup.
type ExtractionConfig struct {
	ParagraphMinChars int      `mapstructure:"paragraph_min_chars"`
	StructuralCap     int      `mapstructure:"structural_cap"`
	TrailingMarkers   []string `mapstructure:"trailing_markers"`
	InlinePhrases     []string `mapstructure:"inline_phrases"`
}

type SeenConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type OutputConfig struct {
	// Path of the JSON handoff file; "-" writes to stdout.
	Path string `mapstructure:"path"`
}

// LoadDotEnv loads variables from path when the file exists.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the config file (optional), applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	url := urlnorm.DefaultConfig()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("search.templates", []string{providers.DefaultSearchTemplate})
	v.SetDefault("search.terms", []string{})
	v.SetDefault("search.window", 48*time.Hour)
	v.SetDefault("feeds", []string{})
	v.SetDefault("sitemaps", []string{})

	v.SetDefault("selection.max_articles", 8)
	v.SetDefault("selection.max_chars", 2500)
	v.SetDefault("selection.min_chars", 200)
	v.SetDefault("selection.relaxed_min_chars", 120)
	v.SetDefault("selection.whitelist_domains", []string{})
	v.SetDefault("selection.must_match_terms", []string{})

	v.SetDefault("http.timeout", 12*time.Second)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.max_body_bytes", 2<<20)
	v.SetDefault("http.max_redirects", 10)

	v.SetDefault("workers.feeds", 4)
	v.SetDefault("workers.pages", 8)
	v.SetDefault("workers.request_delay", time.Duration(0))

	v.SetDefault("extraction.paragraph_min_chars", 40)
	v.SetDefault("extraction.structural_cap", 6000)
	v.SetDefault("extraction.trailing_markers", textclean.DefaultTrailingMarkers)
	v.SetDefault("extraction.inline_phrases", textclean.DefaultInlinePhrases)

	v.SetDefault("url.aggregator_hosts", url.AggregatorHosts)
	v.SetDefault("url.blocked_hosts", url.BlockedHosts)
	v.SetDefault("url.blocked_suffixes", url.BlockedSuffixes)
	v.SetDefault("url.tracking_params", url.TrackingParams)
	v.SetDefault("url.redirect_params", url.RedirectParams)

	v.SetDefault("seen.enabled", true)
	v.SetDefault("seen.path", "data/seen.db")
	v.SetDefault("seen.ttl", 30*24*time.Hour)

	v.SetDefault("output.path", "data/articles.json")
	v.SetDefault("publishers_file", "")
}

// Validate reports configuration errors that must stop the run before any work.
func (c *Config) Validate() error {
	var errs []error

	if len(nonEmpty(c.Search.Terms)) == 0 && len(nonEmpty(c.Feeds)) == 0 && len(nonEmpty(c.Sitemaps)) == 0 {
		errs = append(errs, errors.New("at least one of search.terms, feeds or sitemaps is required"))
	}
	if c.Selection.MaxArticles <= 0 {
		errs = append(errs, fmt.Errorf("selection.max_articles must be positive, got %d", c.Selection.MaxArticles))
	}
	if c.Selection.MaxChars <= 0 {
		errs = append(errs, fmt.Errorf("selection.max_chars must be positive, got %d", c.Selection.MaxChars))
	}
	if c.Selection.MinChars < 0 || c.Selection.RelaxedMinChars < 0 || c.Selection.RelaxedMinChars > c.Selection.MinChars {
		errs = append(errs, fmt.Errorf("selection.relaxed_min_chars (%d) must be between 0 and min_chars (%d)",
			c.Selection.RelaxedMinChars, c.Selection.MinChars))
	}
	if c.Search.Window < 0 {
		errs = append(errs, fmt.Errorf("search.window must not be negative, got %s", c.Search.Window))
	}
	if c.Workers.Feeds <= 0 || c.Workers.Pages <= 0 {
		errs = append(errs, errors.New("workers.feeds and workers.pages must be positive"))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be positive"))
	}
	if c.Seen.Enabled && strings.TrimSpace(c.Seen.Path) == "" {
		errs = append(errs, errors.New("seen.path is required when seen.enabled is true"))
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		errs = append(errs, errors.New("output.path is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
