package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
	"github.com/robfig/cron/v3"

	"github.com/nao1215/crawlscope/internal/antibot"
	"github.com/nao1215/crawlscope/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "crawlscope"

	// DBFileName is the SQLite file inside the data directory.
	DBFileName = "crawlscope.db"

	// DefaultMaxPages of zero lets a single crawl run until its frontier is
	// exhausted.
	DefaultMaxPages = 0

	// DefaultBaseDelay is the politeness delay between fetches before any
	// robots crawl-delay or backoff is applied.
	DefaultBaseDelay = 1 * time.Second

	// DefaultFetchTimeout bounds one page fetch.
	DefaultFetchTimeout = 15 * time.Second

	// DefaultRobotsTimeout bounds the robots.txt fetch.
	DefaultRobotsTimeout = 10 * time.Second

	// DefaultSitemapTimeout bounds each top-level sitemap candidate fetch.
	DefaultSitemapTimeout = 15 * time.Second

	// DefaultSitemapChildTimeout bounds each nested sitemap fetch.
	DefaultSitemapChildTimeout = 10 * time.Second

	// DefaultSitemapCap is the most URLs taken from sitemaps.
	DefaultSitemapCap = 100

	// DefaultMaxBlocks is how many block signals a crawl absorbs before it
	// escalates to the sitemap.
	DefaultMaxBlocks = 3

	// DefaultMaxConcurrentCrawls bounds crawls and batches running at once.
	DefaultMaxConcurrentCrawls = 8

	// DefaultBatchPause separates the domains of a batch.
	DefaultBatchPause = 2 * time.Second

	// DefaultBatchMaxDomains is the largest accepted batch.
	DefaultBatchMaxDomains = 10

	// DefaultBatchDefaultLimit is the per-domain page limit of a batch when
	// none is given.
	DefaultBatchDefaultLimit = 50

	// DefaultBatchMaxLimit caps the per-domain page limit of a batch.
	DefaultBatchMaxLimit = 500

	// DefaultIdleThreshold is how long a running crawl may stay silent before
	// it is reaped.
	DefaultIdleThreshold = 10 * time.Minute

	// DefaultOrphanThreshold is how old an unfinished search record without a
	// running crawl must be before it is finalized.
	DefaultOrphanThreshold = time.Hour

	// DefaultActiveWindow is how far back the active listing looks.
	DefaultActiveWindow = 24 * time.Hour

	// DefaultLiveWindow is how recent an update must be for a crawl to count
	// as live.
	DefaultLiveWindow = 5 * time.Minute

	// DefaultReapSchedule runs the reaper every five minutes.
	DefaultReapSchedule = "@every 5m"

	// DefaultScheme is used to build seed, robots and sitemap URLs.
	DefaultScheme = "https"

	// LogFormatText and LogFormatJSON are the supported log formats.
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds the runtime configuration of crawlscope.
// It is populated from defaults, the configuration file and CLI flags, in
// that order, and passed down explicitly rather than held in globals.
//
// Design decision: We use a single flat struct instead of nested structs.
// Every component takes a handful of these values as functional options,
// so the CLI is the only place that needs to know the whole set.
type Config struct {
	// DataDir holds the SQLite database.
	DataDir string

	// MaxPages caps a single crawl. Zero means unlimited.
	MaxPages int

	// BaseDelay is the delay between fetches of one crawl.
	BaseDelay time.Duration

	// FetchTimeout, RobotsTimeout, SitemapTimeout and SitemapChildTimeout
	// bound the individual HTTP requests of a crawl.
	FetchTimeout        time.Duration
	RobotsTimeout       time.Duration
	SitemapTimeout      time.Duration
	SitemapChildTimeout time.Duration

	// SitemapCap is the most URLs taken from sitemaps.
	SitemapCap int

	// MaxBlocks is the escalation threshold of the crawl engine.
	MaxBlocks int

	// MaxConcurrentCrawls bounds crawls and batches running at once.
	MaxConcurrentCrawls int

	// BatchPause, BatchMaxDomains, BatchDefaultLimit and BatchMaxLimit
	// shape batches.
	BatchPause        time.Duration
	BatchMaxDomains   int
	BatchDefaultLimit int
	BatchMaxLimit     int

	// IdleThreshold and OrphanThreshold drive reaping.
	IdleThreshold   time.Duration
	OrphanThreshold time.Duration

	// ActiveWindow and LiveWindow drive the active-crawl listing.
	ActiveWindow time.Duration
	LiveWindow   time.Duration

	// ReapSchedule is the cron spec of the background reaper.
	ReapSchedule string

	// ProxyURL routes all traffic through an http, https or socks5 proxy.
	// Empty means direct connections.
	ProxyURL string

	// Scheme is "https" or "http".
	Scheme string

	// XMLGatedDomains are domain substrings whose sitemaps are fetched with
	// XML Accept headers.
	XMLGatedDomains []string

	// AdminIdentities may stop crawls owned by anyone.
	AdminIdentities []string

	// Verbose enables debug logging.
	Verbose bool

	// LogFormat is LogFormatText or LogFormatJSON.
	LogFormat string

	// ConfigFilePath is the configuration file in use, if any.
	ConfigFilePath string

	// Sites holds the per-domain overrides loaded from the configuration file.
	Sites map[string]SiteConfig
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		DataDir:             XDGDataDir(),
		MaxPages:            DefaultMaxPages,
		BaseDelay:           DefaultBaseDelay,
		FetchTimeout:        DefaultFetchTimeout,
		RobotsTimeout:       DefaultRobotsTimeout,
		SitemapTimeout:      DefaultSitemapTimeout,
		SitemapChildTimeout: DefaultSitemapChildTimeout,
		SitemapCap:          DefaultSitemapCap,
		MaxBlocks:           DefaultMaxBlocks,
		MaxConcurrentCrawls: DefaultMaxConcurrentCrawls,
		BatchPause:          DefaultBatchPause,
		BatchMaxDomains:     DefaultBatchMaxDomains,
		BatchDefaultLimit:   DefaultBatchDefaultLimit,
		BatchMaxLimit:       DefaultBatchMaxLimit,
		IdleThreshold:       DefaultIdleThreshold,
		OrphanThreshold:     DefaultOrphanThreshold,
		ActiveWindow:        DefaultActiveWindow,
		LiveWindow:          DefaultLiveWindow,
		ReapSchedule:        DefaultReapSchedule,
		Scheme:              DefaultScheme,
		LogFormat:           LogFormatText,
		XMLGatedDomains:     slices.Clone(antibot.DefaultXMLGatedDomains),
		Sites:               make(map[string]SiteConfig),
	}
}

// XDGDataDir returns the XDG data directory for crawlscope.
// On Linux: ~/.local/share/crawlscope
// On macOS: ~/Library/Application Support/crawlscope
// On Windows: %LOCALAPPDATA%\crawlscope
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DBPath returns the SQLite file path inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFileName)
}

// Identity returns the principal named name, flagged as admin when it is
// listed in AdminIdentities. An empty name is the anonymous principal, nil.
func (c *Config) Identity(name string) *model.Identity {
	if name == "" {
		return nil
	}
	return &model.Identity{Name: name, Admin: slices.Contains(c.AdminIdentities, name)}
}

// ForSite returns a copy of c with the overrides for domain applied.
// Domains are matched after normalization, so "www.Example.com" finds the
// "example.com" entry.
func (c *Config) ForSite(domain string) *Config {
	out := *c
	out.XMLGatedDomains = slices.Clone(c.XMLGatedDomains)
	out.AdminIdentities = slices.Clone(c.AdminIdentities)

	site, ok := c.siteFor(domain)
	if !ok {
		return &out
	}

	if site.MaxPages > 0 {
		out.MaxPages = site.MaxPages
	}
	if site.BaseDelay > 0 {
		out.BaseDelay = site.BaseDelay
	}
	if site.Proxy != "" {
		out.ProxyURL = site.Proxy
	}
	if site.XMLGated {
		if d := model.NormalizeDomain(domain); !slices.Contains(out.XMLGatedDomains, d) {
			out.XMLGatedDomains = append(out.XMLGatedDomains, d)
		}
	}
	return &out
}

func (c *Config) siteFor(domain string) (SiteConfig, bool) {
	want := model.NormalizeDomain(domain)
	for key, site := range c.Sites {
		if model.NormalizeDomain(key) == want {
			return site, true
		}
	}
	return SiteConfig{}, false
}

// Validate checks the configuration and returns an error wrapping
// ErrInvalidConfig that names the first offending field.
//
// Design decision: We validate once after flags and the config file are
// merged, so every command fails before touching the network or the
// database.
func (c *Config) Validate() error {
	positiveDurations := []struct {
		name string
		d    time.Duration
	}{
		{"fetch timeout", c.FetchTimeout},
		{"robots timeout", c.RobotsTimeout},
		{"sitemap timeout", c.SitemapTimeout},
		{"sitemap child timeout", c.SitemapChildTimeout},
		{"idle threshold", c.IdleThreshold},
		{"orphan threshold", c.OrphanThreshold},
		{"active window", c.ActiveWindow},
		{"live window", c.LiveWindow},
	}
	for _, p := range positiveDurations {
		if p.d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, p.name)
		}
	}

	positiveInts := []struct {
		name string
		n    int
	}{
		{"sitemap cap", c.SitemapCap},
		{"max blocks", c.MaxBlocks},
		{"max concurrent crawls", c.MaxConcurrentCrawls},
		{"batch max domains", c.BatchMaxDomains},
		{"batch default limit", c.BatchDefaultLimit},
		{"batch max limit", c.BatchMaxLimit},
	}
	for _, p := range positiveInts {
		if p.n <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, p.name)
		}
	}

	switch {
	case c.MaxPages < 0:
		return fmt.Errorf("%w: max pages must not be negative", ErrInvalidConfig)
	case c.BaseDelay < 0:
		return fmt.Errorf("%w: base delay must not be negative", ErrInvalidConfig)
	case c.BatchPause < 0:
		return fmt.Errorf("%w: batch pause must not be negative", ErrInvalidConfig)
	case c.BatchDefaultLimit > c.BatchMaxLimit:
		return fmt.Errorf("%w: batch default limit %d exceeds max limit %d", ErrInvalidConfig, c.BatchDefaultLimit, c.BatchMaxLimit)
	case c.Scheme != "https" && c.Scheme != "http":
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidConfig, c.Scheme)
	case c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON:
		return fmt.Errorf("%w: log format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	case c.DataDir == "":
		return fmt.Errorf("%w: data dir must be set", ErrInvalidConfig)
	}

	if _, err := cron.ParseStandard(c.ReapSchedule); err != nil {
		return fmt.Errorf("%w: reap schedule %q: %w", ErrInvalidConfig, c.ReapSchedule, err)
	}

	if err := validateProxy(c.ProxyURL); err != nil {
		return err
	}
	for domain, site := range c.Sites {
		if err := validateProxy(site.Proxy); err != nil {
			return fmt.Errorf("site %s: %w", domain, err)
		}
		if site.MaxPages < 0 || site.BaseDelay < 0 {
			return fmt.Errorf("%w: site %s has negative overrides", ErrInvalidConfig, domain)
		}
	}
	return nil
}

// validateProxy accepts an empty string or an http, https or socks5 URL with
// a host.
func validateProxy(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: proxy URL %q is malformed", ErrInvalidConfig, redactUserinfo(raw))
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
		return nil
	default:
		return fmt.Errorf("%w: proxy scheme %q is not supported", ErrInvalidConfig, u.Scheme)
	}
}

// redactUserinfo drops credentials from a URL-looking string for error
// messages.
func redactUserinfo(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return u.String()
}
