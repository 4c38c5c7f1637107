package robots

import (
	"bufio"
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/nao1215/crawlscope/internal/antibot"
	"github.com/nao1215/crawlscope/internal/model"
	"github.com/nao1215/crawlscope/internal/transport"
)

const (
	// DefaultTimeout bounds the robots.txt fetch.
	DefaultTimeout = 10 * time.Second

	// DefaultCrawlDelaySeconds is both the floor for the advertised delay
	// and the value returned when robots.txt is unavailable.
	DefaultCrawlDelaySeconds = 1

	robotsPath = "/robots.txt"
)

// Inspector fetches and interprets robots.txt.
type Inspector struct {
	fetcher transport.Fetcher
	headers *antibot.HeaderProvider
	timeout time.Duration
	scheme  string
	logger  *slog.Logger
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithTimeout sets the fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(i *Inspector) {
		i.timeout = d
	}
}

// WithScheme sets the URL scheme used to reach the domain.
func WithScheme(scheme string) Option {
	return func(i *Inspector) {
		i.scheme = scheme
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Inspector) {
		i.logger = logger
	}
}

// NewInspector creates an Inspector.
func NewInspector(fetcher transport.Fetcher, headers *antibot.HeaderProvider, opts ...Option) *Inspector {
	i := &Inspector{
		fetcher: fetcher,
		headers: headers,
		timeout: DefaultTimeout,
		scheme:  "https",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inspect fetches robots.txt for domain and returns the crawl delay in
// seconds, the sitemap URLs in first-seen order, and whether any group
// disallows "/".
//
// Crawl-delay is the largest value found in any group, whichever agent it
// names, and never less than one second.
// Any failure yields (1, nil, false); errors never reach the caller.
func (i *Inspector) Inspect(ctx context.Context, domain string) (crawlDelaySeconds int, sitemapHints []string, disallowsAll bool) {
	robotsURL := model.SeedURL(domain, i.scheme) + robotsPath

	res, err := transport.FetchWithin(ctx, i.fetcher, i.timeout, robotsURL, i.headers.RandomHeaders())
	if err != nil {
		i.logger.Debug("robots.txt unavailable", "domain", domain, "error", err)
		return DefaultCrawlDelaySeconds, nil, false
	}
	if !res.IsOK() {
		i.logger.Debug("robots.txt not served", "domain", domain, "status", res.StatusCode)
		return DefaultCrawlDelaySeconds, nil, false
	}

	data, err := robotstxt.FromBytes([]byte(res.BodyText))
	if err != nil {
		i.logger.Debug("robots.txt unparsable", "domain", domain, "error", err)
		return DefaultCrawlDelaySeconds, nil, false
	}

	crawlDelaySeconds, disallowsAll = scanDirectives(res.BodyText)
	sitemapHints = dedupe(data.Sitemaps)

	if disallowsAll {
		i.logger.Warn("robots.txt disallows the whole site; continuing", "domain", domain)
	}

	return crawlDelaySeconds, sitemapHints, disallowsAll
}

// scanDirectives returns the largest Crawl-delay and whether any line is
// "Disallow: /", across all User-agent groups. Keys are case-insensitive.
func scanDirectives(body string) (crawlDelaySeconds int, disallowsAll bool) {
	crawlDelaySeconds = DefaultCrawlDelaySeconds

	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "crawl-delay":
			secs, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			if int(secs) > crawlDelaySeconds {
				crawlDelaySeconds = int(secs)
			}
		case "disallow":
			if value == "/" {
				disallowsAll = true
			}
		}
	}
	return crawlDelaySeconds, disallowsAll
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
