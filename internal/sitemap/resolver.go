package sitemap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/crawlscope/internal/antibot"
	"github.com/nao1215/crawlscope/internal/model"
	"github.com/nao1215/crawlscope/internal/transport"
)

const (
	// DefaultCap is the maximum number of URLs Resolve returns.
	DefaultCap = 100

	// DefaultTimeout bounds the fetch of each top-level candidate.
	DefaultTimeout = 15 * time.Second

	// DefaultChildTimeout bounds the fetch of each sitemap-index child.
	DefaultChildTimeout = 10 * time.Second

	// maxChildrenPerIndex is the fan-out per sitemap index level.
	maxChildrenPerIndex = 5
)

// conventionalPaths are probed after robots.txt hints, in this order.
// The www-prefixed variant is inserted after the first entry.
var conventionalPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemaps.xml",
	"/sitemap/",
	"/sitemap.txt",
}

// HintSource supplies sitemap URLs advertised by the domain, normally
// robots.Inspector.
type HintSource interface {
	Inspect(ctx context.Context, domain string) (crawlDelaySeconds int, sitemapHints []string, disallowsAll bool)
}

// Resolver discovers sitemap URLs for a domain.
type Resolver struct {
	fetcher      transport.Fetcher
	headers      *antibot.HeaderProvider
	hints        HintSource
	cap          int
	timeout      time.Duration
	childTimeout time.Duration
	scheme       string
	logger       *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCap sets the maximum number of URLs returned.
func WithCap(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.cap = n
		}
	}
}

// WithTimeout sets the per-candidate fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = d
	}
}

// WithChildTimeout sets the per-child fetch timeout for sitemap indexes.
func WithChildTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.childTimeout = d
	}
}

// WithScheme sets the URL scheme used for conventional candidates.
func WithScheme(scheme string) Option {
	return func(r *Resolver) {
		r.scheme = scheme
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver. hints may be nil, in which case only the
// conventional locations are probed.
func NewResolver(fetcher transport.Fetcher, headers *antibot.HeaderProvider, hints HintSource, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher:      fetcher,
		headers:      headers,
		hints:        hints,
		cap:          DefaultCap,
		timeout:      DefaultTimeout,
		childTimeout: DefaultChildTimeout,
		scheme:       "https",
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cap returns the configured URL cap.
func (r *Resolver) Cap() int {
	return r.cap
}

// Resolve returns up to Cap URLs from the first candidate sitemap that
// yields any. It never fails; an empty slice means nothing was found.
func (r *Resolver) Resolve(ctx context.Context, domain string) []string {
	candidates := r.Candidates(ctx, domain)
	seen := make(map[string]struct{})

	for i, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}

		urls, err := r.tryCandidate(ctx, candidate, domain, seen)
		if err != nil {
			r.logger.Debug("sitemap candidate rejected",
				"domain", domain,
				"candidate", candidate,
				"attempt", fmt.Sprintf("%d/%d", i+1, len(candidates)),
				"error", err,
			)
			continue
		}

		r.logger.Info("sitemap resolved", "domain", domain, "candidate", candidate, "urls", len(urls))
		return urls
	}

	r.logger.Info("no usable sitemap found", "domain", domain, "candidates", len(candidates))
	return []string{}
}

// Candidates returns the ordered, duplicate-free candidate list: robots.txt
// hints first, then the conventional locations.
func (r *Resolver) Candidates(ctx context.Context, domain string) []string {
	var hints []string
	if r.hints != nil {
		_, hints, _ = r.hints.Inspect(ctx, domain)
	}

	base := model.SeedURL(domain, r.scheme)
	wwwBase := model.SeedURL("www."+domain, r.scheme)

	all := make([]string, 0, len(hints)+len(conventionalPaths)+1)
	all = append(all, hints...)
	all = append(all, base+conventionalPaths[0], wwwBase+conventionalPaths[0])
	for _, p := range conventionalPaths[1:] {
		all = append(all, base+p)
	}

	seen := make(map[string]struct{}, len(all))
	out := all[:0]
	for _, c := range all {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// tryCandidate fetches and parses one top-level candidate.
func (r *Resolver) tryCandidate(ctx context.Context, candidate, domain string, seen map[string]struct{}) ([]string, error) {
	doc, err := r.fetchDocument(ctx, candidate, domain, r.timeout, seen)
	if err != nil {
		return nil, err
	}

	urls := r.collect(ctx, doc, domain, r.cap, seen)
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	return urls, nil
}

// fetchDocument fetches and parses one sitemap document. Each sitemap URL is
// fetched at most once per Resolve call so that self-referencing indexes
// terminate.
func (r *Resolver) fetchDocument(ctx context.Context, sitemapURL, domain string, timeout time.Duration, seen map[string]struct{}) (document, error) {
	if _, ok := seen[sitemapURL]; ok {
		return document{}, fmt.Errorf("%w: already visited", ErrNoURLs)
	}
	seen[sitemapURL] = struct{}{}

	res, err := transport.FetchWithin(ctx, r.fetcher, timeout, sitemapURL, r.headers.SpecializedHeaders(domain))
	if err != nil {
		return document{}, err
	}
	if !res.IsOK() {
		return document{}, fmt.Errorf("%w: HTTP %d", ErrNotServed, res.StatusCode)
	}

	body := res.BodyBytes
	if len(body) == 0 {
		body = []byte(res.BodyText)
	}
	return parseDocument(body), nil
}

// collect gathers usable URLs from doc, following index children when the
// document has no page entries.
func (r *Resolver) collect(ctx context.Context, doc document, domain string, limit int, seen map[string]struct{}) []string {
	urls := make([]string, 0, min(limit, len(doc.pageLocs)))
	for _, loc := range doc.pageLocs {
		if len(urls) >= limit {
			return urls
		}
		if usable(loc, domain) {
			urls = append(urls, loc)
		}
	}

	if len(doc.pageLocs) > 0 {
		return urls
	}

	for i, child := range doc.childLocs {
		if i >= maxChildrenPerIndex || len(urls) >= limit || ctx.Err() != nil {
			break
		}

		childDoc, err := r.fetchDocument(ctx, child, domain, r.childTimeout, seen)
		if err != nil {
			if !errors.Is(err, ErrNoURLs) {
				r.logger.Debug("sitemap child skipped", "domain", domain, "child", child, "error", err)
			}
			continue
		}
		urls = append(urls, r.collect(ctx, childDoc, domain, limit-len(urls), seen)...)
	}

	return urls
}
