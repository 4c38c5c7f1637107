package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nao1215/crawlscope/internal/antibot"
	"github.com/nao1215/crawlscope/internal/model"
	"github.com/nao1215/crawlscope/internal/progress"
	"github.com/nao1215/crawlscope/internal/transport"
)

const (
	// DefaultBaseDelay is the starting delay between fetches before robots.txt
	// or blocking raises it.
	DefaultBaseDelay = time.Second

	// DefaultFetchTimeout bounds each page fetch.
	DefaultFetchTimeout = 15 * time.Second

	// DefaultMaxBlocks is the block count that forces escalation to sitemap
	// discovery.
	DefaultMaxBlocks = 3

	// maxBaseDelay caps soft backoff doubling.
	maxBaseDelay = time.Minute
)

// RobotsSource reports the crawl delay a domain asks for.
type RobotsSource interface {
	Inspect(ctx context.Context, domain string) (crawlDelaySeconds int, sitemapHints []string, disallowsAll bool)
}

// SitemapSource discovers URLs from a domain's sitemaps.
type SitemapSource interface {
	Resolve(ctx context.Context, domain string) []string
}

// Tracker is the slice of progress.Tracker the engine needs.
type Tracker interface {
	RecordPage(ctx context.Context, key, pageURL string) error
	IsStopRequested(ctx context.Context, key string) bool
	Finish(ctx context.Context, key string) error
	FinalizeSearch(ctx context.Context, searchID int64, urls []string, status model.CrawlStatus, message string) error
}

// Request describes one crawl run.
type Request struct {
	// Domain is the normalized domain to crawl.
	Domain string
	// ProgressKey identifies the run's progress row.
	ProgressKey string
	// SearchID is the SearchRecord finalized at the end of the run, if any.
	SearchID *int64
	// MaxPages stops traversal once this many pages are accepted. Zero means
	// no limit.
	MaxPages int
}

// Result is the terminal outcome of a run.
type Result struct {
	Domain       string
	Status       model.CrawlStatus
	URLs         []string
	BlockedCount int
	Fetches      int
	SitemapURLs  int
	DisallowsAll bool
	Message      string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Engine runs single-domain crawls.
type Engine struct {
	fetcher      transport.Fetcher
	headers      *antibot.HeaderProvider
	robots       RobotsSource
	sitemaps     SitemapSource
	tracker      Tracker
	baseDelay    time.Duration
	delayUnit    time.Duration
	fetchTimeout time.Duration
	maxBlocks    int
	scheme       string
	logger       *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBaseDelay sets the initial delay between fetches.
func WithBaseDelay(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.baseDelay = d
		}
	}
}

// WithDelayUnit sets the duration of one robots.txt Crawl-delay unit.
// It is one second unless overridden.
func WithDelayUnit(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.delayUnit = d
		}
	}
}

// WithFetchTimeout sets the per-page fetch timeout.
func WithFetchTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.fetchTimeout = d
		}
	}
}

// WithMaxBlocks sets the block count that forces escalation.
func WithMaxBlocks(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxBlocks = n
		}
	}
}

// WithScheme sets the scheme used for the seed URL.
func WithScheme(scheme string) EngineOption {
	return func(e *Engine) {
		e.scheme = scheme
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an Engine.
func NewEngine(fetcher transport.Fetcher, headers *antibot.HeaderProvider, robots RobotsSource, sitemaps SitemapSource, tracker Tracker, opts ...EngineOption) *Engine {
	e := &Engine{
		fetcher:      fetcher,
		headers:      headers,
		robots:       robots,
		sitemaps:     sitemaps,
		tracker:      tracker,
		baseDelay:    DefaultBaseDelay,
		delayUnit:    time.Second,
		fetchTimeout: DefaultFetchTimeout,
		maxBlocks:    DefaultMaxBlocks,
		scheme:       "https",
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run is the mutable state of one crawl.
type run struct {
	req       Request
	result    *Result
	frontier  *Frontier
	delay     time.Duration
	lastBlock string
	lastErr   error
}

// Run crawls req.Domain until the frontier is exhausted, the page cap is
// reached, blocking forces sitemap fallback, or the crawl is stopped. The
// terminal state is always written to the tracker, even when ctx is
// cancelled, and Run never returns a nil Result.
func (e *Engine) Run(ctx context.Context, req Request) *Result {
	r := &run{
		req: req,
		result: &Result{
			Domain:    req.Domain,
			URLs:      []string{},
			StartedAt: time.Now().UTC(),
		},
		frontier: NewFrontier(model.SeedURL(req.Domain, e.scheme)),
		delay:    e.baseDelay,
	}

	e.seedDelay(ctx, r)
	status := e.traverse(ctx, r)
	if status == model.StatusRunning {
		status = e.escalate(ctx, r)
	}
	e.finalize(ctx, r, status)
	return r.result
}

// seedDelay raises the base delay to the robots.txt Crawl-delay.
func (e *Engine) seedDelay(ctx context.Context, r *run) {
	if e.robots == nil {
		return
	}
	seconds, _, disallowsAll := e.robots.Inspect(ctx, r.req.Domain)
	r.result.DisallowsAll = disallowsAll
	if advertised := time.Duration(seconds) * e.delayUnit; advertised > r.delay {
		r.delay = advertised
	}
	if disallowsAll {
		e.logger.Warn("robots.txt disallows all paths, crawling anyway", "domain", r.req.Domain)
	}
}

// traverse runs the BFS loop. It returns StatusRunning when the run must
// escalate to sitemap discovery.
func (e *Engine) traverse(ctx context.Context, r *run) model.CrawlStatus {
	for {
		if e.tracker.IsStopRequested(ctx, r.req.ProgressKey) {
			r.result.Message = fmt.Sprintf("stopped by request after %d URLs", len(r.result.URLs))
			return model.StatusStopped
		}
		if ctx.Err() != nil {
			r.result.Message = fmt.Sprintf("interrupted by shutdown after %d URLs", len(r.result.URLs))
			return model.StatusStopped
		}
		if r.req.MaxPages > 0 && len(r.result.URLs) >= r.req.MaxPages {
			r.result.Message = fmt.Sprintf("crawl completed: page limit reached with %d URLs", len(r.result.URLs))
			return model.StatusSucceeded
		}

		pageURL, ok := r.frontier.Next()
		if !ok {
			r.result.Message = fmt.Sprintf("crawl completed: %d URLs found", len(r.result.URLs))
			return model.StatusSucceeded
		}
		r.frontier.MarkVisited(pageURL)

		if r.result.Fetches > 0 {
			wait := time.Duration(float64(r.delay) * (1 + float64(r.result.BlockedCount)*0.5))
			if !sleep(ctx, wait) {
				r.result.Message = fmt.Sprintf("interrupted by shutdown after %d URLs", len(r.result.URLs))
				return model.StatusStopped
			}
		}

		r.result.Fetches++
		res, err := transport.FetchWithin(ctx, e.fetcher, e.fetchTimeout, pageURL, e.headers.RandomHeaders())
		if err != nil {
			if ctx.Err() != nil {
				r.result.Message = fmt.Sprintf("interrupted by shutdown after %d URLs", len(r.result.URLs))
				return model.StatusStopped
			}
			r.result.BlockedCount++
			r.lastErr = err
			e.logger.Debug("fetch failed", "url", pageURL, "blocked", r.result.BlockedCount, "error", err)
			if r.result.BlockedCount >= e.maxBlocks && len(r.result.URLs) == 0 {
				return model.StatusRunning
			}
			continue
		}

		if blocked, reason := antibot.Classify(res.StatusCode, res.BodyText); blocked {
			r.result.BlockedCount++
			r.lastBlock = reason
			e.logger.Info("blocked response", "url", pageURL, "reason", reason, "blocked", r.result.BlockedCount)
			if (antibot.IsHardBlock(res.StatusCode) && len(r.result.URLs) == 0) || r.result.BlockedCount >= e.maxBlocks {
				return model.StatusRunning
			}
			r.delay = min(r.delay*2, maxBaseDelay)
			continue
		}

		if res.StatusCode != http.StatusOK {
			e.logger.Debug("skipping non-200 response", "url", pageURL, "status", res.StatusCode)
			continue
		}

		if stopped := e.accept(ctx, r, pageURL); stopped {
			r.result.Message = fmt.Sprintf("stopped by request after %d URLs", len(r.result.URLs))
			return model.StatusStopped
		}

		// Relative links resolve against the URL after redirects.
		base := pageURL
		if res.URL != "" {
			base = res.URL
		}
		for _, link := range ExtractLinks(base, res.BodyText) {
			if r.frontier.ShouldAccept(link, r.req.Domain) {
				r.frontier.Enqueue(link)
			}
		}
	}
}

// accept records pageURL. It reports true when the progress row was already
// finished, in which case the page is not kept.
func (e *Engine) accept(ctx context.Context, r *run, pageURL string) bool {
	if err := e.tracker.RecordPage(ctx, r.req.ProgressKey, pageURL); err != nil {
		if errors.Is(err, progress.ErrProgressFinished) {
			return true
		}
		e.logger.Warn("failed to record page", "key", r.req.ProgressKey, "url", pageURL, "error", err)
	}
	r.result.URLs = append(r.result.URLs, pageURL)
	e.logger.Debug("page accepted", "url", pageURL, "count", len(r.result.URLs))
	return false
}

// escalate falls back to sitemap discovery.
func (e *Engine) escalate(ctx context.Context, r *run) model.CrawlStatus {
	e.logger.Info("escalating to sitemap discovery",
		"domain", r.req.Domain,
		"blocked", r.result.BlockedCount,
		"accepted", len(r.result.URLs),
	)

	var found []string
	if e.sitemaps != nil {
		found = e.sitemaps.Resolve(ctx, r.req.Domain)
	}
	r.result.SitemapURLs = len(found)

	seen := make(map[string]struct{}, len(r.result.URLs))
	for _, u := range r.result.URLs {
		seen[u] = struct{}{}
	}

	added := 0
	for _, u := range found {
		if r.req.MaxPages > 0 && len(r.result.URLs) >= r.req.MaxPages {
			break
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if stopped := e.accept(ctx, r, u); stopped {
			r.result.Message = fmt.Sprintf("stopped by request after %d URLs", len(r.result.URLs))
			return model.StatusStopped
		}
		added++
	}

	cause := e.blockCause(r)
	if len(found) == 0 {
		r.result.Message = fmt.Sprintf("%s; no sitemap URLs could be recovered", cause)
		return model.StatusFallbackFailed
	}
	r.result.Message = fmt.Sprintf("%s; recovered %d URLs from sitemap", cause, added)
	return model.StatusFallbackSucceeded
}

// blockCause describes why the run escalated.
func (e *Engine) blockCause(r *run) string {
	switch {
	case r.lastBlock != "":
		return fmt.Sprintf("site blocked crawling after %d attempts (%s)", r.result.BlockedCount, r.lastBlock)
	case errors.Is(r.lastErr, transport.ErrTimeout):
		return fmt.Sprintf("site timed out %d times", r.result.BlockedCount)
	case errors.Is(r.lastErr, transport.ErrConnection):
		return fmt.Sprintf("site could not be reached after %d attempts", r.result.BlockedCount)
	default:
		return fmt.Sprintf("crawling failed after %d attempts", r.result.BlockedCount)
	}
}

// finalize writes the SearchRecord and marks progress done. Writes use a
// context detached from ctx's cancellation so shutdown still persists the
// terminal state.
func (e *Engine) finalize(ctx context.Context, r *run, status model.CrawlStatus) {
	ctx = context.WithoutCancel(ctx)
	r.result.Status = status
	r.result.FinishedAt = time.Now().UTC()

	// The search record goes first: a reconcile pass that sees a finished
	// progress row next to an open record would close it as reaped.
	if r.req.SearchID != nil {
		if err := e.tracker.FinalizeSearch(ctx, *r.req.SearchID, r.result.URLs, status, r.result.Message); err != nil {
			e.logger.Warn("failed to finalize search", "id", *r.req.SearchID, "error", err)
		}
	}
	if err := e.tracker.Finish(ctx, r.req.ProgressKey); err != nil {
		e.logger.Warn("failed to finish progress", "key", r.req.ProgressKey, "error", err)
	}

	e.logger.Info("crawl finished",
		"domain", r.req.Domain,
		"status", status.String(),
		"urls", len(r.result.URLs),
		"blocked", r.result.BlockedCount,
		"fetches", r.result.Fetches,
		"duration", r.result.FinishedAt.Sub(r.result.StartedAt).String(),
	)
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
