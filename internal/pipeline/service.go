package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nao1215/crawlscope/internal/crawler"
	"github.com/nao1215/crawlscope/internal/database"
	"github.com/nao1215/crawlscope/internal/model"
	"github.com/nao1215/crawlscope/internal/progress"
)

const (
	// DefaultMaxConcurrentCrawls bounds crawls running at the same time,
	// counting each running batch as one.
	DefaultMaxConcurrentCrawls = 8

	// DefaultActiveWindow is how far back ListActive looks.
	DefaultActiveWindow = 24 * time.Hour

	// DefaultLiveWindow is how recent an update must be for a crawl to count
	// as really active.
	DefaultLiveWindow = 5 * time.Minute

	// DefaultIdleThreshold and DefaultOrphanThreshold are the ReapOrphans
	// thresholds.
	DefaultIdleThreshold   = 10 * time.Minute
	DefaultOrphanThreshold = time.Hour
)

// Runner executes one crawl to completion. crawler.Engine implements it.
type Runner interface {
	Run(ctx context.Context, req crawler.Request) *crawler.Result
}

// Service starts and manages crawls.
type Service struct {
	store   *database.Store
	tracker *progress.Tracker
	runner  Runner
	logger  *slog.Logger

	maxConcurrent   int
	defaultMaxPages int
	batchPause      time.Duration
	batchMaxDomains int
	batchDefault    int
	batchMax        int
	activeWindow    time.Duration
	liveWindow      time.Duration
	idleThreshold   time.Duration
	orphanThreshold time.Duration
	newKey          func() string

	ctx    context.Context
	cancel context.CancelFunc
	tasks  errgroup.Group
	slots  *semaphore.Weighted

	mu      sync.Mutex
	running map[string]struct{}
	batches map[string]*model.BatchStatus
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMaxConcurrentCrawls bounds concurrently running crawls and batches.
func WithMaxConcurrentCrawls(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithDefaultMaxPages sets the page cap of crawls started without one.
// Zero means unlimited.
func WithDefaultMaxPages(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.defaultMaxPages = n
		}
	}
}

// WithBatchPause sets the pause between the domains of a batch.
func WithBatchPause(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.batchPause = d
		}
	}
}

// WithBatchLimits sets the maximum number of domains per batch and the
// default and maximum per-domain page limits.
func WithBatchLimits(maxDomains, defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		if maxDomains > 0 {
			s.batchMaxDomains = maxDomains
		}
		if defaultLimit > 0 {
			s.batchDefault = defaultLimit
		}
		if maxLimit > 0 {
			s.batchMax = maxLimit
		}
	}
}

// WithWindows sets the ListActive freshness and liveness windows.
func WithWindows(active, live time.Duration) Option {
	return func(s *Service) {
		if active > 0 {
			s.activeWindow = active
		}
		if live > 0 {
			s.liveWindow = live
		}
	}
}

// WithReapThresholds sets the idle and orphan thresholds of ReapOrphans.
func WithReapThresholds(idle, orphan time.Duration) Option {
	return func(s *Service) {
		if idle > 0 {
			s.idleThreshold = idle
		}
		if orphan > 0 {
			s.orphanThreshold = orphan
		}
	}
}

// WithKeyGenerator overrides progress and batch key generation.
func WithKeyGenerator(newKey func() string) Option {
	return func(s *Service) {
		s.newKey = newKey
	}
}

// NewService creates a Service. Crawls run on runner and persist through
// store and tracker.
func NewService(store *database.Store, tracker *progress.Tracker, runner Runner, opts ...Option) *Service {
	s := &Service{
		store:           store,
		tracker:         tracker,
		runner:          runner,
		logger:          slog.Default(),
		maxConcurrent:   DefaultMaxConcurrentCrawls,
		batchPause:      DefaultBatchPause,
		batchMaxDomains: DefaultBatchMaxDomains,
		batchDefault:    DefaultBatchLimit,
		batchMax:        DefaultBatchMaxLimit,
		activeWindow:    DefaultActiveWindow,
		liveWindow:      DefaultLiveWindow,
		idleThreshold:   DefaultIdleThreshold,
		orphanThreshold: DefaultOrphanThreshold,
		newKey:          uuid.NewString,
		running:         make(map[string]struct{}),
		batches:         make(map[string]*model.BatchStatus),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.slots = semaphore.NewWeighted(int64(s.maxConcurrent))
	return s
}

// StartCrawl validates domain, creates its SearchRecord and ProgressState,
// launches the crawl in the background and returns the progress key.
// maxPages of zero applies the service default.
func (s *Service) StartCrawl(ctx context.Context, domain string, owner *model.Identity, maxPages int) (string, error) {
	normalized, err := model.ValidateDomain(domain)
	if err != nil {
		return "", err
	}
	if s.ctx.Err() != nil {
		return "", ErrShuttingDown
	}
	if !s.slots.TryAcquire(1) {
		return "", ErrTooManyCrawls
	}

	req, err := s.begin(ctx, normalized, owner, maxPages)
	if err != nil {
		s.slots.Release(1)
		return "", err
	}

	s.tasks.Go(func() error {
		defer s.slots.Release(1)
		s.run(req)
		return nil
	})

	return req.ProgressKey, nil
}

// begin creates the persistent records of one crawl and registers it as
// running. The caller must hand the request to run.
func (s *Service) begin(ctx context.Context, domain string, owner *model.Identity, maxPages int) (crawler.Request, error) {
	if maxPages <= 0 {
		maxPages = s.defaultMaxPages
	}

	id, err := s.store.CreateSearch(ctx, domain, owner.OwnerName(), time.Now())
	if err != nil {
		return crawler.Request{}, fmt.Errorf("failed to create search record: %w", err)
	}

	key := s.newKey()
	if err := s.tracker.Start(ctx, key, domain, owner, &id); err != nil {
		if _, ferr := s.store.FinishSearch(context.WithoutCancel(ctx), id, database.Finalization{
			Status:     model.StatusFallbackFailed,
			Message:    "crawl could not start",
			FinishedAt: time.Now(),
		}); ferr != nil {
			s.logger.Warn("failed to close unstarted search", "search_id", id, "error", ferr)
		}
		return crawler.Request{}, fmt.Errorf("failed to create progress: %w", err)
	}

	s.mu.Lock()
	s.running[key] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("crawl started", "domain", domain, "key", key, "search_id", id, "owner", owner.OwnerName())
	return crawler.Request{Domain: domain, ProgressKey: key, SearchID: &id, MaxPages: maxPages}, nil
}

// run executes req on the runner and unregisters it when done.
func (s *Service) run(req crawler.Request) *crawler.Result {
	defer func() {
		s.mu.Lock()
		delete(s.running, req.ProgressKey)
		s.mu.Unlock()
	}()

	return s.runner.Run(s.ctx, req)
}

// isRunning reports whether this process runs the crawl of key.
func (s *Service) isRunning(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[key]
	return ok
}

// GetProgress returns a snapshot of a crawl's progress.
func (s *Service) GetProgress(ctx context.Context, key string) (*model.ProgressState, error) {
	return s.tracker.Get(ctx, key)
}

// StopCrawl asks the crawl of key to stop. Only its owner or an administrator
// may stop it. Stopping a finished crawl is a no-op.
//
// When no goroutine of this process runs the crawl, its SearchRecord is
// finalized here with the pages recorded so far.
func (s *Service) StopCrawl(ctx context.Context, key string, requester *model.Identity) error {
	state, err := s.tracker.Get(ctx, key)
	if err != nil {
		return err
	}
	if !canStop(state, requester) {
		s.logger.Warn("unauthorized stop request", "key", key, "requester", requester.OwnerName())
		return ErrUnauthorized
	}

	if err := s.tracker.RequestStop(ctx, key); err != nil {
		return err
	}

	if state.SearchID != nil && !s.isRunning(key) {
		latest, err := s.tracker.Get(ctx, key)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("stopped by request after %d URLs", latest.Count)
		if err := s.tracker.FinalizeSearch(ctx, *state.SearchID, latest.URLs, model.StatusStopped, msg); err != nil {
			return err
		}
	}
	return nil
}

// canStop reports whether requester may stop the crawl described by state.
// Anonymous crawls can be stopped by anonymous requesters.
func canStop(state *model.ProgressState, requester *model.Identity) bool {
	if requester != nil && requester.Admin {
		return true
	}
	return state.Owner == requester.OwnerName()
}

// ListActive lists crawls updated within the active window, optionally
// restricted to one owner.
func (s *Service) ListActive(ctx context.Context, owner string) ([]model.ProgressSummary, error) {
	return s.tracker.ListActive(ctx, owner, s.activeWindow, s.liveWindow)
}

// ReapOrphans runs one maintenance sweep. It is idempotent.
func (s *Service) ReapOrphans(ctx context.Context) (model.ReapResult, error) {
	return s.tracker.Sweep(ctx, s.idleThreshold, s.orphanThreshold)
}

// History lists SearchRecords newest first.
func (s *Service) History(ctx context.Context, filter database.SearchFilter) ([]*model.SearchRecord, error) {
	return s.store.ListSearches(ctx, filter)
}

// GetSearch returns one SearchRecord.
func (s *Service) GetSearch(ctx context.Context, id int64) (*model.SearchRecord, error) {
	rec, err := s.store.GetSearch(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %d", ErrSearchNotFound, id)
	}
	return rec, nil
}

// SetSaved sets the curation flag of a SearchRecord.
func (s *Service) SetSaved(ctx context.Context, id int64, saved bool) error {
	ok, err := s.store.SetSaved(ctx, id, saved)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrSearchNotFound, id)
	}
	return nil
}

// Wait blocks until every crawl and batch started so far has finished.
func (s *Service) Wait() error {
	return s.tasks.Wait()
}

// Shutdown cancels in-flight crawls and waits for them to persist their
// terminal state, or until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.tasks.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.Join(ctx.Err(), fmt.Errorf("%d crawls still running", s.runningCount()))
	}
}

func (s *Service) runningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}
