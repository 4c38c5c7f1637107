package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/crawlscope/internal/database"
	"github.com/nao1215/crawlscope/internal/model"
)

// Tracker persists and reads per-crawl progress.
type Tracker struct {
	store  *database.Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates a Tracker over store.
func NewTracker(store *database.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start creates the progress row for a new crawl.
func (t *Tracker) Start(ctx context.Context, key, domain string, owner *model.Identity, searchID *int64) error {
	return t.store.CreateProgress(ctx, key, domain, owner.OwnerName(), searchID, t.now())
}

// RecordPage appends pageURL to the crawl's accumulated URLs if absent and
// moves count, last URL and the update timestamp with it.
//
// It returns ErrProgressFinished when the row is already done (stopped,
// finished or reaped) and ErrNotFound when it does not exist.
func (t *Tracker) RecordPage(ctx context.Context, key, pageURL string) error {
	applied, err := t.store.AppendProgressURL(ctx, key, pageURL, t.now())
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	state, err := t.store.GetProgress(ctx, key)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return ErrProgressFinished
}

// IsStopRequested reports whether the crawl must stop before its next fetch.
// It is true once the row is done, and for rows that do not exist.
// A read failure is logged and reported as false so that a flaky store does
// not end a healthy crawl.
func (t *Tracker) IsStopRequested(ctx context.Context, key string) bool {
	state, err := t.store.GetProgress(ctx, key)
	if err != nil {
		t.logger.Warn("failed to read stop flag", "key", key, "error", err)
		return false
	}
	return state == nil || state.Done
}

// Finish marks the crawl done. Accumulated URLs are left as they are.
func (t *Tracker) Finish(ctx context.Context, key string) error {
	_, err := t.store.MarkProgressDone(ctx, key, false, t.now())
	return err
}

// RequestStop asks a crawl to stop. The flip is a single guarded UPDATE, so
// repeated calls and calls racing a natural completion are no-ops.
func (t *Tracker) RequestStop(ctx context.Context, key string) error {
	applied, err := t.store.MarkProgressDone(ctx, key, true, t.now())
	if err != nil {
		return err
	}
	if applied {
		t.logger.Info("stop requested", "key", key)
		return nil
	}

	state, err := t.store.GetProgress(ctx, key)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// FinalizeSearch writes the terminal state of a SearchRecord. Finalizing an
// already-finished record is a no-op.
func (t *Tracker) FinalizeSearch(ctx context.Context, searchID int64, urls []string, status model.CrawlStatus, message string) error {
	_, err := t.store.FinishSearch(ctx, searchID, database.Finalization{
		URLs:       urls,
		Status:     status,
		Message:    message,
		FinishedAt: t.now(),
	})
	return err
}

// Get returns a snapshot of the progress row for key.
func (t *Tracker) Get(ctx context.Context, key string) (*model.ProgressState, error) {
	state, err := t.store.GetProgress(ctx, key)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return state, nil
}

// ListActive returns crawls updated within window, optionally restricted to
// owner, each flagged as really active when updated within liveWindow.
func (t *Tracker) ListActive(ctx context.Context, owner string, window, liveWindow time.Duration) ([]model.ProgressSummary, error) {
	now := t.now()
	states, err := t.store.ListProgress(ctx, database.ProgressFilter{
		Owner:        owner,
		UpdatedSince: now.Add(-window),
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]model.ProgressSummary, 0, len(states))
	for _, s := range states {
		summaries = append(summaries, s.Summary(now, liveWindow))
	}
	return summaries, nil
}
