// Package reaper runs periodic orphan and crash recovery for crawls.
//
// Each tick reconciles progress rows with their SearchRecords, reaps
// progress that stopped reporting, and finalizes SearchRecords no running
// crawl references. Ticks never overlap, and every sweep is idempotent, so a
// tick racing a crawl that finishes at the same moment is harmless.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nao1215/crawlscope/internal/model"
)

const (
	// DefaultSchedule runs a sweep every five minutes.
	DefaultSchedule = "@every 5m"

	// DefaultIdleThreshold is how long a running crawl may go without a
	// progress update before it is reaped.
	DefaultIdleThreshold = 10 * time.Minute

	// DefaultOrphanThreshold is how old an unfinished SearchRecord with no
	// running crawl must be before it is finalized.
	DefaultOrphanThreshold = time.Hour
)

// Sweeper performs one maintenance pass. progress.Tracker implements it.
type Sweeper interface {
	Sweep(ctx context.Context, idle, orphanAge time.Duration) (model.ReapResult, error)
}

// Reaper schedules sweeps with a cron expression.
type Reaper struct {
	sweeper   Sweeper
	schedule  string
	idle      time.Duration
	orphanAge time.Duration
	logger    *slog.Logger

	parser cron.Parser
	cron   *cron.Cron

	mu      sync.Mutex
	entryID cron.EntryID
	runs    int
	last    model.ReapResult
}

// Option configures a Reaper.
type Option func(*Reaper)

// WithSchedule sets the cron expression. Standard five-field expressions and
// descriptors such as "@every 5m" or "@hourly" are accepted.
func WithSchedule(spec string) Option {
	return func(r *Reaper) {
		r.schedule = spec
	}
}

// WithIdleThreshold sets how long a crawl may be silent before it is reaped.
func WithIdleThreshold(d time.Duration) Option {
	return func(r *Reaper) {
		r.idle = d
	}
}

// WithOrphanThreshold sets the minimum age of orphaned SearchRecords.
func WithOrphanThreshold(d time.Duration) Option {
	return func(r *Reaper) {
		r.orphanAge = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) {
		r.logger = logger
	}
}

// New creates a Reaper. It does nothing until Start is called.
func New(sweeper Sweeper, opts ...Option) *Reaper {
	r := &Reaper{
		sweeper:   sweeper,
		schedule:  DefaultSchedule,
		idle:      DefaultIdleThreshold,
		orphanAge: DefaultOrphanThreshold,
		logger:    slog.Default(),
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	for _, opt := range opts {
		opt(r)
	}
	logger := cronLogger{logger: r.logger}
	r.cron = cron.New(
		cron.WithParser(r.parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return r
}

// cronLogger adapts slog to cron.Logger. Scheduler chatter goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// RunOnce performs a single sweep immediately.
func (r *Reaper) RunOnce(ctx context.Context) (model.ReapResult, error) {
	result, err := r.sweeper.Sweep(ctx, r.idle, r.orphanAge)

	r.mu.Lock()
	r.runs++
	r.last = result
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("reaper sweep failed", "error", err)
		return result, err
	}
	if result.ProgressReaped > 0 || result.SearchesFinalized > 0 {
		r.logger.Info("reaper sweep",
			"progress_reaped", result.ProgressReaped,
			"searches_finalized", result.SearchesFinalized,
		)
	}
	return result, nil
}

// Start schedules sweeps until ctx is cancelled or Stop is called.
func (r *Reaper) Start(ctx context.Context) error {
	schedule, err := r.parser.Parse(r.schedule)
	if err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", r.schedule, err)
	}

	id := r.cron.Schedule(schedule, cron.FuncJob(func() {
		_, _ = r.RunOnce(ctx) //nolint:errcheck // logged in RunOnce
	}))

	r.mu.Lock()
	r.entryID = id
	r.mu.Unlock()

	r.cron.Start()
	r.logger.Info("reaper started",
		"schedule", r.schedule,
		"next_run", schedule.Next(time.Now()).Format(time.RFC3339),
	)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

// NextRun returns the next scheduled sweep, or the zero time when the reaper
// is not running.
func (r *Reaper) NextRun() time.Time {
	r.mu.Lock()
	id := r.entryID
	r.mu.Unlock()

	if id == 0 {
		return time.Time{}
	}
	return r.cron.Entry(id).Next
}

// Stats returns the number of completed sweeps and the last result.
func (r *Reaper) Stats() (runs int, last model.ReapResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, r.last
}
