package reaper

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/crawlscope/internal/model"
)

type fakeSweeper struct {
	mu        sync.Mutex
	calls     int
	idle      time.Duration
	orphanAge time.Duration
	result    model.ReapResult
	err       error
	panicMsg  string
}

func (f *fakeSweeper) Sweep(_ context.Context, idle, orphanAge time.Duration) (model.ReapResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.idle = idle
	f.orphanAge = orphanAge
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.result, f.err
}

func (f *fakeSweeper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunOnce(t *testing.T) {
	t.Parallel()

	t.Run("passes thresholds and records result", func(t *testing.T) {
		t.Parallel()

		sweeper := &fakeSweeper{result: model.ReapResult{ProgressReaped: 2, SearchesFinalized: 3}}
		r := New(sweeper, WithIdleThreshold(10*time.Minute), WithOrphanThreshold(2*time.Hour))

		result, err := r.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ProgressReaped != 2 || result.SearchesFinalized != 3 {
			t.Errorf("unexpected result %+v", result)
		}
		if sweeper.idle != 10*time.Minute || sweeper.orphanAge != 2*time.Hour {
			t.Errorf("thresholds not passed through: idle=%v orphan=%v", sweeper.idle, sweeper.orphanAge)
		}

		runs, last := r.Stats()
		if runs != 1 || last != result {
			t.Errorf("unexpected stats runs=%d last=%+v", runs, last)
		}
	})

	t.Run("returns sweep errors", func(t *testing.T) {
		t.Parallel()

		want := errors.New("database is locked")
		r := New(&fakeSweeper{err: want})

		if _, err := r.RunOnce(context.Background()); !errors.Is(err, want) {
			t.Errorf("expected %v, got %v", want, err)
		}
	})
}

func TestStart(t *testing.T) {
	t.Parallel()

	t.Run("runs on schedule until stopped", func(t *testing.T) {
		t.Parallel()

		sweeper := &fakeSweeper{}
		r := New(sweeper, WithSchedule("@every 1s"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := r.Start(ctx); err != nil {
			t.Fatalf("start: %v", err)
		}
		if r.NextRun().IsZero() {
			t.Error("expected a next run time")
		}

		deadline := time.Now().Add(5 * time.Second)
		for sweeper.callCount() == 0 && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
		if sweeper.callCount() == 0 {
			t.Fatal("expected at least one scheduled sweep")
		}
		r.Stop()
	})

	t.Run("rejects invalid schedule", func(t *testing.T) {
		t.Parallel()

		r := New(&fakeSweeper{}, WithSchedule("every now and then"))
		if err := r.Start(context.Background()); err == nil {
			t.Error("expected error for invalid schedule")
		}
		if !r.NextRun().IsZero() {
			t.Error("expected no next run when not started")
		}
	})
}

// lockedBuffer is a bytes.Buffer safe for the cron goroutine and the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStartLogsPanicsThroughSlog(t *testing.T) {
	t.Parallel()

	var out lockedBuffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sweeper := &fakeSweeper{panicMsg: "sweep exploded"}
	r := New(sweeper, WithSchedule("@every 1s"), WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "sweep exploded") && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	r.Stop()

	logged := out.String()
	if !strings.Contains(logged, "sweep exploded") {
		t.Fatalf("expected recovered panic in slog output, got %q", logged)
	}
	if !strings.Contains(logged, "level=ERROR") || !strings.Contains(logged, "cron: panic") {
		t.Errorf("expected an error record from cron recovery, got %q", logged)
	}
}

func TestCronLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := cronLogger{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	l.Info("wake", "now", "2026-01-02")
	l.Error(errors.New("disk full"), "skip", "entry", 3)

	got := buf.String()
	for _, want := range []string{
		`level=DEBUG msg="cron: wake" now=2026-01-02`,
		`level=ERROR msg="cron: skip" entry=3 error="disk full"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
}
