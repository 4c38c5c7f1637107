package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/crawlscope/internal/antibot"
	"github.com/nao1215/crawlscope/internal/crawler"
	"github.com/nao1215/crawlscope/internal/database"
	"github.com/nao1215/crawlscope/internal/model"
	"github.com/nao1215/crawlscope/internal/progress"
	"github.com/nao1215/crawlscope/internal/sitemap"
	"github.com/nao1215/crawlscope/internal/transport"
)

var filler = strings.Repeat("Plain page text used by the fake site for every document. ", 3)

func htmlPage(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><p>" + filler + "</p>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// fakeWeb serves pages by URL. A URL listed in gates blocks until its
// channel is closed.
type fakeWeb struct {
	mu    sync.Mutex
	pages map[string]string
	gates map[string]chan struct{}
	hits  map[string]int
}

func newFakeWeb(pages map[string]string) *fakeWeb {
	return &fakeWeb{pages: pages, gates: map[string]chan struct{}{}, hits: map[string]int{}}
}

func (w *fakeWeb) gate(rawURL string) chan struct{} {
	ch := make(chan struct{})
	w.mu.Lock()
	w.gates[rawURL] = ch
	w.mu.Unlock()
	return ch
}

func (w *fakeWeb) Fetch(ctx context.Context, rawURL string, _ map[string]string) (*model.FetchResult, error) {
	w.mu.Lock()
	w.hits[rawURL]++
	gate := w.gates[rawURL]
	body, ok := w.pages[rawURL]
	w.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return &model.FetchResult{URL: rawURL, StatusCode: 404, BodyText: "not found"}, nil
	}
	return &model.FetchResult{URL: rawURL, StatusCode: 200, BodyText: body, BodyBytes: []byte(body)}, nil
}

type testEnv struct {
	service *Service
	store   *database.Store
	tracker *progress.Tracker
	web     *fakeWeb
}

func setupService(t *testing.T, web *fakeWeb, opts ...Option) *testEnv {
	t.Helper()

	store, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	tracker := progress.NewTracker(store)
	headers := antibot.NewHeaderProvider()
	var fetcher transport.Fetcher = web
	resolver := sitemap.NewResolver(fetcher, headers, nil)
	engine := crawler.NewEngine(fetcher, headers, nil, resolver, tracker, crawler.WithBaseDelay(0))

	base := []Option{WithBatchPause(0)}
	svc := NewService(store, tracker, engine, append(base, opts...)...)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svc.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})

	return &testEnv{service: svc, store: store, tracker: tracker, web: web}
}

func smallSite() map[string]string {
	return map[string]string{
		"https://example.com":   htmlPage("/a", "/b"),
		"https://example.com/a": htmlPage(),
		"https://example.com/b": htmlPage(),
	}
}

func waitDone(t *testing.T, env *testEnv, key string) *model.ProgressState {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, err := env.service.GetProgress(context.Background(), key)
		if err != nil {
			t.Fatalf("get progress: %v", err)
		}
		if state.Done {
			return state
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("crawl %s did not finish", key)
	return nil
}

func TestStartCrawl(t *testing.T) {
	t.Parallel()

	t.Run("crawls in the background and finalizes the search", func(t *testing.T) {
		t.Parallel()

		env := setupService(t, newFakeWeb(smallSite()))
		ctx := context.Background()

		key, err := env.service.StartCrawl(ctx, "HTTPS://www.Example.com/", &model.Identity{Name: "alice"}, 0)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := env.service.Wait(); err != nil {
			t.Fatalf("wait: %v", err)
		}

		state, err := env.service.GetProgress(ctx, key)
		if err != nil {
			t.Fatalf("get progress: %v", err)
		}
		if !state.Done || state.StopRequested || state.Count != 3 || state.Domain != "example.com" {
			t.Errorf("unexpected progress %+v", state)
		}

		rec, err := env.service.GetSearch(ctx, *state.SearchID)
		if err != nil {
			t.Fatalf("get search: %v", err)
		}
		if rec.Status != model.StatusSucceeded || len(rec.URLs) != 3 || rec.FinishedAt == nil {
			t.Errorf("unexpected search %+v", rec)
		}
		if rec.Owner != "alice" {
			t.Errorf("expected owner alice, got %q", rec.Owner)
		}
	})

	t.Run("applies page cap", func(t *testing.T) {
		t.Parallel()

		env := setupService(t, newFakeWeb(smallSite()))
		key, err := env.service.StartCrawl(context.Background(), "example.com", nil, 2)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		_ = env.service.Wait()

		if state := waitDone(t, env, key); state.Count != 2 {
			t.Errorf("expected 2 pages, got %d", state.Count)
		}
	})

	t.Run("rejects invalid domains synchronously", func(t *testing.T) {
		t.Parallel()

		env := setupService(t, newFakeWeb(nil))
		for _, d := range []string{"", "exa mple.com", "-bad.com", "bad_domain.com"} {
			if _, err := env.service.StartCrawl(context.Background(), d, nil, 0); err == nil {
				t.Errorf("expected %q to be rejected", d)
			}
		}

		recs, _ := env.service.History(context.Background(), database.SearchFilter{})
		if len(recs) != 0 {
			t.Errorf("expected no search records, got %d", len(recs))
		}
	})

	t.Run("enforces the concurrency limit", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb(smallSite())
		release := web.gate("https://example.com")
		env := setupService(t, web, WithMaxConcurrentCrawls(1))

		if _, err := env.service.StartCrawl(context.Background(), "example.com", nil, 0); err != nil {
			t.Fatalf("first start: %v", err)
		}
		if _, err := env.service.StartCrawl(context.Background(), "example.org", nil, 0); !errors.Is(err, ErrTooManyCrawls) {
			t.Errorf("expected ErrTooManyCrawls, got %v", err)
		}
		close(release)
		_ = env.service.Wait()

		if _, err := env.service.StartCrawl(context.Background(), "example.com", nil, 0); err != nil {
			t.Errorf("expected a free slot after completion, got %v", err)
		}
	})
}

func TestStopCrawl(t *testing.T) {
	t.Parallel()

	t.Run("owner stops a running crawl", func(t *testing.T) {
		t.Parallel()

		web := newFakeWeb(smallSite())
		release := web.gate("https://example.com/a")
		env := setupService(t, web)
		ctx := context.Background()
		alice := &model.Identity{Name: "alice"}

		key, err := env.service.StartCrawl(ctx, "example.com", alice, 0)
		if err != nil {
			t.Fatalf("start: %v", err)
		}

		// Wait until the seed page is recorded and /a is in flight.
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if state, _ := env.service.GetProgress(ctx, key); state != nil && state.Count == 1 {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}

		if err := env.service.StopCrawl(ctx, key, alice); err != nil {
			t.Fatalf("stop: %v", err)
		}
		close(release)
		_ = env.service.Wait()

		state, _ := env.service.GetProgress(ctx, key)
		if !state.StopRequested || state.Count != 1 {
			t.Errorf("expected stop with 1 page kept, got %+v", state)
		}
		rec, _ := env.service.GetSearch(ctx, *state.SearchID)
		if rec.Status != model.StatusStopped || len(rec.URLs) != 1 {
			t.Errorf("expected stopped search with 1 URL, got %+v", rec)
		}
	})

	t.Run("authorization", func(t *testing.T) {
		t.Parallel()

		env := setupService(t, newFakeWeb(nil))
		ctx := context.Background()

		id, _ := env.store.CreateSearch(ctx, "example.com", "alice", time.Now())
		if err := env.tracker.Start(ctx, "k", "example.com", &model.Identity{Name: "alice"}, &id); err != nil {
			t.Fatalf("start progress: %v", err)
		}

		if err := env.service.StopCrawl(ctx, "k", &model.Identity{Name: "bob"}); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized for bob, got %v", err)
		}
		if err := env.service.StopCrawl(ctx, "k", nil); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized for anonymous, got %v", err)
		}
		if state, _ := env.service.GetProgress(ctx, "k"); state.Done {
			t.Fatal("unauthorized stop must not change state")
		}

		if err := env.service.StopCrawl(ctx, "k", &model.Identity{Name: "root", Admin: true}); err != nil {
			t.Errorf("expected admin to stop, got %v", err)
		}
		if err := env.service.StopCrawl(ctx, "k", &model.Identity{Name: "alice"}); err != nil {
			t.Errorf("expected repeated stop to succeed, got %v", err)
		}

		rec, _ := env.service.GetSearch(ctx, id)
		if rec.Status != model.StatusStopped || rec.FinishedAt == nil {
			t.Errorf("expected crawl without a running task to be finalized, got %+v", rec)
		}

		if err := env.service.StopCrawl(ctx, "missing", nil); !errors.Is(err, progress.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestCanStop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		owner     string
		requester *model.Identity
		want      bool
	}{
		{"owner", "alice", &model.Identity{Name: "alice"}, true},
		{"other user", "alice", &model.Identity{Name: "bob"}, false},
		{"admin", "alice", &model.Identity{Name: "root", Admin: true}, true},
		{"anonymous crawl anonymous requester", "", nil, true},
		{"anonymous crawl named requester", "", &model.Identity{Name: "bob"}, false},
		{"owned crawl anonymous requester", "alice", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := canStop(&model.ProgressState{Owner: tt.owner}, tt.requester); got != tt.want {
				t.Errorf("canStop() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListActiveAndReap(t *testing.T) {
	t.Parallel()

	env := setupService(t, newFakeWeb(nil), WithReapThresholds(time.Minute, time.Minute))
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour)
	id, _ := env.store.CreateSearch(ctx, "example.com", "alice", old)
	_ = env.store.CreateProgress(ctx, "stale", "example.com", "alice", &id, old)
	_ = env.store.CreateProgress(ctx, "live", "example.org", "bob", nil, time.Now())

	active, err := env.service.ListActive(ctx, "")
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 entries, got %+v", active)
	}
	for _, a := range active {
		if want := a.Key == "live"; a.IsReallyActive != want {
			t.Errorf("%s: IsReallyActive = %v, want %v", a.Key, a.IsReallyActive, want)
		}
	}

	result, err := env.service.ReapOrphans(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if result.ProgressReaped != 1 || result.SearchesFinalized != 1 {
		t.Errorf("unexpected reap result %+v", result)
	}

	again, err := env.service.ReapOrphans(ctx)
	if err != nil || again != (model.ReapResult{}) {
		t.Errorf("expected idempotent reap, got %+v, %v", again, err)
	}

	rec, _ := env.service.GetSearch(ctx, id)
	if rec.Status != model.StatusReaped {
		t.Errorf("expected reaped search, got %s", rec.Status)
	}
}

func TestHistoryAndSaved(t *testing.T) {
	t.Parallel()

	env := setupService(t, newFakeWeb(nil))
	ctx := context.Background()

	first, _ := env.store.CreateSearch(ctx, "a.com", "alice", time.Now().Add(-time.Minute))
	_, _ = env.store.CreateSearch(ctx, "b.com", "bob", time.Now())

	if err := env.service.SetSaved(ctx, first, true); err != nil {
		t.Fatalf("set saved: %v", err)
	}
	if err := env.service.SetSaved(ctx, 999, true); !errors.Is(err, ErrSearchNotFound) {
		t.Errorf("expected ErrSearchNotFound, got %v", err)
	}

	all, _ := env.service.History(ctx, database.SearchFilter{})
	if len(all) != 2 || all[0].Domain != "b.com" {
		t.Errorf("expected newest first, got %+v", all)
	}
	saved, _ := env.service.History(ctx, database.SearchFilter{SavedOnly: true})
	if len(saved) != 1 || saved[0].ID != first {
		t.Errorf("expected only the saved record, got %+v", saved)
	}
	if _, err := env.service.GetSearch(ctx, 999); !errors.Is(err, ErrSearchNotFound) {
		t.Errorf("expected ErrSearchNotFound, got %v", err)
	}
}

func TestShutdownStopsCrawls(t *testing.T) {
	t.Parallel()

	web := newFakeWeb(smallSite())
	web.gate("https://example.com/a")
	env := setupService(t, web)
	ctx := context.Background()

	key, err := env.service.StartCrawl(ctx, "example.com", nil, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if state, _ := env.service.GetProgress(ctx, key); state != nil && state.Count == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := env.service.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	state, _ := env.service.GetProgress(ctx, key)
	rec, _ := env.service.GetSearch(ctx, *state.SearchID)
	if rec.Status != model.StatusStopped || rec.FinishedAt == nil {
		t.Errorf("expected interrupted crawl to be finalized as stopped, got %+v", rec)
	}
	if !strings.Contains(rec.Message, "shutdown") {
		t.Errorf("expected shutdown message, got %q", rec.Message)
	}

	if _, err := env.service.StartCrawl(ctx, "example.com", nil, 0); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}
