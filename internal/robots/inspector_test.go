package robots

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/crawlscope/internal/antibot"
	"github.com/nao1215/crawlscope/internal/model"
	"github.com/nao1215/crawlscope/internal/transport"
)

// staticFetcher serves one robots.txt body for every request.
func staticFetcher(status int, body string, gotURL *string) transport.Fetcher {
	return transport.FetcherFunc(func(_ context.Context, rawURL string, _ map[string]string) (*model.FetchResult, error) {
		if gotURL != nil {
			*gotURL = rawURL
		}
		return &model.FetchResult{URL: rawURL, StatusCode: status, BodyText: body, BodyBytes: []byte(body)}, nil
	})
}

func TestInspect(t *testing.T) {
	t.Parallel()

	headers := antibot.NewHeaderProvider()

	tests := []struct {
		name         string
		status       int
		body         string
		wantDelay    int
		wantHints    []string
		wantDisallow bool
	}{
		{
			name:      "empty robots uses default delay",
			status:    200,
			body:      "",
			wantDelay: 1,
		},
		{
			name:      "wildcard crawl delay",
			status:    200,
			body:      "User-agent: *\nCrawl-delay: 4\nDisallow: /admin\n",
			wantDelay: 4,
		},
		{
			name:      "maximum across applicable groups",
			status:    200,
			body:      "User-agent: *\nCrawl-delay: 2\n\nUser-agent: Mozilla\nCrawl-delay: 7\n",
			wantDelay: 7,
		},
		{
			name:      "maximum includes groups for other bots",
			status:    200,
			body:      "User-agent: Bingbot\nCrawl-delay: 30\n\nUser-agent: *\nDisallow:\n",
			wantDelay: 30,
		},
		{
			name:      "directives are case-insensitive",
			status:    200,
			body:      "USER-AGENT: *\nCRAWL-DELAY: 5 # be gentle\n",
			wantDelay: 5,
		},
		{
			name:         "disallow root for another bot",
			status:       200,
			body:         "User-agent: GPTBot\nDisallow: /\n\nUser-agent: *\nDisallow:\n",
			wantDelay:    1,
			wantDisallow: true,
		},
		{
			name:      "delay below one second is floored",
			status:    200,
			body:      "User-agent: *\nCrawl-delay: 0.5\n",
			wantDelay: 1,
		},
		{
			name:   "sitemaps in first-seen order without duplicates",
			status: 200,
			body: "Sitemap: https://example.com/b.xml\nUser-agent: *\nDisallow:\n" +
				"Sitemap: https://example.com/a.xml\nSitemap: https://example.com/b.xml\n",
			wantDelay: 1,
			wantHints: []string{"https://example.com/b.xml", "https://example.com/a.xml"},
		},
		{
			name:         "disallow root",
			status:       200,
			body:         "User-agent: *\nDisallow: /\n",
			wantDelay:    1,
			wantDisallow: true,
		},
		{
			name:      "disallow subpath is not disallow all",
			status:    200,
			body:      "User-agent: *\nDisallow: /private\n",
			wantDelay: 1,
		},
		{
			name:      "non-200 yields defaults",
			status:    404,
			body:      "User-agent: *\nCrawl-delay: 9\nDisallow: /\n",
			wantDelay: 1,
		},
		{
			name:      "server error yields defaults",
			status:    503,
			body:      "",
			wantDelay: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			inspector := NewInspector(staticFetcher(tt.status, tt.body, nil), headers)
			delay, hints, disallow := inspector.Inspect(context.Background(), "example.com")

			if delay != tt.wantDelay {
				t.Errorf("expected delay %d, got %d", tt.wantDelay, delay)
			}
			if strings.Join(hints, ",") != strings.Join(tt.wantHints, ",") {
				t.Errorf("expected hints %v, got %v", tt.wantHints, hints)
			}
			if disallow != tt.wantDisallow {
				t.Errorf("expected disallowsAll=%v, got %v", tt.wantDisallow, disallow)
			}
		})
	}
}

func TestInspectFetchFailure(t *testing.T) {
	t.Parallel()

	failing := transport.FetcherFunc(func(context.Context, string, map[string]string) (*model.FetchResult, error) {
		return nil, transport.ErrConnection
	})

	delay, hints, disallow := NewInspector(failing, antibot.NewHeaderProvider()).Inspect(context.Background(), "example.com")
	if delay != DefaultCrawlDelaySeconds || hints != nil || disallow {
		t.Errorf("expected defaults, got %d %v %v", delay, hints, disallow)
	}
}

func TestInspectURLAndTimeout(t *testing.T) {
	t.Parallel()

	t.Run("builds robots url from scheme and domain", func(t *testing.T) {
		t.Parallel()

		var got string
		NewInspector(staticFetcher(200, "", &got), antibot.NewHeaderProvider(), WithScheme("http")).
			Inspect(context.Background(), "example.com")
		if got != "http://example.com/robots.txt" {
			t.Errorf("unexpected robots url %q", got)
		}
	})

	t.Run("slow server times out to defaults", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
				_, _ = w.Write([]byte("User-agent: *\nCrawl-delay: 9\n"))
			}
		}))
		defer server.Close()

		client, err := transport.NewClient()
		if err != nil {
			t.Fatalf("client: %v", err)
		}

		var sawTimeout bool
		fetcher := transport.FetcherFunc(func(ctx context.Context, rawURL string, h map[string]string) (*model.FetchResult, error) {
			res, err := client.Fetch(ctx, server.URL+"/robots.txt", h)
			sawTimeout = errors.Is(err, transport.ErrTimeout)
			return res, err
		})

		delay, _, _ := NewInspector(fetcher, antibot.NewHeaderProvider(), WithTimeout(50*time.Millisecond)).
			Inspect(context.Background(), "example.com")
		if delay != DefaultCrawlDelaySeconds {
			t.Errorf("expected default delay, got %d", delay)
		}
		if !sawTimeout {
			t.Error("expected the fetch to time out")
		}
	})
}
