package crawler

import (
	"net/url"
	"strings"

	"github.com/nao1215/crawlscope/internal/model"
)

// MaxPending is the pending-queue size beyond which new links are refused.
const MaxPending = 1000

// skippedPrefixes are href forms that never lead to a crawlable page.
var skippedPrefixes = []string{"#", "mailto:", "javascript:", "tel:", "ftp:", "data:"}

// Frontier is a same-domain BFS work queue with a visited set.
// It is owned by a single crawl and is not safe for concurrent use.
type Frontier struct {
	queue   []string
	queued  map[string]struct{}
	visited map[string]struct{}
}

// NewFrontier creates a Frontier seeded with seedURL.
func NewFrontier(seedURL string) *Frontier {
	f := &Frontier{
		queued:  make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
	f.Enqueue(seedURL)
	return f
}

// Next pops the oldest pending URL that has not been visited yet.
func (f *Frontier) Next() (string, bool) {
	for len(f.queue) > 0 {
		next := f.queue[0]
		f.queue[0] = ""
		f.queue = f.queue[1:]

		key := normalizeURL(next)
		delete(f.queued, key)
		if _, seen := f.visited[key]; seen {
			continue
		}
		return next, true
	}
	return "", false
}

// MarkVisited records pageURL as visited.
func (f *Frontier) MarkVisited(pageURL string) {
	f.visited[normalizeURL(pageURL)] = struct{}{}
}

// Visited reports whether pageURL has been visited.
func (f *Frontier) Visited(pageURL string) bool {
	_, ok := f.visited[normalizeURL(pageURL)]
	return ok
}

// Enqueue appends pageURL unless it is already visited, already pending, or
// the queue is full. It reports whether the URL was added.
func (f *Frontier) Enqueue(pageURL string) bool {
	if len(f.queue) >= MaxPending {
		return false
	}
	key := normalizeURL(pageURL)
	if _, ok := f.visited[key]; ok {
		return false
	}
	if _, ok := f.queued[key]; ok {
		return false
	}
	f.queued[key] = struct{}{}
	f.queue = append(f.queue, pageURL)
	return true
}

// Pending returns the number of queued URLs.
func (f *Frontier) Pending() int {
	return len(f.queue)
}

// VisitedCount returns the number of visited URLs.
func (f *Frontier) VisitedCount() int {
	return len(f.visited)
}

// ShouldAccept reports whether candidateURL may enter the queue of a crawl
// of baseDomain. It rejects fragment-only and non-web schemes, anything that
// is not an absolute http(s) URL, hosts that differ from baseDomain once both
// are lower-cased and stripped of "www.", and every candidate once the queue
// holds MaxPending entries.
func (f *Frontier) ShouldAccept(candidateURL, baseDomain string) bool {
	candidate := strings.TrimSpace(candidateURL)
	lower := strings.ToLower(candidate)

	for _, prefix := range skippedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	if !strings.HasPrefix(lower, "http") {
		return false
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return false
	}
	if model.NormalizeHost(u.Hostname()) != model.NormalizeHost(baseDomain) {
		return false
	}

	return len(f.queue) < MaxPending
}

// normalizeURL is the deduplication key of a URL.
//
// Design decision: We normalize URLs because:
//  1. Same page can have different URL representations
//  2. Fragment (#anchor) doesn't change content
//  3. http://example.com and http://example.com/ are the same page
func normalizeURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}
