package model

import (
	"strings"
	"time"
)

// CrawlStatus is the lifecycle state of a SearchRecord.
//
// Design decision: We use iota-based constants and map them to stable strings
// for storage. The stored string, not the integer, is what survives restarts,
// so reordering the constants never corrupts existing databases.
type CrawlStatus int

const (
	// StatusRunning indicates the crawl has not reached a terminal state yet.
	StatusRunning CrawlStatus = iota

	// StatusSucceeded indicates the frontier was exhausted or the page cap was reached.
	StatusSucceeded

	// StatusFallbackSucceeded indicates traversal was blocked and the sitemap
	// supplied at least one URL.
	StatusFallbackSucceeded

	// StatusFallbackFailed indicates traversal was blocked and no sitemap URL
	// could be recovered.
	StatusFallbackFailed

	// StatusStopped indicates an operator stopped the crawl.
	StatusStopped

	// StatusReaped indicates the crawl was finalized by the reaper because its
	// owning process stopped reporting progress.
	StatusReaped
)

var crawlStatusNames = map[CrawlStatus]string{
	StatusRunning:           "running",
	StatusSucceeded:         "succeeded",
	StatusFallbackSucceeded: "fallback_succeeded",
	StatusFallbackFailed:    "fallback_failed",
	StatusStopped:           "stopped",
	StatusReaped:            "reaped",
}

// String returns the storage name of the status.
func (s CrawlStatus) String() string {
	if name, ok := crawlStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether the status is final.
func (s CrawlStatus) IsTerminal() bool {
	return s != StatusRunning
}

// ParseCrawlStatus converts a stored status name back into a CrawlStatus.
// Unknown names map to StatusRunning so that a record is never silently
// considered finished.
func ParseCrawlStatus(name string) CrawlStatus {
	name = strings.ToLower(strings.TrimSpace(name))
	for status, n := range crawlStatusNames {
		if n == name {
			return status
		}
	}
	return StatusRunning
}

// MarshalText implements encoding.TextMarshaler so JSON output uses the name.
func (s CrawlStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *CrawlStatus) UnmarshalText(text []byte) error {
	*s = ParseCrawlStatus(string(text))
	return nil
}

// Identity is the optional principal attached to a crawl.
// The engine never authenticates; it only compares names and the admin bit.
type Identity struct {
	// Name uniquely identifies the principal.
	Name string `json:"name"`

	// Admin grants permission to stop crawls owned by others.
	Admin bool `json:"admin,omitempty"`
}

// OwnerName returns the identity name, or "" for a nil identity.
func (i *Identity) OwnerName() string {
	if i == nil {
		return ""
	}
	return i.Name
}

// SearchRecord is one logical crawl attempt for a domain.
// FinishedAt stays nil while the crawl is running and is set at most once.
type SearchRecord struct {
	ID         int64       `json:"id"`
	Domain     string      `json:"domain"`
	Owner      string      `json:"owner,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	URLs       []string    `json:"urls"`
	Saved      bool        `json:"saved"`
	Status     CrawlStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
}

// IsFinished reports whether the record has been finalized.
func (r *SearchRecord) IsFinished() bool {
	return r.FinishedAt != nil
}

// Duration returns the elapsed crawl time, measured up to now while running.
func (r *SearchRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
