package model

import "time"

// OutcomeError is the DomainOutcome status of a domain whose crawl could not
// run to a terminal CrawlStatus.
const OutcomeError = "error"

// DomainOutcome is the per-domain entry of a batch result map.
// Status is a CrawlStatus name, or OutcomeError.
type DomainOutcome struct {
	URLsCount int    `json:"urls_count"`
	Status    string `json:"status"`
	SearchID  int64  `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchStatus is the in-memory view of a multi-domain batch.
// It lives only as long as the process that runs the batch.
type BatchStatus struct {
	Key              string                   `json:"key"`
	Owner            string                   `json:"owner,omitempty"`
	Domains          []string                 `json:"domains"`
	Rejected         []string                 `json:"rejected,omitempty"`
	PerDomainLimit   int                      `json:"per_domain_limit"`
	CurrentDomain    string                   `json:"current_domain,omitempty"`
	CompletedDomains int                      `json:"completed_domains"`
	TotalDomains     int                      `json:"total_domains"`
	Done             bool                     `json:"done"`
	StartedAt        time.Time                `json:"started_at"`
	FinishedAt       *time.Time               `json:"finished_at,omitempty"`
	Results          map[string]DomainOutcome `json:"results"`
}

// Clone returns a deep copy so callers can read it without holding locks.
func (b *BatchStatus) Clone() *BatchStatus {
	c := *b
	c.Domains = append([]string(nil), b.Domains...)
	c.Rejected = append([]string(nil), b.Rejected...)
	c.Results = make(map[string]DomainOutcome, len(b.Results))
	for k, v := range b.Results {
		c.Results[k] = v
	}
	if b.FinishedAt != nil {
		t := *b.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
