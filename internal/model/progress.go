package model

import "time"

// ProgressState mirrors an in-flight crawl at page granularity.
//
// Count always equals len(URLs). Once Done is true, Count and URLs are frozen.
// StopRequested distinguishes an operator stop from a natural completion;
// both set Done.
type ProgressState struct {
	Key           string    `json:"key"`
	Domain        string    `json:"domain"`
	Owner         string    `json:"owner,omitempty"`
	Count         int       `json:"count"`
	LastURL       string    `json:"last_url,omitempty"`
	URLs          []string  `json:"urls"`
	Done          bool      `json:"done"`
	StopRequested bool      `json:"stop_requested"`
	SearchID      *int64    `json:"search_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Summary builds the listing view of the progress state. A crawl counts as
// really active when it is not done and was updated within liveWindow of now.
func (p *ProgressState) Summary(now time.Time, liveWindow time.Duration) ProgressSummary {
	return ProgressSummary{
		Key:            p.Key,
		Domain:         p.Domain,
		Owner:          p.Owner,
		Count:          p.Count,
		LastURL:        p.LastURL,
		Done:           p.Done,
		UpdatedAt:      p.UpdatedAt,
		IsReallyActive: !p.Done && now.Sub(p.UpdatedAt) <= liveWindow,
	}
}

// ProgressSummary is one row of the active-crawl listing.
type ProgressSummary struct {
	Key            string    `json:"key"`
	Domain         string    `json:"domain"`
	Owner          string    `json:"owner,omitempty"`
	Count          int       `json:"count"`
	LastURL        string    `json:"last_url,omitempty"`
	Done           bool      `json:"done"`
	UpdatedAt      time.Time `json:"updated_at"`
	IsReallyActive bool      `json:"is_really_active"`
}

// ReapResult reports how many rows an orphan sweep touched.
type ReapResult struct {
	ProgressReaped    int `json:"progress_reaped"`
	SearchesFinalized int `json:"searches_finalized"`
}
