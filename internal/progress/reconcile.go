package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/crawlscope/internal/database"
	"github.com/nao1215/crawlscope/internal/model"
)

// Reconcile repairs divergence between progress rows and the SearchRecords
// they link to, and returns the number of rows repaired.
//
//   - A done progress row whose SearchRecord is unfinished finalizes the
//     record, filling its URLs from the progress row when it has none.
//   - A running progress row whose SearchRecord is finished is marked done.
//
// A second call right after a first one changes nothing.
func (t *Tracker) Reconcile(ctx context.Context) (int, error) {
	repaired := 0

	done, err := t.store.ListDoneProgressWithOpenSearch(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range done {
		status, message := reconciledOutcome(p)
		applied, err := t.store.FinishSearch(ctx, *p.SearchID, database.Finalization{
			URLs:             p.URLs,
			Status:           status,
			Message:          message,
			FinishedAt:       t.now(),
			KeepExistingURLs: true,
		})
		if err != nil {
			return repaired, err
		}
		if applied {
			repaired++
			t.logger.Info("finalized search from progress", "key", p.Key, "search_id", *p.SearchID, "urls", p.Count)
		}
	}

	open, err := t.store.ListOpenProgressWithFinishedSearch(ctx)
	if err != nil {
		return repaired, err
	}
	for _, p := range open {
		applied, err := t.store.MarkProgressDone(ctx, p.Key, false, t.now())
		if err != nil {
			return repaired, err
		}
		if applied {
			repaired++
			t.logger.Info("closed progress of finished search", "key", p.Key)
		}
	}

	return repaired, nil
}

// ReapStale marks done every running progress row not updated within idle
// and finalizes its linked SearchRecord. It returns the number of progress
// rows reaped.
func (t *Tracker) ReapStale(ctx context.Context, idle time.Duration) (int, error) {
	result, err := t.reapStale(ctx, idle)
	return result.ProgressReaped, err
}

// Sweep runs Reconcile, ReapStale(idle) and then finalizes SearchRecords
// older than orphanAge that no running crawl references.
func (t *Tracker) Sweep(ctx context.Context, idle, orphanAge time.Duration) (model.ReapResult, error) {
	var result model.ReapResult

	reconciled, err := t.Reconcile(ctx)
	if err != nil {
		return result, fmt.Errorf("reconcile: %w", err)
	}
	result.SearchesFinalized += reconciled

	stale, err := t.reapStale(ctx, idle)
	result.ProgressReaped += stale.ProgressReaped
	result.SearchesFinalized += stale.SearchesFinalized
	if err != nil {
		return result, fmt.Errorf("reap stale progress: %w", err)
	}

	orphans, err := t.store.ListOrphanSearches(ctx, t.now().Add(-orphanAge))
	if err != nil {
		return result, fmt.Errorf("list orphan searches: %w", err)
	}
	for _, rec := range orphans {
		applied, err := t.store.FinishSearch(ctx, rec.ID, database.Finalization{
			Status:           model.StatusReaped,
			Message:          fmt.Sprintf("crawl abandoned: no running crawl after %s", orphanAge),
			FinishedAt:       t.now(),
			KeepExistingURLs: true,
		})
		if err != nil {
			return result, fmt.Errorf("finalize orphan search: %w", err)
		}
		if applied {
			result.SearchesFinalized++
			t.logger.Info("finalized orphan search", "search_id", rec.ID, "domain", rec.Domain)
		}
	}

	return result, nil
}

func (t *Tracker) reapStale(ctx context.Context, idle time.Duration) (model.ReapResult, error) {
	var result model.ReapResult

	stale, err := t.store.ListStaleProgress(ctx, t.now().Add(-idle))
	if err != nil {
		return result, err
	}

	for _, p := range stale {
		applied, err := t.store.MarkProgressDone(ctx, p.Key, false, t.now())
		if err != nil {
			return result, err
		}
		if !applied {
			// Finished concurrently; its own finalization owns the record.
			continue
		}
		result.ProgressReaped++
		t.logger.Info("reaped stale progress", "key", p.Key, "domain", p.Domain, "last_update", p.UpdatedAt)

		if p.SearchID == nil {
			continue
		}
		finalized, err := t.store.FinishSearch(ctx, *p.SearchID, database.Finalization{
			URLs:             p.URLs,
			Status:           model.StatusReaped,
			Message:          fmt.Sprintf("crawl stopped reporting for %s; kept %d URLs", idle, p.Count),
			FinishedAt:       t.now(),
			KeepExistingURLs: true,
		})
		if err != nil {
			return result, err
		}
		if finalized {
			result.SearchesFinalized++
		}
	}

	return result, nil
}

// reconciledOutcome picks the status recorded for a search finalized from
// its progress row.
func reconciledOutcome(p *model.ProgressState) (model.CrawlStatus, string) {
	if p.StopRequested {
		return model.StatusStopped, fmt.Sprintf("stopped by request after %d URLs", p.Count)
	}
	return model.StatusReaped, fmt.Sprintf("finalized from progress with %d URLs", p.Count)
}
