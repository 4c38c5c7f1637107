package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/crawlscope/internal/model"
)

const (
	// DefaultBatchMaxDomains is the largest accepted batch.
	DefaultBatchMaxDomains = 10

	// DefaultBatchLimit is the per-domain page limit when none is given.
	DefaultBatchLimit = 50

	// DefaultBatchMaxLimit caps the per-domain page limit.
	DefaultBatchMaxLimit = 500

	// DefaultBatchPause separates consecutive domains of a batch.
	DefaultBatchPause = 2 * time.Second

	// maxOutcomeErrorLength truncates per-domain error messages.
	maxOutcomeErrorLength = 100
)

// StartBatch validates domains and crawls the valid ones one after another
// in the background. It returns the initial batch status, whose Key is
// polled with GetBatch.
//
// More than the configured maximum of domains, or an empty list, is
// rejected. Domains failing validation are dropped and listed in Rejected;
// if none remain, ErrNoValidDomains is returned. perDomainLimit of zero or
// less applies the default; larger values are capped.
func (s *Service) StartBatch(_ context.Context, domains []string, perDomainLimit int, owner *model.Identity) (*model.BatchStatus, error) {
	if len(domains) > s.batchMaxDomains {
		return nil, fmt.Errorf("%w: %d given, at most %d allowed", ErrBatchTooLarge, len(domains), s.batchMaxDomains)
	}

	valid, rejected := partitionDomains(domains)
	if len(valid) == 0 {
		return nil, ErrNoValidDomains
	}
	if s.ctx.Err() != nil {
		return nil, ErrShuttingDown
	}
	if !s.slots.TryAcquire(1) {
		return nil, ErrTooManyCrawls
	}

	batch := &model.BatchStatus{
		Key:            s.newKey(),
		Owner:          owner.OwnerName(),
		Domains:        valid,
		Rejected:       rejected,
		PerDomainLimit: s.clampLimit(perDomainLimit),
		TotalDomains:   len(valid),
		StartedAt:      time.Now().UTC(),
		Results:        make(map[string]model.DomainOutcome, len(valid)),
	}

	s.mu.Lock()
	s.batches[batch.Key] = batch
	snapshot := batch.Clone()
	s.mu.Unlock()

	s.logger.Info("batch started",
		"key", batch.Key,
		"domains", len(valid),
		"rejected", len(rejected),
		"per_domain_limit", batch.PerDomainLimit,
	)

	s.tasks.Go(func() error {
		defer s.slots.Release(1)
		s.runBatch(batch, owner)
		return nil
	})

	return snapshot, nil
}

// GetBatch returns a snapshot of a batch.
func (s *Service) GetBatch(key string) (*model.BatchStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, key)
	}
	return b.Clone(), nil
}

// runBatch crawls each domain of batch in order.
func (s *Service) runBatch(batch *model.BatchStatus, owner *model.Identity) {
	for i, domain := range batch.Domains {
		s.updateBatch(batch, func(b *model.BatchStatus) {
			b.CurrentDomain = domain
			b.CompletedDomains = i
		})

		outcome := s.crawlBatchDomain(domain, owner, batch.PerDomainLimit)

		s.updateBatch(batch, func(b *model.BatchStatus) {
			b.Results[domain] = outcome
			b.CompletedDomains = i + 1
		})

		if i < len(batch.Domains)-1 && !sleep(s.ctx, s.batchPause) {
			s.failRemaining(batch, batch.Domains[i+1:], "batch interrupted by shutdown")
			break
		}
	}

	s.updateBatch(batch, func(b *model.BatchStatus) {
		now := time.Now().UTC()
		b.Done = true
		b.CurrentDomain = ""
		b.CompletedDomains = b.TotalDomains
		b.FinishedAt = &now
	})

	s.logger.Info("batch finished", "key", batch.Key, "domains", batch.TotalDomains)
}

// crawlBatchDomain runs one domain of a batch to completion. A failure or
// panic is confined to this domain's outcome.
func (s *Service) crawlBatchDomain(domain string, owner *model.Identity, limit int) (outcome model.DomainOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("batch domain panicked", "domain", domain, "panic", r)
			outcome = errorOutcome(fmt.Errorf("unexpected failure: %v", r))
		}
	}()

	if s.ctx.Err() != nil {
		return errorOutcome(ErrShuttingDown)
	}

	req, err := s.begin(s.ctx, domain, owner, limit)
	if err != nil {
		return errorOutcome(err)
	}

	result := s.run(req)
	return model.DomainOutcome{
		URLsCount: len(result.URLs),
		Status:    result.Status.String(),
		SearchID:  *req.SearchID,
	}
}

// failRemaining records an error outcome for domains that never ran.
func (s *Service) failRemaining(batch *model.BatchStatus, domains []string, reason string) {
	s.updateBatch(batch, func(b *model.BatchStatus) {
		for _, d := range domains {
			b.Results[d] = model.DomainOutcome{Status: model.OutcomeError, Error: reason}
		}
	})
}

// updateBatch applies fn to the live batch status under the service lock.
func (s *Service) updateBatch(batch *model.BatchStatus, fn func(b *model.BatchStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(batch)
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.batchDefault
	}
	return min(limit, s.batchMax)
}

// partitionDomains normalizes and validates raw input, dropping duplicates.
func partitionDomains(raw []string) (valid, rejected []string) {
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		d, err := model.ValidateDomain(r)
		if err != nil {
			rejected = append(rejected, r)
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		valid = append(valid, d)
	}
	return valid, rejected
}

func errorOutcome(err error) model.DomainOutcome {
	msg := err.Error()
	if len(msg) > maxOutcomeErrorLength {
		msg = msg[:maxOutcomeErrorLength]
	}
	return model.DomainOutcome{Status: model.OutcomeError, Error: msg}
}

// sleep waits for d or until ctx is done, reporting whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
