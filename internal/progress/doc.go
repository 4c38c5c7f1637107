// Package progress tracks in-flight crawls in the persistence store.
//
// A Tracker owns the crawl_progress rows and keeps them consistent with the
// search_records rows they link to. There is no in-memory mirror: the store
// is the only source of truth, so observers in other processes see the
// same state as the crawling goroutine.
//
// # Stop semantics
//
// done and stop_requested are separate columns. A natural completion sets
// done; an operator stop sets both in a single guarded UPDATE. Because every
// page write is conditional on done=0, a stop request can never be lost to a
// concurrent page write, and no page is recorded after a stop.
//
// # Maintenance
//
// Reconcile repairs divergence between the two tables after a crash, and
// ReapStale finalizes crawls that stopped reporting. Both are idempotent and
// safe to run while crawls finish concurrently.
package progress
