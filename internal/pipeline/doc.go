// Package pipeline is the entry point for starting, observing and stopping
// crawls.
//
// Service ties the crawl engine to the persistence store. Each crawl creates
// a SearchRecord and a ProgressState, then runs on its own goroutine that is
// tracked by an errgroup.Group, so Shutdown can cancel in-flight crawls and
// wait for them to persist their terminal state.
//
// Design decision: Crawls are fire-and-forget from the caller's point of
// view, but never detached from the Service:
//  1. Every crawl goroutine is owned by the Service's errgroup
//  2. A semaphore bounds concurrent crawls without blocking StartCrawl
//  3. Cancellation flows through one service context
//
// Batches run their domains strictly one after another with a fixed pause
// between them. Batch status lives in memory only.
package pipeline
