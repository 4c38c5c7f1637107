// Package database provides the SQLite persistence store for crawlscope.
//
// The store holds exactly two record kinds:
//   - search_records: one row per logical crawl attempt (model.SearchRecord)
//   - crawl_progress: the per-page mirror of an in-flight crawl (model.ProgressState)
//
// Design decision: We use SQLite (via modernc.org/sqlite) so the store is a
// single CGO-free file, and sqlx for struct scanning so row mapping lives in
// db tags instead of hand-written Scan calls.
//
// Every conditional write (appending a page, finishing a search, flipping the
// done flag) is a single UPDATE with a guard in its WHERE clause. Callers learn
// whether the write applied from the affected-row count, which is what makes
// stop requests and reaper sweeps safe to race with a running crawl.
package database
