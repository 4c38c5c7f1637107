// Package model defines the core data structures shared by the crawl engine,
// the persistence store and the report writers.
//
// This package contains the following main types:
//   - SearchRecord: one logical crawl attempt for a domain
//   - ProgressState: the high-frequency mirror of an in-flight crawl
//   - FetchResult: the transport-neutral outcome of one HTTP fetch
//   - BatchStatus: the in-memory state of a multi-domain batch
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, progress, pipeline and report packages all need
// these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output.
package model
