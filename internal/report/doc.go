// Package report renders crawl state for terminals, documents and tools.
//
// This package contains writers for different output formats:
//   - SimpleWriter: plain text for terminal display
//   - MarkdownWriter: GitHub-flavored Markdown with status pie charts
//   - JSONWriter: the model types as JSON for tool integration
//
// Every writer renders the same five views: a single SearchRecord, the
// search history, the progress of one crawl, the active-crawl listing and a
// batch. Writers implement the Writer interface and can be combined with
// MultiWriter.
package report
