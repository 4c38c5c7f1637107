package report

import (
	"io"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/crawlscope/internal/model"
)

// Writer renders crawl state for a human or a tool.
//
// Design decision: One interface covers every view the CLI prints, so a
// command picks the output format once and never branches on it again.
type Writer interface {
	// WriteSearch renders one SearchRecord including its URLs.
	WriteSearch(rec *model.SearchRecord) (int, error)

	// WriteHistory renders a list of SearchRecords without their URLs.
	WriteHistory(recs []*model.SearchRecord) (int, error)

	// WriteProgress renders the live state of one crawl.
	WriteProgress(state *model.ProgressState) (int, error)

	// WriteActive renders the active-crawl listing.
	WriteActive(list []model.ProgressSummary) (int, error)

	// WriteBatch renders a batch and its per-domain outcomes.
	WriteBatch(batch *model.BatchStatus) (int, error)
}

// MultiWriter writes every view to several Writers, for example the
// terminal and a report file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteSearch implements Writer.
func (m *MultiWriter) WriteSearch(rec *model.SearchRecord) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteSearch(rec) })
}

// WriteHistory implements Writer.
func (m *MultiWriter) WriteHistory(recs []*model.SearchRecord) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteHistory(recs) })
}

// WriteProgress implements Writer.
func (m *MultiWriter) WriteProgress(state *model.ProgressState) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteProgress(state) })
}

// WriteActive implements Writer.
func (m *MultiWriter) WriteActive(list []model.ProgressSummary) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteActive(list) })
}

// WriteBatch implements Writer.
func (m *MultiWriter) WriteBatch(batch *model.BatchStatus) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteBatch(batch) })
}

// each calls fn for every writer, summing bytes and stopping on the first
// error.
func (m *MultiWriter) each(fn func(Writer) (int, error)) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := fn(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusOrder is the display order of crawl statuses in summaries.
var statusOrder = []string{
	model.StatusSucceeded.String(),
	model.StatusFallbackSucceeded.String(),
	model.StatusFallbackFailed.String(),
	model.StatusStopped.String(),
	model.StatusReaped.String(),
	model.StatusRunning.String(),
	model.OutcomeError,
}

var titleCaser = cases.Title(language.English)

// statusLabel turns a status name such as "fallback_succeeded" into
// "Fallback Succeeded".
func statusLabel(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}

// statusCount is one entry of a status distribution.
type statusCount struct {
	status string
	count  int
}

// countStatuses tallies names in statusOrder order, omitting zero counts.
// Unknown names are appended in first-seen order.
func countStatuses(names []string) []statusCount {
	counts := make(map[string]int, len(names))
	var extra []string
	for _, n := range names {
		if _, seen := counts[n]; !seen && !slices.Contains(statusOrder, n) {
			extra = append(extra, n)
		}
		counts[n]++
	}

	var out []statusCount
	for _, s := range append(append([]string(nil), statusOrder...), extra...) {
		if c := counts[s]; c > 0 {
			out = append(out, statusCount{status: s, count: c})
		}
	}
	return out
}

// historyStatuses returns the status name of every record.
func historyStatuses(recs []*model.SearchRecord) []string {
	names := make([]string, 0, len(recs))
	for _, r := range recs {
		names = append(names, r.Status.String())
	}
	return names
}

// batchStatuses returns the outcome status of every finished domain, in
// domain order.
func batchStatuses(b *model.BatchStatus) []string {
	names := make([]string, 0, len(b.Results))
	for _, d := range b.Domains {
		if o, ok := b.Results[d]; ok {
			names = append(names, o.Status)
		}
	}
	return names
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

const timeLayout = "2006-01-02 15:04:05 MST"
