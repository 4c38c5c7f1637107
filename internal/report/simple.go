package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/crawlscope/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs plain text for terminal display.
//
// Design decision: We use plain text with ASCII rules rather than ANSI
// colors so the output reads the same in every terminal and when piped
// into a file or another tool.
type SimpleWriter struct {
	baseWriter

	// verbose lists every URL instead of only the counts.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists every collected URL.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteSearch implements Writer.
func (w *SimpleWriter) WriteSearch(rec *model.SearchRecord) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "CRAWL REPORT")
	fmt.Fprintf(&sb, "Domain:    %s\n", rec.Domain)
	fmt.Fprintf(&sb, "Search ID: %d\n", rec.ID)
	fmt.Fprintf(&sb, "Status:    %s\n", statusLabel(rec.Status.String()))
	if rec.Message != "" {
		fmt.Fprintf(&sb, "Message:   %s\n", rec.Message)
	}
	fmt.Fprintf(&sb, "Started:   %s\n", rec.StartedAt.Format(timeLayout))
	fmt.Fprintf(&sb, "Finished:  %s\n", finishedText(rec.FinishedAt))
	if rec.Owner != "" {
		fmt.Fprintf(&sb, "Owner:     %s\n", rec.Owner)
	}
	fmt.Fprintf(&sb, "URLs:      %d\n", len(rec.URLs))
	sb.WriteString("\n")

	w.writeURLs(&sb, rec.URLs)
	writeRule(&sb, "=")

	return w.output.Write([]byte(sb.String()))
}

// WriteHistory implements Writer.
func (w *SimpleWriter) WriteHistory(recs []*model.SearchRecord) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "CRAWL HISTORY")
	if len(recs) == 0 {
		sb.WriteString("  No crawls recorded\n\n")
		writeRule(&sb, "=")
		return w.output.Write([]byte(sb.String()))
	}

	for _, r := range recs {
		saved := " "
		if r.Saved {
			saved = "*"
		}
		fmt.Fprintf(&sb, "%s %6d  %-30s %-20s %5d URLs  %s\n",
			saved,
			r.ID,
			truncateString(r.Domain, 30),
			statusLabel(r.Status.String()),
			len(r.URLs),
			r.StartedAt.Format(timeLayout),
		)
		if w.verbose && r.Message != "" {
			fmt.Fprintf(&sb, "          %s\n", r.Message)
		}
	}
	sb.WriteString("\n")

	writeSection(&sb, "STATUS SUMMARY")
	writeCounts(&sb, countStatuses(historyStatuses(recs)))
	fmt.Fprintf(&sb, "  TOTAL: %d crawls\n\n", len(recs))
	writeRule(&sb, "=")

	return w.output.Write([]byte(sb.String()))
}

// WriteProgress implements Writer.
func (w *SimpleWriter) WriteProgress(state *model.ProgressState) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "CRAWL PROGRESS")
	fmt.Fprintf(&sb, "Key:      %s\n", state.Key)
	fmt.Fprintf(&sb, "Domain:   %s\n", state.Domain)
	fmt.Fprintf(&sb, "State:    %s\n", progressStateText(state))
	fmt.Fprintf(&sb, "Pages:    %d\n", state.Count)
	if state.LastURL != "" {
		fmt.Fprintf(&sb, "Last URL: %s\n", state.LastURL)
	}
	fmt.Fprintf(&sb, "Updated:  %s\n", state.UpdatedAt.Format(timeLayout))
	sb.WriteString("\n")

	w.writeURLs(&sb, state.URLs)
	writeRule(&sb, "=")

	return w.output.Write([]byte(sb.String()))
}

// WriteActive implements Writer.
func (w *SimpleWriter) WriteActive(list []model.ProgressSummary) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "ACTIVE CRAWLS")
	if len(list) == 0 {
		sb.WriteString("  No crawls were updated recently\n\n")
		writeRule(&sb, "=")
		return w.output.Write([]byte(sb.String()))
	}

	for _, p := range list {
		marker := "[+]"
		switch {
		case p.Done:
			marker = "[=]"
		case !p.IsReallyActive:
			marker = "[?]"
		}
		fmt.Fprintf(&sb, "%s %s  %-30s %5d pages  %s\n",
			marker, p.Key, truncateString(p.Domain, 30), p.Count, p.UpdatedAt.Format(timeLayout))
	}
	sb.WriteString("\n")
	sb.WriteString("  [+] live  [?] silent  [=] done\n\n")
	writeRule(&sb, "=")

	return w.output.Write([]byte(sb.String()))
}

// WriteBatch implements Writer.
func (w *SimpleWriter) WriteBatch(batch *model.BatchStatus) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "BATCH REPORT")
	fmt.Fprintf(&sb, "Key:      %s\n", batch.Key)
	fmt.Fprintf(&sb, "Progress: %d/%d domains\n", batch.CompletedDomains, batch.TotalDomains)
	fmt.Fprintf(&sb, "Limit:    %d pages per domain\n", batch.PerDomainLimit)
	if batch.CurrentDomain != "" {
		fmt.Fprintf(&sb, "Current:  %s\n", batch.CurrentDomain)
	}
	if batch.Done {
		fmt.Fprintf(&sb, "Finished: %s\n", finishedText(batch.FinishedAt))
	}
	sb.WriteString("\n")

	if len(batch.Rejected) > 0 {
		writeSection(&sb, "REJECTED")
		for _, r := range batch.Rejected {
			fmt.Fprintf(&sb, "  [x] %s\n", r)
		}
		sb.WriteString("\n")
	}

	writeSection(&sb, "DOMAINS")
	for _, d := range batch.Domains {
		o, ok := batch.Results[d]
		if !ok {
			fmt.Fprintf(&sb, "  %-30s pending\n", truncateString(d, 30))
			continue
		}
		fmt.Fprintf(&sb, "  %-30s %-20s %5d URLs\n", truncateString(d, 30), statusLabel(o.Status), o.URLsCount)
		if o.Error != "" {
			fmt.Fprintf(&sb, "    Error: %s\n", o.Error)
		}
	}
	sb.WriteString("\n")

	writeCounts(&sb, countStatuses(batchStatuses(batch)))
	sb.WriteString("\n")
	writeRule(&sb, "=")

	return w.output.Write([]byte(sb.String()))
}

// writeURLs lists urls in verbose mode and is silent otherwise.
func (w *SimpleWriter) writeURLs(sb *strings.Builder, urls []string) {
	if !w.verbose || len(urls) == 0 {
		return
	}

	writeSection(sb, "URLS")
	for _, u := range urls {
		fmt.Fprintf(sb, "  %s\n", u)
	}
	sb.WriteString("\n")
}

func writeBanner(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	writeRule(sb, "=")
	pad := max((ruleWidth-len(title))/2, 0)
	sb.WriteString(strings.Repeat(" ", pad) + title + "\n")
	writeRule(sb, "=")
	sb.WriteString("\n")
}

func writeSection(sb *strings.Builder, title string) {
	writeRule(sb, "-")
	sb.WriteString(title + "\n")
	writeRule(sb, "-")
	sb.WriteString("\n")
}

func writeRule(sb *strings.Builder, char string) {
	sb.WriteString(strings.Repeat(char, ruleWidth))
	sb.WriteString("\n")
}

func writeCounts(sb *strings.Builder, counts []statusCount) {
	for _, c := range counts {
		fmt.Fprintf(sb, "  %-20s %d\n", statusLabel(c.status)+":", c.count)
	}
}
