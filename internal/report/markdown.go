package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/crawlscope/internal/model"
)

// MarkdownWriter outputs crawl state as GitHub-flavored Markdown.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation. Tables, alerts and mermaid pie charts come for free and stay
// well-formed no matter what the crawled URLs contain.
type MarkdownWriter struct {
	baseWriter

	// maxURLs limits the URL list of WriteSearch and WriteProgress.
	// Zero means no limit.
	maxURLs int
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithMaxURLs limits how many URLs are listed per crawl.
func WithMaxURLs(n int) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		if n >= 0 {
			w.maxURLs = n
		}
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteSearch implements Writer.
func (w *MarkdownWriter) WriteSearch(rec *model.SearchRecord) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Report: " + rec.Domain)
	md.PlainText("")

	rows := [][]string{
		{"Search ID", strconv.FormatInt(rec.ID, 10)},
		{"Domain", "`" + rec.Domain + "`"},
		{"Status", statusLabel(rec.Status.String())},
		{"Started", rec.StartedAt.Format(timeLayout)},
		{"Finished", finishedText(rec.FinishedAt)},
		{"URLs", strconv.Itoa(len(rec.URLs))},
		{"Saved", strconv.FormatBool(rec.Saved)},
	}
	if rec.Owner != "" {
		rows = append(rows, []string{"Owner", rec.Owner})
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	w.writeStatusAlert(md, rec.Status, rec.Message)
	w.writeURLs(md, rec.URLs)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteHistory implements Writer.
func (w *MarkdownWriter) WriteHistory(recs []*model.SearchRecord) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl History")
	md.PlainText("")

	if len(recs) == 0 {
		md.PlainText("No crawls recorded.")
		md.PlainText("")
		w.writeFooter(md)
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(recs))
	for i, r := range recs {
		saved := ""
		if r.Saved {
			saved = "★"
		}
		rows[i] = []string{
			strconv.FormatInt(r.ID, 10),
			r.Domain,
			statusLabel(r.Status.String()),
			strconv.Itoa(len(r.URLs)),
			r.StartedAt.Format(timeLayout),
			saved,
			truncateString(r.Message, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Domain", "Status", "URLs", "Started", "Saved", "Message"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writePieChart(md, "Crawl Status Distribution", countStatuses(historyStatuses(recs)))
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteProgress implements Writer.
func (w *MarkdownWriter) WriteProgress(state *model.ProgressState) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Progress: " + state.Domain)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Key", "`" + state.Key + "`"},
			{"Pages", strconv.Itoa(state.Count)},
			{"Last URL", valueOrDash(state.LastURL)},
			{"Updated", state.UpdatedAt.Format(timeLayout)},
			{"State", progressStateText(state)},
		},
	})
	md.PlainText("")

	switch {
	case state.StopRequested:
		md.Importantf("The crawl was stopped on request after %d pages.", state.Count)
		md.PlainText("")
	case state.Done:
		md.Note("The crawl has finished.")
		md.PlainText("")
	}

	w.writeURLs(md, state.URLs)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteActive implements Writer.
func (w *MarkdownWriter) WriteActive(list []model.ProgressSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Active Crawls")
	md.PlainText("")

	if len(list) == 0 {
		md.PlainText("No crawls were updated recently.")
		md.PlainText("")
		w.writeFooter(md)
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(list))
	stale := 0
	for i, p := range list {
		live := "yes"
		if !p.IsReallyActive {
			live = "no"
			if !p.Done {
				stale++
			}
		}
		rows[i] = []string{
			"`" + p.Key + "`",
			p.Domain,
			valueOrDash(p.Owner),
			strconv.Itoa(p.Count),
			live,
			p.UpdatedAt.Format(timeLayout),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Key", "Domain", "Owner", "Pages", "Live", "Updated"},
		Rows:   rows,
	})
	md.PlainText("")

	if stale > 0 {
		md.Warningf("%d crawl(s) stopped reporting progress and will be reaped.", stale)
		md.PlainText("")
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteBatch implements Writer.
func (w *MarkdownWriter) WriteBatch(batch *model.BatchStatus) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Batch Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Key", "`" + batch.Key + "`"},
			{"Progress", strconv.Itoa(batch.CompletedDomains) + "/" + strconv.Itoa(batch.TotalDomains)},
			{"Per-domain limit", strconv.Itoa(batch.PerDomainLimit)},
			{"Current domain", valueOrDash(batch.CurrentDomain)},
			{"Started", batch.StartedAt.Format(timeLayout)},
			{"Finished", finishedText(batch.FinishedAt)},
		},
	})
	md.PlainText("")

	if len(batch.Rejected) > 0 {
		md.Warningf("%d domain(s) were rejected as invalid.", len(batch.Rejected))
		md.PlainText("")
		md.BulletList(batch.Rejected...)
		md.PlainText("")
	}

	md.H2("Domains")
	md.PlainText("")

	rows := make([][]string, 0, len(batch.Domains))
	for _, d := range batch.Domains {
		o, ok := batch.Results[d]
		if !ok {
			rows = append(rows, []string{d, "Pending", "-", "-", "-"})
			continue
		}
		id := "-"
		if o.SearchID != 0 {
			id = strconv.FormatInt(o.SearchID, 10)
		}
		rows = append(rows, []string{d, statusLabel(o.Status), strconv.Itoa(o.URLsCount), id, valueOrDash(o.Error)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Domain", "Status", "URLs", "Search ID", "Error"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writePieChart(md, "Domain Outcomes", countStatuses(batchStatuses(batch)))
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeStatusAlert writes an alert matching the severity of a terminal status.
func (w *MarkdownWriter) writeStatusAlert(md *markdown.Markdown, status model.CrawlStatus, message string) {
	if message == "" {
		message = statusLabel(status.String())
	}

	switch status {
	case model.StatusSucceeded:
		md.Tip(message)
	case model.StatusFallbackSucceeded:
		md.Warningf("Traversal was blocked. %s", message)
	case model.StatusFallbackFailed:
		md.Cautionf("Traversal was blocked and the sitemap fallback failed. %s", message)
	case model.StatusStopped, model.StatusReaped:
		md.Importantf("%s", message)
	default:
		md.Note("The crawl is still running.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of a status distribution.
// Nothing is written for an empty distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, title string, counts []statusCount) {
	if len(counts) == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle(title),
		piechart.WithShowData(true),
	)
	for _, c := range counts {
		chart.LabelAndIntValue(statusLabel(c.status), uint64(c.count))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeURLs lists urls, honoring maxURLs.
func (w *MarkdownWriter) writeURLs(md *markdown.Markdown, urls []string) {
	md.H2("URLs")
	md.PlainText("")

	if len(urls) == 0 {
		md.PlainText("No URLs were collected.")
		md.PlainText("")
		return
	}

	shown := urls
	if w.maxURLs > 0 && len(urls) > w.maxURLs {
		shown = urls[:w.maxURLs]
	}
	md.BulletList(shown...)
	md.PlainText("")

	if len(shown) < len(urls) {
		md.PlainTextf("*%d more URLs not shown*", len(urls)-len(shown))
		md.PlainText("")
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by [crawlscope](https://github.com/nao1215/crawlscope)*")
}

func finishedText(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timeLayout)
}

func progressStateText(state *model.ProgressState) string {
	switch {
	case state.StopRequested:
		return "stopped"
	case state.Done:
		return "done"
	default:
		return "running"
	}
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
