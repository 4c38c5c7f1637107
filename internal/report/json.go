package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/crawlscope/internal/model"
)

// JSONWriter outputs crawl state as JSON for tool integration.
//
// Design decision: The model types already carry JSON tags, so this writer
// marshals them as they are with standard encoding/json instead of defining
// a parallel output schema.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteSearch implements Writer.
func (w *JSONWriter) WriteSearch(rec *model.SearchRecord) (int, error) {
	return w.writeJSON(rec)
}

// WriteHistory implements Writer. An empty history is written as [].
func (w *JSONWriter) WriteHistory(recs []*model.SearchRecord) (int, error) {
	if recs == nil {
		recs = []*model.SearchRecord{}
	}
	return w.writeJSON(recs)
}

// WriteProgress implements Writer.
func (w *JSONWriter) WriteProgress(state *model.ProgressState) (int, error) {
	return w.writeJSON(state)
}

// WriteActive implements Writer. An empty listing is written as [].
func (w *JSONWriter) WriteActive(list []model.ProgressSummary) (int, error) {
	if list == nil {
		list = []model.ProgressSummary{}
	}
	return w.writeJSON(list)
}

// WriteBatch implements Writer.
func (w *JSONWriter) WriteBatch(batch *model.BatchStatus) (int, error) {
	return w.writeJSON(batch)
}

// writeJSON marshals v and writes it followed by a newline.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
