package report

import (
	"encoding/json"
	"io"

	"github.com/websearchtool/sitecrawl/internal/model"
)

// JSONWriter renders reports as JSON for other tools.
type JSONWriter struct {
	baseWriter

	indent         bool
	indentPrefix   string
	indentString   string
	version        string
	discoveredOnly bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent pretty-prints with the given prefix and indent.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion wraps full reports in an envelope carrying the generator
// version.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// WithDiscoveredOnly writes only the domain -> depth -> URLs map.
func WithDiscoveredOnly() JSONWriterOption {
	return func(w *JSONWriter) {
		w.discoveredOnly = true
	}
}

// NewJSONWriter returns a JSONWriter writing compact JSON to output.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Envelope is the JSON document written when a version is configured.
type Envelope struct {
	Version string             `json:"version"`
	Report  *model.CrawlReport `json:"report"`
}

// Write implements Writer.
func (w *JSONWriter) Write(report *model.CrawlReport) (int, error) {
	switch {
	case w.discoveredOnly:
		return w.writeJSON(report.Discovered())
	case w.version != "":
		return w.writeJSON(Envelope{Version: w.version, Report: report})
	default:
		return w.writeJSON(report)
	}
}

// WriteDiff implements Writer.
func (w *JSONWriter) WriteDiff(diff *Diff) (int, error) {
	return w.writeJSON(diff)
}

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
	return w.output.Write(append(data, '\n'))
}
