package report

import (
	"io"

	"github.com/websearchtool/sitecrawl/internal/model"
)

// Writer renders crawl results in one output format.
type Writer interface {
	// Write renders a full crawl report.
	Write(report *model.CrawlReport) (int, error)

	// WriteDiff renders the comparison of two runs for one domain.
	WriteDiff(diff *Diff) (int, error)
}

// MultiWriter fans a report out to several Writers, stopping at the first
// error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter returns a Writer that writes to every w in order.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write implements Writer.
func (m *MultiWriter) Write(report *model.CrawlReport) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.Write(report) })
}

// WriteDiff implements Writer.
func (m *MultiWriter) WriteDiff(diff *Diff) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteDiff(diff) })
}

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

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
