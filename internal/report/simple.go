package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/websearchtool/sitecrawl/internal/model"
)

const ruleWidth = 70

// SimpleWriter renders plain text for the terminal.
type SimpleWriter struct {
	baseWriter

	// summaryOnly omits the URL listings.
	summaryOnly bool

	// verbose adds per-domain timings and counters.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithSummaryOnly prints counts without listing URLs.
func WithSummaryOnly(summaryOnly bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.summaryOnly = summaryOnly
	}
}

// WithVerbose adds per-domain timings and counters.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter returns a SimpleWriter writing to output.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	for _, res := range report.SortedDomains() {
		if res != nil {
			w.writeDomain(&sb, res)
		}
	}
	w.writeDropped(&sb, report.DroppedSeeds)
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                           SITECRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Run ID:     %s\n", report.ID)
	fmt.Fprintf(sb, "Started:    %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:   %s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(sb, "Seeds:      %d\n", len(report.Seeds))
	fmt.Fprintf(sb, "Domains:    %d (%d failed)\n", len(report.Domains), report.FailedDomains())
	fmt.Fprintf(sb, "URLs found: %d\n", report.TotalURLs())
	if report.Cancelled {
		sb.WriteString("Status:     CANCELLED (partial results)\n")
	} else {
		sb.WriteString("Status:     Complete\n")
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeDomain(sb *strings.Builder, res *model.DomainResult) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "%s  (%d URLs)\n", res.Domain, res.Discovered.Total())
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")

	if res.Error != "" {
		fmt.Fprintf(sb, "  [!] %s\n", res.Error)
	}
	if w.verbose {
		fmt.Fprintf(sb, "  Seed:           %s\n", res.Seed)
		fmt.Fprintf(sb, "  Pages admitted: %d\n", res.PagesAdmitted)
		fmt.Fprintf(sb, "  Fetch failures: %d\n", res.FetchFailures)
		fmt.Fprintf(sb, "  Duration:       %s\n", res.Duration().Round(time.Millisecond))
	}

	if !w.summaryOnly {
		for _, depth := range res.Discovered.Depths() {
			urls := res.Discovered[depth].Sorted()
			fmt.Fprintf(sb, "  depth %d (%d)\n", depth, len(urls))
			for _, u := range urls {
				fmt.Fprintf(sb, "    %s\n", u)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeDropped(sb *strings.Builder, dropped []model.DroppedSeed) {
	if len(dropped) == 0 {
		return
	}
	sb.WriteString("Dropped seeds:\n")
	for _, d := range dropped {
		fmt.Fprintf(sb, "  - %s: %s\n", d.URL, d.Reason)
	}
	sb.WriteString("\n")
}

// WriteDiff implements Writer.
func (w *SimpleWriter) WriteDiff(diff *Diff) (int, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Domain:    %s\n", diff.Domain)
	fmt.Fprintf(&sb, "Compared:  %s -> %s\n", diff.OldRunID, diff.NewRunID)
	fmt.Fprintf(&sb, "Added:     %d\n", len(diff.Added))
	fmt.Fprintf(&sb, "Removed:   %d\n", len(diff.Removed))
	fmt.Fprintf(&sb, "Moved:     %d\n", len(diff.Moved))
	fmt.Fprintf(&sb, "Unchanged: %d\n", diff.Unchanged)

	if !diff.HasChanges() {
		sb.WriteString("\nNo changes.\n")
		return io.WriteString(w.output, sb.String())
	}

	sb.WriteString("\n")
	for _, u := range diff.Added {
		fmt.Fprintf(&sb, "+ %s\n", u)
	}
	for _, u := range diff.Removed {
		fmt.Fprintf(&sb, "- %s\n", u)
	}
	for _, m := range diff.Moved {
		fmt.Fprintf(&sb, "~ %s (depth %d -> %d)\n", m.URL, m.OldDepth, m.NewDepth)
	}
	return io.WriteString(w.output, sb.String())
}
