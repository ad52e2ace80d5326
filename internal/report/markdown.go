package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/websearchtool/sitecrawl/internal/model"
)

// MarkdownWriter renders reports as GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter returns a MarkdownWriter writing to output.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write implements Writer.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeAlert(md, report)
	if len(report.Domains) > 1 && report.TotalURLs() > 0 {
		w.writePieChart(md, report)
	}
	for _, res := range report.SortedDomains() {
		if res != nil {
			w.writeDomain(md, res)
		}
	}
	w.writeDropped(md, report.DroppedSeeds)
	writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	status := "Complete"
	if report.Cancelled {
		status = "Cancelled (partial results)"
	}

	md.H1("Crawl Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + report.ID + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(time.Millisecond).String()},
			{"Seeds", strconv.Itoa(len(report.Seeds))},
			{"Domains", strconv.Itoa(len(report.Domains))},
			{"URLs found", strconv.Itoa(report.TotalURLs())},
			{"Status", status},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.CrawlReport) {
	failed := report.FailedDomains()
	switch {
	case report.Cancelled:
		md.Warningf("The run was cancelled. Results for %d domain(s) are partial.", len(report.Domains))
	case failed > 0:
		md.Cautionf("%d of %d domain crawl(s) ended with an error.", failed, len(report.Domains))
	case report.TotalURLs() == 0:
		md.Importantf("No pages were fetched from %d domain(s).", len(report.Domains))
	default:
		md.Tip("Every domain was crawled without errors.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.CrawlReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("URLs per domain"),
		piechart.WithShowData(true),
	)
	for _, res := range report.SortedDomains() {
		if res == nil {
			continue
		}
		if n := res.Discovered.Total(); n > 0 {
			chart.LabelAndIntValue(res.Domain, uint64(n))
		}
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeDomain(md *markdown.Markdown, res *model.DomainResult) {
	md.H2(res.Domain)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Seed", "Pages admitted", "Fetch failures", "URLs", "Duration"},
		Rows: [][]string{{
			res.Seed,
			strconv.Itoa(res.PagesAdmitted),
			strconv.Itoa(res.FetchFailures),
			strconv.Itoa(res.Discovered.Total()),
			res.Duration().Round(time.Millisecond).String(),
		}},
	})
	md.PlainText("")

	if res.Error != "" {
		md.Cautionf("Crawl failed: %s", res.Error)
		md.PlainText("")
	}

	for _, depth := range res.Discovered.Depths() {
		urls := res.Discovered[depth].Sorted()
		md.PlainText("### Depth " + strconv.Itoa(depth) + " (" + strconv.Itoa(len(urls)) + ")")
		md.PlainText("")
		md.BulletList(urls...)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeDropped(md *markdown.Markdown, dropped []model.DroppedSeed) {
	if len(dropped) == 0 {
		return
	}
	rows := make([][]string, len(dropped))
	for i, d := range dropped {
		rows[i] = []string{d.URL, d.Reason}
	}
	md.H2("Dropped seeds")
	md.PlainText("")
	md.Table(markdown.TableSet{Header: []string{"Seed", "Reason"}, Rows: rows})
	md.PlainText("")
}

// WriteDiff implements Writer.
func (w *MarkdownWriter) WriteDiff(diff *Diff) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Comparison: " + diff.Domain)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Older run", "Newer run", "Added", "Removed", "Moved", "Unchanged"},
		Rows: [][]string{{
			"`" + diff.OldRunID + "`",
			"`" + diff.NewRunID + "`",
			strconv.Itoa(len(diff.Added)),
			strconv.Itoa(len(diff.Removed)),
			strconv.Itoa(len(diff.Moved)),
			strconv.Itoa(diff.Unchanged),
		}},
	})
	md.PlainText("")

	if !diff.HasChanges() {
		md.Note("Both runs found the same URLs at the same depths.")
		md.PlainText("")
	}
	if len(diff.Added) > 0 {
		md.H2("Added")
		md.PlainText("")
		md.BulletList(diff.Added...)
		md.PlainText("")
	}
	if len(diff.Removed) > 0 {
		md.H2("Removed")
		md.PlainText("")
		md.BulletList(diff.Removed...)
		md.PlainText("")
	}
	if len(diff.Moved) > 0 {
		rows := make([][]string, len(diff.Moved))
		for i, m := range diff.Moved {
			rows[i] = []string{m.URL, strconv.Itoa(m.OldDepth), strconv.Itoa(m.NewDepth)}
		}
		md.H2("Moved")
		md.PlainText("")
		md.Table(markdown.TableSet{Header: []string{"URL", "Old depth", "New depth"}, Rows: rows})
		md.PlainText("")
	}
	writeFooter(md)

	return len(md.String()), md.Build()
}

func writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Generated by sitecrawl*")
}
