// Package report renders crawl reports and run comparisons.
//
// SimpleWriter prints plain text for the terminal, JSONWriter emits the
// report (or only the discovered URL map) for other tools, and
// MarkdownWriter produces a document with tables and a mermaid chart via
// nao1215/markdown. All of them implement Writer and can be combined with
// MultiWriter.
package report
