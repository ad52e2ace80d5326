package pipeline

import (
	"context"

	"github.com/websearchtool/sitecrawl/internal/model"
	"github.com/websearchtool/sitecrawl/internal/report"
)

// WriteReportStep renders the report with a report.Writer.
type WriteReportStep struct {
	writer report.Writer
}

// NewWriteReportStep returns a step writing with w.
func NewWriteReportStep(w report.Writer) *WriteReportStep {
	return &WriteReportStep{writer: w}
}

// Name implements Step.
func (s *WriteReportStep) Name() string { return "write_report" }

// Do implements Step.
func (s *WriteReportStep) Do(_ context.Context, r *model.CrawlReport) error {
	_, err := s.writer.Write(r)
	return err
}

// ReportSaver persists reports. *database.ResultsDB implements it.
type ReportSaver interface {
	SaveReport(ctx context.Context, report *model.CrawlReport) error
}

// SaveResultsStep stores the report in the results history.
type SaveResultsStep struct {
	saver ReportSaver
}

// NewSaveResultsStep returns a step saving through saver.
func NewSaveResultsStep(saver ReportSaver) *SaveResultsStep {
	return &SaveResultsStep{saver: saver}
}

// Name implements Step.
func (s *SaveResultsStep) Name() string { return "save_results" }

// Do implements Step.
func (s *SaveResultsStep) Do(ctx context.Context, r *model.CrawlReport) error {
	return s.saver.SaveReport(ctx, r)
}

// ReportPublisher sends reports downstream. *publish.Publisher implements it.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report *model.CrawlReport) error
}

// PublishStep hands the report to a ReportPublisher.
type PublishStep struct {
	publisher ReportPublisher
}

// NewPublishStep returns a step publishing through p.
func NewPublishStep(p ReportPublisher) *PublishStep {
	return &PublishStep{publisher: p}
}

// Name implements Step.
func (s *PublishStep) Name() string { return "publish" }

// Do implements Step.
func (s *PublishStep) Do(ctx context.Context, r *model.CrawlReport) error {
	return s.publisher.PublishReport(ctx, r)
}
