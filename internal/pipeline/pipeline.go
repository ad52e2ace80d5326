package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/websearchtool/sitecrawl/internal/model"
)

// Step is one post-crawl action on a finished (or cancelled) report.
type Step interface {
	// Do runs the step. It must not modify the report.
	Do(ctx context.Context, report *model.CrawlReport) error

	// Name identifies the step in logs and errors.
	Name() string
}

// StepError ties a failure to the step that produced it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Pipeline runs steps in order.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps running later steps after one fails. All
// failures are then returned together.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddSteps appends steps. Nil steps are ignored so optional steps can be
// added unconditionally.
func (p *Pipeline) AddSteps(steps ...Step) {
	for _, s := range steps {
		if s != nil {
			p.steps = append(p.steps, s)
		}
	}
}

// Execute runs every step on report. Cancellation is checked between steps.
// Failures are wrapped in *StepError.
func (p *Pipeline) Execute(ctx context.Context, report *model.CrawlReport) error {
	var errs []error
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled", "step", step.Name(), "reason", err)
			return errors.Join(append(errs, err)...)
		}

		p.logger.Debug("executing step", "step", step.Name(), "run", report.ID)
		if err := step.Do(ctx, report); err != nil {
			p.logger.Error("step failed", "step", step.Name(), "run", report.ID, "error", err)
			stepErr := &StepError{Step: step.Name(), Err: err}
			if !p.continueOnError {
				return stepErr
			}
			errs = append(errs, stepErr)
			continue
		}
		p.logger.Debug("step completed", "step", step.Name(), "run", report.ID)
	}
	return errors.Join(errs...)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
