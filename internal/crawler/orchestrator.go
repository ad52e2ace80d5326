package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/websearchtool/sitecrawl/internal/model"
)

// SiteOptionsFunc returns extra Spider options for a domain, applied after
// the orchestrator defaults. It is how per-site overrides reach a crawl.
type SiteOptionsFunc func(domain string) []SpiderOption

// Orchestrator fans seed URLs out into one concurrent Spider per domain and
// collects their results.
//
// Spiders share nothing but the Fetcher, whose semaphore bounds the total
// number of requests in flight. A Spider that fails or panics produces an
// empty result for its domain and does not affect the others.
type Orchestrator struct {
	fetcher Fetcher

	maxDepth  int
	maxPages  int
	batchSize int

	// domainConcurrency caps how many domains are crawled at once.
	// 0 means no cap.
	domainConcurrency int

	allowedDomains []string
	blockedDomains []string
	siteOptions    SiteOptionsFunc

	observer Observer
	tracer   trace.Tracer
	logger   *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithDomainLimits sets the default depth and page budget for every domain.
func WithDomainLimits(maxDepth, maxPages int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxDepth = maxDepth
		o.maxPages = maxPages
	}
}

// WithFetchBatchSize sets how many URLs of one domain are fetched together.
func WithFetchBatchSize(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithDomainConcurrency caps the number of domains crawled at the same time.
func WithDomainConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.domainConcurrency = max(n, 0)
	}
}

// WithAllowedDomains restricts seeds to the given domains and their
// subdomains. An empty list allows every domain.
func WithAllowedDomains(domains []string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.allowedDomains = lowerAll(domains)
	}
}

// WithBlockedDomains drops seeds on the given domains and their subdomains.
func WithBlockedDomains(domains []string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.blockedDomains = lowerAll(domains)
	}
}

// WithSiteOptions sets the per-domain option lookup.
func WithSiteOptions(fn SiteOptionsFunc) OrchestratorOption {
	return func(o *Orchestrator) {
		o.siteOptions = fn
	}
}

// WithRunObserver sets the observer passed to every Spider.
func WithRunObserver(obs Observer) OrchestratorOption {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithRunTracer sets the tracer for run and domain spans.
func WithRunTracer(t trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an orchestrator that fetches through fetcher.
func NewOrchestrator(fetcher Fetcher, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		fetcher:   fetcher,
		maxDepth:  2,
		maxPages:  8,
		batchSize: defaultConcurrency,
		observer:  nopObserver{},
		tracer:    otel.Tracer(tracerName),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Crawl crawls every seed's domain and returns domain -> depth -> URLs.
// See Run for the error contract.
func (o *Orchestrator) Crawl(ctx context.Context, seeds []string) (model.DiscoveredMap, error) {
	report, err := o.Run(ctx, seeds)
	if report == nil {
		return nil, err
	}
	return report.Discovered(), err
}

// domainPlan is a domain and the seed that claimed it.
type domainPlan struct {
	domain string
	seed   string
}

// Run crawls every seed's domain and returns the full report.
//
// Seeds are grouped by domain and only the first seed of each domain is
// crawled; later seeds for a claimed domain are listed in DroppedSeeds, as
// are malformed seeds and seeds outside the allowed domains.
//
// Run returns ErrNoSeeds without starting anything when seeds is empty, and
// ErrNoUsableSeeds when every seed was dropped. When ctx is cancelled the
// report holds the partial results and the context error is returned with
// it. Failures of individual domains are never returned as errors.
func (o *Orchestrator) Run(ctx context.Context, seeds []string) (*model.CrawlReport, error) {
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}

	report := model.NewCrawlReport(uuid.NewString(), seeds)
	plans := o.plan(seeds, report)
	if len(plans) == 0 {
		report.FinishedAt = time.Now()
		return report, ErrNoUsableSeeds
	}

	ctx, span := o.tracer.Start(ctx, "crawler.run",
		trace.WithAttributes(
			attribute.String("run_id", report.ID),
			attribute.Int("domains", len(plans)),
			attribute.Int("dropped_seeds", len(report.DroppedSeeds)),
		),
	)
	defer span.End()

	o.logger.Info("crawl started",
		"run_id", report.ID,
		"domains", len(plans),
		"dropped_seeds", len(report.DroppedSeeds),
	)

	var mu sync.Mutex
	var g errgroup.Group
	if o.domainConcurrency > 0 {
		g.SetLimit(o.domainConcurrency)
	}

	for _, p := range plans {
		g.Go(func() error {
			res := o.crawlDomain(ctx, p)

			mu.Lock()
			report.Domains[p.domain] = res
			mu.Unlock()

			o.observer.DomainCompleted(res)
			// Domain failures are recorded in the result, not returned.
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now()
	span.SetAttributes(
		attribute.Int("urls", report.TotalURLs()),
		attribute.Int("failed_domains", report.FailedDomains()),
	)

	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		span.SetStatus(codes.Error, "crawl cancelled")
		o.logger.Warn("crawl cancelled, returning partial results",
			"run_id", report.ID,
			"urls", report.TotalURLs(),
		)
		return report, err
	}

	span.SetStatus(codes.Ok, "")
	o.logger.Info("crawl finished",
		"run_id", report.ID,
		"urls", report.TotalURLs(),
		"failed_domains", report.FailedDomains(),
		"elapsed", report.Duration(),
	)
	return report, nil
}

// plan groups seeds by domain. The first seed of a domain wins.
func (o *Orchestrator) plan(seeds []string, report *model.CrawlReport) []domainPlan {
	claimed := make(map[string]string)
	plans := make([]domainPlan, 0, len(seeds))

	drop := func(seed, reason string) {
		report.DroppedSeeds = append(report.DroppedSeeds, model.DroppedSeed{URL: seed, Reason: reason})
		o.logger.Warn("seed dropped", "seed", seed, "reason", reason)
	}

	for _, seed := range seeds {
		normalized := Normalize(seed)
		if normalized == "" || !isHTTPScheme(normalized) {
			drop(seed, "not an absolute http or https URL")
			continue
		}

		domain := DomainOf(normalized)
		if !o.domainAllowed(domain) {
			drop(seed, "domain is not allowed")
			continue
		}
		if first, ok := claimed[domain]; ok {
			drop(seed, fmt.Sprintf("domain %s already claimed by %s", domain, first))
			continue
		}

		claimed[domain] = normalized
		plans = append(plans, domainPlan{domain: domain, seed: normalized})
	}

	return plans
}

// crawlDomain runs one Spider and converts failures into an empty result.
func (o *Orchestrator) crawlDomain(ctx context.Context, p domainPlan) (res *model.DomainResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("domain crawler panicked",
				"domain", p.domain,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res = failedResult(p, fmt.Errorf("%w: %v", ErrDomainPanic, r))
		}
	}()

	spider := NewSpider(o.fetcher, o.spiderOptions(p.domain)...)
	result, err := spider.Crawl(ctx, p.seed)
	if err == nil {
		return result
	}

	if result != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		// Cancelled crawls keep what they found.
		return result
	}

	o.logger.Warn("domain crawl failed", "domain", p.domain, "error", err)
	return failedResult(p, err)
}

// spiderOptions builds the options for one domain's Spider.
func (o *Orchestrator) spiderOptions(domain string) []SpiderOption {
	opts := []SpiderOption{
		WithMaxDepth(o.maxDepth),
		WithMaxPages(o.maxPages),
		WithBatchSize(o.batchSize),
		WithObserver(o.observer),
		WithTracer(o.tracer),
		WithSpiderLogger(o.logger),
	}
	if o.siteOptions != nil {
		opts = append(opts, o.siteOptions(domain)...)
	}
	return opts
}

// domainAllowed applies the block list, then the allow list.
func (o *Orchestrator) domainAllowed(domain string) bool {
	host := hostOnly(domain)
	for _, blocked := range o.blockedDomains {
		if domainMatches(host, blocked) {
			return false
		}
	}
	if len(o.allowedDomains) == 0 {
		return true
	}
	for _, allowed := range o.allowedDomains {
		if domainMatches(host, allowed) {
			return true
		}
	}
	return false
}

// failedResult returns an empty result carrying err.
func failedResult(p domainPlan, err error) *model.DomainResult {
	res := model.NewDomainResult(p.domain, p.seed)
	res.FinishedAt = time.Now()
	res.Error = err.Error()
	return res
}

// domainMatches reports whether host is pattern or a subdomain of it.
func domainMatches(host, pattern string) bool {
	pattern = strings.TrimPrefix(pattern, ".")
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

// hostOnly strips a port from a network location.
func hostOnly(domain string) string {
	if i := strings.LastIndex(domain, ":"); i >= 0 && !strings.HasSuffix(domain, "]") {
		return domain[:i]
	}
	return domain
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
