package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/websearchtool/sitecrawl/internal/model"
)

// tracerName is the instrumentation scope of the crawler spans.
const tracerName = "github.com/websearchtool/sitecrawl/internal/crawler"

// Spider runs a breadth-first crawl of a single domain.
//
// A crawl moves through four states: the seed is queued at depth 0
// (seeding), a batch of same-depth URLs is fetched concurrently (batch
// fetching), the outcomes are recorded and their links queued at depth+1
// (link processing), and the loop repeats until the frontier is empty or the
// page budget is spent (done).
//
// A Spider holds configuration only. Every call to Crawl creates its own
// Frontier, so one Spider may crawl several domains, even concurrently.
type Spider struct {
	fetcher Fetcher

	// maxDepth limits how many link hops from the seed are followed.
	// 0 means only the seed is fetched.
	maxDepth int

	// maxPages limits how many URLs are admitted for fetching.
	maxPages int

	// batchSize is the largest number of URLs fetched together.
	batchSize int

	// ignorePatterns are URL path globs that are never followed.
	ignorePatterns []string

	// followPatterns, when set, restrict crawling to matching paths.
	followPatterns []string

	observer Observer
	tracer   trace.Tracer
	logger   *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxDepth sets the maximum crawl depth.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithMaxPages sets the page budget per domain.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithBatchSize sets how many URLs are fetched per batch. It is normally the
// fetcher's concurrency limit.
func WithBatchSize(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only URLs matching at least one pattern are crawled.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithObserver sets the observer notified of discovered pages.
func WithObserver(o Observer) SpiderOption {
	return func(s *Spider) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithTracer sets the tracer used for crawl spans.
func WithTracer(t trace.Tracer) SpiderOption {
	return func(s *Spider) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithSpiderLogger sets the logger.
func WithSpiderLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider creates a Spider that fetches through fetcher.
// Defaults: depth 2, 8 pages, batches of 8.
func NewSpider(fetcher Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:   fetcher,
		maxDepth:  2,
		maxPages:  8,
		batchSize: defaultConcurrency,
		observer:  nopObserver{},
		tracer:    otel.Tracer(tracerName),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Crawl crawls the domain of seed and returns the URLs fetched successfully,
// grouped by depth.
//
// When ctx is cancelled Crawl stops before the next batch and returns the
// partial result together with the context error. The returned result is
// never nil unless seed is invalid.
func (s *Spider) Crawl(ctx context.Context, seed string) (*model.DomainResult, error) {
	seedURL := Normalize(seed)
	if seedURL == "" || !isHTTPScheme(seedURL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeed, seed)
	}
	domain := DomainOf(seedURL)
	result := model.NewDomainResult(domain, seedURL)

	ctx, span := s.tracer.Start(ctx, "crawler.domain",
		trace.WithAttributes(
			attribute.String("domain", domain),
			attribute.String("seed", seedURL),
			attribute.Int("max_depth", s.maxDepth),
			attribute.Int("max_pages", s.maxPages),
		),
	)
	defer span.End()

	logger := s.logger.With("domain", domain)
	logger.Debug("domain crawl started", "seed", seedURL)

	frontier := NewFrontier(s.maxDepth, s.maxPages)
	frontier.Push(model.CrawlTask{URL: seedURL, Depth: 0})

	var err error
	for frontier.HasCapacity() {
		if err = ctx.Err(); err != nil {
			break
		}

		batch := frontier.PopBatch(s.batchSize)
		if len(batch) == 0 {
			break
		}

		outcomes := s.fetchBatch(ctx, batch)
		for i, task := range batch {
			s.processOutcome(task, outcomes[i], domain, frontier, result, logger)
		}
	}
	if err == nil && ctx.Err() != nil {
		// Cancelled during the last batch.
		err = ctx.Err()
	}

	result.PagesAdmitted = frontier.PageCount()
	result.FinishedAt = time.Now()

	span.SetAttributes(
		attribute.Int("pages_admitted", result.PagesAdmitted),
		attribute.Int("pages_discovered", result.Discovered.Total()),
		attribute.Int("fetch_failures", result.FetchFailures),
	)
	if err != nil {
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "domain crawl interrupted")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	logger.Debug("domain crawl finished",
		"discovered", result.Discovered.Total(),
		"admitted", result.PagesAdmitted,
		"failures", result.FetchFailures,
		"duration", result.Duration(),
	)
	return result, err
}

// fetchBatch fetches every task concurrently. outcomes[i] belongs to batch[i].
// Concurrency across the whole process is bounded by the fetcher.
func (s *Spider) fetchBatch(ctx context.Context, batch []model.CrawlTask) []model.FetchOutcome {
	ctx, span := s.tracer.Start(ctx, "crawler.batch",
		trace.WithAttributes(
			attribute.Int("depth", batch[0].Depth),
			attribute.Int("size", len(batch)),
		),
	)
	defer span.End()

	outcomes := make([]model.FetchOutcome, len(batch))

	// A panic in a fetch goroutine is re-raised on the crawl goroutine so
	// the caller's recover sees it.
	var (
		panicOnce sync.Once
		panicked  any
	)

	var g errgroup.Group
	for i, task := range batch {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					panicOnce.Do(func() { panicked = r })
				}
			}()
			outcomes[i] = s.fetcher.Fetch(ctx, task.URL)
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors

	if panicked != nil {
		panic(panicked)
	}
	return outcomes
}

// processOutcome records a successful fetch and queues its links.
func (s *Spider) processOutcome(
	task model.CrawlTask,
	outcome model.FetchOutcome,
	domain string,
	frontier *Frontier,
	result *model.DomainResult,
	logger *slog.Logger,
) {
	if !outcome.IsContent() {
		result.FetchFailures++
		logger.Debug("no content",
			"url", task.URL,
			"status", outcome.Status.String(),
			"code", outcome.Code,
			"reason", outcome.Reason,
		)
		return
	}

	result.Discovered.Add(task.Depth, task.URL)
	s.observer.PageDiscovered(domain, task.Depth)

	if task.Depth >= s.maxDepth {
		return
	}

	links, err := ExtractLinks(outcome.Body, task.URL)
	if err != nil {
		logger.Warn("failed to parse page, using partial links",
			"url", task.URL,
			"links", len(links),
			"error", err,
		)
	}

	queued := 0
	for _, link := range links {
		if !IsInScope(link, domain) || frontier.Visited(link) || !s.shouldCrawl(link) {
			continue
		}
		frontier.Push(model.CrawlTask{URL: link, Depth: task.Depth + 1})
		queued++
	}

	logger.Debug("page processed",
		"url", task.URL,
		"depth", task.Depth,
		"links", len(links),
		"queued", queued,
	)
}

// shouldCrawl checks a URL against the ignore and follow patterns.
// Ignore patterns win. With follow patterns set, the path must match one.
func (s *Spider) shouldCrawl(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range s.ignorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(s.followPatterns) == 0 {
		return true
	}
	for _, pattern := range s.followPatterns {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
//
// Examples:
//   - "/admin/*" matches "/admin", "/admin/users" and "/admin/users/1"
//   - "*.php" matches "/index.php" and "/a/b.php"
//   - "/api/v?" matches "/api/v1"
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*."); ok {
		if strings.HasSuffix(path, "."+ext) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	// Patterns without a slash also match the last path segment.
	if !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}

	return false
}
