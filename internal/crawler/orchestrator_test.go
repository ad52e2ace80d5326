package crawler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/websearchtool/sitecrawl/internal/model"
)

// panicFetcher panics for one domain and delegates the rest.
type panicFetcher struct {
	next   Fetcher
	domain string
}

func (p panicFetcher) Fetch(ctx context.Context, url string) model.FetchOutcome {
	if DomainOf(url) == p.domain {
		panic("boom")
	}
	return p.next.Fetch(ctx, url)
}

func TestOrchestratorCrawl(t *testing.T) {
	t.Parallel()

	t.Run("crawls the example site", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().
			page("http://a.test/", "/x", "/y", "http://other.test/", "/y.pdf").
			page("http://a.test/x").
			page("http://a.test/y")

		o := NewOrchestrator(fetcher, WithDomainLimits(2, 8))
		got, err := o.Crawl(context.Background(), []string{"http://a.test/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(got) != 1 {
			t.Fatalf("expected one domain, got %v", got.Domains())
		}
		assertDepth(t, got["a.test"], 0, "http://a.test/")
		assertDepth(t, got["a.test"], 1, "http://a.test/x", "http://a.test/y")
	})

	t.Run("page budget of one", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().
			page("http://a.test/", "/x", "/y").
			page("http://a.test/x").
			page("http://a.test/y")

		o := NewOrchestrator(fetcher, WithDomainLimits(2, 1))
		got, err := o.Crawl(context.Background(), []string{"http://a.test/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got["a.test"]) != 1 {
			t.Errorf("expected only depth 0, got %v", got["a.test"].Depths())
		}
	})

	t.Run("seed timeout gives an empty map for the domain", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().outcome("http://a.test/", model.FetchOutcome{Status: model.StatusTimeout})

		o := NewOrchestrator(fetcher)
		got, err := o.Crawl(context.Background(), []string{"http://a.test/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		dm, ok := got["a.test"]
		if !ok {
			t.Fatal("expected the domain to be present")
		}
		if dm.Total() != 0 {
			t.Errorf("expected empty map, got %v", dm)
		}
	})

	t.Run("empty seed list fails without crawling", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher()
		o := NewOrchestrator(fetcher)

		got, err := o.Crawl(context.Background(), nil)
		if !errors.Is(err, ErrNoSeeds) {
			t.Fatalf("expected ErrNoSeeds, got %v", err)
		}
		if got != nil {
			t.Errorf("expected nil result, got %v", got)
		}
		if fetcher.totalCalls() != 0 {
			t.Error("nothing should be fetched")
		}
	})
}

func TestOrchestratorRun(t *testing.T) {
	t.Parallel()

	t.Run("first seed per domain wins", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().
			page("http://a.test/first").
			page("http://a.test/second").
			page("http://b.test/")

		o := NewOrchestrator(fetcher, WithDomainLimits(0, 8))
		report, err := o.Run(context.Background(), []string{
			"http://a.test/first",
			"http://A.test/second",
			"http://b.test/",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(report.Domains) != 2 {
			t.Fatalf("expected 2 domains, got %d", len(report.Domains))
		}
		if report.Domains["a.test"].Seed != "http://a.test/first" {
			t.Errorf("unexpected seed %q", report.Domains["a.test"].Seed)
		}
		if fetcher.callCount("http://a.test/second") != 0 {
			t.Error("dropped seed must not be fetched")
		}
		if len(report.DroppedSeeds) != 1 || report.DroppedSeeds[0].URL != "http://A.test/second" {
			t.Errorf("unexpected dropped seeds %+v", report.DroppedSeeds)
		}
		if report.ID == "" {
			t.Error("expected a run ID")
		}
	})

	t.Run("isolates a panicking domain", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().
			page("http://a.test/", "/x").
			page("http://a.test/x")

		o := NewOrchestrator(panicFetcher{next: fetcher, domain: "b.test"})
		report, err := o.Run(context.Background(), []string{"http://a.test/", "http://b.test/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		b := report.Domains["b.test"]
		if b == nil {
			t.Fatal("expected a result for the failed domain")
		}
		if b.Discovered.Total() != 0 {
			t.Errorf("failed domain should be empty, got %v", b.Discovered)
		}
		if !strings.Contains(b.Error, "panicked") {
			t.Errorf("expected panic to be recorded, got %q", b.Error)
		}

		assertDepth(t, report.Domains["a.test"].Discovered, 1, "http://a.test/x")
		if report.FailedDomains() != 1 {
			t.Errorf("expected 1 failed domain, got %d", report.FailedDomains())
		}
	})

	t.Run("drops malformed seeds", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().page("http://a.test/")
		o := NewOrchestrator(fetcher)

		report, err := o.Run(context.Background(), []string{"::nope", "mailto:x@a.test", "http://a.test/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(report.DroppedSeeds) != 2 {
			t.Errorf("expected 2 dropped seeds, got %+v", report.DroppedSeeds)
		}
		if len(report.Domains) != 1 {
			t.Errorf("expected 1 domain, got %d", len(report.Domains))
		}
	})

	t.Run("fails when no seed is usable", func(t *testing.T) {
		t.Parallel()

		o := NewOrchestrator(newFakeFetcher())
		report, err := o.Run(context.Background(), []string{"not a url"})
		if !errors.Is(err, ErrNoUsableSeeds) {
			t.Fatalf("expected ErrNoUsableSeeds, got %v", err)
		}
		if report == nil || len(report.DroppedSeeds) != 1 {
			t.Errorf("expected the dropped seed to be reported, got %+v", report)
		}
	})

	t.Run("applies allow and block lists", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().
			page("http://docs.example.com/").
			page("http://ads.example.com/").
			page("http://other.test/")

		o := NewOrchestrator(fetcher,
			WithAllowedDomains([]string{"example.com"}),
			WithBlockedDomains([]string{"ADS.example.com"}),
		)
		report, err := o.Run(context.Background(), []string{
			"http://docs.example.com/",
			"http://ads.example.com/",
			"http://other.test/",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, ok := report.Domains["docs.example.com"]; !ok {
			t.Error("allowed subdomain should be crawled")
		}
		if _, ok := report.Domains["ads.example.com"]; ok {
			t.Error("blocked domain should not be crawled")
		}
		if _, ok := report.Domains["other.test"]; ok {
			t.Error("domain outside the allow list should not be crawled")
		}
	})

	t.Run("applies site options", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().
			page("http://a.test/", "/x").page("http://a.test/x").
			page("http://b.test/", "/x").page("http://b.test/x")

		o := NewOrchestrator(fetcher, WithSiteOptions(func(domain string) []SpiderOption {
			if domain == "a.test" {
				return []SpiderOption{WithMaxDepth(0)}
			}
			return nil
		}))
		report, err := o.Run(context.Background(), []string{"http://a.test/", "http://b.test/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := report.Domains["a.test"].Discovered.Total(); got != 1 {
			t.Errorf("a.test override should stop at the seed, got %d", got)
		}
		if got := report.Domains["b.test"].Discovered.Total(); got != 2 {
			t.Errorf("b.test should use defaults, got %d", got)
		}
	})

	t.Run("returns partial results on cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		fetcher := newFakeFetcher().
			page("http://fast.test/", "/x").
			page("http://fast.test/x").
			page("http://slow.test/")
		fetcher.hook = func(ctx context.Context, url string) {
			if DomainOf(url) == "slow.test" {
				<-ctx.Done()
			}
		}

		obs := newCountingObserver()
		done := make(chan struct{})
		go func() {
			// Cancel once the fast domain has finished.
			for {
				obs.mu.Lock()
				n := len(obs.domains)
				obs.mu.Unlock()
				if n > 0 {
					cancel()
					close(done)
					return
				}
				time.Sleep(5 * time.Millisecond)
			}
		}()

		o := NewOrchestrator(fetcher, WithRunObserver(obs))
		report, err := o.Run(ctx, []string{"http://fast.test/", "http://slow.test/"})
		<-done

		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if !report.Cancelled {
			t.Error("expected report to be marked cancelled")
		}
		assertDepth(t, report.Domains["fast.test"].Discovered, 1, "http://fast.test/x")
		if _, ok := report.Domains["slow.test"]; !ok {
			t.Error("cancelled domain should still have an entry")
		}
	})

	t.Run("limits concurrent domains", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().page("http://a.test/").page("http://b.test/").page("http://c.test/")
		o := NewOrchestrator(fetcher, WithDomainConcurrency(1))

		report, err := o.Run(context.Background(), []string{"http://a.test/", "http://b.test/", "http://c.test/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.TotalURLs() != 3 {
			t.Errorf("expected 3 URLs, got %d", report.TotalURLs())
		}
	})
}

func TestDomainMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host, pattern string
		want          bool
	}{
		{"example.com", "example.com", true},
		{"www.example.com", "example.com", true},
		{"www.example.com", ".example.com", true},
		{"badexample.com", "example.com", false},
		{"example.com", "www.example.com", false},
	}

	for _, tt := range tests {
		if got := domainMatches(tt.host, tt.pattern); got != tt.want {
			t.Errorf("domainMatches(%q, %q) = %v, want %v", tt.host, tt.pattern, got, tt.want)
		}
	}

	if hostOnly("example.com:8080") != "example.com" {
		t.Error("expected port to be stripped")
	}
}
