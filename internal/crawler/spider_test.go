package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/websearchtool/sitecrawl/internal/model"
)

// fakeFetcher serves canned outcomes and records every call.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]model.FetchOutcome
	calls []string

	// hook, when set, runs before the canned outcome is returned.
	hook func(ctx context.Context, url string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: make(map[string]model.FetchOutcome)}
}

// page registers an HTML page linking to hrefs.
func (f *fakeFetcher) page(url string, hrefs ...string) *fakeFetcher {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, h)
	}
	b.WriteString("</body></html>")

	f.pages[url] = model.FetchOutcome{URL: url, Status: model.StatusOK, Code: 200, Body: b.String()}
	return f
}

func (f *fakeFetcher) outcome(url string, o model.FetchOutcome) *fakeFetcher {
	o.URL = url
	f.pages[url] = o
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) model.FetchOutcome {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(ctx, url)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.pages[url]; ok {
		return o
	}
	return model.FetchOutcome{URL: url, Status: model.StatusOK, Code: 404}
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func assertDepth(t *testing.T, got model.DepthMap, depth int, want ...string) {
	t.Helper()

	set := got[depth]
	if set.Len() != len(want) {
		t.Errorf("depth %d: got %v, want %v", depth, set.Sorted(), want)
		return
	}
	for _, u := range want {
		if !set.Has(u) {
			t.Errorf("depth %d: missing %s in %v", depth, u, set.Sorted())
		}
	}
}

func TestSpiderCrawl(t *testing.T) {
	t.Parallel()

	t.Run("records in-scope pages by depth", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().
			page("http://a.test/", "/x", "/y", "http://other.test/", "/y.pdf").
			page("http://a.test/x").
			page("http://a.test/y")

		spider := NewSpider(fetcher, WithMaxDepth(2), WithMaxPages(8))
		result, err := spider.Crawl(context.Background(), "http://a.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		assertDepth(t, result.Discovered, 0, "http://a.test/")
		assertDepth(t, result.Discovered, 1, "http://a.test/x", "http://a.test/y")
		if len(result.Discovered) != 2 {
			t.Errorf("expected two depths, got %v", result.Discovered.Depths())
		}
		if fetcher.callCount("http://other.test/") != 0 {
			t.Error("out-of-scope link must not be fetched")
		}
		if fetcher.callCount("http://a.test/y.pdf") != 0 {
			t.Error("blocked extension must not be fetched")
		}
		if result.Domain != "a.test" {
			t.Errorf("unexpected domain %q", result.Domain)
		}
	})

	t.Run("page budget of one fetches only the seed", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().
			page("http://a.test/", "/x", "/y").
			page("http://a.test/x").
			page("http://a.test/y")

		spider := NewSpider(fetcher, WithMaxDepth(2), WithMaxPages(1))
		result, err := spider.Crawl(context.Background(), "http://a.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		assertDepth(t, result.Discovered, 0, "http://a.test/")
		if len(result.Discovered) != 1 {
			t.Errorf("expected only depth 0, got %v", result.Discovered.Depths())
		}
		if fetcher.totalCalls() != 1 {
			t.Errorf("expected one fetch, got %d", fetcher.totalCalls())
		}
	})

	t.Run("seed timeout yields empty result", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().outcome("http://a.test/", model.FetchOutcome{
			Status: model.StatusTimeout,
			Reason: "deadline exceeded",
		})

		spider := NewSpider(fetcher)
		result, err := spider.Crawl(context.Background(), "http://a.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Discovered.Total() != 0 {
			t.Errorf("expected no results, got %v", result.Discovered)
		}
		if result.FetchFailures != 1 || result.PagesAdmitted != 1 {
			t.Errorf("unexpected stats: failures %d, admitted %d", result.FetchFailures, result.PagesAdmitted)
		}
	})

	t.Run("never exceeds max depth", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().
			page("http://a.test/", "/1").
			page("http://a.test/1", "/2").
			page("http://a.test/2", "/3").
			page("http://a.test/3", "/4")

		spider := NewSpider(fetcher, WithMaxDepth(2), WithMaxPages(100))
		result, err := spider.Crawl(context.Background(), "http://a.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, d := range result.Discovered.Depths() {
			if d > 2 {
				t.Errorf("found depth %d beyond max", d)
			}
		}
		assertDepth(t, result.Discovered, 2, "http://a.test/2")
		if fetcher.callCount("http://a.test/3") != 0 {
			t.Error("page beyond max depth must not be fetched")
		}
	})

	t.Run("max depth zero fetches only the seed", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().page("http://a.test/", "/x").page("http://a.test/x")

		spider := NewSpider(fetcher, WithMaxDepth(0))
		result, err := spider.Crawl(context.Background(), "http://a.test")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDepth(t, result.Discovered, 0, "http://a.test/")
		if fetcher.totalCalls() != 1 {
			t.Errorf("expected one fetch, got %d", fetcher.totalCalls())
		}
	})

	t.Run("fetches each URL once and keeps first depth", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().
			page("http://a.test/", "/a", "/b").
			page("http://a.test/a", "/", "/b", "/c").
			page("http://a.test/b", "/a", "/c").
			page("http://a.test/c", "/", "/a")

		spider := NewSpider(fetcher, WithMaxDepth(3), WithMaxPages(50))
		result, err := spider.Crawl(context.Background(), "http://a.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, u := range []string{"http://a.test/", "http://a.test/a", "http://a.test/b", "http://a.test/c"} {
			if n := fetcher.callCount(u); n != 1 {
				t.Errorf("%s fetched %d times", u, n)
			}
		}

		seen := make(map[string]int)
		for depth, set := range result.Discovered {
			for u := range set {
				if prev, dup := seen[u]; dup {
					t.Errorf("%s recorded at depths %d and %d", u, prev, depth)
				}
				seen[u] = depth
			}
		}
		assertDepth(t, result.Discovered, 1, "http://a.test/a", "http://a.test/b")
		assertDepth(t, result.Discovered, 2, "http://a.test/c")
	})

	t.Run("page budget counts failed fetches", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().
			page("http://a.test/", "/missing", "/x", "/y")
		// /missing, /x and /y are all 404 in the fake.

		spider := NewSpider(fetcher, WithMaxDepth(2), WithMaxPages(3))
		result, err := spider.Crawl(context.Background(), "http://a.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.PagesAdmitted != 3 {
			t.Errorf("expected 3 admitted, got %d", result.PagesAdmitted)
		}
		if fetcher.totalCalls() != 3 {
			t.Errorf("expected 3 fetches, got %d", fetcher.totalCalls())
		}
		if result.Discovered.Total() != 1 {
			t.Errorf("only the seed had content, got %v", result.Discovered)
		}
	})

	t.Run("fetches depths in order", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().
			page("http://a.test/", "/a", "/b", "/c").
			page("http://a.test/a", "/a1", "/a2").
			page("http://a.test/b", "/b1").
			page("http://a.test/c").
			page("http://a.test/a1").
			page("http://a.test/a2").
			page("http://a.test/b1")

		spider := NewSpider(fetcher, WithMaxDepth(2), WithMaxPages(50), WithBatchSize(2))
		result, err := spider.Crawl(context.Background(), "http://a.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		depthOf := make(map[string]int)
		for d, set := range result.Discovered {
			for u := range set {
				depthOf[u] = d
			}
		}

		fetcher.mu.Lock()
		calls := append([]string(nil), fetcher.calls...)
		fetcher.mu.Unlock()

		last := 0
		for _, u := range calls {
			d := depthOf[u]
			if d < last {
				t.Fatalf("fetch of %s at depth %d after depth %d: %v", u, d, last, calls)
			}
			last = d
		}
	})

	t.Run("honors ignore patterns", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().
			page("http://a.test/", "/public", "/private/secret").
			page("http://a.test/public").
			page("http://a.test/private/secret")

		spider := NewSpider(fetcher, WithIgnorePatterns([]string{"/private/*"}))
		result, err := spider.Crawl(context.Background(), "http://a.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertDepth(t, result.Discovered, 1, "http://a.test/public")
	})

	t.Run("returns partial results on cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		fetcher := newFakeFetcher().
			page("http://a.test/", "/x").
			page("http://a.test/x")
		fetcher.hook = func(_ context.Context, url string) {
			if url == "http://a.test/" {
				cancel()
			}
		}

		spider := NewSpider(fetcher)
		result, err := spider.Crawl(ctx, "http://a.test/")
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if result == nil {
			t.Fatal("expected partial result")
		}
		assertDepth(t, result.Discovered, 0, "http://a.test/")
		if fetcher.callCount("http://a.test/x") != 0 {
			t.Error("no batch should start after cancellation")
		}
		if result.Error == "" {
			t.Error("expected the interruption to be recorded")
		}
	})

	t.Run("rejects invalid seed", func(t *testing.T) {
		t.Parallel()

		spider := NewSpider(newFakeFetcher())
		for _, seed := range []string{"", "not a url", "ftp://a.test/"} {
			if _, err := spider.Crawl(context.Background(), seed); !errors.Is(err, ErrInvalidSeed) {
				t.Errorf("seed %q: expected ErrInvalidSeed, got %v", seed, err)
			}
		}
	})

	t.Run("notifies observer of discovered pages", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher().page("http://a.test/", "/x").page("http://a.test/x")
		obs := newCountingObserver()

		spider := NewSpider(fetcher, WithObserver(obs))
		if _, err := spider.Crawl(context.Background(), "http://a.test/"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if obs.discovered != 2 {
			t.Errorf("expected 2 discovered pages, got %d", obs.discovered)
		}
	})

	t.Run("emits domain and batch spans", func(t *testing.T) {
		t.Parallel()

		recorder := tracetest.NewSpanRecorder()
		provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		defer func() { _ = provider.Shutdown(context.Background()) }()

		fetcher := newFakeFetcher().page("http://a.test/", "/x").page("http://a.test/x")
		spider := NewSpider(fetcher, WithTracer(provider.Tracer("test")))
		if _, err := spider.Crawl(context.Background(), "http://a.test/"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		names := make(map[string]int)
		for _, span := range recorder.Ended() {
			names[span.Name()]++
		}
		if names["crawler.domain"] != 1 {
			t.Errorf("expected one domain span, got %v", names)
		}
		if names["crawler.batch"] != 2 {
			t.Errorf("expected two batch spans, got %v", names)
		}
	})
}

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"prefix match", "/admin/*", "/admin/dashboard", true},
		{"prefix exact", "/admin/*", "/admin", true},
		{"prefix nested", "/admin/*", "/admin/users/edit", true},
		{"prefix no match", "/admin/*", "/user/profile", false},
		{"prefix partial word", "/admin/*", "/administrator", false},
		{"extension", "*.php", "/index.php", true},
		{"extension nested", "*.php", "/a/b/c.php", true},
		{"extension no match", "*.php", "/index.html", false},
		{"exact", "/logout", "/logout", true},
		{"exact no match", "/logout", "/login", false},
		{"single char wildcard", "/api/v?/users", "/api/v1/users", true},
		{"single char wildcard too long", "/api/v?/users", "/api/v10/users", false},
		{"base name glob", "draft-*", "/posts/draft-1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := matchPattern(tt.pattern, tt.path); got != tt.want {
				t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

func TestShouldCrawl(t *testing.T) {
	t.Parallel()

	spider := NewSpider(newFakeFetcher(),
		WithIgnorePatterns([]string{"/api/internal/*"}),
		WithFollowPatterns([]string{"/api/*"}),
	)

	tests := []struct {
		url  string
		want bool
	}{
		{"http://a.test/api/v1/users", true},
		{"http://a.test/api/internal/secret", false},
		{"http://a.test/public/page", false},
		{"://invalid", false},
	}

	for _, tt := range tests {
		if got := spider.shouldCrawl(tt.url); got != tt.want {
			t.Errorf("shouldCrawl(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}

	if !NewSpider(newFakeFetcher()).shouldCrawl("http://a.test/anything") {
		t.Error("no patterns should allow everything")
	}
}
