package crawler

import (
	"testing"

	"github.com/websearchtool/sitecrawl/internal/model"
)

func task(url string, depth int) model.CrawlTask {
	return model.CrawlTask{URL: url, Depth: depth}
}

func urlsOf(tasks []model.CrawlTask) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.URL)
	}
	return out
}

func TestFrontier(t *testing.T) {
	t.Parallel()

	t.Run("pops in FIFO order and marks visited", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier(2, 10)
		f.Push(task("http://a.test/1", 0))
		f.Push(task("http://a.test/2", 0))
		f.Push(task("http://a.test/3", 0))

		batch := f.PopBatch(2)
		got := urlsOf(batch)
		if len(got) != 2 || got[0] != "http://a.test/1" || got[1] != "http://a.test/2" {
			t.Fatalf("unexpected batch %v", got)
		}
		if !f.Visited("http://a.test/1") || !f.Visited("http://a.test/2") {
			t.Error("popped URLs should be visited")
		}
		if f.Visited("http://a.test/3") {
			t.Error("pending URL should not be visited")
		}
		if f.Len() != 1 {
			t.Errorf("expected 1 pending, got %d", f.Len())
		}
	})

	t.Run("skips visited URLs without re-enqueueing", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier(2, 10)
		f.Push(task("http://a.test/x", 0))
		f.Push(task("http://a.test/x", 0))
		f.Push(task("http://a.test/y", 0))

		got := urlsOf(f.PopBatch(8))
		if len(got) != 2 {
			t.Fatalf("expected duplicate to be skipped, got %v", got)
		}
		if f.Len() != 0 {
			t.Errorf("skipped task should not be re-enqueued, %d pending", f.Len())
		}
	})

	t.Run("drops tasks deeper than max depth", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier(1, 10)
		f.Push(task("http://a.test/deep", 2))

		if batch := f.PopBatch(8); len(batch) != 0 {
			t.Errorf("expected no tasks, got %v", urlsOf(batch))
		}
		if f.PageCount() != 0 {
			t.Errorf("dropped task must not count, page count %d", f.PageCount())
		}
	})

	t.Run("stops admitting at the page budget", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier(2, 2)
		for _, u := range []string{"http://a.test/1", "http://a.test/2", "http://a.test/3"} {
			f.Push(task(u, 0))
		}

		batch := f.PopBatch(8)
		if len(batch) != 2 {
			t.Fatalf("expected 2 admitted tasks, got %d", len(batch))
		}
		if f.HasCapacity() {
			t.Error("expected no capacity once the budget is spent")
		}
		if batch := f.PopBatch(8); len(batch) != 0 {
			t.Errorf("expected nothing after budget, got %v", urlsOf(batch))
		}
		if f.PageCount() != 2 {
			t.Errorf("expected page count 2, got %d", f.PageCount())
		}
	})

	t.Run("batches never mix depths", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier(3, 10)
		f.Push(task("http://a.test/", 0))
		f.Push(task("http://a.test/b", 1))
		f.Push(task("http://a.test/c", 1))
		f.Push(task("http://a.test/d", 2))

		for i, want := range [][]string{
			{"http://a.test/"},
			{"http://a.test/b", "http://a.test/c"},
			{"http://a.test/d"},
		} {
			got := urlsOf(f.PopBatch(8))
			if len(got) != len(want) {
				t.Fatalf("batch %d: got %v, want %v", i, got, want)
			}
			for j := range want {
				if got[j] != want[j] {
					t.Fatalf("batch %d: got %v, want %v", i, got, want)
				}
			}
		}
	})

	t.Run("skipped head does not end a batch", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier(1, 10)
		f.Push(task("http://a.test/", 0))
		_ = f.PopBatch(8)

		f.Push(task("http://a.test/", 1)) // already visited
		f.Push(task("http://a.test/n", 1))

		got := urlsOf(f.PopBatch(8))
		if len(got) != 1 || got[0] != "http://a.test/n" {
			t.Errorf("got %v", got)
		}
	})

	t.Run("has capacity only with pending work", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier(2, 5)
		if f.HasCapacity() {
			t.Error("empty frontier should have no capacity")
		}
		f.Push(task("http://a.test/", 0))
		if !f.HasCapacity() {
			t.Error("frontier with pending work and budget should have capacity")
		}
	})

	t.Run("non-positive batch size pops nothing", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier(2, 5)
		f.Push(task("http://a.test/", 0))
		if batch := f.PopBatch(0); batch != nil {
			t.Errorf("expected nil, got %v", batch)
		}
		if f.Len() != 1 {
			t.Error("task should remain pending")
		}
	})

	t.Run("page count equals visited size", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier(3, 4)
		urls := []string{"http://a.test/1", "http://a.test/2", "http://a.test/1", "http://a.test/3"}
		for _, u := range urls {
			f.Push(task(u, 0))
		}
		admitted := 0
		for f.HasCapacity() {
			batch := f.PopBatch(1)
			if len(batch) == 0 {
				break
			}
			admitted += len(batch)
			if f.PageCount() != admitted {
				t.Fatalf("page count %d != admitted %d", f.PageCount(), admitted)
			}
		}
		if admitted != 3 {
			t.Errorf("expected 3 distinct admissions, got %d", admitted)
		}
	})
}
