package crawler

import "github.com/websearchtool/sitecrawl/internal/model"

// Frontier is the per-domain work state: a FIFO queue of pending tasks, the
// set of URLs already admitted for fetching, and the page counter.
//
// A URL is marked visited when it is popped, not when its fetch completes,
// so a URL cannot be queued twice while its fetch is in flight. The page
// counter always equals the number of visited URLs, and it counts admitted
// URLs whether or not their fetch succeeds.
//
// A Frontier is owned by a single Spider and is not safe for concurrent use.
type Frontier struct {
	maxDepth int
	maxPages int

	pending []model.CrawlTask
	visited map[string]struct{}
}

// NewFrontier creates an empty frontier with the given depth and page limits.
func NewFrontier(maxDepth, maxPages int) *Frontier {
	return &Frontier{
		maxDepth: maxDepth,
		maxPages: maxPages,
		pending:  make([]model.CrawlTask, 0),
		visited:  make(map[string]struct{}),
	}
}

// Push appends a task to the end of the queue.
// Push does not filter: tasks that turn out to be visited, too deep or over
// budget are discarded by PopBatch.
func (f *Frontier) Push(task model.CrawlTask) {
	f.pending = append(f.pending, task)
}

// PopBatch removes up to maxN tasks from the head of the queue and admits
// them: each returned task is marked visited and counted against the page
// budget before PopBatch returns.
//
// Tasks whose URL is already visited or whose depth exceeds the maximum are
// dropped. Once the budget is reached no more tasks are admitted. A batch
// holds tasks of a single depth; it ends before the first pending task of a
// different depth so that depth d is fully processed before depth d+1.
func (f *Frontier) PopBatch(maxN int) []model.CrawlTask {
	if maxN <= 0 {
		return nil
	}

	batch := make([]model.CrawlTask, 0, maxN)
	for len(f.pending) > 0 && len(batch) < maxN {
		if len(f.visited) >= f.maxPages {
			break
		}

		task := f.pending[0]
		if len(batch) > 0 && task.Depth != batch[0].Depth {
			break
		}
		f.pending = f.pending[1:]

		if task.Depth > f.maxDepth {
			continue
		}
		if _, seen := f.visited[task.URL]; seen {
			continue
		}

		f.visited[task.URL] = struct{}{}
		batch = append(batch, task)
	}

	if len(f.pending) == 0 {
		// Release the backing array once drained.
		f.pending = make([]model.CrawlTask, 0)
	}
	return batch
}

// HasCapacity reports whether there is pending work and budget left.
func (f *Frontier) HasCapacity() bool {
	return len(f.pending) > 0 && len(f.visited) < f.maxPages
}

// Visited reports whether url has already been admitted.
func (f *Frontier) Visited(url string) bool {
	_, ok := f.visited[url]
	return ok
}

// PageCount returns the number of admitted URLs.
func (f *Frontier) PageCount() int {
	return len(f.visited)
}

// Len returns the number of pending tasks.
func (f *Frontier) Len() int {
	return len(f.pending)
}
