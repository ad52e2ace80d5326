package crawler

import "github.com/websearchtool/sitecrawl/internal/model"

// Observer receives crawl events, typically to update metrics.
// Implementations must be safe for concurrent use.
type Observer interface {
	// FetchCompleted is called once per fetched URL, after retries.
	FetchCompleted(domain string, outcome model.FetchOutcome)

	// PageDiscovered is called when a URL is recorded in the results.
	PageDiscovered(domain string, depth int)

	// DomainCompleted is called when a domain crawl returns, including
	// crawls that failed.
	DomainCompleted(result *model.DomainResult)
}

type nopObserver struct{}

func (nopObserver) FetchCompleted(string, model.FetchOutcome) {}
func (nopObserver) PageDiscovered(string, int)                {}
func (nopObserver) DomainCompleted(*model.DomainResult)       {}
