package model

import (
	"sort"
	"time"
)

// DomainResult holds what one domain crawler produced.
//
// Discovered is never nil. When the crawler failed or panicked, Discovered
// is empty and Error describes what happened; the rest of the run is not
// affected.
type DomainResult struct {
	// Domain is the network location (host[:port]) the crawl was scoped to.
	Domain string `json:"domain"`

	// Seed is the normalized seed URL the crawl started from.
	Seed string `json:"seed"`

	// Discovered maps depth to the URLs fetched successfully at that depth.
	Discovered DepthMap `json:"discovered"`

	// PagesAdmitted is the number of URLs taken from the frontier.
	// It counts against the page budget whether or not the fetch succeeded.
	PagesAdmitted int `json:"pages_admitted"`

	// FetchFailures is the number of admitted URLs that did not yield content.
	FetchFailures int `json:"fetch_failures"`

	// StartedAt is when the domain crawl began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the domain crawl returned.
	FinishedAt time.Time `json:"finished_at"`

	// Error is set when the crawl was cut short.
	Error string `json:"error,omitempty"`
}

// NewDomainResult returns an empty result for domain.
func NewDomainResult(domain, seed string) *DomainResult {
	return &DomainResult{
		Domain:     domain,
		Seed:       seed,
		Discovered: make(DepthMap),
		StartedAt:  time.Now(),
	}
}

// Duration returns how long the domain crawl ran.
func (r *DomainResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// DroppedSeed records a seed that was not crawled and why.
type DroppedSeed struct {
	// URL is the seed as given by the user.
	URL string `json:"url"`

	// Reason is a short human-readable explanation.
	Reason string `json:"reason"`
}

// CrawlReport is the full result of one crawl run across all domains.
type CrawlReport struct {
	// ID uniquely identifies the run. It is the primary key in the history
	// database.
	ID string `json:"id"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the last domain finished.
	FinishedAt time.Time `json:"finished_at"`

	// Seeds are the seeds as given, in order.
	Seeds []string `json:"seeds"`

	// DroppedSeeds are the seeds that did not start a domain crawl.
	DroppedSeeds []DroppedSeed `json:"dropped_seeds,omitempty"`

	// Domains holds one result per crawled domain, keyed by domain.
	Domains map[string]*DomainResult `json:"domains"`

	// Cancelled is true when the run was interrupted and results are partial.
	Cancelled bool `json:"cancelled,omitempty"`
}

// NewCrawlReport creates an empty report with the given run ID.
func NewCrawlReport(id string, seeds []string) *CrawlReport {
	return &CrawlReport{
		ID:        id,
		StartedAt: time.Now(),
		Seeds:     append([]string(nil), seeds...),
		Domains:   make(map[string]*DomainResult),
	}
}

// Discovered flattens the report into a DiscoveredMap.
// Every crawled domain has an entry, including domains with no results.
func (r *CrawlReport) Discovered() DiscoveredMap {
	out := make(DiscoveredMap, len(r.Domains))
	for domain, res := range r.Domains {
		if res == nil || res.Discovered == nil {
			out[domain] = make(DepthMap)
			continue
		}
		out[domain] = res.Discovered
	}
	return out
}

// SortedDomains returns the domain results ordered by domain name.
func (r *CrawlReport) SortedDomains() []*DomainResult {
	keys := make([]string, 0, len(r.Domains))
	for k := range r.Domains {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*DomainResult, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.Domains[k])
	}
	return out
}

// TotalURLs returns the number of URLs discovered across all domains.
func (r *CrawlReport) TotalURLs() int {
	return r.Discovered().Total()
}

// FailedDomains returns the number of domains whose crawl ended with an error.
func (r *CrawlReport) FailedDomains() int {
	n := 0
	for _, res := range r.Domains {
		if res != nil && res.Error != "" {
			n++
		}
	}
	return n
}

// Duration returns the wall time of the run.
func (r *CrawlReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
