// Package crawler discovers pages reachable from a set of seed URLs.
//
// # Architecture
//
// The package is built from small parts, leaf to root:
//
//   - Normalize, DomainOf and IsInScope canonicalize and classify URLs
//   - Parser extracts anchor links from HTML
//   - HTTPFetcher performs one rate-limited, concurrency-bounded GET
//   - Frontier holds the pending queue, visited set and page budget of a domain
//   - Spider runs a breadth-first crawl of one domain
//   - Orchestrator runs one Spider per seed domain concurrently
//
// Each domain is crawled in batches of a single depth: every URL at depth d
// is fetched and its links queued before any URL at depth d+1 is fetched.
// A URL is marked visited when it leaves the frontier, so the first depth at
// which a URL is discovered is the only depth it is recorded at.
//
// The only state shared between domains is the fetcher's semaphore, which
// bounds the number of requests in flight for the whole process. Frontiers
// are owned by a single goroutine and need no locking.
//
// # Politeness
//
//   - A fixed delay is waited after acquiring a fetch slot and before each request
//   - An optional token bucket caps the overall request rate
//   - Only the seed's exact host is crawled; subdomains are separate domains
//   - Page budget and depth limit bound the work per domain
//
// robots.txt is not consulted.
//
// # Usage
//
//	fetcher := crawler.NewHTTPFetcher(client, crawler.WithConcurrency(8))
//	o := crawler.NewOrchestrator(fetcher, crawler.WithDomainLimits(2, 8))
//	discovered, err := o.Crawl(ctx, []string{"https://example.com/"})
package crawler
