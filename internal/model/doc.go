// Package model defines the data structures shared by the crawler, the
// report writers and the results database.
//
// The main types are:
//   - CrawlTask and FetchOutcome: one unit of fetch work and its result
//   - URLSet, DepthMap and DiscoveredMap: domain -> depth -> URLs
//   - DomainResult: what one domain crawl produced
//   - CrawlReport: the result of a whole run across all domains
//
// The types live in their own package so that crawler, report and database
// can share them without import cycles. Result types are JSON-serializable
// for reports and storage.
package model
