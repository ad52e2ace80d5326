// Package database keeps the history of crawl runs in a single SQLite file
// (modernc.org/sqlite, no cgo) under the XDG data directory.
//
// Every saved run is stored whole as JSON for exact replay, and split into
// domain_results and discovered_urls rows so that the history and compare
// commands can query one domain across runs.
package database
