// Package metrics exports crawl progress to Prometheus.
//
// A Recorder is passed to the crawler as its Observer and counts fetches by
// outcome, retries, HTTP status codes, discovered pages and finished domain
// crawls. Listen and Serve expose the recorder's registry at /metrics.
package metrics
