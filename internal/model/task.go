package model

import "time"

// CrawlTask is a unit of work for a domain crawler: one URL at one depth.
// Tasks are values; a task is consumed once when it is popped from a frontier.
type CrawlTask struct {
	// URL is the normalized absolute URL to fetch.
	URL string

	// Depth is the number of link hops from the seed. The seed is depth 0.
	Depth int
}

// FetchStatus classifies the result of a single fetch attempt.
type FetchStatus int

const (
	// StatusOK means the server answered. The HTTP code is recorded in
	// FetchOutcome.Code and the body is only populated for 2xx responses.
	StatusOK FetchStatus = iota

	// StatusTimeout means the request did not complete within the timeout.
	StatusTimeout

	// StatusError means a transport-level failure (DNS, refused, TLS, reset).
	StatusError
)

// String returns the lower-case name of the status.
func (s FetchStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// FetchOutcome is what a fetcher returns for one URL.
// Failures are encoded here rather than returned as errors so that one bad
// page never aborts a batch.
type FetchOutcome struct {
	// URL is the URL that was requested.
	URL string

	// Status is the outcome kind.
	Status FetchStatus

	// Code is the HTTP status code when Status is StatusOK.
	Code int

	// Body is the decoded (UTF-8) response body. Empty for non-2xx responses.
	Body string

	// ContentType is the response Content-Type header.
	ContentType string

	// Reason describes the failure for StatusError and StatusTimeout.
	Reason string

	// Attempts is the number of requests made, including retries.
	Attempts int

	// Elapsed is the wall time spent on the fetch, excluding the wait for a
	// concurrency slot.
	Elapsed time.Duration
}

// IsContent reports whether the outcome carries a page worth recording and
// parsing: a 200 response with a non-empty body.
func (o FetchOutcome) IsContent() bool {
	return o.Status == StatusOK && o.Code == 200 && o.Body != ""
}
