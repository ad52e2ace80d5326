package crawler

import "errors"

var (
	// ErrNoSeeds is returned when a crawl is started without any seed URL.
	ErrNoSeeds = errors.New("at least one seed URL is required")

	// ErrNoUsableSeeds is returned when every seed was malformed or filtered
	// out by the domain allow and block lists.
	ErrNoUsableSeeds = errors.New("no seed URL could be crawled")

	// ErrRelativeBaseURL is returned when a parser is created with a base URL
	// that is not absolute.
	ErrRelativeBaseURL = errors.New("base URL must be absolute")

	// ErrInvalidSeed is returned when a seed URL cannot be normalized.
	ErrInvalidSeed = errors.New("invalid seed URL")

	// ErrDomainPanic is recorded for a domain whose crawler panicked.
	ErrDomainPanic = errors.New("domain crawler panicked")
)
