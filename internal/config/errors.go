package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers can match them with errors.Is.
var (
	// ErrNoSeeds is returned when neither arguments nor --list provide a seed URL.
	ErrNoSeeds = errors.New("no seed specified: provide a URL or use --list")

	// ErrInvalidConcurrency is returned when the fetch concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidMaxDepth is returned when the crawl depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the page budget is not positive.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidDomainConcurrency is returned when the domain cap is negative.
	ErrInvalidDomainConcurrency = errors.New("invalid domain concurrency: must be non-negative")

	// ErrInvalidDelay is returned when the politeness delay is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRetries is returned when a retry setting is negative.
	ErrInvalidRetries = errors.New("invalid retry settings: must be non-negative")

	// ErrInvalidRateLimit is returned when the rate or burst is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingTransports is returned when both --tor and --proxy are specified.
	ErrConflictingTransports = errors.New("conflicting transports: --tor and --proxy cannot be used together")

	// ErrMissingKafkaTopic is returned when brokers are set without a topic.
	ErrMissingKafkaTopic = errors.New("kafka brokers configured without a topic")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrUnknownConfigKey is returned when a configuration file contains a
	// key that is not recognized.
	ErrUnknownConfigKey = errors.New("unknown configuration key")

	// ErrInvalidDuration is returned when a duration in the configuration file
	// cannot be parsed.
	ErrInvalidDuration = errors.New("invalid duration")
)
