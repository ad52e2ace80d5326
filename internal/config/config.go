package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitecrawl"

	// DefaultMaxConcurrent is the number of fetches allowed in flight across
	// all domains.
	DefaultMaxConcurrent = 8

	// DefaultMaxDepth is the number of link hops followed from each seed.
	// Depth 0 fetches only the seed.
	DefaultMaxDepth = 2

	// DefaultMaxPages is the page budget per domain. Failed fetches count.
	DefaultMaxPages = 8

	// DefaultDelay is the politeness delay waited before every request.
	DefaultDelay = 1 * time.Second

	// DefaultConnectTimeout bounds TCP connection establishment.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultTimeout bounds a whole request, body included.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryDelay is the first backoff wait when retries are enabled.
	DefaultRetryDelay = 1 * time.Second

	// DefaultRetryMaxDelay caps every backoff wait, Retry-After included.
	DefaultRetryMaxDelay = 30 * time.Second

	// DefaultUserAgent is a browser-like User-Agent that still names the tool.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0 sitecrawl/1.0"

	// DefaultMaxBodySize limits the response body size to read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultKafkaTopic is the topic crawl reports are published to.
	DefaultKafkaTopic = "sitecrawl.reports"
)

// Config holds all configuration options for a crawl run.
// It is populated from the config file and CLI flags and passed down
// explicitly; there is no global configuration.
type Config struct {
	// Seeds are the URLs the crawl starts from. The first seed of each
	// domain wins.
	Seeds []string

	// MaxConcurrent is the number of fetches in flight across all domains.
	// It is also the batch size of each domain crawl.
	MaxConcurrent int

	// MaxDepth is the maximum number of link hops from a seed.
	MaxDepth int

	// MaxPages is the page budget per domain.
	MaxPages int

	// DomainConcurrency caps how many domains are crawled at once.
	// 0 means no cap.
	DomainConcurrency int

	// Delay is the politeness delay waited after acquiring a fetch slot and
	// before sending the request.
	Delay time.Duration

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// Timeout bounds a whole request.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts for transient failures.
	// 0 disables retrying.
	MaxRetries int

	// RetryDelay is the initial backoff; it doubles on each retry.
	RetryDelay time.Duration

	// RetryMaxDelay caps each backoff wait.
	RetryMaxDelay time.Duration

	// RequestsPerSecond caps the overall request rate. 0 means unlimited.
	RequestsPerSecond float64

	// Burst is the token bucket size used with RequestsPerSecond.
	Burst int

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// MaxBodySize is the maximum number of body bytes read per response.
	MaxBodySize int64

	// AllowedDomains restricts seeds to these domains and their subdomains.
	// Empty means every domain is allowed.
	AllowedDomains []string

	// BlockedDomains drops seeds on these domains and their subdomains.
	BlockedDomains []string

	// ProxyAddress is an optional SOCKS5 proxy ("host:port") for all requests.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes requests through it.
	// Mutually exclusive with ProxyAddress.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon to bootstrap.
	TorStartupTimeout time.Duration

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON lines.
	LogJSON bool

	// ConfigFilePath is an explicit configuration file path.
	ConfigFilePath string

	// SiteConfigs holds the per-site settings loaded from the config file.
	SiteConfigs *File

	// JSONReport selects JSON report output. Mutually exclusive with
	// MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown report output.
	MarkdownReport bool

	// ReportFile is the output path for the report. Empty means stdout.
	ReportFile string

	// SummaryOnly prints per-domain counts without listing URLs in the
	// text report.
	SummaryOnly bool

	// DBDir is the directory holding the results database.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB stores the crawl report in the results database.
	SaveToDB bool

	// MetricsAddr is the listen address of the Prometheus endpoint.
	// Empty disables the endpoint.
	MetricsAddr string

	// KafkaBrokers are the brokers crawl reports are published to.
	// Empty disables publishing.
	KafkaBrokers []string

	// KafkaTopic is the topic crawl reports are published to.
	KafkaTopic string

	// OTLPEndpoint is the OpenTelemetry collector address for traces.
	// Empty disables trace export.
	OTLPEndpoint string

	// OTLPInsecure disables TLS for the OTLP connection.
	OTLPInsecure bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxConcurrent:     DefaultMaxConcurrent,
		MaxDepth:          DefaultMaxDepth,
		MaxPages:          DefaultMaxPages,
		Delay:             DefaultDelay,
		ConnectTimeout:    DefaultConnectTimeout,
		Timeout:           DefaultTimeout,
		RetryDelay:        DefaultRetryDelay,
		RetryMaxDelay:     DefaultRetryMaxDelay,
		Burst:             1,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
		KafkaTopic:        DefaultKafkaTopic,
	}
}

// XDGDataDir returns the XDG data directory for sitecrawl.
// On Linux: ~/.local/share/sitecrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitecrawl.
// On Linux: ~/.config/sitecrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as one of the sentinel errors.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeeds
	}
	if c.MaxConcurrent <= 0 {
		return ErrInvalidConcurrency
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.DomainConcurrency < 0 {
		return ErrInvalidDomainConcurrency
	}
	if c.Delay < 0 {
		return ErrInvalidDelay
	}
	if c.ConnectTimeout <= 0 || c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxRetries < 0 || c.RetryDelay < 0 || c.RetryMaxDelay < 0 {
		return ErrInvalidRetries
	}
	if c.RequestsPerSecond < 0 || c.Burst < 0 {
		return ErrInvalidRateLimit
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingTransports
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return ErrMissingKafkaTopic
	}
	return nil
}
