package config

import (
	"fmt"
	"maps"
	"net"
	"sort"
	"strings"
	"time"
)

// SiteConfig holds settings for a single domain.
type SiteConfig struct {
	// Cookie is sent with every request to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty" toml:"cookie,omitempty"`

	// Headers are extra HTTP headers sent with every request to this site.
	Headers map[string]string `yaml:"headers,omitempty" toml:"headers,omitempty"`

	// MaxDepth overrides the global crawl depth. nil keeps the global value;
	// 0 crawls only the seed.
	MaxDepth *int `yaml:"maxDepth,omitempty" toml:"maxDepth,omitempty"`

	// MaxPages overrides the global page budget.
	MaxPages *int `yaml:"maxPages,omitempty" toml:"maxPages,omitempty"`

	// IgnorePatterns are URL path globs that are never crawled.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty" toml:"ignorePatterns,omitempty"`

	// FollowPatterns, when set, restrict crawling to matching paths.
	FollowPatterns []string `yaml:"followPatterns,omitempty" toml:"followPatterns,omitempty"`
}

// IsZero reports whether the site config changes nothing.
func (s SiteConfig) IsZero() bool {
	return s.Cookie == "" &&
		len(s.Headers) == 0 &&
		s.MaxDepth == nil &&
		s.MaxPages == nil &&
		len(s.IgnorePatterns) == 0 &&
		len(s.FollowPatterns) == 0
}

// CrawlSettings are global defaults read from the config file.
// Flags given on the command line take precedence over them.
// Durations use time.ParseDuration syntax ("1s", "500ms").
type CrawlSettings struct {
	MaxConcurrent     *int     `yaml:"maxConcurrent,omitempty" toml:"maxConcurrent,omitempty"`
	MaxDepth          *int     `yaml:"maxDepth,omitempty" toml:"maxDepth,omitempty"`
	MaxPages          *int     `yaml:"maxPages,omitempty" toml:"maxPages,omitempty"`
	DomainConcurrency *int     `yaml:"domainConcurrency,omitempty" toml:"domainConcurrency,omitempty"`
	Delay             string   `yaml:"delay,omitempty" toml:"delay,omitempty"`
	ConnectTimeout    string   `yaml:"connectTimeout,omitempty" toml:"connectTimeout,omitempty"`
	Timeout           string   `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	MaxRetries        *int     `yaml:"maxRetries,omitempty" toml:"maxRetries,omitempty"`
	RetryDelay        string   `yaml:"retryDelay,omitempty" toml:"retryDelay,omitempty"`
	RetryMaxDelay     string   `yaml:"retryMaxDelay,omitempty" toml:"retryMaxDelay,omitempty"`
	RequestsPerSecond *float64 `yaml:"requestsPerSecond,omitempty" toml:"requestsPerSecond,omitempty"`
	Burst             *int     `yaml:"burst,omitempty" toml:"burst,omitempty"`
	UserAgent         string   `yaml:"userAgent,omitempty" toml:"userAgent,omitempty"`
	MaxBodySize       *int64   `yaml:"maxBodySize,omitempty" toml:"maxBodySize,omitempty"`
	Proxy             string   `yaml:"proxy,omitempty" toml:"proxy,omitempty"`
	MetricsAddr       string   `yaml:"metricsAddr,omitempty" toml:"metricsAddr,omitempty"`
	KafkaBrokers      []string `yaml:"kafkaBrokers,omitempty" toml:"kafkaBrokers,omitempty"`
	KafkaTopic        string   `yaml:"kafkaTopic,omitempty" toml:"kafkaTopic,omitempty"`
	OTLPEndpoint      string   `yaml:"otlpEndpoint,omitempty" toml:"otlpEndpoint,omitempty"`
}

// File represents the structure of the configuration file.
type File struct {
	// Crawl holds global defaults for the crawl command.
	Crawl CrawlSettings `yaml:"crawl,omitempty" toml:"crawl,omitempty"`

	// AllowedDomains restricts seeds to these domains and their subdomains.
	AllowedDomains []string `yaml:"allowedDomains,omitempty" toml:"allowedDomains,omitempty"`

	// BlockedDomains drops seeds on these domains and their subdomains.
	BlockedDomains []string `yaml:"blockedDomains,omitempty" toml:"blockedDomains,omitempty"`

	// Defaults applies to every site unless overridden in Sites.
	Defaults SiteConfig `yaml:"defaults,omitempty" toml:"defaults,omitempty"`

	// Sites maps a domain (host or host:port) to its settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty" toml:"sites,omitempty"`
}

// GetSiteConfig returns the settings for domain: the defaults overridden
// by the site entry, if any. Domain lookup is case-insensitive. A domain
// with a port matches a "host:port" entry first and then a bare "host" entry.
func (cf *File) GetSiteConfig(domain string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	site, ok := cf.lookupSite(domain)
	if !ok {
		if host, _, err := net.SplitHostPort(domain); err == nil {
			site, ok = cf.lookupSite(host)
		}
	}
	if !ok {
		return result
	}

	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if site.MaxDepth != nil {
		result.MaxDepth = site.MaxDepth
	}
	if site.MaxPages != nil {
		result.MaxPages = site.MaxPages
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(site.Headers))
		}
		maps.Copy(result.Headers, site.Headers)
	}
	if len(site.IgnorePatterns) > 0 {
		result.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 {
		result.FollowPatterns = site.FollowPatterns
	}

	return result
}

func (cf *File) lookupSite(domain string) (SiteConfig, bool) {
	if site, ok := cf.Sites[domain]; ok {
		return site, true
	}
	for k, v := range cf.Sites {
		if strings.EqualFold(k, domain) {
			return v, true
		}
	}
	return SiteConfig{}, false
}

// validateSites checks the depth and page overrides of the defaults and
// of every site entry.
func (cf *File) validateSites() error {
	if err := cf.Defaults.validate("defaults"); err != nil {
		return err
	}
	names := make([]string, 0, len(cf.Sites))
	for name := range cf.Sites {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := cf.Sites[name].validate("sites." + name); err != nil {
			return err
		}
	}
	return nil
}

func (s SiteConfig) validate(key string) error {
	if s.MaxDepth != nil && *s.MaxDepth < 0 {
		return fmt.Errorf("%w for %s: %d", ErrInvalidMaxDepth, key, *s.MaxDepth)
	}
	if s.MaxPages != nil && *s.MaxPages < 1 {
		return fmt.Errorf("%w for %s: %d", ErrInvalidMaxPages, key, *s.MaxPages)
	}
	return nil
}

// Apply copies the file's global settings into c. It is called before
// command-line flags are applied, so flags win.
func (cf *File) Apply(c *Config) error {
	if err := cf.validateSites(); err != nil {
		return err
	}
	s := cf.Crawl

	setInt(&c.MaxConcurrent, s.MaxConcurrent)
	setInt(&c.MaxDepth, s.MaxDepth)
	setInt(&c.MaxPages, s.MaxPages)
	setInt(&c.DomainConcurrency, s.DomainConcurrency)
	setInt(&c.MaxRetries, s.MaxRetries)
	setInt(&c.Burst, s.Burst)
	if s.RequestsPerSecond != nil {
		c.RequestsPerSecond = *s.RequestsPerSecond
	}
	if s.MaxBodySize != nil {
		c.MaxBodySize = *s.MaxBodySize
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"crawl.delay", s.Delay, &c.Delay},
		{"crawl.connectTimeout", s.ConnectTimeout, &c.ConnectTimeout},
		{"crawl.timeout", s.Timeout, &c.Timeout},
		{"crawl.retryDelay", s.RetryDelay, &c.RetryDelay},
		{"crawl.retryMaxDelay", s.RetryMaxDelay, &c.RetryMaxDelay},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%w for %s: %q", ErrInvalidDuration, d.key, d.value)
		}
		*d.dst = parsed
	}

	setString(&c.UserAgent, s.UserAgent)
	setString(&c.ProxyAddress, s.Proxy)
	setString(&c.MetricsAddr, s.MetricsAddr)
	setString(&c.KafkaTopic, s.KafkaTopic)
	setString(&c.OTLPEndpoint, s.OTLPEndpoint)
	if len(s.KafkaBrokers) > 0 {
		c.KafkaBrokers = s.KafkaBrokers
	}

	if len(cf.AllowedDomains) > 0 {
		c.AllowedDomains = cf.AllowedDomains
	}
	if len(cf.BlockedDomains) > 0 {
		c.BlockedDomains = cf.BlockedDomains
	}

	c.SiteConfigs = cf
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
