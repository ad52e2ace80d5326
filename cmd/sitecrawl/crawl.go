package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/websearchtool/sitecrawl/internal/config"
	"github.com/websearchtool/sitecrawl/internal/crawler"
	"github.com/websearchtool/sitecrawl/internal/database"
	"github.com/websearchtool/sitecrawl/internal/metrics"
	"github.com/websearchtool/sitecrawl/internal/pipeline"
	"github.com/websearchtool/sitecrawl/internal/publish"
	"github.com/websearchtool/sitecrawl/internal/report"
	"github.com/websearchtool/sitecrawl/internal/telemetry"
	"github.com/websearchtool/sitecrawl/internal/transport"
)

// postCrawlTimeout bounds the post-crawl steps (report, database, Kafka).
// They run on a context detached from the crawl so an interrupted crawl
// still gets reported.
const postCrawlTimeout = 2 * time.Minute

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Crawl one or more web sites",
		Long: `Crawl explores every seed's site breadth-first and reports the URLs
found on each site, grouped by link depth.

Only the first seed of each site is crawled. Links to other hosts are never
followed. Fetches are shared across sites through one concurrency limit and
every request waits for the politeness delay first.

Examples:
  # Crawl two sites with the defaults (depth 2, 8 pages per site)
  sitecrawl crawl https://example.com https://example.org

  # Read seeds from a file, one URL per line
  sitecrawl crawl --list seeds.txt

  # Deeper crawl with more pages and a JSON report written to a file
  sitecrawl crawl -d 3 -p 50 --json -o reports/run.json https://example.com

  # Route every request through a SOCKS5 proxy
  sitecrawl crawl --proxy 127.0.0.1:9050 https://example.com

  # Expose Prometheus metrics while crawling
  sitecrawl crawl --metrics-addr :9090 --list seeds.txt

Configuration file (.sitecrawl) example:
  crawl:
    delay: 500ms
  sites:
    example.com:
      cookie: "session_id=abc123"
      maxDepth: 4
      ignorePatterns:
        - "/logout*"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Seeds and configuration
	cmd.Flags().StringP("list", "l", "",
		"File with one seed URL per line (blank lines and # comments are skipped)")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitecrawl in current or home directory)")

	// Crawl limits
	cmd.Flags().IntP("concurrency", "n", config.DefaultMaxConcurrent,
		"Maximum number of fetches in flight across all sites")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link depth from the seed (0 fetches only the seed)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages fetched per site")
	cmd.Flags().Int("domain-concurrency", 0,
		"Maximum number of sites crawled at once (0 means no limit)")

	// Request behavior
	cmd.Flags().Duration("delay", config.DefaultDelay,
		"Politeness delay before every request")
	cmd.Flags().Duration("connect-timeout", config.DefaultConnectTimeout,
		"Timeout for establishing a connection")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for a whole request, body included")
	cmd.Flags().Int("retries", 0,
		"Extra attempts for timeouts, 429 and 5xx responses")
	cmd.Flags().Duration("retry-delay", config.DefaultRetryDelay,
		"Initial backoff between retries (doubles each attempt)")
	cmd.Flags().Duration("retry-max-delay", config.DefaultRetryMaxDelay,
		"Maximum backoff between retries")
	cmd.Flags().Float64("rate", 0,
		"Maximum requests per second across all sites (0 means unlimited)")
	cmd.Flags().Int("burst", 1,
		"Burst size for --rate")
	cmd.Flags().StringP("user-agent", "A", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum number of body bytes read per response")

	// Scope
	cmd.Flags().StringSlice("allow", nil,
		"Only crawl seeds on these domains and their subdomains")
	cmd.Flags().StringSlice("block", nil,
		"Never crawl seeds on these domains and their subdomains")

	// Transport
	cmd.Flags().StringP("proxy", "x", "",
		"SOCKS5 proxy address for all requests (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route requests through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Report
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().BoolP("summary", "s", false,
		"Print per-site counts without listing URLs")

	// Results database
	cmd.Flags().String("db-dir", "",
		"Directory of the results database (default: XDG data directory)")
	cmd.Flags().Bool("no-save", false,
		"Do not store the results in the database")

	// Integrations
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address during the crawl (e.g., :9090)")
	cmd.Flags().StringSlice("kafka-brokers", nil,
		"Kafka brokers to publish results to")
	cmd.Flags().String("kafka-topic", config.DefaultKafkaTopic,
		"Kafka topic for published results")
	cmd.Flags().String("otlp-endpoint", "",
		"OpenTelemetry collector (gRPC) for crawl traces, e.g. localhost:4317")
	cmd.Flags().Bool("otlp-insecure", false,
		"Connect to the OpenTelemetry collector without TLS")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), logger)
}

// buildConfig creates a Config from defaults, the configuration file and
// the command-line flags, in that order of precedence.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicit config path must exist; otherwise a missing file just
	// means no file settings.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if err := file.Apply(cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	setters := []error{
		changedInt(cmd, "concurrency", &cfg.MaxConcurrent),
		changedInt(cmd, "depth", &cfg.MaxDepth),
		changedInt(cmd, "max-pages", &cfg.MaxPages),
		changedInt(cmd, "domain-concurrency", &cfg.DomainConcurrency),
		changedDuration(cmd, "delay", &cfg.Delay),
		changedDuration(cmd, "connect-timeout", &cfg.ConnectTimeout),
		changedDuration(cmd, "timeout", &cfg.Timeout),
		changedInt(cmd, "retries", &cfg.MaxRetries),
		changedDuration(cmd, "retry-delay", &cfg.RetryDelay),
		changedDuration(cmd, "retry-max-delay", &cfg.RetryMaxDelay),
		changedFloat(cmd, "rate", &cfg.RequestsPerSecond),
		changedInt(cmd, "burst", &cfg.Burst),
		changedString(cmd, "user-agent", &cfg.UserAgent),
		changedInt64(cmd, "max-body-size", &cfg.MaxBodySize),
		changedStrings(cmd, "allow", &cfg.AllowedDomains),
		changedStrings(cmd, "block", &cfg.BlockedDomains),
		changedString(cmd, "proxy", &cfg.ProxyAddress),
		changedDuration(cmd, "tor-timeout", &cfg.TorStartupTimeout),
		changedString(cmd, "db-dir", &cfg.DBDir),
		changedString(cmd, "metrics-addr", &cfg.MetricsAddr),
		changedStrings(cmd, "kafka-brokers", &cfg.KafkaBrokers),
		changedString(cmd, "kafka-topic", &cfg.KafkaTopic),
		changedString(cmd, "otlp-endpoint", &cfg.OTLPEndpoint),
	}
	if err := errors.Join(setters...); err != nil {
		return nil, err
	}

	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.OTLPInsecure, err = flags.GetBool("otlp-insecure"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.SummaryOnly, err = flags.GetBool("summary"); err != nil {
		return nil, err
	}
	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	listPath, err := flags.GetString("list")
	if err != nil {
		return nil, err
	}
	cfg.Seeds = append(cfg.Seeds, args...)
	if listPath != "" {
		seeds, err := readSeedList(listPath)
		if err != nil {
			return nil, err
		}
		cfg.Seeds = append(cfg.Seeds, seeds...)
	}

	return cfg, nil
}

// The changed* helpers copy a flag into dst only when the user set it, so
// that values from the configuration file survive flag defaults.

func changedInt(cmd *cobra.Command, name string, dst *int) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func changedInt64(cmd *cobra.Command, name string, dst *int64) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetInt64(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func changedFloat(cmd *cobra.Command, name string, dst *float64) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func changedDuration(cmd *cobra.Command, name string, dst *time.Duration) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetDuration(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func changedString(cmd *cobra.Command, name string, dst *string) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func changedStrings(cmd *cobra.Command, name string, dst *[]string) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// readSeedList reads one seed per line. Blank lines and lines starting with
// '#' are skipped.
func readSeedList(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open seed list: %w", err)
	}
	defer f.Close()

	var seeds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seed list %s: %w", path, err)
	}
	return seeds, nil
}

// runCrawl executes the crawl and the post-crawl pipeline.
//
// An interrupted crawl still runs the pipeline with the partial results and
// then returns the interruption as an error.
func runCrawl(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) error {
	logger.Info("starting crawl",
		"seeds", len(cfg.Seeds),
		"maxConcurrent", cfg.MaxConcurrent,
		"maxDepth", cfg.MaxDepth,
		"maxPages", cfg.MaxPages,
		"saveToDB", cfg.SaveToDB,
	)

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		ServiceName:    config.AppName,
		Version:        getVersion(),
		ConnectTimeout: cfg.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	// Open outputs before crawling so that a bad path fails fast.
	p, closeOutputs, err := buildPipeline(cfg, stdout, logger)
	if err != nil {
		return err
	}
	defer closeOutputs()

	proxyAddr, stopTor, err := resolveProxy(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stopTor()

	client, err := transport.NewHTTPClient(transport.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		Timeout:        cfg.Timeout,
		ProxyAddress:   proxyAddr,
		MaxRedirects:   transport.DefaultMaxRedirects,
		SiteHeaders:    siteHeaders(cfg.SiteConfigs),
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	var observer crawler.Observer
	if cfg.MetricsAddr != "" {
		recorder, stopMetrics, err := startMetrics(ctx, cfg.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
		observer = recorder
	}

	fetcher := crawler.NewHTTPFetcher(client,
		crawler.WithConcurrency(cfg.MaxConcurrent),
		crawler.WithDelay(cfg.Delay),
		crawler.WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
		crawler.WithRetries(cfg.MaxRetries, cfg.RetryDelay, cfg.RetryMaxDelay),
		crawler.WithFetchObserver(observer),
		crawler.WithFetchLogger(logger),
	)

	orchestrator := crawler.NewOrchestrator(fetcher,
		crawler.WithDomainLimits(cfg.MaxDepth, cfg.MaxPages),
		crawler.WithFetchBatchSize(cfg.MaxConcurrent),
		crawler.WithDomainConcurrency(cfg.DomainConcurrency),
		crawler.WithAllowedDomains(cfg.AllowedDomains),
		crawler.WithBlockedDomains(cfg.BlockedDomains),
		crawler.WithSiteOptions(siteOptions(cfg.SiteConfigs)),
		crawler.WithRunObserver(observer),
		crawler.WithOrchestratorLogger(logger),
	)

	crawlReport, crawlErr := orchestrator.Run(ctx, cfg.Seeds)
	if crawlReport == nil {
		return crawlErr
	}

	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postCrawlTimeout)
	defer cancel()
	pipelineErr := p.Execute(postCtx, crawlReport)

	switch {
	case errors.Is(crawlErr, context.Canceled), errors.Is(crawlErr, context.DeadlineExceeded):
		crawlErr = fmt.Errorf("crawl interrupted, results are partial: %w", crawlErr)
	case crawlErr != nil:
		crawlErr = fmt.Errorf("crawl failed: %w", crawlErr)
	}
	return errors.Join(crawlErr, pipelineErr)
}

// buildPipeline assembles the post-crawl steps: write the report, save it
// to the results database, publish it to Kafka. The returned func releases
// every opened output.
func buildPipeline(cfg *config.Config, stdout io.Writer, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("failed to close output", "error", err)
			}
		}
	}

	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	)

	output, closeOutput, err := openReportOutput(cfg.ReportFile, stdout)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, closeOutput)
	p.AddSteps(pipeline.NewWriteReportStep(newReportWriter(cfg, output)))

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		logger.Info("database opened", "path", db.Path())
		closers = append(closers, db.Close)
		p.AddSteps(pipeline.NewSaveResultsStep(db))
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := publish.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to create publisher: %w", err)
		}
		closers = append(closers, publisher.Close)
		p.AddSteps(pipeline.NewPublishStep(publisher))
	}

	logger.Debug("post-crawl pipeline", "steps", p.StepNames())
	return p, closeAll, nil
}

// openReportOutput returns stdout, or the report file created with owner-only
// permissions. Parent directories are created as needed.
func openReportOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// newReportWriter picks the report format requested in cfg.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output,
			report.WithPrettyPrint(),
			report.WithVersion(getVersion()),
		)
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output,
			report.WithSummaryOnly(cfg.SummaryOnly),
			report.WithVerbose(cfg.Verbose),
		)
	}
}

// resolveProxy returns the SOCKS5 address requests should use, starting the
// embedded Tor daemon when asked to. The returned func stops the daemon.
func resolveProxy(ctx context.Context, cfg *config.Config, logger *slog.Logger) (string, func(), error) {
	noop := func() {}

	if cfg.UseTor {
		fmt.Fprintln(os.Stderr, "Starting embedded Tor daemon (this may take a minute)...")
		embedded := transport.NewEmbeddedTor(cfg.TorStartupTimeout)
		if err := embedded.Start(ctx); err != nil {
			return "", noop, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		stop := func() {
			logger.Info("stopping embedded Tor daemon")
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}

		addr, err := embedded.SocksAddr()
		if err != nil {
			stop()
			return "", noop, err
		}
		logger.Info("embedded Tor daemon ready", "socksAddr", addr)
		return addr, stop, nil
	}

	if cfg.ProxyAddress == "" {
		return "", noop, nil
	}

	if status := transport.CheckProxy(ctx, cfg.ProxyAddress); status != transport.ProxyStatusOK {
		return "", noop, fmt.Errorf("proxy check failed for %s: %w", cfg.ProxyAddress, status.Err())
	}
	logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
	return cfg.ProxyAddress, noop, nil
}

// startMetrics serves a fresh Recorder on addr until the returned func is
// called.
func startMetrics(ctx context.Context, addr string, logger *slog.Logger) (*metrics.Recorder, func(), error) {
	recorder, err := metrics.NewRecorder()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metrics recorder: %w", err)
	}

	server, err := metrics.Listen(addr, recorder, logger)
	if err != nil {
		return nil, nil, err
	}

	// The endpoint outlives an interrupted crawl until the report is out.
	serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(serveCtx); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", server.Addr())

	return recorder, func() {
		cancel()
		<-done
	}, nil
}

// siteHeaders returns the transport hook that adds per-site cookies and
// headers from the configuration file.
func siteHeaders(file *config.File) transport.HeaderFunc {
	if file == nil {
		return nil
	}
	return func(host string) (string, map[string]string) {
		site := file.GetSiteConfig(host)
		return site.Cookie, site.Headers
	}
}

// siteOptions returns the per-domain Spider overrides from the
// configuration file.
func siteOptions(file *config.File) crawler.SiteOptionsFunc {
	if file == nil {
		return nil
	}
	return func(domain string) []crawler.SpiderOption {
		site := file.GetSiteConfig(domain)

		var opts []crawler.SpiderOption
		if site.MaxDepth != nil {
			opts = append(opts, crawler.WithMaxDepth(*site.MaxDepth))
		}
		if site.MaxPages != nil {
			opts = append(opts, crawler.WithMaxPages(*site.MaxPages))
		}
		if len(site.IgnorePatterns) > 0 {
			opts = append(opts, crawler.WithIgnorePatterns(site.IgnorePatterns))
		}
		if len(site.FollowPatterns) > 0 {
			opts = append(opts, crawler.WithFollowPatterns(site.FollowPatterns))
		}
		return opts
	}
}
