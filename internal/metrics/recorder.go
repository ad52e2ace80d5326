package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/websearchtool/sitecrawl/internal/model"
)

const namespace = "sitecrawl"

// Outcome labels for fetch metrics.
const (
	OutcomeContent = "content"
	OutcomeHTTP    = "http_status"
	OutcomeEmpty   = "empty"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Recorder turns crawl events into Prometheus metrics on its own registry.
// It is safe for concurrent use and satisfies crawler.Observer.
type Recorder struct {
	registry *prometheus.Registry

	fetches         *prometheus.CounterVec
	fetchAttempts   *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	httpStatus      *prometheus.CounterVec
	pagesDiscovered *prometheus.CounterVec
	domains         *prometheus.CounterVec
	domainURLs      *prometheus.GaugeVec
	domainDuration  *prometheus.GaugeVec
}

// NewRecorder registers every crawl metric on a fresh registry.
func NewRecorder() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "URLs fetched, by domain and outcome.",
		}, []string{"domain", "outcome"}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "HTTP requests sent, including retries.",
		}, []string{"domain"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching one URL, retries included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_responses_total",
			Help:      "HTTP responses received, by status code.",
		}, []string{"code"}),
		pagesDiscovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_discovered_total",
			Help:      "URLs recorded in crawl results.",
		}, []string{"domain"}),
		domains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domains_completed_total",
			Help:      "Domain crawls that returned, by result.",
		}, []string{"result"}),
		domainURLs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "domain_urls",
			Help:      "URLs discovered by the last crawl of a domain.",
		}, []string{"domain"}),
		domainDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "domain_duration_seconds",
			Help:      "Duration of the last crawl of a domain.",
		}, []string{"domain"}),
	}

	for _, c := range []prometheus.Collector{
		r.fetches, r.fetchAttempts, r.fetchDuration, r.httpStatus,
		r.pagesDiscovered, r.domains, r.domainURLs, r.domainDuration,
	} {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return r, nil
}

// Registry exposes the registry, mainly for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// FetchCompleted records one fetched URL.
func (r *Recorder) FetchCompleted(domain string, outcome model.FetchOutcome) {
	label := outcomeLabel(outcome)
	r.fetches.WithLabelValues(domain, label).Inc()
	if outcome.Attempts > 0 {
		r.fetchAttempts.WithLabelValues(domain).Add(float64(outcome.Attempts))
	}
	if outcome.Status == model.StatusOK {
		r.httpStatus.WithLabelValues(strconv.Itoa(outcome.Code)).Inc()
	}
	r.fetchDuration.WithLabelValues(label).Observe(outcome.Elapsed.Seconds())
}

// PageDiscovered records one URL added to the results.
func (r *Recorder) PageDiscovered(domain string, _ int) {
	r.pagesDiscovered.WithLabelValues(domain).Inc()
}

// DomainCompleted records the end of one domain crawl.
func (r *Recorder) DomainCompleted(result *model.DomainResult) {
	if result == nil {
		return
	}
	status := "ok"
	if result.Error != "" {
		status = "failed"
	}
	r.domains.WithLabelValues(status).Inc()
	r.domainURLs.WithLabelValues(result.Domain).Set(float64(result.Discovered.Total()))
	r.domainDuration.WithLabelValues(result.Domain).Set(result.Duration().Seconds())
}

func outcomeLabel(o model.FetchOutcome) string {
	switch o.Status {
	case model.StatusTimeout:
		return OutcomeTimeout
	case model.StatusError:
		return OutcomeError
	}
	switch {
	case o.IsContent():
		return OutcomeContent
	case o.Code == http.StatusOK:
		return OutcomeEmpty
	default:
		return OutcomeHTTP
	}
}

// Handler serves the registry in the Prometheus text and OpenMetrics formats.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Server exposes a Recorder over HTTP at /metrics.
type Server struct {
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// Listen binds addr and prepares the metrics server. Call Serve to start it.
func Listen(addr string, r *Recorder, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr) //nolint:noctx // listener lives for the whole run
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	return &Server{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve runs the server until ctx is done, then shuts it down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(s.listener)
	}()
	s.logger.Debug("metrics server started", "addr", s.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	}
}
