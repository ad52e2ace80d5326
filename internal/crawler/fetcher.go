package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"

	"github.com/websearchtool/sitecrawl/internal/model"
)

// DefaultUserAgent identifies the crawler to the servers it visits.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0 sitecrawl/1.0"

const (
	defaultConcurrency    = 8
	defaultDelay          = time.Second
	defaultMaxBodySize    = 5 * 1024 * 1024
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 30 * time.Second
)

// Fetcher retrieves a single URL. Implementations never return an error:
// every failure is described by the returned outcome.
type Fetcher interface {
	Fetch(ctx context.Context, url string) model.FetchOutcome
}

// HTTPFetcher is the network Fetcher.
//
// All fetches made through one HTTPFetcher share a counting semaphore, so at
// most the configured number of requests are in flight no matter how many
// domains are being crawled. After a slot is acquired the politeness delay
// (and the optional rate limiter) is waited before the request is sent, which
// throttles the request rate and not just parallelism.
type HTTPFetcher struct {
	client *http.Client
	sem    *semaphore.Weighted

	delay       time.Duration
	limiter     *rate.Limiter
	userAgent   string
	maxBodySize int64

	maxRetries     int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration

	observer Observer
	logger   *slog.Logger
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithConcurrency sets the number of fetches allowed in flight at once.
func WithConcurrency(n int) FetcherOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithDelay sets the politeness delay waited inside the concurrency slot
// before each request.
func WithDelay(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.delay = d
	}
}

// WithRateLimit caps the request rate across all domains.
// A non-positive rps disables the limiter.
func WithRateLimit(rps float64, burst int) FetcherOption {
	return func(f *HTTPFetcher) {
		if rps <= 0 {
			f.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize limits how many bytes of a response body are read.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithRetries enables retrying transient failures: timeouts, transport
// errors and 429, 502, 503 and 504 responses. The wait doubles from base on
// each attempt and never exceeds maxDelay, including waits requested through
// Retry-After.
func WithRetries(n int, base, maxDelay time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.maxRetries = max(n, 0)
		if base > 0 {
			f.retryBaseDelay = base
		}
		if maxDelay > 0 {
			f.retryMaxDelay = maxDelay
		}
	}
}

// WithFetchObserver sets the observer notified after every fetch.
func WithFetchObserver(o Observer) FetcherOption {
	return func(f *HTTPFetcher) {
		if o != nil {
			f.observer = o
		}
	}
}

// WithFetchLogger sets the logger.
func WithFetchLogger(logger *slog.Logger) FetcherOption {
	return func(f *HTTPFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewHTTPFetcher creates a fetcher that sends requests with client.
// The client's timeouts bound each request; see the transport package.
func NewHTTPFetcher(client *http.Client, opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:         client,
		sem:            semaphore.NewWeighted(defaultConcurrency),
		delay:          defaultDelay,
		userAgent:      DefaultUserAgent,
		maxBodySize:    defaultMaxBodySize,
		retryBaseDelay: defaultRetryBaseDelay,
		retryMaxDelay:  defaultRetryMaxDelay,
		observer:       nopObserver{},
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch performs a GET for url and classifies the result.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) model.FetchOutcome {
	start := time.Now()

	// A request that cannot be built fails once and is never retried.
	req, err := f.newRequest(ctx, url)
	if err != nil {
		outcome := model.FetchOutcome{URL: url, Status: model.StatusError, Reason: err.Error(), Attempts: 1}
		outcome.Elapsed = time.Since(start)
		f.observer.FetchCompleted(DomainOf(url), outcome)
		return outcome
	}

	var outcome model.FetchOutcome
	for attempt := 0; ; attempt++ {
		var retryAfter time.Duration
		outcome, retryAfter = f.attempt(ctx, url, req)
		outcome.Attempts = attempt + 1

		if attempt >= f.maxRetries || !retryable(outcome) || ctx.Err() != nil {
			break
		}

		wait := f.backoff(attempt, retryAfter)
		f.logger.Debug("retrying fetch",
			"url", url,
			"status", outcome.Status.String(),
			"code", outcome.Code,
			"attempt", attempt+1,
			"wait", wait,
		)

		// The slot is not held while backing off.
		if err := sleep(ctx, wait); err != nil {
			break
		}
	}

	outcome.Elapsed = time.Since(start)
	f.observer.FetchCompleted(DomainOf(url), outcome)
	return outcome
}

func (f *HTTPFetcher) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Header.Set("Connection", "keep-alive")
	return req, nil
}

// attempt sends a copy of req while holding a concurrency slot.
// The returned duration is the server's Retry-After hint, if any.
func (f *HTTPFetcher) attempt(ctx context.Context, url string, req *http.Request) (model.FetchOutcome, time.Duration) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return failure(url, err), 0
	}
	defer f.sem.Release(1)

	if err := sleep(ctx, f.delay); err != nil {
		return failure(url, err), 0
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return failure(url, err), 0
		}
	}

	resp, err := f.client.Do(req.Clone(ctx))
	if err != nil {
		return failure(url, err), 0
	}
	defer resp.Body.Close()

	outcome := model.FetchOutcome{
		URL:         url,
		Status:      model.StatusOK,
		Code:        resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return outcome, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}

	body, err := f.readBody(resp)
	if err != nil {
		return failure(url, err), 0
	}
	outcome.Body = body
	return outcome, 0
}

// readBody reads at most maxBodySize bytes, undoes the content encoding and
// converts the text to UTF-8.
func (f *HTTPFetcher) readBody(resp *http.Response) (string, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to open gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to open deflate body: %w", err)
		}
		defer zr.Close()
		reader = zr
	}

	raw, err := io.ReadAll(io.LimitReader(reader, f.maxBodySize))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	return decodeBody(raw, resp.Header.Get("Content-Type")), nil
}

// decodeBody converts raw to UTF-8 using the declared or sniffed charset.
// When decoding fails the raw bytes are returned unchanged.
func decodeBody(raw []byte, contentType string) string {
	enc, name, _ := charset.DetermineEncoding(raw, contentType)
	if name == "utf-8" || enc == nil {
		return string(raw)
	}

	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(raw), enc.NewDecoder()))
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// backoff returns how long to wait before retry number attempt+1.
func (f *HTTPFetcher) backoff(attempt int, retryAfter time.Duration) time.Duration {
	wait := f.retryBaseDelay << attempt
	if wait <= 0 || wait > f.retryMaxDelay {
		wait = f.retryMaxDelay
	}
	if retryAfter > wait {
		wait = min(retryAfter, f.retryMaxDelay)
	}
	return wait
}

// retryable reports whether another attempt could produce a different result.
func retryable(o model.FetchOutcome) bool {
	switch o.Status {
	case model.StatusTimeout, model.StatusError:
		return true
	case model.StatusOK:
		switch o.Code {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// failure converts a request error into an outcome.
func failure(url string, err error) model.FetchOutcome {
	status := model.StatusError
	if isTimeout(err) {
		status = model.StatusTimeout
	}
	return model.FetchOutcome{URL: url, Status: status, Reason: err.Error()}
}

// isTimeout reports whether err was caused by a deadline, either the client
// timeout or a context deadline. Cancellation is not a timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseRetryAfter parses a Retry-After value given in seconds or as an
// HTTP date. It returns 0 when the header is absent or invalid.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
