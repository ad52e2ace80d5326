package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultMaxRedirects is the redirect limit used when Options leaves it zero.
const DefaultMaxRedirects = 10

// HeaderFunc returns the cookie and extra headers to send to host.
// host is the request URL's host, with its port when the URL has one.
// Either result may be empty.
type HeaderFunc func(host string) (cookie string, headers map[string]string)

// Options configures NewHTTPClient.
type Options struct {
	// ConnectTimeout bounds TCP connect and TLS handshake.
	ConnectTimeout time.Duration
	// Timeout bounds a whole request including reading the body.
	Timeout time.Duration
	// ProxyAddress routes every connection through a SOCKS5 proxy when set.
	ProxyAddress string
	// MaxRedirects caps followed redirects. After the cap the redirect
	// response itself is returned.
	MaxRedirects int
	// SiteHeaders injects per-host cookies and headers.
	SiteHeaders HeaderFunc
}

// NewHTTPClient builds the client the crawler fetches with. The client
// keeps no cookie jar: a Set-Cookie from one response is never sent back.
// Only the static per-site cookie from SiteHeaders is sent.
//
// Response compression is left to the caller: the fetcher advertises
// gzip and deflate itself and decodes the body, so the transport must not
// decompress transparently.
func NewHTTPClient(opts Options) (*http.Client, error) {
	forward := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           forward.DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
	}

	if opts.ProxyAddress != "" {
		dial, err := socks5DialContext(opts.ProxyAddress, forward)
		if err != nil {
			return nil, err
		}
		transport.Proxy = nil
		transport.DialContext = dial
	}

	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}

	var rt http.RoundTripper = transport
	if opts.SiteHeaders != nil {
		rt = &siteHeaderTransport{base: transport, lookup: opts.SiteHeaders}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   opts.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

func socks5DialContext(address string, forward *net.Dialer) (func(context.Context, string, string) (net.Conn, error), error) {
	if !isValidProxyAddress(address) {
		return nil, ErrInvalidProxyAddress
	}
	dialer, err := proxy.SOCKS5("tcp", address, nil, forward)
	if err != nil {
		return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}

func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// siteHeaderTransport adds the configured cookie and headers for the
// request's host. It looks up host:port first and falls back to the bare
// hostname. Redirects pass through it too, so a redirect to another host
// picks up that host's settings.
type siteHeaderTransport struct {
	base   http.RoundTripper
	lookup HeaderFunc
}

// RoundTrip implements http.RoundTripper.
func (t *siteHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cookie, headers := t.lookup(req.URL.Host)
	if cookie == "" && len(headers) == 0 && req.URL.Host != req.URL.Hostname() {
		cookie, headers = t.lookup(req.URL.Hostname())
	}
	if cookie == "" && len(headers) == 0 {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	for key, value := range headers {
		clone.Header.Set(key, value)
	}
	if cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+cookie)
		} else {
			clone.Header.Set("Cookie", cookie)
		}
	}
	return t.base.RoundTrip(clone)
}

const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	checkProxyDeadline = 2 * time.Second
)

// CheckProxy performs a SOCKS5 greeting against address and reports
// whether it is usable without authentication. It does not open a
// connection to any remote host.
func CheckProxy(ctx context.Context, address string) ProxyStatus {
	if !isValidProxyAddress(address) {
		return ProxyStatusWrongType
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyDeadline)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return ProxyStatusCannotConnect
		}
	}

	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	reply := make([]byte, 2)
	if _, err := io.ReadFull(conn, reply); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if reply[0] != socks5Version || reply[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}
