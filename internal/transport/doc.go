// Package transport builds the HTTP client used for crawling.
//
// The client applies connect and request timeouts, keeps a cookie jar,
// caps redirects, injects per-site cookies and headers, and can route every
// connection through a SOCKS5 proxy. EmbeddedTor starts a private Tor
// daemon that serves as such a proxy when no external one is available.
package transport
