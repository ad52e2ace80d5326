package crawler

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// skippedSchemes are href prefixes that never point at a crawlable page.
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:", "ftp:", "irc:"}

// Parser extracts hyperlinks from HTML.
//
// Only anchor-style references are considered: <a href> and <area href>.
// URLs built by scripts or embedded in CSS are not. A <base href> element
// changes the base used to resolve relative references.
//
// Parser uses the streaming tokenizer from golang.org/x/net/html instead of
// building a DOM, so a read error part way through still leaves every link
// seen before it.
type Parser struct {
	// baseURL is the URL of the page being parsed.
	baseURL *url.URL
}

// NewParser creates a parser that resolves relative links against baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("%w: %q", ErrRelativeBaseURL, baseURL)
	}
	return &Parser{baseURL: u}, nil
}

// Parse reads HTML from content and returns the normalized absolute links it
// references, de-duplicated, in document order.
//
// On a read error Parse returns the links recovered so far together with the
// error. Malformed markup is not an error.
func (p *Parser) Parse(content io.Reader) ([]string, error) {
	base := p.baseURL
	baseSet := false
	seen := make(map[string]struct{})
	links := make([]string, 0)

	z := html.NewTokenizer(content)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return links, nil
			}
			return links, fmt.Errorf("failed to tokenize HTML: %w", z.Err())

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if !hasAttr {
				continue
			}
			tag := string(name)
			if tag != "a" && tag != "area" && tag != "base" {
				continue
			}

			href := tagAttr(z, "href")
			if href == "" {
				continue
			}

			if tag == "base" {
				// Only the first <base> counts.
				if !baseSet {
					if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
						base = p.baseURL.ResolveReference(u)
						baseSet = true
					}
				}
				continue
			}

			link := resolveURL(base, href)
			if link == "" {
				continue
			}
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			links = append(links, link)
		}
	}
}

// ExtractLinks is a convenience wrapper that parses body as HTML located at
// baseURL.
func ExtractLinks(body, baseURL string) ([]string, error) {
	p, err := NewParser(baseURL)
	if err != nil {
		return nil, err
	}
	return p.Parse(strings.NewReader(body))
}

// resolveURL resolves href against base and normalizes the result.
// It returns "" for hrefs that cannot lead to a page.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	return Normalize(base.ResolveReference(u).String())
}

// tagAttr returns the value of the named attribute of the current tag.
// It consumes the tokenizer's attribute iterator.
func tagAttr(z *html.Tokenizer, key string) string {
	for {
		k, v, more := z.TagAttr()
		if string(k) == key {
			return string(v)
		}
		if !more {
			return ""
		}
	}
}
