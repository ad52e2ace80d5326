package crawler

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// normalizeFlags are the purell rewrites applied after the query, fragment
// and user info have been dropped. Query sorting is absent on purpose: the
// query is never part of a normalized URL.
const normalizeFlags = purell.FlagLowercaseScheme |
	purell.FlagLowercaseHost |
	purell.FlagUppercaseEscapes |
	purell.FlagDecodeUnnecessaryEscapes |
	purell.FlagEncodeNecessaryEscapes |
	purell.FlagRemoveDefaultPort |
	purell.FlagRemoveEmptyQuerySeparator |
	purell.FlagRemoveDotSegments |
	purell.FlagRemoveDuplicateSlashes |
	purell.FlagRemoveEmptyPortSeparator |
	purell.FlagRemoveUnnecessaryHostDots |
	purell.FlagRemoveFragment

// blockedExtensions are path extensions that never lead to an HTML page.
var blockedExtensions = map[string]struct{}{
	// documents
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".odt": {}, ".ods": {}, ".odp": {}, ".rtf": {}, ".csv": {}, ".epub": {},
	// archives
	".zip": {}, ".rar": {}, ".7z": {}, ".tar": {}, ".gz": {}, ".tgz": {}, ".bz2": {}, ".xz": {},
	// images
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".svg": {}, ".webp": {},
	".ico": {}, ".tif": {}, ".tiff": {}, ".avif": {},
	// audio and video
	".mp3": {}, ".wav": {}, ".ogg": {}, ".flac": {}, ".m4a": {}, ".aac": {},
	".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".webm": {}, ".wmv": {}, ".flv": {}, ".m4v": {},
	// stylesheets, scripts and fonts
	".css": {}, ".js": {}, ".mjs": {}, ".map": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".eot": {},
	// binaries
	".exe": {}, ".msi": {}, ".dmg": {}, ".pkg": {}, ".deb": {}, ".rpm": {}, ".apk": {},
	".iso": {}, ".bin": {}, ".jar": {},
}

// Normalize returns the canonical form of rawURL used for deduplication.
//
// The fragment, query string and user info are removed, the scheme and host
// are lower-cased, default ports, dot segments and duplicate slashes are
// dropped, and an empty path becomes "/". Normalize is idempotent.
// It returns "" when rawURL cannot be parsed or is not absolute.
func Normalize(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = ""
	u.ForceQuery = false
	u.User = nil
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}

	normalized := purell.NormalizeURL(u, normalizeFlags)

	// purell can leave a bare host when every path segment collapsed.
	check, err := url.Parse(normalized)
	if err != nil || check.Host == "" {
		return ""
	}
	if check.Path == "" {
		check.Path = "/"
		return check.String()
	}
	return normalized
}

// DomainOf returns the lower-cased network location (host and non-default
// port) of rawURL, or "" when rawURL is malformed.
func DomainOf(rawURL string) string {
	normalized := Normalize(rawURL)
	if normalized == "" {
		return ""
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// IsInScope reports whether rawURL may be crawled as part of baseDomain.
// The URL must use http or https, its host must equal baseDomain exactly
// (subdomains are other domains) and its path must not point at a known
// non-HTML resource. Malformed URLs are out of scope.
func IsInScope(rawURL, baseDomain string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	if u.Host == "" || baseDomain == "" {
		return false
	}
	if DomainOf(rawURL) != strings.ToLower(baseDomain) {
		return false
	}
	return !HasBlockedExtension(u.Path)
}

// HasBlockedExtension reports whether the final segment of urlPath ends in
// a blocked file extension. The match is case-insensitive.
func HasBlockedExtension(urlPath string) bool {
	ext := strings.ToLower(path.Ext(urlPath))
	if ext == "" {
		return false
	}
	_, blocked := blockedExtensions[ext]
	return blocked
}

// isHTTPScheme reports whether the URL uses http or https.
func isHTTPScheme(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
