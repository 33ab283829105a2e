// Package codec implements the URL-addressing scheme that keeps navigation
// closed under proxying: encoding an absolute upstream URL into a
// proxy-local URL, and decoding a proxy-local URL (or a Referer-recoverable
// bare request) back into an absolute upstream URL.
package codec

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// shortCircuitSchemes are prefixes that are never rewritten — they don't
// name a fetchable resource the proxy could route through itself.
var shortCircuitSchemes = []string{
	"data:", "javascript:", "mailto:", "tel:", "blob:", "about:",
}

// IsShortCircuit reports whether raw is a URL the codec must pass through
// unchanged: empty, exactly "#", or one of the short-circuit schemes. A
// named fragment such as "#top" is not short-circuited.
func IsShortCircuit(raw string) bool {
	if raw == "" || raw == "#" {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(raw))
	for _, scheme := range shortCircuitSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

var pathFormRe = regexp.MustCompile(`^/proxy/(https?)/([^/]+)(/.*)?$`)

// Encode turns an absolute (or base-relative) upstream URL into a
// proxy-local URL in path form: proxyBase + "/proxy/" + scheme + "/" +
// authority + path + query + fragment. Short-circuit schemes, the empty
// string, and "#" are returned unchanged. If raw cannot be resolved to an
// absolute http(s) URL, it is returned unchanged (opaque passthrough) —
// encoding must never fail the caller.
func Encode(raw string, base *url.URL, proxyBase string) string {
	if IsShortCircuit(raw) {
		return raw
	}

	abs, ok := Resolve(raw, base)
	if !ok {
		return raw
	}

	if abs.Scheme != "http" && abs.Scheme != "https" {
		return raw
	}

	path := abs.EscapedPath()
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	b.WriteString(proxyBase)
	b.WriteString("/proxy/")
	b.WriteString(abs.Scheme)
	b.WriteString("/")
	b.WriteString(abs.Host)
	b.WriteString(path)
	if abs.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(abs.RawQuery)
	}
	if abs.Fragment != "" {
		b.WriteString("#")
		b.WriteString(abs.EscapedFragment())
	}
	return b.String()
}

// Resolve normalizes raw into an absolute URL: scheme-relative references
// ("//host/path") are promoted to https, and schemeless/relative
// references are resolved against base (RFC 3986 relative resolution). It
// reports false if raw cannot be parsed at all.
func Resolve(raw string, base *url.URL) (*url.URL, bool) {
	candidate := raw
	if strings.HasPrefix(candidate, "//") {
		candidate = "https:" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return nil, false
	}

	if u.IsAbs() {
		return u, true
	}
	if base == nil {
		return nil, false
	}
	return base.ResolveReference(u), true
}

// DecodePathForm parses the "/proxy/<scheme>/<authority>[/path][?query][#frag]"
// form. rawQuery must be the original, byte-exact query string from the
// request line (not a re-serialized parsed map) so that idiosyncratic
// upstream query encoding survives the round trip. It returns the
// reconstructed absolute upstream URL string and true on a match.
func DecodePathForm(requestPath, rawQuery, fragment string) (string, bool) {
	m := pathFormRe.FindStringSubmatch(requestPath)
	if m == nil {
		return "", false
	}
	scheme, authority, rest := m[1], m[2], m[3]
	if rest == "" {
		rest = "/"
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(authority)
	b.WriteString(rest)
	if rawQuery != "" {
		b.WriteString("?")
		b.WriteString(rawQuery)
	}
	if fragment != "" {
		b.WriteString("#")
		b.WriteString(fragment)
	}
	return b.String(), true
}

// MatchPathForm reports whether requestPath matches the path-form proxy
// route, without doing the full reconstruction DecodePathForm does.
func MatchPathForm(requestPath string) bool {
	return pathFormRe.MatchString(requestPath)
}

// DecodeQueryForm extracts and validates the target from a "url=" query
// parameter value. It tolerates already-decoded input: if QueryUnescape
// fails, the raw value is validated as-is.
func DecodeQueryForm(rawValue string) (string, error) {
	candidate := rawValue
	if decoded, err := url.QueryUnescape(rawValue); err == nil {
		candidate = decoded
	}
	if err := ValidateAbsolute(candidate); err != nil {
		return "", err
	}
	return candidate, nil
}

// ValidateAbsolute reports an error unless s parses as an absolute URL
// with an http or https scheme.
func ValidateAbsolute(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("parsing %q: %w", s, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%q is not an absolute http(s) URL", s)
	}
	return nil
}

// SpliceReferer reconstructs an upstream URL from a proxy-local Referer
// (already decoded to its own upstream URL) and the current request's path
// + raw query, per the §4.1 Referer-fallback recovery rule: take scheme and
// authority from the Referer's target, and path+query from the current
// request.
func SpliceReferer(refererUpstream string, currentPath, currentRawQuery string) (string, bool) {
	refU, err := url.Parse(refererUpstream)
	if err != nil || !refU.IsAbs() {
		return "", false
	}

	var b strings.Builder
	b.WriteString(refU.Scheme)
	b.WriteString("://")
	b.WriteString(refU.Host)
	if currentPath == "" {
		currentPath = "/"
	}
	b.WriteString(currentPath)
	if currentRawQuery != "" {
		b.WriteString("?")
		b.WriteString(currentRawQuery)
	}
	return b.String(), true
}

// Origin returns "scheme://host" for an absolute URL string, or "" if it
// doesn't parse.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// ProxyBase derives the scheme+host that rewritten content must embed,
// honoring X-Forwarded-Proto / X-Forwarded-Host when present (per §6's
// wire-level detail), falling back to the request's own Host header and an
// inferred scheme.
func ProxyBase(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fp := r.Header.Get("X-Forwarded-Proto"); fp != "" {
		scheme = strings.Split(fp, ",")[0]
		scheme = strings.TrimSpace(scheme)
	}

	host := r.Host
	if fh := r.Header.Get("X-Forwarded-Host"); fh != "" {
		host = strings.TrimSpace(strings.Split(fh, ",")[0])
	}

	return scheme + "://" + host
}
