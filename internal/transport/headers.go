// Package transport wires the Request Resolver, Upstream Dispatcher, and
// Response Pipeline into the HTTP server, grounded in internex's
// cmd/server and internal/transport layout.
package transport

import (
	"mime"
	"net/http"
	"strings"
)

// ContentCategory classifies a response body for the Response Pipeline's
// content-type branch (§4.7 step 5).
type ContentCategory int

const (
	ContentOther ContentCategory = iota
	ContentHTML
	ContentCSS
	ContentJS
)

// DetectContentType extracts the media type from a header set, defaulting
// to application/octet-stream when absent.
func DetectContentType(h http.Header) string {
	ct := h.Get("Content-Type")
	if ct == "" {
		return "application/octet-stream"
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mediaType
}

// Categorize maps a media type to a ContentCategory.
func Categorize(mediaType string) ContentCategory {
	lower := strings.ToLower(mediaType)
	switch {
	case strings.Contains(lower, "html"):
		return ContentHTML
	case lower == "text/css":
		return ContentCSS
	case strings.Contains(lower, "javascript") || strings.Contains(lower, "json"):
		return ContentJS
	default:
		return ContentOther
	}
}

// safeRequestHeaders are the only headers forwarded from the inbound
// request to the upstream origin (§4.6 "Outbound headers"). User-Agent,
// Accept-Language, Referer, and Origin are never forwarded from the
// client — the dispatcher always sets those itself.
var safeRequestHeaders = []string{
	"Accept",
	"Content-Type",
	"Cookie",
	"Authorization",
}

// forwardHeaders copies the safe subset of src into dst.
func forwardHeaders(dst, src http.Header) {
	for _, k := range safeRequestHeaders {
		if v := src.Get(k); v != "" {
			dst.Set(k, v)
		}
	}
}

// hopByHopHeaders must never be forwarded in either direction.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// responseHeaderBlocklist is the §3/§4.7 set of headers that must never
// appear in the outgoing envelope: they'd either block framing (CSP,
// X-Frame-Options), leak referrers (Referrer-Policy), or misdescribe a
// body the dispatcher has already decompressed (Content-Encoding) or the
// Go HTTP server re-chunks itself (Transfer-Encoding).
var responseHeaderBlocklist = map[string]bool{
	"Content-Security-Policy":             true,
	"Content-Security-Policy-Report-Only": true,
	"X-Content-Security-Policy":           true,
	"Cross-Origin-Opener-Policy":          true,
	"Cross-Origin-Embedder-Policy":        true,
	"Cross-Origin-Resource-Policy":        true,
	"X-Frame-Options":                     true,
	"Referrer-Policy":                     true,
	"Strict-Transport-Security":           true,
	"Content-Encoding":                    true,
	"Transfer-Encoding":                   true,
}

// stampedResponseHeaders are always present in the outgoing envelope,
// regardless of what the upstream sent (§3 invariant).
var stampedResponseHeaders = map[string]string{
	"Access-Control-Allow-Origin": "*",
	"X-Frame-Options":             "ALLOWALL",
	"Referrer-Policy":             "unsafe-url",
}

// CopyResponseHeaders copies upstream response headers to dst, stripping
// hop-by-hop headers and the response header blocklist, forwarding
// Set-Cookie verbatim (§3 "Session cookies" — no server-side jar, cookies
// pass straight through to the browser), and stamping the always-present
// headers. The dispatcher resolves redirects itself (§4.6), so this
// pipeline never sees a 3xx Location needing proxy-local rewriting.
func CopyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		if hopByHopHeaders[k] || responseHeaderBlocklist[k] {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for k, v := range stampedResponseHeaders {
		dst.Set(k, v)
	}
}

// StampCORSPreflight sets the permissive CORS headers an OPTIONS preflight
// needs, per §6's "OPTIONS *" route.
func StampCORSPreflight(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "*")
	h.Set("Access-Control-Allow-Credentials", "true")
}
