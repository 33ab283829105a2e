// Package charset chooses a decoder for a response body from its
// Content-Type charset parameter or an HTML <meta> sniff, grounded in
// morty's use of golang.org/x/net/html/charset and golang.org/x/text.
package charset

import (
	"bytes"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const sniffWindow = 1024

// aliases maps names the spec calls out explicitly to the canonical name
// golang.org/x/text/encoding/htmlindex expects. htmlindex already resolves
// most WHATWG aliases; this table only covers the ones spec.md names
// verbatim, so behavior matches the spec even if htmlindex's table ever
// diverges.
var aliases = map[string]string{
	"iso-8859-1":  "latin1",
	"iso8859-1":   "latin1",
	"windows-1252": "cp1252",
	"utf8":        "utf-8",
}

// Normalize lowercases a charset name, maps underscores to hyphens, and
// applies the spec's explicit alias table.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "-")
	if alias, ok := aliases[name]; ok {
		return alias
	}
	return name
}

var metaCharsetRe = regexp.MustCompile(`(?i)<meta\s+charset\s*=\s*["']?([a-zA-Z0-9_\-]+)`)
var metaHTTPEquivRe = regexp.MustCompile(`(?i)<meta\s+http-equiv\s*=\s*["']content-type["']\s+content\s*=\s*["'][^"']*charset=([a-zA-Z0-9_\-]+)`)

// Detect picks the charset name for a response body given its Content-Type
// header value and (for HTML-like content) the raw bytes to sniff.
func Detect(contentType string, body []byte) string {
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			if cs := params["charset"]; cs != "" {
				return Normalize(cs)
			}
		}
	}

	if strings.Contains(strings.ToLower(contentType), "html") {
		window := body
		if len(window) > sniffWindow {
			window = window[:sniffWindow]
		}
		if m := metaCharsetRe.FindSubmatch(window); m != nil {
			return Normalize(string(m[1]))
		}
		if m := metaHTTPEquivRe.FindSubmatch(window); m != nil {
			return Normalize(string(m[1]))
		}
	}

	return "utf-8"
}

// Decode transcodes body from the named charset to UTF-8. Unsupported or
// empty charset names, and "utf-8" itself, are passed through unchanged —
// decoding must never fail the caller; it falls back to UTF-8 instead.
func Decode(body []byte, name string) string {
	name = Normalize(name)
	if name == "" || name == "utf-8" {
		return string(body)
	}

	enc, err := htmlindex.Get(name)
	if err != nil || enc == nil || enc == encoding.Nop {
		return string(body)
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// LooksUTF8 is a small helper the response pipeline uses to skip decode
// work when a body is already valid UTF-8 with no BOM.
func LooksUTF8(body []byte) bool {
	return !bytes.HasPrefix(body, []byte{0xEF, 0xBB, 0xBF}) && utf8.Valid(body)
}
