// Package rewriter implements the HTML and CSS rewriters and the client
// shim template described by the rewrite pipeline. The HTML rewriter walks
// a token stream rather than building a DOM, the way morty's sanitizeHTML
// does, so that text, comments and doctypes are copied through as their raw
// bytes. Attribute values are not byte-faithful: the tokenizer decodes their
// entities and every value, rewritten or not, is re-escaped with
// html.EscapeString on output.
package rewriter

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/internex-proxy/internex/internal/codec"
)

// hrefTags are elements whose href attribute is a navigational or resource
// reference.
var hrefTags = map[string]bool{"a": true, "link": true, "base": true}

// srcTags are elements whose src attribute names a fetched resource.
var srcTags = map[string]bool{
	"img": true, "source": true, "script": true, "iframe": true,
	"video": true, "audio": true,
}

// strippedMetaHTTPEquiv are <meta http-equiv="..."> values removed entirely
// from the rewritten document because they would block framing or script
// execution inside the proxy.
var strippedMetaHTTPEquiv = map[string]bool{
	"content-security-policy": true,
	"x-frame-options":         true,
}

// RewriteHTML rewrites href/src/action/srcset/data-src/data-url attributes
// so every reference routes back through the proxy, strips
// frame/CSP/referrer-blocking <meta> tags, and injects the referrer meta,
// an optional <base> (path-form only), and the client shim at the front of
// <head>. On any parse or rewrite failure it returns the original content
// unchanged, per §4.3's graceful-degradation requirement.
func RewriteHTML(content []byte, baseUpstream *url.URL, proxyBase string, pathForm bool) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = content, fmt.Errorf("rewriter: recovered panic: %v", r)
		}
	}()

	var buf bytes.Buffer
	buf.Grow(len(content) + 2048)

	z := html.NewTokenizer(bytes.NewReader(content))
	z.AllowCDATA(true)

	injected := false

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err().Error() != "EOF" {
				return content, fmt.Errorf("rewriter: tokenize: %w", z.Err())
			}
			break
		}

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tagBytes, hasAttr := z.TagName()
			tag := string(tagBytes)
			attrs := readAttrs(z, hasAttr)

			if tag == "meta" && shouldDropMeta(attrs) {
				continue
			}

			writeStartTag(&buf, tag, attrs, baseUpstream, proxyBase, tt == html.SelfClosingTagToken)

			if tag == "head" && tt == html.StartTagToken {
				writeHeadInjection(&buf, baseUpstream, proxyBase, pathForm)
				injected = true
			}

		case html.EndTagToken:
			tagBytes, _ := z.TagName()
			buf.WriteString("</")
			buf.Write(tagBytes)
			buf.WriteString(">")

		case html.TextToken, html.CommentToken, html.DoctypeToken:
			buf.Write(z.Raw())
		}
	}

	result := buf.Bytes()
	if !injected {
		// No <head> element was found (fragment or malformed document) —
		// still guarantee the referrer meta and shim are present by
		// prepending them, matching the "prepended so the browser parses
		// them first" ordering invariant as closely as a headless document
		// allows.
		var head bytes.Buffer
		writeHeadInjection(&head, baseUpstream, proxyBase, pathForm)
		result = append(head.Bytes(), result...)
	}

	return result, nil
}

type attr struct {
	name, value string
}

func readAttrs(z *html.Tokenizer, hasAttr bool) []attr {
	var attrs []attr
	if !hasAttr {
		return attrs
	}
	for {
		k, v, more := z.TagAttr()
		attrs = append(attrs, attr{name: string(k), value: string(v)})
		if !more {
			break
		}
	}
	return attrs
}

func shouldDropMeta(attrs []attr) bool {
	var httpEquiv, name string
	for _, a := range attrs {
		switch a.name {
		case "http-equiv":
			httpEquiv = strings.ToLower(a.value)
		case "name":
			name = strings.ToLower(a.value)
		}
	}
	if strippedMetaHTTPEquiv[httpEquiv] {
		return true
	}
	if name == "referrer" {
		return true
	}
	return false
}

func writeStartTag(buf *bytes.Buffer, tag string, attrs []attr, base *url.URL, proxyBase string, selfClosing bool) {
	buf.WriteString("<")
	buf.WriteString(tag)

	for _, a := range attrs {
		writeAttr(buf, tag, a, base, proxyBase)
	}

	if selfClosing {
		buf.WriteString(" />")
	} else {
		buf.WriteString(">")
	}
}

func writeAttr(buf *bytes.Buffer, tag string, a attr, base *url.URL, proxyBase string) {
	rewritten, ok := rewriteAttrValue(tag, a.name, a.value, base, proxyBase)
	if !ok {
		fmt.Fprintf(buf, ` %s="%s"`, a.name, html.EscapeString(a.value))
		return
	}
	fmt.Fprintf(buf, ` %s="%s"`, a.name, html.EscapeString(rewritten))
}

// rewriteAttrValue applies the §4.3 attribute rewrite table. It returns
// (newValue, true) when the attribute was URL-bearing and got rewritten
// (or deliberately left unchanged because it's a short-circuit scheme).
func rewriteAttrValue(tag, name, value string, base *url.URL, proxyBase string) (string, bool) {
	switch {
	case name == "href" && hrefTags[tag]:
		return codec.Encode(value, base, proxyBase), true
	case name == "src" && srcTags[tag]:
		return codec.Encode(value, base, proxyBase), true
	case name == "action" && tag == "form":
		return codec.Encode(value, base, proxyBase), true
	case name == "srcset":
		return rewriteSrcset(value, base, proxyBase), true
	case name == "data-src" || name == "data-url":
		return codec.Encode(value, base, proxyBase), true
	default:
		return "", false
	}
}

// rewriteSrcset splits on ",", trims, splits each descriptor on whitespace,
// and rewrites only the leftmost (URL) token of each descriptor.
func rewriteSrcset(value string, base *url.URL, proxyBase string) string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		fields := strings.Fields(p)
		if len(fields) == 0 {
			continue
		}
		fields[0] = codec.Encode(fields[0], base, proxyBase)
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, ", ")
}

func writeHeadInjection(buf *bytes.Buffer, base *url.URL, proxyBase string, pathForm bool) {
	buf.WriteString(`<meta name="referrer" content="unsafe-url">`)
	if pathForm && base != nil {
		fmt.Fprintf(buf, `<base href="%s/proxy/%s/%s/">`, proxyBase, base.Scheme, base.Host)
	}
	buf.WriteString(Shim(proxyBase, base))
}
