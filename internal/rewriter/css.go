package rewriter

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/internex-proxy/internex/internal/codec"
)

// cssURLRe matches url( [quote] X [quote] ), case-insensitive and
// whitespace-tolerant, mirroring morty's CssUrlRegexp.
var cssURLRe = regexp.MustCompile(`(?i)url\(\s*(['"]?)([^'")]+)(['"]?)\s*\)`)

// RewriteCSS rewrites every url(...) reference in a stylesheet (or an
// inline style="" attribute) through the URL codec, preserving the
// original quote style. On any failure it returns the original CSS
// unchanged, per §4.5.
func RewriteCSS(content []byte, baseUpstream *url.URL, proxyBase string) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = content, fmt.Errorf("rewriter: recovered panic: %v", r)
		}
	}()

	result := cssURLRe.ReplaceAllFunc(content, func(match []byte) []byte {
		sub := cssURLRe.FindSubmatch(match)
		if sub == nil {
			return match
		}
		openQuote, raw, closeQuote := string(sub[1]), string(sub[2]), string(sub[3])

		rewritten := codec.Encode(raw, baseUpstream, proxyBase)

		quote := openQuote
		if quote == "" {
			quote = closeQuote
		}
		return []byte(fmt.Sprintf("url(%s%s%s)", quote, rewritten, quote))
	})

	return result, nil
}
