package transport

import (
	"net/http"
	"net/url"

	"github.com/internex-proxy/internex/internal/codec"
	"github.com/internex-proxy/internex/internal/proxyerr"
)

// parseRefererURL parses a Referer header value as a URL relative to this
// proxy (scheme/host are irrelevant; only Path/RawQuery/Fragment matter).
func parseRefererURL(referer string) (*url.URL, error) {
	return url.Parse(referer)
}

// Resolved is the outcome of resolving an inbound request to an absolute
// upstream URL, per §4.1/§6: it also records which addressing form
// supplied the target, since the HTML rewriter needs to know (path-form
// requests get a <base> tag injected so relative links without a rewrite
// still resolve to the right place).
type Resolved struct {
	Target   string
	PathForm bool
}

// Resolve determines the upstream URL for r, trying in order: the path
// form ("/proxy/<scheme>/<authority>/..."), the query form
// ("/proxy?url=..."), and finally the Referer-recoverable bare-path
// fallback described in §4.1. It returns a *proxyerr.Error classifying
// why resolution failed when none of the three apply.
func Resolve(r *http.Request) (*Resolved, error) {
	if target, ok := codec.DecodePathForm(r.URL.Path, r.URL.RawQuery, r.URL.Fragment); ok {
		if err := codec.ValidateAbsolute(target); err != nil {
			return nil, proxyerr.Wrap(proxyerr.InvalidURL, "path-form target", err)
		}
		return &Resolved{Target: target, PathForm: true}, nil
	}

	if raw := r.URL.Query().Get("url"); raw != "" {
		target, err := codec.DecodeQueryForm(raw)
		if err != nil {
			return nil, proxyerr.Wrap(proxyerr.InvalidURL, "query-form target", err)
		}
		return &Resolved{Target: target, PathForm: false}, nil
	}

	if referer := r.Header.Get("Referer"); referer != "" {
		if refTarget, ok := resolveRefererUpstream(referer); ok {
			if spliced, ok := codec.SpliceReferer(refTarget, r.URL.Path, r.URL.RawQuery); ok {
				return &Resolved{Target: spliced, PathForm: codec.MatchPathForm(refererPath(referer))}, nil
			}
		}
	}

	return nil, proxyerr.New(proxyerr.MissingTarget, "no upstream URL in path, query, or Referer")
}

// resolveRefererUpstream decodes a proxy-local Referer header back to its
// own upstream URL, trying the same path/query forms Resolve does.
func resolveRefererUpstream(referer string) (string, bool) {
	refURL, err := parseRefererURL(referer)
	if err != nil {
		return "", false
	}

	if target, ok := codec.DecodePathForm(refURL.Path, refURL.RawQuery, refURL.Fragment); ok {
		return target, true
	}
	if raw := refURL.Query().Get("url"); raw != "" {
		if target, err := codec.DecodeQueryForm(raw); err == nil {
			return target, true
		}
	}
	return "", false
}

func refererPath(referer string) string {
	u, err := parseRefererURL(referer)
	if err != nil {
		return ""
	}
	return u.Path
}
