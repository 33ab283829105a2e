package transport

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/internex-proxy/internex/internal/charset"
	"github.com/internex-proxy/internex/internal/rewriter"
)

// WriteUpstreamResponse runs the Response Pipeline (§4.7): it copies the
// upstream status and headers, decodes the body's charset when the
// content is HTML or CSS, and rewrites HTML/CSS bodies through the rewriter
// package before writing the final bytes to w. Rewrite failures are
// recovered locally — the original bytes are served unchanged — so a
// malformed upstream document never turns into a 5xx.
func WriteUpstreamResponse(w http.ResponseWriter, resp *http.Response, upstream *url.URL, proxyBase string, pathForm bool, log *zap.Logger) error {
	body, err := DecodeBody(resp)
	if err != nil {
		return err
	}

	mediaType := DetectContentType(resp.Header)
	category := Categorize(mediaType)

	// rewroteOK tracks whether the body now holds re-encoded UTF-8 text, so
	// the Content-Type we emit matches the bytes we actually write. On a
	// rewrite failure the original bytes and their original header both
	// pass through untouched (§4.7 step 6).
	rewroteOK := false

	switch category {
	case ContentHTML:
		body = decodeToUTF8(body, resp.Header, log)
		rewritten, rerr := rewriter.RewriteHTML(body, upstream, proxyBase, pathForm)
		if rerr != nil {
			log.Warn("html rewrite failed, serving original bytes", zap.Error(rerr), zap.String("upstream", upstream.String()))
		} else {
			body = rewritten
			rewroteOK = true
		}
	case ContentCSS:
		body = decodeToUTF8(body, resp.Header, log)
		rewritten, rerr := rewriter.RewriteCSS(body, upstream, proxyBase)
		if rerr != nil {
			log.Warn("css rewrite failed, serving original bytes", zap.Error(rerr), zap.String("upstream", upstream.String()))
		} else {
			body = rewritten
			rewroteOK = true
		}
	}

	CopyResponseHeaders(w.Header(), resp.Header)
	if rewroteOK {
		w.Header().Set("Content-Type", mediaType+"; charset=utf-8")
	}
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.StatusCode)
	_, err = w.Write(body)
	return err
}

// decodeToUTF8 transcodes body to UTF-8 using the charset named by its
// Content-Type header or an HTML meta sniff, skipping the transcode
// entirely when the body is already valid UTF-8 (the common case).
func decodeToUTF8(body []byte, h http.Header, log *zap.Logger) []byte {
	if charset.LooksUTF8(body) {
		return body
	}
	name := charset.Detect(h.Get("Content-Type"), body)
	if name == "" || name == "utf-8" {
		return body
	}
	log.Debug("decoding non-utf8 body", zap.String("charset", name))
	return []byte(charset.Decode(body, name))
}
