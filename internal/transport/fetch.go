package transport

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/sync/errgroup"

	"github.com/internex-proxy/internex/internal/proxyerr"
)

// fetchTimeout bounds a single upstream fetch, per §4.6's 30s budget.
const fetchTimeout = 30 * time.Second

// maxRedirects is the §4.6 redirect budget; exceeding it is reported as an
// UpstreamTransport error rather than silently returning the last redirect.
const maxRedirects = 5

// desktopUserAgent is sent on every outbound fetch regardless of what the
// inbound client identified as — one of several anti-detection overrides
// §4.6 requires of the dispatcher.
const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// dispatchTransport is shared across requests; it is not tuned for
// long-lived streaming the way the teacher's did, because the Response
// Pipeline always buffers the full body before rewriting it.
var dispatchTransport = &http.Transport{
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	TLSHandshakeTimeout: 10 * time.Second,
	TLSClientConfig:     &tls.Config{},
	MaxIdleConns:        100,
	IdleConnTimeout:     90 * time.Second,
}

// The client-level timeout also covers reading the response body, which
// the caller does after FetchUpstream has returned.
var dispatchClient = &http.Client{
	Transport: dispatchTransport,
	Timeout:   fetchTimeout,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	},
}

// FetchUpstream sends a request to targetURL on behalf of r, forwarding
// only the safe header subset and cancelling the request when ctx is
// cancelled (serveProxy passes r.Context(), so a client disconnect aborts
// the in-flight upstream fetch per §5's cancellation invariant). It returns
// a *proxyerr.Error classifying any failure.
func FetchUpstream(ctx context.Context, targetURL, method string, headers http.Header, body io.Reader) (*http.Response, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, proxyerr.Wrap(proxyerr.InvalidURL, "parsing upstream target", err)
	}

	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, body)
	if err != nil {
		return nil, proxyerr.Wrap(proxyerr.InternalError, "building upstream request", err)
	}

	forwardHeaders(req.Header, headers)

	// These are overrides, not conditional forwards: the dispatcher always
	// presents as a desktop browser talking to the upstream's own origin,
	// never as whatever the inbound client or proxy host actually was.
	req.Header.Set("User-Agent", desktopUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	upstreamOrigin := parsed.Scheme + "://" + parsed.Host
	req.Header.Set("Referer", upstreamOrigin)
	req.Header.Set("Origin", upstreamOrigin)

	req.Host = parsed.Host
	req.Header.Del("X-Forwarded-For")
	req.Header.Del("X-Forwarded-Proto")
	req.Header.Del("X-Forwarded-Host")

	// The fetch runs inside an errgroup so that a canceled ctx (the caller
	// passes r.Context(), which the Go HTTP server cancels on client
	// disconnect) and a transport failure both resolve through the same
	// single error path. The request keeps ctx rather than a group-derived
	// context, because that one is cancelled as soon as Wait returns and
	// would cut off the caller's read of resp.Body.
	var g errgroup.Group

	var resp *http.Response
	g.Go(func() error {
		var doErr error
		resp, doErr = dispatchClient.Do(req)
		return doErr
	})

	if err := g.Wait(); err != nil {
		return nil, classifyFetchError(err)
	}
	return resp, nil
}

// classifyFetchError maps a net/http transport error to the §7 error
// taxonomy. DNS failures become UpstreamUnreachable, context deadlines
// become UpstreamTimeout, everything else is UpstreamTransport.
func classifyFetchError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return proxyerr.Wrap(proxyerr.UpstreamTimeout, "upstream fetch timed out", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return proxyerr.Wrap(proxyerr.UpstreamUnreachable, "resolving upstream host", err)
	}

	if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
		return proxyerr.Wrap(proxyerr.UpstreamTimeout, "upstream fetch timed out", err)
	}

	return proxyerr.Wrap(proxyerr.UpstreamTransport, "fetching upstream", err)
}

// DecodeBody transparently decompresses resp.Body according to its
// Content-Encoding header (gzip, deflate, or br — the stdlib doesn't speak
// brotli, hence andybalholm/brotli), returning the decoded bytes.
// DecodeBody closes resp.Body before returning.
func DecodeBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, proxyerr.Wrap(proxyerr.UpstreamTransport, "opening gzip stream", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		reader = flate.NewReader(resp.Body)
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, proxyerr.Wrap(proxyerr.UpstreamTransport, "reading upstream body", err)
	}
	return data, nil
}
