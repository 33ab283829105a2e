package transport

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/internex-proxy/internex/internal/codec"
	"github.com/internex-proxy/internex/internal/proxyerr"
)

// usageMessage is the one-line usage string returned alongside a
// MissingTarget error and from the GET / informational route.
const usageMessage = "GET /proxy?url=<absolute-url> or GET /proxy/<scheme>/<authority>/<path>"

// AssetsDir is the directory handleStatic serves the landing page and any
// static assets from. Set by cmd/server/main.go from config.
var AssetsDir string

// NewMux wires the full route table described by §6: the query-form and
// path-form proxy routes, an OPTIONS preflight handler, a health/
// diagnostics endpoint, the GET / informational JSON, static files for
// known asset extensions, and the Referer-recoverable bare-path catch-all.
func NewMux(log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("/proxy", func(w http.ResponseWriter, r *http.Request) { dispatchProxyRoute(w, r, log) })
	mux.HandleFunc("/proxy/", func(w http.ResponseWriter, r *http.Request) { dispatchProxyRoute(w, r, log) })
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			handlePreflight(w, r)
			return
		}
		if r.URL.Path == "/" {
			handleRoot(w, r)
			return
		}
		// Static assets are served only to requests that do not come from a
		// proxied page; a bare path whose Referer is proxy-local is always
		// resolved through the Referer fallback below.
		_, fromProxiedPage := resolveRefererUpstream(r.Header.Get("Referer"))
		if hasStaticExt(r.URL.Path) && !fromProxiedPage {
			handleStatic(w, r)
			return
		}
		// Bare path with no recognized form — try the Referer-recoverable
		// fallback (§4.1) before giving up with a 404 (§6 "anything else").
		handleCatchAllProxy(w, r, log)
	})
	return mux
}

// handleRoot serves §6's "GET /" informational route: a small JSON blob
// describing the service and how to address it, independent of whether any
// static assets directory exists.
func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"message": "internex rewriting proxy",
		"usage":   usageMessage,
	})
}

// dispatchProxyRoute handles an OPTIONS preflight on any /proxy or
// /proxy/... path before routing GET/POST/etc. into the proxy pipeline —
// registering OPTIONS explicitly here avoids relying on ServeMux's
// path-vs-method specificity tiebreaking between "/proxy/" and "OPTIONS /".
func dispatchProxyRoute(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	if r.Method == http.MethodOptions {
		handlePreflight(w, r)
		return
	}
	handleProxy(w, r, log)
}

func handlePreflight(w http.ResponseWriter, r *http.Request) {
	StampCORSPreflight(w.Header())
	w.WriteHeader(http.StatusNoContent)
}

// handleProxy implements the end-to-end request→resolve→fetch→rewrite
// pipeline described by §4 and §6, for requests addressed directly to
// /proxy or /proxy/...: an unresolvable target here is a client error (400).
func handleProxy(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	serveProxy(w, r, log, false)
}

// handleCatchAllProxy serves the §6 "anything else" route: a bare path with
// no recognized proxy form. It only succeeds when the Referer is itself a
// proxy-local URL (§4.1); otherwise it's a 404, not handleProxy's 400 —
// there was never a proxy request here to begin with.
func handleCatchAllProxy(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	serveProxy(w, r, log, true)
}

func serveProxy(w http.ResponseWriter, r *http.Request, log *zap.Logger, catchAll bool) {
	start := time.Now()

	resolved, err := Resolve(r)
	if err != nil {
		if catchAll && proxyerr.KindOf(err) == proxyerr.MissingTarget {
			DefaultDiagnostics.Record(RequestRecord{Time: start, Method: r.Method, ErrorKind: "NoRoute"})
			http.NotFound(w, r)
			return
		}
		writeProxyError(w, r.URL.Query().Get("url"), r.Method, start, err, log)
		return
	}

	proxyBase := codec.ProxyBase(r)

	resp, err := FetchUpstream(r.Context(), resolved.Target, r.Method, r.Header, r.Body)
	if err != nil {
		writeProxyError(w, resolved.Target, r.Method, start, err, log)
		return
	}
	defer resp.Body.Close()

	// resp.Request.URL is the URL the client actually landed on after the
	// dispatcher followed any redirects (§4.6) — that, not the pre-fetch
	// target, is the base relative URLs in the rewritten document resolve
	// against.
	upstreamURL := resp.Request.URL

	if err := WriteUpstreamResponse(w, resp, upstreamURL, proxyBase, resolved.PathForm, log); err != nil {
		log.Warn("writing response to client", zap.Error(err), zap.String("upstream", resolved.Target))
	}

	DefaultDiagnostics.Record(RequestRecord{
		Time:       start,
		Upstream:   resolved.Target,
		Method:     r.Method,
		Status:     resp.StatusCode,
		DurationMS: time.Since(start).Milliseconds(),
	})
}

// writeProxyError records the failure in the diagnostics buffer and
// renders it as the JSON error body described in §7, using the Kind's
// mapped status code. MissingTarget and InvalidURL carry the extra fields
// the taxonomy table specifies; every other Kind gets a plain message.
func writeProxyError(w http.ResponseWriter, target, method string, start time.Time, err error, log *zap.Logger) {
	kind := proxyerr.KindOf(err)
	DefaultDiagnostics.Record(RequestRecord{
		Time:      start,
		Upstream:  target,
		Method:    method,
		ErrorKind: kind.String(),
	})
	log.Info("proxy error", zap.String("kind", kind.String()), zap.Error(err))

	body := map[string]string{"error": kind.String()}
	switch kind {
	case proxyerr.MissingTarget:
		body["usage"] = usageMessage
	case proxyerr.InvalidURL:
		body["provided"] = target
	default:
		body["message"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(kind.Status())
	_ = json.NewEncoder(w).Encode(body)
}

// handleHealth reports liveness plus the last diagnostics ring-buffer
// entries, per SPEC_FULL.md §12's repurposing of the teacher's
// per-origin session store.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"recent": DefaultDiagnostics.Recent(),
	})
}

// ---------- Static file serving (landing page / assets) ----------

var mimeTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
}

func hasStaticExt(p string) bool {
	_, ok := mimeTypes[filepath.Ext(p)]
	return ok
}

func handleStatic(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	if p == "/" {
		p = "/index.html"
	}

	clean := filepath.Clean(strings.TrimPrefix(p, "/"))
	if strings.Contains(clean, "..") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	fullPath := filepath.Join(AssetsDir, clean)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	ct, ok := mimeTypes[filepath.Ext(fullPath)]
	if !ok {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Write(data)
}
