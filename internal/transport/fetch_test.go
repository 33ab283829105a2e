package transport

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/internex-proxy/internex/internal/proxyerr"
)

func TestDecodeBody_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("hello gzip"))
	gz.Close()

	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"gzip"}},
		Body:   io.NopCloser(&buf),
	}
	got, err := DecodeBody(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "hello gzip" {
		t.Errorf("got %q", got)
	}
}

func TestDecodeBody_Identity(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{},
		Body:   io.NopCloser(bytes.NewBufferString("plain")),
	}
	got, err := DecodeBody(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "plain" {
		t.Errorf("got %q", got)
	}
}

func TestFetchUpstream_UnreachableHostClassifiesAsUnreachable(t *testing.T) {
	_, err := FetchUpstream(context.Background(), "http://this-host-does-not-exist.invalid/", http.MethodGet, http.Header{}, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if proxyerr.KindOf(err) != proxyerr.UpstreamUnreachable {
		t.Errorf("kind = %v, want UpstreamUnreachable", proxyerr.KindOf(err))
	}
}

func TestFetchUpstream_Success(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	resp, err := FetchUpstream(context.Background(), upstream.URL, http.MethodGet, http.Header{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestFetchUpstream_OutboundHeadersAreOverridden(t *testing.T) {
	var gotUA, gotLang, gotRef, gotOrigin, gotHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		gotRef = r.Header.Get("Referer")
		gotOrigin = r.Header.Get("Origin")
		gotHost = r.Header.Get("X-Forwarded-Host")
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	inbound := http.Header{}
	inbound.Set("User-Agent", "curl/8.0")
	inbound.Set("Accept-Language", "fr-FR")
	inbound.Set("Referer", "http://attacker.example/")
	inbound.Set("X-Forwarded-Host", "attacker.example")

	resp, err := FetchUpstream(context.Background(), upstream.URL, http.MethodGet, inbound, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if gotUA == "curl/8.0" || gotUA == "" {
		t.Errorf("User-Agent = %q, want a fixed desktop UA, not the client's", gotUA)
	}
	if gotLang != "en-US,en;q=0.9" {
		t.Errorf("Accept-Language = %q, want en-US,en;q=0.9", gotLang)
	}
	if gotRef != upstream.URL || gotOrigin != upstream.URL {
		t.Errorf("Referer/Origin = %q/%q, want upstream origin %q", gotRef, gotOrigin, upstream.URL)
	}
	if gotHost != "" {
		t.Errorf("X-Forwarded-Host = %q, want empty (never forwarded)", gotHost)
	}
}

func TestFetchUpstream_ContextCancellation(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("too late"))
	}))
	defer upstream.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := FetchUpstream(ctx, upstream.URL, http.MethodGet, http.Header{}, nil)
	if err == nil {
		t.Fatal("expected a timeout/cancellation error")
	}
}
