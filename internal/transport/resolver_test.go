package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/internex-proxy/internex/internal/proxyerr"
)

func TestResolve_PathForm(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/proxy/https/example.com/a/b?x=1", nil)
	resolved, err := Resolve(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Target != "https://example.com/a/b?x=1" {
		t.Errorf("target = %q", resolved.Target)
	}
	if !resolved.PathForm {
		t.Error("expected PathForm to be true")
	}
}

func TestResolve_QueryForm(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/proxy?url=https%3A%2F%2Fexample.com%2F", nil)
	resolved, err := Resolve(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Target != "https://example.com/" {
		t.Errorf("target = %q", resolved.Target)
	}
	if resolved.PathForm {
		t.Error("expected PathForm to be false")
	}
}

func TestResolve_RefererFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/other/page?y=2", nil)
	r.Header.Set("Referer", "http://internal.local/proxy/https/example.com/first")
	resolved, err := Resolve(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Target != "https://example.com/other/page?y=2" {
		t.Errorf("target = %q", resolved.Target)
	}
}

func TestResolve_MissingTarget(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/nothing-here", nil)
	_, err := Resolve(r)
	if err == nil {
		t.Fatal("expected an error")
	}
	if proxyerr.KindOf(err) != proxyerr.MissingTarget {
		t.Errorf("kind = %v, want MissingTarget", proxyerr.KindOf(err))
	}
}
