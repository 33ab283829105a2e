package codec

import (
	"net/http"
	"net/url"
	"testing"
)

func TestIsShortCircuit(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"empty", "", true},
		{"fragment", "#", true},
		{"data uri", "data:image/png;base64,abc", true},
		{"javascript", "javascript:alert(1)", true},
		{"mailto", "mailto:a@b.com", true},
		{"tel", "tel:+15551234", true},
		{"blob", "blob:https://x/abc", true},
		{"about", "about:blank", true},
		{"absolute http", "http://example.com/", false},
		{"relative path", "/foo/bar", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsShortCircuit(tc.in); got != tc.want {
				t.Errorf("IsShortCircuit(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	base, _ := url.Parse("https://example.com/dir/page.html")

	cases := []struct {
		name      string
		raw       string
		want      string
	}{
		{"absolute", "https://other.com/a?b=1", "https://proxy.local/proxy/https/other.com/a?b=1"},
		{"relative", "asset.png", "https://proxy.local/proxy/https/example.com/dir/asset.png"},
		{"root relative", "/shared/x.css", "https://proxy.local/proxy/https/example.com/shared/x.css"},
		{"scheme relative", "//cdn.example.com/lib.js", "https://proxy.local/proxy/https/cdn.example.com/lib.js"},
		{"short circuit", "javascript:void(0)", "javascript:void(0)"},
		{"fragment only", "#section", "https://proxy.local/proxy/https/example.com/dir/page.html#section"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Encode(tc.raw, base, "https://proxy.local")
			if got != tc.want {
				t.Errorf("Encode(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestEncode_UnresolvableReturnsUnchanged(t *testing.T) {
	got := Encode("./relative.png", nil, "https://proxy.local")
	if got != "./relative.png" {
		t.Errorf("expected unresolvable relative URL to pass through unchanged, got %q", got)
	}
}

func TestDecodePathForm(t *testing.T) {
	cases := []struct {
		name       string
		path       string
		rawQuery   string
		fragment   string
		wantTarget string
		wantOK     bool
	}{
		{
			name:       "basic",
			path:       "/proxy/https/example.com/a/b",
			rawQuery:   "q=1",
			fragment:   "top",
			wantTarget: "https://example.com/a/b?q=1#top",
			wantOK:     true,
		},
		{
			name:       "bare authority",
			path:       "/proxy/http/example.com",
			wantTarget: "http://example.com/",
			wantOK:     true,
		},
		{
			name:   "not a proxy path",
			path:   "/favicon.ico",
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DecodePathForm(tc.path, tc.rawQuery, tc.fragment)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got != tc.wantTarget {
				t.Errorf("target = %q, want %q", got, tc.wantTarget)
			}
		})
	}
}

func TestDecodeQueryForm(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"plain absolute", "https://example.com/", false},
		{"encoded absolute", url.QueryEscape("https://example.com/a?b=1"), false},
		{"relative rejected", "/just/a/path", true},
		{"garbage rejected", "not a url at all", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeQueryForm(tc.raw)
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSpliceReferer(t *testing.T) {
	got, ok := SpliceReferer("https://example.com/somepage", "/other", "x=1")
	if !ok {
		t.Fatal("expected ok")
	}
	want := "https://example.com/other?x=1"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, ok := SpliceReferer("not-a-url", "/other", ""); ok {
		t.Error("expected splice to fail on a non-absolute referer target")
	}
}

func TestProxyBase(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "http://internal.local/proxy", nil)
	r.Host = "internal.local"

	if got := ProxyBase(r); got != "http://internal.local" {
		t.Errorf("got %q", got)
	}

	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "public.example.com")
	if got := ProxyBase(r); got != "https://public.example.com" {
		t.Errorf("got %q", got)
	}
}
