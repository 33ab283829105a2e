package rewriter

import (
	"strings"
	"testing"
)

func TestRewriteCSS_RewritesURLsPreservingQuotes(t *testing.T) {
	base := mustParse(t, "https://example.com/styles/")
	in := []byte(`.a { background: url("bg.png"); }
.b { background: url('../img/bg2.png'); }
.c { background: url(bg3.png); }`)

	out, err := RewriteCSS(in, base, "https://proxy.local")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := string(out)

	if !strings.Contains(s, `url("https://proxy.local/proxy/https/example.com/styles/bg.png")`) {
		t.Errorf("double-quoted url not rewritten correctly: %s", s)
	}
	if !strings.Contains(s, `url('https://proxy.local/proxy/https/example.com/img/bg2.png')`) {
		t.Errorf("single-quoted relative url not rewritten correctly: %s", s)
	}
	if !strings.Contains(s, `url(https://proxy.local/proxy/https/example.com/styles/bg3.png)`) {
		t.Errorf("unquoted url not rewritten correctly: %s", s)
	}
}

func TestRewriteCSS_DataURIsPassThrough(t *testing.T) {
	base := mustParse(t, "https://example.com/")
	in := []byte(`.a { background: url(data:image/png;base64,abcd); }`)

	out, err := RewriteCSS(in, base, "https://proxy.local")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "url(data:image/png;base64,abcd)") {
		t.Errorf("expected data uri to pass through unchanged: %s", out)
	}
}
