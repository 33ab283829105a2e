package charset

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"UTF-8":        "utf-8",
		"ISO-8859-1":   "latin1",
		"windows-1252": "cp1252",
		"Shift_JIS":    "shift-jis",
		"  utf8  ":     "utf-8",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetect_FromContentType(t *testing.T) {
	got := Detect("text/html; charset=ISO-8859-1", nil)
	if got != "latin1" {
		t.Errorf("got %q", got)
	}
}

func TestDetect_FromMetaCharset(t *testing.T) {
	body := []byte(`<html><head><meta charset="windows-1252"></head></html>`)
	got := Detect("text/html", body)
	if got != "cp1252" {
		t.Errorf("got %q", got)
	}
}

func TestDetect_FromMetaHTTPEquiv(t *testing.T) {
	body := []byte(`<html><head><meta http-equiv="Content-Type" content="text/html; charset=ISO-8859-1"></head></html>`)
	got := Detect("text/html", body)
	if got != "latin1" {
		t.Errorf("got %q", got)
	}
}

func TestDetect_DefaultsToUTF8(t *testing.T) {
	if got := Detect("application/json", nil); got != "utf-8" {
		t.Errorf("got %q", got)
	}
}

func TestDecode_UTF8Passthrough(t *testing.T) {
	body := []byte("hello world")
	if got := Decode(body, "utf-8"); got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestDecode_Latin1(t *testing.T) {
	// 0xE9 is 'é' in latin1.
	body := []byte{'c', 'a', 'f', 0xE9}
	got := Decode(body, "latin1")
	if got != "café" {
		t.Errorf("got %q, want %q", got, "café")
	}
}

func TestLooksUTF8(t *testing.T) {
	if !LooksUTF8([]byte("plain ascii")) {
		t.Error("expected ascii to look like utf-8")
	}
	if LooksUTF8([]byte{0xFF, 0xFE, 0x00}) {
		t.Error("expected invalid byte sequence to not look like utf-8")
	}
}
