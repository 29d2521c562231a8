package extract

import (
	"strings"
	"testing"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		contentType string
		want        Kind
	}{
		{"text/html", KindHTML},
		{"text/html; charset=utf-8", KindHTML},
		{"application/xhtml+xml", KindHTML},
		{"application/pdf", KindPDF},
		{"text/plain", KindPlainText},
		{"text/markdown; charset=utf-8", KindPlainText},
		{"image/png", KindUnsupported},
		{"application/octet-stream", KindUnsupported},
		{"", KindUnsupported},
	}
	for _, tt := range tests {
		if got := DetectKind(tt.contentType); got != tt.want {
			t.Errorf("DetectKind(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Product Docs</title></head>
<body>
<h1>Getting Started</h1>
<article>
<p>This guide explains how to install the product and run your first sync.
The installation takes about five minutes on most systems and requires no
external dependencies beyond a working network connection.</p>
<p>After installing, configure the endpoint and credentials. The
configuration file lives in your home directory and is read on startup.
A restart is only needed when the endpoint changes.</p>
</article>
<a href="/install">Install</a>
<a href="https://example.com/config#section">Config</a>
<a href="#top">Top</a>
<a href="javascript:void(0)">Noop</a>
<a href="mailto:help@example.com">Help</a>
<script>var tracked = true;</script>
</body>
</html>`

func TestHTML(t *testing.T) {
	res, err := HTML([]byte(samplePage), "https://example.com/docs")
	if err != nil {
		t.Fatalf("HTML() error: %v", err)
	}

	if res.Title == nil {
		t.Fatal("expected a title")
	}
	if !strings.Contains(res.Content, "first sync") {
		t.Errorf("content missing article text: %q", res.Content)
	}
	if strings.Contains(res.Content, "tracked") {
		t.Error("script content leaked into extracted text")
	}

	wantLinks := map[string]bool{
		"https://example.com/install":        false,
		"https://example.com/config#section": false,
	}
	for _, l := range res.Links {
		if _, ok := wantLinks[l]; ok {
			wantLinks[l] = true
		}
		if strings.HasPrefix(l, "mailto:") || strings.HasPrefix(l, "javascript:") {
			t.Errorf("non-http link kept: %q", l)
		}
	}
	for l, seen := range wantLinks {
		if !seen {
			t.Errorf("missing resolved link %q in %v", l, res.Links)
		}
	}
}

func TestHTML_BaseTag(t *testing.T) {
	page := `<html><head><base href="https://cdn.example.com/root/"></head>
<body><a href="sub/page">x</a></body></html>`

	res, err := HTML([]byte(page), "https://example.com/docs")
	if err != nil {
		t.Fatalf("HTML() error: %v", err)
	}
	found := false
	for _, l := range res.Links {
		if l == "https://cdn.example.com/root/sub/page" {
			found = true
		}
	}
	if !found {
		t.Errorf("base tag not honored, links: %v", res.Links)
	}
}

func TestHTML_HeadingPath(t *testing.T) {
	res, err := HTML([]byte(samplePage), "https://example.com/docs")
	if err != nil {
		t.Fatalf("HTML() error: %v", err)
	}
	if res.HeadingPath != "Getting Started" {
		t.Errorf("HeadingPath = %q, want %q", res.HeadingPath, "Getting Started")
	}
}

func TestPlainText(t *testing.T) {
	res, err := PlainText([]byte("  # Heading\n\nBody text.\n"))
	if err != nil {
		t.Fatalf("PlainText() error: %v", err)
	}
	if res.Content != "# Heading\n\nBody text." {
		t.Errorf("Content = %q", res.Content)
	}
	if len(res.Links) != 0 || res.Title != nil {
		t.Error("plain text should have no links or title")
	}
}

func TestExtract_Unsupported(t *testing.T) {
	if _, err := Extract(KindUnsupported, []byte("x"), "https://example.com"); err == nil {
		t.Error("expected an error for unsupported content")
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("hello")
	b := ContentHash("hello")
	c := ContentHash("hello!")

	if a != b {
		t.Error("hash not deterministic")
	}
	if a == c {
		t.Error("distinct content hashed equal")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if len(ShortHash("hello")) != 12 {
		t.Error("short hash should be 12 chars")
	}
}
