package trends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStaticDefaultsToBuiltInParagraph(t *testing.T) {
	got, err := Static("").Context(context.Background())
	if err != nil {
		t.Fatalf("Context returned error: %v", err)
	}
	if got != DefaultContext {
		t.Fatalf("unexpected context %q", got)
	}
	got, _ = Static("custom").Context(context.Background())
	if got != "custom" {
		t.Fatalf("context = %q, want custom", got)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trends.txt")
	if err := os.WriteFile(path, []byte("  Gifting   shifts to experiences.\n\n\n\nTikTok drives it.  "), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := File(path).Context(context.Background())
	if err != nil {
		t.Fatalf("Context returned error: %v", err)
	}
	if got != "Gifting shifts to experiences.\n\nTikTok drives it." {
		t.Fatalf("unexpected normalized text %q", got)
	}

	if _, err := File(filepath.Join(dir, "missing.txt")).Context(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestURLSourceExtractsArticleText(t *testing.T) {
	paragraph := strings.Repeat("Shoppers are trading boxed chocolates for concert tickets and spa days this season. ", 6)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Trend report</title></head><body>
<nav>Home | About</nav>
<article><h1>Valentine's trends</h1><p>` + paragraph + `</p><p>` + paragraph + `</p></article>
</body></html>`))
	}))
	defer srv.Close()

	src, err := NewURL(srv.URL+"/report", srv.Client())
	if err != nil {
		t.Fatalf("NewURL returned error: %v", err)
	}
	got, err := src.Context(context.Background())
	if err != nil {
		t.Fatalf("Context returned error: %v", err)
	}
	if !strings.Contains(got, "concert tickets") {
		t.Fatalf("extracted text missing article body: %q", got)
	}
}

func TestURLSourceRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	src, err := NewURL(srv.URL, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Context(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestFromSetting(t *testing.T) {
	cases := []struct {
		setting string
		want    string
	}{
		{"", "trends.Static"},
		{"https://example.com/trends", "*trends.URL"},
		{"file:///etc/trends.txt", "trends.File"},
		{"./trends.txt", "trends.File"},
	}
	for _, tc := range cases {
		src, err := FromSetting(tc.setting, nil)
		if err != nil {
			t.Fatalf("FromSetting(%q) returned error: %v", tc.setting, err)
		}
		var got string
		switch src.(type) {
		case Static:
			got = "trends.Static"
		case *URL:
			got = "*trends.URL"
		case File:
			got = "trends.File"
		}
		if got != tc.want {
			t.Fatalf("FromSetting(%q) = %s, want %s", tc.setting, got, tc.want)
		}
	}
	if src, _ := FromSetting("file:///etc/trends.txt", nil); src.(File) != "/etc/trends.txt" {
		t.Fatalf("file prefix not stripped: %v", src)
	}
}
