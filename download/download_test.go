package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/use-agent/trendshot/config"
)

func testConfig() config.DownloadConfig {
	return config.DownloadConfig{
		ReadTimeout:   5 * time.Second,
		RatePerSecond: 1000, // tests should not sit in the limiter
		MaxBytes:      1 << 20,
	}
}

func TestDownload_WritesFile(t *testing.T) {
	payload := []byte("fake-png-bytes")
	var gotCacheControl, gotUA string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCacheControl = r.Header.Get("Cache-Control")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "0_image.png")
	c := NewClient(testConfig())

	if err := c.Download(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("Download: %v", err)
	}

	body, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	if string(body) != string(payload) {
		t.Errorf("file content = %q, want %q", body, payload)
	}
	if gotCacheControl != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", gotCacheControl)
	}
	if gotUA == "" {
		t.Error("request carried no User-Agent")
	}
}

func TestDownload_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "0_image.png")
	c := NewClient(testConfig())

	if err := c.Download(context.Background(), srv.URL, dest); err == nil {
		t.Fatal("404 must be a failure")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("failed download left a file behind")
	}
}

func TestDownload_UnreachableHost(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "0_image.png")
	c := NewClient(testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Download(ctx, "http://127.0.0.1:1/missing.png", dest); err == nil {
		t.Fatal("connection refusal must be a failure")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("failed download left a file behind")
	}
}

func TestDownload_StalledBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1024")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		// Never send the body; the client's read timeout must fire.
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	c := NewClient(cfg)

	dest := filepath.Join(t.TempDir(), "0_image.png")
	start := time.Now()
	err := c.Download(context.Background(), srv.URL, dest)
	if err == nil {
		t.Fatal("stalled body must time out")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("read timeout took %v to fire", elapsed)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"//cdn.example.com/a.png", "http://cdn.example.com/a.png"},
		{"https://example.com/a.png", "https://example.com/a.png"},
		{"http://example.com/a.png", "http://example.com/a.png"},
		{"/relative/path.png", "/relative/path.png"},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
