// Package download fetches story images over plain HTTP.
package download

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"github.com/use-agent/trendshot/config"
	"golang.org/x/time/rate"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Client downloads images with a Chrome TLS fingerprint (utls) and a
// polite-crawling rate limit shared across all downloads of a run.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	readTimeout time.Duration
	maxBytes    int64
}

// NewClient creates a download client from config.
func NewClient(cfg config.DownloadConfig) *Client {
	transport := &http.Transport{
		DialTLSContext: dialTLSChrome,
	}
	return &Client{
		httpClient:  &http.Client{Transport: transport},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		readTimeout: cfg.ReadTimeout,
		maxBytes:    cfg.MaxBytes,
	}
}

// Download fetches rawURL into destPath. Protocol-relative URLs get an
// "http:" scheme prefix. Any non-2xx status or transport fault is an
// error, and no file is left behind on failure: the destination exists if
// and only if the download succeeded.
func (c *Client) Download(ctx context.Context, rawURL, destPath string) error {
	target := NormalizeURL(rawURL)

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("download: rate limiter: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("download: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download: HTTP %d for %s", resp.StatusCode, target)
	}

	// The read timeout covers the response stream, not the whole request:
	// firing the cancel aborts any stalled body read.
	timer := time.AfterFunc(c.readTimeout, cancel)
	defer timer.Stop()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return fmt.Errorf("download: read body: %w", err)
	}

	if err := os.WriteFile(destPath, body, 0o644); err != nil {
		return fmt.Errorf("download: write %s: %w", destPath, err)
	}
	return nil
}

// NormalizeURL prefixes "http:" onto protocol-relative URLs and leaves
// everything else untouched.
func NormalizeURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "//") {
		return "http:" + rawURL
	}
	return rawURL
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via utls.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{
		ServerName: host,
	}, tls2.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
