package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Target    TargetConfig
	Browser   BrowserConfig
	Pipeline  PipelineConfig
	Download  DownloadConfig
	Dirs      DirConfig
	Selectors SelectorConfig
	Log       LogConfig
}

// TargetConfig identifies the page being scraped.
type TargetConfig struct {
	// URL is the trending-stories page to navigate to.
	URL string // default: https://trends.google.com/trends/trendingsearches/daily?geo=US

	// StoryCount is the fixed number of story records to extract.
	StoryCount int // default: 50
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Stealth toggles stealth.JS injection before navigation.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types the hijack router blocks.
	// Images are never blocked here: the page must render them for the
	// screenshots the cropper works from.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string
}

// PipelineConfig controls the extraction pipeline's timing and geometry.
type PipelineConfig struct {
	// SettleDelay is the fixed wait after a load or scroll event to let
	// asynchronous content population finish.
	SettleDelay time.Duration // default: 10s

	// ScrollStep is the fixed vertical scroll advance in pixels when an
	// item sits below the fold.
	ScrollStep int // default: 2000

	// FoldMargin is the safety margin in pixels added to an item's bottom
	// edge when testing it against the viewport height.
	FoldMargin int // default: 20

	// PollInterval is the cadence for polling the browser's loading flag
	// after a scroll.
	PollInterval time.Duration // default: 250ms

	// ScrollDelay is the short fixed wait between issuing a scroll and
	// starting to poll the loading flag.
	ScrollDelay time.Duration // default: 500ms

	// LoadTimeout bounds the wait for the page's load signal.
	LoadTimeout time.Duration // default: 90s

	// EvalTimeout bounds each script evaluation, screenshot capture and
	// scroll command.
	EvalTimeout time.Duration // default: 15s

	// BusyTimeout bounds the post-scroll loading-flag poll loop.
	BusyTimeout time.Duration // default: 30s
}

// DownloadConfig controls the story-image downloader.
type DownloadConfig struct {
	// ReadTimeout is the deadline on reading a download's response body.
	ReadTimeout time.Duration // default: 5s

	// RatePerSecond is the sustained download rate across all images.
	RatePerSecond float64 // default: 2

	// MaxBytes caps a downloaded image's size.
	MaxBytes int64 // default: 10 MB
}

// DirConfig is the on-disk layout. Results and Screenshots are cleared at
// process start; Cache persists across runs (it is the browser engine's own
// user data dir).
type DirConfig struct {
	Results     string // default: "results"
	Screenshots string // default: "screenshots"
	Cache       string // default: "cache"
}

// SelectorConfig names the CSS selectors for the target page layout. They
// are versioned here so page-layout drift is a one-place change.
type SelectorConfig struct {
	// StoryContainer matches one repeating story container.
	StoryContainer string // default: "div.feed-item"

	// Title, ExternalLink, GoogleLink, Image and Sparkline are resolved
	// relative to a story container.
	Title        string // default: "div.details-top a span"
	ExternalLink string // default: "div.summary-text a"
	GoogleLink   string // default: "div.details-top a"
	Image        string // default: "a.image-link-wrapper img"
	Sparkline    string // default: "div.sparkline-chart svg"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Target: TargetConfig{
			URL:        envOr("TRENDSHOT_URL", "https://trends.google.com/trends/trendingsearches/daily?geo=US"),
			StoryCount: envIntOr("TRENDSHOT_STORY_COUNT", 50),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("TRENDSHOT_HEADLESS", true),
			NoSandbox:  envBoolOr("TRENDSHOT_NO_SANDBOX", false),
			BrowserBin: os.Getenv("TRENDSHOT_BROWSER_BIN"),
			Stealth:    envBoolOr("TRENDSHOT_STEALTH", true),
			BlockedResourceTypes: envSliceOr("TRENDSHOT_BLOCKED_RESOURCES", []string{
				"Font", "Media",
			}),
		},
		Pipeline: PipelineConfig{
			SettleDelay:  envDurationOr("TRENDSHOT_SETTLE_DELAY", 10*time.Second),
			ScrollStep:   envIntOr("TRENDSHOT_SCROLL_STEP", 2000),
			FoldMargin:   envIntOr("TRENDSHOT_FOLD_MARGIN", 20),
			PollInterval: envDurationOr("TRENDSHOT_POLL_INTERVAL", 250*time.Millisecond),
			ScrollDelay:  envDurationOr("TRENDSHOT_SCROLL_DELAY", 500*time.Millisecond),
			LoadTimeout:  envDurationOr("TRENDSHOT_LOAD_TIMEOUT", 90*time.Second),
			EvalTimeout:  envDurationOr("TRENDSHOT_EVAL_TIMEOUT", 15*time.Second),
			BusyTimeout:  envDurationOr("TRENDSHOT_BUSY_TIMEOUT", 30*time.Second),
		},
		Download: DownloadConfig{
			ReadTimeout:   envDurationOr("TRENDSHOT_DOWNLOAD_TIMEOUT", 5*time.Second),
			RatePerSecond: envFloatOr("TRENDSHOT_DOWNLOAD_RPS", 2.0),
			MaxBytes:      int64(envIntOr("TRENDSHOT_DOWNLOAD_MAX_BYTES", 10*1024*1024)),
		},
		Dirs: DirConfig{
			Results:     envOr("TRENDSHOT_RESULTS_DIR", "results"),
			Screenshots: envOr("TRENDSHOT_SCREENSHOTS_DIR", "screenshots"),
			Cache:       envOr("TRENDSHOT_CACHE_DIR", "cache"),
		},
		Selectors: SelectorConfig{
			StoryContainer: envOr("TRENDSHOT_SEL_CONTAINER", "div.feed-item"),
			Title:          envOr("TRENDSHOT_SEL_TITLE", "div.details-top a span"),
			ExternalLink:   envOr("TRENDSHOT_SEL_EXTERNAL", "div.summary-text a"),
			GoogleLink:     envOr("TRENDSHOT_SEL_GOOGLE", "div.details-top a"),
			Image:          envOr("TRENDSHOT_SEL_IMAGE", "a.image-link-wrapper img"),
			Sparkline:      envOr("TRENDSHOT_SEL_SPARKLINE", "div.sparkline-chart svg"),
		},
		Log: LogConfig{
			Level:  envOr("TRENDSHOT_LOG_LEVEL", "info"),
			Format: envOr("TRENDSHOT_LOG_FORMAT", "text"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
