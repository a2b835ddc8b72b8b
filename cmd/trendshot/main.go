package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/use-agent/trendshot/browser"
	"github.com/use-agent/trendshot/config"
	"github.com/use-agent/trendshot/download"
	"github.com/use-agent/trendshot/scraper"
	"github.com/use-agent/trendshot/sheet"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("trendshot starting",
		"url", cfg.Target.URL,
		"stories", cfg.Target.StoryCount,
		"headless", cfg.Browser.Headless,
	)

	// ── 3. Prepare directory layout ─────────────────────────────────
	// Results and screenshots are cleared every run; the browser cache
	// persists.
	if err := prepareDirs(cfg.Dirs); err != nil {
		slog.Error("failed to prepare directories", "error", err)
		os.Exit(1)
	}

	// ── 4. Validate selectors ───────────────────────────────────────
	sel, err := scraper.Compile(cfg.Selectors)
	if err != nil {
		slog.Error("invalid selector configuration", "error", err)
		os.Exit(1)
	}

	// ── 5. Launch browser session ──────────────────────────────────
	session, err := browser.NewSession(cfg.Browser, cfg.Dirs.Cache)
	if err != nil {
		slog.Error("failed to start browser session", "error", err)
		os.Exit(1)
	}
	defer session.Close()

	// ── 6. Run the pipeline ────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dl := download.NewClient(cfg.Download)
	pipe := scraper.New(session, dl, sel, cfg.Pipeline, cfg.Target, cfg.Dirs)

	start := time.Now()
	records, err := pipe.Run(ctx)
	if err != nil {
		slog.Error("scrape run failed", "error", err)
		os.Exit(1)
	}
	slog.Info("scrape run complete",
		"records", len(records),
		"elapsed", time.Since(start),
	)

	// ── 7. Serialize ────────────────────────────────────────────────
	out := filepath.Join(cfg.Dirs.Results, "stories.xlsx")
	if err := sheet.WriteTable(records, out); err != nil {
		slog.Error("failed to write spreadsheet", "error", err)
		os.Exit(1)
	}
	slog.Info("spreadsheet written", "path", out)
}

// prepareDirs clears the results and screenshots directories and ensures
// all three top-level directories exist. The cache directory is never
// cleared: it holds the browser engine's own cache across runs.
func prepareDirs(dirs config.DirConfig) error {
	for _, d := range []string{dirs.Results, dirs.Screenshots} {
		if err := os.RemoveAll(d); err != nil {
			return err
		}
	}
	for _, d := range []string{dirs.Results, dirs.Screenshots, dirs.Cache} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// initLogger configures slog based on the LogConfig. The text handler
// writes timestamped lines to stdout.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
