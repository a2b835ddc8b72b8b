// Package scraper implements the extraction pipeline: page load, per-item
// DOM field reads through the scripting bridge, bounding-box resolution,
// below-the-fold reconciliation, and chart cropping.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/trendshot/config"
	"github.com/use-agent/trendshot/imaging"
	"github.com/use-agent/trendshot/models"
)

// Browser is the browser-session collaborator. All operations are
// sequential and non-overlapping: the pipeline never has two calls in
// flight at once.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	WaitLoad(ctx context.Context) error
	Eval(ctx context.Context, js string) (string, error)
	IsLoading(ctx context.Context) (bool, error)
	ScrollBy(ctx context.Context, dy int) error
	ViewportHeight(ctx context.Context) (int, error)
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
}

// Downloader fetches a story image to a local file.
type Downloader interface {
	Download(ctx context.Context, rawURL, destPath string) error
}

// Screenshot pairs a capture's raw PNG bytes with its on-disk path. It is
// valid for exactly one page state and must be replaced after any scroll.
type Screenshot struct {
	PNG  []byte
	Path string
}

// Pipeline is the single-flow extraction pipeline. It owns no goroutines;
// items are processed strictly in index order.
type Pipeline struct {
	browser    Browser
	downloader Downloader
	sel        *Selectors
	cfg        config.PipelineConfig
	target     config.TargetConfig
	dirs       config.DirConfig
}

// New assembles a pipeline from its collaborators.
func New(b Browser, d Downloader, sel *Selectors, cfg config.PipelineConfig, target config.TargetConfig, dirs config.DirConfig) *Pipeline {
	return &Pipeline{
		browser:    b,
		downloader: d,
		sel:        sel,
		cfg:        cfg,
		target:     target,
		dirs:       dirs,
	}
}

// Run executes the whole pipeline and returns the ordered records, one per
// story index. Any missing story container or sparkline aborts the run;
// there are no skipped records.
func (p *Pipeline) Run(ctx context.Context) ([]models.Record, error) {
	// ── 1. Page load ────────────────────────────────────────────────
	if err := p.loadPage(ctx); err != nil {
		return nil, err
	}

	// ── 2. Structure audit ──────────────────────────────────────────
	if err := p.auditStructure(ctx); err != nil {
		return nil, err
	}

	// ── 3. Initial geometry baseline ────────────────────────────────
	viewportHeight, err := p.viewportHeight(ctx)
	if err != nil {
		return nil, err
	}

	shot, err := p.capture(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("initial capture complete",
		"viewportHeight", viewportHeight,
		"screenshot", shot.Path,
	)

	// ── 4. Item loop ────────────────────────────────────────────────
	records := make([]models.Record, 0, p.target.StoryCount)
	for i := 0; i < p.target.StoryCount; i++ {
		fields, err := p.extractFields(ctx, i)
		if err != nil {
			return nil, err
		}

		localImagePath := p.fetchImage(ctx, i, fields.Image)

		rect, err := p.resolveBounds(ctx, i)
		if err != nil {
			return nil, err
		}

		rect, shot, err = p.ensureVisible(ctx, i, rect, viewportHeight, shot)
		if err != nil {
			return nil, err
		}

		chartPath := filepath.Join(p.dirs.Results, fmt.Sprintf("%d_chart.png", i))
		if err := imaging.CropToFile(shot.PNG, rect, chartPath); err != nil {
			return nil, err
		}

		records = append(records, models.Record{
			Title:          fields.Title,
			ExternalURL:    fields.External,
			GoogleURL:      fields.Google,
			ImageURL:       fields.Image,
			LocalImagePath: localImagePath,
			ChartImagePath: chartPath,
		})
		slog.Info("story processed",
			"index", i,
			"title", fields.Title,
			"rect", rect.String(),
			"image", localImagePath,
		)
	}

	return records, nil
}

// loadPage navigates, awaits the one-shot load signal within LoadTimeout,
// then waits the fixed settle delay for asynchronous content population the
// load event does not cover.
func (p *Pipeline) loadPage(ctx context.Context) error {
	slog.Info("loading page", "url", p.target.URL)

	if err := p.browser.Navigate(ctx, p.target.URL); err != nil {
		return err
	}

	loadCtx, cancel := context.WithTimeout(ctx, p.cfg.LoadTimeout)
	defer cancel()
	if err := p.browser.WaitLoad(loadCtx); err != nil {
		return err
	}

	slog.Debug("load event received, settling", "delay", p.cfg.SettleDelay)
	return settle(ctx, p.cfg.SettleDelay)
}

// evalString runs one bounded script evaluation.
func (p *Pipeline) evalString(ctx context.Context, js string) (string, error) {
	c, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout)
	defer cancel()
	return p.browser.Eval(c, js)
}

// viewportHeight reads the current viewport height with a bounded call.
func (p *Pipeline) viewportHeight(ctx context.Context) (int, error) {
	c, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout)
	defer cancel()
	return p.browser.ViewportHeight(c)
}

// capture takes a screenshot of the current page state and persists it
// under the screenshots directory with a GUID filename.
func (p *Pipeline) capture(ctx context.Context) (*Screenshot, error) {
	c, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout)
	defer cancel()

	png, err := p.browser.Screenshot(c)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(p.dirs.Screenshots, uuid.NewString()+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return nil, models.NewPipelineError(
			models.ErrCodeScreenshot,
			"failed to persist screenshot",
			err,
		)
	}
	return &Screenshot{PNG: png, Path: path}, nil
}

// settle sleeps for d or until ctx is done, so fixed settle delays still
// honor the run's deadline.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return models.NewPipelineError(models.ErrCodeTimeout, "settle delay interrupted", ctx.Err())
	}
}
