package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/trendshot/models"
)

// belowFold reports whether the rectangle's bottom edge, padded by the
// safety margin, extends past the viewport.
func belowFold(rect models.Rect, viewportHeight, margin int) bool {
	return rect.Bottom()+margin > viewportHeight
}

// ensureVisible brings the index-th story's sparkline into the viewport.
// If the rectangle already fits, rect and shot pass through unchanged.
// Otherwise the page is scrolled by the fixed step, allowed to settle, and
// BOTH the rectangle and the screenshot are re-captured: a capture taken
// before a scroll is stale and must never be cropped from.
//
// The check is stateless per item and evaluates client coordinates against
// the current scroll position, so scroll state only ever advances across
// the item loop.
func (p *Pipeline) ensureVisible(ctx context.Context, index int, rect models.Rect, viewportHeight int, shot *Screenshot) (models.Rect, *Screenshot, error) {
	if !belowFold(rect, viewportHeight, p.cfg.FoldMargin) {
		return rect, shot, nil
	}

	slog.Debug("story below the fold, scrolling",
		"index", index,
		"rect", rect.String(),
		"viewportHeight", viewportHeight,
		"step", p.cfg.ScrollStep,
	)

	scrollCtx, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout)
	err := p.browser.ScrollBy(scrollCtx, p.cfg.ScrollStep)
	cancel()
	if err != nil {
		return models.Rect{}, nil, err
	}

	if err := settle(ctx, p.cfg.ScrollDelay); err != nil {
		return models.Rect{}, nil, err
	}

	if err := p.awaitNotLoading(ctx); err != nil {
		return models.Rect{}, nil, err
	}

	// Same settle delay as the page loader: scrolling can trigger lazy
	// loads and re-layout the feed.
	if err := settle(ctx, p.cfg.SettleDelay); err != nil {
		return models.Rect{}, nil, err
	}

	freshRect, err := p.resolveBounds(ctx, index)
	if err != nil {
		return models.Rect{}, nil, err
	}

	freshShot, err := p.capture(ctx)
	if err != nil {
		return models.Rect{}, nil, err
	}

	slog.Debug("re-captured after scroll",
		"index", index,
		"rect", freshRect.String(),
		"screenshot", freshShot.Path,
	)
	return freshRect, freshShot, nil
}

// awaitNotLoading polls the browser's loading flag at the configured
// interval until it clears, bounded by BusyTimeout. A page that never
// stops loading is a timeout error, not an endless poll.
func (p *Pipeline) awaitNotLoading(ctx context.Context) error {
	deadline := time.Now().Add(p.cfg.BusyTimeout)
	for {
		c, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout)
		loading, err := p.browser.IsLoading(c)
		cancel()
		if err != nil {
			return err
		}
		if !loading {
			return nil
		}
		if time.Now().After(deadline) {
			return models.NewPipelineError(
				models.ErrCodeTimeout,
				"page still loading after scroll",
				nil,
			)
		}
		if err := settle(ctx, p.cfg.PollInterval); err != nil {
			return err
		}
	}
}
