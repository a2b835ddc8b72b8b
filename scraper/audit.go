package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/trendshot/models"
)

// auditStructure statically checks the rendered HTML before extraction
// starts: the page must hold at least StoryCount story containers. Failing
// fast here beats dying on item 37 with half the results directory written.
func (p *Pipeline) auditStructure(ctx context.Context) error {
	c, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout)
	defer cancel()

	rawHTML, err := p.browser.HTML(c)
	if err != nil {
		return err
	}

	count, err := p.sel.MatchCount(rawHTML)
	if err != nil {
		return models.NewPipelineError(
			models.ErrCodePageStructure,
			"failed to parse rendered page",
			err,
		)
	}
	if count < p.target.StoryCount {
		return models.NewPipelineError(
			models.ErrCodePageStructure,
			fmt.Sprintf("page holds %d story containers, need %d", count, p.target.StoryCount),
			nil,
		)
	}

	slog.Info("page structure verified",
		"containers", count,
		"required", p.target.StoryCount,
		"firstTitle", sampleTitle(rawHTML, p.sel),
	)
	return nil
}

// sampleTitle pulls the first container's title text for the audit log.
// Best-effort: an empty string just means the log line is less helpful.
func sampleTitle(rawHTML string, sel *Selectors) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find(sel.Container).First().Find(sel.Title).Text())
}
