package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/use-agent/trendshot/models"
)

// storyFields holds the four DOM reads for one story. Title is mandatory;
// the three URLs may legitimately be absent on the page.
type storyFields struct {
	Title    string
	External models.OptString
	Google   models.OptString
	Image    models.OptString
}

// extractFields issues four independent script evaluations scoped to the
// index-th story container: google link href, title text, external link
// href, image src. The bridge's "undefined" marker maps to an absent
// OptString. A missing title means the container itself did not resolve,
// which is a hard failure for the run.
func (p *Pipeline) extractFields(ctx context.Context, index int) (storyFields, error) {
	google, err := p.evalString(ctx, p.sel.attrJS(index, p.sel.GoogleLink, "href"))
	if err != nil {
		return storyFields{}, err
	}

	title, err := p.evalString(ctx, p.sel.textJS(index, p.sel.Title))
	if err != nil {
		return storyFields{}, err
	}
	if title == models.UndefinedSentinel {
		return storyFields{}, models.NewPipelineError(
			models.ErrCodeExtraction,
			fmt.Sprintf("story %d has no title element", index),
			nil,
		)
	}

	external, err := p.evalString(ctx, p.sel.attrJS(index, p.sel.ExternalLink, "href"))
	if err != nil {
		return storyFields{}, err
	}

	image, err := p.evalString(ctx, p.sel.attrJS(index, p.sel.Image, "src"))
	if err != nil {
		return storyFields{}, err
	}

	return storyFields{
		Title:    title,
		External: models.FromDOM(external),
		Google:   models.FromDOM(google),
		Image:    models.FromDOM(image),
	}, nil
}

// fetchImage downloads the story image to "<index>_image.png" under the
// results directory. When the page reports no image, or the download fails,
// the returned path is the "none" sentinel: the recorded path always
// reflects actual file presence. Download failure never aborts the run.
func (p *Pipeline) fetchImage(ctx context.Context, index int, imageURL models.OptString) string {
	if !imageURL.Valid {
		return models.NoImageSentinel
	}

	dest := filepath.Join(p.dirs.Results, fmt.Sprintf("%d_image.png", index))
	if err := p.downloader.Download(ctx, imageURL.Value, dest); err != nil {
		slog.Warn("image download failed",
			"index", index,
			"url", imageURL.Value,
			"error", err,
		)
		return models.NoImageSentinel
	}
	return dest
}
