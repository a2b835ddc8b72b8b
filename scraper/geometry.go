package scraper

import (
	"context"
	"fmt"

	"github.com/use-agent/trendshot/models"
)

// resolveBounds evaluates the index-th story's sparkline bounding box and
// parses it with the truncation policy of models.ParseRect. A missing
// sparkline is a typed geometry error, not a skipped record.
func (p *Pipeline) resolveBounds(ctx context.Context, index int) (models.Rect, error) {
	raw, err := p.evalString(ctx, p.sel.boundsJS(index))
	if err != nil {
		return models.Rect{}, err
	}
	if raw == models.UndefinedSentinel {
		return models.Rect{}, models.NewPipelineError(
			models.ErrCodeGeometry,
			fmt.Sprintf("story %d has no sparkline element", index),
			nil,
		)
	}

	rect, err := models.ParseRect(raw)
	if err != nil {
		return models.Rect{}, models.NewPipelineError(
			models.ErrCodeGeometry,
			fmt.Sprintf("story %d bounding box unparseable", index),
			err,
		)
	}
	return rect, nil
}
