// Package imaging crops chart sub-images out of full screenshots.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"

	"github.com/use-agent/trendshot/models"
)

// Crop returns a new image of the rectangle's pixels from the screenshot.
// Output pixel (0,0) equals source pixel (rect.Left, rect.Top); there is no
// scaling. The rectangle is clamped to the screenshot bounds, so an item
// hanging partially off-screen yields a smaller image rather than a fault;
// an empty intersection is an error.
func Crop(screenshotPNG []byte, rect models.Rect) (*image.RGBA, error) {
	src, err := png.Decode(bytes.NewReader(screenshotPNG))
	if err != nil {
		return nil, models.NewPipelineError(
			models.ErrCodeCrop,
			"failed to decode screenshot",
			err,
		)
	}

	region := image.Rect(rect.Left, rect.Top, rect.Left+rect.Width, rect.Top+rect.Height)
	region = region.Intersect(src.Bounds())
	if region.Empty() {
		return nil, models.NewPipelineError(
			models.ErrCodeCrop,
			fmt.Sprintf("rectangle %s lies outside the %v screenshot", rect, src.Bounds()),
			nil,
		)
	}

	out := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(out, out.Bounds(), src, region.Min, draw.Src)
	return out, nil
}

// CropToFile crops and writes the result as a lossless PNG at destPath.
func CropToFile(screenshotPNG []byte, rect models.Rect, destPath string) error {
	cropped, err := Crop(screenshotPNG, rect)
	if err != nil {
		return err
	}

	f, err := os.Create(destPath)
	if err != nil {
		return models.NewPipelineError(models.ErrCodeCrop, "failed to create chart file", err)
	}
	defer f.Close()

	if err := png.Encode(f, cropped); err != nil {
		return models.NewPipelineError(models.ErrCodeCrop, "failed to encode chart image", err)
	}
	return nil
}
