package models

import (
	"fmt"
	"strconv"
	"strings"
)

// RectDelimiter separates the four fields in the bridge's serialized
// bounding-box string ("left|top|width|height").
const RectDelimiter = "|"

// Rect is an element's bounding box in client (viewport-relative) pixel
// coordinates at a given page state.
type Rect struct {
	Left   int
	Top    int
	Width  int
	Height int
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.Left, r.Top, r.Width, r.Height)
}

// Bottom returns the rectangle's lower edge.
func (r Rect) Bottom() int { return r.Top + r.Height }

// ParseRect parses a "left|top|width|height" string of floating-point DOM
// measurements. Each field's fractional part is truncated at the decimal
// point before integer parsing. Truncation (toward zero), never rounding,
// is the fixed policy: the values become pixel offsets for cropping and a
// rounding change would shift crop boundaries.
func ParseRect(s string) (Rect, error) {
	parts := strings.Split(s, RectDelimiter)
	if len(parts) != 4 {
		return Rect{}, fmt.Errorf("bounding box %q: want 4 fields, got %d", s, len(parts))
	}

	vals := make([]int, 4)
	for i, p := range parts {
		n, err := truncInt(strings.TrimSpace(p))
		if err != nil {
			return Rect{}, fmt.Errorf("bounding box %q: field %d: %w", s, i, err)
		}
		vals[i] = n
	}

	return Rect{Left: vals[0], Top: vals[1], Width: vals[2], Height: vals[3]}, nil
}

// truncInt drops everything at and after the decimal point, then parses.
// "12.7" becomes 12, "-3.9" becomes -3.
func truncInt(s string) (int, error) {
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		s = s[:idx]
	}
	if s == "" || s == "-" {
		return 0, fmt.Errorf("empty numeric field")
	}
	return strconv.Atoi(s)
}
