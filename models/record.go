package models

// UndefinedSentinel is the literal string the scripting bridge returns when
// a DOM path does not resolve. It marks a missing value, not an error.
const UndefinedSentinel = "undefined"

// NoImageSentinel is recorded as LocalImagePath when no image file exists on
// disk for a story.
const NoImageSentinel = "none"

// OptString is a string that may be absent. It replaces the page-side
// "undefined" string sentinel inside the pipeline so that missing-vs-present
// is a type-level distinction rather than a string comparison.
type OptString struct {
	Value string
	Valid bool
}

// Some returns a present OptString.
func Some(v string) OptString { return OptString{Value: v, Valid: true} }

// None returns an absent OptString.
func None() OptString { return OptString{} }

// FromDOM converts a scripting-bridge result into an OptString, mapping the
// "undefined" sentinel to absence.
func FromDOM(v string) OptString {
	if v == UndefinedSentinel {
		return None()
	}
	return Some(v)
}

// Or returns the value, or fallback when absent.
func (o OptString) Or(fallback string) string {
	if o.Valid {
		return o.Value
	}
	return fallback
}

// Record is one scraped story. Records are immutable once appended to the
// run's result slice; insertion order equals item index order.
type Record struct {
	// Title is the story headline.
	Title string

	// ExternalURL links to the source article, GoogleURL to the story's
	// page on the host site, ImageURL to the story image. Any of them may
	// be absent on the page.
	ExternalURL OptString
	GoogleURL   OptString
	ImageURL    OptString

	// LocalImagePath points at the downloaded story image, or is the
	// NoImageSentinel when no file was written for this story.
	LocalImagePath string

	// ChartImagePath points at the cropped sparkline-chart image.
	ChartImagePath string
}
