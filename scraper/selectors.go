package scraper

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/use-agent/trendshot/config"
	"github.com/use-agent/trendshot/models"
	"golang.org/x/net/html"
)

// Selectors is the validated set of CSS selectors for one page layout.
// Compile rejects malformed selectors at startup instead of letting them
// fail silently inside script evaluations mid-run.
type Selectors struct {
	Container    string
	Title        string
	ExternalLink string
	GoogleLink   string
	Image        string
	Sparkline    string

	containerSel cascadia.Sel
}

// Compile validates every configured selector with cascadia and returns the
// compiled set.
func Compile(cfg config.SelectorConfig) (*Selectors, error) {
	named := map[string]string{
		"container": cfg.StoryContainer,
		"title":     cfg.Title,
		"external":  cfg.ExternalLink,
		"google":    cfg.GoogleLink,
		"image":     cfg.Image,
		"sparkline": cfg.Sparkline,
	}
	for name, sel := range named {
		if _, err := cascadia.Parse(sel); err != nil {
			return nil, fmt.Errorf("selector %s (%q): %w", name, sel, err)
		}
	}

	containerSel, err := cascadia.Parse(cfg.StoryContainer)
	if err != nil {
		return nil, fmt.Errorf("selector container (%q): %w", cfg.StoryContainer, err)
	}

	return &Selectors{
		Container:    cfg.StoryContainer,
		Title:        cfg.Title,
		ExternalLink: cfg.ExternalLink,
		GoogleLink:   cfg.GoogleLink,
		Image:        cfg.Image,
		Sparkline:    cfg.Sparkline,
		containerSel: containerSel,
	}, nil
}

// MatchCount parses rawHTML and counts story containers statically.
func (s *Selectors) MatchCount(rawHTML string) (int, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return 0, fmt.Errorf("parse page HTML: %w", err)
	}
	return len(cascadia.QueryAll(doc, s.containerSel)), nil
}

// textJS builds a snippet reading the inner text of inner within the
// index-th story container. An unresolved DOM path yields the literal
// "undefined" string, the pipeline's missing-value marker.
func (s *Selectors) textJS(index int, inner string) string {
	return fmt.Sprintf(`() => {
		const story = document.querySelectorAll(%q)[%d];
		if (!story) return %q;
		const el = story.querySelector(%q);
		if (!el) return %q;
		return String(el.innerText);
	}`, s.Container, index, models.UndefinedSentinel, inner, models.UndefinedSentinel)
}

// attrJS builds a snippet reading attribute attr of inner within the
// index-th story container, with the same "undefined" marker semantics.
func (s *Selectors) attrJS(index int, inner, attr string) string {
	return fmt.Sprintf(`() => {
		const story = document.querySelectorAll(%q)[%d];
		if (!story) return %q;
		const el = story.querySelector(%q);
		if (!el) return %q;
		const v = el.getAttribute(%q);
		return v === null ? %q : String(v);
	}`, s.Container, index, models.UndefinedSentinel, inner, models.UndefinedSentinel,
		attr, models.UndefinedSentinel)
}

// boundsJS builds a snippet serializing the sparkline's client bounding box
// as "left|top|width|height" with floating-point fields.
func (s *Selectors) boundsJS(index int) string {
	return fmt.Sprintf(`() => {
		const story = document.querySelectorAll(%q)[%d];
		if (!story) return %q;
		const el = story.querySelector(%q);
		if (!el) return %q;
		const r = el.getBoundingClientRect();
		return r.left + %q + r.top + %q + r.width + %q + r.height;
	}`, s.Container, index, models.UndefinedSentinel, s.Sparkline, models.UndefinedSentinel,
		models.RectDelimiter, models.RectDelimiter, models.RectDelimiter)
}
