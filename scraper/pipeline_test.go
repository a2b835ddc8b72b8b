package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/trendshot/config"
	"github.com/use-agent/trendshot/models"
)

// fakeStory scripts the bridge answers for one story container.
type fakeStory struct {
	title             string
	google            string
	external          string
	image             string
	bounds            string // pre-scroll client rect
	boundsAfterScroll string
}

// fakeBrowser answers the pipeline's scripted evaluations from canned
// stories, mirroring the real bridge's "undefined" marker behavior.
type fakeBrowser struct {
	t        *testing.T
	stories  []fakeStory
	viewport int
	shot     []byte

	scrolled     bool
	scrolls      []int
	captures     int
	loadingPolls int // IsLoading answers true this many times, then false
}

var indexRe = regexp.MustCompile(`\[(\d+)\]`)

func (f *fakeBrowser) Navigate(ctx context.Context, url string) error { return nil }
func (f *fakeBrowser) WaitLoad(ctx context.Context) error             { return nil }

func (f *fakeBrowser) Eval(ctx context.Context, js string) (string, error) {
	m := indexRe.FindStringSubmatch(js)
	if m == nil {
		f.t.Fatalf("snippet carries no story index:\n%s", js)
	}
	idx, _ := strconv.Atoi(m[1])
	if idx >= len(f.stories) {
		return models.UndefinedSentinel, nil
	}
	s := f.stories[idx]

	switch {
	case strings.Contains(js, "getBoundingClientRect"):
		if f.scrolled && s.boundsAfterScroll != "" {
			return s.boundsAfterScroll, nil
		}
		return s.bounds, nil
	case strings.Contains(js, "innerText"):
		return s.title, nil
	case strings.Contains(js, "a.image-link-wrapper img"):
		return s.image, nil
	case strings.Contains(js, "div.summary-text a"):
		return s.external, nil
	default:
		return s.google, nil
	}
}

func (f *fakeBrowser) IsLoading(ctx context.Context) (bool, error) {
	if f.loadingPolls > 0 {
		f.loadingPolls--
		return true, nil
	}
	return false, nil
}

func (f *fakeBrowser) ScrollBy(ctx context.Context, dy int) error {
	f.scrolls = append(f.scrolls, dy)
	f.scrolled = true
	return nil
}

func (f *fakeBrowser) ViewportHeight(ctx context.Context) (int, error) { return f.viewport, nil }

func (f *fakeBrowser) Screenshot(ctx context.Context) ([]byte, error) {
	f.captures++
	return f.shot, nil
}

func (f *fakeBrowser) HTML(ctx context.Context) (string, error) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, s := range f.stories {
		fmt.Fprintf(&b,
			`<div class="feed-item"><div class="details-top"><a href="#"><span>%s</span></a></div></div>`,
			s.title)
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

// fakeDownloader records invocations; failWith, when set, fails them all.
type fakeDownloader struct {
	urls     []string
	dests    []string
	failWith error
}

func (d *fakeDownloader) Download(ctx context.Context, rawURL, destPath string) error {
	d.urls = append(d.urls, rawURL)
	d.dests = append(d.dests, destPath)
	return d.failWith
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		SettleDelay:  time.Millisecond,
		ScrollStep:   2000,
		FoldMargin:   20,
		PollInterval: time.Millisecond,
		ScrollDelay:  time.Millisecond,
		LoadTimeout:  time.Second,
		EvalTimeout:  time.Second,
		BusyTimeout:  time.Second,
	}
}

func testDirs(t *testing.T) config.DirConfig {
	t.Helper()
	root := t.TempDir()
	dirs := config.DirConfig{
		Results:     filepath.Join(root, "results"),
		Screenshots: filepath.Join(root, "screenshots"),
		Cache:       filepath.Join(root, "cache"),
	}
	for _, d := range []string{dirs.Results, dirs.Screenshots, dirs.Cache} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return dirs
}

func blankPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestPipeline(t *testing.T, fb *fakeBrowser, dl *fakeDownloader, dirs config.DirConfig) *Pipeline {
	t.Helper()
	sel, err := Compile(testSelectorConfig())
	if err != nil {
		t.Fatal(err)
	}
	target := config.TargetConfig{
		URL:        "https://host.example.com/trending",
		StoryCount: len(fb.stories),
	}
	return New(fb, dl, sel, testPipelineConfig(), target, dirs)
}

func pipelineCode(t *testing.T, err error) string {
	t.Helper()
	var pe *models.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("want a PipelineError, got %T: %v", err, err)
	}
	return pe.Code
}

func TestRun_RecordsInIndexOrder(t *testing.T) {
	fb := &fakeBrowser{
		t:        t,
		viewport: 900,
		shot:     blankPNG(t, 800, 800),
		stories: []fakeStory{
			{
				title:    "Alpha",
				google:   "https://host.example.com/story/alpha",
				external: "https://news.example.com/alpha",
				image:    "//cdn.example.com/alpha.png",
				bounds:   "10.5|100.2|120.9|40.1",
			},
			{
				title:    "Beta",
				google:   "https://host.example.com/story/beta",
				external: models.UndefinedSentinel,
				image:    models.UndefinedSentinel,
				bounds:   "10|200|120|40",
			},
			{
				title:    "Gamma",
				google:   models.UndefinedSentinel,
				external: "https://news.example.com/gamma",
				image:    "https://cdn.example.com/gamma.png",
				bounds:   "10|300|120|40",
			},
		},
	}
	dl := &fakeDownloader{}
	dirs := testDirs(t)

	records, err := newTestPipeline(t, fb, dl, dirs).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	for i, want := range []string{"Alpha", "Beta", "Gamma"} {
		if records[i].Title != want {
			t.Errorf("record %d title = %q, want %q (index order must hold)", i, records[i].Title, want)
		}
	}

	// Truncated rect for story 0.
	if records[0].ChartImagePath != filepath.Join(dirs.Results, "0_chart.png") {
		t.Errorf("chart path = %q", records[0].ChartImagePath)
	}
	chart, err := os.Open(records[0].ChartImagePath)
	if err != nil {
		t.Fatalf("chart file missing: %v", err)
	}
	img, err := png.Decode(chart)
	chart.Close()
	if err != nil {
		t.Fatalf("chart not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 120 || img.Bounds().Dy() != 40 {
		t.Errorf("chart is %dx%d, want 120x40 (truncated rect dims)",
			img.Bounds().Dx(), img.Bounds().Dy())
	}

	// Story 1 has no image: downloader never sees it, sentinel recorded.
	if len(dl.urls) != 2 {
		t.Fatalf("downloader invoked %d times, want 2: %v", len(dl.urls), dl.urls)
	}
	if dl.urls[0] != "//cdn.example.com/alpha.png" || dl.urls[1] != "https://cdn.example.com/gamma.png" {
		t.Errorf("downloader urls out of order: %v", dl.urls)
	}
	if records[1].LocalImagePath != models.NoImageSentinel {
		t.Errorf("story without image recorded path %q, want %q",
			records[1].LocalImagePath, models.NoImageSentinel)
	}
	if records[0].LocalImagePath != filepath.Join(dirs.Results, "0_image.png") {
		t.Errorf("story 0 image path = %q", records[0].LocalImagePath)
	}

	// Optional fields survived as typed absence.
	if records[1].ExternalURL.Valid || records[1].ImageURL.Valid {
		t.Error("story 1's absent fields came back as present")
	}
	if records[2].GoogleURL.Valid {
		t.Error("story 2's absent google link came back as present")
	}

	// Nothing below the fold: one capture, no scrolls.
	if fb.captures != 1 || len(fb.scrolls) != 0 {
		t.Errorf("captures=%d scrolls=%v, want 1 capture and no scrolls", fb.captures, fb.scrolls)
	}
}

func TestRun_DownloadFailureRecordsSentinel(t *testing.T) {
	fb := &fakeBrowser{
		t:        t,
		viewport: 900,
		shot:     blankPNG(t, 800, 800),
		stories: []fakeStory{{
			title:  "Alpha",
			google: "https://host.example.com/story/alpha",
			image:  "https://cdn.example.com/alpha.png",
			bounds: "0|0|50|50",
		}},
	}
	dl := &fakeDownloader{failWith: errors.New("connection reset")}

	records, err := newTestPipeline(t, fb, dl, testDirs(t)).Run(context.Background())
	if err != nil {
		t.Fatalf("a failed download must not abort the run: %v", err)
	}
	if records[0].LocalImagePath != models.NoImageSentinel {
		t.Errorf("failed download recorded path %q, want %q",
			records[0].LocalImagePath, models.NoImageSentinel)
	}
}

func TestRun_BelowFoldScrollsAndRecaptures(t *testing.T) {
	fb := &fakeBrowser{
		t:            t,
		viewport:     750,
		shot:         blankPNG(t, 800, 900),
		loadingPolls: 2,
		stories: []fakeStory{{
			title:             "Alpha",
			google:            "https://host.example.com/story/alpha",
			image:             models.UndefinedSentinel,
			bounds:            "0|500|100|300", // 500+300+20 = 820 > 750
			boundsAfterScroll: "0|100|100|300",
		}},
	}

	records, err := newTestPipeline(t, fb, &fakeDownloader{}, testDirs(t)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fb.scrolls) != 1 || fb.scrolls[0] != 2000 {
		t.Errorf("scrolls = %v, want one scroll by the fixed 2000px step", fb.scrolls)
	}
	if fb.captures != 2 {
		t.Errorf("captures = %d, want 2 (pre-scroll shot is stale)", fb.captures)
	}
	if fb.loadingPolls != 0 {
		t.Errorf("loading flag was not polled until clear")
	}

	// The record's chart must come from the re-resolved rect.
	f, err := os.Open(records[0].ChartImagePath)
	if err != nil {
		t.Fatalf("chart file missing: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("chart not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 300 {
		t.Errorf("chart is %dx%d, want 100x300 from the fresh rect",
			img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestRun_NotEnoughContainersFailsFast(t *testing.T) {
	fb := &fakeBrowser{
		t:        t,
		viewport: 900,
		shot:     blankPNG(t, 800, 800),
		stories: []fakeStory{{
			title:  "Alpha",
			google: "https://host.example.com/story/alpha",
			bounds: "0|0|50|50",
		}},
	}
	dl := &fakeDownloader{}
	p := newTestPipeline(t, fb, dl, testDirs(t))

	// Demand more stories than the page holds.
	p.target.StoryCount = 5

	_, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("short page must abort before extraction")
	}
	if code := pipelineCode(t, err); code != models.ErrCodePageStructure {
		t.Errorf("error code = %s, want %s", code, models.ErrCodePageStructure)
	}
	if len(dl.urls) != 0 {
		t.Error("downloader was invoked despite the failed audit")
	}
}

func TestRun_MissingSparklineAborts(t *testing.T) {
	fb := &fakeBrowser{
		t:        t,
		viewport: 900,
		shot:     blankPNG(t, 800, 800),
		stories: []fakeStory{{
			title:  "Alpha",
			google: "https://host.example.com/story/alpha",
			image:  models.UndefinedSentinel,
			bounds: models.UndefinedSentinel,
		}},
	}

	_, err := newTestPipeline(t, fb, &fakeDownloader{}, testDirs(t)).Run(context.Background())
	if err == nil {
		t.Fatal("missing sparkline must be a hard failure")
	}
	if code := pipelineCode(t, err); code != models.ErrCodeGeometry {
		t.Errorf("error code = %s, want %s", code, models.ErrCodeGeometry)
	}
}

func TestRun_MissingTitleAborts(t *testing.T) {
	fb := &fakeBrowser{
		t:        t,
		viewport: 900,
		shot:     blankPNG(t, 800, 800),
		stories: []fakeStory{{
			title:  models.UndefinedSentinel,
			google: "https://host.example.com/story/alpha",
			bounds: "0|0|50|50",
		}},
	}

	_, err := newTestPipeline(t, fb, &fakeDownloader{}, testDirs(t)).Run(context.Background())
	if err == nil {
		t.Fatal("missing title element must be a hard failure")
	}
	if code := pipelineCode(t, err); code != models.ErrCodeExtraction {
		t.Errorf("error code = %s, want %s", code, models.ErrCodeExtraction)
	}
}
