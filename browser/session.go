// Package browser owns the single Rod browser session the pipeline drives.
// One browser process, one page, never shared between logical flows: a live
// DOM/screenshot pair is only valid for one item's processing window.
package browser

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/trendshot/config"
	"github.com/use-agent/trendshot/models"
	"github.com/ysmood/gson"
)

// Session is the live browser session. All methods are context-bound; a
// context deadline surfaces as a typed timeout error instead of a hang.
type Session struct {
	browser *rod.Browser
	page    *rod.Page
	router  *rod.HijackRouter
}

// NewSession launches the browser and opens the single page the run uses.
// The engine's own cache lives under cacheDir and persists across runs.
func NewSession(cfg config.BrowserConfig, cacheDir string) (*Session, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		UserDataDir(cacheDir)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewPipelineError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL, "cacheDir", cacheDir)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.NewPipelineError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		b.MustClose()
		return nil, models.NewPipelineError(
			models.ErrCodeBrowserCrash,
			"failed to create page",
			err,
		)
	}

	s := &Session{browser: b, page: page}

	// Stealth JS must be installed before any navigation happens.
	if cfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{
			"Accept-Language": "en-US,en;q=0.9",
		}),
	}.Call(page)

	// Hijack router must also be mounted before navigation.
	s.router = setupHijack(page, cfg.BlockedResourceTypes)

	return s, nil
}

// Navigate points the page at url. It does not wait for the load signal;
// WaitLoad does that separately so the caller controls the deadline.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.page.Context(ctx).Navigate(url); err != nil {
		return categorize(err, models.ErrCodeNavigation, "navigation to target URL failed")
	}
	return nil
}

// WaitLoad blocks until the page fires its one-shot load event or ctx
// expires.
func (s *Session) WaitLoad(ctx context.Context) error {
	if err := s.page.Context(ctx).WaitLoad(); err != nil {
		return categorize(err, models.ErrCodeNavigation, "page never reached the load event")
	}
	return nil
}

// Eval runs a JS snippet in the page and returns its string result. Every
// snippet the pipeline issues resolves to a string; missing DOM paths come
// back as the literal "undefined".
func (s *Session) Eval(ctx context.Context, js string) (string, error) {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return "", categorize(err, models.ErrCodeBrowserCrash, "script evaluation failed")
	}
	return res.Value.Str(), nil
}

// IsLoading reports whether the document is still loading.
func (s *Session) IsLoading(ctx context.Context) (bool, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.readyState !== 'complete'`)
	if err != nil {
		return false, categorize(err, models.ErrCodeBrowserCrash, "readyState probe failed")
	}
	return res.Value.Bool(), nil
}

// ScrollBy advances the viewport by dy pixels.
func (s *Session) ScrollBy(ctx context.Context, dy int) error {
	p := s.page.Context(ctx)
	if err := p.Mouse.Scroll(0, float64(dy), 0); err != nil {
		return categorize(err, models.ErrCodeBrowserCrash, "scroll command failed")
	}
	return nil
}

// ViewportHeight returns the current viewport height in pixels.
func (s *Session) ViewportHeight(ctx context.Context) (int, error) {
	res, err := s.page.Context(ctx).Eval(`() => window.innerHeight`)
	if err != nil {
		return 0, categorize(err, models.ErrCodeBrowserCrash, "viewport height probe failed")
	}
	return res.Value.Int(), nil
}

// Screenshot captures the current viewport as PNG bytes. The capture is
// tied to this exact page state; it is stale the instant the page scrolls.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	png, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, categorize(err, models.ErrCodeScreenshot, "screenshot capture failed")
	}
	return png, nil
}

// HTML returns the rendered page HTML for static structure checks.
func (s *Session) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", categorize(err, models.ErrCodeBrowserCrash, "failed to read page HTML")
	}
	return html, nil
}

// Close stops the hijack router and kills the browser process. Call on
// shutdown to prevent zombie Chrome processes.
func (s *Session) Close() {
	if s.router != nil {
		_ = s.router.Stop()
	}
	slog.Info("browser session closing")
	s.browser.MustClose()
}

// categorize wraps raw errors into typed PipelineErrors so callers and the
// log trail can tell a timeout from a browser fault.
func categorize(err error, code, msg string) *models.PipelineError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewPipelineError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewPipelineError(models.ErrCodeTimeout, "operation canceled", err)
	default:
		return models.NewPipelineError(code, msg, err)
	}
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
