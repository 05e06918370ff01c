// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/config"
	"github.com/luyichou/webtech-autopost/internal/locate"
)

// ErrBrowserInit indicates the Chrome process could not be launched or
// attached to.
var ErrBrowserInit = errors.New("browser initialization failed")

// ErrElementNotFound is returned by Find when no strategy in a cascade
// matched a visible element.
var ErrElementNotFound = errors.New("element not found")

// Session owns a single driven Chrome tab for the lifetime of a
// workflow run. All navigation and DOM access for the run flows
// through it; callers never touch chromedp directly.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	allocCancel context.CancelFunc

	logger *zap.Logger
	cfg    *config.BrowserConfig

	// probe checks one locator strategy for a visible match. A field so
	// tests can exercise the cascade walk without a live browser.
	probe func(ctx context.Context, strat locate.Strategy) (bool, error)

	closeOnce sync.Once
}

// New launches a Chrome instance and opens the session tab. The caller
// must Close the session to release the browser process.
func New(parentCtx context.Context, cfg *config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	opts := execOptions(cfg)

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      logger.Named("browser"),
		cfg:         cfg,
	}
	s.probe = s.strategyVisible

	// Force the browser process up now so launch failures surface here
	// rather than on the first navigation.
	startCtx, startCancel := context.WithTimeout(ctx, 60*time.Second)
	defer startCancel()
	if err := chromedp.Run(startCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrBrowserInit, err)
	}

	s.logger.Info("Browser session started.",
		zap.Bool("headless", cfg.Headless),
		zap.Int("width", cfg.WindowWidth),
		zap.Int("height", cfg.WindowHeight))
	return s, nil
}

// execOptions builds the allocator options for the driven Chrome. We
// define these explicitly rather than relying solely on
// chromedp.DefaultExecAllocatorOptions.
func execOptions(cfg *config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if path := executablePath(cfg); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	return opts
}

// executablePath resolves the Chrome binary: explicit config first, then
// the CHROME_PATH environment override, otherwise chromedp's own lookup.
func executablePath(cfg *config.BrowserConfig) string {
	if cfg.ExecPath != "" {
		return cfg.ExecPath
	}
	return os.Getenv("CHROME_PATH")
}

// Navigate loads the given URL and waits for the document to become
// ready, then pauses for the configured settle interval so late
// client-side rendering can finish.
func (s *Session) Navigate(ctx context.Context, url string) error {
	tctx, cancel := s.deadline(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	s.settle(ctx)
	return nil
}

// Refresh reloads the current page and waits for it to settle. Used to
// obtain a fresh CAPTCHA challenge between login attempts.
func (s *Session) Refresh(ctx context.Context) error {
	tctx, cancel := s.deadline(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	// A cached challenge image would defeat the point of refreshing.
	if err := chromedp.Run(tctx,
		network.ClearBrowserCache(),
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("page refresh failed: %w", err)
	}
	s.settle(ctx)
	return nil
}

// CurrentURL reports the tab's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read current location: %w", err)
	}
	return url, nil
}

// PageSource returns the full rendered HTML of the current document.
func (s *Session) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture page source: %w", err)
	}
	return html, nil
}

// Evaluate runs a JavaScript expression in the page. res may be nil
// when the result is not needed.
func (s *Session) Evaluate(ctx context.Context, script string, res any) error {
	return s.run(ctx, chromedp.Evaluate(script, res))
}

// Close tears down the tab and the browser process. Safe to call more
// than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing browser session.")
		s.cancel()
		s.allocCancel()
	})
}

// run executes chromedp actions against the session tab, honoring both
// the caller's context and the session lifetime.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := s.deadline(ctx, s.cfg.WaitTimeout)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

// deadline derives an execution context bounded by d that is cancelled
// when either the caller's context or the session context ends.
func (s *Session) deadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(s.ctx, d)
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

// settle sleeps the configured settle interval, returning early if the
// caller's context is cancelled.
func (s *Session) settle(ctx context.Context) {
	if s.cfg.SettleInterval <= 0 {
		return
	}
	t := time.NewTimer(s.cfg.SettleInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-s.ctx.Done():
	}
}

// selectorOpt maps a locator hit to the chromedp query option.
func selectorOpt(hit locate.Hit) chromedp.QueryOption {
	if hit.By == locate.ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// enterKey is exposed for the interaction helpers.
const enterKey = kb.Enter

// screenshotPath builds a timestamped file path under the configured
// screenshot directory, creating the directory if needed.
func (s *Session) screenshotPath(label string) (string, error) {
	dir := s.cfg.ScreenshotDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.png", label, time.Now().Format("20060102_150405"))
	return filepath.Join(dir, name), nil
}
