// internal/portal/portal.go

// Package portal drives the CMS through its CAPTCHA-gated login and the
// article authoring flow. It owns the retry state machines; all DOM
// access goes through the Driver interface so the workflows can be
// exercised against fakes.
package portal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/config"
	"github.com/luyichou/webtech-autopost/internal/locate"
)

// Driver is the browser capability surface the workflows consume.
// *browser.Session satisfies it.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Refresh(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, label string) (string, error)

	Find(ctx context.Context, target locate.Target) (locate.Hit, error)
	WaitVisible(ctx context.Context, target locate.Target, timeout time.Duration) (locate.Hit, error)
	ElementScreenshot(ctx context.Context, hit locate.Hit) ([]byte, error)

	Click(ctx context.Context, hit locate.Hit) error
	ScriptClick(ctx context.Context, hit locate.Hit) error
	ClearAndType(ctx context.Context, hit locate.Hit, text string) error
	PressEnter(ctx context.Context, hit locate.Hit) error
	SubmitForm(ctx context.Context) error
	Attribute(ctx context.Context, hit locate.Hit, name string) (string, bool, error)
	SelectOption(ctx context.Context, hit locate.Hit, text string) error
	TypeInFrame(ctx context.Context, hit locate.Hit, html string) error
	Evaluate(ctx context.Context, script string, res any) error
}

// Resolver turns a CAPTCHA image into candidate text. The boolean
// reports whether a plausible code was obtained.
type Resolver interface {
	Resolve(ctx context.Context, image []byte, attempt int) (string, bool)
}

// Outcome is the verdict derived from the post-submission page state.
type Outcome int

const (
	// OutcomeUnknown means neither an error nor a success signal was
	// found. Retryable: some portal states are genuinely ambiguous
	// from static inspection alone.
	OutcomeUnknown Outcome = iota
	// OutcomeSuccess ends the login state machine.
	OutcomeSuccess
	// OutcomeCaptchaError covers verification-related rejections.
	OutcomeCaptchaError
	// OutcomeOtherError covers every other recognizable rejection.
	OutcomeOtherError
	// OutcomeFailed marks run-fatal conditions (required form fields
	// absent). Not retried.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCaptchaError:
		return "captcha_error"
	case OutcomeOtherError:
		return "other_error"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ArticleDraft is the immutable input to the publish flow. Content may
// embed markup and image URLs.
type ArticleDraft struct {
	Title    string
	Content  string
	Category string
}

// Automator runs the login and publish workflows against one portal.
type Automator struct {
	drv      Driver
	resolver Resolver
	cfg      *config.Config
	logger   *zap.Logger

	// sleep is swappable so the retry timing can be asserted in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewAutomator wires the workflows to a driver and a CAPTCHA resolver.
func NewAutomator(drv Driver, resolver Resolver, cfg *config.Config, logger *zap.Logger) *Automator {
	return &Automator{
		drv:      drv,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger.Named("portal"),
		sleep:    ctxSleep,
	}
}

// ctxSleep blocks for d, returning false early if ctx is cancelled.
func ctxSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// targets bundles the configured locator cascades under their logical
// names.
func (a *Automator) target(name string, strategies []locate.Strategy) locate.Target {
	return locate.Target{Name: name, Strategies: strategies}
}

// screenshot is best effort throughout both workflows; a missing
// diagnostic image never interrupts the run.
func (a *Automator) screenshot(ctx context.Context, label string) {
	if _, err := a.drv.Screenshot(ctx, label); err != nil {
		a.logger.Debug("Diagnostic screenshot failed.", zap.String("label", label), zap.Error(err))
	}
}
