// internal/portal/login.go
package portal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/locate"
)

// attemptResult carries one login attempt's verdict plus whether the
// attempt stopped before submission because the CAPTCHA went
// unresolved. The unresolved path uses the flat base delay; classified
// failures use the linearly scaled one.
type attemptResult struct {
	outcome           Outcome
	captchaUnresolved bool
}

// Login drives the portal's login form for up to the configured number
// of attempts. It returns true on a classified success and false when
// the attempts are exhausted or a run-fatal condition is hit. Expected
// failures never surface as errors; callers get a plain boolean.
func (a *Automator) Login(ctx context.Context) bool {
	maxAttempts := a.cfg.Retry.MaxLoginAttempts
	base := a.cfg.Retry.BaseDelay

	for k := 1; k <= maxAttempts; k++ {
		if ctx.Err() != nil {
			a.logger.Warn("Login cancelled.", zap.Int("attempt", k))
			return false
		}

		res := a.attemptLogin(ctx, k)
		a.logger.Info("Login attempt finished.",
			zap.Int("attempt", k),
			zap.Int("max_attempts", maxAttempts),
			zap.String("outcome", res.outcome.String()),
			zap.Bool("captcha_unresolved", res.captchaUnresolved))

		switch res.outcome {
		case OutcomeSuccess:
			return true
		case OutcomeFailed:
			return false
		}

		if k == maxAttempts {
			break
		}
		delay := base * time.Duration(k)
		if res.captchaUnresolved {
			// No submission happened; a fresh CAPTCHA is one refresh
			// away, so only the flat base delay applies.
			delay = base
		}
		if !a.sleep(ctx, delay) {
			return false
		}
	}

	a.logger.Error("Login failed: all attempts exhausted.", zap.Int("attempts", maxAttempts))
	return false
}

// attemptLogin runs a single attempt. Driver errors inside the attempt
// are converted into retryable outcomes with a diagnostic screenshot;
// the only run-fatal condition here is a login form missing one of its
// three required fields. A panic inside an attempt is confined to that
// attempt and retried like any other failure.
func (a *Automator) attemptLogin(ctx context.Context, k int) (res attemptResult) {
	log := a.logger.With(zap.Int("attempt", k))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Login attempt panicked.", zap.Any("panic", r), zap.Stack("stack"))
			a.screenshot(ctx, fmt.Sprintf("login_panic_%d", k))
			res = attemptResult{outcome: OutcomeOtherError}
		}
	}()

	// First attempt loads the page; later ones refresh it to pull a
	// fresh CAPTCHA while keeping the DOM and cookies.
	var navErr error
	if k == 1 {
		navErr = a.drv.Navigate(ctx, a.cfg.Portal.LoginURL)
	} else {
		navErr = a.drv.Refresh(ctx)
	}
	if navErr != nil {
		log.Warn("Navigation failed.", zap.Error(navErr))
		a.screenshot(ctx, fmt.Sprintf("login_nav_error_%d", k))
		return attemptResult{outcome: OutcomeOtherError}
	}

	a.screenshot(ctx, fmt.Sprintf("login_attempt_%d", k))

	// The CAPTCHA image is located before the fields: its absence is a
	// warning, not a failure. Forms without a detectable CAPTCHA
	// region still attempt submission.
	captchaImage, hasCaptcha := a.grabCaptchaImage(ctx, log)

	usernameHit, err := a.drv.Find(ctx, a.target("username field", a.cfg.Locators.UsernameField))
	if err != nil {
		return a.missingField(ctx, log, "username", err)
	}
	passwordHit, err := a.drv.Find(ctx, a.target("password field", a.cfg.Locators.PasswordField))
	if err != nil {
		return a.missingField(ctx, log, "password", err)
	}
	captchaHit, err := a.drv.Find(ctx, a.target("captcha field", a.cfg.Locators.CaptchaField))
	if err != nil {
		return a.missingField(ctx, log, "captcha", err)
	}

	if err := a.drv.ClearAndType(ctx, usernameHit, a.cfg.Portal.Username); err != nil {
		log.Warn("Filling username failed.", zap.Error(err))
		a.screenshot(ctx, fmt.Sprintf("login_fill_error_%d", k))
		return attemptResult{outcome: OutcomeOtherError}
	}
	if err := a.drv.ClearAndType(ctx, passwordHit, a.cfg.Portal.Password); err != nil {
		log.Warn("Filling password failed.", zap.Error(err))
		a.screenshot(ctx, fmt.Sprintf("login_fill_error_%d", k))
		return attemptResult{outcome: OutcomeOtherError}
	}

	if hasCaptcha {
		code, ok := a.resolver.Resolve(ctx, captchaImage, k)
		if !ok {
			log.Warn("CAPTCHA unresolved; skipping submission this attempt.")
			return attemptResult{outcome: OutcomeCaptchaError, captchaUnresolved: true}
		}
		if err := a.drv.ClearAndType(ctx, captchaHit, code); err != nil {
			log.Warn("Filling CAPTCHA failed.", zap.Error(err))
			a.screenshot(ctx, fmt.Sprintf("login_fill_error_%d", k))
			return attemptResult{outcome: OutcomeOtherError}
		}
	}

	if err := a.submitCascade(ctx, captchaHit); err != nil {
		log.Warn("Every submission strategy failed.", zap.Error(err))
		a.screenshot(ctx, fmt.Sprintf("login_submit_error_%d", k))
		return attemptResult{outcome: OutcomeOtherError}
	}

	// Give the portal time to process the submission and render the
	// response before inspecting it.
	a.sleep(ctx, a.cfg.Browser.SettleInterval)
	a.screenshot(ctx, fmt.Sprintf("login_result_%d", k))

	currentURL, err := a.drv.CurrentURL(ctx)
	if err != nil {
		log.Warn("Could not read post-submit URL.", zap.Error(err))
		return attemptResult{outcome: OutcomeUnknown}
	}
	source, err := a.drv.PageSource(ctx)
	if err != nil {
		log.Warn("Could not read post-submit page.", zap.Error(err))
		return attemptResult{outcome: OutcomeUnknown}
	}

	outcome := classify(a.cfg.Portal.LoginURL, currentURL, source, a.cfg.Keywords)
	if outcome != OutcomeSuccess {
		log.Warn("Login attempt rejected.",
			zap.String("outcome", outcome.String()),
			zap.String("url", currentURL))
	}
	return attemptResult{outcome: outcome}
}

// grabCaptchaImage locates and captures the CAPTCHA image. Absence is
// tolerated.
func (a *Automator) grabCaptchaImage(ctx context.Context, log *zap.Logger) ([]byte, bool) {
	hit, err := a.drv.Find(ctx, a.target("captcha image", a.cfg.Locators.CaptchaImage))
	if err != nil {
		log.Warn("No CAPTCHA image detected on the login page.", zap.Error(err))
		return nil, false
	}
	image, err := a.drv.ElementScreenshot(ctx, hit)
	if err != nil {
		log.Warn("CAPTCHA image capture failed.", zap.Error(err))
		return nil, false
	}
	return image, true
}

// missingField handles the run-fatal case of a required form field
// absent from the DOM.
func (a *Automator) missingField(ctx context.Context, log *zap.Logger, field string, err error) attemptResult {
	log.Error("Required login field missing; aborting run.",
		zap.String("field", field), zap.Error(err))
	a.screenshot(ctx, "login_missing_"+field)
	return attemptResult{outcome: OutcomeFailed}
}

// submitCascade tries each submission route in order: the configured
// submit-control cascade with a native then script-level click, raw
// form submission, and finally Enter in the CAPTCHA field.
func (a *Automator) submitCascade(ctx context.Context, captchaHit locate.Hit) error {
	if hit, err := a.drv.Find(ctx, a.target("submit button", a.cfg.Locators.SubmitButton)); err == nil {
		if err := a.drv.Click(ctx, hit); err == nil {
			return nil
		}
		if err := a.drv.ScriptClick(ctx, hit); err == nil {
			return nil
		}
		a.logger.Debug("Submit control found but unclickable; falling through.", zap.String("query", hit.Query))
	}

	if err := a.drv.SubmitForm(ctx); err == nil {
		return nil
	}

	if err := a.drv.PressEnter(ctx, captchaHit); err != nil {
		return fmt.Errorf("submission cascade exhausted: %w", err)
	}
	return nil
}
