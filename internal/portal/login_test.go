// internal/portal/login_test.go
package portal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luyichou/webtech-autopost/internal/config"
)

func TestLoginSucceedsFirstAttempt(t *testing.T) {
	drv := newFakeDriver()
	// Post-submit the portal lands on the dashboard URL.
	drv.currentURL = "https://portal.example.com/admin/index.php"
	resolver := &fakeResolver{codes: []string{"aB3k9"}}

	a, delays := newTestAutomator(drv, resolver, nil)

	ok := a.Login(context.Background())
	require.True(t, ok)

	assert.Equal(t, []string{"https://portal.example.com/admin/login.php"}, drv.navigations)
	assert.Zero(t, drv.refreshes, "a successful first attempt never refreshes")
	assert.Equal(t, []string{"editor"}, drv.typed["username field"])
	assert.Equal(t, []string{"pw"}, drv.typed["password field"])
	assert.Equal(t, []string{"aB3k9"}, drv.typed["captcha field"])
	assert.Contains(t, drv.clicks, "submit button")
	assert.Empty(t, *delays, "no backoff on immediate success")
}

func TestLoginUnresolvedCaptchaNeverSubmits(t *testing.T) {
	drv := newFakeDriver()
	resolver := &fakeResolver{} // unresolved on every attempt

	a, delays := newTestAutomator(drv, resolver, func(c *config.Config) {
		c.Retry.MaxLoginAttempts = 3
	})

	ok := a.Login(context.Background())
	require.False(t, ok)

	// Exactly three attempts: one navigation plus two refreshes.
	assert.Len(t, drv.navigations, 1)
	assert.Equal(t, 2, drv.refreshes)
	assert.Equal(t, []int{1, 2, 3}, resolver.attempts)

	// Nothing was submitted and the CAPTCHA field was never filled.
	assert.NotContains(t, drv.clicks, "submit button")
	assert.Zero(t, drv.submits)
	assert.Empty(t, drv.typed["captcha field"])

	// The unresolved path waits the flat base delay, not the scaled one.
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *delays)
}

func TestLoginExhaustsAttemptsOnRepeatedRejection(t *testing.T) {
	drv := newFakeDriver()
	drv.pageSource = "<html><body>驗證碼錯誤，請重新輸入</body></html>"
	resolver := &fakeResolver{codes: []string{"aB3k9", "aB3k9", "aB3k9"}}

	a, delays := newTestAutomator(drv, resolver, func(c *config.Config) {
		c.Retry.MaxLoginAttempts = 3
	})

	ok := a.Login(context.Background())
	require.False(t, ok)

	// Never N+1 attempts.
	assert.Len(t, drv.navigations, 1)
	assert.Equal(t, 2, drv.refreshes)

	// Linear backoff: base*1 then base*2, none after the final attempt.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *delays)
}

func TestLoginMissingRequiredFieldIsRunFatal(t *testing.T) {
	drv := newFakeDriver()
	drv.findErrs["password field"] = errNotFound
	resolver := &fakeResolver{codes: []string{"aB3k9"}}

	a, delays := newTestAutomator(drv, resolver, nil)

	ok := a.Login(context.Background())
	require.False(t, ok)

	// No retry after a run-fatal condition.
	assert.Len(t, drv.navigations, 1)
	assert.Zero(t, drv.refreshes)
	assert.Empty(t, *delays)
	assert.Contains(t, drv.screenshots, "login_missing_password")
}

func TestLoginMissingCaptchaImageStillSubmits(t *testing.T) {
	drv := newFakeDriver()
	drv.findErrs["captcha image"] = errNotFound
	drv.currentURL = "https://portal.example.com/admin/index.php"
	resolver := &fakeResolver{}

	a, _ := newTestAutomator(drv, resolver, nil)

	ok := a.Login(context.Background())
	require.True(t, ok)

	assert.Empty(t, resolver.attempts, "no recognition without an image")
	assert.Empty(t, drv.typed["captcha field"])
	assert.Contains(t, drv.clicks, "submit button")
}

func TestLoginSubmitCascadeFallsThrough(t *testing.T) {
	drv := newFakeDriver()
	drv.currentURL = "https://portal.example.com/admin/index.php"
	drv.findErrs["submit button"] = errNotFound
	drv.submitErr = errNotFound
	resolver := &fakeResolver{codes: []string{"aB3k9"}}

	a, _ := newTestAutomator(drv, resolver, nil)

	ok := a.Login(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, drv.enters, "Enter in the CAPTCHA field is the last resort")
}

func TestLoginHonorsCancellation(t *testing.T) {
	drv := newFakeDriver()
	resolver := &fakeResolver{}

	a, _ := newTestAutomator(drv, resolver, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, a.Login(ctx))
	assert.Empty(t, drv.navigations)
}
