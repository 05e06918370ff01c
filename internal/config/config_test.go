// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luyichou/webtech-autopost/internal/locate"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	assert.Equal(t, 5, cfg.Retry.MaxLoginAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 3, cfg.Retry.ListRetries)
	assert.Equal(t, 15*time.Second, cfg.Browser.WaitTimeout)
	assert.True(t, cfg.Browser.Headless)

	// Credentials must never ship as defaults.
	assert.Empty(t, cfg.Portal.Username)
	assert.Empty(t, cfg.Portal.Password)
	assert.Empty(t, cfg.Recognizer.APIKey)
}

func TestLocatorDefaults(t *testing.T) {
	cfg := NewDefault()

	require.NotEmpty(t, cfg.Locators.UsernameField)
	assert.Equal(t, locate.ByCSS, cfg.Locators.UsernameField[0].By)
	assert.Equal(t, "input[name='username']", cfg.Locators.UsernameField[0].Query)

	assert.Len(t, cfg.Locators.CaptchaImage, 8)
	assert.Equal(t, "img[src*='img.php']", cfg.Locators.CaptchaImage[0].Query)

	// The submit cascade leads with structural selectors and falls back
	// to one keyword-derived XPath per configured submit keyword.
	require.GreaterOrEqual(t, len(cfg.Locators.SubmitButton), 2)
	assert.Equal(t, "input[type='submit']", cfg.Locators.SubmitButton[0].Query)
	assert.Len(t, cfg.Locators.SubmitButton, 2+len(cfg.Keywords.Submit))
	assert.Equal(t, locate.ByXPath, cfg.Locators.SubmitButton[2].By)
}

func TestConfigFileOverridesLocators(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("locators.username_field", []map[string]string{
		{"by": "css", "query": "#user"},
	})
	v.Set("portal.login_url", "https://example.com/login.php")

	cfg, err := NewFromViper(v)
	require.NoError(t, err)

	require.Len(t, cfg.Locators.UsernameField, 1)
	assert.Equal(t, "#user", cfg.Locators.UsernameField[0].Query)
	assert.Equal(t, "https://example.com/login.php", cfg.Portal.LoginURL)

	// Untouched cascades still receive defaults.
	assert.NotEmpty(t, cfg.Locators.PasswordField)
}

func TestValidateRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero login attempts", func(c *Config) { c.Retry.MaxLoginAttempts = 0 }},
		{"negative base delay", func(c *Config) { c.Retry.BaseDelay = -time.Second }},
		{"zero list retries", func(c *Config) { c.Retry.ListRetries = 0 }},
		{"zero wait timeout", func(c *Config) { c.Browser.WaitTimeout = 0 }},
		{"no recognizer models", func(c *Config) { c.Recognizer.Models = nil }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefault()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvBindings(t *testing.T) {
	t.Setenv("AUTOPOST_PORTAL_PASSWORD", "s3cret")
	t.Setenv("AUTOPOST_GEMINI_API_KEY", "test-key")

	v := viper.New()
	SetDefaults(v)
	cfg, err := NewFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Portal.Password)
	assert.Equal(t, "test-key", cfg.Recognizer.APIKey)
}
