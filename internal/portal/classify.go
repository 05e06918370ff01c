// internal/portal/classify.go
package portal

import (
	"strings"

	"github.com/luyichou/webtech-autopost/internal/config"
)

// classify derives the login verdict from the post-submission page.
// Priority order matters: error keywords are checked before the URL
// delta, because some failure pages keep the same path but render an
// inline error, and some error pages change the URL via query-string
// additions.
func classify(loginURL, currentURL, pageSource string, kw config.KeywordsConfig) Outcome {
	lowered := strings.ToLower(pageSource)

	// 1. Error keywords beat everything.
	for _, keyword := range kw.LoginError {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			if concernsVerification(keyword, kw.CaptchaMarkers) {
				return OutcomeCaptchaError
			}
			return OutcomeOtherError
		}
	}

	// 2. Navigating away from the login page is the strongest success
	// signal. The login URL must be gone entirely: failure pages often
	// keep it and append a query string.
	if currentURL != "" && !strings.Contains(currentURL, loginURL) {
		return OutcomeSuccess
	}

	// 3. Success keywords on a same-URL page.
	for _, keyword := range kw.LoginSuccess {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return OutcomeSuccess
		}
	}

	return OutcomeUnknown
}

// concernsVerification reports whether an error keyword is about the
// CAPTCHA rather than credentials or anything else.
func concernsVerification(keyword string, markers []string) bool {
	lowered := strings.ToLower(keyword)
	for _, marker := range markers {
		if strings.Contains(lowered, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
