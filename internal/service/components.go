// File: internal/service/components.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/browser"
	"github.com/luyichou/webtech-autopost/internal/captcha"
	"github.com/luyichou/webtech-autopost/internal/config"
	"github.com/luyichou/webtech-autopost/internal/llm"
	"github.com/luyichou/webtech-autopost/internal/portal"
)

// Components holds the initialized collaborators for one automation
// run. Exactly one browser session backs each run; nothing here is
// shared across runs.
type Components struct {
	Session    *browser.Session
	LLM        *llm.Client
	Recognizer *captcha.Recognizer
	Automator  *portal.Automator

	logger *zap.Logger
}

// NewComponents builds the full stack for a run. prompt may be nil to
// disable the manual CAPTCHA fallback (webhook-triggered runs have no
// human at the keyboard).
func NewComponents(ctx context.Context, cfg *config.Config, prompt captcha.PromptFunc, logger *zap.Logger) (*Components, error) {
	if cfg.Portal.LoginURL == "" {
		return nil, fmt.Errorf("portal.login_url is not configured")
	}

	llmClient, err := llm.NewClient(ctx, cfg.Recognizer.APIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("llm client init failed: %w", err)
	}

	session, err := browser.New(ctx, &cfg.Browser, logger)
	if err != nil {
		return nil, err
	}

	recognizer := captcha.New(llmClient, cfg.Recognizer, cfg.Browser.ScreenshotDir, prompt, logger)
	automator := portal.NewAutomator(session, recognizer, cfg, logger)

	return &Components{
		Session:    session,
		LLM:        llmClient,
		Recognizer: recognizer,
		Automator:  automator,
		logger:     logger.Named("service"),
	}, nil
}

// Shutdown releases the run's resources. Idempotent.
func (c *Components) Shutdown() {
	c.logger.Debug("Shutting down automation components.")
	if c.Session != nil {
		c.Session.Close()
	}
}
