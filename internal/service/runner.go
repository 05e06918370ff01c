// File: internal/service/runner.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/captcha"
	"github.com/luyichou/webtech-autopost/internal/config"
	"github.com/luyichou/webtech-autopost/internal/portal"
)

// Runner executes complete automation runs. Each call owns its session
// from launch to teardown, so a failed run never leaks a browser into
// the next one. Errors report infrastructure problems only; workflow
// outcomes arrive as booleans.
type Runner struct {
	cfg    *config.Config
	prompt captcha.PromptFunc
	logger *zap.Logger
}

// NewRunner builds a Runner. prompt may be nil for unattended callers.
func NewRunner(cfg *config.Config, prompt captcha.PromptFunc, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		prompt: prompt,
		logger: logger.Named("runner"),
	}
}

// Login performs a login-only run, used to verify credentials and the
// recognizer without touching any content.
func (r *Runner) Login(ctx context.Context) (bool, error) {
	components, err := NewComponents(ctx, r.cfg, r.prompt, r.logger)
	if err != nil {
		return false, fmt.Errorf("automation setup failed: %w", err)
	}
	defer components.Shutdown()

	return components.Automator.Login(ctx), nil
}

// Publish performs a full login-then-publish run.
func (r *Runner) Publish(ctx context.Context, draft portal.ArticleDraft) (bool, error) {
	if draft.Title == "" || draft.Content == "" {
		return false, fmt.Errorf("article draft needs both a title and content")
	}

	components, err := NewComponents(ctx, r.cfg, r.prompt, r.logger)
	if err != nil {
		return false, fmt.Errorf("automation setup failed: %w", err)
	}
	defer components.Shutdown()

	if !components.Automator.Login(ctx) {
		r.logger.Warn("Publish run aborted: login failed.", zap.String("title", draft.Title))
		return false, nil
	}
	return components.Automator.Publish(ctx, draft), nil
}
