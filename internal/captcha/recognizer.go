// internal/captcha/recognizer.go

// Package captcha turns a challenge image into candidate text using a
// vision model, with an optional human fallback.
package captcha

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/config"
)

// Vision is the transcription capability the recognizer needs from the
// model layer.
type Vision interface {
	Transcribe(ctx context.Context, model, instruction string, image []byte) (string, error)
}

// PromptFunc asks a human for the code when every model fails. It
// receives the path of the saved challenge image. A nil PromptFunc
// disables the manual fallback regardless of configuration.
type PromptFunc func(ctx context.Context, imagePath string) (string, error)

// sanitizePattern strips everything the portal's CAPTCHA alphabet never
// contains. Models like to add whitespace, quotes, or a trailing period.
var sanitizePattern = regexp.MustCompile(`[^A-Za-z0-9]`)

// Plausible code lengths for the portal's challenges.
const (
	minCodeLen = 3
	maxCodeLen = 8
)

// Recognizer resolves CAPTCHA images to text. Each model in the
// configured list is tried in order; the first plausible answer wins.
type Recognizer struct {
	vision  Vision
	cfg     config.RecognizerConfig
	saveDir string
	prompt  PromptFunc
	logger  *zap.Logger
}

// New builds a Recognizer. saveDir is where challenge images are kept
// for diagnosis and for the manual fallback.
func New(vision Vision, cfg config.RecognizerConfig, saveDir string, prompt PromptFunc, logger *zap.Logger) *Recognizer {
	return &Recognizer{
		vision:  vision,
		cfg:     cfg,
		saveDir: saveDir,
		prompt:  prompt,
		logger:  logger.Named("captcha"),
	}
}

// Resolve attempts to read the code out of the challenge image. The
// boolean reports whether a plausible code was obtained; workflow
// callers treat false as a retryable condition, never a fatal one.
func (r *Recognizer) Resolve(ctx context.Context, image []byte, attempt int) (string, bool) {
	imagePath := r.saveImage(image, attempt)

	for _, model := range r.cfg.Models {
		code, ok := r.tryModel(ctx, model, image)
		if ok {
			r.logger.Info("CAPTCHA resolved.",
				zap.Int("attempt", attempt),
				zap.String("model", model),
				zap.Int("code_len", len(code)))
			return code, true
		}
		if ctx.Err() != nil {
			return "", false
		}
	}

	// The blocking human prompt is only worth it on the first attempt;
	// later attempts must stay unattended so the retry loop can run on
	// its own.
	if attempt == 1 && r.cfg.ManualFallback && r.prompt != nil {
		code, err := r.prompt(ctx, imagePath)
		if err != nil {
			r.logger.Warn("Manual CAPTCHA entry failed.", zap.Error(err))
			return "", false
		}
		code = Sanitize(code)
		if plausible(code) {
			r.logger.Info("CAPTCHA resolved manually.", zap.Int("attempt", attempt))
			return code, true
		}
	}

	r.logger.Warn("CAPTCHA resolution failed on all models.", zap.Int("attempt", attempt))
	return "", false
}

func (r *Recognizer) tryModel(ctx context.Context, model string, image []byte) (string, bool) {
	tctx := ctx
	if r.cfg.APITimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, r.cfg.APITimeout)
		defer cancel()
	}

	raw, err := r.vision.Transcribe(tctx, model, r.cfg.Instruction, image)
	if err != nil {
		r.logger.Warn("Vision model failed.", zap.String("model", model), zap.Error(err))
		return "", false
	}

	code := Sanitize(raw)
	if !plausible(code) {
		r.logger.Debug("Vision answer rejected as implausible.",
			zap.String("model", model),
			zap.String("raw", raw))
		return "", false
	}
	return code, true
}

// saveImage persists the challenge image for inspection. Failures are
// logged and otherwise ignored; recognition proceeds from memory.
func (r *Recognizer) saveImage(image []byte, attempt int) string {
	if r.saveDir == "" {
		return ""
	}
	if err := os.MkdirAll(r.saveDir, 0o755); err != nil {
		r.logger.Debug("Could not create captcha image dir.", zap.Error(err))
		return ""
	}
	path := filepath.Join(r.saveDir, fmt.Sprintf("captcha_attempt_%d.png", attempt))
	if err := os.WriteFile(path, image, 0o644); err != nil {
		r.logger.Debug("Could not save captcha image.", zap.Error(err))
		return ""
	}
	return path
}

// Sanitize reduces a raw model answer to the characters a code can
// actually contain.
func Sanitize(raw string) string {
	return sanitizePattern.ReplaceAllString(raw, "")
}

func plausible(code string) bool {
	return len(code) >= minCodeLen && len(code) <= maxCodeLen
}
