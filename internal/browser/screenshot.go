// internal/browser/screenshot.go
package browser

import (
	"context"
	"fmt"
	"os"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/locate"
)

// Screenshot captures the full viewport and writes it under the
// configured screenshot directory. It returns the file path.
func (s *Session) Screenshot(ctx context.Context, label string) (string, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return "", fmt.Errorf("screenshot capture failed: %w", err)
	}

	path, err := s.screenshotPath(label)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}

	s.logger.Debug("Screenshot saved.", zap.String("path", path))
	return path, nil
}

// ElementScreenshot captures just the located element. Used to hand the
// CAPTCHA image to the recognizer.
func (s *Session) ElementScreenshot(ctx context.Context, hit locate.Hit) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.Screenshot(hit.Query, &buf, selectorOpt(hit))); err != nil {
		return nil, fmt.Errorf("element screenshot of %s failed: %w", hit.Query, err)
	}
	return buf, nil
}
