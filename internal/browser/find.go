// internal/browser/find.go
package browser

import (
	"context"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/locate"
)

// visibleCSSTmpl checks that a CSS selector matches an element that is
// actually rendered, not merely present in the DOM.
const visibleCSSTmpl = `(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	const r = el.getBoundingClientRect();
	const st = window.getComputedStyle(el);
	return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
})()`

// visibleXPathTmpl is the XPath twin of visibleCSSTmpl.
const visibleXPathTmpl = `(() => {
	const el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!el) return false;
	const r = el.getBoundingClientRect();
	const st = window.getComputedStyle(el);
	return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
})()`

// Find walks the target's strategy cascade in order and returns a Hit
// for the first strategy matching a visible element. The cascade order
// is the priority order; later strategies are only consulted when
// earlier ones miss.
func (s *Session) Find(ctx context.Context, target locate.Target) (locate.Hit, error) {
	for _, strat := range target.Strategies {
		visible, err := s.probe(ctx, strat)
		if err != nil {
			// The cascade is config-sourced data: one malformed
			// selector must not disqualify the valid ones behind it.
			// Only a dead context ends the walk early.
			if ctx.Err() != nil || s.ctx.Err() != nil {
				return locate.Hit{}, fmt.Errorf("probing %s for %q failed: %w", strat.Query, target.Name, err)
			}
			s.logger.Warn("Locator strategy errored; trying the next one.",
				zap.String("target", target.Name),
				zap.String("query", strat.Query),
				zap.Error(err))
			continue
		}
		if visible {
			s.logger.Debug("Element located.",
				zap.String("target", target.Name),
				zap.String("by", string(strat.By)),
				zap.String("query", strat.Query))
			return strat.Hit(), nil
		}
	}
	return locate.Hit{}, fmt.Errorf("%w: %s", ErrElementNotFound, target.Name)
}

// strategyVisible probes a single strategy for a visible match.
func (s *Session) strategyVisible(ctx context.Context, strat locate.Strategy) (bool, error) {
	quoted, err := json.Marshal(strat.Query)
	if err != nil {
		return false, fmt.Errorf("unencodable query %q: %w", strat.Query, err)
	}

	tmpl := visibleCSSTmpl
	if strat.By == locate.ByXPath {
		tmpl = visibleXPathTmpl
	}

	var visible bool
	if err := s.Evaluate(ctx, fmt.Sprintf(tmpl, quoted), &visible); err != nil {
		return false, err
	}
	return visible, nil
}

// WaitVisible polls the target's cascade until an element appears or
// the timeout elapses. It returns the winning hit.
func (s *Session) WaitVisible(ctx context.Context, target locate.Target, timeout time.Duration) (locate.Hit, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		hit, err := s.Find(ctx, target)
		if err == nil {
			return hit, nil
		}
		if time.Now().After(deadline) {
			return locate.Hit{}, fmt.Errorf("timed out after %s waiting for %s: %w", timeout, target.Name, ErrElementNotFound)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return locate.Hit{}, ctx.Err()
		case <-s.ctx.Done():
			return locate.Hit{}, s.ctx.Err()
		}
	}
}
