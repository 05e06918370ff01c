// internal/browser/interaction.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/locate"
)

// Click dispatches a native click on the located element.
func (s *Session) Click(ctx context.Context, hit locate.Hit) error {
	if err := s.run(ctx, chromedp.Click(hit.Query, selectorOpt(hit))); err != nil {
		return fmt.Errorf("click on %s failed: %w", hit.Query, err)
	}
	return nil
}

// ScriptClick clicks through JavaScript. Some portal buttons sit under
// fixed overlays that swallow native clicks; el.click() bypasses hit
// testing entirely.
func (s *Session) ScriptClick(ctx context.Context, hit locate.Hit) error {
	quoted, err := json.Marshal(hit.Query)
	if err != nil {
		return fmt.Errorf("unencodable query %q: %w", hit.Query, err)
	}

	var script string
	if hit.By == locate.ByXPath {
		script = fmt.Sprintf(`(() => {
	const el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!el) return false;
	el.click();
	return true;
})()`, quoted)
	} else {
		script = fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	el.click();
	return true;
})()`, quoted)
	}

	var clicked bool
	if err := s.Evaluate(ctx, script, &clicked); err != nil {
		return fmt.Errorf("script click on %s failed: %w", hit.Query, err)
	}
	if !clicked {
		return fmt.Errorf("script click on %s: %w", hit.Query, ErrElementNotFound)
	}
	return nil
}

// ClearAndType empties the field and types the given text, letting the
// browser fire the usual key events.
func (s *Session) ClearAndType(ctx context.Context, hit locate.Hit, text string) error {
	opt := selectorOpt(hit)
	if err := s.run(ctx,
		chromedp.SetValue(hit.Query, "", opt),
		chromedp.SendKeys(hit.Query, text, opt),
	); err != nil {
		return fmt.Errorf("typing into %s failed: %w", hit.Query, err)
	}
	return nil
}

// PressEnter sends the Enter key to the located element.
func (s *Session) PressEnter(ctx context.Context, hit locate.Hit) error {
	if err := s.run(ctx, chromedp.SendKeys(hit.Query, enterKey, selectorOpt(hit))); err != nil {
		return fmt.Errorf("enter key on %s failed: %w", hit.Query, err)
	}
	return nil
}

// SubmitForm submits the first form on the page directly. Last resort
// when no submit control could be located.
func (s *Session) SubmitForm(ctx context.Context) error {
	script := `(() => {
	if (document.forms.length === 0) return false;
	document.forms[0].submit();
	return true;
})()`
	var submitted bool
	if err := s.Evaluate(ctx, script, &submitted); err != nil {
		return fmt.Errorf("form submission failed: %w", err)
	}
	if !submitted {
		return fmt.Errorf("form submission: no form on page")
	}
	return nil
}

// Attribute reads an attribute off the located element. ok reports
// whether the attribute exists at all.
func (s *Session) Attribute(ctx context.Context, hit locate.Hit, name string) (value string, ok bool, err error) {
	if err := s.run(ctx, chromedp.AttributeValue(hit.Query, name, &value, &ok, selectorOpt(hit))); err != nil {
		return "", false, fmt.Errorf("reading attribute %s of %s failed: %w", name, hit.Query, err)
	}
	return value, ok, nil
}

// SelectOption picks an option in a <select> element by visible text,
// falling back to the first non-empty option when the text is absent.
func (s *Session) SelectOption(ctx context.Context, hit locate.Hit, text string) error {
	quotedSel, err := json.Marshal(hit.Query)
	if err != nil {
		return fmt.Errorf("unencodable query %q: %w", hit.Query, err)
	}
	quotedText, err := json.Marshal(text)
	if err != nil {
		return fmt.Errorf("unencodable option text: %w", err)
	}

	script := fmt.Sprintf(`(() => {
	const sel = document.querySelector(%s);
	if (!sel) return false;
	const want = %s;
	for (const opt of sel.options) {
		if (want !== "" && opt.text.trim() === want) {
			sel.value = opt.value;
			sel.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		}
	}
	for (const opt of sel.options) {
		if (want !== "" && opt.value === want) {
			sel.value = opt.value;
			sel.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		}
	}
	for (const opt of sel.options) {
		if (opt.value !== "") {
			sel.value = opt.value;
			sel.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		}
	}
	return false;
})()`, quotedSel, quotedText)

	var selected bool
	if err := s.Evaluate(ctx, script, &selected); err != nil {
		return fmt.Errorf("selecting option in %s failed: %w", hit.Query, err)
	}
	if !selected {
		return fmt.Errorf("no selectable option in %s", hit.Query)
	}
	return nil
}

// TypeInFrame writes HTML content into the body of the iframe matched
// by the hit and flushes the rich-text editor so the host form sees the
// value. The editor renders inside a same-origin iframe, which chromedp
// selectors do not reach directly.
func (s *Session) TypeInFrame(ctx context.Context, hit locate.Hit, html string) error {
	quotedSel, err := json.Marshal(hit.Query)
	if err != nil {
		return fmt.Errorf("unencodable query %q: %w", hit.Query, err)
	}
	quotedHTML, err := json.Marshal(html)
	if err != nil {
		return fmt.Errorf("unencodable frame content: %w", err)
	}

	script := frameWriteScript(string(quotedSel), string(quotedHTML))

	var result struct {
		Written bool `json:"written"`
		Flushed bool `json:"flushed"`
	}
	if err := s.Evaluate(ctx, script, &result); err != nil {
		return fmt.Errorf("writing into frame %s failed: %w", hit.Query, err)
	}
	if !result.Written {
		return fmt.Errorf("frame %s not attached: %w", hit.Query, ErrElementNotFound)
	}
	if !result.Flushed {
		s.logger.Warn("Editor flush threw; continuing with the written body.", zap.String("frame", hit.Query))
	}
	s.logger.Debug("Frame content written.", zap.String("frame", hit.Query), zap.Int("bytes", len(html)))
	return nil
}

// frameWriteScript builds the in-page script that writes HTML into the
// editor iframe's body and then flushes the rich-text editor. The
// editor flush can throw on a half-initialized instance; the body
// write must survive that, so the flush gets its own try/catch and the
// script only reports whether it ran.
func frameWriteScript(quotedSel, quotedHTML string) string {
	return fmt.Sprintf(`(() => {
	const frame = document.querySelector(%s);
	if (!frame || !frame.contentDocument || !frame.contentDocument.body) return { written: false, flushed: false };
	frame.contentDocument.body.innerHTML = %s;
	frame.contentDocument.body.dispatchEvent(new Event('input', { bubbles: true }));
	let flushed = true;
	try {
		if (window.CKEDITOR) {
			for (const name in CKEDITOR.instances) {
				CKEDITOR.instances[name].updateElement();
			}
		}
	} catch (e) {
		flushed = false;
	}
	return { written: true, flushed: flushed };
})()`, quotedSel, quotedHTML)
}
