// internal/portal/publish.go
package portal

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// saveClickRetries bounds the save-button click loop. The control goes
// stale and gets occluded by overlays; three re-locate-and-click cycles
// is enough in practice.
const saveClickRetries = 3

// Publish walks the authoring flow for a logged-in session: article
// list, editor, title, rich-text content, save, verification. Every
// step's failure aborts the remainder and returns false with a
// diagnostic screenshot; there is no partial success.
func (a *Automator) Publish(ctx context.Context, draft ArticleDraft) bool {
	log := a.logger.With(zap.String("title", draft.Title))

	if !a.openArticleList(ctx, log) {
		return false
	}

	editURL, ok := a.resolveEditorURL(ctx, log)
	if !ok {
		return false
	}
	if err := a.drv.Navigate(ctx, editURL); err != nil {
		log.Warn("Could not open the article editor.", zap.String("url", editURL), zap.Error(err))
		a.screenshot(ctx, "post_error_page")
		return false
	}

	if !a.fillTitle(ctx, log, draft.Title) {
		return false
	}
	a.selectCategory(ctx, log, draft.Category)

	if !a.fillContent(ctx, log, draft.Content) {
		return false
	}

	// Captured regardless of how the save goes: failed saves are
	// diagnosed from this frame.
	a.screenshot(ctx, "post_before_save")

	if !a.clickSave(ctx, log) {
		return false
	}

	if _, err := a.drv.WaitVisible(ctx,
		a.target("success message", a.cfg.Locators.SuccessMessage),
		a.cfg.Browser.WaitTimeout); err != nil {
		log.Warn("No success indicator appeared after saving.", zap.Error(err))
		a.screenshot(ctx, "post_error_page")
		return false
	}

	a.screenshot(ctx, "post_success")
	log.Info("Article published.")
	return true
}

// openArticleList clicks into the news section and waits for the list
// to render, refreshing up to the configured bound. Transient empty
// lists are common and not themselves an error.
func (a *Automator) openArticleList(ctx context.Context, log *zap.Logger) bool {
	navHit, err := a.drv.Find(ctx, a.target("news navigation link", a.cfg.Locators.NewsNavLink))
	if err != nil {
		log.Warn("News navigation entry not found.", zap.Error(err))
		a.screenshot(ctx, "post_nav_error")
		return false
	}
	if err := a.drv.Click(ctx, navHit); err != nil {
		if err := a.drv.ScriptClick(ctx, navHit); err != nil {
			log.Warn("Could not open the news section.", zap.Error(err))
			a.screenshot(ctx, "post_nav_error")
			return false
		}
	}

	listTarget := a.target("article list row", a.cfg.Locators.ArticleListRow)
	for try := 1; try <= a.cfg.Retry.ListRetries; try++ {
		if _, err := a.drv.WaitVisible(ctx, listTarget, a.cfg.Browser.WaitTimeout); err == nil {
			// Portal components keep mutating the DOM after the list
			// reports loaded.
			a.sleep(ctx, a.cfg.Retry.ListSettle)
			return true
		}
		log.Warn("Article list did not render; refreshing.",
			zap.Int("try", try), zap.Int("max", a.cfg.Retry.ListRetries))
		if try < a.cfg.Retry.ListRetries {
			if err := a.drv.Refresh(ctx); err != nil {
				log.Warn("List refresh failed.", zap.Error(err))
			}
		}
	}

	a.screenshot(ctx, "post_list_error")
	return false
}

// resolveEditorURL reads the add-article control's href and resolves it
// against the current location. Navigating directly avoids the side
// effects the control's click handler triggers in the portal's router.
func (a *Automator) resolveEditorURL(ctx context.Context, log *zap.Logger) (string, bool) {
	hit, err := a.drv.Find(ctx, a.target("add article control", a.cfg.Locators.AddArticle))
	if err != nil {
		log.Warn("Add-article control not found.", zap.Error(err))
		a.screenshot(ctx, "post_error_page")
		return "", false
	}

	href, ok, err := a.drv.Attribute(ctx, hit, "href")
	if err != nil || !ok || href == "" {
		log.Warn("Add-article control has no usable href; aborting before title entry.",
			zap.Bool("present", ok), zap.Error(err))
		a.screenshot(ctx, "post_error_page")
		return "", false
	}

	current, err := a.drv.CurrentURL(ctx)
	if err == nil {
		if base, perr := url.Parse(current); perr == nil {
			if ref, perr := url.Parse(href); perr == nil {
				return base.ResolveReference(ref).String(), true
			}
		}
	}
	return href, true
}

// fillTitle focuses the title input, types the title, and blurs via a
// body click so the portal's validation handlers fire. Tab is avoided
// on purpose; it can drop focus into an unrelated control.
func (a *Automator) fillTitle(ctx context.Context, log *zap.Logger, title string) bool {
	hit, err := a.drv.WaitVisible(ctx,
		a.target("title input", a.cfg.Locators.TitleInput),
		a.cfg.Browser.WaitTimeout)
	if err != nil {
		log.Warn("Title input not found.", zap.Error(err))
		a.screenshot(ctx, "post_title_error")
		return false
	}

	if err := a.drv.Click(ctx, hit); err != nil {
		log.Debug("Title focus click failed; typing anyway.", zap.Error(err))
	}
	if err := a.drv.ClearAndType(ctx, hit, title); err != nil {
		log.Warn("Typing the title failed.", zap.Error(err))
		a.screenshot(ctx, "post_title_error")
		return false
	}
	if err := a.drv.Evaluate(ctx, "document.body.click()", nil); err != nil {
		log.Debug("Blur click failed.", zap.Error(err))
	}
	return true
}

// selectCategory picks the article category when one was requested.
// The selector is absent on some portal versions, so this is best
// effort and never fails the flow.
func (a *Automator) selectCategory(ctx context.Context, log *zap.Logger, category string) {
	if category == "" {
		return
	}
	hit, err := a.drv.Find(ctx, a.target("category selector", a.cfg.Locators.CategorySelect))
	if err != nil {
		log.Debug("No category selector on this editor.", zap.Error(err))
		return
	}
	if err := a.drv.SelectOption(ctx, hit, category); err != nil {
		log.Debug("Category selection failed.", zap.String("category", category), zap.Error(err))
	}
}

// fillContent materializes the rich-text block, waits for its frame to
// attach, and writes the content into the frame. The editor flush into
// the backing form field happens inside the same script; the write
// itself failing is fatal, a missed flush is not.
func (a *Automator) fillContent(ctx context.Context, log *zap.Logger, content string) bool {
	addHit, err := a.drv.Find(ctx, a.target("add content block", a.cfg.Locators.AddContentBlock))
	if err != nil {
		log.Warn("Add-content control not found.", zap.Error(err))
		a.screenshot(ctx, "post_content_error")
		return false
	}
	if err := a.drv.Click(ctx, addHit); err != nil {
		if err := a.drv.ScriptClick(ctx, addHit); err != nil {
			log.Warn("Could not open a content block.", zap.Error(err))
			a.screenshot(ctx, "post_content_error")
			return false
		}
	}
	a.sleep(ctx, a.cfg.Retry.FrameAttachWait)

	frameHit, err := a.drv.WaitVisible(ctx,
		a.target("editor frame", a.cfg.Locators.EditorFrame),
		a.cfg.Browser.WaitTimeout)
	if err != nil {
		log.Warn("Editor frame never attached.", zap.Error(err))
		a.screenshot(ctx, "post_content_error")
		return false
	}

	if err := a.drv.TypeInFrame(ctx, frameHit, content); err != nil {
		log.Warn("Writing content into the editor failed.", zap.Error(err))
		a.screenshot(ctx, "post_content_error")
		return false
	}
	a.sleep(ctx, a.cfg.Retry.EditorSettle)
	return true
}

// clickSave retries the save click a fixed number of times, re-locating
// the control each round and clicking at script level to bypass
// overlay interception.
func (a *Automator) clickSave(ctx context.Context, log *zap.Logger) bool {
	target := a.target("save button", a.cfg.Locators.SaveButton)

	var lastErr error
	for try := 1; try <= saveClickRetries; try++ {
		hit, err := a.drv.Find(ctx, target)
		if err == nil {
			if err = a.drv.ScriptClick(ctx, hit); err == nil {
				return true
			}
		}
		lastErr = err
		log.Warn("Save click failed.", zap.Int("try", try), zap.Int("max", saveClickRetries), zap.Error(err))
		if try < saveClickRetries {
			a.sleep(ctx, 500*time.Millisecond)
		}
	}

	log.Error("Save click retries exhausted.", zap.Error(fmt.Errorf("after %d tries: %w", saveClickRetries, lastErr)))
	a.screenshot(ctx, "post_save_error")
	return false
}
