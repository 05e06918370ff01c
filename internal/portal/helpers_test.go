// internal/portal/helpers_test.go
package portal

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/luyichou/webtech-autopost/internal/config"
	"github.com/luyichou/webtech-autopost/internal/locate"
)

// fakeDriver is a scriptable Driver. Lookups are keyed by the logical
// target name, and the hits it returns carry that name as the query so
// later interactions can be keyed the same way.
type fakeDriver struct {
	currentURL string
	pageSource string

	findErrs    map[string]error
	waitErrs    map[string]error
	clickErrs   map[string]error
	scriptErrs  map[string]error
	attributes  map[string]string
	navErr      error
	refreshErr  error
	typeErr     map[string]error
	frameErr    error
	submitErr   error
	enterErr    error
	scrshotErr  error
	evaluateErr error

	navigations   []string
	refreshes     int
	typed         map[string][]string
	frameContents []string
	submits       int
	enters        int
	clicks        []string
	scriptClicks  []string
	finds         []string
	screenshots   []string
	evaluations   []string
	selections    []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		currentURL: "https://portal.example.com/admin/login.php",
		pageSource: "<html><body>login</body></html>",
		findErrs:   map[string]error{},
		waitErrs:   map[string]error{},
		clickErrs:  map[string]error{},
		scriptErrs: map[string]error{},
		attributes: map[string]string{},
		typeErr:    map[string]error{},
		typed:      map[string][]string{},
	}
}

func (f *fakeDriver) hit(name string) locate.Hit {
	return locate.Hit{By: locate.ByCSS, Query: name}
}

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	if f.navErr != nil {
		return f.navErr
	}
	f.navigations = append(f.navigations, url)
	return nil
}

func (f *fakeDriver) Refresh(context.Context) error {
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.refreshes++
	return nil
}

func (f *fakeDriver) CurrentURL(context.Context) (string, error) { return f.currentURL, nil }
func (f *fakeDriver) PageSource(context.Context) (string, error) { return f.pageSource, nil }

func (f *fakeDriver) Screenshot(_ context.Context, label string) (string, error) {
	if f.scrshotErr != nil {
		return "", f.scrshotErr
	}
	f.screenshots = append(f.screenshots, label)
	return label + ".png", nil
}

func (f *fakeDriver) Find(_ context.Context, target locate.Target) (locate.Hit, error) {
	f.finds = append(f.finds, target.Name)
	if err, ok := f.findErrs[target.Name]; ok && err != nil {
		return locate.Hit{}, err
	}
	return f.hit(target.Name), nil
}

func (f *fakeDriver) WaitVisible(_ context.Context, target locate.Target, _ time.Duration) (locate.Hit, error) {
	if err, ok := f.waitErrs[target.Name]; ok && err != nil {
		return locate.Hit{}, err
	}
	return f.hit(target.Name), nil
}

func (f *fakeDriver) ElementScreenshot(context.Context, locate.Hit) ([]byte, error) {
	return []byte("png-bytes"), nil
}

func (f *fakeDriver) Click(_ context.Context, hit locate.Hit) error {
	f.clicks = append(f.clicks, hit.Query)
	if err, ok := f.clickErrs[hit.Query]; ok {
		return err
	}
	return nil
}

func (f *fakeDriver) ScriptClick(_ context.Context, hit locate.Hit) error {
	f.scriptClicks = append(f.scriptClicks, hit.Query)
	if err, ok := f.scriptErrs[hit.Query]; ok {
		return err
	}
	return nil
}

func (f *fakeDriver) ClearAndType(_ context.Context, hit locate.Hit, text string) error {
	if err, ok := f.typeErr[hit.Query]; ok && err != nil {
		return err
	}
	f.typed[hit.Query] = append(f.typed[hit.Query], text)
	return nil
}

func (f *fakeDriver) PressEnter(context.Context, locate.Hit) error {
	if f.enterErr != nil {
		return f.enterErr
	}
	f.enters++
	return nil
}

func (f *fakeDriver) SubmitForm(context.Context) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submits++
	return nil
}

func (f *fakeDriver) Attribute(_ context.Context, hit locate.Hit, name string) (string, bool, error) {
	value, ok := f.attributes[hit.Query+"/"+name]
	return value, ok, nil
}

func (f *fakeDriver) SelectOption(_ context.Context, hit locate.Hit, text string) error {
	f.selections = append(f.selections, hit.Query+"="+text)
	return nil
}

func (f *fakeDriver) TypeInFrame(_ context.Context, _ locate.Hit, html string) error {
	if f.frameErr != nil {
		return f.frameErr
	}
	f.frameContents = append(f.frameContents, html)
	return nil
}

func (f *fakeDriver) Evaluate(_ context.Context, script string, _ any) error {
	if f.evaluateErr != nil {
		return f.evaluateErr
	}
	f.evaluations = append(f.evaluations, script)
	return nil
}

var _ Driver = (*fakeDriver)(nil)

// fakeResolver scripts the per-attempt recognition outcomes.
type fakeResolver struct {
	codes    []string // indexed by attempt-1; "" means unresolved
	attempts []int
}

func (f *fakeResolver) Resolve(_ context.Context, _ []byte, attempt int) (string, bool) {
	f.attempts = append(f.attempts, attempt)
	if attempt-1 < len(f.codes) && f.codes[attempt-1] != "" {
		return f.codes[attempt-1], true
	}
	return "", false
}

// newTestAutomator wires an Automator with recorded sleeps and no real
// delays.
func newTestAutomator(drv Driver, resolver Resolver, mutate func(*config.Config)) (*Automator, *[]time.Duration) {
	cfg := config.NewDefault()
	cfg.Portal.LoginURL = "https://portal.example.com/admin/login.php"
	cfg.Portal.Username = "editor"
	cfg.Portal.Password = "pw"
	cfg.Browser.SettleInterval = 0
	cfg.Retry.ListSettle = 0
	cfg.Retry.EditorSettle = 0
	cfg.Retry.FrameAttachWait = 0
	if mutate != nil {
		mutate(cfg)
	}

	a := NewAutomator(drv, resolver, cfg, zap.NewNop())
	var delays []time.Duration
	a.sleep = func(_ context.Context, d time.Duration) bool {
		if d > 0 {
			delays = append(delays, d)
		}
		return true
	}
	return a, &delays
}

var errNotFound = errors.New("element not found")
