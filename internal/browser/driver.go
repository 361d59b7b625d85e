// internal/browser/driver.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
	"github.com/xkilldash9x/quizwalk/internal/config"
	"github.com/xkilldash9x/quizwalk/internal/explorer"
	"github.com/xkilldash9x/quizwalk/internal/profile"
)

const pollInterval = 100 * time.Millisecond

// Driver implements explorer.PageDriver over one chromedp tab.
type Driver struct {
	tabCtx   context.Context
	profile  *profile.Profile
	startURL string
	net      config.NetworkConfig
	limiter  *rate.Limiter
	logger   *zap.Logger

	// locked is set once the navigation lock script is registered on the tab.
	locked bool
}

var _ explorer.PageDriver = (*Driver)(nil)

// NewDriver drives the tab behind tabCtx. An empty startURL uses the profile's.
func NewDriver(tabCtx context.Context, p *profile.Profile, startURL string, ncfg config.NetworkConfig, logger *zap.Logger) *Driver {
	if startURL == "" {
		startURL = p.StartURL
	}
	perSecond := ncfg.ActionsPerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	return &Driver{
		tabCtx:   tabCtx,
		profile:  p,
		startURL: startURL,
		net:      ncfg,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:   logger.Named("driver"),
	}
}

// -- PageDriver --

// Open loads the start page and dismisses the cookie banner. The first call
// also locks navigation on the profile's dead ends.
func (d *Driver) Open(ctx context.Context) error {
	d.logger.Info("Opening quiz.", zap.String("url", d.startURL))
	if script := navigationLockScript(d.profile.DeadEnds); script != "" && !d.locked {
		if err := d.runActions(ctx, addScriptOnNewDocument(script)); err != nil {
			return fmt.Errorf("failed to install navigation lock: %w", err)
		}
		d.locked = true
		d.logger.Debug("Locked navigation on dead ends.", zap.Any("pages", d.profile.DeadEnds))
	}
	var actions []chromedp.Action
	if len(d.net.Headers) > 0 {
		headers := make(network.Headers, len(d.net.Headers))
		for k, v := range d.net.Headers {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	actions = append(actions,
		chromedp.Navigate(d.startURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	err := d.act(ctx, "open", func(ctx context.Context) error {
		return d.runActions(ctx, actions...)
	})
	if err != nil {
		return err
	}
	if err := sleep(ctx, d.net.PostLoadWait); err != nil {
		return err
	}

	var clicked bool
	if err := d.runActions(ctx, d.evaluate(jsClickIfPresent(d.profile.Selectors.CookieAccept), &clicked)); err != nil {
		return fmt.Errorf("failed to check cookie banner: %w", err)
	}
	if clicked {
		d.logger.Debug("Accepted cookies.")
	}
	return nil
}

func (d *Driver) CurrentPageID(ctx context.Context) (explorer.PageID, error) {
	var href string
	err := d.act(ctx, "read location", func(ctx context.Context) error {
		return d.runActions(ctx, d.evaluate(`location.href`, &href))
	})
	if err != nil {
		return "", err
	}
	return explorer.PageIDFromURL(href), nil
}

func (d *Driver) ProbeShape(ctx context.Context) (candidate.Shape, error) {
	page, err := d.CurrentPageID(ctx)
	if err != nil {
		return candidate.Shape{}, err
	}
	counts, err := d.domCounts(ctx)
	if err != nil {
		return candidate.Shape{}, err
	}
	shape, err := d.profile.ShapeFor(page, counts)
	if err != nil {
		return candidate.Shape{}, err
	}
	d.logger.Debug("Probed page.",
		zap.String("page", string(page)),
		zap.String("kind", string(shape.Kind)),
		zap.Int("options", shape.OptionCount),
	)
	return shape, nil
}

func (d *Driver) Apply(ctx context.Context, c candidate.Candidate) error {
	page, err := d.CurrentPageID(ctx)
	if err != nil {
		return err
	}
	counts, err := d.domCounts(ctx)
	if err != nil {
		return err
	}
	steps, err := planApply(d.profile, page, counts, c)
	if err != nil {
		return err
	}
	for _, s := range steps {
		if err := d.act(ctx, stepName(s), func(ctx context.Context) error { return d.perform(ctx, s) }); err != nil {
			return fmt.Errorf("apply %s on %q: %w", c, page, err)
		}
	}
	return nil
}

// NavigateForward clicks the first enabled Begin/Next/Continue button and
// waits for the page identity to change. A missing button is not an error; it
// reports no movement.
func (d *Driver) NavigateForward(ctx context.Context) (bool, error) {
	before, err := d.CurrentPageID(ctx)
	if err != nil {
		return false, err
	}
	var clicked bool
	err = d.act(ctx, "click next", func(ctx context.Context) error {
		return d.runActions(ctx, d.evaluate(jsClickFirstEnabledXPath(d.profile.Selectors.NextButton), &clicked))
	})
	if err != nil {
		return false, err
	}
	if !clicked {
		d.logger.Debug("No enabled next button.", zap.String("page", string(before)))
		return false, nil
	}
	return d.waitForPageChange(ctx, before)
}

// NavigateBack goes one entry back in history and waits for the page to change.
func (d *Driver) NavigateBack(ctx context.Context) (bool, error) {
	before, err := d.CurrentPageID(ctx)
	if err != nil {
		return false, err
	}
	var ignored interface{}
	err = d.act(ctx, "history back", func(ctx context.Context) error {
		return d.runActions(ctx, d.evaluate(`history.back(); true`, &ignored))
	})
	if err != nil {
		return false, err
	}
	return d.waitForPageChange(ctx, before)
}

// -- Helpers --

type domCounts struct {
	Options int `json:"options"`
	YesNo   int `json:"yes_no"`
	Inputs  int `json:"inputs"`
}

func (d *Driver) domCounts(ctx context.Context) (profile.DOMCounts, error) {
	var res domCounts
	sel := d.profile.Selectors
	err := d.act(ctx, "count widgets", func(ctx context.Context) error {
		return d.runActions(ctx, d.evaluate(jsCounts(sel.Option, sel.YesNoOption, sel.Inputs), &res))
	})
	if err != nil {
		return profile.DOMCounts{}, err
	}
	return profile.DOMCounts{Options: res.Options, YesNo: res.YesNo, Inputs: res.Inputs}, nil
}

func (d *Driver) perform(ctx context.Context, s uiStep) error {
	var ok bool
	switch s.kind {
	case stepClearSelection:
		var n int
		return d.runActions(ctx, d.evaluate(jsClickAll(s.selector), &n))
	case stepClickOption:
		if err := d.runActions(ctx, d.evaluate(jsClickNth(s.selector, s.index), &ok)); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("option %d of %q not found", s.index, s.selector)
		}
		return nil
	case stepFill:
		return d.runActions(ctx,
			chromedp.WaitVisible(s.selector, chromedp.ByQuery),
			chromedp.SetValue(s.selector, "", chromedp.ByQuery),
			chromedp.SendKeys(s.selector, s.value, chromedp.ByQuery),
		)
	case stepLookupClear:
		var n int
		return d.runActions(ctx, d.evaluate(jsClickAll(s.selector), &n))
	case stepLookupPick:
		return d.runActions(ctx,
			chromedp.WaitVisible(s.selector, chromedp.ByQuery),
			chromedp.SendKeys(s.selector, s.value, chromedp.ByQuery),
			chromedp.Click(fmt.Sprintf(d.profile.Selectors.LookupSuggestion, s.value), chromedp.BySearch),
		)
	case stepConsent:
		return d.runActions(ctx, d.evaluate(jsClickIfPresent(s.selector), &ok))
	case stepSubmit:
		if err := d.runActions(ctx, d.evaluate(jsClickFirstEnabledXPath(s.selector), &ok)); err != nil {
			return err
		}
		if !ok {
			return errors.New("no enabled submit button")
		}
		return nil
	}
	return fmt.Errorf("unknown step %d", s.kind)
}

func stepName(s uiStep) string {
	switch s.kind {
	case stepClearSelection:
		return "clear selection"
	case stepClickOption:
		return fmt.Sprintf("click option %d", s.index)
	case stepFill:
		return "fill input"
	case stepLookupClear:
		return "clear lookup"
	case stepLookupPick:
		return "pick " + s.value
	case stepConsent:
		return "tick consent"
	case stepSubmit:
		return "submit"
	}
	return "step"
}

// act runs one UI action under the rate limiter, retrying transient failures.
// A successful action is followed by the settle delay.
func (d *Driver) act(ctx context.Context, name string, fn func(context.Context) error) error {
	attempts := d.net.RetryAttempts + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if werr := d.limiter.Wait(ctx); werr != nil {
			return werr
		}
		if err = fn(ctx); err == nil {
			return sleep(ctx, d.net.ActionDelay)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Debug("Browser action failed.", zap.String("action", name), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < attempts {
			if serr := sleep(ctx, d.net.RetryBackoff); serr != nil {
				return serr
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, err)
}

// runActions executes chromedp actions on the tab while honouring the
// deadline and cancellation of ctx, which is not itself a tab context.
func (d *Driver) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (d *Driver) evaluate(expr string, res interface{}) chromedp.Action {
	return chromedp.Evaluate(expr, res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	})
}

// waitForPageChange polls the page identity until it differs from before. When
// ctx carries no deadline the navigation timeout applies; running out of time
// on that local timeout reports no movement.
func (d *Driver) waitForPageChange(ctx context.Context, before explorer.PageID) (bool, error) {
	waitCtx := ctx
	if _, ok := ctx.Deadline(); !ok && d.net.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, d.net.NavigationTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		var href string
		if err := d.runActions(waitCtx, d.evaluate(`location.href`, &href)); err == nil {
			if now := explorer.PageIDFromURL(href); now != before {
				if err := sleep(ctx, d.net.PostLoadWait); err != nil {
					return true, err
				}
				return true, nil
			}
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil
		case <-ticker.C:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// -- Page scripts --

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func jsCounts(option, yesNo, inputs string) string {
	return fmt.Sprintf(`(() => {
  const visible = e => !!(e.offsetWidth || e.offsetHeight || e.getClientRects().length);
  return {
    options: document.querySelectorAll(%s).length,
    yes_no: document.querySelectorAll(%s).length,
    inputs: Array.from(document.querySelectorAll(%s)).filter(visible).length,
  };
})()`, jsString(option), jsString(yesNo), jsString(inputs))
}

func jsClickNth(selector string, i int) string {
	return fmt.Sprintf(`(() => {
  const els = document.querySelectorAll(%s);
  if (els.length <= %d) return false;
  els[%d].scrollIntoView({block: "center"});
  els[%d].click();
  return true;
})()`, jsString(selector), i, i, i)
}

func jsClickAll(selector string) string {
	return fmt.Sprintf(`(() => {
  const els = Array.from(document.querySelectorAll(%s));
  els.forEach(e => e.click());
  return els.length;
})()`, jsString(selector))
}

func jsClickIfPresent(selector string) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  el.click();
  return true;
})()`, jsString(selector))
}

func jsClickFirstEnabledXPath(xpath string) string {
	return fmt.Sprintf(`(() => {
  const snap = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
  for (let i = 0; i < snap.snapshotLength; i++) {
    const el = snap.snapshotItem(i);
    const target = el.closest("button") || el;
    if (target.disabled || target.getAttribute("aria-disabled") === "true" || target.classList.contains("disabled")) continue;
    target.click();
    return true;
  }
  return false;
})()`, jsString(xpath))
}
