package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/quizwalk/internal/explorer"
)

// navigationLockScript pins the tab on the given pages. While the first path
// segment names one of them, history.pushState and history.replaceState do
// nothing unless a popstate fired in the last 100ms, so the site can only
// leave through back navigation. It returns "" for no pages.
func navigationLockScript(pages []explorer.PageID) string {
	if len(pages) == 0 {
		return ""
	}
	names := make([]string, 0, len(pages))
	for _, p := range pages {
		names = append(names, jsString(strings.ToLower(string(p))))
	}
	return fmt.Sprintf(`(() => {
  const locked = new Set([%s]);
  const current = () => (location.pathname.replace(/^\/+/, "").split("/")[0] || "").toLowerCase();
  let allowBack = false;
  window.addEventListener("popstate", () => {
    allowBack = true;
    setTimeout(() => { allowBack = false; }, 100);
  });
  for (const name of ["pushState", "replaceState"]) {
    const original = history[name];
    history[name] = function (...args) {
      if (!allowBack && locked.has(current())) {
        console.debug("blocked " + name + " away from " + location.pathname);
        return;
      }
      return original.apply(this, args);
    };
  }
})();`, strings.Join(names, ", "))
}

// addScriptOnNewDocument registers source to run before any page script in
// every document the tab loads from now on.
func addScriptOnNewDocument(source string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(source).Do(ctx)
		return err
	})
}
