// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/quizwalk/internal/config"
)

const launchTimeout = 30 * time.Second

// Manager owns the Chrome process. Tabs are derived from its allocator.
type Manager struct {
	logger  *zap.Logger
	browser config.BrowserConfig
	network config.NetworkConfig

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	// wg tracks open tabs for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches the browser and checks it responds.
func NewManager(ctx context.Context, logger *zap.Logger, bcfg config.BrowserConfig, ncfg config.NetworkConfig) (*Manager, error) {
	m := &Manager{
		logger:  logger.Named("browser_manager"),
		browser: bcfg,
		network: ncfg,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.browser.Headless))

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, m.buildAllocatorOptions()...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	testCtx, cancelTest := context.WithTimeout(allocCtx, launchTimeout)
	defer cancelTest()
	testCtx, cancelTestCtx := chromedp.NewContext(testCtx)
	defer cancelTestCtx()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// buildAllocatorOptions starts from the chromedp defaults and applies the
// configuration. Later flags override earlier ones, and false flags are
// dropped from the command line.
func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", m.browser.Headless),
		chromedp.Flag("ignore-certificate-errors", m.browser.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", m.browser.Headless),
	)
	if m.browser.DisableCache {
		opts = append(opts, chromedp.Flag("disk-cache-size", "1"))
	}
	if w, h := m.browser.Viewport["width"], m.browser.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	if m.browser.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.browser.ExecPath))
	}
	if m.network.Proxy.Enabled && m.network.Proxy.Address != "" {
		opts = append(opts, chromedp.ProxyServer(m.network.Proxy.Address))
	}

	for _, f := range parseFlagArgs(m.browser.Args) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}

	// Required inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

type flagArg struct {
	name  string
	value interface{}
}

// parseFlagArgs turns "--name=value" and "--switch" style arguments into
// chromedp flags. The leading dashes are optional.
func parseFlagArgs(args []string) []flagArg {
	out := make([]flagArg, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			out = append(out, flagArg{name: name, value: value})
		} else {
			out = append(out, flagArg{name: name, value: true})
		}
	}
	return out
}

// NewTab opens a tab. The returned release func closes it.
func (m *Manager) NewTab() (context.Context, func()) {
	tabCtx, cancel := chromedp.NewContext(m.allocatorCtx)
	m.wg.Add(1)
	var once sync.Once
	return tabCtx, func() {
		once.Do(func() {
			cancel()
			m.wg.Done()
		})
	}
}

// Shutdown waits for open tabs, bounded by ctx, then stops the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for open tabs to close...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All tabs have closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
