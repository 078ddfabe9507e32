package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/yeye296/Xserver-VPS-Renew/internal/config"
)

// maskAutomation hides the usual automation fingerprints before any page
// script runs.
const maskAutomation = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'plugins', {get: () => [1,2,3]});
Object.defineProperty(navigator, 'languages', {get: () => ['ja-JP','en-US']});
`

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

var ipv4Pattern = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

// Driver implements the page-interaction contract on a Chrome session via
// chromedp. The browser always runs visible: the renewal page's interactive
// challenge does not pass in headless sessions, so the config toggle is
// logged and ignored.
type Driver struct {
	ctx           context.Context
	cancels       []context.CancelFunc
	stepTimeout   time.Duration
	screenshotDir string
	log           *logrus.Entry
}

// NewDriver launches the browser and prepares a tab.
func NewDriver(ctx context.Context, cfg *config.BrowserConfig, stepTimeout time.Duration) (*Driver, error) {
	log := logrus.WithField("component", "browser")

	if cfg.Headless {
		log.Warn("Headless mode requested but the renewal challenge requires a visible browser, forcing visible mode")
	}
	if cfg.ProxyServer != "" {
		log.Info("Proxy configured but not applied at launch; egress is observed and logged only")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("lang", "ja-JP"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	d := &Driver{
		ctx:           tabCtx,
		cancels:       []context.CancelFunc{cancelTab, cancelAlloc},
		stepTimeout:   stepTimeout,
		screenshotDir: cfg.ScreenshotDir,
		log:           log,
	}

	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(maskAutomation).Do(ctx)
		return err
	}))
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.Info("Browser session ready")
	return d, nil
}

// Close tears down the tab and the browser process.
func (d *Driver) Close() {
	for _, cancel := range d.cancels {
		cancel()
	}
}

func (d *Driver) step() (context.Context, context.CancelFunc) {
	return context.WithTimeout(d.ctx, d.stepTimeout)
}

// Navigate loads a URL and waits for the document to be ready.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tctx, cancel := d.step()
	defer cancel()

	if err := chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Click clicks the first element matching the CSS selector. A missing
// element is a negative result, not an error.
func (d *Driver) Click(ctx context.Context, selector string) (bool, error) {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.click();
		return true;
	})()`, selector)
	return d.evalBool(ctx, js)
}

// ClickText clicks the first link, button or submit control whose label
// contains text.
func (d *Driver) ClickText(ctx context.Context, text string) (bool, error) {
	js := fmt.Sprintf(`(() => {
		const t = %q;
		const els = Array.from(document.querySelectorAll('a, button, input[type="submit"], input[type="button"]'));
		const el = els.find(e => ((e.innerText || e.textContent || e.value || '')).includes(t));
		if (!el) return false;
		el.click();
		return true;
	})()`, text)
	return d.evalBool(ctx, js)
}

// Fill sets an input's value and fires the events framework-bound forms
// listen for.
func (d *Driver) Fill(ctx context.Context, selector, value string) (bool, error) {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.value = %q;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, selector, value)
	return d.evalBool(ctx, js)
}

// VisibleText returns the rendered text of the current page.
func (d *Driver) VisibleText(ctx context.Context) (string, error) {
	js := `document.body ? (document.body.innerText || document.body.textContent || '') : ''`
	return d.evalString(ctx, js)
}

// Location returns the current page URL.
func (d *Driver) Location(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tctx, cancel := d.step()
	defer cancel()

	var url string
	if err := chromedp.Run(tctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

// ImageDataURL returns the inline data URI of the first matching image.
func (d *Driver) ImageDataURL(ctx context.Context, selector string) (string, bool, error) {
	js := fmt.Sprintf(`(() => {
		const img = document.querySelector(%q);
		if (!img || !img.src || !img.src.startsWith('data:')) return '';
		return img.src;
	})()`, selector)
	src, err := d.evalString(ctx, js)
	if err != nil {
		return "", false, err
	}
	return src, src != "", nil
}

// Screenshot writes a full-page capture under the configured directory.
// Best effort only.
func (d *Driver) Screenshot(ctx context.Context, name string) {
	if d.screenshotDir == "" || ctx.Err() != nil {
		return
	}
	tctx, cancel := d.step()
	defer cancel()

	var buf []byte
	if err := chromedp.Run(tctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		d.log.Debugf("Screenshot %s failed: %v", name, err)
		return
	}
	path := filepath.Join(d.screenshotDir, name+".png")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		d.log.Debugf("Screenshot write %s failed: %v", path, err)
	}
}

// ExitIP observes the browser's egress IP through an IP echo service.
func (d *Driver) ExitIP(ctx context.Context) (string, bool) {
	if err := d.Navigate(ctx, "https://api.ipify.org"); err != nil {
		d.log.Warnf("Egress IP check failed: %v", err)
		return "", false
	}
	text, err := d.VisibleText(ctx)
	if err != nil {
		return "", false
	}
	ip := strings.TrimSpace(text)
	if !ipv4Pattern.MatchString(ip) {
		return "", false
	}
	return ip, true
}

// CompleteChallenge triggers the renewal form's interactive anti-automation
// widget when present and waits for its token. Returns true when no widget
// exists or a token appeared.
func (d *Driver) CompleteChallenge(ctx context.Context, maxWait time.Duration) bool {
	present, err := d.evalBool(ctx, `document.querySelector('.cf-turnstile') !== null`)
	if err != nil || !present {
		return err == nil
	}

	d.log.Info("Interactive challenge widget detected, clicking")

	var rect struct {
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
		Visible bool    `json:"visible"`
	}
	js := `(() => {
		const c = document.querySelector('.cf-turnstile');
		if (!c) return {x: 0, y: 0, visible: false};
		const f = c.querySelector('iframe');
		if (!f) return {x: 0, y: 0, visible: false};
		const r = f.getBoundingClientRect();
		return {x: r.x + 35, y: r.y + r.height / 2, visible: r.width > 0 && r.height > 0};
	})()`

	tctx, cancel := d.step()
	if err := chromedp.Run(tctx, chromedp.Evaluate(js, &rect)); err == nil && rect.Visible {
		chromedp.Run(tctx, chromedp.MouseClickXY(rect.X, rect.Y))
	}
	cancel()

	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}

		ok, err := d.evalBool(ctx, `(() => {
			const token = document.querySelector('[name="cf-turnstile-response"]');
			return !!(token && token.value && token.value.length > 0);
		})()`)
		if err == nil && ok {
			d.log.Info("Challenge token present")
			return true
		}
	}

	d.log.Warn("Challenge token did not appear, continuing with submission")
	return false
}

func (d *Driver) evalBool(ctx context.Context, js string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	tctx, cancel := d.step()
	defer cancel()

	var res bool
	if err := chromedp.Run(tctx, chromedp.Evaluate(js, &res)); err != nil {
		return false, fmt.Errorf("script evaluation failed: %w", err)
	}
	return res, nil
}

func (d *Driver) evalString(ctx context.Context, js string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tctx, cancel := d.step()
	defer cancel()

	var res string
	if err := chromedp.Run(tctx, chromedp.Evaluate(js, &res)); err != nil {
		return "", fmt.Errorf("script evaluation failed: %w", err)
	}
	return res, nil
}
