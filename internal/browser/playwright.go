package browser

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver drives one Chromium page.
type PlaywrightDriver struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	opts    Options
	closed  bool
}

// Launch installs the Playwright runtime if needed, starts Chromium and opens a page.
func Launch(opts Options) (*PlaywrightDriver, error) {
	opts.applyDefaults()

	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("install playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height},
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("create page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	return &PlaywrightDriver{pw: pw, browser: browser, context: bctx, page: page, opts: opts}, nil
}

// NewLauncher returns a Launcher that opens a fresh Playwright session per run.
func NewLauncher(opts Options) Launcher {
	return func(ctx context.Context) (Driver, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Launch(opts)
	}
}

func (d *PlaywrightDriver) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("browser session is closed")
	}
	return nil
}

func (d *PlaywrightDriver) Navigate(ctx context.Context, url string) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	if _, err := d.page.Goto(url, playwright.PageGotoOptions{}); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (d *PlaywrightDriver) Click(ctx context.Context, selector string) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	if err := d.page.Click(selector, playwright.PageClickOptions{}); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (d *PlaywrightDriver) Type(ctx context.Context, selector, text string) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	if err := d.page.Fill(selector, text, playwright.PageFillOptions{}); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (d *PlaywrightDriver) Hover(ctx context.Context, selector string) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	if err := d.page.Hover(selector, playwright.PageHoverOptions{}); err != nil {
		return fmt.Errorf("hover %s: %w", selector, err)
	}
	return nil
}

func (d *PlaywrightDriver) ScrollIntoView(ctx context.Context, selector string) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	el, err := d.page.QuerySelector(selector)
	if err != nil {
		return fmt.Errorf("query %s: %w", selector, err)
	}
	if el == nil {
		return fmt.Errorf("no element matches %s", selector)
	}
	if err := el.ScrollIntoViewIfNeeded(); err != nil {
		return fmt.Errorf("scroll to %s: %w", selector, err)
	}
	return nil
}

func (d *PlaywrightDriver) ScrollBy(ctx context.Context, pixels int) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	if err := d.page.Mouse().Wheel(0, float64(pixels)); err != nil {
		return fmt.Errorf("scroll by %dpx: %w", pixels, err)
	}
	return nil
}

func (d *PlaywrightDriver) SelectOption(ctx context.Context, selector string, opt Option) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	values := playwright.SelectOptionValues{}
	if opt.Index != nil {
		values.Indexes = &[]int{*opt.Index}
	} else {
		values.Values = &[]string{opt.Value}
	}
	if _, err := d.page.SelectOption(selector, values); err != nil {
		return fmt.Errorf("select option in %s: %w", selector, err)
	}
	return nil
}

func (d *PlaywrightDriver) UploadFile(ctx context.Context, selector, path string) error {
	if err := d.ready(ctx); err != nil {
		return err
	}
	if err := d.page.SetInputFiles(selector, path); err != nil {
		return fmt.Errorf("upload %s to %s: %w", path, selector, err)
	}
	return nil
}

func (d *PlaywrightDriver) Screenshot(ctx context.Context, path string) (string, error) {
	if err := d.ready(ctx); err != nil {
		return "", err
	}
	if path == "" {
		path = filepath.Join(d.opts.ScreenshotDir, fmt.Sprintf("screenshot-%d.png", time.Now().UnixMilli()))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	fullPage := true
	if _, err := d.page.Screenshot(playwright.PageScreenshotOptions{Path: &path, FullPage: &fullPage}); err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	return path, nil
}

func (d *PlaywrightDriver) Text(ctx context.Context, selector string) (string, error) {
	if err := d.ready(ctx); err != nil {
		return "", err
	}
	el, err := d.page.QuerySelector(selector)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", selector, err)
	}
	if el == nil {
		return "", fmt.Errorf("no element matches %s", selector)
	}
	text, err := el.TextContent()
	if err != nil {
		return "", fmt.Errorf("read text of %s: %w", selector, err)
	}
	return text, nil
}

func (d *PlaywrightDriver) Exists(ctx context.Context, selector string) (bool, error) {
	if err := d.ready(ctx); err != nil {
		return false, err
	}
	el, err := d.page.QuerySelector(selector)
	if err != nil {
		return false, fmt.Errorf("query %s: %w", selector, err)
	}
	return el != nil, nil
}

// Close releases the page, context, browser and Playwright runtime.
// Errors from individual resources are ignored so cleanup always completes.
func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	_ = d.page.Close()
	_ = d.context.Close()
	_ = d.browser.Close()
	return d.pw.Stop()
}

var _ Driver = (*PlaywrightDriver)(nil)
