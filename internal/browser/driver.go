// Package browser defines the page operations automation steps need and
// implements them on top of Playwright.
package browser

import (
	"context"
	"time"
)

// Driver performs page operations for a single browser session.
// Implementations must honour ctx cancellation before starting an operation.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Hover(ctx context.Context, selector string) error
	ScrollIntoView(ctx context.Context, selector string) error
	ScrollBy(ctx context.Context, pixels int) error
	SelectOption(ctx context.Context, selector string, opt Option) error
	UploadFile(ctx context.Context, selector, path string) error
	// Screenshot writes a PNG and returns where it was written. An empty
	// path lets the driver choose one.
	Screenshot(ctx context.Context, path string) (string, error)
	// Text returns the text content of the first element matching selector.
	Text(ctx context.Context, selector string) (string, error)
	// Exists reports whether any element matches selector.
	Exists(ctx context.Context, selector string) (bool, error)
	Close() error
}

// Option picks a <select> entry by value or by zero-based index.
type Option struct {
	Value string
	Index *int
}

// Launcher opens a new browser session for one run.
type Launcher func(ctx context.Context) (Driver, error)

// Options configures a Playwright session.
type Options struct {
	Headless      bool
	Timeout       time.Duration
	ScreenshotDir string
	Viewport      Viewport
}

// Viewport is the page size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Viewport.Width <= 0 {
		o.Viewport.Width = DefaultViewportWidth
	}
	if o.Viewport.Height <= 0 {
		o.Viewport.Height = DefaultViewportHeight
	}
	if o.ScreenshotDir == "" {
		o.ScreenshotDir = "."
	}
}
