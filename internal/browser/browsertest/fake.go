// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rendis/flowpilot/internal/browser"
)

// Call is one recorded driver operation.
type Call struct {
	Op       string
	Selector string
	Value    string
}

// Fake records every operation and answers Exists/Text from its maps.
// Errors keyed by op ("click") or op+selector ("click #ok") are returned
// instead of performing the operation.
type Fake struct {
	mu sync.Mutex

	Elements map[string]bool
	Texts    map[string]string
	Errors   map[string]error

	// ExistsSeq, when set for a selector, is consumed one value per Exists call.
	// The last value repeats once the sequence is exhausted.
	ExistsSeq map[string][]bool

	// OnCall, if set, runs after each recorded call.
	OnCall func(Call)

	ScreenshotDir string

	calls  []Call
	shots  int
	closed bool
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Elements:  map[string]bool{},
		Texts:     map[string]string{},
		Errors:    map[string]error{},
		ExistsSeq: map[string][]bool{},
	}
}

// Launcher returns a browser.Launcher that always hands out f.
func (f *Fake) Launcher() browser.Launcher {
	return func(ctx context.Context) (browser.Driver, error) { return f, nil }
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns the op names of the recorded calls.
func (f *Fake) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, len(f.calls))
	for i, c := range f.calls {
		ops[i] = c.Op
	}
	return ops
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) record(ctx context.Context, op, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	if err, ok := f.Errors[op+" "+selector]; ok {
		f.mu.Unlock()
		return err
	}
	if err, ok := f.Errors[op]; ok {
		f.mu.Unlock()
		return err
	}
	c := Call{Op: op, Selector: selector, Value: value}
	f.calls = append(f.calls, c)
	hook := f.OnCall
	f.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return nil
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	return f.record(ctx, "navigate", "", url)
}

func (f *Fake) Click(ctx context.Context, selector string) error {
	return f.record(ctx, "click", selector, "")
}

func (f *Fake) Type(ctx context.Context, selector, text string) error {
	return f.record(ctx, "type", selector, text)
}

func (f *Fake) Hover(ctx context.Context, selector string) error {
	return f.record(ctx, "hover", selector, "")
}

func (f *Fake) ScrollIntoView(ctx context.Context, selector string) error {
	return f.record(ctx, "scrollIntoView", selector, "")
}

func (f *Fake) ScrollBy(ctx context.Context, pixels int) error {
	return f.record(ctx, "scrollBy", "", strconv.Itoa(pixels))
}

func (f *Fake) SelectOption(ctx context.Context, selector string, opt browser.Option) error {
	v := opt.Value
	if opt.Index != nil {
		v = "#" + strconv.Itoa(*opt.Index)
	}
	return f.record(ctx, "selectOption", selector, v)
}

func (f *Fake) UploadFile(ctx context.Context, selector, path string) error {
	return f.record(ctx, "uploadFile", selector, path)
}

func (f *Fake) Screenshot(ctx context.Context, path string) (string, error) {
	if path == "" {
		f.mu.Lock()
		f.shots++
		path = filepath.Join(f.ScreenshotDir, fmt.Sprintf("screenshot-%d.png", f.shots))
		f.mu.Unlock()
	}
	if err := f.record(ctx, "screenshot", "", path); err != nil {
		return "", err
	}
	return path, nil
}

func (f *Fake) Text(ctx context.Context, selector string) (string, error) {
	if err := f.record(ctx, "text", selector, ""); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.Texts[selector]
	if !ok {
		return "", fmt.Errorf("no element matches %s", selector)
	}
	return text, nil
}

func (f *Fake) Exists(ctx context.Context, selector string) (bool, error) {
	if err := f.record(ctx, "exists", selector, ""); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if seq := f.ExistsSeq[selector]; len(seq) > 0 {
		v := seq[0]
		if len(seq) > 1 {
			f.ExistsSeq[selector] = seq[1:]
		}
		return v, nil
	}
	if f.Elements[selector] {
		return true, nil
	}
	_, hasText := f.Texts[selector]
	return hasText, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var _ browser.Driver = (*Fake)(nil)
