// Package drivertest provides a scripted in-memory Driver for tests.
package drivertest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bobmcallan/uiverify/internal/driver"
)

// PNG is the file body written by Screenshot.
var PNG = []byte("\x89PNG\r\n\x1a\n")

// Call is one recorded driver invocation.
type Call struct {
	Op      string
	Target  string
	Value   string
	Timeout time.Duration
}

func (c Call) String() string {
	s := c.Op
	if c.Target != "" {
		s += " " + c.Target
	}
	if c.Value != "" {
		s += " " + c.Value
	}
	return s
}

type element struct{ loc driver.Locator }

func (e *element) Locator() driver.Locator { return e.loc }

// Action mutates the fake page in response to an interaction.
type Action func(p *Page)

// Page is the scripted page state. Elements are keyed by Locator.String().
type Page struct {
	URL      string
	Title    string
	Present  map[string]bool
	Visible  map[string]bool
	Values   map[string]string
	JSErrors []string
}

// Show makes loc present and visible.
func (p *Page) Show(loc driver.Locator) {
	p.Present[loc.String()] = true
	p.Visible[loc.String()] = true
}

// Hide keeps loc present but not visible.
func (p *Page) Hide(loc driver.Locator) {
	p.Present[loc.String()] = true
	p.Visible[loc.String()] = false
}

// Remove deletes loc from the page.
func (p *Page) Remove(loc driver.Locator) {
	delete(p.Present, loc.String())
	delete(p.Visible, loc.String())
}

// Driver is a fake driver.Driver. It also implements Diagnoser and Resetter.
// All methods are safe for concurrent use.
type Driver struct {
	mu    sync.Mutex
	page  Page
	calls []Call

	routes  map[string]Action
	clicks  map[string]Action
	keys    map[string]Action
	failure map[string][]error

	ScreenshotErr error
	Closed        bool
	Resets        int
}

// New returns an empty page at about:blank.
func New() *Driver {
	return &Driver{
		page: Page{
			URL:     "about:blank",
			Present: make(map[string]bool),
			Visible: make(map[string]bool),
			Values:  make(map[string]string),
		},
		routes:  make(map[string]Action),
		clicks:  make(map[string]Action),
		keys:    make(map[string]Action),
		failure: make(map[string][]error),
	}
}

// Setup mutates the page directly.
func (d *Driver) Setup(fn Action) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.page)
	return d
}

// OnNavigate runs fn after url is loaded. Navigating replaces the page, so
// elements from an earlier page are gone.
func (d *Driver) OnNavigate(url string, fn Action) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes[url] = fn
	return d
}

// OnClick runs fn when loc is clicked.
func (d *Driver) OnClick(loc driver.Locator, fn Action) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks[loc.String()] = fn
	return d
}

// OnKey runs fn when key is pressed anywhere.
func (d *Driver) OnKey(key string, fn Action) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = fn
	return d
}

// FailNext queues errs to be returned by successive calls to op
// ("navigate", "locate", "click", ...).
func (d *Driver) FailNext(op string, errs ...error) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failure[op] = append(d.failure[op], errs...)
	return d
}

// After applies fn once delay has passed, simulating asynchronous rendering.
func (d *Driver) After(delay time.Duration, fn Action) *Driver {
	time.AfterFunc(delay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		fn(&d.page)
	})
	return d
}

// Calls returns a copy of the recorded calls.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Page returns a snapshot of the page state.
func (d *Driver) Page() Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.page
	p.Present = copyMap(d.page.Present)
	p.Visible = copyMap(d.page.Visible)
	p.Values = copyMap(d.page.Values)
	return p
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// record logs a call and pops a queued failure for op. Callers hold d.mu.
func (d *Driver) record(c Call) error {
	d.calls = append(d.calls, c)
	if q := d.failure[c.Op]; len(q) > 0 {
		d.failure[c.Op] = q[1:]
		return q[0]
	}
	return nil
}

func (d *Driver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(Call{Op: "navigate", Value: url, Timeout: timeout}); err != nil {
		return err
	}
	d.page = Page{
		URL:     url,
		Title:   d.page.Title,
		Present: make(map[string]bool),
		Visible: make(map[string]bool),
		Values:  make(map[string]string),
	}
	if fn, ok := d.routes[url]; ok {
		fn(&d.page)
	}
	return nil
}

func (d *Driver) Locate(ctx context.Context, loc driver.Locator, timeout time.Duration) (driver.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := loc.String()
	if err := d.record(Call{Op: "locate", Target: key, Timeout: timeout}); err != nil {
		return nil, err
	}
	if !d.page.Present[key] {
		return nil, driver.NewError(driver.ElementNotFound, "locate "+key, nil)
	}
	return &element{loc: loc}, nil
}

// interactable checks el is on the page and visible. Callers hold d.mu.
func (d *Driver) interactable(op string, el driver.Element) error {
	key := el.Locator().String()
	if !d.page.Present[key] {
		return driver.NewError(driver.ElementNotFound, op+" "+key, nil)
	}
	if !d.page.Visible[key] {
		return driver.NewError(driver.NotInteractable, op+" "+key, fmt.Errorf("element is not visible"))
	}
	return nil
}

func (d *Driver) Fill(ctx context.Context, el driver.Element, text string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := el.Locator().String()
	if err := d.record(Call{Op: "fill", Target: key, Value: text, Timeout: timeout}); err != nil {
		return err
	}
	if err := d.interactable("fill", el); err != nil {
		return err
	}
	d.page.Values[key] = text
	return nil
}

func (d *Driver) Click(ctx context.Context, el driver.Element, opts driver.ClickOptions, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := el.Locator().String()
	value := ""
	if opts.Offset != nil {
		value = fmt.Sprintf("@%g,%g", opts.Offset.X, opts.Offset.Y)
	}
	if opts.Force {
		value += "!"
	}
	if err := d.record(Call{Op: "click", Target: key, Value: value, Timeout: timeout}); err != nil {
		return err
	}
	if !opts.Force {
		if err := d.interactable("click", el); err != nil {
			return err
		}
	} else if !d.page.Present[key] {
		return driver.NewError(driver.ElementNotFound, "click "+key, nil)
	}
	if fn, ok := d.clicks[key]; ok {
		fn(&d.page)
	}
	return nil
}

func (d *Driver) Press(ctx context.Context, el driver.Element, key string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	target := ""
	if el != nil {
		target = el.Locator().String()
	}
	if err := d.record(Call{Op: "press", Target: target, Value: key, Timeout: timeout}); err != nil {
		return err
	}
	if fn, ok := d.keys[key]; ok {
		fn(&d.page)
	}
	return nil
}

func (d *Driver) Select(ctx context.Context, el driver.Element, value string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := el.Locator().String()
	if err := d.record(Call{Op: "select", Target: key, Value: value, Timeout: timeout}); err != nil {
		return err
	}
	if err := d.interactable("select", el); err != nil {
		return err
	}
	d.page.Values[key] = value
	return nil
}

func (d *Driver) IsVisible(ctx context.Context, el driver.Element) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := el.Locator().String()
	if err := d.record(Call{Op: "visible", Target: key}); err != nil {
		return false, err
	}
	return d.page.Present[key] && d.page.Visible[key], nil
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(Call{Op: "url"}); err != nil {
		return "", err
	}
	return d.page.URL, nil
}

// Screenshot writes a PNG signature to path unless ScreenshotErr is set.
func (d *Driver) Screenshot(ctx context.Context, path string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(Call{Op: "screenshot", Value: filepath.Base(path), Timeout: timeout}); err != nil {
		return err
	}
	if d.ScreenshotErr != nil {
		return driver.NewError(driver.ArtifactWriteError, "screenshot "+path, d.ScreenshotErr)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return driver.NewError(driver.ArtifactWriteError, "screenshot "+path, err)
	}
	if err := os.WriteFile(path, PNG, 0644); err != nil {
		return driver.NewError(driver.ArtifactWriteError, "screenshot "+path, err)
	}
	return nil
}

func (d *Driver) Diagnose(ctx context.Context) (driver.Diagnostics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(Call{Op: "diagnose"}); err != nil {
		return driver.Diagnostics{}, err
	}
	return driver.Diagnostics{
		URL:      d.page.URL,
		Title:    d.page.Title,
		JSErrors: append([]string(nil), d.page.JSErrors...),
	}, nil
}

func (d *Driver) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(Call{Op: "reset"}); err != nil {
		return err
	}
	d.Resets++
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return d.record(Call{Op: "close"})
}

var (
	_ driver.Driver    = (*Driver)(nil)
	_ driver.Diagnoser = (*Driver)(nil)
	_ driver.Resetter  = (*Driver)(nil)
)
