package driver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/bobmcallan/uiverify/internal/common"
)

// pollInterval is how often Locate and Click re-check the page.
const pollInterval = 100 * time.Millisecond

// keys maps key names used in scenarios to chromedp key sequences.
var keys = map[string]string{
	"Escape":     kb.Escape,
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Backspace":  kb.Backspace,
	"ArrowDown":  kb.ArrowDown,
	"ArrowUp":    kb.ArrowUp,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
}

type chromedpElement struct {
	loc      Locator
	selector string
}

func (e *chromedpElement) Locator() Locator { return e.loc }

// Chromedp drives Chrome through the DevTools protocol.
type Chromedp struct {
	ctx    context.Context
	cancel context.CancelFunc
	errors *JSErrorCollector
	logger *common.Logger

	// handles maps Locator.String() to the attribute value tagging it, so
	// repeated lookups of one locator move a single tag instead of adding one.
	handles map[string]string
}

// NewChromedp launches a local Chrome, or attaches to opts.RemoteURL when set.
// The browser is started eagerly so that a missing Chrome surfaces as
// DriverUnavailable before any scenario runs.
func NewChromedp(ctx context.Context, opts Options) (*Chromedp, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(DriverUnavailable, "start chrome", err)
	}
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
			execOpts = append(execOpts, chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), execOpts...)
	}

	browserCtx, ctxCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		ctxCancel()
		allocCancel()
	}

	collector := NewJSErrorCollector(browserCtx)

	start := []chromedp.Action{}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		start = append(start, chromedp.EmulateViewport(int64(opts.ViewportWidth), int64(opts.ViewportHeight)))
	}
	// the browser outlives ctx, but startup itself is abandoned when ctx ends
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(browserCtx, start...)
	if !stop() {
		cancel()
		return nil, NewError(DriverUnavailable, "start chrome", ctx.Err())
	}
	if err != nil {
		cancel()
		return nil, NewError(DriverUnavailable, "start chrome", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	logger.Debug().Bool("remote", opts.RemoteURL != "").Bool("headless", opts.Headless).Msg("chromedp session started")

	return &Chromedp{
		ctx:     browserCtx,
		cancel:  cancel,
		errors:  collector,
		logger:  logger,
		handles: make(map[string]string),
	}, nil
}

// scope derives a chromedp context bounded by timeout that is also cancelled
// when the caller's ctx is.
func (d *Chromedp) scope(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(d.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (d *Chromedp) element(el Element) (*chromedpElement, error) {
	ce, ok := el.(*chromedpElement)
	if !ok || ce == nil {
		return nil, NewError(ElementNotFound, "resolve handle", errors.New("element handle does not belong to this driver"))
	}
	return ce, nil
}

func (d *Chromedp) eval(ctx context.Context, res interface{}, fn string, args ...interface{}) error {
	expr, err := call(fn, args...)
	if err != nil {
		return err
	}
	return chromedp.Run(ctx, chromedp.Evaluate(expr, res))
}

// Navigate loads rawURL and waits for the load event.
func (d *Chromedp) Navigate(ctx context.Context, rawURL string, timeout time.Duration) error {
	runCtx, cancel := d.scope(ctx, timeout)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(rawURL)); err != nil {
		return NewError(NavigationTimeout, fmt.Sprintf("navigate %s", rawURL), err)
	}
	return nil
}

// Locate polls the page until loc resolves or timeout elapses.
func (d *Chromedp) Locate(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	runCtx, cancel := d.scope(ctx, timeout)
	defer cancel()

	key := loc.String()
	handle, ok := d.handles[key]
	if !ok {
		handle = fmt.Sprintf("h%d", len(d.handles)+1)
		d.handles[key] = handle
	}

	for {
		var found bool
		err := d.eval(runCtx, &found, resolverJS, loc, handle)
		if err == nil && found {
			return &chromedpElement{loc: loc, selector: handleSelector(handle)}, nil
		}
		if runCtx.Err() != nil {
			if err == nil {
				err = runCtx.Err()
			}
			return nil, NewError(ElementNotFound, fmt.Sprintf("locate %s", loc), err)
		}
		select {
		case <-runCtx.Done():
		case <-time.After(pollInterval):
		}
	}
}

// waitVisible polls until the element is visible. It separates a missing
// element from one that exists but cannot be interacted with.
func (d *Chromedp) waitVisible(ctx context.Context, ce *chromedpElement, op string) error {
	for {
		var visible bool
		err := d.eval(ctx, &visible, visibleJS, ce.selector)
		if err == nil && visible {
			return nil
		}
		if ctx.Err() != nil {
			var exists bool
			checkCtx, cancel := context.WithTimeout(d.ctx, time.Second)
			_ = d.eval(checkCtx, &exists, existsJS, ce.selector)
			cancel()
			if !exists {
				return NewError(ElementNotFound, fmt.Sprintf("%s %s", op, ce.loc), ctx.Err())
			}
			return NewError(NotInteractable, fmt.Sprintf("%s %s: element is not visible", op, ce.loc), ctx.Err())
		}
		select {
		case <-ctx.Done():
		case <-time.After(pollInterval):
		}
	}
}

// Fill clears the control and types text with real key events.
func (d *Chromedp) Fill(ctx context.Context, el Element, text string, timeout time.Duration) error {
	ce, err := d.element(el)
	if err != nil {
		return err
	}
	runCtx, cancel := d.scope(ctx, timeout)
	defer cancel()

	if err := d.waitVisible(runCtx, ce, "fill"); err != nil {
		return err
	}
	err = chromedp.Run(runCtx,
		chromedp.Clear(ce.selector, chromedp.ByQuery),
		chromedp.SendKeys(ce.selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return NewError(NotInteractable, fmt.Sprintf("fill %s", ce.loc), err)
	}
	return nil
}

// Click clicks the element centre, or opts.Offset from its top-left corner.
// Force skips the visibility wait.
func (d *Chromedp) Click(ctx context.Context, el Element, opts ClickOptions, timeout time.Duration) error {
	ce, err := d.element(el)
	if err != nil {
		return err
	}
	runCtx, cancel := d.scope(ctx, timeout)
	defer cancel()

	if !opts.Force {
		if err := d.waitVisible(runCtx, ce, "click"); err != nil {
			return err
		}
	}

	if opts.Offset == nil && !opts.Force {
		if err := chromedp.Run(runCtx, chromedp.Click(ce.selector, chromedp.ByQuery)); err != nil {
			return NewError(NotInteractable, fmt.Sprintf("click %s", ce.loc), err)
		}
		return nil
	}

	var rect struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := d.eval(runCtx, &rect, rectJS, ce.selector); err != nil {
		return NewError(ElementNotFound, fmt.Sprintf("click %s", ce.loc), err)
	}
	if rect.Width == 0 && rect.Height == 0 {
		return NewError(NotInteractable, fmt.Sprintf("click %s: element has no box", ce.loc), nil)
	}
	x, y := rect.X+rect.Width/2, rect.Y+rect.Height/2
	if opts.Offset != nil {
		x, y = rect.X+opts.Offset.X, rect.Y+opts.Offset.Y
	}
	if err := chromedp.Run(runCtx, chromedp.MouseClickXY(x, y)); err != nil {
		return NewError(NotInteractable, fmt.Sprintf("click %s at %.0f,%.0f", ce.loc, x, y), err)
	}
	return nil
}

// Press sends a named key to el, or to the focused page when el is nil.
func (d *Chromedp) Press(ctx context.Context, el Element, key string, timeout time.Duration) error {
	seq, ok := keys[key]
	if !ok {
		seq = key
	}
	runCtx, cancel := d.scope(ctx, timeout)
	defer cancel()

	if el == nil {
		if err := chromedp.Run(runCtx, chromedp.KeyEvent(seq)); err != nil {
			return NewError(NotInteractable, fmt.Sprintf("press %s", key), err)
		}
		return nil
	}

	ce, err := d.element(el)
	if err != nil {
		return err
	}
	if err := d.waitVisible(runCtx, ce, "press"); err != nil {
		return err
	}
	if err := chromedp.Run(runCtx, chromedp.SendKeys(ce.selector, seq, chromedp.ByQuery)); err != nil {
		return NewError(NotInteractable, fmt.Sprintf("press %s on %s", key, ce.loc), err)
	}
	return nil
}

// Select picks the option whose value or text equals value.
func (d *Chromedp) Select(ctx context.Context, el Element, value string, timeout time.Duration) error {
	ce, err := d.element(el)
	if err != nil {
		return err
	}
	runCtx, cancel := d.scope(ctx, timeout)
	defer cancel()

	if err := d.waitVisible(runCtx, ce, "select"); err != nil {
		return err
	}
	var ok bool
	if err := d.eval(runCtx, &ok, selectJS, ce.selector, value); err != nil {
		return NewError(NotInteractable, fmt.Sprintf("select %q on %s", value, ce.loc), err)
	}
	if !ok {
		return NewError(NotInteractable, fmt.Sprintf("select %q on %s", value, ce.loc), errors.New("no such option"))
	}
	return nil
}

// IsVisible reports the current visibility of el. A detached element is hidden.
func (d *Chromedp) IsVisible(ctx context.Context, el Element) (bool, error) {
	ce, err := d.element(el)
	if err != nil {
		return false, err
	}
	runCtx, cancel := d.scope(ctx, 5*time.Second)
	defer cancel()

	var visible bool
	if err := d.eval(runCtx, &visible, visibleJS, ce.selector); err != nil {
		return false, NewError(ElementNotFound, fmt.Sprintf("visibility of %s", ce.loc), err)
	}
	return visible, nil
}

// URL returns the current page location.
func (d *Chromedp) URL(ctx context.Context) (string, error) {
	runCtx, cancel := d.scope(ctx, 5*time.Second)
	defer cancel()

	var loc string
	if err := chromedp.Run(runCtx, chromedp.Location(&loc)); err != nil {
		return "", NewError(NavigationTimeout, "read location", err)
	}
	return loc, nil
}

// Screenshot writes a lossless full-page PNG to path.
func (d *Chromedp) Screenshot(ctx context.Context, path string, timeout time.Duration) error {
	runCtx, cancel := d.scope(ctx, timeout)
	defer cancel()

	var buf []byte
	// quality 100 selects PNG encoding
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return NewError(ArtifactWriteError, fmt.Sprintf("capture %s", path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return NewError(ArtifactWriteError, fmt.Sprintf("create dir for %s", path), err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return NewError(ArtifactWriteError, fmt.Sprintf("write %s", path), err)
	}
	return nil
}

// Diagnose reports the current URL, title and collected JS errors.
func (d *Chromedp) Diagnose(ctx context.Context) (Diagnostics, error) {
	runCtx, cancel := d.scope(ctx, 5*time.Second)
	defer cancel()

	var diag Diagnostics
	err := chromedp.Run(runCtx,
		chromedp.Location(&diag.URL),
		chromedp.Title(&diag.Title),
	)
	diag.JSErrors = d.errors.Errors()
	if err != nil {
		return diag, fmt.Errorf("read page state: %w", err)
	}
	return diag, nil
}

// Reset clears cookies and storage for the current origin so the next
// scenario starts signed out.
func (d *Chromedp) Reset(ctx context.Context) error {
	runCtx, cancel := d.scope(ctx, 10*time.Second)
	defer cancel()

	var loc string
	if err := chromedp.Run(runCtx, chromedp.Location(&loc)); err != nil {
		return fmt.Errorf("read location: %w", err)
	}

	actions := []chromedp.Action{network.ClearBrowserCookies()}
	if u, err := url.Parse(loc); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		origin := u.Scheme + "://" + u.Host
		actions = append(actions, storage.ClearDataForOrigin(origin, "all"))
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("clear session state: %w", err)
	}
	d.errors.Reset()
	return nil
}

// Close shuts the browser down.
func (d *Chromedp) Close() error {
	d.cancel()
	return nil
}
