package driver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/bobmcallan/uiverify/internal/common"
)

type playwrightElement struct {
	loc     Locator
	locator playwright.Locator
}

func (e *playwrightElement) Locator() Locator { return e.loc }

// Playwright drives Chromium through playwright-go. The Playwright driver
// and browsers must already be installed (playwright.Install).
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	opts    Options
	logger  *common.Logger

	mu       sync.Mutex
	jsErrors []string
}

// NewPlaywright starts Playwright, launches Chromium and opens one page.
func NewPlaywright(opts Options) (*Playwright, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, NewError(DriverUnavailable, "start playwright", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, NewError(DriverUnavailable, "launch chromium", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = common.NewSilentLogger()
	}

	p := &Playwright{pw: pw, browser: browser, opts: opts, logger: logger}
	if err := p.openPage(); err != nil {
		browser.Close()
		pw.Stop()
		return nil, NewError(DriverUnavailable, "open page", err)
	}
	logger.Debug().Bool("headless", opts.Headless).Msg("playwright session started")
	return p, nil
}

func (p *Playwright) openPage() error {
	contextOpts := playwright.BrowserNewContextOptions{}
	if p.opts.ViewportWidth > 0 && p.opts.ViewportHeight > 0 {
		contextOpts.Viewport = &playwright.Size{
			Width:  p.opts.ViewportWidth,
			Height: p.opts.ViewportHeight,
		}
	}
	bctx, err := p.browser.NewContext(contextOpts)
	if err != nil {
		return fmt.Errorf("could not create context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return fmt.Errorf("could not create page: %w", err)
	}

	page.OnConsole(func(msg playwright.ConsoleMessage) {
		if msg.Type() == "error" {
			p.addJSError("console.error: " + msg.Text())
		}
	})
	page.OnPageError(func(err error) {
		p.addJSError("EXCEPTION: " + err.Error())
	})

	p.bctx = bctx
	p.page = page
	return nil
}

func (p *Playwright) addJSError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jsErrors = append(p.jsErrors, msg)
}

// ready reports DriverUnavailable once the page is gone, for example after a
// Reset that could not open a new one.
func (p *Playwright) ready(op string) error {
	if p.page == nil {
		return NewError(DriverUnavailable, op, errors.New("no open page"))
	}
	return nil
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *Playwright) element(el Element) (*playwrightElement, error) {
	pe, ok := el.(*playwrightElement)
	if !ok || pe == nil {
		return nil, NewError(ElementNotFound, "resolve handle", errors.New("element handle does not belong to this driver"))
	}
	return pe, nil
}

// build translates loc into a playwright locator rooted at the page or at
// the scope locator.
func (p *Playwright) build(loc Locator) (playwright.Locator, error) {
	var scope playwright.Locator
	if loc.Within != nil {
		parent, err := p.build(*loc.Within)
		if err != nil {
			return nil, err
		}
		scope = parent
	}

	var name interface{}
	switch {
	case loc.NamePattern != "":
		re, err := regexp.Compile(loc.NamePattern)
		if err != nil {
			return nil, err
		}
		name = re
	case loc.Name != "":
		name = loc.Name
	}

	var out playwright.Locator
	switch {
	case loc.Role != "" && scope == nil:
		out = p.page.GetByRole(playwright.AriaRole(loc.Role), playwright.PageGetByRoleOptions{Name: name, Exact: playwright.Bool(loc.Exact)})
	case loc.Role != "":
		out = scope.GetByRole(playwright.AriaRole(loc.Role), playwright.LocatorGetByRoleOptions{Name: name, Exact: playwright.Bool(loc.Exact)})
	case loc.Label != "" && scope == nil:
		out = p.page.GetByLabel(loc.Label, playwright.PageGetByLabelOptions{Exact: playwright.Bool(loc.Exact)})
	case loc.Label != "":
		out = scope.GetByLabel(loc.Label, playwright.LocatorGetByLabelOptions{Exact: playwright.Bool(loc.Exact)})
	case loc.TestID != "" && scope == nil:
		out = p.page.GetByTestId(loc.TestID)
	case loc.TestID != "":
		out = scope.GetByTestId(loc.TestID)
	default:
		return nil, fmt.Errorf("empty locator")
	}
	return out.Nth(loc.Nth), nil
}

// Navigate loads url and waits for the load event.
func (p *Playwright) Navigate(_ context.Context, url string, timeout time.Duration) error {
	if err := p.ready("navigate"); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   ms(timeout),
	})
	if err != nil {
		return NewError(NavigationTimeout, fmt.Sprintf("navigate %s", url), err)
	}
	return nil
}

// Locate waits until loc is attached to the DOM.
func (p *Playwright) Locate(_ context.Context, loc Locator, timeout time.Duration) (Element, error) {
	if err := p.ready("locate"); err != nil {
		return nil, err
	}
	l, err := p.build(loc)
	if err != nil {
		return nil, NewError(ElementNotFound, fmt.Sprintf("locate %s", loc), err)
	}
	err = l.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: ms(timeout),
	})
	if err != nil {
		return nil, NewError(ElementNotFound, fmt.Sprintf("locate %s", loc), err)
	}
	return &playwrightElement{loc: loc, locator: l}, nil
}

// interactionCode tells a missing element apart from one that did not
// become actionable in time.
func (p *Playwright) interactionCode(pe *playwrightElement, err error) Code {
	if errors.Is(err, playwright.ErrTimeout) {
		if n, cerr := pe.locator.Count(); cerr == nil && n == 0 {
			return ElementNotFound
		}
	}
	return NotInteractable
}

func (p *Playwright) Fill(_ context.Context, el Element, text string, timeout time.Duration) error {
	pe, err := p.element(el)
	if err != nil {
		return err
	}
	if err := pe.locator.Fill(text, playwright.LocatorFillOptions{Timeout: ms(timeout)}); err != nil {
		return NewError(p.interactionCode(pe, err), fmt.Sprintf("fill %s", pe.loc), err)
	}
	return nil
}

func (p *Playwright) Click(_ context.Context, el Element, opts ClickOptions, timeout time.Duration) error {
	pe, err := p.element(el)
	if err != nil {
		return err
	}
	clickOpts := playwright.LocatorClickOptions{
		Force:   playwright.Bool(opts.Force),
		Timeout: ms(timeout),
	}
	if opts.Offset != nil {
		clickOpts.Position = &playwright.Position{X: opts.Offset.X, Y: opts.Offset.Y}
	}
	if err := pe.locator.Click(clickOpts); err != nil {
		return NewError(p.interactionCode(pe, err), fmt.Sprintf("click %s", pe.loc), err)
	}
	return nil
}

func (p *Playwright) Press(_ context.Context, el Element, key string, timeout time.Duration) error {
	if el == nil {
		if err := p.ready("press"); err != nil {
			return err
		}
		if err := p.page.Keyboard().Press(key); err != nil {
			return NewError(NotInteractable, fmt.Sprintf("press %s", key), err)
		}
		return nil
	}
	pe, err := p.element(el)
	if err != nil {
		return err
	}
	if err := pe.locator.Press(key, playwright.LocatorPressOptions{Timeout: ms(timeout)}); err != nil {
		return NewError(p.interactionCode(pe, err), fmt.Sprintf("press %s on %s", key, pe.loc), err)
	}
	return nil
}

func (p *Playwright) Select(_ context.Context, el Element, value string, timeout time.Duration) error {
	pe, err := p.element(el)
	if err != nil {
		return err
	}
	_, err = pe.locator.SelectOption(
		playwright.SelectOptionValues{Values: &[]string{value}},
		playwright.LocatorSelectOptionOptions{Timeout: ms(timeout)},
	)
	if err != nil {
		return NewError(p.interactionCode(pe, err), fmt.Sprintf("select %q on %s", value, pe.loc), err)
	}
	return nil
}

func (p *Playwright) IsVisible(_ context.Context, el Element) (bool, error) {
	pe, err := p.element(el)
	if err != nil {
		return false, err
	}
	visible, err := pe.locator.IsVisible()
	if err != nil {
		return false, NewError(ElementNotFound, fmt.Sprintf("visibility of %s", pe.loc), err)
	}
	return visible, nil
}

func (p *Playwright) URL(_ context.Context) (string, error) {
	if err := p.ready("read location"); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

func (p *Playwright) Screenshot(_ context.Context, path string, timeout time.Duration) error {
	if err := p.ready("screenshot"); err != nil {
		return err
	}
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
		Timeout:  ms(timeout),
	})
	if err != nil {
		return NewError(ArtifactWriteError, fmt.Sprintf("write %s", path), err)
	}
	return nil
}

// Diagnose reports the current URL, title and collected JS errors.
func (p *Playwright) Diagnose(_ context.Context) (Diagnostics, error) {
	if err := p.ready("diagnose"); err != nil {
		return Diagnostics{}, err
	}
	p.mu.Lock()
	jsErrors := make([]string, len(p.jsErrors))
	copy(jsErrors, p.jsErrors)
	p.mu.Unlock()

	diag := Diagnostics{URL: p.page.URL(), JSErrors: jsErrors}
	title, err := p.page.Title()
	if err != nil {
		return diag, fmt.Errorf("read title: %w", err)
	}
	diag.Title = title
	return diag, nil
}

// Reset replaces the browser context, dropping cookies and storage.
// A failure to open the replacement page leaves the driver unusable, and
// every later call reports DriverUnavailable.
func (p *Playwright) Reset(_ context.Context) error {
	if p.browser == nil {
		return NewError(DriverUnavailable, "reset", errors.New("browser is not running"))
	}
	if p.bctx != nil {
		if err := p.bctx.Close(); err != nil {
			return fmt.Errorf("close context: %w", err)
		}
	}
	p.bctx, p.page = nil, nil
	p.mu.Lock()
	p.jsErrors = nil
	p.mu.Unlock()
	if err := p.openPage(); err != nil {
		return NewError(DriverUnavailable, "reset", err)
	}
	return nil
}

func (p *Playwright) Close() error {
	var errs []error
	if p.bctx != nil {
		errs = append(errs, p.bctx.Close())
	}
	if p.browser != nil {
		errs = append(errs, p.browser.Close())
	}
	if p.pw != nil {
		errs = append(errs, p.pw.Stop())
	}
	return errors.Join(errs...)
}
