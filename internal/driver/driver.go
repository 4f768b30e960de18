// Package driver isolates the harness from the browser automation technology.
// Every adapter translates its own failures into *Error so that callers only
// ever see the harness taxonomy.
package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/uiverify/internal/common"
)

// Element is an opaque handle to a located element. Handles are only valid
// for the driver that produced them.
type Element interface {
	Locator() Locator
}

// Point is an offset in CSS pixels from the top-left corner of an element.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// ClickOptions tunes a click.
type ClickOptions struct {
	Offset *Point
	Force  bool
}

// Driver is the browser capability the runner consumes.
type Driver interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Locate(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
	Fill(ctx context.Context, el Element, text string, timeout time.Duration) error
	Click(ctx context.Context, el Element, opts ClickOptions, timeout time.Duration) error
	// Press sends key to el, or to the page when el is nil.
	Press(ctx context.Context, el Element, key string, timeout time.Duration) error
	Select(ctx context.Context, el Element, value string, timeout time.Duration) error
	IsVisible(ctx context.Context, el Element) (bool, error)
	URL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, path string, timeout time.Duration) error
	Close() error
}

// Diagnostics is the page state captured when a scenario fails.
type Diagnostics struct {
	URL      string   `json:"url,omitempty"`
	Title    string   `json:"title,omitempty"`
	JSErrors []string `json:"jsErrors,omitempty"`
}

// Diagnoser is implemented by drivers that can report page state.
type Diagnoser interface {
	Diagnose(ctx context.Context) (Diagnostics, error)
}

// Resetter is implemented by drivers that can clear session state
// (cookies, storage) between scenarios sharing one session.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Options configures Open.
type Options struct {
	Name           string // "chromedp" (default) or "playwright"
	Headless       bool
	RemoteURL      string
	ViewportWidth  int
	ViewportHeight int
	Logger         *common.Logger
}

// Factory opens a fresh Driver. The collector calls it once per session.
type Factory func(ctx context.Context) (Driver, error)

// Open starts the adapter selected by opts.Name. A browser that cannot be
// started is reported as DriverUnavailable.
func Open(ctx context.Context, opts Options) (Driver, error) {
	if opts.Logger == nil {
		opts.Logger = common.NewSilentLogger()
	}
	switch strings.ToLower(opts.Name) {
	case "", "chromedp":
		return NewChromedp(ctx, opts)
	case "playwright":
		return NewPlaywright(opts)
	}
	return nil, NewError(DriverUnavailable, "open", fmt.Errorf("unknown driver %q", opts.Name))
}

// NewFactory returns a Factory bound to opts.
func NewFactory(opts Options) Factory {
	return func(ctx context.Context) (Driver, error) {
		return Open(ctx, opts)
	}
}
