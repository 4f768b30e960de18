package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/uiverify/internal/driver"
)

// MaxWait bounds a Wait step.
const MaxWait = 30 * time.Second

// Kind identifies what a Step does.
type Kind string

const (
	KindNavigate      Kind = "navigate"
	KindFill          Kind = "fill"
	KindClick         Kind = "click"
	KindPress         Kind = "press"
	KindSelect        Kind = "select"
	KindExpectVisible Kind = "expect_visible"
	KindExpectHidden  Kind = "expect_hidden"
	KindExpectURL     Kind = "expect_url"
	KindScreenshot    Kind = "screenshot"
	KindWait          Kind = "wait"
)

// Step is one declarative unit of a scenario. Build steps with the
// constructor functions; a Step is treated as read-only once built.
type Step struct {
	Kind     Kind            `json:"kind"`
	Target   *driver.Locator `json:"target,omitempty"`
	Value    string          `json:"value,omitempty"`
	Duration time.Duration   `json:"duration,omitempty"`
	Timeout  time.Duration   `json:"timeout,omitempty"`
	Offset   *driver.Point   `json:"offset,omitempty"`
	Force    bool            `json:"force,omitempty"`
}

func target(loc driver.Locator) *driver.Locator { return &loc }

// Navigate loads url, absolute or relative to the base URL.
func Navigate(url string) Step { return Step{Kind: KindNavigate, Value: url} }

// Fill types text into the element at loc.
func Fill(loc driver.Locator, text string) Step {
	return Step{Kind: KindFill, Target: target(loc), Value: text}
}

// Click clicks the centre of the element at loc.
func Click(loc driver.Locator) Step { return Step{Kind: KindClick, Target: target(loc)} }

// ClickAt clicks at offset inside the element's box. force skips the
// actionability check, which is needed for backdrops covered by content.
func ClickAt(loc driver.Locator, offset driver.Point, force bool) Step {
	return Step{Kind: KindClick, Target: target(loc), Offset: &offset, Force: force}
}

// Press sends key to the page.
func Press(key string) Step { return Step{Kind: KindPress, Value: key} }

// PressOn sends key to the element at loc.
func PressOn(loc driver.Locator, key string) Step {
	return Step{Kind: KindPress, Target: target(loc), Value: key}
}

// Select chooses the option with value in the element at loc.
func Select(loc driver.Locator, value string) Step {
	return Step{Kind: KindSelect, Target: target(loc), Value: value}
}

func ExpectVisible(loc driver.Locator) Step {
	return Step{Kind: KindExpectVisible, Target: target(loc)}
}

func ExpectHidden(loc driver.Locator) Step {
	return Step{Kind: KindExpectHidden, Target: target(loc)}
}

// ExpectURL asserts the current URL equals url, resolved against the base URL.
func ExpectURL(url string) Step { return Step{Kind: KindExpectURL, Value: url} }

// Screenshot captures the page to an artifact called name.
func Screenshot(name string) Step { return Step{Kind: KindScreenshot, Value: name} }

// Wait pauses for d.
func Wait(d time.Duration) Step { return Step{Kind: KindWait, Duration: d} }

// WithTimeout returns a copy of s with its own timeout.
func (s Step) WithTimeout(d time.Duration) Step {
	s.Timeout = d
	return s
}

// Validate checks the step is well formed.
func (s Step) Validate() error {
	needsTarget := false
	needsValue := false
	switch s.Kind {
	case KindNavigate, KindExpectURL, KindScreenshot, KindPress:
		needsValue = true
	case KindFill, KindSelect:
		needsTarget, needsValue = true, true
	case KindClick, KindExpectVisible, KindExpectHidden:
		needsTarget = true
	case KindWait:
		if s.Duration <= 0 || s.Duration > MaxWait {
			return fmt.Errorf("wait duration %s must be in (0, %s]", s.Duration, MaxWait)
		}
	case "":
		return fmt.Errorf("step kind is required")
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}

	if needsTarget && s.Target == nil {
		return fmt.Errorf("%s requires a target", s.Kind)
	}
	if s.Target != nil {
		if err := s.Target.Validate(); err != nil {
			return fmt.Errorf("%s target: %w", s.Kind, err)
		}
	}
	if needsValue && strings.TrimSpace(s.Value) == "" {
		return fmt.Errorf("%s requires a value", s.Kind)
	}
	if s.Offset != nil && s.Kind != KindClick {
		return fmt.Errorf("offset only applies to click")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// String renders the step for logs and summaries.
func (s Step) String() string {
	var b strings.Builder
	b.WriteString(string(s.Kind))
	if s.Target != nil {
		b.WriteString(" ")
		b.WriteString(s.Target.String())
	}
	switch {
	case s.Kind == KindWait:
		fmt.Fprintf(&b, " %s", s.Duration)
	case s.Kind == KindFill && s.Value != "":
		b.WriteString(` "***"`)
	case s.Value != "":
		fmt.Fprintf(&b, " %q", s.Value)
	}
	if s.Offset != nil {
		fmt.Fprintf(&b, " at (%g,%g)", s.Offset.X, s.Offset.Y)
	}
	if s.Force {
		b.WriteString(" force")
	}
	return b.String()
}
