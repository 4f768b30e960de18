package driver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// JSErrorCollector listens for JS exceptions and console.error calls on a
// chromedp target. Attach it before the first navigation.
type JSErrorCollector struct {
	mu     sync.Mutex
	errors []string
}

// NewJSErrorCollector starts listening on the target bound to ctx.
func NewJSErrorCollector(ctx context.Context) *JSErrorCollector {
	c := &JSErrorCollector{}

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *runtime.EventExceptionThrown:
			desc := e.ExceptionDetails.Text
			if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
				desc = e.ExceptionDetails.Exception.Description
			}
			c.add(fmt.Sprintf("EXCEPTION: %s", desc))

		case *runtime.EventConsoleAPICalled:
			if e.Type != runtime.APITypeError {
				return
			}
			var parts []string
			for _, arg := range e.Args {
				if arg.Value != nil {
					parts = append(parts, string(arg.Value))
				} else if arg.Description != "" {
					parts = append(parts, arg.Description)
				}
			}
			if len(parts) > 0 {
				c.add(fmt.Sprintf("console.error: %s", strings.Join(parts, " ")))
			}
		}
	})

	return c
}

func (c *JSErrorCollector) add(msg string) {
	// Ignore noisy but harmless errors
	if strings.Contains(msg, "favicon") || strings.Contains(msg, "Content Security Policy") {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, msg)
}

// Errors returns a copy of the collected messages.
func (c *JSErrorCollector) Errors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.errors))
	copy(out, c.errors)
	return out
}

// Reset drops collected messages.
func (c *JSErrorCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = nil
}
