package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/uiverify/internal/app"
	"github.com/bobmcallan/uiverify/internal/common"
	"github.com/bobmcallan/uiverify/internal/report"
	"github.com/bobmcallan/uiverify/internal/scenario"
)

// runner is the part of app.App the handlers use.
type runner interface {
	Scenarios(names []string) ([]scenario.Scenario, error)
	Run(ctx context.Context, opts app.RunOptions) (*report.RunReport, error)
}

// harness serializes runs so concurrent tool calls do not compete for
// browsers.
type harness struct {
	app    runner
	logger *common.Logger
	mu     sync.Mutex
}

func newHarness(a runner, logger *common.Logger) *harness {
	return &harness{app: a, logger: logger}
}

// --- Helpers ---

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}

// --- Handlers ---

func handleListScenarios(h *harness) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		all, err := h.app.Scenarios([]string{})
		if err != nil {
			return errorResult(fmt.Sprintf("Error: %v", err)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d scenarios:\n\n", len(all))
		for _, s := range all {
			fmt.Fprintf(&b, "- **%s** (%d steps): %s\n", s.Name, len(s.Steps), s.Description)
		}
		return textResult(b.String()), nil
	}
}

func handleRunScenarios(h *harness) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opts := app.RunOptions{
			Names:   request.GetStringSlice("names", []string{}),
			BaseURL: request.GetString("base_url", ""),
		}

		h.mu.Lock()
		defer h.mu.Unlock()

		h.logger.Info().Strs("names", opts.Names).Str("base_url", opts.BaseURL).Msg("run_scenarios")
		rep, err := h.app.Run(ctx, opts)
		if rep == nil {
			return errorResult(fmt.Sprintf("Run could not start: %v", err)), nil
		}

		var buf bytes.Buffer
		rep.WriteText(&buf)
		text := fmt.Sprintf("%s\n\n%s", rep.Describe(), buf.String())
		if err != nil {
			text += fmt.Sprintf("\nrun interrupted: %v\n", err)
		}

		if app.ExitCode(rep, err) != report.ExitPass {
			return errorResult(text), nil
		}
		return textResult(text), nil
	}
}

func handleVersion() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return textResult(fmt.Sprintf("uiverify-mcp %s", common.GetFullVersion())), nil
	}
}
