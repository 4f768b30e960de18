package main

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerTools registers the MCP tools on the server.
func registerTools(s *server.MCPServer, h *harness) {
	s.AddTool(createListScenariosTool(), handleListScenarios(h))
	s.AddTool(createRunScenariosTool(), handleRunScenarios(h))
	s.AddTool(createVersionTool(), handleVersion())
}

func createListScenariosTool() mcp.Tool {
	return mcp.NewTool("list_scenarios",
		mcp.WithDescription("List the UI verification scenarios that run_scenarios can execute, with a short description of each."),
	)
}

func createRunScenariosTool() mcp.Tool {
	return mcp.NewTool("run_scenarios",
		mcp.WithDescription("Run UI verification scenarios in a browser against the web application and return a pass/fail summary with failing steps and screenshot paths. The result is an error when any scenario fails."),
		mcp.WithArray("names", mcp.WithStringItems(), mcp.Description("Scenario names to run (default: all)")),
		mcp.WithString("base_url", mcp.Description("Base URL of the application (default: configured target)")),
	)
}

func createVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the uiverify MCP server version. Use this to verify connectivity."),
	)
}
