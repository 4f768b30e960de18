package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/bobmcallan/uiverify/internal/app"
	"github.com/bobmcallan/uiverify/internal/common"
	"github.com/bobmcallan/uiverify/internal/config"
	"github.com/bobmcallan/uiverify/internal/driver"
	"github.com/bobmcallan/uiverify/internal/driver/drivertest"
	"github.com/bobmcallan/uiverify/internal/report"
	"github.com/bobmcallan/uiverify/internal/scenario"
	"github.com/bobmcallan/uiverify/internal/scenarios"
)

const testBase = "http://localhost:3000"

func init() {
	color.NoColor = true
}

func testHarness(t *testing.T, password string) *harness {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Target.WaitForReady = false
	cfg.Run.ArtifactDir = t.TempDir()
	cfg.Run.TimeoutMs = 300
	cfg.Credentials.Password = password

	a, err := app.New(cfg, common.NewSilentLogger())
	if err != nil {
		t.Fatal(err)
	}
	a.Factory = func(ctx context.Context) (driver.Driver, error) {
		return drivertest.New().
			OnNavigate(testBase+scenarios.LoginPath, func(p *drivertest.Page) {
				p.Show(scenarios.EmailField)
				p.Show(scenarios.PasswordField)
				p.Show(scenarios.LoginButton)
			}).
			OnClick(scenarios.LoginButton, func(p *drivertest.Page) {
				if p.Values[scenarios.PasswordField.String()] == "Test123" {
					p.URL = testBase + scenarios.HomePath
				}
			}), nil
	}
	return newHarness(a, common.NewSilentLogger())
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty result")
	}
	return result.Content[0].(mcp.TextContent).Text
}

func TestHandleListScenarios(t *testing.T) {
	handler := handleListScenarios(testHarness(t, "Test123"))

	result, err := handler(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got error: %v", result.Content)
	}
	text := resultText(t, result)
	for _, name := range []string{"login", "meal-favorite-toggle", "modal-close-backdrop"} {
		if !strings.Contains(text, "**"+name+"**") {
			t.Errorf("list should contain %s:\n%s", name, text)
		}
	}
}

func TestHandleRunScenarios_Pass(t *testing.T) {
	handler := handleRunScenarios(testHarness(t, "Test123"))

	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{
		"names":    []interface{}{"login"},
		"base_url": testBase,
	}

	result, err := handler(context.Background(), request)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got error: %v", result.Content)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "1 scenarios, 1 passed, 0 failed") || !strings.Contains(text, "PASS  login") {
		t.Errorf("unexpected summary:\n%s", text)
	}
}

func TestHandleRunScenarios_FailureIsError(t *testing.T) {
	handler := handleRunScenarios(testHarness(t, "wrong"))

	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{
		"names":    []interface{}{"login"},
		"base_url": testBase,
	}

	result, _ := handler(context.Background(), request)
	if !result.IsError {
		t.Fatal("a failing scenario should mark the result as an error")
	}
	text := resultText(t, result)
	if !strings.Contains(text, "FAIL  login") || !strings.Contains(text, "AssertionTimeout") {
		t.Errorf("failure details missing:\n%s", text)
	}
}

func TestHandleRunScenarios_UnknownName(t *testing.T) {
	handler := handleRunScenarios(testHarness(t, "Test123"))

	request := mcp.CallToolRequest{}
	request.Params.Arguments = map[string]interface{}{
		"names": []interface{}{"nope"},
	}

	result, _ := handler(context.Background(), request)
	if !result.IsError || !strings.Contains(resultText(t, result), "nope") {
		t.Fatalf("expected setup error naming the scenario, got %v", result.Content)
	}
}

type stubRunner struct{ err error }

func (s stubRunner) Scenarios(names []string) ([]scenario.Scenario, error) { return nil, s.err }
func (s stubRunner) Run(ctx context.Context, opts app.RunOptions) (*report.RunReport, error) {
	return nil, s.err
}

func TestHandleListScenarios_Error(t *testing.T) {
	h := newHarness(stubRunner{err: errors.New("bad scenarios file")}, common.NewSilentLogger())

	result, _ := handleListScenarios(h)(context.Background(), mcp.CallToolRequest{})
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestHandleVersion(t *testing.T) {
	result, _ := handleVersion()(context.Background(), mcp.CallToolRequest{})
	if !strings.Contains(resultText(t, result), "uiverify-mcp") {
		t.Error("version should name the server")
	}
}
