package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Target.BaseURL != "http://localhost:3000" {
		t.Errorf("expected default base url http://localhost:3000, got %s", cfg.Target.BaseURL)
	}
	if cfg.Run.ArtifactDir != "verification" {
		t.Errorf("expected default artifact dir verification, got %s", cfg.Run.ArtifactDir)
	}
	if cfg.Run.TimeoutMs != 10000 {
		t.Errorf("expected default timeout 10000ms, got %d", cfg.Run.TimeoutMs)
	}
	if cfg.Timeout() != 10*time.Second {
		t.Errorf("expected Timeout() 10s, got %v", cfg.Timeout())
	}
	if cfg.Browser.Driver != "chromedp" {
		t.Errorf("expected default driver chromedp, got %s", cfg.Browser.Driver)
	}
	if !cfg.Browser.Headless {
		t.Error("expected headless by default")
	}
	if cfg.Run.MaxAttempts != 1 {
		t.Errorf("expected no retries by default, got max_attempts=%d", cfg.Run.MaxAttempts)
	}
	if cfg.ScenarioTimeout() != 10*time.Minute {
		t.Errorf("expected ScenarioTimeout() 10m, got %v", cfg.ScenarioTimeout())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestNewDefaultConfig_IsValid(t *testing.T) {
	if issues := NewDefaultConfig().Validate(); len(issues) > 0 {
		t.Errorf("default config should be valid, got %v", issues)
	}
}

func TestLoadFromFiles_NoFiles(t *testing.T) {
	cfg, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles with no files should not error: %v", err)
	}
	if cfg.Run.TimeoutMs != 10000 {
		t.Errorf("expected default timeout 10000, got %d", cfg.Run.TimeoutMs)
	}
}

func TestLoadFromFiles_ValidTOML(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "test.toml")

	content := `
[target]
base_url = "http://meals.local:8080"

[browser]
driver = "playwright"
headless = false

[run]
timeout_ms = 2500
artifact_dir = "/tmp/shots"
max_attempts = 3
scenarios = ["login", "profile"]

[environment]
image = "meal-planner:test"
port = "3000/tcp"

[environment.env]
NEXT_PUBLIC_MODE = "test"

[logging]
level = "debug"
`
	if err := os.WriteFile(tomlPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFiles(tomlPath)
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}

	if cfg.Target.BaseURL != "http://meals.local:8080" {
		t.Errorf("expected base url override, got %s", cfg.Target.BaseURL)
	}
	if cfg.Browser.Driver != "playwright" {
		t.Errorf("expected driver playwright, got %s", cfg.Browser.Driver)
	}
	if cfg.Browser.Headless {
		t.Error("expected headless=false")
	}
	if cfg.Run.TimeoutMs != 2500 {
		t.Errorf("expected timeout 2500, got %d", cfg.Run.TimeoutMs)
	}
	if cfg.Run.MaxAttempts != 3 {
		t.Errorf("expected max_attempts 3, got %d", cfg.Run.MaxAttempts)
	}
	if len(cfg.Run.Scenarios) != 2 || cfg.Run.Scenarios[1] != "profile" {
		t.Errorf("expected scenarios [login profile], got %v", cfg.Run.Scenarios)
	}
	if cfg.Environment.Env["NEXT_PUBLIC_MODE"] != "test" {
		t.Errorf("expected environment env entry, got %v", cfg.Environment.Env)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadFromFiles_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "partial.toml")

	content := `
[run]
workers = 2
`
	if err := os.WriteFile(tomlPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFiles(tomlPath)
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}
	if cfg.Run.Workers != 2 {
		t.Errorf("expected workers 2, got %d", cfg.Run.Workers)
	}
	if cfg.Run.TimeoutMs != 10000 {
		t.Errorf("expected default timeout preserved, got %d", cfg.Run.TimeoutMs)
	}
	if cfg.Target.BaseURL != "http://localhost:3000" {
		t.Errorf("expected default base url preserved, got %s", cfg.Target.BaseURL)
	}
}

func TestLoadFromFiles_MultipleFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	local := filepath.Join(dir, "local.toml")

	if err := os.WriteFile(base, []byte("[run]\ntimeout_ms = 5000\nworkers = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(local, []byte("[run]\ntimeout_ms = 7000\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFiles(base, local)
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}
	if cfg.Run.TimeoutMs != 7000 {
		t.Errorf("later file should win, got timeout %d", cfg.Run.TimeoutMs)
	}
	if cfg.Run.Workers != 2 {
		t.Errorf("earlier file value should survive, got workers %d", cfg.Run.Workers)
	}
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles("/nonexistent/uiverify.toml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromFiles_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(tomlPath, []byte("[run\ntimeout_ms = "), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFromFiles(tomlPath)
	if err == nil {
		t.Fatal("expected error for invalid TOML")
	}
	if !strings.Contains(err.Error(), "file 1 of 1") {
		t.Errorf("error should identify the file position, got %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("UIVERIFY_BASE_URL", "http://staging:3000")
	t.Setenv("UIVERIFY_TIMEOUT_MS", "4000")
	t.Setenv("UIVERIFY_DRIVER", "playwright")
	t.Setenv("UIVERIFY_HEADLESS", "false")
	t.Setenv("UIVERIFY_EMAIL", "ci@test.com")
	t.Setenv("UIVERIFY_LOG_LEVEL", "debug")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Target.BaseURL != "http://staging:3000" {
		t.Errorf("expected base url from env, got %s", cfg.Target.BaseURL)
	}
	if cfg.Run.TimeoutMs != 4000 {
		t.Errorf("expected timeout 4000 from env, got %d", cfg.Run.TimeoutMs)
	}
	if cfg.Browser.Driver != "playwright" {
		t.Errorf("expected driver from env, got %s", cfg.Browser.Driver)
	}
	if cfg.Browser.Headless {
		t.Error("expected headless=false from env")
	}
	if cfg.Credentials.Email != "ci@test.com" {
		t.Errorf("expected email from env, got %s", cfg.Credentials.Email)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level from env, got %s", cfg.Logging.Level)
	}
}

func TestApplyEnvOverrides_InvalidNumbers(t *testing.T) {
	t.Setenv("UIVERIFY_TIMEOUT_MS", "soon")
	t.Setenv("UIVERIFY_WORKERS", "many")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Run.TimeoutMs != 10000 {
		t.Errorf("invalid timeout should be ignored, got %d", cfg.Run.TimeoutMs)
	}
	if cfg.Run.Workers != 1 {
		t.Errorf("invalid workers should be ignored, got %d", cfg.Run.Workers)
	}
}

func TestEnvOverridesFileConfig(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "env.toml")
	if err := os.WriteFile(tomlPath, []byte("[target]\nbase_url = \"http://file:1\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("UIVERIFY_BASE_URL", "http://env:2")

	cfg, err := LoadFromFiles(tomlPath)
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}
	if cfg.Target.BaseURL != "http://env:2" {
		t.Errorf("env should override file, got %s", cfg.Target.BaseURL)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := NewDefaultConfig()
	headless := false
	ApplyFlagOverrides(cfg, FlagOverrides{
		BaseURL:     "http://flag:9",
		ArtifactDir: "out",
		TimeoutMs:   1500,
		Headless:    &headless,
		Scenarios:   []string{"login"},
	})

	if cfg.Target.BaseURL != "http://flag:9" {
		t.Errorf("expected base url from flag, got %s", cfg.Target.BaseURL)
	}
	if cfg.Run.ArtifactDir != "out" {
		t.Errorf("expected artifact dir from flag, got %s", cfg.Run.ArtifactDir)
	}
	if cfg.Run.TimeoutMs != 1500 {
		t.Errorf("expected timeout from flag, got %d", cfg.Run.TimeoutMs)
	}
	if cfg.Browser.Headless {
		t.Error("expected headless=false from flag")
	}
	if len(cfg.Run.Scenarios) != 1 {
		t.Errorf("expected scenario filter from flag, got %v", cfg.Run.Scenarios)
	}
}

func TestApplyFlagOverrides_ZeroValuesNoOverride(t *testing.T) {
	cfg := NewDefaultConfig()
	ApplyFlagOverrides(cfg, FlagOverrides{})

	if cfg.Target.BaseURL != "http://localhost:3000" {
		t.Errorf("empty flag should not override base url, got %s", cfg.Target.BaseURL)
	}
	if cfg.Run.TimeoutMs != 10000 {
		t.Errorf("zero flag should not override timeout, got %d", cfg.Run.TimeoutMs)
	}
	if !cfg.Browser.Headless {
		t.Error("nil headless flag should not override")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing base url", func(c *Config) { c.Target.BaseURL = "" }, "target.base_url is required"},
		{"relative base url", func(c *Config) { c.Target.BaseURL = "/login" }, "not an absolute URL"},
		{"unknown driver", func(c *Config) { c.Browser.Driver = "selenium" }, "browser.driver"},
		{"remote url with playwright", func(c *Config) {
			c.Browser.Driver = "playwright"
			c.Browser.RemoteURL = "ws://localhost:9222"
		}, "remote_url"},
		{"zero timeout", func(c *Config) { c.Run.TimeoutMs = 0 }, "run.timeout_ms"},
		{"no artifact dir", func(c *Config) { c.Run.ArtifactDir = "" }, "run.artifact_dir"},
		{"zero attempts", func(c *Config) { c.Run.MaxAttempts = 0 }, "run.max_attempts"},
		{"negative scenario timeout", func(c *Config) { c.Run.ScenarioTimeoutSecs = -1 }, "run.scenario_timeout_seconds"},
		{"zero workers", func(c *Config) { c.Run.Workers = 0 }, "run.workers"},
		{"image without port", func(c *Config) {
			c.Environment.Image = "meal-planner:test"
			c.Environment.Port = ""
		}, "environment.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			issues := cfg.Validate()
			if len(issues) == 0 {
				t.Fatalf("expected validation issue containing %q", tt.want)
			}
			found := false
			for _, issue := range issues {
				if strings.Contains(issue, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected issue containing %q, got %v", tt.want, issues)
			}
		})
	}
}
