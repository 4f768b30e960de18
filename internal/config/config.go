package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/bobmcallan/uiverify/internal/common"
)

// Config represents the harness configuration.
type Config struct {
	Target      TargetConfig         `toml:"target"`
	Browser     BrowserConfig        `toml:"browser"`
	Run         RunConfig            `toml:"run"`
	Credentials CredentialsConfig    `toml:"credentials"`
	Environment EnvironmentConfig    `toml:"environment"`
	MCP         MCPConfig            `toml:"mcp"`
	Logging     common.LoggingConfig `toml:"logging"`
}

// TargetConfig describes the web application under verification.
type TargetConfig struct {
	BaseURL          string `toml:"base_url"`
	WaitForReady     bool   `toml:"wait_for_ready"`
	ReadyTimeoutSecs int    `toml:"ready_timeout_seconds"`
}

// BrowserConfig selects and tunes the driver adapter.
type BrowserConfig struct {
	Driver          string `toml:"driver"` // "chromedp" or "playwright"
	Headless        bool   `toml:"headless"`
	RemoteURL       string `toml:"remote_url"` // DevTools websocket of an already running Chrome (chromedp only)
	ViewportWidth   int    `toml:"viewport_width"`
	ViewportHeight  int    `toml:"viewport_height"`
}

// RunConfig contains runner and collector settings.
type RunConfig struct {
	TimeoutMs              int      `toml:"timeout_ms"`
	ArtifactDir            string   `toml:"artifact_dir"`
	ScreenshotOnFailure    bool     `toml:"screenshot_on_failure"`
	ScreenshotFailureFatal bool     `toml:"screenshot_failure_fatal"`
	MaxAttempts            int      `toml:"max_attempts"`
	BackoffMs              int      `toml:"backoff_ms"`
	ScenarioTimeoutSecs    int      `toml:"scenario_timeout_seconds"`
	Workers                int      `toml:"workers"`
	Scenarios              []string `toml:"scenarios"`
	ScenarioFiles          []string `toml:"scenario_files"`
}

// CredentialsConfig holds the login used by the built-in scenarios.
type CredentialsConfig struct {
	Email    string `toml:"email"`
	Password string `toml:"password"`
}

// EnvironmentConfig optionally starts the target application in a container.
type EnvironmentConfig struct {
	Image              string            `toml:"image"`
	Port               string            `toml:"port"`
	Env                map[string]string `toml:"env"`
	StartupTimeoutSecs int               `toml:"startup_timeout_seconds"`
	HealthPath         string            `toml:"health_path"`
}

// MCPConfig contains settings for the uiverify-mcp server.
type MCPConfig struct {
	Name string `toml:"name"`
	Port string `toml:"port"`
}

// Timeout returns the default per-step timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Run.TimeoutMs) * time.Millisecond
}

// Backoff returns the initial retry backoff interval.
func (c *Config) Backoff() time.Duration {
	return time.Duration(c.Run.BackoffMs) * time.Millisecond
}

// ReadyTimeout returns how long to wait for the target to answer HTTP.
func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Target.ReadyTimeoutSecs) * time.Second
}

// ScenarioTimeout bounds a single scenario run. Zero disables the bound.
func (c *Config) ScenarioTimeout() time.Duration {
	return time.Duration(c.Run.ScenarioTimeoutSecs) * time.Second
}

// StartupTimeout bounds container start-up for the environment.
func (c *Config) StartupTimeout() time.Duration {
	return time.Duration(c.Environment.StartupTimeoutSecs) * time.Second
}

// Validate returns the list of configuration problems, empty when valid.
func (c *Config) Validate() []string {
	var issues []string

	if c.Target.BaseURL == "" {
		issues = append(issues, "target.base_url is required")
	} else if u, err := url.Parse(c.Target.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, fmt.Sprintf("target.base_url %q is not an absolute URL", c.Target.BaseURL))
	}

	switch strings.ToLower(c.Browser.Driver) {
	case "chromedp", "playwright":
	default:
		issues = append(issues, fmt.Sprintf("browser.driver %q must be chromedp or playwright", c.Browser.Driver))
	}
	if c.Browser.RemoteURL != "" && strings.ToLower(c.Browser.Driver) != "chromedp" {
		issues = append(issues, "browser.remote_url is only supported by the chromedp driver")
	}

	if c.Run.TimeoutMs <= 0 {
		issues = append(issues, "run.timeout_ms must be positive")
	}
	if c.Run.ArtifactDir == "" {
		issues = append(issues, "run.artifact_dir is required")
	}
	if c.Run.MaxAttempts < 1 {
		issues = append(issues, "run.max_attempts must be at least 1")
	}
	if c.Run.ScenarioTimeoutSecs < 0 {
		issues = append(issues, "run.scenario_timeout_seconds must not be negative")
	}
	if c.Run.Workers < 1 {
		issues = append(issues, "run.workers must be at least 1")
	}
	if c.Environment.Image != "" && c.Environment.Port == "" {
		issues = append(issues, "environment.port is required when environment.image is set")
	}

	return issues
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies UIVERIFY_* environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("UIVERIFY_BASE_URL"); v != "" {
		config.Target.BaseURL = v
	}
	if v := os.Getenv("UIVERIFY_ARTIFACT_DIR"); v != "" {
		config.Run.ArtifactDir = v
	}
	if v := os.Getenv("UIVERIFY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Run.TimeoutMs = n
		}
	}
	if v := os.Getenv("UIVERIFY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Run.Workers = n
		}
	}
	if v := os.Getenv("UIVERIFY_DRIVER"); v != "" {
		config.Browser.Driver = v
	}
	if v := os.Getenv("UIVERIFY_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Browser.Headless = b
		}
	}
	if v := os.Getenv("UIVERIFY_REMOTE_URL"); v != "" {
		config.Browser.RemoteURL = v
	}
	if v := os.Getenv("UIVERIFY_EMAIL"); v != "" {
		config.Credentials.Email = v
	}
	if v := os.Getenv("UIVERIFY_PASSWORD"); v != "" {
		config.Credentials.Password = v
	}
	if v := os.Getenv("UIVERIFY_APP_IMAGE"); v != "" {
		config.Environment.Image = v
	}
	if v := os.Getenv("UIVERIFY_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("UIVERIFY_MCP_PORT"); v != "" {
		config.MCP.Port = v
	}
}

// FlagOverrides carries command-line values. Zero values leave config untouched.
type FlagOverrides struct {
	BaseURL       string
	ArtifactDir   string
	TimeoutMs     int
	Driver        string
	Headless      *bool
	Workers       int
	Scenarios     []string
	ScenarioFiles []string
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, f FlagOverrides) {
	if f.BaseURL != "" {
		config.Target.BaseURL = f.BaseURL
	}
	if f.ArtifactDir != "" {
		config.Run.ArtifactDir = f.ArtifactDir
	}
	if f.TimeoutMs > 0 {
		config.Run.TimeoutMs = f.TimeoutMs
	}
	if f.Driver != "" {
		config.Browser.Driver = f.Driver
	}
	if f.Headless != nil {
		config.Browser.Headless = *f.Headless
	}
	if f.Workers > 0 {
		config.Run.Workers = f.Workers
	}
	if len(f.Scenarios) > 0 {
		config.Run.Scenarios = f.Scenarios
	}
	if len(f.ScenarioFiles) > 0 {
		config.Run.ScenarioFiles = append(config.Run.ScenarioFiles, f.ScenarioFiles...)
	}
}
