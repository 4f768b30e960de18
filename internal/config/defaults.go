package config

import "github.com/bobmcallan/uiverify/internal/common"

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			BaseURL:          "http://localhost:3000",
			WaitForReady:     true,
			ReadyTimeoutSecs: 60,
		},
		Browser: BrowserConfig{
			Driver:         "chromedp",
			Headless:       true,
			ViewportWidth:  1280,
			ViewportHeight: 720,
		},
		Run: RunConfig{
			TimeoutMs:           10000,
			ArtifactDir:         "verification",
			ScreenshotOnFailure: true,
			MaxAttempts:         1,
			BackoffMs:           250,
			ScenarioTimeoutSecs: 600,
			Workers:             1,
		},
		Credentials: CredentialsConfig{
			Email:    "test@test.com",
			Password: "Test123",
		},
		Environment: EnvironmentConfig{
			Port:               "3000/tcp",
			StartupTimeoutSecs: 120,
			HealthPath:         "/",
		},
		MCP: MCPConfig{
			Name: "uiverify",
			Port: "4243",
		},
		Logging: common.LoggingConfig{
			Level:   "info",
			Outputs: []string{"console"},
		},
	}
}
