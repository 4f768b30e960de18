// Package app wires configuration into the driver factory, runner and
// collector.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bobmcallan/uiverify/internal/artifact"
	"github.com/bobmcallan/uiverify/internal/common"
	"github.com/bobmcallan/uiverify/internal/config"
	"github.com/bobmcallan/uiverify/internal/driver"
	"github.com/bobmcallan/uiverify/internal/environment"
	"github.com/bobmcallan/uiverify/internal/report"
	"github.com/bobmcallan/uiverify/internal/runner"
	"github.com/bobmcallan/uiverify/internal/scenario"
	"github.com/bobmcallan/uiverify/internal/scenarios"
)

// ErrSetup wraps failures that prevent a run from starting.
var ErrSetup = errors.New("setup failed")

// App holds the configured harness components.
type App struct {
	Config  *config.Config
	Logger  *common.Logger
	Factory driver.Factory

	mu  sync.Mutex
	env *environment.App
}

// New builds an App from cfg. A nil Factory is replaced by the configured
// browser adapter.
func New(cfg *config.Config, logger *common.Logger) (*App, error) {
	if issues := cfg.Validate(); len(issues) > 0 {
		return nil, fmt.Errorf("%w: invalid configuration: %v", ErrSetup, issues)
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Factory: driver.NewFactory(driver.Options{
			Name:           cfg.Browser.Driver,
			Headless:       cfg.Browser.Headless,
			RemoteURL:      cfg.Browser.RemoteURL,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			Logger:         logger,
		}),
	}

	logger.Info().
		Str("driver", cfg.Browser.Driver).
		Str("base_url", cfg.Target.BaseURL).
		Int("workers", cfg.Run.Workers).
		Msg("application initialization complete")
	return a, nil
}

// Credentials returns the login used by the built-in scenarios.
func (a *App) Credentials() scenarios.Credentials {
	return scenarios.Credentials{
		Email:    a.Config.Credentials.Email,
		Password: a.Config.Credentials.Password,
	}
}

// Scenarios returns the built-in scenarios followed by those from the
// configured scenario files, filtered by names. A nil names uses the
// configured filter.
func (a *App) Scenarios(names []string) ([]scenario.Scenario, error) {
	creds := a.Credentials()
	all := scenarios.All(creds)

	for _, path := range a.Config.Run.ScenarioFiles {
		loaded, err := scenario.LoadFile(path, scenarios.Fragments(creds))
		if err != nil {
			return nil, err
		}
		all = append(all, loaded...)
	}

	if names == nil {
		names = a.Config.Run.Scenarios
	}
	return scenario.Filter(all, names)
}

// Prepare makes the target reachable and returns its base URL. With an
// environment image the container is started once and reused by later runs.
func (a *App) Prepare(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg := a.Config
	if cfg.Environment.Image != "" {
		if a.env == nil {
			env, err := environment.Start(ctx, cfg.Environment, cfg.StartupTimeout(), a.Logger)
			if err != nil {
				return "", fmt.Errorf("%w: %w", ErrSetup, err)
			}
			a.env = env
		}
		return a.env.URL(), nil
	}

	if cfg.Target.WaitForReady {
		if err := environment.WaitReady(ctx, cfg.Target.BaseURL, cfg.ReadyTimeout(), a.Logger); err != nil {
			return "", fmt.Errorf("%w: %w", ErrSetup, err)
		}
	}
	return cfg.Target.BaseURL, nil
}

// RunOptions narrows a single run.
type RunOptions struct {
	// Names filters scenarios; nil uses the configured filter.
	Names []string
	// BaseURL overrides the prepared target.
	BaseURL string
	// Store receives the artifacts; nil creates a timestamped directory under
	// the configured artifact dir.
	Store *artifact.Store
}

// Run executes the selected scenarios and writes summary.md and report.json
// into the run directory. The report is nil when setup failed.
func (a *App) Run(ctx context.Context, opts RunOptions) (*report.RunReport, error) {
	selected, err := a.Scenarios(opts.Names)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		if baseURL, err = a.Prepare(ctx); err != nil {
			return nil, err
		}
	}

	store := opts.Store
	if store == nil {
		if store, err = artifact.NewStore(a.Config.Run.ArtifactDir, time.Now()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSetup, err)
		}
	}

	r, err := runner.New(runner.Config{
		BaseURL:                baseURL,
		DefaultTimeout:         a.Config.Timeout(),
		Artifacts:              store,
		ScreenshotOnFailure:    a.Config.Run.ScreenshotOnFailure,
		ScreenshotFailureFatal: a.Config.Run.ScreenshotFailureFatal,
		MaxAttempts:            a.Config.Run.MaxAttempts,
		Backoff:                a.Config.Backoff(),
		ScenarioTimeout:        a.Config.ScenarioTimeout(),
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	collector := report.NewCollector(r, a.Factory, a.Config.Run.Workers, a.Logger)
	rep, runErr := collector.Collect(ctx, selected)
	if rep == nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, runErr)
	}

	if _, err := rep.WriteMarkdown(store.Dir()); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to write summary")
	}
	if _, err := rep.WriteJSON(store.Dir()); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to write report")
	}
	a.mu.Lock()
	if a.env != nil {
		a.env.CollectLogs(store.Dir())
	}
	a.mu.Unlock()

	return rep, runErr
}

// Close tears down a started environment.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.env != nil {
		a.env.Cleanup()
		a.env = nil
	}
	return nil
}

// ExitCode maps a run outcome to the process exit code.
func ExitCode(rep *report.RunReport, err error) int {
	if errors.Is(err, ErrSetup) || report.IsSetupError(err) {
		return report.ExitSetup
	}
	if rep == nil {
		if err == nil {
			return report.ExitPass
		}
		return report.ExitSetup
	}
	if err != nil {
		return report.ExitFail
	}
	return rep.ExitCode()
}

// LogFilePath points the file writer at the run directory when file output is
// enabled and no explicit path is configured.
func LogFilePath(cfg *common.LoggingConfig, runDir string) {
	if cfg.FilePath == "" && slices.Contains(cfg.Outputs, "file") {
		cfg.FilePath = filepath.Join(runDir, "uiverify.log")
	}
}
