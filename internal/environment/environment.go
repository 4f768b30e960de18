// Package environment brings up the web application under verification,
// either from a container image or by waiting for an existing server.
package environment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bobmcallan/uiverify/internal/common"
	"github.com/bobmcallan/uiverify/internal/config"
)

// App is a target application started in a container.
type App struct {
	container testcontainers.Container
	image     string
	url       string
	logger    *common.Logger
}

// URL returns the base URL of the running application.
func (a *App) URL() string {
	return a.url
}

// Start runs cfg.Image and waits until cfg.HealthPath answers HTTP on
// cfg.Port.
func Start(ctx context.Context, cfg config.EnvironmentConfig, startup time.Duration, logger *common.Logger) (*App, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("environment image is not configured")
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}

	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/"
	}

	logger.Info().Str("image", cfg.Image).Str("port", cfg.Port).Msg("starting application container")

	ctr, err := testcontainers.Run(ctx, cfg.Image,
		testcontainers.WithExposedPorts(cfg.Port),
		testcontainers.WithEnv(cfg.Env),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP(healthPath).WithPort(nat.Port(cfg.Port)).WithStartupTimeout(startup),
		),
	)
	if err != nil {
		if ctr != nil {
			ctr.Terminate(context.Background())
		}
		return nil, fmt.Errorf("start %s: %w", cfg.Image, err)
	}

	mappedPort, err := ctr.MappedPort(ctx, nat.Port(cfg.Port))
	if err != nil {
		ctr.Terminate(context.Background())
		return nil, fmt.Errorf("get mapped port: %w", err)
	}
	host, err := ctr.Host(ctx)
	if err != nil {
		ctr.Terminate(context.Background())
		return nil, fmt.Errorf("get container host: %w", err)
	}

	app := &App{
		container: ctr,
		image:     cfg.Image,
		url:       fmt.Sprintf("http://%s:%s", host, mappedPort.Port()),
		logger:    logger,
	}
	logger.Info().Str("url", app.url).Msg("application container ready")
	return app, nil
}

// CollectLogs saves the container output to dir/app.log.
func (a *App) CollectLogs(dir string) {
	if a == nil || a.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reader, err := a.container.Logs(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to read container logs")
		return
	}
	defer reader.Close()

	logs, err := io.ReadAll(reader)
	if err != nil {
		return
	}
	os.MkdirAll(dir, 0755)
	if err := os.WriteFile(filepath.Join(dir, "app.log"), logs, 0644); err != nil {
		a.logger.Warn().Err(err).Msg("failed to write container logs")
	}
}

// Cleanup terminates the container. It uses a fresh context in case the run
// context has already expired.
func (a *App) Cleanup() {
	if a == nil || a.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.container.Terminate(ctx); err != nil {
		a.logger.Warn().Err(err).Str("image", a.image).Msg("failed to terminate container")
	}
}

// WaitReady polls baseURL until it answers with a non-5xx status or timeout
// elapses.
func WaitReady(ctx context.Context, baseURL string, timeout time.Duration, logger *common.Logger) error {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	client := &http.Client{Timeout: 5 * time.Second}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = timeout

	attempts := 0
	ping := func() error {
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}

	start := time.Now()
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("%s not ready after %s: %w", baseURL, time.Since(start).Round(time.Millisecond), err)
	}
	logger.Debug().Str("url", baseURL).Int("attempts", attempts).Msg("target ready")
	return nil
}
