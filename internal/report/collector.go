// Package report runs a set of scenarios and aggregates their results.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/uiverify/internal/common"
	"github.com/bobmcallan/uiverify/internal/driver"
	"github.com/bobmcallan/uiverify/internal/runner"
	"github.com/bobmcallan/uiverify/internal/scenario"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Exit codes.
const (
	ExitPass  = 0
	ExitFail  = 1
	ExitSetup = 2
)

type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// RunReport is the aggregate of one run. It is not modified after Collect
// returns.
type RunReport struct {
	RunID       string                  `json:"runId"`
	BaseURL     string                  `json:"baseUrl"`
	ArtifactDir string                  `json:"artifactDir"`
	StartedAt   time.Time               `json:"startedAt"`
	FinishedAt  time.Time               `json:"finishedAt"`
	Scenarios   []runner.ScenarioResult `json:"scenarios"`
}

func (r *RunReport) Summary() Summary {
	s := Summary{Total: len(r.Scenarios)}
	for _, sc := range r.Scenarios {
		if sc.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// Passed reports whether every scenario passed.
func (r *RunReport) Passed() bool { return r.Summary().Failed == 0 }

// ExitCode maps the report to a process exit code.
func (r *RunReport) ExitCode() int {
	if r.Passed() {
		return ExitPass
	}
	return ExitFail
}

// Collector runs scenarios in registration order.
type Collector struct {
	runner  *runner.Runner
	factory driver.Factory
	workers int
	logger  *common.Logger
}

// NewCollector builds a collector. workers above 1 runs that many scenarios
// concurrently, each worker on its own driver from factory.
func NewCollector(r *runner.Runner, factory driver.Factory, workers int, logger *common.Logger) *Collector {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Collector{runner: r, factory: factory, workers: workers, logger: logger}
}

// IsSetupError reports whether err aborted the run before any scenario
// executed: an invalid scenario set or an unavailable driver.
func IsSetupError(err error) bool {
	return errors.Is(err, scenario.ErrInvalidScenario) ||
		errors.Is(err, runner.ErrInvalidConfig) ||
		errors.Is(err, driver.ErrDriverUnavailable)
}

// Collect validates scenarios, opens drivers and runs every scenario. Setup
// errors return a nil report. When ctx ends the run early the partial report
// is returned along with the error.
func (c *Collector) Collect(ctx context.Context, scenarios []scenario.Scenario) (*RunReport, error) {
	if err := scenario.ValidateAll(scenarios); err != nil {
		return nil, err
	}

	cfg := c.runner.Config()
	report := &RunReport{
		RunID:       uuid.New().String(),
		BaseURL:     cfg.BaseURL,
		ArtifactDir: cfg.Artifacts.Dir(),
		StartedAt:   time.Now(),
	}
	logger := c.logger.WithCorrelationId(report.RunID)

	workers := min(c.workers, len(scenarios))
	if workers == 0 {
		report.FinishedAt = time.Now()
		return report, nil
	}

	drivers, err := c.open(ctx, workers)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, d := range drivers {
			if cerr := d.Close(); cerr != nil {
				logger.Warn().Err(cerr).Msg("failed to close driver")
			}
		}
	}()

	logger.Info().Int("scenarios", len(scenarios)).Int("workers", workers).Str("base_url", cfg.BaseURL).Msg("run started")

	results := make([]*runner.ScenarioResult, len(scenarios))
	if workers == 1 {
		err = c.sequential(ctx, drivers[0], scenarios, results)
	} else {
		err = c.parallel(ctx, drivers, scenarios, results)
	}

	for _, res := range results {
		if res != nil {
			report.Scenarios = append(report.Scenarios, *res)
		}
	}
	report.FinishedAt = time.Now()

	sum := report.Summary()
	logger.Info().Int("passed", sum.Passed).Int("failed", sum.Failed).Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).Msg("run complete")
	return report, err
}

// open starts n drivers concurrently. If any fails the others are closed.
func (c *Collector) open(ctx context.Context, n int) ([]driver.Driver, error) {
	drivers := make([]driver.Driver, n)
	var g errgroup.Group
	for i := range drivers {
		g.Go(func() error {
			d, err := c.factory(ctx)
			if err != nil {
				if driver.CodeOf(err) == "" {
					err = driver.NewError(driver.DriverUnavailable, "open", err)
				}
				return err
			}
			drivers[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, d := range drivers {
			if d != nil {
				d.Close()
			}
		}
		return nil, err
	}
	return drivers, nil
}

func (c *Collector) sequential(ctx context.Context, d driver.Driver, scenarios []scenario.Scenario, results []*runner.ScenarioResult) error {
	for i, s := range scenarios {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			c.reset(ctx, d, s.Name)
		}
		res, err := c.runner.Run(ctx, s, d)
		results[i] = res
		if err != nil {
			return err
		}
	}
	return nil
}

// parallel hands scenarios to one goroutine per driver. Results are stored by
// index so the report keeps registration order.
func (c *Collector) parallel(ctx context.Context, drivers []driver.Driver, scenarios []scenario.Scenario, results []*runner.ScenarioResult) error {
	next := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(next)
		for i := range scenarios {
			select {
			case next <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for _, d := range drivers {
		g.Go(func() error {
			first := true
			for i := range next {
				if !first {
					c.reset(gctx, d, scenarios[i].Name)
				}
				first = false
				res, err := c.runner.Run(gctx, scenarios[i], d)
				results[i] = res
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Collector) reset(ctx context.Context, d driver.Driver, next string) {
	r, ok := d.(driver.Resetter)
	if !ok {
		return
	}
	if err := r.Reset(ctx); err != nil {
		c.logger.Warn().Str("scenario", next).Err(err).Msg("failed to reset session")
	}
}

// Describe is a one-line outcome for logs and tool responses.
func (r *RunReport) Describe() string {
	s := r.Summary()
	return fmt.Sprintf("%d scenarios, %d passed, %d failed", s.Total, s.Passed, s.Failed)
}
