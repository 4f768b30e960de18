// Package runner executes a scenario's steps against a driver.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bobmcallan/uiverify/internal/artifact"
	"github.com/bobmcallan/uiverify/internal/common"
	"github.com/bobmcallan/uiverify/internal/driver"
	"github.com/bobmcallan/uiverify/internal/scenario"
	"github.com/cenkalti/backoff/v4"
)

const (
	pollInterval = 100 * time.Millisecond
	locateSlice  = 500 * time.Millisecond
)

// ErrInvalidConfig is returned by New for an unusable Config.
var ErrInvalidConfig = errors.New("invalid runner config")

// Config controls how steps are executed.
type Config struct {
	BaseURL        string
	DefaultTimeout time.Duration
	Artifacts      *artifact.Store

	ScreenshotOnFailure    bool
	ScreenshotFailureFatal bool

	// MaxAttempts per step. Values below 1 mean one attempt.
	MaxAttempts int
	// Backoff is the first retry delay. It doubles on each retry.
	Backoff time.Duration

	// ScenarioTimeout bounds one Run. Zero means no bound beyond the step
	// timeouts.
	ScenarioTimeout time.Duration
}

// Runner runs scenarios. One Runner can serve many drivers concurrently.
type Runner struct {
	cfg    Config
	base   *url.URL
	logger *common.Logger
}

func New(cfg Config, logger *common.Logger) (*Runner, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q must be absolute", ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.DefaultTimeout <= 0 {
		return nil, fmt.Errorf("%w: default timeout must be positive", ErrInvalidConfig)
	}
	if cfg.Artifacts == nil {
		return nil, fmt.Errorf("%w: artifact store is required", ErrInvalidConfig)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Runner{cfg: cfg, base: base, logger: logger}, nil
}

// Config returns the runner configuration.
func (r *Runner) Config() Config { return r.cfg }

// Run executes s on d. An invalid scenario returns scenario.ErrInvalidScenario
// without touching d. Step failures are reported in the result, not as an
// error; the error is non-nil only when ctx ends the run early.
func (r *Runner) Run(ctx context.Context, s scenario.Scenario, d driver.Driver) (*ScenarioResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	res := &ScenarioResult{
		Name:        s.Name,
		Description: s.Description,
		Steps:       make([]StepResult, 0, len(s.Steps)),
	}
	r.logger.Info().Str("scenario", s.Name).Int("steps", len(s.Steps)).Msg("scenario started")

	runCtx := ctx
	if r.cfg.ScenarioTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.ScenarioTimeout)
		defer cancel()
	}

	for i, step := range s.Steps {
		sr := r.runStep(runCtx, s.Name, i, step, d)
		if sr.Outcome.Failed() && ctx.Err() == nil && runCtx.Err() != nil {
			sr.Outcome.Reason = fmt.Sprintf("scenario exceeded %s: %s", r.cfg.ScenarioTimeout, sr.Outcome.Reason)
			if sr.Outcome.Code == "" {
				sr.Outcome.Code = driver.AssertionTimeout
			}
		}
		res.Steps = append(res.Steps, sr)
		if sr.Artifact != "" {
			res.Artifacts = append(res.Artifacts, sr.Artifact)
		}
		if sr.Outcome.Failed() {
			idx := i
			res.FailedStep = &idx
			res.Error = fmt.Sprintf("step %d (%s): %s", i, step, sr.Outcome.Reason)
			r.captureFailure(ctx, s.Name, d, res)
			break
		}
	}

	res.Passed = res.FailedStep == nil
	res.Duration = time.Since(start)

	if res.Passed {
		r.logger.Info().Str("scenario", s.Name).Dur("elapsed", res.Duration).Msg("scenario passed")
	} else {
		r.logger.Warn().Str("scenario", s.Name).Int("step", *res.FailedStep).Str("error", res.Error).Msg("scenario failed")
	}

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("scenario %s interrupted: %w", s.Name, err)
	}
	return res, nil
}

func (r *Runner) runStep(ctx context.Context, name string, index int, step scenario.Step, d driver.Driver) StepResult {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}

	var artifactPath string
	if step.Kind == scenario.KindScreenshot {
		artifactPath = r.cfg.Artifacts.Screenshot(step.Value)
	}

	sr := StepResult{Index: index, Step: step}
	start := time.Now()

	op := func() error {
		sr.Attempts++
		r.logger.Debug().Str("scenario", name).Int("step", index).Int("attempt", sr.Attempts).Str("action", step.String()).Msg("executing step")
		err := r.execute(ctx, d, step, timeout, artifactPath)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Debug().Str("scenario", name).Int("step", index).Err(err).Dur("wait", wait).Msg("retrying step")
	}

	err := backoff.RetryNotify(op, r.retryPolicy(ctx), notify)
	sr.Duration = time.Since(start)

	if err == nil {
		sr.Outcome = Outcome{Success: true}
		sr.Artifact = artifactPath
		return sr
	}

	sr.Outcome = Outcome{Reason: err.Error(), Code: driver.CodeOf(err)}
	if step.Kind == scenario.KindScreenshot && !r.cfg.ScreenshotFailureFatal && ctx.Err() == nil {
		sr.Outcome.Waived = true
		r.logger.Warn().Str("scenario", name).Int("step", index).Err(err).Msg("screenshot failed, continuing")
		return sr
	}
	r.logger.Warn().Str("scenario", name).Int("step", index).Str("code", string(sr.Outcome.Code)).Err(err).Msg("step failed")
	return sr
}

// retryPolicy allows MaxAttempts-1 retries with exponential delays starting
// at Backoff. It stops early when ctx is done.
func (r *Runner) retryPolicy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.Backoff
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.cfg.MaxAttempts-1)), ctx)
}

func (r *Runner) execute(ctx context.Context, d driver.Driver, step scenario.Step, timeout time.Duration, artifactPath string) error {
	switch step.Kind {
	case scenario.KindNavigate:
		return d.Navigate(ctx, r.resolve(step.Value), timeout)

	case scenario.KindFill:
		el, err := d.Locate(ctx, *step.Target, timeout)
		if err != nil {
			return err
		}
		return d.Fill(ctx, el, step.Value, timeout)

	case scenario.KindClick:
		el, err := d.Locate(ctx, *step.Target, timeout)
		if err != nil {
			return err
		}
		return d.Click(ctx, el, driver.ClickOptions{Offset: step.Offset, Force: step.Force}, timeout)

	case scenario.KindPress:
		var el driver.Element
		if step.Target != nil {
			var err error
			if el, err = d.Locate(ctx, *step.Target, timeout); err != nil {
				return err
			}
		}
		return d.Press(ctx, el, step.Value, timeout)

	case scenario.KindSelect:
		el, err := d.Locate(ctx, *step.Target, timeout)
		if err != nil {
			return err
		}
		return d.Select(ctx, el, step.Value, timeout)

	case scenario.KindExpectVisible:
		return r.expectVisibility(ctx, d, *step.Target, true, timeout)

	case scenario.KindExpectHidden:
		return r.expectVisibility(ctx, d, *step.Target, false, timeout)

	case scenario.KindExpectURL:
		return r.expectURL(ctx, d, r.resolve(step.Value), timeout)

	case scenario.KindScreenshot:
		return d.Screenshot(ctx, artifactPath, timeout)

	case scenario.KindWait:
		return sleep(ctx, step.Duration)
	}
	return fmt.Errorf("%w: unknown step kind %q", scenario.ErrInvalidScenario, step.Kind)
}

// expectVisibility polls until the element at loc is visible (want) or
// hidden. An element that cannot be found counts as hidden.
func (r *Runner) expectVisibility(ctx context.Context, d driver.Driver, loc driver.Locator, want bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	state := "hidden"
	if want {
		state = "visible"
	}

	var last error
	for {
		slice := min(locateSlice, time.Until(deadline))
		if slice < pollInterval {
			slice = pollInterval
		}
		el, err := d.Locate(ctx, loc, slice)
		switch {
		case err == nil:
			visible, verr := d.IsVisible(ctx, el)
			if verr == nil && visible == want {
				return nil
			}
			last = verr
		case !want && errors.Is(err, driver.ErrElementNotFound):
			return nil
		default:
			last = err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			msg := fmt.Sprintf("expected %s to be %s within %s", loc, state, timeout)
			if last != nil && want {
				return driver.NewError(driver.AssertionTimeout, msg, last)
			}
			return driver.NewError(driver.AssertionTimeout, msg, nil)
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}

func (r *Runner) expectURL(ctx context.Context, d driver.Driver, want string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var got string
	for {
		current, err := d.URL(ctx)
		if err == nil {
			if current == want {
				return nil
			}
			got = current
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return driver.NewError(driver.AssertionTimeout,
				fmt.Sprintf("expected url %s within %s, got %s", want, timeout, got), err)
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}

// captureFailure records a failure screenshot and page diagnostics. It uses
// a context detached from cancellation so that an interrupted run still
// leaves evidence behind.
func (r *Runner) captureFailure(ctx context.Context, name string, d driver.Driver, res *ScenarioResult) {
	diagCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.DefaultTimeout)
	defer cancel()

	if r.cfg.ScreenshotOnFailure {
		path := r.cfg.Artifacts.Screenshot(name + "-failure")
		if err := d.Screenshot(diagCtx, path, r.cfg.DefaultTimeout); err != nil {
			r.logger.Warn().Str("scenario", name).Err(err).Msg("failure screenshot not captured")
		} else {
			res.Artifacts = append(res.Artifacts, path)
		}
	}

	if dg, ok := d.(driver.Diagnoser); ok {
		diag, err := dg.Diagnose(diagCtx)
		if err != nil {
			r.logger.Warn().Str("scenario", name).Err(err).Msg("diagnostics not captured")
			return
		}
		res.Diagnostics = &diag
	}
}

// resolve makes target absolute against the base URL.
func (r *Runner) resolve(target string) string {
	ref, err := url.Parse(target)
	if err != nil {
		return target
	}
	return r.base.ResolveReference(ref).String()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
