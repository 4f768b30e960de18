package runner

import (
	"time"

	"github.com/bobmcallan/uiverify/internal/driver"
	"github.com/bobmcallan/uiverify/internal/scenario"
)

// Outcome is the result of one step. A zero Code on failure means the error
// did not come from the driver taxonomy, for example a cancelled run.
type Outcome struct {
	Success bool        `json:"success"`
	Reason  string      `json:"reason,omitempty"`
	Code    driver.Code `json:"code,omitempty"`
	// Waived marks a failure that does not affect the scenario outcome.
	Waived bool `json:"waived,omitempty"`
}

// Failed reports whether the outcome counts against the scenario.
func (o Outcome) Failed() bool { return !o.Success && !o.Waived }

type StepResult struct {
	Index    int           `json:"index"`
	Step     scenario.Step `json:"step"`
	Outcome  Outcome       `json:"outcome"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Artifact string        `json:"artifact,omitempty"`
}

type ScenarioResult struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Steps       []StepResult        `json:"steps"`
	Passed      bool                `json:"passed"`
	Artifacts   []string            `json:"artifacts,omitempty"`
	FailedStep  *int                `json:"failedStep,omitempty"`
	Error       string              `json:"error,omitempty"`
	Diagnostics *driver.Diagnostics `json:"diagnostics,omitempty"`
	Duration    time.Duration       `json:"duration"`
}

// Failure returns the failing step result, or nil when the scenario passed.
func (r *ScenarioResult) Failure() *StepResult {
	if r.FailedStep == nil {
		return nil
	}
	for i := range r.Steps {
		if r.Steps[i].Index == *r.FailedStep {
			return &r.Steps[i]
		}
	}
	return nil
}
