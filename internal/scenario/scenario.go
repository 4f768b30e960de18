// Package scenario defines the declarative verification model: a Scenario is
// a named, ordered list of Steps run against one browser session.
package scenario

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidScenario marks a harness configuration error. It is returned
// before any browser interaction takes place.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is a named, non-empty sequence of steps.
type Scenario struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps"`
}

// New builds a scenario from steps.
func New(name, description string, steps ...Step) Scenario {
	return Scenario{Name: name, Description: description, Steps: steps}
}

// Compose concatenates step fragments, such as a shared login prefix, into
// one slice. The fragments themselves are not modified.
func Compose(fragments ...[]Step) []Step {
	n := 0
	for _, f := range fragments {
		n += len(f)
	}
	out := make([]Step, 0, n)
	for _, f := range fragments {
		out = append(out, f...)
	}
	return out
}

// Validate checks the scenario and every step. Errors wrap ErrInvalidScenario.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: %s: no steps", ErrInvalidScenario, s.Name)
	}
	for i, step := range s.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("%w: %s: step %d: %v", ErrInvalidScenario, s.Name, i, err)
		}
	}
	return nil
}

// ValidateAll validates each scenario and rejects duplicate names.
func ValidateAll(scenarios []Scenario) error {
	seen := make(map[string]bool, len(scenarios))
	for _, s := range scenarios {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidScenario, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Filter returns the scenarios whose names appear in names, keeping the
// registration order. An empty names list returns all. Unknown names are an
// error.
func Filter(scenarios []Scenario, names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return scenarios, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Scenario
	for _, s := range scenarios {
		if want[s.Name] {
			out = append(out, s)
			delete(want, s.Name)
		}
	}
	if len(want) > 0 {
		var missing []string
		for _, n := range names {
			if want[n] {
				missing = append(missing, n)
				want[n] = false
			}
		}
		return nil, fmt.Errorf("%w: unknown scenario(s): %s", ErrInvalidScenario, strings.Join(missing, ", "))
	}
	return out, nil
}
