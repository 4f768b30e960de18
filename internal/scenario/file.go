package scenario

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/bobmcallan/uiverify/internal/driver"
	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a scenarios file:
//
//	fragments:
//	  login:
//	    - {kind: navigate, value: /login}
//	scenarios:
//	  - name: profile
//	    steps:
//	      - include: login
//	      - {kind: expect_visible, target: {role: heading, name: Brukerprofil}}
type File struct {
	Fragments map[string][]fileStep `yaml:"fragments"`
	Scenarios []fileScenario        `yaml:"scenarios"`
}

type fileScenario struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Steps       []fileStep `yaml:"steps"`
}

type fileStep struct {
	Include  string          `yaml:"include"`
	Kind     Kind            `yaml:"kind"`
	Target   *driver.Locator `yaml:"target"`
	Value    string          `yaml:"value"`
	Duration string          `yaml:"duration"`
	Timeout  string          `yaml:"timeout"`
	Offset   *driver.Point   `yaml:"offset"`
	Force    bool            `yaml:"force"`
}

// LoadFile reads scenarios from a YAML file. Fragments named by include are
// expanded in place, and built-in fragments passed in shared are available
// too. The result is not validated; callers run ValidateAll.
func LoadFile(path string, shared map[string][]Step) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios file %s: %w", path, err)
	}
	scenarios, err := Parse(data, shared)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenarios, nil
}

// Parse decodes the YAML scenarios document in data.
func Parse(data []byte, shared map[string][]Step) ([]Scenario, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}

	fragments := make(map[string][]Step, len(shared)+len(f.Fragments))
	for name, steps := range shared {
		fragments[name] = steps
	}
	for name, raw := range f.Fragments {
		steps, err := convertSteps(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: fragment %s: %v", ErrInvalidScenario, name, err)
		}
		fragments[name] = steps
	}

	out := make([]Scenario, 0, len(f.Scenarios))
	for _, fs := range f.Scenarios {
		steps, err := convertSteps(fs.Steps, fragments)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidScenario, fs.Name, err)
		}
		out = append(out, Scenario{Name: fs.Name, Description: fs.Description, Steps: steps})
	}
	return out, nil
}

// convertSteps maps file steps to Steps. A nil fragments map disables include.
func convertSteps(raw []fileStep, fragments map[string][]Step) ([]Step, error) {
	var out []Step
	for i, fs := range raw {
		if fs.Include != "" {
			if fragments == nil {
				return nil, fmt.Errorf("step %d: include is not allowed here", i)
			}
			frag, ok := fragments[fs.Include]
			if !ok {
				return nil, fmt.Errorf("step %d: unknown fragment %q", i, fs.Include)
			}
			out = Compose(out, frag)
			continue
		}

		step := Step{
			Kind:   fs.Kind,
			Target: fs.Target,
			Value:  fs.Value,
			Offset: fs.Offset,
			Force:  fs.Force,
		}
		var err error
		if step.Duration, err = parseDuration(fs.Duration); err != nil {
			return nil, fmt.Errorf("step %d: duration: %w", i, err)
		}
		if step.Timeout, err = parseDuration(fs.Timeout); err != nil {
			return nil, fmt.Errorf("step %d: timeout: %w", i, err)
		}
		out = append(out, step)
	}
	return out, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
