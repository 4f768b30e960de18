package driver

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Locator describes how to find one element by a stable contract: an ARIA role
// with an optional accessible name, a form label, or a data-testid. Name and
// label matching is case-insensitive substring unless Exact is set.
type Locator struct {
	Role        string   `yaml:"role,omitempty" json:"role,omitempty"`
	Name        string   `yaml:"name,omitempty" json:"name,omitempty"`
	NamePattern string   `yaml:"name_pattern,omitempty" json:"namePattern,omitempty"`
	Exact       bool     `yaml:"exact,omitempty" json:"exact,omitempty"`
	Label       string   `yaml:"label,omitempty" json:"label,omitempty"`
	TestID      string   `yaml:"test_id,omitempty" json:"testId,omitempty"`
	Nth         int      `yaml:"nth,omitempty" json:"nth,omitempty"`
	Within      *Locator `yaml:"within,omitempty" json:"within,omitempty"`
}

// ByRole locates an element by ARIA role and accessible name.
func ByRole(role, name string) Locator {
	return Locator{Role: role, Name: name}
}

// ByRolePattern locates an element whose accessible name matches pattern.
func ByRolePattern(role, pattern string) Locator {
	return Locator{Role: role, NamePattern: pattern}
}

// ByLabel locates a form control by its label text.
func ByLabel(label string) Locator {
	return Locator{Label: label}
}

// ByTestID locates an element by its data-testid attribute.
func ByTestID(id string) Locator {
	return Locator{TestID: id}
}

// At returns a copy selecting the n-th (0-based) match.
func (l Locator) At(n int) Locator {
	l.Nth = n
	return l
}

// Exactly returns a copy that requires a full, case-sensitive name match.
func (l Locator) Exactly() Locator {
	l.Exact = true
	return l
}

// In returns a copy scoped to descendants of parent.
func (l Locator) In(parent Locator) Locator {
	p := parent
	l.Within = &p
	return l
}

// Validate checks that exactly one strategy is set and that modifiers fit it.
func (l Locator) Validate() error {
	set := 0
	for _, v := range []string{l.Role, l.Label, l.TestID} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("locator %s: exactly one of role, label or test_id is required", l)
	}
	if (l.Name != "" || l.NamePattern != "") && l.Role == "" {
		return fmt.Errorf("locator %s: name is only valid with role", l)
	}
	if l.Name != "" && l.NamePattern != "" {
		return fmt.Errorf("locator %s: name and name_pattern are mutually exclusive", l)
	}
	if l.NamePattern != "" {
		if _, err := regexp.Compile(l.NamePattern); err != nil {
			return fmt.Errorf("locator %s: invalid name_pattern: %w", l, err)
		}
	}
	if l.Nth < 0 {
		return errors.New("locator nth must not be negative")
	}
	if l.Within != nil {
		return l.Within.Validate()
	}
	return nil
}

func (l Locator) String() string {
	var b strings.Builder
	if l.Within != nil {
		b.WriteString(l.Within.String())
		b.WriteString(" >> ")
	}
	switch {
	case l.Role != "":
		fmt.Fprintf(&b, "role=%s", l.Role)
		if l.Name != "" {
			fmt.Fprintf(&b, "[name=%q]", l.Name)
		}
		if l.NamePattern != "" {
			fmt.Fprintf(&b, "[name=/%s/]", l.NamePattern)
		}
	case l.Label != "":
		fmt.Fprintf(&b, "label=%q", l.Label)
	case l.TestID != "":
		fmt.Fprintf(&b, "testid=%q", l.TestID)
	default:
		b.WriteString("<empty>")
	}
	if l.Nth > 0 {
		fmt.Fprintf(&b, " >> nth=%d", l.Nth)
	}
	return b.String()
}
