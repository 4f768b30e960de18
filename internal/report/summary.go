package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	passLabel = color.New(color.FgGreen, color.Bold).SprintFunc()
	failLabel = color.New(color.FgRed, color.Bold).SprintFunc()
	dim       = color.New(color.Faint).SprintFunc()
)

// WriteText prints one line per scenario followed by a tally.
func (r *RunReport) WriteText(w io.Writer) error {
	var b strings.Builder
	for _, sc := range r.Scenarios {
		label := passLabel("PASS")
		if !sc.Passed {
			label = failLabel("FAIL")
		}
		fmt.Fprintf(&b, "%s  %s %s\n", label, sc.Name, dim(fmt.Sprintf("(%.2fs)", sc.Duration.Seconds())))
		if f := sc.Failure(); f != nil {
			fmt.Fprintf(&b, "      step %d: %s\n", f.Index, f.Step)
			fmt.Fprintf(&b, "      %s\n", f.Outcome.Reason)
		}
		for _, res := range sc.Steps {
			if res.Outcome.Waived {
				fmt.Fprintf(&b, "      waived step %d: %s\n", res.Index, res.Outcome.Reason)
			}
		}
		for _, a := range sc.Artifacts {
			fmt.Fprintf(&b, "      artifact: %s\n", a)
		}
	}

	s := r.Summary()
	tally := fmt.Sprintf("%d passed, %d failed, %d total", s.Passed, s.Failed, s.Total)
	if s.Failed > 0 {
		tally = failLabel(tally)
	} else {
		tally = passLabel(tally)
	}
	fmt.Fprintf(&b, "---\n%s %s\n", tally, dim("run "+r.RunID))
	if r.ArtifactDir != "" {
		fmt.Fprintf(&b, "artifacts: %s\n", r.ArtifactDir)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteMarkdown writes summary.md into dir and returns its path.
func (r *RunReport) WriteMarkdown(dir string) (string, error) {
	path := filepath.Join(dir, "summary.md")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create summary: %w", err)
	}
	defer f.Close()

	s := r.Summary()
	status := "PASS"
	if s.Failed > 0 {
		status = "FAIL"
	}

	fmt.Fprintf(f, "# Verification Summary\n\n")
	fmt.Fprintf(f, "**Status:** %s\n", status)
	fmt.Fprintf(f, "**Run:** %s\n", r.RunID)
	fmt.Fprintf(f, "**Timestamp:** %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(f, "**Duration:** %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(f, "**Server:** %s\n\n", r.BaseURL)

	fmt.Fprintf(f, "| Metric | Count |\n")
	fmt.Fprintf(f, "|--------|-------|\n")
	fmt.Fprintf(f, "| Passed | %d |\n", s.Passed)
	fmt.Fprintf(f, "| Failed | %d |\n", s.Failed)
	fmt.Fprintf(f, "| Total | %d |\n\n", s.Total)

	fmt.Fprintf(f, "## Scenarios\n\n")
	fmt.Fprintf(f, "| Scenario | Status | Steps | Duration |\n")
	fmt.Fprintf(f, "|----------|--------|-------|----------|\n")
	for _, sc := range r.Scenarios {
		st := "PASS"
		if !sc.Passed {
			st = "FAIL"
		}
		fmt.Fprintf(f, "| %s | %s | %d | %.2fs |\n", sc.Name, st, len(sc.Steps), sc.Duration.Seconds())
	}
	fmt.Fprintf(f, "\n")

	var shots []string
	for _, sc := range r.Scenarios {
		for _, a := range sc.Artifacts {
			shots = append(shots, filepath.Base(a))
		}
	}
	if len(shots) > 0 {
		fmt.Fprintf(f, "## Artifacts\n\n")
		fmt.Fprintf(f, "### Screenshots\n\n")
		for _, name := range shots {
			fmt.Fprintf(f, "- `%s`\n", name)
		}
		fmt.Fprintf(f, "\n")
	}

	if s.Failed > 0 {
		fmt.Fprintf(f, "## Failures\n\n")
		for _, sc := range r.Scenarios {
			if sc.Passed {
				continue
			}
			fmt.Fprintf(f, "- **%s**: %s\n", sc.Name, sc.Error)
			if d := sc.Diagnostics; d != nil {
				fmt.Fprintf(f, "  - url: `%s`\n", d.URL)
				for _, e := range d.JSErrors {
					fmt.Fprintf(f, "  - js: `%s`\n", e)
				}
			}
			fmt.Fprintf(f, "\n")
		}
	}

	return path, nil
}

// WriteJSON writes report.json into dir and returns its path.
func (r *RunReport) WriteJSON(dir string) (string, error) {
	out := struct {
		*RunReport
		Summary Summary `json:"summary"`
	}{r, r.Summary()}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	path := filepath.Join(dir, "report.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
