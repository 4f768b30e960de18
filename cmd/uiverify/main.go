// Command uiverify runs the UI verification scenarios against a target web
// application and exits 0 when all pass, 1 when any fails, and 2 when the run
// could not be set up.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bobmcallan/uiverify/internal/app"
	"github.com/bobmcallan/uiverify/internal/artifact"
	"github.com/bobmcallan/uiverify/internal/common"
	"github.com/bobmcallan/uiverify/internal/config"
	"github.com/bobmcallan/uiverify/internal/report"
)

// multiFlag allows repeated flags.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ", ") }
func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

// boolFlag records whether a bool flag was given so defaults from config
// survive when it is not.
type boolFlag struct {
	set   bool
	value bool
}

func (b *boolFlag) String() string   { return fmt.Sprintf("%v", b.value) }
func (b *boolFlag) IsBoolFlag() bool { return true }
func (b *boolFlag) Set(v string) error {
	switch strings.ToLower(v) {
	case "true", "1", "":
		b.value = true
	case "false", "0":
		b.value = false
	default:
		return fmt.Errorf("invalid boolean %q", v)
	}
	b.set = true
	return nil
}

var (
	configFiles   multiFlag
	scenarioNames multiFlag
	scenarioFiles multiFlag
	headless      boolFlag

	baseURL     = flag.String("base-url", "", "Base URL of the application (default http://localhost:3000)")
	artifactDir = flag.String("artifact-dir", "", "Directory for screenshots and reports (default verification)")
	timeoutMs   = flag.Int("timeout-ms", 0, "Default per-step timeout in milliseconds (default 10000)")
	driverName  = flag.String("driver", "", "Browser driver: chromedp or playwright")
	workers     = flag.Int("workers", 0, "Scenarios to run concurrently, each in its own browser")
	listOnly    = flag.Bool("list", false, "List scenarios and exit")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
	flag.Var(&scenarioNames, "scenario", "Run only the named scenario (can be specified multiple times)")
	flag.Var(&scenarioFiles, "scenarios-file", "YAML scenarios file (can be specified multiple times)")
	flag.Var(&headless, "headless", "Run the browser headless")
}

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	common.LoadVersionFromFile()
	if *showVersion {
		fmt.Printf("uiverify version %s\n", common.GetFullVersion())
		return report.ExitPass
	}

	if len(configFiles) == 0 {
		for _, path := range configSearchPaths() {
			if _, err := os.Stat(path); err == nil {
				configFiles = append(configFiles, path)
				break
			}
		}
	}

	cfg, err := config.LoadFromFiles(configFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return report.ExitSetup
	}

	overrides := config.FlagOverrides{
		BaseURL:       *baseURL,
		ArtifactDir:   *artifactDir,
		TimeoutMs:     *timeoutMs,
		Driver:        *driverName,
		Workers:       *workers,
		Scenarios:     scenarioNames,
		ScenarioFiles: scenarioFiles,
	}
	if headless.set {
		overrides.Headless = &headless.value
	}
	config.ApplyFlagOverrides(cfg, overrides)

	if issues := cfg.Validate(); len(issues) > 0 {
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Configuration error, fields are missing or invalid:")
		fmt.Fprintln(os.Stderr, "")
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "  - %s\n", issue)
		}
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Values can be set via TOML file, UIVERIFY_* environment variables, or CLI flags.")
		fmt.Fprintln(os.Stderr, "")
		return report.ExitSetup
	}

	var store *artifact.Store
	if !*listOnly {
		store, err = artifact.NewStore(cfg.Run.ArtifactDir, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return report.ExitSetup
		}
		app.LogFilePath(&cfg.Logging, store.Dir())
	}

	logger := common.NewLoggerFromConfig(cfg.Logging)
	logger.Info().
		Str("version", common.GetVersion()).
		Str("config_files", fmt.Sprintf("%v", configFiles)).
		Msg("configuration loaded")

	application, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return report.ExitSetup
	}
	defer application.Close()

	if *listOnly {
		selected, err := application.Scenarios(nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return report.ExitSetup
		}
		for _, s := range selected {
			fmt.Printf("%-24s %s\n", s.Name, s.Description)
		}
		return report.ExitPass
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := application.Run(ctx, app.RunOptions{Store: store})
	if rep != nil {
		rep.WriteText(os.Stdout)
		fmt.Printf("summary: %s\n", filepath.Join(store.Dir(), "summary.md"))
	}
	if err != nil {
		logger.Error().Err(err).Msg("run did not complete")
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	return app.ExitCode(rep, err)
}

// configSearchPaths returns TOML files to auto-discover (first match wins).
func configSearchPaths() []string {
	candidates := []string{
		"uiverify.toml",
		"config/uiverify.toml",
	}

	exe, err := os.Executable()
	if err != nil {
		return candidates
	}
	binDir := filepath.Dir(exe)

	paths := []string{
		filepath.Join(binDir, "uiverify.toml"),
		filepath.Join(binDir, "config", "uiverify.toml"),
	}
	paths = append(paths, candidates...)

	seen := make(map[string]bool, len(paths))
	deduped := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		deduped = append(deduped, p)
	}
	return deduped
}
