// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/authprobe/internal/artifacts"
	"github.com/xkilldash9x/authprobe/internal/browser"
	"github.com/xkilldash9x/authprobe/internal/config"
	"github.com/xkilldash9x/authprobe/internal/observability"
	"github.com/xkilldash9x/authprobe/internal/reporting"
	"github.com/xkilldash9x/authprobe/internal/results"
	"github.com/xkilldash9x/authprobe/internal/scenario"
)

// fatalCaptureTimeout bounds the diagnostic screenshot taken after a fatal
// error, which may happen after the run context was canceled.
const fatalCaptureTimeout = 5 * time.Second

type runFlags struct {
	suite          string
	driver         string
	remoteURL      string
	outputDir      string
	formats        []string
	failOnFindings bool
	screenshotsDir string
}

// newRunCmd creates and configures the `run` command.
func newRunCmd(deps dependencies) *cobra.Command {
	var flags runFlags

	runCmd := &cobra.Command{
		Use:   "run [app_url]",
		Short: "Run the authentication and CRUD tests against an application",
		Long: heredoc.Doc(`
			Opens one browser session, plays the selected suite against the
			login form at app_url (default http://localhost:4201) and writes
			the reports.

			Exit status is 0 when the run completes, even with failed tests,
			1 on a harness error and 2 when --fail-on-findings is set and a
			test failed.
		`),
		Example: heredoc.Doc(`
			authprobe run http://localhost:4201
			authprobe run --suite all --driver cdp --format json,html,sarif
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg, flags, args); err != nil {
				return err
			}
			return runAudit(ctx, logger, cfg, deps, cmd.OutOrStdout())
		},
	}

	f := runCmd.Flags()
	f.StringVar(&flags.suite, "suite", scenario.SuiteSecurity, "Suite to run: security, crud or all")
	f.StringVar(&flags.driver, "driver", config.DriverWebDriver, "Browser driver: webdriver or cdp")
	f.StringVar(&flags.remoteURL, "remote-url", "", "Remote WebDriver hub URL")
	f.StringVarP(&flags.outputDir, "output-dir", "o", "", "Directory the reports are written to")
	f.StringSliceVarP(&flags.formats, "format", "f", nil, "Report formats (json, html, sarif)")
	f.BoolVar(&flags.failOnFindings, "fail-on-findings", false, "Exit with status 2 when any test failed")
	f.StringVar(&flags.screenshotsDir, "screenshots-dir", "", "Directory screenshots are written to")

	return runCmd
}

// applyRunFlags overrides the configuration with the flags that were set
// explicitly, then validates the result.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, flags runFlags, args []string) error {
	changed := cmd.Flags().Changed
	if len(args) == 1 {
		cfg.SetTargetURL(args[0])
	}
	if changed("suite") {
		cfg.SetScenarioSuite(flags.suite)
	}
	if changed("driver") {
		cfg.SetBrowserDriver(flags.driver)
	}
	if changed("remote-url") {
		cfg.SetBrowserRemoteURL(flags.remoteURL)
	}
	if changed("output-dir") {
		cfg.SetReportOutputDir(flags.outputDir)
	}
	if changed("format") {
		cfg.SetReportFormats(flags.formats)
	}
	if changed("fail-on-findings") {
		cfg.SetFailOnFindings(flags.failOnFindings)
	}
	if changed("screenshots-dir") {
		cfg.SetScreenshotsDir(flags.screenshotsDir)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// driverLabel names the driver in the report footer.
func driverLabel(driver string) string {
	if driver == config.DriverCDP {
		return "Chrome DevTools"
	}
	return "Selenium WebDriver"
}

// reportOptions builds the rendering options from the configuration.
func reportOptions(cfg config.Interface, logger *zap.Logger) reporting.Options {
	return reporting.Options{
		Title:       cfg.Report().Title,
		Application: cfg.Report().Application,
		Driver:      driverLabel(cfg.Browser().Driver),
		ToolVersion: Version,
		Logger:      logger,
	}
}

// runAudit contains the core, testable logic of the run command.
func runAudit(ctx context.Context, logger *zap.Logger, cfg *config.Config, deps dependencies, out io.Writer) error {
	runID := uuid.NewString()
	log := logger.With(zap.String("run_id", runID))
	narrator := observability.NewNarrator(out)

	log.Info("Starting run.",
		zap.String("url", cfg.Target().URL),
		zap.String("suite", cfg.Scenarios().Suite),
		zap.String("driver", cfg.Browser().Driver),
	)

	// 1. Acquire the single browser session.
	session, err := browser.NewManager(cfg.Browser(), log, deps.openers).Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		if err := session.Quit(); err != nil {
			log.Warn("Failed to quit browser session.", zap.Error(err))
		}
	}()

	capturer, err := artifacts.NewCapturer(cfg.Artifacts(), log)
	if err != nil {
		return err
	}
	recorder := results.NewRecorder(
		results.WithClock(deps.now),
		results.WithHook(func(tr results.TestResult) {
			log.Debug("Result recorded.", zap.String("test", tr.Name), zap.Bool("passed", tr.Passed))
		}),
	)
	runner, err := scenario.NewRunner(cfg, log, session, recorder,
		scenario.WithCapturer(capturer),
		scenario.WithNarrator(narrator),
		scenario.WithClock(deps.now),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize runner: %w", err)
	}

	// 2. Play the suites. A fatal error stops the run but the results
	// recorded so far are still reported.
	fatal := playSuites(ctx, runner, cfg)
	if fatal != nil {
		log.Error("Run aborted.", zap.Error(fatal))
		captureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fatalCaptureTimeout)
		capturer.TryCapture(captureCtx, session, artifacts.FatalErrorName)
		cancel()
	}

	// 3. Report.
	now := deps.now()
	report := reporting.NewReport(cfg.Target().URL, runID, recorder.Results(), now)
	if err := reporting.WriteSummary(out, report); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	paths, err := reporting.WriteAll(report, cfg.Report().OutputDir, cfg.Report().Formats, now, reportOptions(cfg, log))
	for _, p := range paths {
		narrator.Info("Rapport généré: %s", p)
	}
	if err != nil {
		return fmt.Errorf("failed to write reports: %w", err)
	}

	// 4. Run history.
	if cfg.Database().URL != "" {
		if err := persistRun(ctx, cfg, deps.stores, report); err != nil {
			return err
		}
		narrator.Info("Run enregistré: %s", runID)
	}

	if fatal != nil {
		return fatal
	}
	if cfg.Report().FailOnFindings && report.Summary.HasFailures() {
		return &ExitError{Code: ExitFindings, Err: ErrFindings}
	}
	log.Info("Run completed.", zap.Int("total", report.Summary.Total), zap.Int("failed", report.Summary.Failed))
	return nil
}

func playSuites(ctx context.Context, runner *scenario.Runner, cfg *config.Config) error {
	suite := cfg.Scenarios().Suite
	if suite == scenario.SuiteSecurity || suite == scenario.SuiteAll {
		if _, err := runner.Run(ctx, scenario.DefaultTable(cfg)); err != nil {
			return err
		}
	}
	if suite == scenario.SuiteCRUD || suite == scenario.SuiteAll {
		if _, err := runner.RunCRUD(ctx); err != nil {
			return err
		}
	}
	return nil
}

func persistRun(ctx context.Context, cfg config.Interface, provider storeProvider, report *reporting.Report) error {
	if provider == nil {
		return errors.New("store provider cannot be nil")
	}
	s, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}
	if err := s.SaveRun(ctx, report); err != nil {
		return fmt.Errorf("failed to persist run: %w", err)
	}
	return nil
}
