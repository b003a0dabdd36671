// File: cmd/report.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/authprobe/internal/config"
	"github.com/xkilldash9x/authprobe/internal/observability"
	"github.com/xkilldash9x/authprobe/internal/reporting"
)

type reportFlags struct {
	runID      string
	outputPath string
	format     string
	open       bool
}

// newReportCmd creates and configures the `report` command.
func newReportCmd(deps dependencies) *cobra.Command {
	var flags reportFlags

	reportCmd := &cobra.Command{
		Use:   "report [report.json]",
		Short: "Render a report from a JSON report file or a stored run",
		Long: heredoc.Doc(`
			Loads a run either from a JSON report written by 'authprobe run'
			(older layouts included) or, with --run-id, from the run history
			database, and renders it again. Without either, the most recent
			JSON report under report.output_dir is used.
		`),
		Example: heredoc.Doc(`
			authprobe report security_report_20250115_090507.json --open
			authprobe report --run-id 6f1c... --format sarif -o results.sarif
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
			var input string
			if len(args) == 1 {
				input = args[0]
			}
			return runReport(ctx, logger, cfg, deps, input, flags, cmd.OutOrStdout())
		},
	}

	reportCmd.Flags().StringVar(&flags.runID, "run-id", "", "Load the run from the database instead of a file")
	reportCmd.Flags().StringVarP(&flags.outputPath, "output", "o", "", "Output file path, or 'stdout'")
	reportCmd.Flags().StringVarP(&flags.format, "format", "f", reporting.FormatHTML, "Report format (html, json, sarif)")
	reportCmd.Flags().BoolVar(&flags.open, "open", false, "Open the rendered report with the default application")

	return reportCmd
}

// runReport contains the core, testable logic for re-rendering a report.
func runReport(ctx context.Context, logger *zap.Logger, cfg config.Interface, deps dependencies, input string, flags reportFlags, out io.Writer) error {
	// 1. Load the run.
	var report *reporting.Report
	var err error
	switch {
	case flags.runID != "" && input != "":
		return errors.New("a report file and --run-id are mutually exclusive")
	case flags.runID != "":
		report, err = loadStoredRun(ctx, cfg, deps.stores, flags.runID)
	default:
		if input == "" {
			if input, err = reporting.Latest(cfg.Report().OutputDir); err != nil {
				return fmt.Errorf("a report file or --run-id is required: %w", err)
			}
			logger.Info("Using the most recent report.", zap.String("input", input))
		}
		report, err = reporting.LoadReport(input)
	}
	if err != nil {
		return err
	}

	// 2. Decide where it goes.
	output := flags.outputPath
	if output == "" {
		if input != "" {
			output = strings.TrimSuffix(input, filepath.Ext(input)) + "." + strings.ToLower(flags.format)
		} else {
			output = reporting.FileName(cfg.Report().OutputDir, flags.format, report.Date.Time)
		}
	}
	toStdout := output == "stdout"
	if toStdout && flags.open {
		return errors.New("--open requires a file output")
	}

	// 3. Render.
	logger.Info("Rendering report.", zap.String("format", flags.format), zap.String("output", output), zap.Int("results", len(report.Results)))
	reporter, err := reporting.New(flags.format, output, reportOptions(cfg, logger))
	if err != nil {
		return err
	}
	werr := reporter.Write(report)
	if err := errors.Join(werr, reporter.Close()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if toStdout {
		return nil
	}
	if err := reporting.WriteResults(out, report); err != nil {
		return err
	}
	fmt.Fprintf(out, "Rapport généré: %s\n", output)

	if flags.open {
		if err := deps.openFile(output); err != nil {
			return fmt.Errorf("failed to open report %s: %w", output, err)
		}
	}
	return nil
}

func loadStoredRun(ctx context.Context, cfg config.Interface, provider storeProvider, runID string) (*reporting.Report, error) {
	s, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}
	report, err := s.LoadRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return report, nil
}
