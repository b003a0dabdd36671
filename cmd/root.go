// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	pkgbrowser "github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/authprobe/internal/browser"
	"github.com/xkilldash9x/authprobe/internal/browser/cdp"
	"github.com/xkilldash9x/authprobe/internal/browser/webdriver"
	"github.com/xkilldash9x/authprobe/internal/config"
	"github.com/xkilldash9x/authprobe/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// Exit codes returned by the authprobe binary.
const (
	ExitOK       = 0
	ExitFatal    = 1
	ExitFindings = 2
)

// ErrFindings is returned by run when --fail-on-findings is set and at least
// one result failed.
var ErrFindings = errors.New("security findings detected")

// ExitError attaches a process exit code to an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps the error returned by Execute to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFatal
}

// dependencies are the pieces of the command tree replaced in tests.
type dependencies struct {
	openers  map[string]browser.Opener
	stores   storeProvider
	openFile func(path string) error
	now      func() time.Time
}

func defaultDependencies() dependencies {
	return dependencies{
		openers: map[string]browser.Opener{
			config.DriverWebDriver: webdriver.Open,
			config.DriverCDP:       cdp.Open,
		},
		stores:   NewStoreProvider(),
		openFile: pkgbrowser.OpenFile,
		now:      time.Now,
	}
}

// NewRootCommand builds the command tree wired to the real drivers and store.
func NewRootCommand() *cobra.Command {
	return newRootCmd(defaultDependencies())
}

func newRootCmd(deps dependencies) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "authprobe",
		Short: "Browser-driven authentication and CRUD test harness.",
		Long: heredoc.Doc(`
			authprobe drives a real browser against the login form of a web
			application and plays a table of hostile credential pairs (SQL
			injection, XSS, near-miss usernames, oversized input) plus an
			optional patient CRUD walkthrough.

			Every scenario yields one pass/fail result. Results are written as
			JSON and HTML reports, with screenshots of failed steps.
		`),
		Version:       Version,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			// 1. Read the config file and environment.
			if err := initializeConfig(v, cfgFile); err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// 2. Build and validate the configuration.
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			// 3. Logger.
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting authprobe", zap.String("version", Version))

			// 4. Hand the config to subcommands.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./authprobe.yaml)")

	rootCmd.AddCommand(newRunCmd(deps))
	rootCmd.AddCommand(newReportCmd(deps))
	rootCmd.AddCommand(newScenariosCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with ctx and returns the error for ExitCode.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, ErrFindings) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// initializeConfig reads in the config file and AUTHPROBE_* environment variables.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("authprobe")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AUTHPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment only.
	}
	return nil
}

func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in command context")
	}
	return cfg, nil
}
