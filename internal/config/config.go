// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Driver names accepted by browser.driver.
const (
	DriverWebDriver = "webdriver"
	DriverCDP       = "cdp"
)

// Interface exposes read-only access to the configuration sections. Components
// depend on this rather than on *Config so tests can hand them a partial view.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Navigation() NavigationConfig
	Credentials() CredentialsConfig
	Target() TargetConfig
	Scenarios() ScenariosConfig
	Report() ReportConfig
	Artifacts() ArtifactsConfig
	Database() DatabaseConfig
}

// Config is the root configuration for the harness.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	NavigationCfg  NavigationConfig  `mapstructure:"navigation" yaml:"navigation"`
	CredentialsCfg CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	TargetCfg      TargetConfig      `mapstructure:"target" yaml:"target"`
	ScenariosCfg   ScenariosConfig   `mapstructure:"scenarios" yaml:"scenarios"`
	ReportCfg      ReportConfig      `mapstructure:"report" yaml:"report"`
	ArtifactsCfg   ArtifactsConfig   `mapstructure:"artifacts" yaml:"artifacts"`
	DatabaseCfg    DatabaseConfig    `mapstructure:"database" yaml:"database"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Navigation() NavigationConfig   { return c.NavigationCfg }
func (c *Config) Credentials() CredentialsConfig { return c.CredentialsCfg }
func (c *Config) Target() TargetConfig           { return c.TargetCfg }
func (c *Config) Scenarios() ScenariosConfig     { return c.ScenariosCfg }
func (c *Config) Report() ReportConfig           { return c.ReportCfg }
func (c *Config) Artifacts() ArtifactsConfig     { return c.ArtifactsCfg }
func (c *Config) Database() DatabaseConfig       { return c.DatabaseCfg }

// -- Setters used by command-line flag overrides --

func (c *Config) SetTargetURL(u string)             { c.TargetCfg.URL = u }
func (c *Config) SetBrowserDriver(d string)         { c.BrowserCfg.Driver = d }
func (c *Config) SetBrowserRemoteURL(u string)      { c.BrowserCfg.RemoteURL = u }
func (c *Config) SetBrowserHeadless(b bool)         { c.BrowserCfg.Headless = b }
func (c *Config) SetReportOutputDir(d string)       { c.ReportCfg.OutputDir = d }
func (c *Config) SetReportFormats(f []string)       { c.ReportCfg.Formats = f }
func (c *Config) SetScreenshotsDir(d string)        { c.ArtifactsCfg.ScreenshotsDir = d }
func (c *Config) SetScreenshotsEnabled(b bool)      { c.ArtifactsCfg.Enabled = b }
func (c *Config) SetElementTimeout(d time.Duration) { c.NavigationCfg.ElementTimeout = d }
func (c *Config) SetScenarioSuite(s string)         { c.ScenariosCfg.Suite = s }
func (c *Config) SetFailOnFindings(b bool)          { c.ReportCfg.FailOnFindings = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds the fixed capabilities of the browser session.
type BrowserConfig struct {
	// Driver selects the backend: "webdriver" (Selenium grid) or "cdp" (DevTools).
	Driver string `mapstructure:"driver" yaml:"driver"`
	// RemoteURL is the WebDriver hub endpoint.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	// DevToolsURL points at a running Chrome's DevTools websocket. When empty the
	// cdp driver launches a local Chrome instead.
	DevToolsURL     string        `mapstructure:"devtools_url" yaml:"devtools_url"`
	BrowserName     string        `mapstructure:"browser_name" yaml:"browser_name"`
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	WindowWidth     int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int           `mapstructure:"window_height" yaml:"window_height"`
	ActionTimeout   time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// NavigationConfig tunes the wait primitive used in place of fixed sleeps.
type NavigationConfig struct {
	ElementTimeout time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SettleDelay    time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	RedirectWait   time.Duration `mapstructure:"redirect_wait" yaml:"redirect_wait"`
	LoginPath      string        `mapstructure:"login_path" yaml:"login_path"`
}

// CredentialsConfig holds the valid test account. Both values can be
// overridden through AUTHPROBE_CREDENTIALS_USERNAME/PASSWORD.
type CredentialsConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
}

// TargetConfig describes the application under test.
type TargetConfig struct {
	URL                string `mapstructure:"url" yaml:"url"`
	ProtectedFragment  string `mapstructure:"protected_fragment" yaml:"protected_fragment"`
	TokenStorageKey    string `mapstructure:"token_storage_key" yaml:"token_storage_key"`
	SessionCookieMatch string `mapstructure:"session_cookie_match" yaml:"session_cookie_match"`
	UsernameField      string `mapstructure:"username_field" yaml:"username_field"`
	PasswordField      string `mapstructure:"password_field" yaml:"password_field"`
	SubmitSelector     string `mapstructure:"submit_selector" yaml:"submit_selector"`
	ErrorSelector      string `mapstructure:"error_selector" yaml:"error_selector"`
	LogoutID           string `mapstructure:"logout_id" yaml:"logout_id"`
}

// ExtraScenario is a user-supplied credential pair appended to the scenario table.
type ExtraScenario struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Category string `mapstructure:"category" yaml:"category"`
}

// ScenariosConfig controls which scenarios run and how fast.
type ScenariosConfig struct {
	Suite            string          `mapstructure:"suite" yaml:"suite"`
	SubmitRate       float64         `mapstructure:"submit_rate" yaml:"submit_rate"`
	OversizedLength  int             `mapstructure:"oversized_length" yaml:"oversized_length"`
	TokenAudit       bool            `mapstructure:"token_audit" yaml:"token_audit"`
	MaxTokenLifetime time.Duration   `mapstructure:"max_token_lifetime" yaml:"max_token_lifetime"`
	Extra            []ExtraScenario `mapstructure:"extra" yaml:"extra"`
}

// ReportConfig controls report output.
type ReportConfig struct {
	OutputDir      string   `mapstructure:"output_dir" yaml:"output_dir"`
	Formats        []string `mapstructure:"formats" yaml:"formats"`
	FailOnFindings bool     `mapstructure:"fail_on_findings" yaml:"fail_on_findings"`
	Title          string   `mapstructure:"title" yaml:"title"`
	Application    string   `mapstructure:"application" yaml:"application"`
}

// ArtifactsConfig controls screenshot capture.
type ArtifactsConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	ScreenshotsDir string `mapstructure:"screenshots_dir" yaml:"screenshots_dir"`
}

// DatabaseConfig holds the optional run-history database connection.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a configuration populated only with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "authprobe")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", DriverWebDriver)
	v.SetDefault("browser.remote_url", "http://selenium:4444/wd/hub")
	v.SetDefault("browser.devtools_url", "")
	v.SetDefault("browser.browser_name", "chrome")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.args", []string{
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-gpu",
		"--disable-setuid-sandbox",
	})
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.action_timeout", "10s")

	// -- Navigation --
	v.SetDefault("navigation.element_timeout", "30s")
	v.SetDefault("navigation.poll_interval", "250ms")
	v.SetDefault("navigation.settle_delay", "500ms")
	v.SetDefault("navigation.redirect_wait", "3s")
	v.SetDefault("navigation.login_path", "/login")

	// -- Credentials --
	v.SetDefault("credentials.username", "admin")
	v.SetDefault("credentials.password", "password123")

	// -- Target --
	v.SetDefault("target.url", "http://localhost:4201")
	v.SetDefault("target.protected_fragment", "patients")
	v.SetDefault("target.token_storage_key", "auth_token")
	v.SetDefault("target.session_cookie_match", "session")
	v.SetDefault("target.username_field", "username")
	v.SetDefault("target.password_field", "password")
	v.SetDefault("target.submit_selector", "button[type='submit']")
	v.SetDefault("target.error_selector", ".error-message")
	v.SetDefault("target.logout_id", "logout")

	// -- Scenarios --
	v.SetDefault("scenarios.suite", "security")
	v.SetDefault("scenarios.submit_rate", 2.0)
	v.SetDefault("scenarios.oversized_length", 5000)
	v.SetDefault("scenarios.token_audit", true)
	v.SetDefault("scenarios.max_token_lifetime", "24h")

	// -- Report --
	v.SetDefault("report.output_dir", ".")
	v.SetDefault("report.formats", []string{"json", "html"})
	v.SetDefault("report.fail_on_findings", false)
	v.SetDefault("report.title", "Rapport de Sécurité - Authentification")
	v.SetDefault("report.application", "Application de Gestion des Patients")

	// -- Artifacts --
	v.SetDefault("artifacts.enabled", true)
	v.SetDefault("artifacts.screenshots_dir", "screenshots")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for the test account explicitly so they are
	// honored even when no config file mentions the keys.
	_ = v.BindEnv("credentials.username", "AUTHPROBE_CREDENTIALS_USERNAME")
	_ = v.BindEnv("credentials.password", "AUTHPROBE_CREDENTIALS_PASSWORD")
	_ = v.BindEnv("database.url", "AUTHPROBE_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := validateURL("target.url", c.TargetCfg.URL); err != nil {
		return err
	}
	switch c.BrowserCfg.Driver {
	case DriverWebDriver:
		if err := validateURL("browser.remote_url", c.BrowserCfg.RemoteURL); err != nil {
			return err
		}
	case DriverCDP:
	default:
		return fmt.Errorf("browser.driver must be %q or %q, got %q", DriverWebDriver, DriverCDP, c.BrowserCfg.Driver)
	}
	if c.BrowserCfg.WindowWidth <= 0 || c.BrowserCfg.WindowHeight <= 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be positive integers")
	}
	if c.NavigationCfg.ElementTimeout <= 0 {
		return fmt.Errorf("navigation.element_timeout must be a positive duration")
	}
	if c.NavigationCfg.PollInterval <= 0 {
		return fmt.Errorf("navigation.poll_interval must be a positive duration")
	}
	if c.ScenariosCfg.SubmitRate <= 0 {
		return fmt.Errorf("scenarios.submit_rate must be greater than 0")
	}
	switch c.ScenariosCfg.Suite {
	case "security", "crud", "all":
	default:
		return fmt.Errorf("scenarios.suite must be one of security, crud, all; got %q", c.ScenariosCfg.Suite)
	}
	for _, f := range c.ReportCfg.Formats {
		switch strings.ToLower(f) {
		case "json", "html", "sarif":
		default:
			return fmt.Errorf("report.formats contains unsupported format %q", f)
		}
	}
	for i, extra := range c.ScenariosCfg.Extra {
		if extra.Name == "" {
			return fmt.Errorf("scenarios.extra[%d].name is required", i)
		}
	}
	return nil
}

func validateURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is a required configuration field", key)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
	}
	return nil
}
