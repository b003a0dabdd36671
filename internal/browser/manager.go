// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/authprobe/internal/config"
)

// Opener creates a session for one driver backend.
type Opener func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Session, error)

// Manager owns session acquisition. A run asks it for exactly one session.
type Manager struct {
	cfg     config.BrowserConfig
	logger  *zap.Logger
	openers map[string]Opener
}

// NewManager creates a manager that dispatches on cfg.Driver to one of openers.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger, openers map[string]Opener) *Manager {
	return &Manager{
		cfg:     cfg,
		logger:  logger.Named("browser_manager"),
		openers: openers,
	}
}

// Open acquires the session. Failure is not retried: the returned error wraps
// ErrSessionUnavailable and the caller must treat it as fatal.
func (m *Manager) Open(ctx context.Context) (Session, error) {
	open, ok := m.openers[m.cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("%w: unknown driver %q (available: %s)", ErrSessionUnavailable, m.cfg.Driver, m.driverNames())
	}

	m.logger.Info("Opening browser session.",
		zap.String("driver", m.cfg.Driver),
		zap.Bool("headless", m.cfg.Headless),
		zap.Strings("args", Arguments(m.cfg)),
	)
	start := time.Now()
	session, err := open(ctx, m.cfg, m.logger)
	if err != nil {
		m.logger.Error("Failed to open browser session.", zap.String("driver", m.cfg.Driver), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}

	m.logger.Info("Browser session ready.",
		zap.String("session_id", session.ID()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return session, nil
}

func (m *Manager) driverNames() string {
	names := make([]string, 0, len(m.openers))
	for name := range m.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Arguments returns the fixed command-line flags passed to Chrome for cfg:
// the configured args plus the viewport, headless mode and TLS handling.
func Arguments(cfg config.BrowserConfig) []string {
	args := make([]string, 0, len(cfg.Args)+3)
	seen := make(map[string]bool, len(cfg.Args)+3)
	add := func(a string) {
		if !seen[a] {
			seen[a] = true
			args = append(args, a)
		}
	}
	for _, a := range cfg.Args {
		add(a)
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		add(fmt.Sprintf("--window-size=%d,%d", cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.Headless {
		add("--headless=new")
	}
	if cfg.IgnoreTLSErrors {
		add("--ignore-certificate-errors")
	}
	return args
}
