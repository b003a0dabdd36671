// Package artifacts persists the screenshots taken during a run.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/authprobe/internal/config"
)

// Fixed names for diagnostic captures.
const (
	LoginPageErrorName = "login_page_error.png"
	FatalErrorName     = "fatal_error.png"
)

// Shooter produces a PNG of the current viewport. browser.Session satisfies it.
type Shooter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Capturer writes screenshots under a single directory. A disabled capturer
// writes nothing and returns empty paths.
type Capturer struct {
	dir     string
	enabled bool
	logger  *zap.Logger

	mu  sync.Mutex
	seq int
}

// NewCapturer resolves the screenshots directory (expanding ~) and creates it.
func NewCapturer(cfg config.ArtifactsConfig, logger *zap.Logger) (*Capturer, error) {
	c := &Capturer{enabled: cfg.Enabled, logger: logger.Named("artifacts")}
	if !cfg.Enabled {
		return c, nil
	}

	dir, err := homedir.Expand(cfg.ScreenshotsDir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve screenshots directory '%s': %w", cfg.ScreenshotsDir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create screenshots directory '%s': %w", dir, err)
	}
	c.dir = dir
	return c, nil
}

// Dir is the resolved screenshots directory.
func (c *Capturer) Dir() string { return c.dir }

// Enabled reports whether captures are written.
func (c *Capturer) Enabled() bool { return c != nil && c.enabled }

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// Sanitize turns a free-form label into a file name fragment.
func Sanitize(label string) string {
	s := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(label), "_"), "_")
	if s == "" {
		return "capture"
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}

// Capture saves a screenshot named "<seq>_<label>.png", seq counting from 1
// across the capturer's lifetime.
func (c *Capturer) Capture(ctx context.Context, s Shooter, label string) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	c.mu.Lock()
	c.seq++
	name := fmt.Sprintf("%d_%s.png", c.seq, Sanitize(label))
	c.mu.Unlock()
	return c.CaptureAs(ctx, s, name)
}

// CaptureAs saves a screenshot under the exact file name given.
func (c *Capturer) CaptureAs(ctx context.Context, s Shooter, name string) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	png, err := s.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to take screenshot %s: %w", name, err)
	}
	path := filepath.Join(c.dir, filepath.Base(name))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot %s: %w", path, err)
	}
	c.logger.Debug("Screenshot saved.", zap.String("path", path), zap.Int("bytes", len(png)))
	return path, nil
}

// TryCapture is CaptureAs for best-effort diagnostics: failures are logged and
// yield an empty path.
func (c *Capturer) TryCapture(ctx context.Context, s Shooter, name string) string {
	path, err := c.CaptureAs(ctx, s, name)
	if err != nil {
		c.logger.Warn("Could not capture diagnostic screenshot.", zap.String("name", name), zap.Error(err))
		return ""
	}
	return path
}
