package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/authprobe/internal/config"
)

type shooter struct {
	png []byte
	err error
}

func (s shooter) Screenshot(context.Context) ([]byte, error) { return s.png, s.err }

func TestCapture(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	c, err := NewCapturer(config.ArtifactsConfig{Enabled: true, ScreenshotsDir: dir}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.DirExists(t, dir)

	ctx := context.Background()
	s := shooter{png: []byte("png-bytes")}

	p1, err := c.Capture(ctx, s, "Protection XSS")
	require.NoError(t, err)
	p2, err := c.Capture(ctx, s, "login success")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "1_protection_xss.png"), p1)
	assert.Equal(t, filepath.Join(dir, "2_login_success.png"), p2)

	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	fixed, err := c.CaptureAs(ctx, s, FatalErrorName)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fatal_error.png"), fixed)
}

func TestCaptureDisabled(t *testing.T) {
	c, err := NewCapturer(config.ArtifactsConfig{Enabled: false, ScreenshotsDir: "/nonexistent/never"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	p, err := c.Capture(context.Background(), shooter{err: errors.New("unused")}, "x")
	require.NoError(t, err)
	assert.Empty(t, p)
	assert.NoDirExists(t, "/nonexistent/never")
}

func TestTryCapture(t *testing.T) {
	c, err := NewCapturer(config.ArtifactsConfig{Enabled: true, ScreenshotsDir: t.TempDir()}, zaptest.NewLogger(t))
	require.NoError(t, err)

	p := c.TryCapture(context.Background(), shooter{err: errors.New("session gone")}, LoginPageErrorName)
	assert.Empty(t, p)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "protection_sql_admin_or_1_1", Sanitize("Protection SQL - admin' OR '1'='1"))
	assert.Equal(t, "capture", Sanitize("'''"))
	assert.Len(t, Sanitize(string(make([]byte, 200))+"abc"), 3)
}
