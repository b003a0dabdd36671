// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/authprobe/internal/browser"
	"github.com/xkilldash9x/authprobe/internal/browser/stub"
	"github.com/xkilldash9x/authprobe/internal/config"
	"github.com/xkilldash9x/authprobe/internal/mocks"
)

const testAppURL = "http://app.test"

var testNow = time.Date(2025, 1, 15, 9, 5, 7, 0, time.Local)

// testEnv holds the directories and fakes a command test runs against.
type testEnv struct {
	dir        string
	reportsDir string
	shotsDir   string
	configPath string

	mu       sync.Mutex
	sessions []*stub.Session
	opened   []string
	store    *mocks.MockStore
}

// newTestEnv writes a config file with short waits so the stub-backed runs
// finish quickly. extra is appended to the YAML document right after the
// scenarios section, so indented keys extend that section.
func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		reportsDir: filepath.Join(dir, "reports"),
		shotsDir:   filepath.Join(dir, "shots"),
		configPath: filepath.Join(dir, "authprobe.yaml"),
		store:      new(mocks.MockStore),
	}

	content := `
logger:
  level: fatal
target:
  url: ` + testAppURL + `
navigation:
  element_timeout: 200ms
  poll_interval: 2ms
  settle_delay: 1ms
  redirect_wait: 20ms
report:
  output_dir: ` + env.reportsDir + `
  formats: [json, html]
artifacts:
  screenshots_dir: ` + env.shotsDir + `
scenarios:
  submit_rate: 10000
  token_audit: false
` + extra
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))
	return env
}

// deps returns dependencies whose webdriver opener hands out stub sessions
// running app.
func (e *testEnv) deps(app func() *stub.App) dependencies {
	opener := func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Session, error) {
		s := stub.New()
		app().Install(s)
		e.mu.Lock()
		e.sessions = append(e.sessions, s)
		e.mu.Unlock()
		return s, nil
	}
	return dependencies{
		openers: map[string]browser.Opener{config.DriverWebDriver: opener, config.DriverCDP: opener},
		stores:  &fakeStoreProvider{store: e.store},
		openFile: func(path string) error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.opened = append(e.opened, path)
			return nil
		},
		now: func() time.Time { return testNow },
	}
}

// execute runs the command tree with args after --config.
func (e *testEnv) execute(t *testing.T, deps dependencies, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(deps)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func secureApp() *stub.App {
	return stub.SecureApp(testAppURL, "admin", "password123")
}

// vulnerableApp lets every credential pair into the protected area.
func vulnerableApp() *stub.App {
	return &stub.App{
		BaseURL: testAppURL,
		Authenticate: func(u, p string) stub.Response {
			return stub.Response{Path: "/patients", Token: "eyJhbGciOiJIUzI1NiJ9.e30.sig"}
		},
	}
}

type fakeStoreProvider struct {
	store   *mocks.MockStore
	err     error
	cleaned bool
}

func (p *fakeStoreProvider) Create(ctx context.Context, cfg config.Interface) (runStore, func(), error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.store, func() { p.cleaned = true }, nil
}
