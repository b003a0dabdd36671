// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/authprobe/internal/browser"
	"github.com/xkilldash9x/authprobe/internal/config"
	"github.com/xkilldash9x/authprobe/internal/reporting"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Navigation() config.NavigationConfig {
	args := m.Called()
	return args.Get(0).(config.NavigationConfig)
}

func (m *MockConfig) Credentials() config.CredentialsConfig {
	args := m.Called()
	return args.Get(0).(config.CredentialsConfig)
}

func (m *MockConfig) Target() config.TargetConfig {
	args := m.Called()
	return args.Get(0).(config.TargetConfig)
}

func (m *MockConfig) Scenarios() config.ScenariosConfig {
	args := m.Called()
	return args.Get(0).(config.ScenariosConfig)
}

func (m *MockConfig) Report() config.ReportConfig {
	args := m.Called()
	return args.Get(0).(config.ReportConfig)
}

func (m *MockConfig) Artifacts() config.ArtifactsConfig {
	args := m.Called()
	return args.Get(0).(config.ArtifactsConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

// NewMockConfigFrom returns a MockConfig answering every getter from cfg.
func NewMockConfigFrom(cfg *config.Config) *MockConfig {
	m := new(MockConfig)
	m.On("Logger").Return(cfg.Logger()).Maybe()
	m.On("Browser").Return(cfg.Browser()).Maybe()
	m.On("Navigation").Return(cfg.Navigation()).Maybe()
	m.On("Credentials").Return(cfg.Credentials()).Maybe()
	m.On("Target").Return(cfg.Target()).Maybe()
	m.On("Scenarios").Return(cfg.Scenarios()).Maybe()
	m.On("Report").Return(cfg.Report()).Maybe()
	m.On("Artifacts").Return(cfg.Artifacts()).Maybe()
	m.On("Database").Return(cfg.Database()).Maybe()
	return m
}

// -- Browser Session Mock --

// MockSession mocks the browser.Session interface.
type MockSession struct {
	mock.Mock
}

var _ browser.Session = (*MockSession)(nil)

func (m *MockSession) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSession) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockSession) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSession) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSession) PageSource(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSession) ExecuteScript(ctx context.Context, expression string) (any, error) {
	args := m.Called(ctx, expression)
	return args.Get(0), args.Error(1)
}

func (m *MockSession) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	args := m.Called(ctx)
	var cookies []browser.Cookie
	if c := args.Get(0); c != nil {
		cookies = c.([]browser.Cookie)
	}
	return cookies, args.Error(1)
}

func (m *MockSession) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	var png []byte
	if b := args.Get(0); b != nil {
		png = b.([]byte)
	}
	return png, args.Error(1)
}

func (m *MockSession) IsInteractable(ctx context.Context, sel browser.Selector) (bool, error) {
	args := m.Called(ctx, sel)
	return args.Bool(0), args.Error(1)
}

func (m *MockSession) Exists(ctx context.Context, sel browser.Selector) (bool, error) {
	args := m.Called(ctx, sel)
	return args.Bool(0), args.Error(1)
}

func (m *MockSession) Clear(ctx context.Context, sel browser.Selector) error {
	args := m.Called(ctx, sel)
	return args.Error(0)
}

func (m *MockSession) SendKeys(ctx context.Context, sel browser.Selector, keys string) error {
	args := m.Called(ctx, sel, keys)
	return args.Error(0)
}

func (m *MockSession) Click(ctx context.Context, sel browser.Selector) error {
	args := m.Called(ctx, sel)
	return args.Error(0)
}

func (m *MockSession) Text(ctx context.Context, sel browser.Selector) (string, error) {
	args := m.Called(ctx, sel)
	return args.String(0), args.Error(1)
}

func (m *MockSession) SetValue(ctx context.Context, sel browser.Selector, value string) error {
	args := m.Called(ctx, sel, value)
	return args.Error(0)
}

func (m *MockSession) AlertText(ctx context.Context) (string, bool, error) {
	args := m.Called(ctx)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockSession) Quit() error {
	args := m.Called()
	return args.Error(0)
}

// -- Run Store Mock --

// MockStore mocks the run history store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveRun(ctx context.Context, r *reporting.Report) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockStore) LoadRun(ctx context.Context, runID string) (*reporting.Report, error) {
	args := m.Called(ctx, runID)
	var r *reporting.Report
	if v := args.Get(0); v != nil {
		r = v.(*reporting.Report)
	}
	return r, args.Error(1)
}
