// Package webdriver implements browser.Session over a remote Selenium
// WebDriver endpoint.
package webdriver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"go.uber.org/zap"

	"github.com/xkilldash9x/authprobe/internal/browser"
	"github.com/xkilldash9x/authprobe/internal/config"
)

// newRemote is swapped in tests.
var newRemote = selenium.NewRemote

// Session adapts a selenium.WebDriver to browser.Session. The WebDriver wire
// protocol is synchronous, so ctx is only checked before each command.
type Session struct {
	wd     selenium.WebDriver
	logger *zap.Logger

	quitOnce sync.Once
	quitErr  error
}

var _ browser.Session = (*Session)(nil)

// Open creates a remote session with the fixed Chrome capabilities.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	caps := selenium.Capabilities{"browserName": cfg.BrowserName}
	caps.AddChrome(chrome.Capabilities{
		Args: browser.Arguments(cfg),
		W3C:  true,
	})
	if cfg.IgnoreTLSErrors {
		caps["acceptInsecureCerts"] = true
	}

	wd, err := newRemote(caps, cfg.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote session at %s: %w", cfg.RemoteURL, err)
	}
	return New(wd, logger), nil
}

// New wraps an existing WebDriver.
func New(wd selenium.WebDriver, logger *zap.Logger) *Session {
	return &Session{
		wd:     wd,
		logger: logger.Named("webdriver").With(zap.String("session_id", wd.SessionID())),
	}
}

func (s *Session) ID() string { return s.wd.SessionID() }

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.wd.Get(url); err != nil {
		return s.wrap(fmt.Sprintf("failed to navigate to %s", url), err)
	}
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	u, err := s.wd.CurrentURL()
	if err != nil {
		return "", s.wrap("failed to read current URL", err)
	}
	return u, nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t, err := s.wd.Title()
	if err != nil {
		return "", s.wrap("failed to read title", err)
	}
	return t, nil
}

func (s *Session) PageSource(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := s.wd.PageSource()
	if err != nil {
		return "", s.wrap("failed to read page source", err)
	}
	return src, nil
}

func (s *Session) ExecuteScript(ctx context.Context, expression string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := s.wd.ExecuteScript("return ("+expression+");", nil)
	if err != nil {
		return nil, s.wrap("failed to execute script", err)
	}
	return v, nil
}

func (s *Session) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := s.wd.GetCookies()
	if err != nil {
		return nil, s.wrap("failed to read cookies", err)
	}
	cookies := make([]browser.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, browser.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	return cookies, nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	png, err := s.wd.Screenshot()
	if err != nil {
		return nil, s.wrap("failed to capture screenshot", err)
	}
	return png, nil
}

// find resolves sel to an element, mapping "no such element" to
// browser.ErrElementNotFound.
func (s *Session) find(ctx context.Context, sel browser.Selector) (selenium.WebElement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	by, value := strategy(sel)
	el, err := s.wd.FindElement(by, value)
	if err != nil {
		if isNoSuch(err, "no such element") {
			return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, sel)
		}
		return nil, s.wrap(fmt.Sprintf("failed to find %s", sel), err)
	}
	return el, nil
}

func (s *Session) Exists(ctx context.Context, sel browser.Selector) (bool, error) {
	_, err := s.find(ctx, sel)
	if errors.Is(err, browser.ErrElementNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Session) IsInteractable(ctx context.Context, sel browser.Selector) (bool, error) {
	el, err := s.find(ctx, sel)
	if errors.Is(err, browser.ErrElementNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	displayed, err := el.IsDisplayed()
	if err != nil {
		if isNoSuch(err, "stale element") {
			return false, nil
		}
		return false, s.wrap("failed to check visibility", err)
	}
	enabled, err := el.IsEnabled()
	if err != nil {
		if isNoSuch(err, "stale element") {
			return false, nil
		}
		return false, s.wrap("failed to check enabled state", err)
	}
	return displayed && enabled, nil
}

func (s *Session) Clear(ctx context.Context, sel browser.Selector) error {
	el, err := s.find(ctx, sel)
	if err != nil {
		return err
	}
	if err := el.Clear(); err != nil {
		return s.wrap(fmt.Sprintf("failed to clear %s", sel), err)
	}
	return nil
}

func (s *Session) SendKeys(ctx context.Context, sel browser.Selector, keys string) error {
	el, err := s.find(ctx, sel)
	if err != nil {
		return err
	}
	if err := el.SendKeys(keys); err != nil {
		return s.wrap(fmt.Sprintf("failed to type into %s", sel), err)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, sel browser.Selector) error {
	el, err := s.find(ctx, sel)
	if err != nil {
		return err
	}
	if err := el.Click(); err != nil {
		return s.wrap(fmt.Sprintf("failed to click %s", sel), err)
	}
	return nil
}

func (s *Session) Text(ctx context.Context, sel browser.Selector) (string, error) {
	el, err := s.find(ctx, sel)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", s.wrap(fmt.Sprintf("failed to read text of %s", sel), err)
	}
	return text, nil
}

func (s *Session) SetValue(ctx context.Context, sel browser.Selector, value string) error {
	v, err := s.ExecuteScript(ctx, browser.SetValueScript(sel, value))
	if err != nil {
		return err
	}
	if ok, _ := v.(bool); !ok {
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, sel)
	}
	return nil
}

func (s *Session) AlertText(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	text, err := s.wd.AlertText()
	if err != nil {
		if isNoSuch(err, "no such alert") {
			return "", false, nil
		}
		return "", false, s.wrap("failed to read alert", err)
	}
	if err := s.wd.AcceptAlert(); err != nil {
		s.logger.Warn("Failed to accept alert.", zap.Error(err))
	}
	return text, true, nil
}

func (s *Session) Quit() error {
	s.quitOnce.Do(func() {
		s.quitErr = s.wd.Quit()
		if s.quitErr != nil {
			s.logger.Warn("Failed to quit WebDriver session.", zap.Error(s.quitErr))
		} else {
			s.logger.Debug("WebDriver session closed.")
		}
	})
	return s.quitErr
}

// wrap annotates err, tagging it with ErrSessionUnavailable when the remote
// end no longer knows the session.
func (s *Session) wrap(msg string, err error) error {
	if isNoSuch(err, "unexpected alert open") {
		// chromedriver dismisses the dialog before failing the command.
		return fmt.Errorf("%s: %w", msg, &browser.AlertError{Text: dismissedText(err), Err: err})
	}
	if isNoSuch(err, "invalid session id") || isNoSuch(err, "session deleted") || isNoSuch(err, "connection refused") {
		return fmt.Errorf("%s: %w: %w", msg, browser.ErrSessionUnavailable, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func strategy(sel browser.Selector) (by, value string) {
	switch sel.By {
	case browser.ByName:
		return selenium.ByName, sel.Value
	case browser.ByID:
		return selenium.ByID, sel.Value
	case browser.ByXPath:
		return selenium.ByXPATH, sel.Value
	default:
		return selenium.ByCSSSelector, sel.Value
	}
}

var alertTextRE = regexp.MustCompile(`\{Alert text\s*:\s*(.*?)\}`)

// dismissedText extracts the dialog text chromedriver appends to an
// "unexpected alert open" message.
func dismissedText(err error) string {
	if m := alertTextRE.FindStringSubmatch(err.Error()); m != nil {
		return m[1]
	}
	return ""
}

// isNoSuch matches a WebDriver error code or message.
func isNoSuch(err error, code string) bool {
	var serr *selenium.Error
	if errors.As(err, &serr) && serr.Err == code {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), code)
}
