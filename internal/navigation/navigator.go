// Package navigation resolves the login page of the target application and
// provides bounded, condition-based waits over a browser session.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/authprobe/internal/browser"
	"github.com/xkilldash9x/authprobe/internal/config"
)

// ErrLoginPageUnavailable is returned when the login form never became usable.
var ErrLoginPageUnavailable = errors.New("login page unavailable")

// Navigator moves a session around the target application.
type Navigator struct {
	session browser.Session
	cfg     config.NavigationConfig
	target  config.TargetConfig
	logger  *zap.Logger
}

// New creates a navigator for session.
func New(session browser.Session, cfg config.NavigationConfig, target config.TargetConfig, logger *zap.Logger) *Navigator {
	return &Navigator{
		session: session,
		cfg:     cfg,
		target:  target,
		logger:  logger.Named("navigator"),
	}
}

// UsernameField is the login form's username input.
func (n *Navigator) UsernameField() browser.Selector { return browser.Name(n.target.UsernameField) }

// PasswordField is the login form's password input.
func (n *Navigator) PasswordField() browser.Selector { return browser.Name(n.target.PasswordField) }

// SubmitButton is the login form's submit control.
func (n *Navigator) SubmitButton() browser.Selector { return browser.CSS(n.target.SubmitSelector) }

// ErrorBanner is the element rendered on a rejected login.
func (n *Navigator) ErrorBanner() browser.Selector { return browser.CSS(n.target.ErrorSelector) }

// LogoutControl is the element that ends the authenticated session.
func (n *Navigator) LogoutControl() browser.Selector { return browser.ID(n.target.LogoutID) }

// LoginURL joins base and the configured login path.
func (n *Navigator) LoginURL(base string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(n.cfg.LoginPath, "/")
}

// ToLogin loads baseURL and makes sure the login form is usable. When the
// loaded page is not a login route, the fixed login path is tried once.
func (n *Navigator) ToLogin(ctx context.Context, baseURL string) error {
	// 1. Load the requested page.
	if err := n.session.Navigate(ctx, baseURL); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginPageUnavailable, err)
	}
	if err := n.Settle(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginPageUnavailable, err)
	}

	// 2. Fall back to the login path when we did not land on it.
	current, err := n.session.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginPageUnavailable, err)
	}
	if !strings.Contains(current, "login") {
		fallback := n.LoginURL(baseURL)
		n.logger.Debug("Not on a login route; trying the fallback path.",
			zap.String("current_url", current),
			zap.String("fallback_url", fallback),
		)
		if err := n.session.Navigate(ctx, fallback); err != nil {
			return fmt.Errorf("%w: %w", ErrLoginPageUnavailable, err)
		}
		if err := n.Settle(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrLoginPageUnavailable, err)
		}
	}

	// 3. Wait for the form fields.
	if err := n.WaitInteractable(ctx, n.UsernameField(), n.PasswordField()); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginPageUnavailable, err)
	}
	if title, err := n.session.Title(ctx); err == nil {
		n.logger.Debug("Login form ready.", zap.String("title", title))
	}
	return nil
}

// WaitInteractable waits, bounded by the element timeout, until every selector
// can be interacted with.
func (n *Navigator) WaitInteractable(ctx context.Context, sels ...browser.Selector) error {
	for _, sel := range sels {
		if err := browser.WaitFor(ctx, n.cfg.PollInterval, n.cfg.ElementTimeout, sel.String()+" interactable", browser.Interactable(n.session, sel)); err != nil {
			return err
		}
	}
	return nil
}

// WaitPresent waits until sel matches an element.
func (n *Navigator) WaitPresent(ctx context.Context, sel browser.Selector) error {
	return browser.WaitFor(ctx, n.cfg.PollInterval, n.cfg.ElementTimeout, sel.String()+" present", browser.Present(n.session, sel))
}

// WaitAbsent waits until sel matches nothing.
func (n *Navigator) WaitAbsent(ctx context.Context, sel browser.Selector) error {
	return browser.WaitFor(ctx, n.cfg.PollInterval, n.cfg.ElementTimeout, sel.String()+" absent", browser.Absent(n.session, sel))
}

// WaitText waits until the text of sel contains want.
func (n *Navigator) WaitText(ctx context.Context, sel browser.Selector, want string) error {
	return browser.WaitFor(ctx, n.cfg.PollInterval, n.cfg.ElementTimeout, fmt.Sprintf("%s to contain %q", sel, want),
		func(ctx context.Context) (bool, error) {
			text, err := n.session.Text(ctx, sel)
			if errors.Is(err, browser.ErrElementNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return strings.Contains(text, want), nil
		})
}

// WaitURLContains waits until the current URL contains fragment.
func (n *Navigator) WaitURLContains(ctx context.Context, fragment string) error {
	return browser.WaitFor(ctx, n.cfg.PollInterval, n.cfg.ElementTimeout, "URL to contain "+fragment,
		func(ctx context.Context) (bool, error) {
			u, err := n.session.CurrentURL(ctx)
			if err != nil {
				return false, err
			}
			return strings.Contains(u, fragment), nil
		})
}

// Settle waits for the document to finish loading, then for the configured
// settle delay so client-side rendering can catch up.
func (n *Navigator) Settle(ctx context.Context) error {
	err := browser.WaitFor(ctx, n.cfg.PollInterval, n.cfg.ElementTimeout, "document ready", func(ctx context.Context) (bool, error) {
		state, err := n.session.ExecuteScript(ctx, browser.ReadyStateScript)
		if err != nil {
			return false, err
		}
		return state == "complete", nil
	})
	if err != nil {
		return err
	}
	return sleep(ctx, n.cfg.SettleDelay)
}

// WaitForURLChange waits up to the redirect window for the URL to move away
// from from and returns the URL observed last. Staying put is not an error.
func (n *Navigator) WaitForURLChange(ctx context.Context, from string) (string, error) {
	current := from
	err := browser.WaitFor(ctx, n.cfg.PollInterval, n.cfg.RedirectWait, "URL change", func(ctx context.Context) (bool, error) {
		u, err := n.session.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		current = u
		return u != from, nil
	})
	if err != nil && !errors.Is(err, browser.ErrWaitTimeout) {
		return current, err
	}
	return current, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
