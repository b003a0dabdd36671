package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/authprobe/internal/artifacts"
	"github.com/xkilldash9x/authprobe/internal/browser"
	"github.com/xkilldash9x/authprobe/internal/config"
	"github.com/xkilldash9x/authprobe/internal/navigation"
	"github.com/xkilldash9x/authprobe/internal/observability"
	"github.com/xkilldash9x/authprobe/internal/results"
)

// Capturer persists screenshots. *artifacts.Capturer implements it.
type Capturer interface {
	Capture(ctx context.Context, s artifacts.Shooter, label string) (string, error)
	CaptureAs(ctx context.Context, s artifacts.Shooter, name string) (string, error)
}

var _ Capturer = (*artifacts.Capturer)(nil)

// Runner plays scenarios against one browser session, recording exactly one
// result per scenario.
type Runner struct {
	cfg       config.Interface
	logger    *zap.Logger
	session   browser.Session
	recorder  *results.Recorder
	nav       *navigation.Navigator
	inspector *Inspector
	limiter   *rate.Limiter
	capturer  Capturer
	narrator  *observability.Narrator
	baseURL   string
	now       func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithCapturer enables screenshots on failed steps and CRUD checkpoints.
func WithCapturer(c Capturer) Option { return func(r *Runner) { r.capturer = c } }

// WithNarrator prints console narration for every step.
func WithNarrator(n *observability.Narrator) Option { return func(r *Runner) { r.narrator = n } }

// WithLimiter replaces the submission pacing limiter.
func WithLimiter(l *rate.Limiter) Option { return func(r *Runner) { r.limiter = l } }

// WithClock overrides the time source used by the token audit and CRUD names.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// NewRunner validates its dependencies and builds a runner targeting the
// configured application URL.
func NewRunner(cfg config.Interface, logger *zap.Logger, session browser.Session, recorder *results.Recorder, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if session == nil {
		return nil, errors.New("session cannot be nil")
	}
	if recorder == nil {
		return nil, errors.New("recorder cannot be nil")
	}

	limit := rate.Inf
	if sr := cfg.Scenarios().SubmitRate; sr > 0 {
		limit = rate.Limit(sr)
	}

	r := &Runner{
		cfg:       cfg,
		logger:    logger.Named("runner"),
		session:   session,
		recorder:  recorder,
		nav:       navigation.New(session, cfg.Navigation(), cfg.Target(), logger),
		inspector: NewInspector(cfg.Target()),
		limiter:   rate.NewLimiter(limit, 1),
		baseURL:   cfg.Target().URL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// isFatal reports whether err ends the run instead of a single scenario: the
// session is gone or the run itself was canceled.
func isFatal(ctx context.Context, err error) bool {
	return err != nil && (errors.Is(err, browser.ErrSessionUnavailable) || ctx.Err() != nil)
}

// Run executes table in order and returns the results it recorded. The error
// is non-nil only when the session died or ctx ended; results recorded up to
// that point are still returned.
func (r *Runner) Run(ctx context.Context, table []Scenario) ([]results.TestResult, error) {
	start := r.recorder.Len()
	r.logger.Info("Starting scenario table.", zap.Int("scenarios", len(table)), zap.String("url", r.baseURL))

	for n, sc := range table {
		if err := ctx.Err(); err != nil {
			return r.recordedSince(start), fmt.Errorf("run interrupted before scenario %q: %w", sc.Name, err)
		}
		log := r.logger.With(zap.Int("index", n), zap.String("scenario", sc.Name), zap.String("category", string(sc.Category)))
		r.narrator.Step("%s", sc.Name)

		outcome, shot, fatal := r.runOne(ctx, sc, log)
		tr := r.recorder.Record(sc.Name, outcome, shot)
		r.narrate(tr)

		if fatal != nil {
			log.Error("Browser session lost; aborting run.", zap.Error(fatal))
			return r.recordedSince(start), fmt.Errorf("scenario %q: %w", sc.Name, fatal)
		}
	}
	return r.recordedSince(start), nil
}

func (r *Runner) recordedSince(start int) []results.TestResult {
	all := r.recorder.Results()
	if start > len(all) {
		return nil
	}
	return all[start:]
}

func (r *Runner) narrate(tr results.TestResult) {
	if tr.Passed {
		r.narrator.Pass("%s: %s", tr.Name, tr.Details)
	} else {
		r.narrator.Fail("%s: %s", tr.Name, tr.Details)
	}
}

// runOne is the per-scenario boundary: every error and panic inside becomes
// the returned outcome. fatal is set when the run cannot continue.
func (r *Runner) runOne(ctx context.Context, sc Scenario, log *zap.Logger) (outcome results.Outcome, shot string, fatal error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("Scenario panicked.", zap.Any("panic", p), zap.Stack("stack"))
			outcome = results.Errored(fmt.Errorf("panic: %v", p))
			shot = r.captureFailure(ctx, sc.Name)
		}
	}()

	// 1. Reach a usable login form.
	if err := r.nav.ToLogin(ctx, r.baseURL); err != nil {
		if isFatal(ctx, err) {
			return results.Errored(err), "", err
		}
		log.Warn("Login page unavailable.", zap.Error(err))
		return results.Errored(fmt.Errorf("impossible d'accéder à la page de login: %w", err)),
			r.captureAs(ctx, artifacts.LoginPageErrorName), nil
	}

	// 2. Submit and observe.
	obs, err := r.Submit(ctx, sc.Username, sc.Password)
	if err != nil {
		if isFatal(ctx, err) {
			return results.Errored(err), "", err
		}
		log.Warn("Scenario step failed.", zap.Error(err))
		return results.Errored(err), r.captureFailure(ctx, sc.Name), nil
	}
	log.Debug("Observation.",
		zap.String("url", obs.URL),
		zap.Bool("token", HasToken(obs.Token)),
		zap.Int("cookies", len(obs.Cookies)),
		zap.Bool("alert", obs.HasAlert),
	)

	// 3. Decide.
	switch sc.Kind {
	case KindToken:
		if !r.inspector.Authenticated(obs) {
			outcome = results.Fail("Connexion impossible, aucun jeton à auditer")
		} else {
			outcome = AuditToken(obs.Token, r.cfg.Scenarios().MaxTokenLifetime, r.now())
		}
	default:
		if sc.Expect == nil {
			outcome = results.Errored(fmt.Errorf("scenario %q has no expectation", sc.Name))
		} else {
			outcome = sc.Expect(obs)
		}
	}

	if !outcome.Passed() {
		shot = r.captureFailure(ctx, sc.Name)
	}

	// 4. Leave the authenticated area so the next scenario starts clean.
	if r.inspector.Authenticated(obs) {
		if err := r.logout(ctx); err != nil {
			if isFatal(ctx, err) {
				return outcome, shot, err
			}
			log.Warn("Logout failed.", zap.Error(err))
		}
	}
	return outcome, shot, nil
}

// Submit fills the login form, submits it and returns what the page shows
// afterwards. The form must already be displayed.
func (r *Runner) Submit(ctx context.Context, username, password string) (Observation, error) {
	if err := r.nav.WaitInteractable(ctx, r.nav.UsernameField(), r.nav.PasswordField()); err != nil {
		return Observation{}, err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return Observation{}, fmt.Errorf("failed to wait for submission slot: %w", err)
	}

	user, pass := r.nav.UsernameField(), r.nav.PasswordField()
	for _, step := range []struct {
		sel   browser.Selector
		value string
	}{{user, username}, {pass, password}} {
		if err := r.session.Clear(ctx, step.sel); err != nil {
			return Observation{}, err
		}
		if err := r.session.SendKeys(ctx, step.sel, step.value); err != nil {
			return Observation{}, err
		}
	}

	before, err := r.session.CurrentURL(ctx)
	if err != nil {
		return Observation{}, err
	}
	if err := r.session.Click(ctx, r.nav.SubmitButton()); err != nil {
		return Observation{}, err
	}

	// A dialog opened by the submission must be read before any other
	// command, which WebDriver would fail after dismissing it.
	var dialog Observation
	text, ok, err := r.session.AlertText(ctx)
	if err != nil && !noteDismissed(err, &dialog) {
		return Observation{}, fmt.Errorf("failed to read alert: %w", err)
	}
	if ok {
		dialog.Alert, dialog.HasAlert = text, true
	}
	if _, err := r.nav.WaitForURLChange(ctx, before); err != nil && !noteDismissed(err, &dialog) {
		return Observation{}, err
	}

	obs, err := r.Observe(ctx)
	if err != nil && noteDismissed(err, &dialog) {
		obs, err = r.Observe(ctx)
	}
	if err != nil {
		return obs, err
	}
	if !obs.HasAlert && dialog.HasAlert {
		obs.Alert, obs.HasAlert = dialog.Alert, true
	}
	return obs, nil
}

// noteDismissed records in obs a dialog the driver dismissed while running
// another command, and reports whether err was such a failure.
func noteDismissed(err error, obs *Observation) bool {
	text, ok := browser.DismissedAlert(err)
	if !ok {
		return false
	}
	obs.Alert, obs.HasAlert = text, true
	return true
}

// Observe collects the post-submission state. The dialog is read first since
// an open alert fails every other WebDriver command.
func (r *Runner) Observe(ctx context.Context) (Observation, error) {
	var obs Observation
	var err error

	if obs.Alert, obs.HasAlert, err = r.session.AlertText(ctx); err != nil {
		return obs, fmt.Errorf("failed to read alert: %w", err)
	}
	if err := r.nav.Settle(ctx); err != nil {
		return obs, err
	}
	if obs.URL, err = r.session.CurrentURL(ctx); err != nil {
		return obs, err
	}

	v, err := r.session.ExecuteScript(ctx, browser.StorageItemScript(r.cfg.Target().TokenStorageKey))
	if err != nil {
		return obs, fmt.Errorf("failed to read %s: %w", r.cfg.Target().TokenStorageKey, err)
	}
	if s, ok := v.(string); ok {
		obs.Token = s
	}

	if obs.Cookies, err = r.session.Cookies(ctx); err != nil {
		return obs, err
	}
	if obs.Source, err = r.session.PageSource(ctx); err != nil {
		return obs, err
	}

	obs.ErrorText = r.inspector.ErrorMessage(obs.Source)
	if obs.ErrorText == "" {
		obs.ErrorText = r.bannerText(ctx)
	}
	return obs, nil
}

// bannerText reads the error banner through the session when the serialized
// source did not contain it.
func (r *Runner) bannerText(ctx context.Context) string {
	ok, err := r.session.Exists(ctx, r.nav.ErrorBanner())
	if err != nil || !ok {
		return ""
	}
	text, err := r.session.Text(ctx, r.nav.ErrorBanner())
	if err != nil {
		return ""
	}
	return text
}

func (r *Runner) logout(ctx context.Context) error {
	ok, err := r.session.Exists(ctx, r.nav.LogoutControl())
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Debug("No logout control found.")
		return nil
	}
	if err := r.session.Click(ctx, r.nav.LogoutControl()); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	return r.nav.WaitURLContains(ctx, "login")
}

func (r *Runner) captureFailure(ctx context.Context, label string) string {
	if r.capturer == nil {
		return ""
	}
	path, err := r.capturer.Capture(ctx, r.session, label)
	if err != nil {
		r.logger.Warn("Could not capture failure screenshot.", zap.String("label", label), zap.Error(err))
		return ""
	}
	return path
}

func (r *Runner) captureAs(ctx context.Context, name string) string {
	if r.capturer == nil {
		return ""
	}
	path, err := r.capturer.CaptureAs(ctx, r.session, name)
	if err != nil {
		r.logger.Warn("Could not capture screenshot.", zap.String("name", name), zap.Error(err))
		return ""
	}
	return path
}
