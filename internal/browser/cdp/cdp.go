// Package cdp implements browser.Session over the Chrome DevTools Protocol
// using chromedp, either against a local Chrome or a remote DevTools endpoint.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/authprobe/internal/browser"
	"github.com/xkilldash9x/authprobe/internal/config"
)

const defaultActionTimeout = 10 * time.Second

// Session drives one Chrome tab.
type Session struct {
	id     string
	ctx    context.Context
	logger *zap.Logger

	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	actionTimeout time.Duration

	mu          sync.Mutex
	pendingText string
	hasPending  bool

	quitOnce sync.Once
}

var _ browser.Session = (*Session)(nil)

// Open starts (or attaches to) Chrome and returns a session on a fresh tab.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Session, error) {
	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)
	// The allocator outlives the ctx passed to Open; the session is ended by Quit.
	base := context.WithoutCancel(ctx)
	if cfg.DevToolsURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(base, cfg.DevToolsURL)
	} else {
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(base, allocatorOptions(cfg)...)
	}

	log := logger.Named("cdp")
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Debugf),
	)

	s := &Session{
		id:            "cdp-" + uuid.NewString(),
		ctx:           tabCtx,
		logger:        log,
		cancelTab:     cancelTab,
		cancelAlloc:   cancelAlloc,
		actionTimeout: cfg.ActionTimeout,
	}
	if s.actionTimeout <= 0 {
		s.actionTimeout = defaultActionTimeout
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))

	chromedp.ListenTarget(tabCtx, s.onEvent)

	// The first Run launches the browser and creates the tab. It must use the
	// tab context itself: a derived deadline here would later kill the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	if err := s.run(ctx, chromedp.EmulateViewport(int64(cfg.WindowWidth), int64(cfg.WindowHeight))); err != nil {
		_ = s.Quit()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}
	return s, nil
}

// allocatorOptions translates the fixed Chrome arguments into exec allocator flags.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	for _, arg := range browser.Arguments(cfg) {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// onEvent accepts JavaScript dialogs so they never block the tab, keeping the
// last message for AlertText.
func (s *Session) onEvent(ev interface{}) {
	e, ok := ev.(*page.EventJavascriptDialogOpening)
	if !ok {
		return
	}
	s.mu.Lock()
	s.pendingText = e.Message
	s.hasPending = true
	s.mu.Unlock()

	s.logger.Debug("JavaScript dialog opened.", zap.String("type", string(e.Type)), zap.String("message", e.Message))
	// Must not run synchronously inside the listener.
	go func() {
		if err := chromedp.Run(s.ctx, page.HandleJavaScriptDialog(true)); err != nil && s.ctx.Err() == nil {
			s.logger.Warn("Failed to accept JavaScript dialog.", zap.Error(err))
		}
	}()
}

// combine returns a context canceled when either parent is, bounded by the
// tab's lifetime. Values come from the tab context, which chromedp requires.
func combine(tab, op context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(op, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// run executes actions bounded by the per-action timeout.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combine(s.ctx, ctx)
	defer cancel()
	runCtx, cancelTimeout := context.WithTimeout(runCtx, s.actionTimeout)
	defer cancelTimeout()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("%w: %w", browser.ErrSessionUnavailable, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) ID() string { return s.id }

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("failed to read current URL: %w", err)
	}
	return u, nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var t string
	if err := s.run(ctx, chromedp.Title(&t)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return t, nil
}

func (s *Session) PageSource(ctx context.Context) (string, error) {
	var src string
	if err := s.run(ctx, chromedp.OuterHTML("html", &src, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page source: %w", err)
	}
	return src, nil
}

// wrapExpression serializes the value inside the page so null and undefined
// both arrive as the JSON text "null".
func wrapExpression(expression string) string {
	return "JSON.stringify((() => { const __v = (" + expression + "); return __v === undefined ? null : __v; })())"
}

func (s *Session) ExecuteScript(ctx context.Context, expression string) (any, error) {
	var encoded string
	if err := s.run(ctx, chromedp.Evaluate(wrapExpression(expression), &encoded)); err != nil {
		return nil, fmt.Errorf("failed to execute script: %w", err)
	}
	return decodeResult(encoded)
}

func decodeResult(encoded string) (any, error) {
	if encoded == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(encoded), &v); err != nil {
		return nil, fmt.Errorf("failed to decode script result: %w", err)
	}
	return v, nil
}

func (s *Session) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	var raw []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
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
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *Session) evalBool(ctx context.Context, script string) (bool, error) {
	v, err := s.ExecuteScript(ctx, script)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

func (s *Session) Exists(ctx context.Context, sel browser.Selector) (bool, error) {
	return s.evalBool(ctx, "("+sel.JSLocator()+") !== null")
}

func (s *Session) IsInteractable(ctx context.Context, sel browser.Selector) (bool, error) {
	return s.evalBool(ctx, browser.InteractableScript(sel))
}

// query maps a selector onto chromedp's selector string and query option.
func query(sel browser.Selector) (string, chromedp.QueryOption) {
	if css, ok := sel.CSSValue(); ok {
		return css, chromedp.ByQuery
	}
	return sel.Value, chromedp.BySearch
}

// element runs a chromedp element action. chromedp waits for the node to
// appear, so an expired action timeout means the element was not found.
func (s *Session) element(ctx context.Context, sel browser.Selector, what string, action chromedp.Action) error {
	err := s.run(ctx, action)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("failed to %s %s: %w", what, sel, browser.ErrElementNotFound)
	}
	return fmt.Errorf("failed to %s %s: %w", what, sel, err)
}

func (s *Session) Clear(ctx context.Context, sel browser.Selector) error {
	q, opt := query(sel)
	return s.element(ctx, sel, "clear", chromedp.Clear(q, opt))
}

func (s *Session) SendKeys(ctx context.Context, sel browser.Selector, keys string) error {
	q, opt := query(sel)
	return s.element(ctx, sel, "type into", chromedp.SendKeys(q, keys, opt))
}

func (s *Session) Click(ctx context.Context, sel browser.Selector) error {
	q, opt := query(sel)
	return s.element(ctx, sel, "click", chromedp.Click(q, opt, chromedp.NodeVisible))
}

func (s *Session) Text(ctx context.Context, sel browser.Selector) (string, error) {
	q, opt := query(sel)
	var text string
	if err := s.element(ctx, sel, "read text of", chromedp.Text(q, &text, opt)); err != nil {
		return "", err
	}
	return text, nil
}

func (s *Session) SetValue(ctx context.Context, sel browser.Selector, value string) error {
	ok, err := s.evalBool(ctx, browser.SetValueScript(sel, value))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, sel)
	}
	return nil
}

// AlertText reports the most recent dialog. Dialogs are accepted as soon as
// they open, so this never blocks on one.
func (s *Session) AlertText(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasPending {
		return "", false, nil
	}
	text := s.pendingText
	s.pendingText, s.hasPending = "", false
	return text, true, nil
}

func (s *Session) Quit() error {
	var err error
	s.quitOnce.Do(func() {
		// Cancel closes the tab and, for a local allocator, the browser.
		err = chromedp.Cancel(s.ctx)
		s.cancelTab()
		s.cancelAlloc()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Failed to close Chrome cleanly.", zap.Error(err))
		} else {
			err = nil
			s.logger.Debug("Chrome session closed.")
		}
	})
	return err
}
