// Package stub provides an in-memory browser.Session whose page state is
// scripted by tests. No browser is involved.
package stub

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/xkilldash9x/authprobe/internal/browser"
)

// Element is the scripted state of one element.
type Element struct {
	Value    string
	Text     string
	Hidden   bool
	Disabled bool
}

// Page is the scripted state of the current document.
type Page struct {
	URL      string
	Title    string
	Source   string
	Storage  map[string]string
	Cookies  []browser.Cookie
	Elements map[browser.Selector]*Element
	// Alert is the text of a pending JavaScript dialog, empty when none.
	Alert string
}

// Reset clears the document, keeping storage and cookies as a browser would
// across navigations.
func (p *Page) Reset(url string) {
	p.URL = url
	p.Title = ""
	p.Source = ""
	p.Alert = ""
	p.Elements = make(map[browser.Selector]*Element)
}

// Set adds or replaces an element.
func (p *Page) Set(sel browser.Selector, el *Element) {
	if p.Elements == nil {
		p.Elements = make(map[browser.Selector]*Element)
	}
	p.Elements[sel] = el
}

// Session is a scriptable browser.Session.
type Session struct {
	mu   sync.Mutex
	id   string
	page *Page
	quit bool

	// OnNavigate is called after the URL changes.
	OnNavigate func(p *Page, url string)
	// OnClick is called when an existing element is clicked.
	OnClick func(p *Page, sel browser.Selector)
	// OnScript answers ExecuteScript for expressions the stub does not
	// recognize itself. handled=false yields nil.
	OnScript func(p *Page, expression string) (value any, handled bool, err error)
	// DismissAlerts makes any command other than AlertText dismiss a pending
	// dialog and fail with a browser.AlertError, as chromedriver does.
	DismissAlerts bool

	failures map[string]error
	calls    []string
}

var _ browser.Session = (*Session)(nil)

// New returns a session on an empty page.
func New() *Session {
	s := &Session{
		id:       "stub-" + uuid.NewString(),
		page:     &Page{Storage: map[string]string{}},
		failures: map[string]error{},
	}
	s.page.Reset("about:blank")
	return s
}

// Update mutates the page under the session lock.
func (s *Session) Update(fn func(p *Page)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.page)
}

// Snapshot returns a copy of the scalar page fields.
func (s *Session) Snapshot() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.page
}

// FailOn makes op return err. op is a method name ("Click") optionally
// qualified by a selector ("Click:name=username").
func (s *Session) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// ClearFailures removes every injected failure.
func (s *Session) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = map[string]error{}
}

// Calls returns the operations performed so far, in order.
func (s *Session) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Quitted reports whether Quit was called.
func (s *Session) Quitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quit
}

// begin records the call and returns any injected failure. Callers hold s.mu.
func (s *Session) begin(op string, sel *browser.Selector) error {
	name := op
	if sel != nil {
		name = op + ":" + sel.String()
	}
	s.calls = append(s.calls, name)
	if s.quit {
		return fmt.Errorf("%w: session %s already quit", browser.ErrSessionUnavailable, s.id)
	}
	if err, ok := s.failures[name]; ok {
		return err
	}
	if err, ok := s.failures[op]; ok {
		return err
	}
	if s.DismissAlerts && op != "AlertText" && s.page.Alert != "" {
		text := s.page.Alert
		s.page.Alert = ""
		return &browser.AlertError{Text: text, Err: fmt.Errorf("unexpected alert open: {Alert text : %s}", text)}
	}
	return nil
}

func (s *Session) element(sel browser.Selector) (*Element, error) {
	el, ok := s.page.Elements[sel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, sel)
	}
	return el, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Navigate", nil); err != nil {
		return err
	}
	s.page.Reset(url)
	if s.OnNavigate != nil {
		s.OnNavigate(s.page, url)
	}
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("CurrentURL", nil); err != nil {
		return "", err
	}
	return s.page.URL, nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Title", nil); err != nil {
		return "", err
	}
	return s.page.Title, nil
}

func (s *Session) PageSource(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("PageSource", nil); err != nil {
		return "", err
	}
	if s.page.Source != "" {
		return s.page.Source, nil
	}
	return "<html><head></head><body></body></html>", nil
}

var storageGetItem = regexp.MustCompile(`localStorage\.getItem\(("(?:[^"\\]|\\.)*")\)`)

func (s *Session) ExecuteScript(ctx context.Context, expression string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("ExecuteScript", nil); err != nil {
		return nil, err
	}
	if s.OnScript != nil {
		if v, handled, err := s.OnScript(s.page, expression); handled || err != nil {
			return v, err
		}
	}
	switch {
	case strings.Contains(expression, "document.readyState"):
		return "complete", nil
	case storageGetItem.MatchString(expression):
		key := strings.Trim(storageGetItem.FindStringSubmatch(expression)[1], `"`)
		if v, ok := s.page.Storage[key]; ok {
			return v, nil
		}
		return nil, nil
	}
	return nil, nil
}

func (s *Session) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Cookies", nil); err != nil {
		return nil, err
	}
	return append([]browser.Cookie(nil), s.page.Cookies...), nil
}

// pngHeader is enough for consumers that only persist the bytes.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Screenshot", nil); err != nil {
		return nil, err
	}
	return append([]byte(nil), pngHeader...), nil
}

func (s *Session) IsInteractable(ctx context.Context, sel browser.Selector) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("IsInteractable", &sel); err != nil {
		return false, err
	}
	el, ok := s.page.Elements[sel]
	return ok && !el.Hidden && !el.Disabled, nil
}

func (s *Session) Exists(ctx context.Context, sel browser.Selector) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Exists", &sel); err != nil {
		return false, err
	}
	_, ok := s.page.Elements[sel]
	return ok, nil
}

func (s *Session) Clear(ctx context.Context, sel browser.Selector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Clear", &sel); err != nil {
		return err
	}
	el, err := s.element(sel)
	if err != nil {
		return err
	}
	el.Value = ""
	return nil
}

func (s *Session) SendKeys(ctx context.Context, sel browser.Selector, keys string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("SendKeys", &sel); err != nil {
		return err
	}
	el, err := s.element(sel)
	if err != nil {
		return err
	}
	el.Value += keys
	return nil
}

func (s *Session) SetValue(ctx context.Context, sel browser.Selector, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("SetValue", &sel); err != nil {
		return err
	}
	el, err := s.element(sel)
	if err != nil {
		return err
	}
	el.Value = value
	return nil
}

func (s *Session) Click(ctx context.Context, sel browser.Selector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Click", &sel); err != nil {
		return err
	}
	if _, err := s.element(sel); err != nil {
		return err
	}
	if s.OnClick != nil {
		s.OnClick(s.page, sel)
	}
	return nil
}

func (s *Session) Text(ctx context.Context, sel browser.Selector) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Text", &sel); err != nil {
		return "", err
	}
	el, err := s.element(sel)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (s *Session) AlertText(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("AlertText", nil); err != nil {
		return "", false, err
	}
	if s.page.Alert == "" {
		return "", false, nil
	}
	text := s.page.Alert
	s.page.Alert = ""
	return text, true, nil
}

func (s *Session) Quit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "Quit")
	s.quit = true
	return nil
}
