// internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrSessionUnavailable marks a browser session that could not be created or
	// has died. It is the only error that aborts a run.
	ErrSessionUnavailable = errors.New("browser session unavailable")
	// ErrElementNotFound is returned when a selector matches nothing.
	ErrElementNotFound = errors.New("element not found")
	// ErrWaitTimeout is returned when a bounded wait expires.
	ErrWaitTimeout = errors.New("timed out waiting for condition")
)

// AlertError is returned by a command that failed because a JavaScript dialog
// was open. Drivers that dismiss the dialog on the next command report its
// text here, since AlertText can no longer read it.
type AlertError struct {
	Text string
	Err  error
}

func (e *AlertError) Error() string {
	if e.Err == nil {
		return "unexpected alert open: " + e.Text
	}
	return e.Err.Error()
}

func (e *AlertError) Unwrap() error { return e.Err }

// DismissedAlert returns the text of the dialog err reports as dismissed.
func DismissedAlert(err error) (string, bool) {
	var aerr *AlertError
	if errors.As(err, &aerr) {
		return aerr.Text, true
	}
	return "", false
}

// By names a locator strategy.
type By string

const (
	ByName  By = "name"
	ByCSS   By = "css"
	ByID    By = "id"
	ByXPath By = "xpath"
)

// Selector locates a single element on the page.
type Selector struct {
	By    By
	Value string
}

// Name selects by the name attribute.
func Name(v string) Selector { return Selector{By: ByName, Value: v} }

// CSS selects with a CSS selector.
func CSS(v string) Selector { return Selector{By: ByCSS, Value: v} }

// ID selects by element id.
func ID(v string) Selector { return Selector{By: ByID, Value: v} }

// XPath selects with an XPath expression.
func XPath(v string) Selector { return Selector{By: ByXPath, Value: v} }

func (s Selector) String() string {
	return fmt.Sprintf("%s=%s", s.By, s.Value)
}

// CSSValue converts name and id selectors to their CSS equivalent. XPath
// selectors have none and return ok=false.
func (s Selector) CSSValue() (string, bool) {
	switch s.By {
	case ByCSS:
		return s.Value, true
	case ByName:
		return "[name=" + strconv.Quote(s.Value) + "]", true
	case ByID:
		return "[id=" + strconv.Quote(s.Value) + "]", true
	default:
		return "", false
	}
}

// JSLocator returns a JavaScript expression that evaluates to the first
// matching element, or null.
func (s Selector) JSLocator() string {
	v := jsString(s.Value)
	switch s.By {
	case ByName:
		return "document.getElementsByName(" + v + ")[0] || null"
	case ByID:
		return "document.getElementById(" + v + ")"
	case ByXPath:
		return "document.evaluate(" + v + ", document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue"
	default:
		return "document.querySelector(" + v + ")"
	}
}

// Cookie is the subset of cookie attributes the harness inspects.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// Session is one browser handle, owned by a single run. Implementations are
// not required to be safe for concurrent use.
type Session interface {
	// ID identifies the session in logs.
	ID() string
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
	// ExecuteScript evaluates a JavaScript expression and returns its value
	// decoded as JSON-compatible Go values. undefined becomes nil.
	ExecuteScript(ctx context.Context, expression string) (any, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	// Screenshot returns a PNG of the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)

	// IsInteractable reports whether the element exists, is displayed and is enabled.
	// A missing element is (false, nil).
	IsInteractable(ctx context.Context, sel Selector) (bool, error)
	Exists(ctx context.Context, sel Selector) (bool, error)
	Clear(ctx context.Context, sel Selector) error
	SendKeys(ctx context.Context, sel Selector, keys string) error
	Click(ctx context.Context, sel Selector) error
	Text(ctx context.Context, sel Selector) (string, error)
	// SetValue assigns the value property directly and fires input/change events.
	SetValue(ctx context.Context, sel Selector, value string) error

	// AlertText returns the text of a pending JavaScript dialog and accepts it.
	// ok is false when no dialog is open.
	AlertText(ctx context.Context) (text string, ok bool, err error)

	// Quit ends the session. It is safe to call more than once.
	Quit() error
}

// SetValueScript builds the script used by SetValue implementations.
func SetValueScript(sel Selector, value string) string {
	return fmt.Sprintf(`(function() {
	const el = %s;
	if (!el) { return false; }
	el.value = %s;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`, sel.JSLocator(), jsString(value))
}

// jsString encodes v as a JavaScript string literal.
func jsString(v string) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}

// InteractableScript builds a script returning whether the element is present,
// visible and enabled.
func InteractableScript(sel Selector) string {
	return fmt.Sprintf(`(function() {
	const el = %s;
	if (!el) { return false; }
	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	return !el.disabled && rect.width > 0 && rect.height > 0 && style.visibility !== 'hidden';
})()`, sel.JSLocator())
}

// ReadyStateScript evaluates to document.readyState.
const ReadyStateScript = "document.readyState"

// StorageItemScript reads key from localStorage.
func StorageItemScript(key string) string {
	return "window.localStorage.getItem(" + jsString(key) + ")"
}
