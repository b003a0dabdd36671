package stub

import (
	"strings"

	"github.com/xkilldash9x/authprobe/internal/browser"
)

// Response is what the fake application does after a login submission.
type Response struct {
	// Path is appended to the base URL. Empty stays on the login page.
	Path    string
	Token   string
	Cookies []browser.Cookie
	Alert   string
	Error   string
	// Source replaces the rendered document.
	Source string
}

// App emulates the login page of the application under test on top of a
// Session: the username/password inputs, the submit button, the logout link
// and the error banner.
type App struct {
	BaseURL string
	// LoginAtRoot renders the form at BaseURL itself instead of only on /login.
	LoginAtRoot bool
	// Authenticate decides the response to a submission.
	Authenticate func(username, password string) Response

	Submissions [][2]string
}

var (
	usernameField = browser.Name("username")
	passwordField = browser.Name("password")
	submitButton  = browser.CSS("button[type='submit']")
	logoutLink    = browser.ID("logout")
	errorBanner   = browser.CSS(".error-message")
)

// Install wires the app into s.
func (a *App) Install(s *Session) {
	s.OnNavigate = func(p *Page, url string) {
		if strings.Contains(url, "login") || (a.LoginAtRoot && strings.TrimSuffix(url, "/") == strings.TrimSuffix(a.BaseURL, "/")) {
			renderLogin(p)
		}
	}
	s.OnClick = func(p *Page, sel browser.Selector) {
		switch sel {
		case submitButton:
			a.submit(p)
		case logoutLink:
			delete(p.Storage, "auth_token")
			p.Cookies = nil
			p.Reset(strings.TrimSuffix(a.BaseURL, "/") + "/login")
			renderLogin(p)
		}
	}
}

func (a *App) submit(p *Page) {
	user, pass := fieldValue(p, usernameField), fieldValue(p, passwordField)
	a.Submissions = append(a.Submissions, [2]string{user, pass})

	var resp Response
	if a.Authenticate != nil {
		resp = a.Authenticate(user, pass)
	}

	if resp.Token != "" {
		p.Storage["auth_token"] = resp.Token
	}
	p.Cookies = append(p.Cookies, resp.Cookies...)
	if resp.Path != "" {
		p.Reset(strings.TrimSuffix(a.BaseURL, "/") + resp.Path)
		p.Set(logoutLink, &Element{Text: "Déconnexion"})
	}
	if resp.Error != "" {
		p.Set(errorBanner, &Element{Text: resp.Error})
	}
	if resp.Source != "" {
		p.Source = resp.Source
	}
	p.Alert = resp.Alert
}

func fieldValue(p *Page, sel browser.Selector) string {
	if el, ok := p.Elements[sel]; ok {
		return el.Value
	}
	return ""
}

func renderLogin(p *Page) {
	p.Title = "Connexion"
	p.Set(usernameField, &Element{})
	p.Set(passwordField, &Element{})
	p.Set(submitButton, &Element{Text: "Se connecter"})
}

// SecureApp returns an app that only accepts user/pass and otherwise shows the
// error banner.
func SecureApp(baseURL, user, pass string) *App {
	return &App{
		BaseURL: baseURL,
		Authenticate: func(u, p string) Response {
			if u == user && p == pass {
				return Response{Path: "/patients", Token: "eyJhbGciOiJIUzI1NiJ9.e30.sig"}
			}
			return Response{Error: "Identifiants invalides"}
		},
	}
}
