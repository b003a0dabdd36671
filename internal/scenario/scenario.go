// Package scenario holds the parameterized attack table and the runner that
// plays each entry against the login form of the application under test.
package scenario

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/authprobe/internal/browser"
	"github.com/xkilldash9x/authprobe/internal/config"
	"github.com/xkilldash9x/authprobe/internal/results"
)

// Kind selects how the runner executes a scenario.
type Kind string

const (
	// KindLogin submits a credential pair and inspects the result.
	KindLogin Kind = "login"
	// KindToken logs in with valid credentials and audits the issued token.
	KindToken Kind = "token"
	// KindCRUD is a step of the patient CRUD flow.
	KindCRUD Kind = "crud"
)

// Category groups scenarios in listings and reports.
type Category string

const (
	CategoryValid    Category = "valid"
	CategorySQL      Category = "sql"
	CategoryXSS      Category = "xss"
	CategoryBypass   Category = "bypass"
	CategoryOverflow Category = "overflow"
	CategoryToken    Category = "token"
	CategoryCustom   Category = "custom"
	CategoryCRUD     Category = "crud"
)

// Observation is what the runner saw after a submission.
type Observation struct {
	URL      string
	Token    string
	Cookies  []browser.Cookie
	Source   string
	Alert    string
	HasAlert bool
	// ErrorText is the text of the login error banner, if rendered.
	ErrorText string
}

// Expectation turns an observation into the scenario outcome.
type Expectation func(obs Observation) results.Outcome

// Scenario is one row of the table. Values are not modified after
// DefaultTable returns them.
type Scenario struct {
	Name     string
	Kind     Kind
	Username string
	Password string
	Category Category
	Expect   Expectation
}

// Suites accepted by scenarios.suite.
const (
	SuiteSecurity = "security"
	SuiteCRUD     = "crud"
	SuiteAll      = "all"
)

// sqlVariations are submitted after the basic injection.
var sqlVariations = [][2]string{
	{"admin' --", "password"},
	{"admin' OR 1=1 --", "password"},
	{"' OR '1'='1' --", "' OR '1'='1' --"},
	{"admin'; DROP TABLE users; --", "password"},
}

// bypassAttempts are near-misses of the valid username.
var bypassAttempts = []string{"admin ", " admin", "ADMIN", "admin\x00"}

// XSSPayload is the script submitted by the XSS scenario.
const XSSPayload = "<script>alert('XSS')</script>"

// DefaultTable builds the ordered security table: valid login, basic SQL
// injection, SQL variations, XSS, bypass variants, the oversized username,
// configured extras and finally the token audit.
func DefaultTable(cfg config.Interface) []Scenario {
	in := NewInspector(cfg.Target())
	creds := cfg.Credentials()
	sc := cfg.Scenarios()

	table := []Scenario{
		{
			Name:     "Login avec credentials valides",
			Kind:     KindLogin,
			Username: creds.Username,
			Password: creds.Password,
			Category: CategoryValid,
			Expect:   in.ExpectAuthenticated(),
		},
		{
			Name:     "Protection injection SQL basique",
			Kind:     KindLogin,
			Username: "admin' OR '1'='1",
			Password: "password",
			Category: CategorySQL,
			Expect:   in.ExpectBlocked("Injection SQL bloquée correctement"),
		},
	}

	for _, p := range sqlVariations {
		table = append(table, Scenario{
			Name:     "Protection SQL - " + truncate(p[0], 20),
			Kind:     KindLogin,
			Username: p[0],
			Password: p[1],
			Category: CategorySQL,
			Expect:   in.ExpectBlocked("Injection bloquée"),
		})
	}

	table = append(table, Scenario{
		Name:     "Protection XSS",
		Kind:     KindLogin,
		Username: XSSPayload,
		Password: "password",
		Category: CategoryXSS,
		Expect:   in.ExpectNoScript(),
	})

	for _, u := range bypassAttempts {
		table = append(table, Scenario{
			Name:     "Protection bypass - " + strings.TrimSpace(u),
			Kind:     KindLogin,
			Username: u,
			Password: "password",
			Category: CategoryBypass,
			Expect:   in.ExpectBlocked("Tentative bloquée"),
		})
	}

	table = append(table, Scenario{
		Name:     "Protection chaîne surdimensionnée",
		Kind:     KindLogin,
		Username: strings.Repeat("A", sc.OversizedLength),
		Password: "password",
		Category: CategoryOverflow,
		Expect:   in.ExpectBlocked("Chaîne surdimensionnée rejetée"),
	})

	for _, x := range sc.Extra {
		cat := Category(x.Category)
		if cat == "" {
			cat = CategoryCustom
		}
		expect := in.ExpectBlocked("Tentative bloquée")
		if cat == CategoryValid {
			expect = in.ExpectAuthenticated()
		}
		table = append(table, Scenario{
			Name:     x.Name,
			Kind:     KindLogin,
			Username: x.Username,
			Password: x.Password,
			Category: cat,
			Expect:   expect,
		})
	}

	if sc.TokenAudit {
		table = append(table, Scenario{
			Name:     TokenAuditName,
			Kind:     KindToken,
			Username: creds.Username,
			Password: creds.Password,
			Category: CategoryToken,
		})
	}
	return table
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Printable renders a credential for listings, escaping control characters
// and shortening long payloads.
func Printable(s string) string {
	var b strings.Builder
	for _, r := range truncate(s, 40) {
		if r < 0x20 || r == 0x7f {
			fmt.Fprintf(&b, `\x%02X`, r)
			continue
		}
		b.WriteRune(r)
	}
	if len([]rune(s)) > 40 {
		b.WriteString("…")
	}
	return b.String()
}
