package scenario

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/xkilldash9x/authprobe/internal/config"
	"github.com/xkilldash9x/authprobe/internal/results"
)

// Finding describes one observed violation of a security invariant.
type Finding string

// Fixed finding texts.
const (
	FindingToken    Finding = "Token généré malgré les mauvais credentials"
	FindingRedirect Finding = "Redirection non autorisée vers la zone protégée"
	FindingDOM      Finding = "Script injecté dans le DOM"
)

// Inspector applies the fixed decision rules to an Observation.
type Inspector struct {
	target config.TargetConfig
}

// NewInspector creates an inspector for the given application contract.
func NewInspector(target config.TargetConfig) *Inspector {
	return &Inspector{target: target}
}

// HasToken reports whether a storage value counts as an issued token.
func HasToken(raw string) bool {
	switch strings.TrimSpace(raw) {
	case "", "null", "undefined":
		return false
	}
	return true
}

// Findings runs the token, URL and session-cookie checks, in that order.
func (i *Inspector) Findings(obs Observation) []Finding {
	var out []Finding
	if HasToken(obs.Token) {
		out = append(out, FindingToken)
	}
	if i.target.ProtectedFragment != "" && strings.Contains(obs.URL, i.target.ProtectedFragment) {
		out = append(out, FindingRedirect)
	}
	match := strings.ToLower(i.target.SessionCookieMatch)
	for _, c := range obs.Cookies {
		if match == "" || !strings.Contains(strings.ToLower(c.Name), match) {
			continue
		}
		if !c.HTTPOnly {
			out = append(out, Finding("Cookie de session sans flag HttpOnly: "+c.Name))
		}
		if !c.Secure {
			out = append(out, Finding("Cookie de session sans flag Secure: "+c.Name))
		}
	}
	return out
}

// ScriptFindings reports an executed dialog or a script node that made it
// into the document.
func (i *Inspector) ScriptFindings(obs Observation) []Finding {
	if obs.HasAlert {
		return []Finding{Finding("Alerte XSS déclenchée: " + obs.Alert)}
	}
	if InjectedScript(obs.Source) {
		return []Finding{FindingDOM}
	}
	return nil
}

// Authenticated reports whether the observation shows a logged-in session.
func (i *Inspector) Authenticated(obs Observation) bool {
	return HasToken(obs.Token) ||
		(i.target.ProtectedFragment != "" && strings.Contains(obs.URL, i.target.ProtectedFragment))
}

// InjectedScript reports whether source contains a script element, or an
// inline event handler, that calls alert. Escaped payloads rendered as text or
// attribute values do not count.
func InjectedScript(source string) bool {
	if source == "" {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return false
	}
	found := false
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), "alert") {
			found = true
		}
		return !found
	})
	if found {
		return true
	}
	doc.Find("[onerror], [onload]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"onerror", "onload"} {
			if v, ok := s.Attr(attr); ok && strings.Contains(v, "alert") {
				found = true
			}
		}
		return !found
	})
	return found
}

// ErrorMessage extracts the login error banner text from source.
func (i *Inspector) ErrorMessage(source string) string {
	if source == "" || i.target.ErrorSelector == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find(i.target.ErrorSelector).First().Text())
}

// fail folds findings into a failed outcome.
func fail(findings []Finding) results.Outcome {
	parts := make([]string, len(findings))
	for n, f := range findings {
		parts[n] = string(f)
	}
	return results.Fail("Vulnérabilités détectées: " + strings.Join(parts, ", "))
}

func withBanner(o results.Outcome, obs Observation) results.Outcome {
	if obs.ErrorText == "" {
		return o
	}
	return o.WithNote("Message: " + obs.ErrorText)
}

// ExpectBlocked passes with passMsg when no finding is observed.
func (i *Inspector) ExpectBlocked(passMsg string) Expectation {
	return func(obs Observation) results.Outcome {
		if f := i.Findings(obs); len(f) > 0 {
			return fail(f)
		}
		return withBanner(results.Pass(passMsg), obs)
	}
}

// ExpectNoScript is ExpectBlocked preceded by the XSS checks.
func (i *Inspector) ExpectNoScript() Expectation {
	return func(obs Observation) results.Outcome {
		f := append(i.ScriptFindings(obs), i.Findings(obs)...)
		if len(f) > 0 {
			return fail(f)
		}
		return withBanner(results.Pass("XSS bloqué correctement"), obs)
	}
}

// ExpectAuthenticated passes when the valid account reached the protected area
// or received a token.
func (i *Inspector) ExpectAuthenticated() Expectation {
	return func(obs Observation) results.Outcome {
		if i.Authenticated(obs) {
			return results.Pass("Connexion réussie avec les bonnes credentials")
		}
		return withBanner(results.Fail(fmt.Sprintf("Impossible de se connecter avec des credentials valides, URL actuelle: %s", obs.URL)), obs)
	}
}
