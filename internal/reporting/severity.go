package reporting

import (
	"strings"

	"github.com/xkilldash9x/authprobe/internal/results"
)

// Severity ranks a failed result.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// Label is the French badge text.
func (s Severity) Label() string {
	switch s {
	case SeverityCritical:
		return "Critique"
	case SeverityHigh:
		return "Élevé"
	default:
		return "Moyen"
	}
}

const unauthorizedRedirect = "Redirection non autorisée"

// Classify ranks a failed result from its name and details.
func Classify(name, details string) Severity {
	redirected := strings.Contains(details, unauthorizedRedirect)
	switch {
	case strings.Contains(name, "SQL") && redirected:
		return SeverityCritical
	case strings.Contains(name, "bypass") && redirected:
		return SeverityHigh
	case strings.Contains(name, "XSS"):
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// Grouped holds the failed results of a report per severity, each in
// execution order.
type Grouped struct {
	Critical []results.TestResult
	High     []results.TestResult
	Medium   []results.TestResult
}

// Group classifies the failed results of r.
func Group(r *Report) Grouped {
	var g Grouped
	for _, tr := range r.Failed() {
		switch Classify(tr.Name, tr.Details) {
		case SeverityCritical:
			g.Critical = append(g.Critical, tr)
		case SeverityHigh:
			g.High = append(g.High, tr)
		default:
			g.Medium = append(g.Medium, tr)
		}
	}
	return g
}

// Payload extracts the payload shown in a scenario name ("Protection SQL -
// admin' --" yields "admin' --").
func Payload(name string) string {
	if i := strings.LastIndex(name, " - "); i >= 0 {
		return name[i+len(" - "):]
	}
	return "N/A"
}
