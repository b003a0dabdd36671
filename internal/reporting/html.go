package reporting

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/xkilldash9x/authprobe/internal/reporting/htmlreport"
	"github.com/xkilldash9x/authprobe/internal/results"
)

// warningRate is the success rate below which the rate card turns amber.
const warningRate = 70.0

type vulnView struct {
	Name     string
	Details  string
	Payload  string
	Severity Severity
}

func (v vulnView) Label() string { return v.Severity.Label() }

type actionItem struct {
	Severity Severity
	Action   string
	Delay    string
}

// actionPlan is the fixed remediation schedule printed at the end of the report.
var actionPlan = []actionItem{
	{SeverityCritical, "Corriger les injections SQL permettant le bypass d'authentification", "Immédiat"},
	{SeverityHigh, "Implémenter la normalisation des entrées (trim, lowercase)", "24h"},
	{SeverityHigh, "Ajouter un système de rate limiting", "48h"},
	{SeverityMedium, "Mettre en place un système de logging complet", "1 semaine"},
}

type htmlView struct {
	Title       string
	Application string
	Driver      string
	Date        string
	GeneratedAt string
	URL         string
	RunID       string
	Summary     results.Summary
	RateClass   string
	Critical    []vulnView
	High        []vulnView
	Medium      []vulnView
	Results     []results.TestResult
	Plan        []actionItem
}

func toViews(rs []results.TestResult, sev Severity) []vulnView {
	out := make([]vulnView, 0, len(rs))
	for _, tr := range rs {
		out = append(out, vulnView{Name: tr.Name, Details: tr.Details, Payload: Payload(tr.Name), Severity: sev})
	}
	return out
}

// linkPath returns the href of a screenshot as seen from the report in base.
func linkPath(base, shot string) string {
	if base == "" || shot == "" {
		return filepath.ToSlash(shot)
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return filepath.ToSlash(shot)
	}
	absShot, err := filepath.Abs(shot)
	if err != nil {
		return filepath.ToSlash(shot)
	}
	rel, err := filepath.Rel(absBase, absShot)
	if err != nil {
		return filepath.ToSlash(shot)
	}
	return filepath.ToSlash(rel)
}

func withLinks(rs []results.TestResult, base string) []results.TestResult {
	out := make([]results.TestResult, len(rs))
	for i, tr := range rs {
		tr.Screenshot = linkPath(base, tr.Screenshot)
		out[i] = tr
	}
	return out
}

// RenderHTML renders r as a standalone French HTML document. Every value comes
// from r or o, so rendering the same report twice yields identical bytes.
func RenderHTML(r *Report, o Options) ([]byte, error) {
	o = o.withDefaults()
	g := Group(r)

	rateClass := "success"
	if r.Summary.SuccessRate < warningRate {
		rateClass = "warning"
	}

	view := htmlView{
		Title:       o.Title,
		Application: o.Application,
		Driver:      o.Driver,
		Date:        r.Date.Format(results.TimestampLayout),
		GeneratedAt: r.Date.Format("02/01/2006 à 15:04:05"),
		URL:         r.URL,
		RunID:       r.RunID,
		Summary:     r.Summary,
		RateClass:   rateClass,
		Critical:    toViews(g.Critical, SeverityCritical),
		High:        toViews(g.High, SeverityHigh),
		Medium:      toViews(g.Medium, SeverityMedium),
		Results:     withLinks(r.Results, o.BaseDir),
		Plan:        actionPlan,
	}

	var buf bytes.Buffer
	if err := htmlreport.Template().Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("failed to render HTML report: %w", err)
	}
	return buf.Bytes(), nil
}
