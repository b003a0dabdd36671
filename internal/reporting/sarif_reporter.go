// internal/reporting/sarif_reporter.go
package reporting

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/authprobe/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "authprobe"
	ToolInfoURI  = "https://github.com/xkilldash9x/authprobe"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// ruleIDSanitizer collapses everything but letters, digits, underscore and dot
// into a single hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// RuleID derives the rule of a result from the part of its name before the
// payload, so every "Protection SQL - <payload>" result shares one rule.
func RuleID(name string) string {
	base := name
	if i := strings.Index(base, " - "); i >= 0 {
		base = base[:i]
	}
	base = strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(asciiFold(base)), "-"), "-")
	if base == "" {
		base = "UNNAMED-CHECK"
	}
	return "AUTHPROBE-" + base
}

var accentFolder = strings.NewReplacer(
	"é", "e", "è", "e", "ê", "e", "É", "E", "à", "a", "â", "a", "î", "i", "ô", "o", "û", "u", "ç", "c",
)

func asciiFold(s string) string { return accentFolder.Replace(s) }

// RenderSARIF converts the failed results of r into a SARIF 2.1.0 log. Rules
// and results keep execution order.
func RenderSARIF(r *Report, o Options) ([]byte, error) {
	o = o.withDefaults()

	driver := &sarif.ToolComponent{
		Name:           ToolName,
		Version:        pString(o.ToolVersion),
		InformationURI: pString(ToolInfoURI),
		Rules:          []*sarif.ReportingDescriptor{},
	}
	run := &sarif.Run{Tool: &sarif.Tool{Driver: driver}, Results: []*sarif.Result{}}
	log := &sarif.Log{Version: SARIFVersion, Schema: SARIFSchema, Runs: []*sarif.Run{run}}

	seen := make(map[string]bool)
	for _, tr := range r.Failed() {
		sev := Classify(tr.Name, tr.Details)
		ruleID := RuleID(tr.Name)
		if !seen[ruleID] {
			seen[ruleID] = true
			driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
				ID:               ruleID,
				Name:             pString(tr.Name),
				ShortDescription: &sarif.MultiformatMessageString{Text: pString(tr.Name)},
				Properties: &sarif.PropertyBag{
					"tags":     []string{"security", "authentication"},
					"severity": string(sev),
				},
			})
		}

		result := &sarif.Result{
			RuleID:  ruleID,
			Message: &sarif.Message{Text: pString(fmt.Sprintf("%s: %s", tr.Name, tr.Details))},
			Level:   levelFor(sev),
		}
		if r.URL != "" {
			result.Locations = []*sarif.Location{{
				PhysicalLocation: &sarif.PhysicalLocation{
					ArtifactLocation: &sarif.ArtifactLocation{URI: pString(r.URL)},
				},
			}}
		}
		run.Results = append(run.Results, result)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(log); err != nil {
		return nil, fmt.Errorf("failed to encode SARIF output: %w", err)
	}
	return buf.Bytes(), nil
}

func levelFor(sev Severity) sarif.Level {
	switch sev {
	case SeverityCritical, SeverityHigh:
		return sarif.LevelError
	default:
		return sarif.LevelWarning
	}
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}
