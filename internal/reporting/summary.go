package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/xkilldash9x/authprobe/internal/results"
)

const rule = "============================================================"

// WriteSummary prints the console summary block of r: the header, the
// counters, the success rate and every failed test with its details.
func WriteSummary(w io.Writer, r *Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\nRAPPORT DES TESTS DE SÉCURITÉ\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Date: %s\n", r.Date.Format(results.TimestampLayout))
	fmt.Fprintf(&b, "URL: %s\n", r.URL)
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	}
	fmt.Fprintf(&b, "\nRésultats: %d réussis, %d échoués\n", r.Summary.Passed, r.Summary.Failed)
	fmt.Fprintf(&b, "Taux de réussite: %.1f%%\n", r.Summary.SuccessRate)

	if failed := r.Failed(); len(failed) > 0 {
		b.WriteString("\n--- Tests échoués ---\n")
		for _, tr := range failed {
			fmt.Fprintf(&b, "❌ %s\n", tr.Name)
			if tr.Details != "" {
				fmt.Fprintf(&b, "   → %s\n", tr.Details)
			}
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// WriteResults prints one ✅/❌ line per result, passed ones included.
func WriteResults(w io.Writer, r *Report) error {
	var b strings.Builder
	for _, tr := range r.Results {
		mark := "✅"
		if !tr.Passed {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, tr.Name)
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}
