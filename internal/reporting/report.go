// internal/reporting/report.go
package reporting

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/authprobe/internal/results"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var percentRate = regexp.MustCompile(`"success_rate"\s*:\s*"\s*([0-9]+(?:\.[0-9]+)?)\s*%?\s*"`)

// Report is the snapshot written to every output format. It is built once per
// run and never modified afterwards.
type Report struct {
	Date    results.Timestamp    `json:"date"`
	URL     string               `json:"url"`
	RunID   string               `json:"run_id,omitempty"`
	Summary results.Summary      `json:"summary"`
	Results []results.TestResult `json:"results"`
}

// NewReport snapshots rs for the run against url.
func NewReport(url, runID string, rs []results.TestResult, now time.Time) *Report {
	snapshot := make([]results.TestResult, len(rs))
	copy(snapshot, rs)
	return &Report{
		Date:    results.NewTimestamp(now),
		URL:     url,
		RunID:   runID,
		Summary: results.Summarize(snapshot),
		Results: snapshot,
	}
}

// Failed returns the failed results in execution order.
func (r *Report) Failed() []results.TestResult {
	var out []results.TestResult
	for _, tr := range r.Results {
		if !tr.Passed {
			out = append(out, tr)
		}
	}
	return out
}

// legacyReport accepts the report layouts produced by earlier versions of the
// harness: results under "test_results", the total under "total_tests" and a
// success rate rendered as "85.7%".
type legacyReport struct {
	Date        results.Timestamp    `json:"date"`
	URL         string               `json:"url"`
	RunID       string               `json:"run_id"`
	Results     []results.TestResult `json:"results"`
	TestResults []results.TestResult `json:"test_results"`
	Summary     struct {
		Total       *int            `json:"total"`
		TotalTests  *int            `json:"total_tests"`
		Passed      int             `json:"passed"`
		Failed      int             `json:"failed"`
		SuccessRate jsoniter.Number `json:"success_rate"`
	} `json:"summary"`
}

// LoadReport reads a JSON report from path.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	return DecodeReport(data)
}

// DecodeReport parses a JSON report. When the summary is missing it is
// recomputed from the results.
func DecodeReport(data []byte) (*Report, error) {
	// Percent strings are not valid numbers; unquote them before decoding.
	data = percentRate.ReplaceAll(data, []byte(`"success_rate": $1`))

	var raw legacyReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}

	r := &Report{Date: raw.Date, URL: raw.URL, RunID: raw.RunID, Results: raw.Results}
	if r.Results == nil {
		r.Results = raw.TestResults
	}
	if r.Results == nil {
		r.Results = []results.TestResult{}
	}

	computed := results.Summarize(r.Results)
	switch {
	case raw.Summary.Total != nil:
		r.Summary.Total = *raw.Summary.Total
	case raw.Summary.TotalTests != nil:
		r.Summary.Total = *raw.Summary.TotalTests
	default:
		r.Summary = computed
		return r, nil
	}
	r.Summary.Passed = raw.Summary.Passed
	r.Summary.Failed = raw.Summary.Failed
	r.Summary.SuccessRate = computed.SuccessRate
	if s := strings.TrimSpace(raw.Summary.SuccessRate.String()); s != "" {
		rate, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse success rate %q: %w", s, err)
		}
		r.Summary.SuccessRate = rate
	}
	return r, nil
}

// encodeJSON renders r the way the json reporter writes it.
func encodeJSON(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return buf.Bytes(), nil
}
