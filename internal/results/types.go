package results

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the wall-clock layout used for result timestamps in reports.
const TimestampLayout = "2006-01-02 15:04:05"

const isoLocalLayout = "2006-01-02T15:04:05.999999999"

// Timestamp is a time.Time serialized with TimestampLayout.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to whole seconds, the report resolution.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.Truncate(time.Second)}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(ts.Format(TimestampLayout))
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode timestamp: %w", err)
	}
	if raw == "" {
		ts.Time = time.Time{}
		return nil
	}
	// Older reports carried ISO 8601 timestamps, with or without a zone.
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano, isoLocalLayout} {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			ts.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", raw)
}

// TestResult is the recorded outcome of one scenario or CRUD step. Values are
// never modified once recorded.
type TestResult struct {
	Name       string    `json:"test"`
	Passed     bool      `json:"passed"`
	Details    string    `json:"details"`
	Timestamp  Timestamp `json:"timestamp"`
	Screenshot string    `json:"screenshot,omitempty"`
}

// OutcomeKind discriminates Outcome values.
type OutcomeKind int

const (
	// OutcomePass means the observed state matched the expectation.
	OutcomePass OutcomeKind = iota
	// OutcomeFail means the observed state contradicted the expectation.
	OutcomeFail
	// OutcomeError means the step could not be carried out.
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePass:
		return "pass"
	case OutcomeFail:
		return "fail"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the explicit result of a single step, threaded through the
// scenario loop instead of unwinding on errors.
type Outcome struct {
	Kind    OutcomeKind
	Details string
	Err     error
}

// Pass builds a passing outcome.
func Pass(details string) Outcome { return Outcome{Kind: OutcomePass, Details: details} }

// Fail builds an assertion-style failure.
func Fail(details string) Outcome { return Outcome{Kind: OutcomeFail, Details: details} }

// Errored builds a step-level failure carrying err.
func Errored(err error) Outcome {
	return Outcome{Kind: OutcomeError, Err: err}
}

// Passed reports whether the outcome counts as a passed test.
func (o Outcome) Passed() bool { return o.Kind == OutcomePass }

// Message is the text stored in TestResult.Details.
func (o Outcome) Message() string {
	if o.Kind != OutcomeError {
		return o.Details
	}
	msg := "erreur inconnue"
	if o.Err != nil {
		msg = o.Err.Error()
	}
	if o.Details != "" {
		msg = o.Details + ": " + msg
	}
	return "Erreur: " + msg
}

// WithNote appends note to the outcome details.
func (o Outcome) WithNote(note string) Outcome {
	note = strings.TrimSpace(note)
	if note == "" {
		return o
	}
	if o.Details == "" {
		o.Details = note
	} else {
		o.Details = o.Details + " (" + note + ")"
	}
	return o
}
