package results

import (
	"math"
	"sync"
	"time"
)

// Recorder accumulates TestResults in execution order. It is append-only.
type Recorder struct {
	mu      sync.Mutex
	results []TestResult
	now     func() time.Time
	hooks   []func(TestResult)
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source used to stamp results.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithHook registers a callback invoked after every recorded result.
func WithHook(fn func(TestResult)) RecorderOption {
	return func(r *Recorder) { r.hooks = append(r.hooks, fn) }
}

// NewRecorder creates an empty recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record converts an outcome into a TestResult and appends it.
func (r *Recorder) Record(name string, outcome Outcome, screenshot string) TestResult {
	tr := TestResult{
		Name:       name,
		Passed:     outcome.Passed(),
		Details:    outcome.Message(),
		Timestamp:  NewTimestamp(r.now()),
		Screenshot: screenshot,
	}
	r.Append(tr)
	return tr
}

// Append adds an already-built result.
func (r *Recorder) Append(tr TestResult) {
	r.mu.Lock()
	r.results = append(r.results, tr)
	hooks := r.hooks
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(tr)
	}
}

// Results returns a copy of the recorded results in insertion order.
func (r *Recorder) Results() []TestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TestResult, len(r.results))
	copy(out, r.results)
	return out
}

// Len returns the number of recorded results.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

// Summary holds the aggregate counters of a run.
type Summary struct {
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// Summarize computes the counters over rs. SuccessRate is a percentage rounded
// to one decimal and is 0 for an empty list.
func Summarize(rs []TestResult) Summary {
	s := Summary{Total: len(rs)}
	for _, r := range rs {
		if r.Passed {
			s.Passed++
		}
	}
	s.Failed = s.Total - s.Passed
	if s.Total > 0 {
		s.SuccessRate = math.Round(float64(s.Passed)/float64(s.Total)*1000) / 10
	}
	return s
}

// HasFailures reports whether any result failed.
func (s Summary) HasFailures() bool { return s.Failed > 0 }
